package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tacmap/tacsim/internal/database"
	"github.com/tacmap/tacsim/internal/storage/gormstore"
	"github.com/tacmap/tacsim/pkg/core"
)

func TestRunHistory(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "archive.db")

	db, err := database.GetSqliteDB(dbPath)
	require.NoError(t, err)
	backend := gormstore.New(db)
	require.NoError(t, backend.Init())
	history := []core.Snapshot{
		{Time: 0, Timestamp: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)},
		{Time: 1, Timestamp: time.Date(2026, 1, 1, 12, 0, 1, 0, time.UTC)},
	}
	require.NoError(t, backend.ArchiveHistory(context.Background(), "s1", history))
	require.NoError(t, backend.Close())
	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	viper.Set("storage.type", "sqlite")
	viper.Set("storage.sqlite.path", dbPath)
	t.Cleanup(viper.Reset)

	var out bytes.Buffer
	require.NoError(t, runHistory(dir, []string{"s1", "s2"}, &out))

	dec := json.NewDecoder(&out)
	var first, second sessionHistory
	require.NoError(t, dec.Decode(&first))
	require.NoError(t, dec.Decode(&second))

	assert.Equal(t, "s1", first.SessionID)
	assert.Len(t, first.Snapshots, 2)
	assert.Equal(t, "s2", second.SessionID)
	assert.Empty(t, second.Snapshots)
}

func TestRunHistory_Errors(t *testing.T) {
	t.Cleanup(viper.Reset)

	err := runHistory(t.TempDir(), nil, &bytes.Buffer{})
	assert.ErrorContains(t, err, "usage")

	viper.Set("storage.type", "memory")
	err = runHistory(t.TempDir(), []string{"s1"}, &bytes.Buffer{})
	assert.ErrorContains(t, err, "keeps no archives")
}

func TestZerologLevel(t *testing.T) {
	assert.Equal(t, "debug", zerologLevel("debug").String())
	assert.Equal(t, "warn", zerologLevel("WARN").String())
	assert.Equal(t, "info", zerologLevel("bogus").String())
}
