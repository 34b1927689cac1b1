package influx

import (
	"compress/gzip"
	"context"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tacmap/tacsim/internal/config"
)

func readBackup(t *testing.T, path string) string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	zr, err := gzip.NewReader(f)
	require.NoError(t, err)
	data, err := io.ReadAll(zr)
	require.NoError(t, err)
	return string(data)
}

func TestConnect_Disabled(t *testing.T) {
	m := NewManager(zerolog.Nop(), config.InfluxConfig{})
	assert.ErrorIs(t, m.Connect(context.Background()), ErrDisabled)
}

func TestConnect_UnreachableUsesBackup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "influx_backup.log.gzip")
	m := NewManager(zerolog.Nop(), config.InfluxConfig{
		Enabled:    true,
		Protocol:   "http",
		Host:       "127.0.0.1",
		Port:       "1",
		Org:        "tacsim",
		BackupPath: path,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, m.Connect(ctx))
	assert.False(t, m.IsValid)

	m.RecordTick(ctx, 2, 3*time.Millisecond)
	m.RecordDecision(ctx, "s1", 2.5, 3, 1)
	m.RecordDecision(ctx, "s1", math.Inf(1), 3, 0)
	m.RecordStatus(2, 10, 4, time.Millisecond)
	require.NoError(t, m.Close())

	out := readBackup(t, path)
	assert.Contains(t, out, "engine_tick")
	assert.Contains(t, out, "sessions=2i")
	assert.Contains(t, out, "force_ratio,session=s1")
	assert.Contains(t, out, "ratio=2.5")
	assert.Contains(t, out, "opposing_destroyed=true")
	assert.Contains(t, out, "engine_status")
}

func TestWritePoint_NoBackend(t *testing.T) {
	m := NewManager(zerolog.Nop(), config.InfluxConfig{})
	err := m.WritePoint(BucketSimulation, influxdb2_write.NewPointWithMeasurement("x").AddField("v", 1))
	assert.Error(t, err)
	assert.NoError(t, m.Close())
}
