package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/tacmap/tacsim/internal/config"
	"github.com/tacmap/tacsim/internal/database"
	"github.com/tacmap/tacsim/internal/storage/gormstore"
	"github.com/tacmap/tacsim/pkg/core"
)

// sessionHistory is one session's archived snapshots as printed by the
// history command.
type sessionHistory struct {
	SessionID string          `json:"sessionId"`
	Snapshots []core.Snapshot `json:"snapshots"`
}

// runHistory prints the archived history of the given sessions as JSON.
func runHistory(configDir string, sessionIDs []string, out io.Writer) error {
	if len(sessionIDs) == 0 {
		return errors.New("usage: tacsim history <sessionId>...")
	}
	_ = config.Load(configDir)

	storageCfg := config.GetStorageConfig()
	if storageCfg.Type != "sqlite" && storageCfg.Type != "postgres" {
		return fmt.Errorf("storage type %q keeps no archives", storageCfg.Type)
	}

	db := database.NewManager(zerolog.Nop())
	if err := db.Connect(storageCfg, config.GetDBConfig()); err != nil {
		return err
	}
	defer db.Close()

	backend := gormstore.New(db.DB)
	if err := backend.Init(); err != nil {
		return err
	}
	defer backend.Close()

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	for _, id := range sessionIDs {
		snapshots, err := backend.ReadArchives(context.Background(), id)
		if err != nil {
			return fmt.Errorf("session %s: %w", id, err)
		}
		if snapshots == nil {
			snapshots = []core.Snapshot{}
		}
		if err := enc.Encode(sessionHistory{SessionID: id, Snapshots: snapshots}); err != nil {
			return err
		}
	}
	return nil
}
