// internal/storage/factory.go
package storage

import (
	"fmt"

	"github.com/tacmap/tacsim/internal/config"
	"github.com/tacmap/tacsim/internal/storage/gormstore"
	"github.com/tacmap/tacsim/internal/storage/memory"
	"gorm.io/gorm"
)

// NewBackend creates a storage backend based on configuration. db is only
// used by the sqlite and postgres backends.
func NewBackend(cfg config.StorageConfig, db *gorm.DB) (Backend, error) {
	switch cfg.Type {
	case "postgres", "sqlite":
		if db == nil {
			return nil, fmt.Errorf("%s backend needs a database connection", cfg.Type)
		}
		return gormstore.New(db), nil
	case "memory", "":
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("%q: %w", cfg.Type, ErrUnknownBackend)
	}
}
