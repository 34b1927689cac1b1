// internal/storage/storage.go
package storage

import (
	"context"
	"errors"

	"github.com/tacmap/tacsim/pkg/core"
)

// ErrUnknownBackend is returned by NewBackend for an unrecognised storage type.
var ErrUnknownBackend = errors.New("unknown storage backend")

// Seed is the persisted state a session starts from.
type Seed = core.SessionSeed

// Backend is the interface all storage implementations must satisfy
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// LoadSession returns the persisted seed of a session. A session with
	// nothing persisted yields an empty seed.
	LoadSession(ctx context.Context, sessionID string) (*Seed, error)

	// ArchiveHistory stores a session's snapshot history for after-action review.
	ArchiveHistory(ctx context.Context, sessionID string, history []core.Snapshot) error
}
