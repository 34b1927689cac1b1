// internal/storage/memory/memory.go
package memory

import (
	"context"
	"sync"

	"github.com/tacmap/tacsim/pkg/core"
)

// Archive is one archived history batch.
type Archive struct {
	SessionID string
	Snapshots []core.Snapshot
}

// Backend keeps session seeds and history archives in process memory.
type Backend struct {
	seeds    map[string]core.SessionSeed
	archives map[string][]Archive
	mu       sync.RWMutex
}

// New creates a new memory backend
func New() *Backend {
	return &Backend{
		seeds:    make(map[string]core.SessionSeed),
		archives: make(map[string][]Archive),
	}
}

// Init initializes the backend
func (b *Backend) Init() error {
	return nil
}

// Close cleans up resources
func (b *Backend) Close() error {
	return nil
}

// PutSession stores the seed returned for a session on load.
func (b *Backend) PutSession(sessionID string, seed core.SessionSeed) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seeds[sessionID] = seed
}

// LoadSession returns a copy of the stored seed, or an empty seed.
func (b *Backend) LoadSession(_ context.Context, sessionID string) (*core.SessionSeed, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	seed, ok := b.seeds[sessionID]
	if !ok {
		return &core.SessionSeed{}, nil
	}
	out := core.SessionSeed{
		Units:     append([]core.UnitDelta(nil), seed.Units...),
		Obstacles: append([]core.Obstacle(nil), seed.Obstacles...),
	}
	if seed.Bounds != nil {
		bounds := *seed.Bounds
		out.Bounds = &bounds
	}
	return &out, nil
}

// ArchiveHistory appends a history batch for the session.
func (b *Backend) ArchiveHistory(_ context.Context, sessionID string, history []core.Snapshot) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.archives[sessionID] = append(b.archives[sessionID], Archive{
		SessionID: sessionID,
		Snapshots: append([]core.Snapshot(nil), history...),
	})
	return nil
}

// Archives returns the archived batches of a session.
func (b *Backend) Archives(sessionID string) []Archive {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]Archive(nil), b.archives[sessionID]...)
}
