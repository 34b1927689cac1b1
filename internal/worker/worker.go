package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/tacmap/tacsim/internal/parser"
	"github.com/tacmap/tacsim/pkg/core"
)

// DefaultStorageTimeout bounds session load and archive calls.
const DefaultStorageTimeout = 10 * time.Second

// Engine is the set of simulation operations the handlers drive.
type Engine interface {
	RegisterSession(ctx context.Context, id string) error
	UnregisterSession(ctx context.Context, id string) error
	SetWorldBounds(id string, bounds core.Bounds, obstacles []core.Obstacle) error
	UpsertUnit(id string, delta core.UnitDelta) bool
	RemoveUnit(id, unitID string) bool
	SetConfig(id string, patch core.ConfigPatch) (core.AIConfig, bool)
	IssueMoveOrder(id string, order core.MoveOrder) []string
	History(id string) []core.Snapshot
}

// Dependencies holds all dependencies for the worker manager
type Dependencies struct {
	Engine         Engine
	Parser         *parser.Parser
	Logger         *slog.Logger
	StorageTimeout time.Duration
	// OrderBuffer queues move orders off the caller's goroutine; 0 runs them inline.
	OrderBuffer int
}

// Manager binds inbound commands to engine operations.
type Manager struct {
	deps Dependencies
}

// NewManager creates a new worker manager
func NewManager(deps Dependencies) *Manager {
	if deps.Parser == nil {
		deps.Parser = parser.NewParser(deps.Logger)
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.StorageTimeout <= 0 {
		deps.StorageTimeout = DefaultStorageTimeout
	}
	return &Manager{deps: deps}
}

func (m *Manager) storageContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), m.deps.StorageTimeout)
}
