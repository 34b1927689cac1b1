// Package engine owns the simulation loop: it serialises every external
// operation on sessions and advances movement, decisions and history on each tick.
package engine

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/tacmap/tacsim/internal/broadcast"
	"github.com/tacmap/tacsim/internal/combat"
	"github.com/tacmap/tacsim/internal/decision"
	"github.com/tacmap/tacsim/internal/pathfind"
	"github.com/tacmap/tacsim/internal/session"
	"github.com/tacmap/tacsim/internal/storage"
	"github.com/tacmap/tacsim/pkg/core"
	"github.com/tacmap/tacsim/pkg/streaming"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/tacmap/tacsim/internal/engine"

const (
	DefaultTickInterval     = 50 * time.Millisecond
	MinTickInterval         = 10 * time.Millisecond
	MaxTickInterval         = 500 * time.Millisecond
	DefaultDecisionInterval = 2 * time.Second
	DefaultHistoryInterval  = time.Second
	DefaultMoveStep         = 0.00005
)

// Config tunes the scheduler.
type Config struct {
	TickInterval     time.Duration
	DecisionInterval time.Duration
	HistoryInterval  time.Duration
	MoveStep         float64 // degrees per tick
	RetreatThreshold float64
	RetreatOffset    float64
	ArchiveHistory   bool
}

func (c Config) withDefaults() Config {
	if c.TickInterval <= 0 {
		c.TickInterval = DefaultTickInterval
	}
	c.TickInterval = min(max(c.TickInterval, MinTickInterval), MaxTickInterval)
	if c.DecisionInterval <= 0 {
		c.DecisionInterval = DefaultDecisionInterval
	}
	if c.HistoryInterval <= 0 {
		c.HistoryInterval = DefaultHistoryInterval
	}
	if c.MoveStep <= 0 {
		c.MoveStep = DefaultMoveStep
	}
	return c
}

// Telemetry receives per-tick and per-decision measurements.
type Telemetry interface {
	RecordTick(ctx context.Context, sessions int, duration time.Duration)
	RecordDecision(ctx context.Context, sessionID string, forceRatio float64, controlled, opposing int)
}

// Dependencies for the engine. Storage and Telemetry are optional.
type Dependencies struct {
	Store     *session.Store
	Planner   *pathfind.Planner
	Resolver  *combat.Resolver
	Publisher broadcast.Publisher
	BattleLog *broadcast.BattleLog
	Storage   storage.Backend
	Telemetry Telemetry
	Logger    *slog.Logger
}

// Status is a point-in-time summary of the engine.
type Status struct {
	Sessions int
	Units    int
	Trackers int
	LastTick time.Duration
}

// Engine is the single entry point for session operations and the tick loop.
type Engine struct {
	mu sync.Mutex

	cfg       Config
	store     *session.Store
	planner   *pathfind.Planner
	resolver  *combat.Resolver
	decider   *decision.Engine
	pub       broadcast.Publisher
	storage   storage.Backend
	telemetry Telemetry
	logger    *slog.Logger

	lastTick time.Duration

	tickDuration metric.Float64Histogram
	panics       metric.Int64Counter
	moves        metric.Int64Counter
}

// New wires an engine from its dependencies.
func New(cfg Config, deps Dependencies) (*Engine, error) {
	if deps.Store == nil || deps.Planner == nil || deps.Resolver == nil {
		return nil, fmt.Errorf("engine: store, planner and resolver are required")
	}
	if deps.Publisher == nil {
		deps.Publisher = broadcast.Discard{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.BattleLog == nil {
		deps.BattleLog = broadcast.NewBattleLog(deps.Publisher, deps.Logger)
	}

	e := &Engine{
		cfg:       cfg.withDefaults(),
		store:     deps.Store,
		planner:   deps.Planner,
		resolver:  deps.Resolver,
		pub:       deps.Publisher,
		storage:   deps.Storage,
		telemetry: deps.Telemetry,
		logger:    deps.Logger,
	}

	decider, err := decision.NewEngine(decision.Config{
		RetreatThreshold: cfg.RetreatThreshold,
		RetreatOffset:    cfg.RetreatOffset,
	}, decision.Dependencies{
		Resolver:  deps.Resolver,
		Mover:     e,
		BattleLog: deps.BattleLog,
		Logger:    deps.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("engine: build decision engine: %w", err)
	}
	e.decider = decider

	e.initMetrics()
	return e, nil
}

func (e *Engine) initMetrics() {
	meter := otel.Meter(instrumentationName)
	var err error

	e.tickDuration, err = meter.Float64Histogram("engine.tick.duration",
		metric.WithDescription("Duration of one scheduler tick over all sessions"),
		metric.WithUnit("ms"))
	if err != nil {
		e.logger.Warn("failed to create tick histogram", "error", err)
	}

	e.panics, err = meter.Int64Counter("engine.session.panics",
		metric.WithDescription("Session ticks aborted by a panic"))
	if err != nil {
		e.logger.Warn("failed to create panic counter", "error", err)
	}

	e.moves, err = meter.Int64Counter("engine.moves.issued",
		metric.WithDescription("Move orders that produced a path"))
	if err != nil {
		e.logger.Warn("failed to create moves counter", "error", err)
	}

	_, err = meter.Int64ObservableGauge("engine.sessions",
		metric.WithDescription("Registered sessions"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(int64(e.store.Len()))
			return nil
		}))
	if err != nil {
		e.logger.Warn("failed to create sessions gauge", "error", err)
	}
}

// Settings returns the effective scheduler configuration.
func (e *Engine) Settings() Config { return e.cfg }

// Run ticks until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()

	e.logger.Info("engine started", "tickInterval", e.cfg.TickInterval)
	for {
		select {
		case <-ctx.Done():
			e.logger.Info("engine stopped")
			return nil
		case now := <-ticker.C:
			e.Tick(now)
		}
	}
}

// RegisterSession creates a session record. A storage backend, when
// configured, seeds its units and grid. Registering twice is a no-op.
func (e *Engine) RegisterSession(ctx context.Context, id string) error {
	e.mu.Lock()
	exists := e.store.Get(id) != nil
	e.mu.Unlock()
	if exists {
		return nil
	}

	var seed *storage.Seed
	if e.storage != nil {
		var err error
		seed, err = e.storage.LoadSession(ctx, id)
		if err != nil {
			return fmt.Errorf("load session %s: %w", id, err)
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	rec, created := e.store.Register(id)
	if !created {
		return nil
	}
	if seed != nil {
		e.applySeed(rec, seed)
	}
	e.logger.Info("session registered", "sessionId", id, "units", len(rec.Units))
	return nil
}

func (e *Engine) applySeed(rec *session.Record, seed *storage.Seed) {
	catalog := e.resolver.Catalog()
	for _, delta := range seed.Units {
		if !rec.UpsertUnit(delta, catalog) {
			e.logger.Debug("seed unit ignored", "sessionId", rec.ID, "unitId", delta.ID)
		}
	}
	if seed.Bounds != nil {
		if err := e.planner.RebuildGrid(rec.ID, *seed.Bounds, seed.Obstacles); err != nil {
			e.logger.Warn("seed bounds rejected", "sessionId", rec.ID, "error", err)
		}
	}
}

// UnregisterSession removes a session and its grid. With history archiving
// enabled the drained history is handed to the storage backend.
func (e *Engine) UnregisterSession(ctx context.Context, id string) error {
	e.mu.Lock()
	rec := e.store.Unregister(id)
	e.planner.Remove(id)
	var history []core.Snapshot
	if rec != nil && e.cfg.ArchiveHistory && e.storage != nil {
		history = rec.DrainHistory()
	}
	e.mu.Unlock()

	if rec == nil {
		e.logger.Debug("unregister of unknown session", "sessionId", id)
		return nil
	}
	e.logger.Info("session unregistered", "sessionId", id)

	if len(history) > 0 {
		if err := e.storage.ArchiveHistory(ctx, id, history); err != nil {
			return fmt.Errorf("archive history of %s: %w", id, err)
		}
		e.logger.Info("history archived", "sessionId", id, "snapshots", len(history))
	}
	return nil
}

// SetWorldBounds rebuilds the session's navigation grid.
func (e *Engine) SetWorldBounds(id string, bounds core.Bounds, obstacles []core.Obstacle) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lookup(id) == nil {
		return nil
	}
	if err := e.planner.RebuildGrid(id, bounds, obstacles); err != nil {
		return fmt.Errorf("set world bounds of %s: %w", id, err)
	}
	return nil
}

// UpsertUnit merges a unit delta into the session's world state.
func (e *Engine) UpsertUnit(id string, delta core.UnitDelta) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	rec := e.lookup(id)
	if rec == nil {
		return false
	}
	if !rec.UpsertUnit(delta, e.resolver.Catalog()) {
		e.logger.Debug("unit delta ignored", "sessionId", id, "unitId", delta.ID)
		return false
	}
	return true
}

// RemoveUnit drops a unit and its movement. Nothing is published.
func (e *Engine) RemoveUnit(id, unitID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	rec := e.lookup(id)
	if rec == nil {
		return false
	}
	return rec.RemoveUnit(unitID)
}

// SetConfig merges patch into the session's AI config and echoes the result
// together with the status label.
func (e *Engine) SetConfig(id string, patch core.ConfigPatch) (core.AIConfig, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	rec := e.lookup(id)
	if rec == nil {
		return core.AIConfig{}, false
	}
	cfg := rec.ApplyConfig(patch)
	e.pub.Publish(id, streaming.TypeAIConfigUpdate, cfg)
	e.pub.Publish(id, streaming.TypeAIStatusUpdate, streaming.AIStatusPayload{Status: cfg.StatusLabel()})
	e.logger.Info("ai config updated",
		"sessionId", id,
		"enabled", cfg.Enabled,
		"side", cfg.Side,
		"doctrine", cfg.Doctrine,
		"difficulty", cfg.Difficulty)
	return cfg, true
}

// IssueMoveOrder plans a path for each listed unit. It returns the ids of the
// units that received a path.
func (e *Engine) IssueMoveOrder(id string, order core.MoveOrder) []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	rec := e.lookup(id)
	if rec == nil {
		return nil
	}
	var moving []string
	for _, unitID := range order.UnitIDs {
		unit := rec.Unit(unitID)
		if unit == nil {
			continue
		}
		from := unit.Position
		if pos, ok := order.CurrentPositions[unitID]; ok {
			from = pos
		}
		if e.IssueMove(rec, unitID, from, order.Target) {
			moving = append(moving, unitID)
		} else {
			e.logger.Info("no path found", "sessionId", id, "unitId", unitID)
		}
	}
	return moving
}

// IssueMove plans a path and replaces the unit's tracker with it. The caller
// holds the engine lock.
func (e *Engine) IssueMove(rec *session.Record, unitID string, from, to core.LatLng) bool {
	path := e.planner.FindPath(rec.ID, from, to)
	if len(path) == 0 {
		return false
	}
	rec.SetTracker(unitID, &session.Tracker{
		Path: path,
		Step: e.cfg.MoveStep,
	})
	if e.moves != nil {
		e.moves.Add(context.Background(), 1)
	}
	return true
}

// History returns a copy of the session's snapshots.
func (e *Engine) History(id string) []core.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	rec := e.lookup(id)
	if rec == nil {
		return nil
	}
	return rec.History()
}

// Config returns the session's AI config.
func (e *Engine) Config(id string) (core.AIConfig, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	rec := e.lookup(id)
	if rec == nil {
		return core.AIConfig{}, false
	}
	return rec.Config, true
}

// Units returns copies of the session's units sorted by id.
func (e *Engine) Units(id string) []core.Unit {
	e.mu.Lock()
	defer e.mu.Unlock()
	rec := e.lookup(id)
	if rec == nil {
		return nil
	}
	out := make([]core.Unit, 0, len(rec.Units))
	for _, u := range rec.Units {
		out = append(out, *u)
	}
	slices.SortFunc(out, func(a, b core.Unit) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// Tracker returns a copy of a unit's movement tracker.
func (e *Engine) Tracker(id, unitID string) (session.Tracker, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	rec := e.lookup(id)
	if rec == nil {
		return session.Tracker{}, false
	}
	t := rec.Tracker(unitID)
	if t == nil {
		return session.Tracker{}, false
	}
	cp := *t
	cp.Path = slices.Clone(t.Path)
	return cp, true
}

// Sessions returns the registered session ids.
func (e *Engine) Sessions() []string {
	return e.store.IDs()
}

// Status summarises the engine for monitoring.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := Status{LastTick: e.lastTick}
	for _, id := range e.store.IDs() {
		rec := e.store.Get(id)
		if rec == nil {
			continue
		}
		st.Sessions++
		st.Units += len(rec.Units)
		st.Trackers += len(rec.Trackers)
	}
	return st
}

func (e *Engine) lookup(id string) *session.Record {
	rec := e.store.Get(id)
	if rec == nil {
		e.logger.Debug("unknown session", "sessionId", id)
	}
	return rec
}
