package engine

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/tacmap/tacsim/internal/broadcast"
	"github.com/tacmap/tacsim/internal/combat"
	"github.com/tacmap/tacsim/internal/geo"
	"github.com/tacmap/tacsim/internal/pathfind"
	"github.com/tacmap/tacsim/internal/session"
	"github.com/tacmap/tacsim/internal/storage/memory"
	"github.com/tacmap/tacsim/pkg/core"
	"github.com/tacmap/tacsim/pkg/streaming"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	t0         = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	gridBounds = core.Bounds{{Lat: 50.40, Lng: 30.40}, {Lat: 50.50, Lng: 30.60}}
)

type harness struct {
	engine   *Engine
	recorder *broadcast.Recorder
	backend  *memory.Backend
	now      time.Time
}

type harnessOption func(*Config, *Dependencies)

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := &harness{
		recorder: broadcast.NewRecorder(),
		backend:  memory.New(),
		now:      t0,
	}
	battleLog := broadcast.NewBattleLog(h.recorder, logger)
	cfg := Config{}
	deps := Dependencies{
		Store:   session.NewStore(0).WithClock(func() time.Time { return h.now }),
		Planner: pathfind.NewPlanner(100, logger),
		Resolver: combat.NewResolver(combat.Dependencies{
			Publisher: h.recorder,
			BattleLog: battleLog,
			Logger:    logger,
		}),
		Publisher: h.recorder,
		BattleLog: battleLog,
		Storage:   h.backend,
		Logger:    logger,
	}
	for _, opt := range opts {
		opt(&cfg, &deps)
	}
	e, err := New(cfg, deps)
	require.NoError(t, err)
	h.engine = e
	return h
}

// tick advances the synthetic clock by one tick interval and runs a cycle.
func (h *harness) tick() {
	h.engine.Tick(h.now)
	h.now = h.now.Add(h.engine.Settings().TickInterval)
}

func (h *harness) session(t *testing.T, id string) {
	t.Helper()
	require.NoError(t, h.engine.RegisterSession(context.Background(), id))
	require.NoError(t, h.engine.SetWorldBounds(id, gridBounds, nil))
}

func (h *harness) unit(t *testing.T, sessionID, id string, identity core.Identity, entity core.Entity, pos core.LatLng, hp int) {
	t.Helper()
	echelon := core.EchelonPlatoon
	delta := core.UnitDelta{ID: id, Identity: &identity, Entity: &entity, Echelon: &echelon, Position: &pos}
	if hp > 0 {
		delta.HP = &hp
		delta.MaxHP = &hp
	}
	require.True(t, h.engine.UpsertUnit(sessionID, delta))
}

func (h *harness) enableAI(t *testing.T, sessionID string, doctrine string) {
	t.Helper()
	enabled := true
	side := core.SideBlue
	_, ok := h.engine.SetConfig(sessionID, core.ConfigPatch{Enabled: &enabled, Side: &side, Doctrine: &doctrine})
	require.True(t, ok)
}

func (h *harness) unitByID(sessionID, id string) *core.Unit {
	for _, u := range h.engine.Units(sessionID) {
		if u.ID == id {
			return &u
		}
	}
	return nil
}

func battleLogs(r *broadcast.Recorder, kind string) []core.BattleLogEntry {
	var out []core.BattleLogEntry
	for _, m := range r.OfType(streaming.TypeBattleLog) {
		if e := m.Payload.(core.BattleLogEntry); e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

func TestConfig_Defaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, DefaultTickInterval, cfg.TickInterval)
	assert.Equal(t, DefaultDecisionInterval, cfg.DecisionInterval)
	assert.Equal(t, DefaultHistoryInterval, cfg.HistoryInterval)
	assert.Equal(t, DefaultMoveStep, cfg.MoveStep)

	assert.Equal(t, MinTickInterval, Config{TickInterval: time.Millisecond}.withDefaults().TickInterval)
	assert.Equal(t, MaxTickInterval, Config{TickInterval: time.Minute}.withDefaults().TickInterval)
}

func TestNew_RequiresCoreDependencies(t *testing.T) {
	_, err := New(Config{}, Dependencies{})
	assert.Error(t, err)
}

func TestScenario_TankAdvancesAndDestroysInfantry(t *testing.T) {
	h := newHarness(t)
	h.session(t, "s1")
	h.unit(t, "s1", "A", core.IdentityFriend, core.EntityTank, core.LatLng{Lat: 50.41, Lng: 30.41}, 200)
	h.unit(t, "s1", "B", core.IdentityHostile, core.EntityInfantry, core.LatLng{Lat: 50.49, Lng: 30.59}, 100)
	h.enableAI(t, "s1", core.DoctrineBalanced)
	bPos := core.LatLng{Lat: 50.49, Lng: 30.59}

	h.tick()

	advances := battleLogs(h.recorder, core.BattleAdvance)
	require.Len(t, advances, 1)
	assert.Equal(t, "A", advances[0].UnitID)
	assert.Equal(t, "B", advances[0].TargetID)
	tr, ok := h.engine.Tracker("s1", "A")
	require.True(t, ok, "A should be moving")
	last := tr.Path[len(tr.Path)-1]
	assert.Less(t, geo.Distance(last, bPos), 250.0, "path should end near B")

	start := geo.Distance(core.LatLng{Lat: 50.41, Lng: 30.41}, bPos)
	var hpSeen []int
	destroyed := false
	for i := 0; i < 20000 && !destroyed; i++ {
		h.tick()
		if b := h.unitByID("s1", "B"); b == nil {
			destroyed = true
		} else if len(hpSeen) == 0 || hpSeen[len(hpSeen)-1] != b.HP {
			hpSeen = append(hpSeen, b.HP)
		}
	}
	require.True(t, destroyed, "B should be destroyed")
	assert.Equal(t, []int{100, 59, 18}, hpSeen)

	a := h.unitByID("s1", "A")
	require.NotNil(t, a)
	assert.Equal(t, 200, a.HP, "infantry is out of range to counter")
	assert.Less(t, geo.Distance(a.Position, bPos), 1500.0)
	assert.Less(t, geo.Distance(a.Position, bPos), start)

	destroyedEvents := h.recorder.OfType(streaming.TypeObjectDestroyed)
	require.Len(t, destroyedEvents, 1)
	assert.Equal(t, core.UnitDestroyed{ID: "B"}, destroyedEvents[0].Payload)
	assert.Len(t, battleLogs(h.recorder, core.BattleEngage), 1)
	assert.Len(t, battleLogs(h.recorder, core.BattleDestroyed), 1)

	// nothing left to fight
	h.recorder.Reset()
	for i := 0; i < 100; i++ {
		h.tick()
	}
	assert.Empty(t, h.recorder.OfType(streaming.TypeBattleLog))
}

func TestTick_RetreatMovesAwayFromThreat(t *testing.T) {
	h := newHarness(t)
	h.session(t, "s1")
	pos := core.LatLng{Lat: 50.45, Lng: 30.50}
	threat := core.LatLng{Lat: 50.45, Lng: 30.55}
	h.unit(t, "s1", "A", core.IdentityFriend, core.EntityInfantry, pos, 100)
	h.unit(t, "s1", "B", core.IdentityHostile, core.EntityInfantry, threat, 0)
	hp := 20
	require.True(t, h.engine.UpsertUnit("s1", core.UnitDelta{ID: "A", HP: &hp}))
	h.enableAI(t, "s1", core.DoctrineBalanced)

	h.tick()

	tr, ok := h.engine.Tracker("s1", "A")
	require.True(t, ok)
	last := tr.Path[len(tr.Path)-1]
	assert.Greater(t, geo.Distance(last, threat), geo.Distance(pos, threat))
	assert.Less(t, last.Lng, pos.Lng)
	assert.Len(t, battleLogs(h.recorder, core.BattleRetreat), 1)
	assert.Empty(t, battleLogs(h.recorder, core.BattleAdvance))
}

func TestTick_AggressiveNeverRetreats(t *testing.T) {
	h := newHarness(t)
	h.session(t, "s1")
	h.unit(t, "s1", "A", core.IdentityFriend, core.EntityInfantry, core.LatLng{Lat: 50.45, Lng: 30.50}, 100)
	h.unit(t, "s1", "B", core.IdentityHostile, core.EntityInfantry, core.LatLng{Lat: 50.45, Lng: 30.55}, 0)
	hp := 20
	h.engine.UpsertUnit("s1", core.UnitDelta{ID: "A", HP: &hp})
	h.enableAI(t, "s1", core.DoctrineAggressive)

	h.tick()

	assert.Empty(t, battleLogs(h.recorder, core.BattleRetreat))
	assert.Len(t, battleLogs(h.recorder, core.BattleAdvance), 1)
}

func TestTick_DecisionInterval(t *testing.T) {
	h := newHarness(t)
	h.session(t, "s1")
	h.unit(t, "s1", "A", core.IdentityFriend, core.EntityTank, core.LatLng{Lat: 50.45, Lng: 30.50}, 0)
	h.unit(t, "s1", "B", core.IdentityHostile, core.EntityInfantry, core.LatLng{Lat: 50.45, Lng: 30.51}, 0)
	h.enableAI(t, "s1", core.DoctrineBalanced)

	h.engine.Tick(t0)
	assert.Equal(t, 59, h.unitByID("s1", "B").HP)

	h.engine.Tick(t0.Add(time.Second))
	assert.Equal(t, 59, h.unitByID("s1", "B").HP, "no decision before the interval")

	h.engine.Tick(t0.Add(2 * time.Second))
	assert.Equal(t, 18, h.unitByID("s1", "B").HP)
}

func TestTick_AIDisabledDoesNothing(t *testing.T) {
	h := newHarness(t)
	h.session(t, "s1")
	h.unit(t, "s1", "A", core.IdentityFriend, core.EntityTank, core.LatLng{Lat: 50.45, Lng: 30.50}, 0)
	h.unit(t, "s1", "B", core.IdentityHostile, core.EntityInfantry, core.LatLng{Lat: 50.45, Lng: 30.51}, 0)

	for i := 0; i < 100; i++ {
		h.tick()
	}
	assert.Equal(t, 100, h.unitByID("s1", "B").HP)
	assert.Empty(t, h.recorder.OfType(streaming.TypeBattleLog))
}

func TestTick_MovementFollowsPath(t *testing.T) {
	h := newHarness(t)
	h.session(t, "s1")
	from := core.LatLng{Lat: 50.4495, Lng: 30.5009}
	to := core.LatLng{Lat: 50.4495, Lng: 30.5049}
	h.unit(t, "s1", "A", core.IdentityFriend, core.EntityInfantry, from, 0)

	moving := h.engine.IssueMoveOrder("s1", core.MoveOrder{UnitIDs: []string{"A", "ghost"}, Target: to})
	assert.Equal(t, []string{"A"}, moving)
	tr, ok := h.engine.Tracker("s1", "A")
	require.True(t, ok)
	final := tr.Path[len(tr.Path)-1]

	h.tick()
	a := h.unitByID("s1", "A")
	assert.NotEqual(t, from, a.Position)
	updates := h.recorder.OfType(streaming.TypeObjectUpdated)
	require.Len(t, updates, 1)
	upd := updates[0].Payload.(core.UnitUpdate)
	assert.Equal(t, "A", upd.ID)
	assert.Equal(t, a.Position, *upd.Position)
	assert.Nil(t, upd.HP)

	for i := 0; i < 1000; i++ {
		if _, ok := h.engine.Tracker("s1", "A"); !ok {
			break
		}
		h.tick()
	}
	_, ok = h.engine.Tracker("s1", "A")
	assert.False(t, ok, "tracker should be dropped at the last waypoint")
	assert.Equal(t, final, h.unitByID("s1", "A").Position)
}

func TestIssueMoveOrder_UsesSuppliedPosition(t *testing.T) {
	h := newHarness(t)
	h.session(t, "s1")
	h.unit(t, "s1", "A", core.IdentityFriend, core.EntityInfantry, core.LatLng{Lat: 50.45, Lng: 30.50}, 0)
	supplied := core.LatLng{Lat: 50.42, Lng: 30.42}

	h.engine.IssueMoveOrder("s1", core.MoveOrder{
		UnitIDs:          []string{"A"},
		Target:           core.LatLng{Lat: 50.43, Lng: 30.43},
		CurrentPositions: map[string]core.LatLng{"A": supplied},
	})

	tr, ok := h.engine.Tracker("s1", "A")
	require.True(t, ok)
	assert.Less(t, geo.Distance(tr.Path[0], supplied), 250.0)
	assert.Greater(t, geo.Distance(tr.Path[0], core.LatLng{Lat: 50.45, Lng: 30.50}), 1000.0)
}

func TestIssueMoveOrder_Unreachable(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.engine.RegisterSession(context.Background(), "s1"))
	wall := core.Bounds{{Lat: 50.449, Lng: 30.40}, {Lat: 50.451, Lng: 30.60}}
	require.NoError(t, h.engine.SetWorldBounds("s1", gridBounds, []core.Obstacle{
		{ID: "wall", Type: core.ObstacleRectangle, Bounds: &wall},
	}))
	h.unit(t, "s1", "A", core.IdentityFriend, core.EntityInfantry, core.LatLng{Lat: 50.42, Lng: 30.50}, 0)

	moving := h.engine.IssueMoveOrder("s1", core.MoveOrder{UnitIDs: []string{"A"}, Target: core.LatLng{Lat: 50.48, Lng: 30.50}})
	assert.Empty(t, moving)
	_, ok := h.engine.Tracker("s1", "A")
	assert.False(t, ok)
}

func TestTick_TrackerForRemovedUnitIsDropped(t *testing.T) {
	h := newHarness(t)
	h.session(t, "s1")
	h.unit(t, "s1", "A", core.IdentityFriend, core.EntityInfantry, core.LatLng{Lat: 50.45, Lng: 30.50}, 0)
	h.engine.IssueMoveOrder("s1", core.MoveOrder{UnitIDs: []string{"A"}, Target: core.LatLng{Lat: 50.46, Lng: 30.52}})

	require.True(t, h.engine.RemoveUnit("s1", "A"))
	_, ok := h.engine.Tracker("s1", "A")
	assert.False(t, ok)

	h.tick()
	assert.Empty(t, h.recorder.OfType(streaming.TypeObjectUpdated))
	assert.False(t, h.engine.RemoveUnit("s1", "A"))
}

func TestUnregister_StopsPublishing(t *testing.T) {
	h := newHarness(t)
	h.session(t, "s1")
	h.unit(t, "s1", "A", core.IdentityFriend, core.EntityTank, core.LatLng{Lat: 50.41, Lng: 30.41}, 0)
	h.unit(t, "s1", "B", core.IdentityHostile, core.EntityInfantry, core.LatLng{Lat: 50.49, Lng: 30.59}, 0)
	h.enableAI(t, "s1", core.DoctrineBalanced)
	h.tick()
	require.NotEmpty(t, h.recorder.Messages())

	require.NoError(t, h.engine.UnregisterSession(context.Background(), "s1"))
	h.recorder.Reset()
	for i := 0; i < 100; i++ {
		h.tick()
	}

	assert.Empty(t, h.recorder.Messages())
	assert.Nil(t, h.engine.planner.Grid("s1"))
	assert.Nil(t, h.engine.History("s1"))
	assert.Empty(t, h.engine.Sessions())
}

func TestTick_SnapshotsOnInterval(t *testing.T) {
	h := newHarness(t)
	h.session(t, "s1")
	h.unit(t, "s1", "A", core.IdentityFriend, core.EntityInfantry, core.LatLng{Lat: 50.45, Lng: 30.50}, 0)

	// 3s of ticks at 50ms
	for i := 0; i < 60; i++ {
		h.tick()
	}

	history := h.engine.History("s1")
	require.Len(t, history, 3)
	assert.Equal(t, []int64{0, 1, 2}, []int64{history[0].Time, history[1].Time, history[2].Time})
	require.Len(t, history[0].Units, 1)
	assert.Equal(t, "A", history[0].Units[0].ID)
}

func TestRegisterSession_SeedsFromStorage(t *testing.T) {
	h := newHarness(t)
	friend := core.IdentityFriend
	tank := core.EntityTank
	pos := core.LatLng{Lat: 50.45, Lng: 30.50}
	b := gridBounds
	h.backend.PutSession("s1", core.SessionSeed{
		Units:  []core.UnitDelta{{ID: "A", Identity: &friend, Entity: &tank, Position: &pos}, {ID: "label"}},
		Bounds: &b,
	})

	require.NoError(t, h.engine.RegisterSession(context.Background(), "s1"))
	require.NoError(t, h.engine.RegisterSession(context.Background(), "s1"))

	units := h.engine.Units("s1")
	require.Len(t, units, 1)
	assert.Equal(t, 200, units[0].HP)
	assert.NotNil(t, h.engine.planner.Grid("s1"))

	cfg, ok := h.engine.Config("s1")
	require.True(t, ok)
	assert.False(t, cfg.Enabled)
}

func TestUnregisterSession_ArchivesHistory(t *testing.T) {
	h := newHarness(t, func(c *Config, _ *Dependencies) { c.ArchiveHistory = true })
	h.session(t, "s1")
	for i := 0; i < 40; i++ {
		h.tick()
	}

	require.NoError(t, h.engine.UnregisterSession(context.Background(), "s1"))
	archives := h.backend.Archives("s1")
	require.Len(t, archives, 1)
	assert.Len(t, archives[0].Snapshots, 2)

	require.NoError(t, h.engine.UnregisterSession(context.Background(), "s1"))
	assert.Len(t, h.backend.Archives("s1"), 1)
}

func TestSetConfig_EchoesConfigAndStatus(t *testing.T) {
	h := newHarness(t)
	h.session(t, "s1")

	h.enableAI(t, "s1", core.DoctrineDefensive)

	cfgs := h.recorder.OfType(streaming.TypeAIConfigUpdate)
	require.Len(t, cfgs, 1)
	cfg := cfgs[0].Payload.(core.AIConfig)
	assert.True(t, cfg.Enabled)
	assert.Equal(t, core.DoctrineDefensive, cfg.Doctrine)
	statuses := h.recorder.OfType(streaming.TypeAIStatusUpdate)
	require.Len(t, statuses, 1)
	assert.Equal(t, streaming.AIStatusPayload{Status: "Active"}, statuses[0].Payload)

	disabled := false
	got, ok := h.engine.SetConfig("s1", core.ConfigPatch{Enabled: &disabled})
	require.True(t, ok)
	assert.Equal(t, core.DoctrineDefensive, got.Doctrine)
	assert.Equal(t, streaming.AIStatusPayload{Status: "Idle"}, h.recorder.OfType(streaming.TypeAIStatusUpdate)[1].Payload)
}

func TestOperations_UnknownSession(t *testing.T) {
	h := newHarness(t)
	pos := core.LatLng{Lat: 1, Lng: 1}
	friend := core.IdentityFriend

	assert.NoError(t, h.engine.SetWorldBounds("nope", gridBounds, nil))
	assert.False(t, h.engine.UpsertUnit("nope", core.UnitDelta{ID: "A", Identity: &friend, Position: &pos}))
	assert.False(t, h.engine.RemoveUnit("nope", "A"))
	_, ok := h.engine.SetConfig("nope", core.ConfigPatch{})
	assert.False(t, ok)
	assert.Nil(t, h.engine.IssueMoveOrder("nope", core.MoveOrder{UnitIDs: []string{"A"}}))
	assert.Nil(t, h.engine.History("nope"))
	assert.Nil(t, h.engine.Units("nope"))
	assert.NoError(t, h.engine.UnregisterSession(context.Background(), "nope"))
	assert.Empty(t, h.recorder.Messages())
}

func TestSetWorldBounds_Invalid(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.engine.RegisterSession(context.Background(), "s1"))
	err := h.engine.SetWorldBounds("s1", core.Bounds{{Lat: 1, Lng: 1}, {Lat: 1, Lng: 1}}, nil)
	assert.ErrorIs(t, err, geo.ErrInvalidBounds)
}

func TestUpsertUnit_PositionDeltaKeepsOtherFields(t *testing.T) {
	h := newHarness(t)
	h.session(t, "s1")
	friend := core.IdentityFriend
	name := "Alpha"
	hp, maxHP := 70, 120
	pos := core.LatLng{Lat: 50.45, Lng: 30.50}
	require.True(t, h.engine.UpsertUnit("s1", core.UnitDelta{ID: "A", Identity: &friend, Name: &name, HP: &hp, MaxHP: &maxHP, Position: &pos}))

	moved := core.LatLng{Lat: 50.46, Lng: 30.51}
	require.True(t, h.engine.UpsertUnit("s1", core.UnitDelta{ID: "A", Position: &moved}))

	a := h.unitByID("s1", "A")
	assert.Equal(t, moved, a.Position)
	assert.Equal(t, "Alpha", a.Name)
	assert.Equal(t, 70, a.HP)
	assert.Equal(t, 120, a.MaxHP)
}

// panicPublisher panics on every publish for one session.
type panicPublisher struct {
	*broadcast.Recorder
	bad string
}

func (p panicPublisher) Publish(sessionID, msgType string, payload any) {
	if sessionID == p.bad {
		panic("publish failed")
	}
	p.Recorder.Publish(sessionID, msgType, payload)
}

func TestTick_PanicIsolatedToSession(t *testing.T) {
	var pub panicPublisher
	h := newHarness(t, func(_ *Config, d *Dependencies) {
		pub = panicPublisher{Recorder: broadcast.NewRecorder(), bad: "a-bad"}
		d.Publisher = pub
	})
	for _, id := range []string{"a-bad", "b-good"} {
		h.session(t, id)
		h.unit(t, id, "A", core.IdentityFriend, core.EntityInfantry, core.LatLng{Lat: 50.45, Lng: 30.50}, 0)
		h.engine.IssueMoveOrder(id, core.MoveOrder{UnitIDs: []string{"A"}, Target: core.LatLng{Lat: 50.46, Lng: 30.52}})
	}

	assert.NotPanics(t, h.tick)

	assert.Empty(t, h.engine.History("a-bad"), "bad session aborted before its snapshot")
	assert.Len(t, h.engine.History("b-good"), 1)
	assert.Len(t, pub.OfType(streaming.TypeObjectUpdated), 1)
}

type fakeTelemetry struct {
	mu        sync.Mutex
	ticks     int
	sessions  int
	decisions []float64
}

func (f *fakeTelemetry) RecordTick(_ context.Context, sessions int, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ticks++
	f.sessions = sessions
}

func (f *fakeTelemetry) RecordDecision(_ context.Context, _ string, ratio float64, _, _ int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.decisions = append(f.decisions, ratio)
}

func TestTick_Telemetry(t *testing.T) {
	tel := &fakeTelemetry{}
	h := newHarness(t, func(_ *Config, d *Dependencies) { d.Telemetry = tel })
	h.session(t, "s1")
	h.unit(t, "s1", "A", core.IdentityFriend, core.EntityTank, core.LatLng{Lat: 50.41, Lng: 30.41}, 0)
	h.unit(t, "s1", "B", core.IdentityHostile, core.EntityInfantry, core.LatLng{Lat: 50.49, Lng: 30.59}, 0)
	h.enableAI(t, "s1", core.DoctrineBalanced)

	h.tick()
	h.tick()

	assert.Equal(t, 2, tel.ticks)
	assert.Equal(t, 1, tel.sessions)
	assert.Equal(t, []float64{2}, tel.decisions)

	st := h.engine.Status()
	assert.Equal(t, 1, st.Sessions)
	assert.Equal(t, 2, st.Units)
	assert.Equal(t, 1, st.Trackers)
}

func TestRun_StopsOnCancel(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.engine.Run(ctx) }()

	time.Sleep(3 * h.engine.Settings().TickInterval)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
