package session

import (
	"time"

	"github.com/tacmap/tacsim/internal/queue"
	"github.com/tacmap/tacsim/pkg/core"
)

// StatsSource derives combat stats for an entity class and echelon.
type StatsSource interface {
	Stats(entity core.Entity, echelon core.Echelon) core.Stats
}

// Tracker is an in-progress movement along a planned path.
type Tracker struct {
	Path  []core.LatLng
	Index int
	Step  float64 // degrees per tick
}

// Done reports whether every waypoint has been reached.
func (t *Tracker) Done() bool {
	return t.Index >= len(t.Path)
}

// Record is the simulation state of one session.
type Record struct {
	ID        string
	Units     map[string]*core.Unit
	Trackers  map[string]*Tracker
	Config    core.AIConfig
	StartTime time.Time

	LastDecision time.Time
	LastSnapshot time.Time

	history *queue.Queue[core.Snapshot]
}

func newRecord(id string, now time.Time, historyLimit int) *Record {
	return &Record{
		ID:        id,
		Units:     make(map[string]*core.Unit),
		Trackers:  make(map[string]*Tracker),
		Config:    core.DefaultAIConfig(),
		StartTime: now,
		history:   queue.New[core.Snapshot](historyLimit),
	}
}

// Unit returns the unit with id, or nil.
func (r *Record) Unit(id string) *core.Unit {
	return r.Units[id]
}

// UpsertUnit merges delta into world state. Existing units take only the
// provided position, HP, max HP and name, and leave world state when the
// merged HP is not positive. A new unit needs an identity, a position and
// positive HP; its stats come from src. It returns false when the delta was
// ignored.
func (r *Record) UpsertUnit(delta core.UnitDelta, src StatsSource) bool {
	if delta.ID == "" {
		return false
	}
	if u, ok := r.Units[delta.ID]; ok {
		if delta.Position != nil {
			u.Position = *delta.Position
		}
		if delta.HP != nil {
			u.HP = *delta.HP
		}
		if delta.MaxHP != nil {
			u.MaxHP = *delta.MaxHP
		}
		if delta.Name != nil {
			u.Name = *delta.Name
		}
		if !u.Alive() {
			r.RemoveUnit(u.ID)
		}
		return true
	}

	if delta.Identity == nil || delta.Position == nil {
		return false
	}
	u := &core.Unit{
		ID:       delta.ID,
		Identity: *delta.Identity,
		Entity:   core.EntityInfantry,
		Echelon:  core.EchelonPlatoon,
		Position: *delta.Position,
	}
	if delta.Entity != nil && *delta.Entity != "" {
		u.Entity = *delta.Entity
	}
	if delta.Echelon != nil && *delta.Echelon != "" {
		u.Echelon = *delta.Echelon
	}
	if delta.Name != nil {
		u.Name = *delta.Name
	}
	stats := src.Stats(u.Entity, u.Echelon)
	u.MaxHP = stats.MaxHP
	if delta.MaxHP != nil {
		u.MaxHP = *delta.MaxHP
	}
	u.HP = u.MaxHP
	if delta.HP != nil {
		u.HP = *delta.HP
	}
	if !u.Alive() {
		return false
	}
	r.Units[u.ID] = u
	return true
}

// RemoveUnit drops a unit and its tracker.
func (r *Record) RemoveUnit(id string) bool {
	_, ok := r.Units[id]
	delete(r.Units, id)
	delete(r.Trackers, id)
	return ok
}

// ApplyConfig merges patch into the session config and returns the result.
func (r *Record) ApplyConfig(patch core.ConfigPatch) core.AIConfig {
	r.Config = patch.Apply(r.Config)
	return r.Config
}

func (r *Record) SetTracker(unitID string, t *Tracker) { r.Trackers[unitID] = t }

func (r *Record) Tracker(unitID string) *Tracker { return r.Trackers[unitID] }

func (r *Record) DropTracker(unitID string) { delete(r.Trackers, unitID) }

// Moving reports whether the unit has an active tracker.
func (r *Record) Moving(unitID string) bool {
	_, ok := r.Trackers[unitID]
	return ok
}

// Snapshot appends a copy of world state to history and returns it.
func (r *Record) Snapshot(now time.Time) core.Snapshot {
	snap := core.Snapshot{
		Time:      int64(now.Sub(r.StartTime) / time.Second),
		Timestamp: now,
		Units:     make([]core.UnitState, 0, len(r.Units)),
	}
	for _, u := range r.Units {
		snap.Units = append(snap.Units, core.UnitState{
			ID:       u.ID,
			Position: u.Position,
			HP:       u.HP,
			MaxHP:    u.MaxHP,
			Identity: u.Identity,
			Entity:   u.Entity,
			Echelon:  u.Echelon,
			Name:     u.Name,
		})
	}
	r.history.Push(snap)
	r.LastSnapshot = now
	return snap
}

// History returns a copy of the snapshot history, oldest first.
func (r *Record) History() []core.Snapshot {
	return r.history.Items()
}

// DrainHistory returns the history and clears it.
func (r *Record) DrainHistory() []core.Snapshot {
	return r.history.GetAndEmpty()
}
