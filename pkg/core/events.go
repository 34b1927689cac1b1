// pkg/core/events.go
package core

import "time"

// Battle log kinds.
const (
	BattleAdvance   = "advance"
	BattleEngage    = "engage"
	BattleRetreat   = "retreat"
	BattleDamage    = "damage"
	BattleDestroyed = "destroyed"
)

// BattleLogEntry is a human-readable combat event sent to viewers.
// It is never retained server-side.
type BattleLogEntry struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	Kind       string    `json:"type"`
	UnitID     string    `json:"unitId"`
	TargetID   string    `json:"targetId,omitempty"`
	AttackerID string    `json:"attackerId,omitempty"`
	Distance   int       `json:"distance,omitempty"`
	Damage     int       `json:"damage,omitempty"`
	Message    string    `json:"message"`
}

// UnitUpdate is a position or HP delta published for a unit.
type UnitUpdate struct {
	ID       string  `json:"id"`
	Position *LatLng `json:"latLng,omitempty"`
	HP       *int    `json:"hp,omitempty"`
	MaxHP    *int    `json:"maxHp,omitempty"`
}

// UnitDestroyed announces that a unit left world state through combat.
type UnitDestroyed struct {
	ID string `json:"id"`
}
