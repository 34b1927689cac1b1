// pkg/core/session.go
package core

import "time"

// Doctrine names.
const (
	DoctrineAggressive = "aggressive"
	DoctrineDefensive  = "defensive"
	DoctrineBalanced   = "balanced"
	DoctrineAmbush     = "ambush"
)

// Sides a session AI can play.
const (
	SideRed  = "red"
	SideBlue = "blue"
)

// AIConfig controls autonomous behaviour for one session.
type AIConfig struct {
	Enabled    bool   `json:"enabled"`
	Difficulty string `json:"difficulty"`
	Doctrine   string `json:"doctrine"`
	Side       string `json:"side"`
}

// DefaultAIConfig is the configuration every new session starts with.
func DefaultAIConfig() AIConfig {
	return AIConfig{
		Enabled:    false,
		Difficulty: "medium",
		Doctrine:   DoctrineBalanced,
		Side:       SideRed,
	}
}

// ControlledIdentity returns the faction the AI plays for this side.
func (c AIConfig) ControlledIdentity() Identity {
	if c.Side == SideRed {
		return IdentityHostile
	}
	return IdentityFriend
}

// OpposingIdentity returns the faction the AI fights for this side.
func (c AIConfig) OpposingIdentity() Identity {
	if c.Side == SideRed {
		return IdentityFriend
	}
	return IdentityHostile
}

// StatusLabel is the short status string echoed to viewers.
func (c AIConfig) StatusLabel() string {
	if c.Enabled {
		return "Active"
	}
	return "Idle"
}

// ConfigPatch is a partial AIConfig update. Nil fields are left unchanged.
type ConfigPatch struct {
	Enabled    *bool   `json:"enabled,omitempty"`
	Difficulty *string `json:"difficulty,omitempty"`
	Doctrine   *string `json:"doctrine,omitempty"`
	Side       *string `json:"side,omitempty"`
}

// Apply merges the patch onto c and returns the result.
func (p ConfigPatch) Apply(c AIConfig) AIConfig {
	if p.Enabled != nil {
		c.Enabled = *p.Enabled
	}
	if p.Difficulty != nil {
		c.Difficulty = *p.Difficulty
	}
	if p.Doctrine != nil {
		c.Doctrine = *p.Doctrine
	}
	if p.Side != nil {
		c.Side = *p.Side
	}
	return c
}

// MoveOrder is an explicit move command for one or more units.
type MoveOrder struct {
	UnitIDs          []string          `json:"unitIds"`
	Target           LatLng            `json:"target"`
	CurrentPositions map[string]LatLng `json:"currentUnitPositions,omitempty"`
}

// Snapshot is one entry of a session's rolling history.
type Snapshot struct {
	Time      int64       `json:"time"` // whole seconds since session start
	Timestamp time.Time   `json:"timestamp"`
	Units     []UnitState `json:"units"`
}

// SessionSeed is the persisted state a session starts from: the tactical map
// objects, the map calibration bounds and the blocking drawings.
type SessionSeed struct {
	Units     []UnitDelta `json:"units"`
	Bounds    *Bounds     `json:"bounds,omitempty"`
	Obstacles []Obstacle  `json:"obstacles"`
}
