// Package parser decodes inbound JSON payloads into core types.
package parser

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"

	"github.com/tacmap/tacsim/internal/geo"
	"github.com/tacmap/tacsim/pkg/core"
	"github.com/tacmap/tacsim/pkg/streaming"
)

// ErrInvalidPayload wraps every decoding or validation failure.
var ErrInvalidPayload = errors.New("invalid payload")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidPayload, fmt.Sprintf(format, args...))
}

// intFromNumber accepts integers written as floats ("32.00"), as browser
// clients serialise numbers loosely.
func intFromNumber(n json.Number) (int, error) {
	if v, err := strconv.ParseInt(string(n), 10, 64); err == nil {
		return int(v), nil
	}
	f, err := strconv.ParseFloat(string(n), 64)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%q is not an integer", string(n))
	}
	return int(f), nil
}

// Parser converts raw payloads into core types.
type Parser struct {
	logger *slog.Logger
}

// NewParser creates a parser.
func NewParser(logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{logger: logger}
}

type unitDeltaWire struct {
	ID       string         `json:"id"`
	Name     *string        `json:"name"`
	Identity *core.Identity `json:"identity"`
	Entity   *core.Entity   `json:"entity"`
	Echelon  *core.Echelon  `json:"echelon"`
	Position *core.LatLng   `json:"latLng"`
	HP       *json.Number   `json:"hp"`
	MaxHP    *json.Number   `json:"maxHp"`
}

// ParseUnitDelta decodes an objectUpserted payload. The id is required.
func (p *Parser) ParseUnitDelta(raw json.RawMessage) (core.UnitDelta, error) {
	var w unitDeltaWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return core.UnitDelta{}, invalid("unit delta: %v", err)
	}
	if w.ID == "" {
		return core.UnitDelta{}, invalid("unit delta: missing id")
	}
	delta := core.UnitDelta{
		ID:       w.ID,
		Name:     w.Name,
		Identity: w.Identity,
		Entity:   w.Entity,
		Echelon:  w.Echelon,
		Position: w.Position,
	}
	if w.HP != nil {
		hp, err := intFromNumber(*w.HP)
		if err != nil {
			return core.UnitDelta{}, invalid("unit %s hp: %v", w.ID, err)
		}
		delta.HP = &hp
	}
	if w.MaxHP != nil {
		maxHP, err := intFromNumber(*w.MaxHP)
		if err != nil {
			return core.UnitDelta{}, invalid("unit %s maxHp: %v", w.ID, err)
		}
		if maxHP <= 0 {
			return core.UnitDelta{}, invalid("unit %s maxHp must be positive", w.ID)
		}
		delta.MaxHP = &maxHP
	}
	if delta.Position != nil && !validLatLng(*delta.Position) {
		return core.UnitDelta{}, invalid("unit %s position out of range", w.ID)
	}
	return delta, nil
}

// ParseUnitID decodes an objectDeleted payload.
func (p *Parser) ParseUnitID(raw json.RawMessage) (string, error) {
	var payload streaming.ObjectDeletedPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", invalid("object id: %v", err)
	}
	if payload.ID == "" {
		return "", invalid("object id: missing id")
	}
	return payload.ID, nil
}

// ParseWorldBounds decodes a setWorldBounds payload. The bounds must span a
// non-empty box; obstacles are passed through and checked by the planner.
func (p *Parser) ParseWorldBounds(raw json.RawMessage) (streaming.WorldBoundsPayload, error) {
	var payload streaming.WorldBoundsPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return payload, invalid("world bounds: %v", err)
	}
	if err := geo.BoxFromBounds(payload.Bounds).Validate(); err != nil {
		return payload, invalid("world bounds: %v", err)
	}
	p.logger.Debug("parsed world bounds", "obstacles", len(payload.Obstacles))
	return payload, nil
}

// ParseConfigPatch decodes a setAIConfig payload.
func (p *Parser) ParseConfigPatch(raw json.RawMessage) (core.ConfigPatch, error) {
	var patch core.ConfigPatch
	if err := json.Unmarshal(raw, &patch); err != nil {
		return patch, invalid("ai config: %v", err)
	}
	if patch.Doctrine != nil {
		switch *patch.Doctrine {
		case core.DoctrineAggressive, core.DoctrineDefensive, core.DoctrineBalanced, core.DoctrineAmbush:
		default:
			return patch, invalid("ai config: unknown doctrine %q", *patch.Doctrine)
		}
	}
	if patch.Side != nil && *patch.Side != core.SideRed && *patch.Side != core.SideBlue {
		return patch, invalid("ai config: unknown side %q", *patch.Side)
	}
	return patch, nil
}

// ParseMoveOrder decodes an issueOrder payload.
func (p *Parser) ParseMoveOrder(raw json.RawMessage) (core.MoveOrder, error) {
	var order core.MoveOrder
	if err := json.Unmarshal(raw, &order); err != nil {
		return order, invalid("move order: %v", err)
	}
	if len(order.UnitIDs) == 0 {
		return order, invalid("move order: no units")
	}
	if !validLatLng(order.Target) {
		return order, invalid("move order: target out of range")
	}
	return order, nil
}

func validLatLng(p core.LatLng) bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}
