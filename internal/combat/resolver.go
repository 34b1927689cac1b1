// Package combat resolves exchanges of fire between units.
package combat

import (
	"context"
	"log/slog"
	"math"

	"github.com/tacmap/tacsim/internal/broadcast"
	"github.com/tacmap/tacsim/internal/geo"
	"github.com/tacmap/tacsim/internal/session"
	"github.com/tacmap/tacsim/pkg/core"
	"github.com/tacmap/tacsim/pkg/streaming"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/tacmap/tacsim/internal/combat"

// DefaultHeavyLossPercent is the HP percentage at or below which a hit is reported as heavy losses.
const DefaultHeavyLossPercent = 25

// Exchange is one hit of attacker on defender.
type Exchange struct {
	AttackerID string
	DefenderID string
	Damage     int
	DefenderHP int
	Destroyed  bool
}

// Outcome is the result of a resolution: the primary hit and an optional counter.
type Outcome struct {
	Primary *Exchange
	Counter *Exchange
}

// Destroyed reports whether the primary exchange destroyed the defender.
func (o Outcome) Destroyed() bool {
	return o.Primary != nil && o.Primary.Destroyed
}

// Resolver applies combat exchanges to a session record.
type Resolver struct {
	catalog   *Catalog
	namer     *Namer
	pub       broadcast.Publisher
	battleLog *broadcast.BattleLog
	logger    *slog.Logger
	heavyLoss int

	exchanges metric.Int64Counter
	destroyed metric.Int64Counter
}

// Dependencies for the resolver.
type Dependencies struct {
	Catalog          *Catalog
	Namer            *Namer
	Publisher        broadcast.Publisher
	BattleLog        *broadcast.BattleLog
	Logger           *slog.Logger
	HeavyLossPercent int
}

// NewResolver creates a resolver. Uses the global OTel meter for metrics.
func NewResolver(deps Dependencies) *Resolver {
	r := &Resolver{
		catalog:   deps.Catalog,
		namer:     deps.Namer,
		pub:       deps.Publisher,
		battleLog: deps.BattleLog,
		logger:    deps.Logger,
		heavyLoss: deps.HeavyLossPercent,
	}
	if r.catalog == nil {
		r.catalog = DefaultCatalog()
	}
	if r.namer == nil {
		r.namer = NewNamer(LocaleEnglish)
	}
	if r.heavyLoss <= 0 {
		r.heavyLoss = DefaultHeavyLossPercent
	}

	m := otel.Meter(instrumentationName)
	var err error
	r.exchanges, err = m.Int64Counter("combat.exchanges",
		metric.WithDescription("Total combat exchanges resolved"))
	if err != nil {
		r.logger.Warn("failed to create exchanges counter", "error", err)
	}
	r.destroyed, err = m.Int64Counter("combat.units.destroyed",
		metric.WithDescription("Total units destroyed in combat"))
	if err != nil {
		r.logger.Warn("failed to create destroyed counter", "error", err)
	}
	return r
}

// Catalog returns the stats tables in use.
func (r *Resolver) Catalog() *Catalog { return r.catalog }

// Namer returns the battle log namer in use.
func (r *Resolver) Namer() *Namer { return r.namer }

// Resolve runs a primary exchange of attacker on defender and, if the defender
// survives and can reach the attacker, one counter exchange. Nothing happens
// unless both units exist with HP above zero.
func (r *Resolver) Resolve(rec *session.Record, attackerID, defenderID string) Outcome {
	var out Outcome
	out.Primary = r.exchange(rec, attackerID, defenderID, false)
	if out.Primary == nil || out.Primary.Destroyed {
		return out
	}

	defender := rec.Unit(defenderID)
	attacker := rec.Unit(attackerID)
	if defender == nil || attacker == nil {
		return out
	}
	stats := r.catalog.Stats(defender.Entity, defender.Echelon)
	if stats.Attack <= 0 {
		return out
	}
	if geo.Distance(defender.Position, attacker.Position) <= stats.Range {
		out.Counter = r.exchange(rec, defenderID, attackerID, true)
	}
	return out
}

func (r *Resolver) exchange(rec *session.Record, attackerID, defenderID string, counter bool) *Exchange {
	attacker := rec.Unit(attackerID)
	defender := rec.Unit(defenderID)
	if attacker == nil || defender == nil || !attacker.Alive() || !defender.Alive() {
		return nil
	}

	damage := r.catalog.Damage(attacker, defender)
	defender.HP -= damage
	if defender.HP < 0 {
		defender.HP = 0
	}
	ex := &Exchange{AttackerID: attackerID, DefenderID: defenderID, Damage: damage, DefenderHP: defender.HP}

	r.logger.Debug("combat exchange",
		"sessionId", rec.ID,
		"attacker", r.namer.UnitName(attacker),
		"defender", r.namer.UnitName(defender),
		"damage", damage,
		"hp", defender.HP,
		"maxHp", defender.MaxHP,
		"counter", counter)
	if r.exchanges != nil {
		r.exchanges.Add(context.Background(), 1,
			metric.WithAttributes(attribute.Bool("counter", counter)))
	}

	hp, maxHP := defender.HP, defender.MaxHP
	r.pub.Publish(rec.ID, streaming.TypeObjectUpdated, core.UnitUpdate{ID: defenderID, HP: &hp, MaxHP: &maxHP})

	if !counter && defender.HP > 0 && defender.HP*100 <= r.heavyLoss*defender.MaxHP {
		pct := hpPercent(defender)
		r.battleLog.Emit(rec.ID, core.BattleLogEntry{
			Kind:       core.BattleDamage,
			UnitID:     defenderID,
			AttackerID: attackerID,
			Damage:     damage,
			Message:    r.namer.HeavyLoss(defender, pct),
		})
	}

	if defender.HP <= 0 {
		ex.Destroyed = true
		r.battleLog.Emit(rec.ID, core.BattleLogEntry{
			Kind:       core.BattleDestroyed,
			UnitID:     defenderID,
			AttackerID: attackerID,
			Message:    r.namer.Destroyed(defender),
		})
		rec.RemoveUnit(defenderID)
		r.pub.Publish(rec.ID, streaming.TypeObjectDestroyed, core.UnitDestroyed{ID: defenderID})
		if r.destroyed != nil {
			r.destroyed.Add(context.Background(), 1)
		}
	}
	return ex
}

func hpPercent(u *core.Unit) int {
	if u.MaxHP <= 0 {
		return 0
	}
	return int(math.Round(float64(u.HP) / float64(u.MaxHP) * 100))
}
