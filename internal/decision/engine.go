// Package decision runs the doctrine rule ladder for AI-controlled units.
package decision

import (
	"context"
	"log/slog"
	"math"
	"sort"

	"github.com/tacmap/tacsim/internal/broadcast"
	"github.com/tacmap/tacsim/internal/combat"
	"github.com/tacmap/tacsim/internal/geo"
	"github.com/tacmap/tacsim/internal/session"
	"github.com/tacmap/tacsim/pkg/core"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/tacmap/tacsim/internal/decision"

const (
	DefaultRetreatThreshold = 0.25
	DefaultRetreatOffset    = 0.5
)

// Mover issues a move order for a unit along a planned path.
// It returns false when no path was found.
type Mover interface {
	IssueMove(rec *session.Record, unitID string, from, to core.LatLng) bool
}

// Report summarises one decision cycle of a session.
type Report struct {
	ForceRatio float64
	Controlled int
	Opposing   int
	Actions    map[Action]int
}

// Config tunes the ladder thresholds.
type Config struct {
	RetreatThreshold float64
	RetreatOffset    float64
}

// Dependencies for the decision engine.
type Dependencies struct {
	Resolver  *combat.Resolver
	Mover     Mover
	BattleLog *broadcast.BattleLog
	Logger    *slog.Logger
}

// Engine evaluates compiled rules for every controlled unit of a session.
type Engine struct {
	rules     []*Rule
	cfg       Config
	resolver  *combat.Resolver
	mover     Mover
	battleLog *broadcast.BattleLog
	logger    *slog.Logger

	actions metric.Int64Counter
}

// NewEngine compiles the default rule ladder.
func NewEngine(cfg Config, deps Dependencies) (*Engine, error) {
	rules, err := compileRules(DefaultRules())
	if err != nil {
		return nil, err
	}
	if cfg.RetreatThreshold <= 0 {
		cfg.RetreatThreshold = DefaultRetreatThreshold
	}
	if cfg.RetreatOffset <= 0 {
		cfg.RetreatOffset = DefaultRetreatOffset
	}

	e := &Engine{
		rules:     rules,
		cfg:       cfg,
		resolver:  deps.Resolver,
		mover:     deps.Mover,
		battleLog: deps.BattleLog,
		logger:    deps.Logger,
	}
	e.actions, err = otel.Meter(instrumentationName).Int64Counter("decision.actions",
		metric.WithDescription("Rule ladder actions taken by controlled units"))
	if err != nil {
		e.logger.Warn("failed to create actions counter", "error", err)
	}
	return e, nil
}

// Decide runs one decision cycle over rec. Controlled units act in id order.
func (e *Engine) Decide(rec *session.Record) Report {
	cfg := rec.Config
	report := Report{Actions: make(map[Action]int)}

	controlled := unitsOf(rec, cfg.ControlledIdentity())
	opposing := unitsOf(rec, cfg.OpposingIdentity())
	report.Controlled = len(controlled)
	report.Opposing = len(opposing)
	if len(controlled) == 0 {
		return report
	}
	report.ForceRatio = forceRatio(controlled, opposing)

	namer := e.resolver.Namer()
	catalog := e.resolver.Catalog()

	for _, unit := range controlled {
		// earlier exchanges in this cycle may have removed the unit
		if rec.Unit(unit.ID) != unit || !unit.Alive() {
			continue
		}

		threat, dist := nearest(unit, opposing)
		if threat == nil {
			continue
		}
		stats := catalog.Stats(unit.Entity, unit.Echelon)
		env := RuleEnv{
			HPFraction:       unit.HPFraction(),
			Doctrine:         cfg.Doctrine,
			Distance:         dist,
			Range:            stats.Range,
			Moving:           rec.Moving(unit.ID),
			RetreatThreshold: e.cfg.RetreatThreshold,
			ForceRatio:       report.ForceRatio,
		}

		rule, err := match(e.rules, env)
		if err != nil {
			e.logger.Warn("rule condition error", "sessionId", rec.ID, "unitId", unit.ID, "error", err)
			continue
		}
		if rule == nil {
			continue
		}
		report.Actions[rule.Action]++
		if e.actions != nil {
			e.actions.Add(context.Background(), 1, metric.WithAttributes(attribute.String("action", string(rule.Action))))
		}

		switch rule.Action {
		case ActionRetreat:
			if env.Moving {
				continue
			}
			e.battleLog.Emit(rec.ID, core.BattleLogEntry{
				Kind:    core.BattleRetreat,
				UnitID:  unit.ID,
				Message: namer.Retreat(unit, int(math.Round(env.HPFraction*100))),
			})
			target := geo.Away(unit.Position, threat.Position, e.cfg.RetreatOffset)
			e.move(rec, unit, target)

		case ActionHold:

		case ActionEngage:
			rec.DropTracker(unit.ID)
			if unit.EngagedTarget != threat.ID {
				e.battleLog.Emit(rec.ID, core.BattleLogEntry{
					Kind:     core.BattleEngage,
					UnitID:   unit.ID,
					TargetID: threat.ID,
					Message:  namer.Engage(unit, threat),
				})
				unit.EngagedTarget = threat.ID
			}
			e.resolver.Resolve(rec, unit.ID, threat.ID)

		case ActionAdvance:
			if env.Moving {
				continue
			}
			meters := int(math.Round(dist))
			e.battleLog.Emit(rec.ID, core.BattleLogEntry{
				Kind:     core.BattleAdvance,
				UnitID:   unit.ID,
				TargetID: threat.ID,
				Distance: meters,
				Message:  namer.Advance(unit, meters),
			})
			e.move(rec, unit, threat.Position)
		}
	}

	e.logger.Debug("decision cycle",
		"sessionId", rec.ID,
		"controlled", report.Controlled,
		"opposing", report.Opposing,
		"forceRatio", report.ForceRatio)
	return report
}

func (e *Engine) move(rec *session.Record, unit *core.Unit, target core.LatLng) {
	if !e.mover.IssueMove(rec, unit.ID, unit.Position, target) {
		e.logger.Info("no path found", "sessionId", rec.ID, "unitId", unit.ID)
	}
}

// unitsOf returns the living units of an identity sorted by id.
func unitsOf(rec *session.Record, identity core.Identity) []*core.Unit {
	var out []*core.Unit
	for _, u := range rec.Units {
		if u.Identity == identity && u.Alive() {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func forceRatio(controlled, opposing []*core.Unit) float64 {
	var own, enemy int
	for _, u := range controlled {
		own += u.HP
	}
	for _, u := range opposing {
		enemy += u.HP
	}
	if enemy == 0 {
		return math.Inf(1)
	}
	return float64(own) / float64(enemy)
}

// nearest returns the closest living opposing unit and its distance in metres.
func nearest(unit *core.Unit, opposing []*core.Unit) (*core.Unit, float64) {
	var best *core.Unit
	bestDist := math.Inf(1)
	for _, o := range opposing {
		if !o.Alive() {
			continue
		}
		d := geo.Distance(unit.Position, o.Position)
		if d < bestDist {
			best, bestDist = o, d
		}
	}
	return best, bestDist
}
