package engine

import (
	"context"
	"math"
	"runtime/debug"
	"slices"
	"time"

	"github.com/tacmap/tacsim/internal/session"
	"github.com/tacmap/tacsim/pkg/core"
	"github.com/tacmap/tacsim/pkg/streaming"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Tick runs one scheduler cycle at now. Sessions are processed in id order
// and the whole cycle holds the engine lock.
func (e *Engine) Tick(now time.Time) {
	start := time.Now()

	e.mu.Lock()
	ids := e.store.IDs()
	for _, id := range ids {
		e.tickSession(id, now)
	}
	elapsed := time.Since(start)
	e.lastTick = elapsed
	e.mu.Unlock()

	ctx := context.Background()
	if e.tickDuration != nil {
		e.tickDuration.Record(ctx, float64(elapsed.Microseconds())/1000)
	}
	if e.telemetry != nil {
		e.telemetry.RecordTick(ctx, len(ids), elapsed)
	}
}

func (e *Engine) tickSession(id string, now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("session tick panicked",
				"sessionId", id,
				"panic", r,
				"stack", string(debug.Stack()))
			if e.panics != nil {
				e.panics.Add(context.Background(), 1, metric.WithAttributes(attribute.String("sessionId", id)))
			}
		}
	}()

	rec := e.store.Get(id)
	if rec == nil {
		return
	}
	e.advance(rec)

	if e.store.Get(id) != rec {
		return
	}
	if rec.Config.Enabled && now.Sub(rec.LastDecision) >= e.cfg.DecisionInterval {
		rec.LastDecision = now
		report := e.decider.Decide(rec)
		if e.telemetry != nil && report.Controlled > 0 {
			e.telemetry.RecordDecision(context.Background(), id, report.ForceRatio, report.Controlled, report.Opposing)
		}
	}

	if e.store.Get(id) != rec {
		return
	}
	if now.Sub(rec.LastSnapshot) >= e.cfg.HistoryInterval {
		rec.Snapshot(now)
	}
}

// advance moves every tracked unit one step toward its current waypoint.
func (e *Engine) advance(rec *session.Record) {
	ids := make([]string, 0, len(rec.Trackers))
	for id := range rec.Trackers {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	for _, unitID := range ids {
		t := rec.Tracker(unitID)
		unit := rec.Unit(unitID)
		if unit == nil || t == nil || t.Done() {
			rec.DropTracker(unitID)
			continue
		}

		pos := step(unit.Position, t)
		unit.Position = pos
		e.pub.Publish(rec.ID, streaming.TypeObjectUpdated, core.UnitUpdate{ID: unitID, Position: &pos})

		if t.Done() {
			rec.DropTracker(unitID)
		}
	}
}

// step moves pos by at most t.Step degrees toward the current waypoint,
// snapping onto it and advancing the index when it is closer than one step.
func step(pos core.LatLng, t *session.Tracker) core.LatLng {
	wp := t.Path[t.Index]
	dLat := wp.Lat - pos.Lat
	dLng := wp.Lng - pos.Lng
	dist := math.Hypot(dLat, dLng)
	if dist < t.Step {
		t.Index++
		return wp
	}
	return core.LatLng{
		Lat: pos.Lat + dLat/dist*t.Step,
		Lng: pos.Lng + dLng/dist*t.Step,
	}
}
