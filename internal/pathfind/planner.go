// Package pathfind plans routes for units over a coarse per-session walkability grid.
package pathfind

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/tacmap/tacsim/internal/geo"
	"github.com/tacmap/tacsim/pkg/core"
)

const (
	DefaultResolution = 100
	MinResolution     = 10
	MaxResolution     = 400
)

// Planner holds one grid per session. Grids are replaced wholesale on rebuild
// and each search works on its own copy of the walkability data.
type Planner struct {
	mu         sync.RWMutex
	grids      map[string]*Grid
	resolution int
	logger     *slog.Logger
}

// NewPlanner creates a planner. Resolution is clamped to [MinResolution, MaxResolution].
func NewPlanner(resolution int, logger *slog.Logger) *Planner {
	if resolution == 0 {
		resolution = DefaultResolution
	}
	return &Planner{
		grids:      make(map[string]*Grid),
		resolution: max(MinResolution, min(resolution, MaxResolution)),
		logger:     logger,
	}
}

// Resolution returns the cells per side used for new grids.
func (p *Planner) Resolution() int { return p.resolution }

// RebuildGrid rasterises obstacles over bounds and swaps in the new grid.
// Obstacles without usable geometry are skipped.
func (p *Planner) RebuildGrid(sessionID string, bounds core.Bounds, obstacles []core.Obstacle) error {
	box := geo.BoxFromBounds(bounds)
	if err := box.Validate(); err != nil {
		return fmt.Errorf("rebuild grid for session %s: %w", sessionID, err)
	}

	grid := newGrid(box, p.resolution)
	for _, obs := range obstacles {
		footprint, err := geo.Footprint(obs)
		if err != nil {
			p.logger.Debug("skipping obstacle", "sessionId", sessionID, "obstacleId", obs.ID, "error", err)
			continue
		}
		grid.block(footprint)
	}

	p.mu.Lock()
	p.grids[sessionID] = grid
	p.mu.Unlock()

	p.logger.Debug("grid rebuilt",
		"sessionId", sessionID,
		"obstacles", len(obstacles),
		"blockedCells", grid.BlockedCells())
	return nil
}

// Grid returns the current grid of a session, or nil.
func (p *Planner) Grid(sessionID string) *Grid {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.grids[sessionID]
}

// Remove drops the grid of a session.
func (p *Planner) Remove(sessionID string) {
	p.mu.Lock()
	delete(p.grids, sessionID)
	p.mu.Unlock()
}

// FindPath returns waypoints from the cell containing from to the cell
// containing to. The result is empty when the session has no grid, either
// endpoint is blocked, or no route exists.
func (p *Planner) FindPath(sessionID string, from, to core.LatLng) []core.LatLng {
	grid := p.Grid(sessionID)
	if grid == nil {
		p.logger.Debug("no grid for session", "sessionId", sessionID)
		return nil
	}

	work := make([]bool, len(grid.walkable))
	copy(work, grid.walkable)

	cells := astar(work, grid.resolution, grid.toCell(from), grid.toCell(to))
	if len(cells) == 0 {
		return nil
	}
	path := make([]core.LatLng, len(cells))
	for i, c := range cells {
		path[i] = grid.toLatLng(c)
	}
	return path
}
