package pathfind

import (
	"math"

	"github.com/tacmap/tacsim/internal/geo"
	"github.com/tacmap/tacsim/pkg/core"
)

// Grid is an immutable walkability raster over a geographic box.
// Row 0 is the northern edge.
type Grid struct {
	box        geo.Box
	resolution int
	walkable   []bool
}

type cell struct {
	col, row int
}

func newGrid(box geo.Box, resolution int) *Grid {
	walkable := make([]bool, resolution*resolution)
	for i := range walkable {
		walkable[i] = true
	}
	return &Grid{box: box, resolution: resolution, walkable: walkable}
}

// Resolution returns the number of cells per side.
func (g *Grid) Resolution() int { return g.resolution }

// Box returns the geographic extent of the grid.
func (g *Grid) Box() geo.Box { return g.box }

// Walkable reports whether the cell at col,row can be entered.
func (g *Grid) Walkable(col, row int) bool {
	if !g.inBounds(col, row) {
		return false
	}
	return g.walkable[g.index(col, row)]
}

func (g *Grid) inBounds(col, row int) bool {
	return col >= 0 && row >= 0 && col < g.resolution && row < g.resolution
}

func (g *Grid) index(col, row int) int {
	return row*g.resolution + col
}

func (g *Grid) clamp(v int) int {
	return max(0, min(v, g.resolution-1))
}

// toCell maps a coordinate onto the grid, clamping points outside the box to the edge.
func (g *Grid) toCell(p core.LatLng) cell {
	latRatio := (p.Lat - g.box.MinLat) / (g.box.MaxLat - g.box.MinLat)
	lngRatio := (p.Lng - g.box.MinLng) / (g.box.MaxLng - g.box.MinLng)

	col := int(math.Floor(lngRatio * float64(g.resolution)))
	row := int(math.Floor((1 - latRatio) * float64(g.resolution)))
	return cell{col: g.clamp(col), row: g.clamp(row)}
}

// toLatLng returns the north-west corner of a cell.
func (g *Grid) toLatLng(c cell) core.LatLng {
	colRatio := float64(c.col) / float64(g.resolution)
	rowRatio := float64(c.row) / float64(g.resolution)
	return core.LatLng{
		Lat: g.box.MaxLat - rowRatio*(g.box.MaxLat-g.box.MinLat),
		Lng: g.box.MinLng + colRatio*(g.box.MaxLng-g.box.MinLng),
	}
}

// block marks every cell covered by box as unwalkable. Boxes outside the
// grid extent are ignored.
func (g *Grid) block(box geo.Box) bool {
	if !g.box.Overlaps(box) {
		return false
	}
	a := g.toCell(core.LatLng{Lat: box.MaxLat, Lng: box.MinLng})
	b := g.toCell(core.LatLng{Lat: box.MinLat, Lng: box.MaxLng})
	for row := min(a.row, b.row); row <= max(a.row, b.row); row++ {
		for col := min(a.col, b.col); col <= max(a.col, b.col); col++ {
			g.walkable[g.index(col, row)] = false
		}
	}
	return true
}

// BlockedCells returns the number of unwalkable cells.
func (g *Grid) BlockedCells() int {
	n := 0
	for _, w := range g.walkable {
		if !w {
			n++
		}
	}
	return n
}
