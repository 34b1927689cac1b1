package pathfind

import (
	"container/heap"
	"math"
)

type neighbor struct {
	col, row int
	cost     float64
	diagonal bool
}

var neighborOffsets = [...]neighbor{
	{col: 0, row: -1, cost: 1},
	{col: 1, row: 0, cost: 1},
	{col: 0, row: 1, cost: 1},
	{col: -1, row: 0, cost: 1},
	{col: 1, row: -1, cost: math.Sqrt2, diagonal: true},
	{col: 1, row: 1, cost: math.Sqrt2, diagonal: true},
	{col: -1, row: 1, cost: math.Sqrt2, diagonal: true},
	{col: -1, row: -1, cost: math.Sqrt2, diagonal: true},
}

type searchNode struct {
	cell
	g, f   float64
	parent *searchNode
	index  int
}

type openList []*searchNode

func (ol openList) Len() int { return len(ol) }

func (ol openList) Less(i, j int) bool {
	if ol[i].f == ol[j].f {
		return ol[i].g > ol[j].g
	}
	return ol[i].f < ol[j].f
}

func (ol openList) Swap(i, j int) {
	ol[i], ol[j] = ol[j], ol[i]
	ol[i].index = i
	ol[j].index = j
}

func (ol *openList) Push(x any) {
	n := x.(*searchNode)
	n.index = len(*ol)
	*ol = append(*ol, n)
}

func (ol *openList) Pop() any {
	old := *ol
	n := old[len(old)-1]
	old[len(old)-1] = nil
	n.index = -1
	*ol = old[:len(old)-1]
	return n
}

func octile(a, b cell) float64 {
	dx := math.Abs(float64(a.col - b.col))
	dy := math.Abs(float64(a.row - b.row))
	return dx + dy + (math.Sqrt2-2)*math.Min(dx, dy)
}

// canCross reports whether a diagonal step leaves both orthogonal neighbours open.
func canCross(walkable []bool, res int, from cell, d neighbor) bool {
	if !d.diagonal {
		return true
	}
	return walkable[from.row*res+from.col+d.col] && walkable[(from.row+d.row)*res+from.col]
}

// astar runs an 8-directional search over walkable, which the caller owns.
// It returns the cell sequence from start to goal inclusive, or nil.
func astar(walkable []bool, res int, start, goal cell) []cell {
	idx := func(c cell) int { return c.row*res + c.col }
	if !walkable[idx(start)] || !walkable[idx(goal)] {
		return nil
	}

	nodes := make(map[int]*searchNode)
	closed := make([]bool, len(walkable))

	open := &openList{}
	heap.Init(open)
	first := &searchNode{cell: start, f: octile(start, goal)}
	nodes[idx(start)] = first
	heap.Push(open, first)

	for open.Len() > 0 {
		cur := heap.Pop(open).(*searchNode)
		if cur.cell == goal {
			return reconstruct(cur)
		}
		closed[idx(cur.cell)] = true

		for _, d := range neighborOffsets {
			next := cell{col: cur.col + d.col, row: cur.row + d.row}
			if next.col < 0 || next.row < 0 || next.col >= res || next.row >= res {
				continue
			}
			ni := idx(next)
			if !walkable[ni] || closed[ni] {
				continue
			}
			if !canCross(walkable, res, cur.cell, d) {
				continue
			}

			g := cur.g + d.cost
			if existing, ok := nodes[ni]; ok {
				if g >= existing.g {
					continue
				}
				existing.g = g
				existing.f = g + octile(next, goal)
				existing.parent = cur
				heap.Fix(open, existing.index)
				continue
			}
			n := &searchNode{cell: next, g: g, f: g + octile(next, goal), parent: cur}
			nodes[ni] = n
			heap.Push(open, n)
		}
	}
	return nil
}

func reconstruct(end *searchNode) []cell {
	var path []cell
	for n := end; n != nil; n = n.parent {
		path = append(path, n.cell)
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}
