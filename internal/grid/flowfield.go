package grid

import (
	"math"

	"github.com/zyedidia/generic/mapset"
)

// MaxCost is the sentinel cost for tiles a flow query never reached.
const MaxCost = math.MaxInt32

// FlowOptions tunes a flow-field computation.
type FlowOptions struct {
	// Danger holds a per-tile danger score (same indexing as the grid).
	// Tiles with Danger > DangerThreshold are impassable for this query.
	// Nil disables the mask.
	Danger          []int
	DangerThreshold int

	// OpenClosedDoors treats closed doors as passable. Reachability
	// diagnostics run the same query twice, with and without this, to tell
	// "blocked by a door" apart from "truly unreachable".
	OpenClosedDoors bool
}

// FlowCostGrid is a dense per-tile cost grid from a multi-source frontier.
// It is ephemeral: recomputed per query and never shared across runs.
type FlowCostGrid struct {
	W, H  int
	Costs []int
}

// CostAt returns the flow cost at p, or MaxCost for out-of-bounds queries.
func (f *FlowCostGrid) CostAt(p Point) int {
	if p.X < 0 || p.Y < 0 || p.X >= f.W || p.Y >= f.H {
		return MaxCost
	}
	return f.Costs[p.Y*f.W+p.X]
}

// Reachable reports whether p was reached by the flow.
func (f *FlowCostGrid) Reachable(p Point) bool { return f.CostAt(p) < MaxCost }

// ComputeFlow runs a multi-source breadth-first cost propagation from every
// tile in sources. Every move, cardinal or diagonal, costs 1. Cost ties are
// broken by discovery order, which is deterministic given the fixed Dirs8
// order and the caller's source order. An empty source set yields an
// all-MaxCost grid.
func ComputeFlow(g *Grid, sources []Point, opt FlowOptions) *FlowCostGrid {
	f := &FlowCostGrid{W: g.W, H: g.H, Costs: make([]int, g.W*g.H)}
	for i := range f.Costs {
		f.Costs[i] = MaxCost
	}

	blocked := func(p Point) bool {
		if !g.Passable(p, opt.OpenClosedDoors) {
			return true
		}
		if opt.Danger != nil && opt.Danger[g.Index(p)] > opt.DangerThreshold {
			return true
		}
		return false
	}

	seeded := mapset.New[Point]()
	queue := make([]Point, 0, len(sources))
	for _, s := range sources {
		if !g.In(s) || seeded.Has(s) {
			continue
		}
		seeded.Put(s)
		// Source tiles are always cost 0, even when the tile itself would
		// be masked; the mask constrains expansion, not membership.
		f.Costs[g.Index(s)] = 0
		queue = append(queue, s)
	}

	for head := 0; head < len(queue); head++ {
		cur := queue[head]
		next := f.Costs[g.Index(cur)] + 1
		for _, d := range Dirs8 {
			n := cur.Add(d)
			if !g.In(n) || blocked(n) {
				continue
			}
			// No diagonal corner-cutting through blocked tiles.
			if d.X != 0 && d.Y != 0 {
				a := Point{cur.X + d.X, cur.Y}
				b := Point{cur.X, cur.Y + d.Y}
				if blocked(a) || blocked(b) {
					continue
				}
			}
			idx := g.Index(n)
			if f.Costs[idx] <= next {
				continue
			}
			f.Costs[idx] = next
			queue = append(queue, n)
		}
	}
	return f
}
