package grid

import "testing"

// buildGrid parses a compact map where '#' is wall, '.' floor, '+' closed
// door, '/' open door, '>' stairs.
func buildGrid(t *testing.T, rows []string) *Grid {
	t.Helper()
	g := NewGrid(len(rows[0]), len(rows))
	for y, row := range rows {
		if len(row) != g.W {
			t.Fatalf("row %d has width %d, want %d", y, len(row), g.W)
		}
		for x, c := range row {
			var tile Tile
			switch c {
			case '#':
				tile = TileWall
			case '.':
				tile = TileFloor
			case '+':
				tile = TileDoorClosed
			case '/':
				tile = TileDoorOpen
			case '>':
				tile = TileStairsDown
			default:
				t.Fatalf("unknown map rune %q", c)
			}
			g.Set(Point{x, y}, tile)
		}
	}
	return g
}

func TestFlowSourcesHaveZeroCost(t *testing.T) {
	g := buildGrid(t, []string{
		"#####",
		"#...#",
		"#...#",
		"#####",
	})
	sources := []Point{{1, 1}, {3, 2}}
	f := ComputeFlow(g, sources, FlowOptions{})
	for _, s := range sources {
		if c := f.CostAt(s); c != 0 {
			t.Errorf("source %v cost = %d, want 0", s, c)
		}
	}
}

func TestFlowEmptySourcesAllMaxCost(t *testing.T) {
	g := buildGrid(t, []string{
		"###",
		"#.#",
		"###",
	})
	f := ComputeFlow(g, nil, FlowOptions{})
	for y := 0; y < g.H; y++ {
		for x := 0; x < g.W; x++ {
			if c := f.CostAt(Point{x, y}); c != MaxCost {
				t.Fatalf("cost at (%d,%d) = %d, want MaxCost", x, y, c)
			}
		}
	}
}

func TestFlowCostsNonDecreasingByOneStep(t *testing.T) {
	g := buildGrid(t, []string{
		"########",
		"#......#",
		"#.####.#",
		"#......#",
		"########",
	})
	f := ComputeFlow(g, []Point{{1, 1}}, FlowOptions{})
	for y := 0; y < g.H; y++ {
		for x := 0; x < g.W; x++ {
			p := Point{x, y}
			c := f.CostAt(p)
			if c == MaxCost || c == 0 {
				continue
			}
			// Every reached non-source tile must have a reached neighbour
			// exactly one step cheaper.
			found := false
			for _, d := range Dirs8 {
				if f.CostAt(p.Add(d)) == c-1 {
					found = true
					break
				}
			}
			if !found {
				t.Errorf("tile %v cost %d has no neighbour at cost %d", p, c, c-1)
			}
		}
	}
}

func TestFlowUnreachableIsMaxCost(t *testing.T) {
	g := buildGrid(t, []string{
		"#######",
		"#..#..#",
		"#..#..#",
		"#######",
	})
	f := ComputeFlow(g, []Point{{1, 1}}, FlowOptions{})
	if f.Reachable(Point{5, 1}) {
		t.Errorf("tile beyond wall reported reachable, cost=%d", f.CostAt(Point{5, 1}))
	}
	if !f.Reachable(Point{2, 2}) {
		t.Errorf("open tile (2,2) reported unreachable")
	}
}

func TestFlowClosedDoorBlocksUnlessOpened(t *testing.T) {
	g := buildGrid(t, []string{
		"#######",
		"#..+..#",
		"#######",
	})
	sealed := ComputeFlow(g, []Point{{1, 1}}, FlowOptions{})
	if sealed.Reachable(Point{5, 1}) {
		t.Errorf("closed door should block flow")
	}
	opened := ComputeFlow(g, []Point{{1, 1}}, FlowOptions{OpenClosedDoors: true})
	if !opened.Reachable(Point{5, 1}) {
		t.Errorf("flow with OpenClosedDoors should pass the door")
	}
	if got, want := opened.CostAt(Point{5, 1}), 4; got != want {
		t.Errorf("cost beyond door = %d, want %d", got, want)
	}
}

func TestFlowDangerMask(t *testing.T) {
	g := buildGrid(t, []string{
		"#######",
		"#.....#",
		"#######",
	})
	danger := make([]int, g.W*g.H)
	danger[g.Index(Point{3, 1})] = 10
	f := ComputeFlow(g, []Point{{1, 1}}, FlowOptions{Danger: danger, DangerThreshold: 5})
	if f.Reachable(Point{5, 1}) {
		t.Errorf("danger-masked tile should block the only corridor")
	}
	// Raising the threshold above the danger score opens it again.
	f = ComputeFlow(g, []Point{{1, 1}}, FlowOptions{Danger: danger, DangerThreshold: 10})
	if !f.Reachable(Point{5, 1}) {
		t.Errorf("tile at danger == threshold should be passable")
	}
}

func TestFlowOutOfBoundsQueries(t *testing.T) {
	g := buildGrid(t, []string{
		"###",
		"#.#",
		"###",
	})
	f := ComputeFlow(g, []Point{{1, 1}}, FlowOptions{})
	for _, p := range []Point{{-1, 0}, {0, -1}, {3, 1}, {1, 3}, {-5, -5}} {
		if c := f.CostAt(p); c != MaxCost {
			t.Errorf("out-of-bounds cost at %v = %d, want MaxCost", p, c)
		}
		if f.Reachable(p) {
			t.Errorf("out-of-bounds point %v reported reachable", p)
		}
	}
}

func TestFlowNoDiagonalCornerCutting(t *testing.T) {
	g := buildGrid(t, []string{
		"####",
		"#.##",
		"##.#",
		"####",
	})
	f := ComputeFlow(g, []Point{{1, 1}}, FlowOptions{})
	if f.Reachable(Point{2, 2}) {
		t.Errorf("diagonal squeeze through wall corners should be blocked")
	}
}
