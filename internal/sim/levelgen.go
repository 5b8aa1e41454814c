package sim

import (
	"fmt"
	"math/rand"

	"github.com/delvelab/delveprobe/internal/grid"
)

type room struct {
	x, y, w, h int
}

func (r room) center() grid.Point {
	return grid.Point{X: r.x + r.w/2, Y: r.y + r.h/2}
}

func (r room) overlaps(o room) bool {
	return r.x-1 < o.x+o.w && o.x-1 < r.x+r.w && r.y-1 < o.y+o.h && o.y-1 < r.y+r.h
}

var monsterNames = []string{"rat", "goblin", "skeleton", "ghoul", "troll"}

// generateLevel carves one dungeon floor. The layout is a pure function of
// (seed, depth): rooms, L-corridors between successive room centres, doors
// where a corridor squeezes between walls, then monsters, gold, and either
// stairs down or the boss on the last floor.
func generateLevel(seed int64, depth int, hpScale, dmgScale, densityScale, goldScale float64) *Level {
	rng := rand.New(rand.NewSource(seed*1000003 + int64(depth))) // #nosec G404 -- deterministic generation

	g := grid.NewGrid(levelW, levelH)
	var rooms []room
	want := 6 + rng.Intn(3)
	for tries := 0; tries < 200 && len(rooms) < want; tries++ {
		r := room{
			w: 4 + rng.Intn(6),
			h: 3 + rng.Intn(4),
		}
		r.x = 1 + rng.Intn(levelW-r.w-2)
		r.y = 1 + rng.Intn(levelH-r.h-2)
		clash := false
		for _, o := range rooms {
			if r.overlaps(o) {
				clash = true
				break
			}
		}
		if clash {
			continue
		}
		rooms = append(rooms, r)
	}
	if len(rooms) == 0 {
		rooms = append(rooms, room{x: 2, y: 2, w: 8, h: 6})
	}

	for _, r := range rooms {
		for y := r.y; y < r.y+r.h; y++ {
			for x := r.x; x < r.x+r.w; x++ {
				g.Set(grid.Point{X: x, Y: y}, grid.TileFloor)
			}
		}
	}

	// Connect successive room centres with L-shaped corridors. Horizontal
	// leg first or vertical first, decided by the rng, so door placement
	// varies between floors.
	for i := 1; i < len(rooms); i++ {
		a := rooms[i-1].center()
		b := rooms[i].center()
		if rng.Intn(2) == 0 {
			carveH(g, a.X, b.X, a.Y)
			carveV(g, a.Y, b.Y, b.X)
		} else {
			carveV(g, a.Y, b.Y, a.X)
			carveH(g, a.X, b.X, b.Y)
		}
	}

	// Door pass: a floor tile pinched between two walls is a doorway
	// candidate. Some spawn closed, which matters to the reachability
	// diagnostics and to agents lacking the open-doors capability.
	for y := 1; y < levelH-1; y++ {
		for x := 1; x < levelW-1; x++ {
			p := grid.Point{X: x, Y: y}
			if g.At(p) != grid.TileFloor {
				continue
			}
			nsWalls := g.At(grid.Point{X: x, Y: y - 1}) == grid.TileWall && g.At(grid.Point{X: x, Y: y + 1}) == grid.TileWall
			ewWalls := g.At(grid.Point{X: x - 1, Y: y}) == grid.TileWall && g.At(grid.Point{X: x + 1, Y: y}) == grid.TileWall
			if !nsWalls && !ewWalls {
				continue
			}
			if rng.Intn(100) < 20 {
				if rng.Intn(100) < 60 {
					g.Set(p, grid.TileDoorClosed)
				} else {
					g.Set(p, grid.TileDoorOpen)
				}
			}
		}
	}

	l := &Level{
		Depth: depth,
		Grid:  g,
		Known: make([]bool, levelW*levelH),
		Gold:  make([]int, levelW*levelH),
		Start: rooms[0].center(),
	}

	if depth < MaxDepth {
		l.Stairs = rooms[len(rooms)-1].center()
		l.HasStair = true
		g.Set(l.Stairs, grid.TileStairsDown)
	}

	// Monsters scale with depth; density is a balance override.
	count := int(float64(3+depth+rng.Intn(3)) * densityScale)
	for i := 0; i < count; i++ {
		p, ok := randomFloor(rng, g, l.Start, rooms)
		if !ok {
			break
		}
		name := monsterNames[rng.Intn(len(monsterNames))]
		hp := scaleStat(4+depth*2+rng.Intn(3), hpScale)
		l.Monsters = append(l.Monsters, &Monster{
			Name:   fmt.Sprintf("%s-%d", name, depth),
			Pos:    p,
			HP:     hp,
			MaxHP:  hp,
			Damage: scaleStat(1+depth, dmgScale),
		})
	}

	// The last floor holds the terminal encounter instead of stairs.
	if depth == MaxDepth {
		bossPos := rooms[len(rooms)-1].center()
		hp := scaleStat(30+depth*5, hpScale)
		l.Monsters = append(l.Monsters, &Monster{
			Name:   "dungeon-lord",
			Pos:    bossPos,
			HP:     hp,
			MaxHP:  hp,
			Damage: scaleStat(3+depth, dmgScale),
			Boss:   true,
		})
	}

	// Gold piles.
	piles := 2 + rng.Intn(4)
	for i := 0; i < piles; i++ {
		p, ok := randomFloor(rng, g, l.Start, rooms)
		if !ok {
			break
		}
		l.Gold[g.Index(p)] += scaleStat(5+rng.Intn(10)*depth, goldScale)
	}

	return l
}

func scaleStat(v int, scale float64) int {
	s := int(float64(v) * scale)
	if s < 1 {
		s = 1
	}
	return s
}

func carveH(g *grid.Grid, x0, x1, y int) {
	if x0 > x1 {
		x0, x1 = x1, x0
	}
	for x := x0; x <= x1; x++ {
		p := grid.Point{X: x, Y: y}
		if g.At(p) == grid.TileWall {
			g.Set(p, grid.TileFloor)
		}
	}
}

func carveV(g *grid.Grid, y0, y1, x int) {
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	for y := y0; y <= y1; y++ {
		p := grid.Point{X: x, Y: y}
		if g.At(p) == grid.TileWall {
			g.Set(p, grid.TileFloor)
		}
	}
}

// randomFloor picks a free floor tile away from the player start.
func randomFloor(rng *rand.Rand, g *grid.Grid, start grid.Point, rooms []room) (grid.Point, bool) {
	for tries := 0; tries < 100; tries++ {
		r := rooms[rng.Intn(len(rooms))]
		p := grid.Point{X: r.x + rng.Intn(r.w), Y: r.y + rng.Intn(r.h)}
		if g.At(p) != grid.TileFloor {
			continue
		}
		if p.ChebyshevDist(start) < 4 {
			continue
		}
		return p, true
	}
	return grid.Point{}, false
}
