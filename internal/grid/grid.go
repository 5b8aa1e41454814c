package grid

// Tile is one cell of a dungeon level.
type Tile uint8

const (
	TileWall Tile = iota
	TileFloor
	TileDoorClosed
	TileDoorOpen
	TileStairsDown
)

func (t Tile) String() string {
	switch t {
	case TileWall:
		return "wall"
	case TileFloor:
		return "floor"
	case TileDoorClosed:
		return "door_closed"
	case TileDoorOpen:
		return "door_open"
	case TileStairsDown:
		return "stairs_down"
	default:
		return "unknown"
	}
}

// Walkable reports whether the tile can be stood on. Closed doors are not
// walkable; opening one is its own action.
func (t Tile) Walkable() bool {
	switch t {
	case TileFloor, TileDoorOpen, TileStairsDown:
		return true
	default:
		return false
	}
}

// Point is a tile coordinate.
type Point struct {
	X, Y int
}

// Dirs8 enumerates the 8 movement directions, cardinals first.
var Dirs8 = [8]Point{
	{1, 0}, {-1, 0}, {0, 1}, {0, -1},
	{1, 1}, {1, -1}, {-1, 1}, {-1, -1},
}

// Add returns p offset by d.
func (p Point) Add(d Point) Point { return Point{p.X + d.X, p.Y + d.Y} }

// ChebyshevDist is the move distance under 8-way movement.
func (p Point) ChebyshevDist(q Point) int {
	dx := abs(p.X - q.X)
	dy := abs(p.Y - q.Y)
	if dx > dy {
		return dx
	}
	return dy
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// Grid is a dense 2D tile map.
type Grid struct {
	W, H  int
	Tiles []Tile
}

// NewGrid allocates a W×H grid of walls.
func NewGrid(w, h int) *Grid {
	return &Grid{W: w, H: h, Tiles: make([]Tile, w*h)}
}

// In reports whether p is inside the grid bounds.
func (g *Grid) In(p Point) bool {
	return p.X >= 0 && p.Y >= 0 && p.X < g.W && p.Y < g.H
}

// Index returns the dense index for p. Caller must ensure p is in bounds.
func (g *Grid) Index(p Point) int { return p.Y*g.W + p.X }

// At returns the tile at p, or TileWall for any out-of-bounds query.
func (g *Grid) At(p Point) Tile {
	if !g.In(p) {
		return TileWall
	}
	return g.Tiles[g.Index(p)]
}

// Set writes the tile at p. Out-of-bounds writes are ignored.
func (g *Grid) Set(p Point, t Tile) {
	if !g.In(p) {
		return
	}
	g.Tiles[g.Index(p)] = t
}

// Passable reports whether p can be stepped onto. openClosedDoors treats
// closed doors as passable, which reachability queries use to classify
// door-blocked frontiers.
func (g *Grid) Passable(p Point, openClosedDoors bool) bool {
	t := g.At(p)
	if t == TileDoorClosed {
		return openClosedDoors
	}
	return t.Walkable()
}
