package sim

import (
	"fmt"
	"math/rand"

	"github.com/delvelab/delveprobe/internal/grid"
)

// MaxDepth is the deepest dungeon level. Its terminal encounter (the boss)
// legitimately needs more turns than any other level, so the circuit breaker
// never fires there.
const MaxDepth = 5

// Level dimensions. Small enough that per-query flow fields stay cheap.
const (
	levelW = 48
	levelH = 24
)

// Monster is one hostile occupant of a level.
type Monster struct {
	Name   string
	Pos    grid.Point
	HP     int
	MaxHP  int
	Damage int
	Boss   bool
	Awake  bool
}

// Level is one generated dungeon floor.
type Level struct {
	Depth    int
	Grid     *grid.Grid
	Known    []bool // explored mask, same indexing as Grid.Tiles
	Monsters []*Monster
	Gold     []int // gold piles, same indexing
	Stairs   grid.Point
	HasStair bool
	Start    grid.Point
}

// KnownAt reports whether the tile at p has been explored.
func (l *Level) KnownAt(p grid.Point) bool {
	if !l.Grid.In(p) {
		return false
	}
	return l.Known[l.Grid.Index(p)]
}

// MonsterAt returns the living monster on p, or nil.
func (l *Level) MonsterAt(p grid.Point) *Monster {
	for _, m := range l.Monsters {
		if m.HP > 0 && m.Pos == p {
			return m
		}
	}
	return nil
}

// KnownGrid returns a navigation copy of the level where every unexplored
// tile is a wall. Ephemeral; callers must not hold it across turns.
func (l *Level) KnownGrid() *grid.Grid {
	g := grid.NewGrid(l.Grid.W, l.Grid.H)
	for i, t := range l.Grid.Tiles {
		if l.Known[i] {
			g.Tiles[i] = t
		}
	}
	return g
}

// Frontier returns the unexplored tiles bordering (8-way) the explored
// region. With requireWalkableEntry, only tiles adjacent to a known walkable
// tile count, i.e. the ones an agent could actually walk up to.
func (l *Level) Frontier(requireWalkableEntry bool) []grid.Point {
	var out []grid.Point
	for y := 0; y < l.Grid.H; y++ {
		for x := 0; x < l.Grid.W; x++ {
			p := grid.Point{X: x, Y: y}
			if l.KnownAt(p) {
				continue
			}
			for _, d := range grid.Dirs8 {
				n := p.Add(d)
				if !l.KnownAt(n) {
					continue
				}
				if !requireWalkableEntry || l.Grid.At(n).Walkable() {
					out = append(out, p)
					break
				}
			}
		}
	}
	return out
}

// FrontierEntries returns the known tiles that border unexplored space and
// can be entered: walkable tiles plus closed doors, since opening one is
// how the space behind it gets explored. These are the multi-source set
// exploration flows start from.
func (l *Level) FrontierEntries() []grid.Point {
	var out []grid.Point
	for y := 0; y < l.Grid.H; y++ {
		for x := 0; x < l.Grid.W; x++ {
			p := grid.Point{X: x, Y: y}
			if !l.KnownAt(p) {
				continue
			}
			if t := l.Grid.At(p); !t.Walkable() && t != grid.TileDoorClosed {
				continue
			}
			for _, d := range grid.Dirs8 {
				if !l.KnownAt(p.Add(d)) && l.Grid.In(p.Add(d)) {
					out = append(out, p)
					break
				}
			}
		}
	}
	return out
}

// Player is the agent's avatar.
type Player struct {
	Pos    grid.Point
	HP     int
	MaxHP  int
	Level  int
	XP     int
	Kills  int
	Gold   int
	Damage int
	Armor  int
	FOV    int
}

// World is the full mutable game state for one run. It is owned exclusively
// by that run's execution unit for the run's lifetime.
type World struct {
	Cfg    Config
	Seed   int64
	Turn   int
	Depth  int
	Player Player

	// Victory is set when the terminal encounter on MaxDepth is defeated.
	Victory bool

	// TurnsOnLevel counts turns since the last descent; the circuit breaker
	// reads it.
	TurnsOnLevel int

	// LastAttacker names whatever damaged the player most recently; the
	// death-cause histogram reads it.
	LastAttacker string

	// Resolved config, fixed at construction.
	Caps        Capabilities
	Personality string

	rng    *rand.Rand
	levels map[int]*Level

	monsterHPScale  float64
	monsterDmgScale float64
	densityScale    float64
	goldScale       float64
}

// NewWorld constructs a deterministic world for (config, seed). Invalid
// configuration is a fatal error here, never a run outcome.
func NewWorld(cfg Config, seed int64) (*World, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("world construction: %w", err)
	}
	race := races[cfg.RaceID]
	class := classes[cfg.ClassID]
	up := cfg.resolvedUpgrades()
	boost := cfg.resolvedBooster()

	w := &World{
		Cfg:         cfg,
		Seed:        seed,
		Depth:       1,
		Caps:        cfg.resolvedCapabilities(),
		Personality: cfg.Personality,
		rng:         rand.New(rand.NewSource(seed)), // #nosec G404 -- deterministic simulation
		levels:      map[int]*Level{},

		monsterHPScale:  cfg.override("monster_hp_pct", 100) / 100,
		monsterDmgScale: cfg.override("monster_damage_pct", 100) / 100,
		densityScale:    cfg.override("monster_density_pct", 100) / 100,
		goldScale:       cfg.override("gold_pct", 100) / 100,
	}

	maxHP := class.BaseHP + race.HPBonus + up.Vitality*3 + boost.HPBonus
	dmg := class.BaseDamage + race.DamageBonus + up.Power
	dmg = int(float64(dmg) * cfg.override("player_damage_pct", 100) / 100)
	if dmg < 1 {
		dmg = 1
	}
	w.Player = Player{
		HP:     maxHP,
		MaxHP:  maxHP,
		Level:  1,
		Gold:   boost.GoldStart,
		Damage: dmg,
		Armor:  class.BaseArmor + race.ArmorBonus + up.Armor,
		FOV:    3 + boost.FOVBonus,
	}

	if sd := int(cfg.override("start_depth", 1)); sd > 1 {
		if sd > MaxDepth {
			sd = MaxDepth
		}
		w.Depth = sd
	}

	lvl := w.level(w.Depth)
	w.Player.Pos = lvl.Start
	w.reveal()
	return w, nil
}

// level returns the floor at depth, generating it on first visit. Generation
// is salted by depth so revisits are impossible to confuse and the whole
// dungeon is a pure function of the seed.
func (w *World) level(depth int) *Level {
	if l, ok := w.levels[depth]; ok {
		return l
	}
	l := generateLevel(w.Seed, depth, w.monsterHPScale, w.monsterDmgScale, w.densityScale, w.goldScale)
	w.levels[depth] = l
	return l
}

// Level returns the floor the player is on.
func (w *World) Level() *Level { return w.level(w.Depth) }

// reveal marks every tile within the player's field of view as explored.
func (w *World) reveal() {
	l := w.Level()
	r := w.Player.FOV
	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			p := grid.Point{X: w.Player.Pos.X + dx, Y: w.Player.Pos.Y + dy}
			if !l.Grid.In(p) {
				continue
			}
			if w.lineClear(w.Player.Pos, p) {
				l.Known[l.Grid.Index(p)] = true
			}
		}
	}
}

// lineClear walks a straight line from a to b and reports whether sight
// reaches b. Walls and closed doors are visible themselves but block sight
// beyond them.
func (w *World) lineClear(a, b grid.Point) bool {
	l := w.Level()
	steps := a.ChebyshevDist(b)
	if steps == 0 {
		return true
	}
	for i := 1; i <= steps; i++ {
		p := grid.Point{
			X: a.X + (b.X-a.X)*i/steps,
			Y: a.Y + (b.Y-a.Y)*i/steps,
		}
		if p == b {
			return true
		}
		t := l.Grid.At(p)
		if t == grid.TileWall || t == grid.TileDoorClosed {
			return false
		}
	}
	return true
}

// DangerMap scores each tile of the current level by proximity to awake
// monsters. Used by the avoidance mask.
func (w *World) DangerMap() []int {
	l := w.Level()
	danger := make([]int, len(l.Grid.Tiles))
	for _, m := range l.Monsters {
		if m.HP <= 0 || !m.Awake {
			continue
		}
		for dy := -2; dy <= 2; dy++ {
			for dx := -2; dx <= 2; dx++ {
				p := grid.Point{X: m.Pos.X + dx, Y: m.Pos.Y + dy}
				if !l.Grid.In(p) {
					continue
				}
				d := m.Pos.ChebyshevDist(p)
				danger[l.Grid.Index(p)] += 3 - d
			}
		}
	}
	return danger
}

// AdjacentMonster returns a living monster next to the player, preferring
// the lowest-HP one so kills finish cleanly. Returns nil if none.
func (w *World) AdjacentMonster() *Monster {
	l := w.Level()
	var best *Monster
	for _, d := range grid.Dirs8 {
		m := l.MonsterAt(w.Player.Pos.Add(d))
		if m == nil {
			continue
		}
		if best == nil || m.HP < best.HP {
			best = m
		}
	}
	return best
}
