package sim

import (
	"fmt"

	"github.com/delvelab/delveprobe/internal/grid"
)

// ActionKind enumerates what the agent can attempt in one turn.
type ActionKind int

const (
	ActWait ActionKind = iota
	ActMove
	ActOpenDoor
	ActAttack
	ActDescend
)

func (k ActionKind) String() string {
	switch k {
	case ActWait:
		return "wait"
	case ActMove:
		return "move"
	case ActOpenDoor:
		return "open_door"
	case ActAttack:
		return "attack"
	case ActDescend:
		return "descend"
	default:
		return "unknown"
	}
}

// Action is the agent's choice for one turn. Dir is a unit offset for
// move/open/attack kinds.
type Action struct {
	Kind ActionKind
	Dir  grid.Point
}

// Event is one observable consequence of a turn.
type Event struct {
	Turn     int
	Category string // move, door, combat, loot, level
	Key      string
	Detail   string
}

// Advance applies exactly one turn: the player's action, then every monster,
// then bookkeeping. An invalid or rejected action still consumes the turn;
// a buggy policy must not be able to stall the loop.
func (w *World) Advance(a Action) []Event {
	w.Turn++
	w.TurnsOnLevel++
	var events []Event
	add := func(category, key, detail string) {
		events = append(events, Event{Turn: w.Turn, Category: category, Key: key, Detail: detail})
	}

	l := w.Level()
	switch a.Kind {
	case ActWait:
		// Deliberate no-op.

	case ActMove:
		dst := w.Player.Pos.Add(a.Dir)
		switch {
		case !l.Grid.Passable(dst, false):
			add("move", "blocked", fmt.Sprintf("into %s at (%d,%d)", l.Grid.At(dst), dst.X, dst.Y))
		case l.MonsterAt(dst) != nil:
			add("move", "blocked", "occupied by "+l.MonsterAt(dst).Name)
		default:
			w.Player.Pos = dst
		}

	case ActOpenDoor:
		dst := w.Player.Pos.Add(a.Dir)
		if l.Grid.At(dst) == grid.TileDoorClosed {
			l.Grid.Set(dst, grid.TileDoorOpen)
			add("door", "open", fmt.Sprintf("(%d,%d)", dst.X, dst.Y))
		} else {
			add("door", "rejected", fmt.Sprintf("no closed door at (%d,%d)", dst.X, dst.Y))
		}

	case ActAttack:
		dst := w.Player.Pos.Add(a.Dir)
		m := l.MonsterAt(dst)
		if m == nil {
			add("combat", "miss", "nothing to attack")
			break
		}
		dmg := w.Player.Damage + w.rng.Intn(3)
		m.HP -= dmg
		m.Awake = true
		add("combat", "hit", fmt.Sprintf("%s for %d", m.Name, dmg))
		if m.HP <= 0 {
			w.Player.Kills++
			w.Player.XP += m.MaxHP
			add("combat", "kill", m.Name)
			if m.Boss {
				w.Victory = true
				add("level", "victory", m.Name+" defeated")
			}
			w.checkLevelUp(add)
		}

	case ActDescend:
		if l.HasStair && w.Player.Pos == l.Stairs {
			w.Depth++
			w.TurnsOnLevel = 0
			next := w.level(w.Depth)
			w.Player.Pos = next.Start
			add("level", "descend", fmt.Sprintf("depth %d", w.Depth))
		} else {
			add("level", "rejected", "not standing on stairs")
		}

	default:
		add("move", "rejected", "unknown action")
	}

	// Gold is collected by standing on it, whatever action got the player
	// there.
	l = w.Level()
	if g := l.Gold[l.Grid.Index(w.Player.Pos)]; g > 0 {
		w.Player.Gold += g
		l.Gold[l.Grid.Index(w.Player.Pos)] = 0
		add("loot", "gold", fmt.Sprintf("+%d", g))
	}

	w.monsterTurns(add)
	w.reveal()
	return events
}

// checkLevelUp applies simple threshold levelling.
func (w *World) checkLevelUp(add func(category, key, detail string)) {
	for w.Player.XP >= w.Player.Level*20 {
		w.Player.XP -= w.Player.Level * 20
		w.Player.Level++
		w.Player.MaxHP += 3
		w.Player.HP = w.Player.MaxHP
		w.Player.Damage++
		add("level", "level_up", fmt.Sprintf("now level %d", w.Player.Level))
	}
}

// monsterTurns advances every living monster on the current level: wake when
// the player is close, step toward the player, attack when adjacent.
func (w *World) monsterTurns(add func(category, key, detail string)) {
	l := w.Level()
	for _, m := range l.Monsters {
		if m.HP <= 0 {
			continue
		}
		dist := m.Pos.ChebyshevDist(w.Player.Pos)
		if !m.Awake {
			if dist <= 6 && w.lineClear(m.Pos, w.Player.Pos) {
				m.Awake = true
				add("combat", "wake", m.Name)
			} else {
				continue
			}
		}
		if dist == 1 {
			dmg := m.Damage + w.rng.Intn(2) - w.Player.Armor
			if dmg < 1 {
				dmg = 1
			}
			w.Player.HP -= dmg
			w.LastAttacker = m.Name
			add("combat", "player_hit", fmt.Sprintf("%s for %d", m.Name, dmg))
			if w.Player.HP <= 0 {
				add("combat", "player_death", m.Name)
				return
			}
			continue
		}
		// Greedy chase: the first direction that closes distance and lands
		// on a free tile. Fixed direction order keeps it deterministic.
		for _, d := range grid.Dirs8 {
			n := m.Pos.Add(d)
			if n.ChebyshevDist(w.Player.Pos) >= dist {
				continue
			}
			if !l.Grid.Passable(n, false) || l.MonsterAt(n) != nil || n == w.Player.Pos {
				continue
			}
			m.Pos = n
			break
		}
	}
}
