package sim

import (
	"github.com/delvelab/delveprobe/internal/grid"
)

// GoalKind is what the agent currently intends.
type GoalKind int

const (
	GoalNone GoalKind = iota
	GoalExplore
	GoalFight
	GoalLoot
	GoalDescend
	GoalRetreat
)

func (g GoalKind) String() string {
	switch g {
	case GoalNone:
		return "none"
	case GoalExplore:
		return "explore"
	case GoalFight:
		return "fight"
	case GoalLoot:
		return "loot"
	case GoalDescend:
		return "descend"
	case GoalRetreat:
		return "retreat"
	default:
		return "unknown"
	}
}

// AgentState is the agent's per-run working memory. Everything that looks
// like a cache lives here, owned by the run and discarded with it, never at
// package scope, so two runs sharing an execution unit can never observe
// each other's state.
type AgentState struct {
	Goal        GoalKind
	GoalPos     grid.Point
	NoGoalTurns int

	lastDepth int
}

// NewAgentState returns a fresh working memory for one run.
func NewAgentState() *AgentState {
	return &AgentState{lastDepth: -1}
}

// retreatThreshold is the HP fraction below which a personality disengages.
func retreatThreshold(personality string) float64 {
	switch personality {
	case "timid":
		return 0.6
	case "cautious":
		return 0.4
	case "greedy":
		return 0.25
	default: // aggressive
		return 0.15
	}
}

// Decide is the agent policy: a pure function of the world and the agent's
// working memory. All randomness lives in the world's action resolution.
func Decide(w *World, st *AgentState) Action {
	l := w.Level()

	if w.Depth != st.lastDepth {
		// Per-level bookkeeping resets on descent; stale goals from the
		// previous floor must not leak into this one.
		st.Goal = GoalNone
		st.GoalPos = grid.Point{}
		st.lastDepth = w.Depth
	}

	lowHP := float64(w.Player.HP) < retreatThreshold(w.Personality)*float64(w.Player.MaxHP)
	adj := w.AdjacentMonster()

	// Disengage before trading blows when hurt.
	if adj != nil && lowHP {
		if a, ok := fleeStep(w, st); ok {
			return a
		}
		// Cornered; fall through to fighting if allowed.
	}

	if adj != nil && w.Caps.FightBack {
		st.Goal = GoalFight
		st.GoalPos = adj.Pos
		return Action{Kind: ActAttack, Dir: grid.Point{X: adj.Pos.X - w.Player.Pos.X, Y: adj.Pos.Y - w.Player.Pos.Y}}
	}

	// Standing on the stairs with nothing left to explore: go down.
	if w.Caps.UseStairs && l.HasStair && w.Player.Pos == l.Stairs && !worthExploring(w) {
		st.Goal = GoalDescend
		st.GoalPos = l.Stairs
		return Action{Kind: ActDescend}
	}

	// Goal selection in personality order, then navigation by flow field.
	if goal, sources, ok := pickGoal(w); ok {
		if a, ok := navigate(w, st, goal, sources); ok {
			return a
		}
	}

	st.Goal = GoalNone
	st.NoGoalTurns++
	return Action{Kind: ActWait}
}

// worthExploring reports whether reachable unexplored space remains.
func worthExploring(w *World) bool {
	if !w.Caps.AutoExplore {
		return false
	}
	l := w.Level()
	entries := l.FrontierEntries()
	if len(entries) == 0 {
		return false
	}
	flow := grid.ComputeFlow(l.KnownGrid(), entries, grid.FlowOptions{OpenClosedDoors: w.Caps.OpenDoors})
	return flow.Reachable(w.Player.Pos)
}

// pickGoal chooses the agent's target tiles for this turn, in the order the
// personality cares about them.
func pickGoal(w *World) (GoalKind, []grid.Point, bool) {
	l := w.Level()

	type candidate struct {
		goal    GoalKind
		sources func() []grid.Point
	}
	loot := candidate{GoalLoot, func() []grid.Point {
		var out []grid.Point
		for i, g := range l.Gold {
			if g > 0 && l.Known[i] {
				out = append(out, grid.Point{X: i % l.Grid.W, Y: i / l.Grid.W})
			}
		}
		return out
	}}
	fight := candidate{GoalFight, func() []grid.Point {
		if !w.Caps.FightBack {
			return nil
		}
		var out []grid.Point
		for _, m := range l.Monsters {
			if m.HP > 0 && m.Awake && l.KnownAt(m.Pos) {
				out = append(out, m.Pos)
			}
		}
		return out
	}}
	explore := candidate{GoalExplore, func() []grid.Point {
		if !w.Caps.AutoExplore {
			return nil
		}
		return l.FrontierEntries()
	}}
	descend := candidate{GoalDescend, func() []grid.Point {
		if !w.Caps.UseStairs || !l.HasStair || !l.KnownAt(l.Stairs) {
			return nil
		}
		return []grid.Point{l.Stairs}
	}}

	var order []candidate
	switch w.Personality {
	case "greedy":
		order = []candidate{loot, explore, fight, descend}
	case "aggressive":
		order = []candidate{fight, explore, loot, descend}
	default: // cautious, timid
		order = []candidate{explore, loot, descend}
	}

	for _, c := range order {
		if sources := c.sources(); len(sources) > 0 {
			return c.goal, sources, true
		}
	}
	return GoalNone, nil, false
}

// navigate walks the flow-field gradient toward the nearest source tile.
// Returns false when no source is reachable under the current constraints.
func navigate(w *World, st *AgentState, goal GoalKind, sources []grid.Point) (Action, bool) {
	l := w.Level()
	nav := l.KnownGrid()
	opt := grid.FlowOptions{OpenClosedDoors: w.Caps.OpenDoors}
	if w.Caps.AvoidDanger && (w.Personality == "cautious" || w.Personality == "timid") {
		opt.Danger = w.DangerMap()
		opt.DangerThreshold = 1
	}

	flow := grid.ComputeFlow(nav, sources, opt)
	if !flow.Reachable(w.Player.Pos) && opt.Danger != nil {
		// Nothing reachable while avoiding danger; accept the risk rather
		// than stall with live goals on the map.
		opt.Danger = nil
		flow = grid.ComputeFlow(nav, sources, opt)
	}
	here := flow.CostAt(w.Player.Pos)
	if here == grid.MaxCost {
		return Action{}, false
	}

	st.Goal = goal
	st.NoGoalTurns = 0

	if here == 0 {
		// Standing on a goal tile already.
		switch goal {
		case GoalDescend:
			return Action{Kind: ActDescend}, true
		case GoalExplore:
			// A frontier entry whose unknown side hides behind a closed
			// door: open it, otherwise the goal can never progress.
			if w.Caps.OpenDoors {
				for _, d := range grid.Dirs8 {
					if l.Grid.At(w.Player.Pos.Add(d)) == grid.TileDoorClosed {
						return Action{Kind: ActOpenDoor, Dir: d}, true
					}
				}
			}
		}
		return Action{Kind: ActWait}, true
	}

	best := grid.Point{}
	bestCost := here
	for _, d := range grid.Dirs8 {
		n := w.Player.Pos.Add(d)
		c := flow.CostAt(n)
		if c >= bestCost {
			continue
		}
		// The flow already refuses corner-cut expansion, but the player's
		// own first step needs the same guard.
		if d.X != 0 && d.Y != 0 {
			a := grid.Point{X: w.Player.Pos.X + d.X, Y: w.Player.Pos.Y}
			b := grid.Point{X: w.Player.Pos.X, Y: w.Player.Pos.Y + d.Y}
			if !nav.Passable(a, w.Caps.OpenDoors) || !nav.Passable(b, w.Caps.OpenDoors) {
				continue
			}
		}
		bestCost = c
		best = d
	}
	if bestCost == here {
		return Action{}, false
	}

	step := w.Player.Pos.Add(best)
	st.GoalPos = step
	if l.Grid.At(step) == grid.TileDoorClosed {
		if !w.Caps.OpenDoors {
			return Action{}, false
		}
		return Action{Kind: ActOpenDoor, Dir: best}, true
	}
	if l.MonsterAt(step) != nil {
		// A monster wandered onto the path; hit it rather than bump.
		if w.Caps.FightBack {
			return Action{Kind: ActAttack, Dir: best}, true
		}
		return Action{Kind: ActWait}, true
	}
	return Action{Kind: ActMove, Dir: best}, true
}

// fleeStep moves to the adjacent tile with the least danger, strictly less
// than staying put.
func fleeStep(w *World, st *AgentState) (Action, bool) {
	l := w.Level()
	danger := w.DangerMap()
	at := func(p grid.Point) int {
		if !l.Grid.In(p) {
			return grid.MaxCost
		}
		return danger[l.Grid.Index(p)]
	}
	best := at(w.Player.Pos)
	var bestDir grid.Point
	found := false
	for _, d := range grid.Dirs8 {
		n := w.Player.Pos.Add(d)
		if !l.Grid.Passable(n, false) || l.MonsterAt(n) != nil {
			continue
		}
		if c := at(n); c < best {
			best = c
			bestDir = d
			found = true
		}
	}
	if !found {
		return Action{}, false
	}
	st.Goal = GoalRetreat
	st.GoalPos = w.Player.Pos.Add(bestDir)
	st.NoGoalTurns = 0
	return Action{Kind: ActMove, Dir: bestDir}, true
}
