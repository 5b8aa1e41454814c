package diag

import (
	"fmt"

	"github.com/zyedidia/generic/mapset"

	"github.com/delvelab/delveprobe/internal/grid"
	"github.com/delvelab/delveprobe/internal/sim"
)

// Movement anomaly thresholds.
const (
	stuckWindow       = 15 // consecutive non-moving turns with a live goal
	oscillationWindow = 12 // turns examined for a two-tile bounce
	oscillationFlips  = 8  // direction reversals inside the window
)

// MovementOptions toggles the checks the consolidated movement analyzer
// performs. The superseded single-purpose analyzers this replaces differed
// only in which of these they enabled.
type MovementOptions struct {
	DetectStuck       bool
	DetectOscillation bool
}

// MovementAnalyzer watches for agents that stop making progress: pinned in
// place despite holding a movement goal, or bouncing between the same two
// tiles.
type MovementAnalyzer struct {
	opts MovementOptions

	movedTurns    int
	stuckEvents   int
	oscEvents     int
	maxStillness  int
	stillness     int
	stuckReported bool
	oscReported   bool

	recent  []grid.Point // ring of recent positions, oscillationWindow long
	visited mapset.Set[grid.Point]

	issues []DiagnosticIssue
}

// NewMovementAnalyzer builds the consolidated movement analyzer.
func NewMovementAnalyzer(opts MovementOptions) *MovementAnalyzer {
	return &MovementAnalyzer{opts: opts, visited: mapset.New[grid.Point]()}
}

func (a *MovementAnalyzer) Name() string { return "movement" }

func (a *MovementAnalyzer) OnStart(_ *sim.World, _ *sim.AgentState) {
	opts := a.opts
	*a = MovementAnalyzer{opts: opts, visited: mapset.New[grid.Point]()}
}

func (a *MovementAnalyzer) OnPostTurn(ctx *PostTurnContext) {
	pos := ctx.World.Player.Pos
	a.visited.Put(pos)

	if ctx.Moved {
		a.movedTurns++
		a.stillness = 0
	} else {
		a.stillness++
		if a.stillness > a.maxStillness {
			a.maxStillness = a.stillness
		}
	}

	if a.opts.DetectStuck && a.stillness == stuckWindow && movementGoal(ctx.Agent.Goal) {
		a.stuckEvents++
		if !a.stuckReported {
			a.stuckReported = true
			a.issues = append(a.issues, DiagnosticIssue{
				Severity: SeverityWarning,
				Message:  "agent stuck: holding a movement goal without moving",
				Turn:     ctx.Turn,
				Context: map[string]string{
					"goal":  ctx.Agent.Goal.String(),
					"turns": fmt.Sprint(stuckWindow),
				},
			})
		}
	}

	if a.opts.DetectOscillation {
		a.recent = append(a.recent, pos)
		if len(a.recent) > oscillationWindow {
			a.recent = a.recent[1:]
		}
		if len(a.recent) == oscillationWindow && a.isOscillating() {
			a.oscEvents++
			a.recent = a.recent[:0] // one event per bounce episode
			if !a.oscReported {
				a.oscReported = true
				a.issues = append(a.issues, DiagnosticIssue{
					Severity: SeverityWarning,
					Message:  "agent oscillating between two tiles",
					Turn:     ctx.Turn,
					Context:  map[string]string{"goal": ctx.Agent.Goal.String()},
				})
			}
		}
	}
}

func (a *MovementAnalyzer) OnLevelChange(_ *sim.World, _, _ int) {
	// A new floor is new geometry; stale streaks would be false positives.
	a.stillness = 0
	a.recent = a.recent[:0]
	a.stuckReported = false
	a.oscReported = false
}

// isOscillating reports a window confined to two tiles with enough
// alternations to rule out a legitimate short back-and-forth.
func (a *MovementAnalyzer) isOscillating() bool {
	tiles := mapset.New[grid.Point]()
	for _, p := range a.recent {
		tiles.Put(p)
	}
	if tiles.Size() != 2 {
		return false
	}
	flips := 0
	for i := 1; i < len(a.recent); i++ {
		if a.recent[i] != a.recent[i-1] {
			flips++
		}
	}
	return flips >= oscillationFlips
}

func (a *MovementAnalyzer) Summarize() AnalyzerResult {
	return AnalyzerResult{
		Analyzer: a.Name(),
		Metrics: map[string]any{
			"moved_turns":        a.movedTurns,
			"stuck_events":       a.stuckEvents,
			"oscillation_events": a.oscEvents,
			"distinct_tiles":     a.visited.Size(),
			"max_stillness":      a.maxStillness,
		},
		Issues: a.issues,
	}
}

// movementGoal reports whether the goal implies the agent should be moving.
func movementGoal(g sim.GoalKind) bool {
	switch g {
	case sim.GoalExplore, sim.GoalLoot, sim.GoalDescend, sim.GoalRetreat:
		return true
	default:
		return false
	}
}
