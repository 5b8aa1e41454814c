package diag

import (
	"fmt"

	"github.com/delvelab/delveprobe/internal/grid"
	"github.com/delvelab/delveprobe/internal/sim"
)

// frontierSampleInterval bounds how often the analyzer recomputes the full
// reachability breakdown while the agent sits goalless. The breakdown is a
// flow-field pass over the level, far too heavy to run every turn.
const frontierSampleInterval = 25

// ExplorationAnalyzer diagnoses why the agent has no goal while unexplored
// area still exists. A raw "no goal" count is not actionable; what matters
// is whether the remaining frontier is reachable, sitting behind a closed
// door, or cut off entirely.
type ExplorationAnalyzer struct {
	caps sim.Capabilities

	noGoalTurns       int
	idleWithFrontier  int
	sinceLastBreak    int
	last              frontierBreakdown
	haveBreak         bool
	reportedReachable bool
	reportedDoor      bool
	reportedDead      bool

	issues []DiagnosticIssue
}

// frontierBreakdown classifies the frontier at one sampled moment.
type frontierBreakdown struct {
	Total       int // unknown tiles bordering the explored region
	WithEntry   int // bordering a tile the agent could stand on
	Reachable   int // entry points reachable from the agent as-is
	DoorBlocked int // entry points reachable only through a closed door
	Unreachable int // entry points with no path at all
	Turn        int
}

// NewExplorationAnalyzer constructs the analyzer; OnStart finishes the job.
func NewExplorationAnalyzer() *ExplorationAnalyzer { return &ExplorationAnalyzer{} }

func (a *ExplorationAnalyzer) Name() string { return "exploration" }

func (a *ExplorationAnalyzer) OnStart(w *sim.World, _ *sim.AgentState) {
	*a = ExplorationAnalyzer{caps: w.Caps, sinceLastBreak: frontierSampleInterval}
}

func (a *ExplorationAnalyzer) OnPostTurn(ctx *PostTurnContext) {
	if ctx.Agent.Goal != sim.GoalNone {
		a.sinceLastBreak = frontierSampleInterval // re-arm: sample immediately on next stall
		return
	}
	a.noGoalTurns++
	if !a.caps.AutoExplore {
		// An agent that cannot explore is expected to idle; that failure
		// mode belongs to the progression/circuit-breaker diagnostics.
		return
	}

	a.sinceLastBreak++
	if a.sinceLastBreak < frontierSampleInterval {
		return
	}
	a.sinceLastBreak = 0

	bd := classifyFrontier(ctx.World, ctx.Turn)
	if bd.Total == 0 {
		return
	}
	a.idleWithFrontier++
	a.last = bd
	a.haveBreak = true

	switch {
	case bd.Reachable > 0 && !a.reportedReachable:
		a.reportedReachable = true
		a.issues = append(a.issues, DiagnosticIssue{
			Severity: SeverityError,
			Message:  "no exploration goal while reachable frontier exists",
			Turn:     bd.Turn,
			Context: map[string]string{
				"frontier_total":     fmt.Sprint(bd.Total),
				"frontier_reachable": fmt.Sprint(bd.Reachable),
			},
		})
	case bd.Reachable == 0 && bd.DoorBlocked > 0 && !a.reportedDoor:
		a.reportedDoor = true
		a.issues = append(a.issues, DiagnosticIssue{
			Severity: SeverityWarning,
			Message:  "frontier blocked behind closed doors",
			Turn:     bd.Turn,
			Context: map[string]string{
				"frontier_total":        fmt.Sprint(bd.Total),
				"frontier_door_blocked": fmt.Sprint(bd.DoorBlocked),
			},
		})
	case bd.Reachable == 0 && bd.DoorBlocked == 0 && !a.reportedDead:
		a.reportedDead = true
		a.issues = append(a.issues, DiagnosticIssue{
			Severity: SeverityWarning,
			Message:  "frontier exists but no entry point is reachable",
			Turn:     bd.Turn,
			Context:  map[string]string{"frontier_total": fmt.Sprint(bd.Total)},
		})
	}
}

func (a *ExplorationAnalyzer) OnLevelChange(_ *sim.World, _, _ int) {
	// Each floor earns its own diagnosis.
	a.reportedReachable = false
	a.reportedDoor = false
	a.reportedDead = false
	a.sinceLastBreak = frontierSampleInterval
}

func (a *ExplorationAnalyzer) Summarize() AnalyzerResult {
	metrics := map[string]any{
		"no_goal_turns":      a.noGoalTurns,
		"idle_with_frontier": a.idleWithFrontier,
	}
	var details []string
	if a.haveBreak {
		metrics["frontier_total"] = a.last.Total
		metrics["frontier_with_entry"] = a.last.WithEntry
		metrics["frontier_reachable"] = a.last.Reachable
		metrics["frontier_door_blocked"] = a.last.DoorBlocked
		metrics["frontier_unreachable"] = a.last.Unreachable
		details = append(details, fmt.Sprintf(
			"last frontier breakdown (T=%d): total=%d entry=%d reachable=%d door_blocked=%d unreachable=%d",
			a.last.Turn, a.last.Total, a.last.WithEntry, a.last.Reachable, a.last.DoorBlocked, a.last.Unreachable))
	}
	return AnalyzerResult{
		Analyzer: a.Name(),
		Metrics:  metrics,
		Issues:   a.issues,
		Details:  details,
	}
}

// classifyFrontier computes the reachability breakdown for the current
// level. Flow grids built here are ephemeral by contract: they are derived
// from this run's world and discarded with the stack frame.
func classifyFrontier(w *sim.World, turn int) frontierBreakdown {
	l := w.Level()
	bd := frontierBreakdown{
		Total:     len(l.Frontier(false)),
		WithEntry: len(l.Frontier(true)),
		Turn:      turn,
	}
	entries := l.FrontierEntries()
	if len(entries) == 0 {
		return bd
	}
	nav := l.KnownGrid()
	me := []grid.Point{w.Player.Pos}
	closed := grid.ComputeFlow(nav, me, grid.FlowOptions{})
	open := grid.ComputeFlow(nav, me, grid.FlowOptions{OpenClosedDoors: true})
	for _, e := range entries {
		switch {
		case closed.Reachable(e) || w.Player.Pos.ChebyshevDist(e) <= 1:
			bd.Reachable++
		case open.Reachable(e):
			bd.DoorBlocked++
		default:
			bd.Unreachable++
		}
	}
	return bd
}
