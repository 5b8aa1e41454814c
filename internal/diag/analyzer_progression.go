package diag

import (
	"fmt"

	"github.com/delvelab/delveprobe/internal/sim"
)

// ProgressionAnalyzer accounts for how the run moved through the dungeon:
// turns per floor, descents, and proximity to the circuit breaker.
type ProgressionAnalyzer struct {
	breakerTurns int

	turnsOnLevel   int
	completedTurns int
	maxTurnsLevel  int
	levelsVisited  int
	descents       []string
	warnedLevel    bool
	finalDepth     int

	issues []DiagnosticIssue
}

// NewProgressionAnalyzer builds the progression analyzer.
func NewProgressionAnalyzer() *ProgressionAnalyzer { return &ProgressionAnalyzer{} }

func (a *ProgressionAnalyzer) Name() string { return "progression" }

func (a *ProgressionAnalyzer) OnStart(w *sim.World, _ *sim.AgentState) {
	*a = ProgressionAnalyzer{
		breakerTurns:  w.Cfg.CircuitBreakerTurns,
		levelsVisited: 1,
	}
}

func (a *ProgressionAnalyzer) OnPostTurn(ctx *PostTurnContext) {
	if ctx.World.Depth != ctx.PrevDepth {
		return // handled by OnLevelChange for this turn
	}
	a.turnsOnLevel++
	if a.turnsOnLevel > a.maxTurnsLevel {
		a.maxTurnsLevel = a.turnsOnLevel
	}

	// The deepest floor is exempt from the breaker, so skip the proximity
	// warning there too.
	if !a.warnedLevel && ctx.World.Depth < sim.MaxDepth &&
		a.turnsOnLevel*5 >= a.breakerTurns*4 {
		a.warnedLevel = true
		a.issues = append(a.issues, DiagnosticIssue{
			Severity: SeverityWarning,
			Message:  "approaching circuit-breaker threshold on a level",
			Turn:     ctx.Turn,
			Context: map[string]string{
				"depth":          fmt.Sprint(ctx.World.Depth),
				"turns_on_level": fmt.Sprint(a.turnsOnLevel),
				"threshold":      fmt.Sprint(a.breakerTurns),
			},
		})
	}
}

func (a *ProgressionAnalyzer) OnLevelChange(_ *sim.World, oldDepth, newDepth int) {
	a.descents = append(a.descents, fmt.Sprintf("depth %d → %d after %d turns", oldDepth, newDepth, a.turnsOnLevel))
	a.completedTurns += a.turnsOnLevel
	a.turnsOnLevel = 0
	a.levelsVisited++
	a.warnedLevel = false
}

func (a *ProgressionAnalyzer) OnEnd(w *sim.World, _ EndReason) {
	a.finalDepth = w.Depth
}

func (a *ProgressionAnalyzer) Summarize() AnalyzerResult {
	avg := 0.0
	if a.levelsVisited > 0 {
		avg = float64(a.completedTurns+a.turnsOnLevel) / float64(a.levelsVisited)
	}
	return AnalyzerResult{
		Analyzer: a.Name(),
		Metrics: map[string]any{
			"final_depth":        a.finalDepth,
			"levels_visited":     a.levelsVisited,
			"max_turns_on_level": a.maxTurnsLevel,
			"avg_turns_on_level": avg,
		},
		Issues:  a.issues,
		Details: a.descents,
	}
}
