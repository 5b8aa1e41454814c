package diag

import (
	"fmt"

	"github.com/delvelab/delveprobe/internal/sim"
)

// Run plays one configuration + seed to completion under observation.
// Configuration errors surface here; run outcomes never do. Death, victory,
// turn exhaustion, and the circuit breaker are all first-class results.
func Run(cfg sim.Config, seed int64, analyzers []Analyzer) (*DiagnoseResult, error) {
	return RunTraced(cfg, seed, analyzers, nil)
}

// RunTraced is Run with an optional trace log capturing every world event
// plus goal transitions. Deep mode and tests use it.
func RunTraced(cfg sim.Config, seed int64, analyzers []Analyzer, trace *TraceLog) (*DiagnoseResult, error) {
	w, err := sim.NewWorld(cfg, seed)
	if err != nil {
		return nil, fmt.Errorf("run seed=%d: %w", seed, err)
	}
	agent := sim.NewAgentState()
	pipe := NewPipeline(analyzers)
	pipe.Start(w, agent)

	reason := EndMaxTurns
	prevGoal := agent.Goal

	for w.Turn < cfg.MaxTurns {
		prevPos := w.Player.Pos
		prevHP := w.Player.HP
		prevDepth := w.Depth
		turn := w.Turn + 1

		action := sim.Decide(w, agent)

		tctx := TurnContext{World: w, Agent: agent, Action: action, Turn: turn}
		pipe.Turn(&tctx)

		events := w.Advance(action)

		if w.Depth != prevDepth {
			// Level transitions are reported before any further turn
			// processing so per-level bookkeeping closes against the old
			// depth.
			pipe.LevelChange(w, prevDepth, w.Depth)
		}

		pipe.PostTurn(&PostTurnContext{
			TurnContext: tctx,
			Moved:       w.Player.Pos != prevPos,
			PrevPos:     prevPos,
			PrevHP:      prevHP,
			PrevDepth:   prevDepth,
		})

		if trace != nil {
			for _, e := range events {
				trace.Add(e.Turn, e.Category, e.Key, e.Detail)
			}
			if agent.Goal != prevGoal {
				trace.Add(turn, "goal", "change", fmt.Sprintf("%s → %s", prevGoal, agent.Goal))
			}
		}
		prevGoal = agent.Goal

		// Terminal conditions, in fixed order. The deepest level is exempt
		// from the circuit breaker: its terminal encounter legitimately
		// needs more turns than any exploration pass.
		if w.Player.HP <= 0 {
			reason = EndDeath
			break
		}
		if w.Victory {
			reason = EndVictory
			break
		}
		if w.TurnsOnLevel >= cfg.CircuitBreakerTurns && w.Depth < sim.MaxDepth {
			reason = EndCircuitBreaker
			break
		}
	}

	pipe.End(w, reason)
	results := pipe.Summarize()

	res := &DiagnoseResult{
		Seed:      seed,
		Config:    cfg,
		EndReason: reason,
		Final: FinalState{
			Turn:  w.Turn,
			Depth: w.Depth,
			Level: w.Player.Level,
			HP:    w.Player.HP,
			MaxHP: w.Player.MaxHP,
			Kills: w.Player.Kills,
			Gold:  w.Player.Gold,
			Pos:   w.Player.Pos,
		},
		Analyzers: results,
	}
	for _, ar := range results {
		for _, issue := range ar.Issues {
			res.Issues = append(res.Issues, issue)
			switch issue.Severity {
			case SeverityError:
				res.HasError = true
			case SeverityWarning:
				res.HasWarning = true
			}
		}
	}
	return res, nil
}
