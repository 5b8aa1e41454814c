package diag

import (
	"github.com/delvelab/delveprobe/internal/grid"
	"github.com/delvelab/delveprobe/internal/sim"
)

// TurnContext is what analyzers see before the world advances.
type TurnContext struct {
	World  *sim.World
	Agent  *sim.AgentState
	Action sim.Action
	Turn   int
}

// PostTurnContext is what analyzers see after the world advanced.
type PostTurnContext struct {
	TurnContext
	Moved     bool
	PrevPos   grid.Point
	PrevHP    int
	PrevDepth int
}

// Analyzer is one independently-stateful observer of a run. Summarize is
// mandatory; every other hook is optional: implement the matching observer
// interface to receive it. Analyzers must not mutate world state, must not
// depend on another analyzer's internals, and must survive a Summarize call
// after a zero-turn run.
type Analyzer interface {
	Name() string
	Summarize() AnalyzerResult
}

// StartObserver receives the reset signal. An analyzer instance must be
// reusable: OnStart clears all internal state from any prior run.
type StartObserver interface {
	OnStart(w *sim.World, agent *sim.AgentState)
}

// TurnObserver receives the pre-action context each turn. Must stay O(1)
// amortized; heavyweight snapshots here dominate batch throughput.
type TurnObserver interface {
	OnTurn(ctx *TurnContext)
}

// PostTurnObserver receives the post-action deltas each turn.
type PostTurnObserver interface {
	OnPostTurn(ctx *PostTurnContext)
}

// LevelObserver is notified when the agent changes depth, before any further
// processing of that turn. Per-level bookkeeping resets are each analyzer's
// own responsibility.
type LevelObserver interface {
	OnLevelChange(w *sim.World, oldDepth, newDepth int)
}

// EndObserver is notified once with the final world state and terminal
// reason, before Summarize.
type EndObserver interface {
	OnEnd(w *sim.World, reason EndReason)
}

// Pipeline dispatches lifecycle hooks to every analyzer in registration
// order.
type Pipeline struct {
	analyzers []Analyzer
}

// NewPipeline wraps a fixed analyzer set.
func NewPipeline(analyzers []Analyzer) *Pipeline {
	return &Pipeline{analyzers: analyzers}
}

func (p *Pipeline) Start(w *sim.World, agent *sim.AgentState) {
	for _, a := range p.analyzers {
		if o, ok := a.(StartObserver); ok {
			o.OnStart(w, agent)
		}
	}
}

func (p *Pipeline) Turn(ctx *TurnContext) {
	for _, a := range p.analyzers {
		if o, ok := a.(TurnObserver); ok {
			o.OnTurn(ctx)
		}
	}
}

func (p *Pipeline) PostTurn(ctx *PostTurnContext) {
	for _, a := range p.analyzers {
		if o, ok := a.(PostTurnObserver); ok {
			o.OnPostTurn(ctx)
		}
	}
}

func (p *Pipeline) LevelChange(w *sim.World, oldDepth, newDepth int) {
	for _, a := range p.analyzers {
		if o, ok := a.(LevelObserver); ok {
			o.OnLevelChange(w, oldDepth, newDepth)
		}
	}
}

func (p *Pipeline) End(w *sim.World, reason EndReason) {
	for _, a := range p.analyzers {
		if o, ok := a.(EndObserver); ok {
			o.OnEnd(w, reason)
		}
	}
}

// Summarize collects every analyzer's result, in registration order.
func (p *Pipeline) Summarize() []AnalyzerResult {
	out := make([]AnalyzerResult, 0, len(p.analyzers))
	for _, a := range p.analyzers {
		out = append(out, a.Summarize())
	}
	return out
}

// DefaultAnalyzers is the consolidated analyzer set used by batch runs.
func DefaultAnalyzers() []Analyzer {
	return []Analyzer{
		NewExplorationAnalyzer(),
		NewMovementAnalyzer(MovementOptions{DetectStuck: true, DetectOscillation: true}),
		NewCombatAnalyzer(),
		NewProgressionAnalyzer(),
	}
}
