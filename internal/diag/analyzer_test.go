package diag

import (
	"testing"

	"github.com/delvelab/delveprobe/internal/grid"
	"github.com/delvelab/delveprobe/internal/sim"
)

// countingAnalyzer implements only the turn hook; the pipeline must skip it
// for every other lifecycle event without complaint.
type countingAnalyzer struct {
	turns int
}

func (c *countingAnalyzer) Name() string { return "counting" }
func (c *countingAnalyzer) Summarize() AnalyzerResult {
	return AnalyzerResult{Analyzer: "counting", Metrics: map[string]any{"turns": c.turns}}
}
func (c *countingAnalyzer) OnTurn(_ *TurnContext) { c.turns++ }

// bareAnalyzer implements nothing beyond the mandatory interface.
type bareAnalyzer struct{}

func (bareAnalyzer) Name() string { return "bare" }
func (bareAnalyzer) Summarize() AnalyzerResult {
	return AnalyzerResult{Analyzer: "bare", Metrics: map[string]any{}}
}

func TestPipelineDispatchesOnlyImplementedHooks(t *testing.T) {
	w, err := sim.NewWorld(testConfig(), 1)
	if err != nil {
		t.Fatalf("world: %v", err)
	}
	agent := sim.NewAgentState()

	counting := &countingAnalyzer{}
	pipe := NewPipeline([]Analyzer{counting, bareAnalyzer{}})

	pipe.Start(w, agent)
	for i := 1; i <= 3; i++ {
		ctx := TurnContext{World: w, Agent: agent, Turn: i}
		pipe.Turn(&ctx)
		pipe.PostTurn(&PostTurnContext{TurnContext: ctx})
	}
	pipe.LevelChange(w, 1, 2)
	pipe.End(w, EndMaxTurns)

	if counting.turns != 3 {
		t.Fatalf("turn hook fired %d times, want 3", counting.turns)
	}
	results := pipe.Summarize()
	if len(results) != 2 || results[0].Analyzer != "counting" || results[1].Analyzer != "bare" {
		t.Fatalf("summaries out of registration order: %+v", results)
	}
}

// postTurn fabricates the per-turn context the kernel would produce, letting
// movement and combat checks run against controlled position/HP sequences.
func postTurn(w *sim.World, agent *sim.AgentState, turn int, action sim.Action, prevPos grid.Point, prevHP int) *PostTurnContext {
	return &PostTurnContext{
		TurnContext: TurnContext{World: w, Agent: agent, Action: action, Turn: turn},
		Moved:       w.Player.Pos != prevPos,
		PrevPos:     prevPos,
		PrevHP:      prevHP,
		PrevDepth:   w.Depth,
	}
}

func TestMovementAnalyzerFlagsOscillation(t *testing.T) {
	w, err := sim.NewWorld(testConfig(), 1)
	if err != nil {
		t.Fatalf("world: %v", err)
	}
	agent := sim.NewAgentState()
	agent.Goal = sim.GoalExplore

	a := NewMovementAnalyzer(MovementOptions{DetectOscillation: true})
	a.OnStart(w, agent)

	tiles := [2]grid.Point{w.Player.Pos, w.Player.Pos.Add(grid.Point{X: 1})}
	for turn := 1; turn <= oscillationWindow; turn++ {
		prev := w.Player.Pos
		w.Player.Pos = tiles[turn%2]
		a.OnPostTurn(postTurn(w, agent, turn, sim.Action{Kind: sim.ActMove}, prev, w.Player.HP))
	}

	res := a.Summarize()
	if res.Metrics["oscillation_events"].(int) != 1 {
		t.Fatalf("oscillation_events = %v, want 1", res.Metrics["oscillation_events"])
	}
	if len(res.Issues) != 1 {
		t.Fatalf("got %d issues, want the oscillation warning", len(res.Issues))
	}
	if res.Metrics["distinct_tiles"].(int) != 2 {
		t.Fatalf("distinct_tiles = %v, want 2", res.Metrics["distinct_tiles"])
	}
}

func TestMovementAnalyzerFlagsStuckOnlyWithMovementGoal(t *testing.T) {
	w, err := sim.NewWorld(testConfig(), 1)
	if err != nil {
		t.Fatalf("world: %v", err)
	}
	agent := sim.NewAgentState()

	for _, tc := range []struct {
		goal  sim.GoalKind
		stuck int
	}{
		{sim.GoalExplore, 1},
		{sim.GoalNone, 0}, // idle without a goal is the exploration analyzer's business
		{sim.GoalFight, 0},
	} {
		agent.Goal = tc.goal
		a := NewMovementAnalyzer(MovementOptions{DetectStuck: true})
		a.OnStart(w, agent)
		for turn := 1; turn <= stuckWindow; turn++ {
			a.OnPostTurn(postTurn(w, agent, turn, sim.Action{Kind: sim.ActWait}, w.Player.Pos, w.Player.HP))
		}
		res := a.Summarize()
		if got := res.Metrics["stuck_events"].(int); got != tc.stuck {
			t.Fatalf("goal=%s: stuck_events = %d, want %d", tc.goal, got, tc.stuck)
		}
	}
}

func TestMovementAnalyzerResetsOnLevelChange(t *testing.T) {
	w, err := sim.NewWorld(testConfig(), 1)
	if err != nil {
		t.Fatalf("world: %v", err)
	}
	agent := sim.NewAgentState()
	agent.Goal = sim.GoalExplore

	a := NewMovementAnalyzer(MovementOptions{DetectStuck: true})
	a.OnStart(w, agent)
	for turn := 1; turn < stuckWindow; turn++ {
		a.OnPostTurn(postTurn(w, agent, turn, sim.Action{Kind: sim.ActWait}, w.Player.Pos, w.Player.HP))
	}
	a.OnLevelChange(w, 1, 2)
	// One more motionless turn; the streak restarted so no event fires.
	a.OnPostTurn(postTurn(w, agent, stuckWindow, sim.Action{Kind: sim.ActWait}, w.Player.Pos, w.Player.HP))

	if got := a.Summarize().Metrics["stuck_events"].(int); got != 0 {
		t.Fatalf("stuck_events = %d after level change, want 0", got)
	}
}

func TestCombatAnalyzerGroupsEncounters(t *testing.T) {
	w, err := sim.NewWorld(testConfig(), 1)
	if err != nil {
		t.Fatalf("world: %v", err)
	}
	agent := sim.NewAgentState()

	a := NewCombatAnalyzer()
	a.OnStart(w, agent)

	turn := 0
	next := func(action sim.ActionKind, damage int) {
		turn++
		prevHP := w.Player.HP
		w.Player.HP -= damage
		a.OnPostTurn(postTurn(w, agent, turn, sim.Action{Kind: action}, w.Player.Pos, prevHP))
	}

	// First encounter: three contact turns.
	next(sim.ActAttack, 0)
	next(sim.ActAttack, 2)
	next(sim.ActAttack, 0)
	// Quiet gap long enough to close it.
	for i := 0; i < encounterGap; i++ {
		next(sim.ActWait, 0)
	}
	// Second encounter: damage without attacking still counts as contact.
	next(sim.ActWait, 3)

	res := a.Summarize()
	if res.Metrics["encounters"].(int) != 2 {
		t.Fatalf("encounters = %v, want 2", res.Metrics["encounters"])
	}
	if res.Metrics["attacks_made"].(int) != 3 {
		t.Fatalf("attacks_made = %v, want 3", res.Metrics["attacks_made"])
	}
	if res.Metrics["damage_taken"].(int) != 5 {
		t.Fatalf("damage_taken = %v, want 5", res.Metrics["damage_taken"])
	}
	if res.Metrics["max_encounter_turns"].(int) != 3 {
		t.Fatalf("max_encounter_turns = %v, want 3", res.Metrics["max_encounter_turns"])
	}
}

func TestCombatAnalyzerRecordsDeathCauseOnlyOnDeath(t *testing.T) {
	w, err := sim.NewWorld(testConfig(), 1)
	if err != nil {
		t.Fatalf("world: %v", err)
	}
	w.LastAttacker = "ghoul-3"

	a := NewCombatAnalyzer()
	a.OnStart(w, nil)
	a.OnEnd(w, EndDeath)
	if got := a.Summarize().Metrics["death_cause"]; got != "ghoul-3" {
		t.Fatalf("death_cause = %v, want ghoul-3", got)
	}

	a.OnStart(w, nil)
	a.OnEnd(w, EndVictory)
	if _, ok := a.Summarize().Metrics["death_cause"]; ok {
		t.Fatal("death_cause reported for a victory")
	}
}

func TestProgressionAnalyzerPerLevelAccounting(t *testing.T) {
	w, err := sim.NewWorld(testConfig(), 1)
	if err != nil {
		t.Fatalf("world: %v", err)
	}
	agent := sim.NewAgentState()

	a := NewProgressionAnalyzer()
	a.OnStart(w, agent)

	turn := 0
	spend := func(turns int) {
		for i := 0; i < turns; i++ {
			turn++
			a.OnPostTurn(postTurn(w, agent, turn, sim.Action{Kind: sim.ActWait}, w.Player.Pos, w.Player.HP))
		}
	}

	spend(10)
	a.OnLevelChange(w, 1, 2)
	w.Depth = 2
	spend(30)
	a.OnLevelChange(w, 2, 3)
	w.Depth = 3
	spend(20)
	a.OnEnd(w, EndMaxTurns)

	res := a.Summarize()
	if res.Metrics["final_depth"].(int) != 3 {
		t.Fatalf("final_depth = %v, want 3", res.Metrics["final_depth"])
	}
	if res.Metrics["levels_visited"].(int) != 3 {
		t.Fatalf("levels_visited = %v, want 3", res.Metrics["levels_visited"])
	}
	if res.Metrics["max_turns_on_level"].(int) != 30 {
		t.Fatalf("max_turns_on_level = %v, want 30", res.Metrics["max_turns_on_level"])
	}
	if avg := res.Metrics["avg_turns_on_level"].(float64); avg != 20 {
		t.Fatalf("avg_turns_on_level = %v, want 20", avg)
	}
	if len(res.Details) != 2 {
		t.Fatalf("got %d descent details, want 2", len(res.Details))
	}
}

func TestProgressionAnalyzerWarnsNearBreaker(t *testing.T) {
	cfg := testConfig()
	cfg.CircuitBreakerTurns = 50
	w, err := sim.NewWorld(cfg, 1)
	if err != nil {
		t.Fatalf("world: %v", err)
	}
	agent := sim.NewAgentState()

	a := NewProgressionAnalyzer()
	a.OnStart(w, agent)
	for turn := 1; turn <= 45; turn++ {
		a.OnPostTurn(postTurn(w, agent, turn, sim.Action{Kind: sim.ActWait}, w.Player.Pos, w.Player.HP))
	}

	res := a.Summarize()
	if len(res.Issues) != 1 {
		t.Fatalf("got %d issues, want the breaker-proximity warning", len(res.Issues))
	}
	if res.Issues[0].Turn != 40 {
		t.Fatalf("warning fired at turn %d, want 40 (80%% of threshold)", res.Issues[0].Turn)
	}
}

// An analyzer set must be reusable across runs: the kernel resets each one
// through OnStart, so a second run yields exactly a fresh set's output.
func TestAnalyzerInstancesAreReusable(t *testing.T) {
	cfg := testConfig()
	shared := DefaultAnalyzers()

	if _, err := Run(cfg, 11, shared); err != nil {
		t.Fatalf("first run: %v", err)
	}
	reused, err := Run(cfg, 12, shared)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	fresh, err := Run(cfg, 12, DefaultAnalyzers())
	if err != nil {
		t.Fatalf("fresh run: %v", err)
	}
	checkSameResult(t, fresh, reused)
}
