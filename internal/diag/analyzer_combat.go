package diag

import (
	"fmt"

	"github.com/delvelab/delveprobe/internal/sim"
)

// encounterGap is how many quiet turns close an encounter.
const encounterGap = 5

// CombatAnalyzer tracks damage flow and encounter shape over a run.
type CombatAnalyzer struct {
	damageTaken  int
	attacksMade  int
	encounters   int
	inEncounter  bool
	quietTurns   int
	encTurns     int
	maxEncTurns  int
	lowestHPFrac float64
	nearDeath    bool
	deathCause   string

	issues []DiagnosticIssue
}

// NewCombatAnalyzer builds the combat analyzer.
func NewCombatAnalyzer() *CombatAnalyzer { return &CombatAnalyzer{lowestHPFrac: 1} }

func (a *CombatAnalyzer) Name() string { return "combat" }

func (a *CombatAnalyzer) OnStart(_ *sim.World, _ *sim.AgentState) {
	*a = CombatAnalyzer{lowestHPFrac: 1}
}

func (a *CombatAnalyzer) OnPostTurn(ctx *PostTurnContext) {
	hp := ctx.World.Player.HP
	if ctx.Action.Kind == sim.ActAttack {
		a.attacksMade++
	}

	contact := ctx.Action.Kind == sim.ActAttack || hp < ctx.PrevHP
	if hp < ctx.PrevHP {
		a.damageTaken += ctx.PrevHP - hp
	}

	if contact {
		if !a.inEncounter {
			a.inEncounter = true
			a.encounters++
			a.encTurns = 0
		}
		a.quietTurns = 0
		a.encTurns++
		if a.encTurns > a.maxEncTurns {
			a.maxEncTurns = a.encTurns
		}
	} else if a.inEncounter {
		a.quietTurns++
		if a.quietTurns >= encounterGap {
			a.inEncounter = false
		}
	}

	if max := ctx.World.Player.MaxHP; max > 0 && hp > 0 {
		frac := float64(hp) / float64(max)
		if frac < a.lowestHPFrac {
			a.lowestHPFrac = frac
		}
		if frac < 0.2 && !a.nearDeath {
			a.nearDeath = true
			a.issues = append(a.issues, DiagnosticIssue{
				Severity: SeverityWarning,
				Message:  "survived a near-death encounter",
				Turn:     ctx.Turn,
				Context:  map[string]string{"hp": fmt.Sprintf("%d/%d", hp, max)},
			})
		}
	}
}

func (a *CombatAnalyzer) OnEnd(w *sim.World, reason EndReason) {
	// Close any still-open encounter and pin the death cause.
	a.inEncounter = false
	if reason == EndDeath {
		a.deathCause = w.LastAttacker
		if a.deathCause == "" {
			a.deathCause = "unknown"
		}
	}
}

func (a *CombatAnalyzer) Summarize() AnalyzerResult {
	metrics := map[string]any{
		"damage_taken":        a.damageTaken,
		"attacks_made":        a.attacksMade,
		"encounters":          a.encounters,
		"max_encounter_turns": a.maxEncTurns,
		"lowest_hp_frac":      a.lowestHPFrac,
	}
	if a.deathCause != "" {
		metrics["death_cause"] = a.deathCause
	}
	return AnalyzerResult{
		Analyzer: a.Name(),
		Metrics:  metrics,
		Issues:   a.issues,
	}
}
