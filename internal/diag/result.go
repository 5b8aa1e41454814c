package diag

import (
	"fmt"

	"github.com/delvelab/delveprobe/internal/grid"
	"github.com/delvelab/delveprobe/internal/sim"
)

// EndReason classifies how a run terminated. All values are terminal; there
// are no transitions out.
type EndReason int

const (
	EndDeath EndReason = iota
	EndVictory
	EndMaxTurns
	EndCircuitBreaker
)

func (r EndReason) String() string {
	switch r {
	case EndDeath:
		return "death"
	case EndVictory:
		return "victory"
	case EndMaxTurns:
		return "max_turns"
	case EndCircuitBreaker:
		return "circuit_breaker"
	default:
		return "unknown"
	}
}

// MarshalText lets end reasons serialize as their names in JSON envelopes.
func (r EndReason) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

// UnmarshalText restores an end reason from its name when archived
// results are loaded back.
func (r *EndReason) UnmarshalText(text []byte) error {
	switch string(text) {
	case "death":
		*r = EndDeath
	case "victory":
		*r = EndVictory
	case "max_turns":
		*r = EndMaxTurns
	case "circuit_breaker":
		*r = EndCircuitBreaker
	default:
		return fmt.Errorf("unknown end reason %q", text)
	}
	return nil
}

// Issue severities.
const (
	SeverityWarning = "warning"
	SeverityError   = "error"
)

// DiagnosticIssue is one behavioural observation from an analyzer. Issues
// never stop a run; they accumulate into the result.
type DiagnosticIssue struct {
	Severity string            `json:"severity"`
	Message  string            `json:"message"`
	Turn     int               `json:"turn,omitempty"` // 0 when not tied to a turn
	Context  map[string]string `json:"context,omitempty"`
}

// AnalyzerResult is one analyzer's summary of a run.
type AnalyzerResult struct {
	Analyzer string            `json:"analyzer"`
	Metrics  map[string]any    `json:"metrics"`
	Issues   []DiagnosticIssue `json:"issues,omitempty"`
	Details  []string          `json:"details,omitempty"`
}

// FinalState is the lightweight end-of-run snapshot.
type FinalState struct {
	Turn  int        `json:"turn"`
	Depth int        `json:"depth"`
	Level int        `json:"level"`
	HP    int        `json:"hp"`
	MaxHP int        `json:"maxHp"`
	Kills int        `json:"kills"`
	Gold  int        `json:"gold"`
	Pos   grid.Point `json:"pos"`
}

// DiagnoseResult is everything observed about one run. Owned exclusively by
// the caller once returned; never mutated afterward.
type DiagnoseResult struct {
	Seed       int64             `json:"seed"`
	Config     sim.Config        `json:"config"`
	EndReason  EndReason         `json:"endReason"`
	Final      FinalState        `json:"finalState"`
	Analyzers  []AnalyzerResult  `json:"analyzers"`
	Issues     []DiagnosticIssue `json:"issues,omitempty"`
	HasError   bool              `json:"hasError"`
	HasWarning bool              `json:"hasWarning"`
}

// WorkItem is one unit of scheduled work. Pure value: an identical item must
// always produce an identical result.
type WorkItem struct {
	Seed   int64      `json:"seed"`
	Config sim.Config `json:"config"`
}
