package diag

import (
	"sort"
)

// MetricAgg is the min/max/avg reduction of one metric across runs.
type MetricAgg struct {
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Avg   float64 `json:"avg"`
	Count int     `json:"count"` // runs that reported the metric
}

// IssueCount is one row of the issue-frequency table.
type IssueCount struct {
	Message  string `json:"message"`
	Severity string `json:"severity"`
	Count    int    `json:"count"`
}

// RunFailure records a work item the scheduler rejected. The run produced
// no result; only the seed and the error survive into the reduction.
type RunFailure struct {
	Seed  int64  `json:"seed"`
	Error string `json:"error"`
}

// RunSummary is a lightweight per-run line for reports.
type RunSummary struct {
	Seed       int64     `json:"seed"`
	EndReason  EndReason `json:"endReason"`
	Turn       int       `json:"turn"`
	Depth      int       `json:"depth"`
	Kills      int       `json:"kills"`
	Gold       int       `json:"gold"`
	IssueCount int       `json:"issueCount"`
	HasError   bool      `json:"hasError"`
	HasWarning bool      `json:"hasWarning"`
}

// BatchResult is the reduction of many runs into comparable statistics.
type BatchResult struct {
	TotalRuns      int          `json:"totalRuns"`
	SuccessfulRuns int          `json:"successfulRuns"` // runs without any warning/error issue
	Runs           []RunSummary `json:"runs"`
	ProblemRuns    []RunSummary `json:"problemRuns,omitempty"`
	Failures       []RunFailure `json:"failures,omitempty"`

	// Metrics keys are "<analyzerName>.<metricName>".
	Metrics map[string]MetricAgg `json:"metrics"`

	Issues      []IssueCount   `json:"issues,omitempty"`
	DeathCauses map[string]int `json:"deathCauses,omitempty"`

	VictoryCount        int `json:"victoryCount"`
	DeathCount          int `json:"deathCount"`
	MaxTurnsCount       int `json:"maxTurnsCount"`
	CircuitBreakerCount int `json:"circuitBreakerCount"`
}

// Aggregate reduces per-run results into batch statistics. It is a pure
// reduction with no ordering dependency: results arrive in scheduler race
// order, so everything here is computed from sorted or commutative forms.
// Missing metric values are excluded from the reduction, never zero-filled.
func Aggregate(results []*DiagnoseResult) *BatchResult {
	br := &BatchResult{
		TotalRuns:   len(results),
		Metrics:     map[string]MetricAgg{},
		DeathCauses: map[string]int{},
	}

	type acc struct {
		min, max, sum float64
		count         int
	}
	accs := map[string]*acc{}
	issueCounts := map[string]*IssueCount{}

	for _, r := range results {
		summary := RunSummary{
			Seed:       r.Seed,
			EndReason:  r.EndReason,
			Turn:       r.Final.Turn,
			Depth:      r.Final.Depth,
			Kills:      r.Final.Kills,
			Gold:       r.Final.Gold,
			IssueCount: len(r.Issues),
			HasError:   r.HasError,
			HasWarning: r.HasWarning,
		}
		br.Runs = append(br.Runs, summary)
		if r.HasError || r.HasWarning {
			br.ProblemRuns = append(br.ProblemRuns, summary)
		} else {
			br.SuccessfulRuns++
		}

		switch r.EndReason {
		case EndVictory:
			br.VictoryCount++
		case EndDeath:
			br.DeathCount++
		case EndMaxTurns:
			br.MaxTurnsCount++
		case EndCircuitBreaker:
			br.CircuitBreakerCount++
		}

		for _, ar := range r.Analyzers {
			if r.EndReason == EndDeath && ar.Analyzer == "combat" {
				if cause, ok := ar.Metrics["death_cause"].(string); ok {
					br.DeathCauses[cause]++
				}
			}
			for name, v := range ar.Metrics {
				f, ok := numeric(v)
				if !ok {
					continue
				}
				key := ar.Analyzer + "." + name
				a := accs[key]
				if a == nil {
					a = &acc{min: f, max: f}
					accs[key] = a
				}
				if f < a.min {
					a.min = f
				}
				if f > a.max {
					a.max = f
				}
				a.sum += f
				a.count++
			}
		}

		for _, issue := range r.Issues {
			ic := issueCounts[issue.Message]
			if ic == nil {
				ic = &IssueCount{Message: issue.Message, Severity: issue.Severity}
				issueCounts[issue.Message] = ic
			}
			ic.Count++
		}
	}

	for key, a := range accs {
		br.Metrics[key] = MetricAgg{
			Min:   a.min,
			Max:   a.max,
			Avg:   a.sum / float64(a.count),
			Count: a.count,
		}
	}

	for _, ic := range issueCounts {
		br.Issues = append(br.Issues, *ic)
	}
	sort.Slice(br.Issues, func(i, j int) bool {
		if br.Issues[i].Count != br.Issues[j].Count {
			return br.Issues[i].Count > br.Issues[j].Count
		}
		return br.Issues[i].Message < br.Issues[j].Message
	})

	// Run lists sort by seed so the output is identical whatever order the
	// scheduler delivered results in.
	sort.Slice(br.Runs, func(i, j int) bool { return br.Runs[i].Seed < br.Runs[j].Seed })
	sort.Slice(br.ProblemRuns, func(i, j int) bool { return br.ProblemRuns[i].Seed < br.ProblemRuns[j].Seed })

	return br
}

// attachFailures folds scheduler-level failures into a reduced batch. A
// failed item counts toward the total but contributes no metrics; the rest
// of the batch reduces untouched.
func attachFailures(br *BatchResult, failures []RunFailure) {
	if len(failures) == 0 {
		return
	}
	sort.Slice(failures, func(i, j int) bool { return failures[i].Seed < failures[j].Seed })
	br.Failures = failures
	br.TotalRuns += len(failures)
}

// numeric coerces the metric value types analyzers are allowed to emit.
// Strings and booleans are reported but not reduced.
func numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	default:
		return 0, false
	}
}
