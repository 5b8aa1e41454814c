package diag

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/gookit/color"
	"golang.org/x/term"
)

// reasonColor maps an end reason to its display style.
func reasonColor(r EndReason) color.Color {
	switch r {
	case EndVictory:
		return color.Green
	case EndDeath:
		return color.Red
	case EndCircuitBreaker:
		return color.Magenta
	default:
		return color.Yellow
	}
}

func severityColor(sev string) color.Color {
	if sev == SeverityError {
		return color.Red
	}
	return color.Yellow
}

// FormatRun renders one run's diagnosis as a multi-line report.
func FormatRun(r *DiagnoseResult) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "=== Run Report (seed=%d, %s) ===\n", r.Seed, r.Config.Label())
	fmt.Fprintf(&sb, "  end=%s  turns=%d  depth=%d  level=%d  hp=%d/%d  kills=%d  gold=%d\n",
		reasonColor(r.EndReason).Sprint(r.EndReason),
		r.Final.Turn, r.Final.Depth, r.Final.Level,
		r.Final.HP, r.Final.MaxHP, r.Final.Kills, r.Final.Gold)

	for _, ar := range r.Analyzers {
		fmt.Fprintf(&sb, "\n--- %s ---\n", ar.Analyzer)
		keys := make([]string, 0, len(ar.Metrics))
		for k := range ar.Metrics {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&sb, "  %-24s %v\n", k, ar.Metrics[k])
		}
		for _, is := range ar.Issues {
			fmt.Fprintf(&sb, "  %s [T=%d] %s\n",
				severityColor(is.Severity).Sprint(strings.ToUpper(is.Severity)), is.Turn, is.Message)
			ckeys := make([]string, 0, len(is.Context))
			for k := range is.Context {
				ckeys = append(ckeys, k)
			}
			sort.Strings(ckeys)
			for _, k := range ckeys {
				fmt.Fprintf(&sb, "      %s=%s\n", k, is.Context[k])
			}
		}
		for _, d := range ar.Details {
			fmt.Fprintf(&sb, "  . %s\n", d)
		}
	}
	return sb.String()
}

// FormatBatch renders a reduced batch as a multi-line report.
func FormatBatch(b *BatchResult) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "=== Batch Report (%d runs, %d ok) ===\n", b.TotalRuns, b.SuccessfulRuns)

	sb.WriteString("\n--- Outcomes ---\n")
	fmt.Fprintf(&sb, "  victory=%s  death=%s  max_turns=%d  circuit_breaker=%s\n",
		color.Green.Sprint(b.VictoryCount),
		color.Red.Sprint(b.DeathCount),
		b.MaxTurnsCount,
		color.Magenta.Sprint(b.CircuitBreakerCount))

	if len(b.DeathCauses) > 0 {
		sb.WriteString("\n--- Death Causes ---\n")
		causes := make([]string, 0, len(b.DeathCauses))
		for c := range b.DeathCauses {
			causes = append(causes, c)
		}
		sort.Slice(causes, func(i, j int) bool {
			if b.DeathCauses[causes[i]] != b.DeathCauses[causes[j]] {
				return b.DeathCauses[causes[i]] > b.DeathCauses[causes[j]]
			}
			return causes[i] < causes[j]
		})
		for _, c := range causes {
			fmt.Fprintf(&sb, "  %-24s %d\n", c, b.DeathCauses[c])
		}
	}

	sb.WriteString("\n--- Metrics (min / avg / max over runs reporting) ---\n")
	mkeys := make([]string, 0, len(b.Metrics))
	for k := range b.Metrics {
		mkeys = append(mkeys, k)
	}
	sort.Strings(mkeys)
	for _, k := range mkeys {
		m := b.Metrics[k]
		fmt.Fprintf(&sb, "  %-36s %8.1f / %8.1f / %8.1f  (n=%d)\n", k, m.Min, m.Avg, m.Max, m.Count)
	}

	if len(b.Issues) > 0 {
		sb.WriteString("\n--- Issue Frequency ---\n")
		for _, ic := range b.Issues {
			fmt.Fprintf(&sb, "  %4dx %s %s\n", ic.Count,
				severityColor(ic.Severity).Sprint(strings.ToUpper(ic.Severity)), ic.Message)
		}
	}

	if len(b.ProblemRuns) > 0 {
		sb.WriteString("\n--- Problem Runs ---\n")
		for _, rs := range b.ProblemRuns {
			fmt.Fprintf(&sb, "  seed=%-8d end=%-15s turns=%-5d depth=%d issues=%d\n",
				rs.Seed, rs.EndReason, rs.Turn, rs.Depth, rs.IssueCount)
		}
	}

	if len(b.Failures) > 0 {
		sb.WriteString("\n--- Failed Runs (no result produced) ---\n")
		for _, f := range b.Failures {
			fmt.Fprintf(&sb, "  seed=%-8d %s\n", f.Seed, color.Red.Sprint(f.Error))
		}
	}
	return sb.String()
}

// FormatMatrix renders a sweep as one summary line per cell plus the
// stand-out issue totals.
func FormatMatrix(m *MatrixResult) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "=== Matrix Report (%d cells x %d runs) ===\n\n", len(m.Cells), m.RunsPerCell)
	fmt.Fprintf(&sb, "  %-32s %8s %8s %8s %8s %10s\n",
		"cell", "victory", "death", "maxturn", "breaker", "avg depth")
	for _, c := range m.Cells {
		depth := c.Batch.Metrics["progression.final_depth"]
		fmt.Fprintf(&sb, "  %-32s %8d %8d %8d %8d %10.2f\n",
			c.Label, c.Batch.VictoryCount, c.Batch.DeathCount,
			c.Batch.MaxTurnsCount, c.Batch.CircuitBreakerCount, depth.Avg)
	}

	sb.WriteString("\n--- Cells With Errors ---\n")
	flagged := 0
	for _, c := range m.Cells {
		for _, ic := range c.Batch.Issues {
			if ic.Severity == SeverityError {
				fmt.Fprintf(&sb, "  %-32s %4dx %s\n", c.Label, ic.Count, ic.Message)
				flagged++
			}
		}
	}
	if flagged == 0 {
		sb.WriteString("  none\n")
	}
	return sb.String()
}

// FormatCellDone is the one-line completion notice printed the moment a
// matrix cell's batch closes.
func FormatCellDone(c *MatrixCell, done, total int) string {
	b := c.Batch
	line := fmt.Sprintf("cell %d/%d %-32s victory=%d death=%d maxturn=%d breaker=%d",
		done, total, c.Label, b.VictoryCount, b.DeathCount, b.MaxTurnsCount, b.CircuitBreakerCount)
	if len(b.Failures) > 0 {
		line += fmt.Sprintf(" failed=%d", len(b.Failures))
	}
	return line
}

// progressInterval throttles progress lines so long batches do not flood
// the terminal.
const progressInterval = 250 * time.Millisecond

// ProgressPrinter writes in-place progress lines when stdout is a tty and
// stays silent otherwise. Final counts are always printed.
type ProgressPrinter struct {
	label string
	tty   bool
	last  time.Time
}

func NewProgressPrinter(label string) *ProgressPrinter {
	return &ProgressPrinter{
		label: label,
		tty:   term.IsTerminal(int(os.Stdout.Fd())),
	}
}

// Clear erases the in-place progress line so a full output line can be
// printed without the counter bleeding into it.
func (pp *ProgressPrinter) Clear() {
	if !pp.tty {
		return
	}
	fmt.Print("\r\x1b[2K")
}

// Update reports done/total. Intermediate updates are rate-limited; the
// final update always lands and terminates the line.
func (pp *ProgressPrinter) Update(done, total int) {
	if !pp.tty {
		return
	}
	now := time.Now()
	if done < total && now.Sub(pp.last) < progressInterval {
		return
	}
	pp.last = now
	fmt.Printf("\r%s %d/%d", pp.label, done, total)
	if done >= total {
		fmt.Println()
	}
}
