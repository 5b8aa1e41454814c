package diag

import (
	"strings"
	"testing"
)

func TestFormatBatchListsFailedRuns(t *testing.T) {
	br := Aggregate([]*DiagnoseResult{synthResult(1, EndVictory, nil, nil)})
	attachFailures(br, []RunFailure{{Seed: 9, Error: "run seed=9 panicked: boom"}})

	text := FormatBatch(br)
	if !strings.Contains(text, "--- Failed Runs") {
		t.Fatalf("report lacks the failed runs section:\n%s", text)
	}
	if !strings.Contains(text, "seed=9") || !strings.Contains(text, "panicked: boom") {
		t.Fatalf("failed run entry missing seed or error:\n%s", text)
	}
}

func TestFormatCellDoneNamesLabelAndOutcomes(t *testing.T) {
	cell := &MatrixCell{
		Label: "mage/elf",
		Batch: Aggregate([]*DiagnoseResult{
			synthResult(1, EndVictory, nil, nil),
			synthResult(2, EndDeath, nil, nil),
		}),
	}
	line := FormatCellDone(cell, 3, 6)
	for _, want := range []string{"cell 3/6", "mage/elf", "victory=1", "death=1"} {
		if !strings.Contains(line, want) {
			t.Fatalf("completion line %q missing %q", line, want)
		}
	}
	if strings.Contains(line, "failed=") {
		t.Fatalf("completion line %q reports failures for a clean cell", line)
	}

	attachFailures(cell.Batch, []RunFailure{{Seed: 5, Error: "boom"}})
	if line := FormatCellDone(cell, 3, 6); !strings.Contains(line, "failed=1") {
		t.Fatalf("completion line %q missing failure count", line)
	}
}
