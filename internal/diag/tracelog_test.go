package diag

import (
	"strings"
	"testing"
)

func sampleTrace() *TraceLog {
	tl := NewTraceLog()
	tl.Add(1, "goal", "change", "none → explore")
	tl.Add(4, "door", "open", "(12,5)")
	tl.Add(9, "combat", "hit", "goblin-1 for 6")
	tl.Add(9, "combat", "kill", "goblin-1")
	tl.Add(12, "level", "descend", "depth 2")
	tl.Add(15, "combat", "hit", "rat-2 for 4")
	return tl
}

func TestTraceLogFilter(t *testing.T) {
	tl := sampleTrace()

	if got := len(tl.Filter("combat", "")); got != 3 {
		t.Fatalf("combat entries = %d, want 3", got)
	}
	if got := len(tl.Filter("combat", "kill")); got != 1 {
		t.Fatalf("combat kills = %d, want 1", got)
	}
	if got := len(tl.Filter("", "hit")); got != 2 {
		t.Fatalf("hits across categories = %d, want 2", got)
	}
	if got := len(tl.Filter("", "")); got != 6 {
		t.Fatalf("unfiltered = %d, want all 6", got)
	}
	if tl.Count("level", "descend") != 1 {
		t.Fatal("descend count wrong")
	}
}

func TestTraceLogFirstTurn(t *testing.T) {
	tl := sampleTrace()
	if got := tl.FirstTurn("combat", "hit", "rat"); got != 15 {
		t.Fatalf("first rat hit at turn %d, want 15", got)
	}
	if got := tl.FirstTurn("combat", "hit", ""); got != 9 {
		t.Fatalf("first hit at turn %d, want 9", got)
	}
	if got := tl.FirstTurn("combat", "flee", ""); got != -1 {
		t.Fatalf("missing key returned %d, want -1", got)
	}
}

func TestTraceLogFormat(t *testing.T) {
	tl := sampleTrace()
	out := tl.Format()
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 6 {
		t.Fatalf("formatted %d lines, want 6", len(lines))
	}
	if !strings.HasPrefix(lines[0], "[T=0001]") {
		t.Fatalf("line 0 = %q, want zero-padded turn prefix", lines[0])
	}
	if !strings.Contains(lines[2], "goblin-1 for 6") {
		t.Fatalf("line 2 = %q, detail lost", lines[2])
	}
}
