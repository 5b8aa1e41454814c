package diag

import (
	"fmt"
	"strings"
)

// TraceEntry is one recorded event during a traced run.
type TraceEntry struct {
	Turn     int
	Category string // move, door, combat, loot, level, goal
	Key      string
	Value    string
}

// String formats the entry as a fixed-width log line.
//
//	[T=042] combat   hit   goblin-1 for 6
func (e TraceEntry) String() string {
	return fmt.Sprintf("[T=%04d] %-8s %-14s %s", e.Turn, e.Category, e.Key, e.Value)
}

// TraceLog collects structured events during a single traced run. It is
// unbounded and machine-readable; deep mode prints it, tests filter it.
type TraceLog struct {
	entries []TraceEntry
}

// NewTraceLog creates an empty trace log.
func NewTraceLog() *TraceLog { return &TraceLog{} }

// Add records a new entry.
func (tl *TraceLog) Add(turn int, category, key, value string) {
	tl.entries = append(tl.entries, TraceEntry{Turn: turn, Category: category, Key: key, Value: value})
}

// Entries returns all recorded entries.
func (tl *TraceLog) Entries() []TraceEntry { return tl.entries }

// Filter returns entries matching the given category and/or key. Pass empty
// string to match any value for that field.
func (tl *TraceLog) Filter(category, key string) []TraceEntry {
	var out []TraceEntry
	for _, e := range tl.entries {
		if category != "" && e.Category != category {
			continue
		}
		if key != "" && e.Key != key {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Count returns how many entries match the given category and key.
func (tl *TraceLog) Count(category, key string) int {
	return len(tl.Filter(category, key))
}

// FirstTurn returns the turn of the first entry matching category+key whose
// value contains the substring, or -1 if none.
func (tl *TraceLog) FirstTurn(category, key, contains string) int {
	for _, e := range tl.entries {
		if e.Category != category || e.Key != key {
			continue
		}
		if contains == "" || strings.Contains(e.Value, contains) {
			return e.Turn
		}
	}
	return -1
}

// Format returns the full log as a single string.
func (tl *TraceLog) Format() string {
	var sb strings.Builder
	for _, e := range tl.entries {
		sb.WriteString(e.String())
		sb.WriteByte('\n')
	}
	return sb.String()
}
