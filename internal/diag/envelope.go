package diag

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gookit/color"
	"github.com/google/uuid"
)

// Envelope wraps any result payload with enough context to interpret the
// file on its own later: what mode produced it, when, and under which
// invocation id (shared by every artifact of one command).
type Envelope struct {
	Mode       string    `json:"mode"`
	Timestamp  time.Time `json:"timestamp"`
	Invocation string    `json:"invocation"`
	Config     any       `json:"config,omitempty"`
	Result     any       `json:"result"`
}

// NewInvocationID returns the id shared by all artifacts of one command.
func NewInvocationID() string {
	return uuid.NewString()
}

// WriteEnvelope marshals the envelope with indentation and writes it to
// path, creating parent directories as needed.
func WriteEnvelope(path string, env Envelope) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s envelope: %w", env.Mode, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// writeReportPair writes the JSON envelope and its plain-text rendering side
// by side, so every artifact can be read without tooling. ANSI codes are
// stripped from the text half.
func writeReportPair(dir, stem string, env Envelope, text string) (string, error) {
	jsonPath := filepath.Join(dir, stem+".json")
	if err := WriteEnvelope(jsonPath, env); err != nil {
		return "", err
	}
	txtPath := filepath.Join(dir, stem+".txt")
	if err := os.WriteFile(txtPath, []byte(color.ClearCode(text)), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", txtPath, err)
	}
	return jsonPath, nil
}

// artifactStem builds a timestamped base name, so repeated invocations never
// clobber each other.
func artifactStem(mode string, at time.Time) string {
	return fmt.Sprintf("%s-%s", mode, at.Format("20060102-150405"))
}

// SaveRun writes a single run's diagnosis as a json+text report pair.
func SaveRun(dir, mode, invocation string, r *DiagnoseResult) (string, error) {
	at := time.Now()
	return writeReportPair(dir, artifactStem(mode, at), Envelope{
		Mode:       mode,
		Timestamp:  at,
		Invocation: invocation,
		Config:     r.Config,
		Result:     r,
	}, FormatRun(r))
}

// SaveBatch writes one reduced batch as a json+text report pair.
func SaveBatch(dir, mode, invocation string, cfg any, b *BatchResult) (string, error) {
	at := time.Now()
	return writeReportPair(dir, artifactStem(mode, at), Envelope{
		Mode:       mode,
		Timestamp:  at,
		Invocation: invocation,
		Config:     cfg,
		Result:     b,
	}, FormatBatch(b))
}

// SaveMatrix writes the sweep summary under a timestamped folder plus one
// subfolder per cell holding that cell's own batch report pair, so large
// sweeps stay navigable.
func SaveMatrix(dir, invocation string, m *MatrixResult) (string, error) {
	at := time.Now()
	sub := filepath.Join(dir, artifactStem("matrix", at))
	if _, err := writeReportPair(sub, "summary", Envelope{
		Mode:       "matrix",
		Timestamp:  at,
		Invocation: invocation,
		Result:     m,
	}, FormatMatrix(m)); err != nil {
		return "", err
	}
	for i, c := range m.Cells {
		cellDir := filepath.Join(sub, fmt.Sprintf("cell-%03d", i))
		if _, err := writeReportPair(cellDir, "batch", Envelope{
			Mode:       "matrix-cell",
			Timestamp:  at,
			Invocation: invocation,
			Config:     c.Config,
			Result:     c.Batch,
		}, FormatBatch(c.Batch)); err != nil {
			return "", err
		}
	}
	return sub, nil
}
