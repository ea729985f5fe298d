package reasoner

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Disposition classifies what happened to a single reasoner call.
const (
	DispositionAccepted        = "accepted"
	DispositionRejected        = "rejected"
	DispositionError           = "error"
	DispositionBudgetExhausted = "budget_exhausted"
)

// AuditRecord is one line of the append-only JSONL audit trail. Previews
// are truncated so the trail stays reviewable; the run log carries the
// full prompts and responses.
type AuditRecord struct {
	Timestamp        string `json:"timestamp"`
	RunID            string `json:"run_id"`
	File             string `json:"file"`
	Hunk             int    `json:"hunk"`
	Provider         string `json:"provider"`
	Model            string `json:"model"`
	Disposition      string `json:"disposition"`
	Reason           string `json:"reason,omitempty"`
	OursPreview      string `json:"ours_preview,omitempty"`
	TheirsPreview    string `json:"theirs_preview,omitempty"`
	CandidatePreview string `json:"candidate_preview,omitempty"`
	DurationMs       int64  `json:"duration_ms"`
}

// AuditLog appends reasoner call records to a JSONL file. A write failure
// is reported but never blocks resolution.
type AuditLog struct {
	path  string
	runID string
	mutex sync.Mutex
}

// NewAuditLog creates the audit log directory if needed and returns a
// logger that appends to path.
func NewAuditLog(path, runID string) (*AuditLog, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create audit log directory: %w", err)
		}
	}
	return &AuditLog{path: path, runID: runID}, nil
}

// Append writes one record. The file is opened per call so the trail
// survives crashes mid-run.
func (a *AuditLog) Append(rec AuditRecord) error {
	if a == nil {
		return nil
	}

	rec.Timestamp = time.Now().UTC().Format(time.RFC3339)
	rec.RunID = a.runID

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal audit record: %w", err)
	}

	a.mutex.Lock()
	defer a.mutex.Unlock()

	f, err := os.OpenFile(a.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open audit log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to append audit record: %w", err)
	}
	return nil
}

// Preview condenses a block to at most 5 lines and 200 characters for the
// audit trail.
func Preview(lines []string) string {
	if len(lines) > 5 {
		lines = append(append([]string{}, lines[:5]...), "...")
	}
	joined := strings.Join(lines, "\n")
	if len(joined) > 200 {
		joined = joined[:200] + "..."
	}
	return joined
}
