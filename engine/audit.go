package engine

import (
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/fieldreach/outreach/cadence"
	"github.com/fieldreach/outreach/internal/fsstore"
)

// DispatchRecord is one line of the dispatch audit log.
type DispatchRecord struct {
	EventID     string    `json:"event_id"`
	BatchID     string    `json:"batch_id"`
	ContactID   string    `json:"contact_id"`
	StepID      string    `json:"step_id"`
	Action      string    `json:"action"`
	Category    string    `json:"category"`
	Success     bool      `json:"success"`
	StatusLabel string    `json:"status_label,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// AuditLog appends dispatch records to a JSONL file. Append failures are
// logged and swallowed; auditing never blocks the batch.
type AuditLog struct {
	writer *fsstore.JSONLWriter
	logger *slog.Logger
}

// NewAuditLog opens an audit log in dir. A nil *AuditLog is valid and
// records nothing.
func NewAuditLog(dir string, logger *slog.Logger) (*AuditLog, error) {
	w, err := fsstore.NewJSONLWriter(filepath.Join(dir, "dispatches.jsonl"), fsstore.JSONLOptions{})
	if err != nil {
		return nil, err
	}
	return &AuditLog{writer: w, logger: logger}, nil
}

// Record writes one dispatch entry, assigning it a fresh event ID.
func (a *AuditLog) Record(batchID string, target Target, step cadence.Step, category string, success bool, statusLabel string, at time.Time) {
	if a == nil || a.writer == nil {
		return
	}
	rec := DispatchRecord{
		EventID:     uuid.NewString(),
		BatchID:     batchID,
		ContactID:   target.ID,
		StepID:      step.ID,
		Action:      string(step.Action),
		Category:    category,
		Success:     success,
		StatusLabel: statusLabel,
		Timestamp:   at.UTC(),
	}
	if err := a.writer.AppendJSON(rec); err != nil && a.logger != nil {
		a.logger.Warn("audit append failed", "error", err, "contact_id", target.ID)
	}
}

// Close flushes and closes the underlying file.
func (a *AuditLog) Close() error {
	if a == nil || a.writer == nil {
		return nil
	}
	return a.writer.Close()
}
