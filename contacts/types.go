// Package contacts tracks per-contact sequence progress for the cadence
// engine: which category a contact was classified into, which step of the
// sequence it sits at, and when the last step completed.
package contacts

import "time"

// Built-in categories. A policy may define sequences for any category
// string; these two are the ones the default classifier emits.
const (
	CategoryNew                = "new"
	CategoryExistingConnection = "existing_connection"
)

// Outcome labels a dispatch attempt in the history log.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// HistoryEntry records one dispatch attempt against a contact.
type HistoryEntry struct {
	StepID    string    `json:"step_id"`
	Category  string    `json:"category"`
	Timestamp time.Time `json:"timestamp"`
	Outcome   Outcome   `json:"outcome"`
}

// Progress is the durable per-contact state. CurrentStep is an index into
// the steps of the sequence for Category; it only moves forward, and only
// on a successful dispatch.
type Progress struct {
	ContactID       string         `json:"contact_id"`
	Category        string         `json:"category,omitempty"`
	CurrentStep     int            `json:"current_step"`
	LastCompletedAt *time.Time     `json:"last_completed_at,omitempty"`
	History         []HistoryEntry `json:"history,omitempty"`
}

// Classified reports whether the contact has been assigned a category.
func (p Progress) Classified() bool {
	return p.Category != ""
}
