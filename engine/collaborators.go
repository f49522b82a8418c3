package engine

import (
	"context"

	"github.com/fieldreach/outreach/cadence"
)

// Target is one roster entry: a contact identifier plus any attributes
// loaded alongside it (name, note template variables, and so on).
type Target struct {
	ID    string
	Attrs map[string]string
}

// Classifier decides which sequence category a contact belongs to. An
// error means the contact could not be classified and is skipped for
// this batch.
type Classifier interface {
	Classify(ctx context.Context, target Target) (string, error)
}

// Executor performs one sequence step against a contact. It reports
// whether the action landed and a short status label for the audit log.
// Faults must be absorbed into a false result; the engine treats every
// call as an attempt.
type Executor interface {
	Execute(ctx context.Context, target Target, step cadence.Step) (bool, string)
}
