package contacts

import (
	"context"
	"errors"
)

// ErrNotFound is returned by GetProgress when the contact has no record.
var ErrNotFound = errors.New("contacts: not found")

// Store persists per-contact progress. Implementations must survive
// process restarts and tolerate concurrent processes on the same state
// directory.
type Store interface {
	// Ensure creates an empty progress record for the contact if one
	// does not exist yet, and returns the current record either way.
	Ensure(ctx context.Context, contactID string) (Progress, error)

	// GetProgress returns the record for the contact, or ErrNotFound.
	GetProgress(ctx context.Context, contactID string) (Progress, error)

	// PutProgress writes the record, replacing any previous one.
	PutProgress(ctx context.Context, p Progress) error

	// ListProgress returns all records, ordered by contact ID.
	ListProgress(ctx context.Context) ([]Progress, error)

	// Reset removes all records.
	Reset(ctx context.Context) error
}
