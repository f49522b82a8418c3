package contacts

import (
	"context"
	"errors"
	"time"

	"github.com/fieldreach/outreach/cadence"
)

// Service applies sequence rules on top of a Store. It decides which step,
// if any, a contact is eligible for, and records dispatch outcomes.
type Service struct {
	store     Store
	sequences map[string]cadence.Sequence
}

// NewService wires the store to the sequences of a validated policy.
func NewService(store Store, sequences map[string]cadence.Sequence) *Service {
	return &Service{store: store, sequences: sequences}
}

// ProgressFor returns the stored record for the contact, or a fresh zero
// record when none exists. First access does not persist anything.
func (s *Service) ProgressFor(ctx context.Context, contactID string) (Progress, error) {
	p, err := s.store.GetProgress(ctx, contactID)
	if errors.Is(err, ErrNotFound) {
		return Progress{ContactID: contactID}, nil
	}
	return p, err
}

// Classify assigns the category to the contact. Once a category is set it
// never changes; later calls with a different category are ignored.
func (s *Service) Classify(ctx context.Context, contactID, category string) error {
	p, err := s.store.Ensure(ctx, contactID)
	if err != nil {
		return err
	}
	if p.Classified() {
		return nil
	}
	p.Category = category
	return s.store.PutProgress(ctx, p)
}

// NextEligibleStep returns the step the contact is due for at now, along
// with the contact's category. A nil step means nothing is due: the
// contact is unclassified, its sequence is finished or undefined, or the
// wait period since the last completed step has not elapsed.
func (s *Service) NextEligibleStep(ctx context.Context, contactID string, now time.Time) (*cadence.Step, string, error) {
	p, err := s.ProgressFor(ctx, contactID)
	if err != nil {
		return nil, "", err
	}
	if !p.Classified() {
		return nil, "", nil
	}
	seq, ok := s.sequences[p.Category]
	if !ok || len(seq.Steps) == 0 {
		return nil, p.Category, nil
	}
	if !seq.Enabled {
		// Disabled sequences repeat their first step indefinitely.
		step := seq.Steps[0]
		return &step, p.Category, nil
	}
	if p.CurrentStep >= len(seq.Steps) {
		return nil, p.Category, nil
	}
	step := seq.Steps[p.CurrentStep]
	if step.WaitDays > 0 && p.LastCompletedAt != nil {
		if wholeDaysBetween(*p.LastCompletedAt, now) < step.WaitDays {
			return nil, p.Category, nil
		}
	}
	return &step, p.Category, nil
}

// RecordCompletion appends the dispatch outcome to history and, on
// success, advances the contact to the next step.
func (s *Service) RecordCompletion(ctx context.Context, contactID, stepID, category string, success bool, now time.Time) error {
	p, err := s.store.Ensure(ctx, contactID)
	if err != nil {
		return err
	}
	if !p.Classified() {
		p.Category = category
	}
	outcome := OutcomeFailure
	if success {
		outcome = OutcomeSuccess
	}
	p.History = append(p.History, HistoryEntry{
		StepID:    stepID,
		Category:  p.Category,
		Timestamp: now.UTC(),
		Outcome:   outcome,
	})
	if success {
		p.CurrentStep++
		ts := now.UTC()
		p.LastCompletedAt = &ts
	}
	return s.store.PutProgress(ctx, p)
}

// Reset discards all stored progress.
func (s *Service) Reset(ctx context.Context) error {
	return s.store.Reset(ctx)
}

// List returns every stored progress record.
func (s *Service) List(ctx context.Context) ([]Progress, error) {
	return s.store.ListProgress(ctx)
}

// wholeDaysBetween counts full 24 hour periods between from and to.
func wholeDaysBetween(from, to time.Time) int {
	if to.Before(from) {
		return 0
	}
	return int(to.Sub(from) / (24 * time.Hour))
}
