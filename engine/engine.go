// Package engine runs outreach batches: it walks a roster, asks the
// contacts service which step each contact is due for, and dispatches
// through the executor while the cadence limiter allows it.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/fieldreach/outreach/cadence"
	"github.com/fieldreach/outreach/contacts"
)

// ErrPersistence marks a failed state write. A batch aborts on it because
// continuing would desynchronize counters and progress from what was sent.
var ErrPersistence = errors.New("engine: state persistence failed")

// Stop reasons reported in a batch summary.
const (
	StopBatchComplete = "batch complete"
	StopNoPending     = "no pending actions"
	StopCanceled      = "canceled"
)

const defaultPollInterval = 5 * time.Minute

// Options configures an Engine. Policy, Limiter, Contacts and Executor
// are required; the rest have working defaults.
type Options struct {
	Policy     *cadence.Policy
	Limiter    *cadence.Limiter
	Contacts   *contacts.Service
	Classifier Classifier
	Executor   Executor
	Logger     *slog.Logger
	Audit      *AuditLog

	// PollInterval bounds how long watch mode sleeps between cycles.
	PollInterval time.Duration

	// Now overrides the clock, for tests.
	Now func() time.Time
}

type Engine struct {
	policy       *cadence.Policy
	limiter      *cadence.Limiter
	contacts     *contacts.Service
	classifier   Classifier
	executor     Executor
	logger       *slog.Logger
	audit        *AuditLog
	pollInterval time.Duration
	now          func() time.Time
	sleep        func(context.Context, time.Duration) error
}

func New(opts Options) *Engine {
	e := &Engine{
		policy:       opts.Policy,
		limiter:      opts.Limiter,
		contacts:     opts.Contacts,
		classifier:   opts.Classifier,
		executor:     opts.Executor,
		logger:       opts.Logger,
		audit:        opts.Audit,
		pollInterval: opts.PollInterval,
		now:          opts.Now,
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.pollInterval <= 0 {
		e.pollInterval = defaultPollInterval
	}
	if e.now == nil {
		e.now = time.Now
	}
	e.sleep = sleepCtx
	return e
}

// Summary describes one batch run.
type Summary struct {
	BatchID    string    `json:"batch_id"`
	StartedAt  time.Time `json:"started_at"`
	EndedAt    time.Time `json:"ended_at"`
	Pending    int       `json:"pending"`
	Attempted  int       `json:"attempted"`
	Succeeded  int       `json:"succeeded"`
	StopReason string    `json:"stop_reason"`
}

// pendingItem is one entry of a batch's work list. A nil step means the
// contact is unclassified and must be classified, then retried once, at
// dispatch time.
type pendingItem struct {
	target   Target
	step     *cadence.Step
	category string
}

// RunBatch collects contacts with a due step (or awaiting classification)
// and dispatches them in order until the limiter stops the batch or the
// pending list is exhausted. Cancellation ends the batch cleanly with
// StopCanceled; persistence errors abort it.
func (e *Engine) RunBatch(ctx context.Context, targets []Target) (*Summary, error) {
	summary := &Summary{
		BatchID:   uuid.NewString(),
		StartedAt: e.now().UTC(),
	}
	defer func() { summary.EndedAt = e.now().UTC() }()

	ok, reason, err := e.limiter.CanSend(ctx, e.now())
	if err != nil {
		return summary, err
	}
	if !ok {
		summary.StopReason = reason
		e.logSummary(summary)
		return summary, nil
	}

	pending, err := e.collectPending(ctx, targets)
	if err != nil {
		if ctx.Err() != nil {
			summary.StopReason = StopCanceled
			e.logSummary(summary)
			return summary, nil
		}
		return summary, err
	}
	summary.Pending = len(pending)
	if len(pending) == 0 {
		summary.StopReason = StopNoPending
		e.logSummary(summary)
		return summary, nil
	}

	for i, item := range pending {
		now := e.now()
		ok, reason, err := e.limiter.CanSend(ctx, now)
		if err != nil {
			return summary, err
		}
		if !ok {
			summary.StopReason = reason
			break
		}

		if item.step == nil {
			step, category, err := e.classifyAndResolve(ctx, item.target, now)
			if err != nil {
				return summary, err
			}
			if step == nil {
				continue
			}
			item.step = step
			item.category = category
		}

		success, label := e.executor.Execute(ctx, item.target, *item.step)
		if err := e.contacts.RecordCompletion(ctx, item.target.ID, item.step.ID, item.category, success, now); err != nil {
			return summary, fmt.Errorf("%w: progress for %s: %v", ErrPersistence, item.target.ID, err)
		}
		if err := e.limiter.RecordSent(ctx, now, success); err != nil {
			return summary, fmt.Errorf("%w: counters: %v", ErrPersistence, err)
		}
		e.audit.Record(summary.BatchID, item.target, *item.step, item.category, success, label, now)

		summary.Attempted++
		if success {
			summary.Succeeded++
		}
		e.logger.Info("dispatched step",
			"contact_id", item.target.ID,
			"step_id", item.step.ID,
			"action", string(item.step.Action),
			"success", success,
			"status", label,
		)

		if i < len(pending)-1 {
			if err := e.sleep(ctx, e.limiter.PacingInterval()); err != nil {
				summary.StopReason = StopCanceled
				e.logSummary(summary)
				return summary, nil
			}
		}
	}

	if summary.StopReason == "" {
		summary.StopReason = StopBatchComplete
	}
	e.logSummary(summary)
	return summary, nil
}

// collectPending builds the batch work list: contacts with a due step,
// plus unclassified contacts as placeholders to resolve at dispatch time.
func (e *Engine) collectPending(ctx context.Context, targets []Target) ([]pendingItem, error) {
	now := e.now()
	var pending []pendingItem
	for _, target := range targets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		progress, err := e.contacts.ProgressFor(ctx, target.ID)
		if err != nil {
			return nil, err
		}
		if !progress.Classified() {
			pending = append(pending, pendingItem{target: target})
			continue
		}
		step, category, err := e.contacts.NextEligibleStep(ctx, target.ID, now)
		if err != nil {
			return nil, err
		}
		if step == nil {
			continue
		}
		pending = append(pending, pendingItem{target: target, step: step, category: category})
	}
	return pending, nil
}

// classifyAndResolve runs the classification collaborator once for the
// contact and looks up its due step. A classification fault leaves the
// category unset and skips the contact for this batch; a nil step with
// nil error means there is nothing to dispatch yet.
func (e *Engine) classifyAndResolve(ctx context.Context, target Target, now time.Time) (*cadence.Step, string, error) {
	if e.classifier == nil {
		e.logger.Warn("no classifier configured, skipping unclassified contact", "contact_id", target.ID)
		return nil, "", nil
	}
	category, err := e.classifier.Classify(ctx, target)
	if err != nil {
		e.logger.Warn("classification failed, skipping contact", "contact_id", target.ID, "error", err)
		return nil, "", nil
	}
	if err := e.contacts.Classify(ctx, target.ID, category); err != nil {
		return nil, "", fmt.Errorf("%w: classify %s: %v", ErrPersistence, target.ID, err)
	}
	return e.contacts.NextEligibleStep(ctx, target.ID, now)
}

// TargetSource supplies the roster for each watch cycle, so edits to the
// roster file are picked up without a restart.
type TargetSource func(ctx context.Context) ([]Target, error)

// RunContinuous runs batches in a loop until the context is canceled.
// Between batches it sleeps for the poll interval, or less when the next
// send window opens sooner.
func (e *Engine) RunContinuous(ctx context.Context, source TargetSource) error {
	for {
		targets, err := source(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		summary, err := e.RunBatch(ctx, targets)
		if err != nil {
			return err
		}
		if summary.StopReason == StopCanceled || ctx.Err() != nil {
			return nil
		}

		wait := e.pollInterval
		now := e.now()
		if inside, _ := e.policy.WithinWindow(now); !inside {
			if next := e.policy.NextWindowStart(now); !next.IsZero() {
				if until := next.Sub(now); until > 0 && until < wait {
					wait = until
				}
			}
		}
		e.logger.Debug("watch cycle complete", "stop_reason", summary.StopReason, "next_cycle_in", wait)
		if err := e.sleep(ctx, wait); err != nil {
			return nil
		}
	}
}

// StatusReport is a point-in-time view of the cadence state.
type StatusReport struct {
	Now             time.Time  `json:"now"`
	Eligible        bool       `json:"eligible"`
	Reason          string     `json:"reason"`
	WithinWindow    bool       `json:"within_window"`
	WindowReason    string     `json:"window_reason"`
	NextWindowStart *time.Time `json:"next_window_start,omitempty"`
	SentToday       int        `json:"sent_today"`
	SentThisHour    int        `json:"sent_this_hour"`
	MaxPerDay       int        `json:"max_per_day"`
	MaxPerHour      int        `json:"max_per_hour"`
	LastActionAt    *time.Time `json:"last_action_at,omitempty"`

	// Tracked contacts grouped by category, from stored progress.
	ByCategory map[string]int `json:"by_category,omitempty"`
}

// Status reports whether a send would be allowed right now and why,
// along with counter levels. NextWindowStart is set only when the
// current time falls outside every window.
func (e *Engine) Status(ctx context.Context) (*StatusReport, error) {
	now := e.now()
	counters, err := e.limiter.Snapshot(ctx, now)
	if err != nil {
		return nil, err
	}
	eligible, reason, err := e.limiter.CanSend(ctx, now)
	if err != nil {
		return nil, err
	}
	inside, windowReason := e.policy.WithinWindow(now)
	report := &StatusReport{
		Now:          now,
		Eligible:     eligible,
		Reason:       reason,
		WithinWindow: inside,
		WindowReason: windowReason,
		SentToday:    counters.SentToday,
		SentThisHour: counters.SentThisHour,
		MaxPerDay:    e.policy.MaxPerDay,
		MaxPerHour:   e.policy.MaxPerHour,
		LastActionAt: counters.LastActionAt,
	}
	if !inside {
		if next := e.policy.NextWindowStart(now); !next.IsZero() {
			report.NextWindowStart = &next
		}
	}

	records, err := e.contacts.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, rec := range records {
		category := rec.Category
		if category == "" {
			category = "unclassified"
		}
		if report.ByCategory == nil {
			report.ByCategory = map[string]int{}
		}
		report.ByCategory[category]++
	}
	return report, nil
}

// Reset clears throughput counters and all contact progress.
func (e *Engine) Reset(ctx context.Context) error {
	if err := e.limiter.Reset(ctx); err != nil {
		return err
	}
	return e.contacts.Reset(ctx)
}

func (e *Engine) logSummary(s *Summary) {
	e.logger.Info("batch finished",
		"batch_id", s.BatchID,
		"pending", s.Pending,
		"attempted", s.Attempted,
		"succeeded", s.Succeeded,
		"stop_reason", s.StopReason,
	)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
