package cadence

import (
	"context"
	"fmt"
	"math/rand"
	"path/filepath"
	"sync"
	"time"

	"github.com/fieldreach/outreach/internal/fsstore"
)

const countersFileVersion = 1

// Counters is the persisted throughput state. Date and Hour are the reset
// markers, kept in the policy timezone so the quota rolls over at the
// operator's midnight, not UTC's.
type Counters struct {
	Date         string     `json:"date,omitempty"`
	Hour         int        `json:"hour"`
	SentToday    int        `json:"sent_today"`
	SentThisHour int        `json:"sent_this_hour"`
	LastActionAt *time.Time `json:"last_action_at,omitempty"`
}

type countersFile struct {
	Version  int      `json:"version"`
	Counters Counters `json:"counters"`
}

// Limiter enforces the daily and hourly caps and the availability windows.
// Every operation re-reads the counters from disk and holds the file lock
// across its whole read-modify-write cycle, so processes sharing a state
// directory never lose each other's increments.
type Limiter struct {
	policy *Policy
	root   string

	mu    sync.Mutex
	state Counters
}

func NewLimiter(policy *Policy, root string) *Limiter {
	return &Limiter{policy: policy, root: filepath.Clean(root)}
}

// CanSend reports whether a dispatch may happen at now. Counters are
// normalized for now before the comparison, so a query immediately after
// midnight sees the fresh quota. All three gates must pass: daily cap,
// hourly cap, and the time window.
func (l *Limiter) CanSend(ctx context.Context, now time.Time) (bool, string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.refreshLocked(ctx, now, nil); err != nil {
		return false, "", err
	}
	if l.state.SentToday >= l.policy.MaxPerDay {
		return false, fmt.Sprintf("daily limit reached (%d)", l.policy.MaxPerDay), nil
	}
	if l.state.SentThisHour >= l.policy.MaxPerHour {
		return false, fmt.Sprintf("hourly limit reached (%d)", l.policy.MaxPerHour), nil
	}
	ok, reason := l.policy.WithinWindow(now)
	return ok, reason, nil
}

// RecordSent counts a dispatched action. Only successes consume quota; the
// last-action timestamp is updated either way. State is persisted before
// returning.
func (l *Limiter) RecordSent(ctx context.Context, now time.Time, success bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.refreshLocked(ctx, now, func(c *Counters) {
		if success {
			c.SentToday++
			c.SentThisHour++
		}
		ts := now.UTC()
		c.LastActionAt = &ts
	})
}

// PacingInterval draws a whole-second delay uniformly from the configured
// bounds, inclusive on both ends. This is the mandatory sleep between
// dispatches, not a retry backoff.
func (l *Limiter) PacingInterval() time.Duration {
	min := l.policy.MinIntervalSeconds
	max := l.policy.MaxIntervalSeconds
	if max <= min {
		return time.Duration(min) * time.Second
	}
	seconds := int64(min) + rand.Int63n(int64(max-min)+1)
	return time.Duration(seconds) * time.Second
}

// Snapshot returns a copy of the counters normalized for now.
func (l *Limiter) Snapshot(ctx context.Context, now time.Time) (Counters, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.refreshLocked(ctx, now, nil); err != nil {
		return Counters{}, err
	}
	return l.state, nil
}

// Reset clears the counters to their initial values and persists the result.
func (l *Limiter) Reset(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	lockPath, err := l.lockPath()
	if err != nil {
		return err
	}
	return fsstore.WithLock(ctx, lockPath, func() error {
		l.state = Counters{}
		return l.writeLocked()
	})
}

// refreshLocked runs one read-modify-write cycle under the file lock:
// reload the counters from disk, apply the day/hour rollovers for now,
// then mutate, persisting when anything changed.
func (l *Limiter) refreshLocked(ctx context.Context, now time.Time, mutate func(*Counters)) error {
	lockPath, err := l.lockPath()
	if err != nil {
		return err
	}
	return fsstore.WithLock(ctx, lockPath, func() error {
		if err := l.readLocked(); err != nil {
			return err
		}
		changed := l.normalizeStateLocked(now)
		if mutate != nil {
			mutate(&l.state)
			changed = true
		}
		if !changed {
			return nil
		}
		return l.writeLocked()
	})
}

// normalizeStateLocked applies the reset rules and reports whether anything
// changed. Resets are monotonic: markers only move when time moved forward
// relative to them, never backward.
func (l *Limiter) normalizeStateLocked(now time.Time) bool {
	local := now.In(l.policy.Location())
	date := local.Format("2006-01-02")
	hour := local.Hour()

	if l.state.Date == "" {
		l.state.Date = date
		l.state.Hour = hour
		return true
	}
	changed := false
	if date > l.state.Date {
		l.state.Date = date
		l.state.Hour = hour
		l.state.SentToday = 0
		l.state.SentThisHour = 0
		changed = true
	} else if date == l.state.Date && hour > l.state.Hour {
		l.state.Hour = hour
		l.state.SentThisHour = 0
		changed = true
	}
	return changed
}

func (l *Limiter) readLocked() error {
	var file countersFile
	ok, err := fsstore.ReadJSON(l.countersPath(), &file)
	if err != nil {
		return err
	}
	if !ok {
		l.state = Counters{}
		return nil
	}
	if file.Version != countersFileVersion {
		return fmt.Errorf("unsupported counters file version: %d", file.Version)
	}
	l.state = file.Counters
	return nil
}

func (l *Limiter) writeLocked() error {
	file := countersFile{Version: countersFileVersion, Counters: l.state}
	return fsstore.WriteJSONAtomic(l.countersPath(), file, fsstore.FileOptions{
		DirPerm:  0o700,
		FilePerm: 0o600,
	})
}

func (l *Limiter) lockPath() (string, error) {
	return fsstore.BuildLockPath(filepath.Join(l.root, ".fslocks"), "cadence.counters")
}

func (l *Limiter) countersPath() string {
	return filepath.Join(l.root, "counters.json")
}
