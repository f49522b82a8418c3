package cadence

import (
	"context"
	"strings"
	"testing"
	"time"
)

func newTestLimiter(t *testing.T, mutate func(*Policy)) (*Limiter, *Policy) {
	t.Helper()
	p := validTestPolicy()
	if mutate != nil {
		mutate(p)
	}
	if err := p.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	return NewLimiter(p, t.TempDir()), p
}

func mustRecord(t *testing.T, l *Limiter, now time.Time, success bool) {
	t.Helper()
	if err := l.RecordSent(context.Background(), now, success); err != nil {
		t.Fatalf("RecordSent() error = %v", err)
	}
}

func TestCanSendHourlyLimit(t *testing.T) {
	l, _ := newTestLimiter(t, func(p *Policy) { p.MaxPerHour = 2 })
	ctx := context.Background()
	now := monday.Add(10 * time.Hour)

	for i := 0; i < 2; i++ {
		ok, reason, err := l.CanSend(ctx, now)
		if err != nil {
			t.Fatalf("CanSend() error = %v", err)
		}
		if !ok {
			t.Fatalf("CanSend() round %d = false (%s), want true", i, reason)
		}
		mustRecord(t, l, now.Add(time.Duration(i)*time.Minute), true)
	}

	ok, reason, err := l.CanSend(ctx, now.Add(5*time.Minute))
	if err != nil {
		t.Fatalf("CanSend() error = %v", err)
	}
	if ok {
		t.Fatalf("CanSend() = true after reaching hourly cap")
	}
	if !strings.Contains(reason, "hourly limit") {
		t.Fatalf("CanSend() reason = %q, want hourly limit", reason)
	}

	// The next hour restores the hourly quota.
	ok, _, err = l.CanSend(ctx, now.Add(time.Hour))
	if err != nil {
		t.Fatalf("CanSend() error = %v", err)
	}
	if !ok {
		t.Fatalf("CanSend() = false after hour marker changed")
	}
}

func TestCanSendDailyLimit(t *testing.T) {
	l, _ := newTestLimiter(t, func(p *Policy) {
		p.MaxPerDay = 2
		p.MaxPerHour = 10
	})
	ctx := context.Background()
	now := monday.Add(10 * time.Hour)

	mustRecord(t, l, now, true)
	mustRecord(t, l, now.Add(time.Minute), true)

	ok, reason, err := l.CanSend(ctx, now.Add(2*time.Minute))
	if err != nil {
		t.Fatalf("CanSend() error = %v", err)
	}
	if ok {
		t.Fatalf("CanSend() = true after reaching daily cap")
	}
	if !strings.Contains(reason, "daily limit") {
		t.Fatalf("CanSend() reason = %q, want daily limit", reason)
	}

	// Next allowed day restores the quota.
	ok, _, err = l.CanSend(ctx, now.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("CanSend() error = %v", err)
	}
	if !ok {
		t.Fatalf("CanSend() = false on the next day")
	}
}

func TestCanSendPropagatesWindowReason(t *testing.T) {
	l, _ := newTestLimiter(t, nil)
	ok, reason, err := l.CanSend(context.Background(), monday.Add(20*time.Hour))
	if err != nil {
		t.Fatalf("CanSend() error = %v", err)
	}
	if ok {
		t.Fatalf("CanSend() = true outside the window")
	}
	if !strings.Contains(reason, "outside configured windows") {
		t.Fatalf("CanSend() reason = %q, want window rejection", reason)
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	l, _ := newTestLimiter(t, nil)
	now := monday.Add(10 * time.Hour)
	mustRecord(t, l, now, true)

	first, err := l.Snapshot(context.Background(), now)
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	second, err := l.Snapshot(context.Background(), now)
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if first != second {
		t.Fatalf("normalization not idempotent: %+v vs %+v", first, second)
	}
}

func TestResetsAreMonotonic(t *testing.T) {
	l, _ := newTestLimiter(t, nil)
	now := monday.Add(15 * time.Hour)
	mustRecord(t, l, now, true)

	// A query with a clock that moved backward must not reset anything.
	snap, err := l.Snapshot(context.Background(), now.Add(-2*time.Hour))
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if snap.SentToday != 1 || snap.SentThisHour != 1 {
		t.Fatalf("backward time reset counters: %+v", snap)
	}
	if snap.Hour != 15 {
		t.Fatalf("backward time moved hour marker: %+v", snap)
	}
}

func TestRecordSentFailureDoesNotConsumeQuota(t *testing.T) {
	l, _ := newTestLimiter(t, nil)
	now := monday.Add(10 * time.Hour)
	mustRecord(t, l, now, false)

	snap, err := l.Snapshot(context.Background(), now)
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if snap.SentToday != 0 || snap.SentThisHour != 0 {
		t.Fatalf("failure consumed quota: %+v", snap)
	}
	if snap.LastActionAt == nil || !snap.LastActionAt.Equal(now) {
		t.Fatalf("LastActionAt = %v, want %v", snap.LastActionAt, now)
	}
}

func TestCountersSurviveReload(t *testing.T) {
	p := validTestPolicy()
	if err := p.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	root := t.TempDir()
	now := monday.Add(10 * time.Hour)

	first := NewLimiter(p, root)
	mustRecord(t, first, now, true)
	mustRecord(t, first, now.Add(time.Minute), true)

	second := NewLimiter(p, root)
	snap, err := second.Snapshot(context.Background(), now.Add(2*time.Minute))
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if snap.SentToday != 2 || snap.SentThisHour != 2 {
		t.Fatalf("reloaded counters = %+v, want 2/2", snap)
	}
}

func TestLimiterSharedStateDirSeesInterleavedWrites(t *testing.T) {
	p := validTestPolicy()
	if err := p.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	root := t.TempDir()
	ctx := context.Background()
	now := monday.Add(10 * time.Hour)

	// Two limiters over the same state directory stand in for two processes.
	// Each increment must land on disk and be visible to the other side
	// before the next one, or a write gets lost.
	first := NewLimiter(p, root)
	second := NewLimiter(p, root)

	mustRecord(t, first, now, true)
	snap, err := second.Snapshot(ctx, now)
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if snap.SentToday != 1 {
		t.Fatalf("second limiter SentToday = %d, want 1", snap.SentToday)
	}

	mustRecord(t, first, now.Add(time.Minute), true)
	mustRecord(t, second, now.Add(2*time.Minute), true)

	fresh := NewLimiter(p, root)
	snap, err = fresh.Snapshot(ctx, now.Add(3*time.Minute))
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if snap.SentToday != 3 || snap.SentThisHour != 3 {
		t.Fatalf("counters on disk = %+v, want 3 sends", snap)
	}
}

func TestPacingIntervalWithinBounds(t *testing.T) {
	l, p := newTestLimiter(t, func(p *Policy) {
		p.MinIntervalSeconds = 2
		p.MaxIntervalSeconds = 5
	})
	min := time.Duration(p.MinIntervalSeconds) * time.Second
	max := time.Duration(p.MaxIntervalSeconds) * time.Second
	seen := make(map[time.Duration]bool)
	for i := 0; i < 200; i++ {
		got := l.PacingInterval()
		if got < min || got > max {
			t.Fatalf("PacingInterval() = %v, want within [%v, %v]", got, min, max)
		}
		if got%time.Second != 0 {
			t.Fatalf("PacingInterval() = %v, want whole seconds", got)
		}
		seen[got] = true
	}
	// Both bounds are inclusive and must be reachable.
	if !seen[min] {
		t.Fatalf("PacingInterval() never produced the lower bound %v", min)
	}
	if !seen[max] {
		t.Fatalf("PacingInterval() never produced the upper bound %v", max)
	}
}

func TestPacingIntervalDegenerateBounds(t *testing.T) {
	l, _ := newTestLimiter(t, func(p *Policy) {
		p.MinIntervalSeconds = 3
		p.MaxIntervalSeconds = 3
	})
	if got := l.PacingInterval(); got != 3*time.Second {
		t.Fatalf("PacingInterval() = %v, want 3s", got)
	}
}

func TestLimiterReset(t *testing.T) {
	l, _ := newTestLimiter(t, nil)
	now := monday.Add(10 * time.Hour)
	mustRecord(t, l, now, true)
	if err := l.Reset(context.Background()); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	snap, err := l.Snapshot(context.Background(), now)
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if snap.SentToday != 0 || snap.SentThisHour != 0 {
		t.Fatalf("Reset() left counters = %+v", snap)
	}
}
