package cadence

import (
	"fmt"
	"time"
)

// WithinWindow reports whether now falls on an allowed weekday and inside one
// of the configured windows, evaluated in the policy timezone. Interval
// comparison is closed on both ends. The reason string identifies the
// matching or rejecting constraint. Pure; safe for concurrent use.
func (p *Policy) WithinWindow(now time.Time) (bool, string) {
	local := now.In(p.Location())
	day := mondayIndex(local.Weekday())
	if !p.allowedDay[day] {
		return false, fmt.Sprintf("weekday %s not in allowed days", local.Weekday())
	}
	minute := local.Hour()*60 + local.Minute()
	for _, w := range p.Windows {
		if w.startMin <= minute && minute <= w.endMin {
			return true, fmt.Sprintf("inside window %s-%s", w.Start, w.End)
		}
	}
	return false, fmt.Sprintf("outside configured windows (%02d:%02d)", local.Hour(), local.Minute())
}

// NextWindowStart returns the earliest window start at or after now that
// satisfies both the weekday and window constraints. With a validated policy
// this scans at most eight days (today plus a full week wrap) before finding
// an allowed day.
func (p *Policy) NextWindowStart(now time.Time) time.Time {
	local := now.In(p.Location())
	for offset := 0; offset <= 7; offset++ {
		day := local.AddDate(0, 0, offset)
		if !p.allowedDay[mondayIndex(day.Weekday())] {
			continue
		}
		for _, w := range p.Windows {
			start := time.Date(day.Year(), day.Month(), day.Day(), w.startMin/60, w.startMin%60, 0, 0, p.Location())
			if !start.Before(local) {
				return start
			}
		}
	}
	// Unreachable once Validate has passed: weekdays and windows are non-empty.
	return time.Time{}
}

// mondayIndex converts Go's Sunday-based weekday to the 0=Monday..6=Sunday
// convention the policy uses.
func mondayIndex(d time.Weekday) int {
	return (int(d) + 6) % 7
}
