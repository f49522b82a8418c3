// Package cadence holds the scheduling policy for outbound outreach: the
// time windows and weekdays during which actions may run, the daily/hourly
// throughput limits, the randomized pacing between dispatches, and the
// per-category step sequences.
package cadence

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var ErrInvalidPolicy = errors.New("cadence: invalid policy")

// ActionKind is the closed set of outbound actions a step can perform.
type ActionKind string

const (
	ActionInvite         ActionKind = "invite"
	ActionInviteWithNote ActionKind = "invite_with_note"
	ActionDirectMessage  ActionKind = "direct_message"
)

func (k ActionKind) Valid() bool {
	switch k {
	case ActionInvite, ActionInviteWithNote, ActionDirectMessage:
		return true
	default:
		return false
	}
}

// Step is one unit of action in a category's sequence.
type Step struct {
	ID         string     `yaml:"id" json:"id"`
	Name       string     `yaml:"name,omitempty" json:"name,omitempty"`
	Action     ActionKind `yaml:"action" json:"action"`
	WaitDays   int        `yaml:"wait_days" json:"wait_days"`
	ContentRef string     `yaml:"content_ref,omitempty" json:"content_ref,omitempty"`
}

// Sequence is an ordered list of steps for one contact category. A disabled
// sequence keeps offering its first step unconditionally, which supports
// categories that use a single recurring action instead of a progression.
type Sequence struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Steps   []Step `yaml:"steps" json:"steps"`
}

// Window is a closed time-of-day interval during which actions are permitted.
type Window struct {
	Start string `yaml:"start" json:"start"`
	End   string `yaml:"end" json:"end"`

	startMin int
	endMin   int
}

// Policy is the immutable cadence configuration, loaded once per run.
// Weekdays are indexed 0=Monday through 6=Sunday.
type Policy struct {
	Timezone           string              `yaml:"timezone" json:"timezone"`
	Windows            []Window            `yaml:"windows" json:"windows"`
	Weekdays           []int               `yaml:"weekdays" json:"weekdays"`
	MaxPerDay          int                 `yaml:"max_per_day" json:"max_per_day"`
	MaxPerHour         int                 `yaml:"max_per_hour" json:"max_per_hour"`
	MinIntervalSeconds int                 `yaml:"min_interval_seconds" json:"min_interval_seconds"`
	MaxIntervalSeconds int                 `yaml:"max_interval_seconds" json:"max_interval_seconds"`
	Sequences          map[string]Sequence `yaml:"sequences" json:"sequences"`

	loc        *time.Location
	allowedDay [7]bool
}

// LoadPolicyFile reads and validates a YAML policy file. A missing file is an
// error: the absence of configuration must never degrade into an unlimited
// policy.
func LoadPolicyFile(path string) (*Policy, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("%w: policy file path is empty", ErrInvalidPolicy)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrInvalidPolicy, path, err)
	}
	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrInvalidPolicy, path, err)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &p, nil
}

// Validate checks every invariant the scheduler relies on and resolves the
// timezone and window bounds. It must pass before any run starts.
func (p *Policy) Validate() error {
	if p == nil {
		return fmt.Errorf("%w: nil policy", ErrInvalidPolicy)
	}
	tz := strings.TrimSpace(p.Timezone)
	if tz == "" {
		return fmt.Errorf("%w: timezone is required", ErrInvalidPolicy)
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return fmt.Errorf("%w: unknown timezone %q", ErrInvalidPolicy, tz)
	}
	p.loc = loc

	if len(p.Windows) == 0 {
		return fmt.Errorf("%w: at least one window is required", ErrInvalidPolicy)
	}
	for i := range p.Windows {
		w := &p.Windows[i]
		w.startMin, err = parseMinuteOfDay(w.Start)
		if err != nil {
			return fmt.Errorf("%w: window %d start: %v", ErrInvalidPolicy, i, err)
		}
		w.endMin, err = parseMinuteOfDay(w.End)
		if err != nil {
			return fmt.Errorf("%w: window %d end: %v", ErrInvalidPolicy, i, err)
		}
		if w.endMin < w.startMin {
			return fmt.Errorf("%w: window %d ends before it starts (%s-%s)", ErrInvalidPolicy, i, w.Start, w.End)
		}
	}
	sort.SliceStable(p.Windows, func(i, j int) bool {
		return p.Windows[i].startMin < p.Windows[j].startMin
	})

	if len(p.Weekdays) == 0 {
		return fmt.Errorf("%w: at least one weekday is required", ErrInvalidPolicy)
	}
	p.allowedDay = [7]bool{}
	for _, d := range p.Weekdays {
		if d < 0 || d > 6 {
			return fmt.Errorf("%w: weekday %d out of range 0..6", ErrInvalidPolicy, d)
		}
		p.allowedDay[d] = true
	}

	if p.MaxPerDay <= 0 {
		return fmt.Errorf("%w: max_per_day must be positive", ErrInvalidPolicy)
	}
	if p.MaxPerHour <= 0 {
		return fmt.Errorf("%w: max_per_hour must be positive", ErrInvalidPolicy)
	}
	if p.MinIntervalSeconds < 0 {
		return fmt.Errorf("%w: min_interval_seconds must not be negative", ErrInvalidPolicy)
	}
	if p.MaxIntervalSeconds <= 0 {
		return fmt.Errorf("%w: max_interval_seconds must be positive", ErrInvalidPolicy)
	}
	if p.MinIntervalSeconds > p.MaxIntervalSeconds {
		return fmt.Errorf("%w: min_interval_seconds exceeds max_interval_seconds", ErrInvalidPolicy)
	}

	for category, seq := range p.Sequences {
		if strings.TrimSpace(category) == "" {
			return fmt.Errorf("%w: sequence category label is empty", ErrInvalidPolicy)
		}
		seen := map[string]bool{}
		for i, step := range seq.Steps {
			id := strings.TrimSpace(step.ID)
			if id == "" {
				return fmt.Errorf("%w: sequence %q step %d has no id", ErrInvalidPolicy, category, i)
			}
			if seen[id] {
				return fmt.Errorf("%w: sequence %q has duplicate step id %q", ErrInvalidPolicy, category, id)
			}
			seen[id] = true
			if !step.Action.Valid() {
				return fmt.Errorf("%w: sequence %q step %q has invalid action %q", ErrInvalidPolicy, category, id, step.Action)
			}
			if step.WaitDays < 0 {
				return fmt.Errorf("%w: sequence %q step %q has negative wait_days", ErrInvalidPolicy, category, id)
			}
		}
	}
	return nil
}

// Location returns the policy timezone. Validate must have succeeded.
func (p *Policy) Location() *time.Location {
	if p == nil || p.loc == nil {
		return time.UTC
	}
	return p.loc
}

// SequenceFor looks up the step sequence for a category label. Categories
// without a configured sequence have no actions.
func (p *Policy) SequenceFor(category string) (Sequence, bool) {
	if p == nil {
		return Sequence{}, false
	}
	seq, ok := p.Sequences[strings.TrimSpace(category)]
	return seq, ok
}

func parseMinuteOfDay(raw string) (int, error) {
	value := strings.TrimSpace(raw)
	parts := strings.Split(value, ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid time of day %q, want HH:MM", raw)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, fmt.Errorf("invalid hour in %q", raw)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("invalid minute in %q", raw)
	}
	return hour*60 + minute, nil
}
