package cadence

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func validTestPolicy() *Policy {
	return &Policy{
		Timezone: "UTC",
		Windows: []Window{
			{Start: "09:00", End: "18:00"},
		},
		Weekdays:           []int{0, 1, 2, 3, 4},
		MaxPerDay:          25,
		MaxPerHour:         10,
		MinIntervalSeconds: 60,
		MaxIntervalSeconds: 180,
		Sequences: map[string]Sequence{
			"new": {
				Enabled: true,
				Steps: []Step{
					{ID: "invite", Action: ActionInviteWithNote, WaitDays: 0, ContentRef: "templates/invite.txt"},
					{ID: "followup", Action: ActionDirectMessage, WaitDays: 3, ContentRef: "templates/followup.txt"},
				},
			},
		},
	}
}

func TestValidateAccepts(t *testing.T) {
	p := validTestPolicy()
	if err := p.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if p.Location().String() != "UTC" {
		t.Fatalf("Location() = %v, want UTC", p.Location())
	}
}

func TestValidateRejects(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Policy)
	}{
		{"empty timezone", func(p *Policy) { p.Timezone = "" }},
		{"unknown timezone", func(p *Policy) { p.Timezone = "Mars/Olympus" }},
		{"no windows", func(p *Policy) { p.Windows = nil }},
		{"window bad start", func(p *Policy) { p.Windows[0].Start = "9am" }},
		{"window bad hour", func(p *Policy) { p.Windows[0].Start = "25:00" }},
		{"window inverted", func(p *Policy) { p.Windows[0] = Window{Start: "18:00", End: "09:00"} }},
		{"no weekdays", func(p *Policy) { p.Weekdays = nil }},
		{"weekday out of range", func(p *Policy) { p.Weekdays = []int{7} }},
		{"zero daily limit", func(p *Policy) { p.MaxPerDay = 0 }},
		{"negative hourly limit", func(p *Policy) { p.MaxPerHour = -1 }},
		{"negative min interval", func(p *Policy) { p.MinIntervalSeconds = -1 }},
		{"absent pacing interval", func(p *Policy) {
			p.MinIntervalSeconds = 0
			p.MaxIntervalSeconds = 0
		}},
		{"min interval above max", func(p *Policy) { p.MinIntervalSeconds = 200 }},
		{"step without id", func(p *Policy) {
			seq := p.Sequences["new"]
			seq.Steps[0].ID = ""
			p.Sequences["new"] = seq
		}},
		{"duplicate step id", func(p *Policy) {
			seq := p.Sequences["new"]
			seq.Steps[1].ID = seq.Steps[0].ID
			p.Sequences["new"] = seq
		}},
		{"invalid action kind", func(p *Policy) {
			seq := p.Sequences["new"]
			seq.Steps[0].Action = "carrier_pigeon"
			p.Sequences["new"] = seq
		}},
		{"negative wait days", func(p *Policy) {
			seq := p.Sequences["new"]
			seq.Steps[1].WaitDays = -2
			p.Sequences["new"] = seq
		}},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			p := validTestPolicy()
			tc.mutate(p)
			err := p.Validate()
			if err == nil {
				t.Fatalf("Validate() expected error")
			}
			if !errors.Is(err, ErrInvalidPolicy) {
				t.Fatalf("Validate() error = %v, want ErrInvalidPolicy", err)
			}
		})
	}
}

func TestLoadPolicyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cadence.yaml")
	content := `timezone: UTC
windows:
  - start: "09:00"
    end: "12:00"
  - start: "14:00"
    end: "18:00"
weekdays: [0, 1, 2, 3, 4]
max_per_day: 25
max_per_hour: 10
min_interval_seconds: 60
max_interval_seconds: 180
sequences:
  new:
    enabled: true
    steps:
      - id: invite
        action: invite_with_note
        wait_days: 0
        content_ref: templates/invite.txt
      - id: followup
        action: direct_message
        wait_days: 3
        content_ref: templates/followup.txt
  existing_connection:
    enabled: false
    steps:
      - id: checkin
        action: direct_message
        content_ref: templates/checkin.txt
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	p, err := LoadPolicyFile(path)
	if err != nil {
		t.Fatalf("LoadPolicyFile() error = %v", err)
	}
	if len(p.Windows) != 2 {
		t.Fatalf("windows = %d, want 2", len(p.Windows))
	}
	seq, ok := p.SequenceFor("existing_connection")
	if !ok {
		t.Fatalf("SequenceFor(existing_connection) not found")
	}
	if seq.Enabled {
		t.Fatalf("existing_connection sequence should be disabled")
	}
	if got := seq.Steps[0].Action; got != ActionDirectMessage {
		t.Fatalf("step action = %q, want %q", got, ActionDirectMessage)
	}
}

func TestLoadPolicyFileWithoutPacingIntervals(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cadence.yaml")
	content := `timezone: UTC
windows:
  - start: "09:00"
    end: "18:00"
weekdays: [0, 1, 2, 3, 4]
max_per_day: 25
max_per_hour: 10
sequences: {}
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	// Omitted pacing bounds must not degrade into zero-delay dispatching.
	_, err := LoadPolicyFile(path)
	if !errors.Is(err, ErrInvalidPolicy) {
		t.Fatalf("LoadPolicyFile() error = %v, want ErrInvalidPolicy", err)
	}
}

func TestLoadPolicyFileMissing(t *testing.T) {
	_, err := LoadPolicyFile(filepath.Join(t.TempDir(), "absent.yaml"))
	if !errors.Is(err, ErrInvalidPolicy) {
		t.Fatalf("LoadPolicyFile() error = %v, want ErrInvalidPolicy", err)
	}
}
