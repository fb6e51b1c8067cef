package dateparse

import (
	"testing"
	"time"
)

// Fixed reference: Wednesday 2026-03-04, mid-afternoon.
var ref = time.Date(2026, 3, 4, 15, 30, 0, 0, time.UTC)

func TestParseFrom(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"2026-03-01", "2026-03-01"},
		{"today", "2026-03-04"},
		{"yesterday", "2026-03-03"},
		{"tomorrow", "2026-03-05"},
		{"+7d", "2026-03-11"},
		{"-7d", "2026-02-25"},
		{"+2w", "2026-03-18"},
		{"-1m", "2026-02-04"},
		{"  TODAY  ", "2026-03-04"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseFrom(tt.input, ref)
			if err != nil {
				t.Fatalf("ParseFrom(%q): %v", tt.input, err)
			}
			if got.Format("2006-01-02") != tt.want {
				t.Errorf("ParseFrom(%q) = %s, want %s", tt.input, got.Format("2006-01-02"), tt.want)
			}
		})
	}
}

func TestParseFromRFC3339(t *testing.T) {
	got, err := ParseFrom("2026-03-04T10:00:00Z", ref)
	if err != nil {
		t.Fatalf("ParseFrom: %v", err)
	}
	if got.Hour() != 10 {
		t.Errorf("timestamp hour: got %d, want 10", got.Hour())
	}
}

func TestParseFromErrors(t *testing.T) {
	for _, input := range []string{"", "not a date", "+d", "+7x", "03/04/2026"} {
		if _, err := ParseFrom(input, ref); err == nil {
			t.Errorf("ParseFrom(%q) should fail", input)
		}
	}
}
