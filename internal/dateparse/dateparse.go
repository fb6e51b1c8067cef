// Package dateparse parses the absolute and relative date forms accepted in
// record filters and field values.
package dateparse

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Parse resolves a date input against the current time.
//
// Supported formats:
//   - Exact dates: "2026-03-01", RFC 3339 timestamps
//   - Relative offsets: "-7d", "+2w", "-1m" (days, weeks, months)
//   - Keywords: "today", "yesterday", "tomorrow"
func Parse(input string) (time.Time, error) {
	return ParseFrom(input, time.Now())
}

// ParseFrom resolves a date input against a fixed reference time, which keeps
// tests deterministic.
func ParseFrom(input string, now time.Time) (time.Time, error) {
	input = strings.TrimSpace(strings.ToLower(input))
	if input == "" {
		return time.Time{}, fmt.Errorf("empty date input")
	}

	if t, err := time.Parse("2006-01-02", input); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, input); err == nil {
		return t, nil
	}

	switch input {
	case "today":
		return midnight(now), nil
	case "yesterday":
		return midnight(now.AddDate(0, 0, -1)), nil
	case "tomorrow":
		return midnight(now.AddDate(0, 0, 1)), nil
	}

	// Signed offsets: +Nd / -Nd, weeks, months.
	if len(input) >= 3 && (input[0] == '+' || input[0] == '-') {
		unit := input[len(input)-1]
		n, err := strconv.Atoi(input[:len(input)-1])
		if err != nil {
			return time.Time{}, fmt.Errorf("unrecognized date format: %q", input)
		}
		switch unit {
		case 'd':
			return midnight(now.AddDate(0, 0, n)), nil
		case 'w':
			return midnight(now.AddDate(0, 0, n*7)), nil
		case 'm':
			return midnight(now.AddDate(0, n, 0)), nil
		default:
			return time.Time{}, fmt.Errorf("unknown relative unit %q in %q (use d, w, or m)", string(unit), input)
		}
	}

	return time.Time{}, fmt.Errorf("unrecognized date format: %q", input)
}

// IsDateLike reports whether the input looks like one of the supported date
// forms, without fully validating it.
func IsDateLike(input string) bool {
	_, err := ParseFrom(input, time.Now())
	return err == nil
}

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
