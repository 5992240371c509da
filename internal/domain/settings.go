package domain

import (
	"errors"
	"fmt"
	"time"
)

// LeadingGapPolicy decides what happens to the hours of a series that precede
// its first known value.
type LeadingGapPolicy string

const (
	// LeadingGapKeep leaves leading hours as NaN (serialized as null).
	LeadingGapKeep LeadingGapPolicy = "keep"
	// LeadingGapDrop trims leading hours and moves the series start forward.
	LeadingGapDrop LeadingGapPolicy = "drop"
	// LeadingGapBackfill copies the first known value backwards.
	LeadingGapBackfill LeadingGapPolicy = "backfill"
)

// ParseLeadingGapPolicy validates a policy name.
func ParseLeadingGapPolicy(s string) (LeadingGapPolicy, error) {
	switch p := LeadingGapPolicy(s); p {
	case LeadingGapKeep, LeadingGapDrop, LeadingGapBackfill:
		return p, nil
	default:
		return "", fmt.Errorf("unknown leading gap policy %q", s)
	}
}

// Settings carries the run-wide featurization parameters. It is built once at
// startup and passed to every stage.
type Settings struct {
	Frequency  time.Duration
	SplitDays  int
	LeadingGap LeadingGapPolicy
}

// DefaultSettings returns hourly frequency, a 30 day test window and the keep
// policy for leading gaps.
func DefaultSettings() Settings {
	return Settings{
		Frequency:  time.Hour,
		SplitDays:  30,
		LeadingGap: LeadingGapKeep,
	}
}

// Validate reports the first invalid field.
func (s Settings) Validate() error {
	if s.Frequency <= 0 {
		return errors.New("frequency must be positive")
	}
	if s.SplitDays < 0 {
		return errors.New("split days must not be negative")
	}
	if _, err := ParseLeadingGapPolicy(string(s.LeadingGap)); err != nil {
		return err
	}
	return nil
}

// Cutoff returns midnight UTC of the day SplitDays before now. Everything
// before the cutoff is training data.
func (s Settings) Cutoff(now time.Time) time.Time {
	y, m, d := now.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -s.SplitDays)
}
