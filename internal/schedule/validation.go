package schedule

import (
	"fmt"
	"strings"
)

const (
	maxNameLength = 100
	maxItems      = 96

	// MaxDurationMs is the longest explicit item duration. The feed engine
	// only honours durations below one minute.
	MaxDurationMs = 59999
)

// Validate checks a schedule and its items before they are written.
func (s *Schedule) Validate() error {
	s.Name = strings.TrimSpace(s.Name)
	if s.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidSchedule)
	}
	if len(s.Name) > maxNameLength {
		return fmt.Errorf("%w: name must be at most %d characters", ErrInvalidSchedule, maxNameLength)
	}
	if len(s.Items) > maxItems {
		return fmt.Errorf("%w: at most %d items", ErrInvalidSchedule, maxItems)
	}
	for i := range s.Items {
		if err := s.Items[i].Validate(); err != nil {
			return fmt.Errorf("item %d: %w", i, err)
		}
	}
	return nil
}

// Validate checks a single item.
func (it *Item) Validate() error {
	if !it.Time.Valid() {
		return fmt.Errorf("%w: minute %d", ErrInvalidTime, int(it.Time))
	}
	if it.Amount <= 0 {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidSchedule)
	}
	if it.DurationMs != nil && (*it.DurationMs < 1 || *it.DurationMs > MaxDurationMs) {
		return fmt.Errorf("%w: duration_ms must be between 1 and %d", ErrInvalidSchedule, MaxDurationMs)
	}
	return nil
}
