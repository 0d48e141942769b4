package schedule

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MinutesPerDay is the number of distinct TimeOfDay values.
const MinutesPerDay = 24 * 60

// TimeOfDay is a wall-clock minute, 0 (00:00) to 1439 (23:59). It carries no
// timezone; callers convert from UTC with an explicit offset.
type TimeOfDay int

// ParseTimeOfDay parses "H:MM" or "HH:MM" in 24-hour form.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || len(hh) < 1 || len(hh) > 2 || len(mm) != 2 {
		return 0, fmt.Errorf("%w: %q (expected HH:MM)", ErrInvalidTime, s)
	}
	h, errH := strconv.Atoi(hh)
	m, errM := strconv.Atoi(mm)
	if errH != nil || errM != nil || h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("%w: %q (expected HH:MM)", ErrInvalidTime, s)
	}
	return TimeOfDay(h*60 + m), nil
}

// FromClock returns the wall-clock minute of t in t's location.
func FromClock(t time.Time) TimeOfDay {
	return TimeOfDay(t.Hour()*60 + t.Minute())
}

// Add shifts by n minutes, wrapping around midnight.
func (t TimeOfDay) Add(n int) TimeOfDay {
	v := (int(t) + n) % MinutesPerDay
	if v < 0 {
		v += MinutesPerDay
	}
	return TimeOfDay(v)
}

// Valid reports whether t is inside 00:00..23:59.
func (t TimeOfDay) Valid() bool {
	return t >= 0 && t < MinutesPerDay
}

// String formats as zero-padded "HH:MM".
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

// MarshalJSON encodes as "HH:MM".
func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: minute %d", ErrInvalidTime, int(t))
	}
	return json.Marshal(t.String())
}

// UnmarshalJSON accepts "H:MM" or "HH:MM".
func (t *TimeOfDay) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w: expected a string", ErrInvalidTime)
	}
	v, err := ParseTimeOfDay(s)
	if err != nil {
		return err
	}
	*t = v
	return nil
}
