package audit

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Fixed messages written by the service itself.
const (
	// MessageFeedExecuted marks a positive feed decision. The engine's
	// cooldown looks for it.
	MessageFeedExecuted = "FEED_EXECUTED"

	// MessageSchedulePushed records a schedule delivery attempt.
	MessageSchedulePushed = "SCHEDULE_PUSHED"
)

// Level is the severity of an entry.
type Level string

// Severity levels.
const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Query limits.
const (
	DefaultLimit = 200
	MaxLimit     = 1000
	maxMessage   = 2048
)

var (
	// ErrEntryNotFound is returned when no entry matches a lookup.
	ErrEntryNotFound = errors.New("audit: entry not found")

	// ErrInvalidEntry is returned when an entry fails validation.
	ErrInvalidEntry = errors.New("audit: invalid entry")
)

// ParseLevel accepts the four levels in any case, plus "warning".
// Empty means info.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return LevelInfo, nil
	case "debug":
		return LevelDebug, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return "", fmt.Errorf("%w: unknown level %q", ErrInvalidEntry, s)
	}
}

// Entry is one line in a device's log.
type Entry struct {
	ID        int64          `json:"id"`
	DeviceID  int64          `json:"device_id"`
	Level     Level          `json:"level"`
	Message   string         `json:"message"`
	Meta      map[string]any `json:"meta,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Validate checks an entry before it is written.
func (e *Entry) Validate() error {
	if e.DeviceID <= 0 {
		return fmt.Errorf("%w: device id is required", ErrInvalidEntry)
	}
	if strings.TrimSpace(e.Message) == "" {
		return fmt.Errorf("%w: message is required", ErrInvalidEntry)
	}
	if len(e.Message) > maxMessage {
		return fmt.Errorf("%w: message exceeds %d bytes", ErrInvalidEntry, maxMessage)
	}
	if _, err := ParseLevel(string(e.Level)); err != nil {
		return err
	}
	return nil
}

// Filter selects entries for Query.
type Filter struct {
	DeviceID     int64
	Level        Level  // optional
	Contains     string // optional substring of the message
	SinceMinutes int    // optional; entries newer than now minus this
	Limit        int    // default 200, max 1000
}

// ListResult is a page of entries, newest first.
type ListResult struct {
	Entries []Entry `json:"entries"`
	Total   int     `json:"total"`
	Limit   int     `json:"limit"`
}
