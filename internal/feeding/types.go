package feeding

import (
	"context"
	"time"

	"github.com/nerrad567/feeder-core/internal/audit"
	"github.com/nerrad567/feeder-core/internal/device"
	"github.com/nerrad567/feeder-core/internal/schedule"
)

// Reason explains a negative decision.
type Reason string

// Decision reasons. A positive decision has no reason.
const (
	ReasonNone           Reason = ""
	ReasonDeviceNotFound Reason = "device_not_found"
	ReasonNoSchedule     Reason = "no_schedule"
	ReasonCooldown       Reason = "cooldown"
)

// Decision is the engine's answer to one poll.
type Decision struct {
	ShouldFeed bool
	Reason     Reason

	// Serial is the normalised identifier the device polled with.
	Serial     string
	DeviceID   int64
	DeviceName string

	// CurrentTime is the device-local wall time of the poll.
	CurrentTime schedule.TimeOfDay

	// Set on a positive decision.
	ScheduleID     int64
	ScheduleName   string
	ScheduleItemID int64
	MatchedTime    schedule.TimeOfDay
	Amount         int
	DurationMs     int

	DecidedAt time.Time
}

// Message is a human-readable summary for the device's serial console.
func (d *Decision) Message() string {
	switch d.Reason {
	case ReasonNone:
		if d.ShouldFeed {
			return "feed now"
		}
		return "no feed"
	case ReasonDeviceNotFound:
		return "device not registered or inactive"
	case ReasonNoSchedule:
		return "no scheduled feed at " + d.CurrentTime.String()
	case ReasonCooldown:
		return "fed recently, waiting for cooldown"
	default:
		return string(d.Reason)
	}
}

// DeviceResolver finds an active device by raw serial.
type DeviceResolver interface {
	Resolve(ctx context.Context, raw string) (*device.Device, error)
}

// SettingsReader reads the calibration of a device.
type SettingsReader interface {
	GetSettings(ctx context.Context, deviceID int64) (*device.Settings, error)
}

// SlotMatcher finds enabled schedule items at given minutes.
type SlotMatcher interface {
	MatchSlots(ctx context.Context, deviceID int64, times []schedule.TimeOfDay) ([]schedule.Slot, error)
}

// CooldownStore is the device log as the engine sees it: a place to find the
// last sentinel and to write the next one.
type CooldownStore interface {
	LatestWithMessage(ctx context.Context, deviceID int64, marker string, since time.Time) (*audit.Entry, error)
	Append(ctx context.Context, e *audit.Entry) error
}

// Observer is told about every positive decision. Implementations must not
// block; the engine calls them after the per-device lock is released.
type Observer interface {
	FeedDecided(ctx context.Context, dev *device.Device, d Decision)
}

// Logger defines the logging interface used by the engine.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
