package feeding

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/feeder-core/internal/audit"
	"github.com/nerrad567/feeder-core/internal/device"
	"github.com/nerrad567/feeder-core/internal/infrastructure/config"
	"github.com/nerrad567/feeder-core/internal/schedule"
)

// Timezone offsets accepted from devices, in minutes (UTC-14:00 to UTC+14:00).
const (
	MinTZOffsetMinutes = -14 * 60
	MaxTZOffsetMinutes = 14 * 60
)

// ErrInvalidOffset is returned for a timezone offset outside ±14 hours.
var ErrInvalidOffset = errors.New("feeding: invalid timezone offset")

// Engine decides whether a feeder should dispense now.
//
// Thread Safety: Decide is safe for concurrent use. Calls for the same
// device serialise on a per-device lock around the cooldown check and the
// sentinel write.
type Engine struct {
	devices   DeviceResolver
	settings  SettingsReader
	slots     SlotMatcher
	log       CooldownStore
	observers []Observer
	cfg       config.FeedingConfig
	logger    Logger

	locksMu sync.Mutex
	locks   map[int64]*sync.Mutex
}

// NewEngine creates a feed-time decision engine.
//
// Parameters:
//   - devices: resolves serials to active devices
//   - settings: device calibration, for the fallback duration
//   - slots: schedule matching over all enabled schedules
//   - log: device log used as cooldown memory
//   - cfg: cooldown window and default duration
//   - logger: operational logger (may be nil)
func NewEngine(devices DeviceResolver, settings SettingsReader, slots SlotMatcher, log CooldownStore, cfg config.FeedingConfig, logger Logger) *Engine {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Engine{
		devices:  devices,
		settings: settings,
		slots:    slots,
		log:      log,
		cfg:      cfg,
		logger:   logger,
		locks:    make(map[int64]*sync.Mutex),
	}
}

// AddObserver registers an observer for positive decisions. Call before
// the engine starts serving.
func (e *Engine) AddObserver(o Observer) {
	e.observers = append(e.observers, o)
}

// Decide evaluates one poll.
//
// Parameters:
//   - rawSerial: the identifier as sent by the device (colons and case ignored)
//   - now: the poll instant
//   - tzOffsetMinutes: device-local offset from UTC
//
// Returns a Decision in every case. The error is non-nil only when the
// decision could not be made: device.ErrInvalidSerial or ErrInvalidOffset
// for bad input, or a storage failure. On error ShouldFeed is always false.
func (e *Engine) Decide(ctx context.Context, rawSerial string, now time.Time, tzOffsetMinutes int) (*Decision, error) {
	now = now.UTC()
	local := now.Add(time.Duration(tzOffsetMinutes) * time.Minute)
	decision := &Decision{
		Serial:      device.NormalizeSerial(rawSerial),
		CurrentTime: schedule.FromClock(local),
		DecidedAt:   now,
	}

	if err := device.ValidateSerial(decision.Serial); err != nil {
		return decision, err
	}
	if tzOffsetMinutes < MinTZOffsetMinutes || tzOffsetMinutes > MaxTZOffsetMinutes {
		return decision, fmt.Errorf("%w: %d minutes", ErrInvalidOffset, tzOffsetMinutes)
	}

	// 1. Resolve.
	dev, err := e.devices.Resolve(ctx, decision.Serial)
	if errors.Is(err, device.ErrDeviceNotFound) {
		decision.Reason = ReasonDeviceNotFound
		return decision, nil
	}
	if err != nil {
		return decision, fmt.Errorf("resolving device: %w", err)
	}
	decision.DeviceID = dev.ID
	decision.DeviceName = dev.Name

	// 2-3. Match.
	slot, err := e.match(ctx, dev.ID, decision.CurrentTime)
	if err != nil {
		return decision, err
	}
	if slot == nil {
		decision.Reason = ReasonNoSchedule
		return decision, nil
	}

	// 4-6 under the device lock.
	unlock := e.lockDevice(dev.ID)
	fed, err := e.claim(ctx, dev, slot, decision)
	unlock()
	if err != nil || !fed {
		return decision, err
	}

	// 7.
	e.logger.Info("feed decided",
		"device_id", dev.ID,
		"serial", dev.Serial,
		"schedule_id", decision.ScheduleID,
		"matched_time", decision.MatchedTime.String(),
		"amount", decision.Amount,
		"duration_ms", decision.DurationMs,
	)
	for _, o := range e.observers {
		o.FeedDecided(ctx, dev, *decision)
	}
	return decision, nil
}

// match returns the highest-priority slot among the three candidate minutes,
// or nil when none matches.
func (e *Engine) match(ctx context.Context, deviceID int64, current schedule.TimeOfDay) (*schedule.Slot, error) {
	candidates := []schedule.TimeOfDay{current, current.Add(-1), current.Add(1)}

	slots, err := e.slots.MatchSlots(ctx, deviceID, candidates)
	if err != nil {
		return nil, fmt.Errorf("matching schedule: %w", err)
	}

	// Slots arrive ordered by (schedule id, item id) within a minute, so the
	// first hit per candidate is the deterministic winner.
	for _, want := range candidates {
		for i := range slots {
			if slots[i].Time == want {
				return &slots[i], nil
			}
		}
	}
	return nil, nil
}

// claim runs the cooldown check, resolves the duration and writes the
// sentinel. It reports whether the device should feed.
func (e *Engine) claim(ctx context.Context, dev *device.Device, slot *schedule.Slot, decision *Decision) (bool, error) {
	since := decision.DecidedAt.Add(-e.cfg.Cooldown())
	last, err := e.log.LatestWithMessage(ctx, dev.ID, audit.MessageFeedExecuted, since)
	switch {
	case err == nil:
		decision.Reason = ReasonCooldown
		e.logger.Debug("feed suppressed by cooldown",
			"device_id", dev.ID,
			"last_feed", last.CreatedAt,
		)
		return false, nil
	case !errors.Is(err, audit.ErrEntryNotFound):
		return false, fmt.Errorf("checking cooldown: %w", err)
	}

	decision.ShouldFeed = true
	decision.ScheduleID = slot.ScheduleID
	decision.ScheduleName = slot.ScheduleName
	decision.ScheduleItemID = slot.ItemID
	decision.MatchedTime = slot.Time
	decision.Amount = slot.Amount
	decision.DurationMs = e.ResolveDuration(ctx, dev.ID, slot)

	sentinel := &audit.Entry{
		DeviceID: dev.ID,
		Level:    audit.LevelInfo,
		Message:  audit.MessageFeedExecuted,
		Meta: map[string]any{
			"schedule_id":      slot.ScheduleID,
			"schedule_item_id": slot.ItemID,
			"matched_time":     slot.Time.String(),
			"current_time":     decision.CurrentTime.String(),
			"amount":           slot.Amount,
			"duration_ms":      decision.DurationMs,
		},
		CreatedAt: decision.DecidedAt,
	}
	if err := e.log.Append(ctx, sentinel); err != nil {
		// The lid still opens; operators see this instead of the device.
		e.logger.Error("feed sentinel write failed, cooldown not recorded",
			"device_id", dev.ID,
			"schedule_item_id", slot.ItemID,
			"error", err,
		)
	}
	return true, nil
}

// ResolveDuration picks the item override, then the device ceiling, then
// the configured default. Each must lie strictly inside (0, 60000). The
// device schedule pull uses it too.
func (e *Engine) ResolveDuration(ctx context.Context, deviceID int64, slot *schedule.Slot) int {
	if d := slot.DurationMs; d != nil && *d > 0 && *d < device.MaxOpenMsCeiling {
		return *d
	}

	settings, err := e.settings.GetSettings(ctx, deviceID)
	switch {
	case err == nil:
		if v, ok := settings.UsableMaxOpenMs(); ok {
			return v
		}
	case errors.Is(err, device.ErrSettingsNotFound):
	default:
		e.logger.Warn("reading device settings failed, using default duration",
			"device_id", deviceID,
			"error", err,
		)
	}
	return e.cfg.DefaultDurationMs
}

// lockDevice acquires the device's mutex and returns its release func.
// Locks are kept for the process lifetime; there is one per feeder.
func (e *Engine) lockDevice(deviceID int64) func() {
	e.locksMu.Lock()
	mu, ok := e.locks[deviceID]
	if !ok {
		mu = &sync.Mutex{}
		e.locks[deviceID] = mu
	}
	e.locksMu.Unlock()

	mu.Lock()
	return mu.Unlock
}
