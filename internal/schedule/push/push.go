// Package push delivers a device's effective schedule to the device itself.
//
// The effective schedule is the union of the enabled items of every enabled
// schedule, sorted by time. It is POSTed once to the device's control API;
// there is no retry and nothing is queued. A device that cannot be reached
// is reported in the Result rather than as an error, so the operator sees
// what happened and can try again.
package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/nerrad567/feeder-core/internal/audit"
	"github.com/nerrad567/feeder-core/internal/device"
	"github.com/nerrad567/feeder-core/internal/infrastructure/config"
	"github.com/nerrad567/feeder-core/internal/schedule"
)

// maxResponseBytes caps how much of the device's reply is kept.
const maxResponseBytes = 4096

// DeviceSource resolves owned devices and their control endpoints.
type DeviceSource interface {
	GetOwned(ctx context.Context, id int64, userID string) (*device.Device, error)
	Endpoint(dev *device.Device) (string, int)
}

// SlotSource returns the flattened enabled schedule of a device.
type SlotSource interface {
	EnabledSlots(ctx context.Context, deviceID int64) ([]schedule.Slot, error)
}

// Recorder writes best-effort device log entries.
type Recorder interface {
	Record(ctx context.Context, e *audit.Entry)
}

// Notifier is told about every completed push, reachable or not.
type Notifier interface {
	SchedulePushed(ctx context.Context, dev *device.Device, res Result)
}

// Logger is the logging interface used by the synchronizer.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any) {}
func (noopLogger) Warn(string, ...any) {}

// Result describes one push attempt.
type Result struct {
	DeviceID  int64
	Host      string
	Port      int
	ItemCount int

	// DeviceStatusCode is nil when the device could not be reached.
	DeviceStatusCode *int

	// DeviceResponse is the device's reply body, or the transport error text.
	DeviceResponse string

	Payload []byte
}

// Delivered reports whether the device answered with a 2xx status.
func (r *Result) Delivered() bool {
	return r.DeviceStatusCode != nil && *r.DeviceStatusCode >= 200 && *r.DeviceStatusCode < 300
}

// wireItem is one entry of the payload the firmware expects.
type wireItem struct {
	Time       schedule.TimeOfDay `json:"time"`
	Amount     int                `json:"amount"`
	DurationMs *int               `json:"durationMs"`
	Enabled    bool               `json:"enabled"`
}

// Synchronizer pushes schedules to devices.
type Synchronizer struct {
	devices  DeviceSource
	slots    SlotSource
	recorder Recorder
	notifier Notifier
	client   *http.Client
	path     string
	logger   Logger
}

// New creates a Synchronizer. recorder, notifier and logger may be nil.
func New(devices DeviceSource, slots SlotSource, recorder Recorder, cfg config.SyncConfig, logger Logger) *Synchronizer {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Synchronizer{
		devices:  devices,
		slots:    slots,
		recorder: recorder,
		client:   &http.Client{Timeout: cfg.Timeout()},
		path:     cfg.Path,
		logger:   logger,
	}
}

// SetNotifier registers the push notifier. Call before serving.
func (s *Synchronizer) SetNotifier(n Notifier) {
	s.notifier = n
}

// Push sends the device's effective schedule to it.
//
// A device that is missing, inactive-and-foreign or owned by someone else
// yields device.ErrDeviceNotFound. Storage failures are returned as errors.
// Transport failures are not: they come back in Result with a nil status.
func (s *Synchronizer) Push(ctx context.Context, deviceID int64, userID string) (*Result, error) {
	dev, err := s.devices.GetOwned(ctx, deviceID, userID)
	if err != nil {
		return nil, err
	}

	slots, err := s.slots.EnabledSlots(ctx, dev.ID)
	if err != nil {
		return nil, fmt.Errorf("loading schedule: %w", err)
	}

	payload, err := BuildPayload(slots)
	if err != nil {
		return nil, err
	}

	host, port := s.devices.Endpoint(dev)
	res := Result{
		DeviceID:  dev.ID,
		Host:      host,
		Port:      port,
		ItemCount: len(slots),
		Payload:   payload,
	}

	status, body, err := s.send(ctx, host, port, payload)
	if err != nil {
		res.DeviceResponse = err.Error()
		s.logger.Warn("schedule push failed",
			"device_id", dev.ID,
			"host", host,
			"port", port,
			"error", err,
		)
	} else {
		res.DeviceStatusCode = &status
		res.DeviceResponse = body
		s.logger.Info("schedule pushed",
			"device_id", dev.ID,
			"status", status,
			"items", res.ItemCount,
		)
	}

	s.record(ctx, &res)
	if s.notifier != nil {
		s.notifier.SchedulePushed(ctx, dev, res)
	}
	return &res, nil
}

// BuildPayload renders slots in the device's wire format: a compact JSON
// array sorted by time. Equal input always yields identical bytes.
func BuildPayload(slots []schedule.Slot) ([]byte, error) {
	items := make([]wireItem, 0, len(slots))
	for _, sl := range slots {
		items = append(items, wireItem{
			Time:       sl.Time,
			Amount:     sl.Amount,
			DurationMs: sl.DurationMs,
			Enabled:    true,
		})
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].Time < items[j].Time })

	payload, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("encoding schedule payload: %w", err)
	}
	return payload, nil
}

func (s *Synchronizer) send(ctx context.Context, host string, port int, payload []byte) (int, string, error) {
	url := "http://" + net.JoinHostPort(host, strconv.Itoa(port)) + s.path

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return 0, "", fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.ContentLength = int64(len(payload))

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, "", nil //nolint:nilerr // status is what matters
	}
	return resp.StatusCode, string(body), nil
}

func (s *Synchronizer) record(ctx context.Context, res *Result) {
	if s.recorder == nil {
		return
	}
	meta := map[string]any{
		"host":       res.Host,
		"port":       res.Port,
		"item_count": res.ItemCount,
		"status":     nil,
	}
	if res.DeviceStatusCode != nil {
		meta["status"] = *res.DeviceStatusCode
	} else {
		meta["error"] = res.DeviceResponse
	}
	s.recorder.Record(ctx, &audit.Entry{
		DeviceID:  res.DeviceID,
		Level:     audit.LevelInfo,
		Message:   audit.MessageSchedulePushed,
		Meta:      meta,
		CreatedAt: time.Now().UTC(),
	})
}
