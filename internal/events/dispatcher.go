package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/nerrad567/feeder-core/internal/audit"
	"github.com/nerrad567/feeder-core/internal/device"
	"github.com/nerrad567/feeder-core/internal/feeding"
	"github.com/nerrad567/feeder-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/feeder-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/feeder-core/internal/schedule/push"
)

// Event types sent to WebSocket clients.
const (
	EventFeedDecided    = "feed.decided"
	EventSchedulePushed = "schedule.pushed"
	EventDeviceLog      = "device.log"
)

const (
	// lookupTimeout bounds the device lookup done for log entries, which
	// arrive without a request context.
	lookupTimeout = 2 * time.Second

	// defaultQueueSize is how many events may wait for the worker before
	// new ones are dropped.
	defaultQueueSize = 256
)

// Publisher is the MQTT client as the dispatcher sees it.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Telemetry is the InfluxDB client as the dispatcher sees it.
type Telemetry interface {
	WriteFeedEvent(ev influxdb.FeedEvent)
	WriteDeviceLog(l influxdb.DeviceLog)
	WriteSchedulePush(p influxdb.SchedulePush)
}

// Broadcaster delivers an event to the live connections of one operator.
type Broadcaster interface {
	BroadcastToUser(userID, eventType string, payload any)
}

// DeviceLookup finds a device by id, active or not.
type DeviceLookup interface {
	GetByID(ctx context.Context, id int64) (*device.Device, error)
}

// Logger is the logging interface used by the dispatcher.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Sinks holds the optional outputs. Nil fields are skipped.
type Sinks struct {
	MQTT      Publisher
	MQTTQoS   byte
	Telemetry Telemetry
	Hub       Broadcaster
}

// Dispatcher fans domain events out to the configured sinks.
//
// The observer methods only enqueue; a single worker goroutine does the
// publishing, so a stalled broker never holds up a feed check. When the
// queue is full the event is dropped and logged. Close drains the queue.
type Dispatcher struct {
	sinks   Sinks
	devices DeviceLookup
	logger  Logger

	mu     sync.RWMutex
	closed bool
	queue  chan dispatchJob
	done   chan struct{}
}

type dispatchJob struct {
	event string
	run   func()
}

// NewDispatcher creates a Dispatcher and starts its worker. devices is
// needed to route log entries; logger may be nil.
func NewDispatcher(sinks Sinks, devices DeviceLookup, logger Logger) *Dispatcher {
	return newDispatcher(sinks, devices, logger, defaultQueueSize)
}

func newDispatcher(sinks Sinks, devices DeviceLookup, logger Logger, queueSize int) *Dispatcher {
	if logger == nil {
		logger = noopLogger{}
	}
	d := &Dispatcher{
		sinks:   sinks,
		devices: devices,
		logger:  logger,
		queue:   make(chan dispatchJob, queueSize),
		done:    make(chan struct{}),
	}
	go d.work()
	return d
}

func (d *Dispatcher) work() {
	defer close(d.done)
	for job := range d.queue {
		d.runJob(job)
	}
}

func (d *Dispatcher) runJob(job dispatchJob) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Warn("event dispatch panic recovered", "event", job.event, "panic", r)
		}
	}()
	job.run()
}

func (d *Dispatcher) enqueue(event string, run func()) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.logger.Debug("dispatcher closed, event dropped", "event", event)
		return
	}
	select {
	case d.queue <- dispatchJob{event: event, run: run}:
	default:
		d.logger.Warn("event queue full, event dropped", "event", event)
	}
}

// Close stops accepting events and waits for the queued ones to be sent.
// Safe to call more than once.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()
	<-d.done
}

// FeedMessage is published on feeder/{serial}/feed and sent to the hub.
type FeedMessage struct {
	DeviceID       int64  `json:"device_id"`
	Serial         string `json:"serial"`
	ScheduleID     int64  `json:"schedule_id"`
	ScheduleItemID int64  `json:"schedule_item_id"`
	MatchedTime    string `json:"matched_time"`
	CurrentTime    string `json:"current_time"`
	Amount         int    `json:"amount"`
	DurationMs     int    `json:"duration_ms"`
	DecidedAt      string `json:"decided_at"`
}

// PushMessage is sent to the hub after a schedule push.
type PushMessage struct {
	DeviceID         int64  `json:"device_id"`
	Serial           string `json:"serial"`
	ItemCount        int    `json:"item_count"`
	DeviceStatusCode *int   `json:"device_status_code"`
	Delivered        bool   `json:"delivered"`
}

// FeedDecided implements feeding.Observer. It returns immediately.
func (d *Dispatcher) FeedDecided(_ context.Context, dev *device.Device, dec feeding.Decision) {
	d.enqueue(EventFeedDecided, func() { d.sendFeed(dev, dec) })
}

func (d *Dispatcher) sendFeed(dev *device.Device, dec feeding.Decision) {
	msg := FeedMessage{
		DeviceID:       dev.ID,
		Serial:         dev.Serial,
		ScheduleID:     dec.ScheduleID,
		ScheduleItemID: dec.ScheduleItemID,
		MatchedTime:    dec.MatchedTime.String(),
		CurrentTime:    dec.CurrentTime.String(),
		Amount:         dec.Amount,
		DurationMs:     dec.DurationMs,
		DecidedAt:      dec.DecidedAt.UTC().Format(time.RFC3339),
	}

	d.publishJSON(mqtt.Topics{}.DeviceFeed(dev.Serial), msg, false)

	if d.sinks.Telemetry != nil {
		d.sinks.Telemetry.WriteFeedEvent(influxdb.FeedEvent{
			Serial:      dev.Serial,
			DeviceID:    dev.ID,
			ScheduleID:  dec.ScheduleID,
			AmountGrams: dec.Amount,
			DurationMs:  dec.DurationMs,
			At:          dec.DecidedAt,
		})
	}

	d.broadcast(dev, EventFeedDecided, msg)
}

// SchedulePushed implements push.Notifier. The pushed payload is retained on
// feeder/{serial}/schedule so a device that reconnects to the broker picks
// up its current schedule.
func (d *Dispatcher) SchedulePushed(_ context.Context, dev *device.Device, res push.Result) {
	d.enqueue(EventSchedulePushed, func() { d.sendPush(dev, res) })
}

func (d *Dispatcher) sendPush(dev *device.Device, res push.Result) {
	d.publish(mqtt.Topics{}.DeviceSchedule(dev.Serial), res.Payload, true)

	if d.sinks.Telemetry != nil {
		status := 0
		if res.DeviceStatusCode != nil {
			status = *res.DeviceStatusCode
		}
		d.sinks.Telemetry.WriteSchedulePush(influxdb.SchedulePush{
			Serial:     dev.Serial,
			DeviceID:   dev.ID,
			ItemCount:  res.ItemCount,
			StatusCode: status,
			Delivered:  res.Delivered(),
		})
	}

	d.broadcast(dev, EventSchedulePushed, PushMessage{
		DeviceID:         dev.ID,
		Serial:           dev.Serial,
		ItemCount:        res.ItemCount,
		DeviceStatusCode: res.DeviceStatusCode,
		Delivered:        res.Delivered(),
	})
}

// OnLogEntry implements audit.Listener.
func (d *Dispatcher) OnLogEntry(e audit.Entry) {
	if d.devices == nil {
		return
	}
	d.enqueue(EventDeviceLog, func() { d.sendLog(e) })
}

func (d *Dispatcher) sendLog(e audit.Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), lookupTimeout)
	defer cancel()

	dev, err := d.devices.GetByID(ctx, e.DeviceID)
	if err != nil {
		d.logger.Debug("log entry for unknown device not dispatched", "device_id", e.DeviceID, "error", err)
		return
	}

	if d.sinks.Telemetry != nil {
		d.sinks.Telemetry.WriteDeviceLog(influxdb.DeviceLog{
			Serial:   dev.Serial,
			DeviceID: dev.ID,
			Level:    string(e.Level),
			At:       e.CreatedAt,
		})
	}

	d.broadcast(dev, EventDeviceLog, e)
}

func (d *Dispatcher) publishJSON(topic string, v any, retained bool) {
	if d.sinks.MQTT == nil {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		d.logger.Warn("encoding MQTT payload failed", "topic", topic, "error", err)
		return
	}
	d.publish(topic, payload, retained)
}

func (d *Dispatcher) publish(topic string, payload []byte, retained bool) {
	if d.sinks.MQTT == nil {
		return
	}
	if err := d.sinks.MQTT.Publish(topic, payload, d.sinks.MQTTQoS, retained); err != nil {
		d.logger.Warn("MQTT publish failed", "topic", topic, "error", err)
	}
}

// broadcast goes to the device owner only. Unowned devices have no audience.
func (d *Dispatcher) broadcast(dev *device.Device, eventType string, payload any) {
	if d.sinks.Hub == nil || dev.OwnerUserID == nil {
		return
	}
	d.sinks.Hub.BroadcastToUser(*dev.OwnerUserID, eventType, payload)
}

var (
	_ feeding.Observer = (*Dispatcher)(nil)
	_ push.Notifier    = (*Dispatcher)(nil)
	_ audit.Listener   = (*Dispatcher)(nil)
)
