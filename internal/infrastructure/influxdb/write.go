package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementFeedEvents     = "feed_events"
	MeasurementDeviceLogs     = "device_logs"
	MeasurementSchedulePushes = "schedule_pushes"
)

// FeedEvent is one positive feed decision.
type FeedEvent struct {
	Serial      string
	DeviceID    int64
	ScheduleID  int64
	AmountGrams int
	DurationMs  int
	At          time.Time
}

// DeviceLog is one device log entry, counted by level.
type DeviceLog struct {
	Serial   string
	DeviceID int64
	Level    string
	At       time.Time
}

// SchedulePush is one schedule sync attempt. StatusCode is 0 when the
// device could not be reached.
type SchedulePush struct {
	Serial     string
	DeviceID   int64
	ItemCount  int
	StatusCode int
	Delivered  bool
	At         time.Time
}

// WriteFeedEvent records a feed decision. Non-blocking.
func (c *Client) WriteFeedEvent(ev FeedEvent) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(feedEventPoint(ev))
}

// WriteDeviceLog records a device log entry. Non-blocking.
func (c *Client) WriteDeviceLog(l DeviceLog) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(deviceLogPoint(l))
}

// WriteSchedulePush records a schedule sync attempt. Non-blocking.
func (c *Client) WriteSchedulePush(p SchedulePush) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(schedulePushPoint(p))
}

func feedEventPoint(ev FeedEvent) *write.Point {
	return write.NewPoint(
		MeasurementFeedEvents,
		map[string]string{
			"serial":      ev.Serial,
			"device_id":   strconv.FormatInt(ev.DeviceID, 10),
			"schedule_id": strconv.FormatInt(ev.ScheduleID, 10),
		},
		map[string]interface{}{
			"amount_grams": ev.AmountGrams,
			"duration_ms":  ev.DurationMs,
		},
		pointTime(ev.At),
	)
}

func deviceLogPoint(l DeviceLog) *write.Point {
	return write.NewPoint(
		MeasurementDeviceLogs,
		map[string]string{
			"serial":    l.Serial,
			"device_id": strconv.FormatInt(l.DeviceID, 10),
			"level":     l.Level,
		},
		map[string]interface{}{
			"count": 1,
		},
		pointTime(l.At),
	)
}

func schedulePushPoint(p SchedulePush) *write.Point {
	return write.NewPoint(
		MeasurementSchedulePushes,
		map[string]string{
			"serial":    p.Serial,
			"device_id": strconv.FormatInt(p.DeviceID, 10),
			"delivered": strconv.FormatBool(p.Delivered),
		},
		map[string]interface{}{
			"items":       p.ItemCount,
			"status_code": p.StatusCode,
		},
		pointTime(p.At),
	)
}

func pointTime(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}
