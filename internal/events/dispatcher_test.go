package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/feeder-core/internal/audit"
	"github.com/nerrad567/feeder-core/internal/device"
	"github.com/nerrad567/feeder-core/internal/feeding"
	"github.com/nerrad567/feeder-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/feeder-core/internal/schedule/push"
)

type published struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

type mockPublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (m *mockPublisher) Publish(topic string, payload []byte, qos byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.msgs = append(m.msgs, published{topic, payload, qos, retained})
	return nil
}

type mockTelemetry struct {
	mu    sync.Mutex
	feeds []influxdb.FeedEvent
	logs  []influxdb.DeviceLog
	syncs []influxdb.SchedulePush
}

func (m *mockTelemetry) WriteFeedEvent(ev influxdb.FeedEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.feeds = append(m.feeds, ev)
}

func (m *mockTelemetry) WriteDeviceLog(l influxdb.DeviceLog) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, l)
}

func (m *mockTelemetry) WriteSchedulePush(p influxdb.SchedulePush) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.syncs = append(m.syncs, p)
}

type broadcast struct {
	userID    string
	eventType string
	payload   any
}

type mockHub struct {
	mu   sync.Mutex
	sent []broadcast
}

func (m *mockHub) BroadcastToUser(userID, eventType string, payload any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, broadcast{userID, eventType, payload})
}

type mockLookup struct {
	devices map[int64]*device.Device
}

func (m *mockLookup) GetByID(_ context.Context, id int64) (*device.Device, error) {
	if d, ok := m.devices[id]; ok {
		return d, nil
	}
	return nil, device.ErrDeviceNotFound
}

type warnCounter struct {
	mu    sync.Mutex
	warns int
}

func (w *warnCounter) Debug(string, ...any) {}
func (w *warnCounter) Warn(string, ...any) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.warns++
}

func ownedDevice() *device.Device {
	owner := "usr-alice"
	return &device.Device{ID: 3, Serial: "AABBCCDDEEFF", OwnerUserID: &owner, Active: true}
}

type fixture struct {
	pub *mockPublisher
	tel *mockTelemetry
	hub *mockHub
	d   *Dispatcher
}

func newFixture(logger Logger) *fixture {
	f := &fixture{pub: &mockPublisher{}, tel: &mockTelemetry{}, hub: &mockHub{}}
	lookup := &mockLookup{devices: map[int64]*device.Device{3: ownedDevice()}}
	f.d = NewDispatcher(Sinks{MQTT: f.pub, MQTTQoS: 1, Telemetry: f.tel, Hub: f.hub}, lookup, logger)
	return f
}

// ─── Feed decisions ──────────────────────────────────────────────────────────

func TestDispatcher_FeedDecided(t *testing.T) {
	f := newFixture(nil)
	dec := feeding.Decision{
		ShouldFeed:     true,
		ScheduleID:     2,
		ScheduleItemID: 5,
		MatchedTime:    480,
		CurrentTime:    479,
		Amount:         40,
		DurationMs:     5000,
		DecidedAt:      time.Date(2026, 3, 1, 7, 59, 0, 0, time.UTC),
	}

	f.d.FeedDecided(context.Background(), ownedDevice(), dec)
	f.d.Close()

	if len(f.pub.msgs) != 1 {
		t.Fatalf("published = %d, want 1", len(f.pub.msgs))
	}
	msg := f.pub.msgs[0]
	if msg.topic != "feeder/AABBCCDDEEFF/feed" || msg.retained || msg.qos != 1 {
		t.Errorf("publish = %s retained=%v qos=%d", msg.topic, msg.retained, msg.qos)
	}
	var body FeedMessage
	if err := json.Unmarshal(msg.payload, &body); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if body.MatchedTime != "08:00" || body.CurrentTime != "07:59" || body.Amount != 40 || body.DecidedAt != "2026-03-01T07:59:00Z" {
		t.Errorf("payload = %+v", body)
	}

	if len(f.tel.feeds) != 1 || f.tel.feeds[0].AmountGrams != 40 || f.tel.feeds[0].Serial != "AABBCCDDEEFF" {
		t.Errorf("telemetry = %+v", f.tel.feeds)
	}
	if len(f.hub.sent) != 1 || f.hub.sent[0].userID != "usr-alice" || f.hub.sent[0].eventType != EventFeedDecided {
		t.Errorf("hub = %+v", f.hub.sent)
	}
}

func TestDispatcher_PublishFailureIsLogged(t *testing.T) {
	logger := &warnCounter{}
	f := newFixture(logger)
	f.pub.err = errors.New("not connected")

	f.d.FeedDecided(context.Background(), ownedDevice(), feeding.Decision{ShouldFeed: true})
	f.d.Close()

	if logger.warns != 1 {
		t.Errorf("warns = %d, want 1", logger.warns)
	}
	if len(f.tel.feeds) != 1 || len(f.hub.sent) != 1 {
		t.Error("other sinks should still receive the event")
	}
}

// ─── Queueing ────────────────────────────────────────────────────────────────

// stallingPublisher blocks every Publish until release is closed.
type stallingPublisher struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
	mu      sync.Mutex
	count   int
}

func newStallingPublisher() *stallingPublisher {
	return &stallingPublisher{started: make(chan struct{}), release: make(chan struct{})}
}

func (p *stallingPublisher) Publish(string, []byte, byte, bool) error {
	p.once.Do(func() { close(p.started) })
	<-p.release
	p.mu.Lock()
	p.count++
	p.mu.Unlock()
	return nil
}

func TestDispatcher_FeedDecidedDoesNotWaitForBroker(t *testing.T) {
	pub := newStallingPublisher()
	d := NewDispatcher(Sinks{MQTT: pub, MQTTQoS: 1}, nil, nil)

	start := time.Now()
	d.FeedDecided(context.Background(), ownedDevice(), feeding.Decision{ShouldFeed: true})
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("FeedDecided() took %v with a stalled broker", elapsed)
	}

	select {
	case <-pub.started:
	case <-time.After(2 * time.Second):
		t.Fatal("worker never reached the publisher")
	}
	close(pub.release)
	d.Close()

	if pub.count != 1 {
		t.Errorf("published = %d, want 1", pub.count)
	}
}

func TestDispatcher_QueueFullDropsEvent(t *testing.T) {
	pub := newStallingPublisher()
	logger := &warnCounter{}
	d := newDispatcher(Sinks{MQTT: pub, MQTTQoS: 1}, nil, logger, 1)

	// First event occupies the worker, second fills the queue, third is dropped.
	d.FeedDecided(context.Background(), ownedDevice(), feeding.Decision{ShouldFeed: true})
	<-pub.started
	d.FeedDecided(context.Background(), ownedDevice(), feeding.Decision{ShouldFeed: true})
	d.FeedDecided(context.Background(), ownedDevice(), feeding.Decision{ShouldFeed: true})

	if logger.warns != 1 {
		t.Errorf("warns = %d, want 1", logger.warns)
	}

	close(pub.release)
	d.Close()
	if pub.count != 2 {
		t.Errorf("published = %d, want 2", pub.count)
	}
}

func TestDispatcher_AfterClose(t *testing.T) {
	f := newFixture(nil)
	f.d.Close()
	f.d.Close()

	f.d.FeedDecided(context.Background(), ownedDevice(), feeding.Decision{ShouldFeed: true})

	if len(f.pub.msgs) != 0 || len(f.hub.sent) != 0 {
		t.Error("events after Close should be dropped")
	}
}

func TestDispatcher_NoSinks(t *testing.T) {
	d := NewDispatcher(Sinks{}, nil, nil)

	d.FeedDecided(context.Background(), ownedDevice(), feeding.Decision{})
	d.SchedulePushed(context.Background(), ownedDevice(), push.Result{})
	d.OnLogEntry(audit.Entry{DeviceID: 3})
	d.Close()
}

func TestDispatcher_UnownedDeviceNotBroadcast(t *testing.T) {
	f := newFixture(nil)
	dev := ownedDevice()
	dev.OwnerUserID = nil

	f.d.FeedDecided(context.Background(), dev, feeding.Decision{})
	f.d.Close()

	if len(f.hub.sent) != 0 {
		t.Errorf("hub = %+v, want nothing", f.hub.sent)
	}
	if len(f.pub.msgs) != 1 {
		t.Error("MQTT should still receive the event")
	}
}

// ─── Pushes ──────────────────────────────────────────────────────────────────

func TestDispatcher_SchedulePushed(t *testing.T) {
	f := newFixture(nil)
	status := 200
	res := push.Result{DeviceID: 3, ItemCount: 2, DeviceStatusCode: &status, Payload: []byte(`[{"time":"08:00"}]`)}

	f.d.SchedulePushed(context.Background(), ownedDevice(), res)
	f.d.Close()

	if len(f.pub.msgs) != 1 {
		t.Fatalf("published = %d, want 1", len(f.pub.msgs))
	}
	msg := f.pub.msgs[0]
	if msg.topic != "feeder/AABBCCDDEEFF/schedule" || !msg.retained || string(msg.payload) != `[{"time":"08:00"}]` {
		t.Errorf("publish = %s retained=%v payload=%s", msg.topic, msg.retained, msg.payload)
	}

	if len(f.hub.sent) != 1 {
		t.Fatalf("hub = %d, want 1", len(f.hub.sent))
	}
	pm, ok := f.hub.sent[0].payload.(PushMessage)
	if !ok || !pm.Delivered || pm.ItemCount != 2 {
		t.Errorf("hub payload = %+v", f.hub.sent[0].payload)
	}

	if len(f.tel.syncs) != 1 {
		t.Fatalf("telemetry = %d, want 1", len(f.tel.syncs))
	}
	if got := f.tel.syncs[0]; got.StatusCode != 200 || !got.Delivered || got.ItemCount != 2 || got.Serial != "AABBCCDDEEFF" {
		t.Errorf("telemetry = %+v", got)
	}
}

func TestDispatcher_SchedulePushed_Unreachable(t *testing.T) {
	f := newFixture(nil)

	f.d.SchedulePushed(context.Background(), ownedDevice(), push.Result{DeviceID: 3, DeviceResponse: "connection refused"})
	f.d.Close()

	if len(f.tel.syncs) != 1 || f.tel.syncs[0].StatusCode != 0 || f.tel.syncs[0].Delivered {
		t.Errorf("telemetry = %+v", f.tel.syncs)
	}
}

// ─── Log entries ─────────────────────────────────────────────────────────────

func TestDispatcher_OnLogEntry(t *testing.T) {
	f := newFixture(nil)
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	f.d.OnLogEntry(audit.Entry{ID: 1, DeviceID: 3, Level: audit.LevelWarn, Message: "jam", CreatedAt: at})
	f.d.Close()

	if len(f.tel.logs) != 1 || f.tel.logs[0].Level != "warn" || !f.tel.logs[0].At.Equal(at) {
		t.Errorf("telemetry = %+v", f.tel.logs)
	}
	if len(f.hub.sent) != 1 || f.hub.sent[0].eventType != EventDeviceLog {
		t.Errorf("hub = %+v", f.hub.sent)
	}
	if len(f.pub.msgs) != 0 {
		t.Error("log entries are not republished to MQTT")
	}
}

func TestDispatcher_OnLogEntry_UnknownDevice(t *testing.T) {
	f := newFixture(nil)

	f.d.OnLogEntry(audit.Entry{DeviceID: 99, Message: "x"})
	f.d.Close()

	if len(f.tel.logs) != 0 || len(f.hub.sent) != 0 {
		t.Error("entry for unknown device should be dropped")
	}
}
