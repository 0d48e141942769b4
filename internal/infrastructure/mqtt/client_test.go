package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/feeder-core/internal/infrastructure/config"
)

// testConfig points at a local Mosquitto on 127.0.0.1:1883.
func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Enabled: true,
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "feeder-test",
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

// connectOrSkip connects to the local broker or skips the test.
func connectOrSkip(t *testing.T, clientID string, logger Logger) *Client {
	t.Helper()

	conn, err := net.DialTimeout("tcp", "127.0.0.1:1883", 200*time.Millisecond)
	if err != nil {
		t.Skip("MQTT broker not available, skipping")
	}
	conn.Close()

	cfg := testConfig()
	cfg.Broker.ClientID = clientID
	client, err := Connect(cfg, logger, Hooks{})
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { client.Close() }) //nolint:errcheck // test cleanup
	return client
}

// ─── Topics ──────────────────────────────────────────────────────────────────

func TestTopicBuilders(t *testing.T) {
	topics := Topics{}
	tests := []struct {
		got  string
		want string
	}{
		{topics.DeviceFeed("AABBCCDDEEFF"), "feeder/AABBCCDDEEFF/feed"},
		{topics.DeviceSchedule("AABBCCDDEEFF"), "feeder/AABBCCDDEEFF/schedule"},
		{topics.DeviceLog("AABBCCDDEEFF"), "feeder/AABBCCDDEEFF/log"},
		{topics.AllDeviceLogs(), "feeder/+/log"},
		{topics.SystemStatus(), "feeder/system/status"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("topic = %q, want %q", tt.got, tt.want)
		}
	}
}

func TestParseDeviceTopic(t *testing.T) {
	tests := []struct {
		topic      string
		wantSerial string
		wantLeaf   string
		wantOk     bool
	}{
		{"feeder/AABBCCDDEEFF/log", "AABBCCDDEEFF", "log", true},
		{"feeder/AABBCCDDEEFF/feed", "AABBCCDDEEFF", "feed", true},
		{"feeder/system/status", "", "", false},
		{"feeder//log", "", "", false},
		{"feeder/AABBCCDDEEFF", "", "", false},
		{"feeder/AABBCCDDEEFF/log/extra", "", "", false},
		{"other/AABBCCDDEEFF/log", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			serial, leaf, ok := ParseDeviceTopic(tt.topic)
			if ok != tt.wantOk || serial != tt.wantSerial || leaf != tt.wantLeaf {
				t.Errorf("ParseDeviceTopic(%q) = (%q, %q, %v), want (%q, %q, %v)",
					tt.topic, serial, leaf, ok, tt.wantSerial, tt.wantLeaf, tt.wantOk)
			}
		})
	}
}

// ─── Options ─────────────────────────────────────────────────────────────────

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Auth = config.MQTTAuthConfig{Username: "core", Password: "secret"}

	opts := buildClientOptions(cfg)
	if len(opts.Servers) != 1 || opts.Servers[0].String() != "tcp://127.0.0.1:1883" {
		t.Errorf("Servers = %v", opts.Servers)
	}
	if opts.Username != "core" || opts.Password != "secret" {
		t.Error("credentials not applied")
	}
	if !opts.AutoReconnect || !opts.CleanSession {
		t.Error("expected auto-reconnect and clean session")
	}

	cfg.Broker.TLS = true
	opts = buildClientOptions(cfg)
	if opts.Servers[0].Scheme != "ssl" || opts.TLSConfig == nil {
		t.Errorf("TLS options not applied: %v", opts.Servers)
	}
}

func TestConfigureLWT(t *testing.T) {
	opts := buildClientOptions(testConfig())
	configureLWT(opts, "feeder-core")

	if !opts.WillEnabled || opts.WillTopic != "feeder/system/status" || !opts.WillRetained || opts.WillQos != 1 {
		t.Errorf("will = enabled:%v topic:%q retained:%v qos:%d", opts.WillEnabled, opts.WillTopic, opts.WillRetained, opts.WillQos)
	}

	var msg map[string]string
	if err := json.Unmarshal(opts.WillPayload, &msg); err != nil {
		t.Fatalf("will payload is not JSON: %v", err)
	}
	if msg["status"] != "offline" || msg["reason"] != "unexpected_disconnect" || msg["client_id"] != "feeder-core" {
		t.Errorf("will payload = %v", msg)
	}
}

func TestStatusPayloads(t *testing.T) {
	var online map[string]string
	if err := json.Unmarshal([]byte(buildOnlinePayload("c1")), &online); err != nil {
		t.Fatalf("online payload: %v", err)
	}
	if online["status"] != "online" {
		t.Errorf("status = %q, want online", online["status"])
	}
	if _, ok := online["reason"]; ok {
		t.Error("online payload should omit reason")
	}

	var offline map[string]string
	if err := json.Unmarshal([]byte(buildOfflinePayload("c1")), &offline); err != nil {
		t.Fatalf("offline payload: %v", err)
	}
	if offline["reason"] != "graceful_shutdown" {
		t.Errorf("reason = %q, want graceful_shutdown", offline["reason"])
	}
}

// ─── Validation without a broker ─────────────────────────────────────────────

func TestConnect_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false

	if _, err := Connect(cfg, nil, Hooks{}); !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestUnconnectedClient(t *testing.T) {
	client := &Client{logger: noopLogger{}, subs: make(map[string]subscription)}
	handler := func(string, []byte) error { return nil }

	tests := []struct {
		name    string
		call    func() error
		wantErr error
	}{
		{"publish empty topic", func() error { return client.Publish("", nil, 1, false) }, ErrInvalidTopic},
		{"publish bad qos", func() error { return client.Publish("feeder/x/feed", nil, 3, false) }, ErrInvalidQoS},
		{"publish oversize", func() error { return client.Publish("feeder/x/feed", make([]byte, maxPayloadSize+1), 1, false) }, ErrPublishFailed},
		{"publish disconnected", func() error { return client.Publish("feeder/x/feed", []byte("{}"), 1, false) }, ErrNotConnected},
		{"subscribe empty topic", func() error { return client.Subscribe("", 1, handler) }, ErrInvalidTopic},
		{"subscribe nil handler", func() error { return client.Subscribe("feeder/+/log", 1, nil) }, ErrSubscribeFailed},
		{"subscribe disconnected", func() error { return client.Subscribe("feeder/+/log", 1, handler) }, ErrNotConnected},
		{"subscribe bad qos", func() error { return client.Subscribe("feeder/+/log", 5, handler) }, ErrInvalidQoS},
		{"health", func() error { return client.HealthCheck(context.Background()) }, ErrNotConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(); !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if client.IsConnected() {
		t.Error("IsConnected() should be false for an unconnected client")
	}
	if got := client.Subscriptions(); len(got) != 0 {
		t.Errorf("Subscriptions() = %v, failed subscribe should not be tracked", got)
	}
}

func TestBrokerURL(t *testing.T) {
	tests := []struct {
		broker config.MQTTBrokerConfig
		want   string
	}{
		{config.MQTTBrokerConfig{Host: "broker.local", Port: 1883}, "tcp://broker.local:1883"},
		{config.MQTTBrokerConfig{Host: "broker.local", Port: 8883, TLS: true}, "ssl://broker.local:8883"},
	}
	for _, tt := range tests {
		if got := brokerURL(tt.broker); got != tt.want {
			t.Errorf("brokerURL(%+v) = %q, want %q", tt.broker, got, tt.want)
		}
	}
}

func TestCloseNil(t *testing.T) {
	client := &Client{}
	if err := client.Close(); err != nil {
		t.Errorf("Close() on nil client error = %v, want nil", err)
	}
}

// ─── Against a broker ────────────────────────────────────────────────────────

func TestPublishSubscribeRoundtrip(t *testing.T) {
	client := connectOrSkip(t, "feeder-test-roundtrip", nil)

	var (
		mu       sync.Mutex
		received []string
	)
	done := make(chan struct{}, 1)

	err := client.Subscribe(Topics{}.AllDeviceLogs(), 1, func(topic string, payload []byte) error {
		mu.Lock()
		received = append(received, topic+" "+string(payload))
		mu.Unlock()
		done <- struct{}{}
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if got := client.Subscriptions(); len(got) != 1 || got[0] != "feeder/+/log" {
		t.Errorf("Subscriptions() = %v, want [feeder/+/log]", got)
	}

	if err := client.Publish(Topics{}.DeviceLog("AABBCCDDEEFF"), []byte(`{"message":"boot"}`), 1, false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("message not received")
	}

	mu.Lock()
	defer mu.Unlock()
	if received[0] != `feeder/AABBCCDDEEFF/log {"message":"boot"}` {
		t.Errorf("received = %q", received[0])
	}
}

func TestHandlerPanicRecovered(t *testing.T) {
	logger := &mockLogger{}
	client := connectOrSkip(t, "feeder-test-panic", logger)

	called := make(chan struct{}, 1)
	err := client.Subscribe("feeder/AABBCCDDEEFF/log", 1, func(string, []byte) error {
		called <- struct{}{}
		panic("boom")
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if err := client.Publish("feeder/AABBCCDDEEFF/log", []byte("{}"), 1, false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case <-called:
	case <-time.After(2 * time.Second):
		t.Fatal("handler not called")
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if logger.errorCount() > 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Error("panic was not logged")
}

type mockLogger struct {
	mu     sync.Mutex
	errors []string
}

func (l *mockLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, msg)
}

func (l *mockLogger) Warn(string, ...any) {}

func (l *mockLogger) errorCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.errors)
}
