package mqtt

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/feeder-core/internal/infrastructure/config"
)

const (
	connectTimeout      = 10 * time.Second
	publishTimeout      = 5 * time.Second
	disconnectQuiesceMs = 1000
	keepAlive           = 60 * time.Second

	maxQoS         = 2
	maxPayloadSize = 1 << 20
)

// buildClientOptions maps config onto paho options: tcp:// or ssl:// broker
// URL, credentials when set, clean session and auto-reconnect.
func buildClientOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	opts.AddBroker(brokerURL(cfg.Broker))
	opts.SetClientID(cfg.Broker.ClientID)
	opts.SetConnectTimeout(connectTimeout)
	opts.SetKeepAlive(keepAlive)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}

	// Devices re-send logs; no broker-side session is kept.
	opts.SetCleanSession(true)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(time.Duration(cfg.Reconnect.InitialDelay) * time.Second)
	opts.SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Second)

	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}

	return opts
}

func brokerURL(b config.MQTTBrokerConfig) string {
	scheme := "tcp"
	if b.TLS {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, b.Host, b.Port)
}

// configureLWT registers the retained QoS 1 offline message the broker
// publishes on feeder/system/status if the core drops without Close.
func configureLWT(opts *pahomqtt.ClientOptions, clientID string) {
	willTopic := Topics{}.SystemStatus()
	opts.SetWill(willTopic, statusPayload(clientID, "offline", "unexpected_disconnect"), 1, true)
}

func buildOnlinePayload(clientID string) string {
	return statusPayload(clientID, "online", "")
}

func buildOfflinePayload(clientID string) string {
	return statusPayload(clientID, "offline", "graceful_shutdown")
}

// statusPayload renders a system status message. reason is omitted when empty.
func statusPayload(clientID, status, reason string) string {
	msg := struct {
		Status    string `json:"status"`
		ClientID  string `json:"client_id"`
		Reason    string `json:"reason,omitempty"`
		Timestamp string `json:"timestamp"`
	}{status, clientID, reason, time.Now().UTC().Format(time.RFC3339)}

	b, _ := json.Marshal(msg) //nolint:errcheck // plain strings always encode
	return string(b)
}
