package mqtt

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/feeder-core/internal/infrastructure/config"
)

var (
	ErrDisabled         = errors.New("mqtt: disabled in configuration")
	ErrConnectionFailed = errors.New("mqtt: connection failed")
	ErrNotConnected     = errors.New("mqtt: client not connected")
	ErrPublishFailed    = errors.New("mqtt: publish failed")
	ErrSubscribeFailed  = errors.New("mqtt: subscribe failed")
	ErrInvalidQoS       = errors.New("mqtt: invalid QoS level (must be 0, 1, or 2)")
	ErrInvalidTopic     = errors.New("mqtt: topic cannot be empty")
)

// Logger is satisfied by *logging.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Error(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Hooks are optional connection callbacks. OnConnect fires on the first
// connect and on every reconnect.
type Hooks struct {
	OnConnect        func()
	OnConnectionLost func(err error)
}

// MessageHandler receives a message on a subscribed topic. Handlers run on
// paho's goroutines; a returned error is logged at warn.
type MessageHandler func(topic string, payload []byte) error

type subscription struct {
	qos     byte
	handler MessageHandler
}

// Client is the feeder bus connection. Subscriptions survive reconnects and
// the core's online/offline state is kept on feeder/system/status.
type Client struct {
	paho   pahomqtt.Client
	cfg    config.MQTTConfig
	logger Logger
	hooks  Hooks

	connected atomic.Bool

	mu   sync.Mutex
	subs map[string]subscription
}

// Connect dials the broker with auto-reconnect and the status LWT. logger
// may be nil. Returns ErrDisabled when cfg.Enabled is false.
func Connect(cfg config.MQTTConfig, logger Logger, hooks Hooks) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}
	if logger == nil {
		logger = noopLogger{}
	}

	c := &Client{
		cfg:    cfg,
		logger: logger,
		hooks:  hooks,
		subs:   make(map[string]subscription),
	}

	opts := buildClientOptions(cfg)
	configureLWT(opts, cfg.Broker.ClientID)
	opts.SetOnConnectHandler(func(pahomqtt.Client) { c.onConnect() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.onConnectionLost(err) })
	opts.SetReconnectingHandler(func(pahomqtt.Client, *pahomqtt.ClientOptions) {
		c.logger.Warn("MQTT reconnecting", "broker", cfg.Broker.Host)
	})

	c.paho = pahomqtt.NewClient(opts)
	token := c.paho.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, connectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// onConnect may still be in flight on paho's goroutine.
	c.connected.Store(true)
	return c, nil
}

func (c *Client) onConnect() {
	c.connected.Store(true)

	c.mu.Lock()
	for topic, sub := range c.subs {
		c.paho.Subscribe(topic, sub.qos, c.dispatch(sub.handler))
	}
	c.mu.Unlock()

	c.paho.Publish(Topics{}.SystemStatus(), c.qos(), true, buildOnlinePayload(c.cfg.Broker.ClientID))

	if c.hooks.OnConnect != nil {
		c.hooks.OnConnect()
	}
}

func (c *Client) onConnectionLost(err error) {
	c.connected.Store(false)
	if c.hooks.OnConnectionLost != nil {
		c.hooks.OnConnectionLost(err)
	}
}

// IsConnected reports the last known connection state.
func (c *Client) IsConnected() bool {
	return c.paho != nil && c.connected.Load() && c.paho.IsConnected()
}

// HealthCheck returns ErrNotConnected while the broker is unreachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// Close replaces the retained status with a graceful offline marker, which
// tells listeners apart from an LWT crash, then disconnects.
func (c *Client) Close() error {
	if c.paho == nil {
		return nil
	}
	if c.IsConnected() {
		token := c.paho.Publish(Topics{}.SystemStatus(), c.qos(), true, buildOfflinePayload(c.cfg.Broker.ClientID))
		token.WaitTimeout(publishTimeout)
	}
	c.paho.Disconnect(disconnectQuiesceMs)
	c.connected.Store(false)
	return nil
}

// Publish sends payload and waits for the broker acknowledgement (QoS 1/2)
// or the socket write (QoS 0). Events such as feed decisions are never
// retained; the effective schedule is.
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if err := checkTopic(topic, qos); err != nil {
		return err
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload is %d bytes, limit %d", ErrPublishFailed, len(payload), maxPayloadSize)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.paho.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, publishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

// Subscribe registers handler for topic (wildcards allowed). The
// subscription is tracked only once the broker has accepted it.
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	if err := checkTopic(topic, qos); err != nil {
		return err
	}
	if handler == nil {
		return fmt.Errorf("%w: nil handler", ErrSubscribeFailed)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.paho.Subscribe(topic, qos, c.dispatch(handler))
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrSubscribeFailed, publishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}

	c.mu.Lock()
	c.subs[topic] = subscription{qos: qos, handler: handler}
	c.mu.Unlock()
	return nil
}

// Subscriptions lists the tracked topic filters, sorted.
func (c *Client) Subscriptions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	topics := make([]string, 0, len(c.subs))
	for topic := range c.subs {
		topics = append(topics, topic)
	}
	sort.Strings(topics)
	return topics
}

// dispatch adapts a MessageHandler to paho, recovering panics.
func (c *Client) dispatch(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				c.logger.Error("MQTT handler panic recovered", "topic", msg.Topic(), "panic", r)
			}
		}()

		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			c.logger.Warn("MQTT handler returned error", "topic", msg.Topic(), "error", err)
		}
	}
}

func (c *Client) qos() byte {
	return byte(c.cfg.QoS) // #nosec G115 -- validated 0..2 by config
}

func checkTopic(topic string, qos byte) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	return nil
}
