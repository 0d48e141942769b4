package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/feeder-core/internal/audit"
	"github.com/nerrad567/feeder-core/internal/device"
	"github.com/nerrad567/feeder-core/internal/infrastructure/mqtt"
)

// mqttIngestTimeout bounds one MQTT-delivered log write.
const mqttIngestTimeout = 5 * time.Second

// ErrReservedMessage is returned when a device tries to write a message the
// core uses as a marker. Accepting one would let a device forge its own
// cooldown.
var ErrReservedMessage = errors.New("events: reserved log message")

// LogInput is a device log entry as sent over HTTP or MQTT.
type LogInput struct {
	Level   string         `json:"level"`
	Message string         `json:"message"`
	Meta    map[string]any `json:"meta"`
}

// DeviceResolver finds an active device by raw serial.
type DeviceResolver interface {
	Resolve(ctx context.Context, raw string) (*device.Device, error)
}

// Appender stores a log entry.
type Appender interface {
	Append(ctx context.Context, e *audit.Entry) error
}

// Ingestor accepts log entries from devices.
type Ingestor struct {
	devices DeviceResolver
	log     Appender
	logger  Logger
}

// NewIngestor creates an Ingestor. logger may be nil.
func NewIngestor(devices DeviceResolver, log Appender, logger Logger) *Ingestor {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Ingestor{devices: devices, log: log, logger: logger}
}

// Ingest stores one entry for the active device identified by rawSerial.
//
// Returns device.ErrDeviceNotFound for a malformed, unknown or inactive
// serial, audit.ErrInvalidEntry for a bad level or message, and
// ErrReservedMessage for core marker messages.
func (in *Ingestor) Ingest(ctx context.Context, rawSerial string, input LogInput) (*audit.Entry, error) {
	dev, err := in.devices.Resolve(ctx, rawSerial)
	if err != nil {
		return nil, err
	}

	level, err := audit.ParseLevel(input.Level)
	if err != nil {
		return nil, err
	}

	message := strings.TrimSpace(input.Message)
	if isReserved(message) {
		return nil, fmt.Errorf("%w: %s", ErrReservedMessage, message)
	}

	entry := &audit.Entry{
		DeviceID: dev.ID,
		Level:    level,
		Message:  message,
		Meta:     input.Meta,
	}
	if err := in.log.Append(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// HandleMQTT is an mqtt.MessageHandler for feeder/+/log.
func (in *Ingestor) HandleMQTT(topic string, payload []byte) error {
	serial, leaf, ok := mqtt.ParseDeviceTopic(topic)
	if !ok || leaf != mqtt.LeafLog {
		return fmt.Errorf("unexpected topic %q", topic)
	}

	var input LogInput
	if err := json.Unmarshal(payload, &input); err != nil {
		return fmt.Errorf("decoding log payload from %s: %w", serial, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), mqttIngestTimeout)
	defer cancel()

	if _, err := in.Ingest(ctx, serial, input); err != nil {
		in.logger.Debug("MQTT log entry rejected", "serial", serial, "error", err)
		return err
	}
	return nil
}

func isReserved(message string) bool {
	switch message {
	case audit.MessageFeedExecuted, audit.MessageSchedulePushed:
		return true
	}
	return false
}
