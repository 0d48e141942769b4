package device

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nerrad567/feeder-core/internal/infrastructure/config"
)

// Logger defines the logging interface used by the Directory.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Directory resolves hardware identifiers to devices and enforces ownership.
type Directory struct {
	repo     Repository
	fallback config.DevicesConfig
	logger   Logger
}

// NewDirectory creates a Directory. fallback supplies the control endpoint
// for devices that never reported their own host or port.
func NewDirectory(repo Repository, fallback config.DevicesConfig, logger Logger) *Directory {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Directory{repo: repo, fallback: fallback, logger: logger}
}

// Resolve finds the ACTIVE device for a raw identifier. Malformed identifiers
// and inactive devices both come back as ErrDeviceNotFound; any other error
// is a storage failure.
func (d *Directory) Resolve(ctx context.Context, raw string) (*Device, error) {
	serial, err := ParseSerial(raw)
	if err != nil {
		d.logger.Debug("unresolvable serial", "raw", raw)
		return nil, ErrDeviceNotFound
	}
	return d.repo.GetActiveBySerial(ctx, serial)
}

// ResolveOrCreate registers a device by serial, or re-claims the existing row
// for reg.OwnerUserID. Only authenticated callers reach this.
func (d *Directory) ResolveOrCreate(ctx context.Context, reg Registration) (*Device, bool, error) {
	serial, err := ParseSerial(reg.Serial)
	if err != nil {
		return nil, false, err
	}
	reg.Serial = serial

	if strings.TrimSpace(reg.OwnerUserID) == "" {
		return nil, false, fmt.Errorf("%w: owner is required", ErrInvalidDevice)
	}
	if strings.TrimSpace(reg.Name) == "" {
		reg.Name = "feeder-" + serial
	}
	if reg.Port == 0 {
		reg.Port = defaultPort
	}
	if err := ValidateName(reg.Name); err != nil {
		return nil, false, err
	}
	if err := validateEndpoint(reg.Host, reg.Port); err != nil {
		return nil, false, err
	}

	dev, created, err := d.repo.UpsertBySerial(ctx, reg)
	if err != nil {
		return nil, false, err
	}

	if created {
		d.logger.Info("device registered", "device_id", dev.ID, "serial", serial, "owner", reg.OwnerUserID)
	} else {
		d.logger.Info("device re-registered", "device_id", dev.ID, "serial", serial, "owner", reg.OwnerUserID)
	}
	return dev, created, nil
}

// GetOwned returns a device only when userID owns it. A foreign device is
// reported as ErrDeviceNotFound so its existence does not leak.
func (d *Directory) GetOwned(ctx context.Context, id int64, userID string) (*Device, error) {
	dev, err := d.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !dev.OwnedBy(userID) {
		return nil, ErrDeviceNotFound
	}
	return dev, nil
}

// ListOwned lists a user's devices.
func (d *Directory) ListOwned(ctx context.Context, userID string, includeInactive bool) ([]Device, error) {
	devices, err := d.repo.ListByOwner(ctx, userID, includeInactive)
	if err != nil {
		return nil, err
	}
	if devices == nil {
		devices = []Device{}
	}
	return devices, nil
}

// Update edits an owned device's name, endpoint and model.
func (d *Directory) Update(ctx context.Context, dev *Device) error {
	if err := ValidateDevice(dev); err != nil {
		return err
	}
	return d.repo.Update(ctx, dev)
}

// SetActive toggles the soft-delete flag of an owned device.
func (d *Directory) SetActive(ctx context.Context, id int64, userID string, active bool) error {
	if _, err := d.GetOwned(ctx, id, userID); err != nil {
		return err
	}
	if err := d.repo.SetActive(ctx, id, active); err != nil {
		return err
	}
	d.logger.Info("device active flag changed", "device_id", id, "active", active)
	return nil
}

// Settings returns a device's settings, or the defaults when none are stored.
func (d *Directory) Settings(ctx context.Context, deviceID int64) (*Settings, error) {
	s, err := d.repo.GetSettings(ctx, deviceID)
	if errors.Is(err, ErrSettingsNotFound) {
		def := DefaultSettings(deviceID)
		return &def, nil
	}
	return s, err
}

// SaveSettings validates and upserts a device's settings.
func (d *Directory) SaveSettings(ctx context.Context, s *Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	return d.repo.UpsertSettings(ctx, s)
}

// Endpoint returns the host and port of a device's control API, falling back
// to the configured defaults for unset fields.
func (d *Directory) Endpoint(dev *Device) (string, int) {
	host, port := dev.Host, dev.Port
	if host == "" {
		host = d.fallback.FallbackHost
	}
	if port == 0 {
		port = d.fallback.FallbackPort
	}
	return host, port
}
