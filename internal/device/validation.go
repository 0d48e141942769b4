package device

import (
	"fmt"
	"strings"
)

const (
	maxNameLength = 100
	maxHostLength = 253
	defaultPort   = 80
	maxPort       = 65535
)

// Pre-computed validation sets.
var (
	validModels      = toSet(AllModels())
	validAnimalTypes = toSet(AllAnimalTypes())
	validMotorTypes  = toSet(AllMotorTypes())
)

func toSet[T comparable](values []T) map[T]struct{} {
	set := make(map[T]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

// ValidateName checks a device display name. Empty is allowed; the API
// fills in a name derived from the serial.
func ValidateName(name string) error {
	if len(name) > maxNameLength {
		return fmt.Errorf("%w: must be at most %d characters", ErrInvalidName, maxNameLength)
	}
	return nil
}

// ValidateDevice checks a device before it is written.
func ValidateDevice(d *Device) error {
	if d == nil {
		return fmt.Errorf("%w: device is nil", ErrInvalidDevice)
	}
	if err := ValidateSerial(d.Serial); err != nil {
		return err
	}
	if err := ValidateName(d.Name); err != nil {
		return err
	}
	if err := validateEndpoint(d.Host, d.Port); err != nil {
		return err
	}
	if d.Model != "" {
		if _, ok := validModels[d.Model]; !ok {
			return fmt.Errorf("%w: unknown model %q", ErrInvalidDevice, d.Model)
		}
	}
	return nil
}

func validateEndpoint(host string, port int) error {
	if len(host) > maxHostLength || strings.ContainsAny(host, " /?#") {
		return fmt.Errorf("%w: invalid host %q", ErrInvalidDevice, host)
	}
	if port < 1 || port > maxPort {
		return fmt.Errorf("%w: port must be between 1 and %d", ErrInvalidDevice, maxPort)
	}
	return nil
}

// Validate checks calibration values against the device's mechanical limits.
func (s *Settings) Validate() error {
	var errs []string

	if _, ok := validAnimalTypes[s.AnimalType]; !ok {
		errs = append(errs, fmt.Sprintf("unknown animal_type %q", s.AnimalType))
	}
	if s.PortionDefault <= 0 {
		errs = append(errs, "portion_default must be positive")
	}
	if s.MaxOpenMs < 1 || s.MaxOpenMs >= MaxOpenMsCeiling {
		errs = append(errs, fmt.Sprintf("max_open_ms must be between 1 and %d", MaxOpenMsCeiling-1))
	}
	if _, ok := validMotorTypes[s.MotorType]; !ok {
		errs = append(errs, fmt.Sprintf("unknown motor_type %q", s.MotorType))
	}
	if s.ServoOpenAngle < 0 || s.ServoOpenAngle > maxServoAngle {
		errs = append(errs, "servo_open_angle must be between 0 and 180")
	}
	if s.ServoCloseAngle < 0 || s.ServoCloseAngle > maxServoAngle {
		errs = append(errs, "servo_close_angle must be between 0 and 180")
	}
	if s.MotorSpeed < 0 || s.MotorSpeed > maxMotorSpeed {
		errs = append(errs, "motor_speed must be between 0 and 255")
	}
	if s.TelemetryMs < MinTelemetryMs {
		errs = append(errs, fmt.Sprintf("telemetry_ms must be at least %d", MinTelemetryMs))
	}
	if s.MQTTPort < 0 || s.MQTTPort > maxPort {
		errs = append(errs, "mqtt_port must be between 0 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidSettings, strings.Join(errs, "; "))
	}
	return nil
}

// UsableMaxOpenMs returns MaxOpenMs when it lies strictly inside (0, 60000).
func (s *Settings) UsableMaxOpenMs() (int, bool) {
	if s == nil || s.MaxOpenMs <= 0 || s.MaxOpenMs >= MaxOpenMsCeiling {
		return 0, false
	}
	return s.MaxOpenMs, true
}
