package device

import "time"

// Device is a registered feeder. Matches the devices table in
// migrations/20260301_090000_initial_schema.up.sql.
type Device struct {
	ID     int64  `json:"id"`
	Serial string `json:"serial"`
	Name   string `json:"name"`

	// Host and Port address the feeder's own HTTP control API.
	Host string `json:"host"`
	Port int    `json:"port"`

	OwnerUserID *string `json:"owner_user_id,omitempty"`
	Model       Model   `json:"model"`

	// Active is false once the device is soft-deleted.
	Active bool `json:"is_active"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// OwnedBy reports whether userID owns the device.
func (d *Device) OwnedBy(userID string) bool {
	return d != nil && d.OwnerUserID != nil && *d.OwnerUserID == userID
}

// Model is the hardware board a feeder is built on.
type Model string

// Supported board models.
const (
	ModelGeneric         Model = "generic"
	ModelESP8266WemosD1  Model = "esp8266_wemos_d1"
	ModelESP32           Model = "esp32"
	ModelRaspberryPiZero Model = "raspberry_pi_zero_w"
)

// AllModels returns every recognised model.
func AllModels() []Model {
	return []Model{ModelGeneric, ModelESP8266WemosD1, ModelESP32, ModelRaspberryPiZero}
}

// Registration is the input to register-or-update by serial.
type Registration struct {
	Serial      string
	OwnerUserID string
	Name        string
	Host        string
	Port        int
}

// Settings is the per-device calibration. One row per device.
type Settings struct {
	DeviceID int64 `json:"device_id"`

	AnimalType     AnimalType `json:"animal_type"`
	PortionDefault int        `json:"portion_default"` // grams

	// MaxOpenMs is the device's safety ceiling for one dispense, and the
	// feed duration used when a schedule item carries none.
	MaxOpenMs int `json:"max_open_ms"`

	MotorType       MotorType `json:"motor_type"`
	ServoOpenAngle  int       `json:"servo_open_angle"`
	ServoCloseAngle int       `json:"servo_close_angle"`
	MotorSpeed      int       `json:"motor_speed"`
	TelemetryMs     int       `json:"telemetry_ms"`

	MQTTHost  string `json:"mqtt_host"`
	MQTTPort  int    `json:"mqtt_port"`
	MQTTGroup string `json:"mqtt_group"`

	UpdatedAt time.Time `json:"updated_at"`
}

// AnimalType selects a portion profile on the device.
type AnimalType string

// Animal profiles.
const (
	AnimalCat         AnimalType = "cat"
	AnimalDogSmall    AnimalType = "dog_small"
	AnimalDogMedium   AnimalType = "dog_medium"
	AnimalDogLarge    AnimalType = "dog_large"
	AnimalSmallAnimal AnimalType = "small_animal"
)

// AllAnimalTypes returns every recognised animal profile.
func AllAnimalTypes() []AnimalType {
	return []AnimalType{AnimalCat, AnimalDogSmall, AnimalDogMedium, AnimalDogLarge, AnimalSmallAnimal}
}

// MotorType is the lid actuator fitted to the device.
type MotorType string

// Actuators.
const (
	MotorDC      MotorType = "dc"
	MotorServo   MotorType = "servo"
	MotorStepper MotorType = "stepper"
)

// AllMotorTypes returns every recognised actuator.
func AllMotorTypes() []MotorType {
	return []MotorType{MotorDC, MotorServo, MotorStepper}
}

// Settings defaults applied when a device has no row yet.
const (
	DefaultPortionGrams = 100
	DefaultMaxOpenMs    = 5000
	DefaultTelemetryMs  = 7000
	DefaultMotorSpeed   = 255
	DefaultServoOpen    = 90
	DefaultServoClose   = 0
	DefaultMQTTPort     = 1883
	MaxOpenMsCeiling    = 60000
	MinTelemetryMs      = 1000
	maxServoAngle       = 180
	maxMotorSpeed       = 255
)

// DefaultSettings returns the settings a new device starts with.
func DefaultSettings(deviceID int64) Settings {
	return Settings{
		DeviceID:        deviceID,
		AnimalType:      AnimalDogMedium,
		PortionDefault:  DefaultPortionGrams,
		MaxOpenMs:       DefaultMaxOpenMs,
		MotorType:       MotorDC,
		ServoOpenAngle:  DefaultServoOpen,
		ServoCloseAngle: DefaultServoClose,
		MotorSpeed:      DefaultMotorSpeed,
		TelemetryMs:     DefaultTelemetryMs,
		MQTTPort:        DefaultMQTTPort,
	}
}
