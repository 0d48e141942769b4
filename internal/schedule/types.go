package schedule

import "time"

// Schedule is a named set of feed times for one device.
type Schedule struct {
	ID        int64     `json:"id"`
	DeviceID  int64     `json:"device_id"`
	Name      string    `json:"name"`
	Enabled   bool      `json:"enabled"`
	Items     []Item    `json:"items"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Item is one feed instruction inside a schedule.
type Item struct {
	ID         int64     `json:"id"`
	ScheduleID int64     `json:"schedule_id"`
	Time       TimeOfDay `json:"time"`
	Amount     int       `json:"amount"` // grams

	// DurationMs overrides the device default when set.
	DurationMs *int `json:"duration_ms"`

	Enabled bool `json:"enabled"`
}

// Slot is an enabled item of an enabled schedule, flattened with the
// schedule it came from.
type Slot struct {
	ScheduleID   int64
	ScheduleName string
	ItemID       int64
	Time         TimeOfDay
	Amount       int
	DurationMs   *int
}
