package device

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/feeder-core/internal/infrastructure/database"
)

// Repository defines the interface for device persistence operations.
// This abstraction allows for different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
type Repository interface {
	// GetByID retrieves a device regardless of its active flag.
	// Returns ErrDeviceNotFound if the device does not exist.
	GetByID(ctx context.Context, id int64) (*Device, error)

	// GetActiveBySerial retrieves an active device by normalised serial.
	// Returns ErrDeviceNotFound for unknown or inactive devices.
	GetActiveBySerial(ctx context.Context, serial string) (*Device, error)

	// ListByOwner retrieves a user's devices, active ones only unless includeInactive.
	ListByOwner(ctx context.Context, ownerUserID string, includeInactive bool) ([]Device, error)

	// Create inserts a new device.
	// Returns ErrDeviceExists if the serial is already registered.
	Create(ctx context.Context, device *Device) error

	// Update modifies name, host, port and model of an existing device.
	// Returns ErrDeviceNotFound if the device does not exist.
	Update(ctx context.Context, device *Device) error

	// UpsertBySerial registers a device or overwrites the mutable fields
	// (name, host, port, owner) of the one already holding the serial.
	// created reports which happened.
	UpsertBySerial(ctx context.Context, reg Registration) (dev *Device, created bool, err error)

	// SetActive flips the soft-delete flag.
	// Returns ErrDeviceNotFound if the device does not exist.
	SetActive(ctx context.Context, id int64, active bool) error

	// GetSettings returns ErrSettingsNotFound when the device has no row yet.
	GetSettings(ctx context.Context, deviceID int64) (*Settings, error)

	// UpsertSettings inserts or replaces the single settings row of a device.
	UpsertSettings(ctx context.Context, settings *Settings) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open SQLite connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const deviceColumns = `id, serial, name, host, port, owner_user_id, model, is_active, created_at, updated_at`

// GetByID retrieves a device by its internal id.
func (r *SQLiteRepository) GetByID(ctx context.Context, id int64) (*Device, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+deviceColumns+` FROM devices WHERE id = ?`, id)
	dev, err := scanDevice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device by id: %w", err)
	}
	return dev, nil
}

// GetActiveBySerial retrieves an active device by serial.
func (r *SQLiteRepository) GetActiveBySerial(ctx context.Context, serial string) (*Device, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+deviceColumns+` FROM devices WHERE serial = ? AND is_active = 1`, serial)
	dev, err := scanDevice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device by serial: %w", err)
	}
	return dev, nil
}

// ListByOwner retrieves a user's devices ordered by id.
func (r *SQLiteRepository) ListByOwner(ctx context.Context, ownerUserID string, includeInactive bool) ([]Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE owner_user_id = ?`
	if !includeInactive {
		query += ` AND is_active = 1`
	}
	query += ` ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, ownerUserID)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		dev, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		devices = append(devices, *dev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}
	return devices, nil
}

// Create inserts a new device and sets its ID and timestamps.
func (r *SQLiteRepository) Create(ctx context.Context, device *Device) error {
	return insertDevice(ctx, r.db, device)
}

// Update modifies an existing device.
func (r *SQLiteRepository) Update(ctx context.Context, device *Device) error {
	device.UpdatedAt = time.Now().UTC()

	result, err := r.db.ExecContext(ctx, `
		UPDATE devices SET name = ?, host = ?, port = ?, model = ?, updated_at = ?
		WHERE id = ?`,
		device.Name, device.Host, device.Port, string(device.Model),
		database.FormatTime(device.UpdatedAt), device.ID,
	)
	if err != nil {
		return fmt.Errorf("updating device: %w", err)
	}
	return requireOneRow(result)
}

// UpsertBySerial registers or re-claims a device in one transaction.
func (r *SQLiteRepository) UpsertBySerial(ctx context.Context, reg Registration) (*Device, bool, error) {
	var (
		dev     *Device
		created bool
	)

	err := database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		var id int64
		err := tx.QueryRowContext(ctx, `SELECT id FROM devices WHERE serial = ?`, reg.Serial).Scan(&id)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			dev = &Device{
				Serial:      reg.Serial,
				Name:        reg.Name,
				Host:        reg.Host,
				Port:        reg.Port,
				OwnerUserID: &reg.OwnerUserID,
				Model:       ModelGeneric,
				Active:      true,
			}
			created = true
			return insertDevice(ctx, tx, dev)
		case err != nil:
			return fmt.Errorf("looking up serial: %w", err)
		}

		now := database.FormatTime(time.Now())
		if _, err := tx.ExecContext(ctx, `
			UPDATE devices SET name = ?, host = ?, port = ?, owner_user_id = ?, updated_at = ?
			WHERE id = ?`,
			reg.Name, reg.Host, reg.Port, reg.OwnerUserID, now, id,
		); err != nil {
			return fmt.Errorf("updating device: %w", err)
		}

		dev, err = scanDevice(tx.QueryRowContext(ctx, `SELECT `+deviceColumns+` FROM devices WHERE id = ?`, id))
		if err != nil {
			return fmt.Errorf("reloading device: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return dev, created, nil
}

// SetActive flips the soft-delete flag.
func (r *SQLiteRepository) SetActive(ctx context.Context, id int64, active bool) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE devices SET is_active = ?, updated_at = ? WHERE id = ?`,
		boolToInt(active), database.FormatTime(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("updating active flag: %w", err)
	}
	return requireOneRow(result)
}

// GetSettings retrieves the settings row of a device.
func (r *SQLiteRepository) GetSettings(ctx context.Context, deviceID int64) (*Settings, error) {
	var (
		s         Settings
		animal    string
		motor     string
		updatedAt string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT device_id, animal_type, portion_default, max_open_ms, motor_type,
			servo_open_angle, servo_close_angle, motor_speed, telemetry_ms,
			mqtt_host, mqtt_port, mqtt_group, updated_at
		FROM device_settings WHERE device_id = ?`, deviceID,
	).Scan(
		&s.DeviceID, &animal, &s.PortionDefault, &s.MaxOpenMs, &motor,
		&s.ServoOpenAngle, &s.ServoCloseAngle, &s.MotorSpeed, &s.TelemetryMs,
		&s.MQTTHost, &s.MQTTPort, &s.MQTTGroup, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSettingsNotFound
		}
		return nil, fmt.Errorf("querying settings: %w", err)
	}

	s.AnimalType = AnimalType(animal)
	s.MotorType = MotorType(motor)
	if s.UpdatedAt, err = database.ParseTime(updatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}

// UpsertSettings writes the settings row (INSERT ... ON CONFLICT DO UPDATE).
func (r *SQLiteRepository) UpsertSettings(ctx context.Context, s *Settings) error {
	s.UpdatedAt = time.Now().UTC()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO device_settings (
			device_id, animal_type, portion_default, max_open_ms, motor_type,
			servo_open_angle, servo_close_angle, motor_speed, telemetry_ms,
			mqtt_host, mqtt_port, mqtt_group, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(device_id) DO UPDATE SET
			animal_type = excluded.animal_type,
			portion_default = excluded.portion_default,
			max_open_ms = excluded.max_open_ms,
			motor_type = excluded.motor_type,
			servo_open_angle = excluded.servo_open_angle,
			servo_close_angle = excluded.servo_close_angle,
			motor_speed = excluded.motor_speed,
			telemetry_ms = excluded.telemetry_ms,
			mqtt_host = excluded.mqtt_host,
			mqtt_port = excluded.mqtt_port,
			mqtt_group = excluded.mqtt_group,
			updated_at = excluded.updated_at`,
		s.DeviceID, string(s.AnimalType), s.PortionDefault, s.MaxOpenMs, string(s.MotorType),
		s.ServoOpenAngle, s.ServoCloseAngle, s.MotorSpeed, s.TelemetryMs,
		s.MQTTHost, s.MQTTPort, s.MQTTGroup, database.FormatTime(s.UpdatedAt),
	)
	if err != nil {
		if isForeignKeyError(err) {
			return ErrDeviceNotFound
		}
		return fmt.Errorf("upserting settings: %w", err)
	}
	return nil
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertDevice(ctx context.Context, db execer, device *Device) error {
	now := time.Now().UTC()
	if device.CreatedAt.IsZero() {
		device.CreatedAt = now
	}
	device.UpdatedAt = now
	if device.Model == "" {
		device.Model = ModelGeneric
	}

	result, err := db.ExecContext(ctx, `
		INSERT INTO devices (serial, name, host, port, owner_user_id, model, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		device.Serial, device.Name, device.Host, device.Port,
		nullableString(device.OwnerUserID), string(device.Model), boolToInt(device.Active),
		database.FormatTime(device.CreatedAt), database.FormatTime(device.UpdatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrDeviceExists
		}
		return fmt.Errorf("inserting device: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading device id: %w", err)
	}
	device.ID = id
	return nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanDevice(row scanner) (*Device, error) {
	var (
		d         Device
		owner     sql.NullString
		model     string
		active    int
		createdAt string
		updatedAt string
	)
	if err := row.Scan(&d.ID, &d.Serial, &d.Name, &d.Host, &d.Port, &owner, &model, &active, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	if owner.Valid {
		d.OwnerUserID = &owner.String
	}
	d.Model = Model(model)
	d.Active = active != 0

	var err error
	if d.CreatedAt, err = database.ParseTime(createdAt); err != nil {
		return nil, err
	}
	if d.UpdatedAt, err = database.ParseTime(updatedAt); err != nil {
		return nil, err
	}
	return &d, nil
}

func requireOneRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

// nullableString returns a sql.NullString for optional string pointers.
func nullableString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// boolToInt converts a boolean to 0/1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// isUniqueConstraintError checks if an error is a SQLite unique constraint violation.
func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func isForeignKeyError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}
