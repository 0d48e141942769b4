package schedule

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/feeder-core/internal/infrastructure/database"
)

// Repository defines the interface for schedule persistence.
type Repository interface {
	// ListByDevice returns every schedule of a device with its items.
	ListByDevice(ctx context.Context, deviceID int64) ([]Schedule, error)

	// GetByID returns ErrScheduleNotFound unless the schedule belongs to deviceID.
	GetByID(ctx context.Context, deviceID, scheduleID int64) (*Schedule, error)

	// Create inserts a schedule and its items in one transaction.
	Create(ctx context.Context, s *Schedule) error

	// Update rewrites the schedule row and replaces all of its items.
	Update(ctx context.Context, s *Schedule) error

	// Delete removes a schedule; its items cascade.
	Delete(ctx context.Context, deviceID, scheduleID int64) error

	// EnabledSlots flattens every enabled item of every enabled schedule,
	// ordered by time, schedule id, item id.
	EnabledSlots(ctx context.Context, deviceID int64) ([]Slot, error)

	// MatchSlots is EnabledSlots restricted to the given minutes.
	MatchSlots(ctx context.Context, deviceID int64, times []TimeOfDay) ([]Slot, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// ListByDevice returns a device's schedules ordered by id, items by time.
func (r *SQLiteRepository) ListByDevice(ctx context.Context, deviceID int64) ([]Schedule, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, device_id, name, is_enabled, created_at, updated_at
		FROM schedules WHERE device_id = ? ORDER BY id`, deviceID)
	if err != nil {
		return nil, fmt.Errorf("querying schedules: %w", err)
	}

	schedules := []Schedule{}
	index := make(map[int64]int)
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning schedule: %w", err)
		}
		s.Items = []Item{}
		index[s.ID] = len(schedules)
		schedules = append(schedules, *s)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterating schedules: %w", err)
	}
	rows.Close()

	if len(schedules) == 0 {
		return schedules, nil
	}

	items, err := r.queryItems(ctx, `
		SELECT i.id, i.schedule_id, i.minute_of_day, i.amount_grams, i.duration_ms, i.is_enabled
		FROM schedule_items i
		JOIN schedules s ON s.id = i.schedule_id
		WHERE s.device_id = ?
		ORDER BY i.schedule_id, i.minute_of_day, i.id`, deviceID)
	if err != nil {
		return nil, err
	}
	for _, it := range items {
		if i, ok := index[it.ScheduleID]; ok {
			schedules[i].Items = append(schedules[i].Items, it)
		}
	}
	return schedules, nil
}

// GetByID returns one schedule with its items.
func (r *SQLiteRepository) GetByID(ctx context.Context, deviceID, scheduleID int64) (*Schedule, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, device_id, name, is_enabled, created_at, updated_at
		FROM schedules WHERE id = ? AND device_id = ?`, scheduleID, deviceID)
	s, err := scanSchedule(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrScheduleNotFound
		}
		return nil, fmt.Errorf("querying schedule: %w", err)
	}

	s.Items, err = r.queryItems(ctx, `
		SELECT id, schedule_id, minute_of_day, amount_grams, duration_ms, is_enabled
		FROM schedule_items WHERE schedule_id = ?
		ORDER BY minute_of_day, id`, s.ID)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Create inserts the schedule and its items.
func (r *SQLiteRepository) Create(ctx context.Context, s *Schedule) error {
	now := time.Now().UTC()
	s.CreatedAt, s.UpdatedAt = now, now

	return database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			INSERT INTO schedules (device_id, name, is_enabled, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?)`,
			s.DeviceID, s.Name, boolToInt(s.Enabled), database.FormatTime(now), database.FormatTime(now),
		)
		if err != nil {
			return fmt.Errorf("inserting schedule: %w", err)
		}
		if s.ID, err = result.LastInsertId(); err != nil {
			return fmt.Errorf("reading schedule id: %w", err)
		}
		return insertItems(ctx, tx, s)
	})
}

// Update rewrites the schedule and replaces its items wholesale.
func (r *SQLiteRepository) Update(ctx context.Context, s *Schedule) error {
	s.UpdatedAt = time.Now().UTC()

	return database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE schedules SET name = ?, is_enabled = ?, updated_at = ?
			WHERE id = ? AND device_id = ?`,
			s.Name, boolToInt(s.Enabled), database.FormatTime(s.UpdatedAt), s.ID, s.DeviceID,
		)
		if err != nil {
			return fmt.Errorf("updating schedule: %w", err)
		}
		if n, err := result.RowsAffected(); err != nil {
			return fmt.Errorf("checking rows affected: %w", err)
		} else if n == 0 {
			return ErrScheduleNotFound
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM schedule_items WHERE schedule_id = ?`, s.ID); err != nil {
			return fmt.Errorf("clearing items: %w", err)
		}
		return insertItems(ctx, tx, s)
	})
}

// Delete removes a schedule owned by deviceID.
func (r *SQLiteRepository) Delete(ctx context.Context, deviceID, scheduleID int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM schedules WHERE id = ? AND device_id = ?`, scheduleID, deviceID)
	if err != nil {
		return fmt.Errorf("deleting schedule: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrScheduleNotFound
	}
	return nil
}

const slotQuery = `
	SELECT s.id, s.name, i.id, i.minute_of_day, i.amount_grams, i.duration_ms
	FROM schedule_items i
	JOIN schedules s ON s.id = i.schedule_id
	WHERE s.device_id = ? AND s.is_enabled = 1 AND i.is_enabled = 1`

// EnabledSlots returns the union of all enabled schedules' enabled items.
func (r *SQLiteRepository) EnabledSlots(ctx context.Context, deviceID int64) ([]Slot, error) {
	return r.querySlots(ctx, slotQuery+` ORDER BY i.minute_of_day, s.id, i.id`, deviceID)
}

// MatchSlots returns enabled slots at any of the given minutes.
func (r *SQLiteRepository) MatchSlots(ctx context.Context, deviceID int64, times []TimeOfDay) ([]Slot, error) {
	if len(times) == 0 {
		return nil, nil
	}

	args := make([]any, 0, len(times)+1)
	args = append(args, deviceID)
	for _, t := range times {
		args = append(args, int(t))
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(times)), ",")

	return r.querySlots(ctx,
		slotQuery+` AND i.minute_of_day IN (`+placeholders+`) ORDER BY i.minute_of_day, s.id, i.id`,
		args...)
}

func (r *SQLiteRepository) querySlots(ctx context.Context, query string, args ...any) ([]Slot, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying slots: %w", err)
	}
	defer rows.Close()

	var slots []Slot
	for rows.Next() {
		var (
			s        Slot
			minute   int
			duration sql.NullInt64
		)
		if err := rows.Scan(&s.ScheduleID, &s.ScheduleName, &s.ItemID, &minute, &s.Amount, &duration); err != nil {
			return nil, fmt.Errorf("scanning slot: %w", err)
		}
		s.Time = TimeOfDay(minute)
		s.DurationMs = intPtr(duration)
		slots = append(slots, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating slots: %w", err)
	}
	return slots, nil
}

func (r *SQLiteRepository) queryItems(ctx context.Context, query string, args ...any) ([]Item, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying items: %w", err)
	}
	defer rows.Close()

	items := []Item{}
	for rows.Next() {
		var (
			it       Item
			minute   int
			duration sql.NullInt64
			enabled  int
		)
		if err := rows.Scan(&it.ID, &it.ScheduleID, &minute, &it.Amount, &duration, &enabled); err != nil {
			return nil, fmt.Errorf("scanning item: %w", err)
		}
		it.Time = TimeOfDay(minute)
		it.DurationMs = intPtr(duration)
		it.Enabled = enabled != 0
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating items: %w", err)
	}
	return items, nil
}

func insertItems(ctx context.Context, tx *sql.Tx, s *Schedule) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO schedule_items (schedule_id, minute_of_day, amount_grams, duration_ms, is_enabled)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing item insert: %w", err)
	}
	defer stmt.Close()

	for i := range s.Items {
		it := &s.Items[i]
		var duration sql.NullInt64
		if it.DurationMs != nil {
			duration = sql.NullInt64{Int64: int64(*it.DurationMs), Valid: true}
		}
		result, err := stmt.ExecContext(ctx, s.ID, int(it.Time), it.Amount, duration, boolToInt(it.Enabled))
		if err != nil {
			return fmt.Errorf("inserting item %d: %w", i, err)
		}
		if it.ID, err = result.LastInsertId(); err != nil {
			return fmt.Errorf("reading item id: %w", err)
		}
		it.ScheduleID = s.ID
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSchedule(row scanner) (*Schedule, error) {
	var (
		s         Schedule
		enabled   int
		createdAt string
		updatedAt string
	)
	if err := row.Scan(&s.ID, &s.DeviceID, &s.Name, &enabled, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	s.Enabled = enabled != 0

	var err error
	if s.CreatedAt, err = database.ParseTime(createdAt); err != nil {
		return nil, err
	}
	if s.UpdatedAt, err = database.ParseTime(updatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
