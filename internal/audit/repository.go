package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/feeder-core/internal/infrastructure/database"
)

// Repository defines the interface for device log storage.
type Repository interface {
	// Append writes an entry, setting ID and (if zero) CreatedAt.
	Append(ctx context.Context, e *Entry) error

	// LatestWithMessage returns the newest entry of a device whose message is
	// exactly marker and whose CreatedAt is at or after since.
	// Returns ErrEntryNotFound when there is none.
	LatestWithMessage(ctx context.Context, deviceID int64, marker string, since time.Time) (*Entry, error)

	// Query lists entries newest first.
	Query(ctx context.Context, filter Filter) (*ListResult, error)
}

// SQLiteRepository stores entries in the device_logs table.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteRepository creates a new device log repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

// Append inserts an entry.
func (r *SQLiteRepository) Append(ctx context.Context, e *Entry) error {
	if e.Level == "" {
		e.Level = LevelInfo
	}
	if err := e.Validate(); err != nil {
		return err
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = r.now().UTC()
	}
	e.CreatedAt = e.CreatedAt.Truncate(time.Millisecond)

	var metaJSON *string
	if e.Meta != nil {
		b, err := json.Marshal(e.Meta)
		if err != nil {
			return fmt.Errorf("marshalling log meta: %w", err)
		}
		s := string(b)
		metaJSON = &s
	}

	result, err := r.db.ExecContext(ctx,
		`INSERT INTO device_logs (device_id, level, message, meta, created_at) VALUES (?, ?, ?, ?, ?)`,
		e.DeviceID, string(e.Level), e.Message, metaJSON, database.FormatTime(e.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting device log: %w", err)
	}
	if e.ID, err = result.LastInsertId(); err != nil {
		return fmt.Errorf("reading log id: %w", err)
	}
	return nil
}

// LatestWithMessage finds the newest matching entry created at or after since.
// Both sides compare at millisecond precision.
func (r *SQLiteRepository) LatestWithMessage(ctx context.Context, deviceID int64, marker string, since time.Time) (*Entry, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, device_id, level, message, meta, created_at
		FROM device_logs
		WHERE device_id = ? AND message = ? AND created_at >= ?
		ORDER BY created_at DESC, id DESC
		LIMIT 1`,
		deviceID, marker, database.FormatTime(since),
	)
	e, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEntryNotFound
		}
		return nil, fmt.Errorf("querying latest %s: %w", marker, err)
	}
	return e, nil
}

// Query returns entries matching the filter, ordered by most recent first.
func (r *SQLiteRepository) Query(ctx context.Context, filter Filter) (*ListResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = DefaultLimit
	}
	if filter.Limit > MaxLimit {
		filter.Limit = MaxLimit
	}

	conditions := []string{"device_id = ?"}
	args := []any{filter.DeviceID}

	if filter.Level != "" {
		conditions = append(conditions, "level = ?")
		args = append(args, string(filter.Level))
	}
	if filter.Contains != "" {
		conditions = append(conditions, `message LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(filter.Contains)+"%")
	}
	if filter.SinceMinutes > 0 {
		since := r.now().Add(-time.Duration(filter.SinceMinutes) * time.Minute)
		conditions = append(conditions, "created_at >= ?")
		args = append(args, database.FormatTime(since))
	}

	where := "WHERE " + strings.Join(conditions, " AND ")

	countQuery := "SELECT COUNT(*) FROM device_logs " + where //nolint:gosec // WHERE built from parameterised conditions, not user input
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting device logs: %w", err)
	}

	query := "SELECT id, device_id, level, message, meta, created_at FROM device_logs " + //nolint:gosec // as above
		where + " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, filter.Limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying device logs: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device log: %w", err)
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating device logs: %w", err)
	}

	return &ListResult{Entries: entries, Total: total, Limit: filter.Limit}, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (*Entry, error) {
	var (
		e         Entry
		level     string
		metaJSON  sql.NullString
		createdAt string
	)
	if err := row.Scan(&e.ID, &e.DeviceID, &level, &e.Message, &metaJSON, &createdAt); err != nil {
		return nil, err
	}
	e.Level = Level(level)

	if metaJSON.Valid && metaJSON.String != "" {
		var meta map[string]any
		if json.Unmarshal([]byte(metaJSON.String), &meta) == nil {
			e.Meta = meta
		}
	}

	var err error
	if e.CreatedAt, err = database.ParseTime(createdAt); err != nil {
		return nil, err
	}
	return &e, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
