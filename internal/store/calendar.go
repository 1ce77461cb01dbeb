package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrEntryNotFound      = errors.New("calendar entry not found")
	ErrInvalidEntryWindow = errors.New("calendar entry must end after it starts")
)

type CalendarEntry struct {
	ID           string
	EmployeeID   string
	EmployeeName string
	StartAt      time.Time
	EndAt        time.Time
	Note         string
	Label        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type CreateEntryInput struct {
	EmployeeID string
	StartAt    time.Time
	EndAt      time.Time
	Note       string
	Label      string
}

// ListEntriesInput selects entries overlapping [From, To). EmployeeID is
// optional.
type ListEntriesInput struct {
	From       time.Time
	To         time.Time
	EmployeeID string
}

type execQueryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const calendarEntryColumns = `e.id, e.employee_id, COALESCE(emp.name, ''), e.start_at_unix, e.end_at_unix,
	e.note, e.label, e.created_at_unix, e.updated_at_unix`

func (s *Store) CreateEntry(ctx context.Context, input CreateEntryInput) (CalendarEntry, error) {
	return insertEntry(ctx, s.db, input)
}

func (s *Store) ListEntries(ctx context.Context, input ListEntriesInput) ([]CalendarEntry, error) {
	if input.From.IsZero() || input.To.IsZero() || !input.To.After(input.From) {
		return nil, fmt.Errorf("list entries: invalid window %s..%s", input.From, input.To)
	}
	query := `SELECT ` + calendarEntryColumns + `
		FROM calendar_entries e
		LEFT JOIN employees emp ON emp.id = e.employee_id
		WHERE e.start_at_unix < ? AND e.end_at_unix > ?`
	args := []any{input.To.UTC().Unix(), input.From.UTC().Unix()}
	if employeeID := strings.TrimSpace(input.EmployeeID); employeeID != "" {
		query += ` AND e.employee_id = ?`
		args = append(args, employeeID)
	}
	query += ` ORDER BY e.start_at_unix ASC, e.id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	var entries []CalendarEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return entries, nil
}

// CalendarTx exposes the calendar operations available inside RunInTx.
type CalendarTx struct {
	tx *sql.Tx
}

// RunInTx runs fn in a single transaction. Any error returned by fn rolls
// back every write made through the CalendarTx.
func (s *Store) RunInTx(ctx context.Context, fn func(tx *CalendarTx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&CalendarTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (c *CalendarTx) LookupEmployeeByName(ctx context.Context, name string) (Employee, error) {
	return lookupEmployeeByName(ctx, c.tx, name)
}

// FindEntryStartingIn returns the earliest entry of the employee whose start
// lies in [from, to).
func (c *CalendarTx) FindEntryStartingIn(ctx context.Context, employeeID string, from, to time.Time) (CalendarEntry, error) {
	row := c.tx.QueryRowContext(
		ctx,
		`SELECT `+calendarEntryColumns+`
		 FROM calendar_entries e
		 LEFT JOIN employees emp ON emp.id = e.employee_id
		 WHERE e.employee_id = ? AND e.start_at_unix >= ? AND e.start_at_unix < ?
		 ORDER BY e.start_at_unix ASC, e.id ASC
		 LIMIT 1`,
		strings.TrimSpace(employeeID),
		from.UTC().Unix(),
		to.UTC().Unix(),
	)
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CalendarEntry{}, ErrEntryNotFound
		}
		return CalendarEntry{}, err
	}
	return entry, nil
}

func (c *CalendarTx) UpdateEntryTimes(ctx context.Context, id string, startAt, endAt time.Time) error {
	if !endAt.After(startAt) {
		return ErrInvalidEntryWindow
	}
	result, err := c.tx.ExecContext(
		ctx,
		`UPDATE calendar_entries SET start_at_unix = ?, end_at_unix = ?, updated_at_unix = ? WHERE id = ?`,
		startAt.UTC().Unix(),
		endAt.UTC().Unix(),
		time.Now().UTC().Unix(),
		strings.TrimSpace(id),
	)
	if err != nil {
		return fmt.Errorf("update entry times: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update entry rows affected: %w", err)
	}
	if affected == 0 {
		return ErrEntryNotFound
	}
	return nil
}

func (c *CalendarTx) CreateEntry(ctx context.Context, input CreateEntryInput) (CalendarEntry, error) {
	return insertEntry(ctx, c.tx, input)
}

func insertEntry(ctx context.Context, db execQueryer, input CreateEntryInput) (CalendarEntry, error) {
	if input.StartAt.IsZero() || !input.EndAt.After(input.StartAt) {
		return CalendarEntry{}, ErrInvalidEntryWindow
	}
	now := time.Now().UTC()
	entry := CalendarEntry{
		ID:         "shift_" + uuid.NewString(),
		EmployeeID: strings.TrimSpace(input.EmployeeID),
		StartAt:    input.StartAt.UTC().Truncate(time.Second),
		EndAt:      input.EndAt.UTC().Truncate(time.Second),
		Note:       strings.TrimSpace(input.Note),
		Label:      strings.TrimSpace(input.Label),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if _, err := db.ExecContext(
		ctx,
		`INSERT INTO calendar_entries (
			id, employee_id, start_at_unix, end_at_unix, note, label, created_at_unix, updated_at_unix
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		nullIfEmpty(entry.EmployeeID),
		entry.StartAt.Unix(),
		entry.EndAt.Unix(),
		nullIfEmpty(entry.Note),
		nullIfEmpty(entry.Label),
		now.Unix(),
		now.Unix(),
	); err != nil {
		return CalendarEntry{}, fmt.Errorf("insert calendar entry: %w", err)
	}
	if entry.EmployeeID != "" {
		var name string
		if err := db.QueryRowContext(ctx, `SELECT name FROM employees WHERE id = ?`, entry.EmployeeID).Scan(&name); err == nil {
			entry.EmployeeName = name
		}
	}
	return entry, nil
}

func scanEntry(row rowScanner) (CalendarEntry, error) {
	var (
		entry         CalendarEntry
		employeeID    sql.NullString
		startAtUnix   int64
		endAtUnix     int64
		note          sql.NullString
		label         sql.NullString
		createdAtUnix int64
		updatedAtUnix int64
	)
	if err := row.Scan(
		&entry.ID,
		&employeeID,
		&entry.EmployeeName,
		&startAtUnix,
		&endAtUnix,
		&note,
		&label,
		&createdAtUnix,
		&updatedAtUnix,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CalendarEntry{}, err
		}
		return CalendarEntry{}, fmt.Errorf("scan calendar entry: %w", err)
	}
	entry.EmployeeID = employeeID.String
	entry.StartAt = time.Unix(startAtUnix, 0).UTC()
	entry.EndAt = time.Unix(endAtUnix, 0).UTC()
	entry.Note = note.String
	entry.Label = label.String
	entry.CreatedAt = unixToTime(createdAtUnix)
	entry.UpdatedAt = unixToTime(updatedAtUnix)
	return entry, nil
}
