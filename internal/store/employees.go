package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrEmployeeNotFound = errors.New("employee not found")
	ErrEmployeeInvalid  = errors.New("employee input is invalid")
)

// Preferences are the scheduling preferences recorded for an employee.
// DaysOff holds YYYY-MM-DD dates.
type Preferences struct {
	PreferredShifts      []string
	PreferredDays        []string
	DaysOff              []string
	MaxWeeklyHours       int
	MaxConsecutiveShifts int
}

func (p Preferences) IsZero() bool {
	return len(p.PreferredShifts) == 0 &&
		len(p.PreferredDays) == 0 &&
		len(p.DaysOff) == 0 &&
		p.MaxWeeklyHours == 0 &&
		p.MaxConsecutiveShifts == 0
}

type Employee struct {
	ID          string
	Name        string
	Preferences Preferences
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type UpsertEmployeeInput struct {
	Name        string
	Preferences Preferences
}

// UpsertEmployee creates the employee or replaces the preferences of the
// employee with the same name.
func (s *Store) UpsertEmployee(ctx context.Context, input UpsertEmployeeInput) (Employee, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return Employee{}, ErrEmployeeInvalid
	}
	preferred, err := encodeStringList(input.Preferences.PreferredShifts)
	if err != nil {
		return Employee{}, err
	}
	days, err := encodeStringList(input.Preferences.PreferredDays)
	if err != nil {
		return Employee{}, err
	}
	daysOff, err := encodeStringList(input.Preferences.DaysOff)
	if err != nil {
		return Employee{}, err
	}

	now := time.Now().UTC()
	if _, err := s.db.ExecContext(
		ctx,
		`INSERT INTO employees (
			id, name, preferred_shifts_json, preferred_days_json, days_off_json,
			max_weekly_hours, max_consecutive_shifts, created_at_unix, updated_at_unix
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			preferred_shifts_json = excluded.preferred_shifts_json,
			preferred_days_json = excluded.preferred_days_json,
			days_off_json = excluded.days_off_json,
			max_weekly_hours = excluded.max_weekly_hours,
			max_consecutive_shifts = excluded.max_consecutive_shifts,
			updated_at_unix = excluded.updated_at_unix`,
		"emp_"+uuid.NewString(),
		name,
		preferred,
		days,
		daysOff,
		nullIfZero(input.Preferences.MaxWeeklyHours),
		nullIfZero(input.Preferences.MaxConsecutiveShifts),
		now.Unix(),
		now.Unix(),
	); err != nil {
		return Employee{}, fmt.Errorf("upsert employee: %w", err)
	}
	return lookupEmployeeByName(ctx, s.db, name)
}

func (s *Store) ListEmployees(ctx context.Context) ([]Employee, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, name, preferred_shifts_json, preferred_days_json, days_off_json,
			max_weekly_hours, max_consecutive_shifts, created_at_unix, updated_at_unix
		 FROM employees
		 ORDER BY name ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list employees: %w", err)
	}
	defer rows.Close()

	var employees []Employee
	for rows.Next() {
		employee, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		employees = append(employees, employee)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate employees: %w", err)
	}
	return employees, nil
}

func (s *Store) LookupEmployeeByName(ctx context.Context, name string) (Employee, error) {
	return lookupEmployeeByName(ctx, s.db, name)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// lookupEmployeeByName matches the stored name exactly.
func lookupEmployeeByName(ctx context.Context, db queryRower, name string) (Employee, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Employee{}, ErrEmployeeNotFound
	}
	row := db.QueryRowContext(
		ctx,
		`SELECT id, name, preferred_shifts_json, preferred_days_json, days_off_json,
			max_weekly_hours, max_consecutive_shifts, created_at_unix, updated_at_unix
		 FROM employees
		 WHERE name = ?`,
		name,
	)
	employee, err := scanEmployee(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Employee{}, ErrEmployeeNotFound
		}
		return Employee{}, err
	}
	return employee, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEmployee(row rowScanner) (Employee, error) {
	var (
		employee       Employee
		preferredJSON  string
		daysJSON       string
		daysOffJSON    string
		maxWeeklyHours sql.NullInt64
		maxConsecutive sql.NullInt64
		createdAtUnix  int64
		updatedAtUnix  int64
	)
	if err := row.Scan(
		&employee.ID,
		&employee.Name,
		&preferredJSON,
		&daysJSON,
		&daysOffJSON,
		&maxWeeklyHours,
		&maxConsecutive,
		&createdAtUnix,
		&updatedAtUnix,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Employee{}, err
		}
		return Employee{}, fmt.Errorf("scan employee: %w", err)
	}
	employee.Preferences.PreferredShifts = decodeStringList(preferredJSON)
	employee.Preferences.PreferredDays = decodeStringList(daysJSON)
	employee.Preferences.DaysOff = decodeStringList(daysOffJSON)
	employee.Preferences.MaxWeeklyHours = int(maxWeeklyHours.Int64)
	employee.Preferences.MaxConsecutiveShifts = int(maxConsecutive.Int64)
	employee.CreatedAt = unixToTime(createdAtUnix)
	employee.UpdatedAt = unixToTime(updatedAtUnix)
	return employee, nil
}

func encodeStringList(values []string) (string, error) {
	cleaned := make([]string, 0, len(values))
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value != "" {
			cleaned = append(cleaned, value)
		}
	}
	raw, err := json.Marshal(cleaned)
	if err != nil {
		return "", fmt.Errorf("encode list: %w", err)
	}
	return string(raw), nil
}

func decodeStringList(raw string) []string {
	var values []string
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil
	}
	if len(values) == 0 {
		return nil
	}
	return values
}
