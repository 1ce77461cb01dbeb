package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/dwizi/roster-assist/internal/app"
	"github.com/dwizi/roster-assist/internal/config"
	"github.com/dwizi/roster-assist/internal/policy"
	"github.com/dwizi/roster-assist/internal/shifts"
	"github.com/dwizi/roster-assist/internal/store"
)

// seedFile is the YAML layout accepted by the seed command. Entries name a
// shift on a date, or give explicit RFC 3339 start and end times.
type seedFile struct {
	Employees []seedEmployee `yaml:"employees"`
	Entries   []seedEntry    `yaml:"entries"`
	Policies  []seedPolicy   `yaml:"policies"`
}

type seedEmployee struct {
	Name        string          `yaml:"name"`
	Preferences seedPreferences `yaml:"preferences"`
}

type seedPreferences struct {
	PreferredShifts      []string `yaml:"preferred_shifts"`
	PreferredDays        []string `yaml:"preferred_days"`
	DaysOff              []string `yaml:"days_off"`
	MaxWeeklyHours       int      `yaml:"max_weekly_hours"`
	MaxConsecutiveShifts int      `yaml:"max_consecutive_shifts"`
}

type seedEntry struct {
	Employee string `yaml:"employee"`
	Date     string `yaml:"date"`
	Shift    string `yaml:"shift"`
	Start    string `yaml:"start"`
	End      string `yaml:"end"`
	Note     string `yaml:"note"`
}

type seedPolicy struct {
	Title   string `yaml:"title"`
	Content string `yaml:"content"`
}

type seedSummary struct {
	Employees int
	Entries   int
	Policies  int
}

type seedStore interface {
	UpsertEmployee(ctx context.Context, input store.UpsertEmployeeInput) (store.Employee, error)
	LookupEmployeeByName(ctx context.Context, name string) (store.Employee, error)
	CreateEntry(ctx context.Context, input store.CreateEntryInput) (store.CalendarEntry, error)
}

type seedPolicies interface {
	Ingest(ctx context.Context, input policy.IngestInput) (policy.IngestResult, error)
}

func newSeedCommand(logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "seed <file.yaml>",
		Short: "Load employees, calendar entries and policies from a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read seed file: %w", err)
			}
			file, err := parseSeed(raw)
			if err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()
			core, err := app.NewCore(ctx, config.FromEnv(), logger)
			if err != nil {
				return err
			}
			defer core.Close()

			var policies seedPolicies
			if len(file.Policies) > 0 {
				policies = core.Policies
			}
			summary, err := applySeed(ctx, core.Store, policies, file)
			if err != nil {
				return err
			}
			cmd.Printf("seeded %d employee(s), %d entry(ies), %d polic(ies)\n", summary.Employees, summary.Entries, summary.Policies)
			return nil
		},
	}
}

func parseSeed(raw []byte) (seedFile, error) {
	var file seedFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return seedFile{}, fmt.Errorf("parse seed file: %w", err)
	}
	for idx, employee := range file.Employees {
		if strings.TrimSpace(employee.Name) == "" {
			return seedFile{}, fmt.Errorf("employee %d: name is required", idx+1)
		}
	}
	for idx, entry := range file.Entries {
		if strings.TrimSpace(entry.Employee) == "" {
			return seedFile{}, fmt.Errorf("entry %d: employee is required", idx+1)
		}
		if _, _, _, err := entry.window(); err != nil {
			return seedFile{}, fmt.Errorf("entry %d: %w", idx+1, err)
		}
	}
	for idx, document := range file.Policies {
		if strings.TrimSpace(document.Title) == "" || strings.TrimSpace(document.Content) == "" {
			return seedFile{}, fmt.Errorf("policy %d: title and content are required", idx+1)
		}
	}
	return file, nil
}

// window resolves an entry to its start, end and label. A shift on a date
// uses the shift's hour window in UTC.
func (e seedEntry) window() (time.Time, time.Time, string, error) {
	if strings.TrimSpace(e.Shift) != "" {
		shiftType, ok := shifts.Parse(e.Shift)
		if !ok {
			return time.Time{}, time.Time{}, "", fmt.Errorf("unknown shift %q", e.Shift)
		}
		day, err := time.Parse("2006-01-02", strings.TrimSpace(e.Date))
		if err != nil {
			return time.Time{}, time.Time{}, "", fmt.Errorf("invalid date %q", e.Date)
		}
		window, _ := shifts.WindowFor(shiftType)
		start, end := window.Bounds(day)
		return start, end, string(shiftType), nil
	}
	start, err := time.Parse(time.RFC3339, strings.TrimSpace(e.Start))
	if err != nil {
		return time.Time{}, time.Time{}, "", fmt.Errorf("invalid start %q", e.Start)
	}
	end, err := time.Parse(time.RFC3339, strings.TrimSpace(e.End))
	if err != nil {
		return time.Time{}, time.Time{}, "", fmt.Errorf("invalid end %q", e.End)
	}
	if !end.After(start) {
		return time.Time{}, time.Time{}, "", errors.New("end must be after start")
	}
	return start.UTC(), end.UTC(), string(shifts.Classify(start.UTC())), nil
}

// applySeed upserts employees, inserts entries and ingests policies in file
// order. Policies are skipped when no policy service is given.
func applySeed(ctx context.Context, db seedStore, policies seedPolicies, file seedFile) (seedSummary, error) {
	var summary seedSummary
	ids := make(map[string]string, len(file.Employees))

	for _, employee := range file.Employees {
		saved, err := db.UpsertEmployee(ctx, store.UpsertEmployeeInput{
			Name: employee.Name,
			Preferences: store.Preferences{
				PreferredShifts:      employee.Preferences.PreferredShifts,
				PreferredDays:        employee.Preferences.PreferredDays,
				DaysOff:              employee.Preferences.DaysOff,
				MaxWeeklyHours:       employee.Preferences.MaxWeeklyHours,
				MaxConsecutiveShifts: employee.Preferences.MaxConsecutiveShifts,
			},
		})
		if err != nil {
			return summary, fmt.Errorf("seed employee %q: %w", employee.Name, err)
		}
		ids[strings.ToLower(saved.Name)] = saved.ID
		summary.Employees++
	}

	for _, entry := range file.Entries {
		key := strings.ToLower(strings.TrimSpace(entry.Employee))
		employeeID, ok := ids[key]
		if !ok {
			existing, err := db.LookupEmployeeByName(ctx, entry.Employee)
			if err != nil {
				return summary, fmt.Errorf("seed entry for %q: %w", entry.Employee, err)
			}
			employeeID = existing.ID
			ids[key] = employeeID
		}
		start, end, label, err := entry.window()
		if err != nil {
			return summary, fmt.Errorf("seed entry for %q: %w", entry.Employee, err)
		}
		if _, err := db.CreateEntry(ctx, store.CreateEntryInput{
			EmployeeID: employeeID,
			StartAt:    start,
			EndAt:      end,
			Note:       entry.Note,
			Label:      label,
		}); err != nil {
			return summary, fmt.Errorf("seed entry for %q: %w", entry.Employee, err)
		}
		summary.Entries++
	}

	if policies == nil {
		return summary, nil
	}
	for _, document := range file.Policies {
		if _, err := policies.Ingest(ctx, policy.IngestInput{
			Title:      document.Title,
			Content:    document.Content,
			UploaderID: "seed",
		}); err != nil {
			return summary, fmt.Errorf("seed policy %q: %w", document.Title, err)
		}
		summary.Policies++
	}
	return summary, nil
}
