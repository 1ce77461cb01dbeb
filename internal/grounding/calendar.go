// Package grounding assembles the calendar and policy context handed to the
// generation service and renders the final prompt.
package grounding

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/dwizi/roster-assist/internal/nlu"
	"github.com/dwizi/roster-assist/internal/shifts"
	"github.com/dwizi/roster-assist/internal/store"
)

const (
	NoDateSentinel        = "No specific date identified in the query."
	ScheduleErrorSentinel = "Error retrieving schedule data from the database."
	CountsJSONDelimiter   = "=== SHIFT COUNTS JSON ==="
	countsJSONEnd         = "=== END SHIFT COUNTS JSON ==="
	entryTimeLayout       = "2006-01-02 15:04 MST"
	dayLabelLayout        = "January 02, 2006"
)

type CalendarReader interface {
	ListEntries(ctx context.Context, input store.ListEntriesInput) ([]store.CalendarEntry, error)
	ListEmployees(ctx context.Context) ([]store.Employee, error)
}

// Window is a half-open span of calendar days [From, To).
type Window struct {
	From  time.Time
	To    time.Time
	Month bool
}

func WindowFromRange(r nlu.DateRange) Window {
	return Window{From: r.Start, To: r.End.AddDate(0, 0, 1), Month: r.Month}
}

func (w Window) Label() string {
	if w.Month {
		return w.From.Format("January 2006")
	}
	last := w.To.AddDate(0, 0, -1)
	if !last.After(w.From) {
		return w.From.Format(dayLabelLayout)
	}
	return w.From.Format(dayLabelLayout) + " to " + last.Format(dayLabelLayout)
}

type Tally struct {
	Name  string   `json:"name"`
	Count int      `json:"count"`
	Dates []string `json:"dates"`
}

type CalendarContext struct {
	Text    string
	Entries int
	Tallies []Tally
	Leaders []Tally
}

type CalendarAssembler struct {
	reader CalendarReader
	logger *slog.Logger
}

func NewCalendarAssembler(reader CalendarReader, logger *slog.Logger) *CalendarAssembler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CalendarAssembler{reader: reader, logger: logger.With("component", "calendar-context")}
}

// Assemble renders the entries overlapping window. A non-empty shift keeps
// only entries whose start hour falls in that shift's window. A nil window
// yields NoDateSentinel.
func (a *CalendarAssembler) Assemble(ctx context.Context, window *Window, shift shifts.Type) (CalendarContext, error) {
	if window == nil {
		return CalendarContext{Text: NoDateSentinel}, nil
	}
	entries, err := a.reader.ListEntries(ctx, store.ListEntriesInput{From: window.From, To: window.To})
	if err != nil {
		return CalendarContext{}, fmt.Errorf("load calendar entries: %w", err)
	}
	entries = filterByShift(entries, shift)
	if len(entries) == 0 {
		return CalendarContext{Text: noShiftsSentinel(*window, shift)}, nil
	}

	var builder strings.Builder
	builder.WriteString("Schedule for " + window.Label())
	if shift != "" {
		builder.WriteString(" (" + string(shift) + " shifts)")
	}
	builder.WriteString(":\n")
	for _, entry := range entries {
		name := entry.EmployeeName
		if strings.TrimSpace(name) == "" {
			name = "Unassigned"
		}
		fmt.Fprintf(&builder, "- %s scheduled from %s to %s.\n",
			name,
			entry.StartAt.UTC().Format(entryTimeLayout),
			entry.EndAt.UTC().Format(entryTimeLayout),
		)
	}
	if lines := a.preferenceLines(ctx, entries); len(lines) > 0 {
		builder.WriteString("Employee preferences:\n")
		for _, line := range lines {
			builder.WriteString(line + "\n")
		}
	}

	result := CalendarContext{Entries: len(entries)}
	if window.Month {
		result.Tallies = TallyEntries(entries)
		result.Leaders = Leaders(result.Tallies)
		if err := writeAggregate(&builder, result.Tallies, result.Leaders); err != nil {
			return CalendarContext{}, err
		}
	}
	result.Text = strings.TrimRight(builder.String(), "\n")
	return result, nil
}

func filterByShift(entries []store.CalendarEntry, shift shifts.Type) []store.CalendarEntry {
	if shift == "" {
		return entries
	}
	window, ok := shifts.WindowFor(shift)
	if !ok {
		return entries
	}
	filtered := make([]store.CalendarEntry, 0, len(entries))
	for _, entry := range entries {
		if window.ContainsHour(entry.StartAt.UTC().Hour()) {
			filtered = append(filtered, entry)
		}
	}
	return filtered
}

func noShiftsSentinel(window Window, shift shifts.Type) string {
	text := "No shifts found for " + window.Label()
	if shift != "" {
		text += " matching type " + string(shift)
	}
	return text + "."
}

func (a *CalendarAssembler) preferenceLines(ctx context.Context, entries []store.CalendarEntry) []string {
	present := map[string]struct{}{}
	for _, entry := range entries {
		if entry.EmployeeID != "" {
			present[entry.EmployeeID] = struct{}{}
		}
	}
	if len(present) == 0 {
		return nil
	}
	employees, err := a.reader.ListEmployees(ctx)
	if err != nil {
		a.logger.Warn("employee preferences unavailable", "error", err)
		return nil
	}
	var lines []string
	for _, employee := range employees {
		if _, ok := present[employee.ID]; !ok || employee.Preferences.IsZero() {
			continue
		}
		prefs := employee.Preferences
		if len(prefs.PreferredShifts) > 0 {
			lines = append(lines, fmt.Sprintf("- %s's preferred shifts: %s.", employee.Name, strings.Join(prefs.PreferredShifts, ", ")))
		}
		if len(prefs.PreferredDays) > 0 {
			lines = append(lines, fmt.Sprintf("- %s's preferred days: %s.", employee.Name, strings.Join(prefs.PreferredDays, ", ")))
		}
		if len(prefs.DaysOff) > 0 {
			lines = append(lines, fmt.Sprintf("- %s's days off: %s.", employee.Name, strings.Join(prefs.DaysOff, ", ")))
		}
		if prefs.MaxWeeklyHours > 0 {
			lines = append(lines, fmt.Sprintf("- %s's max hours per week: %d.", employee.Name, prefs.MaxWeeklyHours))
		}
		if prefs.MaxConsecutiveShifts > 0 {
			lines = append(lines, fmt.Sprintf("- %s's max shifts in a row: %d.", employee.Name, prefs.MaxConsecutiveShifts))
		}
	}
	return lines
}

// TallyEntries counts assigned entries per employee, ordered by count
// descending then name. Unassigned entries are not counted.
func TallyEntries(entries []store.CalendarEntry) []Tally {
	byName := map[string]*Tally{}
	seenDates := map[string]map[string]struct{}{}
	for _, entry := range entries {
		name := strings.TrimSpace(entry.EmployeeName)
		if name == "" {
			continue
		}
		tally, ok := byName[name]
		if !ok {
			tally = &Tally{Name: name}
			byName[name] = tally
			seenDates[name] = map[string]struct{}{}
		}
		tally.Count++
		date := entry.StartAt.UTC().Format("2006-01-02")
		if _, seen := seenDates[name][date]; !seen {
			seenDates[name][date] = struct{}{}
			tally.Dates = append(tally.Dates, date)
		}
	}
	tallies := make([]Tally, 0, len(byName))
	for _, tally := range byName {
		sort.Strings(tally.Dates)
		tallies = append(tallies, *tally)
	}
	sort.Slice(tallies, func(i, j int) bool {
		if tallies[i].Count != tallies[j].Count {
			return tallies[i].Count > tallies[j].Count
		}
		return tallies[i].Name < tallies[j].Name
	})
	return tallies
}

// Leaders returns every tally tied for the highest count.
func Leaders(tallies []Tally) []Tally {
	highest := 0
	for _, tally := range tallies {
		if tally.Count > highest {
			highest = tally.Count
		}
	}
	if highest == 0 {
		return nil
	}
	var leaders []Tally
	for _, tally := range tallies {
		if tally.Count == highest {
			leaders = append(leaders, tally)
		}
	}
	return leaders
}

func writeAggregate(builder *strings.Builder, tallies []Tally, leaders []Tally) error {
	if len(tallies) == 0 {
		return nil
	}
	builder.WriteString("Shift counts:\n")
	for _, tally := range tallies {
		fmt.Fprintf(builder, "- %s: %d %s (%s)\n", tally.Name, tally.Count, pluralShift(tally.Count), strings.Join(tally.Dates, ", "))
	}
	names := make([]string, 0, len(leaders))
	for _, leader := range leaders {
		names = append(names, leader.Name)
	}
	if len(leaders) == 1 {
		fmt.Fprintf(builder, "Most shifts: %s with %d.\n", names[0], leaders[0].Count)
	} else {
		fmt.Fprintf(builder, "Most shifts (tie): %s with %d each.\n", strings.Join(names, ", "), leaders[0].Count)
	}

	payload, err := json.Marshal(tallies)
	if err != nil {
		return fmt.Errorf("encode shift counts: %w", err)
	}
	builder.WriteString(CountsJSONDelimiter + "\n")
	builder.WriteString("Treat the following JSON as the authoritative shift counts for this period.\n")
	builder.Write(payload)
	builder.WriteString("\n" + countsJSONEnd + "\n")
	return nil
}

func pluralShift(count int) string {
	if count == 1 {
		return "shift"
	}
	return "shifts"
}
