// Package shifts holds the shift categories and the hour windows that define
// them. Context filtering and calendar writes both read from Windows.
package shifts

import (
	"strings"
	"time"
)

type Type string

const (
	Morning   Type = "Morning"
	Afternoon Type = "Afternoon"
	Evening   Type = "Evening"
	Night     Type = "Night"
)

// Window is the hour range of a shift type. EndHour <= StartHour means the
// window ends on the following day.
type Window struct {
	Type      Type
	StartHour int
	EndHour   int
}

var Windows = []Window{
	{Type: Morning, StartHour: 5, EndHour: 12},
	{Type: Afternoon, StartHour: 12, EndHour: 16},
	{Type: Evening, StartHour: 16, EndHour: 21},
	{Type: Night, StartHour: 21, EndHour: 5},
}

func (w Window) wraps() bool {
	return w.EndHour <= w.StartHour
}

// Bounds returns the window's start and end on the given calendar day, in
// the day's location.
func (w Window) Bounds(day time.Time) (time.Time, time.Time) {
	year, month, date := day.Date()
	start := time.Date(year, month, date, w.StartHour, 0, 0, 0, day.Location())
	end := time.Date(year, month, date, w.EndHour, 0, 0, 0, day.Location())
	if w.wraps() {
		end = end.AddDate(0, 0, 1)
	}
	return start, end
}

// ContainsHour reports whether an hour of day falls in the window.
func (w Window) ContainsHour(hour int) bool {
	if w.wraps() {
		return hour >= w.StartHour || hour < w.EndHour
	}
	return hour >= w.StartHour && hour < w.EndHour
}

func WindowFor(shiftType Type) (Window, bool) {
	for _, window := range Windows {
		if window.Type == shiftType {
			return window, true
		}
	}
	return Window{}, false
}

// Parse maps a label such as "morning" or " Night " to its Type.
func Parse(label string) (Type, bool) {
	label = strings.TrimSpace(label)
	for _, window := range Windows {
		if strings.EqualFold(label, string(window.Type)) {
			return window.Type, true
		}
	}
	return "", false
}

// Classify returns the shift type whose window holds the start time's hour.
func Classify(start time.Time) Type {
	hour := start.Hour()
	for _, window := range Windows {
		if window.ContainsHour(hour) {
			return window.Type
		}
	}
	return Night
}

func Names() []string {
	names := make([]string, 0, len(Windows))
	for _, window := range Windows {
		names = append(names, string(window.Type))
	}
	return names
}
