// Package nlu extracts names, dates, shift type and intent from supervisor
// questions.
package nlu

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/dwizi/roster-assist/internal/shifts"
	"github.com/dwizi/roster-assist/internal/store"
)

type Entities struct {
	Names  []string
	Dates  *DateRange
	Shift  shifts.Type
	Intent Intent
}

type Directory interface {
	ListEmployees(ctx context.Context) ([]store.Employee, error)
}

type Normalizer struct {
	directory Directory
	dates     *dateExtractor
	now       func() time.Time
	logger    *slog.Logger
}

type Option func(*Normalizer)

// WithClock overrides the clock used to anchor relative dates.
func WithClock(now func() time.Time) Option {
	return func(n *Normalizer) {
		if now != nil {
			n.now = now
		}
	}
}

func New(directory Directory, logger *slog.Logger, options ...Option) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	normalizer := &Normalizer{
		directory: directory,
		dates:     newDateExtractor(),
		now:       time.Now,
		logger:    logger.With("component", "nlu"),
	}
	for _, option := range options {
		option(normalizer)
	}
	return normalizer
}

// Normalize never fails. A directory read error yields no names.
func (n *Normalizer) Normalize(ctx context.Context, query string) Entities {
	query = strings.TrimSpace(query)
	entities := Entities{
		Dates:  n.dates.Extract(query, n.now().UTC()),
		Shift:  ExtractShift(query),
		Intent: ExtractIntent(query),
	}
	if n.directory == nil || query == "" {
		return entities
	}
	employees, err := n.directory.ListEmployees(ctx)
	if err != nil {
		n.logger.Warn("employee directory unavailable", "error", err, "query", query)
		return entities
	}
	directory := make([]string, 0, len(employees))
	for _, employee := range employees {
		directory = append(directory, employee.Name)
	}
	entities.Names = MatchNames(query, directory)
	return entities
}

// ExtractDates resolves date phrases in text against now's UTC date.
func ExtractDates(text string, now time.Time) *DateRange {
	return newDateExtractor().Extract(text, now)
}
