// Package mutation writes interpreted change requests to the calendar.
package mutation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dwizi/roster-assist/internal/changelist"
	"github.com/dwizi/roster-assist/internal/shifts"
	"github.com/dwizi/roster-assist/internal/store"
)

var ErrApplyFailed = errors.New("schedule update failed")

type Action string

const (
	ActionInserted Action = "inserted"
	ActionUpdated  Action = "updated"
	ActionSkipped  Action = "skipped"
)

const (
	ReasonUnknownEmployee = "unknown employee"
	ReasonInvalidDate     = "invalid date"
	ReasonUnknownShift    = "unknown shift type"
)

// Outcome records what happened to one change request.
type Outcome struct {
	Request changelist.ChangeRequest
	Action  Action
	Reason  string
	EntryID string
	StartAt time.Time
	EndAt   time.Time
}

type Report struct {
	Outcomes []Outcome
}

func (r Report) Count(action Action) int {
	count := 0
	for _, outcome := range r.Outcomes {
		if outcome.Action == action {
			count++
		}
	}
	return count
}

// Applied is the number of requests that changed the calendar.
func (r Report) Applied() int {
	return r.Count(ActionInserted) + r.Count(ActionUpdated)
}

type Transactor interface {
	RunInTx(ctx context.Context, fn func(tx *store.CalendarTx) error) error
}

type Applier struct {
	store  Transactor
	logger *slog.Logger
}

func NewApplier(transactor Transactor, logger *slog.Logger) *Applier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Applier{store: transactor, logger: logger.With("component", "mutation")}
}

// Apply commits every usable request in one transaction. Requests naming an
// unknown employee, date or shift type are skipped. A store error rolls back
// the whole batch.
func (a *Applier) Apply(ctx context.Context, requests []changelist.ChangeRequest) (Report, error) {
	if len(requests) == 0 {
		return Report{}, nil
	}
	var outcomes []Outcome
	err := a.store.RunInTx(ctx, func(tx *store.CalendarTx) error {
		outcomes = make([]Outcome, 0, len(requests))
		for _, request := range requests {
			outcome, err := applyOne(ctx, tx, request)
			if err != nil {
				return err
			}
			outcomes = append(outcomes, outcome)
		}
		return nil
	})
	if err != nil {
		a.logger.Error("schedule update rolled back", "requests", len(requests), "error", err)
		return Report{}, fmt.Errorf("%w: %v", ErrApplyFailed, err)
	}

	report := Report{Outcomes: outcomes}
	for _, outcome := range outcomes {
		if outcome.Action == ActionSkipped {
			a.logger.Warn("schedule update skipped",
				"employee", outcome.Request.Employee,
				"date", outcome.Request.Date,
				"shift_type", outcome.Request.ShiftType,
				"reason", outcome.Reason,
			)
		}
	}
	a.logger.Info("schedule updates applied",
		"inserted", report.Count(ActionInserted),
		"updated", report.Count(ActionUpdated),
		"skipped", report.Count(ActionSkipped),
	)
	return report, nil
}

func applyOne(ctx context.Context, tx *store.CalendarTx, request changelist.ChangeRequest) (Outcome, error) {
	outcome := Outcome{Request: request, Action: ActionSkipped}

	employee, err := tx.LookupEmployeeByName(ctx, request.Employee)
	if err != nil {
		if errors.Is(err, store.ErrEmployeeNotFound) {
			outcome.Reason = ReasonUnknownEmployee
			return outcome, nil
		}
		return outcome, err
	}
	day, err := time.Parse("2006-01-02", strings.TrimSpace(request.Date))
	if err != nil {
		outcome.Reason = ReasonInvalidDate
		return outcome, nil
	}
	shiftType, ok := shifts.Parse(request.ShiftType)
	if !ok {
		outcome.Reason = ReasonUnknownShift
		return outcome, nil
	}
	window, _ := shifts.WindowFor(shiftType)
	start, end := window.Bounds(day)
	outcome.StartAt, outcome.EndAt = start, end

	existing, err := tx.FindEntryStartingIn(ctx, employee.ID, start, end)
	switch {
	case err == nil:
		if err := tx.UpdateEntryTimes(ctx, existing.ID, start, end); err != nil {
			return outcome, err
		}
		outcome.Action = ActionUpdated
		outcome.EntryID = existing.ID
		return outcome, nil
	case errors.Is(err, store.ErrEntryNotFound):
		entry, err := tx.CreateEntry(ctx, store.CreateEntryInput{
			EmployeeID: employee.ID,
			StartAt:    start,
			EndAt:      end,
			Label:      string(shiftType),
			Note:       "Scheduled by assistant",
		})
		if err != nil {
			return outcome, err
		}
		outcome.Action = ActionInserted
		outcome.EntryID = entry.ID
		return outcome, nil
	default:
		return outcome, err
	}
}
