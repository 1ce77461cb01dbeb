// Package scheduler enqueues periodic policy reindex jobs from a cron
// expression.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dwizi/roster-assist/internal/orchestrator"
	"github.com/robfig/cron/v3"
)

var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

type Engine interface {
	Enqueue(job orchestrator.Job) (orchestrator.Job, error)
}

type Service struct {
	cronExpr     string
	schedule     cron.Schedule
	kind         orchestrator.JobKind
	engine       Engine
	logger       *slog.Logger
	pollInterval time.Duration
	now          func() time.Time
}

// NormalizeCronExpr collapses whitespace in a cron expression.
func NormalizeCronExpr(raw string) string {
	return strings.Join(strings.Fields(raw), " ")
}

// NextRun resolves the next UTC run time of cronExpr after from.
func NextRun(cronExpr string, from time.Time) (time.Time, error) {
	cronExpr = NormalizeCronExpr(cronExpr)
	if cronExpr == "" {
		return time.Time{}, nil
	}
	schedule, err := cronParser.Parse(cronExpr)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron expression: %w", err)
	}
	return schedule.Next(from.UTC()).UTC(), nil
}

// New returns a scheduler that enqueues kind on every cronExpr tick. An empty
// expression yields a scheduler that only waits for shutdown.
func New(cronExpr string, kind orchestrator.JobKind, engine Engine, pollInterval time.Duration, logger *slog.Logger) (*Service, error) {
	if pollInterval < time.Second {
		pollInterval = 15 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	service := &Service{
		cronExpr:     NormalizeCronExpr(cronExpr),
		kind:         kind,
		engine:       engine,
		logger:       logger.With("component", "scheduler"),
		pollInterval: pollInterval,
		now:          func() time.Time { return time.Now().UTC() },
	}
	if service.cronExpr != "" {
		schedule, err := cronParser.Parse(service.cronExpr)
		if err != nil {
			return nil, fmt.Errorf("parse cron expression: %w", err)
		}
		service.schedule = schedule
	}
	return service, nil
}

func (s *Service) Start(ctx context.Context) error {
	if s.schedule == nil || s.engine == nil {
		s.logger.Info("scheduler disabled", "reason", "no cron expression")
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	next := s.schedule.Next(s.now())
	s.logger.Info("scheduler started", "cron", s.cronExpr, "job_kind", s.kind, "next_run", next.Format(time.RFC3339))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return nil
		case <-ticker.C:
			next = s.tick(next)
		}
	}
}

// tick enqueues a job when due and returns the following run time.
func (s *Service) tick(next time.Time) time.Time {
	now := s.now()
	if now.Before(next) {
		return next
	}
	job, err := s.engine.Enqueue(orchestrator.Job{Kind: s.kind, Source: "schedule"})
	if err != nil {
		s.logger.Error("scheduled job enqueue failed", "job_kind", s.kind, "error", err)
	} else {
		s.logger.Info("scheduled job enqueued", "job_id", job.ID, "job_kind", s.kind)
	}
	return s.schedule.Next(now)
}
