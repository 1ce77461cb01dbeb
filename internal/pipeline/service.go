// Package pipeline answers one supervisor question end to end: normalise,
// ground, generate, interpret, apply and log.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dwizi/roster-assist/internal/changelist"
	"github.com/dwizi/roster-assist/internal/grounding"
	"github.com/dwizi/roster-assist/internal/llm"
	"github.com/dwizi/roster-assist/internal/llm/safety"
	"github.com/dwizi/roster-assist/internal/mutation"
	"github.com/dwizi/roster-assist/internal/nlu"
	"github.com/dwizi/roster-assist/internal/shifts"
	"github.com/dwizi/roster-assist/internal/store"
	"github.com/dwizi/roster-assist/internal/transcript"
)

var (
	ErrEmptyQuery     = errors.New("query is required")
	ErrMutationFailed = errors.New("schedule update failed")
	ErrRateLimited    = errors.New("query rate limit reached")
)

const AnonymousRequester = "anonymous"

type Stage string

const (
	StageNormalizing       Stage = "normalizing"
	StageContextAssembling Stage = "context_assembling"
	StagePrompting         Stage = "prompting"
	StageGenerating        Stage = "generating"
	StageInterpreting      Stage = "interpreting"
	StageMutating          Stage = "mutating"
	StageLogging           Stage = "logging"
	StageResponded         Stage = "responded"
)

type Query struct {
	Text        string
	Model       string
	RequesterID string
}

type Result struct {
	Answer          string
	ScheduleUpdates []changelist.ChangeRequest
	Outcomes        []mutation.Outcome
	Applied         int
	Skipped         int
	Entities        nlu.Entities
	Model           string
}

type Normalizer interface {
	Normalize(ctx context.Context, query string) nlu.Entities
}

type CalendarAssembler interface {
	Assemble(ctx context.Context, window *grounding.Window, shift shifts.Type) (grounding.CalendarContext, error)
}

type Interpreter interface {
	Interpret(text string) changelist.Result
}

type Applier interface {
	Apply(ctx context.Context, requests []changelist.ChangeRequest) (mutation.Report, error)
}

type InteractionLog interface {
	CreateInteraction(ctx context.Context, input store.CreateInteractionInput) (store.InteractionRecord, error)
}

type Limiter interface {
	Check(requesterID string) safety.Decision
}

// Dependencies are the stage implementations. Policy and Limiter may be nil.
type Dependencies struct {
	Normalizer   Normalizer
	Calendar     CalendarAssembler
	Policy       grounding.PolicySearcher
	Generator    llm.Generator
	Interpreter  Interpreter
	Applier      Applier
	Interactions InteractionLog
	Limiter      Limiter
}

type Config struct {
	DefaultModel        string
	PolicyTopK          int
	PolicySearchTimeout time.Duration
	// RequireApproval applies change lists only for approve-intent queries.
	RequireApproval bool
	TranscriptDir   string
}

type Service struct {
	deps   Dependencies
	cfg    Config
	logger *slog.Logger
}

func New(deps Dependencies, cfg Config, logger *slog.Logger) *Service {
	if cfg.PolicyTopK < 1 {
		cfg.PolicyTopK = 5
	}
	if cfg.PolicySearchTimeout <= 0 {
		cfg.PolicySearchTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{deps: deps, cfg: cfg, logger: logger.With("component", "pipeline")}
}

// SubmitQuery runs the full pipeline. Only a generation failure, a rate
// limit, or a failed schedule commit is returned as an error; every other
// stage degrades and is logged.
func (s *Service) SubmitQuery(ctx context.Context, query Query) (Result, error) {
	text := strings.TrimSpace(query.Text)
	if text == "" {
		return Result{}, ErrEmptyQuery
	}
	requesterID := strings.TrimSpace(query.RequesterID)
	if requesterID == "" {
		requesterID = AnonymousRequester
	}
	model := strings.TrimSpace(query.Model)
	if model == "" {
		model = s.cfg.DefaultModel
	}
	logger := s.logger.With("requester_id", requesterID, "query", text)
	started := time.Now()

	if s.deps.Limiter != nil {
		if decision := s.deps.Limiter.Check(requesterID); !decision.Allowed {
			logger.Warn("query rejected", "reason", decision.Reason)
			return Result{}, fmt.Errorf("%w: %s", ErrRateLimited, decision.Notify)
		}
	}

	logger.Debug("pipeline stage", "stage", StageNormalizing)
	entities := s.deps.Normalizer.Normalize(ctx, text)
	logger = logger.With("names", entities.Names, "shift", entities.Shift, "intent", entities.Intent)

	logger.Debug("pipeline stage", "stage", StageContextAssembling)
	var window *grounding.Window
	if entities.Dates != nil {
		resolved := grounding.WindowFromRange(*entities.Dates)
		window = &resolved
	}
	calendarText := grounding.ScheduleErrorSentinel
	calendar, err := s.deps.Calendar.Assemble(ctx, window, entities.Shift)
	if err != nil {
		logger.Error("calendar context failed", "error", err)
	} else {
		calendarText = calendar.Text
	}
	policyCtx, cancel := context.WithTimeout(ctx, s.cfg.PolicySearchTimeout)
	policyText := grounding.PolicyContext(policyCtx, s.deps.Policy, text, s.cfg.PolicyTopK, logger)
	cancel()

	logger.Debug("pipeline stage", "stage", StagePrompting)
	prompt := grounding.BuildPrompt(calendarText, policyText, text)

	logger.Debug("pipeline stage", "stage", StageGenerating, "model", model)
	answer, err := s.deps.Generator.Generate(ctx, llm.Request{Prompt: prompt, Model: model})
	if err != nil {
		logger.Error("generation failed", "error", err, "model", model)
		return Result{}, err
	}

	logger.Debug("pipeline stage", "stage", StageInterpreting)
	interpreted := s.deps.Interpreter.Interpret(answer)
	if interpreted.Found && len(interpreted.Requests) == 0 {
		logger.Warn("change list yielded no requests", "stage", StageInterpreting, "dropped", interpreted.Dropped)
	}
	result := Result{
		Answer:          answer,
		ScheduleUpdates: interpreted.Requests,
		Entities:        entities,
		Model:           model,
	}

	var mutationErr error
	if len(interpreted.Requests) > 0 {
		if s.cfg.RequireApproval && entities.Intent != nlu.IntentApprove {
			logger.Info("change list held for approval", "requests", len(interpreted.Requests))
			result.Skipped = len(interpreted.Requests)
		} else {
			logger.Debug("pipeline stage", "stage", StageMutating, "requests", len(interpreted.Requests))
			report, err := s.deps.Applier.Apply(ctx, interpreted.Requests)
			if err != nil {
				logger.Error("schedule update failed", "error", err)
				mutationErr = fmt.Errorf("%w: %v", ErrMutationFailed, err)
				result.Skipped = len(interpreted.Requests)
			} else {
				result.Outcomes = report.Outcomes
				result.Applied = report.Applied()
				result.Skipped = report.Count(mutation.ActionSkipped)
			}
		}
	}

	logger.Debug("pipeline stage", "stage", StageLogging)
	s.logInteraction(ctx, logger, requesterID, text, result)

	logger.Info("query answered",
		"stage", StageResponded,
		"model", model,
		"applied", result.Applied,
		"skipped", result.Skipped,
		"duration_ms", time.Since(started).Milliseconds(),
	)
	if mutationErr != nil {
		return result, mutationErr
	}
	return result, nil
}

func (s *Service) logInteraction(ctx context.Context, logger *slog.Logger, requesterID, text string, result Result) {
	if s.deps.Interactions != nil {
		if _, err := s.deps.Interactions.CreateInteraction(ctx, store.CreateInteractionInput{
			RequesterID: requesterID,
			Query:       text,
			Answer:      result.Answer,
			Model:       result.Model,
		}); err != nil {
			logger.Warn("interaction log write failed", "error", err)
		}
	}
	if err := transcript.Append(transcript.Entry{
		Root:        s.cfg.TranscriptDir,
		RequesterID: requesterID,
		Query:       text,
		Answer:      result.Answer,
		Model:       result.Model,
		Applied:     result.Applied,
		Skipped:     result.Skipped,
	}); err != nil {
		logger.Warn("transcript write failed", "error", err)
	}
}
