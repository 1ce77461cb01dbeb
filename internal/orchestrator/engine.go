// Package orchestrator runs background policy maintenance jobs on a small
// worker pool.
package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrQueueFull      = errors.New("job queue is full")
	ErrUnknownJobKind = errors.New("unknown job kind")
)

type JobKind string

const (
	JobKindReindexPolicies JobKind = "reindex_policies"
	JobKindSyncPolicyDir   JobKind = "sync_policy_dir"
)

type Job struct {
	ID        string
	Kind      JobKind
	Source    string
	CreatedAt time.Time
}

type Executor interface {
	Execute(ctx context.Context, job Job) error
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, job Job) error

func (f ExecutorFunc) Execute(ctx context.Context, job Job) error {
	return f(ctx, job)
}

// Observer is told about job transitions. Any method set may be nil.
type Observer struct {
	OnStarted   func(job Job)
	OnCompleted func(job Job, duration time.Duration)
	OnFailed    func(job Job, err error)
}

type Engine struct {
	maxConcurrency int
	jobs           chan Job
	executor       Executor
	observer       Observer
	logger         *slog.Logger
	startOnce      sync.Once
}

func New(maxConcurrency int, executor Executor, logger *slog.Logger) *Engine {
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		maxConcurrency: maxConcurrency,
		jobs:           make(chan Job, maxConcurrency*16),
		executor:       executor,
		logger:         logger.With("component", "orchestrator"),
	}
}

func (e *Engine) SetObserver(observer Observer) {
	e.observer = observer
}

// Start runs the workers until ctx is cancelled.
func (e *Engine) Start(ctx context.Context) error {
	var workers sync.WaitGroup
	e.startOnce.Do(func() {
		for index := 0; index < e.maxConcurrency; index++ {
			workers.Add(1)
			go func(workerID int) {
				defer workers.Done()
				e.worker(ctx, workerID)
			}(index + 1)
		}
	})

	<-ctx.Done()
	workers.Wait()
	return nil
}

func (e *Engine) Enqueue(job Job) (Job, error) {
	switch job.Kind {
	case JobKindReindexPolicies, JobKindSyncPolicyDir:
	default:
		return Job{}, ErrUnknownJobKind
	}
	if job.ID == "" {
		job.ID = "job_" + uuid.NewString()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}

	select {
	case e.jobs <- job:
		e.logger.Info("job queued", "job_id", job.ID, "kind", job.Kind, "source", job.Source)
		return job, nil
	default:
		return Job{}, ErrQueueFull
	}
}

func (e *Engine) worker(ctx context.Context, workerID int) {
	e.logger.Info("worker started", "worker_id", workerID)
	for {
		select {
		case <-ctx.Done():
			e.logger.Info("worker stopped", "worker_id", workerID)
			return
		case job := <-e.jobs:
			e.process(ctx, workerID, job)
		}
	}
}

func (e *Engine) process(ctx context.Context, workerID int, job Job) {
	e.logger.Info("processing job", "worker_id", workerID, "job_id", job.ID, "kind", job.Kind)
	if e.observer.OnStarted != nil {
		e.observer.OnStarted(job)
	}
	started := time.Now()
	if err := e.executor.Execute(ctx, job); err != nil {
		e.logger.Error("job failed", "job_id", job.ID, "kind", job.Kind, "error", err)
		if e.observer.OnFailed != nil {
			e.observer.OnFailed(job, err)
		}
		return
	}
	duration := time.Since(started)
	e.logger.Info("job completed", "job_id", job.ID, "kind", job.Kind, "duration_ms", duration.Milliseconds())
	if e.observer.OnCompleted != nil {
		e.observer.OnCompleted(job, duration)
	}
}
