// Package scheduler runs periodic maintenance jobs on cron specs.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ahsanhabibakik/rupomoti/internal/adapter/metrics"
	"github.com/ahsanhabibakik/rupomoti/internal/platform/correlation"
	"github.com/robfig/cron/v3"
)

const defaultJobTimeout = 2 * time.Minute

// Job is one named unit of periodic work. Run reports how many records it
// touched. Every job must be safe to run concurrently on several instances.
type Job struct {
	Name    string
	Spec    string
	Timeout time.Duration
	Run     func(ctx context.Context) (int, error)
}

type Scheduler struct {
	cron    *cron.Cron
	parser  cron.Parser
	metrics *metrics.StoreMetrics
	log     *slog.Logger
	baseCtx context.Context
	cancel  context.CancelFunc
}

// New returns a scheduler that accepts standard five-field specs and
// descriptors such as "@every 5m" or "@hourly". m may be nil.
func New(m *metrics.StoreMetrics) *Scheduler {
	log := slog.With("component", "scheduler")
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithLocation(time.UTC),
			cron.WithChain(cron.Recover(cronLogger{log}), cron.SkipIfStillRunning(cronLogger{log})),
		),
		parser:  parser,
		metrics: m,
		log:     log,
		baseCtx: ctx,
		cancel:  cancel,
	}
}

func (s *Scheduler) Add(job Job) error {
	if job.Name == "" || job.Run == nil {
		return fmt.Errorf("job needs a name and a run function")
	}
	if _, err := s.parser.Parse(job.Spec); err != nil {
		return fmt.Errorf("invalid spec %q for job %s: %w", job.Spec, job.Name, err)
	}
	if job.Timeout <= 0 {
		job.Timeout = defaultJobTimeout
	}

	if _, err := s.cron.AddFunc(job.Spec, func() { s.runJob(s.baseCtx, job) }); err != nil {
		return fmt.Errorf("failed to schedule job %s: %w", job.Name, err)
	}
	s.log.Info("Job scheduled", "job", job.Name, "spec", job.Spec)
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop prevents new runs, cancels running ones and waits for them to return
// or for ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	s.cancel()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.log.Warn("Timed out waiting for running jobs")
	}
}

// runJob tags each run with its own correlation ID so the job's log lines
// can be grouped like a request's.
func (s *Scheduler) runJob(parent context.Context, job Job) {
	ctx, cancel := context.WithTimeout(correlation.WithID(parent, "job-"+correlation.NewID()), job.Timeout)
	defer cancel()

	start := time.Now()
	n, err := job.Run(ctx)
	elapsed := time.Since(start)

	outcome := "success"
	if err != nil {
		outcome = "error"
		s.log.ErrorContext(ctx, "Job failed", "job", job.Name, "duration", elapsed, "error", err)
	} else {
		s.log.InfoContext(ctx, "Job finished", "job", job.Name, "affected", n, "duration", elapsed)
	}

	if s.metrics != nil {
		s.metrics.JobRuns.WithLabelValues(job.Name, outcome).Inc()
		s.metrics.JobDuration.WithLabelValues(job.Name).Observe(elapsed.Seconds())
	}
}

// cronLogger routes cron's internal logging through slog.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error(msg, append(keysAndValues, "error", err)...)
}
