// Package scheduler runs the periodic jobs that drive the trading loop:
// candle ingestion, scanning, auto-selection, predictive recomputation, and
// DXY context refresh. Jobs are dispatched onto a bounded worker pool;
// duplicate triggers of a still-running job are coalesced.
package scheduler

import (
	"context"
	"sync/atomic"

	"github.com/atlas-desktop/aurum-control-plane/internal/workers"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Job is one named periodic unit of work.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// JobFunc adapts a function to the Job interface.
type JobFunc struct {
	name string
	fn   func(ctx context.Context) error
}

// NewJobFunc builds a Job from a name and a run function.
func NewJobFunc(name string, fn func(ctx context.Context) error) JobFunc {
	return JobFunc{name: name, fn: fn}
}

func (j JobFunc) Name() string                    { return j.name }
func (j JobFunc) Run(ctx context.Context) error { return j.fn(ctx) }

// Scheduler registers Jobs against cron schedules and dispatches each firing
// onto a worker pool, skipping a firing if the previous run of the same job
// is still in flight.
type Scheduler struct {
	logger *zap.Logger
	cron   *cron.Cron
	pool   *workers.Pool
	ctx    context.Context

	inFlight map[string]*atomic.Bool
}

// New constructs a Scheduler. Every job run receives context.Background(),
// which the Scheduler never cancels.
func New(logger *zap.Logger, pool *workers.Pool) *Scheduler {
	return &Scheduler{
		logger:   logger.Named("scheduler"),
		cron:     cron.New(cron.WithSeconds()),
		pool:     pool,
		ctx:      context.Background(),
		inFlight: make(map[string]*atomic.Bool),
	}
}

// AddJob registers job against a cron schedule expression (seconds-first,
// e.g. "@every 60s").
func (s *Scheduler) AddJob(schedule string, job Job) error {
	flag := &atomic.Bool{}
	s.inFlight[job.Name()] = flag

	_, err := s.cron.AddFunc(schedule, func() {
		if !flag.CompareAndSwap(false, true) {
			s.logger.Debug("job already running, skipping trigger", zap.String("job", job.Name()))
			return
		}

		err := s.pool.SubmitFunc(func() error {
			defer flag.Store(false)
			s.logger.Debug("job starting", zap.String("job", job.Name()))
			if err := job.Run(s.ctx); err != nil {
				s.logger.Error("job failed", zap.String("job", job.Name()), zap.Error(err))
				return err
			}
			s.logger.Debug("job completed", zap.String("job", job.Name()))
			return nil
		})
		if err != nil {
			flag.Store(false)
			s.logger.Error("submitting job to pool failed", zap.String("job", job.Name()), zap.Error(err))
		}
	})
	if err != nil {
		return err
	}

	s.logger.Info("job registered", zap.String("job", job.Name()), zap.String("schedule", schedule))
	return nil
}

// RunNow executes a job immediately, outside of its schedule, ignoring the
// in-flight coalescing flag.
func (s *Scheduler) RunNow(ctx context.Context, job Job) error {
	return job.Run(ctx)
}

// Start begins the worker pool and the cron dispatcher.
func (s *Scheduler) Start() {
	s.pool.Start()
	s.cron.Start()
	s.logger.Info("scheduler started")
}

// Stop drains the cron dispatcher and the worker pool.
func (s *Scheduler) Stop() {
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	if err := s.pool.Stop(); err != nil {
		s.logger.Warn("worker pool did not stop cleanly", zap.Error(err))
	}
	s.logger.Info("scheduler stopped")
}
