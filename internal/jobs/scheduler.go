package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/harvest-market/escrow/internal/metrics"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

type Job struct {
	Name     string
	Schedule string // standard 5-field cron spec
	// Timeout bounds one run and the lock TTL. Zero means 10 minutes.
	Timeout time.Duration
	Run     func(ctx context.Context) error
}

type Scheduler struct {
	cron   *cron.Cron
	locker Locker
	log    *zap.Logger
	ctx    context.Context
}

// NewScheduler evaluates cron specs in loc. Runs derive from ctx, so
// cancelling it aborts in-flight jobs.
func NewScheduler(ctx context.Context, locker Locker, loc *time.Location, log *zap.Logger) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{
		cron:   cron.New(cron.WithLocation(loc), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		locker: locker,
		log:    log,
		ctx:    ctx,
	}
}

func (s *Scheduler) Add(job Job) error {
	if job.Timeout <= 0 {
		job.Timeout = 10 * time.Minute
	}
	_, err := s.cron.AddFunc(job.Schedule, func() { s.RunOnce(job) })
	if err != nil {
		return err
	}
	s.log.Info("job scheduled", zap.String("job", job.Name), zap.String("schedule", job.Schedule))
	return nil
}

// RunOnce executes job now under its lock. It reports whether the job ran.
func (s *Scheduler) RunOnce(job Job) bool {
	if job.Timeout <= 0 {
		job.Timeout = 10 * time.Minute
	}
	ctx, cancel := context.WithTimeout(s.ctx, job.Timeout)
	defer cancel()

	release, err := s.locker.Acquire(ctx, job.Name, job.Timeout)
	if errors.Is(err, ErrLocked) {
		s.log.Debug("job skipped, locked elsewhere", zap.String("job", job.Name))
		return false
	}
	if err != nil {
		s.log.Error("job lock failed", zap.String("job", job.Name), zap.Error(err))
		return false
	}
	defer release()

	start := time.Now()
	err = job.Run(ctx)
	metrics.RecordJob(job.Name, err == nil, time.Since(start))
	if err != nil {
		s.log.Error("job failed", zap.String("job", job.Name), zap.Duration("took", time.Since(start)), zap.Error(err))
	} else {
		s.log.Info("job finished", zap.String("job", job.Name), zap.Duration("took", time.Since(start)))
	}
	return true
}

func (s *Scheduler) Start() { s.cron.Start() }

// Stop prevents new runs and waits for running ones.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
