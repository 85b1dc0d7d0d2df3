package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
)

const defaultInterval = 24 * time.Hour

type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Lock     Lock
	Metrics  *metrics.CronJobMetrics
	Interval time.Duration
	// Location anchors the schedule. Cycles start at business midnight plus
	// whole intervals, so a daily run lands right after the store's day ends.
	Location *time.Location
}

// Service runs the registered jobs once at startup and then on a schedule
// aligned to business midnight.
type Service struct {
	logg     *logger.Logger
	registry *Registry
	lock     Lock
	metrics  *metrics.CronJobMetrics
	interval time.Duration
	loc      *time.Location
	now      func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	if params.Lock == nil {
		return nil, errors.New("lock required")
	}
	s := &Service{
		logg:     params.Logger,
		registry: params.Registry,
		lock:     params.Lock,
		metrics:  params.Metrics,
		interval: params.Interval,
		loc:      params.Location,
		now:      time.Now,
	}
	if s.registry == nil {
		s.registry = NewRegistry()
	}
	if s.interval <= 0 {
		s.interval = defaultInterval
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	return s, nil
}

func (s *Service) Run(ctx context.Context) error {
	for {
		if err := s.runCycle(ctx); err != nil {
			s.logg.Error(ctx, "cron.cycle_failed", err)
		}

		next := nextRun(s.now(), s.interval, s.loc)
		s.logg.Debug(s.logg.WithField(ctx, "next_run", next.Format(time.RFC3339)), "cron.sleeping")
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// nextRun returns the first slot after now. Slots start at midnight in loc
// and repeat every interval; the day's first slot resets the sequence.
func nextRun(now time.Time, interval time.Duration, loc *time.Location) time.Time {
	local := now.In(loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	next := midnight.Add((now.Sub(midnight)/interval + 1) * interval)
	tomorrow := midnight.AddDate(0, 0, 1)
	if next.After(tomorrow) {
		return tomorrow
	}
	return next
}

func (s *Service) runCycle(ctx context.Context) error {
	held, err := s.lock.Hold(ctx, func(ctx context.Context) error {
		s.logg.Info(s.logg.WithField(ctx, "jobs", s.registry.Names()), "cron.cycle_start")
		for _, job := range s.registry.Jobs() {
			s.runJob(ctx, job)
		}
		s.logg.Info(ctx, "cron.cycle_done")
		return nil
	})
	if err != nil {
		return err
	}
	if !held {
		s.logg.Info(ctx, "cron.cycle_skipped_lock_held")
	}
	return nil
}

// runJob isolates one job: a failure or panic is logged and counted, and the
// next job still runs.
func (s *Service) runJob(ctx context.Context, job Job) {
	name := job.Name()
	ctx = s.logg.WithField(ctx, "job", name)
	start := time.Now()

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return job.Run(ctx)
	}()

	took := time.Since(start)
	s.metrics.Observe(name, took, err)
	ctx = s.logg.WithField(ctx, "duration_ms", took.Milliseconds())
	if err != nil {
		s.logg.Error(ctx, "cron.job_failed", err)
		return
	}
	s.logg.Info(ctx, "cron.job_done")
}
