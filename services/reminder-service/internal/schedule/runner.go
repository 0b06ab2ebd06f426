// Package schedule fires the reminder sweeps on their wall-clock cadence and
// makes sure only one replica runs a given sweep at a time.
package schedule

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/bridalos/bridalos/libs/clock"
	"github.com/bridalos/bridalos/libs/lock"
	"github.com/bridalos/bridalos/services/reminder-service/internal/model"
)

type Job struct {
	Name string
	// Next returns the first run time strictly after now.
	Next func(now time.Time) time.Time
	Run  func(ctx context.Context) (model.Summary, error)
	// LockTTL bounds how long a crashed holder blocks other replicas.
	LockTTL time.Duration
}

// Hourly fires at the top of every hour.
func Hourly(now time.Time) time.Time { return clock.NextHour(now) }

// DailyAt fires once a day at hour:minute UTC.
func DailyAt(hour, minute int) func(time.Time) time.Time {
	return func(now time.Time) time.Time { return clock.NextDailyAt(now, hour, minute) }
}

type Runner struct {
	locker lock.Locker
	clock  clock.Clock
	logger *slog.Logger
	after  func(time.Duration) <-chan time.Time
}

func NewRunner(locker lock.Locker, clk clock.Clock, logger *slog.Logger) *Runner {
	if locker == nil {
		locker = lock.Noop{}
	}
	if clk == nil {
		clk = clock.Real{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{locker: locker, clock: clk, logger: logger, after: time.After}
}

// RunOnce runs job under its lock. ran is false when another replica holds
// the lock.
func (r *Runner) RunOnce(ctx context.Context, job Job) (sum model.Summary, ran bool, err error) {
	ttl := job.LockTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	release, err := r.locker.Acquire(ctx, "sweep:"+job.Name, ttl)
	if errors.Is(err, lock.ErrNotAcquired) {
		r.logger.Info("sweep already running elsewhere", "job", job.Name)
		return model.Summary{}, false, nil
	}
	if err != nil {
		return model.Summary{}, false, err
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if rerr := release(releaseCtx); rerr != nil {
			r.logger.Warn("release sweep lock failed", "job", job.Name, "err", rerr)
		}
	}()

	sum, err = job.Run(ctx)
	return sum, true, err
}

// Run blocks until ctx is done, firing every job at its Next time.
func (r *Runner) Run(ctx context.Context, jobs ...Job) {
	var wg sync.WaitGroup
	for _, job := range jobs {
		wg.Add(1)
		go func(job Job) {
			defer wg.Done()
			r.loop(ctx, job)
		}(job)
	}
	wg.Wait()
}

func (r *Runner) loop(ctx context.Context, job Job) {
	for {
		now := r.clock.Now()
		next := job.Next(now)
		r.logger.Debug("next sweep scheduled", "job", job.Name, "at", next)
		select {
		case <-ctx.Done():
			return
		case <-r.after(next.Sub(now)):
		}
		if ctx.Err() != nil {
			return
		}
		if _, _, err := r.RunOnce(ctx, job); err != nil {
			r.logger.Error("sweep failed", "job", job.Name, "err", err)
		}
	}
}
