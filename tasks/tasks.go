// Package tasks runs the periodic maintenance jobs of the marketplace.
package tasks

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cppla/classifieds/utils"
)

// Schedule returns the next run time after now.
type Schedule func(now time.Time) time.Time

// Every runs a job at a fixed interval, starting one interval after boot.
func Every(d time.Duration) Schedule {
	return func(now time.Time) time.Time { return now.Add(d) }
}

// DailyAt runs a job once a day at the given local hour.
func DailyAt(hour int) Schedule {
	return func(now time.Time) time.Time {
		next := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, now.Location())
		if !next.After(now) {
			next = next.AddDate(0, 0, 1)
		}
		return next
	}
}

// Job is one named periodic task.
type Job struct {
	Name     string
	Schedule Schedule
	Run      func(ctx context.Context) error
}

// Runner drives a set of jobs until its context is cancelled.
type Runner struct {
	jobs []Job
	now  func() time.Time
	wg   sync.WaitGroup
}

func NewRunner(jobs ...Job) *Runner {
	return &Runner{jobs: jobs, now: time.Now}
}

// Start launches one goroutine per job. Each run gets the runner context, so
// cancelling it interrupts a run in progress as well as the wait.
func (r *Runner) Start(ctx context.Context) {
	for _, job := range r.jobs {
		r.wg.Add(1)
		go func(job Job) {
			defer r.wg.Done()
			r.loop(ctx, job)
		}(job)
	}
}

// Wait blocks until every job loop has returned.
func (r *Runner) Wait() {
	r.wg.Wait()
}

func (r *Runner) loop(ctx context.Context, job Job) {
	for {
		now := r.now()
		timer := time.NewTimer(job.Schedule(now).Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		r.runOnce(ctx, job)
	}
}

func (r *Runner) runOnce(ctx context.Context, job Job) {
	defer func() {
		if p := recover(); p != nil {
			utils.Logger.Error("task panicked", zap.String("task", job.Name), zap.Any("panic", p))
		}
	}()
	start := time.Now()
	if err := job.Run(ctx); err != nil {
		utils.Logger.Error("task failed", zap.String("task", job.Name), zap.Error(err))
		return
	}
	utils.Logger.Debug("task finished", zap.String("task", job.Name), zap.Duration("took", time.Since(start)))
}
