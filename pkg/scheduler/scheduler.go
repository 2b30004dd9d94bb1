// Package scheduler fires scheduled harvest/update jobs at operator-chosen
// times of day, dispatching through the Task Runner so a scheduled run
// never overlaps a user-initiated one.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/ca-refa/licita-monitor/pkg/settings"
	"github.com/ca-refa/licita-monitor/pkg/taskrunner"
)

// tickInterval is the wall-clock cadence the Scheduler polls settings and
// checks for a matching schedule.
const tickInterval = 30 * time.Second

const (
	jobAutoExtract = "auto-extract"
	jobAutoUpdate  = "auto-update"
)

// dayJob identifies one (date, job-name) pair the "executed today" set
// dedupes on.
type dayJob struct {
	date string
	job  string
}

// Dispatcher submits the two jobs the Scheduler can fire. Implemented by an
// adapter over the ETL Orchestrator and Task Runner.
type Dispatcher interface {
	DispatchAutoExtract(ctx context.Context) error
	DispatchAutoUpdate(ctx context.Context) error
	Busy() bool
}

// Scheduler polls settings.json every 30 seconds and dispatches
// auto-extract/auto-update when their scheduled time arrives.
type Scheduler struct {
	settingsPath string
	dispatcher   Dispatcher
	logger       *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}

	executedToday map[dayJob]struct{}
}

// New constructs a Scheduler.
func New(settingsPath string, dispatcher Dispatcher, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		settingsPath:  settingsPath,
		dispatcher:    dispatcher,
		logger:        logger,
		executedToday: map[dayJob]struct{}{},
	}
}

// Start launches the background tick loop. Safe to call once; a second call
// while already running is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.run(ctx)
	s.logger.Info("scheduler started", "tick_interval", tickInterval)
}

// Stop signals the tick loop to exit and waits for it to finish.
func (s *Scheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	if s.dispatcher.Busy() {
		return
	}

	cfg := settings.Load(s.settingsPath)
	now := time.Now()
	today := now.Format("2006-01-02")
	nowHHmm := now.Format("15:04")

	s.pruneStaleDays(today)

	if cfg.AutoExtractEnabled && cfg.AutoExtractTime == nowHHmm {
		s.maybeDispatch(ctx, dayJob{today, jobAutoExtract}, s.dispatcher.DispatchAutoExtract)
	}
	if cfg.AutoUpdateEnabled && cfg.AutoUpdateTime == nowHHmm {
		s.maybeDispatch(ctx, dayJob{today, jobAutoUpdate}, s.dispatcher.DispatchAutoUpdate)
	}
}

func (s *Scheduler) maybeDispatch(ctx context.Context, key dayJob, dispatch func(context.Context) error) {
	if _, done := s.executedToday[key]; done {
		return
	}
	s.executedToday[key] = struct{}{}

	s.logger.Info("scheduler: dispatching job", "job", key.job, "date", key.date)
	if err := dispatch(ctx); err != nil {
		s.logger.Error("scheduler: job dispatch failed", "job", key.job, "error", err)
	}
}

// pruneStaleDays drops entries for any day other than today, bounding the
// set's size to at most the jobs scheduled today.
func (s *Scheduler) pruneStaleDays(today string) {
	for key := range s.executedToday {
		if key.date != today {
			delete(s.executedToday, key)
		}
	}
}
