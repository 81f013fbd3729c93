// Package scheduler drives pipeline runs on a cron schedule. Runs never
// overlap: the pipeline assumes single-instance execution, so a trigger
// that lands while a run is active is skipped.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/okazarov/rss-relay/app/clock"
	"github.com/okazarov/rss-relay/app/pipeline"
)

const runTimeout = 30 * time.Minute

// ErrRunActive is returned when a manual trigger finds a run in progress.
var ErrRunActive = fmt.Errorf("a pipeline run is already active")

type Scheduler struct {
	runner *pipeline.Runner
	cron   *cron.Cron

	mu      sync.Mutex
	running bool
	lastRun *RunInfo
}

// RunInfo is a snapshot of the most recent run for the ops API.
type RunInfo struct {
	StartedAt time.Time         `json:"started_at"`
	Duration  string            `json:"duration"`
	Summary   *pipeline.Summary `json:"summary,omitempty"`
	Error     string            `json:"error,omitempty"`
}

func NewScheduler(runner *pipeline.Runner, clk *clock.Clock) *Scheduler {
	return &Scheduler{
		runner: runner,
		cron:   cron.New(cron.WithLocation(clk.Location())),
	}
}

// Start registers the schedule and begins firing runs.
func (s *Scheduler) Start(schedule string) error {
	_, err := s.cron.AddFunc(schedule, func() {
		if err := s.TriggerRun(); err != nil {
			slog.Warn("Scheduled run skipped", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to register schedule %q: %w", schedule, err)
	}

	s.cron.Start()
	slog.Info("Scheduler started", "schedule", schedule)
	return nil
}

// Stop halts the cron loop and waits for a completed stop.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	slog.Info("Scheduler stopped")
}

// TriggerRun executes one pipeline run, refusing to overlap an active one.
func (s *Scheduler) TriggerRun() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrRunActive
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	info := RunInfo{StartedAt: time.Now()}
	summary, err := s.runner.Run(ctx)
	info.Duration = time.Since(info.StartedAt).String()
	info.Summary = summary
	if err != nil {
		info.Error = err.Error()
		slog.Error("Pipeline run failed", "error", err, "duration", info.Duration)
	} else {
		slog.Info("Pipeline run finished", "duration", info.Duration, "posted", summary.Posted)
	}

	s.mu.Lock()
	s.lastRun = &info
	s.mu.Unlock()

	return err
}

// Running reports whether a run is in progress.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// LastRun returns the most recent run snapshot, or nil before the first.
func (s *Scheduler) LastRun() *RunInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun
}
