package storage

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"mercator-hq/courier/pkg/eventlog"
)

// Rotator runs size-based rotation of a backend on a cron schedule.
type Rotator struct {
	target   eventlog.Rotatable
	schedule string
	cron     *cron.Cron
	mu       sync.Mutex
	logger   *slog.Logger
	running  bool
}

// NewRotator creates a rotator for target. schedule is a standard five
// field cron expression, e.g. "*/5 * * * *".
func NewRotator(target eventlog.Rotatable, schedule string) *Rotator {
	return &Rotator{
		target:   target,
		schedule: schedule,
		cron:     cron.New(),
		logger:   slog.Default().With("component", "eventlog.rotator"),
	}
}

// Start schedules rotation. An empty schedule does nothing. The rotator
// stops when ctx is cancelled or Stop is called.
func (r *Rotator) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.schedule == "" {
		r.logger.Info("rotation schedule not configured, skipping rotator")
		return nil
	}
	if r.running {
		return nil
	}

	if _, err := cron.ParseStandard(r.schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", r.schedule, err)
	}
	if _, err := r.cron.AddFunc(r.schedule, func() { r.runRotation(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule rotation: %w", err)
	}

	r.cron.Start()
	r.running = true
	r.logger.Info("event log rotator started", "schedule", r.schedule)

	go func() {
		<-ctx.Done()
		r.Stop()
	}()
	return nil
}

func (r *Rotator) runRotation(ctx context.Context) {
	rotated, err := r.target.Rotate(ctx)
	if err != nil {
		r.logger.Error("scheduled rotation failed", "error", err)
		return
	}
	if rotated {
		r.logger.Info("scheduled rotation completed")
	} else {
		r.logger.Debug("scheduled rotation check, size within limit")
	}
}

// Stop stops the schedule and waits for a running rotation to finish.
func (r *Rotator) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		<-r.cron.Stop().Done()
		r.running = false
		r.logger.Info("event log rotator stopped")
	}
}

// IsRunning reports whether the schedule is active.
func (r *Rotator) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// NextRun returns the next scheduled check, or nil when not scheduled.
func (r *Rotator) NextRun() *time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := r.cron.Entries()
	if len(entries) == 0 {
		return nil
	}
	next := entries[0].Next
	return &next
}
