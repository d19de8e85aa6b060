// Package cleanup removes expired artifacts, idle rate-limit records and
// orphaned workspaces on a fixed schedule.
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"mediagate/internal/core/ports"
)

// Target is a named sweeper.
type Target struct {
	Name    string
	Sweeper ports.Sweeper
}

// Scheduler sweeps its targets at most once per interval.
type Scheduler struct {
	targets  []Target
	interval time.Duration
	logger   *log.Logger

	mu   sync.Mutex
	last time.Time

	cron *cron.Cron
}

// New creates a Scheduler over targets.
func New(interval time.Duration, logger *log.Logger, targets ...Target) *Scheduler {
	return &Scheduler{targets: targets, interval: interval, logger: logger}
}

// MaybeSweep sweeps when at least one interval has passed since the last
// sweep and reports whether it did.
func (s *Scheduler) MaybeSweep(ctx context.Context, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.last.IsZero() && now.Sub(s.last) < s.interval {
		return false, nil
	}
	return true, s.sweep(ctx, now)
}

// SweepNow sweeps regardless of when the last sweep ran.
func (s *Scheduler) SweepNow(ctx context.Context, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweep(ctx, now)
}

// sweep runs every target; one failing target does not stop the others.
func (s *Scheduler) sweep(ctx context.Context, now time.Time) error {
	s.last = now
	var errs []error
	for _, t := range s.targets {
		n, err := t.Sweeper.SweepExpired(ctx, now)
		if err != nil {
			s.logger.Printf("Cleanup: %s sweep failed: %v", t.Name, err)
			errs = append(errs, fmt.Errorf("%s: %w", t.Name, err))
			continue
		}
		if n > 0 {
			s.logger.Printf("Cleanup: removed %d expired %s entries", n, t.Name)
		}
	}
	return errors.Join(errs...)
}

// Start sweeps on a cron schedule of one interval.
func (s *Scheduler) Start() error {
	if s.interval < time.Second {
		return fmt.Errorf("cleanup interval %s is below one second", s.interval)
	}
	c := cron.New()
	_, err := c.AddFunc("@every "+s.interval.String(), func() {
		if err := s.SweepNow(context.Background(), time.Now()); err != nil {
			s.logger.Printf("Cleanup error: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule cleanup: %w", err)
	}
	s.cron = c
	c.Start()
	s.logger.Printf("Cleanup scheduled every %s", s.interval)
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Scheduler) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
}
