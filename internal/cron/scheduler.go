// Package cron runs periodic maintenance jobs against the coordination
// kernel — currently just the unhealthy-agent sweep — on a
// robfig/cron/v3 schedule.
package cron

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/aiswarm/swarmd/internal/coordination"
)

// DefaultSweepSpec matches config.DefaultHeartbeatSweepInterval (15s) expressed
// as a cron @every spec.
const DefaultSweepSpec = "@every 15s"

// Config holds the dependencies for the scheduler.
type Config struct {
	Agents           *coordination.AgentService
	Logger           *slog.Logger
	SweepSpec        string        // cron spec for the sweep job; defaults to DefaultSweepSpec
	HeartbeatTimeout time.Duration // agents unseen longer than this are marked Unhealthy
}

// Scheduler wraps a robfig/cron/v3 Cron instance running the heartbeat
// sweep (and any future periodic jobs) against the coordination layer.
type Scheduler struct {
	cron   *cronlib.Cron
	logger *slog.Logger
}

// NewScheduler builds a Scheduler and registers its jobs. It does not
// start running until Start is called.
func NewScheduler(cfg Config) (*Scheduler, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	spec := cfg.SweepSpec
	if spec == "" {
		spec = DefaultSweepSpec
	}
	timeout := cfg.HeartbeatTimeout
	if timeout <= 0 {
		timeout = 90 * time.Second
	}

	c := cronlib.New(cronlib.WithParser(cronlib.NewParser(
		cronlib.Second | cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
	)))

	s := &Scheduler{cron: c, logger: logger}

	_, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := cfg.Agents.SweepUnhealthy(ctx, timeout); err != nil {
			s.logger.Error("heartbeat sweep failed", "error", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("register heartbeat sweep job (%q): %w", spec, err)
	}

	return s, nil
}

// Start begins running scheduled jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("cron scheduler started")
}

// Stop cancels the scheduler loop, waiting for any in-flight job to finish.
func (s *Scheduler) Stop(ctx context.Context) {
	stopped := s.cron.Stop()
	select {
	case <-stopped.Done():
	case <-ctx.Done():
	}
	s.logger.Info("cron scheduler stopped")
}
