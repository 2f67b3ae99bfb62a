// Package scheduler drives the periodic ingest-then-rules cycle.
package scheduler

import (
	"context"
	"log/slog"
	"time"
)

// Syncer pulls fresh documents for every scraping-enabled feed.
type Syncer interface {
	SyncAll(ctx context.Context) error
}

// RuleProcessor applies stored rules for every active user.
type RuleProcessor interface {
	ProcessAll(ctx context.Context) error
}

// Scheduler runs ingestion and rule application on a fixed interval.
type Scheduler struct {
	syncer Syncer
	rules  RuleProcessor
	log    *slog.Logger
	tick   time.Duration
}

// New creates a Scheduler with a 15-minute default interval.
func New(syncer Syncer, rules RuleProcessor, log *slog.Logger) *Scheduler {
	return &Scheduler{
		syncer: syncer,
		rules:  rules,
		log:    log,
		tick:   15 * time.Minute,
	}
}

// SetTickInterval overrides the default check interval.
func (s *Scheduler) SetTickInterval(d time.Duration) {
	s.tick = d
}

// Run starts the scheduler loop, blocking until ctx is cancelled.
// A full cycle runs immediately on start, then once per tick.
func (s *Scheduler) Run(ctx context.Context) {
	s.cycle(ctx)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.cycle(ctx)
		}
	}
}

// cycle ingests before applying rules so freshly stored entries are
// still unread when rules see them.
func (s *Scheduler) cycle(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()

	if err := s.syncer.SyncAll(ctx); err != nil {
		s.log.Error("sync feeds", "error", err)
	}
	if err := s.rules.ProcessAll(ctx); err != nil {
		s.log.Error("process rules", "error", err)
	}

	s.log.Debug("cycle finished", "elapsed", time.Since(start))
}
