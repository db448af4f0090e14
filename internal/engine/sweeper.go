package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/healtheconlab/ceflow/internal/store"
	"github.com/healtheconlab/ceflow/pkg/schema"
)

// Sweeper expires stale pending checkpoints on a cron schedule. Suspension
// itself never times out; expiry is a retention policy layered on top, and a
// run whose checkpoint expires can no longer resume, so it is failed.
type Sweeper struct {
	store    store.Store
	ttl      time.Duration
	schedule cron.Schedule
	logger   *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSweeper creates a Sweeper. cronExpr is a standard five-field cron
// expression; ttl is how long a pending checkpoint may sit unconsumed.
func NewSweeper(s store.Store, cronExpr string, ttl time.Duration, logger *slog.Logger) (*Sweeper, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(cronExpr)
	if err != nil {
		return nil, fmt.Errorf("parse sweep schedule %q: %w", cronExpr, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{store: s, ttl: ttl, schedule: schedule, logger: logger}, nil
}

// Start launches the background sweep loop with a 60s ticker.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return fmt.Errorf("sweeper already started")
	}

	sweepCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.loop(sweepCtx)
	s.logger.Info("checkpoint sweeper started", "ttl", s.ttl.String())
	return nil
}

// Stop cancels the loop and waits for it to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *Sweeper) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()

	next := s.schedule.Next(time.Now().UTC())
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now().UTC()
			if now.Before(next) {
				continue
			}
			s.Sweep(ctx)
			next = s.schedule.Next(now)
		}
	}
}

// Sweep expires every pending checkpoint older than the TTL. Each expiry
// deletes the checkpoint, records the event, and fails the orphaned run.
func (s *Sweeper) Sweep(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-s.ttl)
	pending := store.CheckpointPending
	checkpoints, err := s.store.ListCheckpoints(ctx, store.CheckpointFilter{
		Status:        pending,
		CreatedBefore: &cutoff,
	})
	if err != nil {
		s.logger.Error("failed to list stale checkpoints", slog.String("error", err.Error()))
		return
	}

	for _, cp := range checkpoints {
		if err := s.expire(ctx, cp); err != nil {
			s.logger.Error("failed to expire checkpoint",
				slog.String("checkpoint_id", cp.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (s *Sweeper) expire(ctx context.Context, cp *store.Checkpoint) error {
	if err := s.store.DeleteCheckpoint(ctx, cp.ID); err != nil {
		return err
	}
	if err := s.store.AppendEvent(ctx, &store.Event{
		RunID: cp.RunID,
		Type:  schema.EventCheckpointExpired,
	}); err != nil {
		return err
	}

	if err := s.store.AppendEvent(ctx, &store.Event{
		RunID: cp.RunID,
		Type:  schema.EventRunFailed,
	}); err != nil {
		return err
	}

	status := schema.RunStatusFailed
	now := time.Now().UTC()
	if err := s.store.UpdateRun(ctx, cp.RunID, store.RunUpdate{
		Status:      &status,
		CompletedAt: &now,
	}); err != nil {
		return err
	}

	s.logger.Info("checkpoint expired",
		slog.String("checkpoint_id", cp.ID),
		slog.String("run_id", cp.RunID),
	)
	return nil
}
