package reindex

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	domtask "github.com/assetgrid/searchsync/internal/domain/reindex"
	"github.com/assetgrid/searchsync/internal/metrics"
)

const lockKey = "searchsync:lock:watchdog"

// locker is the consumer interface for the lease lock.
type locker interface {
	AcquireLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key, token string) error
}

// taskLister lists pending tasks across tenants.
type taskLister interface {
	List(ctx context.Context) ([]*domtask.Task, error)
}

// Watchdog periodically polls the engine for finished background copies and
// triggers cutover. A short-lived lease lock keeps the check on a single
// instance per tick; contention is normal, not an error.
type Watchdog struct {
	orch     *Orchestrator
	tasks    taskLister
	locks    locker
	interval time.Duration
	lockTTL  time.Duration
	log      *zap.Logger
}

// NewWatchdog creates a reindex completion watchdog.
func NewWatchdog(
	orch *Orchestrator, tasks taskLister, locks locker,
	interval, lockTTL time.Duration, log *zap.Logger,
) *Watchdog {
	return &Watchdog{
		orch:     orch,
		tasks:    tasks,
		locks:    locks,
		interval: interval,
		lockTTL:  lockTTL,
		log:      log,
	}
}

// Run ticks until the context is canceled.
func (w *Watchdog) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Tick(ctx)
		}
	}
}

// Tick performs one lock-guarded completion check. Best effort: failures are
// logged and the next tick self-heals.
func (w *Watchdog) Tick(ctx context.Context) {
	token := uuid.NewString()
	acquired, err := w.locks.AcquireLock(ctx, lockKey, token, w.lockTTL)
	if err != nil {
		w.log.Warn("watchdog lock acquire failed", zap.Error(err))
		return
	}
	if !acquired {
		return // another instance is handling it
	}
	defer func() {
		if err := w.locks.ReleaseLock(ctx, lockKey, token); err != nil {
			w.log.Warn("watchdog lock release failed", zap.Error(err))
		}
	}()

	tasks, err := w.tasks.List(ctx)
	if err != nil {
		w.log.Warn("watchdog task list failed", zap.Error(err))
		return
	}

	for _, task := range tasks {
		done, err := w.orch.Completed(ctx, task)
		if err != nil {
			w.log.Warn("watchdog completion check failed",
				zap.String("tenant", task.Tenant),
				zap.String("env", task.Env),
				zap.Error(err),
			)
			continue
		}
		if !done {
			continue
		}
		if err := w.orch.Cutover(ctx, task); err != nil {
			w.log.Error("cutover failed",
				zap.String("tenant", task.Tenant),
				zap.String("env", task.Env),
				zap.Error(err),
			)
			continue
		}
		metrics.ReindexCutovers.Inc()
	}
}
