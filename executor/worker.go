package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/bowerbird-app/captain-hook-sub005/core"
)

// Worker periodically sweeps the action store for due rows and executes
// them. It backstops the scheduler: rows whose timers were lost to a crash
// still come due here.
type Worker struct {
	Runner       *Runner
	Actions      core.ActionStore
	Observer     core.Observer
	BatchSize    int
	PollInterval time.Duration
	Now          func() time.Time
}

func NewWorker(runner *Runner, cfg core.DispatchConfig) *Worker {
	batch := cfg.WorkerBatchSize
	if batch <= 0 {
		batch = 25
	}
	interval := cfg.WorkerPollInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	var actions core.ActionStore
	var observer core.Observer
	var now func() time.Time
	if runner != nil {
		actions = runner.Actions
		observer = runner.Observer
		now = runner.Now
	}
	if now == nil {
		now = func() time.Time {
			return time.Now().UTC()
		}
	}
	return &Worker{
		Runner:       runner,
		Actions:      actions,
		Observer:     observer,
		BatchSize:    batch,
		PollInterval: interval,
		Now:          now,
	}
}

// Start polls until the context is cancelled.
func (w *Worker) Start(ctx context.Context) error {
	if w == nil || w.Runner == nil || w.Actions == nil {
		return fmt.Errorf("executor: worker requires a runner and action store")
	}
	ticker := time.NewTicker(w.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := w.Sweep(ctx); err != nil {
				w.Observer.LogError(ctx, "worker sweep failed", map[string]any{"error": err.Error()})
			}
		}
	}
}

// Sweep executes one batch of due rows and reports how many were picked up.
func (w *Worker) Sweep(ctx context.Context) (int, error) {
	if w == nil || w.Runner == nil || w.Actions == nil {
		return 0, fmt.Errorf("executor: worker requires a runner and action store")
	}
	due, err := w.Actions.ListDue(ctx, w.BatchSize, w.now())
	if err != nil {
		return 0, err
	}
	for _, row := range due {
		task := core.ScheduledTask{
			ActionID: row.ID,
			EventID:  row.EventID,
			WorkerID: uuid.NewString(),
			Attempt:  row.AttemptCount + 1,
		}
		if _, err := w.Runner.Execute(ctx, task); err != nil {
			w.Observer.LogError(ctx, "due action execution failed", map[string]any{
				"action_id": row.ID,
				"event_id":  row.EventID,
				"error":     err.Error(),
			})
		}
	}
	return len(due), nil
}

func (w *Worker) now() time.Time {
	if w != nil && w.Now != nil {
		return w.Now().UTC()
	}
	return time.Now().UTC()
}
