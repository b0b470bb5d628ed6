package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bowerbird-app/captain-hook-sub005/core"
)

// TimerScheduler fires tasks from in-process timers. It gives library
// embeddings working async dispatch without a queue; durability comes from
// the store either way, since a missed timer is picked up by the polling
// worker.
type TimerScheduler struct {
	Runner   core.TaskRunner
	Observer core.Observer

	mu     sync.Mutex
	wg     sync.WaitGroup
	closed bool
}

func NewTimerScheduler(runner core.TaskRunner) *TimerScheduler {
	return &TimerScheduler{Runner: runner}
}

func (s *TimerScheduler) ScheduleAfter(_ context.Context, delay time.Duration, task core.ScheduledTask) error {
	if s == nil {
		return fmt.Errorf("executor: timer scheduler is nil")
	}
	if s.Runner == nil {
		return fmt.Errorf("executor: timer scheduler requires a task runner")
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("executor: timer scheduler is closed")
	}
	s.wg.Add(1)
	s.mu.Unlock()

	if delay < 0 {
		delay = 0
	}
	time.AfterFunc(delay, func() {
		defer s.wg.Done()
		// Timers outlive the scheduling request; run detached from it.
		if err := s.Runner.Run(context.Background(), task); err != nil {
			s.Observer.LogError(context.Background(), "scheduled task failed", map[string]any{
				"action_id": task.ActionID,
				"event_id":  task.EventID,
				"error":     err.Error(),
			})
		}
	})
	return nil
}

// Wait blocks until every fired timer has finished. Close first to stop new
// timers from being added.
func (s *TimerScheduler) Wait() {
	if s == nil {
		return
	}
	s.wg.Wait()
}

func (s *TimerScheduler) Close() {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}
