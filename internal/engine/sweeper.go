package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"taskboard/internal/domain"
	"taskboard/internal/repo"
)

// Sweep finds tasks whose due date has elapsed and fires the due_date_passed
// trigger once per task. Each task is claimed with a conditional update
// before dispatch, so overlapping sweeps split the work instead of
// duplicating it. Returns the number of tasks this call claimed.
func (e Engine) Sweep(ctx context.Context) (int, error) {
	now := e.now().UTC().Format(time.RFC3339)
	tasks, err := e.Repo.ListOverdueUnprocessed(ctx, now)
	if err != nil {
		return 0, err
	}
	claimed := 0
	for _, t := range tasks {
		ok, err := e.Repo.ClaimDueDateProcessed(ctx, t.ID)
		if err != nil {
			return claimed, err
		}
		if !ok {
			continue
		}
		claimed++
		t.DueDateProcessed = true
		if err := e.notifyOverdue(ctx, t); err != nil {
			e.logf("sweep: overdue notification for task %s: %v", t.ID, err)
		}
		if err := e.OnDueDatePassed(ctx, t); err != nil {
			e.logf("sweep: dispatch for task %s: %v", t.ID, err)
		}
	}
	return claimed, nil
}

// notifyOverdue tells the assignee their task blew its due date. Claiming
// gates this too, so the assignee hears about each due date once.
func (e Engine) notifyOverdue(ctx context.Context, t domain.Task) error {
	if t.AssigneeID == nil {
		return nil
	}
	if _, err := e.Repo.GetUser(ctx, *t.AssigneeID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil
		}
		return err
	}
	return e.Repo.InsertNotification(ctx, nil, domain.Notification{
		ID:             uuid.NewString(),
		UserID:         *t.AssigneeID,
		Type:           domain.NotifyTaskOverdue,
		Message:        fmt.Sprintf("Task %q is overdue", t.Title),
		RelatedProject: t.ProjectID,
		RelatedTask:    t.ID,
		CreatedAt:      e.now().UTC().Format(time.RFC3339),
	})
}

// Sweeper periodically runs Sweep in the background.
type Sweeper struct {
	engine   Engine
	interval time.Duration

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

// StartSweeper launches the background sweep loop. A zero or negative
// interval falls back to one hour.
func StartSweeper(e Engine, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	s := &Sweeper{
		engine:   e,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *Sweeper) run() {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	s.sweepOnce()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.sweepOnce()
		}
	}
}

// sweepOnce skips the tick if the previous sweep is still running.
func (s *Sweeper) sweepOnce() {
	if !s.mu.TryLock() {
		return
	}
	defer s.mu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), s.interval)
	defer cancel()
	if _, err := s.engine.Sweep(ctx); err != nil {
		s.engine.logf("sweep: %v", err)
	}
}

// Stop halts the loop and waits for any in-flight sweep to finish.
func (s *Sweeper) Stop() {
	close(s.stop)
	<-s.done
}
