package engine

import (
	"context"
	"sync"

	"taskboard/internal/domain"
	"taskboard/internal/events"
)

// TaskEvent is one task mutation being offered to the automation rules.
type TaskEvent struct {
	Type        string
	Task        domain.Task
	OldStatus   string
	NewStatus   string
	OldAssignee string
	NewAssignee string
	ActorID     string
}

// taskLocks serializes automation runs per task. Two events for different
// tasks run concurrently; two events for the same task run one after the
// other, in arrival order at the lock.
type taskLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newTaskLocks() *taskLocks {
	return &taskLocks{locks: map[string]*sync.Mutex{}}
}

func (l *taskLocks) forTask(id string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[id]
	if !ok {
		m = &sync.Mutex{}
		l.locks[id] = m
	}
	return m
}

func (e Engine) OnTaskCreated(ctx context.Context, t domain.Task, actorID string) error {
	return e.dispatch(ctx, TaskEvent{
		Type:        domain.TriggerCreated,
		Task:        t,
		NewStatus:   t.Status,
		NewAssignee: derefOrEmpty(t.AssigneeID),
		ActorID:     actorID,
	})
}

func (e Engine) OnStatusChanged(ctx context.Context, t domain.Task, oldStatus, actorID string) error {
	return e.dispatch(ctx, TaskEvent{
		Type:        domain.TriggerStatusChanged,
		Task:        t,
		OldStatus:   oldStatus,
		NewStatus:   t.Status,
		NewAssignee: derefOrEmpty(t.AssigneeID),
		ActorID:     actorID,
	})
}

func (e Engine) OnAssigneeChanged(ctx context.Context, t domain.Task, oldAssignee, actorID string) error {
	return e.dispatch(ctx, TaskEvent{
		Type:        domain.TriggerAssigneeChanged,
		Task:        t,
		OldStatus:   t.Status,
		NewStatus:   t.Status,
		OldAssignee: oldAssignee,
		NewAssignee: derefOrEmpty(t.AssigneeID),
		ActorID:     actorID,
	})
}

func (e Engine) OnDueDatePassed(ctx context.Context, t domain.Task) error {
	return e.dispatch(ctx, TaskEvent{
		Type:        domain.TriggerDueDatePassed,
		Task:        t,
		NewStatus:   t.Status,
		NewAssignee: derefOrEmpty(t.AssigneeID),
		ActorID:     t.CreatedBy,
	})
}

// dispatch runs every matching active rule against the event, in rule
// creation order, actions in list order. Each action commits on its own;
// a failed action is logged and recorded but never stops the remaining
// actions or rules. Errors loading the rule set abort the whole event.
func (e Engine) dispatch(ctx context.Context, evt TaskEvent) error {
	lock := e.locks.forTask(evt.Task.ID)
	lock.Lock()
	defer lock.Unlock()

	rules, err := e.Repo.ListActiveAutomations(ctx, evt.Task.ProjectID, evt.Type)
	if err != nil {
		return err
	}

	// Later actions and rules see the effects of earlier ones.
	task := evt.Task
	for _, rule := range rules {
		if !ruleMatches(rule.Trigger, evt) {
			continue
		}
		executed := 0
		failed := 0
		for i, action := range rule.Actions {
			if err := e.executeAction(ctx, &task, rule, action, evt.ActorID); err != nil {
				failed++
				e.logf("automation %s (%s): action %d %s failed: %v", rule.ID, rule.Name, i, action.Type, err)
				if aerr := e.Events.AppendNoTx(ctx, "automation.action.failed", task.ProjectID, "automation", rule.ID, evt.ActorID, events.EventPayload{
					"task_id":      task.ID,
					"action_index": i,
					"action_type":  action.Type,
					"error":        err.Error(),
				}); aerr != nil {
					e.logf("automation %s: record failure: %v", rule.ID, aerr)
				}
				continue
			}
			executed++
		}
		if err := e.Events.AppendNoTx(ctx, "automation.executed", task.ProjectID, "automation", rule.ID, evt.ActorID, events.EventPayload{
			"task_id":          task.ID,
			"trigger":          evt.Type,
			"actions_executed": executed,
			"actions_failed":   failed,
		}); err != nil {
			e.logf("automation %s: record execution: %v", rule.ID, err)
		}
	}
	return nil
}
