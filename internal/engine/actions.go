package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"taskboard/internal/domain"
	"taskboard/internal/repo"
)

// executeAction runs one action in its own transaction. The in-memory task
// is updated only after the transaction commits, so subsequent actions
// observe exactly what the database accepted. Status changes performed here
// do not feed back into the dispatcher; only user-initiated updates start an
// automation run.
func (e Engine) executeAction(ctx context.Context, task *domain.Task, rule domain.Automation, action domain.Action, actorID string) error {
	switch action.Type {
	case domain.ActionChangeStatus:
		return e.actionChangeStatus(ctx, task, action.Params.Status, actorID)
	case domain.ActionAssignTask:
		return e.actionAssignTask(ctx, task, action.Params.AssigneeID, actorID)
	case domain.ActionAddBadge:
		return e.actionAddBadge(ctx, task, action.Params.Badge)
	case domain.ActionSendNotification:
		return e.actionSendNotification(ctx, task, action.Params.Message)
	default:
		return fmt.Errorf("unknown action type %q", action.Type)
	}
}

func (e Engine) actionChangeStatus(ctx context.Context, task *domain.Task, status, actorID string) error {
	if task.Status == status {
		return nil
	}
	p, err := e.Repo.GetProject(ctx, task.ProjectID)
	if err != nil {
		return err
	}
	if !hasStatus(p.Statuses, status) {
		return fmt.Errorf("status %q not on project board", status)
	}
	now := e.now().UTC().Format(time.RFC3339)
	next := *task
	next.Status = status
	next.UpdatedAt = now

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateTask(ctx, tx, next); err != nil {
		return err
	}
	if err := e.Repo.AppendHistory(ctx, tx, domain.HistoryEntry{
		TaskID:   task.ID,
		Field:    "status",
		OldValue: task.Status,
		NewValue: status,
		ActorID:  actorID,
		TS:       now,
	}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	*task = next
	return nil
}

func (e Engine) actionAssignTask(ctx context.Context, task *domain.Task, assigneeID, actorID string) error {
	if derefOrEmpty(task.AssigneeID) == assigneeID {
		return nil
	}
	u, err := e.Repo.GetUser(ctx, assigneeID)
	if err != nil {
		return fmt.Errorf("assignee %s: %w", assigneeID, err)
	}
	now := e.now().UTC().Format(time.RFC3339)
	next := *task
	next.AssigneeID = &assigneeID
	next.UpdatedAt = now

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateTask(ctx, tx, next); err != nil {
		return err
	}
	if err := e.Repo.AppendHistory(ctx, tx, domain.HistoryEntry{
		TaskID:   task.ID,
		Field:    "assignee",
		OldValue: derefOrEmpty(task.AssigneeID),
		NewValue: assigneeID,
		ActorID:  actorID,
		TS:       now,
	}); err != nil {
		return err
	}
	if err := e.Repo.InsertNotification(ctx, tx, domain.Notification{
		ID:             uuid.NewString(),
		UserID:         u.ID,
		Type:           domain.NotifyTaskAssigned,
		Message:        fmt.Sprintf("You have been assigned to task %q", task.Title),
		RelatedProject: task.ProjectID,
		RelatedTask:    task.ID,
		CreatedAt:      now,
	}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	*task = next
	return nil
}

// actionAddBadge grants the badge to the task's current assignee. Without an
// assignee there is nobody to award, so the action is a no-op. Granting an
// already-held badge is also a no-op; running the rule twice changes nothing.
func (e Engine) actionAddBadge(ctx context.Context, task *domain.Task, badge string) error {
	if task.AssigneeID == nil {
		return nil
	}
	if e.Config != nil && !e.Config.HasBadge(badge) {
		return fmt.Errorf("badge %q not in catalog", badge)
	}
	u, err := e.Repo.GetUser(ctx, *task.AssigneeID)
	if err != nil {
		return fmt.Errorf("assignee %s: %w", *task.AssigneeID, err)
	}
	for _, b := range u.Badges {
		if b == badge {
			return nil
		}
	}
	now := e.now().UTC().Format(time.RFC3339)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateUserBadges(ctx, tx, u.ID, append(u.Badges, badge)); err != nil {
		return err
	}
	if err := e.Repo.InsertNotification(ctx, tx, domain.Notification{
		ID:             uuid.NewString(),
		UserID:         u.ID,
		Type:           domain.NotifyBadgeEarned,
		Message:        fmt.Sprintf("You earned the %q badge", badge),
		RelatedProject: task.ProjectID,
		RelatedTask:    task.ID,
		CreatedAt:      now,
	}); err != nil {
		return err
	}
	return tx.Commit()
}

// actionSendNotification delivers the templated message to the task's
// assignee. {taskTitle} and {taskStatus} expand to the task's current values
// at execution time, after any earlier actions in the same rule ran.
func (e Engine) actionSendNotification(ctx context.Context, task *domain.Task, message string) error {
	if task.AssigneeID == nil {
		return nil
	}
	u, err := e.Repo.GetUser(ctx, *task.AssigneeID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil
		}
		return err
	}
	msg := strings.NewReplacer("{taskTitle}", task.Title, "{taskStatus}", task.Status).Replace(message)
	return e.Repo.InsertNotification(ctx, nil, domain.Notification{
		ID:             uuid.NewString(),
		UserID:         u.ID,
		Type:           domain.NotifyAutomationTriggered,
		Message:        msg,
		RelatedProject: task.ProjectID,
		RelatedTask:    task.ID,
		CreatedAt:      e.now().UTC().Format(time.RFC3339),
	})
}
