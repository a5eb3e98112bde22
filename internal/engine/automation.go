package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"taskboard/internal/domain"
	"taskboard/internal/events"
)

// ValidateAutomation checks a rule before it is stored. Bad rules are
// rejected at write time so the dispatcher never sees one. Status references
// are checked against boardStatuses, the target project's stored board, which
// is the same list the executor enforces.
func (e Engine) ValidateAutomation(a domain.Automation, boardStatuses []string) error {
	if a.Name == "" {
		return errors.New("automation name is required")
	}
	if !contains(domain.TriggerTypes, a.Trigger.Type) {
		return fmt.Errorf("unknown trigger type %q", a.Trigger.Type)
	}
	if len(a.Actions) == 0 {
		return errors.New("automation needs at least one action")
	}
	c := a.Trigger.Conditions
	switch a.Trigger.Type {
	case domain.TriggerStatusChanged:
		if c.AssigneeID != nil {
			return fmt.Errorf("condition assignee_id does not apply to trigger %s", a.Trigger.Type)
		}
		if c.FromStatus != nil && !hasStatus(boardStatuses, *c.FromStatus) {
			return fmt.Errorf("condition from_status %q not on board", *c.FromStatus)
		}
		if c.ToStatus != nil && !hasStatus(boardStatuses, *c.ToStatus) {
			return fmt.Errorf("condition to_status %q not on board", *c.ToStatus)
		}
	case domain.TriggerAssigneeChanged:
		if c.FromStatus != nil || c.ToStatus != nil {
			return fmt.Errorf("status conditions do not apply to trigger %s", a.Trigger.Type)
		}
	default:
		if c.FromStatus != nil || c.ToStatus != nil || c.AssigneeID != nil {
			return fmt.Errorf("trigger %s takes no conditions", a.Trigger.Type)
		}
	}
	for i, action := range a.Actions {
		if err := e.validateAction(action, boardStatuses); err != nil {
			return fmt.Errorf("action %d: %w", i, err)
		}
	}
	return nil
}

func (e Engine) validateAction(action domain.Action, boardStatuses []string) error {
	p := action.Params
	switch action.Type {
	case domain.ActionChangeStatus:
		if p.Status == "" {
			return errors.New("changeStatus requires params.status")
		}
		if !hasStatus(boardStatuses, p.Status) {
			return fmt.Errorf("status %q not on project board", p.Status)
		}
		if p.AssigneeID != "" || p.Badge != "" || p.Message != "" {
			return errors.New("changeStatus takes only params.status")
		}
	case domain.ActionAssignTask:
		if p.AssigneeID == "" {
			return errors.New("assignTask requires params.assignee_id")
		}
		if p.Status != "" || p.Badge != "" || p.Message != "" {
			return errors.New("assignTask takes only params.assignee_id")
		}
	case domain.ActionAddBadge:
		if p.Badge == "" {
			return errors.New("addBadge requires params.badge")
		}
		if e.Config != nil && !e.Config.HasBadge(p.Badge) {
			return fmt.Errorf("badge %q not in catalog", p.Badge)
		}
		if p.Status != "" || p.AssigneeID != "" || p.Message != "" {
			return errors.New("addBadge takes only params.badge")
		}
	case domain.ActionSendNotification:
		if p.Message == "" {
			return errors.New("sendNotification requires params.message")
		}
		if p.Status != "" || p.AssigneeID != "" || p.Badge != "" {
			return errors.New("sendNotification takes only params.message")
		}
	default:
		return fmt.Errorf("unknown action type %q", action.Type)
	}
	return nil
}

// CreateAutomation validates and stores a new rule, active by default.
func (e Engine) CreateAutomation(ctx context.Context, a domain.Automation) (domain.Automation, error) {
	p, err := e.Repo.GetProject(ctx, a.ProjectID)
	if err != nil {
		return domain.Automation{}, err
	}
	if err := e.ValidateAutomation(a, p.Statuses); err != nil {
		return domain.Automation{}, err
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	a.IsActive = true
	a.CreatedAt = e.now().UTC().Format(time.RFC3339)
	if err := e.Repo.InsertAutomation(ctx, a); err != nil {
		return domain.Automation{}, err
	}
	if err := e.Events.AppendNoTx(ctx, "automation.created", a.ProjectID, "automation", a.ID, a.CreatedBy, events.EventPayload{
		"name":    a.Name,
		"trigger": a.Trigger.Type,
	}); err != nil {
		e.logf("automation %s: record creation: %v", a.ID, err)
	}
	return a, nil
}

// AutomationUpdateOptions are the editable fields of a rule.
type AutomationUpdateOptions struct {
	ID       string
	Name     *string
	Trigger  *domain.Trigger
	Actions  []domain.Action
	IsActive *bool
	ActorID  string
}

// UpdateAutomation applies edits, revalidating the whole rule.
func (e Engine) UpdateAutomation(ctx context.Context, opts AutomationUpdateOptions) (domain.Automation, error) {
	a, err := e.Repo.GetAutomation(ctx, opts.ID)
	if err != nil {
		return a, err
	}
	if opts.Name != nil {
		a.Name = *opts.Name
	}
	if opts.Trigger != nil {
		a.Trigger = *opts.Trigger
	}
	if opts.Actions != nil {
		a.Actions = opts.Actions
	}
	if opts.IsActive != nil {
		a.IsActive = *opts.IsActive
	}
	p, err := e.Repo.GetProject(ctx, a.ProjectID)
	if err != nil {
		return a, err
	}
	if err := e.ValidateAutomation(a, p.Statuses); err != nil {
		return a, err
	}
	if err := e.Repo.UpdateAutomation(ctx, a); err != nil {
		return a, err
	}
	if err := e.Events.AppendNoTx(ctx, "automation.updated", a.ProjectID, "automation", a.ID, opts.ActorID, events.EventPayload{
		"name":      a.Name,
		"is_active": a.IsActive,
	}); err != nil {
		e.logf("automation %s: record update: %v", a.ID, err)
	}
	return a, nil
}

// DeleteAutomation removes a rule.
func (e Engine) DeleteAutomation(ctx context.Context, id, actorID string) error {
	a, err := e.Repo.GetAutomation(ctx, id)
	if err != nil {
		return err
	}
	if err := e.Repo.DeleteAutomation(ctx, id); err != nil {
		return err
	}
	if err := e.Events.AppendNoTx(ctx, "automation.deleted", a.ProjectID, "automation", a.ID, actorID, events.EventPayload{"name": a.Name}); err != nil {
		e.logf("automation %s: record deletion: %v", a.ID, err)
	}
	return nil
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
