package server

import (
	"taskboard/internal/config"
	"taskboard/internal/domain"
)

type CreateProjectRequest struct {
	ID          string  `json:"id" example:"proj-1"`
	Title       string  `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
}

type ProjectResponse struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	OwnerID     string   `json:"owner_id"`
	Statuses    []string `json:"statuses"`
	CreatedAt   string   `json:"created_at"`
}

func projectResponse(p domain.Project) ProjectResponse {
	return ProjectResponse{
		ID:          p.ID,
		Title:       p.Title,
		Description: p.Description,
		OwnerID:     p.OwnerID,
		Statuses:    nonNilSlice(p.Statuses),
		CreatedAt:   p.CreatedAt,
	}
}

type ProjectConfigResponse struct {
	ProjectID            string   `json:"project_id"`
	Statuses             []string `json:"statuses"`
	Badges               []string `json:"badges"`
	SweepIntervalMinutes int      `json:"sweep_interval_minutes"`
}

func configResponse(cfg *config.Config) ProjectConfigResponse {
	badges := make([]string, 0, len(cfg.Badges.Catalog))
	for name := range cfg.Badges.Catalog {
		badges = append(badges, name)
	}
	return ProjectConfigResponse{
		ProjectID:            cfg.Project.ID,
		Statuses:             nonNilSlice(cfg.Board.Statuses),
		Badges:               badges,
		SweepIntervalMinutes: cfg.Automation.SweepIntervalMinutes,
	}
}

type CreateTaskRequest struct {
	ID          *string `json:"id,omitempty"`
	Title       string  `json:"title"`
	Description *string `json:"description,omitempty"`
	Status      *string `json:"status,omitempty"`
	AssigneeID  *string `json:"assignee_id,omitempty"`
	DueDate     *string `json:"due_date,omitempty" format:"date-time"`
}

type UpdateTaskRequest struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Status      *string `json:"status,omitempty"`
	AssigneeID  *string `json:"assignee_id,omitempty"`
	DueDate     *string `json:"due_date,omitempty" format:"date-time"`
}

type TaskResponse struct {
	ID          string  `json:"id"`
	ProjectID   string  `json:"project_id"`
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	Status      string  `json:"status"`
	AssigneeID  *string `json:"assignee_id,omitempty"`
	CreatedBy   string  `json:"created_by"`
	DueDate     *string `json:"due_date,omitempty"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
}

func taskResponse(t domain.Task) TaskResponse {
	return TaskResponse{
		ID:          t.ID,
		ProjectID:   t.ProjectID,
		Title:       t.Title,
		Description: t.Description,
		Status:      t.Status,
		AssigneeID:  t.AssigneeID,
		CreatedBy:   t.CreatedBy,
		DueDate:     t.DueDate,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

type paginatedTasks struct {
	Items      []TaskResponse `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

type HistoryResponse struct {
	Field    string `json:"field"`
	OldValue string `json:"old_value,omitempty"`
	NewValue string `json:"new_value,omitempty"`
	ActorID  string `json:"actor_id"`
	TS       string `json:"ts"`
}

func historyResponse(h domain.HistoryEntry) HistoryResponse {
	return HistoryResponse{
		Field:    h.Field,
		OldValue: h.OldValue,
		NewValue: h.NewValue,
		ActorID:  h.ActorID,
		TS:       h.TS,
	}
}

type TriggerRequest struct {
	Type       string `json:"type" enum:"status_changed,assignee_changed,created,due_date_passed"`
	Conditions struct {
		FromStatus *string `json:"from_status,omitempty"`
		ToStatus   *string `json:"to_status,omitempty"`
		AssigneeID *string `json:"assignee_id,omitempty"`
	} `json:"conditions,omitempty"`
}

type ActionRequest struct {
	Type   string `json:"type" enum:"changeStatus,assignTask,addBadge,sendNotification"`
	Params struct {
		Status     string `json:"status,omitempty"`
		AssigneeID string `json:"assignee_id,omitempty"`
		Badge      string `json:"badge,omitempty"`
		Message    string `json:"message,omitempty"`
	} `json:"params"`
}

type CreateAutomationRequest struct {
	Name    string          `json:"name"`
	Trigger TriggerRequest  `json:"trigger"`
	Actions []ActionRequest `json:"actions"`
}

type UpdateAutomationRequest struct {
	Name     *string         `json:"name,omitempty"`
	Trigger  *TriggerRequest `json:"trigger,omitempty"`
	Actions  []ActionRequest `json:"actions,omitempty"`
	IsActive *bool           `json:"is_active,omitempty"`
}

type AutomationResponse struct {
	ID        string          `json:"id"`
	ProjectID string          `json:"project_id"`
	Name      string          `json:"name"`
	CreatedBy string          `json:"created_by"`
	Trigger   TriggerRequest  `json:"trigger"`
	Actions   []ActionRequest `json:"actions"`
	IsActive  bool            `json:"is_active"`
	CreatedAt string          `json:"created_at"`
}

func triggerFromRequest(in TriggerRequest) domain.Trigger {
	return domain.Trigger{
		Type: in.Type,
		Conditions: domain.TriggerConditions{
			FromStatus: in.Conditions.FromStatus,
			ToStatus:   in.Conditions.ToStatus,
			AssigneeID: in.Conditions.AssigneeID,
		},
	}
}

func actionsFromRequest(in []ActionRequest) []domain.Action {
	out := make([]domain.Action, 0, len(in))
	for _, a := range in {
		out = append(out, domain.Action{
			Type: a.Type,
			Params: domain.ActionParams{
				Status:     a.Params.Status,
				AssigneeID: a.Params.AssigneeID,
				Badge:      a.Params.Badge,
				Message:    a.Params.Message,
			},
		})
	}
	return out
}

func automationResponse(a domain.Automation) AutomationResponse {
	resp := AutomationResponse{
		ID:        a.ID,
		ProjectID: a.ProjectID,
		Name:      a.Name,
		CreatedBy: a.CreatedBy,
		IsActive:  a.IsActive,
		CreatedAt: a.CreatedAt,
		Actions:   []ActionRequest{},
	}
	resp.Trigger.Type = a.Trigger.Type
	resp.Trigger.Conditions.FromStatus = a.Trigger.Conditions.FromStatus
	resp.Trigger.Conditions.ToStatus = a.Trigger.Conditions.ToStatus
	resp.Trigger.Conditions.AssigneeID = a.Trigger.Conditions.AssigneeID
	for _, act := range a.Actions {
		var ar ActionRequest
		ar.Type = act.Type
		ar.Params.Status = act.Params.Status
		ar.Params.AssigneeID = act.Params.AssigneeID
		ar.Params.Badge = act.Params.Badge
		ar.Params.Message = act.Params.Message
		resp.Actions = append(resp.Actions, ar)
	}
	return resp
}

type NotificationResponse struct {
	ID             string `json:"id"`
	Type           string `json:"type"`
	Message        string `json:"message"`
	RelatedProject string `json:"related_project,omitempty"`
	RelatedTask    string `json:"related_task,omitempty"`
	IsRead         bool   `json:"is_read"`
	CreatedAt      string `json:"created_at"`
}

func notificationResponse(n domain.Notification) NotificationResponse {
	return NotificationResponse{
		ID:             n.ID,
		Type:           n.Type,
		Message:        n.Message,
		RelatedProject: n.RelatedProject,
		RelatedTask:    n.RelatedTask,
		IsRead:         n.IsRead,
		CreatedAt:      n.CreatedAt,
	}
}

type MarkReadRequest struct {
	IDs []string `json:"ids"`
}

type RegisterUserRequest struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name"`
	Email string `json:"email" format:"email"`
}

type UserResponse struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Email  string   `json:"email"`
	Badges []string `json:"badges"`
}

func userResponse(u domain.User) UserResponse {
	return UserResponse{ID: u.ID, Name: u.Name, Email: u.Email, Badges: nonNilSlice(u.Badges)}
}

type MemberResponse struct {
	UserID  string `json:"user_id"`
	Role    string `json:"role"`
	AddedAt string `json:"added_at"`
}

type AddMemberRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role,omitempty" enum:"owner,editor,viewer"`
}

type InviteMemberRequest struct {
	Email string `json:"email" format:"email"`
}

type InviteResponse struct {
	Token     string `json:"token"`
	Email     string `json:"email"`
	ExpiresAt string `json:"expires_at"`
}

type AcceptInviteRequest struct {
	Token string `json:"token"`
}

type EventResponse struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	ProjectID  string `json:"project_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		ProjectID:  e.ProjectID,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    e.Payload,
	}
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

type WhoAmIResponse struct {
	UserID string `json:"user_id"`
	Role   string `json:"role,omitempty"`
	Source string `json:"source"`
}

type DevLoginRequest struct {
	UserID string `json:"user_id"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
