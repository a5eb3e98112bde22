package domain

type Project struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	OwnerID     string   `json:"owner_id"`
	Statuses    []string `json:"statuses"`
	CreatedAt   string   `json:"created_at" format:"date-time"`
}

// DefaultStatuses is the board layout new projects start with.
var DefaultStatuses = []string{"To Do", "In Progress", "Done"}

type Member struct {
	ProjectID string `json:"project_id"`
	UserID    string `json:"user_id"`
	Role      string `json:"role" enum:"owner,editor,viewer"`
	AddedAt   string `json:"added_at" format:"date-time"`
}

type Invite struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`
	Email     string `json:"email"`
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at" format:"date-time"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type User struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Email     string   `json:"email"`
	Badges    []string `json:"badges"`
	CreatedAt string   `json:"created_at" format:"date-time"`
}

// Badges users can earn through automations.
const (
	BadgeTaskMaster         = "Task Master"
	BadgeEarlyCompleter     = "Early Completer"
	BadgeTeamPlayer         = "Team Player"
	BadgeWorkflowSpecialist = "Workflow Specialist"
)

var KnownBadges = []string{BadgeTaskMaster, BadgeEarlyCompleter, BadgeTeamPlayer, BadgeWorkflowSpecialist}

type Task struct {
	ID               string  `json:"id"`
	ProjectID        string  `json:"project_id"`
	Title            string  `json:"title"`
	Description      string  `json:"description,omitempty"`
	Status           string  `json:"status"`
	AssigneeID       *string `json:"assignee_id,omitempty"`
	CreatedBy        string  `json:"created_by"`
	DueDate          *string `json:"due_date,omitempty" format:"date-time"`
	DueDateProcessed bool    `json:"due_date_processed"`
	CreatedAt        string  `json:"created_at" format:"date-time"`
	UpdatedAt        string  `json:"updated_at" format:"date-time"`
}

// HistoryEntry is an append-only audit record of one field mutation on a task.
type HistoryEntry struct {
	ID       int64  `json:"id"`
	TaskID   string `json:"task_id"`
	Field    string `json:"field"`
	OldValue string `json:"old_value,omitempty"`
	NewValue string `json:"new_value,omitempty"`
	ActorID  string `json:"actor_id"`
	TS       string `json:"ts" format:"date-time"`
}

// Trigger types an automation can listen for.
const (
	TriggerStatusChanged   = "status_changed"
	TriggerAssigneeChanged = "assignee_changed"
	TriggerCreated         = "created"
	TriggerDueDatePassed   = "due_date_passed"
)

var TriggerTypes = []string{TriggerStatusChanged, TriggerAssigneeChanged, TriggerCreated, TriggerDueDatePassed}

// TriggerConditions narrows when a trigger counts as a match. Absent fields
// are wildcards. Only the fields belonging to the trigger type may be set;
// ValidateAutomation rejects the rest.
type TriggerConditions struct {
	FromStatus *string `json:"from_status,omitempty"`
	ToStatus   *string `json:"to_status,omitempty"`
	AssigneeID *string `json:"assignee_id,omitempty"`
}

type Trigger struct {
	Type       string            `json:"type" enum:"status_changed,assignee_changed,created,due_date_passed"`
	Conditions TriggerConditions `json:"conditions,omitempty"`
}

// Action types an automation can execute.
const (
	ActionChangeStatus     = "changeStatus"
	ActionAssignTask       = "assignTask"
	ActionAddBadge         = "addBadge"
	ActionSendNotification = "sendNotification"
)

var ActionTypes = []string{ActionChangeStatus, ActionAssignTask, ActionAddBadge, ActionSendNotification}

// ActionParams carries the parameters for one action. As with conditions,
// only the fields for the action's type may be set.
type ActionParams struct {
	Status     string `json:"status,omitempty"`
	AssigneeID string `json:"assignee_id,omitempty"`
	Badge      string `json:"badge,omitempty"`
	Message    string `json:"message,omitempty"`
}

type Action struct {
	Type   string       `json:"type" enum:"changeStatus,assignTask,addBadge,sendNotification"`
	Params ActionParams `json:"params"`
}

// Automation is a project-scoped rule: one trigger, an ordered action list.
// The engine never mutates automations; only explicit rule edits do.
type Automation struct {
	ID        string   `json:"id"`
	ProjectID string   `json:"project_id"`
	Name      string   `json:"name"`
	CreatedBy string   `json:"created_by"`
	Trigger   Trigger  `json:"trigger"`
	Actions   []Action `json:"actions"`
	IsActive  bool     `json:"is_active"`
	CreatedAt string   `json:"created_at" format:"date-time"`
}

// Notification types.
const (
	NotifyTaskAssigned        = "task_assigned"
	NotifyTaskDueSoon         = "task_due_soon"
	NotifyTaskOverdue         = "task_overdue"
	NotifyProjectInvitation   = "project_invitation"
	NotifyBadgeEarned         = "badge_earned"
	NotifyAutomationTriggered = "automation_triggered"
)

type Notification struct {
	ID             string `json:"id"`
	UserID         string `json:"user_id"`
	Type           string `json:"type" enum:"task_assigned,task_due_soon,task_overdue,project_invitation,badge_earned,automation_triggered"`
	Message        string `json:"message"`
	RelatedProject string `json:"related_project,omitempty"`
	RelatedTask    string `json:"related_task,omitempty"`
	IsRead         bool   `json:"is_read"`
	CreatedAt      string `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	ProjectID  string `json:"project_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
