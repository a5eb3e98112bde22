package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"taskboard/internal/config"
	"taskboard/internal/domain"
	"taskboard/internal/events"
	"taskboard/internal/repo"
)

const inviteTTL = 7 * 24 * time.Hour

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Now    func() time.Time
	Logger *log.Logger

	locks *taskLocks
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
		locks:  newTaskLocks(),
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) logf(format string, args ...any) {
	if e.Logger != nil {
		e.Logger.Printf(format, args...)
		return
	}
	log.Printf(format, args...)
}

// InitProject creates a project with the default board, seeds its config and
// makes the creator its owner.
func (e Engine) InitProject(ctx context.Context, projectID, title, description, ownerID string) (domain.Project, error) {
	if projectID == "" {
		return domain.Project{}, errors.New("project id is required")
	}
	if ownerID == "" {
		return domain.Project{}, errors.New("owner is required")
	}
	statuses := domain.DefaultStatuses
	if e.Config != nil && len(e.Config.Board.Statuses) > 0 {
		statuses = e.Config.Board.Statuses
	}
	now := e.now().UTC().Format(time.RFC3339)
	p := domain.Project{
		ID:          projectID,
		Title:       title,
		Description: description,
		OwnerID:     ownerID,
		Statuses:    statuses,
		CreatedAt:   now,
	}
	if p.Title == "" {
		p.Title = projectID
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertProject(ctx, tx, p); err != nil {
		return domain.Project{}, fmt.Errorf("insert project: %w", err)
	}
	if err := e.Repo.AddMember(ctx, tx, domain.Member{ProjectID: p.ID, UserID: ownerID, Role: repo.RoleOwner, AddedAt: now}); err != nil {
		return domain.Project{}, fmt.Errorf("add owner member: %w", err)
	}
	cfg := e.Config
	if cfg == nil {
		cfg = config.Default(p.ID)
	}
	if err := e.Repo.UpsertProjectConfigTx(ctx, tx, p.ID, cfg); err != nil {
		return domain.Project{}, fmt.Errorf("insert project config: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "project.created", p.ID, "project", p.ID, ownerID, events.EventPayload{"title": p.Title}); err != nil {
		return domain.Project{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

// TaskCreateOptions are parameters for creating a task.
type TaskCreateOptions struct {
	ID          string
	ProjectID   string
	Title       string
	Description string
	Status      string
	AssigneeID  string
	DueDate     string
	ActorID     string
}

// CreateTask inserts the task and dispatches the created trigger. Automation
// failures never undo the insert; the task exists once the first transaction
// commits.
func (e Engine) CreateTask(ctx context.Context, opts TaskCreateOptions) (domain.Task, error) {
	if opts.Title == "" {
		return domain.Task{}, errors.New("title is required")
	}
	if opts.ProjectID == "" {
		return domain.Task{}, errors.New("project is required")
	}
	if opts.ActorID == "" {
		return domain.Task{}, errors.New("actor is required")
	}
	p, err := e.Repo.GetProject(ctx, opts.ProjectID)
	if err != nil {
		return domain.Task{}, err
	}
	status := opts.Status
	if status == "" {
		status = p.Statuses[0]
	}
	if !hasStatus(p.Statuses, status) {
		return domain.Task{}, fmt.Errorf("status %q not on project board", status)
	}
	if opts.DueDate != "" {
		due, err := time.Parse(time.RFC3339, opts.DueDate)
		if err != nil {
			return domain.Task{}, fmt.Errorf("invalid due date: %w", err)
		}
		// Stored in UTC; the sweeper compares due dates as strings.
		opts.DueDate = due.UTC().Format(time.RFC3339)
	}
	id := opts.ID
	now := e.now().UTC().Format(time.RFC3339)
	if id == "" {
		id = uuid.NewSHA1(uuid.NameSpaceOID, []byte(opts.ProjectID+"|"+opts.Title+"|"+now)).String()
	}
	t := domain.Task{
		ID:          id,
		ProjectID:   opts.ProjectID,
		Title:       opts.Title,
		Description: opts.Description,
		Status:      status,
		AssigneeID:  optionalString(opts.AssigneeID),
		CreatedBy:   opts.ActorID,
		DueDate:     optionalString(opts.DueDate),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertTask(ctx, tx, t); err != nil {
		return domain.Task{}, err
	}
	if err := e.Events.Append(ctx, tx, "task.created", t.ProjectID, "task", t.ID, opts.ActorID, events.EventPayload{"title": t.Title, "status": t.Status}); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	if err := e.OnTaskCreated(ctx, t, opts.ActorID); err != nil {
		e.logf("automation: created dispatch for task %s: %v", t.ID, err)
	}
	return t, nil
}

// TaskUpdateOptions encapsulates allowed updates.
type TaskUpdateOptions struct {
	ID          string
	Title       *string
	Description *string
	Status      string
	Assign      *string
	DueDate     *string
	ActorID     string
}

// UpdateTask applies the mutation, records history for status/assignee
// changes and dispatches the matching triggers. No-op changes (same status,
// same assignee) write no history and dispatch nothing.
func (e Engine) UpdateTask(ctx context.Context, opts TaskUpdateOptions) (domain.Task, error) {
	if opts.ActorID == "" {
		return domain.Task{}, errors.New("actor is required")
	}
	t, err := e.Repo.GetTask(ctx, opts.ID)
	if err != nil {
		return t, err
	}
	p, err := e.Repo.GetProject(ctx, t.ProjectID)
	if err != nil {
		return t, err
	}
	now := e.now().UTC().Format(time.RFC3339)
	oldStatus := t.Status
	oldAssignee := derefOrEmpty(t.AssigneeID)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return t, err
	}
	defer tx.Rollback()

	if opts.Title != nil && *opts.Title != "" {
		t.Title = *opts.Title
	}
	if opts.Description != nil {
		t.Description = *opts.Description
	}
	if opts.DueDate != nil {
		if *opts.DueDate == "" {
			t.DueDate = nil
		} else {
			due, err := time.Parse(time.RFC3339, *opts.DueDate)
			if err != nil {
				return t, fmt.Errorf("invalid due date: %w", err)
			}
			// Stored in UTC; the sweeper compares due dates as strings.
			utc := due.UTC().Format(time.RFC3339)
			t.DueDate = &utc
			// A fresh due date gets a fresh sweep.
			t.DueDateProcessed = false
		}
	}

	statusChanged := opts.Status != "" && opts.Status != t.Status
	if statusChanged {
		if !hasStatus(p.Statuses, opts.Status) {
			return t, fmt.Errorf("status %q not on project board", opts.Status)
		}
		t.Status = opts.Status
		if err := e.Repo.AppendHistory(ctx, tx, domain.HistoryEntry{
			TaskID:   t.ID,
			Field:    "status",
			OldValue: oldStatus,
			NewValue: t.Status,
			ActorID:  opts.ActorID,
			TS:       now,
		}); err != nil {
			return t, err
		}
	}

	assigneeChanged := false
	if opts.Assign != nil {
		newAssignee := *opts.Assign
		if newAssignee != oldAssignee {
			assigneeChanged = true
			t.AssigneeID = optionalString(newAssignee)
			if err := e.Repo.AppendHistory(ctx, tx, domain.HistoryEntry{
				TaskID:   t.ID,
				Field:    "assignee",
				OldValue: oldAssignee,
				NewValue: newAssignee,
				ActorID:  opts.ActorID,
				TS:       now,
			}); err != nil {
				return t, err
			}
		}
	}

	t.UpdatedAt = now
	if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
		return t, err
	}
	if err := e.Events.Append(ctx, tx, "task.updated", t.ProjectID, "task", t.ID, opts.ActorID, events.EventPayload{
		"from_status": oldStatus,
		"to_status":   t.Status,
	}); err != nil {
		return t, err
	}
	if err := tx.Commit(); err != nil {
		return t, err
	}

	if statusChanged {
		if err := e.OnStatusChanged(ctx, t, oldStatus, opts.ActorID); err != nil {
			e.logf("automation: status dispatch for task %s: %v", t.ID, err)
		}
	}
	if assigneeChanged {
		if err := e.OnAssigneeChanged(ctx, t, oldAssignee, opts.ActorID); err != nil {
			e.logf("automation: assignee dispatch for task %s: %v", t.ID, err)
		}
	}
	return t, nil
}

// RegisterUser adds a user to the registry.
func (e Engine) RegisterUser(ctx context.Context, id, name, email string) (domain.User, error) {
	if name == "" || email == "" {
		return domain.User{}, errors.New("name and email are required")
	}
	if id == "" {
		id = uuid.NewString()
	}
	u := domain.User{
		ID:        id,
		Name:      name,
		Email:     email,
		CreatedAt: e.now().UTC().Format(time.RFC3339),
	}
	if err := e.Repo.InsertUser(ctx, u); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

// InviteMember creates an invite token. If the invitee already has an
// account, a project_invitation notification is queued for them.
func (e Engine) InviteMember(ctx context.Context, projectID, email, actorID string) (domain.Invite, error) {
	if email == "" {
		return domain.Invite{}, errors.New("email is required")
	}
	p, err := e.Repo.GetProject(ctx, projectID)
	if err != nil {
		return domain.Invite{}, err
	}
	now := e.now().UTC()
	inv := domain.Invite{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		Email:     email,
		Token:     uuid.NewString(),
		ExpiresAt: now.Add(inviteTTL).Format(time.RFC3339),
		CreatedAt: now.Format(time.RFC3339),
	}
	if err := e.Repo.InsertInvite(ctx, inv); err != nil {
		return domain.Invite{}, err
	}
	if u, err := e.Repo.GetUserByEmail(ctx, email); err == nil {
		n := domain.Notification{
			ID:             uuid.NewString(),
			UserID:         u.ID,
			Type:           domain.NotifyProjectInvitation,
			Message:        fmt.Sprintf("You have been invited to project %q", p.Title),
			RelatedProject: projectID,
			CreatedAt:      now.Format(time.RFC3339),
		}
		if err := e.Repo.InsertNotification(ctx, nil, n); err != nil {
			e.logf("invite: notification for %s: %v", u.ID, err)
		}
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.Invite{}, err
	}
	return inv, nil
}

// AcceptInvite joins the user to the project as editor and consumes the token.
func (e Engine) AcceptInvite(ctx context.Context, token, userID string) (domain.Member, error) {
	inv, err := e.Repo.GetInviteByToken(ctx, token)
	if err != nil {
		return domain.Member{}, err
	}
	exp, err := time.Parse(time.RFC3339, inv.ExpiresAt)
	if err != nil || e.now().After(exp) {
		return domain.Member{}, errors.New("invite expired")
	}
	m := domain.Member{
		ProjectID: inv.ProjectID,
		UserID:    userID,
		Role:      repo.RoleEditor,
		AddedAt:   e.now().UTC().Format(time.RFC3339),
	}
	if err := e.Repo.AddMember(ctx, nil, m); err != nil {
		return domain.Member{}, err
	}
	if err := e.Repo.DeleteInvite(ctx, inv.ID); err != nil {
		e.logf("invite: delete %s: %v", inv.ID, err)
	}
	return m, nil
}

func hasStatus(statuses []string, status string) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
