package engine_test

import (
	"context"
	"testing"
	"time"

	"taskboard/internal/config"
	"taskboard/internal/db"
	"taskboard/internal/domain"
	"taskboard/internal/engine"
	"taskboard/internal/migrate"
	"taskboard/internal/repo"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default("proj-1")
	eng := engine.New(conn, cfg)
	eng.Now = func() time.Time { return time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC) }
	ctx := context.Background()
	if _, err := eng.RegisterUser(ctx, "tester", "Tester", "tester@example.com"); err != nil {
		t.Fatalf("register tester: %v", err)
	}
	if _, err := eng.InitProject(ctx, "proj-1", "test", "", "tester"); err != nil {
		t.Fatalf("init project: %v", err)
	}
	return testEnv{Engine: eng, Ctx: ctx}
}

func (env testEnv) user(t *testing.T, id string) domain.User {
	t.Helper()
	u, err := env.Engine.RegisterUser(env.Ctx, id, id, id+"@example.com")
	if err != nil {
		t.Fatalf("register %s: %v", id, err)
	}
	return u
}

func (env testEnv) task(t *testing.T, opts engine.TaskCreateOptions) domain.Task {
	t.Helper()
	if opts.ProjectID == "" {
		opts.ProjectID = "proj-1"
	}
	if opts.ActorID == "" {
		opts.ActorID = "tester"
	}
	task, err := env.Engine.CreateTask(env.Ctx, opts)
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	return task
}

func (env testEnv) rule(t *testing.T, a domain.Automation) domain.Automation {
	t.Helper()
	if a.ProjectID == "" {
		a.ProjectID = "proj-1"
	}
	if a.CreatedBy == "" {
		a.CreatedBy = "tester"
	}
	a, err := env.Engine.CreateAutomation(env.Ctx, a)
	if err != nil {
		t.Fatalf("create automation: %v", err)
	}
	return a
}

func strPtr(s string) *string { return &s }

func TestStatusConditionMatching(t *testing.T) {
	env := newTestEnv(t)
	env.user(t, "alice")
	env.rule(t, domain.Automation{
		Name: "badge on done",
		Trigger: domain.Trigger{
			Type:       domain.TriggerStatusChanged,
			Conditions: domain.TriggerConditions{FromStatus: strPtr("In Progress"), ToStatus: strPtr("Done")},
		},
		Actions: []domain.Action{
			{Type: domain.ActionAddBadge, Params: domain.ActionParams{Badge: domain.BadgeTaskMaster}},
		},
	})
	task := env.task(t, engine.TaskCreateOptions{Title: "work", AssigneeID: "alice"})

	// To Do -> Done does not satisfy from_status.
	if _, err := env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{ID: task.ID, Status: "Done", ActorID: "tester"}); err != nil {
		t.Fatalf("to Done: %v", err)
	}
	u, _ := env.Engine.Repo.GetUser(env.Ctx, "alice")
	if len(u.Badges) != 0 {
		t.Fatalf("rule fired on non-matching transition: badges %v", u.Badges)
	}

	// In Progress -> Done matches both conditions.
	if _, err := env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{ID: task.ID, Status: "In Progress", ActorID: "tester"}); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{ID: task.ID, Status: "Done", ActorID: "tester"}); err != nil {
		t.Fatal(err)
	}
	u, _ = env.Engine.Repo.GetUser(env.Ctx, "alice")
	if len(u.Badges) != 1 || u.Badges[0] != domain.BadgeTaskMaster {
		t.Fatalf("expected Task Master badge, got %v", u.Badges)
	}
}

func TestActionsRunInOrder(t *testing.T) {
	env := newTestEnv(t)
	env.user(t, "bob")
	env.rule(t, domain.Automation{
		Name:    "assign then reward",
		Trigger: domain.Trigger{Type: domain.TriggerStatusChanged, Conditions: domain.TriggerConditions{ToStatus: strPtr("In Progress")}},
		Actions: []domain.Action{
			{Type: domain.ActionAssignTask, Params: domain.ActionParams{AssigneeID: "bob"}},
			{Type: domain.ActionAddBadge, Params: domain.ActionParams{Badge: domain.BadgeTeamPlayer}},
		},
	})
	task := env.task(t, engine.TaskCreateOptions{Title: "unassigned work"})
	if _, err := env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{ID: task.ID, Status: "In Progress", ActorID: "tester"}); err != nil {
		t.Fatal(err)
	}
	// The badge lands on bob because the assignment ran first.
	u, _ := env.Engine.Repo.GetUser(env.Ctx, "bob")
	if len(u.Badges) != 1 || u.Badges[0] != domain.BadgeTeamPlayer {
		t.Fatalf("expected Team Player badge for bob, got %v", u.Badges)
	}
	got, _ := env.Engine.Repo.GetTask(env.Ctx, task.ID)
	if got.AssigneeID == nil || *got.AssigneeID != "bob" {
		t.Fatalf("expected task assigned to bob, got %v", got.AssigneeID)
	}
}

func TestAddBadgeIdempotent(t *testing.T) {
	env := newTestEnv(t)
	env.user(t, "carol")
	env.rule(t, domain.Automation{
		Name:    "badge on done",
		Trigger: domain.Trigger{Type: domain.TriggerStatusChanged, Conditions: domain.TriggerConditions{ToStatus: strPtr("Done")}},
		Actions: []domain.Action{{Type: domain.ActionAddBadge, Params: domain.ActionParams{Badge: domain.BadgeTaskMaster}}},
	})
	task := env.task(t, engine.TaskCreateOptions{Title: "repeat work", AssigneeID: "carol"})
	for _, status := range []string{"Done", "In Progress", "Done"} {
		if _, err := env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{ID: task.ID, Status: status, ActorID: "tester"}); err != nil {
			t.Fatal(err)
		}
	}
	u, _ := env.Engine.Repo.GetUser(env.Ctx, "carol")
	if len(u.Badges) != 1 {
		t.Fatalf("expected exactly one badge after repeated firing, got %v", u.Badges)
	}
	// Only one badge_earned notification either.
	ns, err := env.Engine.Repo.ListNotifications(env.Ctx, repo.NotificationFilters{UserID: "carol", Type: domain.NotifyBadgeEarned})
	if err != nil {
		t.Fatal(err)
	}
	if len(ns) != 1 {
		t.Fatalf("expected one badge notification, got %d", len(ns))
	}
}

func TestSameStatusUpdateDispatchesNothing(t *testing.T) {
	env := newTestEnv(t)
	env.user(t, "dave")
	env.rule(t, domain.Automation{
		Name:    "any status change",
		Trigger: domain.Trigger{Type: domain.TriggerStatusChanged},
		Actions: []domain.Action{{Type: domain.ActionAddBadge, Params: domain.ActionParams{Badge: domain.BadgeWorkflowSpecialist}}},
	})
	task := env.task(t, engine.TaskCreateOptions{Title: "still", AssigneeID: "dave"})
	if _, err := env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{ID: task.ID, Status: "To Do", ActorID: "tester"}); err != nil {
		t.Fatal(err)
	}
	u, _ := env.Engine.Repo.GetUser(env.Ctx, "dave")
	if len(u.Badges) != 0 {
		t.Fatalf("no-op status update fired the rule: %v", u.Badges)
	}
	hist, err := env.Engine.Repo.ListHistory(env.Ctx, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(hist) != 0 {
		t.Fatalf("no-op status update wrote history: %v", hist)
	}
}

func TestChangeStatusActionDoesNotCascade(t *testing.T) {
	env := newTestEnv(t)
	env.user(t, "erin")
	// Rule 1 moves tasks to Done; rule 2 would badge on arrival at Done. If
	// engine-made status changes re-entered the dispatcher, rule 2 would fire.
	env.rule(t, domain.Automation{
		Name:    "auto finish",
		Trigger: domain.Trigger{Type: domain.TriggerStatusChanged, Conditions: domain.TriggerConditions{ToStatus: strPtr("In Progress")}},
		Actions: []domain.Action{{Type: domain.ActionChangeStatus, Params: domain.ActionParams{Status: "Done"}}},
	})
	env.rule(t, domain.Automation{
		Name:    "badge on done",
		Trigger: domain.Trigger{Type: domain.TriggerStatusChanged, Conditions: domain.TriggerConditions{ToStatus: strPtr("Done")}},
		Actions: []domain.Action{{Type: domain.ActionAddBadge, Params: domain.ActionParams{Badge: domain.BadgeTaskMaster}}},
	})
	task := env.task(t, engine.TaskCreateOptions{Title: "cascading?", AssigneeID: "erin"})
	if _, err := env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{ID: task.ID, Status: "In Progress", ActorID: "tester"}); err != nil {
		t.Fatal(err)
	}
	got, _ := env.Engine.Repo.GetTask(env.Ctx, task.ID)
	if got.Status != "Done" {
		t.Fatalf("expected auto finish to run, status %q", got.Status)
	}
	u, _ := env.Engine.Repo.GetUser(env.Ctx, "erin")
	if len(u.Badges) != 0 {
		t.Fatalf("engine-made status change cascaded into another rule: %v", u.Badges)
	}
}

func TestSendNotificationTemplate(t *testing.T) {
	env := newTestEnv(t)
	env.user(t, "fred")
	env.rule(t, domain.Automation{
		Name:    "welcome",
		Trigger: domain.Trigger{Type: domain.TriggerCreated},
		Actions: []domain.Action{{Type: domain.ActionSendNotification, Params: domain.ActionParams{Message: "Welcome to {taskTitle}, now {taskStatus}"}}},
	})
	env.task(t, engine.TaskCreateOptions{Title: "Launch Prep", AssigneeID: "fred"})
	ns, err := env.Engine.Repo.ListNotifications(env.Ctx, repo.NotificationFilters{UserID: "fred", Type: domain.NotifyAutomationTriggered})
	if err != nil {
		t.Fatal(err)
	}
	if len(ns) != 1 {
		t.Fatalf("expected one notification, got %d", len(ns))
	}
	want := "Welcome to Launch Prep, now To Do"
	if ns[0].Message != want {
		t.Fatalf("message %q, want %q", ns[0].Message, want)
	}
}

func TestSendNotificationWithoutAssignee(t *testing.T) {
	env := newTestEnv(t)
	env.rule(t, domain.Automation{
		Name:    "welcome",
		Trigger: domain.Trigger{Type: domain.TriggerCreated},
		Actions: []domain.Action{{Type: domain.ActionSendNotification, Params: domain.ActionParams{Message: "hi"}}},
	})
	// No assignee, nobody to notify; must not error.
	env.task(t, engine.TaskCreateOptions{Title: "orphan"})
	ns, err := env.Engine.Repo.ListNotifications(env.Ctx, repo.NotificationFilters{UserID: "tester"})
	if err != nil {
		t.Fatal(err)
	}
	if len(ns) != 0 {
		t.Fatalf("unexpected notifications: %v", ns)
	}
}

func TestAssigneeChangedCondition(t *testing.T) {
	env := newTestEnv(t)
	env.user(t, "gina")
	env.user(t, "hank")
	env.rule(t, domain.Automation{
		Name:    "gina onboarding",
		Trigger: domain.Trigger{Type: domain.TriggerAssigneeChanged, Conditions: domain.TriggerConditions{AssigneeID: strPtr("gina")}},
		Actions: []domain.Action{{Type: domain.ActionSendNotification, Params: domain.ActionParams{Message: "You picked up {taskTitle}"}}},
	})
	task := env.task(t, engine.TaskCreateOptions{Title: "handoff"})
	if _, err := env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{ID: task.ID, Assign: strPtr("hank"), ActorID: "tester"}); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{ID: task.ID, Assign: strPtr("gina"), ActorID: "tester"}); err != nil {
		t.Fatal(err)
	}
	ns, _ := env.Engine.Repo.ListNotifications(env.Ctx, repo.NotificationFilters{UserID: "gina", Type: domain.NotifyAutomationTriggered})
	if len(ns) != 1 {
		t.Fatalf("expected one notification for gina, got %d", len(ns))
	}
	ns, _ = env.Engine.Repo.ListNotifications(env.Ctx, repo.NotificationFilters{UserID: "hank", Type: domain.NotifyAutomationTriggered})
	if len(ns) != 0 {
		t.Fatalf("rule fired for non-matching assignee")
	}
}

func TestFailedActionDoesNotStopTheRest(t *testing.T) {
	env := newTestEnv(t)
	env.user(t, "ivy")
	env.rule(t, domain.Automation{
		Name:    "partly broken",
		Trigger: domain.Trigger{Type: domain.TriggerStatusChanged, Conditions: domain.TriggerConditions{ToStatus: strPtr("Done")}},
		Actions: []domain.Action{
			{Type: domain.ActionAssignTask, Params: domain.ActionParams{AssigneeID: "nobody"}},
			{Type: domain.ActionAddBadge, Params: domain.ActionParams{Badge: domain.BadgeTaskMaster}},
		},
	})
	task := env.task(t, engine.TaskCreateOptions{Title: "resilient", AssigneeID: "ivy"})
	if _, err := env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{ID: task.ID, Status: "Done", ActorID: "tester"}); err != nil {
		t.Fatal(err)
	}
	// First action failed (no such user), second still ran for ivy.
	u, _ := env.Engine.Repo.GetUser(env.Ctx, "ivy")
	if len(u.Badges) != 1 {
		t.Fatalf("expected badge despite failed earlier action, got %v", u.Badges)
	}
	evts, err := env.Engine.Repo.LatestEvents(env.Ctx, 10, "proj-1", "automation.action.failed", "", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(evts) != 1 {
		t.Fatalf("expected one action failure event, got %d", len(evts))
	}
}

func TestInactiveRuleNeverFires(t *testing.T) {
	env := newTestEnv(t)
	env.user(t, "jack")
	a := env.rule(t, domain.Automation{
		Name:    "disabled",
		Trigger: domain.Trigger{Type: domain.TriggerCreated},
		Actions: []domain.Action{{Type: domain.ActionAddBadge, Params: domain.ActionParams{Badge: domain.BadgeTaskMaster}}},
	})
	off := false
	if _, err := env.Engine.UpdateAutomation(env.Ctx, engine.AutomationUpdateOptions{ID: a.ID, IsActive: &off, ActorID: "tester"}); err != nil {
		t.Fatal(err)
	}
	env.task(t, engine.TaskCreateOptions{Title: "quiet", AssigneeID: "jack"})
	u, _ := env.Engine.Repo.GetUser(env.Ctx, "jack")
	if len(u.Badges) != 0 {
		t.Fatalf("inactive rule fired: %v", u.Badges)
	}
}

func TestValidateAutomationRejections(t *testing.T) {
	env := newTestEnv(t)
	cases := []struct {
		name string
		a    domain.Automation
	}{
		{"unknown trigger", domain.Automation{Name: "x", Trigger: domain.Trigger{Type: "renamed"}, Actions: []domain.Action{{Type: domain.ActionChangeStatus, Params: domain.ActionParams{Status: "Done"}}}}},
		{"no actions", domain.Automation{Name: "x", Trigger: domain.Trigger{Type: domain.TriggerCreated}}},
		{"condition on wrong trigger", domain.Automation{Name: "x",
			Trigger: domain.Trigger{Type: domain.TriggerCreated, Conditions: domain.TriggerConditions{ToStatus: strPtr("Done")}},
			Actions: []domain.Action{{Type: domain.ActionChangeStatus, Params: domain.ActionParams{Status: "Done"}}}}},
		{"assignee condition on status trigger", domain.Automation{Name: "x",
			Trigger: domain.Trigger{Type: domain.TriggerStatusChanged, Conditions: domain.TriggerConditions{AssigneeID: strPtr("u")}},
			Actions: []domain.Action{{Type: domain.ActionChangeStatus, Params: domain.ActionParams{Status: "Done"}}}}},
		{"unknown action", domain.Automation{Name: "x", Trigger: domain.Trigger{Type: domain.TriggerCreated},
			Actions: []domain.Action{{Type: "archiveTask"}}}},
		{"missing action params", domain.Automation{Name: "x", Trigger: domain.Trigger{Type: domain.TriggerCreated},
			Actions: []domain.Action{{Type: domain.ActionChangeStatus}}}},
		{"params for another action", domain.Automation{Name: "x", Trigger: domain.Trigger{Type: domain.TriggerCreated},
			Actions: []domain.Action{{Type: domain.ActionAddBadge, Params: domain.ActionParams{Badge: domain.BadgeTaskMaster, Status: "Done"}}}}},
		{"status off the board", domain.Automation{Name: "x", Trigger: domain.Trigger{Type: domain.TriggerCreated},
			Actions: []domain.Action{{Type: domain.ActionChangeStatus, Params: domain.ActionParams{Status: "Archived"}}}}},
	}
	for _, tc := range cases {
		tc.a.ProjectID = "proj-1"
		tc.a.CreatedBy = "tester"
		if _, err := env.Engine.CreateAutomation(env.Ctx, tc.a); err == nil {
			t.Errorf("%s: expected rejection", tc.name)
		}
	}
}

func TestSweepFiresOncePerTask(t *testing.T) {
	env := newTestEnv(t)
	env.user(t, "kate")
	env.rule(t, domain.Automation{
		Name:    "overdue alert",
		Trigger: domain.Trigger{Type: domain.TriggerDueDatePassed},
		Actions: []domain.Action{{Type: domain.ActionSendNotification, Params: domain.ActionParams{Message: "{taskTitle} is overdue"}}},
	})
	env.task(t, engine.TaskCreateOptions{Title: "late", AssigneeID: "kate", DueDate: "2024-01-01T00:00:00Z"})
	env.task(t, engine.TaskCreateOptions{Title: "on time", AssigneeID: "kate", DueDate: "2024-03-01T00:00:00Z"})

	n, err := env.Engine.Sweep(env.Ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("first sweep claimed %d tasks, want 1", n)
	}
	n, err = env.Engine.Sweep(env.Ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("second sweep claimed %d tasks, want 0", n)
	}
	ns, _ := env.Engine.Repo.ListNotifications(env.Ctx, repo.NotificationFilters{UserID: "kate", Type: domain.NotifyAutomationTriggered})
	if len(ns) != 1 {
		t.Fatalf("expected one overdue notification, got %d", len(ns))
	}
	if ns[0].Message != "late is overdue" {
		t.Fatalf("message %q", ns[0].Message)
	}
	overdue, _ := env.Engine.Repo.ListNotifications(env.Ctx, repo.NotificationFilters{UserID: "kate", Type: domain.NotifyTaskOverdue})
	if len(overdue) != 1 {
		t.Fatalf("expected one task_overdue notification, got %d", len(overdue))
	}
}

func TestReschedulingReArmsTheSweep(t *testing.T) {
	env := newTestEnv(t)
	env.user(t, "liam")
	env.rule(t, domain.Automation{
		Name:    "overdue alert",
		Trigger: domain.Trigger{Type: domain.TriggerDueDatePassed},
		Actions: []domain.Action{{Type: domain.ActionSendNotification, Params: domain.ActionParams{Message: "overdue"}}},
	})
	task := env.task(t, engine.TaskCreateOptions{Title: "slips", AssigneeID: "liam", DueDate: "2024-01-01T00:00:00Z"})
	if _, err := env.Engine.Sweep(env.Ctx); err != nil {
		t.Fatal(err)
	}
	// Push the due date out, then move time past it again.
	if _, err := env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{ID: task.ID, DueDate: strPtr("2024-01-03T00:00:00Z"), ActorID: "tester"}); err != nil {
		t.Fatal(err)
	}
	env.Engine.Now = func() time.Time { return time.Date(2024, 1, 4, 0, 0, 0, 0, time.UTC) }
	n, err := env.Engine.Sweep(env.Ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("resweep claimed %d, want 1", n)
	}
	ns, _ := env.Engine.Repo.ListNotifications(env.Ctx, repo.NotificationFilters{UserID: "liam", Type: domain.NotifyAutomationTriggered})
	if len(ns) != 2 {
		t.Fatalf("expected two overdue notifications across reschedules, got %d", len(ns))
	}
}

func TestRulesFireInCreationOrder(t *testing.T) {
	env := newTestEnv(t)
	env.user(t, "mia")
	// Rule 1 assigns mia; rule 2 badges the current assignee. Order matters.
	// IDs pinned because the frozen clock ties created_at and id breaks it.
	env.rule(t, domain.Automation{
		ID:      "rule-a",
		Name:    "first",
		Trigger: domain.Trigger{Type: domain.TriggerCreated},
		Actions: []domain.Action{{Type: domain.ActionAssignTask, Params: domain.ActionParams{AssigneeID: "mia"}}},
	})
	env.rule(t, domain.Automation{
		ID:      "rule-b",
		Name:    "second",
		Trigger: domain.Trigger{Type: domain.TriggerCreated},
		Actions: []domain.Action{{Type: domain.ActionAddBadge, Params: domain.ActionParams{Badge: domain.BadgeTeamPlayer}}},
	})
	env.task(t, engine.TaskCreateOptions{Title: "ordered"})
	u, _ := env.Engine.Repo.GetUser(env.Ctx, "mia")
	if len(u.Badges) != 1 {
		t.Fatalf("expected badge from second rule after first assigned, got %v", u.Badges)
	}
}

func TestTaskHistoryRecordsAutomationChanges(t *testing.T) {
	env := newTestEnv(t)
	env.user(t, "nina")
	env.rule(t, domain.Automation{
		Name:    "auto finish",
		Trigger: domain.Trigger{Type: domain.TriggerStatusChanged, Conditions: domain.TriggerConditions{ToStatus: strPtr("In Progress")}},
		Actions: []domain.Action{{Type: domain.ActionChangeStatus, Params: domain.ActionParams{Status: "Done"}}},
	})
	task := env.task(t, engine.TaskCreateOptions{Title: "tracked", AssigneeID: "nina"})
	if _, err := env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{ID: task.ID, Status: "In Progress", ActorID: "tester"}); err != nil {
		t.Fatal(err)
	}
	hist, err := env.Engine.Repo.ListHistory(env.Ctx, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	// One entry for the user's change, one for the engine's.
	if len(hist) != 2 {
		t.Fatalf("expected 2 history entries, got %d: %v", len(hist), hist)
	}
	if hist[1].OldValue != "In Progress" || hist[1].NewValue != "Done" {
		t.Fatalf("engine history entry %+v", hist[1])
	}
}

func TestRuleValidationUsesProjectBoard(t *testing.T) {
	env := newTestEnv(t)
	// A config that knows a status the project board does not. Rules
	// referencing it would fail on every execution, so creation must
	// reject them against the stored board, not the config.
	cfg := config.Default("proj-1")
	cfg.Board.Statuses = append(cfg.Board.Statuses, "Review")
	wide := engine.New(env.Engine.DB, cfg)
	wide.Now = env.Engine.Now

	a := domain.Automation{
		Name:      "to review",
		ProjectID: "proj-1",
		CreatedBy: "tester",
		Trigger:   domain.Trigger{Type: domain.TriggerCreated},
		Actions:   []domain.Action{{Type: domain.ActionChangeStatus, Params: domain.ActionParams{Status: "Review"}}},
	}
	if _, err := wide.CreateAutomation(env.Ctx, a); err == nil {
		t.Fatal("expected rejection for action status missing from the project board")
	}
	cond := domain.Automation{
		Name:      "from review",
		ProjectID: "proj-1",
		CreatedBy: "tester",
		Trigger:   domain.Trigger{Type: domain.TriggerStatusChanged, Conditions: domain.TriggerConditions{ToStatus: strPtr("Review")}},
		Actions:   []domain.Action{{Type: domain.ActionSendNotification, Params: domain.ActionParams{Message: "in review"}}},
	}
	if _, err := wide.CreateAutomation(env.Ctx, cond); err == nil {
		t.Fatal("expected rejection for condition status missing from the project board")
	}
	// Once the board actually has the status, the same rule is fine.
	if err := wide.Repo.UpdateProject(env.Ctx, "proj-1", nil, nil, cfg.Board.Statuses); err != nil {
		t.Fatal(err)
	}
	if _, err := wide.CreateAutomation(env.Ctx, a); err != nil {
		t.Fatalf("rule should validate once the board has Review: %v", err)
	}
}

func TestFailedActionLeavesWorkingCopyUntouched(t *testing.T) {
	env := newTestEnv(t)
	env.user(t, "mona")
	env.rule(t, domain.Automation{
		Name:    "finish and tell",
		Trigger: domain.Trigger{Type: domain.TriggerCreated},
		Actions: []domain.Action{
			{Type: domain.ActionChangeStatus, Params: domain.ActionParams{Status: "Done"}},
			{Type: domain.ActionSendNotification, Params: domain.ActionParams{Message: "now {taskStatus}"}},
		},
	})
	// Shrink the board after the rule exists so the status change fails
	// only at execution time.
	if err := env.Engine.Repo.UpdateProject(env.Ctx, "proj-1", nil, nil, []string{"To Do", "In Progress"}); err != nil {
		t.Fatal(err)
	}
	env.task(t, engine.TaskCreateOptions{Title: "stuck", AssigneeID: "mona"})
	ns, err := env.Engine.Repo.ListNotifications(env.Ctx, repo.NotificationFilters{UserID: "mona", Type: domain.NotifyAutomationTriggered})
	if err != nil {
		t.Fatal(err)
	}
	if len(ns) != 1 {
		t.Fatalf("expected one notification, got %d", len(ns))
	}
	if ns[0].Message != "now To Do" {
		t.Fatalf("failed status change leaked into the template: %q", ns[0].Message)
	}
}

func TestDueDatesStoredInUTC(t *testing.T) {
	env := newTestEnv(t)
	task := env.task(t, engine.TaskCreateOptions{Title: "tz", DueDate: "2024-06-01T09:00:00+05:00"})
	if task.DueDate == nil || *task.DueDate != "2024-06-01T04:00:00Z" {
		t.Fatalf("created due date %v, want 2024-06-01T04:00:00Z", task.DueDate)
	}
	updated, err := env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{ID: task.ID, DueDate: strPtr("2024-06-02T01:00:00-03:00"), ActorID: "tester"})
	if err != nil {
		t.Fatal(err)
	}
	if updated.DueDate == nil || *updated.DueDate != "2024-06-02T04:00:00Z" {
		t.Fatalf("updated due date %v, want 2024-06-02T04:00:00Z", updated.DueDate)
	}
	stored, err := env.Engine.Repo.GetTask(env.Ctx, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.DueDate == nil || *stored.DueDate != "2024-06-02T04:00:00Z" {
		t.Fatalf("stored due date %v", stored.DueDate)
	}
}
