package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"

	"taskboard/internal/config"
	"taskboard/internal/db"
	"taskboard/internal/engine"
	"taskboard/internal/migrate"
)

const testProject = "taskboard"

type testServer struct {
	URL    string
	engine engine.Engine
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	cfg := config.Default(testProject)
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, cfg)
	ctx := context.Background()
	if _, err := e.RegisterUser(ctx, "owner", "Owner", "owner@example.com"); err != nil {
		t.Fatalf("register owner: %v", err)
	}
	if _, err := e.InitProject(ctx, testProject, "Taskboard", "", "owner"); err != nil {
		t.Fatalf("init project: %v", err)
	}
	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v0",
		Auth: AuthConfig{
			JWTSecret:             "test-secret",
			AllowLegacyUserHeader: true,
		},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		engine: e,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func asUser(id string) map[string]string {
	return map[string]string{"X-User-Id": id}
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func registerUser(t *testing.T, srv *testServer, id string) {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/users", map[string]any{
		"id":    id,
		"name":  id,
		"email": id + "@example.com",
	}, asUser("owner"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("register %s: %d %s", id, res.StatusCode, string(data))
	}
}

func addMember(t *testing.T, srv *testServer, userID, role string) {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/projects/"+testProject+"/members", map[string]any{
		"user_id": userID,
		"role":    role,
	}, asUser("owner"))
	if res.StatusCode != http.StatusOK && res.StatusCode != http.StatusNoContent {
		t.Fatalf("add member %s: %d %s", userID, res.StatusCode, string(data))
	}
}

func TestAutomationGrantsBadgeOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects/"+testProject+"/automations", map[string]any{
		"name": "Badge on done",
		"trigger": map[string]any{
			"type":       "status_changed",
			"conditions": map[string]any{"to_status": "Done"},
		},
		"actions": []map[string]any{
			{"type": "addBadge", "params": map[string]any{"badge": "Task Master"}},
		},
	}, asUser("owner"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create automation: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects/"+testProject+"/tasks", map[string]any{
		"title":       "Ship feature",
		"assignee_id": "owner",
	}, asUser("owner"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create task: %d %s", res.StatusCode, string(data))
	}
	var created TaskResponse
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal task: %v", err)
	}

	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v0/projects/"+testProject+"/tasks/"+created.ID, map[string]any{
		"status": "Done",
	}, asUser("owner"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("move to Done: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/users/owner", nil, asUser("owner"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get user: %d %s", res.StatusCode, string(data))
	}
	var u UserResponse
	if err := json.Unmarshal(data, &u); err != nil {
		t.Fatalf("unmarshal user: %v", err)
	}
	found := false
	for _, b := range u.Badges {
		if b == "Task Master" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected Task Master badge, got %v", u.Badges)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/notifications?unread=true", nil, asUser("owner"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list notifications: %d %s", res.StatusCode, string(data))
	}
	var notes []NotificationResponse
	if err := json.Unmarshal(data, &notes); err != nil {
		t.Fatalf("unmarshal notifications: %v", err)
	}
	if len(notes) == 0 {
		t.Fatalf("expected a badge notification")
	}
}

func TestMembershipRoles(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	registerUser(t, srv, "viewer-user")
	registerUser(t, srv, "editor-user")
	registerUser(t, srv, "stranger")
	addMember(t, srv, "viewer-user", "viewer")
	addMember(t, srv, "editor-user", "editor")

	// Viewers can read but not write tasks.
	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/projects/"+testProject+"/tasks", nil, asUser("viewer-user"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("viewer list tasks: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects/"+testProject+"/tasks", map[string]any{
		"title": "Not allowed",
	}, asUser("viewer-user"))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("viewer create task: expected 403, got %d %s", res.StatusCode, string(data))
	}

	// Editors write tasks but do not manage automations.
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects/"+testProject+"/tasks", map[string]any{
		"title": "Editor task",
	}, asUser("editor-user"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("editor create task: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects/"+testProject+"/automations", map[string]any{
		"name":    "Nope",
		"trigger": map[string]any{"type": "created"},
		"actions": []map[string]any{
			{"type": "sendNotification", "params": map[string]any{"message": "hi"}},
		},
	}, asUser("editor-user"))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("editor create automation: expected 403, got %d %s", res.StatusCode, string(data))
	}

	// Non-members see nothing.
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/projects/"+testProject+"/tasks", nil, asUser("stranger"))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("stranger list tasks: expected 403, got %d %s", res.StatusCode, string(data))
	}
}

func TestInviteFlow(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	registerUser(t, srv, "newcomer")

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects/"+testProject+"/invites", map[string]any{
		"email": "newcomer@example.com",
	}, asUser("owner"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("invite: %d %s", res.StatusCode, string(data))
	}
	var inv InviteResponse
	if err := json.Unmarshal(data, &inv); err != nil {
		t.Fatalf("unmarshal invite: %v", err)
	}
	if inv.Token == "" {
		t.Fatalf("expected invite token")
	}

	// The invitee already has an account, so a notification is waiting.
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/notifications", nil, asUser("newcomer"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list notifications: %d %s", res.StatusCode, string(data))
	}
	var notes []NotificationResponse
	_ = json.Unmarshal(data, &notes)
	if len(notes) != 1 || notes[0].Type != "project_invitation" {
		t.Fatalf("expected one project_invitation, got %v", notes)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/invites/accept", map[string]any{
		"token": inv.Token,
	}, asUser("newcomer"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("accept invite: %d %s", res.StatusCode, string(data))
	}
	var m MemberResponse
	_ = json.Unmarshal(data, &m)
	if m.Role != "editor" {
		t.Fatalf("expected editor role after accept, got %q", m.Role)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects/"+testProject+"/tasks", map[string]any{
		"title": "First task as member",
	}, asUser("newcomer"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("member create task: %d %s", res.StatusCode, string(data))
	}
}

func TestAutomationValidationEnvelope(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/projects/"+testProject+"/automations", map[string]any{
		"name":    "Broken",
		"trigger": map[string]any{"type": "status_changed"},
		"actions": []map[string]any{
			{"type": "changeStatus", "params": map[string]any{"status": "Nonexistent"}},
		},
	}, asUser("owner"))
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error apiErrorBody `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if envelope.Error.Code != "validation_failed" {
		t.Fatalf("expected validation_failed, got %q (%s)", envelope.Error.Code, string(data))
	}
}

func TestTaskPagination(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	for _, title := range []string{"one", "two", "three"} {
		res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects/"+testProject+"/tasks", map[string]any{
			"title": title,
		}, asUser("owner"))
		if res.StatusCode != http.StatusCreated {
			t.Fatalf("create %s: %d %s", title, res.StatusCode, string(data))
		}
	}

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/projects/"+testProject+"/tasks?limit=2", nil, asUser("owner"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("first page: %d %s", res.StatusCode, string(data))
	}
	var page paginatedTasks
	if err := json.Unmarshal(data, &page); err != nil {
		t.Fatalf("unmarshal page: %v", err)
	}
	if len(page.Items) != 2 || page.NextCursor == "" {
		t.Fatalf("expected 2 items and a cursor, got %d items cursor=%q", len(page.Items), page.NextCursor)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/projects/"+testProject+"/tasks?limit=2&cursor="+page.NextCursor, nil, asUser("owner"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("second page: %d %s", res.StatusCode, string(data))
	}
	var second paginatedTasks
	if err := json.Unmarshal(data, &second); err != nil {
		t.Fatalf("unmarshal second page: %v", err)
	}
	if len(second.Items) != 1 || second.NextCursor != "" {
		t.Fatalf("expected final page of 1, got %d items cursor=%q", len(second.Items), second.NextCursor)
	}
}

func TestDevLoginAndMe(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/auth/dev/login", map[string]any{
		"user_id": "owner",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("dev login: %d %s", res.StatusCode, string(data))
	}
	var login DevLoginResponse
	if err := json.Unmarshal(data, &login); err != nil {
		t.Fatalf("unmarshal login: %v", err)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/me", nil, map[string]string{
		"Authorization": "Bearer " + login.Token,
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me: %d %s", res.StatusCode, string(data))
	}
	var me WhoAmIResponse
	if err := json.Unmarshal(data, &me); err != nil {
		t.Fatalf("unmarshal me: %v", err)
	}
	if me.UserID != "owner" || me.Source != "jwt" {
		t.Fatalf("unexpected principal: %+v", me)
	}
	if me.Role != "owner" {
		t.Fatalf("expected owner role, got %q", me.Role)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/me", nil, map[string]string{
		"Authorization": "Bearer not-a-token",
	})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d %s", res.StatusCode, string(data))
	}
}
