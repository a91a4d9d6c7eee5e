package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"teamline/internal/config"
	"teamline/internal/db"
	"teamline/internal/domain"
	"teamline/internal/engine"
	"teamline/internal/migrate"
)

const testJWTSecret = "server-test-secret"

type testServer struct {
	URL     string
	Engine  engine.Engine
	Admin   domain.User
	Manager domain.User
	Member  domain.User
	client  *http.Client
	close   func()
}

func (s *testServer) Client() *http.Client { return s.client }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default("org-test")
	eng := engine.New(conn, cfg)
	eng.Now = func() time.Time { return time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC) }

	ctx := context.Background()
	admin, err := eng.Bootstrap(ctx, "Ada Admin", "ada@corp.test")
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	mgr, err := eng.CreateUser(ctx, admin.Actor(), "Mia Manager", "mia@corp.test", domain.RoleManager)
	if err != nil {
		t.Fatalf("create manager: %v", err)
	}
	mem, err := eng.CreateUser(ctx, admin.Actor(), "Milo Member", "milo@corp.test", domain.RoleMember)
	if err != nil {
		t.Fatalf("create member: %v", err)
	}

	handler, err := New(Config{Engine: eng, BasePath: "/v1", Auth: AuthConfig{JWTSecret: testJWTSecret}})
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
		URL:     "http://" + ln.Addr().String(),
		Engine:  eng,
		Admin:   admin,
		Manager: mgr,
		Member:  mem,
		client:  &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.close() }
}

func tokenFor(t *testing.T, u domain.User) string {
	t.Helper()
	token, err := signDevToken(testJWTSecret, u.ID, u.Role, u.Email)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func authHeader(t *testing.T, u domain.User) map[string]string {
	return map[string]string{"Authorization": "Bearer " + tokenFor(t, u)}
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

// seedTask creates a project with the member assigned to one task, going
// through the engine directly so the HTTP assertions stay focused.
func seedTask(t *testing.T, srv *testServer) domain.Task {
	t.Helper()
	ctx := context.Background()
	mgr := srv.Manager.Actor()
	p, err := srv.Engine.CreateProject(ctx, mgr, "Apollo", "")
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	if _, err := srv.Engine.AddParticipant(ctx, mgr, p.ID, srv.Member.ID, domain.ProjectMember); err != nil {
		t.Fatalf("add participant: %v", err)
	}
	task, err := srv.Engine.CreateTask(ctx, mgr, engine.TaskCreateOptions{
		ProjectID:   p.ID,
		Title:       "Ship it",
		AssigneeIDs: []string{srv.Member.ID},
	})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	return task
}

func TestAuthRequired(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/tasks", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status %d: %s", res.StatusCode, string(data))
	}

	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health should not need auth, got %d", res.StatusCode)
	}
}

func TestDevLoginAndMe(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/auth/dev/login", map[string]any{
		"email": "ada@corp.test",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("dev login status %d: %s", res.StatusCode, string(data))
	}
	var login DevLoginResponse
	if err := json.Unmarshal(data, &login); err != nil {
		t.Fatalf("unmarshal login: %v", err)
	}
	if login.Token == "" {
		t.Fatal("expected token")
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/me", nil, map[string]string{
		"Authorization": "Bearer " + login.Token,
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me status %d: %s", res.StatusCode, string(data))
	}
	var me WhoAmIResponse
	if err := json.Unmarshal(data, &me); err != nil {
		t.Fatalf("unmarshal me: %v", err)
	}
	if me.UserID != srv.Admin.ID || me.Role != "admin" {
		t.Fatalf("unexpected principal: %+v", me)
	}
}

func TestTaskStatusDeniedForNonAssignee(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	task := seedTask(t, srv)

	other, err := srv.Engine.CreateUser(context.Background(), srv.Admin.Actor(), "Nora Member", "nora@corp.test", domain.RoleMember)
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	res, data := doJSON(t, srv.Client(), http.MethodPatch, srv.URL+"/v1/tasks/"+task.ID+"/status", map[string]any{
		"status": "ongoing",
	}, authHeader(t, other))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("status %d: %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error struct {
			Code    string         `json:"code"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if envelope.Error.Code != "forbidden" || envelope.Error.Details["reason"] != "not_owner" {
		t.Fatalf("unexpected error envelope: %s", string(data))
	}

	res, data = doJSON(t, srv.Client(), http.MethodPatch, srv.URL+"/v1/tasks/"+task.ID+"/status", map[string]any{
		"status": "ongoing",
	}, authHeader(t, srv.Member))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("assignee update status %d: %s", res.StatusCode, string(data))
	}
	var updated TaskResponse
	if err := json.Unmarshal(data, &updated); err != nil {
		t.Fatalf("unmarshal task: %v", err)
	}
	if updated.Status != "ongoing" {
		t.Fatalf("status not updated: %+v", updated)
	}
}

func TestTaskDeleteAdminOnly(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	task := seedTask(t, srv)

	res, data := doJSON(t, srv.Client(), http.MethodDelete, srv.URL+"/v1/tasks/"+task.ID, nil, authHeader(t, srv.Manager))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("manager delete status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, srv.Client(), http.MethodDelete, srv.URL+"/v1/tasks/"+task.ID, nil, authHeader(t, srv.Admin))
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("admin delete status %d: %s", res.StatusCode, string(data))
	}

	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/tasks/"+task.ID, nil, authHeader(t, srv.Admin))
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", res.StatusCode)
	}
}

func TestMissingTaskIs404NotForbidden(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodPatch, srv.URL+"/v1/tasks/nope/status", map[string]any{
		"status": "ongoing",
	}, authHeader(t, srv.Member))
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("status %d: %s", res.StatusCode, string(data))
	}
}

func TestAPIKeyAuth(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/users/"+srv.Member.ID+"/api-keys", map[string]any{
		"name": "ci",
	}, authHeader(t, srv.Member))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("issue key status %d: %s", res.StatusCode, string(data))
	}
	var issued APIKeyResponse
	if err := json.Unmarshal(data, &issued); err != nil {
		t.Fatalf("unmarshal key: %v", err)
	}
	if issued.Key == "" {
		t.Fatal("expected plaintext key")
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/me", nil, map[string]string{
		"X-Api-Key": issued.Key,
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me via api key status %d: %s", res.StatusCode, string(data))
	}
	var me WhoAmIResponse
	if err := json.Unmarshal(data, &me); err != nil {
		t.Fatalf("unmarshal me: %v", err)
	}
	if me.UserID != srv.Member.ID || me.Source != "api_key" {
		t.Fatalf("unexpected principal: %+v", me)
	}

	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/me", nil, map[string]string{
		"X-Api-Key": "bogus",
	})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bogus key status %d", res.StatusCode)
	}
}

func TestAttendanceReportRoleScoping(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	ctx := context.Background()

	if _, err := srv.Engine.MarkAttendance(ctx, srv.Member.Actor(), "", "2025-06-01", "office"); err != nil {
		t.Fatalf("mark member: %v", err)
	}
	if _, err := srv.Engine.MarkAttendance(ctx, srv.Manager.Actor(), "", "2025-06-01", "wfh"); err != nil {
		t.Fatalf("mark manager: %v", err)
	}

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/attendance/report", nil, authHeader(t, srv.Manager))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("manager report status %d: %s", res.StatusCode, string(data))
	}
	var report []AttendanceResponse
	if err := json.Unmarshal(data, &report); err != nil {
		t.Fatalf("unmarshal report: %v", err)
	}
	if len(report) != 2 {
		t.Fatalf("manager should see both records, got %d", len(report))
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/attendance/report", nil, authHeader(t, srv.Member))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("member report status %d: %s", res.StatusCode, string(data))
	}
	if err := json.Unmarshal(data, &report); err != nil {
		t.Fatalf("unmarshal report: %v", err)
	}
	if len(report) != 1 || report[0].UserID != srv.Member.ID {
		t.Fatalf("member should only see own records: %s", string(data))
	}
}

func TestLeavePolicyUpdateIsAdminOnly(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodPut, srv.URL+"/v1/leave/policy", map[string]any{
		"allowances": map[string]int{"casual": 8},
	}, authHeader(t, srv.Manager))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("manager update status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, srv.Client(), http.MethodPut, srv.URL+"/v1/leave/policy", map[string]any{
		"allowances": map[string]int{"casual": 8},
	}, authHeader(t, srv.Admin))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("admin update status %d: %s", res.StatusCode, string(data))
	}
	var policy LeavePolicyResponse
	if err := json.Unmarshal(data, &policy); err != nil {
		t.Fatalf("unmarshal policy: %v", err)
	}
	if policy.Allowances["casual"] != 8 {
		t.Fatalf("allowance not updated: %+v", policy)
	}
}

func TestNotificationAudienceOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/notifications", map[string]any{
		"audience": "public",
		"subject":  "Release friday",
	}, authHeader(t, srv.Member))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("member send status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/notifications", map[string]any{
		"audience": "private",
		"subject":  "1:1 moved",
		"to":       []string{"milo@corp.test"},
	}, authHeader(t, srv.Manager))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("manager send status %d: %s", res.StatusCode, string(data))
	}
	var sent NotificationResponse
	if err := json.Unmarshal(data, &sent); err != nil {
		t.Fatalf("unmarshal notification: %v", err)
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/notifications/"+sent.ID, nil, authHeader(t, srv.Member))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("recipient read status %d: %s", res.StatusCode, string(data))
	}

	res, _ = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/notifications/"+sent.ID+"/read", nil, authHeader(t, srv.Member))
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("mark read status %d", res.StatusCode)
	}
}

func TestEventsEndpointAdminOnly(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	seedTask(t, srv)

	res, _ := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/events", nil, authHeader(t, srv.Manager))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("manager events status %d", res.StatusCode)
	}

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/events", nil, authHeader(t, srv.Admin))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("admin events status %d: %s", res.StatusCode, string(data))
	}
	var events []EventResponse
	if err := json.Unmarshal(data, &events); err != nil {
		t.Fatalf("unmarshal events: %v", err)
	}
	if len(events) == 0 {
		t.Fatal("expected audit events")
	}
}
