package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"teamboard/internal/db"
	"teamboard/internal/domain"
	"teamboard/internal/engine"
	"teamboard/internal/migrate"
)

const testSecret = "test-secret"

type testServer struct {
	*httptest.Server
	Engine engine.Engine

	AdminToken  string
	LeaderToken string
	MemberToken string

	Admin  domain.User
	Leader domain.User
	Member domain.User
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn)
	auth := AuthConfig{JWTSecret: testSecret, TokenTTL: time.Hour}
	handler, err := New(Config{Engine: e, BasePath: "/v1", Auth: auth})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	srv := &testServer{Server: httptest.NewServer(handler), Engine: e}
	t.Cleanup(srv.Close)

	ctx := context.Background()
	mk := func(name, email string, role domain.Role) (domain.User, string) {
		u, err := e.Register(ctx, engine.RegisterOptions{Username: name, Email: email, Password: "correct horse", Role: role})
		if err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
		token, err := MintToken(auth, u)
		if err != nil {
			t.Fatalf("mint token: %v", err)
		}
		return u, token
	}
	srv.Admin, srv.AdminToken = mk("root", "root@example.com", domain.RoleAdmin)
	srv.Leader, srv.LeaderToken = mk("lena", "lena@example.com", domain.RoleUser)
	srv.Member, srv.MemberToken = mk("milo", "milo@example.com", domain.RoleUser)
	return srv
}

// doJSON runs a request and decodes the response body into a map.
func doJSON(t *testing.T, srv *testServer, method, path, token string, body any) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, srv.URL+"/v1"+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	decoded := map[string]any{}
	if len(raw) > 0 {
		json.Unmarshal(raw, &decoded)
	}
	return resp.StatusCode, decoded
}

// seedProject builds a project led by Leader with Member on the team,
// one list and one task assigned to Member, going through the engine.
func seedProject(t *testing.T, srv *testServer) (domain.Project, domain.List, domain.Task) {
	t.Helper()
	ctx := context.Background()
	leader := srv.Engine.Identity(srv.Leader)
	p, err := srv.Engine.CreateProject(ctx, leader, engine.ProjectCreateOptions{
		Name:      "launch",
		StartDate: "2026-01-01T00:00:00Z",
		EndDate:   "2026-03-01T00:00:00Z",
		TeamMembers: []domain.TeamMember{
			{UserID: srv.Member.ID, Role: domain.MemberMember},
		},
	})
	if err != nil {
		t.Fatalf("seed project: %v", err)
	}
	l, err := srv.Engine.CreateList(ctx, leader, p.ID, "backlog")
	if err != nil {
		t.Fatalf("seed list: %v", err)
	}
	task, err := srv.Engine.CreateTask(ctx, leader, engine.TaskCreateOptions{
		ListID:      l.ID,
		Name:        "announce",
		Assignments: []engine.AssignmentInput{{UserID: srv.Member.ID, AllocatedHours: 4}},
	})
	if err != nil {
		t.Fatalf("seed task: %v", err)
	}
	return p, l, task
}

func TestAuthRequired(t *testing.T) {
	srv := newTestServer(t)

	status, body := doJSON(t, srv, http.MethodGet, "/projects", "", nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("missing token: status %d", status)
	}
	if _, ok := body["message"].(string); !ok {
		t.Fatalf("error envelope should carry message, got %v", body)
	}

	status, _ = doJSON(t, srv, http.MethodGet, "/projects", "not-a-jwt", nil)
	if status != http.StatusBadRequest {
		t.Fatalf("invalid token: status %d, want 400", status)
	}

	// Health stays open.
	resp, err := srv.Client().Get(srv.URL + "/v1/health")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health: status %d", resp.StatusCode)
	}
}

func TestStorageFailureIsLogged(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn)
	auth := AuthConfig{JWTSecret: testSecret, TokenTTL: time.Hour}

	var logBuf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&logBuf)

	handler, err := New(Config{Engine: e, BasePath: "/v1", Auth: auth, Logger: logger})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	u, err := e.Register(context.Background(), engine.RegisterOptions{
		Username: "lena", Email: "lena@example.com", Password: "correct horse",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	token, err := MintToken(auth, u)
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	srv := &testServer{Server: httptest.NewServer(handler), Engine: e}
	t.Cleanup(srv.Close)

	// A closed pool makes every repo call fail like a storage outage.
	conn.Close()

	status, body := doJSON(t, srv, http.MethodGet, "/projects", token, nil)
	if status != http.StatusInternalServerError {
		t.Fatalf("storage failure: status %d, want 500", status)
	}
	if body["message"] != "internal error" {
		t.Fatalf("storage failure should not leak detail, got %v", body)
	}
	if !strings.Contains(logBuf.String(), "request failed") {
		t.Fatalf("dropped error was not logged: %q", logBuf.String())
	}
}

func TestRegisterLoginFlow(t *testing.T) {
	srv := newTestServer(t)

	status, body := doJSON(t, srv, http.MethodPost, "/users/register", "", map[string]any{
		"username": "omar",
		"email":    "omar@example.com",
		"password": "long enough",
	})
	if status != http.StatusCreated {
		t.Fatalf("register: status %d body %v", status, body)
	}
	if body["user"] == "" {
		t.Fatalf("register should return the user id, got %v", body)
	}

	// Duplicate email is a 400.
	status, _ = doJSON(t, srv, http.MethodPost, "/users/register", "", map[string]any{
		"username": "omar2",
		"email":    "omar@example.com",
		"password": "long enough",
	})
	if status != http.StatusBadRequest {
		t.Fatalf("duplicate register: status %d, want 400", status)
	}

	status, body = doJSON(t, srv, http.MethodPost, "/users/login", "", map[string]any{
		"email":    "omar@example.com",
		"password": "long enough",
	})
	if status != http.StatusOK {
		t.Fatalf("login: status %d body %v", status, body)
	}
	token, _ := body["token"].(string)
	if token == "" {
		t.Fatalf("login should return a token, got %v", body)
	}

	status, _ = doJSON(t, srv, http.MethodGet, "/projects", token, nil)
	if status != http.StatusOK {
		t.Fatalf("token from login rejected: status %d", status)
	}

	status, _ = doJSON(t, srv, http.MethodPost, "/users/login", "", map[string]any{
		"email":    "omar@example.com",
		"password": "wrong",
	})
	if status != http.StatusBadRequest {
		t.Fatalf("bad password login: status %d, want 400", status)
	}
}

func TestNotFoundBeforeForbidden(t *testing.T) {
	srv := newTestServer(t)
	seedProject(t, srv)

	// Even a caller with no standing learns "not found" for a missing
	// id, and the admin does too.
	for _, token := range []string{srv.AdminToken, srv.MemberToken} {
		status, _ := doJSON(t, srv, http.MethodGet, "/tasks/missing-task", token, nil)
		if status != http.StatusNotFound {
			t.Fatalf("missing task: status %d, want 404", status)
		}
	}
}

func TestMemberHoursUpdateOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	_, _, task := seedProject(t, srv)

	status, body := doJSON(t, srv, http.MethodPut, "/tasks/"+task.ID, srv.MemberToken, map[string]any{
		"hours_used": 2.5,
	})
	if status != http.StatusOK {
		t.Fatalf("member hours update: status %d body %v", status, body)
	}
	if body["hours_used"] != 2.5 {
		t.Fatalf("hours_used = %v", body["hours_used"])
	}

	status, body = doJSON(t, srv, http.MethodPut, "/tasks/"+task.ID, srv.MemberToken, map[string]any{
		"hours_used": 3,
		"status":     "done",
	})
	if status != http.StatusForbidden {
		t.Fatalf("member multi-field update: status %d body %v, want 403", status, body)
	}

	// Leader may change anything.
	status, body = doJSON(t, srv, http.MethodPut, "/tasks/"+task.ID, srv.LeaderToken, map[string]any{
		"status": "inProgress",
		"name":   "announce loudly",
	})
	if status != http.StatusOK {
		t.Fatalf("leader update: status %d body %v", status, body)
	}
	if body["status"] != "inProgress" {
		t.Fatalf("status = %v", body["status"])
	}
}

func TestSubtaskGateOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	_, _, task := seedProject(t, srv)

	// The leader is not assigned to the task and gets no bypass.
	status, _ := doJSON(t, srv, http.MethodPost, "/tasks/"+task.ID+"/subtasks", srv.LeaderToken, map[string]any{
		"name": "meddle",
	})
	if status != http.StatusForbidden {
		t.Fatalf("unassigned leader subtask create: status %d, want 403", status)
	}

	status, body := doJSON(t, srv, http.MethodPost, "/tasks/"+task.ID+"/subtasks", srv.MemberToken, map[string]any{
		"name": "draft post",
	})
	if status != http.StatusCreated {
		t.Fatalf("member subtask create: status %d body %v", status, body)
	}
	subtaskID, _ := body["id"].(string)

	status, body = doJSON(t, srv, http.MethodPut, "/tasks/"+task.ID+"/subtasks/"+subtaskID, srv.MemberToken, map[string]any{
		"completed": true,
	})
	if status != http.StatusOK || body["completed"] != true {
		t.Fatalf("member subtask update: status %d body %v", status, body)
	}
}

func TestProjectLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t)

	status, body := doJSON(t, srv, http.MethodPost, "/projects", srv.LeaderToken, map[string]any{
		"name":       "api-made",
		"start_date": "2026-01-01T00:00:00Z",
		"end_date":   "2026-02-01T00:00:00Z",
		"team_members": []map[string]any{
			{"user_id": srv.Member.ID, "role": "member"},
		},
	})
	if status != http.StatusCreated {
		t.Fatalf("create project: status %d body %v", status, body)
	}
	projectID, _ := body["id"].(string)

	// Member may read but not delete.
	status, _ = doJSON(t, srv, http.MethodGet, "/projects/"+projectID, srv.MemberToken, nil)
	if status != http.StatusOK {
		t.Fatalf("member read: status %d", status)
	}
	status, _ = doJSON(t, srv, http.MethodDelete, "/projects/"+projectID, srv.MemberToken, nil)
	if status != http.StatusForbidden {
		t.Fatalf("member delete: status %d, want 403", status)
	}

	status, body = doJSON(t, srv, http.MethodPost, "/lists", srv.LeaderToken, map[string]any{
		"project_id": projectID,
		"name":       "backlog",
	})
	if status != http.StatusCreated {
		t.Fatalf("create list: status %d body %v", status, body)
	}
	listID, _ := body["id"].(string)

	status, _ = doJSON(t, srv, http.MethodDelete, "/projects/"+projectID, srv.LeaderToken, nil)
	if status != http.StatusOK {
		t.Fatalf("leader delete: status %d", status)
	}

	// Everything under the project is gone.
	status, _ = doJSON(t, srv, http.MethodGet, "/lists/"+listID, srv.LeaderToken, nil)
	if status != http.StatusNotFound {
		t.Fatalf("list after cascade: status %d, want 404", status)
	}
	status, _ = doJSON(t, srv, http.MethodGet, "/projects/"+projectID, srv.LeaderToken, nil)
	if status != http.StatusNotFound {
		t.Fatalf("project after cascade: status %d, want 404", status)
	}
}

func TestTemplateCatalogOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	p, _, _ := seedProject(t, srv)

	// Catalog writes are admin-only.
	status, _ := doJSON(t, srv, http.MethodPost, "/tasks/templates", srv.LeaderToken, map[string]any{
		"name": "nope",
	})
	if status != http.StatusForbidden {
		t.Fatalf("non-admin template create: status %d, want 403", status)
	}

	status, body := doJSON(t, srv, http.MethodPost, "/tasks/templates", srv.AdminToken, map[string]any{
		"name": "Event Planning",
		"lists": []map[string]any{
			{"name": "Planning", "tasks": []map[string]any{{"name": "Pick venue"}}},
		},
	})
	if status != http.StatusCreated {
		t.Fatalf("admin template create: status %d body %v", status, body)
	}
	templateID, _ := body["id"].(string)

	status, body = doJSON(t, srv, http.MethodPost, "/projects/"+p.ID+"/templates/"+templateID, srv.LeaderToken, nil)
	if status != http.StatusCreated {
		t.Fatalf("apply template: status %d body %v", status, body)
	}
	lists, _ := body["lists"].([]any)
	if len(lists) != 2 { // seeded backlog + stamped Planning
		t.Fatalf("project lists after apply = %d, want 2", len(lists))
	}
}
