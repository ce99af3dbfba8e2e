package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"teamboard/internal/db"
	"teamboard/internal/domain"
	"teamboard/internal/engine"
	"teamboard/internal/engine/authz"
	"teamboard/internal/migrate"
	"teamboard/internal/repo"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context

	Admin    domain.Identity
	Leader   domain.Identity
	Member   domain.Identity
	Outsider domain.Identity
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn)
	eng.Now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }
	ctx := context.Background()

	env := testEnv{Engine: eng, Ctx: ctx}
	env.Admin = registerUser(t, env, "root", "root@example.com", domain.RoleAdmin)
	env.Leader = registerUser(t, env, "lena", "lena@example.com", domain.RoleUser)
	env.Member = registerUser(t, env, "milo", "milo@example.com", domain.RoleUser)
	env.Outsider = registerUser(t, env, "omar", "omar@example.com", domain.RoleUser)
	return env
}

func registerUser(t *testing.T, env testEnv, name, email string, role domain.Role) domain.Identity {
	t.Helper()
	u, err := env.Engine.Register(env.Ctx, engine.RegisterOptions{
		Username: name,
		Email:    email,
		Password: "correct horse",
		Role:     role,
	})
	if err != nil {
		t.Fatalf("register %s: %v", name, err)
	}
	return env.Engine.Identity(u)
}

// newProject creates a project led by env.Leader with env.Member on
// the team.
func newProject(t *testing.T, env testEnv) domain.Project {
	t.Helper()
	p, err := env.Engine.CreateProject(env.Ctx, env.Leader, engine.ProjectCreateOptions{
		Name:      "website revamp",
		StartDate: "2026-01-01T00:00:00Z",
		EndDate:   "2026-06-30T00:00:00Z",
		TeamMembers: []domain.TeamMember{
			{UserID: env.Member.ID, Role: domain.MemberMember},
		},
	})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	return p
}

func newTask(t *testing.T, env testEnv, p domain.Project, assign ...string) (domain.List, domain.Task) {
	t.Helper()
	l, err := env.Engine.CreateList(env.Ctx, env.Leader, p.ID, "backlog")
	if err != nil {
		t.Fatalf("create list: %v", err)
	}
	var assignments []engine.AssignmentInput
	for _, userID := range assign {
		assignments = append(assignments, engine.AssignmentInput{UserID: userID, AllocatedHours: 8})
	}
	task, err := env.Engine.CreateTask(env.Ctx, env.Leader, engine.TaskCreateOptions{
		ListID:      l.ID,
		Name:        "build homepage",
		Assignments: assignments,
	})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	return l, task
}

func count(t *testing.T, env testEnv, table string) int {
	t.Helper()
	var n int
	if err := env.Engine.DB.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}

func TestCreatorAlwaysLeader(t *testing.T) {
	env := newTestEnv(t)
	// The request tries to demote the creator to member.
	p, err := env.Engine.CreateProject(env.Ctx, env.Leader, engine.ProjectCreateOptions{
		Name:      "sneaky",
		StartDate: "2026-01-01T00:00:00Z",
		EndDate:   "2026-02-01T00:00:00Z",
		TeamMembers: []domain.TeamMember{
			{UserID: env.Leader.ID, Role: domain.MemberMember},
			{UserID: env.Member.ID, Role: domain.MemberMember},
		},
	})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	if !p.Leader(env.Leader.ID) {
		t.Fatal("creator must be recorded as leader")
	}
	if p.Member(env.Leader.ID) {
		t.Fatal("creator must hold exactly one role")
	}
	if !p.Member(env.Member.ID) {
		t.Fatal("other members should be honored")
	}

	// The same holds when the team is replaced on update.
	upd, err := env.Engine.UpdateProject(env.Ctx, env.Leader, p.ID, engine.ProjectUpdateOptions{
		TeamMembers:    []domain.TeamMember{{UserID: env.Leader.ID, Role: domain.MemberMember}},
		SetTeamMembers: true,
	})
	if err != nil {
		t.Fatalf("update project: %v", err)
	}
	if !upd.Leader(env.Leader.ID) {
		t.Fatal("creator must stay leader after team replacement")
	}
}

func TestExistenceBeforeAuthorization(t *testing.T) {
	env := newTestEnv(t)
	p := newProject(t, env)

	// Missing entity reads as not-found for everyone, including
	// callers who could never access it.
	if _, err := env.Engine.GetProject(env.Ctx, env.Outsider, "nope"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("missing project should be ErrNotFound, got %v", err)
	}
	// An existing entity the caller cannot access reads as denied.
	var denied authz.AccessDeniedError
	if _, err := env.Engine.GetProject(env.Ctx, env.Outsider, p.ID); !errors.As(err, &denied) {
		t.Fatalf("outsider should get AccessDeniedError, got %v", err)
	}
}

func TestTaskUpdateTwoPaths(t *testing.T) {
	env := newTestEnv(t)
	p := newProject(t, env)
	_, task := newTask(t, env, p, env.Member.ID)

	hours := 3.5
	got, err := env.Engine.UpdateTask(env.Ctx, env.Member, task.ID, engine.TaskUpdateOptions{
		Fields:    map[string]bool{"hours_used": true},
		HoursUsed: &hours,
	})
	if err != nil {
		t.Fatalf("member hours update: %v", err)
	}
	if got.HoursUsed != hours {
		t.Fatalf("hours_used = %v, want %v", got.HoursUsed, hours)
	}

	// Adding any second field flips the member path to denied, even
	// though each field alone would be harmless for a leader.
	status := domain.StatusDone
	_, err = env.Engine.UpdateTask(env.Ctx, env.Member, task.ID, engine.TaskUpdateOptions{
		Fields:    map[string]bool{"hours_used": true, "status": true},
		HoursUsed: &hours,
		Status:    &status,
	})
	var denied authz.AccessDeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("member multi-field update should be denied, got %v", err)
	}

	// Leader and admin take the full path.
	name := "build homepage v2"
	if _, err := env.Engine.UpdateTask(env.Ctx, env.Leader, task.ID, engine.TaskUpdateOptions{
		Fields: map[string]bool{"name": true, "status": true},
		Name:   &name,
		Status: &status,
	}); err != nil {
		t.Fatalf("leader full update: %v", err)
	}
	desc := "rework"
	if _, err := env.Engine.UpdateTask(env.Ctx, env.Admin, task.ID, engine.TaskUpdateOptions{
		Fields:      map[string]bool{"description": true},
		Description: &desc,
	}); err != nil {
		t.Fatalf("admin full update: %v", err)
	}
}

func TestSubtasksBelongToTaskMembers(t *testing.T) {
	env := newTestEnv(t)
	p := newProject(t, env)
	_, task := newTask(t, env, p, env.Member.ID)

	st, err := env.Engine.CreateSubTask(env.Ctx, env.Member, task.ID, "write copy")
	if err != nil {
		t.Fatalf("member create subtask: %v", err)
	}

	// No admin or leader bypass on subtask work.
	for _, id := range []domain.Identity{env.Admin, env.Leader} {
		if _, err := env.Engine.CreateSubTask(env.Ctx, id, task.ID, "meddle"); err == nil {
			t.Fatalf("%s should be denied subtask creation", id.Username)
		}
	}

	done := true
	got, err := env.Engine.UpdateSubTask(env.Ctx, env.Member, task.ID, st.ID, engine.SubTaskUpdateOptions{Completed: &done})
	if err != nil {
		t.Fatalf("member update subtask: %v", err)
	}
	if !got.Completed {
		t.Fatal("completed flag not persisted")
	}

	// A subtask id under the wrong task is not found.
	if _, err := env.Engine.UpdateSubTask(env.Ctx, env.Member, task.ID, "nope", engine.SubTaskUpdateOptions{Completed: &done}); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("unknown subtask should be ErrNotFound, got %v", err)
	}
}

func TestProjectDeleteCascades(t *testing.T) {
	env := newTestEnv(t)
	p := newProject(t, env)
	_, task := newTask(t, env, p, env.Member.ID)
	if _, err := env.Engine.CreateSubTask(env.Ctx, env.Member, task.ID, "step one"); err != nil {
		t.Fatalf("create subtask: %v", err)
	}
	if _, err := env.Engine.CreateList(env.Ctx, env.Leader, p.ID, "doing"); err != nil {
		t.Fatalf("create second list: %v", err)
	}

	if err := env.Engine.DeleteProject(env.Ctx, env.Leader, p.ID); err != nil {
		t.Fatalf("delete project: %v", err)
	}

	for _, table := range []string{"projects", "team_members", "lists", "tasks", "assigned_members", "subtasks"} {
		if n := count(t, env, table); n != 0 {
			t.Fatalf("table %s still has %d rows after cascade", table, n)
		}
	}
}

func TestListDeleteCascadesAndSiblingsSurvive(t *testing.T) {
	env := newTestEnv(t)
	p := newProject(t, env)
	l, task := newTask(t, env, p, env.Member.ID)
	if _, err := env.Engine.CreateSubTask(env.Ctx, env.Member, task.ID, "step"); err != nil {
		t.Fatalf("create subtask: %v", err)
	}
	keep, err := env.Engine.CreateList(env.Ctx, env.Leader, p.ID, "done")
	if err != nil {
		t.Fatalf("create sibling list: %v", err)
	}

	if err := env.Engine.DeleteList(env.Ctx, env.Leader, l.ID); err != nil {
		t.Fatalf("delete list: %v", err)
	}
	if n := count(t, env, "tasks"); n != 0 {
		t.Fatalf("tasks not cascaded, %d left", n)
	}
	if n := count(t, env, "subtasks"); n != 0 {
		t.Fatalf("subtasks not cascaded, %d left", n)
	}
	if _, err := env.Engine.GetList(env.Ctx, env.Leader, keep.ID); err != nil {
		t.Fatalf("sibling list should survive: %v", err)
	}
	got, err := env.Engine.GetProject(env.Ctx, env.Leader, p.ID)
	if err != nil {
		t.Fatalf("get project: %v", err)
	}
	if len(got.Lists) != 1 || got.Lists[0] != keep.ID {
		t.Fatalf("project lists = %v, want just %s", got.Lists, keep.ID)
	}
}

func TestTaskDeleteRemovesFromList(t *testing.T) {
	env := newTestEnv(t)
	p := newProject(t, env)
	l, task := newTask(t, env, p, env.Member.ID)
	if _, err := env.Engine.CreateSubTask(env.Ctx, env.Member, task.ID, "step"); err != nil {
		t.Fatalf("create subtask: %v", err)
	}
	sibling, err := env.Engine.CreateTask(env.Ctx, env.Leader, engine.TaskCreateOptions{
		ListID: l.ID,
		Name:   "write footer",
	})
	if err != nil {
		t.Fatalf("create sibling task: %v", err)
	}

	if err := env.Engine.DeleteTask(env.Ctx, env.Leader, task.ID); err != nil {
		t.Fatalf("delete task: %v", err)
	}

	got, err := env.Engine.GetList(env.Ctx, env.Leader, l.ID)
	if err != nil {
		t.Fatalf("get list: %v", err)
	}
	if len(got.Tasks) != 1 || got.Tasks[0] != sibling.ID {
		t.Fatalf("list tasks = %v, want just %s", got.Tasks, sibling.ID)
	}
	if n := count(t, env, "subtasks"); n != 0 {
		t.Fatalf("subtasks not cascaded, %d left", n)
	}
	if n := count(t, env, "assigned_members"); n != 0 {
		t.Fatalf("assignments not cascaded, %d left", n)
	}
	if _, err := env.Engine.GetTask(env.Ctx, env.Leader, sibling.ID); err != nil {
		t.Fatalf("sibling task should survive: %v", err)
	}
}

func TestTemplateCatalogMissingIDReadsNotFound(t *testing.T) {
	env := newTestEnv(t)

	// A missing template id reads as not-found even for callers who
	// could never touch the catalog.
	name := "renamed"
	if _, err := env.Engine.UpdateTemplate(env.Ctx, env.Leader, "nope", engine.TemplateUpdateOptions{Name: &name}); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("update missing template: got %v, want ErrNotFound", err)
	}
	if err := env.Engine.DeleteTemplate(env.Ctx, env.Leader, "nope"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("delete missing template: got %v, want ErrNotFound", err)
	}

	// Existing templates still deny non-admin writes.
	tpl, err := env.Engine.CreateTemplate(env.Ctx, env.Admin, "Real", nil)
	if err != nil {
		t.Fatalf("create template: %v", err)
	}
	var denied authz.AccessDeniedError
	if err := env.Engine.DeleteTemplate(env.Ctx, env.Leader, tpl.ID); !errors.As(err, &denied) {
		t.Fatalf("non-admin delete: got %v, want AccessDeniedError", err)
	}
}

func TestAssignmentRequiresTeamMembership(t *testing.T) {
	env := newTestEnv(t)
	p := newProject(t, env)
	l, err := env.Engine.CreateList(env.Ctx, env.Leader, p.ID, "backlog")
	if err != nil {
		t.Fatalf("create list: %v", err)
	}
	_, err = env.Engine.CreateTask(env.Ctx, env.Leader, engine.TaskCreateOptions{
		ListID:      l.ID,
		Name:        "rogue assignment",
		Assignments: []engine.AssignmentInput{{UserID: env.Outsider.ID}},
	})
	var ve engine.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("assigning a non-member should be a validation error, got %v", err)
	}
}

func TestAssignmentSnapshotsUsername(t *testing.T) {
	env := newTestEnv(t)
	p := newProject(t, env)
	_, task := newTask(t, env, p, env.Member.ID)
	if len(task.AssignedMembers) != 1 {
		t.Fatalf("assigned members = %d, want 1", len(task.AssignedMembers))
	}
	am := task.AssignedMembers[0]
	if am.Username != "milo" || am.Role != domain.MemberMember || am.AllocatedHours != 8 {
		t.Fatalf("snapshot = %+v", am)
	}
}

func TestTemplateApply(t *testing.T) {
	env := newTestEnv(t)
	p := newProject(t, env)
	tpl, err := env.Engine.CreateTemplate(env.Ctx, env.Admin, "Software Development", []domain.TemplateList{
		{Name: "To Do", Tasks: []domain.TemplateTask{{Name: "Set up repo"}, {Name: "Write spec"}}},
		{Name: "In Progress", Tasks: []domain.TemplateTask{{Name: "Build MVP"}}},
	})
	if err != nil {
		t.Fatalf("create template: %v", err)
	}

	// Only admins may manage the catalog.
	if _, err := env.Engine.CreateTemplate(env.Ctx, env.Leader, "nope", nil); err == nil {
		t.Fatal("non-admin template creation should be denied")
	}

	got, err := env.Engine.ApplyTemplate(env.Ctx, env.Leader, p.ID, tpl.ID)
	if err != nil {
		t.Fatalf("apply template: %v", err)
	}
	if len(got.Lists) != 2 {
		t.Fatalf("project lists = %d, want 2", len(got.Lists))
	}
	tasks, err := env.Engine.ListTasksForProject(env.Ctx, env.Leader, p.ID)
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	if len(tasks) != 3 {
		t.Fatalf("stamped tasks = %d, want 3", len(tasks))
	}
	for _, task := range tasks {
		if task.Status != domain.StatusTodo || len(task.AssignedMembers) != 0 {
			t.Fatalf("stamped task should start unassigned in todo: %+v", task)
		}
	}
}

func TestSeedTemplatesUpsertsByName(t *testing.T) {
	env := newTestEnv(t)
	seed := []domain.TaskTemplate{
		{Name: "Marketing Campaign", Lists: []domain.TemplateList{{Name: "Ideas", Tasks: []domain.TemplateTask{{Name: "Brainstorm"}}}}},
		{Name: "Event Planning"},
	}
	if n, err := env.Engine.SeedTemplates(env.Ctx, seed); err != nil || n != 2 {
		t.Fatalf("first seed: n=%d err=%v", n, err)
	}
	first, err := env.Engine.Repo.GetTemplateByName(env.Ctx, "Marketing Campaign")
	if err != nil {
		t.Fatalf("get seeded template: %v", err)
	}

	seed[0].Lists[0].Tasks = append(seed[0].Lists[0].Tasks, domain.TemplateTask{Name: "Pick channels"})
	if n, err := env.Engine.SeedTemplates(env.Ctx, seed); err != nil || n != 2 {
		t.Fatalf("reseed: n=%d err=%v", n, err)
	}
	second, err := env.Engine.Repo.GetTemplateByName(env.Ctx, "Marketing Campaign")
	if err != nil {
		t.Fatalf("get reseeded template: %v", err)
	}
	if second.ID != first.ID {
		t.Fatal("reseeding must keep the template id")
	}
	if len(second.Lists[0].Tasks) != 2 {
		t.Fatalf("reseed should replace the shape, got %d tasks", len(second.Lists[0].Tasks))
	}
	if n := count(t, env, "task_templates"); n != 2 {
		t.Fatalf("templates = %d, want 2", n)
	}
}

func TestRegisterAndAuthenticate(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.Register(env.Ctx, engine.RegisterOptions{
		Username: "dupe",
		Email:    "lena@example.com",
		Password: "long enough",
	}); err == nil {
		t.Fatal("duplicate email must be rejected")
	}
	if _, err := env.Engine.Authenticate(env.Ctx, "lena@example.com", "wrong password"); !errors.Is(err, engine.ErrBadCredentials) {
		t.Fatalf("wrong password: got %v", err)
	}
	if _, err := env.Engine.Authenticate(env.Ctx, "ghost@example.com", "whatever"); !errors.Is(err, engine.ErrBadCredentials) {
		t.Fatalf("unknown email: got %v", err)
	}
	u, err := env.Engine.Authenticate(env.Ctx, "lena@example.com", "correct horse")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if u.Username != "lena" {
		t.Fatalf("user = %+v", u)
	}
}

func TestEventsRecordedWithMutations(t *testing.T) {
	env := newTestEnv(t)
	p := newProject(t, env)
	_, task := newTask(t, env, p, env.Member.ID)
	hours := 1.0
	if _, err := env.Engine.UpdateTask(env.Ctx, env.Member, task.ID, engine.TaskUpdateOptions{
		Fields:    map[string]bool{"hours_used": true},
		HoursUsed: &hours,
	}); err != nil {
		t.Fatalf("update task: %v", err)
	}

	evts, err := env.Engine.Events.Recent(env.Ctx, p.ID, 10)
	if err != nil {
		t.Fatalf("recent events: %v", err)
	}
	types := map[string]bool{}
	for _, e := range evts {
		types[e.Type] = true
	}
	for _, want := range []string{"project.created", "list.created", "task.created", "task.updated"} {
		if !types[want] {
			t.Fatalf("missing event %s in %v", want, types)
		}
	}
}
