package authz_test

import (
	"errors"
	"testing"

	"teamboard/internal/domain"
	"teamboard/internal/engine/authz"
)

var (
	admin    = domain.Identity{ID: "u-admin", Role: domain.RoleAdmin}
	leader   = domain.Identity{ID: "u-leader", Role: domain.RoleUser}
	member   = domain.Identity{ID: "u-member", Role: domain.RoleUser}
	outsider = domain.Identity{ID: "u-out", Role: domain.RoleUser}
)

func testProject() domain.Project {
	return domain.Project{
		ID:        "p1",
		CreatorID: leader.ID,
		TeamMembers: []domain.TeamMember{
			{UserID: leader.ID, Role: domain.MemberLeader},
			{UserID: member.ID, Role: domain.MemberMember},
		},
	}
}

func testTask() domain.Task {
	return domain.Task{
		ID:     "t1",
		ListID: "l1",
		AssignedMembers: []domain.AssignedMember{
			{UserID: member.ID, Role: domain.MemberMember},
		},
	}
}

func TestPredicates(t *testing.T) {
	p := testProject()
	if !authz.IsAdmin(admin) || authz.IsAdmin(leader) {
		t.Fatal("IsAdmin follows the global role")
	}
	if !authz.IsProjectLeader(leader, p) || authz.IsProjectLeader(member, p) {
		t.Fatal("IsProjectLeader follows the team role")
	}
	if !authz.IsProjectMember(member, p) || authz.IsProjectMember(leader, p) {
		t.Fatal("IsProjectMember matches the member role only")
	}
	if !authz.IsProjectMemberOrLeader(leader, p) || !authz.IsProjectMemberOrLeader(member, p) || authz.IsProjectMemberOrLeader(outsider, p) {
		t.Fatal("IsProjectMemberOrLeader matches either role")
	}
	// Admin holds no implicit team role.
	if authz.IsProjectLeader(admin, p) || authz.IsProjectMember(admin, p) {
		t.Fatal("admin must not be an implicit team member")
	}
}

func TestRequireProjectRead(t *testing.T) {
	p := testProject()
	for _, id := range []domain.Identity{admin, leader, member} {
		if err := authz.RequireProjectRead(id, p); err != nil {
			t.Fatalf("%s should read: %v", id.ID, err)
		}
	}
	if err := authz.RequireProjectRead(outsider, p); err == nil {
		t.Fatal("outsider should be denied")
	}
}

func TestRequireProjectLeader(t *testing.T) {
	p := testProject()
	if err := authz.RequireProjectLeader(admin, p); err != nil {
		t.Fatalf("admin bypass: %v", err)
	}
	if err := authz.RequireProjectLeader(leader, p); err != nil {
		t.Fatalf("leader: %v", err)
	}
	var denied authz.AccessDeniedError
	if err := authz.RequireProjectLeader(member, p); !errors.As(err, &denied) {
		t.Fatalf("member should get AccessDeniedError, got %v", err)
	}
}

func TestRequireTaskMemberHasNoBypass(t *testing.T) {
	task := testTask()
	if err := authz.RequireTaskMember(member, task); err != nil {
		t.Fatalf("assigned member: %v", err)
	}
	// Neither global admin nor project leader get through unless assigned.
	for _, id := range []domain.Identity{admin, leader, outsider} {
		if err := authz.RequireTaskMember(id, task); err == nil {
			t.Fatalf("%s should be denied on the task", id.ID)
		}
	}
}

func TestDecideTaskUpdate(t *testing.T) {
	p := testProject()
	task := testTask()

	anyFields := map[string]bool{"name": true, "status": true}
	hoursOnly := map[string]bool{"hours_used": true}
	hoursPlus := map[string]bool{"hours_used": true, "status": true}

	if err := authz.DecideTaskUpdate(admin, p, task, anyFields); err != nil {
		t.Fatalf("admin full update: %v", err)
	}
	if err := authz.DecideTaskUpdate(leader, p, task, anyFields); err != nil {
		t.Fatalf("leader full update: %v", err)
	}
	if err := authz.DecideTaskUpdate(member, p, task, hoursOnly); err != nil {
		t.Fatalf("member hours_used-only update: %v", err)
	}
	if err := authz.DecideTaskUpdate(member, p, task, hoursPlus); err == nil {
		t.Fatal("member update touching more than hours_used should be denied")
	}
	if err := authz.DecideTaskUpdate(member, p, task, anyFields); err == nil {
		t.Fatal("member update without hours_used should be denied")
	}
	if err := authz.DecideTaskUpdate(outsider, p, task, hoursOnly); err == nil {
		t.Fatal("outsider should be denied entirely")
	}
}
