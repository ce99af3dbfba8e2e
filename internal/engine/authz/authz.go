// Package authz centralizes every access decision. Handlers and the
// engine never compare roles inline; they ask this package and treat
// AccessDeniedError as the single forbidden signal.
//
// Decisions are made against entities already loaded from the store,
// so existence is always settled before authorization: a caller that
// probes a missing resource learns "not found", never "forbidden".
package authz

import (
	"fmt"

	"teamboard/internal/domain"
)

// AccessDeniedError indicates the caller lacks the required role for
// an action. The HTTP layer maps it to 403.
type AccessDeniedError struct {
	Action string
}

func (e AccessDeniedError) Error() string {
	return fmt.Sprintf("access denied: %s", e.Action)
}

func deny(action string) error { return AccessDeniedError{Action: action} }

// IsAdmin reports whether the caller carries the global admin role.
func IsAdmin(id domain.Identity) bool { return id.IsAdmin() }

// IsProjectLeader reports whether the caller holds the leader role on
// the project's team. Admin does not imply leader; callers that want
// the bypass combine the predicates explicitly.
func IsProjectLeader(id domain.Identity, p domain.Project) bool {
	return p.Leader(id.ID)
}

// IsProjectMember reports whether the caller holds the member role.
func IsProjectMember(id domain.Identity, p domain.Project) bool {
	return p.Member(id.ID)
}

// IsProjectMemberOrLeader reports whether the caller is on the team
// with either role.
func IsProjectMemberOrLeader(id domain.Identity, p domain.Project) bool {
	return p.OnTeam(id.ID)
}

// IsTaskMember reports whether the caller appears in the task's
// assigned members.
func IsTaskMember(id domain.Identity, t domain.Task) bool {
	return t.Assigned(id.ID)
}

// RequireProjectRead admits admins and anyone on the project team.
func RequireProjectRead(id domain.Identity, p domain.Project) error {
	if IsAdmin(id) || IsProjectMemberOrLeader(id, p) {
		return nil
	}
	return deny("read project " + p.ID)
}

// RequireProjectLeader admits admins and project leaders. It gates
// project/list/task structure changes.
func RequireProjectLeader(id domain.Identity, p domain.Project) error {
	if IsAdmin(id) || IsProjectLeader(id, p) {
		return nil
	}
	return deny("manage project " + p.ID)
}

// RequireTaskMember admits only users assigned to the task. There is
// deliberately no admin or leader bypass here: subtask work belongs
// to the people doing the task.
func RequireTaskMember(id domain.Identity, t domain.Task) error {
	if IsTaskMember(id, t) {
		return nil
	}
	return deny("work on task " + t.ID)
}

// DecideTaskUpdate resolves the two-path task update rule. Admins and
// project leaders may change any field. A task member may update only
// their logged hours: the request must set hours_used and nothing
// else. fields holds the JSON keys present in the request body.
func DecideTaskUpdate(id domain.Identity, p domain.Project, t domain.Task, fields map[string]bool) error {
	if IsAdmin(id) || IsProjectLeader(id, p) {
		return nil
	}
	if IsTaskMember(id, t) {
		if len(fields) == 1 && fields["hours_used"] {
			return nil
		}
		return deny("task members may update hours_used only on task " + t.ID)
	}
	return deny("update task " + t.ID)
}
