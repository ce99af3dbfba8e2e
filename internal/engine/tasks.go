package engine

import (
	"context"

	"teamboard/internal/domain"
	"teamboard/internal/engine/authz"
	"teamboard/internal/events"
	"teamboard/internal/repo"
)

// taskScope resolves a task up to its project for authorization.
func (e Engine) taskScope(ctx context.Context, taskID string) (domain.Task, domain.Project, error) {
	t, err := e.Repo.GetTask(ctx, taskID)
	if err != nil {
		return domain.Task{}, domain.Project{}, err
	}
	l, err := e.Repo.GetList(ctx, t.ListID)
	if err != nil {
		return domain.Task{}, domain.Project{}, err
	}
	p, err := e.Repo.GetProject(ctx, l.ProjectID)
	if err != nil {
		return domain.Task{}, domain.Project{}, err
	}
	return t, p, nil
}

// AssignmentInput names a project team member to put on a task.
type AssignmentInput struct {
	UserID         string
	AllocatedHours float64
}

// TaskCreateOptions are parameters for creating a task in a list.
type TaskCreateOptions struct {
	ListID         string
	Name           string
	Description    string
	HoursAllocated float64
	Assignments    []AssignmentInput
}

// CreateTask creates a task; only a project leader (or admin) may add
// structure. Assigned members are snapshotted from the users table and
// the project team at creation time; assigning someone who is not on
// the team is rejected.
func (e Engine) CreateTask(ctx context.Context, caller domain.Identity, opts TaskCreateOptions) (domain.Task, error) {
	if opts.Name == "" {
		return domain.Task{}, invalid("task name is required")
	}
	l, err := e.Repo.GetList(ctx, opts.ListID)
	if err != nil {
		return domain.Task{}, err
	}
	p, err := e.Repo.GetProject(ctx, l.ProjectID)
	if err != nil {
		return domain.Task{}, err
	}
	if err := authz.RequireProjectLeader(caller, p); err != nil {
		return domain.Task{}, err
	}
	assigned, err := e.snapshotAssignments(ctx, p, opts.Assignments)
	if err != nil {
		return domain.Task{}, err
	}

	now := e.timestamp()
	t := domain.Task{
		ID:              newID(),
		ListID:          opts.ListID,
		Name:            opts.Name,
		Description:     opts.Description,
		AssignedMembers: assigned,
		HoursAllocated:  opts.HoursAllocated,
		Status:          domain.StatusTodo,
		SubTasks:        []domain.SubTask{},
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertTask(ctx, tx, t); err != nil {
		return domain.Task{}, err
	}
	if err := e.Events.Append(ctx, tx, "task.created", p.ID, "task", t.ID, caller.ID, events.Payload{"name": t.Name, "list_id": t.ListID}); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

// snapshotAssignments turns requested assignments into denormalized
// member rows, validating every user against the project team.
func (e Engine) snapshotAssignments(ctx context.Context, p domain.Project, assignments []AssignmentInput) ([]domain.AssignedMember, error) {
	assigned := []domain.AssignedMember{}
	for _, a := range assignments {
		var role domain.MemberRole
		found := false
		for _, m := range p.TeamMembers {
			if m.UserID == a.UserID {
				role, found = m.Role, true
				break
			}
		}
		if !found {
			return nil, invalid("user %s is not on the project team", a.UserID)
		}
		u, err := e.Repo.GetUser(ctx, a.UserID)
		if err != nil {
			return nil, invalid("unknown user %s", a.UserID)
		}
		assigned = append(assigned, domain.AssignedMember{
			UserID:         a.UserID,
			Username:       u.Username,
			Role:           role,
			AllocatedHours: a.AllocatedHours,
		})
	}
	return assigned, nil
}

func (e Engine) GetTask(ctx context.Context, caller domain.Identity, id string) (domain.Task, error) {
	t, p, err := e.taskScope(ctx, id)
	if err != nil {
		return domain.Task{}, err
	}
	if err := authz.RequireProjectRead(caller, p); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

func (e Engine) ListTasksForList(ctx context.Context, caller domain.Identity, listID string) ([]domain.Task, error) {
	l, err := e.Repo.GetList(ctx, listID)
	if err != nil {
		return nil, err
	}
	p, err := e.Repo.GetProject(ctx, l.ProjectID)
	if err != nil {
		return nil, err
	}
	if err := authz.RequireProjectRead(caller, p); err != nil {
		return nil, err
	}
	return e.Repo.ListTasksForList(ctx, listID)
}

// ListAssignedTasks returns the caller's own assigned tasks across
// all projects; no further authorization applies.
func (e Engine) ListAssignedTasks(ctx context.Context, caller domain.Identity) ([]domain.Task, error) {
	return e.Repo.ListTasksForUser(ctx, caller.ID)
}

func (e Engine) ListTasksForProject(ctx context.Context, caller domain.Identity, projectID string) ([]domain.Task, error) {
	p, err := e.Repo.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if err := authz.RequireProjectRead(caller, p); err != nil {
		return nil, err
	}
	return e.Repo.ListTasksForProject(ctx, projectID)
}

// TaskUpdateOptions carries a partial task update plus the set of JSON
// keys the request actually supplied, which the two-path authorization
// rule inspects.
type TaskUpdateOptions struct {
	Fields         map[string]bool
	Name           *string
	Description    *string
	HoursAllocated *float64
	HoursUsed      *float64
	Status         *domain.TaskStatus
	Assignments    []AssignmentInput
	SetAssignments bool
}

// UpdateTask applies a partial update under the two-path rule: admins
// and project leaders may change anything; a task member may submit a
// body that sets hours_used and nothing else.
func (e Engine) UpdateTask(ctx context.Context, caller domain.Identity, id string, opts TaskUpdateOptions) (domain.Task, error) {
	t, p, err := e.taskScope(ctx, id)
	if err != nil {
		return domain.Task{}, err
	}
	if err := authz.DecideTaskUpdate(caller, p, t, opts.Fields); err != nil {
		return domain.Task{}, err
	}
	if opts.Status != nil && !opts.Status.Valid() {
		return domain.Task{}, invalid("invalid status %q", *opts.Status)
	}
	var assigned []domain.AssignedMember
	if opts.SetAssignments {
		if assigned, err = e.snapshotAssignments(ctx, p, opts.Assignments); err != nil {
			return domain.Task{}, err
		}
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	upd := repo.TaskUpdate{
		Name:           opts.Name,
		Description:    opts.Description,
		HoursAllocated: opts.HoursAllocated,
		HoursUsed:      opts.HoursUsed,
		Status:         opts.Status,
		UpdatedAt:      e.timestamp(),
	}
	if err := e.Repo.UpdateTask(ctx, tx, id, upd); err != nil {
		return domain.Task{}, err
	}
	if opts.SetAssignments {
		if err := e.Repo.ReplaceAssignedMembers(ctx, tx, id, assigned); err != nil {
			return domain.Task{}, err
		}
	}
	payload := events.Payload{}
	for f := range opts.Fields {
		payload[f] = true
	}
	if err := e.Events.Append(ctx, tx, "task.updated", p.ID, "task", id, caller.ID, payload); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return e.Repo.GetTask(ctx, id)
}

// DeleteTask removes the task with its assignments and subtasks in
// one transaction.
func (e Engine) DeleteTask(ctx context.Context, caller domain.Identity, id string) error {
	t, p, err := e.taskScope(ctx, id)
	if err != nil {
		return err
	}
	if err := authz.RequireProjectLeader(caller, p); err != nil {
		return err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := e.Repo.DeleteTask(ctx, tx, id); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "task.deleted", p.ID, "task", id, caller.ID, events.Payload{"subtasks": len(t.SubTasks)}); err != nil {
		return err
	}
	return tx.Commit()
}

// --- subtasks ---
//
// Subtask operations are gated on task membership alone. Admins and
// leaders manage structure; the breakdown of a task into subtasks
// belongs to the people assigned to it.

func (e Engine) CreateSubTask(ctx context.Context, caller domain.Identity, taskID, name string) (domain.SubTask, error) {
	if name == "" {
		return domain.SubTask{}, invalid("subtask name is required")
	}
	t, p, err := e.taskScope(ctx, taskID)
	if err != nil {
		return domain.SubTask{}, err
	}
	if err := authz.RequireTaskMember(caller, t); err != nil {
		return domain.SubTask{}, err
	}

	now := e.timestamp()
	st := domain.SubTask{
		ID:        newID(),
		TaskID:    taskID,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.SubTask{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertSubTask(ctx, tx, st); err != nil {
		return domain.SubTask{}, err
	}
	if err := e.Events.Append(ctx, tx, "subtask.created", p.ID, "subtask", st.ID, caller.ID, events.Payload{"task_id": taskID}); err != nil {
		return domain.SubTask{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.SubTask{}, err
	}
	return st, nil
}

func (e Engine) ListSubTasks(ctx context.Context, caller domain.Identity, taskID string) ([]domain.SubTask, error) {
	t, _, err := e.taskScope(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if err := authz.RequireTaskMember(caller, t); err != nil {
		return nil, err
	}
	return e.Repo.ListSubTasks(ctx, taskID)
}

// SubTaskUpdateOptions carries a partial subtask update.
type SubTaskUpdateOptions struct {
	Name      *string
	Completed *bool
}

func (e Engine) UpdateSubTask(ctx context.Context, caller domain.Identity, taskID, id string, opts SubTaskUpdateOptions) (domain.SubTask, error) {
	t, p, err := e.taskScope(ctx, taskID)
	if err != nil {
		return domain.SubTask{}, err
	}
	if _, err := e.Repo.GetSubTask(ctx, taskID, id); err != nil {
		return domain.SubTask{}, err
	}
	if err := authz.RequireTaskMember(caller, t); err != nil {
		return domain.SubTask{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.SubTask{}, err
	}
	defer tx.Rollback()

	upd := repo.SubTaskUpdate{
		Name:      opts.Name,
		Completed: opts.Completed,
		UpdatedAt: e.timestamp(),
	}
	if err := e.Repo.UpdateSubTask(ctx, tx, taskID, id, upd); err != nil {
		return domain.SubTask{}, err
	}
	if err := e.Events.Append(ctx, tx, "subtask.updated", p.ID, "subtask", id, caller.ID, nil); err != nil {
		return domain.SubTask{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.SubTask{}, err
	}
	return e.Repo.GetSubTask(ctx, taskID, id)
}

func (e Engine) DeleteSubTask(ctx context.Context, caller domain.Identity, taskID, id string) error {
	t, p, err := e.taskScope(ctx, taskID)
	if err != nil {
		return err
	}
	if _, err := e.Repo.GetSubTask(ctx, taskID, id); err != nil {
		return err
	}
	if err := authz.RequireTaskMember(caller, t); err != nil {
		return err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := e.Repo.DeleteSubTask(ctx, tx, taskID, id); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "subtask.deleted", p.ID, "subtask", id, caller.ID, nil); err != nil {
		return err
	}
	return tx.Commit()
}
