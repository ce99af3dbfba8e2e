package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"teamboard/internal/domain"
)

// --- tasks ---

func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	if _, err := r.exec(tx).ExecContext(ctx, `INSERT INTO tasks(id,list_id,name,description,hours_allocated,hours_used,status,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?)`,
		t.ID, t.ListID, t.Name, nullable(t.Description), t.HoursAllocated, t.HoursUsed,
		string(t.Status), t.CreatedAt, t.UpdatedAt); err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return r.ReplaceAssignedMembers(ctx, tx, t.ID, t.AssignedMembers)
}

func (r Repo) GetTask(ctx context.Context, id string) (domain.Task, error) {
	var t domain.Task
	var desc sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,list_id,name,description,hours_allocated,hours_used,status,created_at,updated_at FROM tasks WHERE id=?`, id).
		Scan(&t.ID, &t.ListID, &t.Name, &desc, &t.HoursAllocated, &t.HoursUsed, &t.Status, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	if desc.Valid {
		t.Description = desc.String
	}
	if t.AssignedMembers, err = r.assignedMembers(ctx, t.ID); err != nil {
		return t, err
	}
	if t.SubTasks, err = r.ListSubTasks(ctx, t.ID); err != nil {
		return t, err
	}
	return t, nil
}

func (r Repo) ListTasksForList(ctx context.Context, listID string) ([]domain.Task, error) {
	return r.queryTasks(ctx, `SELECT id,list_id,name,COALESCE(description,''),hours_allocated,hours_used,status,created_at,updated_at
FROM tasks WHERE list_id=? ORDER BY created_at`, listID)
}

func (r Repo) ListTasksForProject(ctx context.Context, projectID string) ([]domain.Task, error) {
	return r.queryTasks(ctx, `SELECT t.id,t.list_id,t.name,COALESCE(t.description,''),t.hours_allocated,t.hours_used,t.status,t.created_at,t.updated_at
FROM tasks t JOIN lists l ON l.id=t.list_id
WHERE l.project_id=? ORDER BY t.created_at`, projectID)
}

// ListTasksForUser returns every task the user is assigned to,
// across all projects.
func (r Repo) ListTasksForUser(ctx context.Context, userID string) ([]domain.Task, error) {
	return r.queryTasks(ctx, `SELECT t.id,t.list_id,t.name,COALESCE(t.description,''),t.hours_allocated,t.hours_used,t.status,t.created_at,t.updated_at
FROM tasks t JOIN assigned_members am ON am.task_id=t.id
WHERE am.user_id=? ORDER BY t.created_at`, userID)
}

func (r Repo) queryTasks(ctx context.Context, query string, args ...any) ([]domain.Task, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		var t domain.Task
		if err := rows.Scan(&t.ID, &t.ListID, &t.Name, &t.Description, &t.HoursAllocated, &t.HoursUsed, &t.Status, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range res {
		if res[i].AssignedMembers, err = r.assignedMembers(ctx, res[i].ID); err != nil {
			return nil, err
		}
		if res[i].SubTasks, err = r.ListSubTasks(ctx, res[i].ID); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// TaskUpdate carries the fields a partial task update supplies.
type TaskUpdate struct {
	Name           *string
	Description    *string
	HoursAllocated *float64
	HoursUsed      *float64
	Status         *domain.TaskStatus
	UpdatedAt      string
}

func (r Repo) UpdateTask(ctx context.Context, tx *sql.Tx, id string, upd TaskUpdate) error {
	var (
		fields []string
		args   []any
	)
	if upd.Name != nil {
		fields = append(fields, "name=?")
		args = append(args, *upd.Name)
	}
	if upd.Description != nil {
		fields = append(fields, "description=?")
		args = append(args, nullable(*upd.Description))
	}
	if upd.HoursAllocated != nil {
		fields = append(fields, "hours_allocated=?")
		args = append(args, *upd.HoursAllocated)
	}
	if upd.HoursUsed != nil {
		fields = append(fields, "hours_used=?")
		args = append(args, *upd.HoursUsed)
	}
	if upd.Status != nil {
		fields = append(fields, "status=?")
		args = append(args, string(*upd.Status))
	}
	if len(fields) == 0 {
		return nil
	}
	fields = append(fields, "updated_at=?")
	args = append(args, upd.UpdatedAt, id)
	res, err := r.exec(tx).ExecContext(ctx, fmt.Sprintf(`UPDATE tasks SET %s WHERE id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteTask(ctx context.Context, tx *sql.Tx, id string) error {
	if _, err := r.exec(tx).ExecContext(ctx, `DELETE FROM subtasks WHERE task_id=?`, id); err != nil {
		return err
	}
	if _, err := r.exec(tx).ExecContext(ctx, `DELETE FROM assigned_members WHERE task_id=?`, id); err != nil {
		return err
	}
	res, err := r.exec(tx).ExecContext(ctx, `DELETE FROM tasks WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- assigned members ---

func (r Repo) assignedMembers(ctx context.Context, taskID string) ([]domain.AssignedMember, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT user_id,username,role,allocated_hours,used_hours FROM assigned_members WHERE task_id=? ORDER BY role, user_id`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	members := []domain.AssignedMember{}
	for rows.Next() {
		var m domain.AssignedMember
		if err := rows.Scan(&m.UserID, &m.Username, &m.Role, &m.AllocatedHours, &m.UsedHours); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func (r Repo) ReplaceAssignedMembers(ctx context.Context, tx *sql.Tx, taskID string, members []domain.AssignedMember) error {
	if _, err := r.exec(tx).ExecContext(ctx, `DELETE FROM assigned_members WHERE task_id=?`, taskID); err != nil {
		return err
	}
	for _, m := range members {
		if _, err := r.exec(tx).ExecContext(ctx, `INSERT OR REPLACE INTO assigned_members(task_id,user_id,username,role,allocated_hours,used_hours) VALUES (?,?,?,?,?,?)`,
			taskID, m.UserID, m.Username, string(m.Role), m.AllocatedHours, m.UsedHours); err != nil {
			return fmt.Errorf("insert assigned member %s: %w", m.UserID, err)
		}
	}
	return nil
}

// --- subtasks ---

func (r Repo) InsertSubTask(ctx context.Context, tx *sql.Tx, st domain.SubTask) error {
	_, err := r.exec(tx).ExecContext(ctx, `INSERT INTO subtasks(id,task_id,name,completed,created_at,updated_at) VALUES (?,?,?,?,?,?)`,
		st.ID, st.TaskID, st.Name, st.Completed, st.CreatedAt, st.UpdatedAt)
	return err
}

// GetSubTask resolves a subtask within its parent task; a subtask id
// that exists under a different task is still not found.
func (r Repo) GetSubTask(ctx context.Context, taskID, id string) (domain.SubTask, error) {
	var st domain.SubTask
	err := r.DB.QueryRowContext(ctx, `SELECT id,task_id,name,completed,created_at,updated_at FROM subtasks WHERE id=? AND task_id=?`, id, taskID).
		Scan(&st.ID, &st.TaskID, &st.Name, &st.Completed, &st.CreatedAt, &st.UpdatedAt)
	if err == sql.ErrNoRows {
		return st, ErrNotFound
	}
	return st, err
}

func (r Repo) ListSubTasks(ctx context.Context, taskID string) ([]domain.SubTask, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,task_id,name,completed,created_at,updated_at FROM subtasks WHERE task_id=? ORDER BY created_at`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	subtasks := []domain.SubTask{}
	for rows.Next() {
		var st domain.SubTask
		if err := rows.Scan(&st.ID, &st.TaskID, &st.Name, &st.Completed, &st.CreatedAt, &st.UpdatedAt); err != nil {
			return nil, err
		}
		subtasks = append(subtasks, st)
	}
	return subtasks, rows.Err()
}

// SubTaskUpdate carries the fields a partial subtask update supplies.
type SubTaskUpdate struct {
	Name      *string
	Completed *bool
	UpdatedAt string
}

func (r Repo) UpdateSubTask(ctx context.Context, tx *sql.Tx, taskID, id string, upd SubTaskUpdate) error {
	var (
		fields []string
		args   []any
	)
	if upd.Name != nil {
		fields = append(fields, "name=?")
		args = append(args, *upd.Name)
	}
	if upd.Completed != nil {
		fields = append(fields, "completed=?")
		args = append(args, *upd.Completed)
	}
	if len(fields) == 0 {
		return nil
	}
	fields = append(fields, "updated_at=?")
	args = append(args, upd.UpdatedAt, id, taskID)
	res, err := r.exec(tx).ExecContext(ctx, fmt.Sprintf(`UPDATE subtasks SET %s WHERE id=? AND task_id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteSubTask(ctx context.Context, tx *sql.Tx, taskID, id string) error {
	res, err := r.exec(tx).ExecContext(ctx, `DELETE FROM subtasks WHERE id=? AND task_id=?`, id, taskID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
