package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"teamboard/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

// execer lets mutations run either on the pool or inside a transaction.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (r Repo) exec(tx *sql.Tx) execer {
	if tx != nil {
		return tx
	}
	return r.DB
}

// --- projects ---

func (r Repo) InsertProject(ctx context.Context, tx *sql.Tx, p domain.Project) error {
	if _, err := r.exec(tx).ExecContext(ctx, `INSERT INTO projects(id,name,description,start_date,end_date,allocated_hours,creator_id,creation_status,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?)`,
		p.ID, p.Name, nullable(p.Description), p.StartDate, p.EndDate, p.AllocatedHours,
		p.CreatorID, string(p.CreationStatus), p.CreatedAt, p.UpdatedAt); err != nil {
		return fmt.Errorf("insert project: %w", err)
	}
	return r.ReplaceTeamMembers(ctx, tx, p.ID, p.TeamMembers)
}

func (r Repo) GetProject(ctx context.Context, id string) (domain.Project, error) {
	var p domain.Project
	var desc sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,description,start_date,end_date,allocated_hours,creator_id,creation_status,created_at,updated_at FROM projects WHERE id=?`, id).
		Scan(&p.ID, &p.Name, &desc, &p.StartDate, &p.EndDate, &p.AllocatedHours, &p.CreatorID, &p.CreationStatus, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	if desc.Valid {
		p.Description = desc.String
	}
	if p.TeamMembers, err = r.teamMembers(ctx, p.ID); err != nil {
		return p, err
	}
	if p.Lists, err = r.projectListIDs(ctx, p.ID); err != nil {
		return p, err
	}
	return p, nil
}

func (r Repo) ListProjects(ctx context.Context) ([]domain.Project, error) {
	return r.queryProjects(ctx, `SELECT id,name,COALESCE(description,''),start_date,end_date,allocated_hours,creator_id,creation_status,created_at,updated_at FROM projects ORDER BY created_at DESC`)
}

// ListProjectsForUser returns projects where the user holds any team role.
func (r Repo) ListProjectsForUser(ctx context.Context, userID string) ([]domain.Project, error) {
	return r.queryProjects(ctx, `SELECT p.id,p.name,COALESCE(p.description,''),p.start_date,p.end_date,p.allocated_hours,p.creator_id,p.creation_status,p.created_at,p.updated_at
FROM projects p JOIN team_members tm ON tm.project_id=p.id
WHERE tm.user_id=? ORDER BY p.created_at DESC`, userID)
}

func (r Repo) queryProjects(ctx context.Context, query string, args ...any) ([]domain.Project, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Project
	for rows.Next() {
		var p domain.Project
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.StartDate, &p.EndDate, &p.AllocatedHours, &p.CreatorID, &p.CreationStatus, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range res {
		if res[i].TeamMembers, err = r.teamMembers(ctx, res[i].ID); err != nil {
			return nil, err
		}
		if res[i].Lists, err = r.projectListIDs(ctx, res[i].ID); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// ProjectUpdate carries the fields a partial project update supplies;
// nil pointers leave the column untouched.
type ProjectUpdate struct {
	Name           *string
	Description    *string
	StartDate      *string
	EndDate        *string
	AllocatedHours *float64
	CreationStatus *domain.CreationStatus
	UpdatedAt      string
}

func (r Repo) UpdateProject(ctx context.Context, tx *sql.Tx, id string, upd ProjectUpdate) error {
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
	if upd.StartDate != nil {
		fields = append(fields, "start_date=?")
		args = append(args, *upd.StartDate)
	}
	if upd.EndDate != nil {
		fields = append(fields, "end_date=?")
		args = append(args, *upd.EndDate)
	}
	if upd.AllocatedHours != nil {
		fields = append(fields, "allocated_hours=?")
		args = append(args, *upd.AllocatedHours)
	}
	if upd.CreationStatus != nil {
		fields = append(fields, "creation_status=?")
		args = append(args, string(*upd.CreationStatus))
	}
	if len(fields) == 0 {
		return nil
	}
	fields = append(fields, "updated_at=?")
	args = append(args, upd.UpdatedAt, id)
	res, err := r.exec(tx).ExecContext(ctx, fmt.Sprintf(`UPDATE projects SET %s WHERE id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteProject(ctx context.Context, tx *sql.Tx, id string) error {
	if _, err := r.exec(tx).ExecContext(ctx, `DELETE FROM team_members WHERE project_id=?`, id); err != nil {
		return err
	}
	res, err := r.exec(tx).ExecContext(ctx, `DELETE FROM projects WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- team members ---

func (r Repo) teamMembers(ctx context.Context, projectID string) ([]domain.TeamMember, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT user_id, role FROM team_members WHERE project_id=? ORDER BY role, user_id`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	members := []domain.TeamMember{}
	for rows.Next() {
		var m domain.TeamMember
		if err := rows.Scan(&m.UserID, &m.Role); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// ReplaceTeamMembers rewrites the whole membership set. A user appears
// at most once; later entries win (INSERT OR REPLACE on the PK).
func (r Repo) ReplaceTeamMembers(ctx context.Context, tx *sql.Tx, projectID string, members []domain.TeamMember) error {
	if _, err := r.exec(tx).ExecContext(ctx, `DELETE FROM team_members WHERE project_id=?`, projectID); err != nil {
		return err
	}
	for _, m := range members {
		if _, err := r.exec(tx).ExecContext(ctx, `INSERT OR REPLACE INTO team_members(project_id, user_id, role) VALUES (?,?,?)`,
			projectID, m.UserID, string(m.Role)); err != nil {
			return fmt.Errorf("insert team member %s: %w", m.UserID, err)
		}
	}
	return nil
}

// ProjectRole returns the membership role userID holds on the project,
// or ok=false when the user is not on the team.
func (r Repo) ProjectRole(ctx context.Context, projectID, userID string) (domain.MemberRole, bool, error) {
	var role domain.MemberRole
	err := r.DB.QueryRowContext(ctx, `SELECT role FROM team_members WHERE project_id=? AND user_id=?`, projectID, userID).Scan(&role)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return role, true, nil
}

// --- lists ---

func (r Repo) InsertList(ctx context.Context, tx *sql.Tx, l domain.List) error {
	_, err := r.exec(tx).ExecContext(ctx, `INSERT INTO lists(id,project_id,name,created_at,updated_at) VALUES (?,?,?,?,?)`,
		l.ID, l.ProjectID, l.Name, l.CreatedAt, l.UpdatedAt)
	return err
}

func (r Repo) GetList(ctx context.Context, id string) (domain.List, error) {
	var l domain.List
	err := r.DB.QueryRowContext(ctx, `SELECT id,project_id,name,created_at,updated_at FROM lists WHERE id=?`, id).
		Scan(&l.ID, &l.ProjectID, &l.Name, &l.CreatedAt, &l.UpdatedAt)
	if err == sql.ErrNoRows {
		return l, ErrNotFound
	}
	if err != nil {
		return l, err
	}
	l.Tasks, err = r.listTaskIDs(ctx, l.ID)
	return l, err
}

func (r Repo) ListLists(ctx context.Context) ([]domain.List, error) {
	return r.queryLists(ctx, `SELECT id,project_id,name,created_at,updated_at FROM lists ORDER BY created_at`)
}

func (r Repo) ListListsForProject(ctx context.Context, projectID string) ([]domain.List, error) {
	return r.queryLists(ctx, `SELECT id,project_id,name,created_at,updated_at FROM lists WHERE project_id=? ORDER BY created_at`, projectID)
}

func (r Repo) queryLists(ctx context.Context, query string, args ...any) ([]domain.List, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.List
	for rows.Next() {
		var l domain.List
		if err := rows.Scan(&l.ID, &l.ProjectID, &l.Name, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range res {
		if res[i].Tasks, err = r.listTaskIDs(ctx, res[i].ID); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func (r Repo) UpdateListName(ctx context.Context, tx *sql.Tx, id, name, updatedAt string) error {
	res, err := r.exec(tx).ExecContext(ctx, `UPDATE lists SET name=?, updated_at=? WHERE id=?`, name, updatedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteList(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := r.exec(tx).ExecContext(ctx, `DELETE FROM lists WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) projectListIDs(ctx context.Context, projectID string) ([]string, error) {
	return r.idColumn(ctx, `SELECT id FROM lists WHERE project_id=? ORDER BY created_at`, projectID)
}

func (r Repo) listTaskIDs(ctx context.Context, listID string) ([]string, error) {
	return r.idColumn(ctx, `SELECT id FROM tasks WHERE list_id=? ORDER BY created_at`, listID)
}

func (r Repo) idColumn(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
