package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"teamboard/internal/domain"
)

// Templates persist their list/task shape as a JSON column; the shape
// references no live entities, so relational modelling buys nothing.

func (r Repo) InsertTemplate(ctx context.Context, tx *sql.Tx, t domain.TaskTemplate) error {
	lists, err := json.Marshal(t.Lists)
	if err != nil {
		return fmt.Errorf("marshal template lists: %w", err)
	}
	_, err = r.exec(tx).ExecContext(ctx, `INSERT INTO task_templates(id,name,lists_json,created_at,updated_at) VALUES (?,?,?,?,?)`,
		t.ID, t.Name, string(lists), t.CreatedAt, t.UpdatedAt)
	return err
}

func (r Repo) GetTemplate(ctx context.Context, id string) (domain.TaskTemplate, error) {
	var t domain.TaskTemplate
	var lists string
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,lists_json,created_at,updated_at FROM task_templates WHERE id=?`, id).
		Scan(&t.ID, &t.Name, &lists, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	if err := json.Unmarshal([]byte(lists), &t.Lists); err != nil {
		return t, fmt.Errorf("unmarshal template lists: %w", err)
	}
	return t, nil
}

func (r Repo) GetTemplateByName(ctx context.Context, name string) (domain.TaskTemplate, error) {
	var id string
	err := r.DB.QueryRowContext(ctx, `SELECT id FROM task_templates WHERE name=?`, name).Scan(&id)
	if err == sql.ErrNoRows {
		return domain.TaskTemplate{}, ErrNotFound
	}
	if err != nil {
		return domain.TaskTemplate{}, err
	}
	return r.GetTemplate(ctx, id)
}

func (r Repo) ListTemplates(ctx context.Context) ([]domain.TaskTemplate, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,lists_json,created_at,updated_at FROM task_templates ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.TaskTemplate
	for rows.Next() {
		var t domain.TaskTemplate
		var lists string
		if err := rows.Scan(&t.ID, &t.Name, &lists, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(lists), &t.Lists); err != nil {
			return nil, fmt.Errorf("unmarshal template lists: %w", err)
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// TemplateUpdate carries the fields a partial template update supplies.
type TemplateUpdate struct {
	Name      *string
	Lists     []domain.TemplateList
	SetLists  bool
	UpdatedAt string
}

func (r Repo) UpdateTemplate(ctx context.Context, tx *sql.Tx, id string, upd TemplateUpdate) error {
	name := upd.Name
	var listsJSON *string
	if upd.SetLists {
		data, err := json.Marshal(upd.Lists)
		if err != nil {
			return fmt.Errorf("marshal template lists: %w", err)
		}
		s := string(data)
		listsJSON = &s
	}
	if name == nil && listsJSON == nil {
		return nil
	}
	query := `UPDATE task_templates SET updated_at=?`
	args := []any{upd.UpdatedAt}
	if name != nil {
		query += `, name=?`
		args = append(args, *name)
	}
	if listsJSON != nil {
		query += `, lists_json=?`
		args = append(args, *listsJSON)
	}
	query += ` WHERE id=?`
	args = append(args, id)
	res, err := r.exec(tx).ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteTemplate(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := r.exec(tx).ExecContext(ctx, `DELETE FROM task_templates WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
