package engine

import (
	"context"
	"errors"

	"teamboard/internal/domain"
	"teamboard/internal/engine/authz"
	"teamboard/internal/events"
	"teamboard/internal/repo"
)

// Templates are a global catalog: anyone authenticated may read and
// apply them (applying still requires leadership of the target
// project); only admins may change the catalog itself.

func (e Engine) CreateTemplate(ctx context.Context, caller domain.Identity, name string, lists []domain.TemplateList) (domain.TaskTemplate, error) {
	if !authz.IsAdmin(caller) {
		return domain.TaskTemplate{}, authz.AccessDeniedError{Action: "manage template catalog"}
	}
	if name == "" {
		return domain.TaskTemplate{}, invalid("template name is required")
	}
	now := e.timestamp()
	t := domain.TaskTemplate{
		ID:        newID(),
		Name:      name,
		Lists:     lists,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if t.Lists == nil {
		t.Lists = []domain.TemplateList{}
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.TaskTemplate{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertTemplate(ctx, tx, t); err != nil {
		return domain.TaskTemplate{}, err
	}
	if err := e.Events.Append(ctx, tx, "template.created", "", "template", t.ID, caller.ID, events.Payload{"name": name}); err != nil {
		return domain.TaskTemplate{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.TaskTemplate{}, err
	}
	return t, nil
}

func (e Engine) GetTemplate(ctx context.Context, id string) (domain.TaskTemplate, error) {
	return e.Repo.GetTemplate(ctx, id)
}

func (e Engine) ListTemplates(ctx context.Context) ([]domain.TaskTemplate, error) {
	return e.Repo.ListTemplates(ctx)
}

// TemplateUpdateOptions carries a partial template update.
type TemplateUpdateOptions struct {
	Name     *string
	Lists    []domain.TemplateList
	SetLists bool
}

func (e Engine) UpdateTemplate(ctx context.Context, caller domain.Identity, id string, opts TemplateUpdateOptions) (domain.TaskTemplate, error) {
	if _, err := e.Repo.GetTemplate(ctx, id); err != nil {
		return domain.TaskTemplate{}, err
	}
	if !authz.IsAdmin(caller) {
		return domain.TaskTemplate{}, authz.AccessDeniedError{Action: "manage template catalog"}
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.TaskTemplate{}, err
	}
	defer tx.Rollback()

	upd := repo.TemplateUpdate{
		Name:      opts.Name,
		Lists:     opts.Lists,
		SetLists:  opts.SetLists,
		UpdatedAt: e.timestamp(),
	}
	if err := e.Repo.UpdateTemplate(ctx, tx, id, upd); err != nil {
		return domain.TaskTemplate{}, err
	}
	if err := e.Events.Append(ctx, tx, "template.updated", "", "template", id, caller.ID, nil); err != nil {
		return domain.TaskTemplate{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.TaskTemplate{}, err
	}
	return e.Repo.GetTemplate(ctx, id)
}

func (e Engine) DeleteTemplate(ctx context.Context, caller domain.Identity, id string) error {
	if _, err := e.Repo.GetTemplate(ctx, id); err != nil {
		return err
	}
	if !authz.IsAdmin(caller) {
		return authz.AccessDeniedError{Action: "manage template catalog"}
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := e.Repo.DeleteTemplate(ctx, tx, id); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "template.deleted", "", "template", id, caller.ID, nil); err != nil {
		return err
	}
	return tx.Commit()
}

// ApplyTemplate stamps a template's lists and tasks into a project in
// one transaction. Created tasks start unassigned in todo.
func (e Engine) ApplyTemplate(ctx context.Context, caller domain.Identity, projectID, templateID string) (domain.Project, error) {
	p, err := e.Repo.GetProject(ctx, projectID)
	if err != nil {
		return domain.Project{}, err
	}
	tpl, err := e.Repo.GetTemplate(ctx, templateID)
	if err != nil {
		return domain.Project{}, err
	}
	if err := authz.RequireProjectLeader(caller, p); err != nil {
		return domain.Project{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()

	now := e.timestamp()
	for _, tl := range tpl.Lists {
		l := domain.List{
			ID:        newID(),
			ProjectID: projectID,
			Name:      tl.Name,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := e.Repo.InsertList(ctx, tx, l); err != nil {
			return domain.Project{}, err
		}
		for _, tt := range tl.Tasks {
			t := domain.Task{
				ID:              newID(),
				ListID:          l.ID,
				Name:            tt.Name,
				Description:     tt.Description,
				AssignedMembers: []domain.AssignedMember{},
				Status:          domain.StatusTodo,
				CreatedAt:       now,
				UpdatedAt:       now,
			}
			if err := e.Repo.InsertTask(ctx, tx, t); err != nil {
				return domain.Project{}, err
			}
		}
	}
	if err := e.Events.Append(ctx, tx, "template.applied", projectID, "template", templateID, caller.ID, events.Payload{"template": tpl.Name}); err != nil {
		return domain.Project{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, err
	}
	return e.Repo.GetProject(ctx, projectID)
}

// SeedTemplates upserts templates by name; existing templates keep
// their id and get the seeded shape. Used by the seeding CLI, which
// runs with operator authority rather than a token.
func (e Engine) SeedTemplates(ctx context.Context, templates []domain.TaskTemplate) (int, error) {
	seeded := 0
	for _, tpl := range templates {
		existing, err := e.Repo.GetTemplateByName(ctx, tpl.Name)
		now := e.timestamp()
		tx, txErr := e.DB.BeginTx(ctx, nil)
		if txErr != nil {
			return seeded, txErr
		}
		switch {
		case err == nil:
			name := tpl.Name
			upd := repo.TemplateUpdate{Name: &name, Lists: tpl.Lists, SetLists: true, UpdatedAt: now}
			err = e.Repo.UpdateTemplate(ctx, tx, existing.ID, upd)
		case errors.Is(err, repo.ErrNotFound):
			tpl.ID = newID()
			tpl.CreatedAt = now
			tpl.UpdatedAt = now
			if tpl.Lists == nil {
				tpl.Lists = []domain.TemplateList{}
			}
			err = e.Repo.InsertTemplate(ctx, tx, tpl)
		}
		if err != nil {
			tx.Rollback()
			return seeded, err
		}
		if err := tx.Commit(); err != nil {
			return seeded, err
		}
		seeded++
	}
	return seeded, nil
}
