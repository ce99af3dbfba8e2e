package engine

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"teamboard/internal/domain"
	"teamboard/internal/engine/authz"
	"teamboard/internal/events"
	"teamboard/internal/repo"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Now    func() time.Time
}

func New(db *sql.DB) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) timestamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

func newID() string { return uuid.NewString() }

// ValidationError indicates a request that is well-formed JSON but
// semantically unacceptable. The HTTP layer maps it to 400.
type ValidationError struct {
	Msg string
}

func (e ValidationError) Error() string { return e.Msg }

func invalid(format string, args ...any) error {
	return ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// --- projects ---

// ProjectCreateOptions are parameters for creating a project.
type ProjectCreateOptions struct {
	Name           string
	Description    string
	StartDate      string
	EndDate        string
	AllocatedHours float64
	TeamMembers    []domain.TeamMember
}

// CreateProject creates a project for the caller. The caller is always
// recorded as a leader on the team, whatever membership the request
// carried; any client-supplied entry for the caller is discarded.
func (e Engine) CreateProject(ctx context.Context, caller domain.Identity, opts ProjectCreateOptions) (domain.Project, error) {
	if opts.Name == "" {
		return domain.Project{}, invalid("project name is required")
	}
	if opts.StartDate == "" || opts.EndDate == "" {
		return domain.Project{}, invalid("start_date and end_date are required")
	}
	members := []domain.TeamMember{{UserID: caller.ID, Role: domain.MemberLeader}}
	for _, m := range opts.TeamMembers {
		if m.UserID == caller.ID {
			continue
		}
		if !m.Role.Valid() {
			return domain.Project{}, invalid("invalid team role %q for user %s", m.Role, m.UserID)
		}
		members = append(members, m)
	}

	now := e.timestamp()
	p := domain.Project{
		ID:             newID(),
		Name:           opts.Name,
		Description:    opts.Description,
		StartDate:      opts.StartDate,
		EndDate:        opts.EndDate,
		AllocatedHours: opts.AllocatedHours,
		CreatorID:      caller.ID,
		TeamMembers:    members,
		CreationStatus: domain.CreationTasks,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertProject(ctx, tx, p); err != nil {
		return domain.Project{}, err
	}
	if err := e.Events.Append(ctx, tx, "project.created", p.ID, "project", p.ID, caller.ID, events.Payload{"name": p.Name}); err != nil {
		return domain.Project{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, err
	}
	return e.Repo.GetProject(ctx, p.ID)
}

func (e Engine) GetProject(ctx context.Context, caller domain.Identity, id string) (domain.Project, error) {
	p, err := e.Repo.GetProject(ctx, id)
	if err != nil {
		return domain.Project{}, err
	}
	if err := authz.RequireProjectRead(caller, p); err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

// ListProjects returns the projects the caller can see: admins see
// everything, everyone else their own memberships.
func (e Engine) ListProjects(ctx context.Context, caller domain.Identity) ([]domain.Project, error) {
	if authz.IsAdmin(caller) {
		return e.Repo.ListProjects(ctx)
	}
	return e.Repo.ListProjectsForUser(ctx, caller.ID)
}

// ListProjectsForUser returns the projects a user belongs to. Callers
// may list their own; admins may list anyone's.
func (e Engine) ListProjectsForUser(ctx context.Context, caller domain.Identity, userID string) ([]domain.Project, error) {
	if userID != caller.ID && !authz.IsAdmin(caller) {
		return nil, authz.AccessDeniedError{Action: "list projects of user " + userID}
	}
	return e.Repo.ListProjectsForUser(ctx, userID)
}

// ProjectUpdateOptions carries a partial project update. Nil fields
// are untouched. SetTeamMembers distinguishes "replace with this set"
// from "field absent".
type ProjectUpdateOptions struct {
	Name           *string
	Description    *string
	StartDate      *string
	EndDate        *string
	AllocatedHours *float64
	CreationStatus *domain.CreationStatus
	TeamMembers    []domain.TeamMember
	SetTeamMembers bool
}

func (e Engine) UpdateProject(ctx context.Context, caller domain.Identity, id string, opts ProjectUpdateOptions) (domain.Project, error) {
	p, err := e.Repo.GetProject(ctx, id)
	if err != nil {
		return domain.Project{}, err
	}
	if err := authz.RequireProjectLeader(caller, p); err != nil {
		return domain.Project{}, err
	}
	if opts.CreationStatus != nil && !opts.CreationStatus.Valid() {
		return domain.Project{}, invalid("invalid creation_status %q", *opts.CreationStatus)
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()

	upd := repo.ProjectUpdate{
		Name:           opts.Name,
		Description:    opts.Description,
		StartDate:      opts.StartDate,
		EndDate:        opts.EndDate,
		AllocatedHours: opts.AllocatedHours,
		CreationStatus: opts.CreationStatus,
		UpdatedAt:      e.timestamp(),
	}
	if err := e.Repo.UpdateProject(ctx, tx, id, upd); err != nil {
		return domain.Project{}, err
	}
	if opts.SetTeamMembers {
		members := []domain.TeamMember{{UserID: p.CreatorID, Role: domain.MemberLeader}}
		for _, m := range opts.TeamMembers {
			if m.UserID == p.CreatorID {
				continue
			}
			if !m.Role.Valid() {
				return domain.Project{}, invalid("invalid team role %q for user %s", m.Role, m.UserID)
			}
			members = append(members, m)
		}
		if err := e.Repo.ReplaceTeamMembers(ctx, tx, id, members); err != nil {
			return domain.Project{}, err
		}
	}
	if err := e.Events.Append(ctx, tx, "project.updated", id, "project", id, caller.ID, nil); err != nil {
		return domain.Project{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, err
	}
	return e.Repo.GetProject(ctx, id)
}

// DeleteProject removes the project and everything under it: lists,
// tasks, assignments, subtasks and team memberships, in one
// transaction. Either the whole tree goes or none of it does.
func (e Engine) DeleteProject(ctx context.Context, caller domain.Identity, id string) error {
	p, err := e.Repo.GetProject(ctx, id)
	if err != nil {
		return err
	}
	if err := authz.RequireProjectLeader(caller, p); err != nil {
		return err
	}

	lists, err := e.Repo.ListListsForProject(ctx, id)
	if err != nil {
		return err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, l := range lists {
		if err := e.deleteListTree(ctx, tx, l); err != nil {
			return err
		}
	}
	if err := e.Repo.DeleteProject(ctx, tx, id); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "project.deleted", id, "project", id, caller.ID, events.Payload{"lists": len(lists)}); err != nil {
		return err
	}
	return tx.Commit()
}

// --- lists ---

func (e Engine) CreateList(ctx context.Context, caller domain.Identity, projectID, name string) (domain.List, error) {
	if name == "" {
		return domain.List{}, invalid("list name is required")
	}
	p, err := e.Repo.GetProject(ctx, projectID)
	if err != nil {
		return domain.List{}, err
	}
	if err := authz.RequireProjectLeader(caller, p); err != nil {
		return domain.List{}, err
	}

	now := e.timestamp()
	l := domain.List{
		ID:        newID(),
		ProjectID: projectID,
		Name:      name,
		Tasks:     []string{},
		CreatedAt: now,
		UpdatedAt: now,
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.List{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertList(ctx, tx, l); err != nil {
		return domain.List{}, err
	}
	if err := e.Events.Append(ctx, tx, "list.created", projectID, "list", l.ID, caller.ID, events.Payload{"name": name}); err != nil {
		return domain.List{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.List{}, err
	}
	return l, nil
}

func (e Engine) GetList(ctx context.Context, caller domain.Identity, id string) (domain.List, error) {
	l, err := e.Repo.GetList(ctx, id)
	if err != nil {
		return domain.List{}, err
	}
	p, err := e.Repo.GetProject(ctx, l.ProjectID)
	if err != nil {
		return domain.List{}, err
	}
	if err := authz.RequireProjectRead(caller, p); err != nil {
		return domain.List{}, err
	}
	return l, nil
}

// ListLists mirrors project visibility: admins see every list, other
// callers the lists of projects they belong to.
func (e Engine) ListLists(ctx context.Context, caller domain.Identity) ([]domain.List, error) {
	if authz.IsAdmin(caller) {
		return e.Repo.ListLists(ctx)
	}
	projects, err := e.Repo.ListProjectsForUser(ctx, caller.ID)
	if err != nil {
		return nil, err
	}
	lists := []domain.List{}
	for _, p := range projects {
		ls, err := e.Repo.ListListsForProject(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		lists = append(lists, ls...)
	}
	return lists, nil
}

func (e Engine) ListListsForProject(ctx context.Context, caller domain.Identity, projectID string) ([]domain.List, error) {
	p, err := e.Repo.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if err := authz.RequireProjectRead(caller, p); err != nil {
		return nil, err
	}
	return e.Repo.ListListsForProject(ctx, projectID)
}

func (e Engine) UpdateList(ctx context.Context, caller domain.Identity, id, name string) (domain.List, error) {
	if name == "" {
		return domain.List{}, invalid("list name is required")
	}
	l, err := e.Repo.GetList(ctx, id)
	if err != nil {
		return domain.List{}, err
	}
	p, err := e.Repo.GetProject(ctx, l.ProjectID)
	if err != nil {
		return domain.List{}, err
	}
	if err := authz.RequireProjectLeader(caller, p); err != nil {
		return domain.List{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.List{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.UpdateListName(ctx, tx, id, name, e.timestamp()); err != nil {
		return domain.List{}, err
	}
	if err := e.Events.Append(ctx, tx, "list.updated", l.ProjectID, "list", id, caller.ID, events.Payload{"name": name}); err != nil {
		return domain.List{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.List{}, err
	}
	return e.Repo.GetList(ctx, id)
}

// DeleteList removes the list with its tasks, their assignments and
// subtasks, in one transaction.
func (e Engine) DeleteList(ctx context.Context, caller domain.Identity, id string) error {
	l, err := e.Repo.GetList(ctx, id)
	if err != nil {
		return err
	}
	p, err := e.Repo.GetProject(ctx, l.ProjectID)
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

	if err := e.deleteListTree(ctx, tx, l); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "list.deleted", l.ProjectID, "list", id, caller.ID, events.Payload{"tasks": len(l.Tasks)}); err != nil {
		return err
	}
	return tx.Commit()
}

// deleteListTree deletes a list's tasks then the list itself within
// the caller's transaction.
func (e Engine) deleteListTree(ctx context.Context, tx *sql.Tx, l domain.List) error {
	for _, taskID := range l.Tasks {
		if err := e.Repo.DeleteTask(ctx, tx, taskID); err != nil {
			return fmt.Errorf("delete task %s: %w", taskID, err)
		}
	}
	return e.Repo.DeleteList(ctx, tx, l.ID)
}
