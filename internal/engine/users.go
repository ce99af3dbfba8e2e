package engine

import (
	"context"
	"errors"

	"golang.org/x/crypto/bcrypt"

	"teamboard/internal/domain"
	"teamboard/internal/events"
	"teamboard/internal/repo"
)

// ErrBadCredentials covers both an unknown email and a wrong
// password; login never reveals which.
var ErrBadCredentials = errors.New("invalid email or password")

// RegisterOptions are parameters for creating an account.
type RegisterOptions struct {
	Username string
	Email    string
	Password string
	Role     domain.Role
}

// Register creates a user with a bcrypt password hash. The role
// defaults to user; creating an admin is reserved for the CLI, which
// passes the role explicitly.
func (e Engine) Register(ctx context.Context, opts RegisterOptions) (domain.User, error) {
	if opts.Username == "" || opts.Email == "" {
		return domain.User{}, invalid("username and email are required")
	}
	if len(opts.Password) < 8 {
		return domain.User{}, invalid("password must be at least 8 characters")
	}
	if opts.Role == "" {
		opts.Role = domain.RoleUser
	}
	if opts.Role != domain.RoleUser && opts.Role != domain.RoleAdmin {
		return domain.User{}, invalid("invalid role %q", opts.Role)
	}
	if _, err := e.Repo.GetUserByEmail(ctx, opts.Email); err == nil {
		return domain.User{}, invalid("email %s is already registered", opts.Email)
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.User{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(opts.Password), bcrypt.DefaultCost)
	if err != nil {
		return domain.User{}, err
	}
	now := e.timestamp()
	u := domain.User{
		ID:           newID(),
		Username:     opts.Username,
		Email:        opts.Email,
		PasswordHash: string(hash),
		Role:         opts.Role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.User{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertUser(ctx, tx, u); err != nil {
		return domain.User{}, err
	}
	if err := e.Events.Append(ctx, tx, "user.registered", "", "user", u.ID, u.ID, events.Payload{"email": u.Email}); err != nil {
		return domain.User{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

// Authenticate verifies an email/password pair and returns the user.
func (e Engine) Authenticate(ctx context.Context, email, password string) (domain.User, error) {
	u, err := e.Repo.GetUserByEmail(ctx, email)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.User{}, ErrBadCredentials
	}
	if err != nil {
		return domain.User{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return domain.User{}, ErrBadCredentials
	}
	return u, nil
}

// Identity converts a stored user into the request identity shape.
func (e Engine) Identity(u domain.User) domain.Identity {
	return domain.Identity{ID: u.ID, Username: u.Username, Email: u.Email, Role: u.Role}
}
