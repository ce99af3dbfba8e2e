package repo

import (
	"context"
	"database/sql"

	"teamboard/internal/domain"
)

func (r Repo) InsertUser(ctx context.Context, tx *sql.Tx, u domain.User) error {
	_, err := r.exec(tx).ExecContext(ctx, `INSERT INTO users(id,username,email,password_hash,role,created_at,updated_at) VALUES (?,?,?,?,?,?,?)`,
		u.ID, u.Username, u.Email, u.PasswordHash, string(u.Role), u.CreatedAt, u.UpdatedAt)
	return err
}

func (r Repo) GetUser(ctx context.Context, id string) (domain.User, error) {
	return r.queryUser(ctx, `SELECT id,username,email,password_hash,role,created_at,updated_at FROM users WHERE id=?`, id)
}

func (r Repo) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	return r.queryUser(ctx, `SELECT id,username,email,password_hash,role,created_at,updated_at FROM users WHERE email=?`, email)
}

func (r Repo) queryUser(ctx context.Context, query string, args ...any) (domain.User, error) {
	var u domain.User
	err := r.DB.QueryRowContext(ctx, query, args...).
		Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Role, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	return u, err
}

func (r Repo) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,username,email,password_hash,role,created_at,updated_at FROM users ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.User
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Role, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, u)
	}
	return res, rows.Err()
}
