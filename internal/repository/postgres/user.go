package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	srverrors "github.com/mdvault/authserver/internal/errors"
	"github.com/mdvault/authserver/users"
)

var _ users.Repo = (*UserRepository)(nil)

type UserRepository struct {
	db *Connection
}

func NewUserRepository(db *Connection) *UserRepository {
	return &UserRepository{
		db: db,
	}
}

func (r *UserRepository) Upsert(ctx context.Context, user *users.User) error {
	query := `INSERT INTO users (id, email, password_hash, role, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6)
			  ON CONFLICT (id) DO UPDATE
			  SET email = EXCLUDED.email, password_hash = EXCLUDED.password_hash,
			      role = EXCLUDED.role, updated_at = EXCLUDED.updated_at`

	_, err := r.db.Exec(ctx, query,
		user.ID, user.Email, user.PasswordHash, string(user.Role), user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}
	return nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*users.User, error) {
	query := `SELECT id, email, password_hash, role, created_at, updated_at
			  FROM users WHERE email = $1`
	return r.scanUser(r.db.QueryRow(ctx, query, email))
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*users.User, error) {
	query := `SELECT id, email, password_hash, role, created_at, updated_at
			  FROM users WHERE id = $1`
	return r.scanUser(r.db.QueryRow(ctx, query, id))
}

func (r *UserRepository) List(ctx context.Context, offset, limit int) ([]*users.User, error) {
	query := `SELECT id, email, password_hash, role, created_at, updated_at
			  FROM users ORDER BY created_at
			  OFFSET $1 LIMIT CASE WHEN $2 <= 0 THEN NULL ELSE $2 END`

	rows, err := r.db.Query(ctx, query, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var result []*users.User
	for rows.Next() {
		user, err := r.scanUser(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, user)
	}
	return result, rows.Err()
}

func (r *UserRepository) SetRole(ctx context.Context, email string, role users.RoleType) error {
	tag, err := r.db.Exec(ctx, `UPDATE users SET role = $1, updated_at = now() WHERE email = $2`,
		string(role), email)
	if err != nil {
		return fmt.Errorf("failed to set user role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return srverrors.ErrUserNotFound
	}
	return nil
}

func (r *UserRepository) scanUser(row pgx.Row) (*users.User, error) {
	var user users.User
	var role string
	err := row.Scan(&user.ID, &user.Email, &user.PasswordHash, &role, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, srverrors.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	user.Role = users.RoleType(role)
	return &user, nil
}
