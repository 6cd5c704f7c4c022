package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	srverrors "github.com/mdvault/authserver/internal/errors"
	"github.com/mdvault/authserver/serviceaccounts"
)

var _ serviceaccounts.Repo = (*ServiceAccountRepository)(nil)

type ServiceAccountRepository struct {
	db *Connection
}

func NewServiceAccountRepository(db *Connection) *ServiceAccountRepository {
	return &ServiceAccountRepository{
		db: db,
	}
}

func (r *ServiceAccountRepository) Upsert(ctx context.Context, account *serviceaccounts.ServiceAccount) error {
	query := `INSERT INTO service_accounts
			  (jti, name, scope, revoked, expires_at, created_at, last_used_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7)
			  ON CONFLICT (jti) DO UPDATE
			  SET name = EXCLUDED.name, scope = EXCLUDED.scope, revoked = EXCLUDED.revoked,
			      expires_at = EXCLUDED.expires_at, last_used_at = EXCLUDED.last_used_at`

	_, err := r.db.Exec(ctx, query,
		account.JTI, account.Name, account.Scope, account.Revoked,
		nullableTime(account.ExpiresAt), account.CreatedAt, nullableTime(account.LastUsedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert service account: %w", err)
	}
	return nil
}

func (r *ServiceAccountRepository) Get(ctx context.Context, jti string) (*serviceaccounts.ServiceAccount, error) {
	query := `SELECT jti, name, scope, revoked, expires_at, created_at, last_used_at
			  FROM service_accounts WHERE jti = $1`
	return r.scanAccount(r.db.QueryRow(ctx, query, jti))
}

func (r *ServiceAccountRepository) List(ctx context.Context, offset, limit int) ([]*serviceaccounts.ServiceAccount, error) {
	query := `SELECT jti, name, scope, revoked, expires_at, created_at, last_used_at
			  FROM service_accounts ORDER BY created_at
			  OFFSET $1 LIMIT CASE WHEN $2 <= 0 THEN NULL ELSE $2 END`

	rows, err := r.db.Query(ctx, query, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list service accounts: %w", err)
	}
	defer rows.Close()

	var result []*serviceaccounts.ServiceAccount
	for rows.Next() {
		account, err := r.scanAccount(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, account)
	}
	return result, rows.Err()
}

func (r *ServiceAccountRepository) Revoke(ctx context.Context, jti string) error {
	tag, err := r.db.Exec(ctx, `UPDATE service_accounts SET revoked = TRUE WHERE jti = $1`, jti)
	if err != nil {
		return fmt.Errorf("failed to revoke service account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return srverrors.ErrNotFound
	}
	return nil
}

func (r *ServiceAccountRepository) Touch(ctx context.Context, jti string, usedAt time.Time) error {
	tag, err := r.db.Exec(ctx, `UPDATE service_accounts SET last_used_at = $1 WHERE jti = $2`, usedAt, jti)
	if err != nil {
		return fmt.Errorf("failed to touch service account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return srverrors.ErrNotFound
	}
	return nil
}

func (r *ServiceAccountRepository) Delete(ctx context.Context, jti string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM service_accounts WHERE jti = $1`, jti); err != nil {
		return fmt.Errorf("failed to delete service account: %w", err)
	}
	return nil
}

func (r *ServiceAccountRepository) scanAccount(row pgx.Row) (*serviceaccounts.ServiceAccount, error) {
	var account serviceaccounts.ServiceAccount
	var expiresAt, lastUsedAt *time.Time
	err := row.Scan(
		&account.JTI, &account.Name, &account.Scope, &account.Revoked,
		&expiresAt, &account.CreatedAt, &lastUsedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, srverrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan service account: %w", err)
	}
	if expiresAt != nil {
		account.ExpiresAt = *expiresAt
	}
	if lastUsedAt != nil {
		account.LastUsedAt = *lastUsedAt
	}
	return &account, nil
}

// nullableTime maps the zero time to NULL.
func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
