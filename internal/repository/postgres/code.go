package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mdvault/authserver/authcodes"
	srverrors "github.com/mdvault/authserver/internal/errors"
)

var _ authcodes.Repo = (*CodeRepository)(nil)

type CodeRepository struct {
	db *Connection
}

func NewCodeRepository(db *Connection) *CodeRepository {
	return &CodeRepository{
		db: db,
	}
}

func (r *CodeRepository) Create(ctx context.Context, code *authcodes.AuthorizationCode) error {
	query := `INSERT INTO authorization_codes
			  (code, code_challenge, code_challenge_method, client_id, redirect_uri,
			   user_id, scope, state, expires_at, created_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := r.db.Exec(ctx, query,
		code.Code, code.CodeChallenge, code.CodeChallengeMethod, code.ClientID,
		code.RedirectURI, code.UserID, code.Scope, code.State, code.ExpiresAt, code.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create authorization code: %w", err)
	}
	return nil
}

// Consume relies on DELETE ... RETURNING: the row is removed and read in a
// single statement, so concurrent calls for the same code resolve to one
// winner inside the database.
func (r *CodeRepository) Consume(ctx context.Context, code string) (*authcodes.AuthorizationCode, error) {
	var record authcodes.AuthorizationCode
	query := `DELETE FROM authorization_codes WHERE code = $1
			  RETURNING code, code_challenge, code_challenge_method, client_id, redirect_uri,
			            user_id, scope, state, expires_at, created_at`

	err := r.db.QueryRow(ctx, query, code).Scan(
		&record.Code, &record.CodeChallenge, &record.CodeChallengeMethod, &record.ClientID,
		&record.RedirectURI, &record.UserID, &record.Scope, &record.State,
		&record.ExpiresAt, &record.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, srverrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to consume authorization code: %w", err)
	}
	return &record, nil
}

func (r *CodeRepository) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM authorization_codes WHERE expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired codes: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
