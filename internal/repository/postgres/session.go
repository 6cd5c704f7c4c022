package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	srverrors "github.com/mdvault/authserver/internal/errors"
	"github.com/mdvault/authserver/sessions"
)

var _ sessions.Repo = (*SessionRepository)(nil)

type SessionRepository struct {
	db *Connection
}

func NewSessionRepository(db *Connection) *SessionRepository {
	return &SessionRepository{
		db: db,
	}
}

func (r *SessionRepository) Upsert(ctx context.Context, session *sessions.Session) error {
	query := `INSERT INTO sessions (id, user_id, user_email, expires_at, created_at)
			  VALUES ($1, $2, $3, $4, $5)
			  ON CONFLICT (id) DO UPDATE
			  SET user_id = EXCLUDED.user_id, user_email = EXCLUDED.user_email,
			      expires_at = EXCLUDED.expires_at`

	_, err := r.db.Exec(ctx, query,
		session.ID, session.UserID, session.UserEmail, session.ExpiresAt, session.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert session: %w", err)
	}
	return nil
}

func (r *SessionRepository) Get(ctx context.Context, sessionID string) (*sessions.Session, error) {
	var session sessions.Session
	query := `SELECT id, user_id, user_email, expires_at, created_at
			  FROM sessions WHERE id = $1`

	err := r.db.QueryRow(ctx, query, sessionID).Scan(
		&session.ID, &session.UserID, &session.UserEmail, &session.ExpiresAt, &session.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, srverrors.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &session, nil
}

func (r *SessionRepository) Delete(ctx context.Context, sessionID string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (r *SessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM sessions WHERE expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
