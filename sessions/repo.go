package sessions

import (
	"context"
	"time"
)

// Repo provides durable storage for login sessions.
type Repo interface {
	Upsert(ctx context.Context, session *Session) error
	Get(ctx context.Context, sessionID string) (*Session, error)
	// Delete removes a session. Deleting an unknown session is not an error.
	Delete(ctx context.Context, sessionID string) error
	// DeleteExpired removes all sessions whose expiry is before now and
	// returns how many were removed.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}
