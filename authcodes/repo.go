package authcodes

import (
	"context"
	"time"
)

// Repo provides durable storage for authorization codes.
type Repo interface {
	Create(ctx context.Context, code *AuthorizationCode) error
	// Consume atomically removes and returns the code record. Of two
	// concurrent calls for the same code exactly one receives the record;
	// the other receives ErrNotFound. Expiry is not checked here; callers
	// decide what an expired-but-present record means.
	Consume(ctx context.Context, code string) (*AuthorizationCode, error)
	// DeleteExpired removes all codes whose expiry is before now and
	// returns how many were removed.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}
