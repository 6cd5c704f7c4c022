package serviceaccounts

import (
	"context"
	"time"
)

// Repo provides durable storage for service accounts.
type Repo interface {
	Upsert(ctx context.Context, account *ServiceAccount) error
	Get(ctx context.Context, jti string) (*ServiceAccount, error)
	List(ctx context.Context, offset, limit int) ([]*ServiceAccount, error)
	// Revoke flips the revoked flag. Revoking an unknown jti returns
	// ErrNotFound so administrative tooling can distinguish the cases.
	Revoke(ctx context.Context, jti string) error
	// Touch records a successful verification against the account.
	Touch(ctx context.Context, jti string, usedAt time.Time) error
	Delete(ctx context.Context, jti string) error
}
