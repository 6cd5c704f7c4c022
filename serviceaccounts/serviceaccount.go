package serviceaccounts

import "time"

// ServiceAccount is a non-interactive principal issued a long-lived token.
// The token's jti claim is the join key to this record; a service token
// whose jti has no record is treated as revoked. The record's ExpiresAt is
// an administratively-settable expiry enforced independently of the JWT's
// own exp claim; either one being past rejects the token.
type ServiceAccount struct {
	JTI        string // Unique, matches the token's jti claim
	Name       string
	Scope      string
	Revoked    bool
	ExpiresAt  time.Time // Zero means no store-side expiry
	CreatedAt  time.Time
	LastUsedAt time.Time // Updated on each successful verification
}

// Expired reports whether the store-side expiry has passed. A zero
// ExpiresAt never expires.
func (sa *ServiceAccount) Expired(now time.Time) bool {
	return !sa.ExpiresAt.IsZero() && now.After(sa.ExpiresAt)
}

// Active reports whether a token referencing this record should be accepted.
func (sa *ServiceAccount) Active(now time.Time) bool {
	return !sa.Revoked && !sa.Expired(now)
}
