package authcodes

import "time"

// ChallengeMethodS256 is the only PKCE challenge method this server accepts.
// The plain method is rejected at request validation and never reaches
// storage.
const ChallengeMethodS256 = "S256"

// AuthorizationCode binds a single-use code to the user, client, redirect
// URI and PKCE challenge that produced it. Consuming a code removes the
// record; a code is never reissued.
type AuthorizationCode struct {
	Code                string // Unique, high-entropy
	CodeChallenge       string
	CodeChallengeMethod string
	ClientID            string
	RedirectURI         string // Must match exactly at exchange time
	UserID              string
	Scope               string
	State               string
	ExpiresAt           time.Time
	CreatedAt           time.Time
}

// Expired reports whether the code is past its expiry at the given time.
func (c *AuthorizationCode) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}
