package sessions

import "time"

// Session represents an authenticated browser session. Sessions are created
// on successful login with a fixed TTL and are only ever extended by a fresh
// login, never renewed in place.
type Session struct {
	ID        string    // Unique session identifier (UUID)
	UserID    string    // Owning user
	UserEmail string    // Denormalised for logging and login-hint rendering
	ExpiresAt time.Time // Fixed at creation
	CreatedAt time.Time
}

// Expired reports whether the session is past its expiry at the given time.
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}
