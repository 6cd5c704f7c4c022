package security

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/mdvault/authserver/authcodes"
	"github.com/mdvault/authserver/sessions"
)

// Cleaner periodically deletes expired sessions and authorization codes.
// Sweeps only remove rows already past their expiry, so running concurrently
// with live traffic is safe and the job is idempotent.
type Cleaner struct {
	sessions sessions.Repo
	codes    authcodes.Repo
	interval time.Duration
	nowFunc  func() time.Time
	log      zerolog.Logger
}

// NewCleaner creates a cleaner over the session and code stores.
func NewCleaner(sessionRepo sessions.Repo, codeRepo authcodes.Repo, interval time.Duration, log zerolog.Logger) *Cleaner {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Cleaner{
		sessions: sessionRepo,
		codes:    codeRepo,
		interval: interval,
		nowFunc:  time.Now,
		log:      log,
	}
}

// Run sweeps on the configured interval until ctx is cancelled.
func (c *Cleaner) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Sweep(ctx)
		}
	}
}

// Sweep performs one cleanup pass.
func (c *Cleaner) Sweep(ctx context.Context) {
	now := c.nowFunc()

	removedSessions, err := c.sessions.DeleteExpired(ctx, now)
	if err != nil {
		c.log.Error().Err(err).Msg("failed to delete expired sessions")
	}

	removedCodes, err := c.codes.DeleteExpired(ctx, now)
	if err != nil {
		c.log.Error().Err(err).Msg("failed to delete expired authorization codes")
	}

	if removedSessions > 0 || removedCodes > 0 {
		c.log.Info().
			Int("sessions", removedSessions).
			Int("codes", removedCodes).
			Msg("expired credential cleanup")
	}
}
