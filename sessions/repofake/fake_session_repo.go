package repofake

import (
	"context"
	"sync"
	"time"

	"github.com/mdvault/authserver/internal/errors"
	"github.com/mdvault/authserver/sessions"
)

var _ sessions.Repo = (*FakeSessionRepo)(nil)

// FakeSessionRepo is a thread-safe in-memory session store.
type FakeSessionRepo struct {
	sessions map[string]*sessions.Session
	lock     sync.RWMutex
}

func NewFakeSessionRepo() *FakeSessionRepo {
	return &FakeSessionRepo{
		sessions: make(map[string]*sessions.Session),
	}
}

func (sr *FakeSessionRepo) Upsert(_ context.Context, session *sessions.Session) error {
	sr.lock.Lock()
	defer sr.lock.Unlock()

	copied := *session
	sr.sessions[session.ID] = &copied
	return nil
}

func (sr *FakeSessionRepo) Get(_ context.Context, sessionID string) (*sessions.Session, error) {
	sr.lock.RLock()
	defer sr.lock.RUnlock()

	session, ok := sr.sessions[sessionID]
	if !ok {
		return nil, errors.ErrSessionNotFound
	}
	copied := *session
	return &copied, nil
}

func (sr *FakeSessionRepo) Delete(_ context.Context, sessionID string) error {
	sr.lock.Lock()
	defer sr.lock.Unlock()

	delete(sr.sessions, sessionID)
	return nil
}

func (sr *FakeSessionRepo) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	sr.lock.Lock()
	defer sr.lock.Unlock()

	removed := 0
	for id, session := range sr.sessions {
		if session.Expired(now) {
			delete(sr.sessions, id)
			removed++
		}
	}
	return removed, nil
}
