package repofake

import (
	"context"
	"sync"
	"time"

	"github.com/mdvault/authserver/authcodes"
	"github.com/mdvault/authserver/internal/errors"
)

var _ authcodes.Repo = (*FakeCodeRepo)(nil)

// FakeCodeRepo is a thread-safe in-memory authorization code store.
type FakeCodeRepo struct {
	codes map[string]*authcodes.AuthorizationCode
	lock  sync.Mutex
}

func NewFakeCodeRepo() *FakeCodeRepo {
	return &FakeCodeRepo{
		codes: make(map[string]*authcodes.AuthorizationCode),
	}
}

func (cr *FakeCodeRepo) Create(_ context.Context, code *authcodes.AuthorizationCode) error {
	cr.lock.Lock()
	defer cr.lock.Unlock()

	copied := *code
	cr.codes[code.Code] = &copied
	return nil
}

// Consume performs lookup and delete under a single lock acquisition so that
// concurrent exchanges for the same code cannot both succeed.
func (cr *FakeCodeRepo) Consume(_ context.Context, code string) (*authcodes.AuthorizationCode, error) {
	cr.lock.Lock()
	defer cr.lock.Unlock()

	record, ok := cr.codes[code]
	if !ok {
		return nil, errors.ErrNotFound
	}
	delete(cr.codes, code)
	copied := *record
	return &copied, nil
}

func (cr *FakeCodeRepo) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	cr.lock.Lock()
	defer cr.lock.Unlock()

	removed := 0
	for key, record := range cr.codes {
		if record.Expired(now) {
			delete(cr.codes, key)
			removed++
		}
	}
	return removed, nil
}
