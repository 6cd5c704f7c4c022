package repofake

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mdvault/authserver/internal/errors"
	"github.com/mdvault/authserver/serviceaccounts"
)

var _ serviceaccounts.Repo = (*FakeServiceAccountRepo)(nil)

// FakeServiceAccountRepo is a thread-safe in-memory service account store.
type FakeServiceAccountRepo struct {
	accounts map[string]*serviceaccounts.ServiceAccount
	lock     sync.RWMutex
}

func NewFakeServiceAccountRepo() *FakeServiceAccountRepo {
	return &FakeServiceAccountRepo{
		accounts: make(map[string]*serviceaccounts.ServiceAccount),
	}
}

func (sr *FakeServiceAccountRepo) Upsert(_ context.Context, account *serviceaccounts.ServiceAccount) error {
	sr.lock.Lock()
	defer sr.lock.Unlock()

	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now()
	}
	copied := *account
	sr.accounts[account.JTI] = &copied
	return nil
}

func (sr *FakeServiceAccountRepo) Get(_ context.Context, jti string) (*serviceaccounts.ServiceAccount, error) {
	sr.lock.RLock()
	defer sr.lock.RUnlock()

	account, ok := sr.accounts[jti]
	if !ok {
		return nil, errors.ErrNotFound
	}
	copied := *account
	return &copied, nil
}

func (sr *FakeServiceAccountRepo) List(_ context.Context, offset, limit int) ([]*serviceaccounts.ServiceAccount, error) {
	sr.lock.RLock()
	defer sr.lock.RUnlock()

	all := make([]*serviceaccounts.ServiceAccount, 0, len(sr.accounts))
	for _, a := range sr.accounts {
		copied := *a
		all = append(all, &copied)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.Before(all[j].CreatedAt) })

	if offset >= len(all) {
		return []*serviceaccounts.ServiceAccount{}, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (sr *FakeServiceAccountRepo) Revoke(_ context.Context, jti string) error {
	sr.lock.Lock()
	defer sr.lock.Unlock()

	account, ok := sr.accounts[jti]
	if !ok {
		return errors.ErrNotFound
	}
	account.Revoked = true
	return nil
}

func (sr *FakeServiceAccountRepo) Touch(_ context.Context, jti string, usedAt time.Time) error {
	sr.lock.Lock()
	defer sr.lock.Unlock()

	account, ok := sr.accounts[jti]
	if !ok {
		return errors.ErrNotFound
	}
	account.LastUsedAt = usedAt
	return nil
}

func (sr *FakeServiceAccountRepo) Delete(_ context.Context, jti string) error {
	sr.lock.Lock()
	defer sr.lock.Unlock()

	delete(sr.accounts, jti)
	return nil
}
