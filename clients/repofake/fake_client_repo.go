package repofake

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mdvault/authserver/clients"
	"github.com/mdvault/authserver/internal/errors"
)

var _ clients.Repo = (*FakeClientRepo)(nil)

// FakeClientRepo is a thread-safe in-memory client store.
type FakeClientRepo struct {
	clients map[string]*clients.Client
	lock    sync.RWMutex
}

func NewFakeClientRepo() *FakeClientRepo {
	return &FakeClientRepo{
		clients: make(map[string]*clients.Client),
	}
}

func (cr *FakeClientRepo) Upsert(_ context.Context, client *clients.Client) error {
	cr.lock.Lock()
	defer cr.lock.Unlock()

	if client.ID == "" {
		client.ID = uuid.New().String()
	}
	if client.CreatedAt.IsZero() {
		client.CreatedAt = time.Now()
	}
	copied := *client
	cr.clients[client.ID] = &copied
	return nil
}

func (cr *FakeClientRepo) Get(_ context.Context, clientID string) (*clients.Client, error) {
	cr.lock.RLock()
	defer cr.lock.RUnlock()

	client, ok := cr.clients[clientID]
	if !ok {
		return nil, errors.ErrInvalidClient
	}
	copied := *client
	return &copied, nil
}

func (cr *FakeClientRepo) List(_ context.Context, offset, limit int) ([]*clients.Client, error) {
	cr.lock.RLock()
	defer cr.lock.RUnlock()

	all := make([]*clients.Client, 0, len(cr.clients))
	for _, c := range cr.clients {
		copied := *c
		all = append(all, &copied)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })

	if offset >= len(all) {
		return []*clients.Client{}, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (cr *FakeClientRepo) Delete(_ context.Context, clientID string) error {
	cr.lock.Lock()
	defer cr.lock.Unlock()

	delete(cr.clients, clientID)
	return nil
}
