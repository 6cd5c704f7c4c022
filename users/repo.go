package users

import "context"

// Repo provides durable storage for users. Email is a uniqueness index.
type Repo interface {
	Upsert(ctx context.Context, user *User) error
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByID(ctx context.Context, id string) (*User, error)
	List(ctx context.Context, offset, limit int) ([]*User, error)
	SetRole(ctx context.Context, email string, role RoleType) error
}
