package clients

import "context"

// Repo provides durable storage for registered OAuth2 clients.
type Repo interface {
	Upsert(ctx context.Context, client *Client) error
	Get(ctx context.Context, clientID string) (*Client, error)
	List(ctx context.Context, offset, limit int) ([]*Client, error)
	Delete(ctx context.Context, clientID string) error
}
