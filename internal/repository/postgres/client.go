package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mdvault/authserver/clients"
	srverrors "github.com/mdvault/authserver/internal/errors"
)

var _ clients.Repo = (*ClientRepository)(nil)

type ClientRepository struct {
	db *Connection
}

func NewClientRepository(db *Connection) *ClientRepository {
	return &ClientRepository{
		db: db,
	}
}

func (r *ClientRepository) Upsert(ctx context.Context, client *clients.Client) error {
	query := `INSERT INTO oauth_clients
			  (id, secret, name, redirect_uris, grant_types, response_types,
			   token_endpoint_auth_method, created_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			  ON CONFLICT (id) DO UPDATE
			  SET secret = EXCLUDED.secret, name = EXCLUDED.name,
			      redirect_uris = EXCLUDED.redirect_uris, grant_types = EXCLUDED.grant_types,
			      response_types = EXCLUDED.response_types,
			      token_endpoint_auth_method = EXCLUDED.token_endpoint_auth_method`

	_, err := r.db.Exec(ctx, query,
		client.ID, client.Secret, client.Name, client.RedirectURIs, client.GrantTypes,
		client.ResponseTypes, client.TokenEndpointAuthMethod, client.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert client: %w", err)
	}
	return nil
}

func (r *ClientRepository) Get(ctx context.Context, clientID string) (*clients.Client, error) {
	query := `SELECT id, secret, name, redirect_uris, grant_types, response_types,
			         token_endpoint_auth_method, created_at
			  FROM oauth_clients WHERE id = $1`
	return r.scanClient(r.db.QueryRow(ctx, query, clientID))
}

func (r *ClientRepository) List(ctx context.Context, offset, limit int) ([]*clients.Client, error) {
	query := `SELECT id, secret, name, redirect_uris, grant_types, response_types,
			         token_endpoint_auth_method, created_at
			  FROM oauth_clients ORDER BY created_at
			  OFFSET $1 LIMIT CASE WHEN $2 <= 0 THEN NULL ELSE $2 END`

	rows, err := r.db.Query(ctx, query, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}
	defer rows.Close()

	var result []*clients.Client
	for rows.Next() {
		client, err := r.scanClient(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, client)
	}
	return result, rows.Err()
}

func (r *ClientRepository) Delete(ctx context.Context, clientID string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM oauth_clients WHERE id = $1`, clientID); err != nil {
		return fmt.Errorf("failed to delete client: %w", err)
	}
	return nil
}

func (r *ClientRepository) scanClient(row pgx.Row) (*clients.Client, error) {
	var client clients.Client
	err := row.Scan(
		&client.ID, &client.Secret, &client.Name, &client.RedirectURIs, &client.GrantTypes,
		&client.ResponseTypes, &client.TokenEndpointAuthMethod, &client.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, srverrors.ErrInvalidClient
		}
		return nil, fmt.Errorf("failed to scan client: %w", err)
	}
	return &client, nil
}
