package token_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	srverrors "github.com/mdvault/authserver/internal/errors"
	serviceaccountfake "github.com/mdvault/authserver/serviceaccounts/repofake"
	"github.com/mdvault/authserver/token"
	"github.com/mdvault/authserver/token/keys"
)

// jwksServer serves the signer's key set and can be switched to failing.
func jwksServer(t *testing.T, manager *keys.Manager, failing *atomic.Bool) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if failing.Load() {
			http.Error(w, "unavailable", http.StatusInternalServerError)
			return
		}
		jwks, err := manager.JWKS()
		require.NoError(t, err)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(jwks)
	}))
}

func TestRemoteKeySet_VerifiesAgainstPublishedJWKS(t *testing.T) {
	manager := keys.NewManager(t.TempDir(), false)
	require.NoError(t, manager.EnsureKeys())
	signer, err := manager.Signer()
	require.NoError(t, err)

	var failing atomic.Bool
	server := jwksServer(t, manager, &failing)
	defer server.Close()

	accounts := serviceaccountfake.NewFakeServiceAccountRepo()

	minter, err := token.New(signer, testIssuer, accounts)
	require.NoError(t, err)

	verifier, err := token.New(nil, testIssuer, accounts,
		token.WithRemoteKeySet(token.NewRemoteKeySet(server.URL)),
	)
	require.NoError(t, err)

	signed, err := minter.CreateToken("user-1", "vault:read")
	require.NoError(t, err)

	claims, err := verifier.VerifyToken(context.Background(), signed, true)
	require.NoError(t, err)
	require.Equal(t, "user-1", claims.Subject)
}

func TestRemoteKeySet_ServesStaleSetOnFetchFailure(t *testing.T) {
	manager := keys.NewManager(t.TempDir(), false)
	require.NoError(t, manager.EnsureKeys())
	signer, err := manager.Signer()
	require.NoError(t, err)

	var failing atomic.Bool
	server := jwksServer(t, manager, &failing)
	defer server.Close()

	accounts := serviceaccountfake.NewFakeServiceAccountRepo()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	remote := token.NewRemoteKeySet(server.URL,
		token.WithCacheTTL(time.Minute),
		token.WithRemoteNowFunc(func() time.Time { return now }),
	)

	minter, err := token.New(signer, testIssuer, accounts)
	require.NoError(t, err)
	verifier, err := token.New(nil, testIssuer, accounts, token.WithRemoteKeySet(remote))
	require.NoError(t, err)

	signed, err := minter.CreateToken("user-1", "vault:read")
	require.NoError(t, err)

	// Prime the cache.
	_, err = verifier.VerifyToken(context.Background(), signed, true)
	require.NoError(t, err)

	// Expire the cache and break the endpoint; the stale set still serves.
	now = now.Add(2 * time.Minute)
	failing.Store(true)

	_, err = verifier.VerifyToken(context.Background(), signed, true)
	require.NoError(t, err)
}

func TestRemoteKeySet_FailsClosedWithNoFetchedSet(t *testing.T) {
	manager := keys.NewManager(t.TempDir(), false)
	require.NoError(t, manager.EnsureKeys())
	signer, err := manager.Signer()
	require.NoError(t, err)

	var failing atomic.Bool
	failing.Store(true)
	server := jwksServer(t, manager, &failing)
	defer server.Close()

	accounts := serviceaccountfake.NewFakeServiceAccountRepo()

	minter, err := token.New(signer, testIssuer, accounts)
	require.NoError(t, err)
	verifier, err := token.New(nil, testIssuer, accounts,
		token.WithRemoteKeySet(token.NewRemoteKeySet(server.URL)),
	)
	require.NoError(t, err)

	signed, err := minter.CreateToken("user-1", "vault:read")
	require.NoError(t, err)

	_, err = verifier.VerifyToken(context.Background(), signed, true)
	require.ErrorIs(t, err, srverrors.ErrTokenInvalid)
}

func TestRemoteKeySet_UnknownKidRejected(t *testing.T) {
	// Serve a different key set than the one that signed the token.
	otherManager := keys.NewManager(t.TempDir(), false)
	require.NoError(t, otherManager.EnsureKeys())

	var failing atomic.Bool
	server := jwksServer(t, otherManager, &failing)
	defer server.Close()

	signingManager := keys.NewManager(t.TempDir(), false)
	require.NoError(t, signingManager.EnsureKeys())
	signer, err := signingManager.Signer()
	require.NoError(t, err)

	accounts := serviceaccountfake.NewFakeServiceAccountRepo()

	minter, err := token.New(signer, testIssuer, accounts)
	require.NoError(t, err)
	verifier, err := token.New(nil, testIssuer, accounts,
		token.WithRemoteKeySet(token.NewRemoteKeySet(server.URL)),
	)
	require.NoError(t, err)

	signed, err := minter.CreateToken("user-1", "vault:read")
	require.NoError(t, err)

	_, err = verifier.VerifyToken(context.Background(), signed, true)
	require.ErrorIs(t, err, srverrors.ErrTokenInvalid)
}
