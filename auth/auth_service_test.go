package auth_test

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mdvault/authserver/auth"
	"github.com/mdvault/authserver/authcodes"
	"github.com/mdvault/authserver/authcodes/repofake"
	clientfake "github.com/mdvault/authserver/clients/repofake"
	srverrors "github.com/mdvault/authserver/internal/errors"
	"github.com/mdvault/authserver/security"
	safake "github.com/mdvault/authserver/serviceaccounts/repofake"
	sessionfake "github.com/mdvault/authserver/sessions/repofake"
	"github.com/mdvault/authserver/token"
	"github.com/mdvault/authserver/token/keys"
	"github.com/mdvault/authserver/users"
	userfake "github.com/mdvault/authserver/users/repofake"
)

const (
	testIssuer   = "https://auth.mdvault.example"
	testEmail    = "alice@mdvault.example"
	testPassword = "Str0ng-Passw0rd!"
	testVerifier = "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk-extra"
)

type flowFixture struct {
	service *auth.Service
	tokens  *token.Service
	repos   auth.Repos
	user    *users.User
	now     time.Time
	nowMu   sync.Mutex
}

func (f *flowFixture) nowFunc() time.Time {
	f.nowMu.Lock()
	defer f.nowMu.Unlock()
	return f.now
}

func (f *flowFixture) advance(d time.Duration) {
	f.nowMu.Lock()
	defer f.nowMu.Unlock()
	f.now = f.now.Add(d)
}

func newFlowFixture(t *testing.T) *flowFixture {
	t.Helper()

	keyPair, err := keys.GenerateRSAKeyPair()
	require.NoError(t, err)

	f := &flowFixture{
		now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		repos: auth.Repos{
			Users:           userfake.NewFakeUserRepo(),
			Sessions:        sessionfake.NewFakeSessionRepo(),
			Codes:           repofake.NewFakeCodeRepo(),
			Clients:         clientfake.NewFakeClientRepo(),
			ServiceAccounts: safake.NewFakeServiceAccountRepo(),
		},
	}

	f.tokens, err = token.New(
		keys.NewKeyPairSigner(keyPair),
		testIssuer,
		f.repos.ServiceAccounts,
		token.WithNowFunc(f.nowFunc),
	)
	require.NoError(t, err)

	validator := security.NewRedirectValidator([]string{"app.mdvault.example"})
	f.service, err = auth.New(f.repos, f.tokens, validator, auth.WithNowFunc(f.nowFunc))
	require.NoError(t, err)

	hash, err := users.HashPassword(testPassword)
	require.NoError(t, err)
	f.user = &users.User{
		ID:           "user-1",
		Email:        testEmail,
		PasswordHash: hash,
		Role:         users.RoleMember,
		CreatedAt:    f.now,
	}
	require.NoError(t, f.repos.Users.Upsert(context.Background(), f.user))

	return f
}

func challengeFor(verifier string) string {
	hash := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(hash[:])
}

func (f *flowFixture) registerClient(t *testing.T, redirectURIs ...string) *struct {
	ID     string
	Secret string
} {
	t.Helper()
	client, err := f.service.Register(context.Background(), "vault webapp", redirectURIs)
	require.NoError(t, err)
	return &struct {
		ID     string
		Secret string
	}{ID: client.ID, Secret: client.Secret}
}

func (f *flowFixture) login(t *testing.T) string {
	t.Helper()
	session, err := f.service.Login(context.Background(), testEmail, testPassword)
	require.NoError(t, err)
	return session.ID
}

func (f *flowFixture) authorize(t *testing.T, sessionID, clientID, redirectURI string) *auth.AuthorizationGrant {
	t.Helper()
	grant, err := f.service.Authorize(context.Background(), sessionID, &auth.AuthorizeParameters{
		ClientID:            clientID,
		ResponseType:        auth.CodeResponseType,
		RedirectURI:         redirectURI,
		Scope:               "vault:read vault:write",
		State:               "xyz-state",
		CodeChallenge:       challengeFor(testVerifier),
		CodeChallengeMethod: authcodes.ChallengeMethodS256,
	})
	require.NoError(t, err)
	return grant
}

func TestFullAuthorizationCodeFlow(t *testing.T) {
	f := newFlowFixture(t)
	ctx := context.Background()
	redirectURI := "https://app.mdvault.example/callback"

	client := f.registerClient(t, redirectURI)
	sessionID := f.login(t)
	grant := f.authorize(t, sessionID, client.ID, redirectURI)

	require.NotEmpty(t, grant.Code)
	assert.Equal(t, "xyz-state", grant.State)
	assert.Equal(t, redirectURI, grant.RedirectURI)

	resp, err := f.service.Exchange(ctx, &auth.ExchangeParameters{
		GrantType:    auth.AuthorizationCodeGrant,
		Code:         grant.Code,
		RedirectURI:  redirectURI,
		ClientID:     client.ID,
		ClientSecret: client.Secret,
		CodeVerifier: testVerifier,
	})
	require.NoError(t, err)

	assert.Equal(t, "Bearer", resp.TokenType)
	assert.Equal(t, int(time.Hour.Seconds()), resp.ExpiresIn)
	assert.Equal(t, "vault:read vault:write", resp.Scope)

	claims, err := f.tokens.VerifyToken(ctx, resp.AccessToken, true)
	require.NoError(t, err)
	assert.Equal(t, f.user.ID, claims.Subject)
	assert.Equal(t, "vault:read vault:write", claims.Scope)
	assert.False(t, claims.Service)
}

func TestExchangeAcceptsShortVerifier(t *testing.T) {
	f := newFlowFixture(t)
	ctx := context.Background()
	redirectURI := "https://app.mdvault.example/callback"
	verifier := "verifier123"

	client := f.registerClient(t, redirectURI)
	sessionID := f.login(t)

	grant, err := f.service.Authorize(ctx, sessionID, &auth.AuthorizeParameters{
		ClientID:            client.ID,
		ResponseType:        auth.CodeResponseType,
		RedirectURI:         redirectURI,
		Scope:               "vault:read",
		CodeChallenge:       challengeFor(verifier),
		CodeChallengeMethod: authcodes.ChallengeMethodS256,
	})
	require.NoError(t, err)

	resp, err := f.service.Exchange(ctx, &auth.ExchangeParameters{
		GrantType:    auth.AuthorizationCodeGrant,
		Code:         grant.Code,
		RedirectURI:  redirectURI,
		ClientID:     client.ID,
		ClientSecret: client.Secret,
		CodeVerifier: verifier,
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.AccessToken)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	f := newFlowFixture(t)
	ctx := context.Background()

	_, err := f.service.Login(ctx, testEmail, "wrong-password")
	require.ErrorIs(t, err, srverrors.ErrInvalidCredentials)

	_, err = f.service.Login(ctx, "nobody@mdvault.example", testPassword)
	require.ErrorIs(t, err, srverrors.ErrInvalidCredentials,
		"unknown email must look identical to a wrong password")
}

func TestAuthorizeRequiresValidSession(t *testing.T) {
	f := newFlowFixture(t)
	redirectURI := "https://app.mdvault.example/callback"
	client := f.registerClient(t, redirectURI)

	params := &auth.AuthorizeParameters{
		ClientID:            client.ID,
		ResponseType:        auth.CodeResponseType,
		RedirectURI:         redirectURI,
		CodeChallenge:       challengeFor(testVerifier),
		CodeChallengeMethod: authcodes.ChallengeMethodS256,
	}

	_, err := f.service.Authorize(context.Background(), "no-such-session", params)
	require.ErrorIs(t, err, srverrors.ErrUnauthorized)

	sessionID := f.login(t)
	f.advance(25 * time.Hour)
	_, err = f.service.Authorize(context.Background(), sessionID, params)
	require.ErrorIs(t, err, srverrors.ErrUnauthorized, "expired session must not authorize")
}

func TestAuthorizeRejectsPlainChallengeMethod(t *testing.T) {
	f := newFlowFixture(t)
	redirectURI := "https://app.mdvault.example/callback"
	client := f.registerClient(t, redirectURI)
	sessionID := f.login(t)

	_, err := f.service.Authorize(context.Background(), sessionID, &auth.AuthorizeParameters{
		ClientID:            client.ID,
		ResponseType:        auth.CodeResponseType,
		RedirectURI:         redirectURI,
		CodeChallenge:       challengeFor(testVerifier),
		CodeChallengeMethod: "plain",
	})
	require.ErrorIs(t, err, srverrors.ErrInvalidRequest)
}

func TestAuthorizeRejectsUnknownScope(t *testing.T) {
	f := newFlowFixture(t)
	redirectURI := "https://app.mdvault.example/callback"
	client := f.registerClient(t, redirectURI)
	sessionID := f.login(t)

	_, err := f.service.Authorize(context.Background(), sessionID, &auth.AuthorizeParameters{
		ClientID:            client.ID,
		ResponseType:        auth.CodeResponseType,
		RedirectURI:         redirectURI,
		Scope:               "vault:read root:everything",
		CodeChallenge:       challengeFor(testVerifier),
		CodeChallengeMethod: authcodes.ChallengeMethodS256,
	})
	require.ErrorIs(t, err, srverrors.ErrInvalidScope)
}

func TestAuthorizeRejectsUnregisteredRedirect(t *testing.T) {
	f := newFlowFixture(t)
	client := f.registerClient(t, "https://app.mdvault.example/callback")
	sessionID := f.login(t)

	_, err := f.service.Authorize(context.Background(), sessionID, &auth.AuthorizeParameters{
		ClientID:            client.ID,
		ResponseType:        auth.CodeResponseType,
		RedirectURI:         "https://app.mdvault.example/callback/extra",
		CodeChallenge:       challengeFor(testVerifier),
		CodeChallengeMethod: authcodes.ChallengeMethodS256,
	})
	require.ErrorIs(t, err, srverrors.ErrInvalidRedirectURI,
		"redirect matching must be exact, not prefix based")
}

func TestExchangeCodeIsSingleUse(t *testing.T) {
	f := newFlowFixture(t)
	ctx := context.Background()
	redirectURI := "https://app.mdvault.example/callback"
	client := f.registerClient(t, redirectURI)
	grant := f.authorize(t, f.login(t), client.ID, redirectURI)

	params := &auth.ExchangeParameters{
		GrantType:    auth.AuthorizationCodeGrant,
		Code:         grant.Code,
		RedirectURI:  redirectURI,
		ClientID:     client.ID,
		ClientSecret: client.Secret,
		CodeVerifier: testVerifier,
	}

	_, err := f.service.Exchange(ctx, params)
	require.NoError(t, err)

	_, err = f.service.Exchange(ctx, params)
	require.ErrorIs(t, err, srverrors.ErrInvalidGrant, "second exchange of the same code must fail")
}

func TestExchangeConcurrentUseHasOneWinner(t *testing.T) {
	f := newFlowFixture(t)
	redirectURI := "https://app.mdvault.example/callback"
	client := f.registerClient(t, redirectURI)
	grant := f.authorize(t, f.login(t), client.ID, redirectURI)

	const attempts = 16
	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.service.Exchange(context.Background(), &auth.ExchangeParameters{
				GrantType:    auth.AuthorizationCodeGrant,
				Code:         grant.Code,
				RedirectURI:  redirectURI,
				ClientID:     client.ID,
				ClientSecret: client.Secret,
				CodeVerifier: testVerifier,
			})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	successes := 0
	for err := range results {
		if err == nil {
			successes++
		} else {
			assert.ErrorIs(t, err, srverrors.ErrInvalidGrant)
		}
	}
	assert.Equal(t, 1, successes, "exactly one concurrent exchange may win")
}

func TestExchangeFailedAttemptBurnsCode(t *testing.T) {
	f := newFlowFixture(t)
	ctx := context.Background()
	redirectURI := "https://app.mdvault.example/callback"
	client := f.registerClient(t, redirectURI)
	grant := f.authorize(t, f.login(t), client.ID, redirectURI)

	_, err := f.service.Exchange(ctx, &auth.ExchangeParameters{
		GrantType:    auth.AuthorizationCodeGrant,
		Code:         grant.Code,
		RedirectURI:  redirectURI,
		ClientID:     client.ID,
		ClientSecret: client.Secret,
		CodeVerifier: strings.Repeat("w", 43),
	})
	require.ErrorIs(t, err, srverrors.ErrInvalidGrant)

	_, err = f.service.Exchange(ctx, &auth.ExchangeParameters{
		GrantType:    auth.AuthorizationCodeGrant,
		Code:         grant.Code,
		RedirectURI:  redirectURI,
		ClientID:     client.ID,
		ClientSecret: client.Secret,
		CodeVerifier: testVerifier,
	})
	require.ErrorIs(t, err, srverrors.ErrInvalidGrant,
		"a code that failed verification once must stay unusable")
}

func TestExchangeValidation(t *testing.T) {
	f := newFlowFixture(t)
	ctx := context.Background()
	redirectURI := "https://app.mdvault.example/callback"
	otherRegisteredURI := "https://app.mdvault.example/other"
	client := f.registerClient(t, redirectURI, otherRegisteredURI)
	otherClient := f.registerClient(t, redirectURI)

	newParams := func(t *testing.T) *auth.ExchangeParameters {
		grant := f.authorize(t, f.login(t), client.ID, redirectURI)
		return &auth.ExchangeParameters{
			GrantType:    auth.AuthorizationCodeGrant,
			Code:         grant.Code,
			RedirectURI:  redirectURI,
			ClientID:     client.ID,
			ClientSecret: client.Secret,
			CodeVerifier: testVerifier,
		}
	}

	t.Run("wrong verifier", func(t *testing.T) {
		params := newParams(t)
		params.CodeVerifier = strings.Repeat("x", 43)
		_, err := f.service.Exchange(ctx, params)
		require.ErrorIs(t, err, srverrors.ErrInvalidGrant)
	})

	t.Run("wrong client", func(t *testing.T) {
		params := newParams(t)
		params.ClientID = otherClient.ID
		params.ClientSecret = otherClient.Secret
		_, err := f.service.Exchange(ctx, params)
		require.ErrorIs(t, err, srverrors.ErrInvalidGrant)
	})

	t.Run("wrong redirect", func(t *testing.T) {
		params := newParams(t)
		// Registered for the client, but not the URI the code was bound to.
		params.RedirectURI = otherRegisteredURI
		_, err := f.service.Exchange(ctx, params)
		require.ErrorIs(t, err, srverrors.ErrInvalidGrant)
	})

	t.Run("wrong client secret", func(t *testing.T) {
		params := newParams(t)
		params.ClientSecret = "not-the-secret"
		_, err := f.service.Exchange(ctx, params)
		require.ErrorIs(t, err, srverrors.ErrInvalidClient)
	})

	t.Run("unknown code", func(t *testing.T) {
		params := newParams(t)
		params.Code = "never-issued"
		_, err := f.service.Exchange(ctx, params)
		require.ErrorIs(t, err, srverrors.ErrInvalidGrant)
	})

	t.Run("unsupported grant type", func(t *testing.T) {
		params := newParams(t)
		params.GrantType = "client_credentials"
		_, err := f.service.Exchange(ctx, params)
		require.ErrorIs(t, err, srverrors.ErrInvalidRequest)
	})
}

func TestExchangeExpiredCode(t *testing.T) {
	f := newFlowFixture(t)
	redirectURI := "https://app.mdvault.example/callback"
	client := f.registerClient(t, redirectURI)
	grant := f.authorize(t, f.login(t), client.ID, redirectURI)

	f.advance(11 * time.Minute)

	_, err := f.service.Exchange(context.Background(), &auth.ExchangeParameters{
		GrantType:    auth.AuthorizationCodeGrant,
		Code:         grant.Code,
		RedirectURI:  redirectURI,
		ClientID:     client.ID,
		ClientSecret: client.Secret,
		CodeVerifier: testVerifier,
	})
	require.ErrorIs(t, err, srverrors.ErrInvalidGrant)
}

func TestRegisterValidatesRedirects(t *testing.T) {
	f := newFlowFixture(t)
	ctx := context.Background()

	t.Run("rejects untrusted host", func(t *testing.T) {
		_, err := f.service.Register(ctx, "evil app", []string{"https://evil.example/callback"})
		require.ErrorIs(t, err, srverrors.ErrInvalidRedirectURI)
	})

	t.Run("rejects protocol-relative path", func(t *testing.T) {
		_, err := f.service.Register(ctx, "sneaky app", []string{"//evil.example/callback"})
		require.ErrorIs(t, err, srverrors.ErrInvalidRedirectURI)
	})

	t.Run("requires name and redirect", func(t *testing.T) {
		_, err := f.service.Register(ctx, "", []string{"https://app.mdvault.example/cb"})
		require.ErrorIs(t, err, srverrors.ErrInvalidRequest)

		_, err = f.service.Register(ctx, "app", nil)
		require.ErrorIs(t, err, srverrors.ErrInvalidRequest)
	})

	t.Run("assigns credentials", func(t *testing.T) {
		client, err := f.service.Register(ctx, "good app", []string{"https://app.mdvault.example/cb"})
		require.NoError(t, err)
		assert.NotEmpty(t, client.ID)
		assert.NotEmpty(t, client.Secret)
		assert.Equal(t, []string{auth.AuthorizationCodeGrant}, client.GrantTypes)
	})
}

func TestLogoutEndsSession(t *testing.T) {
	f := newFlowFixture(t)
	ctx := context.Background()
	sessionID := f.login(t)

	_, _, err := f.service.SessionUser(ctx, sessionID)
	require.NoError(t, err)

	require.NoError(t, f.service.Logout(ctx, sessionID))

	_, _, err = f.service.SessionUser(ctx, sessionID)
	require.ErrorIs(t, err, srverrors.ErrSessionNotFound)

	require.NoError(t, f.service.Logout(ctx, sessionID), "logout is idempotent")
}

func TestServiceTokenLifecycle(t *testing.T) {
	f := newFlowFixture(t)
	ctx := context.Background()

	raw, account, err := f.service.MintServiceToken(ctx, "ci-runner", "vault:read", 0)
	require.NoError(t, err)
	require.NotEmpty(t, raw)
	require.NotEmpty(t, account.JTI)
	assert.True(t, account.ExpiresAt.IsZero())

	claims, err := f.tokens.VerifyToken(ctx, raw, true)
	require.NoError(t, err)
	assert.True(t, claims.Service)
	assert.Equal(t, "ci-runner", claims.Subject)
	assert.Equal(t, account.JTI, claims.JTI)

	accounts, err := f.service.ListServiceAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, accounts, 1)

	require.NoError(t, f.service.RevokeServiceAccount(ctx, account.JTI))

	_, err = f.tokens.VerifyToken(ctx, raw, true)
	require.ErrorIs(t, err, srverrors.ErrTokenRevoked)

	err = f.service.RevokeServiceAccount(ctx, "unknown-jti")
	require.ErrorIs(t, err, srverrors.ErrNotFound)
}

func TestMintServiceTokenWithExpiry(t *testing.T) {
	f := newFlowFixture(t)
	ctx := context.Background()

	raw, account, err := f.service.MintServiceToken(ctx, "short-lived", "dashboard", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, f.nowFunc().Add(time.Hour), account.ExpiresAt)

	f.advance(2 * time.Hour)
	_, err = f.tokens.VerifyToken(ctx, raw, true)
	require.Error(t, err, "token past its account expiry must be rejected")
}
