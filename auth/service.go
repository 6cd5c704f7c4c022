package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mdvault/authserver/authcodes"
	"github.com/mdvault/authserver/clients"
	srverrors "github.com/mdvault/authserver/internal/errors"
	"github.com/mdvault/authserver/security"
	"github.com/mdvault/authserver/serviceaccounts"
	"github.com/mdvault/authserver/sessions"
	"github.com/mdvault/authserver/token"
	"github.com/mdvault/authserver/users"
)

const (
	defaultSessionTTL = 24 * time.Hour
	defaultCodeTTL    = 10 * time.Minute
)

// Repos bundles the storage dependencies of the authorization flow.
type Repos struct {
	Users           users.Repo
	Sessions        sessions.Repo
	Codes           authcodes.Repo
	Clients         clients.Repo
	ServiceAccounts serviceaccounts.Repo
}

// Service implements the authorization code flow with PKCE on top of the
// token service and the entity repositories.
type Service struct {
	repos      Repos
	tokens     *token.Service
	redirect   *security.RedirectValidator
	scopes     *security.PathAllowlist
	sessionTTL time.Duration
	codeTTL    time.Duration
	nowFunc    func() time.Time
	log        zerolog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithNowFunc overrides the clock, used by tests.
func WithNowFunc(nowFunc func() time.Time) Option {
	return func(s *Service) {
		s.nowFunc = nowFunc
	}
}

// WithSessionTTL overrides the login session lifetime.
func WithSessionTTL(ttl time.Duration) Option {
	return func(s *Service) {
		s.sessionTTL = ttl
	}
}

// WithCodeTTL overrides the authorization code lifetime.
func WithCodeTTL(ttl time.Duration) Option {
	return func(s *Service) {
		s.codeTTL = ttl
	}
}

// WithLogger sets the logger used for flow diagnostics.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Service) {
		s.log = log
	}
}

// WithScopeAllowlist overrides the scope vocabulary accepted at
// authorization time.
func WithScopeAllowlist(scopes *security.PathAllowlist) Option {
	return func(s *Service) {
		s.scopes = scopes
	}
}

// New creates the authorization flow service.
func New(repos Repos, tokens *token.Service, redirect *security.RedirectValidator, opts ...Option) (*Service, error) {
	if repos.Users == nil || repos.Sessions == nil || repos.Codes == nil || repos.Clients == nil {
		return nil, srverrors.Wrapf(srverrors.ErrInternal, "[auth.New] repositories must not be nil")
	}
	if tokens == nil {
		return nil, srverrors.Wrapf(srverrors.ErrInternal, "[auth.New] token service must not be nil")
	}
	if redirect == nil {
		redirect = security.NewRedirectValidator(nil)
	}
	s := &Service{
		repos:      repos,
		tokens:     tokens,
		redirect:   redirect,
		scopes:     security.DefaultPathAllowlist(),
		sessionTTL: defaultSessionTTL,
		codeTTL:    defaultCodeTTL,
		nowFunc:    time.Now,
		log:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Login verifies the user's password and creates a session. Unknown email
// and wrong password collapse into the same error so callers cannot probe
// for accounts.
func (s *Service) Login(ctx context.Context, email, password string) (*sessions.Session, error) {
	user, err := s.repos.Users.GetByEmail(ctx, email)
	if err != nil {
		if srverrors.Is(err, srverrors.ErrUserNotFound) {
			return nil, srverrors.Wrapf(srverrors.ErrInvalidCredentials, "[Service.Login]")
		}
		return nil, srverrors.Wrapf(err, "[Service.Login] user lookup")
	}
	if !users.CheckPasswordHash(password, user.PasswordHash) {
		return nil, srverrors.Wrapf(srverrors.ErrInvalidCredentials, "[Service.Login]")
	}

	now := s.nowFunc()
	session := &sessions.Session{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		UserEmail: user.Email,
		ExpiresAt: now.Add(s.sessionTTL),
		CreatedAt: now,
	}
	if err := s.repos.Sessions.Upsert(ctx, session); err != nil {
		return nil, srverrors.Wrapf(err, "[Service.Login] session upsert")
	}
	s.log.Info().Str("user", user.Email).Msg("user logged in")
	return session, nil
}

// Logout removes the session. Unknown sessions are not an error.
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if err := s.repos.Sessions.Delete(ctx, sessionID); err != nil {
		return srverrors.Wrapf(err, "[Service.Logout]")
	}
	return nil
}

// SessionUser resolves a session ID to its user, rejecting expired
// sessions.
func (s *Service) SessionUser(ctx context.Context, sessionID string) (*users.User, *sessions.Session, error) {
	session, err := s.repos.Sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, nil, srverrors.Wrapf(err, "[Service.SessionUser]")
	}
	if session.Expired(s.nowFunc()) {
		return nil, nil, srverrors.Wrapf(srverrors.ErrSessionExpired, "[Service.SessionUser]")
	}
	user, err := s.repos.Users.GetByID(ctx, session.UserID)
	if err != nil {
		return nil, nil, srverrors.Wrapf(err, "[Service.SessionUser] user lookup")
	}
	return user, session, nil
}

// Authorize validates an authorization request against the registered
// client and issues a single-use code bound to the PKCE challenge. The
// caller must already hold a valid session.
func (s *Service) Authorize(ctx context.Context, sessionID string, params *AuthorizeParameters) (*AuthorizationGrant, error) {
	if err := params.Validate(); err != nil {
		return nil, srverrors.Wrapf(err, "[Service.Authorize]")
	}

	user, _, err := s.SessionUser(ctx, sessionID)
	if err != nil {
		if srverrors.Is(err, srverrors.ErrSessionNotFound) || srverrors.Is(err, srverrors.ErrSessionExpired) {
			return nil, srverrors.Wrapf(srverrors.ErrUnauthorized, "[Service.Authorize] no valid session")
		}
		return nil, err
	}

	client, err := s.repos.Clients.Get(ctx, params.ClientID)
	if err != nil {
		return nil, srverrors.Wrapf(err, "[Service.Authorize] client lookup")
	}
	if !client.HasRedirectURI(params.RedirectURI) {
		return nil, srverrors.Wrapf(srverrors.ErrInvalidRedirectURI, "[Service.Authorize] redirect_uri not registered for client %q", client.ID)
	}
	if !s.scopes.KnownScopes(params.Scope) {
		return nil, srverrors.Wrapf(srverrors.ErrInvalidScope, "[Service.Authorize] unknown scope in %q", params.Scope)
	}

	now := s.nowFunc()
	code := &authcodes.AuthorizationCode{
		Code:                newOpaqueValue(),
		CodeChallenge:       params.CodeChallenge,
		CodeChallengeMethod: params.CodeChallengeMethod,
		ClientID:            client.ID,
		RedirectURI:         params.RedirectURI,
		UserID:              user.ID,
		Scope:               params.Scope,
		State:               params.State,
		ExpiresAt:           now.Add(s.codeTTL),
		CreatedAt:           now,
	}
	if err := s.repos.Codes.Create(ctx, code); err != nil {
		return nil, srverrors.Wrapf(err, "[Service.Authorize] code create")
	}

	s.log.Info().Str("client", client.ID).Str("user", user.Email).Msg("authorization code issued")
	return &AuthorizationGrant{
		Code:        code.Code,
		State:       code.State,
		RedirectURI: code.RedirectURI,
	}, nil
}

// Exchange consumes an authorization code and returns an access token.
// The code is removed from storage before any check runs, so a code that
// fails validation is burned and cannot be retried.
func (s *Service) Exchange(ctx context.Context, params *ExchangeParameters) (*TokenResponse, error) {
	if err := params.Validate(); err != nil {
		return nil, srverrors.Wrapf(err, "[Service.Exchange]")
	}

	code, err := s.repos.Codes.Consume(ctx, params.Code)
	if err != nil {
		if srverrors.Is(err, srverrors.ErrNotFound) {
			return nil, srverrors.Wrapf(srverrors.ErrInvalidGrant, "[Service.Exchange] unknown or already used code")
		}
		return nil, srverrors.Wrapf(err, "[Service.Exchange] code consume")
	}

	if code.Expired(s.nowFunc()) {
		return nil, srverrors.Wrapf(srverrors.ErrInvalidGrant, "[Service.Exchange] code expired")
	}
	if code.ClientID != params.ClientID {
		return nil, srverrors.Wrapf(srverrors.ErrInvalidGrant, "[Service.Exchange] client_id mismatch")
	}
	if code.RedirectURI != params.RedirectURI {
		return nil, srverrors.Wrapf(srverrors.ErrInvalidGrant, "[Service.Exchange] redirect_uri mismatch")
	}
	if !verifyCodeChallenge(code.CodeChallenge, params.CodeVerifier) {
		return nil, srverrors.Wrapf(srverrors.ErrInvalidGrant, "[Service.Exchange] code_verifier mismatch")
	}

	client, err := s.repos.Clients.Get(ctx, params.ClientID)
	if err != nil {
		return nil, srverrors.Wrapf(err, "[Service.Exchange] client lookup")
	}
	if !client.SupportsGrantType(params.GrantType) {
		return nil, srverrors.Wrapf(srverrors.ErrInvalidGrant, "[Service.Exchange] client not registered for %q", params.GrantType)
	}
	if client.TokenEndpointAuthMethod == clients.AuthMethodClientSecretPost {
		if subtle.ConstantTimeCompare([]byte(client.Secret), []byte(params.ClientSecret)) != 1 {
			return nil, srverrors.Wrapf(srverrors.ErrInvalidClient, "[Service.Exchange] client authentication failed")
		}
	}

	accessToken, err := s.tokens.CreateToken(code.UserID, code.Scope)
	if err != nil {
		return nil, srverrors.Wrapf(err, "[Service.Exchange] token mint")
	}

	s.log.Info().Str("client", client.ID).Msg("authorization code exchanged")
	return &TokenResponse{
		AccessToken: accessToken,
		TokenType:   "Bearer",
		ExpiresIn:   int(s.tokens.AccessTokenExpiry().Seconds()),
		Scope:       code.Scope,
	}, nil
}

// Register creates a client with server-assigned credentials. Redirect
// URIs must pass the configured policy before anything is stored.
func (s *Service) Register(ctx context.Context, name string, redirectURIs []string) (*clients.Client, error) {
	if name == "" {
		return nil, srverrors.Wrapf(srverrors.ErrInvalidRequest, "[Service.Register] client_name is required")
	}
	if len(redirectURIs) == 0 {
		return nil, srverrors.Wrapf(srverrors.ErrInvalidRequest, "[Service.Register] at least one redirect_uri is required")
	}
	for _, uri := range redirectURIs {
		if err := s.redirect.Validate(uri); err != nil {
			return nil, srverrors.Wrapf(err, "[Service.Register] redirect_uri %q", uri)
		}
	}

	client := &clients.Client{
		ID:                      uuid.NewString(),
		Secret:                  newOpaqueValue(),
		Name:                    name,
		RedirectURIs:            redirectURIs,
		GrantTypes:              []string{AuthorizationCodeGrant},
		ResponseTypes:           []string{CodeResponseType},
		TokenEndpointAuthMethod: clients.AuthMethodClientSecretPost,
		CreatedAt:               s.nowFunc(),
	}
	if err := s.repos.Clients.Upsert(ctx, client); err != nil {
		return nil, srverrors.Wrapf(err, "[Service.Register] client upsert")
	}
	s.log.Info().Str("client", client.ID).Str("name", name).Msg("client registered")
	return client, nil
}

// MintServiceToken issues a long-lived service token and records its JTI
// so it can later be revoked. A zero expiresIn uses the token service
// default.
func (s *Service) MintServiceToken(ctx context.Context, name, scope string, expiresIn time.Duration) (string, *serviceaccounts.ServiceAccount, error) {
	if s.repos.ServiceAccounts == nil {
		return "", nil, srverrors.Wrapf(srverrors.ErrInternal, "[Service.MintServiceToken] service account store not configured")
	}
	if name == "" {
		return "", nil, srverrors.Wrapf(srverrors.ErrInvalidRequest, "[Service.MintServiceToken] name is required")
	}

	jti, err := token.NewJTI()
	if err != nil {
		return "", nil, srverrors.Wrapf(err, "[Service.MintServiceToken]")
	}

	tokenOpts := []token.CreateOption{token.WithJTI(jti), token.AsServiceToken()}
	if expiresIn > 0 {
		tokenOpts = append(tokenOpts, token.WithExpiresIn(expiresIn))
	}
	raw, err := s.tokens.CreateToken(name, scope, tokenOpts...)
	if err != nil {
		return "", nil, srverrors.Wrapf(err, "[Service.MintServiceToken] token mint")
	}

	now := s.nowFunc()
	account := &serviceaccounts.ServiceAccount{
		JTI:       jti,
		Name:      name,
		Scope:     scope,
		CreatedAt: now,
	}
	if expiresIn > 0 {
		account.ExpiresAt = now.Add(expiresIn)
	}
	if err := s.repos.ServiceAccounts.Upsert(ctx, account); err != nil {
		return "", nil, srverrors.Wrapf(err, "[Service.MintServiceToken] account upsert")
	}
	s.log.Info().Str("name", name).Str("jti", jti).Msg("service token minted")
	return raw, account, nil
}

// RevokeServiceAccount marks the account revoked. Verification rejects
// its tokens from that point on.
func (s *Service) RevokeServiceAccount(ctx context.Context, jti string) error {
	if s.repos.ServiceAccounts == nil {
		return srverrors.Wrapf(srverrors.ErrInternal, "[Service.RevokeServiceAccount] service account store not configured")
	}
	if err := s.repos.ServiceAccounts.Revoke(ctx, jti); err != nil {
		return srverrors.Wrapf(err, "[Service.RevokeServiceAccount]")
	}
	s.log.Info().Str("jti", jti).Msg("service account revoked")
	return nil
}

// ListServiceAccounts returns all known service accounts.
func (s *Service) ListServiceAccounts(ctx context.Context) ([]*serviceaccounts.ServiceAccount, error) {
	if s.repos.ServiceAccounts == nil {
		return nil, srverrors.Wrapf(srverrors.ErrInternal, "[Service.ListServiceAccounts] service account store not configured")
	}
	accounts, err := s.repos.ServiceAccounts.List(ctx, 0, 0)
	if err != nil {
		return nil, srverrors.Wrapf(err, "[Service.ListServiceAccounts]")
	}
	return accounts, nil
}

// verifyCodeChallenge applies the S256 transform to the verifier and
// compares it against the stored challenge in constant time.
func verifyCodeChallenge(challenge, verifier string) bool {
	hash := sha256.Sum256([]byte(verifier))
	computed := base64.RawURLEncoding.EncodeToString(hash[:])
	return subtle.ConstantTimeCompare([]byte(computed), []byte(challenge)) == 1
}

// newOpaqueValue returns 32 bytes of randomness in URL-safe form, used
// for authorization codes and client secrets.
func newOpaqueValue() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}
