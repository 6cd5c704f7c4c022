package token

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	srverrors "github.com/mdvault/authserver/internal/errors"
	"github.com/mdvault/authserver/serviceaccounts"
	"github.com/mdvault/authserver/token/keys"
)

const (
	jtiByteLength = 16

	defaultAccessTokenExpiry  = time.Hour
	defaultServiceTokenExpiry = 10 * 365 * 24 * time.Hour
	defaultLeeway             = 30 * time.Second
)

// Claims is the verified, trusted view of a bearer token.
type Claims struct {
	Subject   string
	Scope     string
	JTI       string
	Service   bool // svc claim: token belongs to a service account
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Service mints and verifies signed bearer tokens. A Service constructed
// with a signer verifies against its own key (local mode); one constructed
// with a RemoteKeySet verifies against a fetched JWKS and cannot mint.
type Service struct {
	signer             keys.Signer
	issuer             string
	accounts           serviceaccounts.Repo
	remote             *RemoteKeySet
	accessTokenExpiry  time.Duration
	serviceTokenExpiry time.Duration
	leeway             time.Duration
	nowFunc            func() time.Time
	log                zerolog.Logger
}

// ServiceOption defines a function type to modify the Service instance.
type ServiceOption func(*Service)

// WithNowFunc sets the now time function (primarily for testing)
func WithNowFunc(now func() time.Time) ServiceOption {
	return func(s *Service) {
		s.nowFunc = now
	}
}

// WithTokenExpiry overrides the default access and service token lifetimes.
func WithTokenExpiry(accessTokenExpiry, serviceTokenExpiry time.Duration) ServiceOption {
	return func(s *Service) {
		if accessTokenExpiry > 0 {
			s.accessTokenExpiry = accessTokenExpiry
		}
		if serviceTokenExpiry > 0 {
			s.serviceTokenExpiry = serviceTokenExpiry
		}
	}
}

// WithRemoteKeySet switches verification to remote mode. Used by verify-only
// deployments that do not hold the signing key.
func WithRemoteKeySet(remote *RemoteKeySet) ServiceOption {
	return func(s *Service) {
		s.remote = remote
	}
}

// WithLogger sets the component logger.
func WithLogger(log zerolog.Logger) ServiceOption {
	return func(s *Service) {
		s.log = log
	}
}

// New creates a token Service. signer may be nil for verify-only
// deployments, in which case WithRemoteKeySet is required and CreateToken
// fails with ErrKeyUnavailable.
func New(signer keys.Signer, issuer string, accounts serviceaccounts.Repo, options ...ServiceOption) (*Service, error) {
	if issuer == "" {
		return nil, errors.New("[token.New] issuer is required")
	}
	if accounts == nil {
		return nil, errors.New("[token.New] service account repo is required")
	}

	s := &Service{
		signer:             signer,
		issuer:             issuer,
		accounts:           accounts,
		accessTokenExpiry:  defaultAccessTokenExpiry,
		serviceTokenExpiry: defaultServiceTokenExpiry,
		leeway:             defaultLeeway,
		nowFunc:            time.Now,
		log:                zerolog.Nop(),
	}

	for _, opt := range options {
		opt(s)
	}

	if s.signer == nil && s.remote == nil {
		return nil, errors.New("[token.New] either a signer or a remote key set is required")
	}
	return s, nil
}

// createOptions collects the optional parameters of CreateToken.
type createOptions struct {
	jti      string
	expireIn time.Duration
	service  bool
}

// CreateOption defines a function type to modify token creation.
type CreateOption func(*createOptions)

// WithJTI pins the token ID instead of generating a fresh one. Used when the
// jti must match a pre-created service account record.
func WithJTI(jti string) CreateOption {
	return func(o *createOptions) {
		o.jti = jti
	}
}

// WithExpiresIn sets an explicit token lifetime, taking priority over both
// the service-token and access-token defaults.
func WithExpiresIn(d time.Duration) CreateOption {
	return func(o *createOptions) {
		o.expireIn = d
	}
}

// AsServiceToken marks the token with the svc claim. Service tokens default
// to the long service lifetime and are subject to revocation checks.
func AsServiceToken() CreateOption {
	return func(o *createOptions) {
		o.service = true
	}
}

// CreateToken mints a signed token for subject with the given scope. The
// issuer identity fills both iss and aud. Expiry priority: explicit
// WithExpiresIn, then the service default for svc tokens, then the short
// access default. Callers are responsible for persisting a ServiceAccount
// record when the token represents one.
func (s *Service) CreateToken(subject, scope string, options ...CreateOption) (string, error) {
	if s.signer == nil {
		return "", srverrors.ErrKeyUnavailable
	}

	opts := createOptions{}
	for _, opt := range options {
		opt(&opts)
	}

	jti := opts.jti
	if jti == "" {
		var err error
		jti, err = NewJTI()
		if err != nil {
			return "", errors.Wrap(err, "Service.CreateToken NewJTI")
		}
	}

	expireIn := s.accessTokenExpiry
	switch {
	case opts.expireIn > 0:
		expireIn = opts.expireIn
	case opts.service:
		expireIn = s.serviceTokenExpiry
	}

	now := s.nowFunc()
	claims := jwt.MapClaims{
		"iss":   s.issuer,
		"aud":   s.issuer,
		"sub":   subject,
		"scope": scope,
		"iat":   now.Unix(),
		"exp":   now.Add(expireIn).Unix(),
		"jti":   jti,
	}
	if opts.service {
		claims["svc"] = true
	}

	signed, err := s.signer.Sign(claims)
	if err != nil {
		return "", errors.Wrap(err, "Service.CreateToken Sign")
	}
	return signed, nil
}

// NewJTI returns a fresh random URL-safe token identifier.
func NewJTI() (string, error) {
	buf := make([]byte, jtiByteLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// VerifyToken checks signature, expiry (with leeway), issuer and audience.
// Any failure surfaces as ErrTokenInvalid without detail, to avoid giving
// callers an oracle; specifics go to the internal log only. When
// checkRevocation is set and the token carries svc=true, the jti is looked
// up in the service account store: a missing record, a revoked flag, or a
// past store-side expiry all reject with ErrTokenRevoked.
func (s *Service) VerifyToken(ctx context.Context, rawToken string, checkRevocation bool) (*Claims, error) {
	parsed, err := jwt.Parse(rawToken, s.verificationKey(ctx),
		jwt.WithValidMethods([]string{keys.RS256}),
		jwt.WithLeeway(s.leeway),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.nowFunc),
	)
	if err != nil || !parsed.Valid {
		s.log.Debug().Err(err).Msg("token verification failed")
		return nil, srverrors.ErrTokenInvalid
	}

	mapClaims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, srverrors.ErrTokenInvalid
	}

	claims := claimsFromMap(mapClaims)

	if claims.Service && checkRevocation {
		if err := s.checkServiceAccount(ctx, claims.JTI); err != nil {
			return nil, err
		}
	}
	return claims, nil
}

func (s *Service) verificationKey(ctx context.Context) jwt.Keyfunc {
	if s.remote != nil {
		return func(token *jwt.Token) (any, error) {
			return s.remote.VerificationKey(ctx, token)
		}
	}
	return s.signer.GetVerificationKey
}

// checkServiceAccount fails closed: an absent record means the account was
// deleted and its still-unexpired tokens must stop working.
func (s *Service) checkServiceAccount(ctx context.Context, jti string) error {
	account, err := s.accounts.Get(ctx, jti)
	if err != nil {
		if errors.Is(err, srverrors.ErrNotFound) {
			s.log.Debug().Str("jti", jti).Msg("service token with no account record")
			return srverrors.ErrTokenRevoked
		}
		return errors.Wrap(err, "Service.checkServiceAccount Get")
	}

	if !account.Active(s.nowFunc()) {
		s.log.Debug().Str("jti", jti).Bool("revoked", account.Revoked).Msg("service token revoked")
		return srverrors.ErrTokenRevoked
	}

	// Best effort usage tracking, never blocks verification.
	if err := s.accounts.Touch(ctx, jti, s.nowFunc()); err != nil {
		s.log.Debug().Err(err).Str("jti", jti).Msg("failed to touch service account")
	}
	return nil
}

// AccessTokenExpiry reports the configured short token lifetime, used to
// fill expires_in in token responses.
func (s *Service) AccessTokenExpiry() time.Duration {
	return s.accessTokenExpiry
}

func claimsFromMap(mapClaims jwt.MapClaims) *Claims {
	claims := &Claims{}

	claims.Subject, _ = mapClaims["sub"].(string)
	claims.Scope, _ = mapClaims["scope"].(string)
	claims.JTI, _ = mapClaims["jti"].(string)
	claims.Service, _ = mapClaims["svc"].(bool)

	if iat, ok := mapClaims["iat"].(float64); ok {
		claims.IssuedAt = time.Unix(int64(iat), 0)
	}
	if exp, ok := mapClaims["exp"].(float64); ok {
		claims.ExpiresAt = time.Unix(int64(exp), 0)
	}
	return claims
}
