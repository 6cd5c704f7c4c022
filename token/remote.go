package token

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/rs/zerolog"
)

const (
	defaultJWKSCacheTTL = time.Hour
	jwksFetchTimeout    = 10 * time.Second
)

// RemoteKeySet resolves verification keys from a published JWKS URL. The
// fetched set is cached with a TTL; when a refresh fails the last good set
// is served stale, because a transient blip at the key publisher must not
// take down verification for every caller. With no set ever fetched the
// key set fails closed.
type RemoteKeySet struct {
	url     string
	ttl     time.Duration
	client  *http.Client
	nowFunc func() time.Time
	log     zerolog.Logger

	mu        sync.Mutex
	cached    jwk.Set
	fetchedAt time.Time
}

// RemoteKeySetOption defines a function type to modify the RemoteKeySet.
type RemoteKeySetOption func(*RemoteKeySet)

// WithCacheTTL overrides the default one hour cache lifetime.
func WithCacheTTL(ttl time.Duration) RemoteKeySetOption {
	return func(r *RemoteKeySet) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// WithHTTPClient overrides the fetch client (primarily for testing).
func WithHTTPClient(client *http.Client) RemoteKeySetOption {
	return func(r *RemoteKeySet) {
		r.client = client
	}
}

// WithRemoteNowFunc sets the now time function (primarily for testing)
func WithRemoteNowFunc(now func() time.Time) RemoteKeySetOption {
	return func(r *RemoteKeySet) {
		r.nowFunc = now
	}
}

// WithRemoteLogger sets the component logger.
func WithRemoteLogger(log zerolog.Logger) RemoteKeySetOption {
	return func(r *RemoteKeySet) {
		r.log = log
	}
}

// NewRemoteKeySet creates a key set over the given JWKS URL.
func NewRemoteKeySet(url string, options ...RemoteKeySetOption) *RemoteKeySet {
	r := &RemoteKeySet{
		url:     url,
		ttl:     defaultJWKSCacheTTL,
		client:  &http.Client{Timeout: jwksFetchTimeout},
		nowFunc: time.Now,
		log:     zerolog.Nop(),
	}
	for _, opt := range options {
		opt(r)
	}
	return r
}

// VerificationKey selects the key matching the token header's kid.
func (r *RemoteKeySet) VerificationKey(ctx context.Context, token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}

	kid, ok := token.Header["kid"].(string)
	if !ok || kid == "" {
		return nil, fmt.Errorf("token header missing kid")
	}

	set, err := r.keySet(ctx)
	if err != nil {
		return nil, err
	}

	key, found := set.LookupKeyID(kid)
	if !found {
		return nil, fmt.Errorf("key ID %s not found in JWKS", kid)
	}

	var rawKey any
	if err := key.Raw(&rawKey); err != nil {
		return nil, fmt.Errorf("failed to extract raw key: %w", err)
	}
	return rawKey, nil
}

func (r *RemoteKeySet) keySet(ctx context.Context) (jwk.Set, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.nowFunc()
	if r.cached != nil && now.Sub(r.fetchedAt) < r.ttl {
		return r.cached, nil
	}

	fetchCtx, cancel := context.WithTimeout(ctx, jwksFetchTimeout)
	defer cancel()

	set, err := jwk.Fetch(fetchCtx, r.url, jwk.WithHTTPClient(r.client))
	if err != nil {
		if r.cached != nil {
			// Stale beats unavailable.
			r.log.Warn().Err(err).Str("url", r.url).Msg("JWKS refresh failed, serving stale set")
			return r.cached, nil
		}
		return nil, fmt.Errorf("failed to fetch JWKS from %s: %w", r.url, err)
	}

	r.cached = set
	r.fetchedAt = now
	return r.cached, nil
}
