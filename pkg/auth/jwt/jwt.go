// Package jwt authenticates RS256/384/512 bearer tokens whose signing keys
// are published at a JWKS endpoint.
package jwt

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/rhuss/aython/pkg/auth"
	"github.com/rhuss/aython/pkg/debug"
)

// Config configures token validation. Empty Issuer or Audience skips that
// check.
type Config struct {
	Issuer   string
	Audience string
	JWKSURL  string

	// Claims mapped onto the identity. Defaults: sub, tenant_id, scope, tier.
	UserClaim   string
	TenantClaim string
	ScopesClaim string
	TierClaim   string

	// CacheTTL is how long fetched keys are trusted (default 1h).
	CacheTTL time.Duration

	// HTTPClient fetches the key set. Nil uses a retrying client.
	HTTPClient *http.Client
}

func (c *Config) defaults() {
	if c.UserClaim == "" {
		c.UserClaim = "sub"
	}
	if c.TenantClaim == "" {
		c.TenantClaim = "tenant_id"
	}
	if c.ScopesClaim == "" {
		c.ScopesClaim = "scope"
	}
	if c.TierClaim == "" {
		c.TierClaim = "tier"
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = time.Hour
	}
}

// Authenticator validates JWT bearer tokens.
type Authenticator struct {
	cfg  Config
	keys *keySet
	opts []jwtlib.ParserOption
}

// New creates an Authenticator.
func New(cfg Config) *Authenticator {
	cfg.defaults()

	opts := []jwtlib.ParserOption{jwtlib.WithValidMethods([]string{"RS256", "RS384", "RS512"})}
	if cfg.Issuer != "" {
		opts = append(opts, jwtlib.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwtlib.WithAudience(cfg.Audience))
	}

	return &Authenticator{
		cfg:  cfg,
		keys: newKeySet(cfg.JWKSURL, cfg.CacheTTL, cfg.HTTPClient),
		opts: opts,
	}
}

// Authenticate abstains without a bearer token and votes No for any token
// that fails signature, expiry, issuer, audience or subject checks.
func (a *Authenticator) Authenticate(ctx context.Context, r *http.Request) auth.Result {
	raw, ok := auth.BearerToken(r)
	if !ok {
		return auth.Result{Decision: auth.Abstain}
	}
	if raw == "" {
		return reject(errors.New("empty bearer token"))
	}

	claims := jwtlib.MapClaims{}
	_, err := jwtlib.ParseWithClaims(raw, claims, func(t *jwtlib.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("token has no kid header")
		}
		return a.keys.key(ctx, kid)
	}, a.opts...)
	if err != nil {
		debug.Log("transport", "JWT rejected", "error", err)
		return reject(fmt.Errorf("invalid JWT: %w", err))
	}

	subject := stringClaim(claims, a.cfg.UserClaim)
	if subject == "" {
		return reject(fmt.Errorf("JWT missing %q claim", a.cfg.UserClaim))
	}

	id := &auth.Identity{
		Subject:     subject,
		ServiceTier: stringClaim(claims, a.cfg.TierClaim),
		Scopes:      scopes(claims[a.cfg.ScopesClaim]),
		Metadata:    map[string]string{},
	}
	if tenant := stringClaim(claims, a.cfg.TenantClaim); tenant != "" {
		id.Metadata["tenant_id"] = tenant
	}
	return auth.Result{Decision: auth.Yes, Identity: id}
}

func reject(err error) auth.Result {
	return auth.Result{Decision: auth.No, Err: err}
}

func stringClaim(claims jwtlib.MapClaims, name string) string {
	s, _ := claims[name].(string)
	return s
}

// scopes accepts "a b c" or ["a", "b", "c"].
func scopes(v any) []string {
	var out []string
	switch v := v.(type) {
	case string:
		out = strings.Fields(v)
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
