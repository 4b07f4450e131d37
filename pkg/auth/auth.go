package auth

import (
	"context"
	"errors"
	"net/http"
)

// Decision is an authenticator's vote.
type Decision int

const (
	// Yes accepts the credentials; the chain stops.
	Yes Decision = iota
	// No rejects credentials that were present but invalid; the chain stops.
	No
	// Abstain passes the request to the next authenticator.
	Abstain
)

// Result carries one vote. Identity is set for Yes, Err for No.
type Result struct {
	Decision Decision
	Identity *Identity
	Err      error
}

// Identity is an authenticated caller.
type Identity struct {
	Subject     string
	ServiceTier string
	Scopes      []string
	// Metadata holds provider-specific values. "tenant_id" scopes history.
	Metadata map[string]string
}

// TenantID returns the "tenant_id" metadata value.
func (id *Identity) TenantID() string {
	if id == nil {
		return ""
	}
	return id.Metadata["tenant_id"]
}

// Anonymous is the identity used when authentication is disabled.
func Anonymous() *Identity {
	return &Identity{Subject: "anonymous", ServiceTier: "default"}
}

// Authenticator votes on a request's credentials.
type Authenticator interface {
	Authenticate(ctx context.Context, r *http.Request) Result
}

var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrTooManyRequests = errors.New("rate limit exceeded")
)

// Chain asks its authenticators in order.
type Chain struct {
	Authenticators []Authenticator
	// Default applies when every authenticator abstains. Yes admits the
	// request as Anonymous.
	Default Decision
}

// Authenticate returns the first Yes or No vote, or the default.
func (c *Chain) Authenticate(ctx context.Context, r *http.Request) Result {
	for _, a := range c.Authenticators {
		if res := a.Authenticate(ctx, r); res.Decision != Abstain {
			return res
		}
	}
	if c.Default == Yes {
		return Result{Decision: Yes, Identity: Anonymous()}
	}
	return Result{Decision: No, Err: ErrUnauthenticated}
}

// BearerToken returns the token of an "Authorization: Bearer" header.
// ok is false when the header is missing or uses another scheme.
func BearerToken(r *http.Request) (token string, ok bool) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) < len(prefix) || header[:len(prefix)] != prefix {
		return "", false
	}
	return header[len(prefix):], true
}
