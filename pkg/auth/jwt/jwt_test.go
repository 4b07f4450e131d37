package jwt

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync/atomic"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/rhuss/aython/pkg/auth"
)

const testKID = "aython-test-1"

var signingKey = func() *rsa.PrivateKey {
	k, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		panic(err)
	}
	return k
}()

func jwksServer(t *testing.T, fetches *atomic.Int32) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches.Add(1)
		pub := signingKey.PublicKey
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"keys": []map[string]string{
			{"kty": "EC", "kid": "ignored"},
			{
				"kty": "RSA",
				"kid": testKID,
				"use": "sig",
				"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
			},
		}})
	}))
	t.Cleanup(srv.Close)
	return srv.URL + "/.well-known/jwks.json"
}

func sign(t *testing.T, claims jwtlib.MapClaims, kid string) string {
	t.Helper()
	tok := jwtlib.NewWithClaims(jwtlib.SigningMethodRS256, claims)
	if kid != "" {
		tok.Header["kid"] = kid
	}
	s, err := tok.SignedString(signingKey)
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}
	return s
}

func validClaims() jwtlib.MapClaims {
	return jwtlib.MapClaims{
		"sub": "user-123",
		"iss": "https://auth.example.com",
		"aud": "aython",
		"exp": time.Now().Add(time.Hour).Unix(),
		"iat": time.Now().Unix(),
	}
}

func newAuthn(t *testing.T, override func(*Config)) (*Authenticator, *atomic.Int32) {
	t.Helper()
	fetches := &atomic.Int32{}
	cfg := Config{
		Issuer:   "https://auth.example.com",
		Audience: "aython",
		JWKSURL:  jwksServer(t, fetches),
	}
	if override != nil {
		override(&cfg)
	}
	return New(cfg), fetches
}

func authenticate(a *Authenticator, header string) auth.Result {
	r := httptest.NewRequest(http.MethodPost, "/rpc", nil)
	if header != "" {
		r.Header.Set("Authorization", header)
	}
	return a.Authenticate(context.Background(), r)
}

func TestAuthenticate_Valid(t *testing.T) {
	a, _ := newAuthn(t, nil)
	claims := validClaims()
	claims["tenant_id"] = "org-7"
	claims["tier"] = "premium"
	claims["scope"] = "generate execute"

	res := authenticate(a, "Bearer "+sign(t, claims, testKID))

	if res.Decision != auth.Yes {
		t.Fatalf("Decision = %d, want Yes (err %v)", res.Decision, res.Err)
	}
	id := res.Identity
	if id.Subject != "user-123" || id.TenantID() != "org-7" || id.ServiceTier != "premium" {
		t.Errorf("identity = %+v", id)
	}
	if !slices.Equal(id.Scopes, []string{"generate", "execute"}) {
		t.Errorf("scopes = %v", id.Scopes)
	}
}

func TestAuthenticate_Rejected(t *testing.T) {
	a, _ := newAuthn(t, nil)

	with := func(mod func(jwtlib.MapClaims)) jwtlib.MapClaims {
		c := validClaims()
		mod(c)
		return c
	}

	tests := []struct {
		name   string
		header string
	}{
		{"expired", "Bearer " + sign(t, with(func(c jwtlib.MapClaims) { c["exp"] = time.Now().Add(-time.Hour).Unix() }), testKID)},
		{"wrong audience", "Bearer " + sign(t, with(func(c jwtlib.MapClaims) { c["aud"] = "other" }), testKID)},
		{"wrong issuer", "Bearer " + sign(t, with(func(c jwtlib.MapClaims) { c["iss"] = "https://evil.example.com" }), testKID)},
		{"missing subject", "Bearer " + sign(t, with(func(c jwtlib.MapClaims) { delete(c, "sub") }), testKID)},
		{"missing kid", "Bearer " + sign(t, validClaims(), "")},
		{"unknown kid", "Bearer " + sign(t, validClaims(), "rotated-away")},
		{"garbage", "Bearer not.a.jwt"},
		{"empty", "Bearer "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := authenticate(a, tt.header)
			if res.Decision != auth.No {
				t.Fatalf("Decision = %d, want No", res.Decision)
			}
			if res.Err == nil {
				t.Error("Err = nil")
			}
		})
	}
}

func TestAuthenticate_Abstains(t *testing.T) {
	a, fetches := newAuthn(t, nil)

	for _, h := range []string{"", "Basic dXNlcjpwYXNz"} {
		if res := authenticate(a, h); res.Decision != auth.Abstain {
			t.Errorf("header %q: Decision = %d, want Abstain", h, res.Decision)
		}
	}
	if fetches.Load() != 0 {
		t.Errorf("JWKS fetched %d times for abstained requests", fetches.Load())
	}
}

func TestAuthenticate_CachesKeys(t *testing.T) {
	a, fetches := newAuthn(t, nil)
	token := "Bearer " + sign(t, validClaims(), testKID)

	for range 5 {
		if res := authenticate(a, token); res.Decision != auth.Yes {
			t.Fatalf("Decision = %d, want Yes (err %v)", res.Decision, res.Err)
		}
	}
	if fetches.Load() != 1 {
		t.Errorf("JWKS fetched %d times, want 1", fetches.Load())
	}
}

func TestAuthenticate_RefetchesAfterTTL(t *testing.T) {
	a, fetches := newAuthn(t, func(c *Config) { c.CacheTTL = time.Nanosecond })
	token := "Bearer " + sign(t, validClaims(), testKID)

	authenticate(a, token)
	time.Sleep(time.Millisecond)
	authenticate(a, token)

	if fetches.Load() != 2 {
		t.Errorf("JWKS fetched %d times, want 2", fetches.Load())
	}
}

func TestAuthenticate_CustomClaims(t *testing.T) {
	a, _ := newAuthn(t, func(c *Config) {
		c.UserClaim = "email"
		c.TenantClaim = "org_id"
		c.ScopesClaim = "permissions"
		c.TierClaim = "plan"
	})
	claims := validClaims()
	claims["email"] = "alice@example.com"
	claims["org_id"] = "org-1"
	claims["permissions"] = []any{"generate", 7, "history"}
	claims["plan"] = "batch"

	res := authenticate(a, "Bearer "+sign(t, claims, testKID))

	if res.Decision != auth.Yes {
		t.Fatalf("Decision = %d, want Yes (err %v)", res.Decision, res.Err)
	}
	id := res.Identity
	if id.Subject != "alice@example.com" || id.TenantID() != "org-1" || id.ServiceTier != "batch" {
		t.Errorf("identity = %+v", id)
	}
	if !slices.Equal(id.Scopes, []string{"generate", "history"}) {
		t.Errorf("scopes = %v", id.Scopes)
	}
}

func TestAuthenticate_OptionalIssuerAndAudience(t *testing.T) {
	a, _ := newAuthn(t, func(c *Config) { c.Issuer, c.Audience = "", "" })
	claims := validClaims()
	claims["iss"] = "https://anyone.example.com"
	claims["aud"] = "anything"

	if res := authenticate(a, "Bearer "+sign(t, claims, testKID)); res.Decision != auth.Yes {
		t.Errorf("Decision = %d, want Yes (err %v)", res.Decision, res.Err)
	}
}

func TestScopes(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want []string
	}{
		{"string", "a b  c", []string{"a", "b", "c"}},
		{"array", []any{"a", "b"}, []string{"a", "b"}},
		{"blank string", "  ", nil},
		{"missing", nil, nil},
		{"wrong type", 42, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := scopes(tt.in); !slices.Equal(got, tt.want) {
				t.Errorf("scopes(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
