package apikey

import (
	"context"
	"net/http"
	"testing"

	"github.com/rhuss/aython/pkg/auth"
)

func newTestAuth() *Authenticator {
	return New([]Key{
		{
			Secret: "sk-test-key-1",
			Identity: auth.Identity{
				Subject:     "alice",
				ServiceTier: "standard",
				Metadata:    map[string]string{"tenant_id": "org-1"},
			},
		},
		{
			Secret:   "sk-test-key-2",
			Identity: auth.Identity{Subject: "bob", ServiceTier: "premium"},
		},
	})
}

func request(header, value string) *http.Request {
	r, _ := http.NewRequest(http.MethodPost, "/", nil)
	if header != "" {
		r.Header.Set(header, value)
	}
	return r
}

func TestAuthenticate(t *testing.T) {
	tests := []struct {
		name        string
		header      string
		value       string
		want        auth.Decision
		wantSubject string
	}{
		{"bearer key", "Authorization", "Bearer sk-test-key-1", auth.Yes, "alice"},
		{"second key", "Authorization", "Bearer sk-test-key-2", auth.Yes, "bob"},
		{"x-api-key header", "X-API-Key", "sk-test-key-2", auth.Yes, "bob"},
		{"wrong key", "Authorization", "Bearer sk-wrong", auth.No, ""},
		{"empty bearer", "Authorization", "Bearer ", auth.No, ""},
		{"basic scheme", "Authorization", "Basic dXNlcjpwYXNz", auth.Abstain, ""},
		{"no credentials", "", "", auth.Abstain, ""},
	}

	a := newTestAuth()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := a.Authenticate(context.Background(), request(tt.header, tt.value))
			if res.Decision != tt.want {
				t.Fatalf("Decision = %d, want %d", res.Decision, tt.want)
			}
			if tt.want == auth.Yes && res.Identity.Subject != tt.wantSubject {
				t.Errorf("Subject = %q, want %q", res.Identity.Subject, tt.wantSubject)
			}
			if tt.want == auth.No && res.Err == nil {
				t.Error("Err = nil for No decision")
			}
		})
	}
}

func TestAuthenticate_IdentityIsCopied(t *testing.T) {
	a := newTestAuth()

	first := a.Authenticate(context.Background(), request("Authorization", "Bearer sk-test-key-1"))
	first.Identity.Metadata["tenant_id"] = "mutated"

	second := a.Authenticate(context.Background(), request("Authorization", "Bearer sk-test-key-1"))
	if got := second.Identity.TenantID(); got != "org-1" {
		t.Errorf("TenantID = %q after mutating an earlier identity, want org-1", got)
	}
}
