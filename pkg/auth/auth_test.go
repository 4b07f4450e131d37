package auth

import (
	"context"
	"net/http"
	"testing"
)

type stubAuthn struct {
	result Result
	calls  int
}

func (s *stubAuthn) Authenticate(context.Context, *http.Request) Result {
	s.calls++
	return s.result
}

func TestChain(t *testing.T) {
	yes := Result{Decision: Yes, Identity: &Identity{Subject: "alice"}}
	no := Result{Decision: No, Err: ErrUnauthenticated}
	abstain := Result{Decision: Abstain}

	tests := []struct {
		name        string
		votes       []Result
		def         Decision
		want        Decision
		wantSubject string
	}{
		{"first yes stops", []Result{yes, no}, No, Yes, "alice"},
		{"first no stops", []Result{no, yes}, No, No, ""},
		{"abstain then yes", []Result{abstain, yes}, No, Yes, "alice"},
		{"all abstain rejects", []Result{abstain, abstain}, No, No, ""},
		{"all abstain admits anonymous", []Result{abstain}, Yes, Yes, "anonymous"},
		{"empty chain rejects", nil, No, No, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chain := &Chain{Default: tt.def}
			for _, v := range tt.votes {
				chain.Authenticators = append(chain.Authenticators, &stubAuthn{result: v})
			}

			r, _ := http.NewRequest(http.MethodPost, "/", nil)
			got := chain.Authenticate(context.Background(), r)

			if got.Decision != tt.want {
				t.Fatalf("Decision = %d, want %d", got.Decision, tt.want)
			}
			if tt.want == Yes && got.Identity.Subject != tt.wantSubject {
				t.Errorf("Subject = %q, want %q", got.Identity.Subject, tt.wantSubject)
			}
			if tt.want == No && got.Err == nil {
				t.Error("Err = nil for No decision")
			}
		})
	}
}

func TestChain_StopsAtFirstVote(t *testing.T) {
	second := &stubAuthn{result: Result{Decision: Yes, Identity: &Identity{Subject: "bob"}}}
	chain := &Chain{Authenticators: []Authenticator{
		&stubAuthn{result: Result{Decision: No, Err: ErrUnauthenticated}},
		second,
	}}

	r, _ := http.NewRequest(http.MethodPost, "/", nil)
	chain.Authenticate(context.Background(), r)

	if second.calls != 0 {
		t.Errorf("second authenticator called %d times, want 0", second.calls)
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header    string
		wantToken string
		wantOK    bool
	}{
		{"Bearer abc", "abc", true},
		{"Bearer ", "", true},
		{"bearer abc", "", false},
		{"Basic abc", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		r, _ := http.NewRequest(http.MethodPost, "/", nil)
		if tt.header != "" {
			r.Header.Set("Authorization", tt.header)
		}
		token, ok := BearerToken(r)
		if token != tt.wantToken || ok != tt.wantOK {
			t.Errorf("BearerToken(%q) = %q, %v; want %q, %v", tt.header, token, ok, tt.wantToken, tt.wantOK)
		}
	}
}

func TestIdentity_TenantID(t *testing.T) {
	if got := (&Identity{Metadata: map[string]string{"tenant_id": "org-1"}}).TenantID(); got != "org-1" {
		t.Errorf("TenantID = %q, want org-1", got)
	}
	if got := (&Identity{Subject: "bob"}).TenantID(); got != "" {
		t.Errorf("TenantID without metadata = %q", got)
	}
	var nilID *Identity
	if got := nilID.TenantID(); got != "" {
		t.Errorf("TenantID on nil = %q", got)
	}
}

func TestIdentityContext(t *testing.T) {
	ctx := context.Background()
	if IdentityFromContext(ctx) != nil {
		t.Error("expected nil identity from empty context")
	}

	ctx = SetIdentity(ctx, &Identity{Subject: "alice"})
	if got := IdentityFromContext(ctx); got == nil || got.Subject != "alice" {
		t.Errorf("IdentityFromContext = %v, want alice", got)
	}
}
