// Package apikey authenticates static API keys sent as bearer tokens or in
// an X-API-Key header. Only SHA-256 digests of the keys are kept.
package apikey

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"net/http"

	"github.com/rhuss/aython/pkg/auth"
)

// Key is one configured key and the identity it grants.
type Key struct {
	Secret   string
	Identity auth.Identity
}

type entry struct {
	digest   [32]byte
	identity auth.Identity
}

// Authenticator checks keys against a fixed set.
type Authenticator struct {
	entries []entry
}

// New hashes keys and drops the plaintext.
func New(keys []Key) *Authenticator {
	a := &Authenticator{entries: make([]entry, 0, len(keys))}
	for _, k := range keys {
		a.entries = append(a.entries, entry{digest: sha256.Sum256([]byte(k.Secret)), identity: k.Identity})
	}
	return a
}

func presented(r *http.Request) (string, bool) {
	if token, ok := auth.BearerToken(r); ok {
		return token, true
	}
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key, true
	}
	return "", false
}

// Authenticate abstains without credentials and votes No for unknown keys.
// Every entry is compared so timing does not depend on which one matches.
func (a *Authenticator) Authenticate(_ context.Context, r *http.Request) auth.Result {
	key, ok := presented(r)
	if !ok {
		return auth.Result{Decision: auth.Abstain}
	}
	if key == "" {
		return auth.Result{Decision: auth.No, Err: auth.ErrUnauthenticated}
	}

	digest := sha256.Sum256([]byte(key))
	match := -1
	for i, e := range a.entries {
		if subtle.ConstantTimeCompare(digest[:], e.digest[:]) == 1 {
			match = i
		}
	}
	if match < 0 {
		return auth.Result{Decision: auth.No, Err: auth.ErrUnauthenticated}
	}

	id := a.entries[match].identity
	if id.Metadata != nil {
		md := make(map[string]string, len(id.Metadata))
		for k, v := range id.Metadata {
			md[k] = v
		}
		id.Metadata = md
	}
	return auth.Result{Decision: auth.Yes, Identity: &id}
}
