package storage

import (
	"context"

	"github.com/rhuss/aython/pkg/api"
)

// DefaultListLimit and MaxListLimit bound List page sizes.
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// HistoryStore persists generate-and-execute runs.
// All methods are scoped by the tenant in the context when one is set.
type HistoryStore interface {
	// Save persists a run. The record's TenantID is taken from the
	// context when empty. Returns ErrConflict for duplicate IDs.
	Save(ctx context.Context, rec *api.RunRecord) error

	// Get returns a run by ID or ErrNotFound.
	Get(ctx context.Context, id string) (*api.RunRecord, error)

	// List returns runs, newest first unless opts.Order is "asc".
	List(ctx context.Context, opts ListOptions) ([]*api.RunRecord, error)

	// HealthCheck verifies the backend is reachable.
	HealthCheck(ctx context.Context) error

	Close() error
}

// ListOptions filters and pages List results.
type ListOptions struct {
	// Limit is the page size (default 20, max 100). A negative limit
	// returns every matching run, which history export relies on.
	Limit int
	// Model filters by generation model when non-empty.
	Model string
	// Order is "asc" or "desc" (default) by creation time.
	Order string
	// After returns runs that follow this ID in the chosen order.
	After string
}

// EffectiveLimit applies defaults and bounds to Limit.
// It returns 0 for "no limit".
func (o ListOptions) EffectiveLimit() int {
	switch {
	case o.Limit < 0:
		return 0
	case o.Limit == 0:
		return DefaultListLimit
	case o.Limit > MaxListLimit:
		return MaxListLimit
	default:
		return o.Limit
	}
}
