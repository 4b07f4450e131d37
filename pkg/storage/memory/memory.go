// Package memory provides an in-memory HistoryStore for tests and
// single-process deployments. Runs are lost when the process restarts.
// Optional LRU eviction limits memory usage.
package memory

import (
	"container/list"
	"context"
	"sort"
	"sync"

	"github.com/rhuss/aython/pkg/api"
	"github.com/rhuss/aython/pkg/storage"
)

// entry holds a stored run and its LRU position.
type entry struct {
	rec     *api.RunRecord
	lruElem *list.Element
}

// Store is an in-memory HistoryStore with optional LRU eviction.
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry
	lruList *list.List // front = most recently used
	maxSize int        // 0 = unlimited
}

var _ storage.HistoryStore = (*Store)(nil)

// New creates a new in-memory store. If maxSize is 0, the store grows
// without limit. If maxSize > 0, the least recently used run is evicted
// when the limit is reached.
func New(maxSize int) *Store {
	return &Store{
		entries: make(map[string]*entry),
		lruList: list.New(),
		maxSize: maxSize,
	}
}

// Save stores a copy of rec.
func (s *Store) Save(ctx context.Context, rec *api.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[rec.ID]; exists {
		return storage.ErrConflict
	}

	stored := *rec
	if stored.TenantID == "" {
		stored.TenantID = storage.GetTenant(ctx)
	}

	if s.maxSize > 0 && len(s.entries) >= s.maxSize {
		s.evictOldest()
	}

	elem := s.lruList.PushFront(rec.ID)
	s.entries[rec.ID] = &entry{rec: &stored, lruElem: elem}
	return nil
}

// Get retrieves a run by ID and marks it recently used.
func (s *Store) Get(ctx context.Context, id string) (*api.RunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok || !visible(ctx, e.rec) {
		return nil, storage.ErrNotFound
	}
	s.lruList.MoveToFront(e.lruElem)

	out := *e.rec
	return &out, nil
}

// List returns runs filtered by tenant and model, ordered by creation time.
func (s *Store) List(ctx context.Context, opts storage.ListOptions) ([]*api.RunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matches []*api.RunRecord
	for _, e := range s.entries {
		if !visible(ctx, e.rec) {
			continue
		}
		if opts.Model != "" && e.rec.Model != opts.Model {
			continue
		}
		rec := *e.rec
		matches = append(matches, &rec)
	}

	asc := opts.Order == "asc"
	sort.Slice(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			if asc {
				return a.CreatedAt.Before(b.CreatedAt)
			}
			return a.CreatedAt.After(b.CreatedAt)
		}
		if asc {
			return a.ID < b.ID
		}
		return a.ID > b.ID
	})

	if opts.After != "" {
		idx := -1
		for i, r := range matches {
			if r.ID == opts.After {
				idx = i
				break
			}
		}
		if idx >= 0 {
			matches = matches[idx+1:]
		} else {
			matches = nil
		}
	}

	if limit := opts.EffectiveLimit(); limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	if matches == nil {
		matches = []*api.RunRecord{}
	}
	return matches, nil
}

// HealthCheck always returns nil for the in-memory store.
func (s *Store) HealthCheck(_ context.Context) error {
	return nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error {
	return nil
}

// Len returns the number of stored runs.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func visible(ctx context.Context, rec *api.RunRecord) bool {
	tenantID := storage.GetTenant(ctx)
	return tenantID == "" || rec.TenantID == tenantID
}

// evictOldest removes the least recently used entry.
// Must be called with s.mu held.
func (s *Store) evictOldest() {
	back := s.lruList.Back()
	if back == nil {
		return
	}

	id := back.Value.(string)
	s.lruList.Remove(back)
	delete(s.entries, id)
}
