package term

import (
	"context"
	"sync"
)

// Source is the read interface the cached store sits on top of.
type Source interface {
	ListTerms(ctx context.Context) ([]Term, error)
	ListStatuses(ctx context.Context) ([]UniqueStatus, error)
}

// Store caches the read-mostly rule set process-wide. Admin tooling edits the
// underlying tables out-of-band and calls Invalidate afterwards; there is no
// per-request mutation.
type Store struct {
	source Source

	mu       sync.RWMutex
	terms    []Term
	statuses map[string]UniqueStatus
	loaded   bool
}

func NewStore(source Source) *Store {
	return &Store{source: source}
}

// Terms returns the cached term set, loading it on first use.
func (s *Store) Terms(ctx context.Context) ([]Term, error) {
	if err := s.ensure(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.terms, nil
}

// StatusBySlug resolves a unique status from the cached reference data.
func (s *Store) StatusBySlug(ctx context.Context, slug string) (UniqueStatus, error) {
	if err := s.ensure(ctx); err != nil {
		return UniqueStatus{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	status, ok := s.statuses[slug]
	if !ok {
		return UniqueStatus{}, ErrStatusNotFound
	}
	return status, nil
}

// Invalidate drops the cache so the next read reloads from the source.
func (s *Store) Invalidate() {
	s.mu.Lock()
	s.loaded = false
	s.terms = nil
	s.statuses = nil
	s.mu.Unlock()
}

func (s *Store) ensure(ctx context.Context) error {
	s.mu.RLock()
	loaded := s.loaded
	s.mu.RUnlock()
	if loaded {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		return nil
	}

	terms, err := s.source.ListTerms(ctx)
	if err != nil {
		return err
	}
	statuses, err := s.source.ListStatuses(ctx)
	if err != nil {
		return err
	}

	byslug := make(map[string]UniqueStatus, len(statuses))
	for _, st := range statuses {
		byslug[st.Slug] = st
	}

	s.terms = terms
	s.statuses = byslug
	s.loaded = true
	return nil
}
