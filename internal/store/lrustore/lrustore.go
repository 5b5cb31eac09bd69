// Package lrustore is a capacity-bounded region store. When the region
// count reaches the limit the least recently touched region is evicted,
// which keeps a cache with a quiet reaper from growing without bound.
package lrustore

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/echoloc/regioncache/internal/core/model"
)

type Store struct {
	c *lru.Cache[string, model.CachedRegion]
}

func New(maxRegions int) (*Store, error) {
	if maxRegions <= 0 {
		return nil, fmt.Errorf("max regions must be positive, got %d", maxRegions)
	}
	c, err := lru.New[string, model.CachedRegion](maxRegions)
	if err != nil {
		return nil, fmt.Errorf("lru init: %w", err)
	}
	return &Store{c: c}, nil
}

func (s *Store) Put(_ context.Context, region model.CachedRegion) error {
	s.c.Add(region.ID, region)
	return nil
}

func (s *Store) Get(_ context.Context, id string) (model.CachedRegion, bool, error) {
	r, ok := s.c.Get(id)
	return r, ok, nil
}

func (s *Store) Remove(_ context.Context, ids ...string) error {
	for _, id := range ids {
		s.c.Remove(id)
	}
	return nil
}

// RemoveIf peeks instead of getting so a sweep does not refresh recency.
func (s *Store) RemoveIf(_ context.Context, pred func(model.CachedRegion) bool) (int, error) {
	removed := 0
	for _, id := range s.c.Keys() {
		r, ok := s.c.Peek(id)
		if !ok {
			continue
		}
		if pred(r) {
			s.c.Remove(id)
			removed++
		}
	}
	return removed, nil
}

func (s *Store) Snapshot(_ context.Context) ([]model.CachedRegion, error) {
	keys := s.c.Keys()
	out := make([]model.CachedRegion, 0, len(keys))
	for _, id := range keys {
		if r, ok := s.c.Peek(id); ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Store) Len(_ context.Context) (int, error) {
	return s.c.Len(), nil
}

func (s *Store) Clear(_ context.Context) error {
	s.c.Purge()
	return nil
}
