// Package memstore is the default in-memory region store: a sharded map
// keyed by request id. Shards keep unrelated inserts and removals from
// contending on one lock.
package memstore

import (
	"context"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/echoloc/regioncache/internal/core/model"
)

const numShards = 64

type Store struct {
	shards [numShards]shard
}

type shard struct {
	mu sync.RWMutex
	m  map[string]model.CachedRegion
}

func New() *Store {
	s := &Store{}
	for i := range s.shards {
		s.shards[i].m = make(map[string]model.CachedRegion)
	}
	return s
}

func (s *Store) pick(id string) *shard {
	h := xxhash.Sum64String(id)
	return &s.shards[h&(numShards-1)]
}

func (s *Store) Put(_ context.Context, region model.CachedRegion) error {
	sh := s.pick(region.ID)
	sh.mu.Lock()
	sh.m[region.ID] = region
	sh.mu.Unlock()
	return nil
}

func (s *Store) Get(_ context.Context, id string) (model.CachedRegion, bool, error) {
	sh := s.pick(id)
	sh.mu.RLock()
	r, ok := sh.m[id]
	sh.mu.RUnlock()
	return r, ok, nil
}

func (s *Store) Remove(_ context.Context, ids ...string) error {
	for _, id := range ids {
		sh := s.pick(id)
		sh.mu.Lock()
		delete(sh.m, id)
		sh.mu.Unlock()
	}
	return nil
}

// RemoveIf holds each shard lock only for that shard's scan, so a sweep
// never blocks the whole store at once.
func (s *Store) RemoveIf(_ context.Context, pred func(model.CachedRegion) bool) (int, error) {
	removed := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		for id, r := range sh.m {
			if pred(r) {
				delete(sh.m, id)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed, nil
}

func (s *Store) Snapshot(_ context.Context) ([]model.CachedRegion, error) {
	var out []model.CachedRegion
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.RLock()
		for _, r := range sh.m {
			out = append(out, r)
		}
		sh.mu.RUnlock()
	}
	return out, nil
}

func (s *Store) Len(_ context.Context) (int, error) {
	total := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.RLock()
		total += len(sh.m)
		sh.mu.RUnlock()
	}
	return total, nil
}

func (s *Store) Clear(_ context.Context) error {
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		sh.m = make(map[string]model.CachedRegion)
		sh.mu.Unlock()
	}
	return nil
}
