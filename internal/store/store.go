// Package store defines the region store contract and the backend factory.
//
// A store maps request ids to cached regions. Scans may observe an
// eventually-consistent snapshot while concurrent writers run; per-key
// operations are atomic. That is enough for the dedup engine because its
// predicates are conservative: a stale scan can only produce a redundant
// fetch, never a false hit.
package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/echoloc/regioncache/internal/core/config"
	"github.com/echoloc/regioncache/internal/core/model"
	"github.com/echoloc/regioncache/internal/store/lrustore"
	"github.com/echoloc/regioncache/internal/store/memstore"
	"github.com/echoloc/regioncache/internal/store/redistore"
)

type Interface interface {
	Put(ctx context.Context, region model.CachedRegion) error
	Get(ctx context.Context, id string) (model.CachedRegion, bool, error)
	Remove(ctx context.Context, ids ...string) error

	// RemoveIf removes every region the predicate matches and reports how
	// many were removed. Used for expiry and pruning.
	RemoveIf(ctx context.Context, pred func(model.CachedRegion) bool) (int, error)

	// Snapshot returns the current regions in unspecified order.
	Snapshot(ctx context.Context) ([]model.CachedRegion, error)

	Len(ctx context.Context) (int, error)
	Clear(ctx context.Context) error
}

// New creates a store for the configured backend.
func New(ctx context.Context, cfg config.Config, log *slog.Logger) (Interface, error) {
	switch cfg.StoreBackend {
	case "", "memory":
		log.Info("using in-memory region store")
		return memstore.New(), nil
	case "bounded":
		log.Info("using bounded region store", "max_regions", cfg.StoreMaxRegions)
		s, err := lrustore.New(cfg.StoreMaxRegions)
		if err != nil {
			return nil, fmt.Errorf("bounded store: %w", err)
		}
		return s, nil
	case "redis":
		log.Info("using redis region store", "addr", cfg.RedisAddr)
		cli, err := redistore.NewClient(ctx, cfg.RedisAddr)
		if err != nil {
			return nil, fmt.Errorf("redis store: %w", err)
		}
		return redistore.New(cli, cfg.StoreOpTimeout), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q (supported: memory, bounded, redis)", cfg.StoreBackend)
	}
}
