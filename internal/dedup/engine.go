// Package dedup implements the geo-region deduplication engine: it decides
// whether a query circle is already covered by cached map data, and commits
// the results of real fetches while pruning coverage made redundant.
package dedup

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/echoloc/regioncache/internal/core/config"
	"github.com/echoloc/regioncache/internal/core/model"
	"github.com/echoloc/regioncache/internal/core/observability"
	"github.com/echoloc/regioncache/internal/geo"
	"github.com/echoloc/regioncache/internal/index"
	"github.com/echoloc/regioncache/internal/stats"
	"github.com/echoloc/regioncache/internal/store"
)

type Engine struct {
	logger *slog.Logger
	store  store.Interface
	stats  *stats.Collector
	idx    *index.Index // nil when the H3 index is disabled

	expire        time.Duration
	monitor       bool
	pruneBothWays bool

	now func() time.Time

	reaper *reaper
}

// New builds the engine and, when performance monitoring is enabled,
// starts the background expiry reaper. The caller owns the single engine
// instance and hands it to query and commit sites; there is no ambient
// global cache.
func New(cfg config.Config, logger *slog.Logger, st store.Interface) (*Engine, error) {
	return newEngine(cfg, logger, st, time.Now)
}

func newEngine(cfg config.Config, logger *slog.Logger, st store.Interface, now func() time.Time) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.CacheExpireTime <= 0 {
		return nil, fmt.Errorf("cache expire time must be positive, got %v", cfg.CacheExpireTime)
	}

	e := &Engine{
		logger:        logger,
		store:         st,
		stats:         stats.New(),
		expire:        cfg.CacheExpireTime,
		monitor:       cfg.PerfMonitoring,
		pruneBothWays: cfg.PruneBothWays,
		now:           now,
	}

	if cfg.IndexEnabled {
		ix, err := index.New(cfg.IndexRes)
		if err != nil {
			return nil, fmt.Errorf("spatial index: %w", err)
		}
		e.idx = ix
	}

	if e.monitor {
		e.reaper = startReaper(e.expire/4, e.sweep)
		logger.Info("expiry reaper started",
			"expire", e.expire.String(), "interval", (e.expire / 4).String())
	}

	return e, nil
}

// CheckRequest classifies a query disk against the cached coverage.
// It never returns a false hit: store failures and index gaps degrade to
// a miss, which only costs the caller a redundant fetch.
func (e *Engine) CheckRequest(ctx context.Context, center model.GeoPoint, radius float64) model.Result {
	now := e.now()

	if e.monitor {
		e.stats.IncTotal()
	}

	// passive expiry ahead of classification
	e.evictExpired(ctx, now)

	regions, scanOK := e.regionsNear(ctx, center, radius)

	// exact match: newest covering region wins
	if scanOK {
		for i := range regions {
			if geo.Contains(regions[i], center, radius) {
				r := regions[i]
				e.record(model.OutcomeHit)
				e.logger.Debug("cache hit",
					"region", r.ID, "records", len(r.Records),
					"center", center.String(), "radius", radius)
				return model.Result{
					Outcome: model.OutcomeHit,
					Records: append([]model.LocationRecord(nil), r.Records...),
					Region:  &r,
				}
			}
		}

		// overlap search: merge every cached record inside the query disk
		var overlapping []model.CachedRegion
		for _, r := range regions {
			if geo.Overlaps(r, center, radius) {
				overlapping = append(overlapping, r)
			}
		}
		if len(overlapping) > 0 {
			merged := mergeRecords(overlapping, center, radius)
			id := GenerateRequestID()
			e.record(model.OutcomePartialHit)
			e.logger.Debug("cache partial hit",
				"overlapping", len(overlapping), "merged", len(merged),
				"request_id", id, "center", center.String(), "radius", radius)
			return model.Result{
				Outcome:     model.OutcomePartialHit,
				Records:     merged,
				Overlapping: overlapping,
				RequestID:   id,
			}
		}
	}

	id := GenerateRequestID()
	e.record(model.OutcomeMiss)
	e.logger.Debug("cache miss",
		"request_id", id, "center", center.String(), "radius", radius)
	return model.Result{Outcome: model.OutcomeMiss, RequestID: id}
}

// CacheResult commits the records a real fetch returned for the disk
// (center, radius), then prunes regions the new coverage subsumes.
func (e *Engine) CacheResult(ctx context.Context, requestID string, center model.GeoPoint, radius float64, records []model.LocationRecord) error {
	if requestID == "" {
		return fmt.Errorf("request id is required")
	}
	if radius < 0 {
		return fmt.Errorf("radius must be non-negative, got %g", radius)
	}

	// a generated id must never land on an unrelated region
	if _, exists, err := e.store.Get(ctx, requestID); err != nil {
		return fmt.Errorf("collision check %q: %w", requestID, err)
	} else if exists {
		return fmt.Errorf("request id %q already cached", requestID)
	}

	region := model.CachedRegion{
		ID:        requestID,
		Center:    center,
		Radius:    radius,
		Records:   append([]model.LocationRecord(nil), records...),
		CreatedAt: e.now(),
	}

	if err := e.store.Put(ctx, region); err != nil {
		return fmt.Errorf("store region %q: %w", requestID, err)
	}
	if e.idx != nil {
		if err := e.idx.Add(region); err != nil {
			e.logger.Warn("index add failed, queries fall back to full scans", "err", err)
		}
	}

	e.prune(ctx, region)
	e.publishSize(ctx)
	return nil
}

// prune drops stored regions fully contained in the new one. With
// PruneBothWays the new region itself is dropped instead when an existing
// region already subsumes it, keeping only the larger coverage.
func (e *Engine) prune(ctx context.Context, newRegion model.CachedRegion) {
	if e.pruneBothWays {
		covered := false
		regions, ok := e.regionsNear(ctx, newRegion.Center, newRegion.Radius)
		if ok {
			for _, r := range regions {
				if r.ID != newRegion.ID && geo.Contains(r, newRegion.Center, newRegion.Radius) {
					covered = true
					break
				}
			}
		}
		if covered {
			if err := e.store.Remove(ctx, newRegion.ID); err != nil {
				e.logger.Warn("prune remove failed", "region", newRegion.ID, "err", err)
				return
			}
			if e.idx != nil {
				e.idx.Remove(newRegion.ID)
			}
			e.logger.Debug("pruned new region subsumed by existing coverage", "region", newRegion.ID)
			return
		}
	}

	var victims []string
	removed, err := e.store.RemoveIf(ctx, func(r model.CachedRegion) bool {
		if r.ID == newRegion.ID {
			return false
		}
		if geo.Contains(newRegion, r.Center, r.Radius) {
			victims = append(victims, r.ID)
			return true
		}
		return false
	})
	if err != nil {
		e.logger.Warn("prune scan failed", "err", err)
		return
	}
	if e.idx != nil && len(victims) > 0 {
		e.idx.Remove(victims...)
	}
	if removed > 0 {
		e.logger.Debug("pruned subsumed regions", "count", removed, "by", newRegion.ID)
	}
}

// InvalidateArea drops every cached region whose disk overlaps the given
// one. Driven by remote content-change events: coverage that may describe
// the changed area can no longer be trusted.
func (e *Engine) InvalidateArea(ctx context.Context, center model.GeoPoint, radius float64) (int, error) {
	var victims []string
	removed, err := e.store.RemoveIf(ctx, func(r model.CachedRegion) bool {
		if geo.Overlaps(r, center, radius) {
			victims = append(victims, r.ID)
			return true
		}
		return false
	})
	if err != nil {
		return 0, fmt.Errorf("invalidate scan: %w", err)
	}
	if e.idx != nil && len(victims) > 0 {
		e.idx.Remove(victims...)
	}
	if removed > 0 {
		e.publishSize(ctx)
		e.logger.Info("invalidated overlapping regions",
			"count", removed, "center", center.String(), "radius", radius)
	}
	return removed, nil
}

// IsRegionCached re-runs the exact-match search without touching counters.
func (e *Engine) IsRegionCached(ctx context.Context, center model.GeoPoint, radius float64) bool {
	_, ok := e.findCovering(ctx, center, radius)
	return ok
}

// GetCachedData returns the covering region's records, if any, without
// touching counters.
func (e *Engine) GetCachedData(ctx context.Context, center model.GeoPoint, radius float64) ([]model.LocationRecord, bool) {
	r, ok := e.findCovering(ctx, center, radius)
	if !ok {
		return nil, false
	}
	return append([]model.LocationRecord(nil), r.Records...), true
}

func (e *Engine) findCovering(ctx context.Context, center model.GeoPoint, radius float64) (model.CachedRegion, bool) {
	now := e.now()
	regions, ok := e.regionsNear(ctx, center, radius)
	if !ok {
		return model.CachedRegion{}, false
	}
	for _, r := range regions {
		if r.Age(now) > e.expire {
			continue
		}
		if geo.Contains(r, center, radius) {
			return r, true
		}
	}
	return model.CachedRegion{}, false
}

// Stats reports the counters plus the live store size.
func (e *Engine) Stats(ctx context.Context) stats.Snapshot {
	s := e.stats.Snapshot()
	if n, err := e.store.Len(ctx); err == nil {
		s.CachedRegions = n
	} else {
		e.logger.Warn("store len failed", "err", err)
	}
	return s
}

// ResetStats zeroes the counters; cached regions are untouched.
func (e *Engine) ResetStats() { e.stats.Reset() }

// ClearCache drops every cached region; counters are untouched.
func (e *Engine) ClearCache(ctx context.Context) error {
	if err := e.store.Clear(ctx); err != nil {
		return fmt.Errorf("clear store: %w", err)
	}
	if e.idx != nil {
		e.idx.Clear()
	}
	e.publishSize(ctx)
	return nil
}

func (e *Engine) CacheSize(ctx context.Context) int {
	n, err := e.store.Len(ctx)
	if err != nil {
		e.logger.Warn("store len failed", "err", err)
		return 0
	}
	return n
}

// Cleanup stops the reaper and resets the cache to ground state. After it
// returns no background wakeups occur; re-initialization is not supported.
func (e *Engine) Cleanup(ctx context.Context) {
	if e.reaper != nil {
		e.reaper.stop()
	}
	if err := e.store.Clear(ctx); err != nil {
		e.logger.Warn("cleanup clear failed", "err", err)
	}
	if e.idx != nil {
		e.idx.Clear()
	}
	e.stats.Reset()
	e.publishSize(ctx)
	e.logger.Info("dedup cache cleaned up")
}

// sweep is the reaper callback.
func (e *Engine) sweep(ctx context.Context) {
	evicted := e.evictExpired(ctx, e.now())
	observability.ObserveReaperSweep(evicted)
	if evicted > 0 {
		e.logger.Debug("reaper evicted expired regions", "count", evicted)
	}
}

func (e *Engine) evictExpired(ctx context.Context, now time.Time) int {
	var victims []string
	removed, err := e.store.RemoveIf(ctx, func(r model.CachedRegion) bool {
		if r.Age(now) > e.expire {
			victims = append(victims, r.ID)
			return true
		}
		return false
	})
	if err != nil {
		e.logger.Warn("expiry scan failed", "err", err)
		return 0
	}
	if e.idx != nil && len(victims) > 0 {
		e.idx.Remove(victims...)
	}
	if removed > 0 {
		e.publishSize(ctx)
	}
	return removed
}

// regionsNear returns the regions worth checking against the query disk,
// newest first with ids as the tie-break so exact-match selection is
// reproducible. ok is false when the store could not be read.
func (e *Engine) regionsNear(ctx context.Context, center model.GeoPoint, radius float64) ([]model.CachedRegion, bool) {
	var regions []model.CachedRegion

	if e.idx != nil {
		ids, full, err := e.idx.Candidates(center, radius)
		if err != nil {
			e.logger.Warn("index lookup failed, scanning store", "err", err)
			full = true
		}
		if !full {
			for _, id := range ids {
				r, ok, err := e.store.Get(ctx, id)
				if err != nil {
					e.logger.Warn("store get failed, treating as miss", "region", id, "err", err)
					return nil, false
				}
				if ok {
					regions = append(regions, r)
				}
			}
			sortRegions(regions)
			return regions, true
		}
	}

	snap, err := e.store.Snapshot(ctx)
	if err != nil {
		e.logger.Warn("store snapshot failed, treating as miss", "err", err)
		return nil, false
	}
	sortRegions(snap)
	return snap, true
}

func sortRegions(regions []model.CachedRegion) {
	sort.Slice(regions, func(i, j int) bool {
		if !regions[i].CreatedAt.Equal(regions[j].CreatedAt) {
			return regions[i].CreatedAt.After(regions[j].CreatedAt)
		}
		return regions[i].ID < regions[j].ID
	})
}

func (e *Engine) record(o model.Outcome) {
	if !e.monitor {
		return
	}
	switch o {
	case model.OutcomeHit:
		e.stats.IncHit()
	case model.OutcomePartialHit:
		e.stats.IncPartial()
	default:
		e.stats.IncMiss()
	}
	observability.IncDedup(o.String())
}

func (e *Engine) publishSize(ctx context.Context) {
	if n, err := e.store.Len(ctx); err == nil {
		observability.SetStoreSize(n)
	}
}

// mergeRecords collects every record from the overlapping regions whose own
// location falls inside the query disk, deduplicated by record identity.
func mergeRecords(overlapping []model.CachedRegion, center model.GeoPoint, radius float64) []model.LocationRecord {
	var out []model.LocationRecord
	seen := make(map[string]struct{})
	for _, region := range overlapping {
		for _, rec := range region.Records {
			if !geo.WithinRadius(rec.Location, center, radius) {
				continue
			}
			k := recordKey(rec)
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, rec)
		}
	}
	return out
}

// recordKey identifies a record for dedup: by id when present, otherwise
// by content.
func recordKey(r model.LocationRecord) string {
	if r.ID != "" {
		return "id:" + r.ID
	}
	return fmt.Sprintf("c:%.7f:%.7f:%s:%s:%d",
		r.Location.Lat, r.Location.Lng, r.Title, r.AudioURL, r.PostedAt.UnixNano())
}
