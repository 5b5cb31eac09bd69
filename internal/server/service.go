package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/echoloc/regioncache/internal/core/model"
	"github.com/echoloc/regioncache/internal/fetch"
	"github.com/echoloc/regioncache/internal/stats"
)

// Deduper is the engine-side seam for the proxy.
type Deduper interface {
	CheckRequest(ctx context.Context, center model.GeoPoint, radius float64) model.Result
	CacheResult(ctx context.Context, requestID string, center model.GeoPoint, radius float64, records []model.LocationRecord) error
	Stats(ctx context.Context) stats.Snapshot
}

// Service answers feed area queries from the cache when it can, and from
// the feed backend otherwise.
type Service struct {
	logger  *slog.Logger
	engine  Deduper
	fetcher fetch.Interface
}

func NewService(logger *slog.Logger, engine Deduper, fetcher fetch.Interface) *Service {
	return &Service{logger: logger, engine: engine, fetcher: fetcher}
}

// FeedResponse is the proxy's answer to one feed area query.
type FeedResponse struct {
	Outcome   string                 `json:"outcome"`
	Records   []model.LocationRecord `json:"records"`
	RegionID  string                 `json:"region_id,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
	// Degraded marks a partial answer served because the backend fetch failed.
	Degraded bool `json:"degraded,omitempty"`
}

// ServeFeed runs one query through the dedup cache: hits answer from cache,
// misses and partial hits fetch upstream and commit the fresh coverage.
func (s *Service) ServeFeed(ctx context.Context, w http.ResponseWriter, q FeedQuery) {
	res := s.engine.CheckRequest(ctx, q.Center, q.RadiusM)

	if res.Outcome == model.OutcomeHit {
		out := FeedResponse{Outcome: res.Outcome.String(), Records: res.Records}
		if res.Region != nil {
			out.RegionID = res.Region.ID
		}
		writeJSON(w, http.StatusOK, out)
		return
	}

	records, err := s.fetcher.FetchArea(ctx, q.Center, q.RadiusM)
	if err != nil {
		if res.Outcome == model.OutcomePartialHit {
			// serve the cached subset rather than failing the query outright
			s.logger.Warn("upstream fetch failed, serving partial cached records",
				"err", err, "records", len(res.Records))
			writeJSON(w, http.StatusOK, FeedResponse{
				Outcome:   res.Outcome.String(),
				Records:   res.Records,
				RequestID: res.RequestID,
				Degraded:  true,
			})
			return
		}
		s.logger.Error("upstream fetch failed", "err", err)
		http.Error(w, "upstream fetch failed", http.StatusBadGateway)
		return
	}

	if err := s.engine.CacheResult(ctx, res.RequestID, q.Center, q.RadiusM, records); err != nil {
		// the answer is still good, only the coverage commit was lost
		s.logger.Warn("cache commit failed", "request_id", res.RequestID, "err", err)
	}

	writeJSON(w, http.StatusOK, FeedResponse{
		Outcome:   res.Outcome.String(),
		Records:   records,
		RequestID: res.RequestID,
	})
}

// HandleStats reports the engine's counters.
func (s *Service) HandleStats() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.engine.Stats(r.Context()))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
