package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/echoloc/regioncache/internal/core/model"
	"github.com/echoloc/regioncache/internal/core/observability"
)

// FeedQuery is a validated, normalized feed area request.
type FeedQuery struct {
	Center  model.GeoPoint
	RadiusM float64
}

// ParseFeedRequest validates user input for /feed and returns a normalized
// query. The radius falls back to defaultRadiusM when absent.
func ParseFeedRequest(r *http.Request, defaultRadiusM float64) (FeedQuery, error) {
	rawLat := strings.TrimSpace(r.URL.Query().Get("lat"))
	if rawLat == "" {
		return FeedQuery{}, errors.New("missing required parameter: lat")
	}
	rawLng := strings.TrimSpace(r.URL.Query().Get("lng"))
	if rawLng == "" {
		return FeedQuery{}, errors.New("missing required parameter: lng")
	}

	lat, err := parseFloat(rawLat)
	if err != nil {
		return FeedQuery{}, fmt.Errorf("lat: %w", err)
	}
	lng, err := parseFloat(rawLng)
	if err != nil {
		return FeedQuery{}, fmt.Errorf("lng: %w", err)
	}
	if lat < -90 || lat > 90 {
		return FeedQuery{}, errors.New("latitude must be in [-90,90]")
	}
	if lng < -180 || lng > 180 {
		return FeedQuery{}, errors.New("longitude must be in [-180,180]")
	}

	radius := defaultRadiusM
	if raw := strings.TrimSpace(r.URL.Query().Get("radius_m")); raw != "" {
		radius, err = parseFloat(raw)
		if err != nil {
			return FeedQuery{}, fmt.Errorf("radius_m: %w", err)
		}
	}
	if radius < 0 {
		return FeedQuery{}, errors.New("radius_m must be non-negative")
	}

	return FeedQuery{Center: model.GeoPoint{Lat: lat, Lng: lng}, RadiusM: radius}, nil
}

func parseFloat(v string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, fmt.Errorf("parse float: %w", err)
	}
	return f, nil
}

// HandleFeed validates input query params and calls the service.
func HandleFeed(svc *Service, defaultRadiusM float64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}

		q, err := ParseFeedRequest(r, defaultRadiusM)
		if err != nil {
			http.Error(sw, err.Error(), http.StatusBadRequest)
			observability.ObserveHTTP(r.Method, "/feed", http.StatusBadRequest, time.Since(start).Seconds())
			return
		}

		svc.ServeFeed(r.Context(), sw, q)
		observability.ObserveHTTP(r.Method, "/feed", sw.code, time.Since(start).Seconds())
	}
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
