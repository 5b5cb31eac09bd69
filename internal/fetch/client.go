// Package fetch calls the feed backend for the records inside a query circle.
package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/echoloc/regioncache/internal/core/model"
	"github.com/echoloc/regioncache/internal/core/observability"
)

type Interface interface {
	FetchArea(ctx context.Context, center model.GeoPoint, radiusM float64) ([]model.LocationRecord, error)
}

type Client struct {
	logger   *slog.Logger
	client   *http.Client
	baseURL  *url.URL
	startNow func() time.Time // for tests
}

func New(logger *slog.Logger, client *http.Client, upstream string) (*Client, error) {
	u, err := url.Parse(upstream)
	if err != nil {
		return nil, fmt.Errorf("parse upstream url: %w", err)
	}
	return &Client{
		logger:   logger,
		client:   client,
		baseURL:  u,
		startNow: time.Now,
	}, nil
}

// feedResponse is the backend's envelope for an area query.
type feedResponse struct {
	Records []model.LocationRecord `json:"records"`
}

// FetchArea retrieves the feed records inside the circle from the backend.
func (c *Client) FetchArea(ctx context.Context, center model.GeoPoint, radiusM float64) ([]model.LocationRecord, error) {
	u := *c.baseURL
	q := u.Query()
	q.Set("lat", strconv.FormatFloat(center.Lat, 'f', -1, 64))
	q.Set("lng", strconv.FormatFloat(center.Lng, 'f', -1, 64))
	q.Set("radius_m", strconv.FormatFloat(radiusM, 'f', -1, 64))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := c.startNow()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	dur := time.Since(start)
	observability.ObserveUpstreamLatency("feed", dur.Seconds())

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		return nil, fmt.Errorf("upstream status %d: %s", resp.StatusCode, string(b))
	}

	var out feedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode body: %w", err)
	}

	c.logger.Debug("upstream fetch done",
		"center", center.String(), "radius_m", radiusM,
		"records", len(out.Records), "duration", dur.String())
	return out.Records, nil
}
