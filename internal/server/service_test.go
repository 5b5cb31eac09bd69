package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/echoloc/regioncache/internal/core/model"
	"github.com/echoloc/regioncache/internal/stats"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type commit struct {
	requestID string
	center    model.GeoPoint
	radius    float64
	records   []model.LocationRecord
}

type fakeDeduper struct {
	result    model.Result
	commitErr error
	commits   []commit
	snapshot  stats.Snapshot
}

func (f *fakeDeduper) CheckRequest(_ context.Context, _ model.GeoPoint, _ float64) model.Result {
	return f.result
}

func (f *fakeDeduper) CacheResult(_ context.Context, requestID string, center model.GeoPoint, radius float64, records []model.LocationRecord) error {
	f.commits = append(f.commits, commit{requestID, center, radius, records})
	return f.commitErr
}

func (f *fakeDeduper) Stats(_ context.Context) stats.Snapshot { return f.snapshot }

type fakeFetcher struct {
	records []model.LocationRecord
	err     error
	calls   int
}

func (f *fakeFetcher) FetchArea(_ context.Context, _ model.GeoPoint, _ float64) ([]model.LocationRecord, error) {
	f.calls++
	return f.records, f.err
}

func serveFeed(t *testing.T, d *fakeDeduper, f *fakeFetcher) (*httptest.ResponseRecorder, FeedResponse) {
	t.Helper()
	svc := NewService(discardLogger(), d, f)
	rr := httptest.NewRecorder()
	svc.ServeFeed(context.Background(), rr, FeedQuery{Center: model.GeoPoint{Lat: 30, Lng: 120}, RadiusM: 1000})

	var out FeedResponse
	if rr.Code == http.StatusOK {
		if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return rr, out
}

func TestServeFeed_HitServedFromCache(t *testing.T) {
	region := model.CachedRegion{ID: "req_1_x"}
	d := &fakeDeduper{result: model.Result{
		Outcome: model.OutcomeHit,
		Records: []model.LocationRecord{{ID: "a"}, {ID: "b"}},
		Region:  &region,
	}}
	f := &fakeFetcher{}

	rr, out := serveFeed(t, d, f)
	if rr.Code != http.StatusOK {
		t.Fatalf("code=%d", rr.Code)
	}
	if out.Outcome != "hit" || len(out.Records) != 2 || out.RegionID != "req_1_x" {
		t.Fatalf("out=%+v", out)
	}
	if f.calls != 0 {
		t.Fatalf("hit must not reach upstream; calls=%d", f.calls)
	}
	if len(d.commits) != 0 {
		t.Fatalf("hit must not commit new coverage")
	}
}

func TestServeFeed_MissFetchesAndCommits(t *testing.T) {
	d := &fakeDeduper{result: model.Result{Outcome: model.OutcomeMiss, RequestID: "req_2_y"}}
	f := &fakeFetcher{records: []model.LocationRecord{{ID: "a"}}}

	rr, out := serveFeed(t, d, f)
	if rr.Code != http.StatusOK {
		t.Fatalf("code=%d", rr.Code)
	}
	if out.Outcome != "miss" || len(out.Records) != 1 || out.RequestID != "req_2_y" {
		t.Fatalf("out=%+v", out)
	}
	if f.calls != 1 {
		t.Fatalf("fetch calls=%d want 1", f.calls)
	}
	if len(d.commits) != 1 || d.commits[0].requestID != "req_2_y" || len(d.commits[0].records) != 1 {
		t.Fatalf("commits=%+v", d.commits)
	}
}

func TestServeFeed_PartialFetchReplacesMerged(t *testing.T) {
	d := &fakeDeduper{result: model.Result{
		Outcome:   model.OutcomePartialHit,
		Records:   []model.LocationRecord{{ID: "cached"}},
		RequestID: "req_3_z",
	}}
	f := &fakeFetcher{records: []model.LocationRecord{{ID: "cached"}, {ID: "fresh"}}}

	rr, out := serveFeed(t, d, f)
	if rr.Code != http.StatusOK {
		t.Fatalf("code=%d", rr.Code)
	}
	if out.Outcome != "partial_hit" || len(out.Records) != 2 || out.Degraded {
		t.Fatalf("out=%+v", out)
	}
	if len(d.commits) != 1 {
		t.Fatalf("partial must commit the fresh coverage")
	}
}

func TestServeFeed_PartialDegradesWhenUpstreamDown(t *testing.T) {
	d := &fakeDeduper{result: model.Result{
		Outcome:   model.OutcomePartialHit,
		Records:   []model.LocationRecord{{ID: "cached"}},
		RequestID: "req_4_w",
	}}
	f := &fakeFetcher{err: errors.New("backend down")}

	rr, out := serveFeed(t, d, f)
	if rr.Code != http.StatusOK {
		t.Fatalf("code=%d want 200 degraded", rr.Code)
	}
	if !out.Degraded || len(out.Records) != 1 || out.Records[0].ID != "cached" {
		t.Fatalf("out=%+v", out)
	}
	if len(d.commits) != 0 {
		t.Fatalf("nothing to commit when fetch failed")
	}
}

func TestServeFeed_MissFailsWhenUpstreamDown(t *testing.T) {
	d := &fakeDeduper{result: model.Result{Outcome: model.OutcomeMiss, RequestID: "req_5_v"}}
	f := &fakeFetcher{err: errors.New("backend down")}

	rr, _ := serveFeed(t, d, f)
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("code=%d want 502", rr.Code)
	}
}

func TestServeFeed_CommitFailureStillAnswers(t *testing.T) {
	d := &fakeDeduper{
		result:    model.Result{Outcome: model.OutcomeMiss, RequestID: "req_6_u"},
		commitErr: errors.New("store down"),
	}
	f := &fakeFetcher{records: []model.LocationRecord{{ID: "a"}}}

	rr, out := serveFeed(t, d, f)
	if rr.Code != http.StatusOK {
		t.Fatalf("code=%d want 200 despite commit failure", rr.Code)
	}
	if len(out.Records) != 1 {
		t.Fatalf("out=%+v", out)
	}
}

func TestHandleStats_ReportsSnapshot(t *testing.T) {
	d := &fakeDeduper{snapshot: stats.Snapshot{TotalRequests: 4, CacheHits: 2, HitRate: 50, CachedRegions: 1}}
	svc := NewService(discardLogger(), d, &fakeFetcher{})

	rr := httptest.NewRecorder()
	svc.HandleStats()(rr, httptest.NewRequest(http.MethodGet, "/stats", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("code=%d", rr.Code)
	}
	var snap stats.Snapshot
	if err := json.Unmarshal(rr.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.TotalRequests != 4 || snap.HitRate != 50 {
		t.Fatalf("snap=%+v", snap)
	}
}
