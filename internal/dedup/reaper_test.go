package dedup

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/echoloc/regioncache/internal/core/config"
	"github.com/echoloc/regioncache/internal/core/model"
	"github.com/echoloc/regioncache/internal/store/memstore"
)

func TestReaper_EvictsDuringIdle(t *testing.T) {
	fc := &fakeClock{now: time.Unix(1_700_000_000, 0).UTC()}
	cfg := config.Config{
		CacheExpireTime: 40 * time.Millisecond, // reaper ticks every 10ms
		PerfMonitoring:  true,
	}
	e, err := newEngine(cfg, discard(), memstore.New(), fc.Now)
	if err != nil {
		t.Fatalf("newEngine: %v", err)
	}
	defer e.Cleanup(context.Background())
	ctx := context.Background()

	_ = e.CacheResult(ctx, "req-1", model.GeoPoint{Lat: 30, Lng: 120}, 1000, nil)

	// age the region past expiry without issuing any query
	fc.Add(time.Second)

	deadline := time.Now().Add(2 * time.Second)
	for e.CacheSize(ctx) != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("reaper did not evict the expired region while idle")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestReaperUnit_StopPreventsFurtherSweeps(t *testing.T) {
	var sweeps atomic.Int64
	r := startReaper(5*time.Millisecond, func(context.Context) {
		sweeps.Add(1)
	})

	deadline := time.Now().Add(time.Second)
	for sweeps.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("reaper never swept")
		}
		time.Sleep(time.Millisecond)
	}

	r.stop()
	after := sweeps.Load()
	time.Sleep(30 * time.Millisecond)
	if sweeps.Load() != after {
		t.Fatalf("sweeps continued after stop: %d -> %d", after, sweeps.Load())
	}
}

func TestReaperUnit_StopIsPrompt(t *testing.T) {
	r := startReaper(time.Hour, func(context.Context) {})

	done := make(chan struct{})
	go func() {
		r.stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("stop did not return promptly with a long interval pending")
	}
}
