package stats

import (
	"math"
	"sync"
	"testing"
)

func TestSnapshot_HitRate(t *testing.T) {
	c := New()

	if got := c.Snapshot().HitRate; got != 0 {
		t.Fatalf("empty collector hit rate=%g want 0", got)
	}

	// 2 hits, 1 partial, 1 miss out of 4
	for range 4 {
		c.IncTotal()
	}
	c.IncHit()
	c.IncHit()
	c.IncPartial()
	c.IncMiss()

	s := c.Snapshot()
	if s.TotalRequests != 4 || s.CacheHits != 2 || s.PartialHits != 1 || s.CacheMisses != 1 {
		t.Fatalf("unexpected snapshot: %+v", s)
	}
	if math.Abs(s.HitRate-75.0) > 1e-9 {
		t.Fatalf("hit rate=%g want 75", s.HitRate)
	}
}

func TestReset(t *testing.T) {
	c := New()
	c.IncTotal()
	c.IncMiss()
	c.Reset()

	s := c.Snapshot()
	if s.TotalRequests != 0 || s.CacheMisses != 0 || s.HitRate != 0 {
		t.Fatalf("reset left counters: %+v", s)
	}
}

func TestConcurrentIncrements_NoLoss(t *testing.T) {
	c := New()
	const workers = 16
	const perWorker = 1000

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := range workers {
		go func(i int) {
			defer wg.Done()
			for range perWorker {
				c.IncTotal()
				switch i % 3 {
				case 0:
					c.IncHit()
				case 1:
					c.IncMiss()
				default:
					c.IncPartial()
				}
			}
		}(i)
	}
	wg.Wait()

	s := c.Snapshot()
	if s.TotalRequests != workers*perWorker {
		t.Fatalf("total=%d want %d", s.TotalRequests, workers*perWorker)
	}
	if s.CacheHits+s.CacheMisses+s.PartialHits != s.TotalRequests {
		t.Fatalf("counter sum %d != total %d",
			s.CacheHits+s.CacheMisses+s.PartialHits, s.TotalRequests)
	}
}
