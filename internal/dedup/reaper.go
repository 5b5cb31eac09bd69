package dedup

import (
	"context"
	"time"
)

// reaper runs the expiry sweep on a fixed cadence independent of query
// traffic, so stale regions are purged even while the app sits idle.
// Cancellation is observed within one tick; stop blocks until the
// goroutine has exited and no further wakeups can occur.
type reaper struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func startReaper(interval time.Duration, sweep func(ctx context.Context)) *reaper {
	if interval <= 0 {
		interval = time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &reaper{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(r.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sweep(ctx)
			}
		}
	}()

	return r
}

func (r *reaper) stop() {
	r.cancel()
	<-r.done
}
