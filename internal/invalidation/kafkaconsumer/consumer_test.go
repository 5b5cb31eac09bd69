package kafkaconsumer

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/IBM/sarama"

	"github.com/echoloc/regioncache/internal/core/model"
	"github.com/echoloc/regioncache/internal/invalidation"
)

type invCall struct {
	center model.GeoPoint
	radius float64
}

type fakeInvalidator struct {
	failFirst atomic.Bool
	mu        sync.Mutex
	calls     []invCall
}

func (f *fakeInvalidator) InvalidateArea(_ context.Context, center model.GeoPoint, radius float64) (int, error) {
	f.mu.Lock()
	f.calls = append(f.calls, invCall{center: center, radius: radius})
	f.mu.Unlock()
	if f.failFirst.Load() {
		f.failFirst.Store(false)
		return 0, errors.New("boom")
	}
	return 1, nil
}

func (f *fakeInvalidator) seen() []invCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]invCall(nil), f.calls...)
}

type sess struct {
	ctx    context.Context
	mu     sync.Mutex
	marked []int64
}

func (s *sess) Claims() map[string][]int32 { return nil }
func (s *sess) MemberID() string           { return "" }
func (s *sess) GenerationID() int32        { return 0 }
func (s *sess) MarkMessage(m *sarama.ConsumerMessage, _ string) {
	s.mu.Lock()
	s.marked = append(s.marked, m.Offset)
	s.mu.Unlock()
}
func (s *sess) ResetOffset(_ string, _ int32, _ int64, _ string) {}
func (s *sess) MarkOffset(_ string, _ int32, _ int64, _ string)  {}
func (s *sess) Context() context.Context                         { return s.ctx }
func (s *sess) Errors() <-chan error                             { return nil }
func (s *sess) Commit()                                          {}

type claim struct {
	part int32
	msgs chan *sarama.ConsumerMessage
}

func (c *claim) Topic() string                            { return "feed-updates" }
func (c *claim) Partition() int32                         { return c.part }
func (c *claim) InitialOffset() int64                     { return 0 }
func (c *claim) HighWaterMarkOffset() int64               { return 0 }
func (c *claim) Messages() <-chan *sarama.ConsumerMessage { return c.msgs }

func eventBytes(radius float64) []byte {
	ev := invalidation.Event{
		Version: 1, Op: "insert", TS: time.Now().UTC(),
		Center: model.GeoPoint{Lat: 30, Lng: 120}, RadiusM: radius,
	}
	b, _ := json.Marshal(ev)
	return b
}

func newConsumerForTest(inv *fakeInvalidator) *Consumer {
	cfg := Config{Brokers: []string{"x"}, Topic: "feed-updates", GroupID: "g", DefaultRadiusM: 1000}
	return New(cfg, slog.Default(), inv)
}

func TestProcessOne_InvalidatesWithEventRadius(t *testing.T) {
	inv := &fakeInvalidator{}
	c := newConsumerForTest(inv)

	msg := &sarama.ConsumerMessage{Topic: "feed-updates", Offset: 1, Value: eventBytes(250)}
	if err := c.ProcessOne(context.Background(), msg); err != nil {
		t.Fatalf("ProcessOne: %v", err)
	}

	calls := inv.seen()
	if len(calls) != 1 {
		t.Fatalf("calls=%d want 1", len(calls))
	}
	if calls[0].radius != 250 {
		t.Fatalf("radius=%v want 250", calls[0].radius)
	}
	if calls[0].center.Lat != 30 || calls[0].center.Lng != 120 {
		t.Fatalf("center=%v want (30,120)", calls[0].center)
	}
}

func TestProcessOne_ZeroRadiusFallsBackToDefault(t *testing.T) {
	inv := &fakeInvalidator{}
	c := newConsumerForTest(inv)

	msg := &sarama.ConsumerMessage{Topic: "feed-updates", Offset: 2, Value: eventBytes(0)}
	if err := c.ProcessOne(context.Background(), msg); err != nil {
		t.Fatalf("ProcessOne: %v", err)
	}

	calls := inv.seen()
	if len(calls) != 1 || calls[0].radius != 1000 {
		t.Fatalf("calls=%v want one call with default radius 1000", calls)
	}
}

func TestProcessOne_MalformedJSONFails(t *testing.T) {
	inv := &fakeInvalidator{}
	c := newConsumerForTest(inv)

	msg := &sarama.ConsumerMessage{Topic: "feed-updates", Offset: 3, Value: []byte("not json")}
	if err := c.ProcessOne(context.Background(), msg); err == nil {
		t.Fatalf("expected decode error")
	}
	if len(inv.seen()) != 0 {
		t.Fatalf("invalidator should not be called on decode failure")
	}
}

func TestProcessOne_InvalidEventSkippedWithoutError(t *testing.T) {
	inv := &fakeInvalidator{}
	c := newConsumerForTest(inv)

	ev := invalidation.Event{Version: 1, Op: "rename", TS: time.Now().UTC()}
	b, _ := json.Marshal(ev)
	msg := &sarama.ConsumerMessage{Topic: "feed-updates", Offset: 4, Value: b}
	if err := c.ProcessOne(context.Background(), msg); err != nil {
		t.Fatalf("invalid event must be skipped, not retried: %v", err)
	}
	if len(inv.seen()) != 0 {
		t.Fatalf("invalidator should not be called for invalid events")
	}
}

func TestSinglePartition_OrderAndCommitAfterWork(t *testing.T) {
	inv := &fakeInvalidator{}
	c := newConsumerForTest(inv)

	g := &groupHandler{process: c.ProcessOne}
	ctx := t.Context()
	s := &sess{ctx: ctx}
	ch := make(chan *sarama.ConsumerMessage, 2)
	cl := &claim{part: 0, msgs: ch}

	ch <- &sarama.ConsumerMessage{Topic: "feed-updates", Partition: 0, Offset: 10, Value: eventBytes(500)}
	ch <- &sarama.ConsumerMessage{Topic: "feed-updates", Partition: 0, Offset: 11, Value: eventBytes(500)}
	close(ch)

	if err := g.ConsumeClaim(s, cl); err != nil {
		t.Fatalf("ConsumeClaim: %v", err)
	}

	if len(s.marked) != 2 || s.marked[0] != 10 || s.marked[1] != 11 {
		t.Fatalf("marked offsets=%v want [10 11]", s.marked)
	}
	if len(inv.seen()) != 2 {
		t.Fatalf("expected two invalidations, got %d", len(inv.seen()))
	}
}

func TestRetry_CommitOnceAfterSuccess(t *testing.T) {
	inv := &fakeInvalidator{}
	inv.failFirst.Store(true)
	c := newConsumerForTest(inv)
	ctx := context.Background()

	msg := &sarama.ConsumerMessage{Topic: "feed-updates", Partition: 0, Offset: 5, Value: eventBytes(500)}
	if err := c.ProcessOne(ctx, msg); err == nil {
		t.Fatalf("expected error on first attempt")
	}

	s := &sess{ctx: ctx}
	g := &groupHandler{process: c.ProcessOne}
	ch := make(chan *sarama.ConsumerMessage, 1)
	ch <- msg
	close(ch)
	if err := g.ConsumeClaim(s, &claim{part: 0, msgs: ch}); err != nil {
		t.Fatalf("ConsumeClaim second attempt: %v", err)
	}
	if len(s.marked) != 1 || s.marked[0] != 5 {
		t.Fatalf("offset was not marked after success; marked=%v", s.marked)
	}
}
