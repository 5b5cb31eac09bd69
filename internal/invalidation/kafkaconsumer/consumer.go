// Package kafkaconsumer subscribes to feed content-change events and
// evicts the cached regions whose coverage they touch.
package kafkaconsumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"

	"github.com/echoloc/regioncache/internal/core/model"
	"github.com/echoloc/regioncache/internal/core/observability"
	"github.com/echoloc/regioncache/internal/invalidation"
)

// RegionInvalidator is the engine-side seam: drop all cached regions
// overlapping the given disk.
type RegionInvalidator interface {
	InvalidateArea(ctx context.Context, center model.GeoPoint, radius float64) (int, error)
}

type Consumer struct {
	cfg    Config
	logger *slog.Logger
	inv    RegionInvalidator
}

func New(cfg Config, logger *slog.Logger, inv RegionInvalidator) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{cfg: cfg, logger: logger, inv: inv}
}

// Start consumes invalidation events until the context is canceled.
func (c *Consumer) Start(ctx context.Context) error {
	if c.inv == nil {
		return errors.New("kafkaconsumer: missing invalidator dependency")
	}

	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_1_0_0
	cfg.Consumer.Group.Session.Timeout = c.cfg.SessionTimeout
	cfg.Consumer.Group.Heartbeat.Interval = c.cfg.Heartbeat
	cfg.Consumer.Group.Rebalance.Timeout = c.cfg.RebalanceTimeout
	if c.cfg.InitialOffsetOldest {
		cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	} else {
		cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	}
	cfg.Consumer.Offsets.AutoCommit.Enable = true

	group, err := sarama.NewConsumerGroup(c.cfg.Brokers, c.cfg.GroupID, cfg)
	if err != nil {
		return fmt.Errorf("create consumer group: %w", err)
	}
	defer func() { _ = group.Close() }()

	handler := &groupHandler{process: c.ProcessOne}

	c.logger.Info("kafka invalidation consumer starting",
		"brokers", c.cfg.Brokers, "topic", c.cfg.Topic, "group", c.cfg.GroupID)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("kafka invalidation consumer shutting down")
			return nil
		default:
			if err := group.Consume(ctx, []string{c.cfg.Topic}, handler); err != nil {
				c.logger.Error("consumer error", "err", err)
				time.Sleep(2 * time.Second)
			}
		}
	}
}

// ProcessOne handles a single invalidation event message.
func (c *Consumer) ProcessOne(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var ev invalidation.Event
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		observability.ObserveInvalidation("decode", err)
		c.logger.Error("invalidation decode failed",
			"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "err", err)
		return fmt.Errorf("json decode: %w", err)
	}
	if err := ev.Validate(); err != nil {
		observability.ObserveInvalidation(ev.Op, err)
		c.logger.Warn("invalid invalidation event skipped",
			"topic", msg.Topic, "offset", msg.Offset, "err", err)
		// malformed events are not retryable; do not poison the claim
		return nil
	}

	radius := ev.RadiusM
	if radius == 0 {
		radius = c.cfg.DefaultRadiusM
	}

	removed, err := c.inv.InvalidateArea(ctx, ev.Center, radius)
	if err != nil {
		observability.ObserveInvalidation(ev.Op, err)
		return fmt.Errorf("invalidate area: %w", err)
	}

	observability.ObserveInvalidation(ev.Op, nil)
	c.logger.Debug("invalidation processed",
		"op", ev.Op, "center", ev.Center.String(), "radius", radius, "removed", removed)
	return nil
}
