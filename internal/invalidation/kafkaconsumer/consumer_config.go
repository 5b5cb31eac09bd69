package kafkaconsumer

import (
	"strings"
	"time"

	"github.com/echoloc/regioncache/internal/core/config"
)

type Config struct {
	Brokers             []string
	Topic               string
	GroupID             string
	SessionTimeout      time.Duration
	Heartbeat           time.Duration
	RebalanceTimeout    time.Duration
	InitialOffsetOldest bool

	// DefaultRadiusM is applied when an event carries no radius of its own.
	DefaultRadiusM float64
}

func FromConfig(cfg config.Config) Config {
	return Config{
		Brokers:             splitCSV(cfg.Invalidation.Brokers),
		Topic:               cfg.Invalidation.Topic,
		GroupID:             cfg.Invalidation.GroupID,
		SessionTimeout:      30 * time.Second,
		Heartbeat:           3 * time.Second,
		RebalanceTimeout:    30 * time.Second,
		InitialOffsetOldest: true,
		DefaultRadiusM:      cfg.DefaultQueryRadiusM,
	}
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
