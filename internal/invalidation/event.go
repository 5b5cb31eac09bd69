// Package invalidation defines the content-change events that evict cached
// map coverage, published by the feed backend when posts are created,
// edited or removed.
package invalidation

import (
	"fmt"
	"time"

	"github.com/echoloc/regioncache/internal/core/model"
)

type Event struct {
	Version  int            `json:"version"`
	Op       string         `json:"op"`
	TS       time.Time      `json:"ts"`
	Center   model.GeoPoint `json:"center"`
	RadiusM  float64        `json:"radius_m"`
	RecordID string         `json:"record_id,omitempty"`
	Source   string         `json:"source,omitempty"`
}

func (e Event) Validate() error {
	if e.Version != 1 {
		return fmt.Errorf("version must be 1")
	}
	switch e.Op {
	case "insert", "update", "delete":
	default:
		return fmt.Errorf("op must be insert|update|delete")
	}
	if e.TS.IsZero() {
		return fmt.Errorf("ts is required")
	}
	if e.Center.Lat < -90 || e.Center.Lat > 90 {
		return fmt.Errorf("center latitude out of range")
	}
	if e.Center.Lng < -180 || e.Center.Lng > 180 {
		return fmt.Errorf("center longitude out of range")
	}
	if e.RadiusM < 0 {
		return fmt.Errorf("radius must be non-negative")
	}
	return nil
}
