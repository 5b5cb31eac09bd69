// Package model defines core domain types shared across the service.
package model

import (
	"fmt"
	"time"
)

// GeoPoint is a WGS84 coordinate in degrees.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (p GeoPoint) String() string {
	return fmt.Sprintf("%.6f,%.6f", p.Lat, p.Lng)
}

// LocationRecord is one feed item tied to a point on the map.
// Equality is by content; two records carrying the same fields are the
// same record for deduplication purposes.
type LocationRecord struct {
	ID       string    `json:"id"`
	Location GeoPoint  `json:"location"`
	Title    string    `json:"title,omitempty"`
	AudioURL string    `json:"audio_url,omitempty"`
	PostedAt time.Time `json:"posted_at,omitempty"`
}

// CachedRegion is the coverage left behind by one satisfied query:
// a disk plus exactly the records the real fetch returned for it.
// Regions are never mutated after insertion.
type CachedRegion struct {
	ID        string           `json:"id"`
	Center    GeoPoint         `json:"center"`
	Radius    float64          `json:"radius"` // meters, fixed at creation
	Records   []LocationRecord `json:"records"`
	CreatedAt time.Time        `json:"created_at"`
}

// Age reports how old the region is relative to now.
func (r CachedRegion) Age(now time.Time) time.Duration {
	return now.Sub(r.CreatedAt)
}

// Outcome classifies a dedup query against the cached coverage.
type Outcome int

const (
	OutcomeMiss Outcome = iota
	OutcomeHit
	OutcomePartialHit
)

func (o Outcome) String() string {
	switch o {
	case OutcomeHit:
		return "hit"
	case OutcomePartialHit:
		return "partial_hit"
	default:
		return "miss"
	}
}

// Result is the answer to a dedup check.
//
// Hit: Records holds the covering region's payload and Region points at it.
// PartialHit: Records holds the merged records from overlapping regions that
// fall inside the query disk, Overlapping lists those regions, and RequestID
// carries a fresh id the caller should use when committing its real fetch.
// Miss: only RequestID is set.
type Result struct {
	Outcome     Outcome
	Records     []LocationRecord
	Region      *CachedRegion
	Overlapping []CachedRegion
	RequestID   string
}
