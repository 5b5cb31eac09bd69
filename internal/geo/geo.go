// Package geo provides spherical-distance and disk containment/overlap
// predicates over circular regions on the Earth's surface.
package geo

import (
	"math"

	"github.com/echoloc/regioncache/internal/core/model"
)

// EarthRadiusM is the mean Earth radius used by Distance.
const EarthRadiusM = 6_371_000.0

// Distance returns the great-circle distance between a and b in meters,
// computed with the haversine formula. Symmetric in its arguments.
func Distance(a, b model.GeoPoint) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	sinLat := math.Sin(dLat / 2)
	sinLng := math.Sin(dLng / 2)
	h := sinLat*sinLat + math.Cos(lat1)*math.Cos(lat2)*sinLng*sinLng
	return EarthRadiusM * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// Contains reports whether the whole query disk (center, radius) lies
// within the region's disk. Partial coverage of a query area is not a
// safe cache hit, so this is deliberately stronger than center-in-circle.
func Contains(region model.CachedRegion, center model.GeoPoint, radius float64) bool {
	return Distance(region.Center, center)+radius <= region.Radius
}

// Overlaps reports whether the region's disk and the disk (center, radius)
// intersect. Strict inequality: disks that merely touch do not overlap.
func Overlaps(region model.CachedRegion, center model.GeoPoint, radius float64) bool {
	return Distance(region.Center, center) < region.Radius+radius
}

// WithinRadius reports whether p lies inside the disk (center, radius).
// Used to filter individual records into a query's footprint.
func WithinRadius(p, center model.GeoPoint, radius float64) bool {
	return Distance(p, center) <= radius
}
