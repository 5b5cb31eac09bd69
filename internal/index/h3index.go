// Package index narrows region scans with a coarse H3 covering. Each
// region is registered under the cells covering its disk; a query only
// considers regions sharing a covering cell with its own disk.
//
// The covering over-approximates both disks, so narrowing can produce
// false candidates (filtered out by the exact geo predicates) and, at
// worst, a redundant fetch — never a false hit.
package index

import (
	"fmt"
	"math"
	"sync"

	h3 "github.com/uber/h3-go/v4"

	"github.com/echoloc/regioncache/internal/core/model"
)

// average hexagon edge length in meters per H3 resolution
var avgEdgeM = [16]float64{
	1_281_256.0, 483_056.8, 182_512.9, 68_979.2,
	26_071.8, 9_854.1, 3_724.5, 1_406.5,
	531.4, 200.8, 75.9, 28.7,
	10.8, 4.1, 1.5, 0.58,
}

// maxRings caps the disk size so a huge radius at a fine resolution
// cannot blow up the covering; such queries fall back to a full scan.
const maxRings = 32

type Index struct {
	res int

	mu        sync.RWMutex
	byCell    map[string]map[string]struct{} // cell -> region ids
	byRegion  map[string][]string            // region id -> cells
	unindexed int                            // regions too large to cover
}

func New(res int) (*Index, error) {
	if res < 0 || res > 15 {
		return nil, fmt.Errorf("invalid H3 resolution %d (must be 0..15)", res)
	}
	return &Index{
		res:      res,
		byCell:   make(map[string]map[string]struct{}),
		byRegion: make(map[string][]string),
	}, nil
}

// Covering returns the H3 cells covering the disk. ok is false when the
// disk is too large for the index resolution; callers must fall back to
// scanning everything.
func (ix *Index) Covering(center model.GeoPoint, radius float64) ([]string, bool, error) {
	edge := avgEdgeM[ix.res]
	k := int(math.Ceil(radius/edge)) + 1
	if k > maxRings {
		return nil, false, nil
	}

	origin, err := h3.LatLngToCell(h3.NewLatLng(center.Lat, center.Lng), ix.res)
	if err != nil {
		return nil, false, fmt.Errorf("h3 cell for %s: %w", center, err)
	}
	disk, err := h3.GridDisk(origin, k)
	if err != nil {
		return nil, false, fmt.Errorf("h3 grid disk k=%d: %w", k, err)
	}

	out := make([]string, 0, len(disk))
	for _, c := range disk {
		out = append(out, c.String())
	}
	return out, true, nil
}

// Add registers a region under its covering cells. A region whose disk is
// too large for the resolution is deliberately left unindexed; Candidates
// reports full-scan for every query until it is removed.
func (ix *Index) Add(region model.CachedRegion) error {
	cells, ok, err := ix.Covering(region.Center, region.Radius)
	if err != nil {
		return err
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	if !ok {
		ix.unindexed++
		ix.byRegion[region.ID] = nil
		return nil
	}
	ix.byRegion[region.ID] = cells
	for _, c := range cells {
		set := ix.byCell[c]
		if set == nil {
			set = make(map[string]struct{})
			ix.byCell[c] = set
		}
		set[region.ID] = struct{}{}
	}
	return nil
}

func (ix *Index) Remove(ids ...string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	for _, id := range ids {
		cells, ok := ix.byRegion[id]
		if !ok {
			continue
		}
		if cells == nil {
			ix.unindexed--
		}
		for _, c := range cells {
			if set := ix.byCell[c]; set != nil {
				delete(set, id)
				if len(set) == 0 {
					delete(ix.byCell, c)
				}
			}
		}
		delete(ix.byRegion, id)
	}
}

// Candidates returns the ids worth checking for the query disk. full is
// true when the caller must scan the whole store instead: either the query
// disk is too coarse for the index or an oversized region is unindexed.
func (ix *Index) Candidates(center model.GeoPoint, radius float64) (ids []string, full bool, err error) {
	cells, ok, err := ix.Covering(center, radius)
	if err != nil {
		return nil, true, err
	}
	if !ok {
		return nil, true, nil
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if ix.unindexed > 0 {
		return nil, true, nil
	}
	seen := make(map[string]struct{})
	for _, c := range cells {
		for id := range ix.byCell[c] {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	return ids, false, nil
}

func (ix *Index) Clear() {
	ix.mu.Lock()
	ix.byCell = make(map[string]map[string]struct{})
	ix.byRegion = make(map[string][]string)
	ix.unindexed = 0
	ix.mu.Unlock()
}
