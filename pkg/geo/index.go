package geo

import (
	"math"
	"sort"
	"sync"

	"github.com/iamsogoodlo/QuickNurse/internal/model"
)

// cellSizeDeg is the grid bucket size in degrees of latitude/longitude.
// 0.25° of latitude ≈ 17 miles, so typical dispatch radii (≤20 mi) touch a
// handful of cells.
const cellSizeDeg = 0.25

// Match is one index hit: an entity and its distance from the query point,
// in miles.
type Match struct {
	ID            string  `json:"id"`
	DistanceMiles float64 `json:"distance_miles"`
}

type cell struct {
	latIdx int
	lngIdx int
}

// Index is a thread-safe in-memory spatial index over entity positions.
// It replaces a database-native geospatial index so the dispatch core stays
// storage-agnostic: a flat grid of buckets, scanned ring-by-ring at query
// time and sorted nearest-first.
//
// Entities with invalid coordinates are rejected at Upsert, so queries never
// observe them.
type Index struct {
	mu      sync.RWMutex
	points  map[string]model.Location
	buckets map[cell]map[string]struct{}
}

// NewIndex creates an empty spatial index.
func NewIndex() *Index {
	return &Index{
		points:  make(map[string]model.Location),
		buckets: make(map[cell]map[string]struct{}),
	}
}

// Upsert inserts or moves an entity. Invalid coordinates remove the entity
// instead of failing the next query.
func (ix *Index) Upsert(id string, loc model.Location) {
	if !loc.Valid() {
		ix.Remove(id)
		return
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	if old, ok := ix.points[id]; ok {
		ix.unbucket(id, old)
	}
	ix.points[id] = loc
	c := cellOf(loc)
	if ix.buckets[c] == nil {
		ix.buckets[c] = make(map[string]struct{})
	}
	ix.buckets[c][id] = struct{}{}
}

// Remove deletes an entity from the index. Unknown ids are a no-op.
func (ix *Index) Remove(id string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if old, ok := ix.points[id]; ok {
		ix.unbucket(id, old)
		delete(ix.points, id)
	}
}

// Contains reports whether the entity is currently indexed.
func (ix *Index) Contains(id string) bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	_, ok := ix.points[id]
	return ok
}

// Len returns the number of indexed entities.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.points)
}

// Query returns up to limit entities within radiusMiles of the given point,
// nearest first. limit <= 0 means no cap.
//
// Complexity: O(C + K log K) where C = entities in the touched cells and
// K = matches within the radius.
func (ix *Index) Query(center model.Location, radiusMiles float64, limit int) []Match {
	if !center.Valid() || radiusMiles <= 0 {
		return nil
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	matches := make([]Match, 0, 16)
	for _, c := range cellsInRange(center, radiusMiles) {
		for id := range ix.buckets[c] {
			d := Miles(center, ix.points[id])
			if d <= radiusMiles {
				matches = append(matches, Match{ID: id, DistanceMiles: d})
			}
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].DistanceMiles < matches[j].DistanceMiles
	})

	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}

// ─── Internals ──────────────────────────────────────────────

// unbucket removes id from the bucket holding loc. Caller holds ix.mu.
func (ix *Index) unbucket(id string, loc model.Location) {
	c := cellOf(loc)
	if b := ix.buckets[c]; b != nil {
		delete(b, id)
		if len(b) == 0 {
			delete(ix.buckets, c)
		}
	}
}

func cellOf(loc model.Location) cell {
	return cell{latIdx: cellIdx(loc.Lat), lngIdx: cellIdx(loc.Lng)}
}

func cellIdx(deg float64) int {
	return int(math.Floor(deg / cellSizeDeg))
}

// cellsInRange returns all cells a circle of radiusMiles around center can
// intersect. One degree of latitude ≈ 69 miles; longitude degrees shrink by
// cos(lat), clamped near the poles.
func cellsInRange(center model.Location, radiusMiles float64) []cell {
	latDelta := radiusMiles / 69.0
	cosLat := math.Abs(math.Cos(degToRad(center.Lat)))
	if cosLat < 0.01 {
		cosLat = 0.01
	}
	lngDelta := radiusMiles / (69.0 * cosLat)

	minLat := cellIdx(center.Lat - latDelta)
	maxLat := cellIdx(center.Lat + latDelta)
	minLng := cellIdx(center.Lng - lngDelta)
	maxLng := cellIdx(center.Lng + lngDelta)

	cells := make([]cell, 0, (maxLat-minLat+1)*(maxLng-minLng+1))
	for la := minLat; la <= maxLat; la++ {
		for ln := minLng; ln <= maxLng; ln++ {
			cells = append(cells, cell{latIdx: la, lngIdx: ln})
		}
	}
	return cells
}
