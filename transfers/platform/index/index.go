// Package index provides an in-memory spatial index over platforms,
// backed by a geographic grid: a simple, dependency-free structure that
// keeps neighbor queries close to O(1) per cell without committing to an
// external R-tree implementation.
package index

import (
	"math"

	"go.skia.org/transfers/transfers/geo"
	"go.skia.org/transfers/transfers/platform"
)

// cellSizeM is the edge length of one grid cell. Neighbor queries scan a
// square block of cells reaching ceil(radius/cellSizeM)+1 cells out from
// the query's cell in each direction (5x5 for any radius up to one cell),
// so cell size trades index memory against per-query scan width;
// it need not relate to any particular matching or request radius.
const cellSizeM = 500.0

const metersPerDegreeLat = 111_320.0

type cellKey struct {
	x, y int64
}

// Index answers size/get/neighbors queries over a fixed platform set.
// Ordinal ids are the insertion order passed to New and are stable for
// the lifetime of the Index.
type Index struct {
	platforms []platform.Platform
	cells     map[cellKey][]int
}

// New builds an Index over platforms, in the given order; Get(i) returns
// platforms[i].
func New(platforms []platform.Platform) *Index {
	idx := &Index{
		platforms: platforms,
		cells:     make(map[cellKey][]int, len(platforms)),
	}
	for i, p := range platforms {
		ck := idx.cellOf(p.Loc)
		idx.cells[ck] = append(idx.cells[ck], i)
	}
	return idx
}

func (idx *Index) cellOf(p geo.LatLng) cellKey {
	metersPerDegreeLng := metersPerDegreeLat * math.Cos(p.Lat*math.Pi/180)
	if metersPerDegreeLng < 1 {
		metersPerDegreeLng = 1
	}
	x := int64(math.Floor(p.Lng * metersPerDegreeLng / cellSizeM))
	y := int64(math.Floor(p.Lat * metersPerDegreeLat / cellSizeM))
	return cellKey{x, y}
}

// Size returns the number of platforms in the index.
func (idx *Index) Size() int {
	return len(idx.platforms)
}

// Get returns the platform at ordinal i.
func (idx *Index) Get(i int) platform.Platform {
	return idx.platforms[i]
}

// NeighborsOf returns the ordinal ids of platforms within radiusM of p's
// coordinate (great-circle distance, inclusive), excluding any platform
// whose (osm_type, osm_id) equals p's own.
func (idx *Index) NeighborsOf(p platform.Platform, radiusM float64) []int {
	var out []int
	idx.scan(p.Loc, radiusM, func(i int, cand platform.Platform) {
		if cand.Equal(p) {
			return
		}
		out = append(out, i)
	})
	return out
}

// NeighborsOfPoint returns the ordinal ids of platforms within radiusM of
// loc, with no self-exclusion; used by the matcher, which queries from a
// timetable location rather than from an existing platform.
func (idx *Index) NeighborsOfPoint(loc geo.LatLng, radiusM float64) []int {
	var out []int
	idx.scan(loc, radiusM, func(i int, _ platform.Platform) {
		out = append(out, i)
	})
	return out
}

func (idx *Index) scan(loc geo.LatLng, radiusM float64, visit func(i int, cand platform.Platform)) {
	span := int64(math.Ceil(radiusM/cellSizeM)) + 1
	center := idx.cellOf(loc)
	for dx := -span; dx <= span; dx++ {
		for dy := -span; dy <= span; dy++ {
			for _, i := range idx.cells[cellKey{center.x + dx, center.y + dy}] {
				cand := idx.platforms[i]
				if loc.DistanceTo(cand.Loc) <= radiusM {
					visit(i, cand)
				}
			}
		}
	}
}
