// Package matching binds timetable locations to their nearest qualifying
// OSM platform.
package matching

import (
	"go.skia.org/transfers/transfers"
	"go.skia.org/transfers/transfers/platform"
	"go.skia.org/transfers/transfers/platform/index"
	"go.skia.org/transfers/transfers/timetable"
)

// Default matching radii, in metres.
const (
	DefaultMaxMatchingDistM        = 400.0
	DefaultMaxBusStopMatchingDistM = 120.0
)

// Options configures the matcher's search radii.
type Options struct {
	MaxMatchingDistM        float64
	MaxBusStopMatchingDistM float64
}

// DefaultOptions returns the spec-default radii.
func DefaultOptions() Options {
	return Options{
		MaxMatchingDistM:        DefaultMaxMatchingDistM,
		MaxBusStopMatchingDistM: DefaultMaxBusStopMatchingDistM,
	}
}

// Data is the matcher's input: the locations to consider, the matches
// already on record (from the old state — these are never rematched),
// and the old and update platform indices. UpdateIndex may be nil on a
// first run, before any platforms have been extracted this run.
type Data struct {
	LocationsToMatch []timetable.Location
	AlreadyMatched   map[transfers.LocKey]platform.Platform
	OldIndex         *index.Index
	UpdateIndex      *index.Index
}

// Result pairs a matched platform with its location.
type Result struct {
	Platform platform.Platform
	Location timetable.Location
}

// candidate radius, in metres, for a platform of this kind.
func radiusFor(p platform.Platform, opts Options) float64 {
	if p.IsBusStop {
		return opts.MaxBusStopMatchingDistM
	}
	return opts.MaxMatchingDistM
}

// Match returns one Result per previously unmatched location in
// data.LocationsToMatch that has any candidate platform within its
// radius. Candidates come from the union of data.OldIndex and
// data.UpdateIndex; the winner is the one minimizing great-circle
// distance, tie-broken by (osm_type ordinal, osm_id).
func Match(data Data, opts Options) []Result {
	var results []Result
	for _, loc := range data.LocationsToMatch {
		if _, already := data.AlreadyMatched[loc.Key]; already {
			continue
		}
		best, ok := bestCandidate(loc, data, opts)
		if !ok {
			continue
		}
		results = append(results, Result{Platform: best, Location: loc})
	}
	return results
}

func bestCandidate(loc timetable.Location, data Data, opts Options) (platform.Platform, bool) {
	coord := loc.Key.Coordinate()
	// The widest radius bounds the search; each candidate is then
	// filtered against its own type-specific radius below.
	searchRadius := opts.MaxMatchingDistM
	if opts.MaxBusStopMatchingDistM > searchRadius {
		searchRadius = opts.MaxBusStopMatchingDistM
	}

	var best platform.Platform
	haveBest := false
	var bestDist float64

	consider := func(idx *index.Index) {
		if idx == nil {
			return
		}
		for _, i := range idx.NeighborsOfPoint(coord, searchRadius) {
			cand := idx.Get(i)
			d := coord.DistanceTo(cand.Loc)
			if d > radiusFor(cand, opts) {
				continue
			}
			if !haveBest || isBetterCandidate(cand, d, best, bestDist) {
				best, bestDist, haveBest = cand, d, true
			}
		}
	}
	consider(data.OldIndex)
	consider(data.UpdateIndex)
	return best, haveBest
}

// isBetterCandidate reports whether (cand, dist) should replace
// (incumbent, incumbentDist) as the matcher's pick: smaller distance
// wins, ties broken by (osm_type ordinal, osm_id).
func isBetterCandidate(cand platform.Platform, dist float64, incumbent platform.Platform, incumbentDist float64) bool {
	if dist != incumbentDist {
		return dist < incumbentDist
	}
	if cand.OSMType != incumbent.OSMType {
		return cand.OSMType < incumbent.OSMType
	}
	return cand.OSMID < incumbent.OSMID
}
