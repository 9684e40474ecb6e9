// Package extract recognises transit platforms in an OSM PBF extract and
// turns them into platform.Platform records.
package extract

import (
	"context"
	"io"

	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmpbf"

	"go.skia.org/transfers/go/skerr"
	"go.skia.org/transfers/go/sklog"
	"go.skia.org/transfers/transfers/geo"
	"go.skia.org/transfers/transfers/platform"
)

// nameTagPriority is the tag-key precedence used to pick a platform's
// names: every key present contributes a name, in this order.
var nameTagPriority = []string{"name", "description", "ref_name", "local_ref", "ref"}

// sentinelNoName is a value OSM contributors use in place of an absent
// name; it is never harvested.
const sentinelNoName = "n/a"

// Opener returns a fresh stream over the OSM PBF data each time it's
// called. The extractor needs two passes over the file — osmpbf.Scanner
// only reads forward — so the caller must be able to reopen it (e.g. by
// re-opening the same path).
type Opener func() (io.ReadCloser, error)

// Extractor recognises platforms in an OSM PBF file.
type Extractor struct {
	Opener Opener
	// Procs bounds osmpbf's internal decode parallelism; 0 picks a
	// reasonable default.
	Procs int
}

func (e *Extractor) procs() int {
	if e.Procs > 0 {
		return e.Procs
	}
	return 3
}

// Extract recognises every platform in the configured OSM file and
// returns them. Objects are recognised by isPlatformTags; names come from
// namesFrom; highway=bus_stop sets IsBusStop; way and relation
// coordinates are the arithmetic mean of their outer-ring node
// coordinates.
func (e *Extractor) Extract(ctx context.Context) ([]platform.Platform, error) {
	nodeCoords, wayNodeIDs, err := e.collectGeometry(ctx)
	if err != nil {
		return nil, skerr.Wrap(err)
	}

	r, err := e.Opener()
	if err != nil {
		return nil, skerr.Wrap(err)
	}
	defer r.Close()

	scanner := osmpbf.New(ctx, r, e.procs())
	defer scanner.Close()

	var out []platform.Platform
	for scanner.Scan() {
		switch el := scanner.Object().(type) {
		case *osm.Node:
			if !isPlatformTags(el.Tags) {
				continue
			}
			out = append(out, platform.Platform{
				Loc:       geo.LatLng{Lat: el.Lat, Lng: el.Lon},
				OSMID:     int64(el.ID),
				OSMType:   platform.OSMTypeNode,
				Names:     namesFrom(el.Tags),
				IsBusStop: isBusStop(el.Tags),
			})
		case *osm.Way:
			if !isPlatformTags(el.Tags) {
				continue
			}
			loc, ok := centroidOfNodeIDs(el.Nodes.NodeIDs(), nodeCoords)
			if !ok {
				continue
			}
			out = append(out, platform.Platform{
				Loc:       loc,
				OSMID:     int64(el.ID),
				OSMType:   platform.OSMTypeWay,
				Names:     namesFrom(el.Tags),
				IsBusStop: isBusStop(el.Tags),
			})
		case *osm.Relation:
			if !isPlatformTags(el.Tags) {
				continue
			}
			loc, ok := centroidOfRelation(el, wayNodeIDs, nodeCoords)
			if !ok {
				continue
			}
			out = append(out, platform.Platform{
				Loc:       loc,
				OSMID:     int64(el.ID),
				OSMType:   platform.OSMTypeRelation,
				Names:     namesFrom(el.Tags),
				IsBusStop: isBusStop(el.Tags),
			})
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, skerr.Wrap(err)
	}
	sklog.Infof("extracted %d platforms", len(out))
	return out, nil
}

// collectGeometry makes the first pass: every node's coordinate, and
// every way's ordered node-id list (needed later to resolve a
// relation's outer-ring member ways, regardless of whether the way
// itself carries platform tags).
func (e *Extractor) collectGeometry(ctx context.Context) (map[osm.NodeID]geo.LatLng, map[osm.WayID][]osm.NodeID, error) {
	r, err := e.Opener()
	if err != nil {
		return nil, nil, skerr.Wrap(err)
	}
	defer r.Close()

	scanner := osmpbf.New(ctx, r, e.procs())
	defer scanner.Close()

	nodeCoords := map[osm.NodeID]geo.LatLng{}
	wayNodeIDs := map[osm.WayID][]osm.NodeID{}
	for scanner.Scan() {
		switch el := scanner.Object().(type) {
		case *osm.Node:
			nodeCoords[el.ID] = geo.LatLng{Lat: el.Lat, Lng: el.Lon}
		case *osm.Way:
			wayNodeIDs[el.ID] = el.Nodes.NodeIDs()
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, skerr.Wrap(err)
	}
	return nodeCoords, wayNodeIDs, nil
}

func isPlatformTags(tags osm.Tags) bool {
	m := tags.Map()
	if v := m["public_transport"]; v == "platform" || v == "stop_position" {
		return true
	}
	if v := m["railway"]; v == "platform" || v == "tram_stop" {
		return true
	}
	return false
}

func isBusStop(tags osm.Tags) bool {
	return tags.Map()["highway"] == "bus_stop"
}

func namesFrom(tags osm.Tags) []string {
	m := tags.Map()
	var names []string
	seen := map[string]bool{}
	for _, key := range nameTagPriority {
		v := m[key]
		if v == "" || v == sentinelNoName || seen[v] {
			continue
		}
		seen[v] = true
		names = append(names, v)
	}
	return names
}

func centroidOfNodeIDs(ids []osm.NodeID, nodeCoords map[osm.NodeID]geo.LatLng) (geo.LatLng, bool) {
	var sumLat, sumLng float64
	n := 0
	for _, id := range ids {
		coord, ok := nodeCoords[id]
		if !ok {
			continue
		}
		sumLat += coord.Lat
		sumLng += coord.Lng
		n++
	}
	if n == 0 {
		return geo.LatLng{}, false
	}
	return geo.LatLng{Lat: sumLat / float64(n), Lng: sumLng / float64(n)}, true
}

// centroidOfRelation approximates a multipolygon's outer ring as the
// concatenation of its "outer"-role way members' node lists.
func centroidOfRelation(rel *osm.Relation, wayNodeIDs map[osm.WayID][]osm.NodeID, nodeCoords map[osm.NodeID]geo.LatLng) (geo.LatLng, bool) {
	var ids []osm.NodeID
	for _, m := range rel.Members {
		if m.Type != osm.TypeWay || m.Role != "outer" {
			continue
		}
		ids = append(ids, wayNodeIDs[osm.WayID(m.Ref)]...)
	}
	return centroidOfNodeIDs(ids, nodeCoords)
}
