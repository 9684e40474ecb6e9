// Package platform defines the OSM-derived platform record the matcher
// links to timetable locations.
package platform

import (
	"encoding/binary"

	"go.skia.org/transfers/transfers/geo"
)

// OSMType identifies the kind of OSM element a Platform was extracted
// from. It participates in Platform's binary Key and its equality.
type OSMType uint8

const (
	OSMTypeNode OSMType = iota
	OSMTypeWay
	OSMTypeRelation
	OSMTypeUnknown
)

// Char returns the single-letter representation used in log lines and
// debug dumps: n/w/r/u.
func (t OSMType) Char() byte {
	switch t {
	case OSMTypeNode:
		return 'n'
	case OSMTypeWay:
		return 'w'
	case OSMTypeRelation:
		return 'r'
	default:
		return 'u'
	}
}

// Platform is a walkable point derived from an OSM platform, stop
// position, tram stop, or bus stop. Two platforms are the same platform
// iff they share (OSMType, OSMID) — coordinates and names may be refined
// across extraction runs without changing identity.
type Platform struct {
	Loc       geo.LatLng
	OSMID     int64
	OSMType   OSMType
	Names     []string
	IsBusStop bool
}

// Key returns the platform's binary identity: osm_type (1 byte) followed
// by osm_id (8 bytes, little-endian signed). It is used as the primary
// key in the platforms table and as an element of matching records.
func (p Platform) Key() []byte {
	b := make([]byte, 9)
	b[0] = byte(p.OSMType)
	binary.LittleEndian.PutUint64(b[1:], uint64(p.OSMID))
	return b
}

// ParseKey is the inverse of Key.
func ParseKey(key []byte) (osmType OSMType, osmID int64) {
	return OSMType(key[0]), int64(binary.LittleEndian.Uint64(key[1:]))
}

// Equal reports whether a and b identify the same OSM element. It
// ignores Loc, Names, and IsBusStop — those may differ across extraction
// runs for the very same platform.
func (p Platform) Equal(other Platform) bool {
	return p.OSMID == other.OSMID && p.OSMType == other.OSMType
}
