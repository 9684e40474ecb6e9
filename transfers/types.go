// Package transfers implements the incremental transfer-precomputation
// engine: it links timetable locations to OSM platforms, generates and
// routes walking-transfer requests per pedestrian profile, and writes the
// results back as per-profile footpath tables.
package transfers

import (
	"encoding/binary"
	"math"

	"go.skia.org/transfers/transfers/geo"
)

// LocKey is the engine's identity for a timetable location: a 64-bit
// packed (lat_fixed || lng_fixed) coordinate, fixed = round(deg * 1e7).
// Two locations with the same coordinate are the same LocKey; the engine
// has no other notion of location identity.
type LocKey uint64

const fixedPointScale = 1e7

// EncodeLocKey packs a coordinate into its LocKey. Round-tripping through
// DecodeLocKey reproduces the same fixed-point value for any coordinate
// within +/-90 degrees latitude and +/-180 degrees longitude.
func EncodeLocKey(lat, lng float64) LocKey {
	latFixed := int32(math.Round(lat * fixedPointScale))
	lngFixed := int32(math.Round(lng * fixedPointScale))
	return LocKey(uint64(uint32(latFixed))<<32 | uint64(uint32(lngFixed)))
}

// DecodeLocKey unpacks a LocKey back into degrees.
func DecodeLocKey(k LocKey) (lat, lng float64) {
	latFixed := int32(uint32(k >> 32))
	lngFixed := int32(uint32(k))
	return float64(latFixed) / fixedPointScale, float64(lngFixed) / fixedPointScale
}

// Coordinate returns the LatLng this key decodes to.
func (k LocKey) Coordinate() geo.LatLng {
	lat, lng := DecodeLocKey(k)
	return geo.LatLng{Lat: lat, Lng: lng}
}

// Bytes returns the little-endian encoding of k, as used in the
// requests/results table keys (loc_key_le || profile_id).
func (k LocKey) Bytes() []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, uint64(k))
	return b
}

// ProfileID is an 8-bit handle for a named pedestrian routing profile,
// allocated monotonically on first sight of the profile name. IDs are
// never reused or renumbered.
type ProfileID uint8

// MaxProfiles bounds the number of distinct profiles the engine can track
// at once; the updater's write-back rebuilds the footpath tables of every
// id below MaxProfiles.
const MaxProfiles = 255

// RequestResultKey is the shared binary key layout for both the requests
// and results tables: loc_key (little-endian u64) || profile_id (u8).
func RequestResultKey(from LocKey, profile ProfileID) []byte {
	b := make([]byte, 9)
	binary.LittleEndian.PutUint64(b[:8], uint64(from))
	b[8] = byte(profile)
	return b
}

// ParseRequestResultKey is the inverse of RequestResultKey.
func ParseRequestResultKey(key []byte) (from LocKey, profile ProfileID) {
	return LocKey(binary.LittleEndian.Uint64(key[:8])), ProfileID(key[8])
}

// TransferRequestByKeys is a deferred routing task addressed purely by
// location keys and a profile id, before platform resolution. Invariants:
// From is never present in To, and To has no duplicates.
type TransferRequestByKeys struct {
	From    LocKey
	To      []LocKey
	Profile ProfileID
}

// Key returns the request's persistent key: from (le u64) || profile (u8).
func (r TransferRequestByKeys) Key() []byte {
	return RequestResultKey(r.From, r.Profile)
}

// TransferInfo is the per-destination payload of a TransferResult: the
// routed walking duration (rounded to whole timetable minutes) and the
// distance the router reported for the chosen candidate.
type TransferInfo struct {
	DurationMin int
	DistanceM   float64
}

// TransferResult is the materialized outcome of one TransferRequestByKeys:
// the destinations actually reached and their routing info, in the same
// order. Invariant: len(To) == len(Infos).
type TransferResult struct {
	From    LocKey
	To      []LocKey
	Profile ProfileID
	Infos   []TransferInfo
}

// Key returns the result's persistent key, using the same layout as its
// originating request.
func (r TransferResult) Key() []byte {
	return RequestResultKey(r.From, r.Profile)
}
