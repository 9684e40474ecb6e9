// Package timetable defines the narrow surface the engine needs from the
// timetable it enriches: an ordered location list to read, and per-profile
// footpath tables to rebuild and persist. The timetable's own schedule
// data is out of scope; the engine only ever reads coordinates and writes
// footpaths.
package timetable

import "go.skia.org/transfers/transfers"

// Location is one timetable stop, identified by its packed coordinate.
// Two locations sharing a coordinate are indistinguishable to the engine.
type Location struct {
	Key transfers.LocKey
}

// FootpathInfo is the per-edge payload the engine computes: a walking
// duration (already rounded to whole timetable minutes) and the distance
// the router reported for the chosen candidate.
type FootpathInfo struct {
	DurationMin int
	DistanceM   float64
}

// Footpath is one directed walking edge to or from a location.
type Footpath struct {
	Other transfers.LocKey
	Info  FootpathInfo
}

// Timetable is the engine's view of its host. Implementations own the
// actual schedule; the engine only reads Locations and calls the
// ClearFootpaths/AddOutbound/AddInbound/WriteTo methods during §4.7
// write-back.
type Timetable interface {
	// Locations returns the timetable's locations in its own stable order.
	Locations() []Location

	// ClearFootpaths drops all footpaths (inbound and outbound) currently
	// stored for profile, across every location. Called once per profile
	// before that profile's footpaths are re-emitted.
	ClearFootpaths(profile transfers.ProfileID)

	// AddOutbound appends an outbound footpath at location from, for profile.
	AddOutbound(profile transfers.ProfileID, from transfers.LocKey, fp Footpath)

	// AddInbound appends an inbound footpath at location to, for profile.
	AddInbound(profile transfers.ProfileID, to transfers.LocKey, fp Footpath)

	// WriteTo persists the timetable (schedule plus rebuilt footpaths) to path.
	WriteTo(path string) error
}

// InMemory is a minimal Timetable suitable for tests and small demos: it
// holds its locations and footpath tables entirely in memory, and
// WriteTo is a no-op recording the last path it was asked to write.
type InMemory struct {
	locs      []Location
	outbound  map[transfers.ProfileID]map[transfers.LocKey][]Footpath
	inbound   map[transfers.ProfileID]map[transfers.LocKey][]Footpath
	lastWrite string
}

// NewInMemory builds an InMemory timetable over the given locations.
func NewInMemory(locs []Location) *InMemory {
	return &InMemory{
		locs:     locs,
		outbound: map[transfers.ProfileID]map[transfers.LocKey][]Footpath{},
		inbound:  map[transfers.ProfileID]map[transfers.LocKey][]Footpath{},
	}
}

func (tt *InMemory) Locations() []Location { return tt.locs }

func (tt *InMemory) ClearFootpaths(profile transfers.ProfileID) {
	tt.outbound[profile] = map[transfers.LocKey][]Footpath{}
	tt.inbound[profile] = map[transfers.LocKey][]Footpath{}
}

func (tt *InMemory) AddOutbound(profile transfers.ProfileID, from transfers.LocKey, fp Footpath) {
	if tt.outbound[profile] == nil {
		tt.outbound[profile] = map[transfers.LocKey][]Footpath{}
	}
	tt.outbound[profile][from] = append(tt.outbound[profile][from], fp)
}

func (tt *InMemory) AddInbound(profile transfers.ProfileID, to transfers.LocKey, fp Footpath) {
	if tt.inbound[profile] == nil {
		tt.inbound[profile] = map[transfers.LocKey][]Footpath{}
	}
	tt.inbound[profile][to] = append(tt.inbound[profile][to], fp)
}

func (tt *InMemory) WriteTo(path string) error {
	tt.lastWrite = path
	return nil
}

// Outbound returns the outbound footpaths recorded at loc for profile, for
// test assertions.
func (tt *InMemory) Outbound(profile transfers.ProfileID, loc transfers.LocKey) []Footpath {
	return tt.outbound[profile][loc]
}

// Inbound returns the inbound footpaths recorded at loc for profile, for
// test assertions.
func (tt *InMemory) Inbound(profile transfers.ProfileID, loc transfers.LocKey) []Footpath {
	return tt.inbound[profile][loc]
}

// LastWritePath returns the path passed to the most recent WriteTo call.
func (tt *InMemory) LastWritePath() string {
	return tt.lastWrite
}
