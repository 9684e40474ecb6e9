// Package state holds the old/update snapshot pair that makes the engine's
// updates incremental: two parallel, immutable views over platforms,
// matched platforms, and (for routing) accumulated requests and results.
package state

import (
	"go.skia.org/transfers/transfers"
	"go.skia.org/transfers/transfers/platform/index"
)

// State is one half of the old/update partition (§3): a spatial index of
// all known platforms, a spatial index of only the platforms that are
// matched to a timetable location, an ordinally-aligned list of the
// matched locations' keys (LocKeys[i] is the location matched to
// MatchedPfsIdx.Get(i)), the full matches map, and this run's requests
// and results.
type State struct {
	PfsIdx        *index.Index
	MatchedPfsIdx *index.Index
	LocKeys       []transfers.LocKey
	Matches       map[transfers.LocKey][]byte // loc_key -> platform key
	Requests      []transfers.TransferRequestByKeys
	Results       []transfers.TransferResult
}

// Empty returns a State with no platforms, matches, requests, or results;
// used as the old state on a first (full) run.
func Empty() State {
	return State{
		PfsIdx:        index.New(nil),
		MatchedPfsIdx: index.New(nil),
		Matches:       map[transfers.LocKey][]byte{},
	}
}

// Size returns the number of matched, ordinally-aligned locations this
// state carries.
func (s State) Size() int {
	if s.MatchedPfsIdx == nil {
		return 0
	}
	return s.MatchedPfsIdx.Size()
}
