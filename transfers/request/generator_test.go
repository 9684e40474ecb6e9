package request

import (
	"testing"

	"github.com/stretchr/testify/require"

	"go.skia.org/transfers/transfers"
	"go.skia.org/transfers/transfers/platform"
	"go.skia.org/transfers/transfers/platform/index"
	"go.skia.org/transfers/transfers/profile"
	"go.skia.org/transfers/transfers/state"
)

func matchedState(locKeys []transfers.LocKey, pfs []platform.Platform) state.State {
	idx := index.New(pfs)
	return state.State{
		PfsIdx:        idx,
		MatchedPfsIdx: idx,
		LocKeys:       locKeys,
		Matches:       map[transfers.LocKey][]byte{},
	}
}

func TestGenerate_S1_EmitsRequestBothDirections(t *testing.T) {
	a := transfers.EncodeLocKey(48.0000000, 11.0000000)
	b := transfers.EncodeLocKey(48.0010000, 11.0000000)
	pfA := platform.Platform{OSMType: platform.OSMTypeNode, OSMID: 1, Loc: a.Coordinate()}
	pfB := platform.Platform{OSMType: platform.OSMTypeNode, OSMID: 2, Loc: b.Coordinate()}

	update := matchedState([]transfers.LocKey{a, b}, []platform.Platform{pfA, pfB})
	old := state.Empty()

	profiles := map[transfers.ProfileID]profile.Params{
		0: {WalkingSpeedMPS: 1.4, DurationLimitS: 300},
	}
	reqs := Generate(old, update, profiles, Options{})

	byFrom := map[transfers.LocKey]transfers.TransferRequestByKeys{}
	for _, r := range reqs {
		byFrom[r.From] = r
	}
	require.Contains(t, byFrom, a)
	require.Contains(t, byFrom, b)
	require.Equal(t, []transfers.LocKey{b}, byFrom[a].To)
	require.Equal(t, []transfers.LocKey{a}, byFrom[b].To)
}

func TestGenerate_SkipsEmptyStates(t *testing.T) {
	profiles := map[transfers.ProfileID]profile.Params{0: {WalkingSpeedMPS: 1.4, DurationLimitS: 300}}
	reqs := Generate(state.Empty(), state.Empty(), profiles, Options{})
	require.Empty(t, reqs)
}

func TestGenerate_OldToOldOnlyWhenRequested(t *testing.T) {
	a := transfers.EncodeLocKey(48.0, 11.0)
	b := transfers.EncodeLocKey(48.001, 11.0)
	pfA := platform.Platform{OSMType: platform.OSMTypeNode, OSMID: 1, Loc: a.Coordinate()}
	pfB := platform.Platform{OSMType: platform.OSMTypeNode, OSMID: 2, Loc: b.Coordinate()}
	old := matchedState([]transfers.LocKey{a, b}, []platform.Platform{pfA, pfB})
	update := state.Empty()

	profiles := map[transfers.ProfileID]profile.Params{0: {WalkingSpeedMPS: 1.4, DurationLimitS: 300}}

	require.Empty(t, Generate(old, update, profiles, Options{OldToOld: false}))
	require.NotEmpty(t, Generate(old, update, profiles, Options{OldToOld: true}))
}

func TestGenerate_NeverProducesSelfLoopOrDuplicateDestination(t *testing.T) {
	a := transfers.EncodeLocKey(48.0, 11.0)
	b := transfers.EncodeLocKey(48.001, 11.0)
	pfA := platform.Platform{OSMType: platform.OSMTypeNode, OSMID: 1, Loc: a.Coordinate()}
	pfB := platform.Platform{OSMType: platform.OSMTypeNode, OSMID: 2, Loc: b.Coordinate()}
	update := matchedState([]transfers.LocKey{a, b}, []platform.Platform{pfA, pfB})

	profiles := map[transfers.ProfileID]profile.Params{0: {WalkingSpeedMPS: 1.4, DurationLimitS: 300}}
	for _, r := range Generate(state.Empty(), update, profiles, Options{}) {
		seen := map[transfers.LocKey]bool{}
		for _, to := range r.To {
			require.NotEqual(t, r.From, to)
			require.False(t, seen[to])
			seen[to] = true
		}
	}
}
