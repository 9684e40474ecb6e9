package matching

import (
	"testing"

	"github.com/stretchr/testify/require"

	"go.skia.org/transfers/transfers"
	"go.skia.org/transfers/transfers/platform"
	"go.skia.org/transfers/transfers/platform/index"
	"go.skia.org/transfers/transfers/timetable"
)

func TestMatch_S1_BothLocationsMatchNearestPlatform(t *testing.T) {
	a := transfers.EncodeLocKey(48.0000000, 11.0000000)
	b := transfers.EncodeLocKey(48.0010000, 11.0000000)

	pfs := []platform.Platform{
		{OSMType: platform.OSMTypeNode, OSMID: 1, Loc: a.Coordinate()},
		{OSMType: platform.OSMTypeNode, OSMID: 2, Loc: b.Coordinate()},
	}
	idx := index.New(pfs)

	data := Data{
		LocationsToMatch: []timetable.Location{{Key: a}, {Key: b}},
		AlreadyMatched:   map[transfers.LocKey]platform.Platform{},
		UpdateIndex:      idx,
	}
	results := Match(data, DefaultOptions())
	require.Len(t, results, 2)
}

func TestMatch_S2_BusStopUsesTighterRadiusByDefault(t *testing.T) {
	c := transfers.EncodeLocKey(48.0020000, 11.0000000) // ~200m from the stop
	stop := platform.Platform{OSMType: platform.OSMTypeNode, OSMID: 9, IsBusStop: true, Loc: transfers.EncodeLocKey(48.0000000, 11.0000000).Coordinate()}
	idx := index.New([]platform.Platform{stop})

	data := Data{
		LocationsToMatch: []timetable.Location{{Key: c}},
		AlreadyMatched:   map[transfers.LocKey]platform.Platform{},
		UpdateIndex:      idx,
	}
	require.Empty(t, Match(data, DefaultOptions()))

	loosened := Options{MaxMatchingDistM: DefaultMaxMatchingDistM, MaxBusStopMatchingDistM: 300}
	require.Len(t, Match(data, loosened), 1)
}

func TestMatch_SkipsAlreadyMatchedLocations(t *testing.T) {
	a := transfers.EncodeLocKey(48.0, 11.0)
	pf := platform.Platform{OSMType: platform.OSMTypeNode, OSMID: 1, Loc: a.Coordinate()}
	idx := index.New([]platform.Platform{pf})

	data := Data{
		LocationsToMatch: []timetable.Location{{Key: a}},
		AlreadyMatched:   map[transfers.LocKey]platform.Platform{a: pf},
		UpdateIndex:      idx,
	}
	require.Empty(t, Match(data, DefaultOptions()))
}

func TestMatch_NoCandidateWithinRadius_LocationUnmatched(t *testing.T) {
	far := transfers.EncodeLocKey(49.0, 11.0)
	pf := platform.Platform{OSMType: platform.OSMTypeNode, OSMID: 1, Loc: transfers.EncodeLocKey(48.0, 11.0).Coordinate()}
	idx := index.New([]platform.Platform{pf})

	data := Data{
		LocationsToMatch: []timetable.Location{{Key: far}},
		AlreadyMatched:   map[transfers.LocKey]platform.Platform{},
		UpdateIndex:      idx,
	}
	require.Empty(t, Match(data, DefaultOptions()))
}

func TestMatch_TieBreaksByTypeThenID(t *testing.T) {
	loc := transfers.EncodeLocKey(48.0, 11.0)
	coord := loc.Coordinate()
	pfs := []platform.Platform{
		{OSMType: platform.OSMTypeWay, OSMID: 5, Loc: coord},
		{OSMType: platform.OSMTypeNode, OSMID: 9, Loc: coord},
		{OSMType: platform.OSMTypeNode, OSMID: 3, Loc: coord},
	}
	idx := index.New(pfs)

	data := Data{
		LocationsToMatch: []timetable.Location{{Key: loc}},
		AlreadyMatched:   map[transfers.LocKey]platform.Platform{},
		UpdateIndex:      idx,
	}
	results := Match(data, DefaultOptions())
	require.Len(t, results, 1)
	require.Equal(t, platform.OSMTypeNode, results[0].Platform.OSMType)
	require.EqualValues(t, 3, results[0].Platform.OSMID)
}

func TestMatch_CandidatesFromBothOldAndUpdateIndices(t *testing.T) {
	loc := transfers.EncodeLocKey(48.0, 11.0)
	coord := loc.Coordinate()
	oldIdx := index.New([]platform.Platform{{OSMType: platform.OSMTypeNode, OSMID: 1, Loc: coord}})
	updateIdx := index.New([]platform.Platform{{OSMType: platform.OSMTypeNode, OSMID: 2, Loc: coord}})

	data := Data{
		LocationsToMatch: []timetable.Location{{Key: loc}},
		AlreadyMatched:   map[transfers.LocKey]platform.Platform{},
		OldIndex:         oldIdx,
		UpdateIndex:      updateIdx,
	}
	results := Match(data, DefaultOptions())
	require.Len(t, results, 1)
}
