package updater

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"go.skia.org/transfers/transfers"
	"go.skia.org/transfers/transfers/geo"
	"go.skia.org/transfers/transfers/matching"
	"go.skia.org/transfers/transfers/platform"
	"go.skia.org/transfers/transfers/profile"
	"go.skia.org/transfers/transfers/router"
	"go.skia.org/transfers/transfers/store"
	"go.skia.org/transfers/transfers/timetable"
)

// fakeExtractor returns a fixed platform list, standing in for a real OSM
// extract in tests that exercise the OSM stage.
type fakeExtractor struct {
	platforms []platform.Platform
}

func (f *fakeExtractor) Extract(ctx context.Context) ([]platform.Platform, error) {
	return f.platforms, nil
}

// fakeRouter returns one route per destination: the great-circle distance
// and that distance walked at 1.4 m/s, independent of profile, unless
// respond overrides it.
type fakeRouter struct {
	calls    int
	respond  func(profile transfers.ProfileID, origin geo.LatLng, dests []geo.LatLng) [][]router.RouteCandidate
}

func (f *fakeRouter) Prepare(ctx context.Context, p transfers.ProfileID) error { return nil }

func (f *fakeRouter) FindRoutes(ctx context.Context, p transfers.ProfileID, origin geo.LatLng, dests []geo.LatLng) ([][]router.RouteCandidate, error) {
	f.calls++
	if f.respond != nil {
		return f.respond(p, origin, dests), nil
	}
	out := make([][]router.RouteCandidate, len(dests))
	for i, d := range dests {
		meters := origin.DistanceTo(d)
		out[i] = []router.RouteCandidate{{DurationSeconds: meters / 1.4, DistanceMetres: meters}}
	}
	return out, nil
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "transfers.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func platformAt(t *testing.T, lat, lng float64, osmID int64) platform.Platform {
	t.Helper()
	return platform.Platform{
		Loc:     geo.LatLng{Lat: lat, Lng: lng},
		OSMID:   osmID,
		OSMType: platform.OSMTypeNode,
	}
}

// TestFullUpdate_S1_ProducesSymmetricFootpaths grounds on spec scenario S1:
// two locations ~111m apart, one platform each, one profile with 420m reach.
func TestFullUpdate_S1_ProducesSymmetricFootpaths(t *testing.T) {
	a := transfers.EncodeLocKey(48.0000000, 11.0000000)
	b := transfers.EncodeLocKey(48.0010000, 11.0000000)
	tt := timetable.NewInMemory([]timetable.Location{{Key: a}, {Key: b}})

	s := newTestStore(t)
	fr := &fakeRouter{}
	u := &Updater{
		Store:     s,
		Timetable: tt,
		Extractor: &fakeExtractor{platforms: []platform.Platform{
			platformAt(t, 48.0000000, 11.0000000, 1),
			platformAt(t, 48.0010000, 11.0000000, 2),
		}},
		Router:      fr,
		Profiles:    map[string]profile.Params{"default": {WalkingSpeedMPS: 1.4, DurationLimitS: 300}},
		MatchOpts:   matching.DefaultOptions(),
		Parallelism: 2,
		DumpPath:    filepath.Join(t.TempDir(), "out.bin"),
	}

	require.NoError(t, u.FullUpdate(context.Background()))

	ids, _, err := s.GetProfileMaps()
	require.NoError(t, err)
	defaultID := ids["default"]

	outA := tt.Outbound(defaultID, a)
	require.Len(t, outA, 1)
	require.Equal(t, b, outA[0].Other)
	require.Equal(t, 1, outA[0].Info.DurationMin)

	inB := tt.Inbound(defaultID, b)
	require.Len(t, inB, 1)
	require.Equal(t, a, inB[0].Other)
}

// TestFullUpdate_ThenNoOpPartialUpdate_IsBitwiseIdentical grounds on
// invariant 7: full_update followed by partial_update(None, None) leaves the
// footpath tables unchanged.
func TestFullUpdate_ThenNoOpPartialUpdate_IsBitwiseIdentical(t *testing.T) {
	a := transfers.EncodeLocKey(48.0000000, 11.0000000)
	b := transfers.EncodeLocKey(48.0010000, 11.0000000)
	tt := timetable.NewInMemory([]timetable.Location{{Key: a}, {Key: b}})

	s := newTestStore(t)
	u := &Updater{
		Store:     s,
		Timetable: tt,
		Extractor: &fakeExtractor{platforms: []platform.Platform{
			platformAt(t, 48.0000000, 11.0000000, 1),
			platformAt(t, 48.0010000, 11.0000000, 2),
		}},
		Router:      &fakeRouter{},
		Profiles:    map[string]profile.Params{"default": {WalkingSpeedMPS: 1.4, DurationLimitS: 300}},
		MatchOpts:   matching.DefaultOptions(),
		Parallelism: 2,
		DumpPath:    filepath.Join(t.TempDir(), "out.bin"),
	}
	require.NoError(t, u.FullUpdate(context.Background()))

	ids, _, err := s.GetProfileMaps()
	require.NoError(t, err)
	defaultID := ids["default"]
	before := append([]timetable.Footpath{}, tt.Outbound(defaultID, a)...)

	require.NoError(t, u.PartialUpdate(context.Background(), StageNone, RoutingNone))

	after := tt.Outbound(defaultID, a)
	require.Equal(t, before, after)
}

// TestPartialUpdate_S3_IncrementalAddition grounds on spec scenario S3: a
// new platform appears near an already-matched location; old matchings
// survive, and old requests are kept, merged rows only gaining destinations.
func TestPartialUpdate_S3_IncrementalAddition(t *testing.T) {
	a := transfers.EncodeLocKey(48.0000000, 11.0000000)
	b := transfers.EncodeLocKey(48.0010000, 11.0000000)
	d := transfers.EncodeLocKey(48.0010500, 11.0000000) // ~50m from B
	tt := timetable.NewInMemory([]timetable.Location{{Key: a}, {Key: b}, {Key: d}})

	s := newTestStore(t)
	profiles := map[string]profile.Params{"default": {WalkingSpeedMPS: 1.4, DurationLimitS: 300}}

	u := &Updater{
		Store:     s,
		Timetable: timetable.NewInMemory([]timetable.Location{{Key: a}, {Key: b}}), // D not yet in the timetable for the first run
		Extractor: &fakeExtractor{platforms: []platform.Platform{
			platformAt(t, 48.0000000, 11.0000000, 1),
			platformAt(t, 48.0010000, 11.0000000, 2),
		}},
		Router:      &fakeRouter{},
		Profiles:    profiles,
		MatchOpts:   matching.DefaultOptions(),
		Parallelism: 2,
		DumpPath:    filepath.Join(t.TempDir(), "out.bin"),
	}
	require.NoError(t, u.FullUpdate(context.Background()))

	reqsBefore, err := s.GetRequests(nil)
	require.NoError(t, err)

	// Second run: D is now part of the timetable and a new OSM platform
	// exists at D; old matchings/requests must survive.
	u.Timetable = tt
	u.Extractor = &fakeExtractor{platforms: []platform.Platform{platformAt(t, 48.0010500, 11.0000000, 3)}}
	require.NoError(t, u.PartialUpdate(context.Background(), StageOSM, RoutingPartial))

	matches, err := s.GetMatchings()
	require.NoError(t, err)
	require.Contains(t, matches, a)
	require.Contains(t, matches, b)
	require.Contains(t, matches, d)

	reqsAfter, err := s.GetRequests(nil)
	require.NoError(t, err)
	// Old requests are never dropped; a merged row's destinations only grow
	// (e.g. A's request gains D alongside its original destination B).
	afterByKey := map[transfers.LocKey]transfers.TransferRequestByKeys{}
	for _, r := range reqsAfter {
		afterByKey[r.From] = r
	}
	for _, before := range reqsBefore {
		after, ok := afterByKey[before.From]
		require.True(t, ok, "request for %v disappeared", before.From)
		for _, to := range before.To {
			require.Contains(t, after.To, to)
		}
	}
	require.Greater(t, len(reqsAfter), len(reqsBefore))
}

// TestPartialUpdate_S4_ProfileChange grounds on spec scenario S4: adding a
// profile and running partial_update(Profiles, Full) re-emits old requests
// for the new profile and reroutes old requests, while leaving the
// already-persisted default-profile info unchanged.
func TestPartialUpdate_S4_ProfileChange(t *testing.T) {
	a := transfers.EncodeLocKey(48.0000000, 11.0000000)
	b := transfers.EncodeLocKey(48.0010000, 11.0000000)
	tt := timetable.NewInMemory([]timetable.Location{{Key: a}, {Key: b}})

	s := newTestStore(t)
	u := &Updater{
		Store:     s,
		Timetable: tt,
		Extractor: &fakeExtractor{platforms: []platform.Platform{
			platformAt(t, 48.0000000, 11.0000000, 1),
			platformAt(t, 48.0010000, 11.0000000, 2),
		}},
		Router:      &fakeRouter{},
		Profiles:    map[string]profile.Params{"default": {WalkingSpeedMPS: 1.4, DurationLimitS: 300}},
		MatchOpts:   matching.DefaultOptions(),
		Parallelism: 2,
		DumpPath:    filepath.Join(t.TempDir(), "out.bin"),
	}
	require.NoError(t, u.FullUpdate(context.Background()))

	ids, _, err := s.GetProfileMaps()
	require.NoError(t, err)
	defaultID := ids["default"]
	defaultOutBefore := append([]timetable.Footpath{}, tt.Outbound(defaultID, a)...)

	u.Profiles["fast"] = profile.Params{WalkingSpeedMPS: 2.0, DurationLimitS: 600}
	require.NoError(t, u.PartialUpdate(context.Background(), StageProfiles, RoutingFull))

	ids2, _, err := s.GetProfileMaps()
	require.NoError(t, err)
	fastID := ids2["fast"]

	require.Equal(t, defaultOutBefore, tt.Outbound(defaultID, a))
	require.NotEmpty(t, tt.Outbound(fastID, a))
}

// TestPartialUpdate_RoutingNone_SkipsRoutingButStillWrites verifies that
// routing_mode=None still runs the writer, per §4.8 ("the writer always
// runs").
func TestPartialUpdate_RoutingNone_SkipsRoutingButStillWrites(t *testing.T) {
	a := transfers.EncodeLocKey(48.0000000, 11.0000000)
	b := transfers.EncodeLocKey(48.0010000, 11.0000000)
	tt := timetable.NewInMemory([]timetable.Location{{Key: a}, {Key: b}})

	s := newTestStore(t)
	fr := &fakeRouter{}
	u := &Updater{
		Store:     s,
		Timetable: tt,
		Extractor: &fakeExtractor{platforms: []platform.Platform{
			platformAt(t, 48.0000000, 11.0000000, 1),
			platformAt(t, 48.0010000, 11.0000000, 2),
		}},
		Router:      fr,
		Profiles:    map[string]profile.Params{"default": {WalkingSpeedMPS: 1.4, DurationLimitS: 300}},
		MatchOpts:   matching.DefaultOptions(),
		Parallelism: 2,
		DumpPath:    filepath.Join(t.TempDir(), "out.bin"),
	}
	require.NoError(t, u.FullUpdate(context.Background()))
	callsAfterFull := fr.calls

	require.NoError(t, u.PartialUpdate(context.Background(), StageNone, RoutingNone))
	require.Equal(t, callsAfterFull, fr.calls)
	require.Equal(t, u.DumpPath, tt.LastWritePath())
}
