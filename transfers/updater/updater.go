// Package updater orchestrates the engine's full and partial update
// pipelines.
package updater

import (
	"context"

	"go.skia.org/transfers/go/skerr"
	"go.skia.org/transfers/go/sklog"
	"go.skia.org/transfers/transfers"
	"go.skia.org/transfers/transfers/matching"
	"go.skia.org/transfers/transfers/platform"
	"go.skia.org/transfers/transfers/platform/index"
	"go.skia.org/transfers/transfers/profile"
	"go.skia.org/transfers/transfers/request"
	"go.skia.org/transfers/transfers/router"
	"go.skia.org/transfers/transfers/state"
	"go.skia.org/transfers/transfers/store"
	"go.skia.org/transfers/transfers/timetable"
)

// Stage selects the earliest pipeline stage a partial update reruns.
// Later stages cascade explicitly — see Updater.PartialUpdate — rather
// than relying on switch fall-through.
type Stage int

const (
	StageNone Stage = iota
	StageProfiles
	StageTimetable
	StageOSM
)

// RoutingMode selects which requests PartialUpdate routes.
type RoutingMode int

const (
	// RoutingNone skips routing; the writer still runs from whatever
	// results are already persisted.
	RoutingNone RoutingMode = iota
	// RoutingPartial routes only this run's newly generated requests, and
	// only if the prior stages produced any.
	RoutingPartial
	// RoutingFull reroutes the previously persisted requests first
	// (absorbing e.g. a profile parameter change), then this run's new
	// requests.
	RoutingFull
)

// PlatformExtractor recognises platforms from the configured OSM source.
// *extract.Extractor satisfies this; tests substitute a fake.
type PlatformExtractor interface {
	Extract(ctx context.Context) ([]platform.Platform, error)
}

// Updater wires together the engine's components into full_update and
// partial_update.
type Updater struct {
	Store       *store.Store
	Timetable   timetable.Timetable
	Extractor   PlatformExtractor
	Router      router.PedestrianRouter
	Profiles    map[string]profile.Params
	MatchOpts   matching.Options
	Parallelism int
	DumpPath    string
}

func (u *Updater) driver() *router.Driver {
	return &router.Driver{Router: u.Router, Parallelism: u.Parallelism}
}

func (u *Updater) profileParams() (map[transfers.ProfileID]profile.Params, error) {
	names := make([]string, 0, len(u.Profiles))
	for name := range u.Profiles {
		names = append(names, name)
	}
	ids, err := u.Store.PutProfiles(names)
	if err != nil {
		return nil, skerr.Wrap(err)
	}
	out := make(map[transfers.ProfileID]profile.Params, len(ids))
	for name, id := range ids {
		out[id] = u.Profiles[name]
	}
	return out, nil
}

func (u *Updater) usedProfileFilter(byID map[transfers.ProfileID]profile.Params) map[transfers.ProfileID]bool {
	filter := make(map[transfers.ProfileID]bool, len(byID))
	for id := range byID {
		filter[id] = true
	}
	return filter
}

// loadOldState builds the old-state snapshot (§4.8 initialisation): all
// persisted platforms, the matchings join, and the profile-filtered
// requests and results already on record.
func (u *Updater) loadOldState(profileFilter map[transfers.ProfileID]bool) (state.State, error) {
	allPfs, err := u.Store.GetPlatforms()
	if err != nil {
		return state.State{}, skerr.Wrap(err)
	}
	matches, err := u.Store.GetMatchings()
	if err != nil {
		return state.State{}, skerr.Wrap(err)
	}
	reqs, err := u.Store.GetRequests(profileFilter)
	if err != nil {
		return state.State{}, skerr.Wrap(err)
	}
	results, err := u.Store.GetResults(profileFilter)
	if err != nil {
		return state.State{}, skerr.Wrap(err)
	}

	matchedPfs := make([]platform.Platform, 0, len(matches))
	locKeys := make([]transfers.LocKey, 0, len(matches))
	byteMatches := make(map[transfers.LocKey][]byte, len(matches))
	for locKey, pf := range matches {
		matchedPfs = append(matchedPfs, pf)
		locKeys = append(locKeys, locKey)
		byteMatches[locKey] = pf.Key()
	}

	return state.State{
		PfsIdx:        index.New(allPfs),
		MatchedPfsIdx: index.New(matchedPfs),
		LocKeys:       locKeys,
		Matches:       byteMatches,
		Requests:      reqs,
		Results:       results,
	}, nil
}

// FullUpdate runs extract -> match -> generate (old_to_old=false) ->
// route -> write, assuming no prior persisted state.
func (u *Updater) FullUpdate(ctx context.Context) error {
	profilesByID, err := u.profileParams()
	if err != nil {
		return err
	}

	if err := u.extractAndStore(ctx); err != nil {
		return err
	}
	if err := u.matchAndStore(); err != nil {
		return err
	}

	old := state.Empty()
	update, err := u.loadOldState(nil) // nothing persisted as "old" yet; reload reflects this run's own matches/platforms
	if err != nil {
		return err
	}

	newReqs := request.Generate(old, update, profilesByID, request.Options{OldToOld: false})
	if _, err := u.Store.PutRequests(newReqs); err != nil {
		return skerr.Wrap(err)
	}

	matches, err := u.Store.GetMatchings()
	if err != nil {
		return skerr.Wrap(err)
	}
	results := u.driver().Run(ctx, newReqs, matches)
	if err := u.storeResults(results); err != nil {
		return err
	}

	return u.write(profilesByID)
}

// PartialUpdate resumes from persisted state. firstStage selects the
// earliest stage rerun; see Stage for the cascade this implies.
// routingMode selects which requests get (re)routed.
func (u *Updater) PartialUpdate(ctx context.Context, firstStage Stage, routingMode RoutingMode) error {
	profilesByID, err := u.profileParams()
	if err != nil {
		return err
	}
	filter := u.usedProfileFilter(profilesByID)

	old, err := u.loadOldState(filter)
	if err != nil {
		return err
	}

	// Explicit cascade: OSM and Timetable both imply re-match + re-generate;
	// Profiles implies re-generate alone, with old_to_old=true so that
	// already-matched locations get requests for the new profile; None runs
	// neither and proceeds straight to routing.
	runOSM := firstStage == StageOSM
	runMatchAndGenerate := firstStage == StageOSM || firstStage == StageTimetable
	runGenerateOnly := firstStage == StageProfiles

	var newReqs []transfers.TransferRequestByKeys

	if runOSM {
		if err := u.extractAndStore(ctx); err != nil {
			return err
		}
	}

	switch {
	case runMatchAndGenerate:
		if err := u.matchAndStore(); err != nil {
			return err
		}
		update, err := u.loadUpdateStateAfterMatch(old)
		if err != nil {
			return err
		}
		newReqs = request.Generate(old, update, profilesByID, request.Options{OldToOld: false})
	case runGenerateOnly:
		// No new platforms or matches this stage; old_to_old=true is the
		// only pair that can produce anything, picking up requests the
		// new profile needs between already-matched locations.
		newReqs = request.Generate(old, state.Empty(), profilesByID, request.Options{OldToOld: true})
	}

	if len(newReqs) > 0 {
		if _, err := u.Store.PutRequests(newReqs); err != nil {
			return skerr.Wrap(err)
		}
		if _, err := u.Store.UpdateRequests(newReqs); err != nil {
			return skerr.Wrap(err)
		}
	}

	if err := u.route(ctx, routingMode, old, newReqs); err != nil {
		return err
	}

	return u.write(profilesByID)
}

// loadUpdateStateAfterMatch reloads matches/platforms after a fresh
// extract+match pass, restricted to locations not already present in
// old's matches (old-matched locations are never rematched).
func (u *Updater) loadUpdateStateAfterMatch(old state.State) (state.State, error) {
	allPfs, err := u.Store.GetPlatforms()
	if err != nil {
		return state.State{}, skerr.Wrap(err)
	}
	matches, err := u.Store.GetMatchings()
	if err != nil {
		return state.State{}, skerr.Wrap(err)
	}
	var matchedPfs []platform.Platform
	var locKeys []transfers.LocKey
	for locKey, pf := range matches {
		if _, inOld := old.Matches[locKey]; inOld {
			continue
		}
		matchedPfs = append(matchedPfs, pf)
		locKeys = append(locKeys, locKey)
	}
	return state.State{
		PfsIdx:        index.New(allPfs),
		MatchedPfsIdx: index.New(matchedPfs),
		LocKeys:       locKeys,
	}, nil
}

func (u *Updater) extractAndStore(ctx context.Context) error {
	pfs, err := u.Extractor.Extract(ctx)
	if err != nil {
		return skerr.Wrap(err)
	}
	added, err := u.Store.PutPlatforms(pfs)
	if err != nil {
		return skerr.Wrap(err)
	}
	sklog.Infof("extract: %d new platforms stored", len(added))
	return nil
}

func (u *Updater) matchAndStore() error {
	locs := u.Timetable.Locations()
	allMatches, err := u.Store.GetMatchings()
	if err != nil {
		return skerr.Wrap(err)
	}
	allPfs, err := u.Store.GetPlatforms()
	if err != nil {
		return skerr.Wrap(err)
	}
	data := matching.Data{
		LocationsToMatch: locs,
		AlreadyMatched:   allMatches,
		UpdateIndex:      index.New(allPfs),
	}
	results := matching.Match(data, u.MatchOpts)
	added, err := u.Store.PutMatchings(results)
	if err != nil {
		return skerr.Wrap(err)
	}
	sklog.Infof("matcher: %d new matches stored", len(added))
	return nil
}

func (u *Updater) route(ctx context.Context, mode RoutingMode, old state.State, newReqs []transfers.TransferRequestByKeys) error {
	if mode == RoutingNone {
		return nil
	}

	matches, err := u.Store.GetMatchings()
	if err != nil {
		return skerr.Wrap(err)
	}

	if mode == RoutingFull {
		oldResults := u.driver().Run(ctx, old.Requests, matches)
		if err := u.storeResults(oldResults); err != nil {
			return err
		}
	}

	if len(newReqs) == 0 {
		return nil
	}
	newResults := u.driver().Run(ctx, newReqs, matches)
	return u.storeResults(newResults)
}

// storeResults inserts any brand-new result rows, then merges every result
// (new or not) into whatever row already exists under its key — mirroring
// the insert-then-merge handling PartialUpdate applies to requests, so that
// a result touching an already-persisted key grows that row instead of
// being silently dropped.
func (u *Updater) storeResults(results []transfers.TransferResult) error {
	if len(results) == 0 {
		return nil
	}
	if _, err := u.Store.PutResults(results); err != nil {
		return skerr.Wrap(err)
	}
	if _, err := u.Store.UpdateResults(results); err != nil {
		return skerr.Wrap(err)
	}
	return nil
}

func (u *Updater) write(profilesByID map[transfers.ProfileID]profile.Params) error {
	filter := u.usedProfileFilter(profilesByID)
	results, err := u.Store.GetResults(filter)
	if err != nil {
		return skerr.Wrap(err)
	}
	// Every profile id's tables are rebuilt, not only the configured ones,
	// so a profile no longer configured is left with no footpaths.
	ids := make([]transfers.ProfileID, 0, transfers.MaxProfiles)
	for id := 0; id < transfers.MaxProfiles; id++ {
		ids = append(ids, transfers.ProfileID(id))
	}
	timetable.WriteResults(u.Timetable, results, ids)
	return u.Timetable.WriteTo(u.DumpPath)
}
