// Package router converts keyed transfer requests into concrete routing
// queries against an external pedestrian router, and fans them out in
// parallel.
package router

import (
	"context"
	"math"
	"sync"

	"go.skia.org/transfers/go/skerr"
	"go.skia.org/transfers/go/sklog"
	"go.skia.org/transfers/go/workerpool"
	"go.skia.org/transfers/transfers"
	"go.skia.org/transfers/transfers/geo"
	"go.skia.org/transfers/transfers/platform"
)

// RouteCandidate is one ranked route the external router offered for a
// single origin/destination pair.
type RouteCandidate struct {
	DurationSeconds float64
	DistanceMetres  float64
}

// PedestrianRouter is the external collaborator: a profile-parameterised,
// point-to-multipoint shortest-path router over a street graph. It is
// treated as thread-safe and read-only once Prepare has returned.
//
// FindRoutes returns, for each destination in the same order as given,
// the ranked route candidates reaching it (empty if unreached). An error
// return means "no destinations reached" for the whole query.
type PedestrianRouter interface {
	Prepare(ctx context.Context, profile transfers.ProfileID) error
	FindRoutes(ctx context.Context, profile transfers.ProfileID, origin geo.LatLng, destinations []geo.LatLng) ([][]RouteCandidate, error)
}

// Driver dispatches TransferRequestByKeys to a PedestrianRouter across a
// worker pool and accumulates TransferResults under a single mutex.
type Driver struct {
	Router      PedestrianRouter
	Parallelism int
}

// Run resolves each request's from/to location keys via matches (the
// union of the old and update matching maps), routes it, and returns the
// accumulated results. Requests whose origin is unmatched, or for which
// the router reaches no destination, are dropped.
func (d *Driver) Run(ctx context.Context, requests []transfers.TransferRequestByKeys, matches map[transfers.LocKey]platform.Platform) []transfers.TransferResult {
	n := d.Parallelism
	if n <= 0 {
		n = 1
	}

	prepared := d.prepareProfiles(ctx, requests)

	pool := workerpool.New(n)

	var mu sync.Mutex
	var results []transfers.TransferResult

	for _, req := range requests {
		if !prepared[req.Profile] {
			continue
		}
		req := req
		pool.Go(func() {
			result, ok := d.routeOne(ctx, req, matches)
			if !ok {
				return
			}
			mu.Lock()
			results = append(results, result)
			mu.Unlock()
		})
	}
	pool.Wait()
	return results
}

// prepareProfiles calls Prepare once per distinct profile referenced in
// requests — the graph-loading step §5 describes as happening "on
// demand" — and reports which profiles prepared successfully. Requests for
// a profile whose Prepare call fails are dropped rather than routed.
func (d *Driver) prepareProfiles(ctx context.Context, requests []transfers.TransferRequestByKeys) map[transfers.ProfileID]bool {
	ok := make(map[transfers.ProfileID]bool)
	seen := make(map[transfers.ProfileID]bool)
	for _, req := range requests {
		if seen[req.Profile] {
			continue
		}
		seen[req.Profile] = true
		if err := d.Router.Prepare(ctx, req.Profile); err != nil {
			sklog.Infof("preparing router for profile %d: %s", req.Profile, skerr.Wrap(err))
			continue
		}
		ok[req.Profile] = true
	}
	return ok
}

func (d *Driver) routeOne(ctx context.Context, req transfers.TransferRequestByKeys, matches map[transfers.LocKey]platform.Platform) (transfers.TransferResult, bool) {
	origin, ok := matches[req.From]
	if !ok {
		return transfers.TransferResult{}, false
	}

	destKeys := make([]transfers.LocKey, 0, len(req.To))
	destLocs := make([]geo.LatLng, 0, len(req.To))
	for _, to := range req.To {
		if pf, ok := matches[to]; ok {
			destKeys = append(destKeys, to)
			destLocs = append(destLocs, pf.Loc)
		}
	}
	if len(destKeys) == 0 {
		return transfers.TransferResult{}, false
	}

	candidates, err := d.Router.FindRoutes(ctx, req.Profile, origin.Loc, destLocs)
	if err != nil {
		sklog.Infof("no destinations reached for request from=%v profile=%d: %v", req.From, req.Profile, skerr.Wrap(err))
		return transfers.TransferResult{}, false
	}

	var to []transfers.LocKey
	var infos []transfers.TransferInfo
	for i, perDest := range candidates {
		if len(perDest) == 0 {
			continue
		}
		best := perDest[0]
		to = append(to, destKeys[i])
		infos = append(infos, transfers.TransferInfo{
			DurationMin: int(math.Round(best.DurationSeconds / 60)),
			DistanceM:   best.DistanceMetres,
		})
	}
	if len(to) == 0 {
		return transfers.TransferResult{}, false
	}
	return transfers.TransferResult{From: req.From, To: to, Profile: req.Profile, Infos: infos}, true
}
