// Package naive provides a straight-line stand-in for the external
// pedestrian router. The real router — a profile-parameterised
// point-to-multipoint shortest-path search over a street graph — is an
// external collaborator outside this engine's scope; this implementation
// exists so the engine is runnable end to end without one, by treating
// great-circle distance as the walking distance.
package naive

import (
	"context"

	"go.skia.org/transfers/transfers"
	"go.skia.org/transfers/transfers/geo"
	"go.skia.org/transfers/transfers/profile"
	"go.skia.org/transfers/transfers/router"
)

// Router answers FindRoutes using haversine distance and a fixed walking
// speed per profile, ignoring street topology entirely.
type Router struct {
	Profiles map[transfers.ProfileID]profile.Params
}

func (r *Router) Prepare(ctx context.Context, p transfers.ProfileID) error { return nil }

// FindRoutes returns one candidate per destination: great-circle distance
// and the duration implied by the profile's walking speed. A destination
// beyond the profile's reach is omitted.
func (r *Router) FindRoutes(ctx context.Context, p transfers.ProfileID, origin geo.LatLng, destinations []geo.LatLng) ([][]router.RouteCandidate, error) {
	params, ok := r.Profiles[p]
	if !ok || params.WalkingSpeedMPS <= 0 {
		return nil, nil
	}
	reach := params.ReachM()

	out := make([][]router.RouteCandidate, len(destinations))
	for i, dest := range destinations {
		dist := origin.DistanceTo(dest)
		if dist > reach {
			continue
		}
		out[i] = []router.RouteCandidate{{
			DurationSeconds: dist / params.WalkingSpeedMPS,
			DistanceMetres:  dist,
		}}
	}
	return out, nil
}
