// Package request generates transfer candidate pairs across the
// old/update state partition.
package request

import (
	"go.skia.org/transfers/transfers"
	"go.skia.org/transfers/transfers/profile"
	"go.skia.org/transfers/transfers/state"
)

// Options configures the generator.
type Options struct {
	// OldToOld additionally generates the (old, old) pair. Only valid when
	// resuming from a persisted old state with profile changes: it lets
	// already-matched locations that never routed for a new profile get a
	// request for it.
	OldToOld bool
}

type pair struct {
	a, b state.State
}

// Generate enumerates (old,update), (update,old), (update,update), and
// optionally (old,old), for every profile, and emits one
// TransferRequestByKeys per matched location that has any neighbor within
// its profile's reach in the paired state.
func Generate(old, update state.State, profiles map[transfers.ProfileID]profile.Params, opts Options) []transfers.TransferRequestByKeys {
	pairs := []pair{
		{old, update},
		{update, old},
		{update, update},
	}
	if opts.OldToOld {
		pairs = append(pairs, pair{old, old})
	}

	var out []transfers.TransferRequestByKeys
	for profileID, params := range profiles {
		reach := params.ReachM()
		for _, pr := range pairs {
			out = append(out, generatePair(pr.a, pr.b, profileID, reach)...)
		}
	}
	return out
}

func generatePair(a, b state.State, profileID transfers.ProfileID, reachM float64) []transfers.TransferRequestByKeys {
	if a.Size() == 0 || b.Size() == 0 {
		return nil
	}
	var out []transfers.TransferRequestByKeys
	for i := 0; i < a.MatchedPfsIdx.Size(); i++ {
		fromPf := a.MatchedPfsIdx.Get(i)
		fromKey := a.LocKeys[i]
		neighbors := b.MatchedPfsIdx.NeighborsOf(fromPf, reachM)
		if len(neighbors) == 0 {
			continue
		}
		to := make([]transfers.LocKey, 0, len(neighbors))
		seen := map[transfers.LocKey]bool{}
		for _, j := range neighbors {
			toKey := b.LocKeys[j]
			if toKey == fromKey || seen[toKey] {
				continue
			}
			seen[toKey] = true
			to = append(to, toKey)
		}
		if len(to) == 0 {
			continue
		}
		out = append(out, transfers.TransferRequestByKeys{
			From:    fromKey,
			To:      to,
			Profile: profileID,
		})
	}
	return out
}
