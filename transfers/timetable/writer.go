package timetable

import "go.skia.org/transfers/transfers"

// WriteResults rebuilds tt's per-profile footpath tables from results,
// for each profile in profiles. Tables are fully cleared before
// re-emitting, so calling this with results=nil empties the timetable's
// footpaths for those profiles.
//
// Each result's from and every to_i are resolved against tt's location
// list by exact coordinate match; a result (or individual destination)
// whose loc_key no longer corresponds to any timetable location is
// dropped silently, per the write-back contract.
func WriteResults(tt Timetable, results []transfers.TransferResult, profiles []transfers.ProfileID) {
	known := make(map[transfers.LocKey]bool, len(tt.Locations()))
	for _, loc := range tt.Locations() {
		known[loc.Key] = true
	}
	wanted := make(map[transfers.ProfileID]bool, len(profiles))
	for _, p := range profiles {
		tt.ClearFootpaths(p)
		wanted[p] = true
	}

	for _, r := range results {
		if !wanted[r.Profile] || !known[r.From] {
			continue
		}
		for i, to := range r.To {
			if !known[to] {
				continue
			}
			info := FootpathInfo{DurationMin: r.Infos[i].DurationMin, DistanceM: r.Infos[i].DistanceM}
			tt.AddOutbound(r.Profile, r.From, Footpath{Other: to, Info: info})
			tt.AddInbound(r.Profile, to, Footpath{Other: r.From, Info: info})
		}
	}
}
