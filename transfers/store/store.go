// Package store is the engine's persistent layer: five logical tables —
// profiles, platforms, matchings, requests, results — kept in a single
// embedded transactional key-value file via go.etcd.io/bbolt, fronted by
// the boltutil.IndexedBucket abstraction.
package store

import (
	"fmt"
	"strconv"

	"go.etcd.io/bbolt"

	"go.skia.org/transfers/go/boltutil"
	"go.skia.org/transfers/go/skerr"
	"go.skia.org/transfers/go/util"
	"go.skia.org/transfers/transfers"
	"go.skia.org/transfers/transfers/matching"
	"go.skia.org/transfers/transfers/merge"
	"go.skia.org/transfers/transfers/platform"
)

const (
	bucketProfiles  = "profiles"
	bucketPlatforms = "platforms"
	bucketMatchings = "matchings"
	bucketRequests  = "requests"
	bucketResults   = "results"

	indexByProfile = "profile"
)

// --- record wrappers; these exist only to satisfy boltutil.Record and
// carry no behaviour of their own. ---

type profileRecord struct {
	Name string
	ID   transfers.ProfileID
}

func (r *profileRecord) Key() string                       { return r.Name }
func (r *profileRecord) IndexValues() map[string][]string { return nil }

type platformRecord struct {
	platform.Platform
}

func (r *platformRecord) Key() string { return string(r.Platform.Key()) }
func (r *platformRecord) IndexValues() map[string][]string { return nil }

type matchingRecord struct {
	LocKey      transfers.LocKey
	PlatformKey []byte
}

func (r *matchingRecord) Key() string                       { return string(r.LocKey.Bytes()) }
func (r *matchingRecord) IndexValues() map[string][]string { return nil }

type requestRecord struct {
	transfers.TransferRequestByKeys
}

func (r *requestRecord) Key() string { return string(r.TransferRequestByKeys.Key()) }
func (r *requestRecord) IndexValues() map[string][]string {
	return map[string][]string{indexByProfile: {strconv.Itoa(int(r.Profile))}}
}

type resultRecord struct {
	transfers.TransferResult
}

func (r *resultRecord) Key() string { return string(r.TransferResult.Key()) }
func (r *resultRecord) IndexValues() map[string][]string {
	return map[string][]string{indexByProfile: {strconv.Itoa(int(r.Profile))}}
}

// Store is the engine's persistent store.
type Store struct {
	db        *bbolt.DB
	profiles  *boltutil.IndexedBucket
	platforms *boltutil.IndexedBucket
	matchings *boltutil.IndexedBucket
	requests  *boltutil.IndexedBucket
	results   *boltutil.IndexedBucket
}

// Open opens (creating if necessary) the store at path. Durability is
// relaxed — NoSync — because the store is treated as rebuildable from its
// inputs (OSM extract, timetable, router) rather than as a durable system
// of record.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{NoSync: true})
	if err != nil {
		return nil, skerr.Wrapf(err, "opening store at %q", path)
	}
	s := &Store{db: db}
	for name, target := range map[string]**boltutil.IndexedBucket{
		bucketProfiles:  &s.profiles,
		bucketPlatforms: &s.platforms,
		bucketMatchings: &s.matchings,
	} {
		ib, err := boltutil.NewIndexedBucket(&boltutil.Config{DB: db, Name: name, Codec: codecFor(name)})
		if err != nil {
			return nil, skerr.Wrap(err)
		}
		*target = ib
	}
	for name, target := range map[string]**boltutil.IndexedBucket{
		bucketRequests: &s.requests,
		bucketResults:  &s.results,
	} {
		ib, err := boltutil.NewIndexedBucket(&boltutil.Config{DB: db, Name: name, Indices: []string{indexByProfile}, Codec: codecFor(name)})
		if err != nil {
			return nil, skerr.Wrap(err)
		}
		*target = ib
	}
	return s, nil
}

func codecFor(bucket string) util.Codec {
	switch bucket {
	case bucketProfiles:
		return util.NewJSONCodec(&profileRecord{})
	case bucketPlatforms:
		return util.NewJSONCodec(&platformRecord{})
	case bucketMatchings:
		return util.NewJSONCodec(&matchingRecord{})
	case bucketRequests:
		return util.NewJSONCodec(&requestRecord{})
	case bucketResults:
		return util.NewJSONCodec(&resultRecord{})
	default:
		panic(fmt.Sprintf("store: unknown bucket %q", bucket))
	}
}

// Close closes the underlying database file.
func (s *Store) Close() error {
	return s.db.Close()
}

// PutProfiles allocates ids for any names not already persisted and
// returns the full name->id map for all names given, new or existing.
func (s *Store) PutProfiles(names []string) (map[string]transfers.ProfileID, error) {
	existing, _, err := s.GetProfileMaps()
	if err != nil {
		return nil, err
	}
	out := make(map[string]transfers.ProfileID, len(names))
	var toInsert []boltutil.Record
	// next is a plain int, not transfers.ProfileID (uint8): MaxProfiles is
	// 255, so a run allocating right up to the limit would otherwise
	// increment ProfileID(255) and wrap back to 0, handing the next new
	// name an id already in use by a different profile.
	next := nextProfileID(existing)
	for _, name := range names {
		if id, ok := existing[name]; ok {
			out[name] = id
			continue
		}
		if next >= transfers.MaxProfiles {
			return nil, skerr.Fmt("store capacity exceeded: maximum profile count reached")
		}
		id := transfers.ProfileID(next)
		out[name] = id
		toInsert = append(toInsert, &profileRecord{Name: name, ID: id})
		next++
	}
	if len(toInsert) > 0 {
		if err := s.profiles.Insert(toInsert); err != nil {
			return nil, skerr.Wrap(err)
		}
	}
	return out, nil
}

func nextProfileID(existing map[string]transfers.ProfileID) int {
	max := -1
	for _, id := range existing {
		if int(id) > max {
			max = int(id)
		}
	}
	return max + 1
}

// GetProfileMaps returns the persisted name->id and id->name maps.
func (s *Store) GetProfileMaps() (map[string]transfers.ProfileID, map[transfers.ProfileID]string, error) {
	recs, _, err := s.profiles.List(0, -1)
	if err != nil {
		return nil, nil, skerr.Wrap(err)
	}
	nameToID := map[string]transfers.ProfileID{}
	idToName := map[transfers.ProfileID]string{}
	for _, rec := range recs {
		pr := rec.(*profileRecord)
		nameToID[pr.Name] = pr.ID
		idToName[pr.ID] = pr.Name
	}
	return nameToID, idToName, nil
}

// PutPlatforms inserts any platforms not already known (by platform key)
// and returns the indices, into pfs, of the ones actually inserted.
func (s *Store) PutPlatforms(pfs []platform.Platform) ([]int, error) {
	ids := make([]string, len(pfs))
	for i, pf := range pfs {
		ids[i] = string(pf.Key())
	}
	existing, err := s.platforms.Read(ids)
	if err != nil {
		return nil, skerr.Wrap(err)
	}
	var added []int
	var toInsert []boltutil.Record
	for i, pf := range pfs {
		if existing[i] != nil {
			continue
		}
		added = append(added, i)
		toInsert = append(toInsert, &platformRecord{Platform: pf})
	}
	if len(toInsert) > 0 {
		if err := s.platforms.Insert(toInsert); err != nil {
			return nil, skerr.Wrap(err)
		}
	}
	return added, nil
}

// GetPlatforms returns every persisted platform.
func (s *Store) GetPlatforms() ([]platform.Platform, error) {
	recs, _, err := s.platforms.List(0, -1)
	if err != nil {
		return nil, skerr.Wrap(err)
	}
	out := make([]platform.Platform, len(recs))
	for i, rec := range recs {
		out[i] = rec.(*platformRecord).Platform
	}
	return out, nil
}

// GetPlatform returns the platform stored under key, or nil if unknown.
func (s *Store) GetPlatform(key []byte) (*platform.Platform, error) {
	recs, err := s.platforms.Read([]string{string(key)})
	if err != nil {
		return nil, skerr.Wrap(err)
	}
	if recs[0] == nil {
		return nil, nil
	}
	pf := recs[0].(*platformRecord).Platform
	return &pf, nil
}

// PutMatchings adds matchings for results whose location is not already
// matched and whose platform is known, returning the indices, into
// results, of the ones actually added.
func (s *Store) PutMatchings(results []matching.Result) ([]int, error) {
	var added []int
	var toInsert []boltutil.Record
	for i, r := range results {
		locKeyBytes := r.Location.Key.Bytes()
		existing, err := s.matchings.Read([]string{string(locKeyBytes)})
		if err != nil {
			return nil, skerr.Wrap(err)
		}
		if existing[0] != nil {
			continue
		}
		pfExists, err := s.platforms.Read([]string{string(r.Platform.Key())})
		if err != nil {
			return nil, skerr.Wrap(err)
		}
		if pfExists[0] == nil {
			continue
		}
		added = append(added, i)
		toInsert = append(toInsert, &matchingRecord{LocKey: r.Location.Key, PlatformKey: r.Platform.Key()})
	}
	if len(toInsert) > 0 {
		if err := s.matchings.Insert(toInsert); err != nil {
			return nil, skerr.Wrap(err)
		}
	}
	return added, nil
}

// GetMatchings returns the full loc_key -> platform map, joining the
// matchings table against the platforms table.
func (s *Store) GetMatchings() (map[transfers.LocKey]platform.Platform, error) {
	recs, _, err := s.matchings.List(0, -1)
	if err != nil {
		return nil, skerr.Wrap(err)
	}
	out := make(map[transfers.LocKey]platform.Platform, len(recs))
	for _, rec := range recs {
		mr := rec.(*matchingRecord)
		pf, err := s.GetPlatform(mr.PlatformKey)
		if err != nil {
			return nil, skerr.Wrap(err)
		}
		if pf == nil {
			continue
		}
		out[mr.LocKey] = *pf
	}
	return out, nil
}

// PutRequests inserts any requests not already present (by key) and
// returns the indices, into reqs, of the ones actually inserted.
func (s *Store) PutRequests(reqs []transfers.TransferRequestByKeys) ([]int, error) {
	return putIfAbsent(s.requests, len(reqs), func(i int) string { return string(reqs[i].Key()) },
		func(i int) boltutil.Record { return &requestRecord{reqs[i]} })
}

// PutResults inserts any results not already present (by key) and
// returns the indices, into results, of the ones actually inserted.
func (s *Store) PutResults(results []transfers.TransferResult) ([]int, error) {
	return putIfAbsent(s.results, len(results), func(i int) string { return string(results[i].Key()) },
		func(i int) boltutil.Record { return &resultRecord{results[i]} })
}

func putIfAbsent(ib *boltutil.IndexedBucket, n int, keyOf func(int) string, recOf func(int) boltutil.Record) ([]int, error) {
	ids := make([]string, n)
	for i := 0; i < n; i++ {
		ids[i] = keyOf(i)
	}
	existing, err := ib.Read(ids)
	if err != nil {
		return nil, skerr.Wrap(err)
	}
	var added []int
	var toInsert []boltutil.Record
	for i := 0; i < n; i++ {
		if existing[i] != nil {
			continue
		}
		added = append(added, i)
		toInsert = append(toInsert, recOf(i))
	}
	if len(toInsert) > 0 {
		if err := ib.Insert(toInsert); err != nil {
			return nil, skerr.Wrap(err)
		}
	}
	return added, nil
}

// UpdateRequests merges each input request into the stored row with the
// same key, rewriting it only if the merged content hash differs from
// what's stored. Inputs whose key has no stored row are left alone (this
// is update, not insert). Returns the indices, into reqs, of the rows
// actually rewritten.
func (s *Store) UpdateRequests(reqs []transfers.TransferRequestByKeys) ([]int, error) {
	var changed []int
	for i, req := range reqs {
		existingRecs, err := s.requests.Read([]string{string(req.Key())})
		if err != nil {
			return nil, skerr.Wrap(err)
		}
		if existingRecs[0] == nil {
			continue
		}
		existing := existingRecs[0].(*requestRecord).TransferRequestByKeys
		merged, err := merge.Requests(existing, req)
		if err != nil {
			return nil, skerr.Wrap(err)
		}
		oldHash, err := merge.ContentHash(existing)
		if err != nil {
			return nil, skerr.Wrap(err)
		}
		newHash, err := merge.ContentHash(merged)
		if err != nil {
			return nil, skerr.Wrap(err)
		}
		if oldHash == newHash {
			continue
		}
		if err := s.requests.Insert([]boltutil.Record{&requestRecord{merged}}); err != nil {
			return nil, skerr.Wrap(err)
		}
		changed = append(changed, i)
	}
	return changed, nil
}

// UpdateResults merges each input result into the stored row with the
// same key, with the same content-hash guard as UpdateRequests. Returns
// the indices, into results, of the rows actually rewritten.
func (s *Store) UpdateResults(results []transfers.TransferResult) ([]int, error) {
	var changed []int
	for i, res := range results {
		existingRecs, err := s.results.Read([]string{string(res.Key())})
		if err != nil {
			return nil, skerr.Wrap(err)
		}
		if existingRecs[0] == nil {
			continue
		}
		existing := existingRecs[0].(*resultRecord).TransferResult
		merged, err := merge.Results(existing, res)
		if err != nil {
			return nil, skerr.Wrap(err)
		}
		oldHash, err := merge.ContentHash(existing)
		if err != nil {
			return nil, skerr.Wrap(err)
		}
		newHash, err := merge.ContentHash(merged)
		if err != nil {
			return nil, skerr.Wrap(err)
		}
		if oldHash == newHash {
			continue
		}
		if err := s.results.Insert([]boltutil.Record{&resultRecord{merged}}); err != nil {
			return nil, skerr.Wrap(err)
		}
		changed = append(changed, i)
	}
	return changed, nil
}

// GetRequests returns all persisted requests, optionally restricted to
// profiles. profileFilter == nil means no filtering; an empty, non-nil
// filter matches nothing. Entries whose profile is not in a non-nil
// filter are silently dropped — this is also how a request persisted
// under an id no longer in the caller's declared used_profiles set is
// filtered, rather than failing the run.
func (s *Store) GetRequests(profileFilter map[transfers.ProfileID]bool) ([]transfers.TransferRequestByKeys, error) {
	recs, err := s.listByProfile(s.requests, profileFilter)
	if err != nil {
		return nil, skerr.Wrap(err)
	}
	var out []transfers.TransferRequestByKeys
	for _, rec := range recs {
		out = append(out, rec.(*requestRecord).TransferRequestByKeys)
	}
	return out, nil
}

// GetResults returns all persisted results, with the same profileFilter
// semantics as GetRequests.
func (s *Store) GetResults(profileFilter map[transfers.ProfileID]bool) ([]transfers.TransferResult, error) {
	recs, err := s.listByProfile(s.results, profileFilter)
	if err != nil {
		return nil, skerr.Wrap(err)
	}
	var out []transfers.TransferResult
	for _, rec := range recs {
		out = append(out, rec.(*resultRecord).TransferResult)
	}
	return out, nil
}

// listByProfile returns every record in ib when profileFilter is nil (no
// filtering requested). Otherwise it goes through the profile secondary
// index instead of a full table scan: the filter is usually just the small
// set of currently-configured profiles, so a handful of ReadIndex lookups
// plus a targeted Read beats decoding every row in the bucket.
func (s *Store) listByProfile(ib *boltutil.IndexedBucket, profileFilter map[transfers.ProfileID]bool) ([]boltutil.Record, error) {
	if profileFilter == nil {
		recs, _, err := ib.List(0, -1)
		return recs, err
	}

	values := make([]string, 0, len(profileFilter))
	for id, ok := range profileFilter {
		if ok {
			values = append(values, strconv.Itoa(int(id)))
		}
	}
	byValue, err := ib.ReadIndex(indexByProfile, values)
	if err != nil {
		return nil, err
	}
	var keys []string
	for _, ids := range byValue {
		keys = append(keys, ids...)
	}
	if len(keys) == 0 {
		return nil, nil
	}
	return ib.Read(keys)
}
