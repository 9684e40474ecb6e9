// Package boltutil layers a small indexed-record abstraction on top of
// bbolt, the embedded transactional key-value store the transfers engine
// uses for its five persistent tables (profiles, platforms, matchings,
// requests, results). Each IndexedBucket owns one bolt bucket holding the
// primary records plus one bolt bucket per secondary index, so callers can
// look records up by id or by an index value (e.g. all requests for a
// given profile) without a full scan.
package boltutil

import (
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"go.skia.org/transfers/go/util"
)

// Record is anything that can be stored in an IndexedBucket. Key is the
// primary, raw key under which the record is stored; it may contain
// arbitrary bytes (Go strings are not required to be valid UTF-8).
// IndexValues returns, for each configured secondary index, the list of
// index values the record should be reachable under.
type Record interface {
	Key() string
	IndexValues() map[string][]string
}

// Config configures an IndexedBucket.
type Config struct {
	DB      *bbolt.DB
	Name    string
	Indices []string
	Codec   util.Codec
}

// IndexedBucket stores Records in one primary bolt bucket, keyed by
// Record.Key(), plus one bolt bucket per configured secondary index
// mapping an index value to the set of primary keys that produced it.
type IndexedBucket struct {
	DB      *bbolt.DB
	name    string
	indices []string
	codec   util.Codec
}

// NewIndexedBucket opens (creating if necessary) the bucket and its index
// buckets described by cfg.
func NewIndexedBucket(cfg *Config) (*IndexedBucket, error) {
	ib := &IndexedBucket{
		DB:      cfg.DB,
		name:    cfg.Name,
		indices: util.CopyStringSlice(cfg.Indices),
		codec:   cfg.Codec,
	}
	err := ib.DB.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(ib.name)); err != nil {
			return err
		}
		for _, idx := range ib.indices {
			if _, err := tx.CreateBucketIfNotExists(ib.indexBucketName(idx)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ib, nil
}

func (ib *IndexedBucket) indexBucketName(idx string) []byte {
	return []byte(ib.name + "_idx_" + idx)
}

// Insert adds recs to the bucket, updating all secondary indices. Existing
// records with the same key are overwritten.
func (ib *IndexedBucket) Insert(recs []Record) error {
	return ib.DB.Update(func(tx *bbolt.Tx) error {
		main := tx.Bucket([]byte(ib.name))
		for _, rec := range recs {
			encoded, err := ib.codec.Encode(rec)
			if err != nil {
				return fmt.Errorf("encoding record %q: %w", rec.Key(), err)
			}
			if err := main.Put([]byte(rec.Key()), encoded); err != nil {
				return err
			}
			if err := ib.addToIndices(tx, rec); err != nil {
				return err
			}
		}
		return nil
	})
}

func (ib *IndexedBucket) addToIndices(tx *bbolt.Tx, rec Record) error {
	values := rec.IndexValues()
	for _, idxName := range ib.indices {
		idxBucket := tx.Bucket(ib.indexBucketName(idxName))
		for _, idxVal := range values[idxName] {
			ids, err := ib.readIDList(idxBucket, idxVal)
			if err != nil {
				return err
			}
			if !util.In(rec.Key(), ids) {
				ids = append(ids, rec.Key())
			}
			if err := ib.writeIDList(idxBucket, idxVal, ids); err != nil {
				return err
			}
		}
	}
	return nil
}

func (ib *IndexedBucket) readIDList(bucket *bbolt.Bucket, idxVal string) ([]string, error) {
	raw := bucket.Get([]byte(idxVal))
	if raw == nil {
		return nil, nil
	}
	// Ids are stored as JSON byte strings (base64), not JSON strings, so
	// primary keys that are not valid UTF-8 survive the round trip.
	var rawIDs [][]byte
	if err := json.Unmarshal(raw, &rawIDs); err != nil {
		return nil, err
	}
	ids := make([]string, len(rawIDs))
	for i, id := range rawIDs {
		ids[i] = string(id)
	}
	return ids, nil
}

func (ib *IndexedBucket) writeIDList(bucket *bbolt.Bucket, idxVal string, ids []string) error {
	rawIDs := make([][]byte, len(ids))
	for i, id := range ids {
		rawIDs[i] = []byte(id)
	}
	encoded, err := json.Marshal(rawIDs)
	if err != nil {
		return err
	}
	return bucket.Put([]byte(idxVal), encoded)
}

// ReadRaw returns the raw encoded bytes stored for id, or nil if absent.
func (ib *IndexedBucket) ReadRaw(id string) ([]byte, error) {
	var raw []byte
	err := ib.DB.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket([]byte(ib.name)).Get([]byte(id))
		if v != nil {
			raw = append([]byte(nil), v...)
		}
		return nil
	})
	return raw, err
}

// Read returns one Record per id, in the same order; an id with no
// matching record yields a nil entry.
func (ib *IndexedBucket) Read(ids []string) ([]Record, error) {
	result := make([]Record, len(ids))
	err := ib.DB.View(func(tx *bbolt.Tx) error {
		main := tx.Bucket([]byte(ib.name))
		for i, id := range ids {
			v := main.Get([]byte(id))
			if v == nil {
				continue
			}
			decoded, err := ib.codec.Decode(v)
			if err != nil {
				return err
			}
			result[i] = decoded.(Record)
		}
		return nil
	})
	return result, err
}

// ReadIndex returns, for each requested index value, the primary keys
// reachable under it.
func (ib *IndexedBucket) ReadIndex(indexName string, values []string) (map[string][]string, error) {
	result := map[string][]string{}
	err := ib.DB.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(ib.indexBucketName(indexName))
		if bucket == nil {
			panic(fmt.Sprintf("boltutil: unknown index %q", indexName))
		}
		for _, v := range values {
			ids, err := ib.readIDList(bucket, v)
			if err != nil {
				return err
			}
			if len(ids) > 0 {
				result[v] = ids
			}
		}
		return nil
	})
	return result, err
}

// Delete removes the records with the given ids, including their
// secondary index entries.
func (ib *IndexedBucket) Delete(ids []string) error {
	return ib.DB.Update(func(tx *bbolt.Tx) error {
		main := tx.Bucket([]byte(ib.name))
		for _, id := range ids {
			v := main.Get([]byte(id))
			if v == nil {
				continue
			}
			decoded, err := ib.codec.Decode(v)
			if err != nil {
				return err
			}
			if err := ib.removeFromIndices(tx, decoded.(Record)); err != nil {
				return err
			}
			if err := main.Delete([]byte(id)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (ib *IndexedBucket) removeFromIndices(tx *bbolt.Tx, rec Record) error {
	values := rec.IndexValues()
	for _, idxName := range ib.indices {
		idxBucket := tx.Bucket(ib.indexBucketName(idxName))
		for _, idxVal := range values[idxName] {
			ids, err := ib.readIDList(idxBucket, idxVal)
			if err != nil {
				return err
			}
			filtered := ids[:0]
			for _, id := range ids {
				if id != rec.Key() {
					filtered = append(filtered, id)
				}
			}
			if len(filtered) == 0 {
				if err := idxBucket.Delete([]byte(idxVal)); err != nil {
					return err
				}
				continue
			}
			if err := ib.writeIDList(idxBucket, idxVal, filtered); err != nil {
				return err
			}
		}
	}
	return nil
}

// List returns up to size records starting at offset (in bolt's natural
// key order), along with the total record count. size < 0 means "no
// limit".
func (ib *IndexedBucket) List(offset, size int) ([]Record, int, error) {
	var result []Record
	total := 0
	err := ib.DB.View(func(tx *bbolt.Tx) error {
		main := tx.Bucket([]byte(ib.name))
		i := 0
		return main.ForEach(func(_, v []byte) error {
			total++
			if i < offset || (size >= 0 && len(result) >= size) {
				i++
				return nil
			}
			i++
			decoded, err := ib.codec.Decode(v)
			if err != nil {
				return err
			}
			result = append(result, decoded.(Record))
			return nil
		})
	})
	return result, total, err
}

// ReIndex rebuilds all secondary indices from the primary records. Used
// to recover after an index bucket was deleted or corrupted out-of-band.
func (ib *IndexedBucket) ReIndex() error {
	return ib.DB.Update(func(tx *bbolt.Tx) error {
		for _, idxName := range ib.indices {
			if err := tx.DeleteBucket(ib.indexBucketName(idxName)); err != nil && err != bbolt.ErrBucketNotFound {
				return err
			}
			if _, err := tx.CreateBucket(ib.indexBucketName(idxName)); err != nil {
				return err
			}
		}
		main := tx.Bucket([]byte(ib.name))
		return main.ForEach(func(_, v []byte) error {
			decoded, err := ib.codec.Decode(v)
			if err != nil {
				return err
			}
			return ib.addToIndices(tx, decoded.(Record))
		})
	})
}
