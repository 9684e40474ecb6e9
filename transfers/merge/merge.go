// Package merge implements the append-only union merge used to combine
// TransferRequestByKeys and TransferResult rows written across multiple
// runs, plus the structural content hash that guards the persistent
// store against rewriting a row that didn't actually change.
package merge

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"

	"go.skia.org/transfers/transfers"
)

// ErrPreconditionViolated reports a merge invoked on two rows that do not
// share identity, or (for results) whose to/infos lengths already
// disagree before merging. The engine treats this as a programming
// error: the caller should abort the run with the offending (from,
// profile) named.
type ErrPreconditionViolated struct {
	From    transfers.LocKey
	Profile transfers.ProfileID
	Reason  string
}

func (e *ErrPreconditionViolated) Error() string {
	return fmt.Sprintf("merge precondition violated for (from=%v, profile=%d): %s", e.From, e.Profile, e.Reason)
}

// Requests merges right into left: left's from/profile/to come first,
// then any loc_key in right.To not already present in left.To is
// appended, in right's order. Merge is associative and left-idempotent;
// merging a row with itself is a no-op.
func Requests(left, right transfers.TransferRequestByKeys) (transfers.TransferRequestByKeys, error) {
	if left.From != right.From || left.Profile != right.Profile {
		return transfers.TransferRequestByKeys{}, &ErrPreconditionViolated{
			From: left.From, Profile: left.Profile, Reason: "from or profile mismatch",
		}
	}

	seen := make(map[transfers.LocKey]bool, len(left.To))
	to := make([]transfers.LocKey, len(left.To))
	copy(to, left.To)
	for _, k := range left.To {
		seen[k] = true
	}
	for _, k := range right.To {
		if seen[k] {
			continue
		}
		seen[k] = true
		to = append(to, k)
	}
	return transfers.TransferRequestByKeys{From: left.From, Profile: left.Profile, To: to}, nil
}

// Results merges right into left the same way Requests does, additionally
// carrying each destination's TransferInfo along with it. Existing info
// for a duplicate destination is never overwritten — a destination
// re-routed by right that already appears in left is silently discarded,
// a documented limitation rather than a bug.
func Results(left, right transfers.TransferResult) (transfers.TransferResult, error) {
	if left.From != right.From || left.Profile != right.Profile {
		return transfers.TransferResult{}, &ErrPreconditionViolated{
			From: left.From, Profile: left.Profile, Reason: "from or profile mismatch",
		}
	}
	if len(left.To) != len(left.Infos) || len(right.To) != len(right.Infos) {
		return transfers.TransferResult{}, &ErrPreconditionViolated{
			From: left.From, Profile: left.Profile, Reason: "to/infos length mismatch",
		}
	}

	seen := make(map[transfers.LocKey]bool, len(left.To))
	to := make([]transfers.LocKey, len(left.To))
	copy(to, left.To)
	infos := make([]transfers.TransferInfo, len(left.Infos))
	copy(infos, left.Infos)
	for _, k := range left.To {
		seen[k] = true
	}
	for i, k := range right.To {
		if seen[k] {
			continue
		}
		seen[k] = true
		to = append(to, k)
		infos = append(infos, right.Infos[i])
	}
	return transfers.TransferResult{From: left.From, Profile: left.Profile, To: to, Infos: infos}, nil
}

// ContentHash returns a deterministic structural digest of v (a
// TransferRequestByKeys or TransferResult), used by the store's
// update_requests/update_results operations to skip rewriting a row whose
// merged value is unchanged from what's stored. Hashing goes through v's
// JSON encoding rather than its in-memory layout, so it is stable across
// struct field reordering or padding changes.
func ContentHash(v interface{}) ([32]byte, error) {
	encoded, err := json.Marshal(v)
	if err != nil {
		return [32]byte{}, err
	}
	return sha256.Sum256(encoded), nil
}
