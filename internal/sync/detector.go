// Package sync orchestrates one entity type through the pipeline: classify
// each incoming record against the system of record, upsert, then refresh the
// derived search and vector stores.
package sync

import (
	"github.com/yourorg/catalog-sync/internal/catalog"
)

// Change classifies an incoming record against its stored counterpart.
type Change string

const (
	ChangeNew       Change = "NEW"
	ChangeChanged   Change = "CHANGED"
	ChangeUnchanged Change = "UNCHANGED"
	ChangeDeleted   Change = "DELETED"
)

// Classify compares the incoming record with the stored row over the kind's
// watched fields. Comparison is coarse string equality on purpose: "2" and
// 2.0 are different values, so type-only drift still counts as a change.
// Every watched field is compared; a field the producer dropped differs
// from its stored value and classifies as CHANGED so the row resyncs.
func Classify(kind catalog.Kind, incoming, stored catalog.Record, found bool) Change {
	if incoming.Deleted() {
		return ChangeDeleted
	}
	if !found {
		return ChangeNew
	}
	for _, field := range kind.WatchedFields() {
		if catalog.Canonical(incoming[field]) != catalog.Canonical(stored[field]) {
			return ChangeChanged
		}
	}
	return ChangeUnchanged
}
