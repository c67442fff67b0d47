package feed

import (
	"github.com/samber/lo"

	"github.com/pders01/tailfeed/internal/storage"
)

type MergeMode int

const (
	// MergeReplace discards existing entries; used by Refresh.
	MergeReplace MergeMode = iota
	// MergeAppend keeps existing entries in place and adds net-new ones
	// after them; used by LoadMore.
	MergeAppend
)

func (m MergeMode) String() string {
	if m == MergeAppend {
		return "append"
	}
	return "replace"
}

// Merge combines a fetched page with the entries already loaded. Entries are
// identified by ID and the first occurrence wins. Neither input is modified.
func Merge(existing, incoming []storage.Entry, mode MergeMode) []storage.Entry {
	unique := lo.UniqBy(incoming, entryID)

	if mode == MergeReplace {
		return unique
	}

	seen := lo.KeyBy(existing, entryID)
	fresh := lo.Filter(unique, func(e storage.Entry, _ int) bool {
		_, dup := seen[e.ID]
		return !dup
	})

	merged := make([]storage.Entry, 0, len(existing)+len(fresh))
	merged = append(merged, existing...)
	return append(merged, fresh...)
}

func entryID(e storage.Entry) string {
	return e.ID
}
