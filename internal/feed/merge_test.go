package feed

import (
	"fmt"
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"

	"github.com/pders01/tailfeed/internal/storage"
)

func entries(ids ...string) []storage.Entry {
	return lo.Map(ids, func(id string, _ int) storage.Entry {
		return storage.Entry{ID: id, Title: "post " + id}
	})
}

func ids(es []storage.Entry) []string {
	return lo.Map(es, func(e storage.Entry, _ int) string { return e.ID })
}

func TestMergeReplace(t *testing.T) {
	existing := entries("x", "y")
	got := Merge(existing, entries("a", "b", "a", "c", "b"), MergeReplace)

	assert.Equal(t, []string{"a", "b", "c"}, ids(got))
	assert.Equal(t, []string{"x", "y"}, ids(existing), "existing must not be modified")
}

func TestMergeReplace_Idempotent(t *testing.T) {
	page := entries("1", "2", "2", "3")

	fromEmpty := Merge(nil, page, MergeReplace)
	fromSelf := Merge(page, page, MergeReplace)

	assert.Equal(t, fromEmpty, fromSelf)
	assert.Equal(t, []string{"1", "2", "3"}, ids(fromSelf))
}

func TestMergeAppend_Dedup(t *testing.T) {
	a := entries("1", "2", "3", "4")
	b := entries("3", "5", "1", "6", "5")

	got := Merge(a, b, MergeAppend)

	assert.Equal(t, []string{"1", "2", "3", "4", "5", "6"}, ids(got))
	assert.Len(t, lo.Uniq(ids(got)), len(got))
}

func TestMergeAppend_KeepsExistingValues(t *testing.T) {
	a := []storage.Entry{{ID: "1", Liked: true, LikeCount: 6}}
	b := []storage.Entry{{ID: "1", Liked: false, LikeCount: 5}, {ID: "2"}}

	got := Merge(a, b, MergeAppend)

	assert.Len(t, got, 2)
	assert.True(t, got[0].Liked, "loaded entry is not overwritten by a later page")
	assert.Equal(t, 6, got[0].LikeCount)
}

func TestMergeAppend_Properties(t *testing.T) {
	// Overlap at every offset between two pages of ten.
	for overlap := 0; overlap <= 10; overlap++ {
		t.Run(fmt.Sprintf("overlap=%d", overlap), func(t *testing.T) {
			var first, second []string
			for i := 0; i < 10; i++ {
				first = append(first, fmt.Sprintf("p%d", i))
			}
			for i := 10 - overlap; i < 20-overlap; i++ {
				second = append(second, fmt.Sprintf("p%d", i))
			}

			got := ids(Merge(entries(first...), entries(second...), MergeAppend))

			assert.Len(t, got, 20-overlap)
			assert.Equal(t, first, got[:10], "existing ids keep their order and come first")
			netNew := lo.Filter(second, func(id string, _ int) bool { return !lo.Contains(first, id) })
			assert.Equal(t, netNew, got[10:])
		})
	}
}

func TestMergeEmpty(t *testing.T) {
	assert.Empty(t, Merge(nil, nil, MergeReplace))
	assert.Empty(t, Merge(nil, nil, MergeAppend))
	assert.Equal(t, []string{"1"}, ids(Merge(entries("1"), nil, MergeAppend)))
}
