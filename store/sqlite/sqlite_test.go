package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/clubportal/generic"
	"github.com/warp/clubportal/generic/storetest"
	"github.com/warp/clubportal/store/sqlite"
)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	st, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestSQLite_Contract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) storetest.Store { return newTestStore(t) })
}

func TestSQLite_RejectsUnsafeFieldNames(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	_, err := st.Query(ctx, generic.Collection("members"), generic.Where("email') OR 1=1 --", "x"))
	assert.ErrorIs(t, err, generic.ErrInvalidInput)

	err = st.EnsureGroupIndex(ctx, "legacyLogs", "bad field")
	assert.ErrorIs(t, err, generic.ErrInvalidInput)
}

func TestSQLite_PersistsAcrossReopen(t *testing.T) {
	// GIVEN: A file database with one document and a declared group index
	// WHEN: The store is closed and reopened
	// THEN: Both survive

	path := filepath.Join(t.TempDir(), "portal.db")
	ctx := context.Background()

	st, err := sqlite.New(path)
	require.NoError(t, err)
	require.NoError(t, st.Commit(ctx, generic.NewBatch().Set(
		generic.Collection("legacy_members").Doc("a").Sub("legacyLogs").Doc("1"),
		generic.Fields{"sourceSheetId": "#4321"})))
	require.NoError(t, st.EnsureGroupIndex(ctx, "legacyLogs", "sourceSheetId"))
	require.NoError(t, st.Close())

	st, err = sqlite.New(path)
	require.NoError(t, err)
	defer st.Close()

	docs, err := st.CollectionGroup(ctx, "legacyLogs", generic.Where("sourceSheetId", "#4321"))
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestSQLite_MergeSeesEarlierOpsInBatch(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	ref := generic.Collection("members").Doc("m1")

	require.NoError(t, st.Commit(ctx, generic.NewBatch().
		Set(ref, generic.Fields{"firstName": "Ann"}).
		Merge(ref, generic.Fields{"lastName": "Lee"})))

	doc, err := st.Get(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, "Ann", doc.Data["firstName"])
	assert.Equal(t, "Lee", doc.Data["lastName"])
}
