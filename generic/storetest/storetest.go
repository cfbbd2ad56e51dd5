// Package storetest holds the behavioral contract every generic.DocStore
// implementation must satisfy. Implementations call Run from their tests.
package storetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/clubportal/generic"
)

// Store is what the contract exercises.
type Store interface {
	generic.DocStore
	generic.Indexer
}

// Run executes the contract against stores built by newStore.
func Run(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("GetMissingReturnsNil", func(t *testing.T) { testGetMissing(t, newStore(t)) })
	t.Run("SetGetQuery", func(t *testing.T) { testSetGetQuery(t, newStore(t)) })
	t.Run("MergeIsDeep", func(t *testing.T) { testMerge(t, newStore(t)) })
	t.Run("CreateIsInsertOnly", func(t *testing.T) { testCreate(t, newStore(t)) })
	t.Run("BatchIsAtomic", func(t *testing.T) { testAtomic(t, newStore(t)) })
	t.Run("CollectionGroupNeedsIndex", func(t *testing.T) { testCollectionGroup(t, newStore(t)) })
	t.Run("OversizedBatchWritesNothing", func(t *testing.T) { testOversized(t, newStore(t)) })
}

func testGetMissing(t *testing.T, st Store) {
	doc, err := st.Get(context.Background(), generic.Collection("members").Doc("nobody"))
	require.NoError(t, err)
	assert.Nil(t, doc)
}

func testSetGetQuery(t *testing.T, st Store) {
	ctx := context.Background()
	members := generic.Collection("members")

	b := generic.NewBatch().
		Set(members.Doc("b"), generic.Fields{"email": "b@x.org", "legacyKey": 2106, "active": true}).
		Set(members.Doc("a"), generic.Fields{"email": "a@x.org", "legacyKey": 7, "active": false}).
		Set(generic.Collection("other").Doc("c"), generic.Fields{"email": "a@x.org"})
	require.NoError(t, st.Commit(ctx, b))

	doc, err := st.Get(ctx, members.Doc("a"))
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, "a@x.org", doc.Data["email"])

	all, err := st.Query(ctx, members)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "a", all[0].Ref.ID, "results are ordered by ID")

	byKey, err := st.Query(ctx, members, generic.Where("legacyKey", 2106))
	require.NoError(t, err)
	require.Len(t, byKey, 1)
	assert.Equal(t, "b", byKey[0].Ref.ID)

	byFlag, err := st.Query(ctx, members, generic.Where("active", true), generic.Where("email", "b@x.org"))
	require.NoError(t, err)
	assert.Len(t, byFlag, 1)

	none, err := st.Query(ctx, members, generic.Where("email", "zzz"))
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testMerge(t *testing.T, st Store) {
	ctx := context.Background()
	ref := generic.Collection("members").Doc("m1")

	require.NoError(t, st.Commit(ctx, generic.NewBatch().Set(ref, generic.Fields{
		"firstName":  "Ann",
		"activities": map[string]any{"agility": true},
	})))
	require.NoError(t, st.Commit(ctx, generic.NewBatch().Merge(ref, generic.Fields{
		"lastName":   "Lee",
		"activities": map[string]any{"rally": true},
	})))

	doc, err := st.Get(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, "Ann", doc.Data["firstName"])
	assert.Equal(t, "Lee", doc.Data["lastName"])
	assert.Equal(t, map[string]any{"agility": true, "rally": true}, doc.Data["activities"])

	// Merge into a missing document creates it
	fresh := generic.Collection("members").Doc("m2")
	require.NoError(t, st.Commit(ctx, generic.NewBatch().Merge(fresh, generic.Fields{"x": "y"})))
	doc, err = st.Get(ctx, fresh)
	require.NoError(t, err)
	require.NotNil(t, doc)
}

func testCreate(t *testing.T, st Store) {
	ctx := context.Background()
	ref := generic.Collection("logs").Doc("l1").Sub("history").Doc("000001")

	require.NoError(t, st.Commit(ctx, generic.NewBatch().Create(ref, generic.Fields{"v": 1})))
	err := st.Commit(ctx, generic.NewBatch().Create(ref, generic.Fields{"v": 2}))
	assert.ErrorIs(t, err, generic.ErrAlreadyExists)

	doc, err := st.Get(ctx, ref)
	require.NoError(t, err)
	assert.EqualValues(t, 1, doc.Data["v"])
}

func testAtomic(t *testing.T, st Store) {
	// GIVEN: A document that already exists at the Create target
	// WHEN: A batch deletes another doc and then hits the Create conflict
	// THEN: Nothing in the batch is applied

	ctx := context.Background()
	keep := generic.Collection("legacy_members").Doc("old@x.org")
	taken := generic.Collection("logs").Doc("taken")
	require.NoError(t, st.Commit(ctx, generic.NewBatch().
		Set(keep, generic.Fields{"email": "old@x.org"}).
		Set(taken, generic.Fields{"v": 1})))

	err := st.Commit(ctx, generic.NewBatch().
		Delete(keep).
		Set(generic.Collection("logs").Doc("new"), generic.Fields{"v": 2}).
		Create(taken, generic.Fields{"v": 3}))
	require.Error(t, err)

	doc, err := st.Get(ctx, keep)
	require.NoError(t, err)
	assert.NotNil(t, doc, "delete must be rolled back")

	doc, err = st.Get(ctx, generic.Collection("logs").Doc("new"))
	require.NoError(t, err)
	assert.Nil(t, doc, "set must be rolled back")
}

func testCollectionGroup(t *testing.T, st Store) {
	ctx := context.Background()
	a := generic.Collection("legacy_members").Doc("a").Sub("legacyLogs")
	b := generic.Collection("legacy_members").Doc("b").Sub("legacyLogs")
	require.NoError(t, st.Commit(ctx, generic.NewBatch().
		Set(a.Doc("1"), generic.Fields{"sourceSheetId": "#1234"}).
		Set(b.Doc("2"), generic.Fields{"sourceSheetId": "#1234"}).
		Set(b.Doc("3"), generic.Fields{"sourceSheetId": "#9999"}).
		Set(generic.Collection("logs").Doc("4"), generic.Fields{"sourceSheetId": "#1234"})))

	_, err := st.CollectionGroup(ctx, "legacyLogs", generic.Where("sourceSheetId", "#1234"))
	require.Error(t, err)
	assert.True(t, generic.IsMissingIndex(err))
	assert.Contains(t, err.Error(), "requires an index")

	require.NoError(t, st.EnsureGroupIndex(ctx, "legacyLogs", "sourceSheetId"))

	docs, err := st.CollectionGroup(ctx, "legacyLogs", generic.Where("sourceSheetId", "#1234"))
	require.NoError(t, err)
	require.Len(t, docs, 2)
	parent, ok := docs[1].Ref.Collection.Parent()
	require.True(t, ok)
	assert.Equal(t, "b", parent.ID)
}

func testOversized(t *testing.T, st Store) {
	ctx := context.Background()
	b := generic.NewBatch()
	for i := 0; i < generic.MaxBatchOps+1; i++ {
		b.Set(generic.Collection("logs").NewDoc(), generic.Fields{"i": i})
	}
	assert.ErrorIs(t, st.Commit(ctx, b), generic.ErrBatchTooLarge)

	docs, err := st.Query(ctx, generic.Collection("logs"))
	require.NoError(t, err)
	assert.Empty(t, docs)
}
