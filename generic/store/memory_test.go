package store_test

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/clubportal/generic"
	"github.com/warp/clubportal/generic/store"
	"github.com/warp/clubportal/generic/storetest"
)

func TestMemory_Contract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) storetest.Store { return store.NewMemory() })
}

func TestMemory_ReturnedDocsAreCopies(t *testing.T) {
	st := store.NewMemory()
	ctx := context.Background()
	ref := generic.Collection("members").Doc("m1")
	require.NoError(t, st.Commit(ctx, generic.NewBatch().Set(ref, generic.Fields{"activities": map[string]any{"agility": true}})))

	doc, err := st.Get(ctx, ref)
	require.NoError(t, err)
	doc.Data["activities"].(map[string]any)["agility"] = false

	again, err := st.Get(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, true, again.Data["activities"].(map[string]any)["agility"])
}

func TestMemory_CommitsCounted(t *testing.T) {
	st := store.NewMemory()
	require.NoError(t, st.Commit(context.Background(), generic.NewBatch().Delete(generic.Collection("x").Doc("1"))))
	assert.Equal(t, 1, st.Commits())
}

func TestMemoryBlobs(t *testing.T) {
	blobs := store.NewMemoryBlobs("https://files.example.org")
	ctx := context.Background()

	require.NoError(t, blobs.Put(ctx, "sheets/2026-01-01_1234", bytes.NewReader([]byte("img")), "image/png"))

	url, err := blobs.URL(ctx, "sheets/2026-01-01_1234")
	require.NoError(t, err)
	assert.Equal(t, "https://files.example.org/sheets%2F2026-01-01_1234", url)

	r, ok := blobs.Open("sheets/2026-01-01_1234")
	require.True(t, ok)
	data, _ := io.ReadAll(r)
	assert.Equal(t, "img", string(data))

	require.NoError(t, blobs.Delete(ctx, "sheets/2026-01-01_1234"))
	assert.ErrorIs(t, blobs.Delete(ctx, "sheets/2026-01-01_1234"), generic.ErrNotFound)
}
