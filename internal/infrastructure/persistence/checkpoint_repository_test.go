package persistence

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGormCheckpointStore(t *testing.T) {
	store := NewGormCheckpointStore(setupEnrichmentTestDB(t))
	ctx := context.Background()

	offset, err := store.Load(ctx, "person-primary", 3)
	require.NoError(t, err)
	assert.Equal(t, "", offset, "a group that never committed starts from the beginning")

	require.NoError(t, store.Commit(ctx, "person-primary", 3, "10"))
	require.NoError(t, store.Commit(ctx, "person-primary", 3, "11"))
	require.NoError(t, store.Commit(ctx, "person-primary", 0, "4"))
	require.NoError(t, store.Commit(ctx, "company", 3, "1-0"))

	offset, err = store.Load(ctx, "person-primary", 3)
	require.NoError(t, err)
	assert.Equal(t, "11", offset)

	list, err := store.List(ctx, "person-primary")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, 0, list[0].Partition)
	assert.Equal(t, "4", list[0].Offset)
	assert.Equal(t, 3, list[1].Partition)

	all, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
