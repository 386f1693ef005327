package memory

import (
	"context"
	"testing"

	"github.com/corpuskit/corpuskit/internal/vectorstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpsertAndSearchReturnsClosestPoint(t *testing.T) {
	g := New()
	ctx := context.Background()
	require.NoError(t, g.InitCollection(ctx, 3))

	require.NoError(t, g.Upsert(ctx, []vectorstore.Point{
		{ID: "a", Vector: []float32{1, 0, 0}, Payload: map[string]string{"kind": "doc"}},
		{ID: "b", Vector: []float32{0, 1, 0}, Payload: map[string]string{"kind": "doc"}},
	}))

	results, err := g.Search(ctx, []float32{0.9, 0.1, 0}, 1, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ID)
}

func TestSearchRespectsFilter(t *testing.T) {
	g := New()
	ctx := context.Background()
	require.NoError(t, g.InitCollection(ctx, 2))

	require.NoError(t, g.Upsert(ctx, []vectorstore.Point{
		{ID: "a", Vector: []float32{1, 0}, Payload: map[string]string{"project": "p1"}},
		{ID: "b", Vector: []float32{1, 0}, Payload: map[string]string{"project": "p2"}},
	}))

	results, err := g.Search(ctx, []float32{1, 0}, 5, &vectorstore.Filter{Equals: map[string]string{"project": "p2"}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "b", results[0].ID)
}

func TestDeleteRemovesPointFromResults(t *testing.T) {
	g := New()
	ctx := context.Background()
	require.NoError(t, g.InitCollection(ctx, 2))
	require.NoError(t, g.Upsert(ctx, []vectorstore.Point{{ID: "a", Vector: []float32{1, 0}}}))
	require.NoError(t, g.Delete(ctx, []string{"a"}))

	results, err := g.Search(ctx, []float32{1, 0}, 5, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}
