package chunk

import (
	"context"
	"testing"

	"github.com/corpuskit/corpuskit/internal/config"
	"github.com/corpuskit/corpuskit/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcherSelectsMarkdownByExtension(t *testing.T) {
	d := NewDispatcher(config.ChunkingConfig{MaxChunkTokens: 200, OverlapTokens: 20, MinChunkTokens: 20})
	defer d.Close()

	doc := model.Document{
		ID:        "doc-1",
		ProjectID: "p",
		Title:     "README.md",
		Content:   []byte("# Heading\n\nSome content under the heading.\n"),
	}

	chunks, err := d.Chunk(context.Background(), doc)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	assert.Equal(t, "doc-1", chunks[0].DocumentID)
}

func TestDispatcherProducesDeterministicIDs(t *testing.T) {
	d := NewDispatcher(config.ChunkingConfig{MaxChunkTokens: 200, OverlapTokens: 20, MinChunkTokens: 20})
	defer d.Close()

	doc := model.Document{ID: "doc-2", ProjectID: "p", Title: "notes.txt", Content: []byte("plain text content here")}

	first, err := d.Chunk(context.Background(), doc)
	require.NoError(t, err)
	second, err := d.Chunk(context.Background(), doc)
	require.NoError(t, err)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID, "re-chunking identical content must yield identical chunk ids")
	}
}

func TestDispatcherSelectsJSONByExtension(t *testing.T) {
	d := NewDispatcher(config.ChunkingConfig{MaxChunkTokens: 200, OverlapTokens: 20, MinChunkTokens: 20})
	defer d.Close()

	doc := model.Document{ID: "doc-3", ProjectID: "p", Title: "data.json", Content: []byte(`{"a": 1, "b": 2}`)}
	chunks, err := d.Chunk(context.Background(), doc)
	require.NoError(t, err)
	assert.NotEmpty(t, chunks)
}
