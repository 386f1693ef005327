package pipeline

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corpuskit/corpuskit/internal/chunk"
	"github.com/corpuskit/corpuskit/internal/config"
	"github.com/corpuskit/corpuskit/internal/connector"
	"github.com/corpuskit/corpuskit/internal/convert"
	"github.com/corpuskit/corpuskit/internal/llm/fake"
	"github.com/corpuskit/corpuskit/internal/model"
	"github.com/corpuskit/corpuskit/internal/state"
	"github.com/corpuskit/corpuskit/internal/vectorstore/memory"
)

type fakeConnector struct {
	docs []model.Document
}

func (f *fakeConnector) IterDocuments(ctx context.Context, projectID string, source model.Source, since time.Time) (<-chan connector.Observation, error) {
	out := make(chan connector.Observation, len(f.docs))
	for _, d := range f.docs {
		out <- connector.Observation{Document: d}
	}
	close(out)
	return out, nil
}

func newTestPipeline(t *testing.T) (*Pipeline, *state.Store, *memory.Gateway) {
	t.Helper()
	store, err := state.Open(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	vectors := memory.New()
	require.NoError(t, vectors.InitCollection(context.Background(), 8))

	embedder := fake.New(8)
	dispatcher := chunk.NewDispatcher(config.ChunkingConfig{MaxChunkTokens: 512, OverlapTokens: 64, MinChunkTokens: 10})
	converter := convert.New(nil, time.Second, 0)

	p := New(DefaultConfig(), converter, dispatcher, embedder, store, vectors)
	return p, store, vectors
}

func TestRunIngestsNewDocumentAndUpsertsVectors(t *testing.T) {
	p, store, vectors := newTestPipeline(t)

	doc := model.Document{
		ID:          model.DocumentID("proj", model.SourceLocalFile, "docs", "a.txt"),
		ProjectID:   "proj",
		SourceName:  "docs",
		SourceType:  model.SourceLocalFile,
		Title:       "a.txt",
		MimeType:    "text/plain",
		Variant:     model.DocumentText,
		Content:     []byte("hello world, this is a short test document about corpuskit."),
		ContentHash: model.StableHash("hello world, this is a short test document about corpuskit."),
		UpdatedAt:   time.Now(),
	}
	conn := &fakeConnector{docs: []model.Document{doc}}

	progress, err := p.Run(context.Background(), "proj", model.Source{Name: "docs", Kind: model.SourceLocalFile}, conn, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, StatusDone, progress.Snapshot().Status)

	chunkIDs, err := store.ChunksFor(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, chunkIDs)

	results, err := vectors.Search(context.Background(), make([]float32, 8), 10, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, results)
}

func TestRunSkipsUnchangedDocumentOnSecondPass(t *testing.T) {
	p, _, _ := newTestPipeline(t)

	content := "stable content that should not be re-embedded"
	doc := model.Document{
		ID:          model.DocumentID("proj", model.SourceLocalFile, "docs", "a.txt"),
		ProjectID:   "proj",
		SourceName:  "docs",
		SourceType:  model.SourceLocalFile,
		Title:       "a.txt",
		MimeType:    "text/plain",
		Variant:     model.DocumentText,
		Content:     []byte(content),
		ContentHash: model.StableHash(content),
		UpdatedAt:   time.Now(),
	}
	conn := &fakeConnector{docs: []model.Document{doc}}
	src := model.Source{Name: "docs", Kind: model.SourceLocalFile}

	_, err := p.Run(context.Background(), "proj", src, conn, time.Time{})
	require.NoError(t, err)

	progress2, err := p.Run(context.Background(), "proj", src, conn, time.Time{})
	require.NoError(t, err)
	snap := progress2.Snapshot()
	assert.Equal(t, 1, snap.DocumentsTotal)
	assert.Equal(t, 1, snap.DocumentsDone)
}

func TestRunTombstonesDocumentsMissingFromLatestFetch(t *testing.T) {
	p, store, _ := newTestPipeline(t)
	src := model.Source{Name: "docs", Kind: model.SourceLocalFile}

	doc := model.Document{
		ID:          model.DocumentID("proj", model.SourceLocalFile, "docs", "a.txt"),
		ProjectID:   "proj",
		SourceName:  "docs",
		SourceType:  model.SourceLocalFile,
		Title:       "a.txt",
		MimeType:    "text/plain",
		Variant:     model.DocumentText,
		Content:     []byte("soon to be deleted document content"),
		ContentHash: model.StableHash("soon to be deleted document content"),
		UpdatedAt:   time.Now(),
	}
	_, err := p.Run(context.Background(), "proj", src, &fakeConnector{docs: []model.Document{doc}}, time.Time{})
	require.NoError(t, err)

	_, err = p.Run(context.Background(), "proj", src, &fakeConnector{docs: nil}, time.Time{})
	require.NoError(t, err)

	remaining, err := store.DocumentsForSource(context.Background(), "proj", "docs")
	require.NoError(t, err)
	assert.Empty(t, remaining)
}
