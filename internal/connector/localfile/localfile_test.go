package localfile

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/corpuskit/corpuskit/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, rel, content string) {
	t.Helper()
	path := filepath.Join(dir, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestIterDocumentsRespectsExcludeAndMaxSize(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "hello")
	writeFile(t, dir, "node_modules/skip.txt", "should not appear")
	writeFile(t, dir, "big.txt", string(make([]byte, 100)))

	src := model.Source{
		Name: "docs",
		Kind: model.SourceLocalFile,
		Config: map[string]any{
			"root_path":     dir,
			"exclude":       []any{"node_modules"},
			"max_file_size": 50,
		},
	}

	c := New()
	ch, err := c.IterDocuments(context.Background(), "proj", src, time.Time{})
	require.NoError(t, err)

	var titles []string
	for obs := range ch {
		require.NoError(t, obs.Err)
		titles = append(titles, obs.Document.Title)
	}

	assert.Contains(t, titles, "a.txt")
	assert.NotContains(t, titles, filepath.Join("node_modules", "skip.txt"))
	assert.NotContains(t, titles, "big.txt")
}

func TestIterDocumentsProducesStableDocumentID(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "hello")

	src := model.Source{Name: "docs", Kind: model.SourceLocalFile, Config: map[string]any{"root_path": dir}}
	c := New()

	ch1, err := c.IterDocuments(context.Background(), "proj", src, time.Time{})
	require.NoError(t, err)
	var first model.Document
	for obs := range ch1 {
		first = obs.Document
	}

	ch2, err := c.IterDocuments(context.Background(), "proj", src, time.Time{})
	require.NoError(t, err)
	var second model.Document
	for obs := range ch2 {
		second = obs.Document
	}

	assert.Equal(t, first.ID, second.ID)
}
