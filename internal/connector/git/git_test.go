package git

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/corpuskit/corpuskit/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newLocalRepo builds a throwaway git repository under t.TempDir() so tests
// can exercise syncClone against a real git binary without network access.
func newLocalRepo(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git binary not available")
	}

	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", append([]string{"-C", dir}, args...)...)
		cmd.Env = append(os.Environ(), "GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@test.com",
			"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@test.com")
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, string(out))
	}

	run("init", "-b", "main")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("hello world"), 0o644))
	run("add", ".")
	run("commit", "-m", "initial")
	return dir
}

func TestIterDocumentsClonesAndYieldsFiles(t *testing.T) {
	remote := newLocalRepo(t)
	cacheDir := filepath.Join(t.TempDir(), "clone")

	src := model.Source{
		Name: "repo",
		Kind: model.SourceGit,
		Config: map[string]any{
			"remote_url": remote,
			"branch":     "main",
			"cache_dir":  cacheDir,
		},
	}

	c := New()
	ch, err := c.IterDocuments(context.Background(), "proj", src, time.Time{})
	require.NoError(t, err)

	var docs []model.Document
	for obs := range ch {
		require.NoError(t, obs.Err)
		docs = append(docs, obs.Document)
	}
	require.Len(t, docs, 1)
	assert.Equal(t, model.SourceGit, docs[0].SourceType)
	assert.Contains(t, docs[0].SourceURI, "/blob/main/README.md")
}
