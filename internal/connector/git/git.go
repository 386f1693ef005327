// Package git implements the git Source Connector: a shallow clone (or
// fetch, for an already-cloned local cache), followed by a working-tree
// walk reusing the same gitignore-pattern matching the local_file connector
// uses.
package git

import (
	"context"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/corpuskit/corpuskit/internal/connector"
	"github.com/corpuskit/corpuskit/internal/connector/localfile"
	"github.com/corpuskit/corpuskit/internal/errtax"
	"github.com/corpuskit/corpuskit/internal/model"
)

// Config is the git source's own config block.
type Config struct {
	RemoteURL string
	Branch    string
	CacheDir  string
	Include   []string
	Exclude   []string
}

type Connector struct{}

func New() *Connector { return &Connector{} }

func parseConfig(raw map[string]any) Config {
	cfg := Config{Branch: "HEAD"}
	if v, ok := raw["remote_url"].(string); ok {
		cfg.RemoteURL = v
	}
	if v, ok := raw["branch"].(string); ok {
		cfg.Branch = v
	}
	if v, ok := raw["cache_dir"].(string); ok {
		cfg.CacheDir = v
	}
	if v, ok := raw["include"].([]any); ok {
		for _, s := range v {
			if str, ok := s.(string); ok {
				cfg.Include = append(cfg.Include, str)
			}
		}
	}
	if v, ok := raw["exclude"].([]any); ok {
		for _, s := range v {
			if str, ok := s.(string); ok {
				cfg.Exclude = append(cfg.Exclude, str)
			}
		}
	}
	return cfg
}

// authenticatedRemoteURL embeds REPO_TOKEN as an HTTP basic-auth component of
// an HTTPS remote URL, per spec.md §6. Non-HTTPS remotes (SSH, local paths)
// are returned unchanged — REPO_TOKEN only applies to token-over-HTTPS auth.
func authenticatedRemoteURL(remoteURL string) string {
	token := os.Getenv("REPO_TOKEN")
	if token == "" {
		return remoteURL
	}
	u, err := url.Parse(remoteURL)
	if err != nil || u.Scheme != "https" {
		return remoteURL
	}
	u.User = url.UserPassword("x-access-token", token)
	return u.String()
}

// syncClone shallow-clones cfg.RemoteURL into cfg.CacheDir, or fetches and
// resets an existing clone, so repeated ingestion runs reuse the working
// tree rather than re-cloning from scratch.
func syncClone(ctx context.Context, cfg Config) error {
	if _, err := exec.LookPath("git"); err != nil {
		return errtax.New(errtax.ErrCodeConfigInvalid, "git binary not found on PATH", err)
	}

	remote := authenticatedRemoteURL(cfg.RemoteURL)

	if _, err := exec.Command("git", "-C", cfg.CacheDir, "rev-parse", "--git-dir").Output(); err == nil {
		cmd := exec.CommandContext(ctx, "git", "-C", cfg.CacheDir, "fetch", "--depth", "1", remote, cfg.Branch)
		if out, err := cmd.CombinedOutput(); err != nil {
			return errtax.TransientRemoteError("git fetch failed: "+string(out), err)
		}
		cmd = exec.CommandContext(ctx, "git", "-C", cfg.CacheDir, "reset", "--hard", "FETCH_HEAD")
		if out, err := cmd.CombinedOutput(); err != nil {
			return errtax.TransientRemoteError("git reset failed: "+string(out), err)
		}
		return nil
	}

	cmd := exec.CommandContext(ctx, "git", "clone", "--depth", "1", "--branch", cfg.Branch, remote, cfg.CacheDir)
	if out, err := cmd.CombinedOutput(); err != nil {
		return errtax.TransientRemoteError("git clone failed: "+string(out), err)
	}
	return nil
}

func blobURL(remoteURL, branch, relPath string) string {
	trimmed := strings.TrimSuffix(remoteURL, ".git")
	return trimmed + "/blob/" + branch + "/" + filepath.ToSlash(relPath)
}

func (c *Connector) IterDocuments(ctx context.Context, projectID string, source model.Source, since time.Time) (<-chan connector.Observation, error) {
	cfg := parseConfig(source.Config)
	if err := syncClone(ctx, cfg); err != nil {
		return nil, err
	}

	// Delegate the filtered tree walk to the local_file connector against
	// the freshly-synced working copy, then rewrite each document's source
	// URI to the remote blob URL and record the git source type.
	lfSource := model.Source{
		Name: source.Name,
		Kind: model.SourceLocalFile,
		Config: map[string]any{
			"root_path": cfg.CacheDir,
			"include":   toAnySlice(cfg.Include),
			"exclude":   append(toAnySlice(cfg.Exclude), ".git"),
		},
	}

	innerCh, err := localfile.New().IterDocuments(ctx, projectID, lfSource, since)
	if err != nil {
		return nil, err
	}

	out := make(chan connector.Observation)
	go func() {
		defer close(out)
		for obs := range innerCh {
			if obs.Err != nil {
				out <- obs
				continue
			}
			doc := obs.Document
			doc.SourceType = model.SourceGit
			doc.SourceURI = blobURL(cfg.RemoteURL, cfg.Branch, doc.Title)
			doc.ID = model.DocumentID(projectID, model.SourceGit, source.Name, doc.Title)
			select {
			case out <- connector.Observation{Document: doc}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func toAnySlice(s []string) []any {
	out := make([]any, len(s))
	for i, v := range s {
		out[i] = v
	}
	return out
}
