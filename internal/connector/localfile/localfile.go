// Package localfile implements the local_file Source Connector: a directory
// walk with glob include/exclude filtering adapted from the teacher's
// gitignore matcher, and optional synthetic parent/child hierarchy built
// from the directory tree.
package localfile

import (
	"context"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/corpuskit/corpuskit/internal/connector"
	"github.com/corpuskit/corpuskit/internal/gitignore"
	"github.com/corpuskit/corpuskit/internal/model"
)

// Config is the local_file source's own config block.
type Config struct {
	RootPath          string
	Include           []string
	Exclude           []string
	MaxFileSize       int64
	PreserveHierarchy bool
}

type Connector struct{}

func New() *Connector { return &Connector{} }

func parseConfig(raw map[string]any) Config {
	cfg := Config{MaxFileSize: connector.MaxFileSizeDefault}
	if v, ok := raw["root_path"].(string); ok {
		cfg.RootPath = v
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
	if v, ok := raw["max_file_size"].(int); ok {
		cfg.MaxFileSize = int64(v)
	}
	if v, ok := raw["hierarchy"].(map[string]any); ok {
		if p, ok := v["preserve"].(bool); ok {
			cfg.PreserveHierarchy = p
		}
	}
	return cfg
}

func (c *Connector) IterDocuments(ctx context.Context, projectID string, source model.Source, since time.Time) (<-chan connector.Observation, error) {
	cfg := parseConfig(source.Config)
	matcher := gitignore.New()
	for _, pattern := range cfg.Exclude {
		matcher.AddPattern(pattern)
	}

	out := make(chan connector.Observation)

	go func() {
		defer close(out)

		_ = filepath.Walk(cfg.RootPath, func(path string, info os.FileInfo, err error) error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err != nil {
				out <- connector.Observation{Err: err}
				return nil
			}
			rel, relErr := filepath.Rel(cfg.RootPath, path)
			if relErr != nil {
				rel = path
			}
			if info.IsDir() {
				if matcher.Match(rel, true) {
					return filepath.SkipDir
				}
				return nil
			}
			if matcher.Match(rel, false) {
				return nil
			}
			if !matchesInclude(rel, cfg.Include) {
				return nil
			}
			if cfg.MaxFileSize > 0 && info.Size() > cfg.MaxFileSize {
				return nil
			}
			if !since.IsZero() && info.ModTime().Before(since) {
				return nil
			}

			content, readErr := os.ReadFile(path)
			if readErr != nil {
				out <- connector.Observation{Err: readErr}
				return nil
			}

			docID := model.DocumentID(projectID, model.SourceLocalFile, source.Name, rel)
			doc := model.Document{
				ID:          docID,
				ProjectID:   projectID,
				SourceName:  source.Name,
				SourceType:  model.SourceLocalFile,
				SourceURI:   path,
				Title:       rel,
				Variant:     model.DocumentText,
				MimeType:    mimeTypeFor(rel),
				Content:     content,
				ContentHash: model.StableHash(string(content)),
				FetchedAt:   time.Now(),
				UpdatedAt:   info.ModTime(),
			}
			if cfg.PreserveHierarchy {
				doc.Ancestors = hierarchyAncestors(projectID, source.Name, rel)
			}

			select {
			case out <- connector.Observation{Document: doc}:
			case <-ctx.Done():
				return ctx.Err()
			}
			return nil
		})
	}()

	return out, nil
}

func matchesInclude(rel string, patterns []string) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, p := range patterns {
		if ok, _ := filepath.Match(p, rel); ok {
			return true
		}
		if ok, _ := filepath.Match(p, filepath.Base(rel)); ok {
			return true
		}
	}
	return false
}

func mimeTypeFor(path string) string {
	ext := filepath.Ext(path)
	if t := mime.TypeByExtension(ext); t != "" {
		return strings.SplitN(t, ";", 2)[0]
	}
	return "text/plain"
}

// hierarchyAncestors synthesizes parent document ids from the path's
// directory components, one per directory level, so hierarchy_search can
// walk local_file sources the same way it walks Confluence ancestors.
func hierarchyAncestors(projectID, sourceName, rel string) []string {
	dir := filepath.Dir(rel)
	if dir == "." {
		return nil
	}
	parts := strings.Split(dir, string(filepath.Separator))
	var ancestors []string
	cur := ""
	for _, p := range parts {
		if cur == "" {
			cur = p
		} else {
			cur = cur + "/" + p
		}
		ancestors = append(ancestors, model.DocumentID(projectID, model.SourceLocalFile, sourceName, cur))
	}
	return ancestors
}
