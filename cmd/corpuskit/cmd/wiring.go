package cmd

import (
	"fmt"
	"net/url"
	"path/filepath"
	"sort"
	"time"

	"github.com/corpuskit/corpuskit/internal/chunk"
	"github.com/corpuskit/corpuskit/internal/config"
	"github.com/corpuskit/corpuskit/internal/connector"
	"github.com/corpuskit/corpuskit/internal/connector/confluence"
	"github.com/corpuskit/corpuskit/internal/connector/git"
	"github.com/corpuskit/corpuskit/internal/connector/jira"
	"github.com/corpuskit/corpuskit/internal/connector/localfile"
	"github.com/corpuskit/corpuskit/internal/connector/publicdocs"
	"github.com/corpuskit/corpuskit/internal/convert"
	"github.com/corpuskit/corpuskit/internal/errtax"
	"github.com/corpuskit/corpuskit/internal/llm"
	"github.com/corpuskit/corpuskit/internal/model"
	"github.com/corpuskit/corpuskit/internal/state"
	"github.com/corpuskit/corpuskit/internal/vectorstore/qdrant"
)

// App bundles every component `corpuskit` subcommands need, built once per
// invocation from the merged config the way the teacher's commands share a
// single config.Load(root) call.
type App struct {
	Config     *config.Config
	Workspace  string
	State      *state.Store
	Vectors    *qdrant.Gateway
	Embedder   llm.Provider
	Converter  *convert.Converter
	Chunker    *chunk.Dispatcher
	Connectors map[model.SourceKind]connector.Connector
}

// buildApp loads config from workspace and wires the full component graph:
// LLM Provider, Vector Store Gateway, State Store, File Converter, Chunking
// Dispatcher and the connector registry. Callers that don't need every
// component (e.g. `corpuskit config`) can still call this since all
// construction here is cheap and side-effect-free except for opening the
// state database file.
func buildApp(workspace string) (*App, error) {
	cfg, err := config.Load(workspace)
	if err != nil {
		return nil, errtax.Wrap(errtax.ErrCodeConfigInvalid, err)
	}

	embedder, err := llm.NewProvider(cfg.Global.LLM, 4096)
	if err != nil {
		return nil, errtax.Wrap(errtax.ErrCodeConfigInvalid, err)
	}

	vectors, err := qdrant.New(dsnWithAPIKey(cfg.Global.Qdrant), cfg.Global.Qdrant.Collection, cfg.Global.Qdrant.Metric)
	if err != nil {
		return nil, err
	}

	statePath := cfg.Global.StateManagement.Path
	if !filepath.IsAbs(statePath) {
		statePath = filepath.Join(workspace, statePath)
	}
	store, err := state.Open(statePath)
	if err != nil {
		vectors.Close()
		return nil, err
	}

	converter := convert.New(
		[]convert.Backend{convert.NewHTMLBackend(), convert.NewCaptionBackend(embedder, []string{"image/png", "image/jpeg", "image/gif"})},
		time.Duration(cfg.Global.FileConversion.TimeoutSeconds)*time.Second,
		int64(cfg.Global.FileConversion.MaxFileSizeMB)*1024*1024,
	)

	chunker := chunk.NewDispatcher(cfg.Global.Chunking)

	return &App{
		Config:     cfg,
		Workspace:  workspace,
		State:      store,
		Vectors:    vectors,
		Embedder:   embedder,
		Converter:  converter,
		Chunker:    chunker,
		Connectors: connectorRegistry(),
	}, nil
}

// Close releases every component holding a handle: the state store's
// advisory lock, the vector store's gRPC connection, the chunker's
// tree-sitter parser pool and the embedder's HTTP client.
func (a *App) Close() {
	if a.Chunker != nil {
		a.Chunker.Close()
	}
	if a.Embedder != nil {
		a.Embedder.Close()
	}
	if a.Vectors != nil {
		a.Vectors.Close()
	}
	if a.State != nil {
		a.State.Close()
	}
}

// dsnWithAPIKey appends the Qdrant API key as the ?api_key= query parameter
// qdrant.New's DSN parser expects, keeping config.QdrantConfig's APIKey a
// separate field for config-file and env-var ergonomics.
func dsnWithAPIKey(cfg config.QdrantConfig) string {
	if cfg.APIKey == "" {
		return cfg.URL
	}
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return cfg.URL
	}
	q := u.Query()
	q.Set("api_key", cfg.APIKey)
	u.RawQuery = q.Encode()
	return u.String()
}

// connectorRegistry builds the zero-arg connector instance for every source
// kind the config schema allows; each connector parses its own per-source
// config block, so the registry itself stays a flat lookup table.
func connectorRegistry() map[model.SourceKind]connector.Connector {
	return map[model.SourceKind]connector.Connector{
		model.SourceGit:        git.New(),
		model.SourceConfluence: confluence.New(),
		model.SourceJIRA:       jira.New(),
		model.SourcePublicDocs: publicdocs.New(),
		model.SourceLocalFile:  localfile.New(),
	}
}

// sourcesForProject converts a project's raw config.Sources map into the
// model.Source list the pipeline consumes, optionally filtered by source
// type and/or source name (the --source-type/--source ingest flags).
func sourcesForProject(proj config.ProjectConfig, sourceType, sourceName string) ([]model.Source, error) {
	var names []string
	for name := range proj.Sources {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []model.Source
	for _, name := range names {
		raw := proj.Sources[name]
		kind, _ := raw["type"].(string)
		if sourceType != "" && kind != sourceType {
			continue
		}
		if sourceName != "" && name != sourceName {
			continue
		}
		out = append(out, model.Source{Name: name, Kind: model.SourceKind(kind), Config: raw})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no sources matched source-type=%q source=%q", sourceType, sourceName)
	}
	return out, nil
}
