// Package config loads and validates corpuskit's YAML configuration: a
// global block shared by every project plus a per-project sources map.
// Precedence follows the teacher's layering: built-in defaults, then a
// user-level config file, then a project-level config file, then
// ${NAME}-style environment substitution applied to the merged result.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// QdrantConfig configures the vector store gateway.
type QdrantConfig struct {
	URL        string `yaml:"url"`
	APIKey     string `yaml:"api_key"`
	Collection string `yaml:"collection"`
	Metric     string `yaml:"metric"`
}

// LLMConfig configures the LLM provider used for embeddings and, optionally,
// chat-based captioning.
type LLMConfig struct {
	Provider       string `yaml:"provider"` // "openai_compat" | "ollama"
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`
	EmbeddingModel string `yaml:"embedding_model"`
	ChatModel      string `yaml:"chat_model"`
	Dimensions     int    `yaml:"dimensions"`
	RequestsPerMin int    `yaml:"requests_per_minute"`
	TokensPerMin   int    `yaml:"tokens_per_minute"`
	MaxConcurrency int    `yaml:"max_concurrency"`
	MaxRetries     int    `yaml:"max_retries"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// ChunkingConfig configures default chunking knobs; strategies may override
// individual fields in their own sub-config.
type ChunkingConfig struct {
	MaxChunkTokens       int     `yaml:"max_chunk_tokens"`
	OverlapTokens        int     `yaml:"overlap_tokens"`
	MinChunkTokens       int     `yaml:"min_chunk_tokens"`
	MaxOverlapPercentage float64 `yaml:"max_overlap_percentage"`

	Markdown MarkdownChunkingConfig `yaml:"markdown"`
	Code     CodeChunkingConfig     `yaml:"code"`
	JSON     JSONChunkingConfig     `yaml:"json"`
}

// MarkdownChunkingConfig configures the header-driven Markdown strategy.
type MarkdownChunkingConfig struct {
	HeaderAnalysisThresholdH1 int `yaml:"header_analysis_threshold_h1"`
	HeaderAnalysisThresholdH3 int `yaml:"header_analysis_threshold_h3"`
	MinSectionSize            int `yaml:"min_section_size"`
	MaxChunksPerSection       int `yaml:"max_chunks_per_section"`
	MaxChunksPerDocument      int `yaml:"max_chunks_per_document"`
}

// CodeChunkingConfig configures the AST-driven code strategy.
type CodeChunkingConfig struct {
	EnableASTParsing         bool `yaml:"enable_ast_parsing"`
	MaxFileSizeForAST        int  `yaml:"max_file_size_for_ast"`
	MaxElementSize           int  `yaml:"max_element_size"`
	MaxRecursionDepth        int  `yaml:"max_recursion_depth"`
	EnableDependencyAnalysis bool `yaml:"enable_dependency_analysis"`
}

// JSONChunkingConfig configures the structural JSON strategy.
type JSONChunkingConfig struct {
	MaxJSONSizeForParsing  int  `yaml:"max_json_size_for_parsing"`
	MaxArrayItemsPerChunk  int  `yaml:"max_array_items_per_chunk"`
	MaxObjectKeysToProcess int  `yaml:"max_object_keys_to_process"`
	EnableSchemaInference  bool `yaml:"enable_schema_inference"`
}

// StateManagementConfig configures the State Store.
type StateManagementConfig struct {
	Path string `yaml:"path"`
}

// FileConversionConfig configures the File Converter.
type FileConversionConfig struct {
	TimeoutSeconds int  `yaml:"timeout_seconds"`
	MaxFileSizeMB  int  `yaml:"max_file_size_mb"`
	EnableCaptions bool `yaml:"enable_captions"`
}

// SimilarityWeights configures the relative importance of each signal the
// Retrieval Engine's composite similarity score combines.
type SimilarityWeights struct {
	Entity    float64 `yaml:"entity"`
	Topic     float64 `yaml:"topic"`
	Metadata  float64 `yaml:"metadata"`
	Hierarchy float64 `yaml:"hierarchy"`
}

// RetrievalConfig configures the Retrieval Engine and the MCP Server built
// on top of it.
type RetrievalConfig struct {
	SimilarityWeights SimilarityWeights `yaml:"similarity_weights"`
	DefaultLimit      int               `yaml:"default_limit"`
	MaxLimit          int               `yaml:"max_limit"`
}

// Global holds settings shared across all projects.
type Global struct {
	Qdrant          QdrantConfig          `yaml:"qdrant"`
	LLM             LLMConfig             `yaml:"llm"`
	Chunking        ChunkingConfig        `yaml:"chunking"`
	StateManagement StateManagementConfig `yaml:"state_management"`
	FileConversion  FileConversionConfig  `yaml:"file_conversion"`
	Retrieval       RetrievalConfig       `yaml:"retrieval"`
	LogLevel        string                `yaml:"log_level"`
}

// ProjectConfig holds one project's source list.
type ProjectConfig struct {
	Collection string                    `yaml:"collection"`
	Sources    map[string]map[string]any `yaml:"sources"`
}

// Config is the top-level corpuskit configuration file: two keys, "global"
// and "projects", per the external-interface schema.
type Config struct {
	Global   Global                   `yaml:"global"`
	Projects map[string]ProjectConfig `yaml:"projects"`
}

// NewConfig returns the built-in defaults.
func NewConfig() *Config {
	return &Config{
		Global: Global{
			Qdrant: QdrantConfig{
				URL:        "http://localhost:6334",
				Collection: "corpuskit",
				Metric:     "cosine",
			},
			LLM: LLMConfig{
				Provider:       "openai_compat",
				EmbeddingModel: "text-embedding-3-small",
				Dimensions:     1536,
				RequestsPerMin: 3000,
				TokensPerMin:   1000000,
				MaxConcurrency: 8,
				MaxRetries:     3,
				TimeoutSeconds: 30,
			},
			Chunking: ChunkingConfig{
				MaxChunkTokens:       512,
				OverlapTokens:        64,
				MinChunkTokens:       100,
				MaxOverlapPercentage: 0.2,
				Markdown: MarkdownChunkingConfig{
					HeaderAnalysisThresholdH1: 2,
					HeaderAnalysisThresholdH3: 3,
					MinSectionSize:            200,
					MaxChunksPerSection:       20,
					MaxChunksPerDocument:      500,
				},
				Code: CodeChunkingConfig{
					EnableASTParsing:         true,
					MaxFileSizeForAST:        500_000,
					MaxElementSize:           4000,
					MaxRecursionDepth:        20,
					EnableDependencyAnalysis: true,
				},
				JSON: JSONChunkingConfig{
					MaxJSONSizeForParsing:  5_000_000,
					MaxArrayItemsPerChunk:  50,
					MaxObjectKeysToProcess: 500,
					EnableSchemaInference:  true,
				},
			},
			StateManagement: StateManagementConfig{
				Path: ".corpuskit/state.db",
			},
			FileConversion: FileConversionConfig{
				TimeoutSeconds: 60,
				MaxFileSizeMB:  25,
			},
			Retrieval: RetrievalConfig{
				SimilarityWeights: SimilarityWeights{Entity: 0.35, Topic: 0.35, Metadata: 0.15, Hierarchy: 0.15},
				DefaultLimit:      10,
				MaxLimit:          100,
			},
			LogLevel: "info",
		},
		Projects: map[string]ProjectConfig{},
	}
}

// Load reads the user-level config (~/.config/corpuskit/config.yaml),
// merges the project-level config found in dir (corpuskit.yaml or
// corpuskit.yml), then expands ${NAME} environment references across the
// merged document.
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if home, err := os.UserHomeDir(); err == nil {
		userPath := filepath.Join(home, ".config", "corpuskit", "config.yaml")
		if err := mergeFile(cfg, userPath); err != nil {
			return nil, fmt.Errorf("loading user config: %w", err)
		}
	}

	for _, name := range []string{"corpuskit.yaml", "corpuskit.yml"} {
		projectPath := filepath.Join(dir, name)
		if err := mergeFile(cfg, projectPath); err != nil {
			return nil, fmt.Errorf("loading project config: %w", err)
		}
	}

	expandEnv(cfg)
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides applies the environment variables spec.md §6 lists as
// "consumed directly" (as opposed to the ${NAME} substitution any config
// string value can reference), mirroring the teacher's
// applyEnvOverrides shape: an explicit override wins over whatever the
// merged config files set.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("QDRANT_URL"); v != "" {
		c.Global.Qdrant.URL = v
	}
	if v := os.Getenv("QDRANT_API_KEY"); v != "" {
		c.Global.Qdrant.APIKey = v
	}
	if v := os.Getenv("QDRANT_COLLECTION_NAME"); v != "" {
		c.Global.Qdrant.Collection = v
	}

	if v := os.Getenv("LLM_PROVIDER"); v != "" {
		c.Global.LLM.Provider = v
	}
	if v := os.Getenv("LLM_BASE_URL"); v != "" {
		c.Global.LLM.BaseURL = v
	}
	if v := os.Getenv("LLM_API_KEY"); v != "" {
		c.Global.LLM.APIKey = v
	} else if v := os.Getenv("OPENAI_API_KEY"); v != "" && c.Global.LLM.APIKey == "" {
		c.Global.LLM.APIKey = v
	}
	if v := os.Getenv("LLM_EMBEDDING_MODEL"); v != "" {
		c.Global.LLM.EmbeddingModel = v
	}
	if v := os.Getenv("LLM_CHAT_MODEL"); v != "" {
		c.Global.LLM.ChatModel = v
	}
}

func mergeFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	var overlay Config
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	mergeInto(cfg, &overlay)
	return nil
}

// mergeInto overlays non-zero fields of src onto dst, field by field, so a
// partial user or project file only overrides what it mentions.
func mergeInto(dst *Config, src *Config) {
	g := &dst.Global
	s := &src.Global

	if s.Qdrant.URL != "" {
		g.Qdrant.URL = s.Qdrant.URL
	}
	if s.Qdrant.APIKey != "" {
		g.Qdrant.APIKey = s.Qdrant.APIKey
	}
	if s.Qdrant.Collection != "" {
		g.Qdrant.Collection = s.Qdrant.Collection
	}
	if s.Qdrant.Metric != "" {
		g.Qdrant.Metric = s.Qdrant.Metric
	}

	if s.LLM.Provider != "" {
		g.LLM.Provider = s.LLM.Provider
	}
	if s.LLM.BaseURL != "" {
		g.LLM.BaseURL = s.LLM.BaseURL
	}
	if s.LLM.APIKey != "" {
		g.LLM.APIKey = s.LLM.APIKey
	}
	if s.LLM.EmbeddingModel != "" {
		g.LLM.EmbeddingModel = s.LLM.EmbeddingModel
	}
	if s.LLM.ChatModel != "" {
		g.LLM.ChatModel = s.LLM.ChatModel
	}
	if s.LLM.Dimensions != 0 {
		g.LLM.Dimensions = s.LLM.Dimensions
	}
	if s.LLM.RequestsPerMin != 0 {
		g.LLM.RequestsPerMin = s.LLM.RequestsPerMin
	}
	if s.LLM.TokensPerMin != 0 {
		g.LLM.TokensPerMin = s.LLM.TokensPerMin
	}
	if s.LLM.MaxConcurrency != 0 {
		g.LLM.MaxConcurrency = s.LLM.MaxConcurrency
	}
	if s.LLM.MaxRetries != 0 {
		g.LLM.MaxRetries = s.LLM.MaxRetries
	}
	if s.LLM.TimeoutSeconds != 0 {
		g.LLM.TimeoutSeconds = s.LLM.TimeoutSeconds
	}

	if s.Chunking.MaxChunkTokens != 0 {
		g.Chunking.MaxChunkTokens = s.Chunking.MaxChunkTokens
	}
	if s.Chunking.OverlapTokens != 0 {
		g.Chunking.OverlapTokens = s.Chunking.OverlapTokens
	}
	if s.Chunking.MinChunkTokens != 0 {
		g.Chunking.MinChunkTokens = s.Chunking.MinChunkTokens
	}
	if s.Chunking.MaxOverlapPercentage != 0 {
		g.Chunking.MaxOverlapPercentage = s.Chunking.MaxOverlapPercentage
	}

	if s.Chunking.Markdown.HeaderAnalysisThresholdH1 != 0 {
		g.Chunking.Markdown.HeaderAnalysisThresholdH1 = s.Chunking.Markdown.HeaderAnalysisThresholdH1
	}
	if s.Chunking.Markdown.HeaderAnalysisThresholdH3 != 0 {
		g.Chunking.Markdown.HeaderAnalysisThresholdH3 = s.Chunking.Markdown.HeaderAnalysisThresholdH3
	}
	if s.Chunking.Markdown.MinSectionSize != 0 {
		g.Chunking.Markdown.MinSectionSize = s.Chunking.Markdown.MinSectionSize
	}
	if s.Chunking.Markdown.MaxChunksPerSection != 0 {
		g.Chunking.Markdown.MaxChunksPerSection = s.Chunking.Markdown.MaxChunksPerSection
	}
	if s.Chunking.Markdown.MaxChunksPerDocument != 0 {
		g.Chunking.Markdown.MaxChunksPerDocument = s.Chunking.Markdown.MaxChunksPerDocument
	}

	g.Chunking.Code.EnableASTParsing = g.Chunking.Code.EnableASTParsing || s.Chunking.Code.EnableASTParsing
	g.Chunking.Code.EnableDependencyAnalysis = g.Chunking.Code.EnableDependencyAnalysis || s.Chunking.Code.EnableDependencyAnalysis
	if s.Chunking.Code.MaxFileSizeForAST != 0 {
		g.Chunking.Code.MaxFileSizeForAST = s.Chunking.Code.MaxFileSizeForAST
	}
	if s.Chunking.Code.MaxElementSize != 0 {
		g.Chunking.Code.MaxElementSize = s.Chunking.Code.MaxElementSize
	}
	if s.Chunking.Code.MaxRecursionDepth != 0 {
		g.Chunking.Code.MaxRecursionDepth = s.Chunking.Code.MaxRecursionDepth
	}

	g.Chunking.JSON.EnableSchemaInference = g.Chunking.JSON.EnableSchemaInference || s.Chunking.JSON.EnableSchemaInference
	if s.Chunking.JSON.MaxJSONSizeForParsing != 0 {
		g.Chunking.JSON.MaxJSONSizeForParsing = s.Chunking.JSON.MaxJSONSizeForParsing
	}
	if s.Chunking.JSON.MaxArrayItemsPerChunk != 0 {
		g.Chunking.JSON.MaxArrayItemsPerChunk = s.Chunking.JSON.MaxArrayItemsPerChunk
	}
	if s.Chunking.JSON.MaxObjectKeysToProcess != 0 {
		g.Chunking.JSON.MaxObjectKeysToProcess = s.Chunking.JSON.MaxObjectKeysToProcess
	}

	if s.StateManagement.Path != "" {
		g.StateManagement.Path = s.StateManagement.Path
	}

	if s.FileConversion.TimeoutSeconds != 0 {
		g.FileConversion.TimeoutSeconds = s.FileConversion.TimeoutSeconds
	}
	if s.FileConversion.MaxFileSizeMB != 0 {
		g.FileConversion.MaxFileSizeMB = s.FileConversion.MaxFileSizeMB
	}
	g.FileConversion.EnableCaptions = g.FileConversion.EnableCaptions || s.FileConversion.EnableCaptions

	if s.Retrieval.SimilarityWeights != (SimilarityWeights{}) {
		g.Retrieval.SimilarityWeights = s.Retrieval.SimilarityWeights
	}
	if s.Retrieval.DefaultLimit != 0 {
		g.Retrieval.DefaultLimit = s.Retrieval.DefaultLimit
	}
	if s.Retrieval.MaxLimit != 0 {
		g.Retrieval.MaxLimit = s.Retrieval.MaxLimit
	}

	if s.LogLevel != "" {
		g.LogLevel = s.LogLevel
	}

	if dst.Projects == nil {
		dst.Projects = map[string]ProjectConfig{}
	}
	for name, proj := range src.Projects {
		dst.Projects[name] = proj
	}
}

var envRefPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnv substitutes ${NAME} references in every string field of the
// config, and in every top-level string value of a source block, with the
// corresponding environment variable, leaving the reference
// untouched (rather than expanding to empty) when the variable is unset, so
// missing credentials fail loudly downstream instead of silently.
func expandEnv(cfg *Config) {
	expand := func(s string) string {
		return envRefPattern.ReplaceAllStringFunc(s, func(m string) string {
			name := envRefPattern.FindStringSubmatch(m)[1]
			if v, ok := os.LookupEnv(name); ok {
				return v
			}
			return m
		})
	}

	cfg.Global.Qdrant.URL = expand(cfg.Global.Qdrant.URL)
	cfg.Global.Qdrant.APIKey = expand(cfg.Global.Qdrant.APIKey)
	cfg.Global.LLM.BaseURL = expand(cfg.Global.LLM.BaseURL)
	cfg.Global.LLM.APIKey = expand(cfg.Global.LLM.APIKey)
	cfg.Global.Qdrant.Collection = expand(cfg.Global.Qdrant.Collection)
	cfg.Global.Qdrant.Metric = expand(cfg.Global.Qdrant.Metric)
	cfg.Global.LLM.Provider = expand(cfg.Global.LLM.Provider)
	cfg.Global.LLM.EmbeddingModel = expand(cfg.Global.LLM.EmbeddingModel)
	cfg.Global.LLM.ChatModel = expand(cfg.Global.LLM.ChatModel)
	cfg.Global.StateManagement.Path = expand(cfg.Global.StateManagement.Path)
	cfg.Global.LogLevel = expand(cfg.Global.LogLevel)

	for pname, proj := range cfg.Projects {
		proj.Collection = expand(proj.Collection)
		for sname, src := range proj.Sources {
			for k, v := range src {
				if sv, ok := v.(string); ok {
					src[k] = expand(sv)
				}
			}
			proj.Sources[sname] = src
		}
		cfg.Projects[pname] = proj
	}
}

var validProviders = map[string]bool{"openai_compat": true, "ollama": true}
var validMetrics = map[string]bool{"cosine": true, "euclidean": true, "dot": true, "manhattan": true}
var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Validate checks the merged config for internally-inconsistent settings.
func (c *Config) Validate() error {
	if !validProviders[c.Global.LLM.Provider] {
		return fmt.Errorf("config: unknown llm.provider %q", c.Global.LLM.Provider)
	}
	if !validMetrics[strings.ToLower(c.Global.Qdrant.Metric)] {
		return fmt.Errorf("config: unknown qdrant.metric %q", c.Global.Qdrant.Metric)
	}
	if !validLogLevels[strings.ToLower(c.Global.LogLevel)] {
		return fmt.Errorf("config: unknown log_level %q", c.Global.LogLevel)
	}
	for pname, proj := range c.Projects {
		for sname, src := range proj.Sources {
			kind, _ := src["type"].(string)
			switch kind {
			case "git", "confluence", "jira", "public_docs", "local_file":
			default:
				return fmt.Errorf("config: project %q source %q has unknown type %q", pname, sname, kind)
			}
		}
	}
	return nil
}

// WriteYAML serializes the config back to disk, used by `corpuskit init`.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
