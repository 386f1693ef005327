package chunk

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/corpuskit/corpuskit/internal/config"
	"github.com/corpuskit/corpuskit/internal/model"
)

// Dispatcher selects a chunking strategy for a document and converts the
// resulting chunks into model.Chunk values with stable ids.
type Dispatcher struct {
	markdown *MarkdownChunker
	html     *HTMLChunker
	code     *CodeChunker
	jsonc    *JSONChunker
	plain    *PlainChunker
}

// NewDispatcher builds every strategy from shared chunking config.
func NewDispatcher(cfg config.ChunkingConfig) *Dispatcher {
	return &Dispatcher{
		markdown: NewMarkdownChunkerWithOptions(MarkdownChunkerOptions{
			MaxChunkTokens:            cfg.MaxChunkTokens,
			OverlapTokens:             cfg.OverlapTokens,
			MaxOverlapPercentage:      cfg.MaxOverlapPercentage,
			HeaderAnalysisThresholdH1: cfg.Markdown.HeaderAnalysisThresholdH1,
			HeaderAnalysisThresholdH3: cfg.Markdown.HeaderAnalysisThresholdH3,
			MinSectionSize:            cfg.Markdown.MinSectionSize,
			MaxChunksPerSection:       cfg.Markdown.MaxChunksPerSection,
			MaxChunksPerDocument:      cfg.Markdown.MaxChunksPerDocument,
		}),
		html: NewHTMLChunkerWithOptions(HTMLChunkerOptions{MaxChunkTokens: cfg.MaxChunkTokens, OverlapTokens: cfg.OverlapTokens}),
		code: NewCodeChunkerWithOptions(CodeChunkerOptions{
			EnableASTParsing:         cfg.Code.EnableASTParsing,
			MaxFileSizeForAST:        cfg.Code.MaxFileSizeForAST,
			MaxElementSize:           cfg.Code.MaxElementSize,
			MaxRecursionDepth:        cfg.Code.MaxRecursionDepth,
			EnableDependencyAnalysis: cfg.Code.EnableDependencyAnalysis,
			OverlapTokens:            cfg.OverlapTokens,
		}),
		jsonc: NewJSONChunkerWithOptions(JSONChunkerOptions{
			MaxChunkTokens:         cfg.MaxChunkTokens,
			MaxJSONSizeForParsing:  cfg.JSON.MaxJSONSizeForParsing,
			MaxArrayItemsPerChunk:  cfg.JSON.MaxArrayItemsPerChunk,
			MaxObjectKeysToProcess: cfg.JSON.MaxObjectKeysToProcess,
			EnableSchemaInference:  cfg.JSON.EnableSchemaInference,
		}),
		plain: NewPlainChunkerWithOptions(PlainChunkerOptions{MaxChunkTokens: cfg.MaxChunkTokens, OverlapTokens: cfg.OverlapTokens, MinChunkTokens: cfg.MinChunkTokens}),
	}
}

// Close releases any chunker holding native resources (the tree-sitter
// parser pool used by CodeChunker).
func (d *Dispatcher) Close() {
	d.code.Close()
}

var codeExtensions = map[string]bool{}

func init() {
	for _, ext := range DefaultRegistry().SupportedExtensions() {
		codeExtensions[ext] = true
	}
}

// selectStrategy takes the first match in a fixed order: markdown, HTML,
// then JSON (each by MIME type or file extension), then a code extension
// known to the language registry, then the plain-text default. Content is
// not sniffed.
func (d *Dispatcher) selectStrategy(doc model.Document) Chunker {
	ext := strings.ToLower(filepath.Ext(doc.Title))

	switch {
	case strings.Contains(doc.MimeType, "markdown"), ext == ".md", ext == ".markdown", ext == ".mdx":
		return d.markdown
	case strings.Contains(doc.MimeType, "html"), ext == ".html", ext == ".htm":
		return d.html
	case strings.Contains(doc.MimeType, "json"), ext == ".json":
		return d.jsonc
	case codeExtensions[ext]:
		return d.code
	default:
		return d.plain
	}
}

// Chunk dispatches doc to the appropriate strategy and returns model.Chunk
// values with deterministic ids derived from document id, chunk index and
// the chunker version.
func (d *Dispatcher) Chunk(ctx context.Context, doc model.Document) ([]model.Chunk, error) {
	strategy := d.selectStrategy(doc)

	input := &FileInput{Path: doc.Title, Content: doc.Content, IsExcelSheet: doc.Metadata["is_excel_sheet"] == "true"}
	rawChunks, err := strategy.Chunk(ctx, input)
	if err != nil {
		return nil, err
	}

	out := make([]model.Chunk, 0, len(rawChunks))
	for i, rc := range rawChunks {
		headerPath := []string{}
		if hp := rc.Metadata["header_path"]; hp != "" {
			headerPath = strings.Split(hp, " > ")
		}
		out = append(out, model.Chunk{
			ID:             model.ChunkID(doc.ID, i, Version),
			DocumentID:     doc.ID,
			ProjectID:      doc.ProjectID,
			Index:          i,
			Content:        rc.Content,
			HeaderPath:     headerPath,
			StartLine:      rc.StartLine,
			EndLine:        rc.EndLine,
			Language:       rc.Language,
			ChunkerVersion: Version,
			Metadata:       rc.Metadata,
		})
	}
	return out, nil
}
