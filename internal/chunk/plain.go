package chunk

import (
	"context"
	"strconv"
	"strings"
	"time"
)

// PlainChunkerOptions configures the default sliding-window chunker.
type PlainChunkerOptions struct {
	MaxChunkTokens int
	OverlapTokens  int
	MinChunkTokens int
}

// PlainChunker is the fallback strategy for content with no recognized
// structure: a character sliding window that prefers to break on
// whitespace/paragraph boundaries, merging an undersized trailing chunk
// into its predecessor.
type PlainChunker struct {
	options PlainChunkerOptions
}

func NewPlainChunker() *PlainChunker {
	return NewPlainChunkerWithOptions(PlainChunkerOptions{})
}

func NewPlainChunkerWithOptions(opts PlainChunkerOptions) *PlainChunker {
	if opts.MaxChunkTokens == 0 {
		opts.MaxChunkTokens = DefaultMaxChunkTokens
	}
	if opts.OverlapTokens == 0 {
		opts.OverlapTokens = DefaultOverlapTokens
	}
	if opts.MinChunkTokens == 0 {
		opts.MinChunkTokens = MinChunkTokens
	}
	return &PlainChunker{options: opts}
}

func (c *PlainChunker) SupportedExtensions() []string { return []string{".txt"} }

func (c *PlainChunker) Chunk(_ context.Context, file *FileInput) ([]*Chunk, error) {
	content := string(file.Content)
	if strings.TrimSpace(content) == "" {
		return nil, nil
	}

	maxChars := c.options.MaxChunkTokens * TokensPerChar
	overlapChars := c.options.OverlapTokens * TokensPerChar
	minChars := c.options.MinChunkTokens * TokensPerChar

	var spans []string
	pos := 0
	for pos < len(content) {
		end := pos + maxChars
		if end >= len(content) {
			spans = append(spans, content[pos:])
			break
		}
		end = preferBoundary(content, pos, end)
		spans = append(spans, content[pos:end])
		next := end - overlapChars
		if next <= pos {
			next = end
		}
		pos = next
	}

	spans = mergeUndersized(spans, minChars)

	now := time.Now()
	var chunks []*Chunk
	line := 1
	for i, span := range spans {
		startLine := line
		lineCount := strings.Count(span, "\n")
		endLine := startLine + lineCount
		chunks = append(chunks, &Chunk{
			ID:          generateChunkID(file.Path, span),
			FilePath:    file.Path,
			Content:     span,
			ContentType: ContentTypeText,
			StartLine:   startLine,
			EndLine:     endLine,
			Metadata:    map[string]string{"chunk_index": strconv.Itoa(i)},
			CreatedAt:   now,
			UpdatedAt:   now,
		})
		line = endLine + 1
	}
	return chunks, nil
}

// preferBoundary nudges end backward to the nearest whitespace run within
// a small lookback window, avoiding a mid-word split when one is nearby.
func preferBoundary(content string, start, end int) int {
	lookback := 80
	floor := end - lookback
	if floor < start {
		floor = start
	}
	for i := end; i > floor; i-- {
		if i < len(content) && (content[i-1] == '\n' || content[i-1] == ' ') {
			return i
		}
	}
	return end
}

func mergeUndersized(spans []string, minChars int) []string {
	if len(spans) < 2 {
		return spans
	}
	last := spans[len(spans)-1]
	if len(last) < minChars {
		spans[len(spans)-2] = spans[len(spans)-2] + last
		return spans[:len(spans)-1]
	}
	return spans
}
