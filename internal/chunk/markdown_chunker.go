package chunk

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// MarkdownChunkerOptions configures the markdown chunker behavior.
type MarkdownChunkerOptions struct {
	MaxChunkTokens       int     // Maximum tokens per chunk (default: DefaultMaxChunkTokens)
	OverlapTokens        int     // Not read by the markdown chunker (default: DefaultOverlapTokens)
	MaxOverlapPercentage float64 // Overlap between split chunks, capped at this fraction of the chunk size in characters

	// HeaderAnalysisThresholdH1 and HeaderAnalysisThresholdH3 drive the
	// header-split level decision in headerSplitLevel.
	HeaderAnalysisThresholdH1 int
	HeaderAnalysisThresholdH3 int

	MinSectionSize       int // sections smaller than this fold into a neighbor; 0 disables merging
	MaxChunksPerSection  int // safety cap on chunks produced from one section
	MaxChunksPerDocument int // safety cap on chunks produced from one document
}

// MarkdownChunker implements header-based Markdown chunking. The header
// level it splits on is not fixed: it widens or narrows per document based
// on how the document actually uses headers (see headerSplitLevel), and a
// spreadsheet exported to Markdown is treated specially since a workbook
// commonly renders as a single H1 with one H2 per sheet.
type MarkdownChunker struct {
	options MarkdownChunkerOptions
}

// Regex patterns for markdown parsing.
var (
	// Matches headers: # Title, ## Title, etc.
	headerPattern = regexp.MustCompile(`(?m)^(#{1,6})\s+(.+)$`)

	// Matches frontmatter: ---\n...\n---
	frontmatterPattern = regexp.MustCompile(`(?s)^---\n(.+?)\n---\n*`)
)

// NewMarkdownChunker creates a new markdown chunker with default options.
func NewMarkdownChunker() *MarkdownChunker {
	return NewMarkdownChunkerWithOptions(MarkdownChunkerOptions{})
}

// NewMarkdownChunkerWithOptions creates a new markdown chunker with custom options.
func NewMarkdownChunkerWithOptions(opts MarkdownChunkerOptions) *MarkdownChunker {
	if opts.MaxChunkTokens == 0 {
		opts.MaxChunkTokens = DefaultMaxChunkTokens
	}
	if opts.OverlapTokens == 0 {
		opts.OverlapTokens = DefaultOverlapTokens
	}
	if opts.MaxOverlapPercentage == 0 {
		opts.MaxOverlapPercentage = 0.2
	}
	if opts.HeaderAnalysisThresholdH1 == 0 {
		opts.HeaderAnalysisThresholdH1 = 2
	}
	if opts.HeaderAnalysisThresholdH3 == 0 {
		opts.HeaderAnalysisThresholdH3 = 3
	}
	if opts.MaxChunksPerSection == 0 {
		opts.MaxChunksPerSection = 20
	}
	if opts.MaxChunksPerDocument == 0 {
		opts.MaxChunksPerDocument = 500
	}
	return &MarkdownChunker{options: opts}
}

// Close releases chunker resources.
// MarkdownChunker is stateless, so this is a no-op for interface consistency with CodeChunker.
func (c *MarkdownChunker) Close() {
	// No resources to release - MarkdownChunker is stateless
}

// SupportedExtensions returns file extensions this chunker handles.
func (c *MarkdownChunker) SupportedExtensions() []string {
	return []string{".md", ".markdown", ".mdx"}
}

// Chunk splits a markdown file into semantic chunks.
func (c *MarkdownChunker) Chunk(_ context.Context, file *FileInput) ([]*Chunk, error) {
	content := string(file.Content)

	if strings.TrimSpace(content) == "" {
		return nil, nil
	}

	var chunks []*Chunk
	now := time.Now()
	remainingContent := content

	if frontmatterMatch := frontmatterPattern.FindStringSubmatch(remainingContent); frontmatterMatch != nil {
		frontmatter := frontmatterMatch[0]
		chunks = append(chunks, c.createFrontmatterChunk(file, frontmatter, now))
		remainingContent = remainingContent[len(frontmatter):]
	}

	splitLevel := c.headerSplitLevel(remainingContent, file.IsExcelSheet)
	sections := c.parseSections(remainingContent, splitLevel)

	if len(sections) == 0 {
		chunks = append(chunks, c.chunkByParagraphs(file, remainingContent, "", 1, now)...)
		return c.capDocument(chunks), nil
	}

	baseLineOffset := 1
	if len(chunks) > 0 && chunks[0].Metadata["type"] == "frontmatter" {
		baseLineOffset = strings.Count(content[:len(content)-len(remainingContent)], "\n") + 1
	}

	sections = mergeUndersizedSections(sections, c.options.MinSectionSize)

	for _, sec := range sections {
		sectionChunks := c.createSectionChunks(file, sec, baseLineOffset, now)
		sectionChunks = capSection(sectionChunks, c.options.MaxChunksPerSection)
		chunks = append(chunks, sectionChunks...)
	}

	return c.capDocument(chunks), nil
}

// headerSplitLevel decides which header levels act as section boundaries.
// A document with at least HeaderAnalysisThresholdH1 top-level headers is
// split on H1 only, since those headers already carve the document into
// digestible pieces. A Markdown export of a spreadsheet — conventionally one
// H1 for the workbook and one H2 per sheet — splits on H2 instead, or the
// single H1 section would swallow every sheet. Otherwise, a document that
// leans heavily on H3 (HeaderAnalysisThresholdH3 or more) splits that deep;
// anything else defaults to splitting on H1 and H2.
func (c *MarkdownChunker) headerSplitLevel(content string, isExcelSheet bool) int {
	var h1, h3 int
	for _, m := range headerPattern.FindAllStringSubmatch(content, -1) {
		switch len(m[1]) {
		case 1:
			h1++
		case 3:
			h3++
		}
	}
	switch {
	case h1 >= c.options.HeaderAnalysisThresholdH1:
		return 1
	case isExcelSheet:
		return 2
	case h3 >= c.options.HeaderAnalysisThresholdH3:
		return 3
	default:
		return 2
	}
}

// section represents a markdown section with header info.
type section struct {
	headerLevel int
	headerTitle string
	headerPath  string
	content     string
	startLine   int // Line number within the content (0-indexed)
}

// parseSections parses markdown content into sections, treating only
// headers at or above splitLevel as section boundaries; deeper headers stay
// nested inside whichever section they fall under.
func (c *MarkdownChunker) parseSections(content string, splitLevel int) []*section {
	lines := strings.Split(content, "\n")
	var sections []*section
	headerStack := make([]string, 6)

	var currentSection *section
	var contentBuilder strings.Builder

	for lineNum, line := range lines {
		match := headerPattern.FindStringSubmatch(line)
		if match != nil && len(match[1]) <= splitLevel {
			if currentSection != nil {
				currentSection.content = contentBuilder.String()
				sections = append(sections, currentSection)
				contentBuilder.Reset()
			}

			level := len(match[1])
			title := strings.TrimSpace(match[2])

			headerStack[level-1] = title
			for i := level; i < 6; i++ {
				headerStack[i] = ""
			}

			var pathParts []string
			for i := 0; i < level; i++ {
				if headerStack[i] != "" {
					pathParts = append(pathParts, headerStack[i])
				}
			}

			currentSection = &section{
				headerLevel: level,
				headerTitle: title,
				headerPath:  strings.Join(pathParts, " > "),
				startLine:   lineNum,
			}
			contentBuilder.WriteString(line)
			contentBuilder.WriteString("\n")
			continue
		}

		contentBuilder.WriteString(line)
		contentBuilder.WriteString("\n")
	}

	if currentSection != nil {
		currentSection.content = contentBuilder.String()
		sections = append(sections, currentSection)
	}

	return sections
}

// mergeUndersizedSections folds a section smaller than minSectionSize into
// the previous retained section, so a terse header with little content
// beneath it doesn't become its own near-empty chunk. A leading undersized
// section (nothing to fold backward into) folds forward instead.
func mergeUndersizedSections(sections []*section, minSectionSize int) []*section {
	if minSectionSize <= 0 || len(sections) < 2 {
		return sections
	}

	var merged []*section
	for _, sec := range sections {
		if len(merged) > 0 && len(strings.TrimSpace(sec.content)) < minSectionSize {
			prev := merged[len(merged)-1]
			prev.content += sec.content
			continue
		}
		merged = append(merged, sec)
	}

	if len(merged) > 1 && len(strings.TrimSpace(merged[0].content)) < minSectionSize {
		merged[1].content = merged[0].content + merged[1].content
		merged[1].startLine = merged[0].startLine
		merged = merged[1:]
	}

	return merged
}

// createFrontmatterChunk creates a chunk for YAML frontmatter.
func (c *MarkdownChunker) createFrontmatterChunk(file *FileInput, content string, now time.Time) *Chunk {
	lineCount := strings.Count(content, "\n")
	if lineCount == 0 {
		lineCount = 1
	}

	return &Chunk{
		ID:          generateChunkID(file.Path, content),
		FilePath:    file.Path,
		Content:     content,
		RawContent:  content,
		ContentType: ContentTypeMarkdown,
		Language:    "markdown",
		StartLine:   1,
		EndLine:     lineCount,
		Metadata: map[string]string{
			"type":         "frontmatter",
			"header_path":  "",
			"header_level": "0",
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// createSectionChunks creates one or more chunks from a section: a section
// that already fits the chunk budget becomes a single chunk, otherwise it is
// split by splitLargeSection.
func (c *MarkdownChunker) createSectionChunks(file *FileInput, sec *section, baseLineOffset int, now time.Time) []*Chunk {
	content := strings.TrimRight(sec.content, "\n")

	trimmedContent := strings.TrimSpace(content)
	lines := strings.Split(trimmedContent, "\n")
	if len(lines) <= 1 && headerPattern.MatchString(trimmedContent) {
		// Only the header itself, no body.
		return []*Chunk{}
	}

	if estimateTokens(content) <= c.options.MaxChunkTokens {
		startLine := baseLineOffset + sec.startLine
		endLine := startLine + strings.Count(content, "\n")
		return []*Chunk{{
			ID:          generateChunkID(file.Path, content),
			FilePath:    file.Path,
			Content:     content,
			RawContent:  content,
			ContentType: ContentTypeMarkdown,
			Language:    "markdown",
			StartLine:   startLine,
			EndLine:     endLine,
			Metadata: map[string]string{
				"header_path":   sec.headerPath,
				"header_level":  strconv.Itoa(sec.headerLevel),
				"section_title": sec.headerTitle,
			},
			CreatedAt: now,
			UpdatedAt: now,
		}}
	}

	startLine := baseLineOffset + sec.startLine
	return c.splitLargeSection(file, sec, content, startLine, now)
}

// splitLargeSection splits an oversized section into multiple chunks using
// a table-aware block packer, then stitches trailing context from each
// chunk onto the head of the next.
func (c *MarkdownChunker) splitLargeSection(file *FileInput, sec *section, content string, startLine int, now time.Time) []*Chunk {
	maxChars := c.options.MaxChunkTokens * TokensPerChar
	maxOverlapChars := int(float64(maxChars) * c.options.MaxOverlapPercentage)

	pieces := packBlocksTableAware(splitIntoBlocks(content), maxChars)
	pieces = applyTrailingOverlap(pieces, maxOverlapChars)

	var chunks []*Chunk
	lineCursor := startLine
	for _, piece := range pieces {
		lineCount := strings.Count(piece, "\n")
		chunks = append(chunks, c.createChunkFromContent(file, sec, piece, lineCursor, lineCount, now))
		lineCursor += lineCount + 1
	}
	return chunks
}

// blockKind classifies a unit of Markdown content that must never be split
// across two chunks.
type blockKind int

const (
	blockParagraph blockKind = iota
	blockCodeFence
	blockTable
)

type contentBlock struct {
	kind blockKind
	text string
}

// splitIntoBlocks walks content line by line, grouping fenced code blocks
// and runs of Markdown table rows (lines bracketed by "|") into atomic
// units, and everything else into blank-line-delimited paragraphs. The
// packer that consumes these blocks never splits one, which is what keeps a
// table's rows together across a chunk boundary.
func splitIntoBlocks(content string) []contentBlock {
	lines := strings.Split(content, "\n")
	var blocks []contentBlock
	var cur []string
	curKind := blockParagraph
	inFence := false
	inTable := false

	flush := func() {
		if len(cur) == 0 {
			return
		}
		text := strings.TrimRight(strings.Join(cur, "\n"), "\n")
		if strings.TrimSpace(text) != "" {
			blocks = append(blocks, contentBlock{kind: curKind, text: text})
		}
		cur = nil
		curKind = blockParagraph
	}

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)

		if inFence {
			cur = append(cur, line)
			if strings.HasPrefix(trimmed, "```") {
				inFence = false
				flush()
			}
			continue
		}
		if strings.HasPrefix(trimmed, "```") {
			flush()
			inFence = true
			curKind = blockCodeFence
			cur = append(cur, line)
			continue
		}

		isTableRow := len(trimmed) > 1 && strings.HasPrefix(trimmed, "|") && strings.HasSuffix(trimmed, "|")
		if isTableRow {
			if !inTable {
				flush()
				inTable = true
				curKind = blockTable
			}
			cur = append(cur, line)
			continue
		}
		if inTable {
			flush()
			inTable = false
		}

		if trimmed == "" {
			flush()
			continue
		}
		cur = append(cur, line)
	}
	flush()

	return blocks
}

// packBlocksTableAware greedily packs blocks into pieces up to maxChars,
// never splitting a single block even if that block alone exceeds maxChars
// (an oversized table stays whole rather than losing a row).
func packBlocksTableAware(blocks []contentBlock, maxChars int) []string {
	var pieces []string
	var cur strings.Builder

	for _, b := range blocks {
		if cur.Len() > 0 && cur.Len()+len(b.text)+2 > maxChars {
			pieces = append(pieces, cur.String())
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteString("\n\n")
		}
		cur.WriteString(b.text)
	}
	if cur.Len() > 0 {
		pieces = append(pieces, cur.String())
	}

	return pieces
}

// applyTrailingOverlap prepends a trailing slice of each piece (bounded by
// maxOverlapChars) onto the piece that follows it, so a chunk in the middle
// of a split section still carries a little of what came before it.
func applyTrailingOverlap(pieces []string, maxOverlapChars int) []string {
	if maxOverlapChars <= 0 || len(pieces) < 2 {
		return pieces
	}

	out := make([]string, len(pieces))
	copy(out, pieces)
	for i := 1; i < len(out); i++ {
		overlap := trailingOverlap(pieces[i-1], maxOverlapChars)
		if overlap == "" {
			continue
		}
		out[i] = overlap + "\n\n" + out[i]
	}
	return out
}

// trailingOverlap returns the trailing paragraphs of content that fit
// within maxChars, preferring a full paragraph boundary over a hard cut.
func trailingOverlap(content string, maxChars int) string {
	if maxChars <= 0 {
		return ""
	}

	paras := strings.Split(content, "\n\n")
	var acc []string
	total := 0
	for i := len(paras) - 1; i >= 0; i-- {
		p := paras[i]
		if total+len(p) > maxChars {
			break
		}
		acc = append([]string{p}, acc...)
		total += len(p) + 2
	}
	if len(acc) > 0 {
		return strings.Join(acc, "\n\n")
	}

	if len(content) <= maxChars {
		return content
	}
	return content[len(content)-maxChars:]
}

// createChunkFromContent creates a chunk from content string.
func (c *MarkdownChunker) createChunkFromContent(file *FileInput, sec *section, content string, startLine, lineCount int, now time.Time) *Chunk {
	content = strings.TrimRight(content, "\n ")

	return &Chunk{
		ID:          generateChunkID(file.Path, content),
		FilePath:    file.Path,
		Content:     content,
		RawContent:  content,
		ContentType: ContentTypeMarkdown,
		Language:    "markdown",
		StartLine:   startLine,
		EndLine:     startLine + lineCount,
		Metadata: map[string]string{
			"header_path":   sec.headerPath,
			"header_level":  strconv.Itoa(sec.headerLevel),
			"section_title": sec.headerTitle,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// chunkByParagraphs chunks content without section-boundary headers using
// the same table-aware block packer and overlap as splitLargeSection.
func (c *MarkdownChunker) chunkByParagraphs(file *FileInput, content, headerPath string, startLine int, now time.Time) []*Chunk {
	maxChars := c.options.MaxChunkTokens * TokensPerChar
	maxOverlapChars := int(float64(maxChars) * c.options.MaxOverlapPercentage)

	pieces := packBlocksTableAware(splitIntoBlocks(content), maxChars)
	pieces = applyTrailingOverlap(pieces, maxOverlapChars)

	var chunks []*Chunk
	lineCursor := startLine
	for _, piece := range pieces {
		lineCount := strings.Count(piece, "\n")
		chunks = append(chunks, &Chunk{
			ID:          generateChunkID(file.Path, piece),
			FilePath:    file.Path,
			Content:     piece,
			RawContent:  piece,
			ContentType: ContentTypeMarkdown,
			Language:    "markdown",
			StartLine:   lineCursor,
			EndLine:     lineCursor + lineCount,
			Metadata: map[string]string{
				"header_path":   headerPath,
				"header_level":  "0",
				"section_title": "",
			},
			CreatedAt: now,
			UpdatedAt: now,
		})
		lineCursor += lineCount + 1
	}

	return chunks
}

// capSection enforces maxChunksPerSection by folding any chunks beyond the
// cap into the last retained chunk instead of dropping their content.
func capSection(chunks []*Chunk, maxChunksPerSection int) []*Chunk {
	if maxChunksPerSection <= 0 || len(chunks) <= maxChunksPerSection {
		return chunks
	}
	return foldOverflow(chunks, maxChunksPerSection)
}

// capDocument enforces maxChunksPerDocument the same way capSection does,
// across the whole document's chunk list.
func (c *MarkdownChunker) capDocument(chunks []*Chunk) []*Chunk {
	limit := c.options.MaxChunksPerDocument
	if limit <= 0 || len(chunks) <= limit {
		return chunks
	}
	return foldOverflow(chunks, limit)
}

// foldOverflow keeps the first limit-1 chunks untouched and concatenates
// everything from limit-1 onward into the final retained chunk.
func foldOverflow(chunks []*Chunk, limit int) []*Chunk {
	if limit <= 0 || len(chunks) <= limit {
		return chunks
	}
	kept := chunks[:limit-1]
	last := chunks[limit-1]

	var overflow strings.Builder
	for i, ch := range chunks[limit-1:] {
		if i > 0 {
			overflow.WriteString("\n\n")
		}
		overflow.WriteString(ch.Content)
	}
	last.Content = overflow.String()
	last.RawContent = last.Content

	return append(kept, last)
}
