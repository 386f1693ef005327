package chunk

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// HTMLChunkerOptions configures the HTML strategy.
type HTMLChunkerOptions struct {
	MaxChunkTokens           int
	OverlapTokens            int
	SimpleParsingThreshold   int // documents under this byte size skip DOM parsing
	PreserveSemanticStructure bool
}

// HTMLChunker extracts readable text from HTML and delegates sectioning to
// the plain-text sliding window, with an optional DOM-aware path (via
// goquery) for documents large enough that a naive tag-strip would blur
// heading/section boundaries.
type HTMLChunker struct {
	options HTMLChunkerOptions
	plain   *PlainChunker
}

func NewHTMLChunker() *HTMLChunker {
	return NewHTMLChunkerWithOptions(HTMLChunkerOptions{})
}

func NewHTMLChunkerWithOptions(opts HTMLChunkerOptions) *HTMLChunker {
	if opts.MaxChunkTokens == 0 {
		opts.MaxChunkTokens = DefaultMaxChunkTokens
	}
	if opts.OverlapTokens == 0 {
		opts.OverlapTokens = DefaultOverlapTokens
	}
	if opts.SimpleParsingThreshold == 0 {
		opts.SimpleParsingThreshold = 4096
	}
	return &HTMLChunker{
		options: opts,
		plain:   NewPlainChunkerWithOptions(PlainChunkerOptions{MaxChunkTokens: opts.MaxChunkTokens, OverlapTokens: opts.OverlapTokens}),
	}
}

func (c *HTMLChunker) SupportedExtensions() []string { return []string{".html", ".htm"} }

func (c *HTMLChunker) Chunk(ctx context.Context, file *FileInput) ([]*Chunk, error) {
	if len(file.Content) <= c.options.SimpleParsingThreshold {
		return c.chunkSimple(ctx, file)
	}
	return c.chunkDOM(ctx, file)
}

// chunkSimple extracts text with goquery's default parser but without
// structure-preserving breadcrumbs — cheaper for small documents where a
// single heading path wouldn't meaningfully narrow retrieval anyway.
func (c *HTMLChunker) chunkSimple(ctx context.Context, file *FileInput) ([]*Chunk, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(file.Content)))
	if err != nil {
		return nil, err
	}
	doc.Find("script,style,noscript").Remove()
	text := strings.TrimSpace(doc.Text())
	if text == "" {
		return nil, nil
	}
	textFile := &FileInput{Path: file.Path, Content: []byte(text), Language: file.Language}
	chunks, err := c.plain.Chunk(ctx, textFile)
	for _, ch := range chunks {
		ch.ContentType = ContentTypeHTML
	}
	return chunks, err
}

// chunkDOM walks the document section-by-section (h1..h6 boundaries),
// attaching a header-path breadcrumb to each chunk's metadata the same way
// the markdown strategy does, so larger HTML exports (wiki/Confluence
// storage-format bodies) retain navigable structure.
func (c *HTMLChunker) chunkDOM(_ context.Context, file *FileInput) ([]*Chunk, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(file.Content)))
	if err != nil {
		return nil, err
	}
	doc.Find("script,style,noscript").Remove()

	type section struct {
		path string
		text string
	}
	var sections []section
	var stack []string

	body := doc.Find("body")
	if body.Length() == 0 {
		body = doc.Selection
	}

	var cur strings.Builder
	flush := func() {
		text := strings.TrimSpace(cur.String())
		if text != "" {
			sections = append(sections, section{path: strings.Join(stack, " > "), text: text})
		}
		cur.Reset()
	}

	body.Children().Each(func(_ int, sel *goquery.Selection) {
		tag := goquery.NodeName(sel)
		switch tag {
		case "h1", "h2", "h3", "h4", "h5", "h6":
			flush()
			level := int(tag[1] - '0')
			if level <= len(stack) {
				stack = stack[:level-1]
			}
			stack = append(stack, strings.TrimSpace(sel.Text()))
		default:
			cur.WriteString(strings.TrimSpace(sel.Text()))
			cur.WriteString("\n")
		}
	})
	flush()

	now := time.Now()
	var chunks []*Chunk
	for i, s := range sections {
		chunks = append(chunks, &Chunk{
			ID:          generateChunkID(file.Path, s.text),
			FilePath:    file.Path,
			Content:     s.text,
			ContentType: ContentTypeHTML,
			Metadata:    map[string]string{"header_path": s.path, "chunk_index": strconv.Itoa(i)},
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}
	if len(chunks) == 0 {
		return c.chunkSimple(context.Background(), file)
	}
	return chunks, nil
}
