// Package publicdocs implements the public_docs Source Connector: a
// same-host breadth-first crawl using goquery for both link discovery and
// page text extraction, grounded on the teacher pack's crawler
// LinkExtractor.
package publicdocs

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/corpuskit/corpuskit/internal/connector"
	"github.com/corpuskit/corpuskit/internal/errtax"
	"github.com/corpuskit/corpuskit/internal/model"
)

// Config is the public_docs source's own config block.
type Config struct {
	StartURL string
	MaxPages int
	MaxDepth int
}

type Connector struct {
	client *http.Client
}

func New() *Connector {
	return &Connector{client: &http.Client{Timeout: 30 * time.Second}}
}

func parseConfig(raw map[string]any) Config {
	cfg := Config{MaxPages: 200, MaxDepth: 3}
	if v, ok := raw["start_url"].(string); ok {
		cfg.StartURL = v
	}
	if v, ok := raw["max_pages"].(int); ok {
		cfg.MaxPages = v
	}
	if v, ok := raw["max_depth"].(int); ok {
		cfg.MaxDepth = v
	}
	return cfg
}

type crawlItem struct {
	url   string
	depth int
}

func shouldSkipLink(href string) bool {
	return strings.HasPrefix(href, "javascript:") ||
		strings.HasPrefix(href, "mailto:") ||
		strings.HasPrefix(href, "tel:") ||
		strings.HasPrefix(href, "#")
}

func resolveURL(href string, base *url.URL) string {
	if base == nil {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	resolved := base.ResolveReference(ref)
	resolved.Fragment = ""
	return resolved.String()
}

func extractLinks(doc *goquery.Document, sourceURL string) []string {
	base, err := url.Parse(sourceURL)
	if err != nil {
		return nil
	}
	var links []string
	seen := map[string]bool{}
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok || href == "" || shouldSkipLink(href) {
			return
		}
		resolved := resolveURL(href, base)
		if resolved == "" || seen[resolved] {
			return
		}
		seen[resolved] = true
		links = append(links, resolved)
	})
	return links
}

func sameHost(a, b string) bool {
	ua, errA := url.Parse(a)
	ub, errB := url.Parse(b)
	return errA == nil && errB == nil && ua.Host == ub.Host
}

func (c *Connector) fetch(ctx context.Context, pageURL string) (*goquery.Document, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, nil, errtax.New(errtax.ErrCodeConfigInvalid, "building public_docs request", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, nil, errtax.TransientRemoteError("public_docs fetch failed", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, errtax.TransientRemoteError("reading public_docs response", err)
	}
	if resp.StatusCode >= 400 {
		return nil, nil, errtax.ConversionError("public_docs fetch returned non-2xx status", nil)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return nil, nil, errtax.ConversionError("parsing public_docs HTML", err)
	}
	return doc, body, nil
}

func (c *Connector) IterDocuments(ctx context.Context, projectID string, source model.Source, since time.Time) (<-chan connector.Observation, error) {
	cfg := parseConfig(source.Config)
	if cfg.StartURL == "" {
		return nil, errtax.New(errtax.ErrCodeConfigInvalid, "public_docs source requires start_url", nil)
	}

	out := make(chan connector.Observation)
	go func() {
		defer close(out)

		queue := []crawlItem{{url: cfg.StartURL, depth: 0}}
		visited := map[string]bool{}
		fetched := 0

		for len(queue) > 0 && fetched < cfg.MaxPages {
			item := queue[0]
			queue = queue[1:]
			if visited[item.url] {
				continue
			}
			visited[item.url] = true

			gdoc, body, err := c.fetch(ctx, item.url)
			if err != nil {
				out <- connector.Observation{Err: err}
				continue
			}
			fetched++

			title := strings.TrimSpace(gdoc.Find("title").First().Text())
			content := strings.TrimSpace(gdoc.Find("body").Text())

			docID := model.DocumentID(projectID, model.SourcePublicDocs, source.Name, item.url)
			doc := model.Document{
				ID:          docID,
				ProjectID:   projectID,
				SourceName:  source.Name,
				SourceType:  model.SourcePublicDocs,
				SourceURI:   item.url,
				Title:       title,
				Variant:     model.DocumentText,
				MimeType:    "text/html",
				Content:     body,
				ContentHash: model.StableHash(string(body)),
				Metadata:    map[string]string{"extracted_text_length": itoa(len(content))},
				FetchedAt:   time.Now(),
				UpdatedAt:   time.Now(),
			}

			select {
			case out <- connector.Observation{Document: doc}:
			case <-ctx.Done():
				return
			}

			if item.depth >= cfg.MaxDepth {
				continue
			}
			for _, link := range extractLinks(gdoc, item.url) {
				if !sameHost(link, cfg.StartURL) || visited[link] {
					continue
				}
				queue = append(queue, crawlItem{url: link, depth: item.depth + 1})
			}
		}
	}()

	return out, nil
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	digits := []byte{}
	for i > 0 {
		digits = append(digits, byte('0'+i%10))
		i /= 10
	}
	for l, r := 0, len(digits)-1; l < r; l, r = l+1, r-1 {
		digits[l], digits[r] = digits[r], digits[l]
	}
	return string(digits)
}
