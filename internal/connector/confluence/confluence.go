// Package confluence implements the confluence Source Connector: paginated
// REST API fetches against /wiki/rest/api/content, grounded on the teacher
// pack's atlassian scraper service.
package confluence

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/corpuskit/corpuskit/internal/connector"
	"github.com/corpuskit/corpuskit/internal/errtax"
	"github.com/corpuskit/corpuskit/internal/model"
)

// Config is the confluence source's own config block.
type Config struct {
	BaseURL      string
	SpaceKey     string
	Username     string
	APITokenEnv  string
	PageLimit    int
}

type Connector struct {
	client *http.Client
}

func New() *Connector {
	return &Connector{client: &http.Client{Timeout: 30 * time.Second}}
}

func parseConfig(raw map[string]any) Config {
	cfg := Config{PageLimit: 25, APITokenEnv: "CONFLUENCE_TOKEN", Username: os.Getenv("CONFLUENCE_EMAIL")}
	if v, ok := raw["base_url"].(string); ok {
		cfg.BaseURL = strings.TrimSuffix(v, "/")
	}
	if v, ok := raw["space_key"].(string); ok {
		cfg.SpaceKey = v
	}
	if v, ok := raw["username"].(string); ok {
		cfg.Username = v
	}
	if v, ok := raw["api_token_env"].(string); ok {
		cfg.APITokenEnv = v
	}
	if v, ok := raw["page_limit"].(int); ok {
		cfg.PageLimit = v
	}
	return cfg
}

// resolveToken tries the configured env var first, then falls back to
// CONFLUENCE_PAT — spec.md §6 lists both CONFLUENCE_TOKEN and
// CONFLUENCE_PAT as valid credential sources.
func resolveToken(cfg Config) string {
	if v := os.Getenv(cfg.APITokenEnv); v != "" {
		return v
	}
	return os.Getenv("CONFLUENCE_PAT")
}

type contentResult struct {
	Results []contentPage `json:"results"`
	Size    int           `json:"size"`
}

type contentPage struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Body  struct {
		Storage struct {
			Value string `json:"value"`
		} `json:"storage"`
	} `json:"body"`
	Ancestors []struct {
		ID string `json:"id"`
	} `json:"ancestors"`
	Version struct {
		When string `json:"when"`
	} `json:"version"`
}

func (c *Connector) fetchPage(ctx context.Context, cfg Config, start int) (contentResult, error) {
	path := fmt.Sprintf("%s/wiki/rest/api/content?spaceKey=%s&start=%d&limit=%d&expand=body.storage,ancestors,version",
		cfg.BaseURL, cfg.SpaceKey, start, cfg.PageLimit)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, path, nil)
	if err != nil {
		return contentResult{}, errtax.New(errtax.ErrCodeConfigInvalid, "building confluence request", err)
	}
	req.Header.Set("Accept", "application/json")
	if token := resolveToken(cfg); token != "" {
		req.SetBasicAuth(cfg.Username, token)
	}

	var result contentResult
	op := func() error {
		resp, err := c.client.Do(req)
		if err != nil {
			return errtax.TransientRemoteError("confluence request failed", err)
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return errtax.New(errtax.ErrCodeRateLimited, "confluence rate limited", nil)
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return errtax.New(errtax.ErrCodeAuthRejected, "confluence auth rejected: "+string(body), nil)
		case resp.StatusCode >= 500:
			return errtax.New(errtax.ErrCodeServerError, "confluence server error: "+strconv.Itoa(resp.StatusCode), nil)
		case resp.StatusCode >= 400:
			return errtax.ConversionError("confluence request failed: "+string(body), nil)
		}
		return json.Unmarshal(body, &result)
	}

	if err := errtax.Retry(ctx, errtax.DefaultRetryConfig(), op); err != nil {
		return contentResult{}, err
	}
	return result, nil
}

func (c *Connector) IterDocuments(ctx context.Context, projectID string, source model.Source, since time.Time) (<-chan connector.Observation, error) {
	cfg := parseConfig(source.Config)
	if cfg.BaseURL == "" || cfg.SpaceKey == "" {
		return nil, errtax.New(errtax.ErrCodeConfigInvalid, "confluence source requires base_url and space_key", nil)
	}

	out := make(chan connector.Observation)
	go func() {
		defer close(out)
		start := 0
		for {
			result, err := c.fetchPage(ctx, cfg, start)
			if err != nil {
				out <- connector.Observation{Err: err}
				return
			}
			if len(result.Results) == 0 {
				return
			}

			for _, page := range result.Results {
				updated := parseConfluenceTime(page.Version.When)
				if !since.IsZero() && updated.Before(since) {
					continue
				}

				docID := model.DocumentID(projectID, model.SourceConfluence, source.Name, page.ID)
				doc := model.Document{
					ID:          docID,
					ProjectID:   projectID,
					SourceName:  source.Name,
					SourceType:  model.SourceConfluence,
					SourceURI:   fmt.Sprintf("%s/wiki/spaces/%s/pages/%s", cfg.BaseURL, cfg.SpaceKey, page.ID),
					Title:       page.Title,
					Variant:     model.DocumentText,
					MimeType:    "text/html",
					Content:     []byte(page.Body.Storage.Value),
					ContentHash: model.StableHash(page.Body.Storage.Value),
					FetchedAt:   time.Now(),
					UpdatedAt:   updated,
				}
				for _, a := range page.Ancestors {
					doc.Ancestors = append(doc.Ancestors, model.DocumentID(projectID, model.SourceConfluence, source.Name, a.ID))
				}

				select {
				case out <- connector.Observation{Document: doc}:
				case <-ctx.Done():
					return
				}
			}

			if len(result.Results) < cfg.PageLimit {
				return
			}
			start += len(result.Results)
		}
	}()

	return out, nil
}

func parseConfluenceTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
