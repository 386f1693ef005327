// Package jira implements the jira Source Connector: paginated JQL search
// against /rest/api/3/search/jql, grounded on the teacher pack's
// JiraScraperService batch-fetch loop.
package jira

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/corpuskit/corpuskit/internal/connector"
	"github.com/corpuskit/corpuskit/internal/errtax"
	"github.com/corpuskit/corpuskit/internal/model"
)

// Config is the jira source's own config block.
type Config struct {
	BaseURL     string
	ProjectKey  string
	Username    string
	APITokenEnv string
	MaxResults  int
}

type Connector struct {
	client *http.Client
}

func New() *Connector {
	return &Connector{client: &http.Client{Timeout: 30 * time.Second}}
}

func parseConfig(raw map[string]any) Config {
	cfg := Config{MaxResults: 100, APITokenEnv: "JIRA_TOKEN", Username: os.Getenv("JIRA_EMAIL")}
	if v, ok := raw["base_url"].(string); ok {
		cfg.BaseURL = strings.TrimSuffix(v, "/")
	}
	if v, ok := raw["project_key"].(string); ok {
		cfg.ProjectKey = v
	}
	if v, ok := raw["username"].(string); ok {
		cfg.Username = v
	}
	if v, ok := raw["api_token_env"].(string); ok {
		cfg.APITokenEnv = v
	}
	if v, ok := raw["max_results"].(int); ok {
		cfg.MaxResults = v
	}
	return cfg
}

// resolveToken tries the configured env var first, then falls back to
// JIRA_PAT — spec.md §6 lists both JIRA_TOKEN and JIRA_PAT as valid
// credential sources.
func resolveToken(cfg Config) string {
	if v := os.Getenv(cfg.APITokenEnv); v != "" {
		return v
	}
	return os.Getenv("JIRA_PAT")
}

type issue struct {
	ID     string `json:"id"`
	Key    string `json:"key"`
	Fields struct {
		Summary     string `json:"summary"`
		Description string `json:"description"`
		Updated     string `json:"updated"`
		Status      struct {
			Name string `json:"name"`
		} `json:"status"`
		IssueType struct {
			Name string `json:"name"`
		} `json:"issuetype"`
	} `json:"fields"`
}

type searchResult struct {
	Issues []issue `json:"issues"`
	IsLast bool    `json:"isLast"`
}

func (c *Connector) fetchBatch(ctx context.Context, cfg Config, startAt int) (searchResult, error) {
	jql := fmt.Sprintf("project=%q", cfg.ProjectKey)
	path := fmt.Sprintf("%s/rest/api/3/search/jql?jql=%s&startAt=%d&maxResults=%d&fields=key,summary,description,status,issuetype,updated",
		cfg.BaseURL, url.QueryEscape(jql), startAt, cfg.MaxResults)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, path, nil)
	if err != nil {
		return searchResult{}, errtax.New(errtax.ErrCodeConfigInvalid, "building jira request", err)
	}
	req.Header.Set("Accept", "application/json")
	if token := resolveToken(cfg); token != "" {
		req.SetBasicAuth(cfg.Username, token)
	}

	var result searchResult
	op := func() error {
		resp, err := c.client.Do(req)
		if err != nil {
			return errtax.TransientRemoteError("jira request failed", err)
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return errtax.New(errtax.ErrCodeRateLimited, "jira rate limited", nil)
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return errtax.New(errtax.ErrCodeAuthRejected, "jira auth rejected: "+string(body), nil)
		case resp.StatusCode >= 500:
			return errtax.New(errtax.ErrCodeServerError, "jira server error: "+strconv.Itoa(resp.StatusCode), nil)
		case resp.StatusCode >= 400:
			return errtax.ConversionError("jira request failed: "+string(body), nil)
		}
		return json.Unmarshal(body, &result)
	}

	if err := errtax.Retry(ctx, errtax.DefaultRetryConfig(), op); err != nil {
		return searchResult{}, err
	}
	return result, nil
}

func (c *Connector) IterDocuments(ctx context.Context, projectID string, source model.Source, since time.Time) (<-chan connector.Observation, error) {
	cfg := parseConfig(source.Config)
	if cfg.BaseURL == "" || cfg.ProjectKey == "" {
		return nil, errtax.New(errtax.ErrCodeConfigInvalid, "jira source requires base_url and project_key", nil)
	}

	out := make(chan connector.Observation)
	go func() {
		defer close(out)
		startAt := 0
		for {
			result, err := c.fetchBatch(ctx, cfg, startAt)
			if err != nil {
				out <- connector.Observation{Err: err}
				return
			}
			if len(result.Issues) == 0 {
				return
			}

			for _, is := range result.Issues {
				updated := parseJiraTime(is.Fields.Updated)
				if !since.IsZero() && updated.Before(since) {
					continue
				}

				content := is.Fields.Summary + "\n\n" + is.Fields.Description
				docID := model.DocumentID(projectID, model.SourceJIRA, source.Name, is.Key)
				doc := model.Document{
					ID:          docID,
					ProjectID:   projectID,
					SourceName:  source.Name,
					SourceType:  model.SourceJIRA,
					SourceURI:   fmt.Sprintf("%s/browse/%s", cfg.BaseURL, is.Key),
					Title:       fmt.Sprintf("%s: %s", is.Key, is.Fields.Summary),
					Variant:     model.DocumentText,
					MimeType:    "text/plain",
					Content:     []byte(content),
					ContentHash: model.StableHash(content),
					Metadata: map[string]string{
						"status":     is.Fields.Status.Name,
						"issue_type": is.Fields.IssueType.Name,
						"key":        is.Key,
					},
					FetchedAt: time.Now(),
					UpdatedAt: updated,
				}

				select {
				case out <- connector.Observation{Document: doc}:
				case <-ctx.Done():
					return
				}
			}

			if result.IsLast || len(result.Issues) < cfg.MaxResults {
				return
			}
			startAt += len(result.Issues)
		}
	}()

	return out, nil
}

func parseJiraTime(s string) time.Time {
	layouts := []string{"2006-01-02T15:04:05.000-0700", time.RFC3339}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
