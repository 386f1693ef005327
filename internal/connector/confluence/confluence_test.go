package confluence

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/corpuskit/corpuskit/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIterDocumentsPaginatesUntilShortPage(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		if calls == 1 {
			w.Write([]byte(`{"results":[{"id":"1","title":"Page One","body":{"storage":{"value":"<p>one</p>"}},"version":{"when":"2026-01-01T00:00:00Z"}},{"id":"2","title":"Page Two","body":{"storage":{"value":"<p>two</p>"}},"version":{"when":"2026-01-02T00:00:00Z"}}]}`))
			return
		}
		w.Write([]byte(`{"results":[]}`))
	}))
	defer srv.Close()

	src := model.Source{
		Name: "wiki",
		Kind: model.SourceConfluence,
		Config: map[string]any{
			"base_url":  srv.URL,
			"space_key": "ENG",
			"page_limit": 2,
		},
	}

	c := New()
	ch, err := c.IterDocuments(context.Background(), "proj", src, time.Time{})
	require.NoError(t, err)

	var titles []string
	for obs := range ch {
		require.NoError(t, obs.Err)
		titles = append(titles, obs.Document.Title)
	}
	assert.ElementsMatch(t, []string{"Page One", "Page Two"}, titles)
}

func TestIterDocumentsRequiresBaseURLAndSpaceKey(t *testing.T) {
	c := New()
	_, err := c.IterDocuments(context.Background(), "proj", model.Source{Name: "wiki"}, time.Time{})
	assert.Error(t, err)
}
