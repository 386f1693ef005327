package jira

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

func TestIterDocumentsStopsOnIsLast(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"issues":[{"id":"10001","key":"ENG-1","fields":{"summary":"first bug","description":"details","status":{"name":"Open"},"issuetype":{"name":"Bug"},"updated":"2026-01-01T10:00:00.000-0700"}}],"isLast":true}`))
	}))
	defer srv.Close()

	src := model.Source{
		Name: "tickets",
		Kind: model.SourceJIRA,
		Config: map[string]any{
			"base_url":    srv.URL,
			"project_key": "ENG",
		},
	}

	c := New()
	ch, err := c.IterDocuments(context.Background(), "proj", src, time.Time{})
	require.NoError(t, err)

	var docs []model.Document
	for obs := range ch {
		require.NoError(t, obs.Err)
		docs = append(docs, obs.Document)
	}
	require.Len(t, docs, 1)
	assert.Equal(t, "ENG-1: first bug", docs[0].Title)
	assert.Equal(t, "Bug", docs[0].Metadata["issue_type"])
}

func TestIterDocumentsRequiresBaseURLAndProjectKey(t *testing.T) {
	c := New()
	_, err := c.IterDocuments(context.Background(), "proj", model.Source{Name: "tickets"}, time.Time{})
	assert.Error(t, err)
}
