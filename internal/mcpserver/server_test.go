package mcpserver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corpuskit/corpuskit/internal/llm/fake"
	"github.com/corpuskit/corpuskit/internal/retrieval"
	"github.com/corpuskit/corpuskit/internal/vectorstore"
	"github.com/corpuskit/corpuskit/internal/vectorstore/memory"
)

func seedServer(t *testing.T) *Server {
	t.Helper()
	embedder := fake.New(8)
	vectors := memory.New()
	require.NoError(t, vectors.InitCollection(context.Background(), 8))

	content := "Confluence page about Kubernetes deployment strategy"
	embeds, err := embedder.Embed(context.Background(), []string{content})
	require.NoError(t, err)
	require.NoError(t, vectors.Upsert(context.Background(), []vectorstore.Point{
		{ID: "c1", Vector: embeds[0], Payload: map[string]string{
			"document_id": "d1", "project_id": "p1", "source_type": "confluence",
			"title": "Deployment Guide", "content": content, "is_attachment": "false",
		}},
	}))

	engine := retrieval.New(embedder, vectors)
	s, err := NewServer(engine, nil)
	require.NoError(t, err)
	return s
}

func TestNewServerReachesReadyState(t *testing.T) {
	s := seedServer(t)
	assert.Equal(t, StateReady, s.Session().State())
}

func TestSearchHandlerReturnsResults(t *testing.T) {
	s := seedServer(t)
	_, out, err := s.searchHandler(context.Background(), nil, SearchInput{requestInput{Query: "Kubernetes deployment"}})
	require.NoError(t, err)
	assert.NotEmpty(t, out.Results)
}

func TestSearchHandlerRejectsEmptyQuery(t *testing.T) {
	s := seedServer(t)
	_, _, err := s.searchHandler(context.Background(), nil, SearchInput{})
	require.Error(t, err)
	mcpErr, ok := err.(*MCPError)
	require.True(t, ok)
	assert.Equal(t, ErrCodeInvalidParams, mcpErr.Code)
}

func TestClusterDocumentsHandlerDefaultsStrategy(t *testing.T) {
	s := seedServer(t)
	_, out, err := s.clusterDocumentsHandler(context.Background(), nil, ClusterDocumentsInput{requestInput: requestInput{Query: "Kubernetes"}})
	require.NoError(t, err)
	assert.NotNil(t, out.Clusters)
}

func TestServeRejectsUnknownTransport(t *testing.T) {
	s := seedServer(t)
	err := s.Serve(context.Background(), "carrier-pigeon", "")
	assert.Error(t, err)
}

func TestCloseTransitionsToClosed(t *testing.T) {
	s := seedServer(t)
	require.NoError(t, s.Close())
	assert.Equal(t, StateClosed, s.Session().State())
}
