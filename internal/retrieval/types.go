// Package retrieval implements the Retrieval Engine: the eight read-side
// tools the MCP Server exposes, all built as pure, deterministic scoring
// functions over Vector Store Gateway search hits, following the teacher's
// internal/search package's hybrid-scoring idiom (RRF-style composite
// fusion, weighted score combination) generalized from BM25+vector fusion
// to similarity-signal fusion across entity/topic/metadata/hierarchy.
package retrieval

import (
	"github.com/corpuskit/corpuskit/internal/vectorstore"
)

// Request carries the fields shared by every retrieval tool.
type Request struct {
	Query       string
	Limit       int
	SourceTypes []string
	ProjectIDs  []string
}

// Result is one chunk hit, carrying the payload fields the MCP layer
// serializes back to the client.
type Result struct {
	ChunkID    string            `json:"chunk_id"`
	DocumentID string            `json:"document_id"`
	Title      string            `json:"title"`
	Content    string            `json:"content"`
	Score      float64           `json:"score"`
	Payload    map[string]string `json:"-"`
}

// Response is the top-level shape every tool returns.
type Response struct {
	Results     []any          `json:"results"`
	Pagination  *Pagination    `json:"pagination,omitempty"`
	Diagnostics map[string]any `json:"diagnostics,omitempty"`
}

type Pagination struct {
	Total  int `json:"total"`
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}

// CompositeWeights configures the relative importance of each similarity
// signal used by analyze_document_relationships, find_similar_documents,
// detect_document_conflicts, find_complementary_content and
// cluster_documents.
type CompositeWeights struct {
	Entity    float64
	Topic     float64
	Metadata  float64
	Hierarchy float64
}

// DefaultCompositeWeights resolves the spec's Open Question on weighting:
// entity and topic overlap dominate, metadata and hierarchy contribute a
// smaller, equal share.
func DefaultCompositeWeights() CompositeWeights {
	return CompositeWeights{Entity: 0.35, Topic: 0.35, Metadata: 0.15, Hierarchy: 0.15}
}

func buildFilter(sourceTypes, projectIDs []string) *vectorstore.Filter {
	if len(sourceTypes) == 0 && len(projectIDs) == 0 {
		return nil
	}
	f := &vectorstore.Filter{In: map[string][]string{}}
	if len(sourceTypes) > 0 {
		f.In["source_type"] = sourceTypes
	}
	if len(projectIDs) > 0 {
		f.In["project_id"] = projectIDs
	}
	return f
}

func toResult(p vectorstore.Point) Result {
	return Result{
		ChunkID:    p.ID,
		DocumentID: p.Payload["document_id"],
		Title:      p.Payload["title"],
		Content:    p.Payload["content"],
		Score:      float64(p.Score),
		Payload:    p.Payload,
	}
}
