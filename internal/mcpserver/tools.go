package mcpserver

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/corpuskit/corpuskit/internal/retrieval"
)

// requestInput carries the fields shared by every retrieval tool's input
// schema, embedded into each tool-specific Input struct.
type requestInput struct {
	Query       string   `json:"query" jsonschema:"the search query to execute"`
	Limit       int      `json:"limit,omitempty" jsonschema:"maximum number of results, default 10, max 100"`
	SourceTypes []string `json:"source_types,omitempty" jsonschema:"restrict results to these source types: git, confluence, jira, public_docs, local_file"`
	ProjectIDs  []string `json:"project_ids,omitempty" jsonschema:"restrict results to these project IDs"`
}

func (r requestInput) toRequest() retrieval.Request {
	return retrieval.Request{Query: r.Query, Limit: r.Limit, SourceTypes: r.SourceTypes, ProjectIDs: r.ProjectIDs}
}

// ResultOutput is the wire representation of a retrieval.Result: the
// payload travels alongside the typed fields since it carries every
// enrichment field the pipeline attached at upsert time.
type ResultOutput struct {
	ChunkID    string            `json:"chunk_id"`
	DocumentID string            `json:"document_id"`
	Title      string            `json:"title"`
	Content    string            `json:"content"`
	Score      float64           `json:"score"`
	Payload    map[string]string `json:"payload,omitempty"`
}

func toResultOutput(r retrieval.Result) ResultOutput {
	return ResultOutput{ChunkID: r.ChunkID, DocumentID: r.DocumentID, Title: r.Title, Content: r.Content, Score: r.Score, Payload: r.Payload}
}

func toResultOutputs(rs []retrieval.Result) []ResultOutput {
	out := make([]ResultOutput, len(rs))
	for i, r := range rs {
		out[i] = toResultOutput(r)
	}
	return out
}

// --- search ---

type SearchInput struct {
	requestInput
}

type SearchOutput struct {
	Results []ResultOutput `json:"results"`
}

func (s *Server) searchHandler(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (*mcp.CallToolResult, SearchOutput, error) {
	if input.Query == "" {
		return nil, SearchOutput{}, NewInvalidParamsError("query is required")
	}
	results, err := s.engine.SemanticSearch(ctx, input.toRequest())
	if err != nil {
		return nil, SearchOutput{}, MapError(err)
	}
	return nil, SearchOutput{Results: toResultOutputs(results)}, nil
}

// --- hierarchy_search ---

type HierarchySearchInput struct {
	requestInput
	Depth               int    `json:"depth,omitempty" jsonschema:"restrict to this ancestor depth"`
	HasDepth            bool   `json:"has_depth,omitempty" jsonschema:"set true to apply the depth filter (depth 0 is a valid root filter)"`
	RootOnly            bool   `json:"root_only,omitempty" jsonschema:"restrict to documents with no ancestors"`
	ParentTitle         string `json:"parent_title,omitempty" jsonschema:"restrict to documents whose parent title contains this substring"`
	OrganizeByHierarchy bool   `json:"organize_by_hierarchy,omitempty" jsonschema:"group results into per-root-document clusters"`
}

type HierarchyResultOutput struct {
	ResultOutput
	Ancestors  []string `json:"ancestors"`
	Depth      int      `json:"depth"`
	Breadcrumb string   `json:"breadcrumb"`
}

type HierarchySearchOutput struct {
	Groups [][]HierarchyResultOutput `json:"groups"`
}

func (s *Server) hierarchySearchHandler(ctx context.Context, _ *mcp.CallToolRequest, input HierarchySearchInput) (*mcp.CallToolResult, HierarchySearchOutput, error) {
	if input.Query == "" {
		return nil, HierarchySearchOutput{}, NewInvalidParamsError("query is required")
	}
	filter := retrieval.HierarchyFilter{Depth: input.Depth, HasDepth: input.HasDepth, RootOnly: input.RootOnly, ParentTitle: input.ParentTitle}
	groups, err := s.engine.HierarchySearch(ctx, input.toRequest(), filter, input.OrganizeByHierarchy)
	if err != nil {
		return nil, HierarchySearchOutput{}, MapError(err)
	}
	out := make([][]HierarchyResultOutput, len(groups))
	for i, g := range groups {
		row := make([]HierarchyResultOutput, len(g))
		for j, h := range g {
			row[j] = HierarchyResultOutput{ResultOutput: toResultOutput(h.Result), Ancestors: h.Ancestors, Depth: h.Depth, Breadcrumb: h.Breadcrumb}
		}
		out[i] = row
	}
	return nil, HierarchySearchOutput{Groups: out}, nil
}

// --- attachment_search ---

type AttachmentSearchInput struct {
	requestInput
	FileType             string `json:"file_type,omitempty" jsonschema:"restrict to this MIME type"`
	Author               string `json:"author,omitempty" jsonschema:"restrict to attachments by this author"`
	ParentDocumentTitle  string `json:"parent_document_title,omitempty" jsonschema:"restrict to attachments whose parent document title contains this substring"`
	IncludeParentContext bool   `json:"include_parent_context,omitempty" jsonschema:"resolve and include each attachment's parent document title/content"`
}

type AttachmentResultOutput struct {
	ResultOutput
	ParentTitle   string `json:"parent_title,omitempty"`
	ParentContent string `json:"parent_content,omitempty"`
}

type AttachmentSearchOutput struct {
	Results []AttachmentResultOutput `json:"results"`
}

func (s *Server) attachmentSearchHandler(ctx context.Context, _ *mcp.CallToolRequest, input AttachmentSearchInput) (*mcp.CallToolResult, AttachmentSearchOutput, error) {
	if input.Query == "" {
		return nil, AttachmentSearchOutput{}, NewInvalidParamsError("query is required")
	}
	filter := retrieval.AttachmentFilter{FileType: input.FileType, Author: input.Author, ParentDocumentTitle: input.ParentDocumentTitle}
	results, err := s.engine.AttachmentSearch(ctx, input.toRequest(), filter, input.IncludeParentContext)
	if err != nil {
		return nil, AttachmentSearchOutput{}, MapError(err)
	}
	out := make([]AttachmentResultOutput, len(results))
	for i, r := range results {
		out[i] = AttachmentResultOutput{ResultOutput: toResultOutput(r.Result), ParentTitle: r.ParentTitle, ParentContent: r.ParentContent}
	}
	return nil, AttachmentSearchOutput{Results: out}, nil
}

// --- analyze_document_relationships ---

type AnalyzeRelationshipsInput struct {
	requestInput
}

type EdgeOutput struct {
	SourceChunkID string  `json:"source_chunk_id"`
	TargetChunkID string  `json:"target_chunk_id"`
	Score         float64 `json:"score"`
	Explanation   string  `json:"explanation"`
}

type AnalyzeRelationshipsOutput struct {
	Edges []EdgeOutput `json:"edges"`
}

func (s *Server) analyzeRelationshipsHandler(ctx context.Context, _ *mcp.CallToolRequest, input AnalyzeRelationshipsInput) (*mcp.CallToolResult, AnalyzeRelationshipsOutput, error) {
	if input.Query == "" {
		return nil, AnalyzeRelationshipsOutput{}, NewInvalidParamsError("query is required")
	}
	edges, err := s.engine.AnalyzeDocumentRelationships(ctx, input.toRequest())
	if err != nil {
		return nil, AnalyzeRelationshipsOutput{}, MapError(err)
	}
	out := make([]EdgeOutput, len(edges))
	for i, e := range edges {
		out[i] = EdgeOutput{SourceChunkID: e.SourceChunkID, TargetChunkID: e.TargetChunkID, Score: e.Score, Explanation: e.Explanation}
	}
	return nil, AnalyzeRelationshipsOutput{Edges: out}, nil
}

// --- find_similar_documents ---

type FindSimilarInput struct {
	requestInput
	MaxSimilar int `json:"max_similar,omitempty" jsonschema:"maximum number of similar documents to return, default is all candidates"`
}

type FindSimilarOutput struct {
	Results []ResultOutput `json:"results"`
}

func (s *Server) findSimilarHandler(ctx context.Context, _ *mcp.CallToolRequest, input FindSimilarInput) (*mcp.CallToolResult, FindSimilarOutput, error) {
	if input.Query == "" {
		return nil, FindSimilarOutput{}, NewInvalidParamsError("query is required")
	}
	results, err := s.engine.FindSimilarDocuments(ctx, input.toRequest(), input.MaxSimilar)
	if err != nil {
		return nil, FindSimilarOutput{}, MapError(err)
	}
	return nil, FindSimilarOutput{Results: toResultOutputs(results)}, nil
}

// --- detect_document_conflicts ---

type DetectConflictsInput struct {
	requestInput
}

type ConflictOutput struct {
	ChunkIDA    string `json:"chunk_id_a"`
	ChunkIDB    string `json:"chunk_id_b"`
	Explanation string `json:"explanation"`
}

type DetectConflictsOutput struct {
	Conflicts []ConflictOutput `json:"conflicts"`
}

func (s *Server) detectConflictsHandler(ctx context.Context, _ *mcp.CallToolRequest, input DetectConflictsInput) (*mcp.CallToolResult, DetectConflictsOutput, error) {
	if input.Query == "" {
		return nil, DetectConflictsOutput{}, NewInvalidParamsError("query is required")
	}
	conflicts, err := s.engine.DetectDocumentConflicts(ctx, input.toRequest())
	if err != nil {
		return nil, DetectConflictsOutput{}, MapError(err)
	}
	out := make([]ConflictOutput, len(conflicts))
	for i, c := range conflicts {
		out[i] = ConflictOutput{ChunkIDA: c.ChunkIDA, ChunkIDB: c.ChunkIDB, Explanation: c.Explanation}
	}
	return nil, DetectConflictsOutput{Conflicts: out}, nil
}

// --- find_complementary_content ---

type FindComplementaryInput struct {
	requestInput
	MaxRecommendations int `json:"max_recommendations,omitempty" jsonschema:"maximum number of recommendations to return, default is all candidates"`
}

type FindComplementaryOutput struct {
	Results []ResultOutput `json:"results"`
}

func (s *Server) findComplementaryHandler(ctx context.Context, _ *mcp.CallToolRequest, input FindComplementaryInput) (*mcp.CallToolResult, FindComplementaryOutput, error) {
	if input.Query == "" {
		return nil, FindComplementaryOutput{}, NewInvalidParamsError("query is required")
	}
	results, err := s.engine.FindComplementaryContent(ctx, input.toRequest(), input.MaxRecommendations)
	if err != nil {
		return nil, FindComplementaryOutput{}, MapError(err)
	}
	return nil, FindComplementaryOutput{Results: toResultOutputs(results)}, nil
}

// --- cluster_documents ---

type ClusterDocumentsInput struct {
	requestInput
	Strategy       string `json:"strategy,omitempty" jsonschema:"clustering strategy: mixed_features, entity_based, topic_based, project_based"`
	MaxClusters    int    `json:"max_clusters,omitempty" jsonschema:"stop merging once this many clusters remain, 0 means no cap"`
	MinClusterSize int    `json:"min_cluster_size,omitempty" jsonschema:"drop clusters smaller than this"`
}

type ClusterDocumentsOutput struct {
	Clusters [][]ResultOutput `json:"clusters"`
}

func (s *Server) clusterDocumentsHandler(ctx context.Context, _ *mcp.CallToolRequest, input ClusterDocumentsInput) (*mcp.CallToolResult, ClusterDocumentsOutput, error) {
	if input.Query == "" {
		return nil, ClusterDocumentsOutput{}, NewInvalidParamsError("query is required")
	}
	strategy := retrieval.ClusterStrategy(input.Strategy)
	if strategy == "" {
		strategy = retrieval.StrategyMixedFeatures
	}
	minSize := input.MinClusterSize
	if minSize <= 0 {
		minSize = 1
	}
	clusters, err := s.engine.ClusterDocuments(ctx, input.toRequest(), strategy, input.MaxClusters, minSize)
	if err != nil {
		return nil, ClusterDocumentsOutput{}, MapError(err)
	}
	out := make([][]ResultOutput, len(clusters))
	for i, c := range clusters {
		out[i] = toResultOutputs(c)
	}
	return nil, ClusterDocumentsOutput{Clusters: out}, nil
}

// registerTools wires every retrieval tool onto the underlying MCP server,
// one mcp.AddTool call per tool exactly as the teacher's registerTools does.
func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search",
		Description: "Semantic search across every indexed source in a project. Embeds the query and returns the most similar chunks, optionally restricted by source type or project.",
	}, s.searchHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "hierarchy_search",
		Description: "Semantic search that preserves document structure: returns each hit's ancestor chain and section breadcrumb, optionally grouped by root document.",
	}, s.hierarchySearchHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "attachment_search",
		Description: "Semantic search restricted to attachments (files extracted from a parent document), optionally resolving the parent document's title and content.",
	}, s.attachmentSearchHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "analyze_document_relationships",
		Description: "Scores every pair of documents matching a query on composite similarity (entity/topic/metadata/hierarchy overlap) and returns the scored edges, most related first.",
	}, s.analyzeRelationshipsHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "find_similar_documents",
		Description: "Finds the documents most similar to the top match for a query, ranked by composite similarity.",
	}, s.findSimilarHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "detect_document_conflicts",
		Description: "Clusters documents by topic and flags pairs whose metadata disagrees or whose content contains opposing terms (e.g. deprecated vs active).",
	}, s.detectConflictsHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "find_complementary_content",
		Description: "Recommends documents that complement the top match for a query: related topic, low content duplication, compatible metadata.",
	}, s.findComplementaryHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "cluster_documents",
		Description: "Groups documents matching a query into clusters via agglomerative single-linkage clustering, using a selectable similarity strategy.",
	}, s.clusterDocumentsHandler)
}
