package retrieval

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/corpuskit/corpuskit/internal/errtax"
	"github.com/corpuskit/corpuskit/internal/llm"
	"github.com/corpuskit/corpuskit/internal/vectorstore"
)

// Engine is the Retrieval Engine: query embedding plus the eight tool
// implementations, all sharing one LLM Provider and one Vector Store
// Gateway per the spec's shared-resource policy.
type Engine struct {
	embedder llm.Provider
	vectors  vectorstore.Gateway
	weights  CompositeWeights
}

func New(embedder llm.Provider, vectors vectorstore.Gateway) *Engine {
	return &Engine{embedder: embedder, vectors: vectors, weights: DefaultCompositeWeights()}
}

func (e *Engine) WithWeights(w CompositeWeights) *Engine {
	e.weights = w
	return e
}

func (e *Engine) embedQuery(ctx context.Context, query string) ([]float32, error) {
	vecs, err := e.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, errtax.TransientRemoteError("embedding query", err)
	}
	if len(vecs) == 0 {
		return nil, errtax.ProtocolError("embedder returned no vector for query", nil)
	}
	return vecs[0], nil
}

func limitOrDefault(n int) int {
	if n <= 0 {
		return 10
	}
	if n > 100 {
		return 100
	}
	return n
}

// SemanticSearch is the `search` MCP tool: embed the query, search the
// vector store with an optional source_type/project_id filter, return the
// top-limit hits.
func (e *Engine) SemanticSearch(ctx context.Context, req Request) ([]Result, error) {
	vec, err := e.embedQuery(ctx, req.Query)
	if err != nil {
		return nil, err
	}
	points, err := e.vectors.Search(ctx, vec, limitOrDefault(req.Limit), buildFilter(req.SourceTypes, req.ProjectIDs))
	if err != nil {
		return nil, err
	}
	results := make([]Result, len(points))
	for i, p := range points {
		results[i] = toResult(p)
	}
	return results, nil
}

// HierarchyFilter configures hierarchy_search's post-filters.
type HierarchyFilter struct {
	Depth       int
	HasDepth    bool
	HasChildren bool
	ParentTitle string
	RootOnly    bool
}

// HierarchyResult adds hierarchy-specific fields to a plain Result.
type HierarchyResult struct {
	Result
	Ancestors  []string `json:"ancestors"`
	Depth      int      `json:"depth"`
	Breadcrumb string   `json:"breadcrumb"`
}

// HierarchySearch is the hierarchy_search tool: semantic search with
// ancestor resolution from each hit's payload and optional grouping by root
// document. Hits are not restricted by source type; a hit without an
// ancestors field counts as a root (depth 0).
func (e *Engine) HierarchySearch(ctx context.Context, req Request, filter HierarchyFilter, organizeByHierarchy bool) ([][]HierarchyResult, error) {
	hits, err := e.SemanticSearch(ctx, req)
	if err != nil {
		return nil, err
	}

	var filtered []HierarchyResult
	for _, h := range hits {
		ancestors := splitNonEmpty(h.Payload["ancestors"], ",")
		depth := len(ancestors)

		if filter.HasDepth && depth != filter.Depth {
			continue
		}
		if filter.RootOnly && depth != 0 {
			continue
		}
		if filter.ParentTitle != "" && !strings.Contains(strings.ToLower(h.Payload["parent_title"]), strings.ToLower(filter.ParentTitle)) {
			continue
		}

		filtered = append(filtered, HierarchyResult{
			Result:     h,
			Ancestors:  ancestors,
			Depth:      depth,
			Breadcrumb: h.Payload["header_path"],
		})
	}

	if !organizeByHierarchy {
		return [][]HierarchyResult{filtered}, nil
	}

	groups := map[string][]HierarchyResult{}
	var order []string
	for _, r := range filtered {
		root := r.DocumentID
		if len(r.Ancestors) > 0 {
			root = r.Ancestors[0]
		}
		if _, ok := groups[root]; !ok {
			order = append(order, root)
		}
		groups[root] = append(groups[root], r)
	}

	out := make([][]HierarchyResult, 0, len(order))
	for _, root := range order {
		g := groups[root]
		sort.SliceStable(g, func(i, j int) bool {
			if g[i].Depth != g[j].Depth {
				return g[i].Depth < g[j].Depth
			}
			return g[i].Score > g[j].Score
		})
		out = append(out, g)
	}
	return out, nil
}

// AttachmentFilter configures attachment_search's post-filters.
type AttachmentFilter struct {
	FileType            string
	FileSizeMin         int64
	FileSizeMax         int64
	Author              string
	ParentDocumentTitle string
}

// AttachmentResult adds the parent document's payload when requested.
type AttachmentResult struct {
	Result
	ParentTitle   string `json:"parent_title,omitempty"`
	ParentContent string `json:"parent_content,omitempty"`
}

// AttachmentSearch is the attachment_search tool.
func (e *Engine) AttachmentSearch(ctx context.Context, req Request, filter AttachmentFilter, includeParentContext bool) ([]AttachmentResult, error) {
	vec, err := e.embedQuery(ctx, req.Query)
	if err != nil {
		return nil, err
	}
	vf := buildFilter(req.SourceTypes, req.ProjectIDs)
	if vf == nil {
		vf = &vectorstore.Filter{}
	}
	if vf.Equals == nil {
		vf.Equals = map[string]string{}
	}
	vf.Equals["is_attachment"] = "true"

	points, err := e.vectors.Search(ctx, vec, limitOrDefault(req.Limit), vf)
	if err != nil {
		return nil, err
	}

	out := make([]AttachmentResult, 0, len(points))
	for _, p := range points {
		r := toResult(p)
		if filter.FileType != "" && r.Payload["mime_type"] != filter.FileType {
			continue
		}
		if filter.Author != "" && r.Payload["author"] != filter.Author {
			continue
		}
		ar := AttachmentResult{Result: r}

		if filter.ParentDocumentTitle != "" || includeParentContext {
			parent := e.fetchByDocumentID(ctx, vec, r.Payload["parent_document_id"])
			if filter.ParentDocumentTitle != "" && !strings.Contains(strings.ToLower(parent.Title), strings.ToLower(filter.ParentDocumentTitle)) {
				continue
			}
			if includeParentContext {
				ar.ParentTitle = parent.Title
				ar.ParentContent = parent.Content
			}
		}
		out = append(out, ar)
	}
	return out, nil
}

// fetchByDocumentID adapts the Gateway's vector-search-only contract into a
// point lookup by filtering on document_id; the Gateway has no dedicated
// get-by-id operation, so this reuses the query embedding purely to satisfy
// Search's required vector argument — the filter does the actual selection.
func (e *Engine) fetchByDocumentID(ctx context.Context, vec []float32, documentID string) Result {
	if documentID == "" {
		return Result{}
	}
	points, err := e.vectors.Search(ctx, vec, 1, &vectorstore.Filter{Equals: map[string]string{"document_id": documentID}})
	if err != nil || len(points) == 0 {
		return Result{}
	}
	return toResult(points[0])
}

// Edge is one scored relationship between two documents.
type Edge struct {
	SourceChunkID string  `json:"source_chunk_id"`
	TargetChunkID string  `json:"target_chunk_id"`
	Score         float64 `json:"score"`
	Explanation   string  `json:"explanation"`
}

// AnalyzeDocumentRelationships is the analyze_document_relationships tool.
func (e *Engine) AnalyzeDocumentRelationships(ctx context.Context, req Request) ([]Edge, error) {
	candidates, err := e.SemanticSearch(ctx, req)
	if err != nil {
		return nil, err
	}
	var edges []Edge
	for i := 0; i < len(candidates); i++ {
		for j := i + 1; j < len(candidates); j++ {
			a, b := candidates[i], candidates[j]
			score := compositeSimilarity(a, b, e.weights)
			edges = append(edges, Edge{
				SourceChunkID: a.ChunkID,
				TargetChunkID: b.ChunkID,
				Score:         score,
				Explanation:   explainSimilarity(a, b, e.weights),
			})
		}
	}
	sort.SliceStable(edges, func(i, j int) bool { return edges[i].Score > edges[j].Score })
	return edges, nil
}

func explainSimilarity(a, b Result, w CompositeWeights) string {
	parts := []string{
		"entity=" + strconv.FormatFloat(entityOverlap(a, b), 'f', 2, 64),
		"topic=" + strconv.FormatFloat(topicOverlap(a, b), 'f', 2, 64),
		"metadata=" + strconv.FormatFloat(metadataOverlap(a, b), 'f', 2, 64),
		"hierarchy=" + strconv.FormatFloat(hierarchyDistance(a, b), 'f', 2, 64),
	}
	return strings.Join(parts, ", ")
}

// FindSimilarDocuments is the find_similar_documents tool: scores a
// candidate pool against a target (by query text) and returns the top
// maxSimilar by composite similarity.
func (e *Engine) FindSimilarDocuments(ctx context.Context, req Request, maxSimilar int) ([]Result, error) {
	candidates, err := e.SemanticSearch(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	target := candidates[0]
	type scored struct {
		r     Result
		score float64
	}
	scoredList := make([]scored, 0, len(candidates)-1)
	for _, c := range candidates[1:] {
		scoredList = append(scoredList, scored{r: c, score: compositeSimilarity(target, c, e.weights)})
	}
	sort.SliceStable(scoredList, func(i, j int) bool { return scoredList[i].score > scoredList[j].score })

	if maxSimilar <= 0 || maxSimilar > len(scoredList) {
		maxSimilar = len(scoredList)
	}
	out := make([]Result, maxSimilar)
	for i := 0; i < maxSimilar; i++ {
		out[i] = scoredList[i].r
		out[i].Score = scoredList[i].score
	}
	return out, nil
}

// Conflict is one detected metadata/keyword contradiction between two chunks.
type Conflict struct {
	ChunkIDA    string `json:"chunk_id_a"`
	ChunkIDB    string `json:"chunk_id_b"`
	Explanation string `json:"explanation"`
}

var oppositeKeywordPairs = [][2]string{
	{"deprecated", "active"},
	{"enabled", "disabled"},
	{"required", "optional"},
	{"supported", "unsupported"},
}

// DetectDocumentConflicts is the detect_document_conflicts tool: clusters
// candidates by topic, then within each cluster applies a deterministic
// rule set over metadata fields and opposite-keyword pairs.
func (e *Engine) DetectDocumentConflicts(ctx context.Context, req Request) ([]Conflict, error) {
	candidates, err := e.SemanticSearch(ctx, req)
	if err != nil {
		return nil, err
	}
	clusters := singleLinkageClusters(candidates, topicOverlap, 0.2, 0)

	var conflicts []Conflict
	for _, cluster := range clusters {
		for i := 0; i < len(cluster); i++ {
			for j := i + 1; j < len(cluster); j++ {
				a, b := cluster[i], cluster[j]
				if explanation, ok := detectConflict(a, b); ok {
					conflicts = append(conflicts, Conflict{ChunkIDA: a.ChunkID, ChunkIDB: b.ChunkID, Explanation: explanation})
				}
			}
		}
	}
	return conflicts, nil
}

func detectConflict(a, b Result) (string, bool) {
	for k, av := range a.Payload {
		if k == "content" || k == "document_id" {
			continue
		}
		if bv, ok := b.Payload[k]; ok && bv != "" && av != "" && bv != av {
			return "metadata field \"" + k + "\" disagrees: \"" + av + "\" vs \"" + bv + "\"", true
		}
	}
	aContent, bContent := strings.ToLower(a.Content), strings.ToLower(b.Content)
	for _, pair := range oppositeKeywordPairs {
		if strings.Contains(aContent, pair[0]) && strings.Contains(bContent, pair[1]) {
			return "opposing terms: \"" + pair[0] + "\" vs \"" + pair[1] + "\"", true
		}
		if strings.Contains(aContent, pair[1]) && strings.Contains(bContent, pair[0]) {
			return "opposing terms: \"" + pair[1] + "\" vs \"" + pair[0] + "\"", true
		}
	}
	return "", false
}

// FindComplementaryContent is the find_complementary_content tool: scores
// every candidate on topic_overlap × (1 - content_duplication) × context_compatibility.
func (e *Engine) FindComplementaryContent(ctx context.Context, req Request, maxRecommendations int) ([]Result, error) {
	candidates, err := e.SemanticSearch(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	target := candidates[0]

	type scored struct {
		r     Result
		score float64
	}
	var scoredList []scored
	for _, c := range candidates[1:] {
		topic := topicOverlap(target, c)
		duplication := contentDuplication(target, c)
		contextCompat := metadataOverlap(target, c)
		score := topic * (1 - duplication) * contextCompat
		scoredList = append(scoredList, scored{r: c, score: score})
	}
	sort.SliceStable(scoredList, func(i, j int) bool { return scoredList[i].score > scoredList[j].score })

	if maxRecommendations <= 0 || maxRecommendations > len(scoredList) {
		maxRecommendations = len(scoredList)
	}
	out := make([]Result, maxRecommendations)
	for i := 0; i < maxRecommendations; i++ {
		out[i] = scoredList[i].r
		out[i].Score = scoredList[i].score
	}
	return out, nil
}

// contentDuplication approximates near-duplicate content via token Jaccard
// similarity restricted to the shorter content's token count, so a short
// excerpt fully contained in a longer document still scores as a near-duplicate.
func contentDuplication(a, b Result) float64 {
	ta, tb := tokenize(a.Content), tokenize(b.Content)
	shorter := len(ta)
	if len(tb) < shorter {
		shorter = len(tb)
	}
	if shorter == 0 {
		return 0
	}
	inter := 0
	for k := range ta {
		if tb[k] {
			inter++
		}
	}
	return float64(inter) / float64(shorter)
}

// ClusterStrategy selects which similarity signal dominates clustering.
type ClusterStrategy string

const (
	StrategyMixedFeatures ClusterStrategy = "mixed_features"
	StrategyEntityBased   ClusterStrategy = "entity_based"
	StrategyTopicBased    ClusterStrategy = "topic_based"
	StrategyProjectBased  ClusterStrategy = "project_based"
)

// ClusterDocuments is the cluster_documents tool: agglomerative
// single-linkage clustering over the composite similarity (or a
// strategy-selected single signal).
func (e *Engine) ClusterDocuments(ctx context.Context, req Request, strategy ClusterStrategy, maxClusters, minClusterSize int) ([][]Result, error) {
	candidates, err := e.SemanticSearch(ctx, req)
	if err != nil {
		return nil, err
	}

	metric := func(a, b Result) float64 {
		switch strategy {
		case StrategyEntityBased:
			return entityOverlap(a, b)
		case StrategyTopicBased:
			return topicOverlap(a, b)
		case StrategyProjectBased:
			if a.Payload["project_id"] == b.Payload["project_id"] {
				return 1
			}
			return 0
		default:
			return compositeSimilarity(a, b, e.weights)
		}
	}

	clusters := singleLinkageClusters(candidates, metric, 0.15, maxClusters)

	out := make([][]Result, 0, len(clusters))
	for _, c := range clusters {
		if len(c) >= minClusterSize {
			out = append(out, c)
		}
	}
	return out, nil
}

func splitNonEmpty(s, sep string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(s, sep) {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
