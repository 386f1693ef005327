// Package memory implements vectorstore.Gateway over coder/hnsw, an
// embedded pure-Go ANN index — the teacher's own vector search engine,
// repurposed here as the in-process fake used by pipeline and retrieval
// tests instead of a mocked Gateway. Lazy deletion (orphaning the id
// mapping rather than calling graph.Delete) follows the teacher's
// HNSWStore, which avoids a coder/hnsw bug when the last node is removed.
package memory

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/coder/hnsw"

	"github.com/corpuskit/corpuskit/internal/vectorstore"
)

type Gateway struct {
	mu         sync.RWMutex
	graph      *hnsw.Graph[uint64]
	dimensions int

	idMap   map[string]uint64
	keyMap  map[uint64]string
	payload map[string]map[string]string
	nextKey uint64
}

func New() *Gateway {
	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = 16
	graph.EfSearch = 20
	graph.Ml = 0.25

	return &Gateway{
		graph:   graph,
		idMap:   make(map[string]uint64),
		keyMap:  make(map[uint64]string),
		payload: make(map[string]map[string]string),
	}
}

func (g *Gateway) InitCollection(_ context.Context, dimensions int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.dimensions = dimensions
	return nil
}

func normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	norm := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= norm
	}
}

func (g *Gateway) Upsert(_ context.Context, points []vectorstore.Point) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, p := range points {
		if g.dimensions != 0 && len(p.Vector) != g.dimensions {
			return fmt.Errorf("memory gateway: dimension mismatch: expected %d, got %d", g.dimensions, len(p.Vector))
		}

		if existingKey, ok := g.idMap[p.ID]; ok {
			delete(g.keyMap, existingKey)
			delete(g.idMap, p.ID)
		}

		key := g.nextKey
		g.nextKey++

		vec := make([]float32, len(p.Vector))
		copy(vec, p.Vector)
		normalize(vec)

		g.graph.Add(hnsw.MakeNode(key, vec))
		g.idMap[p.ID] = key
		g.keyMap[key] = p.ID
		g.payload[p.ID] = p.Payload
	}
	return nil
}

func (g *Gateway) Delete(_ context.Context, ids []string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, id := range ids {
		if key, ok := g.idMap[id]; ok {
			delete(g.keyMap, key)
			delete(g.idMap, id)
			delete(g.payload, id)
		}
	}
	return nil
}

func (g *Gateway) Search(_ context.Context, vector []float32, topK int, filter *vectorstore.Filter) ([]vectorstore.Point, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if topK <= 0 {
		topK = 10
	}
	if g.graph.Len() == 0 {
		return nil, nil
	}

	query := make([]float32, len(vector))
	copy(query, vector)
	normalize(query)

	// Over-fetch before filtering since the ANN index itself has no
	// payload-filter support; this fake is sized for tests, not production
	// query volumes.
	nodes := g.graph.Search(query, topK*4+10)

	out := make([]vectorstore.Point, 0, topK)
	for _, node := range nodes {
		id, ok := g.keyMap[node.Key]
		if !ok {
			continue
		}
		payload := g.payload[id]
		if !matchesFilter(payload, filter) {
			continue
		}
		distance := g.graph.Distance(query, node.Value)
		out = append(out, vectorstore.Point{ID: id, Payload: payload, Score: 1 - distance})
		if len(out) >= topK {
			break
		}
	}
	return out, nil
}

func matchesFilter(payload map[string]string, filter *vectorstore.Filter) bool {
	if filter == nil {
		return true
	}
	for k, v := range filter.Equals {
		if payload[k] != v {
			return false
		}
	}
	for k, vals := range filter.In {
		found := false
		for _, v := range vals {
			if payload[k] == v {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func (g *Gateway) Close() error { return nil }

var _ vectorstore.Gateway = (*Gateway)(nil)
