// Package vectorstore defines the Vector Store Gateway contract and its two
// implementations: a production adapter over Qdrant and an in-memory fake
// over an embedded ANN index, used in tests.
package vectorstore

import "context"

// Filter is a small equality/in-set DSL translated by each backend into its
// native query representation.
type Filter struct {
	Equals map[string]string
	In     map[string][]string
}

// Point is one vector plus its payload, as stored or returned by a Gateway.
type Point struct {
	ID      string
	Vector  []float32
	Payload map[string]string
	Score   float32
}

// Gateway is the contract the retrieval engine and the pipeline's upserter
// stage use; it never depends on a specific vector database SDK.
type Gateway interface {
	InitCollection(ctx context.Context, dimensions int) error
	Upsert(ctx context.Context, points []Point) error
	Delete(ctx context.Context, ids []string) error
	Search(ctx context.Context, vector []float32, topK int, filter *Filter) ([]Point, error)
	Close() error
}
