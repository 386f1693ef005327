// Package qdrant implements vectorstore.Gateway over Qdrant's gRPC API,
// adapted from intelligencedev-manifold's qdrantVector: Qdrant only accepts
// UUID or unsigned-integer point ids, so non-UUID document/chunk ids are
// remapped to a deterministic UUID (uuid.NewSHA1 over the original id) and
// the original id is preserved in the payload for the reverse lookup on
// search.
package qdrant

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
	qc "github.com/qdrant/go-client/qdrant"

	"github.com/corpuskit/corpuskit/internal/errtax"
	"github.com/corpuskit/corpuskit/internal/vectorstore"
)

// payloadIDField stores the pre-remap id so search results can be mapped
// back to the caller's own document/chunk identifiers.
const payloadIDField = "_original_id"

type Gateway struct {
	client     *qc.Client
	collection string
	metric     string
}

// New parses a Qdrant DSN (host[:port], optional ?api_key=... query param)
// and returns a Gateway bound to collection. Call InitCollection before use.
func New(dsn, collection, metric string) (*Gateway, error) {
	if collection == "" {
		return nil, fmt.Errorf("qdrant: collection name is required")
	}
	if !strings.Contains(dsn, "://") {
		dsn = "http://" + dsn
	}
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, errtax.ConfigError("parsing qdrant url", err)
	}
	host := parsed.Hostname()
	if host == "" {
		host = "localhost"
	}
	port := parsed.Port()
	if port == "" {
		port = "6334"
	}
	portNum, err := strconv.Atoi(port)
	if err != nil {
		return nil, errtax.ConfigError("invalid qdrant port", err)
	}

	cfg := &qc.Config{Host: host, Port: portNum}
	if parsed.Scheme == "https" {
		cfg.UseTLS = true
	}
	if apiKey := parsed.Query().Get("api_key"); apiKey != "" {
		cfg.APIKey = apiKey
	}

	client, err := qc.NewClient(cfg)
	if err != nil {
		return nil, errtax.TransientRemoteError("creating qdrant client", err)
	}

	return &Gateway{client: client, collection: collection, metric: strings.ToLower(strings.TrimSpace(metric))}, nil
}

func (g *Gateway) InitCollection(ctx context.Context, dimensions int) error {
	exists, err := g.client.CollectionExists(ctx, g.collection)
	if err != nil {
		return errtax.TransientRemoteError("checking qdrant collection existence", err)
	}
	if exists {
		return nil
	}
	if dimensions <= 0 {
		return errtax.ConfigError("qdrant requires dimensions > 0", nil)
	}

	var distance qc.Distance
	switch g.metric {
	case "l2", "euclidean":
		distance = qc.Distance_Euclid
	case "ip", "dot":
		distance = qc.Distance_Dot
	case "manhattan":
		distance = qc.Distance_Manhattan
	default:
		distance = qc.Distance_Cosine
	}

	err = g.client.CreateCollection(ctx, &qc.CreateCollection{
		CollectionName: g.collection,
		VectorsConfig: qc.NewVectorsConfig(&qc.VectorParams{
			Size:     uint64(dimensions),
			Distance: distance,
		}),
	})
	if err != nil {
		return errtax.TransientRemoteError("creating qdrant collection", err)
	}
	return nil
}

func remapID(id string) (uuidStr string, remapped bool) {
	if _, err := uuid.Parse(id); err == nil {
		return id, false
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(id)).String(), true
}

func (g *Gateway) Upsert(ctx context.Context, points []vectorstore.Point) error {
	qpoints := make([]*qc.PointStruct, 0, len(points))
	for _, p := range points {
		uuidStr, remapped := remapID(p.ID)

		payload := make(map[string]any, len(p.Payload)+1)
		for k, v := range p.Payload {
			payload[k] = v
		}
		if remapped {
			payload[payloadIDField] = p.ID
		}

		vec := make([]float32, len(p.Vector))
		copy(vec, p.Vector)

		qpoints = append(qpoints, &qc.PointStruct{
			Id:      qc.NewIDUUID(uuidStr),
			Vectors: qc.NewVectorsDense(vec),
			Payload: qc.NewValueMap(payload),
		})
	}

	_, err := g.client.Upsert(ctx, &qc.UpsertPoints{CollectionName: g.collection, Points: qpoints})
	if err != nil {
		return errtax.TransientRemoteError("upserting points to qdrant", err)
	}
	return nil
}

func (g *Gateway) Delete(ctx context.Context, ids []string) error {
	qids := make([]*qc.PointId, 0, len(ids))
	for _, id := range ids {
		uuidStr, _ := remapID(id)
		qids = append(qids, qc.NewIDUUID(uuidStr))
	}
	_, err := g.client.Delete(ctx, &qc.DeletePoints{
		CollectionName: g.collection,
		Points:         qc.NewPointsSelector(qids...),
	})
	if err != nil {
		return errtax.TransientRemoteError("deleting points from qdrant", err)
	}
	return nil
}

func (g *Gateway) Search(ctx context.Context, vector []float32, topK int, filter *vectorstore.Filter) ([]vectorstore.Point, error) {
	if topK <= 0 {
		topK = 10
	}
	vec := make([]float32, len(vector))
	copy(vec, vector)

	var qfilter *qc.Filter
	if filter != nil && (len(filter.Equals) > 0 || len(filter.In) > 0) {
		must := make([]*qc.Condition, 0, len(filter.Equals)+len(filter.In))
		for k, v := range filter.Equals {
			must = append(must, qc.NewMatch(k, v))
		}
		for k, vals := range filter.In {
			must = append(must, qc.NewMatchKeywords(k, vals...))
		}
		qfilter = &qc.Filter{Must: must}
	}

	limit := uint64(topK)
	result, err := g.client.Query(ctx, &qc.QueryPoints{
		CollectionName: g.collection,
		Query:          qc.NewQueryDense(vec),
		Limit:          &limit,
		Filter:         qfilter,
		WithPayload:    qc.NewWithPayload(true),
	})
	if err != nil {
		return nil, errtax.TransientRemoteError("querying qdrant", err)
	}

	out := make([]vectorstore.Point, 0, len(result))
	for _, hit := range result {
		uuidStr := hit.Id.GetUuid()
		if uuidStr == "" {
			uuidStr = hit.Id.String()
		}

		payload := make(map[string]string)
		var originalID string
		for k, v := range hit.Payload {
			if k == payloadIDField {
				originalID = v.GetStringValue()
				continue
			}
			payload[k] = v.GetStringValue()
		}

		id := originalID
		if id == "" {
			id = uuidStr
		}

		out = append(out, vectorstore.Point{ID: id, Payload: payload, Score: hit.Score})
	}
	return out, nil
}

// DeleteCollection drops the collection entirely, used by `corpuskit init
// --force` to recreate it from scratch when the configured embedding model
// (and therefore vector size) has changed.
func (g *Gateway) DeleteCollection(ctx context.Context) error {
	if err := g.client.DeleteCollection(ctx, g.collection); err != nil {
		return errtax.TransientRemoteError("deleting qdrant collection", err)
	}
	return nil
}

func (g *Gateway) Close() error {
	return g.client.Close()
}

var _ vectorstore.Gateway = (*Gateway)(nil)
