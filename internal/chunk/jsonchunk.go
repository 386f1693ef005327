package chunk

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"time"
)

// JSONChunkerOptions configures the JSON strategy.
type JSONChunkerOptions struct {
	MaxChunkTokens         int
	MaxJSONSizeForParsing  int // documents larger than this (bytes) skip structural parsing
	MaxArrayItemsPerChunk  int // top-level array elements grouped per chunk
	MaxObjectKeysToProcess int // top-level object members processed before the rest are dropped
	EnableSchemaInference  bool
}

// JSONChunker produces one chunk per top-level object member (or, for a
// top-level array, groups of adjacent elements bounded by
// MaxArrayItemsPerChunk), keeping related structural data together instead
// of splitting by raw byte offset the way the plain-text strategy would.
type JSONChunker struct {
	options JSONChunkerOptions
}

func NewJSONChunker() *JSONChunker {
	return NewJSONChunkerWithOptions(JSONChunkerOptions{})
}

func NewJSONChunkerWithOptions(opts JSONChunkerOptions) *JSONChunker {
	if opts.MaxChunkTokens == 0 {
		opts.MaxChunkTokens = DefaultMaxChunkTokens
	}
	if opts.MaxJSONSizeForParsing == 0 {
		opts.MaxJSONSizeForParsing = 5_000_000
	}
	if opts.MaxArrayItemsPerChunk == 0 {
		opts.MaxArrayItemsPerChunk = 50
	}
	if opts.MaxObjectKeysToProcess == 0 {
		opts.MaxObjectKeysToProcess = 500
	}
	return &JSONChunker{options: opts}
}

func (c *JSONChunker) SupportedExtensions() []string { return []string{".json"} }

func (c *JSONChunker) Chunk(_ context.Context, file *FileInput) ([]*Chunk, error) {
	if len(file.Content) > c.options.MaxJSONSizeForParsing {
		return []*Chunk{c.rawChunk(file)}, nil
	}

	var root any
	if err := json.Unmarshal(file.Content, &root); err != nil {
		// Malformed JSON falls back to a single raw-text chunk rather than
		// failing the whole document; the converter/upstream stage already
		// validated the source is JSON-typed.
		return []*Chunk{c.rawChunk(file)}, nil
	}

	now := time.Now()
	var chunks []*Chunk

	switch v := root.(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for key := range v {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		if len(keys) > c.options.MaxObjectKeysToProcess {
			keys = keys[:c.options.MaxObjectKeysToProcess]
		}

		for i, key := range keys {
			val := v[key]
			b, err := json.MarshalIndent(val, "", "  ")
			if err != nil {
				continue
			}
			metadata := map[string]string{"json_key": key, "chunk_index": strconv.Itoa(i)}
			if c.options.EnableSchemaInference {
				metadata["json_schema"] = inferJSONSchema(val)
			}
			chunks = append(chunks, &Chunk{
				ID:          generateChunkID(file.Path, key+string(b)),
				FilePath:    file.Path,
				Content:     string(b),
				ContentType: ContentTypeJSON,
				Metadata:    metadata,
				CreatedAt:   now,
				UpdatedAt:   now,
			})
		}
	case []any:
		idx := 0
		for start := 0; start < len(v); start += c.options.MaxArrayItemsPerChunk {
			end := start + c.options.MaxArrayItemsPerChunk
			if end > len(v) {
				end = len(v)
			}
			group := v[start:end]
			b, err := json.MarshalIndent(group, "", "  ")
			if err != nil {
				continue
			}
			metadata := map[string]string{"chunk_index": strconv.Itoa(idx)}
			if c.options.EnableSchemaInference && len(group) > 0 {
				metadata["json_schema"] = inferJSONSchema(group[0])
			}
			chunks = append(chunks, &Chunk{
				ID:          generateChunkID(file.Path, string(b)),
				FilePath:    file.Path,
				Content:     string(b),
				ContentType: ContentTypeJSON,
				Metadata:    metadata,
				CreatedAt:   now,
				UpdatedAt:   now,
			})
			idx++
		}
	default:
		return []*Chunk{c.rawChunk(file)}, nil
	}

	if len(chunks) == 0 {
		return []*Chunk{c.rawChunk(file)}, nil
	}
	return chunks, nil
}

// inferJSONSchema records a shallow shape descriptor for a value: its JSON
// type, and for objects, the sorted set of member names.
func inferJSONSchema(v any) string {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b, _ := json.Marshal(keys)
		return "object:" + string(b)
	case []any:
		return "array:" + strconv.Itoa(len(val))
	case string:
		return "string"
	case float64:
		return "number"
	case bool:
		return "boolean"
	case nil:
		return "null"
	default:
		return "unknown"
	}
}

func (c *JSONChunker) rawChunk(file *FileInput) *Chunk {
	now := time.Now()
	return &Chunk{
		ID:          generateChunkID(file.Path, string(file.Content)),
		FilePath:    file.Path,
		Content:     string(file.Content),
		ContentType: ContentTypeJSON,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}
