// Package pipeline implements the Pipeline Orchestrator: a four-stage
// connector → convert → chunk → embed → upsert flow over bounded channels,
// grounded on the teacher's internal/async background-indexer idiom
// (progress tracking, cooperative cancellation) generalized from a single
// local-index run to one run per (project, source).
package pipeline

import (
	"context"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/corpuskit/corpuskit/internal/chunk"
	"github.com/corpuskit/corpuskit/internal/connector"
	"github.com/corpuskit/corpuskit/internal/convert"
	"github.com/corpuskit/corpuskit/internal/errtax"
	"github.com/corpuskit/corpuskit/internal/llm"
	"github.com/corpuskit/corpuskit/internal/model"
	"github.com/corpuskit/corpuskit/internal/state"
	"github.com/corpuskit/corpuskit/internal/vectorstore"
)

// Config tunes worker counts and embedding batch size.
type Config struct {
	ConvertWorkers int
	ChunkWorkers   int
	EmbedWorkers   int
	EmbedBatchSize int
	ChunkerVersion string
}

func DefaultConfig() Config {
	return Config{ConvertWorkers: 4, ChunkWorkers: 4, EmbedWorkers: 2, EmbedBatchSize: 32, ChunkerVersion: chunk.Version}
}

// Pipeline wires the five components the ingestion engine needs: the File
// Converter, the Chunking Dispatcher, an LLM Provider for embedding, the
// State Store and the Vector Store Gateway. The source Connector is passed
// to each Run.
type Pipeline struct {
	cfg       Config
	converter *convert.Converter
	chunker   *chunk.Dispatcher
	embedder  llm.Provider
	store     *state.Store
	vectors   vectorstore.Gateway
}

func New(cfg Config, converter *convert.Converter, chunker *chunk.Dispatcher, embedder llm.Provider, store *state.Store, vectors vectorstore.Gateway) *Pipeline {
	return &Pipeline{cfg: cfg, converter: converter, chunker: chunker, embedder: embedder, store: store, vectors: vectors}
}

type convertedDoc struct {
	doc   model.Document
	diff  state.DiffResult
}

type chunkedDoc struct {
	doc    model.Document
	chunks []model.Chunk
}

// Run drains conn's observation stream for (projectID, source), converting,
// chunking, embedding and upserting each changed document, then tombstones
// any previously-seen document that the source no longer yields.
func (p *Pipeline) Run(ctx context.Context, projectID string, source model.Source, conn connector.Connector, since time.Time) (*Progress, error) {
	progress := NewProgress()

	obsCh, err := conn.IterDocuments(ctx, projectID, source, since)
	if err != nil {
		progress.SetError(err.Error())
		return progress, err
	}

	seen := make(map[string]bool)
	convertedCh := make(chan convertedDoc, p.cfg.ConvertWorkers*2)
	chunkedCh := make(chan chunkedDoc, p.cfg.ChunkWorkers*2)

	g, gctx := errgroup.WithContext(ctx)

	// Stage 1: convert. Diffing happens here too since it needs the raw
	// content hash before any conversion work is spent on unchanged docs.
	g.Go(func() error {
		defer close(convertedCh)
		progress.SetStage(StageFetching)
		for obs := range obsCh {
			if obs.Err != nil {
				progress.SetError(obs.Err.Error())
				return obs.Err
			}
			doc := obs.Document
			progress.AddDocumentSeen()
			seen[doc.ID] = true

			diff, err := p.store.Diff(gctx, doc.ID, doc.ContentHash)
			if err != nil {
				return err
			}
			if diff == state.DiffUnchanged {
				progress.AddDocumentDone()
				continue
			}

			if doc.Variant == model.DocumentBinaryNeedsConvert {
				progress.SetStage(StageConverting)
				wasSpreadsheet := isSpreadsheetMime(doc.MimeType, doc.Title)
				result := p.converter.Convert(gctx, doc.Content, doc.MimeType, doc.Title)
				_ = p.store.RecordConversionEvent(gctx, doc.ID, string(result.Outcome), result.Detail)
				if result.Outcome != convert.OutcomeConverted {
					progress.AddDocumentDone()
					continue
				}
				doc.Content = []byte(result.Markdown)
				doc.Variant = model.DocumentText
				if wasSpreadsheet {
					if doc.Metadata == nil {
						doc.Metadata = map[string]string{}
					}
					doc.Metadata["is_excel_sheet"] = "true"
				}
			}

			select {
			case convertedCh <- convertedDoc{doc: doc, diff: diff}:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	// Stage 2: chunk, fanned across ChunkWorkers goroutines.
	chunkWG := make(chan struct{}, p.cfg.ChunkWorkers)
	g.Go(func() error {
		defer close(chunkedCh)
		progress.SetStage(StageChunking)
		inner, innerCtx := errgroup.WithContext(gctx)
		for cd := range convertedCh {
			cd := cd
			chunkWG <- struct{}{}
			inner.Go(func() error {
				defer func() { <-chunkWG }()
				chunks, err := p.chunker.Chunk(innerCtx, cd.doc)
				if err != nil {
					return errtax.ChunkingError("chunking document "+cd.doc.ID, err)
				}
				select {
				case chunkedCh <- chunkedDoc{doc: cd.doc, chunks: chunks}:
				case <-innerCtx.Done():
					return innerCtx.Err()
				}
				return nil
			})
		}
		return inner.Wait()
	})

	// Stage 3+4: embed and upsert, batched per document.
	g.Go(func() error {
		progress.SetStage(StageEmbedding)
		inner, innerCtx := errgroup.WithContext(gctx)
		sem := make(chan struct{}, p.cfg.EmbedWorkers)
		for cd := range chunkedCh {
			cd := cd
			sem <- struct{}{}
			inner.Go(func() error {
				defer func() { <-sem }()
				if err := p.embedAndUpsert(innerCtx, projectID, cd); err != nil {
					return err
				}
				progress.AddChunksEmbedded(len(cd.chunks))
				progress.AddDocumentDone()
				return nil
			})
		}
		return inner.Wait()
	})

	if err := g.Wait(); err != nil {
		progress.SetError(err.Error())
		return progress, err
	}

	if err := p.reconcileDeletions(ctx, projectID, source.Name, seen); err != nil {
		progress.SetError(err.Error())
		return progress, err
	}

	progress.SetDone()
	return progress, nil
}

func (p *Pipeline) embedAndUpsert(ctx context.Context, projectID string, cd chunkedDoc) error {
	staleChunkIDs, err := p.store.ChunksFor(ctx, cd.doc.ID)
	if err != nil {
		return err
	}

	texts := make([]string, len(cd.chunks))
	for i, c := range cd.chunks {
		texts[i] = c.Content
	}

	batchSize := p.cfg.EmbedBatchSize
	if batchSize <= 0 {
		batchSize = len(texts)
	}
	if batchSize == 0 {
		batchSize = 1
	}

	var embeddings [][]float32
	for start := 0; start < len(texts); start += batchSize {
		end := start + batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch, err := p.embedder.Embed(ctx, texts[start:end])
		if err != nil {
			return err
		}
		embeddings = append(embeddings, batch...)
	}

	points := make([]vectorstore.Point, len(cd.chunks))
	newChunkIDs := make(map[string]bool, len(cd.chunks))
	for i, c := range cd.chunks {
		c.Embedding = embeddings[i]
		points[i] = vectorstore.Point{ID: c.ID, Vector: c.Embedding, Payload: chunkPayload(projectID, cd.doc, c)}
		newChunkIDs[c.ID] = true
	}

	if err := p.vectors.Upsert(ctx, points); err != nil {
		return err
	}

	var removedChunkIDs []string
	for _, id := range staleChunkIDs {
		if !newChunkIDs[id] {
			removedChunkIDs = append(removedChunkIDs, id)
		}
	}
	if len(removedChunkIDs) > 0 {
		if err := p.vectors.Delete(ctx, removedChunkIDs); err != nil {
			return err
		}
	}

	return p.store.CommitDocument(ctx, cd.doc, cd.chunks, p.cfg.ChunkerVersion)
}

// chunkPayload builds the payload stored alongside a chunk's vector. The
// Retrieval Engine's tools (hierarchy_search, attachment_search, and the
// cross-document analyses) all read these fields back off search hits
// instead of re-querying the state store. No author or parent_title field is
// written, so attachment_search's author filter and hierarchy_search's
// parent_title filter match none of these points.
func chunkPayload(projectID string, doc model.Document, c model.Chunk) map[string]string {
	payload := map[string]string{
		"document_id":   c.DocumentID,
		"project_id":    projectID,
		"chunk_index":   strconv.Itoa(c.Index),
		"source_type":   string(doc.SourceType),
		"source_name":   doc.SourceName,
		"title":         doc.Title,
		"mime_type":     doc.MimeType,
		"content":       c.Content,
		"is_attachment": "false",
	}
	if len(c.HeaderPath) > 0 {
		payload["header_path"] = strings.Join(c.HeaderPath, " > ")
	}
	if len(doc.Ancestors) > 0 {
		payload["ancestors"] = strings.Join(doc.Ancestors, ",")
		payload["depth"] = strconv.Itoa(len(doc.Ancestors))
	}
	if doc.Variant == model.DocumentAttachment {
		payload["is_attachment"] = "true"
		payload["parent_document_id"] = doc.AttachmentOf
	}
	for k, v := range c.Metadata {
		payload[k] = v
	}
	return payload
}

var spreadsheetExtensions = map[string]bool{".xlsx": true, ".xls": true, ".csv": true, ".tsv": true}

// isSpreadsheetMime reports whether a document's pre-conversion MIME type or
// filename extension identifies it as tabular source data, the signal the
// Markdown chunker uses to widen its header-split level to H2 for
// one-H1-per-workbook exports.
func isSpreadsheetMime(mimeType, title string) bool {
	if strings.Contains(mimeType, "spreadsheet") || strings.Contains(mimeType, "ms-excel") || mimeType == "text/csv" {
		return true
	}
	ext := strings.ToLower(filepath.Ext(title))
	return spreadsheetExtensions[ext]
}

// reconcileDeletions tombstones any document the state store remembers for
// this source but which this run's connector pass did not yield.
func (p *Pipeline) reconcileDeletions(ctx context.Context, projectID, sourceName string, seen map[string]bool) error {
	known, err := p.store.DocumentsForSource(ctx, projectID, sourceName)
	if err != nil {
		return err
	}
	for _, id := range known {
		if seen[id] {
			continue
		}
		chunkIDs, err := p.store.ChunksFor(ctx, id)
		if err != nil {
			return err
		}
		if len(chunkIDs) > 0 {
			if err := p.vectors.Delete(ctx, chunkIDs); err != nil {
				return err
			}
		}
		if err := p.store.Tombstone(ctx, id); err != nil {
			return err
		}
	}
	return nil
}
