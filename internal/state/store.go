package state

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/corpuskit/corpuskit/internal/errtax"
	"github.com/corpuskit/corpuskit/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	project_id TEXT NOT NULL,
	source_name TEXT NOT NULL,
	source_type TEXT NOT NULL,
	source_uri TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	variant TEXT NOT NULL,
	title TEXT,
	tombstoned INTEGER NOT NULL DEFAULT 0,
	updated_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_documents_project ON documents(project_id);

CREATE TABLE IF NOT EXISTS chunks (
	id TEXT PRIMARY KEY,
	document_id TEXT NOT NULL,
	chunk_index INTEGER NOT NULL,
	chunker_version TEXT NOT NULL,
	FOREIGN KEY(document_id) REFERENCES documents(id)
);
CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks(document_id);

CREATE TABLE IF NOT EXISTS conversion_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	document_id TEXT NOT NULL,
	outcome TEXT NOT NULL,
	detail TEXT,
	created_at TIMESTAMP NOT NULL
);
`

// Store is the State Store: the embedded database tracking per-document
// ingestion state used to make re-ingestion incremental and idempotent.
type Store struct {
	db    *sql.DB
	lock  *FileLock
	locks stripedLocks
}

// Open opens (creating if necessary) the SQLite database at path in WAL
// mode and applies the schema. It also acquires the process-wide advisory
// file lock so a second process opening the same path fails immediately.
func Open(path string) (*Store, error) {
	lock := NewFileLock(path)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, errtax.New(errtax.ErrCodeStateLocked, "acquiring state store lock", err)
	}
	if !ok {
		return nil, errtax.New(errtax.ErrCodeStateLocked, fmt.Sprintf("state store at %s is locked by another process", path), nil)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		lock.Unlock()
		return nil, errtax.New(errtax.ErrCodeStateCorrupt, "opening state database", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		lock.Unlock()
		return nil, errtax.New(errtax.ErrCodeStateCorrupt, "applying state database schema", err)
	}

	return &Store{db: db, lock: lock}, nil
}

// Close releases the database handle and the advisory lock.
func (s *Store) Close() error {
	err := s.db.Close()
	s.lock.Unlock()
	return err
}

// DiffResult classifies a candidate document against stored state.
type DiffResult string

const (
	DiffNew       DiffResult = "new"
	DiffUpdated   DiffResult = "updated"
	DiffUnchanged DiffResult = "unchanged"
)

// Diff compares a freshly-fetched document's content hash against the
// stored one for the same document id.
func (s *Store) Diff(ctx context.Context, documentID, contentHash string) (DiffResult, error) {
	var stored string
	var tombstoned int
	err := s.db.QueryRowContext(ctx, `SELECT content_hash, tombstoned FROM documents WHERE id = ?`, documentID).Scan(&stored, &tombstoned)
	if err == sql.ErrNoRows {
		return DiffNew, nil
	}
	if err != nil {
		return "", errtax.StateConsistencyError("reading document for diff", err)
	}
	if tombstoned == 1 || stored != contentHash {
		return DiffUpdated, nil
	}
	return DiffUnchanged, nil
}

// CommitDocument atomically replaces a document's row and its chunk rows,
// committing both in a single transaction so a crash mid-write can never
// leave stale chunk rows referencing a document whose content moved on.
func (s *Store) CommitDocument(ctx context.Context, doc model.Document, chunks []model.Chunk, chunkerVersion string) error {
	mu := s.locks.lockFor(doc.ID)
	mu.Lock()
	defer mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errtax.StateConsistencyError("beginning commit transaction", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO documents (id, project_id, source_name, source_type, source_uri, content_hash, variant, title, tombstoned, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?)
		ON CONFLICT(id) DO UPDATE SET
			content_hash = excluded.content_hash,
			variant = excluded.variant,
			title = excluded.title,
			tombstoned = 0,
			updated_at = excluded.updated_at
	`, doc.ID, doc.ProjectID, doc.SourceName, string(doc.SourceType), doc.SourceURI, doc.ContentHash, string(doc.Variant), doc.Title, time.Now())
	if err != nil {
		return errtax.StateConsistencyError("upserting document row", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, doc.ID); err != nil {
		return errtax.StateConsistencyError("clearing stale chunk rows", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO chunks (id, document_id, chunk_index, chunker_version) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return errtax.StateConsistencyError("preparing chunk insert", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		if _, err := stmt.ExecContext(ctx, c.ID, doc.ID, c.Index, chunkerVersion); err != nil {
			return errtax.StateConsistencyError("inserting chunk row", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errtax.StateConsistencyError("committing document transaction", err)
	}
	return nil
}

// Tombstone marks a document (and its chunks stay referenced, for deletion
// from the vector store by the caller) as removed from its source.
func (s *Store) Tombstone(ctx context.Context, documentID string) error {
	mu := s.locks.lockFor(documentID)
	mu.Lock()
	defer mu.Unlock()

	_, err := s.db.ExecContext(ctx, `UPDATE documents SET tombstoned = 1, updated_at = ? WHERE id = ?`, time.Now(), documentID)
	if err != nil {
		return errtax.StateConsistencyError("tombstoning document", err)
	}
	return nil
}

// ChunksFor returns the chunk IDs currently associated with a document.
func (s *Store) ChunksFor(ctx context.Context, documentID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM chunks WHERE document_id = ? ORDER BY chunk_index`, documentID)
	if err != nil {
		return nil, errtax.StateConsistencyError("listing chunks for document", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errtax.StateConsistencyError("scanning chunk row", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DocumentsForSource lists document ids previously ingested from a source,
// used to detect deletions: anything not seen in the current fetch pass.
func (s *Store) DocumentsForSource(ctx context.Context, projectID, sourceName string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM documents
		WHERE project_id = ? AND source_name = ? AND tombstoned = 0
	`, projectID, sourceName)
	if err != nil {
		return nil, errtax.StateConsistencyError("listing documents for source", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errtax.StateConsistencyError("scanning document row", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// WipeSource deletes every document (and its chunk rows) previously
// recorded for a source, so the next run's Diff treats all of that source's
// documents as new. Used by `corpuskit ingest --force`: vector points are
// left untouched since chunk ids are derived deterministically and the
// re-ingest upserts over them.
func (s *Store) WipeSource(ctx context.Context, projectID, sourceName string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errtax.StateConsistencyError("beginning wipe transaction", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM chunks WHERE document_id IN (
			SELECT id FROM documents WHERE project_id = ? AND source_name = ?
		)
	`, projectID, sourceName); err != nil {
		return errtax.StateConsistencyError("wiping chunk rows for source", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE project_id = ? AND source_name = ?`, projectID, sourceName); err != nil {
		return errtax.StateConsistencyError("wiping document rows for source", err)
	}
	return tx.Commit()
}

// SourceStats summarizes one source's ingested-document counts for
// `corpuskit project status`.
type SourceStats struct {
	SourceName    string
	DocumentCount int
	LastUpdated   time.Time
}

// ProjectStats lists per-source document counts for a project, used by the
// project status CLI command; tombstoned documents are excluded.
func (s *Store) ProjectStats(ctx context.Context, projectID string) ([]SourceStats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT source_name, COUNT(*), MAX(updated_at) FROM documents
		WHERE project_id = ? AND tombstoned = 0
		GROUP BY source_name
		ORDER BY source_name
	`, projectID)
	if err != nil {
		return nil, errtax.StateConsistencyError("reading project stats", err)
	}
	defer rows.Close()

	var stats []SourceStats
	for rows.Next() {
		var st SourceStats
		if err := rows.Scan(&st.SourceName, &st.DocumentCount, &st.LastUpdated); err != nil {
			return nil, errtax.StateConsistencyError("scanning project stats row", err)
		}
		stats = append(stats, st)
	}
	return stats, rows.Err()
}

// RecordConversionEvent appends an audit row for a File Converter outcome.
func (s *Store) RecordConversionEvent(ctx context.Context, documentID, outcome, detail string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversion_events (document_id, outcome, detail, created_at) VALUES (?, ?, ?, ?)
	`, documentID, outcome, detail, time.Now())
	if err != nil {
		return errtax.StateConsistencyError("recording conversion event", err)
	}
	return nil
}
