// Package model defines the core data types shared by the ingestion engine
// and the retrieval server: projects, sources, documents, chunks and the
// relationships between them.
package model

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// StableHash produces a deterministic identifier from an ordered list of
// parts. It is used for document_id and chunk_id derivation so that
// re-ingesting the same source content yields the same identifiers.
func StableHash(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	sum := h.Sum(nil)
	return hex.EncodeToString(sum[:16])
}

// SourceKind enumerates the connector types a Source can use.
type SourceKind string

const (
	SourceGit         SourceKind = "git"
	SourceConfluence  SourceKind = "confluence"
	SourceJIRA        SourceKind = "jira"
	SourcePublicDocs  SourceKind = "public_docs"
	SourceLocalFile   SourceKind = "local_file"
)

// Project groups one or more Sources that feed a single logical collection.
type Project struct {
	ID          string
	Name        string
	Collection  string
	Sources     []Source
	CreatedAt   time.Time
}

// Source describes one connector configuration within a project.
type Source struct {
	Name string
	Kind SourceKind
	URI  string
	// Config holds the connector-specific settings (credentials excluded;
	// those come from environment variables expanded at load time).
	Config map[string]any
}

// DocumentVariant distinguishes documents whose raw bytes are directly
// chunkable text from ones that need conversion or represent attachments.
type DocumentVariant string

const (
	DocumentText               DocumentVariant = "text"
	DocumentBinaryNeedsConvert DocumentVariant = "binary_needs_conversion"
	DocumentAttachment         DocumentVariant = "attachment"
)

// Document is one ingestible unit retrieved from a Source.
type Document struct {
	ID          string
	ProjectID   string
	SourceName  string
	SourceType  SourceKind
	SourceURI   string
	Title       string
	Variant     DocumentVariant
	MimeType    string
	Content     []byte
	ContentHash string
	// Ancestors holds parent document IDs for hierarchical sources
	// (Confluence pages, nested folders with hierarchy synthesis enabled).
	Ancestors []string
	// AttachmentOf holds the parent document ID when Variant is
	// DocumentAttachment.
	AttachmentOf string
	Metadata     map[string]string
	FetchedAt    time.Time
	UpdatedAt    time.Time
}

// DocumentID derives the stable content-addressed document identifier.
func DocumentID(projectID string, sourceType SourceKind, sourceName, sourceURI string) string {
	return StableHash(projectID, string(sourceType), sourceName, sourceURI)
}

// Chunk is one chunked unit of a Document, ready for embedding.
type Chunk struct {
	ID             string
	DocumentID     string
	ProjectID      string
	Index          int
	Content        string
	HeaderPath     []string
	StartLine      int
	EndLine        int
	Language       string
	ChunkerVersion string
	Metadata       map[string]string
	Embedding      []float32
}

// ChunkID derives the stable chunk identifier.
func ChunkID(documentID string, index int, chunkerVersion string) string {
	return StableHash(documentID, itoa(index), chunkerVersion)
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	neg := i < 0
	if neg {
		i = -i
	}
	var b strings.Builder
	digits := []byte{}
	for i > 0 {
		digits = append(digits, byte('0'+i%10))
		i /= 10
	}
	if neg {
		b.WriteByte('-')
	}
	for j := len(digits) - 1; j >= 0; j-- {
		b.WriteByte(digits[j])
	}
	return b.String()
}

// AttachmentLink records a document's relationship to an attachment file.
type AttachmentLink struct {
	DocumentID   string
	AttachmentID string
	Filename     string
	MimeType     string
}

// Hierarchy captures a parent/child edge between two documents, used by
// hierarchy_search and conflict/complementary analysis.
type Hierarchy struct {
	ParentID string
	ChildID  string
	Depth    int
}
