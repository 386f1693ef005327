// Package convert implements the File Converter: best-effort binary-to
// -Markdown conversion for document variants the chunking engine can't
// read directly, with a bounded wall-clock timeout and plain-text fallback.
package convert

import (
	"context"
	"strings"
	"time"

	"github.com/corpuskit/corpuskit/internal/errtax"
)

// Outcome classifies how a conversion attempt concluded.
type Outcome string

const (
	OutcomeConverted        Outcome = "converted"
	OutcomeSkippedTooLarge  Outcome = "skipped_too_large"
	OutcomeFailed           Outcome = "failed"
	OutcomeUnsupported      Outcome = "unsupported"
)

// Result is what a conversion attempt produces.
type Result struct {
	Markdown string
	Outcome  Outcome
	Detail   string
}

// Backend performs the actual binary-to-Markdown transformation for one
// MIME type. Implementations are injected so the concrete conversion
// library stays swappable.
type Backend interface {
	// Supports reports whether this backend can handle the given MIME type.
	Supports(mimeType string) bool
	// Convert turns raw bytes into Markdown.
	Convert(ctx context.Context, content []byte, mimeType, filename string) (string, error)
}

// Converter dispatches to the first matching Backend, subject to a
// wall-clock timeout enforced via context (portable — no Unix signals) and
// a size gate checked before any backend is invoked.
type Converter struct {
	backends      []Backend
	timeout       time.Duration
	maxSizeBytes  int64
}

func New(backends []Backend, timeout time.Duration, maxSizeBytes int64) *Converter {
	return &Converter{backends: backends, timeout: timeout, maxSizeBytes: maxSizeBytes}
}

// Convert runs the configured backends in order. When no backend claims the
// MIME type, text/* content passes through as-is and any other type is
// reported as OutcomeUnsupported.
func (c *Converter) Convert(ctx context.Context, content []byte, mimeType, filename string) Result {
	if c.maxSizeBytes > 0 && int64(len(content)) > c.maxSizeBytes {
		return Result{Outcome: OutcomeSkippedTooLarge, Detail: "content exceeds configured max_file_size_mb"}
	}

	for _, b := range c.backends {
		if !b.Supports(mimeType) {
			continue
		}
		convertCtx, cancel := context.WithTimeout(ctx, c.timeout)
		md, err := b.Convert(convertCtx, content, mimeType, filename)
		timedOut := convertCtx.Err() == context.DeadlineExceeded
		cancel()
		if err != nil {
			if timedOut {
				return Result{Outcome: OutcomeFailed, Detail: errtax.New(errtax.ErrCodeConversionTimeout, "conversion timed out", err).Error()}
			}
			return Result{Outcome: OutcomeFailed, Detail: err.Error()}
		}
		return Result{Markdown: md, Outcome: OutcomeConverted}
	}

	if strings.HasPrefix(mimeType, "text/") {
		return Result{Markdown: string(content), Outcome: OutcomeConverted, Detail: "passthrough: already plain text"}
	}

	return Result{Outcome: OutcomeUnsupported, Detail: "no backend registered for mime type " + mimeType}
}
