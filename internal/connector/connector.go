// Package connector defines the Source Connector contract and hosts the
// five concrete connectors: git, confluence, jira, public_docs and
// local_file.
package connector

import (
	"context"
	"time"

	"github.com/corpuskit/corpuskit/internal/model"
)

// Observation is one document yielded by a connector's fetch pass.
type Observation struct {
	Document model.Document
	Err      error
}

// Connector fetches documents from one external source. IterDocuments
// streams observations on the returned channel and closes it when the
// fetch pass completes or ctx is cancelled; a connector-level error (e.g.
// auth failure before any document is seen) is returned directly instead of
// being sent on the channel.
type Connector interface {
	IterDocuments(ctx context.Context, projectID string, source model.Source, since time.Time) (<-chan Observation, error)
}

// MaxFileSizeDefault is applied when a source config omits max_file_size.
const MaxFileSizeDefault = 25 * 1024 * 1024
