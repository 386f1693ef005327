package mcpserver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/corpuskit/corpuskit/internal/errtax"
)

func TestMapErrorNilIsNil(t *testing.T) {
	assert.Nil(t, MapError(nil))
}

func TestMapErrorTransientRemote(t *testing.T) {
	err := errtax.TransientRemoteError("embedder down", nil)
	mapped := MapError(err)
	assert.Equal(t, ErrCodeRetrievalUnavailable, mapped.Code)
}

func TestMapErrorContextCanceled(t *testing.T) {
	mapped := MapError(context.Canceled)
	assert.Equal(t, ErrCodeTimeout, mapped.Code)
}

func TestMapErrorToolNotFound(t *testing.T) {
	mapped := MapError(ErrToolNotFound)
	assert.Equal(t, ErrCodeMethodNotFound, mapped.Code)
}

func TestMapErrorDefaultsToInternal(t *testing.T) {
	mapped := MapError(assert.AnError)
	assert.Equal(t, ErrCodeInternalError, mapped.Code)
}

func TestNewInvalidParamsError(t *testing.T) {
	e := NewInvalidParamsError("query is required")
	assert.Equal(t, ErrCodeInvalidParams, e.Code)
	assert.Equal(t, "query is required", e.Message)
}
