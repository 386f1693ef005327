// Package mcpserver implements the MCP Server: the JSON-RPC surface that
// exposes the Retrieval Engine's eight tools to MCP clients, grounded on
// the teacher's internal/mcp package (server.go, errors.go, tools.go).
package mcpserver

import (
	"context"
	"errors"
	"fmt"

	"github.com/corpuskit/corpuskit/internal/errtax"
)

// Standard JSON-RPC 2.0 error codes plus corpuskit's own reserved range,
// mirroring the teacher's internal/mcp/errors.go numbering scheme.
const (
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603

	ErrCodeRetrievalUnavailable = -32001
	ErrCodeEmbeddingFailed      = -32002
	ErrCodeTimeout              = -32003
)

// ErrToolNotFound is returned when a tools/call names an unregistered tool.
var ErrToolNotFound = errors.New("tool not found")

// MCPError is a JSON-RPC error: code plus a client-safe message.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("mcp error %d: %s", e.Code, e.Message)
}

// MapError converts an error from the retrieval/vectorstore/llm layers into
// a JSON-RPC error, routing errtax.Error by Kind exactly as the teacher's
// MapError routes AmanError by Category.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}

	var taxErr *errtax.Error
	if errors.As(err, &taxErr) {
		return mapTaxError(taxErr)
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &MCPError{Code: ErrCodeTimeout, Message: "request timed out"}
	case errors.Is(err, context.Canceled):
		return &MCPError{Code: ErrCodeTimeout, Message: "request was canceled"}
	case errors.Is(err, ErrToolNotFound):
		return &MCPError{Code: ErrCodeMethodNotFound, Message: "tool not found"}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: "internal server error"}
	}
}

func mapTaxError(e *errtax.Error) *MCPError {
	message := e.Message
	if e.Suggestion != "" {
		message = fmt.Sprintf("%s %s", e.Message, e.Suggestion)
	}

	switch e.Kind {
	case errtax.KindTransientRemote:
		return &MCPError{Code: ErrCodeRetrievalUnavailable, Message: message}
	case errtax.KindProtocol:
		if e.Code == errtax.ErrCodeProtocolMethodNotFound {
			return &MCPError{Code: ErrCodeMethodNotFound, Message: message}
		}
		if e.Code == errtax.ErrCodeProtocolInvalidRequest {
			return &MCPError{Code: ErrCodeInvalidParams, Message: message}
		}
		return &MCPError{Code: ErrCodeInternalError, Message: message}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: message}
	}
}

// NewInvalidParamsError builds a -32602 error with a custom message.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{Code: ErrCodeInvalidParams, Message: msg}
}

// NewMethodNotFoundError builds a -32601 error naming the unknown tool.
func NewMethodNotFoundError(name string) *MCPError {
	return &MCPError{Code: ErrCodeMethodNotFound, Message: fmt.Sprintf("tool %q not found", name)}
}
