package mcpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	gosdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/corpuskit/corpuskit/internal/retrieval"
	"github.com/corpuskit/corpuskit/pkg/version"
)

// Server is the MCP server: it bridges MCP clients (Claude Code, Cursor,
// any MCP-speaking agent) to the Retrieval Engine's eight tools.
type Server struct {
	mcp     *gosdk.Server
	engine  *retrieval.Engine
	logger  *slog.Logger
	session *Session
}

// NewServer builds an MCP server wrapping engine. Tools are registered
// immediately so ListTools/tools/call work as soon as the session reaches
// Ready.
func NewServer(engine *retrieval.Engine, logger *slog.Logger) (*Server, error) {
	if engine == nil {
		return nil, fmt.Errorf("mcpserver: retrieval engine is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		engine:  engine,
		logger:  logger,
		session: NewSession(),
	}

	s.mcp = gosdk.NewServer(&gosdk.Implementation{
		Name:    "corpuskit",
		Version: version.Version,
	}, nil)

	s.registerTools()

	if err := s.session.Transition(StateInitialized); err != nil {
		return nil, err
	}
	if err := s.session.Transition(StateReady); err != nil {
		return nil, err
	}

	return s, nil
}

// Session exposes the server's lifecycle state, mostly for tests and
// diagnostics (the MCP wire protocol itself doesn't surface it).
func (s *Server) Session() *Session {
	return s.session
}

// Serve starts the server on the given transport ("stdio" or "http") and
// blocks until ctx is canceled or an unrecoverable transport error occurs.
// addr is only used for the http transport.
func (s *Server) Serve(ctx context.Context, transport, addr string) error {
	if err := s.session.Transition(StateServing); err != nil {
		return err
	}
	defer func() {
		_ = s.session.Transition(StateReady)
	}()

	s.logger.Info("starting MCP server", slog.String("transport", transport), slog.String("addr", addr))

	switch transport {
	case "stdio":
		return s.serveStdio(ctx)
	case "http":
		return s.serveHTTP(ctx, addr)
	default:
		return fmt.Errorf("mcpserver: unknown transport %q (supported: stdio, http)", transport)
	}
}

// serveStdio runs the JSON-RPC loop over stdin/stdout. Protocol frames are
// the only thing ever written to stdout; all logging goes through s.logger,
// which callers must have configured to write to stderr/file, never stdout
// (see internal/logctx.MCPConfig).
func (s *Server) serveStdio(ctx context.Context) error {
	err := s.mcp.Run(ctx, &gosdk.StdioTransport{})
	if err != nil && err != context.Canceled {
		s.logger.Error("MCP server stopped with error", slog.String("error", err.Error()))
		return err
	}
	s.logger.Info("MCP server stopped gracefully")
	return nil
}

// serveHTTP runs the JSON-RPC loop over a single HTTP endpoint, using the
// go-sdk's streamable-HTTP transport (request/response plus optional SSE
// streaming), generalized from the teacher's Unix-socket daemon listener
// (internal/daemon/server.go) to an HTTP JSON-RPC surface.
func (s *Server) serveHTTP(ctx context.Context, addr string) error {
	handler := gosdk.NewStreamableHTTPHandler(func(*http.Request) *gosdk.Server {
		return s.mcp
	}, nil)

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("MCP HTTP server shutdown error", slog.String("error", err.Error()))
			return err
		}
		s.logger.Info("MCP HTTP server stopped gracefully")
		return nil
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			s.logger.Error("MCP HTTP server stopped with error", slog.String("error", err.Error()))
			return err
		}
		return nil
	}
}

// Close transitions the session to Closed. It does not close the
// underlying transport — the go-sdk server stops when its Run context is
// canceled, exactly as the teacher's Close documents.
func (s *Server) Close() error {
	if s.session.State() == StateServing {
		if err := s.session.Transition(StateReady); err != nil {
			return err
		}
	}
	if err := s.session.Transition(StateClosing); err != nil {
		return err
	}
	return s.session.Transition(StateClosed)
}
