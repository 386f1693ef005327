package cmd

import (
	"github.com/spf13/cobra"

	"github.com/corpuskit/corpuskit/internal/logctx"
	"github.com/corpuskit/corpuskit/internal/mcpserver"
	"github.com/corpuskit/corpuskit/internal/retrieval"
)

func newServeCmd() *cobra.Command {
	var (
		workspace string
		transport string
		addr      string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP retrieval server over stdio or HTTP",
		Long: `Exposes the configured vector collection to MCP clients (Claude Code,
Cursor, and other MCP-speaking agents) as search, hierarchy_search,
attachment_search, and the cross-document relationship tools.

Over stdio, only JSON-RPC frames are ever written to stdout; logs go to
stderr/file per MCP_LOG_FILE/MCP_DISABLE_CONSOLE_LOGGING.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, workspace, transport, addr)
		},
	}

	cmd.Flags().StringVar(&workspace, "workspace", ".", "Workspace directory containing corpuskit.yaml")
	cmd.Flags().StringVar(&transport, "transport", "stdio", "Transport: stdio or http")
	cmd.Flags().StringVar(&addr, "addr", ":8787", "Listen address (http transport only)")

	return cmd
}

func runServe(cmd *cobra.Command, workspace, transport, addr string) error {
	app, err := buildApp(workspace)
	if err != nil {
		return withExitCode(err, exitConfigError)
	}
	defer app.Close()

	logCfg := logctx.MCPConfig()
	if transport != "stdio" {
		// Only the stdio transport needs stdout reserved for protocol
		// frames; http serving can mirror logs to the console too.
		logCfg.WriteToStderr = true
	}
	logger, cleanup, err := logctx.Setup(logCfg)
	if err != nil {
		return withExitCode(err, exitConfigError)
	}
	defer cleanup()
	ctx := logctx.WithLogger(cmd.Context(), logger)

	engine := retrieval.New(app.Embedder, app.Vectors).WithWeights(retrieval.CompositeWeights{
		Entity:    app.Config.Global.Retrieval.SimilarityWeights.Entity,
		Topic:     app.Config.Global.Retrieval.SimilarityWeights.Topic,
		Metadata:  app.Config.Global.Retrieval.SimilarityWeights.Metadata,
		Hierarchy: app.Config.Global.Retrieval.SimilarityWeights.Hierarchy,
	})

	server, err := mcpserver.NewServer(engine, logger)
	if err != nil {
		return withExitCode(err, exitConfigError)
	}
	defer server.Close()

	return server.Serve(ctx, transport, addr)
}
