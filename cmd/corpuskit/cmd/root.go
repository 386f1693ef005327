// Package cmd provides the CLI commands for corpuskit's ingestion side.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/corpuskit/corpuskit/pkg/version"
)

// NewRootCmd creates the root command for the corpuskit CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "corpuskit",
		Short:   "Ingestion engine and MCP retrieval server for corpuskit knowledge bases",
		Version: version.Version,
		Long: `corpuskit ingests documents from git, Confluence, Jira, public doc sites
and local files, chunks and embeds them, and upserts the result into a
Qdrant vector store. The 'serve' command exposes the same collection to
AI coding assistants over the Model Context Protocol.`,
	}

	cmd.SetVersionTemplate("corpuskit version {{.Version}}\n")

	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newIngestCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newProjectCmd())
	cmd.AddCommand(newServeCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
