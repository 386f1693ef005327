package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/corpuskit/corpuskit/internal/logctx"
	"github.com/corpuskit/corpuskit/internal/model"
	"github.com/corpuskit/corpuskit/internal/output"
	"github.com/corpuskit/corpuskit/internal/pipeline"
)

// forceReingest wipes state rows for every source about to be re-ingested,
// so Diff reports every document as new regardless of its content hash.
func forceReingest(ctx context.Context, app *App, project string, sources []model.Source) error {
	for _, src := range sources {
		if err := app.State.WipeSource(ctx, project, src.Name); err != nil {
			return err
		}
	}
	return nil
}

func newIngestCmd() *cobra.Command {
	var (
		workspace  string
		project    string
		sourceType string
		source     string
		force      bool
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Run one ingestion pass over a project's sources",
		Long: `Runs the connector → convert → chunk → embed → upsert pipeline once for
every source in --project (or every source matching --source-type/--source),
then tombstones documents the source no longer yields.

Exit codes: 0 success, 5 partial failure with documents remaining.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runIngest(cmd, workspace, project, sourceType, source, force, logLevel)
		},
	}

	cmd.Flags().StringVar(&workspace, "workspace", ".", "Workspace directory containing corpuskit.yaml")
	cmd.Flags().StringVar(&project, "project", "", "Project id to ingest (required)")
	cmd.Flags().StringVar(&sourceType, "source-type", "", "Restrict to sources of this type (git, confluence, jira, public_docs, local_file)")
	cmd.Flags().StringVar(&source, "source", "", "Restrict to this source name")
	cmd.Flags().BoolVar(&force, "force", false, "Re-ingest every document, ignoring the unchanged-content fast path")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override the configured log level for this run")

	return cmd
}

func runIngest(cmd *cobra.Command, workspace, project, sourceType, source string, force bool, logLevel string) error {
	out := output.New(cmd.OutOrStdout())

	if project == "" {
		return withExitCode(fmt.Errorf("--project is required"), exitConfigError)
	}

	app, err := buildApp(workspace)
	if err != nil {
		return withExitCode(err, exitConfigError)
	}
	defer app.Close()

	lvl := app.Config.Global.LogLevel
	if logLevel != "" {
		lvl = logLevel
	}
	logger, cleanup, err := logctx.Setup(logctx.Config{Level: lvl, FilePath: logctx.DefaultLogPath(), MaxSizeMB: 10, MaxFiles: 5, WriteToStderr: true})
	if err != nil {
		return withExitCode(err, exitConfigError)
	}
	defer cleanup()
	ctx := logctx.WithLogger(cmd.Context(), logger)

	proj, ok := app.Config.Projects[project]
	if !ok {
		return withExitCode(fmt.Errorf("unknown project %q", project), exitConfigError)
	}

	sources, err := sourcesForProject(proj, sourceType, source)
	if err != nil {
		return withExitCode(err, exitConfigError)
	}

	pcfg := pipeline.DefaultConfig()
	p := pipeline.New(pcfg, app.Converter, app.Chunker, app.Embedder, app.State, app.Vectors)

	// since is always zero: the pipeline's own content-hash diff decides
	// new/updated/unchanged per document. --force bypasses that fast path
	// by wiping the relevant state rows up front rather than by passing a
	// cutoff time here.
	since := time.Time{}
	if force {
		if err := forceReingest(ctx, app, project, sources); err != nil {
			return withExitCode(err, exitConfigError)
		}
	}

	var anyFailed bool
	for _, src := range sources {
		conn, ok := app.Connectors[src.Kind]
		if !ok {
			out.Warningf("no connector registered for source type %q, skipping %q", src.Kind, src.Name)
			continue
		}

		out.Statusf("📥", "Ingesting %s (%s)...", src.Name, src.Kind)
		progress, runErr := p.Run(ctx, project, src, conn, since)
		snap := progress.Snapshot()

		if runErr != nil {
			anyFailed = true
			logger.Error("ingest run failed", slog.String("source", src.Name), slog.String("error", runErr.Error()))
			out.Errorf("%s: %v", src.Name, runErr)
			continue
		}

		out.Successf("%s: seen=%d done=%d chunks_embedded=%d", src.Name, snap.DocumentsTotal, snap.DocumentsDone, snap.ChunksEmbedded)
	}

	if anyFailed {
		return withExitCode(fmt.Errorf("ingestion completed with failures; some documents were not processed"), exitPartialFailure)
	}
	return nil
}
