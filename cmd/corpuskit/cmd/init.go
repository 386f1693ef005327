package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/corpuskit/corpuskit/internal/config"
	"github.com/corpuskit/corpuskit/internal/errtax"
	"github.com/corpuskit/corpuskit/internal/output"
	"github.com/corpuskit/corpuskit/internal/vectorstore/qdrant"
)

func newInitCmd() *cobra.Command {
	var (
		workspace string
		force     bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create or recreate the vector collection for a workspace",
		Long: `Loads the effective configuration for the workspace, connects to the
configured Qdrant instance, and creates the vector collection with the
dimensions of the configured embedding model.

Exit codes: 0 success, 2 configuration error, 3 connection error.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInit(cmd, workspace, force)
		},
	}

	cmd.Flags().StringVar(&workspace, "workspace", ".", "Workspace directory containing corpuskit.yaml")
	cmd.Flags().BoolVar(&force, "force", false, "Recreate the collection even if it already has a different vector size")

	return cmd
}

func runInit(cmd *cobra.Command, workspace string, force bool) error {
	out := output.New(cmd.OutOrStdout())

	cfg, err := config.Load(workspace)
	if err != nil {
		return withExitCode(err, exitConfigError)
	}

	out.Statusf("📁", "Workspace: %s", workspace)
	out.Statusf("🔌", "Qdrant: %s (collection %q)", cfg.Global.Qdrant.URL, cfg.Global.Qdrant.Collection)

	gw, err := qdrant.New(dsnWithAPIKey(cfg.Global.Qdrant), cfg.Global.Qdrant.Collection, cfg.Global.Qdrant.Metric)
	if err != nil {
		return withExitCode(err, classifyInitError(err))
	}
	defer gw.Close()

	if force {
		out.Status("♻️ ", "Recreating collection (--force)")
		if err := gw.DeleteCollection(cmd.Context()); err != nil {
			return withExitCode(err, classifyInitError(err))
		}
	}

	if err := gw.InitCollection(cmd.Context(), cfg.Global.LLM.Dimensions); err != nil {
		return withExitCode(err, classifyInitError(err))
	}

	out.Success(fmt.Sprintf("Collection %q ready (dimensions=%d, metric=%s)", cfg.Global.Qdrant.Collection, cfg.Global.LLM.Dimensions, cfg.Global.Qdrant.Metric))
	return nil
}

// classifyInitError maps an init-path failure onto exit 2 (configuration)
// vs exit 3 (connection), per spec.md §6. Connection problems surface as
// errtax's transient-remote or auth kinds; everything else during init is
// treated as a configuration problem since init has no other failure mode.
func classifyInitError(err error) int {
	var taxErr *errtax.Error
	if errors.As(err, &taxErr) {
		switch taxErr.Kind {
		case errtax.KindTransientRemote, errtax.KindAuth:
			return exitConnectionError
		}
	}
	return exitConfigError
}
