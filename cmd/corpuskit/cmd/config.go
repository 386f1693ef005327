package cmd

import (
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/corpuskit/corpuskit/internal/config"
	"github.com/corpuskit/corpuskit/internal/output"
)

// redactedConfig is a copy of config.Config with every secret-carrying
// field replaced by a fixed placeholder, per spec.md §6's "print effective
// configuration (secrets redacted)" contract.
func redactedConfig(cfg *config.Config) *config.Config {
	out := *cfg
	out.Global.Qdrant.APIKey = redactIfSet(cfg.Global.Qdrant.APIKey)
	out.Global.LLM.APIKey = redactIfSet(cfg.Global.LLM.APIKey)

	if len(cfg.Projects) > 0 {
		out.Projects = make(map[string]config.ProjectConfig, len(cfg.Projects))
		for pname, proj := range cfg.Projects {
			redactedSources := make(map[string]map[string]any, len(proj.Sources))
			for sname, raw := range proj.Sources {
				redactedSources[sname] = redactSourceConfig(raw)
			}
			out.Projects[pname] = config.ProjectConfig{Collection: proj.Collection, Sources: redactedSources}
		}
	}

	return &out
}

// credentialKeys lists the source-config fields that carry secrets across
// every connector type (git, confluence, jira, publicdocs); redaction is
// key-based rather than per-source-type so a new connector's credential
// field is redacted automatically as long as it follows this naming.
var credentialKeys = map[string]bool{
	"token": true, "pat": true, "api_key": true, "api_token": true,
	"password": true, "secret": true,
}

func redactSourceConfig(raw map[string]any) map[string]any {
	out := make(map[string]any, len(raw))
	for k, v := range raw {
		if credentialKeys[k] {
			if s, ok := v.(string); ok && s != "" {
				out[k] = "***REDACTED***"
				continue
			}
		}
		out[k] = v
	}
	return out
}

func redactIfSet(v string) string {
	if v == "" {
		return ""
	}
	return "***REDACTED***"
}

func newConfigCmd() *cobra.Command {
	var workspace string

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration for a workspace (secrets redacted)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfig(cmd, workspace)
		},
	}

	cmd.Flags().StringVar(&workspace, "workspace", ".", "Workspace directory containing corpuskit.yaml")

	return cmd
}

func runConfig(cmd *cobra.Command, workspace string) error {
	cfg, err := config.Load(workspace)
	if err != nil {
		return withExitCode(err, exitConfigError)
	}

	data, err := yaml.Marshal(redactedConfig(cfg))
	if err != nil {
		return withExitCode(err, exitConfigError)
	}

	out := output.New(cmd.OutOrStdout())
	out.Code(string(data))
	return nil
}
