package cmd

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/corpuskit/corpuskit/internal/config"
	"github.com/corpuskit/corpuskit/internal/output"
)

func newProjectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Inspect and validate project configuration",
	}

	cmd.AddCommand(newProjectListCmd())
	cmd.AddCommand(newProjectStatusCmd())
	cmd.AddCommand(newProjectValidateCmd())

	return cmd
}

func newProjectListCmd() *cobra.Command {
	var (
		workspace string
		format    string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List configured projects and their sources",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runProjectList(cmd, workspace, format)
		},
	}
	cmd.Flags().StringVar(&workspace, "workspace", ".", "Workspace directory containing corpuskit.yaml")
	cmd.Flags().StringVar(&format, "format", "text", "Output format: text or json")
	return cmd
}

func newProjectStatusCmd() *cobra.Command {
	var (
		workspace string
		projectID string
		format    string
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show per-source document counts for a project",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runProjectStatus(cmd, workspace, projectID, format)
		},
	}
	cmd.Flags().StringVar(&workspace, "workspace", ".", "Workspace directory containing corpuskit.yaml")
	cmd.Flags().StringVar(&projectID, "project-id", "", "Project id to report on (required)")
	cmd.Flags().StringVar(&format, "format", "text", "Output format: text or json")
	return cmd
}

func newProjectValidateCmd() *cobra.Command {
	var (
		workspace string
		projectID string
		format    string
	)

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a project's source configuration without ingesting",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runProjectValidate(cmd, workspace, projectID, format)
		},
	}
	cmd.Flags().StringVar(&workspace, "workspace", ".", "Workspace directory containing corpuskit.yaml")
	cmd.Flags().StringVar(&projectID, "project-id", "", "Project id to validate (validates all projects if omitted)")
	cmd.Flags().StringVar(&format, "format", "text", "Output format: text or json")
	return cmd
}

type projectSummary struct {
	ProjectID   string   `json:"project_id"`
	Collection  string   `json:"collection"`
	SourceCount int      `json:"source_count"`
	SourceNames []string `json:"source_names"`
}

func runProjectList(cmd *cobra.Command, workspace, format string) error {
	cfg, err := config.Load(workspace)
	if err != nil {
		return withExitCode(err, exitConfigError)
	}

	var ids []string
	for id := range cfg.Projects {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var summaries []projectSummary
	for _, id := range ids {
		proj := cfg.Projects[id]
		var names []string
		for name := range proj.Sources {
			names = append(names, name)
		}
		sort.Strings(names)
		summaries = append(summaries, projectSummary{
			ProjectID:   id,
			Collection:  proj.Collection,
			SourceCount: len(names),
			SourceNames: names,
		})
	}

	if format == "json" {
		return writeJSON(cmd, summaries)
	}

	out := output.New(cmd.OutOrStdout())
	if len(summaries) == 0 {
		out.Status("", "no projects configured")
		return nil
	}
	for _, s := range summaries {
		out.Statusf("📦", "%s (%d sources: %v)", s.ProjectID, s.SourceCount, s.SourceNames)
	}
	return nil
}

type sourceStatusRow struct {
	SourceName    string `json:"source_name"`
	DocumentCount int    `json:"document_count"`
	LastUpdated   string `json:"last_updated"`
}

func runProjectStatus(cmd *cobra.Command, workspace, projectID, format string) error {
	if projectID == "" {
		return withExitCode(fmt.Errorf("--project-id is required"), exitConfigError)
	}

	app, err := buildApp(workspace)
	if err != nil {
		return withExitCode(err, exitConfigError)
	}
	defer app.Close()

	if _, ok := app.Config.Projects[projectID]; !ok {
		return withExitCode(fmt.Errorf("unknown project %q", projectID), exitConfigError)
	}

	stats, err := app.State.ProjectStats(cmd.Context(), projectID)
	if err != nil {
		return withExitCode(err, exitConfigError)
	}

	var rows []sourceStatusRow
	var total int
	for _, st := range stats {
		rows = append(rows, sourceStatusRow{
			SourceName:    st.SourceName,
			DocumentCount: st.DocumentCount,
			LastUpdated:   st.LastUpdated.Format("2006-01-02T15:04:05Z07:00"),
		})
		total += st.DocumentCount
	}

	if format == "json" {
		return writeJSON(cmd, map[string]any{"project_id": projectID, "total_documents": total, "sources": rows})
	}

	out := output.New(cmd.OutOrStdout())
	out.Statusf("📊", "%s: %d documents across %d sources", projectID, total, len(rows))
	for _, r := range rows {
		out.Statusf("  •", "%s: %d documents (last updated %s)", r.SourceName, r.DocumentCount, r.LastUpdated)
	}
	return nil
}

type validationResult struct {
	ProjectID string   `json:"project_id"`
	Valid     bool     `json:"valid"`
	Errors    []string `json:"errors,omitempty"`
}

func runProjectValidate(cmd *cobra.Command, workspace, projectID, format string) error {
	cfg, err := config.Load(workspace)
	if err != nil {
		return withExitCode(err, exitConfigError)
	}

	var ids []string
	if projectID != "" {
		if _, ok := cfg.Projects[projectID]; !ok {
			return withExitCode(fmt.Errorf("unknown project %q", projectID), exitConfigError)
		}
		ids = []string{projectID}
	} else {
		for id := range cfg.Projects {
			ids = append(ids, id)
		}
		sort.Strings(ids)
	}

	var results []validationResult
	anyInvalid := false
	for _, id := range ids {
		errs := validateProjectSources(cfg.Projects[id])
		results = append(results, validationResult{ProjectID: id, Valid: len(errs) == 0, Errors: errs})
		if len(errs) > 0 {
			anyInvalid = true
		}
	}

	if format == "json" {
		if err := writeJSON(cmd, results); err != nil {
			return err
		}
	} else {
		out := output.New(cmd.OutOrStdout())
		for _, r := range results {
			if r.Valid {
				out.Successf("%s: valid", r.ProjectID)
				continue
			}
			out.Errorf("%s: %d problem(s)", r.ProjectID, len(r.Errors))
			for _, e := range r.Errors {
				out.Statusf("  •", "%s", e)
			}
		}
	}

	if anyInvalid {
		return withExitCode(fmt.Errorf("one or more projects failed validation"), exitConfigError)
	}
	return nil
}

// validateProjectSources checks each source's required fields given its
// type, beyond config.Validate's type-name check — git needs a repo URL,
// confluence/jira need a base URL (credentials are not checked), publicdocs
// needs a base_url, local_file needs a root path.
func validateProjectSources(proj config.ProjectConfig) []string {
	var errs []string
	var names []string
	for name := range proj.Sources {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		src := proj.Sources[name]
		kind, _ := src["type"].(string)
		switch kind {
		case "git":
			if s, _ := src["repo_url"].(string); s == "" {
				errs = append(errs, fmt.Sprintf("source %q: git source requires repo_url", name))
			}
		case "confluence", "jira":
			if s, _ := src["base_url"].(string); s == "" {
				errs = append(errs, fmt.Sprintf("source %q: %s source requires base_url", name, kind))
			}
		case "public_docs":
			if s, _ := src["base_url"].(string); s == "" {
				errs = append(errs, fmt.Sprintf("source %q: public_docs source requires base_url", name))
			}
		case "local_file":
			if s, _ := src["root"].(string); s == "" {
				errs = append(errs, fmt.Sprintf("source %q: local_file source requires root", name))
			}
		default:
			errs = append(errs, fmt.Sprintf("source %q: unknown type %q", name, kind))
		}
	}
	return errs
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
