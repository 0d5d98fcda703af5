package cli

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/rileyhilliard/agentdeploy/internal/artifact"
	"github.com/rileyhilliard/agentdeploy/internal/errors"
	"github.com/rileyhilliard/agentdeploy/internal/ui"
	"github.com/spf13/cobra"
)

var artifactJSON bool

var artifactCmd = &cobra.Command{
	Use:   "artifact",
	Short: "Inspect the local install package",
	Long: `Locate the install package, print its size and blake3 digest, and
check that it holds an executable agent binary at its top level.

Examples:
  agentdeploy artifact
  agentdeploy artifact --json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return artifactCommand(cmd)
	},
}

func init() {
	artifactCmd.Flags().BoolVar(&artifactJSON, "json", false, "output the report as JSON")
	rootCmd.AddCommand(artifactCmd)
}

func artifactCommand(cmd *cobra.Command) error {
	out := cmd.OutOrStdout()

	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return fail(out, artifactJSON, err)
	}

	report, err := artifact.Inspect(cfg.Artifact.Root, cfg.Artifact.Path, cfg.Agent.Name)
	if err != nil {
		return fail(out, artifactJSON, err)
	}
	problem := report.Problem(cfg.Agent.Name)

	if artifactJSON {
		if problem == "" {
			return WriteJSONSuccess(out, report)
		}
		if err := WriteJSONFailure(out, report, &JSONError{Code: errors.ErrTransfer, Message: problem}); err != nil {
			return err
		}
		return errors.NewExitError(1)
	}

	muted := lipgloss.NewStyle().Foreground(ui.ColorMuted)
	fmt.Fprintf(out, "%s\n", report.Path)
	fmt.Fprintf(out, "  %s %d bytes\n", muted.Render("size:   "), report.Size)
	fmt.Fprintf(out, "  %s %s\n", muted.Render("blake3: "), report.Digest)
	fmt.Fprintf(out, "  %s %d\n", muted.Render("entries:"), report.Entries)

	if problem != "" {
		return errors.New(errors.ErrTransfer,
			"The package can't start the agent: "+problem,
			fmt.Sprintf("Rebuild it with an executable %s at the top level of the archive", cfg.Agent.Name))
	}
	fmt.Fprintf(out, "%s %s is present and executable\n",
		lipgloss.NewStyle().Foreground(ui.ColorSuccess).Render(ui.SymbolSuccess), cfg.Agent.Name)
	return nil
}
