package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rileyhilliard/agentdeploy/internal/errors"
	"github.com/rileyhilliard/agentdeploy/internal/logger"
	"github.com/rileyhilliard/agentdeploy/internal/ui"
	"github.com/spf13/cobra"
)

// Global flags
var (
	cfgFile   string
	verbose   bool
	colorFlag string
	noColor   bool
)

var rootCmd = &cobra.Command{
	Use:   "agentdeploy",
	Short: "Install and start the agent on remote hosts over SSH",
	Long: `agentdeploy installs the agent package on a remote host, starts it,
and verifies that it is running and listening.

Hosts are named in .agentdeploy.yaml or given as a raw address.

Examples:
  agentdeploy check 10.0.0.12 --user ops
  agentdeploy deploy edge-1
  agentdeploy history edge-1`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger.SetVerbose(verbose)
		if mode := colorOverride(); mode != "" {
			ui.ConfigureColor(mode, cmd.OutOrStdout())
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: search for .agentdeploy.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&colorFlag, "color", "", "color output: auto, always, never")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable color output")
}

// Config returns the value of the --config flag.
func Config() string {
	return cfgFile
}

// colorOverride returns the color mode forced on the command line, or ""
// when the config file decides.
func colorOverride() string {
	if noColor {
		return ui.ColorNever
	}
	return colorFlag
}

// Execute runs the root command and exits with a non-zero status on failure.
func Execute() {
	err := rootCmd.Execute()
	if err == nil {
		return
	}
	os.Exit(reportError(os.Stderr, err))
}

// reportError prints err for a human and returns the process exit code.
// ExitErrors have already been reported by the command that returned them.
func reportError(w io.Writer, err error) int {
	if code, ok := errors.GetExitCode(err); ok {
		return code
	}

	if isUnknownCommandError(err) {
		if name := extractUnknownCommand(err); name != "" {
			fmt.Fprintf(w, "%s Unknown command %q\n\n  To deploy to a host called %s, run: agentdeploy deploy %s\n",
				ui.SymbolFail, name, name, name)
			return 1
		}
	}

	msg := err.Error()
	if errors.CodeOf(err) == "" {
		msg = ui.SymbolFail + " " + msg + "\n"
	}
	fmt.Fprint(w, msg)
	return 1
}

// isUnknownCommandError reports whether cobra rejected the command line itself.
func isUnknownCommandError(err error) bool {
	msg := err.Error()
	return strings.HasPrefix(msg, "unknown command") || strings.HasPrefix(msg, "unknown flag")
}

// extractUnknownCommand pulls the command name out of cobra's
// `unknown command "foo" for "agentdeploy"` message.
func extractUnknownCommand(err error) string {
	msg := err.Error()
	if !strings.HasPrefix(msg, "unknown command") {
		return ""
	}
	start := strings.Index(msg, `"`)
	if start == -1 {
		return ""
	}
	end := strings.Index(msg[start+1:], `"`)
	if end == -1 {
		return ""
	}
	return msg[start+1 : start+1+end]
}
