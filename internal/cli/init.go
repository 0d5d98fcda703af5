package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/rileyhilliard/agentdeploy/internal/config"
	"github.com/rileyhilliard/agentdeploy/internal/errors"
	"github.com/rileyhilliard/agentdeploy/internal/ui"
	"github.com/spf13/cobra"
)

// InitOptions holds options for the init command.
type InitOptions struct {
	Path       string // Where to write; default ./.agentdeploy.yaml
	Host       string // Optional first host, address or user@address
	HostName   string // Name for that host
	Agent      string
	InstallDir string
	Overwrite  bool
}

var initOpts InitOptions

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create .agentdeploy.yaml configuration",
	Long: `Write a .agentdeploy.yaml in the current directory with the defaults
filled in, optionally with a first host.

Examples:
  agentdeploy init
  agentdeploy init --host ops@10.0.0.12 --name edge-1
  agentdeploy init --agent nc_agent --install-dir /opt/nc_agent --force`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := initOpts
		if opts.Path == "" {
			opts.Path = Config()
		}
		return Init(cmd, opts)
	},
}

func init() {
	initCmd.Flags().StringVar(&initOpts.Host, "host", "", "first host, as address or user@address")
	initCmd.Flags().StringVar(&initOpts.HostName, "name", "default", "name for --host")
	initCmd.Flags().StringVar(&initOpts.Agent, "agent", "", "agent process name")
	initCmd.Flags().StringVar(&initOpts.InstallDir, "install-dir", "", "remote install directory")
	initCmd.Flags().BoolVarP(&initOpts.Overwrite, "force", "f", false, "overwrite existing config")
	rootCmd.AddCommand(initCmd)
}

// Init creates a new config file.
func Init(cmd *cobra.Command, opts InitOptions) error {
	out := cmd.OutOrStdout()
	path := opts.Path
	if path == "" {
		path = config.ConfigFileName
	}

	if _, err := os.Stat(path); err == nil && !opts.Overwrite {
		if !stdinIsTerminal() {
			return errors.New(errors.ErrConfig,
				fmt.Sprintf("Config file already exists: %s", path),
				"Use --force to overwrite")
		}
		overwrite, err := confirm(fmt.Sprintf("Config file '%s' already exists. Overwrite?", path))
		if err != nil {
			return err
		}
		if !overwrite {
			fmt.Fprintln(out, "Cancelled.")
			return nil
		}
		opts.Overwrite = true
	}

	cfg := config.DefaultConfig()
	if opts.Agent != "" {
		cfg.Agent.Name = opts.Agent
	}
	if opts.InstallDir != "" {
		cfg.Agent.InstallDir = opts.InstallDir
	}
	if opts.Host != "" {
		username, address := splitUserHost(opts.Host)
		cfg.Hosts[opts.HostName] = config.Host{Address: address, Username: username}
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	if err := config.Write(path, cfg, opts.Overwrite); err != nil {
		return err
	}

	successStyle := lipgloss.NewStyle().Foreground(ui.ColorSuccess)
	fmt.Fprintf(out, "%s Created %s\n", successStyle.Render(ui.SymbolSuccess), path)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Next steps:")
	fmt.Fprintln(out, "  agentdeploy artifact        check the install package")
	fmt.Fprintln(out, "  agentdeploy doctor          check everything else")
	fmt.Fprintln(out, "  agentdeploy deploy <host>   deploy the agent")
	return nil
}

// splitUserHost splits "user@address" at the last '@'. Without one the
// username is empty.
func splitUserHost(s string) (username, address string) {
	if i := strings.LastIndex(s, "@"); i != -1 {
		return s[:i], s[i+1:]
	}
	return "", s
}

// confirm asks a yes/no question.
func confirm(title string) (bool, error) {
	var yes bool
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(title).
				Value(&yes),
		),
	)
	if err := form.Run(); err != nil {
		return false, errors.WrapWithCode(err, errors.ErrConfig,
			"Failed to get user input",
			"Try running with --force")
	}
	return yes, nil
}
