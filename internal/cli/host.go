package cli

import (
	"fmt"
	"sort"

	"github.com/charmbracelet/lipgloss"
	"github.com/rileyhilliard/agentdeploy/internal/config"
	"github.com/rileyhilliard/agentdeploy/internal/errors"
	"github.com/rileyhilliard/agentdeploy/internal/ui"
	"github.com/spf13/cobra"
)

var (
	hostAddUser    string
	hostAddKeyFile string
	hostAddCheck   bool
	hostListJSON   bool
)

var hostCmd = &cobra.Command{
	Use:   "host",
	Short: "Manage configured hosts",
}

var hostAddCmd = &cobra.Command{
	Use:   "add <name> <address>",
	Short: "Add or replace a host in the config file",
	Long: `Add a named host to .agentdeploy.yaml, keeping the rest of the file
(including comments) as it is. Passwords are never written.

Examples:
  agentdeploy host add edge-1 10.0.0.12 --user ops
  agentdeploy host add edge-2 ops@10.0.0.13 --key-file ~/.ssh/edge --check`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return hostAdd(cmd, args[0], args[1])
	},
}

var hostListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured hosts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return hostList(cmd)
	},
}

func init() {
	hostAddCmd.Flags().StringVarP(&hostAddUser, "user", "u", "", "SSH username")
	hostAddCmd.Flags().StringVar(&hostAddKeyFile, "key-file", "", "private key to log in with")
	hostAddCmd.Flags().BoolVar(&hostAddCheck, "check", false, "check the connection before saving")
	hostListCmd.Flags().BoolVar(&hostListJSON, "json", false, "output hosts as JSON")

	hostCmd.AddCommand(hostAddCmd, hostListCmd)
	rootCmd.AddCommand(hostCmd)
}

func hostAdd(cmd *cobra.Command, name, address string) error {
	out := cmd.OutOrStdout()

	cfg, path, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if path == "" {
		return errors.New(errors.ErrConfig,
			"No config file found",
			"Run 'agentdeploy init' first to create one.")
	}

	username, addr := splitUserHost(address)
	if hostAddUser != "" {
		username = hostAddUser
	}
	h := config.Host{Address: addr, Username: username}
	if hostAddKeyFile != "" {
		h.KeyFile = config.ExpandTilde(hostAddKeyFile)
	}

	if hostAddCheck {
		cfg.Hosts[name] = h
		target, err := resolveTarget(cfg, name, CredentialFlags{})
		if err != nil {
			return err
		}
		outcome := newChecker(cfg, nil).Check(target)
		if !outcome.Success {
			return errors.New(errors.ErrSSH,
				fmt.Sprintf("Can't reach %s: %s", target, outcome.Summary()),
				"Fix the connection, or add the host without --check")
		}
		fmt.Fprintf(out, "%s %s\n", lipgloss.NewStyle().Foreground(ui.ColorSuccess).Render(ui.SymbolSuccess), outcome.Summary())
	}

	if err := config.AddHost(path, name, h); err != nil {
		if errors.CodeOf(err) != "" {
			return err
		}
		return errors.WrapWithCode(err, errors.ErrConfig,
			"Couldn't update "+path,
			"Check that the file is valid YAML and writable")
	}

	fmt.Fprintf(out, "Added host %s (%s) to %s\n", name, addr, path)
	return nil
}

// HostOutput is one host in the JSON output of host list.
type HostOutput struct {
	Name     string `json:"name"`
	Address  string `json:"address"`
	Username string `json:"username,omitempty"`
	KeyFile  string `json:"key_file,omitempty"`
}

func hostList(cmd *cobra.Command) error {
	out := cmd.OutOrStdout()

	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return fail(out, hostListJSON, err)
	}

	names := make([]string, 0, len(cfg.Hosts))
	for name := range cfg.Hosts {
		names = append(names, name)
	}
	sort.Strings(names)

	hosts := make([]HostOutput, 0, len(names))
	for _, name := range names {
		h := cfg.Hosts[name]
		hosts = append(hosts, HostOutput{Name: name, Address: h.Address, Username: h.Username, KeyFile: h.KeyFile})
	}

	if hostListJSON {
		return WriteJSONSuccess(out, hosts)
	}
	if len(hosts) == 0 {
		fmt.Fprintln(out, "No hosts configured")
		return nil
	}

	muted := lipgloss.NewStyle().Foreground(ui.ColorMuted)
	for _, h := range hosts {
		auth := "password"
		if h.KeyFile != "" {
			auth = "key " + h.KeyFile
		}
		who := h.Address
		if h.Username != "" {
			who = h.Username + "@" + h.Address
		}
		fmt.Fprintf(out, "%s  %s %s\n", h.Name, who, muted.Render("("+auth+")"))
	}
	return nil
}
