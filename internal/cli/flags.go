package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/rileyhilliard/agentdeploy/internal/config"
	"github.com/rileyhilliard/agentdeploy/internal/errors"
	"github.com/rileyhilliard/agentdeploy/pkg/sshutil"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// PasswordEnv supplies the SSH password when --password isn't given.
const PasswordEnv = "AGENTDEPLOY_PASSWORD"

// CredentialFlags holds the flags that say how to log into a host.
type CredentialFlags struct {
	User     string
	Password string
	KeyFile  string
}

// AddCredentialFlags registers --user, --password and --key-file on a command.
func AddCredentialFlags(cmd *cobra.Command, flags *CredentialFlags) {
	cmd.Flags().StringVarP(&flags.User, "user", "u", "", "SSH username (overrides the configured one)")
	cmd.Flags().StringVar(&flags.Password, "password", "", "SSH password (prefer "+PasswordEnv+" or the prompt)")
	cmd.Flags().StringVar(&flags.KeyFile, "key-file", "", "private key to log in with instead of a password")
}

// ParseTimeout parses a timeout flag. Returns zero duration if the flag is empty.
func ParseTimeout(flag string) (time.Duration, error) {
	if flag == "" {
		return 0, nil
	}

	duration, err := time.ParseDuration(flag)
	if err != nil {
		return 0, errors.WrapWithCode(err, errors.ErrConfig,
			fmt.Sprintf("'%s' doesn't look like a valid timeout", flag),
			"Try something like 5s, 2m, or 500ms.")
	}
	if duration < 0 {
		return 0, errors.New(errors.ErrConfig,
			fmt.Sprintf("'%s' is negative", flag),
			"Timeouts must be positive, e.g. 5s.")
	}
	return duration, nil
}

// Stubbed by tests.
var (
	stdinIsTerminal = func() bool { return term.IsTerminal(int(os.Stdin.Fd())) }
	passwordPrompt  = promptPassword
)

// resolveTarget builds the session target for a host name or raw address.
// Flags override the configured host. A key file wins over a password.
func resolveTarget(cfg *config.Config, nameOrAddress string, flags CredentialFlags) (sshutil.Target, error) {
	h, _ := cfg.ResolveHost(nameOrAddress)
	if flags.User != "" {
		h.Username = flags.User
	}
	if flags.KeyFile != "" {
		h.KeyFile = config.ExpandTilde(flags.KeyFile)
	}

	if h.Address == "" {
		return sshutil.Target{}, errors.New(errors.ErrConfig,
			fmt.Sprintf("Host %q has no address", nameOrAddress),
			"Set hosts."+nameOrAddress+".address in .agentdeploy.yaml")
	}
	if h.Username == "" {
		return sshutil.Target{}, errors.New(errors.ErrConfig,
			fmt.Sprintf("No username for %s", nameOrAddress),
			"Pass --user, or add the host with 'agentdeploy host add'")
	}

	target := sshutil.Target{Address: h.Address, Username: h.Username}

	if h.KeyFile != "" {
		key, err := os.ReadFile(h.KeyFile)
		if err != nil {
			return sshutil.Target{}, errors.WrapWithCode(err, errors.ErrConfig,
				"Couldn't read key file "+h.KeyFile,
				"Check the path and its permissions")
		}
		target.Secret = string(key)
		return target, nil
	}

	password, err := resolvePassword(flags.Password, target)
	if err != nil {
		return sshutil.Target{}, err
	}
	target.Secret = password
	return target, nil
}

// resolvePassword takes the password from the flag, then the environment,
// then an interactive prompt. With no terminal and nothing given it returns
// "", which falls back to ssh-agent and the default keys.
func resolvePassword(flag string, target sshutil.Target) (string, error) {
	if flag != "" {
		return flag, nil
	}
	if env := os.Getenv(PasswordEnv); env != "" {
		return env, nil
	}
	if !stdinIsTerminal() {
		return "", nil
	}
	return passwordPrompt(target.String())
}

func promptPassword(who string) (string, error) {
	var password string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Password for " + who).
				Description("Leave empty to use ssh-agent or your default keys").
				EchoMode(huh.EchoModePassword).
				Value(&password),
		),
	)

	if err := form.Run(); err != nil {
		return "", errors.WrapWithCode(err, errors.ErrConfig,
			"Failed to get user input",
			"Pass --password or set "+PasswordEnv)
	}
	return password, nil
}
