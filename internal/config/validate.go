package config

import (
	"fmt"
	"path"
	"strings"

	"github.com/google/shlex"
	"github.com/rileyhilliard/agentdeploy/internal/errors"
	"github.com/rileyhilliard/agentdeploy/pkg/sshutil"
)

// shellMeta are characters that change the meaning of a remote command line.
const shellMeta = "\"'`$;&|<>(){}[]*?!\\#~"

// Validate checks the config for errors and returns structured error messages.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New(errors.ErrConfig,
			"Config is nil",
			"This is unexpected - try reloading the configuration.")
	}

	// Check version
	if cfg.Version > CurrentConfigVersion {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("This config is from the future (version %d, but agentdeploy only knows up to %d)", cfg.Version, CurrentConfigVersion),
			"Upgrade agentdeploy")
	}

	if err := validateAgent(cfg.Agent); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig, err.Error(), "Check the 'agent' section in your .agentdeploy.yaml.")
	}

	if strings.TrimSpace(cfg.Artifact.Path) == "" {
		return errors.New(errors.ErrConfig,
			"artifact.path is empty",
			"Point it at the install package, e.g. static/install.tar.gz")
	}

	if err := validateSSH(cfg.SSH); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig, err.Error(), "Check the 'ssh' section in your .agentdeploy.yaml.")
	}

	if err := validateVerify(cfg.Verify); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig, err.Error(), "Check the 'verify' section in your .agentdeploy.yaml.")
	}

	if err := validateLease(cfg.Lease); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig, err.Error(), "Check the 'lease' section in your .agentdeploy.yaml.")
	}

	if err := validateOutput(cfg.Output); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig, err.Error(), "Check the 'output' section in your .agentdeploy.yaml.")
	}

	for name, host := range cfg.Hosts {
		if err := validateHost(name, host); err != nil {
			return err
		}
	}

	return nil
}

// ValidateShellWord checks that s reaches the remote shell as exactly one
// word with no expansion.
func ValidateShellWord(field, s string) error {
	if s == "" {
		return fmt.Errorf("%s is empty", field)
	}
	if strings.ContainsAny(s, shellMeta) {
		return fmt.Errorf("%s %q contains shell metacharacters", field, s)
	}
	words, err := shlex.Split(s)
	if err != nil {
		return fmt.Errorf("%s %q can't be parsed as a shell word: %v", field, s, err)
	}
	if len(words) != 1 || words[0] != s {
		return fmt.Errorf("%s %q must be a single word with no spaces", field, s)
	}
	return nil
}

func validateAgent(a AgentConfig) error {
	if err := ValidateShellWord("agent.name", a.Name); err != nil {
		return err
	}
	if strings.Contains(a.Name, "/") {
		return fmt.Errorf("agent.name %q must be a file name, not a path", a.Name)
	}

	if err := ValidateShellWord("agent.install_dir", a.InstallDir); err != nil {
		return err
	}
	if !path.IsAbs(a.InstallDir) {
		return fmt.Errorf("agent.install_dir %q must be an absolute path", a.InstallDir)
	}
	// Redeploys run rm -rf on this directory.
	clean := path.Clean(a.InstallDir)
	if strings.Count(clean, "/") < 2 {
		return fmt.Errorf("agent.install_dir %q is too close to / to be removed safely; use a dedicated directory like /opt/%s", a.InstallDir, a.Name)
	}
	return nil
}

func validateSSH(s SSHConfig) error {
	if s.ConnectTimeout <= 0 {
		return fmt.Errorf("ssh.connect_timeout must be positive, got %s", s.ConnectTimeout)
	}
	if s.CheckTimeout <= 0 {
		return fmt.Errorf("ssh.check_timeout must be positive, got %s", s.CheckTimeout)
	}
	if !sshutil.HostKeyPolicy(s.HostKeyPolicy).Valid() {
		return fmt.Errorf("ssh.host_key_policy must be %q or %q, got %q",
			sshutil.HostKeyAcceptAny, sshutil.HostKeyKnownHosts, s.HostKeyPolicy)
	}
	if sshutil.HostKeyPolicy(s.HostKeyPolicy) == sshutil.HostKeyKnownHosts && s.KnownHosts == "" {
		return fmt.Errorf("ssh.known_hosts is required when host_key_policy is %q", sshutil.HostKeyKnownHosts)
	}
	return nil
}

func validateVerify(v VerifyConfig) error {
	if v.SettleDelay < 0 {
		return fmt.Errorf("verify.settle_delay can't be negative, got %s", v.SettleDelay)
	}
	if v.PollInterval < 0 || v.MaxWait < 0 {
		return fmt.Errorf("verify.poll_interval and verify.max_wait can't be negative")
	}
	if v.PollInterval > 0 && v.MaxWait > 0 && v.PollInterval > v.MaxWait {
		return fmt.Errorf("verify.poll_interval (%s) is longer than verify.max_wait (%s)", v.PollInterval, v.MaxWait)
	}
	if v.LogLines <= 0 {
		return fmt.Errorf("verify.log_lines must be positive, got %d", v.LogLines)
	}
	return nil
}

func validateLease(l LeaseConfig) error {
	if !l.Enabled {
		return nil
	}
	switch l.Backend {
	case "local":
	case "redis":
		if l.RedisAddr == "" {
			return fmt.Errorf("lease.redis_addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("lease.backend must be 'local' or 'redis', got %q", l.Backend)
	}
	if l.Wait < 0 {
		return fmt.Errorf("lease.wait can't be negative, got %s", l.Wait)
	}
	if l.TTL <= 0 {
		return fmt.Errorf("lease.ttl must be positive, got %s", l.TTL)
	}
	return nil
}

func validateOutput(o OutputConfig) error {
	switch o.Color {
	case "", "auto", "always", "never":
		return nil
	}
	return fmt.Errorf("output.color must be 'auto', 'always' or 'never', got %q", o.Color)
}

// validateHost checks one entry of the hosts section.
func validateHost(name string, h Host) error {
	if strings.ContainsAny(name, "@/ ") {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("Host name '%s' can't contain '@', '/' or spaces", name),
			"Use a short name like 'web-1' and put the address in 'address'.")
	}
	if strings.TrimSpace(h.Address) == "" {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("Host '%s' has no address", name),
			"Add an address: an IP, hostname, host:port or SSH config alias.")
	}
	if strings.ContainsAny(h.Address, " \t") {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("Host '%s' address %q contains whitespace", name, h.Address),
			"Use an IP, hostname, host:port or SSH config alias.")
	}
	return nil
}
