package doctor

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/rileyhilliard/agentdeploy/internal/config"
	"github.com/rileyhilliard/agentdeploy/pkg/sshutil"
)

// HostKeyPolicyCheck reports whether host keys are verified.
type HostKeyPolicyCheck struct {
	Policy     string
	KnownHosts string
}

func (c *HostKeyPolicyCheck) Name() string     { return "ssh_host_keys" }
func (c *HostKeyPolicyCheck) Category() string { return CategorySSH }

func (c *HostKeyPolicyCheck) Run() CheckResult {
	switch sshutil.HostKeyPolicy(c.Policy) {
	case sshutil.HostKeyAcceptAny:
		return CheckResult{
			Name:       c.Name(),
			Status:     StatusWarn,
			Message:    "Host keys are accepted without verification",
			Suggestion: "Set ssh.host_key_policy to known-hosts once your hosts are in known_hosts",
		}
	case sshutil.HostKeyKnownHosts:
		if _, err := os.Stat(c.KnownHosts); err != nil {
			return CheckResult{
				Name:       c.Name(),
				Status:     StatusFail,
				Message:    fmt.Sprintf("known_hosts file not readable: %s", c.KnownHosts),
				Suggestion: "Connect once with ssh to record each host key, or fix ssh.known_hosts",
			}
		}
		return CheckResult{
			Name:    c.Name(),
			Status:  StatusPass,
			Message: fmt.Sprintf("Host keys verified against %s", c.KnownHosts),
		}
	}
	return CheckResult{
		Name:       c.Name(),
		Status:     StatusFail,
		Message:    fmt.Sprintf("Unknown host key policy %q", c.Policy),
		Suggestion: "Use accept-any or known-hosts",
	}
}

func (c *HostKeyPolicyCheck) Fix() error {
	return nil
}

// KeyFileCheck verifies every configured key file can be read.
type KeyFileCheck struct {
	Hosts map[string]config.Host
}

func (c *KeyFileCheck) Name() string     { return "ssh_key_files" }
func (c *KeyFileCheck) Category() string { return CategorySSH }

func (c *KeyFileCheck) Run() CheckResult {
	var withKeys, unreadable []string
	for name, h := range c.Hosts {
		if h.KeyFile == "" {
			continue
		}
		withKeys = append(withKeys, name)
		if _, err := os.ReadFile(h.KeyFile); err != nil {
			unreadable = append(unreadable, fmt.Sprintf("%s (%s)", name, h.KeyFile))
		}
	}
	sort.Strings(unreadable)

	if len(unreadable) > 0 {
		return CheckResult{
			Name:       c.Name(),
			Status:     StatusFail,
			Message:    "Key files not readable: " + strings.Join(unreadable, ", "),
			Suggestion: "Fix the key_file paths or their permissions",
		}
	}
	if len(withKeys) == 0 {
		return CheckResult{
			Name:    c.Name(),
			Status:  StatusPass,
			Message: "No key files configured, hosts use passwords",
		}
	}
	return CheckResult{
		Name:    c.Name(),
		Status:  StatusPass,
		Message: fmt.Sprintf("%d key file%s readable", len(withKeys), pluralize(len(withKeys))),
	}
}

func (c *KeyFileCheck) Fix() error {
	return nil
}

// NewSSHChecks creates the SSH settings checks for cfg.
func NewSSHChecks(cfg *config.Config) []Check {
	return []Check{
		&HostKeyPolicyCheck{Policy: cfg.SSH.HostKeyPolicy, KnownHosts: cfg.SSH.KnownHosts},
		&KeyFileCheck{Hosts: cfg.Hosts},
	}
}
