package doctor

import (
	"fmt"

	"github.com/rileyhilliard/agentdeploy/internal/host"
	"github.com/rileyhilliard/agentdeploy/pkg/sshutil"
)

// HostChecker runs a connection check. *host.Checker satisfies it.
type HostChecker interface {
	Check(target sshutil.Target) host.ConnectionOutcome
}

// HostConnectivityCheck verifies a configured host accepts our credentials.
type HostConnectivityCheck struct {
	HostName string
	Target   sshutil.Target
	Checker  HostChecker
	Outcome  host.ConnectionOutcome // Populated after Run()
}

func (c *HostConnectivityCheck) Name() string     { return fmt.Sprintf("host_%s", c.HostName) }
func (c *HostConnectivityCheck) Category() string { return CategoryHosts }

func (c *HostConnectivityCheck) Run() CheckResult {
	if c.Target.Address == "" {
		return CheckResult{
			Name:       c.Name(),
			Status:     StatusFail,
			Message:    fmt.Sprintf("%s: no address configured", c.HostName),
			Suggestion: "Set an address for the host in the hosts section",
		}
	}

	c.Outcome = c.Checker.Check(c.Target)
	if c.Outcome.Success {
		return CheckResult{
			Name:    c.Name(),
			Status:  StatusPass,
			Message: fmt.Sprintf("%s: %s", c.HostName, c.Outcome.Summary()),
		}
	}

	suggestion := fmt.Sprintf("%s may be offline or firewalled", c.HostName)
	switch c.Outcome.Reason {
	case host.ProbeFailRefused:
		suggestion = "SSH server may not be running on the host"
	case host.ProbeFailAuth:
		suggestion = "Check the username and set AGENTDEPLOY_PASSWORD or key_file"
	case host.ProbeFailTimeout:
		suggestion = "Host may be offline or blocked by firewall"
	case host.ProbeFailHostKey:
		suggestion = "The host key changed or is unknown; check known_hosts"
	}

	return CheckResult{
		Name:       c.Name(),
		Status:     StatusFail,
		Message:    fmt.Sprintf("%s: %s", c.HostName, c.Outcome.Summary()),
		Suggestion: suggestion,
	}
}

func (c *HostConnectivityCheck) Fix() error {
	return nil // Network issues can't be auto-fixed
}

// NewHostsChecks creates connectivity checks for targets, ordered by name.
func NewHostsChecks(targets map[string]sshutil.Target, checker HostChecker) []Check {
	names := sortedKeys(targets)
	checks := make([]Check, 0, len(names))
	for _, name := range names {
		checks = append(checks, &HostConnectivityCheck{
			HostName: name,
			Target:   targets[name],
			Checker:  checker,
		})
	}
	return checks
}
