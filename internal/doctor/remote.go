package doctor

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rileyhilliard/agentdeploy/internal/deploy"
	"github.com/rileyhilliard/agentdeploy/internal/errors"
	"github.com/rileyhilliard/agentdeploy/internal/probe"
	"github.com/rileyhilliard/agentdeploy/pkg/sshutil"
)

// RequiredTools are the remote commands a deployment runs.
var RequiredTools = []string{"ps", "grep", "wc", "netstat", "tar", "nohup", "tail", "cat"}

// MissingToolsCmd prints the name of each tool not found on the remote PATH.
func MissingToolsCmd(tools []string) string {
	return fmt.Sprintf("for t in %s; do command -v $t >/dev/null 2>&1 || echo $t; done", strings.Join(tools, " "))
}

// RemoteToolsCheck verifies the host has the commands a deployment uses.
type RemoteToolsCheck struct {
	HostName string
	Client   sshutil.SSHClient
}

func (c *RemoteToolsCheck) Name() string     { return fmt.Sprintf("remote_tools_%s", c.HostName) }
func (c *RemoteToolsCheck) Category() string { return CategoryRemote }

func (c *RemoteToolsCheck) Run() CheckResult {
	if c.Client == nil {
		return CheckResult{
			Name:    c.Name(),
			Status:  StatusFail,
			Message: fmt.Sprintf("Remote tools (%s): no connection", c.HostName),
		}
	}

	stdout, stderr, exitCode, err := c.Client.Exec(MissingToolsCmd(RequiredTools))
	if err != nil {
		return CheckResult{
			Name:       c.Name(),
			Status:     StatusFail,
			Message:    "Cannot check remote tools: " + errors.MessageOf(err),
			Suggestion: "Check SSH connection",
		}
	}
	if exitCode != 0 {
		return CheckResult{
			Name:       c.Name(),
			Status:     StatusFail,
			Message:    fmt.Sprintf("Cannot check remote tools: exit %d: %s", exitCode, strings.TrimSpace(string(stderr))),
			Suggestion: "The login shell must be POSIX compatible",
		}
	}

	missing := strings.Fields(string(stdout))
	if len(missing) > 0 {
		return CheckResult{
			Name:       c.Name(),
			Status:     StatusFail,
			Message:    fmt.Sprintf("%s: missing %s", c.HostName, strings.Join(missing, ", ")),
			Suggestion: "Install the missing tools (netstat is in net-tools)",
		}
	}
	return CheckResult{
		Name:    c.Name(),
		Status:  StatusPass,
		Message: fmt.Sprintf("%s: all deployment tools present", c.HostName),
	}
}

func (c *RemoteToolsCheck) Fix() error {
	return nil
}

// RemoteInstallCheck reports what a deployment would find on the host.
type RemoteInstallCheck struct {
	HostName string
	Client   sshutil.SSHClient
	Layout   deploy.Layout
}

func (c *RemoteInstallCheck) Name() string     { return fmt.Sprintf("remote_install_%s", c.HostName) }
func (c *RemoteInstallCheck) Category() string { return CategoryRemote }

func (c *RemoteInstallCheck) Run() CheckResult {
	if c.Client == nil {
		return CheckResult{
			Name:    c.Name(),
			Status:  StatusFail,
			Message: fmt.Sprintf("Install directory (%s): no connection", c.HostName),
		}
	}

	p := probe.New(c.Client, nil)
	dir := c.Layout.InstallDir
	agent := c.Layout.AgentName

	exists, err := p.DirectoryExists(dir)
	if err != nil {
		return c.probeFailed(err)
	}
	if !exists {
		return CheckResult{
			Name:    c.Name(),
			Status:  StatusPass,
			Message: fmt.Sprintf("%s: %s not installed yet", c.HostName, agent),
		}
	}

	running, err := p.ProcessRunning(agent)
	if err != nil {
		return c.probeFailed(err)
	}
	if !running {
		return CheckResult{
			Name:       c.Name(),
			Status:     StatusWarn,
			Message:    fmt.Sprintf("%s: %s exists but %s is not running", c.HostName, dir, agent),
			Suggestion: "Deploy with --force to rebuild the install directory",
		}
	}

	listening, err := p.PortListening(agent)
	if err != nil {
		return c.probeFailed(err)
	}
	if !listening {
		return CheckResult{
			Name:       c.Name(),
			Status:     StatusWarn,
			Message:    fmt.Sprintf("%s: %s is running but not listening", c.HostName, agent),
			Suggestion: "Check " + c.Layout.LogPath() + " on the host",
		}
	}
	return CheckResult{
		Name:    c.Name(),
		Status:  StatusPass,
		Message: fmt.Sprintf("%s: %s running", c.HostName, agent),
	}
}

func (c *RemoteInstallCheck) probeFailed(err error) CheckResult {
	return CheckResult{
		Name:       c.Name(),
		Status:     StatusFail,
		Message:    fmt.Sprintf("%s: %s", c.HostName, errors.MessageOf(err)),
		Suggestion: errors.SuggestionOf(err),
	}
}

func (c *RemoteInstallCheck) Fix() error {
	return nil
}

// NewRemoteChecks creates the per-host checks that need an open session.
func NewRemoteChecks(clients map[string]sshutil.SSHClient, layout deploy.Layout) []Check {
	names := sortedKeys(clients)
	checks := make([]Check, 0, 2*len(names))
	for _, name := range names {
		checks = append(checks,
			&RemoteToolsCheck{HostName: name, Client: clients[name]},
			&RemoteInstallCheck{HostName: name, Client: clients[name], Layout: layout},
		)
	}
	return checks
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
