// Package probe reads the state of a deployment target over an open session.
//
// Each helper issues exactly one read-only shell command and translates its
// text output into a typed answer. All knowledge of what those commands
// print lives here; callers only see booleans, strings and errors. Output
// that doesn't match the expected shape is an error, never a guess.
package probe

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rileyhilliard/agentdeploy/internal/errors"
	"github.com/rileyhilliard/agentdeploy/internal/logger"
	"github.com/rileyhilliard/agentdeploy/pkg/sshutil"
)

// NoLogFile is returned in place of log content when the log doesn't exist
// or can't be read.
const NoLogFile = "No log file"

const (
	dirExists    = "exists"
	dirNotExists = "not_exists"
)

// DirectoryExistsCmd returns the command that prints "exists" or "not_exists" for path.
func DirectoryExistsCmd(path string) string {
	return fmt.Sprintf("if [ -d %s ]; then echo '%s'; else echo '%s'; fi", path, dirExists, dirNotExists)
}

// ProcessCountCmd returns the command that counts processes matching name.
func ProcessCountCmd(name string) string {
	return fmt.Sprintf("ps -ef | grep %s | grep -v grep | wc -l", name)
}

// ListenCountCmd returns the command that counts listening sockets owned by name.
func ListenCountCmd(name string) string {
	return fmt.Sprintf("netstat -tunlp | grep %s | wc -l", name)
}

// TailLogCmd returns the command that prints the last lines of path, or the
// NoLogFile sentinel when it doesn't exist.
func TailLogCmd(path string, lines int) string {
	return fmt.Sprintf("if [ -f %s ]; then cat %s | tail -n %d; else echo '%s'; fi", path, path, lines, NoLogFile)
}

// ReadLogCmd returns the command that prints the whole of path.
func ReadLogCmd(path string) string {
	return "cat " + path
}

// Prober runs state probes over a single session.
type Prober struct {
	client sshutil.SSHClient
	log    logger.Logger
}

// New creates a Prober over client. A nil log discards debug output.
func New(client sshutil.SSHClient, log logger.Logger) *Prober {
	if log == nil {
		log = logger.Noop()
	}
	return &Prober{client: client, log: log}
}

// DirectoryExists reports whether path is a directory on the remote host.
func (p *Prober) DirectoryExists(path string) (bool, error) {
	out, err := p.run(DirectoryExistsCmd(path), "Couldn't check for "+path)
	if err != nil {
		return false, err
	}
	switch strings.TrimSpace(out) {
	case dirExists:
		return true, nil
	case dirNotExists:
		return false, nil
	}
	return false, unexpected("directory check", out)
}

// ProcessRunning reports whether at least one process matching name is running.
func (p *Prober) ProcessRunning(name string) (bool, error) {
	n, err := p.count(ProcessCountCmd(name), "process check")
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// PortListening reports whether name owns at least one listening socket.
func (p *Prober) PortListening(name string) (bool, error) {
	n, err := p.count(ListenCountCmd(name), "port check")
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// TailLog returns the last lines of the log at path, or NoLogFile when the
// file doesn't exist.
func (p *Prober) TailLog(path string, lines int) (string, error) {
	return p.run(TailLogCmd(path, lines), "Couldn't read "+path)
}

// ReadLog returns the full content of the log at path, or NoLogFile when it
// can't be read.
func (p *Prober) ReadLog(path string) (string, error) {
	stdout, stderr, exitCode, err := p.client.Exec(ReadLogCmd(path))
	if err != nil {
		return "", err
	}
	if exitCode != 0 {
		p.log.Debug("cat %s exited %d: %s", path, exitCode, strings.TrimSpace(string(stderr)))
		return NoLogFile, nil
	}
	return strings.TrimRight(string(stdout), "\r\n"), nil
}

// run executes cmd and returns stdout without its trailing newline. A
// non-zero exit becomes an EXEC error carrying stderr.
func (p *Prober) run(cmd, step string) (string, error) {
	stdout, stderr, exitCode, err := p.client.Exec(cmd)
	if err != nil {
		return "", err
	}
	out := strings.TrimRight(string(stdout), "\r\n")
	p.log.Debug("%s -> exit %d, %q", cmd, exitCode, out)
	if exitCode != 0 {
		return "", errors.NewCommand(step, exitCode, string(stderr))
	}
	return out, nil
}

// count runs a "... | wc -l" pipeline and parses the count.
func (p *Prober) count(cmd, what string) (int, error) {
	out, err := p.run(cmd, "Couldn't run "+what)
	if err != nil {
		return 0, err
	}
	n, convErr := strconv.Atoi(strings.TrimSpace(out))
	if convErr != nil || n < 0 {
		return 0, unexpected(what, out)
	}
	return n, nil
}

func unexpected(what, out string) *errors.Error {
	return errors.New(errors.ErrExec,
		fmt.Sprintf("Unexpected output from %s: %q", what, out),
		"The remote shell may be missing a standard tool (ps, netstat, wc)")
}
