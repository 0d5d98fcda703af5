package testing

import (
	"errors"
	"fmt"
	"os"
	"path"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/rileyhilliard/agentdeploy/pkg/sshutil"
)

var _ sshutil.SSHClient = (*MockClient)(nil)

// CommandResponse defines a canned response for a specific command pattern.
type CommandResponse struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Error    error
}

// LaunchBehavior decides what happens on the mock host when an agent binary
// is started with nohup.
type LaunchBehavior struct {
	Starts  bool   // process shows up in ps
	Listens bool   // process shows up in netstat
	Log     string // written to the redirected log file
}

// Upload records one SFTP transfer made through the mock.
type Upload struct {
	LocalPath  string
	RemotePath string
	Size       int
}

// MockClient simulates an SSH connection to a deployment target for testing.
// It parses the shell commands the deployer issues and executes them against
// a virtual filesystem and a process table. Canned responses registered with
// SetCommandResponse take precedence over the simulation.
type MockClient struct {
	mu        sync.Mutex
	host      string
	address   string
	fs        *MockFS
	closed    bool
	closes    int
	commands  map[string]CommandResponse // pattern -> response
	history   []string
	uploads   []Upload
	uploadErr error
	running   map[string]bool
	listening map[string]bool
	launch    LaunchBehavior
	archive   map[string]string // extracted file -> content
}

// NewMockClient creates a new mock SSH client with an empty filesystem and
// no running processes. Launched agents start and listen by default.
func NewMockClient(host string) *MockClient {
	return &MockClient{
		host:      host,
		address:   host + ":22",
		fs:        NewMockFS(),
		commands:  make(map[string]CommandResponse),
		running:   make(map[string]bool),
		listening: make(map[string]bool),
		launch:    LaunchBehavior{Starts: true, Listens: true},
		archive:   make(map[string]string),
	}
}

// Exec runs a command against the virtual host.
func (m *MockClient) Exec(cmd string) (stdout, stderr []byte, exitCode int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, nil, -1, errors.New("connection closed")
	}
	m.history = append(m.history, cmd)

	// Check for exact command matches first
	if resp, ok := m.commands[cmd]; ok {
		return resp.Stdout, resp.Stderr, resp.ExitCode, resp.Error
	}

	// Check for pattern matches. Only anchored patterns are regexes, since
	// the deployer's commands are full of regex metacharacters.
	for pattern, resp := range m.commands {
		if !strings.HasPrefix(pattern, "^") {
			continue
		}
		if matched, _ := regexp.MatchString(pattern, cmd); matched {
			return resp.Stdout, resp.Stderr, resp.ExitCode, resp.Error
		}
	}

	return m.parseAndExecute(cmd)
}

// Upload copies a local file into the virtual filesystem. Like SFTP, it
// fails when the remote parent directory doesn't exist.
func (m *MockClient) Upload(localPath, remotePath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return errors.New("connection closed")
	}
	if m.uploadErr != nil {
		return m.uploadErr
	}

	content, err := os.ReadFile(localPath)
	if err != nil {
		return err
	}
	if dir := path.Dir(remotePath); !m.fs.IsDir(dir) {
		return fmt.Errorf("sftp: %s: no such file or directory", dir)
	}
	if err := m.fs.WriteFile(remotePath, content); err != nil {
		return err
	}
	m.uploads = append(m.uploads, Upload{LocalPath: localPath, RemotePath: remotePath, Size: len(content)})
	return nil
}

// Close marks the connection as closed and counts the call.
func (m *MockClient) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.closes++
	return nil
}

// GetHost returns the host name.
func (m *MockClient) GetHost() string {
	return m.host
}

// GetAddress returns the host:port address.
func (m *MockClient) GetAddress() string {
	return m.address
}

// SetCommandResponse registers a canned response for a command pattern.
// A pattern starting with "^" is a regular expression; anything else must
// match the command exactly.
func (m *MockClient) SetCommandResponse(pattern string, resp CommandResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commands[pattern] = resp
}

// SetUploadError makes every subsequent Upload fail with err.
func (m *MockClient) SetUploadError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploadErr = err
}

// SetRunning adds or removes name from the process table.
func (m *MockClient) SetRunning(name string, running bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running[name] = running
}

// SetListening adds or removes name from the listening sockets.
func (m *MockClient) SetListening(name string, listening bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listening[name] = listening
}

// SetLaunchBehavior controls what a nohup launch does.
func (m *MockClient) SetLaunchBehavior(b LaunchBehavior) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.launch = b
}

// SetArchiveContents sets the files that a tar extraction of any archive
// produces, relative to the extraction directory.
func (m *MockClient) SetArchiveContents(files map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.archive = files
}

// GetFS returns the mock filesystem for direct manipulation in tests.
func (m *MockClient) GetFS() *MockFS {
	return m.fs
}

// Commands returns every command passed to Exec, in order.
func (m *MockClient) Commands() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.history...)
}

// Uploads returns every successful Upload, in order.
func (m *MockClient) Uploads() []Upload {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Upload(nil), m.uploads...)
}

// CloseCount returns how many times Close was called.
func (m *MockClient) CloseCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closes
}

// IsClosed reports whether Close has been called.
func (m *MockClient) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

var (
	guardedDirRe  = regexp.MustCompile(`^if \[ -d (\S+) \]; then echo '([^']*)'; else echo '([^']*)'; fi$`)
	guardedTailRe = regexp.MustCompile(`^if \[ -f (\S+) \]; then cat \S+ \| tail -n (\d+); else echo '([^']*)'; fi$`)
	psCountRe     = regexp.MustCompile(`^ps -ef \| grep (\S+) \| grep -v grep \| wc -l$`)
	netstatRe     = regexp.MustCompile(`^netstat -tunlp \| grep (\S+) \| wc -l$`)
	extractRe     = regexp.MustCompile(`^cd (\S+) && tar -xzf (\S+)$`)
	launchRe      = regexp.MustCompile(`^cd (\S+) && nohup \./(\S+) > (\S+) 2>&1 &$`)
	echoRe        = regexp.MustCompile(`^echo '([^']*)'$`)
)

// parseAndExecute handles the shell commands used by the deployer.
// Caller must hold m.mu.
func (m *MockClient) parseAndExecute(cmd string) (stdout, stderr []byte, exitCode int, err error) {
	cmd = strings.TrimSpace(cmd)
	if cmd == "" {
		return nil, nil, 0, nil
	}

	if match := guardedDirRe.FindStringSubmatch(cmd); match != nil {
		if m.fs.IsDir(match[1]) {
			return []byte(match[2] + "\n"), nil, 0, nil
		}
		return []byte(match[3] + "\n"), nil, 0, nil
	}

	if match := guardedTailRe.FindStringSubmatch(cmd); match != nil {
		content, readErr := m.fs.ReadFile(match[1])
		if readErr != nil {
			return []byte(match[3] + "\n"), nil, 0, nil
		}
		n, _ := strconv.Atoi(match[2])
		return []byte(tail(string(content), n)), nil, 0, nil
	}

	if match := psCountRe.FindStringSubmatch(cmd); match != nil {
		return countOutput(m.running[match[1]]), nil, 0, nil
	}

	if match := netstatRe.FindStringSubmatch(cmd); match != nil {
		return countOutput(m.listening[match[1]]), nil, 0, nil
	}

	if match := extractRe.FindStringSubmatch(cmd); match != nil {
		return m.handleExtract(match[1], match[2])
	}

	if match := launchRe.FindStringSubmatch(cmd); match != nil {
		return m.handleLaunch(match[1], match[2], match[3])
	}

	if match := echoRe.FindStringSubmatch(cmd); match != nil {
		return []byte(match[1] + "\n"), nil, 0, nil
	}

	if strings.HasPrefix(cmd, "mkdir ") {
		return m.handleMkdir(cmd)
	}

	if strings.HasPrefix(cmd, "cat ") {
		return m.handleCatRead(cmd)
	}

	if strings.HasPrefix(cmd, "rm -rf ") {
		return m.handleRm(cmd)
	}

	return nil, []byte(fmt.Sprintf("sh: %s: command not found\n", strings.Fields(cmd)[0])), 127, nil
}

// handleMkdir processes: mkdir -p path
func (m *MockClient) handleMkdir(cmd string) ([]byte, []byte, int, error) {
	args := strings.TrimSpace(strings.TrimPrefix(cmd, "mkdir "))
	args = strings.TrimSpace(strings.TrimPrefix(args, "-p "))

	target := extractPath(args)
	if target == "" {
		return nil, []byte("mkdir: missing operand\n"), 1, nil
	}

	if err := m.fs.MkdirAll(target); err != nil {
		return nil, []byte(fmt.Sprintf("mkdir: cannot create directory '%s': %s\n", target, err)), 1, nil
	}
	return nil, nil, 0, nil
}

// handleCatRead processes: cat path
func (m *MockClient) handleCatRead(cmd string) ([]byte, []byte, int, error) {
	target := extractPath(strings.TrimPrefix(cmd, "cat "))
	if target == "" {
		return nil, []byte("cat: missing file operand\n"), 1, nil
	}

	content, err := m.fs.ReadFile(target)
	if err != nil {
		return nil, []byte("cat: " + target + ": No such file or directory\n"), 1, nil
	}
	return content, nil, 0, nil
}

// handleRm processes: rm -rf path
func (m *MockClient) handleRm(cmd string) ([]byte, []byte, int, error) {
	target := extractPath(strings.TrimPrefix(cmd, "rm -rf "))
	if target == "" {
		return nil, []byte("rm: missing operand\n"), 1, nil
	}

	_ = m.fs.Remove(target)
	return nil, nil, 0, nil
}

// handleExtract processes: cd dir && tar -xzf archive
func (m *MockClient) handleExtract(dir, archive string) ([]byte, []byte, int, error) {
	if !m.fs.IsDir(dir) {
		return nil, []byte(fmt.Sprintf("sh: cd: %s: No such file or directory\n", dir)), 2, nil
	}
	if !m.fs.IsFile(path.Join(dir, archive)) {
		return nil, []byte(fmt.Sprintf("tar: %s: Cannot open: No such file or directory\ntar: Error is not recoverable: exiting now\n", archive)), 2, nil
	}
	for name, content := range m.archive {
		_ = m.fs.WriteFile(path.Join(dir, name), []byte(content))
	}
	return nil, nil, 0, nil
}

// handleLaunch processes: cd dir && nohup ./name > log 2>&1 &
// Like a real shell, the backgrounded launch exits 0 even when the binary
// is missing; the failure only shows up in the log.
func (m *MockClient) handleLaunch(dir, name, logPath string) ([]byte, []byte, int, error) {
	if !m.fs.IsDir(dir) {
		return nil, []byte(fmt.Sprintf("sh: cd: %s: No such file or directory\n", dir)), 2, nil
	}
	if !m.fs.IsFile(path.Join(dir, name)) {
		_ = m.fs.WriteFile(logPath, []byte(fmt.Sprintf("nohup: failed to run command './%s': No such file or directory\n", name)))
		return nil, nil, 0, nil
	}

	_ = m.fs.WriteFile(logPath, []byte(m.launch.Log))
	m.running[name] = m.launch.Starts
	m.listening[name] = m.launch.Starts && m.launch.Listens
	return nil, nil, 0, nil
}

func countOutput(present bool) []byte {
	if present {
		return []byte("1\n")
	}
	return []byte("0\n")
}

// tail returns the last n lines of s, keeping a trailing newline if s had one.
func tail(s string, n int) string {
	if s == "" || n <= 0 {
		return ""
	}
	trimmed := strings.TrimSuffix(s, "\n")
	lines := strings.Split(trimmed, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n") + "\n"
}

// extractPath extracts a path from a command argument.
// Handles both quoted and unquoted paths.
func extractPath(arg string) string {
	arg = strings.TrimSpace(arg)

	if strings.HasPrefix(arg, "\"") {
		endQuote := strings.Index(arg[1:], "\"")
		if endQuote != -1 {
			return arg[1 : endQuote+1]
		}
	}
	if strings.HasPrefix(arg, "'") {
		endQuote := strings.Index(arg[1:], "'")
		if endQuote != -1 {
			return arg[1 : endQuote+1]
		}
	}

	parts := strings.Fields(arg)
	if len(parts) > 0 {
		return parts[0]
	}
	return ""
}
