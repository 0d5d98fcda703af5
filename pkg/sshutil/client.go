package sshutil

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/kevinburke/ssh_config"
	"github.com/rileyhilliard/agentdeploy/internal/errors"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
)

// DefaultTimeout bounds the TCP connect and the SSH handshake of a deployment session.
const DefaultTimeout = 10 * time.Second

// Target identifies a host and the credentials used to log into it.
//
// Secret is either a password or PEM-encoded private key material. Key
// material is recognised by its "-----BEGIN" header. An empty Secret falls
// back to the SSH agent and the default keys under ~/.ssh.
type Target struct {
	Address  string
	Username string
	Secret   string
}

// IsKey reports whether Secret holds private key material rather than a password.
func (t Target) IsKey() bool {
	return strings.HasPrefix(strings.TrimSpace(t.Secret), "-----BEGIN")
}

// String renders the target without its secret.
func (t Target) String() string {
	if t.Username == "" {
		return t.Address
	}
	return t.Username + "@" + t.Address
}

// HostKeyPolicy controls how the server's host key is verified.
type HostKeyPolicy string

const (
	// HostKeyAcceptAny trusts whatever key the server presents.
	HostKeyAcceptAny HostKeyPolicy = "accept-any"
	// HostKeyKnownHosts verifies the key against a known_hosts file.
	HostKeyKnownHosts HostKeyPolicy = "known-hosts"
)

// Valid reports whether p is one of the supported policies.
func (p HostKeyPolicy) Valid() bool {
	return p == HostKeyAcceptAny || p == HostKeyKnownHosts
}

// DialOptions tunes a single Dial call. The zero value dials with
// DefaultTimeout and HostKeyAcceptAny.
type DialOptions struct {
	Timeout        time.Duration
	HostKeyPolicy  HostKeyPolicy
	KnownHostsPath string // defaults to ~/.ssh/known_hosts
}

func (o DialOptions) withDefaults() DialOptions {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.HostKeyPolicy == "" {
		o.HostKeyPolicy = HostKeyAcceptAny
	}
	if o.KnownHostsPath == "" {
		o.KnownHostsPath = filepath.Join(homeDir(), ".ssh", "known_hosts")
	}
	return o
}

// Client wraps an SSH connection with additional metadata.
// A Client is owned by exactly one caller and is not reused after Close.
type Client struct {
	*ssh.Client
	Host    string // The address as given by the caller
	Address string // The resolved address (host:port)

	closeOnce sync.Once
	closeErr  error
}

// matchWarningOnce ensures the SSH config Match directive warning is only shown once per process.
var matchWarningOnce sync.Once

// WarningHandler is a function that handles warning messages.
// If nil, warnings are printed to stderr via log.Printf.
var WarningHandler func(message string)

// emitWarning sends a warning through the configured handler or falls back to log.Printf.
func emitWarning(message string) {
	if WarningHandler != nil {
		WarningHandler(message)
	} else {
		log.Printf("Warning: %s", message)
	}
}

// Dial establishes an authenticated SSH session to target.
// The address can be:
//   - A hostname or IP (e.g., "192.168.1.100")
//   - A hostname:port (e.g., "192.168.1.100:2222")
//   - An SSH config alias (e.g., "agent-box"), whose HostName and Port are
//     read from ~/.ssh/config
//
// Failures are structured errors with code ErrAuth (credentials rejected),
// ErrTimeout (connect or handshake deadline), ErrNetwork (refused,
// unreachable, DNS) or ErrSSH (host key verification).
func Dial(target Target, opts DialOptions) (*Client, error) {
	opts = opts.withDefaults()
	settings := resolveSSHSettings(target.Address, target.Username)

	config, err := buildSSHConfig(settings, target, opts)
	if err != nil {
		var structErr *errors.Error
		if stderrors.As(err, &structErr) {
			return nil, err
		}
		return nil, errors.WrapWithCode(err, errors.ErrSSH,
			fmt.Sprintf("Couldn't set up SSH for '%s'", target.Address),
			"Check the credentials and host key settings")
	}

	address := settings.address()
	conn, err := net.DialTimeout("tcp", address, opts.Timeout)
	if err != nil {
		return nil, errors.WrapWithCode(err, codeForDialError(err),
			fmt.Sprintf("Can't reach '%s' at %s", target.Address, address),
			suggestionForDialError(err))
	}

	// The handshake shares the same deadline as the connect.
	_ = conn.SetDeadline(time.Now().Add(opts.Timeout))
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, address, config)
	if err != nil {
		conn.Close()

		var hostKeyErr *HostKeyMismatchError
		if stderrors.As(err, &hostKeyErr) {
			return nil, errors.New(errors.ErrSSH,
				hostKeyErr.Error(),
				hostKeyErr.Suggestion())
		}

		return nil, errors.WrapWithCode(err, codeForHandshakeError(err),
			fmt.Sprintf("SSH handshake with '%s' didn't go through", target.Address),
			suggestionForHandshakeError(err, target))
	}
	_ = conn.SetDeadline(time.Time{})

	return &Client{
		Client:  ssh.NewClient(sshConn, chans, reqs),
		Host:    target.Address,
		Address: address,
	}, nil
}

// Close closes the SSH connection. Calling it more than once is safe and
// returns the result of the first call.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		if c.Client != nil {
			c.closeErr = c.Client.Close()
		}
	})
	return c.closeErr
}

// GetHost returns the address as given by the caller.
func (c *Client) GetHost() string {
	return c.Host
}

// GetAddress returns the resolved host:port address.
func (c *Client) GetAddress() string {
	return c.Address
}

// sshSettings holds resolved SSH connection parameters.
type sshSettings struct {
	hostname     string
	port         string
	user         string
	identityFile string
}

// address returns the host:port string for dialing.
func (s *sshSettings) address() string {
	return net.JoinHostPort(s.hostname, s.port)
}

// ResolveAddress returns the host:port a Dial to address would connect to,
// without connecting. Used to key per-host leases.
func ResolveAddress(address string) string {
	return resolveSSHSettings(address, "").address()
}

// resolveSSHSettings parses the address and resolves settings from ~/.ssh/config.
// An explicit username wins over the config's User.
func resolveSSHSettings(address, username string) *sshSettings {
	settings := &sshSettings{
		port: "22",
		user: currentUser(),
	}

	host := address
	if atIdx := strings.Index(host, "@"); atIdx != -1 {
		if username == "" {
			username = host[:atIdx]
		}
		host = host[atIdx+1:]
	}

	explicitPort := ""
	if h, p, err := net.SplitHostPort(host); err == nil {
		host = h
		explicitPort = p
	}
	settings.hostname = host

	sshConfigPath := filepath.Join(homeDir(), ".ssh", "config")

	// The kevinburke/ssh_config library doesn't support Match, so only the
	// content before the first Match block is parsed.
	content, matchLine, err := preprocessSSHConfig(sshConfigPath)
	if err == nil {
		if cfg, err := ssh_config.Decode(bytes.NewReader(content)); err == nil {
			hostFound := applySSHConfig(cfg, host, settings)
			if matchLine > 0 && !hostFound {
				matchWarningOnce.Do(func() {
					emitWarning(fmt.Sprintf(
						"Host '%s' not found in SSH config (config has a Match block at line %d that may hide later entries)",
						host, matchLine))
				})
			}
		}
	}

	if explicitPort != "" {
		settings.port = explicitPort
	}
	if username != "" {
		settings.user = username
	}
	return settings
}

// applySSHConfig copies the alias settings for host into settings and
// reports whether the config mentioned the host at all.
func applySSHConfig(cfg *ssh_config.Config, host string, settings *sshSettings) bool {
	hostFound := false
	if hostname, _ := cfg.Get(host, "HostName"); hostname != "" {
		settings.hostname = hostname
		hostFound = true
	}
	if port, _ := cfg.Get(host, "Port"); port != "" {
		settings.port = port
		hostFound = true
	}
	if user, _ := cfg.Get(host, "User"); user != "" {
		settings.user = user
		hostFound = true
	}
	if identity, _ := cfg.Get(host, "IdentityFile"); identity != "" {
		settings.identityFile = expandPath(identity)
		hostFound = true
	}
	return hostFound
}

// buildSSHConfig creates an SSH client config with the auth methods the
// target's secret allows and the requested host key policy.
func buildSSHConfig(settings *sshSettings, target Target, opts DialOptions) (*ssh.ClientConfig, error) {
	authMethods, err := authMethodsFor(target, settings)
	if err != nil {
		return nil, err
	}

	var hostKeyCallback ssh.HostKeyCallback
	switch opts.HostKeyPolicy {
	case HostKeyKnownHosts:
		hostKeyCallback, err = createHostKeyCallback(opts.KnownHostsPath)
		if err != nil {
			return nil, errors.WrapWithCode(err, errors.ErrSSH,
				fmt.Sprintf("Couldn't load known_hosts from %s", opts.KnownHostsPath),
				"Check the file exists and is readable, or use host_key_policy: accept-any")
		}
	case HostKeyAcceptAny:
		hostKeyCallback = ssh.InsecureIgnoreHostKey() //nolint:gosec // explicit accept-any policy
	default:
		return nil, errors.New(errors.ErrConfig,
			fmt.Sprintf("Unknown host key policy '%s'", opts.HostKeyPolicy),
			"Use one of: accept-any, known-hosts")
	}

	return &ssh.ClientConfig{
		User:            settings.user,
		Auth:            authMethods,
		HostKeyCallback: hostKeyCallback,
		Timeout:         opts.Timeout,
	}, nil
}

// authMethodsFor picks password, key, or agent/default-key auth.
func authMethodsFor(target Target, settings *sshSettings) ([]ssh.AuthMethod, error) {
	if target.Secret != "" {
		if target.IsKey() {
			signer, err := ssh.ParsePrivateKey([]byte(target.Secret))
			if err != nil {
				var missing *ssh.PassphraseMissingError
				if stderrors.As(err, &missing) || isEncryptedPEM([]byte(target.Secret)) {
					return nil, errors.New(errors.ErrAuth,
						"The private key is passphrase protected",
						"Use an unencrypted key or load it into ssh-agent and omit the secret")
				}
				return nil, errors.WrapWithCode(err, errors.ErrAuth,
					"Couldn't parse the private key",
					"Check the key file is a PEM or OpenSSH private key")
			}
			return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil
		}
		return passwordAuth(target.Secret), nil
	}

	var authMethods []ssh.AuthMethod
	if agentAuth := sshAgentAuth(); agentAuth != nil {
		authMethods = append(authMethods, agentAuth)
	}

	keys := []string{settings.identityFile}
	if testKey := os.Getenv("AGENTDEPLOY_TEST_SSH_KEY"); testKey != "" {
		keys = append(keys, testKey)
	}
	keys = append(keys,
		filepath.Join(homeDir(), ".ssh", "id_ed25519"),
		filepath.Join(homeDir(), ".ssh", "id_rsa"),
		filepath.Join(homeDir(), ".ssh", "id_ecdsa"),
	)
	for _, keyPath := range keys {
		if keyPath == "" {
			continue
		}
		if keyAuth, err := keyFileAuth(keyPath); err == nil {
			authMethods = append(authMethods, keyAuth)
		}
	}

	if len(authMethods) == 0 {
		return nil, errors.New(errors.ErrAuth,
			"No credentials available",
			"Pass a password or key file, or load a key into ssh-agent")
	}
	return authMethods, nil
}

// passwordAuth offers the password both as plain password auth and as the
// answer to every keyboard-interactive question, since many servers only
// enable the latter.
func passwordAuth(password string) []ssh.AuthMethod {
	return []ssh.AuthMethod{
		ssh.Password(password),
		ssh.KeyboardInteractive(func(user, instruction string, questions []string, echos []bool) ([]string, error) {
			answers := make([]string, len(questions))
			for i := range questions {
				answers[i] = password
			}
			return answers, nil
		}),
	}
}

// agentConn holds the reusable SSH agent connection.
var (
	agentConn     net.Conn
	agentClient   agent.ExtendedAgent
	agentConnOnce sync.Once
)

// sshAgentAuth returns an auth method using the SSH agent if available.
// Returns nil if the agent has no keys loaded.
func sshAgentAuth() ssh.AuthMethod {
	socket := os.Getenv("SSH_AUTH_SOCK")
	if socket == "" {
		return nil
	}

	agentConnOnce.Do(func() {
		conn, err := net.Dial("unix", socket)
		if err != nil {
			return
		}
		agentConn = conn
		agentClient = agent.NewClient(conn)
	})

	if agentClient == nil {
		return nil
	}

	// An empty agent causes auth failures when placed before other methods.
	signers, err := agentClient.Signers()
	if err != nil || len(signers) == 0 {
		return nil
	}

	return ssh.PublicKeysCallback(agentClient.Signers)
}

// CloseAgent closes the SSH agent connection if one is open.
// This should be called when the application is shutting down.
func CloseAgent() {
	if agentConn != nil {
		agentConn.Close()
	}
}

// keyFileAuth returns an auth method using a private key file.
func keyFileAuth(keyPath string) (ssh.AuthMethod, error) {
	key, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, err
	}

	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, err
	}

	return ssh.PublicKeys(signer), nil
}

// Helper functions

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return os.Getenv("HOME")
	}
	return home
}

func currentUser() string {
	if user := os.Getenv("USER"); user != "" {
		return user
	}
	return "root"
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(homeDir(), path[2:])
	}
	return path
}

// isTimeout reports whether err is a network timeout.
func isTimeout(err error) bool {
	var netErr net.Error
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "i/o timeout") || strings.Contains(errStr, "timed out")
}

func codeForDialError(err error) string {
	if isTimeout(err) {
		return errors.ErrTimeout
	}
	return errors.ErrNetwork
}

func codeForHandshakeError(err error) string {
	if isAuthFailure(err) {
		return errors.ErrAuth
	}
	if isTimeout(err) {
		return errors.ErrTimeout
	}
	if isHostKeyFailure(err) {
		return errors.ErrSSH
	}
	return errors.ErrNetwork
}

func isAuthFailure(err error) bool {
	errStr := err.Error()
	return strings.Contains(errStr, "unable to authenticate") ||
		strings.Contains(errStr, "no supported methods")
}

func isHostKeyFailure(err error) bool {
	errStr := err.Error()
	return strings.Contains(errStr, "host key") || strings.Contains(errStr, "knownhosts")
}

func suggestionForDialError(err error) string {
	errStr := err.Error()
	if strings.Contains(errStr, "connection refused") {
		return "Is SSH running on that box? Check the port and sshd status."
	}
	if strings.Contains(errStr, "no route to host") || strings.Contains(errStr, "network is unreachable") {
		return "Can't route to the host. Check your network connection."
	}
	if strings.Contains(errStr, "no such host") {
		return "The hostname didn't resolve. Check the address or your DNS."
	}
	if strings.Contains(errStr, "timeout") {
		return "Connection timed out. Check the IP address and that the host is on the network."
	}
	return "Make sure the host is reachable: ping <host>"
}

func suggestionForHandshakeError(err error, target Target) string {
	if isAuthFailure(err) {
		if target.IsKey() {
			return "The server rejected the key. Check it is in the user's authorized_keys."
		}
		return "Check the username and password."
	}
	if isTimeout(err) {
		return "The server accepted the connection but didn't finish the handshake in time."
	}
	if isHostKeyFailure(err) {
		return "Host key issue. Add the host to known_hosts: ssh-keyscan <host> >> ~/.ssh/known_hosts"
	}
	return "Something went wrong during SSH setup. Try: ssh <host>"
}

// HostKeyMismatchError provides helpful context when known_hosts verification fails.
type HostKeyMismatchError struct {
	Hostname     string
	ReceivedType string
	KnownHosts   string
	Want         []knownhosts.KnownKey
}

func (e *HostKeyMismatchError) Error() string {
	return fmt.Sprintf("host key mismatch for %s: server sent %s key", e.Hostname, e.ReceivedType)
}

// Suggestion returns actionable steps to fix the host key mismatch.
func (e *HostKeyMismatchError) Suggestion() string {
	host := e.Hostname
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}

	var wantTypes []string
	for _, k := range e.Want {
		wantTypes = append(wantTypes, k.Key.Type())
	}
	wantStr := "unknown"
	if len(wantTypes) > 0 {
		wantStr = strings.Join(wantTypes, ", ")
	}

	return fmt.Sprintf(
		"The server's host key doesn't match what's in known_hosts.\n"+
			"  Known types: %s\n"+
			"  Server sent: %s\n\n"+
			"  If the host was reinstalled, remove the old entry:\n"+
			"    ssh-keygen -R %s -f %s",
		wantStr, e.ReceivedType, host, e.KnownHosts)
}

// preprocessSSHConfig reads the SSH config and returns content up to the first Match directive.
// Also returns the line number where Match was found (0 if not found).
func preprocessSSHConfig(configPath string) ([]byte, int, error) {
	content, err := os.ReadFile(configPath)
	if err != nil {
		return nil, 0, err
	}

	lines := strings.Split(string(content), "\n")
	var result []string
	matchLine := 0

	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(strings.ToLower(trimmed), "match ") {
			matchLine = i + 1
			break
		}
		result = append(result, line)
	}

	return []byte(strings.Join(result, "\n")), matchLine, nil
}

// isEncryptedPEM checks if PEM data contains encryption markers.
func isEncryptedPEM(data []byte) bool {
	return bytes.Contains(data, []byte("ENCRYPTED"))
}

// createHostKeyCallback wraps the knownhosts callback to provide better error messages.
// Unlike an interactive ssh, unknown hosts are rejected rather than added.
func createHostKeyCallback(knownHostsPath string) (ssh.HostKeyCallback, error) {
	callback, err := knownhosts.New(knownHostsPath)
	if err != nil {
		return nil, err
	}

	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		err := callback(hostname, remote, key)
		if err != nil {
			var keyErr *knownhosts.KeyError
			if stderrors.As(err, &keyErr) && len(keyErr.Want) > 0 {
				return &HostKeyMismatchError{
					Hostname:     hostname,
					ReceivedType: key.Type(),
					KnownHosts:   knownHostsPath,
					Want:         keyErr.Want,
				}
			}
		}
		return err
	}, nil
}
