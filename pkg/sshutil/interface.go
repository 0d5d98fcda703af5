package sshutil

// SSHClient defines the interface for an open remote session.
// Both the real Client and mock implementations satisfy this interface.
//
// This interface enables testing of SSH-dependent code without requiring
// actual SSH connections. The mock implementation provides a virtual
// filesystem that responds realistically to the commands the deployer issues.
type SSHClient interface {
	// Exec runs a command and returns stdout, stderr, and exit code.
	// Exit code is -1 if the command couldn't be executed at all.
	// A non-zero exit code with nil error means the command ran but failed.
	Exec(cmd string) (stdout, stderr []byte, exitCode int, err error)

	// Upload copies a local file to remotePath over SFTP.
	Upload(localPath, remotePath string) error

	// Close closes the SSH connection. Safe to call more than once.
	Close() error

	// GetHost returns the address as given by the caller.
	GetHost() string

	// GetAddress returns the resolved host:port address.
	GetAddress() string
}

// Dialer opens a session to a target. Dial satisfies it; tests substitute
// a function returning a mock.
type Dialer func(target Target, opts DialOptions) (SSHClient, error)

// DefaultDialer wraps Dial as a Dialer.
func DefaultDialer(target Target, opts DialOptions) (SSHClient, error) {
	client, err := Dial(target, opts)
	if err != nil {
		return nil, err
	}
	return client, nil
}
