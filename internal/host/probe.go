// Package host checks whether a deployment target accepts an SSH session
// with a given set of credentials, and classifies why it doesn't.
package host

import (
	"fmt"
	"strings"
	"time"

	"github.com/rileyhilliard/agentdeploy/internal/errors"
	"github.com/rileyhilliard/agentdeploy/pkg/sshutil"
)

// CheckCommand is the command run to prove the session works.
const CheckCommand = "echo 'Connection success'"

// DefaultCheckTimeout bounds the dial of a connection check.
const DefaultCheckTimeout = 5 * time.Second

// User-facing messages, one per bucket.
const (
	MsgConnected  = "Connection succeeded"
	MsgAuthFailed = "Authentication failed, check the username and password"
	MsgTimedOut   = "Connection timed out, check the IP address and network"
)

// DialFunc opens a session to a target.
type DialFunc = sshutil.Dialer

// ProbeError represents a failed probe with categorized failure reason.
type ProbeError struct {
	Address string
	Reason  ProbeFailReason
	Cause   error
}

// ProbeFailReason categorizes why a probe failed.
type ProbeFailReason int

const (
	ProbeFailUnknown ProbeFailReason = iota
	ProbeFailTimeout
	ProbeFailRefused
	ProbeFailUnreachable
	ProbeFailAuth
	ProbeFailHostKey
	ProbeFailCommand
)

// String returns a human-readable description of the failure reason.
func (r ProbeFailReason) String() string {
	switch r {
	case ProbeFailTimeout:
		return "connection timed out"
	case ProbeFailRefused:
		return "connection refused"
	case ProbeFailUnreachable:
		return "host unreachable"
	case ProbeFailAuth:
		return "authentication failed"
	case ProbeFailHostKey:
		return "host key verification failed"
	case ProbeFailCommand:
		return "check command failed"
	default:
		return "unknown error"
	}
}

// Bucket is the coarse classification shown to users.
type Bucket string

const (
	BucketOK      Bucket = "ok"
	BucketAuth    Bucket = "auth"
	BucketTimeout Bucket = "timeout"
	BucketGeneric Bucket = "generic"
)

// Bucket folds the reason into one of the three failure buckets.
func (r ProbeFailReason) Bucket() Bucket {
	switch r {
	case ProbeFailAuth:
		return BucketAuth
	case ProbeFailTimeout:
		return BucketTimeout
	default:
		return BucketGeneric
	}
}

func (e *ProbeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("probe %s failed: %s (%v)", e.Address, e.Reason, e.Cause)
	}
	return fmt.Sprintf("probe %s failed: %s", e.Address, e.Reason)
}

func (e *ProbeError) Unwrap() error {
	return e.Cause
}

// FailureMessage renders err as the user-facing message for its bucket.
// Generic failures are prefixed with prefix, e.g. "Connection failed".
func FailureMessage(err error, prefix string) string {
	switch Classify(err).Bucket() {
	case BucketAuth:
		return MsgAuthFailed
	case BucketTimeout:
		return MsgTimedOut
	}
	return fmt.Sprintf("%s: %s", prefix, errors.MessageOf(err))
}

// Classify returns the failure reason for err. Structured errors are
// classified by code; anything else falls back to the error text.
func Classify(err error) ProbeFailReason {
	if err == nil {
		return ProbeFailUnknown
	}
	return categorizeProbeError("", err).Reason
}

// categorizeProbeError converts a generic error into a ProbeError with
// a categorized failure reason.
func categorizeProbeError(address string, err error) *ProbeError {
	if err == nil {
		return nil
	}

	probeErr := &ProbeError{
		Address: address,
		Reason:  ProbeFailUnknown,
		Cause:   err,
	}

	switch errors.CodeOf(err) {
	case errors.ErrAuth:
		probeErr.Reason = ProbeFailAuth
		return probeErr
	case errors.ErrTimeout:
		probeErr.Reason = ProbeFailTimeout
		return probeErr
	case errors.ErrExec:
		probeErr.Reason = ProbeFailCommand
		return probeErr
	}

	errStr := strings.ToLower(err.Error())

	// Check for host key issues first; mismatch errors mention "unable to
	// authenticate" in their suggestions.
	if strings.Contains(errStr, "host key") || strings.Contains(errStr, "knownhosts") {
		probeErr.Reason = ProbeFailHostKey
		return probeErr
	}

	if strings.Contains(errStr, "timeout") || strings.Contains(errStr, "timed out") {
		probeErr.Reason = ProbeFailTimeout
		return probeErr
	}

	if strings.Contains(errStr, "connection refused") {
		probeErr.Reason = ProbeFailRefused
		return probeErr
	}

	if strings.Contains(errStr, "no route to host") ||
		strings.Contains(errStr, "network is unreachable") ||
		strings.Contains(errStr, "host is down") {
		probeErr.Reason = ProbeFailUnreachable
		return probeErr
	}

	if strings.Contains(errStr, "unable to authenticate") ||
		strings.Contains(errStr, "no supported methods") ||
		strings.Contains(errStr, "permission denied") ||
		strings.Contains(errStr, "authentication failed") {
		probeErr.Reason = ProbeFailAuth
		return probeErr
	}

	return probeErr
}
