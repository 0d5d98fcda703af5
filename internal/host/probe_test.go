package host

import (
	stderrors "errors"
	"testing"

	"github.com/rileyhilliard/agentdeploy/internal/errors"
	"github.com/stretchr/testify/assert"
)

func TestCategorizeProbeError_Timeout(t *testing.T) {
	testCases := []string{
		"i/o timeout",
		"connection timeout",
		"dial tcp: timeout",
		"operation timed out",
	}

	for _, errMsg := range testCases {
		err := categorizeProbeError("test-host", stderrors.New(errMsg))
		if err == nil {
			t.Errorf("categorizeProbeError(%q) returned nil", errMsg)
			continue
		}

		if err.Reason != ProbeFailTimeout {
			t.Errorf("categorizeProbeError(%q).Reason = %v, want ProbeFailTimeout", errMsg, err.Reason)
		}
	}
}

func TestCategorizeProbeError_Refused(t *testing.T) {
	err := categorizeProbeError("test-host", stderrors.New("dial tcp 10.0.0.5:22: connect: connection refused"))
	if err == nil {
		t.Fatal("categorizeProbeError returned nil")
	}

	if err.Reason != ProbeFailRefused {
		t.Errorf("Reason = %v, want ProbeFailRefused", err.Reason)
	}
}

func TestCategorizeProbeError_Unreachable(t *testing.T) {
	testCases := []string{
		"no route to host",
		"network is unreachable",
		"host is down",
	}

	for _, errMsg := range testCases {
		err := categorizeProbeError("test-host", stderrors.New(errMsg))
		if err == nil {
			t.Errorf("categorizeProbeError(%q) returned nil", errMsg)
			continue
		}

		if err.Reason != ProbeFailUnreachable {
			t.Errorf("categorizeProbeError(%q).Reason = %v, want ProbeFailUnreachable", errMsg, err.Reason)
		}
	}
}

func TestCategorizeProbeError_Auth(t *testing.T) {
	testCases := []string{
		"ssh: unable to authenticate, attempted methods [none password]",
		"no supported methods remain",
		"permission denied (publickey)",
		"authentication failed",
	}

	for _, errMsg := range testCases {
		err := categorizeProbeError("test-host", stderrors.New(errMsg))
		if err == nil {
			t.Errorf("categorizeProbeError(%q) returned nil", errMsg)
			continue
		}

		if err.Reason != ProbeFailAuth {
			t.Errorf("categorizeProbeError(%q).Reason = %v, want ProbeFailAuth", errMsg, err.Reason)
		}
	}
}

func TestCategorizeProbeError_HostKey(t *testing.T) {
	err := categorizeProbeError("test-host", stderrors.New("ssh: handshake failed: knownhosts: key is unknown"))
	assert.Equal(t, ProbeFailHostKey, err.Reason)
}

func TestCategorizeProbeError_StructuredCodes(t *testing.T) {
	tests := []struct {
		code string
		want ProbeFailReason
	}{
		{errors.ErrAuth, ProbeFailAuth},
		{errors.ErrTimeout, ProbeFailTimeout},
		{errors.ErrExec, ProbeFailCommand},
		{errors.ErrNetwork, ProbeFailUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := errors.New(tt.code, "something", "")
			assert.Equal(t, tt.want, Classify(err))
		})
	}
}

func TestCategorizeProbeError_Nil(t *testing.T) {
	assert.Nil(t, categorizeProbeError("test-host", nil))
	assert.Equal(t, ProbeFailUnknown, Classify(nil))
}

func TestProbeFailReason_Bucket(t *testing.T) {
	assert.Equal(t, BucketAuth, ProbeFailAuth.Bucket())
	assert.Equal(t, BucketTimeout, ProbeFailTimeout.Bucket())
	for _, r := range []ProbeFailReason{ProbeFailUnknown, ProbeFailRefused, ProbeFailUnreachable, ProbeFailHostKey, ProbeFailCommand} {
		assert.Equal(t, BucketGeneric, r.Bucket(), r.String())
	}
}

func TestProbeFailReason_String(t *testing.T) {
	assert.Equal(t, "connection refused", ProbeFailRefused.String())
	assert.Equal(t, "unknown error", ProbeFailReason(99).String())
}

func TestProbeError_Error(t *testing.T) {
	err := &ProbeError{Address: "10.0.0.5", Reason: ProbeFailRefused, Cause: stderrors.New("boom")}
	assert.Equal(t, "probe 10.0.0.5 failed: connection refused (boom)", err.Error())
	assert.ErrorIs(t, err, err.Cause)

	err = &ProbeError{Address: "10.0.0.5", Reason: ProbeFailTimeout}
	assert.Equal(t, "probe 10.0.0.5 failed: connection timed out", err.Error())
}

func TestFailureMessage(t *testing.T) {
	assert.Equal(t, MsgAuthFailed, FailureMessage(errors.New(errors.ErrAuth, "denied", ""), "Deployment failed"))
	assert.Equal(t, MsgTimedOut, FailureMessage(errors.New(errors.ErrTimeout, "slow", ""), "Deployment failed"))
	assert.Equal(t, "Deployment failed: Can't reach '10.0.0.5'",
		FailureMessage(errors.New(errors.ErrNetwork, "Can't reach '10.0.0.5'", "ping it"), "Deployment failed"))
}
