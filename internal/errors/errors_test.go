package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorCodes(t *testing.T) {
	codes := []string{
		ErrConfig,
		ErrSSH,
		ErrAuth,
		ErrTimeout,
		ErrNetwork,
		ErrExec,
		ErrTransfer,
		ErrVerify,
		ErrLock,
		ErrStore,
		ErrInternal,
	}

	seen := make(map[string]bool)
	for _, code := range codes {
		assert.NotEmpty(t, code, "error code should not be empty")
		assert.False(t, seen[code], "error code %q should be unique", code)
		seen[code] = true
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name       string
		code       string
		message    string
		suggestion string
	}{
		{
			name:       "config error",
			code:       ErrConfig,
			message:    "Invalid configuration in .agentdeploy.yaml",
			suggestion: "Check your configuration file syntax",
		},
		{
			name:       "auth error",
			code:       ErrAuth,
			message:    "Authentication failed",
			suggestion: "Check the username and password",
		},
		{
			name:       "transfer error",
			code:       ErrTransfer,
			message:    "Install package not found",
			suggestion: "Build the package into static/install.tar.gz",
		},
		{
			name:       "lock error",
			code:       ErrLock,
			message:    "Another deployment to 10.0.0.5 is in progress",
			suggestion: "Wait for it to finish",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code, tt.message, tt.suggestion)

			require.NotNil(t, err)
			assert.Equal(t, tt.code, err.Code)
			assert.Equal(t, tt.message, err.Message)
			assert.Equal(t, tt.suggestion, err.Suggestion)
			assert.Nil(t, err.Cause)
		})
	}
}

func TestErrorFormatting(t *testing.T) {
	err := WrapWithCode(
		errors.New("dial tcp 10.0.0.5:22: i/o timeout"),
		ErrTimeout,
		"Connection timed out",
		"Check the IP address and network",
	)

	output := err.Error()
	lines := strings.Split(output, "\n")

	assert.True(t, strings.HasPrefix(lines[0], "✗"), "first line should start with failure symbol")
	assert.Contains(t, lines[0], "Connection timed out")
	assert.Contains(t, output, "i/o timeout")
	assert.Contains(t, output, "Check the IP address and network")
}

func TestWrap(t *testing.T) {
	cause := errors.New("underlying network error")
	wrapped := Wrap(cause, "SSH connection failed")

	require.NotNil(t, wrapped)
	assert.Equal(t, ErrSSH, wrapped.Code, "Wrap should default to ErrSSH code")
	assert.Equal(t, cause, wrapped.Cause)
	assert.True(t, errors.Is(wrapped, cause))
}

func TestNewCommand(t *testing.T) {
	err := NewCommand("Failed to extract install package", 2, "tar: invalid magic\n")

	assert.Equal(t, ErrExec, err.Code)
	assert.Equal(t, "Failed to extract install package: tar: invalid magic", err.Message)
	assert.Contains(t, err.Suggestion, "status 2")
}

func TestIsCodeAndCodeOf(t *testing.T) {
	err := New(ErrAuth, "Auth error", "")
	wrapped := fmt.Errorf("deploy: %w", err)

	assert.True(t, IsCode(err, ErrAuth))
	assert.True(t, IsCode(wrapped, ErrAuth))
	assert.False(t, IsCode(err, ErrSSH))
	assert.False(t, IsCode(errors.New("standard error"), ErrConfig))
	assert.False(t, IsCode(nil, ErrConfig))

	assert.Equal(t, ErrAuth, CodeOf(wrapped))
	assert.Equal(t, "", CodeOf(errors.New("plain")))
}

func TestMessageOf(t *testing.T) {
	err := WrapWithCode(errors.New("cause"), ErrNetwork, "Can't reach host", "ping it")

	assert.Equal(t, "Can't reach host", MessageOf(err))
	assert.Equal(t, "plain", MessageOf(errors.New("plain")))
	assert.Equal(t, "", MessageOf(nil))
}

func TestSuggestionOf(t *testing.T) {
	err := fmt.Errorf("outer: %w", New(ErrLock, "Held", "Wait for it"))

	assert.Equal(t, "Wait for it", SuggestionOf(err))
	assert.Equal(t, "", SuggestionOf(errors.New("plain")))
	assert.Equal(t, "", SuggestionOf(nil))
}

func TestExitError(t *testing.T) {
	err := NewExitError(1)
	assert.Equal(t, "exit code 1", err.Error())

	code, ok := GetExitCode(fmt.Errorf("wrapped: %w", err))
	assert.True(t, ok)
	assert.Equal(t, 1, code)

	_, ok = GetExitCode(New(ErrExec, "test", ""))
	assert.False(t, ok)

	_, ok = GetExitCode(nil)
	assert.False(t, ok)
}
