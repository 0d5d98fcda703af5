package cli

import (
	"bytes"
	stderrors "errors"
	"testing"

	"github.com/rileyhilliard/agentdeploy/internal/errors"
	"github.com/stretchr/testify/assert"
)

func TestExtractUnknownCommand(t *testing.T) {
	tests := []struct {
		msg  string
		want string
	}{
		{`unknown command "edge-1" for "agentdeploy"`, "edge-1"},
		{`unknown command "" for "agentdeploy"`, ""},
		{`unknown flag: --bogus`, ""},
		{`something else`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			assert.Equal(t, tt.want, extractUnknownCommand(stderrors.New(tt.msg)))
		})
	}
}

func TestIsUnknownCommandError(t *testing.T) {
	assert.True(t, isUnknownCommandError(stderrors.New(`unknown command "x" for "agentdeploy"`)))
	assert.True(t, isUnknownCommandError(stderrors.New("unknown flag: --nope")))
	assert.False(t, isUnknownCommandError(stderrors.New("connection refused")))
}

func TestReportError(t *testing.T) {
	t.Run("exit error prints nothing", func(t *testing.T) {
		var buf bytes.Buffer
		assert.Equal(t, 3, reportError(&buf, errors.NewExitError(3)))
		assert.Empty(t, buf.String())
	})

	t.Run("unknown command suggests deploy", func(t *testing.T) {
		var buf bytes.Buffer
		code := reportError(&buf, stderrors.New(`unknown command "edge-1" for "agentdeploy"`))
		assert.Equal(t, 1, code)
		assert.Contains(t, buf.String(), `Unknown command "edge-1"`)
		assert.Contains(t, buf.String(), "agentdeploy deploy edge-1")
	})

	t.Run("structured error prints as is", func(t *testing.T) {
		var buf bytes.Buffer
		err := errors.New(errors.ErrConfig, "Config file not found", "Run 'agentdeploy init'")
		assert.Equal(t, 1, reportError(&buf, err))
		assert.Equal(t, err.Error(), buf.String())
	})

	t.Run("plain error gets a symbol", func(t *testing.T) {
		var buf bytes.Buffer
		assert.Equal(t, 1, reportError(&buf, stderrors.New("boom")))
		assert.Equal(t, "✗ boom\n", buf.String())
	})
}

func TestUnknownCommand_ReturnsError(t *testing.T) {
	newWorkspace(t, nil)

	_, err := runCLI(t, "edge-1")
	assert.Error(t, err)
	assert.Equal(t, "edge-1", extractUnknownCommand(err))
}
