package cli

import (
	"testing"

	"github.com/rileyhilliard/agentdeploy/internal/config"
	"github.com/rileyhilliard/agentdeploy/internal/errors"
	"github.com/rileyhilliard/agentdeploy/internal/host"
	sshtesting "github.com/rileyhilliard/agentdeploy/pkg/sshutil/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheck_Success(t *testing.T) {
	ws := newWorkspace(t, nil)
	client := sshtesting.NewMockClient("10.0.0.5")
	ws.useClient(client)

	out, err := runCLI(t, "check", "edge-1", "--config", ws.configPath)
	require.NoError(t, err)

	assert.Contains(t, out, "edge-1")
	assert.Contains(t, out, "10.0.0.5")
	assert.Contains(t, out, host.MsgConnected)
	assert.Equal(t, []string{host.CheckCommand}, client.Commands())
	assert.True(t, client.IsClosed())
}

func TestCheck_AuthFailure(t *testing.T) {
	ws := newWorkspace(t, nil)
	ws.failDials(errors.New(errors.ErrAuth, "ssh: unable to authenticate", ""))

	out, err := runCLI(t, "check", "edge-1", "--config", ws.configPath)

	code, ok := errors.GetExitCode(err)
	require.True(t, ok)
	assert.Equal(t, 1, code)
	assert.Contains(t, out, host.MsgAuthFailed)
}

func TestCheck_AllConfiguredHostsJSON(t *testing.T) {
	ws := newWorkspace(t, func(cfg *config.Config) {
		cfg.Hosts["edge-2"] = config.Host{Address: "10.0.0.6", Username: "deploy"}
	})
	ws.failDials(errors.New(errors.ErrTimeout, "dial tcp: i/o timeout", ""))

	out, err := runCLI(t, "check", "--json", "--timeout", "1s", "--config", ws.configPath)

	_, isExit := errors.GetExitCode(err)
	assert.True(t, isExit)
	env := decodeEnvelope(t, out)
	assert.False(t, env.Success)
	require.NotNil(t, env.Error)
	assert.Equal(t, errors.ErrTimeout, env.Error.Code)
	assert.Equal(t, map[string]interface{}{"failed": float64(2), "total": float64(2)}, env.Error.Details)

	results, ok := env.Data.([]interface{})
	require.True(t, ok)
	require.Len(t, results, 2)
	first := results[0].(map[string]interface{})
	assert.Equal(t, "edge-1", first["host"])
	assert.Equal(t, "timeout", first["bucket"])
	assert.Equal(t, "connection timed out", first["reason"])

	require.Len(t, ws.dials, 2)
	assert.Equal(t, "10.0.0.5", ws.dials[0].Address)
	assert.Equal(t, "10.0.0.6", ws.dials[1].Address)
}

func TestCheck_NoHosts(t *testing.T) {
	ws := newWorkspace(t, func(cfg *config.Config) {
		delete(cfg.Hosts, "edge-1")
	})

	_, err := runCLI(t, "check", "--config", ws.configPath)
	assert.True(t, errors.IsCode(err, errors.ErrConfig))
	assert.Empty(t, ws.dials)
}

func TestCheck_InvalidTimeout(t *testing.T) {
	ws := newWorkspace(t, nil)

	out, err := runCLI(t, "check", "edge-1", "--timeout", "soon", "--json", "--config", ws.configPath)

	_, isExit := errors.GetExitCode(err)
	assert.True(t, isExit)
	env := decodeEnvelope(t, out)
	assert.Equal(t, errors.ErrConfig, env.Error.Code)
	assert.Empty(t, ws.dials)
}
