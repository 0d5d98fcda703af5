package cli

import (
	"archive/tar"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/rileyhilliard/agentdeploy/internal/artifact"
	"github.com/rileyhilliard/agentdeploy/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeAgentPackage writes an install package holding a single nc_agent
// binary with the given mode under root.
func writeAgentPackage(t *testing.T, root string, mode int64) {
	t.Helper()
	body := []byte("#!/bin/sh\nexec sleep 3600\n")

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "nc_agent", Mode: mode, Size: int64(len(body)), Typeflag: tar.TypeReg}))
	_, err := tw.Write(body)
	require.NoError(t, err)
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())

	p := filepath.Join(root, artifact.DefaultPath)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
	require.NoError(t, os.WriteFile(p, buf.Bytes(), 0644))
}

func TestArtifact_Executable(t *testing.T) {
	ws := newWorkspace(t, nil)
	writeAgentPackage(t, ws.dir, 0755)

	out, err := runCLI(t, "artifact", "--config", ws.configPath)
	require.NoError(t, err)

	assert.Contains(t, out, filepath.Join(ws.dir, artifact.DefaultPath))
	assert.Contains(t, out, "entries:")
	assert.Contains(t, out, "✓ nc_agent is present and executable")
}

func TestArtifact_NotExecutable(t *testing.T) {
	ws := newWorkspace(t, nil)
	writeAgentPackage(t, ws.dir, 0644)

	out, err := runCLI(t, "artifact", "--json", "--config", ws.configPath)

	_, isExit := errors.GetExitCode(err)
	assert.True(t, isExit)
	env := decodeEnvelope(t, out)
	assert.False(t, env.Success)
	assert.Equal(t, errors.ErrTransfer, env.Error.Code)
	assert.Contains(t, env.Error.Message, "not executable")

	data := env.Data.(map[string]interface{})
	assert.Equal(t, true, data["has_agent"])
	assert.Equal(t, false, data["agent_is_executable"])
	assert.Len(t, data["digest"], 64)
}

func TestArtifact_Missing(t *testing.T) {
	ws := newWorkspace(t, nil)

	_, err := runCLI(t, "artifact", "--config", ws.configPath)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrTransfer))
	assert.Contains(t, errors.MessageOf(err), "Install package not found")
}
