package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rileyhilliard/agentdeploy/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, CurrentConfigVersion, cfg.Version)
	assert.Equal(t, "nc_agent", cfg.Agent.Name)
	assert.Equal(t, "/opt/nc_agent", cfg.Agent.InstallDir)
	assert.Equal(t, "static/install.tar.gz", cfg.Artifact.Path)
	assert.Equal(t, 10*time.Second, cfg.SSH.ConnectTimeout)
	assert.Equal(t, 5*time.Second, cfg.SSH.CheckTimeout)
	assert.Equal(t, "accept-any", cfg.SSH.HostKeyPolicy)
	assert.Equal(t, 2*time.Second, cfg.Verify.SettleDelay)
	assert.Equal(t, 20, cfg.Verify.LogLines)
	assert.True(t, cfg.Lease.Enabled)
	assert.Equal(t, "local", cfg.Lease.Backend)
	assert.Equal(t, 10*time.Minute, cfg.Lease.TTL)
	assert.Equal(t, "auto", cfg.Output.Color)
	assert.NotNil(t, cfg.Hosts)
	assert.Empty(t, cfg.Hosts)

	require.NoError(t, Validate(cfg))
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, ConfigFileName)

	content := `
version: 1
agent:
  name: probe_agent
  install_dir: /srv/probe
artifact:
  root: deploy
  path: build/agent.tar.gz
ssh:
  connect_timeout: 15s
  host_key_policy: known-hosts
verify:
  poll_interval: 500ms
  max_wait: 10s
lease:
  backend: redis
  redis_addr: localhost:6379
  wait: 30s
hosts:
  web:
    address: 10.0.0.5
    username: deploy
  edge:
    address: edge-alias
    username: ops
    key_file: ~/.ssh/edge
`
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "probe_agent", cfg.Agent.Name)
	assert.Equal(t, "/srv/probe", cfg.Agent.InstallDir)
	assert.Equal(t, filepath.Join(dir, "deploy"), cfg.Artifact.Root)
	assert.Equal(t, "build/agent.tar.gz", cfg.Artifact.Path)
	assert.Equal(t, 15*time.Second, cfg.SSH.ConnectTimeout)
	assert.Equal(t, 5*time.Second, cfg.SSH.CheckTimeout, "unset keys keep defaults")
	assert.Equal(t, "known-hosts", cfg.SSH.HostKeyPolicy)
	assert.Equal(t, 500*time.Millisecond, cfg.Verify.PollInterval)
	assert.Equal(t, 10*time.Second, cfg.Verify.MaxWait)
	assert.Equal(t, 2*time.Second, cfg.Verify.SettleDelay)
	assert.Equal(t, "redis", cfg.Lease.Backend)
	assert.Equal(t, 30*time.Second, cfg.Lease.Wait)
	assert.True(t, cfg.Lease.Enabled)

	require.Len(t, cfg.Hosts, 2)
	assert.Equal(t, Host{Address: "10.0.0.5", Username: "deploy"}, cfg.Hosts["web"])
	home, _ := os.UserHomeDir()
	assert.Equal(t, filepath.Join(home, ".ssh/edge"), cfg.Hosts["edge"].KeyFile)

	require.NoError(t, Validate(cfg))
}

func TestLoad_EnvOverride(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, ConfigFileName)
	require.NoError(t, os.WriteFile(configPath, []byte("version: 1\n"), 0644))
	t.Setenv("AGENTDEPLOY_LEASE_BACKEND", "redis")
	t.Setenv("AGENTDEPLOY_VERIFY_SETTLE_DELAY", "5s")

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "redis", cfg.Lease.Backend)
	assert.Equal(t, 5*time.Second, cfg.Verify.SettleDelay)
}

func TestLoad_AbsoluteArtifactRoot(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, ConfigFileName)
	require.NoError(t, os.WriteFile(configPath, []byte("artifact:\n  root: /srv/deploy\n"), 0644))

	cfg, err := Load(configPath)
	require.NoError(t, err)
	assert.Equal(t, "/srv/deploy", cfg.Artifact.Root)
}

func TestLoad_NotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))

	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrConfig))
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), ConfigFileName)
	require.NoError(t, os.WriteFile(configPath, []byte("agent: [unclosed\n"), 0644))

	_, err := Load(configPath)

	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrConfig))
}

func TestFind_Explicit(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "custom.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("version: 1\n"), 0644))

	found, err := Find(configPath)
	require.NoError(t, err)
	assert.Equal(t, configPath, found)

	_, err = Find(configPath + ".missing")
	assert.Error(t, err)
}

func TestFind_WalksUpToGitRoot(t *testing.T) {
	root := t.TempDir()
	t.Setenv("HOME", t.TempDir())
	require.NoError(t, os.Mkdir(filepath.Join(root, ".git"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, ConfigFileName), []byte("version: 1\n"), 0644))
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0755))
	t.Chdir(nested)

	found, err := Find("")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, ConfigFileName), found)
}

func TestFind_Global(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	global := filepath.Join(home, GlobalConfigDir, GlobalConfigFile)
	require.NoError(t, os.MkdirAll(filepath.Dir(global), 0755))
	require.NoError(t, os.WriteFile(global, []byte("version: 1\n"), 0644))

	work := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(work, ".git"), 0755))
	t.Chdir(work)

	found, err := Find("")
	require.NoError(t, err)
	assert.Equal(t, global, found)
}

func TestLoadOrDefault_NoFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	work := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(work, ".git"), 0755))
	t.Chdir(work)

	cfg, path, err := LoadOrDefault("")
	require.NoError(t, err)

	assert.Empty(t, path)
	assert.Equal(t, "nc_agent", cfg.Agent.Name)
	assert.True(t, filepath.IsAbs(cfg.Artifact.Root))
}

func TestResolveHost(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Hosts["web"] = Host{Address: "10.0.0.5", Username: "deploy"}

	h, ok := cfg.ResolveHost("web")
	assert.True(t, ok)
	assert.Equal(t, "10.0.0.5", h.Address)

	h, ok = cfg.ResolveHost("10.0.0.9")
	assert.False(t, ok)
	assert.Equal(t, Host{Address: "10.0.0.9"}, h)
}

func TestWriteAndLoad(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "sub", ConfigFileName)
	cfg := DefaultConfig()
	cfg.SSH.KnownHosts = "/etc/ssh/ssh_known_hosts"
	cfg.Hosts["web"] = Host{Address: "10.0.0.5", Username: "deploy"}

	require.NoError(t, Write(configPath, cfg, false))

	data, err := os.ReadFile(configPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "# agentdeploy configuration")
	assert.Contains(t, string(data), "connect_timeout: 10s")
	assert.NotContains(t, string(data), "password")

	loaded, err := Load(configPath)
	require.NoError(t, err)
	assert.Equal(t, cfg.SSH, loaded.SSH)
	assert.Equal(t, cfg.Verify, loaded.Verify)
	assert.Equal(t, cfg.Lease, loaded.Lease)
	assert.Equal(t, cfg.Hosts, loaded.Hosts)

	err = Write(configPath, cfg, false)
	require.Error(t, err)
	assert.Contains(t, errors.MessageOf(err), "already exists")
	require.NoError(t, Write(configPath, cfg, true))
}
