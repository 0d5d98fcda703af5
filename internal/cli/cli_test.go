package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rileyhilliard/agentdeploy/internal/config"
	"github.com/rileyhilliard/agentdeploy/pkg/sshutil"
	sshtesting "github.com/rileyhilliard/agentdeploy/pkg/sshutil/testing"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

// workspace is an isolated HOME and working directory with a config file.
type workspace struct {
	dir        string
	configPath string
	cfg        *config.Config
	dials      []sshutil.Target
}

// newWorkspace writes a config with one host, "edge-1", and installs a
// dialer that fails until a client is set with useClient.
func newWorkspace(t *testing.T, edit func(cfg *config.Config)) *workspace {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv(PasswordEnv, "")
	t.Chdir(dir)

	cfg := config.DefaultConfig()
	cfg.Artifact.Root = dir
	cfg.Store.Path = filepath.Join(dir, "history.db")
	cfg.Hosts["edge-1"] = config.Host{Address: "10.0.0.5", Username: "deploy"}
	if edit != nil {
		edit(cfg)
	}

	ws := &workspace{dir: dir, configPath: filepath.Join(dir, config.ConfigFileName), cfg: cfg}
	require.NoError(t, config.Write(ws.configPath, cfg, true))

	origDialer, origTTY, origPrompt := dialer, stdinIsTerminal, passwordPrompt
	stdinIsTerminal = func() bool { return false }
	passwordPrompt = func(string) (string, error) {
		t.Fatal("unexpected password prompt")
		return "", nil
	}
	t.Cleanup(func() {
		dialer, stdinIsTerminal, passwordPrompt = origDialer, origTTY, origPrompt
	})
	return ws
}

// useClient makes every dial return client.
func (ws *workspace) useClient(client sshutil.SSHClient) {
	dialer = func(target sshutil.Target, _ sshutil.DialOptions) (sshutil.SSHClient, error) {
		ws.dials = append(ws.dials, target)
		return client, nil
	}
}

// failDials makes every dial return err.
func (ws *workspace) failDials(err error) {
	dialer = func(target sshutil.Target, _ sshutil.DialOptions) (sshutil.SSHClient, error) {
		ws.dials = append(ws.dials, target)
		return nil, err
	}
}

// runCLI executes the root command with args and returns everything it wrote.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
		resetFlags(rootCmd)
	})

	err := rootCmd.Execute()
	return out.String(), err
}

// resetFlags puts every flag back to its default so package-level flag
// variables don't leak between tests.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

// decodeEnvelope parses --json output.
func decodeEnvelope(t *testing.T, out string) JSONEnvelope {
	t.Helper()
	var env JSONEnvelope
	require.NoError(t, json.Unmarshal([]byte(out), &env), "output: %s", out)
	return env
}

// runningHost is a mock host where the agent is installed and running.
func runningHost() *sshtesting.MockClient {
	client := sshtesting.NewMockClient("10.0.0.5")
	sshtesting.WithDirs(client, []string{"/opt/nc_agent"})
	sshtesting.WithRunningAgent(client, "nc_agent")
	return client
}

// staleHost is a mock host with an install directory but no agent running.
func staleHost(log string) *sshtesting.MockClient {
	client := sshtesting.NewMockClient("10.0.0.5")
	sshtesting.WithDirs(client, []string{"/opt/nc_agent"})
	sshtesting.WithFiles(client, map[string]string{"/opt/nc_agent/nc_agent.log": log})
	return client
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
}
