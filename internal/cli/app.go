package cli

import (
	"io"

	"github.com/redis/go-redis/v9"
	"github.com/rileyhilliard/agentdeploy/internal/config"
	"github.com/rileyhilliard/agentdeploy/internal/deploy"
	"github.com/rileyhilliard/agentdeploy/internal/errors"
	"github.com/rileyhilliard/agentdeploy/internal/host"
	"github.com/rileyhilliard/agentdeploy/internal/lock"
	"github.com/rileyhilliard/agentdeploy/internal/logger"
	"github.com/rileyhilliard/agentdeploy/internal/store"
	"github.com/rileyhilliard/agentdeploy/internal/ui"
	"github.com/rileyhilliard/agentdeploy/pkg/sshutil"
	"github.com/spf13/cobra"
)

// dialer opens every SSH session the CLI makes. Tests swap in a mock.
var dialer sshutil.Dialer = sshutil.DefaultDialer

// loadConfig finds and validates the config. Without a config file the
// defaults apply and the returned path is empty.
func loadConfig(cmd *cobra.Command) (*config.Config, string, error) {
	cfg, path, err := config.LoadOrDefault(Config())
	if err != nil {
		return nil, "", err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, path, err
	}
	if colorOverride() == "" {
		ui.ConfigureColor(cfg.Output.Color, cmd.OutOrStdout())
	}
	return cfg, path, nil
}

// dialOptions turns the ssh section into session options.
func dialOptions(cfg *config.Config) sshutil.DialOptions {
	return sshutil.DialOptions{
		Timeout:        cfg.SSH.ConnectTimeout,
		HostKeyPolicy:  sshutil.HostKeyPolicy(cfg.SSH.HostKeyPolicy),
		KnownHostsPath: cfg.SSH.KnownHosts,
	}
}

// deployOptions maps the config onto orchestrator options.
func deployOptions(cfg *config.Config) deploy.Options {
	return deploy.Options{
		Layout: deploy.Layout{
			InstallDir: cfg.Agent.InstallDir,
			AgentName:  cfg.Agent.Name,
		},
		ArtifactRoot: cfg.Artifact.Root,
		ArtifactPath: cfg.Artifact.Path,
		Dial:         dialOptions(cfg),
		SettleDelay:  cfg.Verify.SettleDelay,
		PollInterval: cfg.Verify.PollInterval,
		MaxWait:      cfg.Verify.MaxWait,
		LogTailLines: cfg.Verify.LogLines,
	}
}

// newChecker builds a connection checker. rec may be nil.
func newChecker(cfg *config.Config, rec host.CheckRecorder) *host.Checker {
	opts := dialOptions(cfg)
	opts.Timeout = cfg.SSH.CheckTimeout
	return &host.Checker{
		Dial:     dialer,
		Options:  opts,
		Log:      logger.NewEnvLogger("[check]"),
		Recorder: rec,
	}
}

// newLocker builds the configured lease manager. The returned func closes
// whatever connection the manager holds. A disabled lease returns a nil
// manager.
func newLocker(cfg *config.Config) (lock.Manager, func(), error) {
	if !cfg.Lease.Enabled {
		return nil, func() {}, nil
	}
	lcfg := lock.Config{
		Wait:   cfg.Lease.Wait,
		TTL:    cfg.Lease.TTL,
		Prefix: cfg.Lease.Prefix,
	}

	switch cfg.Lease.Backend {
	case "", "local":
		return lock.NewLocal(lcfg), func() {}, nil
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.Lease.RedisAddr})
		return lock.NewRedis(client, lcfg), func() { client.Close() }, nil
	}
	return nil, nil, errors.New(errors.ErrConfig,
		"Unknown lease backend: "+cfg.Lease.Backend,
		"Use 'local' or 'redis'")
}

// openStore opens the history database, or returns nil when history is
// disabled.
func openStore(cfg *config.Config) (*store.Store, error) {
	if cfg.Store.Path == "" {
		return nil, nil
	}
	return store.Open(cfg.Store.Path)
}

// fail reports err. With --json it writes the error envelope and returns an
// ExitError so Execute doesn't print it a second time.
func fail(w io.Writer, asJSON bool, err error) error {
	if !asJSON {
		return err
	}
	if werr := WriteJSONFromError(w, err); werr != nil {
		return werr
	}
	return errors.NewExitError(1)
}
