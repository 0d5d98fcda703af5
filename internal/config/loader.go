package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rileyhilliard/agentdeploy/internal/errors"
	"github.com/spf13/viper"
)

const (
	// ConfigFileName is the default config file name.
	ConfigFileName = ".agentdeploy.yaml"
	// GlobalConfigDir is the directory for global config.
	GlobalConfigDir = ".config/agentdeploy"
	// GlobalConfigFile is the global config file name.
	GlobalConfigFile = "config.yaml"
	// EnvPrefix prefixes environment overrides, e.g. AGENTDEPLOY_LEASE_BACKEND.
	EnvPrefix = "AGENTDEPLOY"
)

// Load reads config from the specified path.
func Load(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		if os.IsNotExist(err) {
			return nil, errors.WrapWithCode(err, errors.ErrConfig,
				"Config file not found",
				"Run 'agentdeploy init' to create a config file, or specify one with --config")
		}
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			"Failed to read config file",
			"Check the file exists and is valid YAML")
	}

	return parseConfig(v, path)
}

// Find locates the config file using the search order:
// 1. Explicit path (from --config flag)
// 2. .agentdeploy.yaml in current directory
// 3. .agentdeploy.yaml in parent directories (stops at git root or home)
// 4. ~/.config/agentdeploy/config.yaml (global defaults)
//
// Returns the path to the config file, or empty string if not found.
func Find(explicit string) (string, error) {
	// 1. Explicit path takes precedence
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			if os.IsNotExist(err) {
				return "", errors.WrapWithCode(err, errors.ErrConfig,
					"Specified config file not found: "+explicit,
					"Check the path is correct")
			}
			return "", errors.WrapWithCode(err, errors.ErrConfig,
				"Cannot access config file: "+explicit,
				"Check file permissions")
		}
		return explicit, nil
	}

	// 2. Current directory
	cwd, err := os.Getwd()
	if err != nil {
		return "", errors.WrapWithCode(err, errors.ErrConfig,
			"Cannot determine current directory",
			"Check directory permissions")
	}

	localConfig := filepath.Join(cwd, ConfigFileName)
	if _, err := os.Stat(localConfig); err == nil {
		return localConfig, nil
	}

	// 3. Walk up to parent directories
	home, _ := os.UserHomeDir()
	dir := cwd
	for {
		if isGitRoot(dir) {
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached filesystem root
			break
		}
		if home != "" && parent == home {
			// Don't go above home directory
			break
		}
		dir = parent

		configPath := filepath.Join(dir, ConfigFileName)
		if _, err := os.Stat(configPath); err == nil {
			return configPath, nil
		}
	}

	// 4. Global config
	if home != "" {
		globalConfig := filepath.Join(home, GlobalConfigDir, GlobalConfigFile)
		if _, err := os.Stat(globalConfig); err == nil {
			return globalConfig, nil
		}
	}

	return "", nil
}

// LoadOrDefault loads config from the found path, or returns defaults if not
// found. The returned path is empty when defaults were used.
func LoadOrDefault(explicit string) (*Config, string, error) {
	path, err := Find(explicit)
	if err != nil {
		return nil, "", err
	}

	if path == "" {
		v := newViper()
		cfg, err := parseConfig(v, "")
		return cfg, "", err
	}

	cfg, err := Load(path)
	return cfg, path, err
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, DefaultConfig())
	return v
}

// setDefaults registers every scalar default with viper so that
// AutomaticEnv can override keys that the file doesn't mention.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("version", d.Version)
	v.SetDefault("agent.name", d.Agent.Name)
	v.SetDefault("agent.install_dir", d.Agent.InstallDir)
	v.SetDefault("artifact.root", d.Artifact.Root)
	v.SetDefault("artifact.path", d.Artifact.Path)
	v.SetDefault("ssh.connect_timeout", d.SSH.ConnectTimeout)
	v.SetDefault("ssh.check_timeout", d.SSH.CheckTimeout)
	v.SetDefault("ssh.host_key_policy", d.SSH.HostKeyPolicy)
	v.SetDefault("ssh.known_hosts", d.SSH.KnownHosts)
	v.SetDefault("verify.settle_delay", d.Verify.SettleDelay)
	v.SetDefault("verify.poll_interval", d.Verify.PollInterval)
	v.SetDefault("verify.max_wait", d.Verify.MaxWait)
	v.SetDefault("verify.log_lines", d.Verify.LogLines)
	v.SetDefault("lease.enabled", d.Lease.Enabled)
	v.SetDefault("lease.backend", d.Lease.Backend)
	v.SetDefault("lease.wait", d.Lease.Wait)
	v.SetDefault("lease.ttl", d.Lease.TTL)
	v.SetDefault("lease.redis_addr", d.Lease.RedisAddr)
	v.SetDefault("lease.prefix", d.Lease.Prefix)
	v.SetDefault("store.path", d.Store.Path)
	v.SetDefault("server.listen", d.Server.Listen)
	v.SetDefault("server.metrics", d.Server.Metrics)
	v.SetDefault("output.color", d.Output.Color)
}

// parseConfig converts viper config to our Config struct with defaults merged in.
func parseConfig(v *viper.Viper, path string) (*Config, error) {
	cfg := DefaultConfig()

	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			"Invalid config format",
			"Check the YAML syntax in "+path)
	}
	if cfg.Hosts == nil {
		cfg.Hosts = make(map[string]Host)
	}

	// Local paths: expand variables and ~, and anchor the deployment root
	// at the config file's directory.
	cfg.Artifact.Root = ExpandTilde(Expand(cfg.Artifact.Root))
	if !filepath.IsAbs(cfg.Artifact.Root) {
		cfg.Artifact.Root = filepath.Join(configDir(path), cfg.Artifact.Root)
	}
	cfg.Artifact.Path = ExpandTilde(Expand(cfg.Artifact.Path))
	cfg.Store.Path = ExpandTilde(Expand(cfg.Store.Path))
	cfg.SSH.KnownHosts = ExpandTilde(Expand(cfg.SSH.KnownHosts))
	for name, h := range cfg.Hosts {
		h.KeyFile = ExpandTilde(Expand(h.KeyFile))
		cfg.Hosts[name] = h
	}

	return cfg, nil
}

// configDir returns the directory containing the config file.
func configDir(configPath string) string {
	if configPath == "" {
		cwd, _ := os.Getwd()
		return cwd
	}
	return filepath.Dir(configPath)
}

// isGitRoot checks if a directory is a git repository root.
func isGitRoot(dir string) bool {
	gitPath := filepath.Join(dir, ".git")
	info, err := os.Stat(gitPath)
	if err != nil {
		return false
	}
	return info.IsDir()
}
