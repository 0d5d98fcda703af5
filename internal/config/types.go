package config

import "time"

// CurrentConfigVersion is the schema version for the config file.
// Increment when making breaking changes to the config structure.
const CurrentConfigVersion = 1

// Config represents the complete .agentdeploy.yaml configuration file.
type Config struct {
	Version  int             `yaml:"version" mapstructure:"version"`
	Agent    AgentConfig     `yaml:"agent" mapstructure:"agent"`
	Artifact ArtifactConfig  `yaml:"artifact" mapstructure:"artifact"`
	SSH      SSHConfig       `yaml:"ssh" mapstructure:"ssh"`
	Verify   VerifyConfig    `yaml:"verify" mapstructure:"verify"`
	Lease    LeaseConfig     `yaml:"lease" mapstructure:"lease"`
	Store    StoreConfig     `yaml:"store" mapstructure:"store"`
	Server   ServerConfig    `yaml:"server" mapstructure:"server"`
	Output   OutputConfig    `yaml:"output" mapstructure:"output"`
	Hosts    map[string]Host `yaml:"hosts" mapstructure:"hosts"`
}

// AgentConfig describes the agent process and where it is installed.
// Both values are interpolated into remote shell commands.
type AgentConfig struct {
	Name       string `yaml:"name" mapstructure:"name"`
	InstallDir string `yaml:"install_dir" mapstructure:"install_dir"`
}

// ArtifactConfig locates the local install package.
type ArtifactConfig struct {
	// Root is the deployment root. Relative roots are taken relative to the
	// directory holding the config file.
	Root string `yaml:"root" mapstructure:"root"`

	// Path is the package, relative to Root unless absolute.
	Path string `yaml:"path" mapstructure:"path"`
}

// SSHConfig controls how sessions are opened.
type SSHConfig struct {
	ConnectTimeout time.Duration `yaml:"connect_timeout" mapstructure:"connect_timeout"`
	CheckTimeout   time.Duration `yaml:"check_timeout" mapstructure:"check_timeout"`

	// HostKeyPolicy is "accept-any" or "known-hosts".
	HostKeyPolicy string `yaml:"host_key_policy" mapstructure:"host_key_policy"`
	KnownHosts    string `yaml:"known_hosts" mapstructure:"known_hosts"`
}

// VerifyConfig controls the post-launch checks.
type VerifyConfig struct {
	SettleDelay  time.Duration `yaml:"settle_delay" mapstructure:"settle_delay"`
	PollInterval time.Duration `yaml:"poll_interval" mapstructure:"poll_interval"`
	MaxWait      time.Duration `yaml:"max_wait" mapstructure:"max_wait"`

	// LogLines is how much of the agent log a stale install reports.
	LogLines int `yaml:"log_lines" mapstructure:"log_lines"`
}

// LeaseConfig controls per-host mutual exclusion between deployments.
type LeaseConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`

	// Backend is "local" (one process) or "redis" (shared).
	Backend string `yaml:"backend" mapstructure:"backend"`

	// Wait is how long to wait for a held lease before giving up.
	Wait time.Duration `yaml:"wait" mapstructure:"wait"`

	// TTL is when a lease is considered abandoned (holder probably crashed).
	TTL time.Duration `yaml:"ttl" mapstructure:"ttl"`

	RedisAddr string `yaml:"redis_addr" mapstructure:"redis_addr"`
	Prefix    string `yaml:"prefix" mapstructure:"prefix"`
}

// StoreConfig controls the deployment history database.
type StoreConfig struct {
	// Path is the sqlite file. Empty disables history.
	Path string `yaml:"path" mapstructure:"path"`
}

// ServerConfig controls `agentdeploy serve`.
type ServerConfig struct {
	Listen  string `yaml:"listen" mapstructure:"listen"`
	Metrics bool   `yaml:"metrics" mapstructure:"metrics"`
}

// OutputConfig controls terminal output formatting.
type OutputConfig struct {
	// Color mode: "auto", "always", or "never".
	// "auto" disables color when output is piped.
	Color string `yaml:"color" mapstructure:"color"`
}

// Host is a named deployment target. Passwords are never stored here; they
// come from the command line, the environment or a prompt.
type Host struct {
	// Address is host, host:port, or an ~/.ssh/config alias.
	Address  string `yaml:"address" mapstructure:"address"`
	Username string `yaml:"username" mapstructure:"username"`

	// KeyFile is a private key to authenticate with instead of a password.
	KeyFile string `yaml:"key_file,omitempty" mapstructure:"key_file"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Version: CurrentConfigVersion,
		Agent: AgentConfig{
			Name:       "nc_agent",
			InstallDir: "/opt/nc_agent",
		},
		Artifact: ArtifactConfig{
			Path: "static/install.tar.gz",
		},
		SSH: SSHConfig{
			ConnectTimeout: 10 * time.Second,
			CheckTimeout:   5 * time.Second,
			HostKeyPolicy:  "accept-any",
			KnownHosts:     "~/.ssh/known_hosts",
		},
		Verify: VerifyConfig{
			SettleDelay: 2 * time.Second,
			LogLines:    20,
		},
		Lease: LeaseConfig{
			Enabled: true,
			Backend: "local",
			Wait:    0,
			TTL:     10 * time.Minute,
			Prefix:  "agentdeploy:lease:",
		},
		Store: StoreConfig{
			Path: "~/.config/agentdeploy/deployments.db",
		},
		Server: ServerConfig{
			Listen:  "127.0.0.1:8080",
			Metrics: true,
		},
		Output: OutputConfig{
			Color: "auto",
		},
		Hosts: make(map[string]Host),
	}
}

// ResolveHost returns the configured host called nameOrAddress, or a Host
// built from it when no such name is configured. The second result reports
// whether the name was found.
func (c *Config) ResolveHost(nameOrAddress string) (Host, bool) {
	if h, ok := c.Hosts[nameOrAddress]; ok {
		return h, true
	}
	return Host{Address: nameOrAddress}, false
}
