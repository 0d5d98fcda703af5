package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rileyhilliard/agentdeploy/internal/errors"
	"gopkg.in/yaml.v3"
)

const fileHeader = `# agentdeploy configuration
# Passwords are never stored here. Pass --password, set AGENTDEPLOY_PASSWORD,
# or answer the prompt.
`

// fileConfig mirrors Config with durations as strings, so the written file
// reads "10s" rather than nanoseconds.
type fileConfig struct {
	Version  int             `yaml:"version"`
	Agent    AgentConfig     `yaml:"agent"`
	Artifact ArtifactConfig  `yaml:"artifact"`
	SSH      fileSSH         `yaml:"ssh"`
	Verify   fileVerify      `yaml:"verify"`
	Lease    fileLease       `yaml:"lease"`
	Store    StoreConfig     `yaml:"store"`
	Server   ServerConfig    `yaml:"server"`
	Output   OutputConfig    `yaml:"output"`
	Hosts    map[string]Host `yaml:"hosts"`
}

type fileSSH struct {
	ConnectTimeout string `yaml:"connect_timeout"`
	CheckTimeout   string `yaml:"check_timeout"`
	HostKeyPolicy  string `yaml:"host_key_policy"`
	KnownHosts     string `yaml:"known_hosts"`
}

type fileVerify struct {
	SettleDelay  string `yaml:"settle_delay"`
	PollInterval string `yaml:"poll_interval"`
	MaxWait      string `yaml:"max_wait"`
	LogLines     int    `yaml:"log_lines"`
}

type fileLease struct {
	Enabled   bool   `yaml:"enabled"`
	Backend   string `yaml:"backend"`
	Wait      string `yaml:"wait"`
	TTL       string `yaml:"ttl"`
	RedisAddr string `yaml:"redis_addr,omitempty"`
	Prefix    string `yaml:"prefix"`
}

// Marshal renders cfg as YAML with a short header.
func Marshal(cfg *Config) ([]byte, error) {
	fc := fileConfig{
		Version:  cfg.Version,
		Agent:    cfg.Agent,
		Artifact: cfg.Artifact,
		SSH: fileSSH{
			ConnectTimeout: cfg.SSH.ConnectTimeout.String(),
			CheckTimeout:   cfg.SSH.CheckTimeout.String(),
			HostKeyPolicy:  cfg.SSH.HostKeyPolicy,
			KnownHosts:     cfg.SSH.KnownHosts,
		},
		Verify: fileVerify{
			SettleDelay:  cfg.Verify.SettleDelay.String(),
			PollInterval: cfg.Verify.PollInterval.String(),
			MaxWait:      cfg.Verify.MaxWait.String(),
			LogLines:     cfg.Verify.LogLines,
		},
		Lease: fileLease{
			Enabled:   cfg.Lease.Enabled,
			Backend:   cfg.Lease.Backend,
			Wait:      cfg.Lease.Wait.String(),
			TTL:       cfg.Lease.TTL.String(),
			RedisAddr: cfg.Lease.RedisAddr,
			Prefix:    cfg.Lease.Prefix,
		},
		Store:  cfg.Store,
		Server: cfg.Server,
		Output: cfg.Output,
		Hosts:  cfg.Hosts,
	}

	var buf bytes.Buffer
	buf.WriteString(fileHeader)
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(fc); err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	return buf.Bytes(), nil
}

// Write saves cfg to path. It refuses to overwrite an existing file unless
// overwrite is set.
func Write(path string, cfg *Config, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return errors.New(errors.ErrConfig,
				fmt.Sprintf("%s already exists", path),
				"Use --force to overwrite it")
		}
	}

	data, err := Marshal(cfg)
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig, "Couldn't render the config", "")
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.WrapWithCode(err, errors.ErrConfig, "Couldn't create "+dir, "Check directory permissions")
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig, "Couldn't write "+path, "Check directory permissions")
	}
	return nil
}
