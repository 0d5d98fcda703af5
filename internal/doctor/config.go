package doctor

import (
	"fmt"
	"path/filepath"

	"github.com/rileyhilliard/agentdeploy/internal/config"
	"github.com/rileyhilliard/agentdeploy/internal/errors"
)

// ConfigFileCheck verifies that a config file exists. Deployments work on
// defaults without one, so a missing file is only a warning.
type ConfigFileCheck struct {
	ConfigPath string // Explicit path, or empty to search
	// FixPath is where Fix writes a default config. Empty means
	// ./.agentdeploy.yaml.
	FixPath string
}

func (c *ConfigFileCheck) Name() string     { return "config_file" }
func (c *ConfigFileCheck) Category() string { return CategoryConfig }

func (c *ConfigFileCheck) Run() CheckResult {
	path, err := config.Find(c.ConfigPath)
	if err != nil {
		return CheckResult{
			Name:       c.Name(),
			Status:     StatusFail,
			Message:    errors.MessageOf(err),
			Suggestion: "Check the --config path or run 'agentdeploy init'",
		}
	}

	if path == "" {
		return CheckResult{
			Name:       c.Name(),
			Status:     StatusWarn,
			Message:    "No config file found, using defaults",
			Suggestion: "Run 'agentdeploy init' to create a " + config.ConfigFileName,
			Fixable:    true,
		}
	}

	return CheckResult{
		Name:    c.Name(),
		Status:  StatusPass,
		Message: fmt.Sprintf("Config file: %s", filepath.Base(path)),
	}
}

// Fix writes the default config.
func (c *ConfigFileCheck) Fix() error {
	path := c.FixPath
	if path == "" {
		path = config.ConfigFileName
	}
	return config.Write(path, config.DefaultConfig(), false)
}

// ConfigSchemaCheck validates an already loaded config.
type ConfigSchemaCheck struct {
	Config  *config.Config
	LoadErr error // error from loading, reported instead of validating
}

func (c *ConfigSchemaCheck) Name() string     { return "config_schema" }
func (c *ConfigSchemaCheck) Category() string { return CategoryConfig }

func (c *ConfigSchemaCheck) Run() CheckResult {
	if c.LoadErr != nil {
		return CheckResult{
			Name:       c.Name(),
			Status:     StatusFail,
			Message:    "Failed to load config: " + errors.MessageOf(c.LoadErr),
			Suggestion: "Check the YAML syntax in your config file",
		}
	}
	if c.Config == nil {
		return CheckResult{Name: c.Name(), Status: StatusFail, Message: "No config to validate"}
	}

	if err := config.Validate(c.Config); err != nil {
		suggestion := errors.SuggestionOf(err)
		if suggestion == "" {
			suggestion = "Fix the configuration errors in " + config.ConfigFileName
		}
		return CheckResult{
			Name:       c.Name(),
			Status:     StatusFail,
			Message:    "Schema error: " + errors.MessageOf(err),
			Suggestion: suggestion,
		}
	}

	return CheckResult{
		Name:    c.Name(),
		Status:  StatusPass,
		Message: fmt.Sprintf("Schema valid (agent %s in %s)", c.Config.Agent.Name, c.Config.Agent.InstallDir),
	}
}

func (c *ConfigSchemaCheck) Fix() error {
	return nil // Schema issues require manual intervention
}

// ConfigHostsCheck reports how many hosts are configured.
type ConfigHostsCheck struct {
	Config *config.Config
}

func (c *ConfigHostsCheck) Name() string     { return "config_hosts" }
func (c *ConfigHostsCheck) Category() string { return CategoryConfig }

func (c *ConfigHostsCheck) Run() CheckResult {
	if c.Config == nil || len(c.Config.Hosts) == 0 {
		return CheckResult{
			Name:       c.Name(),
			Status:     StatusWarn,
			Message:    "No hosts configured",
			Suggestion: "Deploy by address, or add one with 'agentdeploy host add'",
		}
	}

	n := len(c.Config.Hosts)
	return CheckResult{
		Name:    c.Name(),
		Status:  StatusPass,
		Message: fmt.Sprintf("%d host%s configured", n, pluralize(n)),
	}
}

func (c *ConfigHostsCheck) Fix() error {
	return nil
}

// NewConfigChecks creates all config-related checks. cfg and loadErr come
// from loading configPath once up front.
func NewConfigChecks(configPath string, cfg *config.Config, loadErr error) []Check {
	return []Check{
		&ConfigFileCheck{ConfigPath: configPath},
		&ConfigSchemaCheck{Config: cfg, LoadErr: loadErr},
		&ConfigHostsCheck{Config: cfg},
	}
}
