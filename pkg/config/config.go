// Package config holds the orchestrator's own configuration, loaded from
// a YAML file with environment variable expansion.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the fleet orchestrator configuration.
type Config struct {
	Framework FrameworkConfig `yaml:"framework"`
	Docker    DockerConfig    `yaml:"docker"`
	State     StateConfig     `yaml:"state"`
	Routing   RoutingConfig   `yaml:"routing"`
	Restart   RestartConfig   `yaml:"restart"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Reporting ReportingConfig `yaml:"reporting"`

	// Defaults are global config template values (log level, keystore
	// file, credentials, deposit amount) shared by every instance.
	Defaults map[string]string `yaml:"defaults,omitempty"`

	// RoleDefaults layer on top of Defaults per role, keyed by role name.
	RoleDefaults map[string]map[string]string `yaml:"role_defaults,omitempty"`
}

// FrameworkConfig contains general settings.
type FrameworkConfig struct {
	Version   string `yaml:"version"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// DockerConfig contains container runtime settings.
type DockerConfig struct {
	// Network is the Docker network every fleet container joins, with its
	// instance identifier as network alias.
	Network string `yaml:"network"`

	// Images maps role short names to the image started for that role.
	Images map[string]string `yaml:"images"`

	StopTimeout time.Duration `yaml:"stop_timeout"`
}

// StateConfig contains durable state settings.
type StateConfig struct {
	Root string `yaml:"root"`
}

// RoutingConfig contains routing table generation settings.
type RoutingConfig struct {
	// BaseDomain is the default DNS suffix for public hostnames; a fleet
	// declaration may override it.
	BaseDomain string `yaml:"base_domain"`

	// OutputFile is where the rendered routing table is published.
	OutputFile string `yaml:"output_file"`
}

// RestartConfig contains the restart-with-backoff policy settings.
type RestartConfig struct {
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`

	// HealthyReset is how long an instance must stay RUNNING before its
	// backoff resets to the initial delay.
	HealthyReset time.Duration `yaml:"healthy_reset"`

	// StartTimeout bounds a single start attempt.
	StartTimeout time.Duration `yaml:"start_timeout"`
}

// MetricsConfig contains the metrics listener settings.
type MetricsConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
}

// ReportingConfig contains run report output settings.
type ReportingConfig struct {
	OutputDir string `yaml:"output_dir"`
	KeepLastN int    `yaml:"keep_last_n"`
}

// DefaultConfig returns a default configuration.
func DefaultConfig() *Config {
	return &Config{
		Framework: FrameworkConfig{
			Version:   "v1",
			LogLevel:  "info",
			LogFormat: "text",
		},
		Docker: DockerConfig{
			Network: "fleet",
			Images: map[string]string{
				"pfs":   "raidennetwork/raiden-services:stable",
				"ms":    "raidennetwork/raiden-services:stable",
				"msrc":  "raidennetwork/raiden-services:stable",
				"proxy": "traefik:v2.10",
			},
			StopTimeout: 30 * time.Second,
		},
		State: StateConfig{
			Root: "/var/lib/fleet/state",
		},
		Routing: RoutingConfig{
			BaseDomain: "services.example.com",
			OutputFile: "./routes.json",
		},
		Restart: RestartConfig{
			InitialBackoff: 1 * time.Second,
			MaxBackoff:     1 * time.Minute,
			HealthyReset:   2 * time.Minute,
			StartTimeout:   2 * time.Minute,
		},
		Metrics: MetricsConfig{
			Enabled:    true,
			ListenAddr: ":9300",
		},
		Reporting: ReportingConfig{
			OutputDir: "./reports",
			KeepLastN: 50,
		},
	}
}

// Load loads configuration from a YAML file, expanding ${VAR} references
// from the environment. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = "config.yaml"
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expanded := []byte(os.ExpandEnv(string(data)))
	if err := yaml.Unmarshal(expanded, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

// Save writes configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Docker.Network == "" {
		return fmt.Errorf("docker.network is required")
	}
	if c.State.Root == "" {
		return fmt.Errorf("state.root is required")
	}
	if c.Routing.BaseDomain == "" {
		return fmt.Errorf("routing.base_domain is required")
	}
	if c.Restart.InitialBackoff <= 0 {
		return fmt.Errorf("restart.initial_backoff must be positive")
	}
	if c.Restart.MaxBackoff < c.Restart.InitialBackoff {
		return fmt.Errorf("restart.max_backoff must be at least restart.initial_backoff")
	}
	if c.Reporting.OutputDir == "" {
		return fmt.Errorf("reporting.output_dir is required")
	}
	return nil
}
