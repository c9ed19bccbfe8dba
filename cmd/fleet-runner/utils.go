package main

import (
	"fmt"
	"os"

	"github.com/jihwankim/fleet-utils/pkg/config"
	"github.com/jihwankim/fleet-utils/pkg/fleet"
	"github.com/jihwankim/fleet-utils/pkg/fleet/parser"
	"github.com/jihwankim/fleet-utils/pkg/plan"
	"github.com/jihwankim/fleet-utils/pkg/reporting"
)

// loadConfig loads the configuration from file, auto-generating if needed
func loadConfig() (*config.Config, error) {
	configPath := cfgFile
	if configPath == "" {
		configPath = "config.yaml"
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		fmt.Printf("Config file not found, creating default configuration at: %s\n", configPath)

		cfg := config.DefaultConfig()
		if err := cfg.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		return cfg, nil
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", configPath, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadPlan parses the fleet declaration and builds the orchestration plan.
func loadPlan(cfg *config.Config, fleetPath string) (*plan.Plan, *fleet.Declaration, error) {
	if fleetPath == "" {
		return nil, nil, fmt.Errorf("--fleet flag is required")
	}

	p := parser.New(nil)
	decl, err := p.ParseFile(fleetPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse fleet declaration: %w", err)
	}

	pl, err := plan.Build(cfg, decl)
	if err != nil {
		return nil, nil, err
	}
	return pl, decl, nil
}

// newLogger builds the orchestrator logger from config and the --verbose
// flag.
func newLogger(cfg *config.Config) *reporting.Logger {
	level := reporting.LogLevel(cfg.Framework.LogLevel)
	if verbose {
		level = reporting.LogLevelDebug
	}
	return reporting.NewLogger(reporting.LoggerConfig{
		Level:  level,
		Format: reporting.LogFormat(cfg.Framework.LogFormat),
		Output: os.Stdout,
	})
}
