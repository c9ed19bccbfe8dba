package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jihwankim/fleet-utils/pkg/fleet"
	"github.com/jihwankim/fleet-utils/pkg/runtime/docker"
)

var downCmd = &cobra.Command{
	Use:   "down",
	Args:  cobra.NoArgs,
	Short: "Stop all fleet instances",
	Long: `Stops and removes every fleet container in reverse dependency order:
dependents before their dependencies. State directories are left in place;
removing durable state is an explicit operator action.`,
	RunE: runDown,
}

func init() {
	downCmd.Flags().String("fleet", "", "path to fleet declaration YAML file (for stop ordering)")
}

func runDown(cmd *cobra.Command, args []string) error {
	fleetPath, _ := cmd.Flags().GetString("fleet")

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger := newLogger(cfg)

	ctx := cmd.Context()
	rt, err := docker.NewRuntime(ctx, docker.Config{
		Network:     cfg.Docker.Network,
		BaseDomain:  cfg.Routing.BaseDomain,
		StopTimeout: cfg.Docker.StopTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to create Docker runtime: %w", err)
	}
	defer rt.Close()

	discovered, err := rt.ListFleet(ctx)
	if err != nil {
		return err
	}
	if len(discovered) == 0 {
		logger.Info("No fleet containers found")
		return nil
	}

	// With a declaration at hand, stop in reverse start order. Without
	// one, fall back to discovery order with the reverse proxy first so
	// traffic stops before its backends do.
	order := make([]fleet.InstanceID, 0, len(discovered))
	if fleetPath != "" {
		pl, _, err := loadPlan(cfg, fleetPath)
		if err != nil {
			return err
		}
		start := pl.StartOrder()
		for i := len(start) - 1; i >= 0; i-- {
			order = append(order, start[i])
		}
	} else {
		for _, ctr := range discovered {
			if ctr.Role == fleet.RoleReverseProxy {
				order = append(order, ctr.Instance)
			}
		}
		for _, ctr := range discovered {
			if ctr.Role != fleet.RoleReverseProxy {
				order = append(order, ctr.Instance)
			}
		}
	}

	byInstance := make(map[fleet.InstanceID]bool, len(discovered))
	for _, ctr := range discovered {
		byInstance[ctr.Instance] = true
	}

	stopped := 0
	for _, id := range order {
		if !byInstance[id] {
			continue
		}
		logger.Info("Stopping instance", "instance", id)
		if err := rt.StopInstance(ctx, id, cfg.Docker.StopTimeout); err != nil {
			return err
		}
		stopped++
	}

	logger.Info("Fleet stopped", "instances", stopped)
	return nil
}
