package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jihwankim/fleet-utils/pkg/runtime/docker"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Args:  cobra.NoArgs,
	Short: "Show the state of all fleet instances",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().String("format", "text", "output format (text, json)")
}

func runStatus(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

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
		fmt.Println("No fleet containers found")
		return nil
	}

	if format == "json" {
		return printJSON(discovered)
	}

	const rowFormat = "%-24s %-18s %-10s %-10s %s\n"
	fmt.Printf(rowFormat, "INSTANCE", "ROLE", "CHAIN", "STATE", "STATUS")
	fmt.Println(strings.Repeat("-", 80))
	for _, ctr := range discovered {
		chainName := ctr.Chain
		if chainName == "" {
			chainName = "-"
		}
		fmt.Printf(rowFormat, ctr.Instance, ctr.Role, chainName, ctr.State, ctr.Status)
	}
	return nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
