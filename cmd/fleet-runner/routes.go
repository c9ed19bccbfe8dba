package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var routesCmd = &cobra.Command{
	Use:   "routes",
	Args:  cobra.NoArgs,
	Short: "Generate the reverse-proxy routing table for a fleet declaration",
	RunE:  runRoutes,
}

func init() {
	routesCmd.Flags().StringP("fleet", "f", "", "fleet declaration file (required)")
	routesCmd.Flags().StringP("output", "o", "", "write the routing table to a file instead of stdout")
	routesCmd.MarkFlagRequired("fleet")
}

func runRoutes(cmd *cobra.Command, args []string) error {
	fleetPath, _ := cmd.Flags().GetString("fleet")
	output, _ := cmd.Flags().GetString("output")

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	pl, _, err := loadPlan(cfg, fleetPath)
	if err != nil {
		return err
	}

	if output != "" {
		if err := pl.Routes.Save(output); err != nil {
			return err
		}
		fmt.Printf("Routing table written to %s (%d routes)\n", output, len(pl.Routes.Rules))
		return nil
	}

	rendered, err := pl.Routes.Render()
	if err != nil {
		return err
	}
	fmt.Print(string(rendered))
	return nil
}
