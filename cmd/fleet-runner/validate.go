package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jihwankim/fleet-utils/pkg/chain"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Args:  cobra.NoArgs,
	Short: "Validate a fleet declaration without starting anything",
	Long: `Validate parses a fleet declaration, resolves the configuration of every
instance, and derives the dependency graph and routing table. It reports
the start order and any warnings, but never touches Docker.`,
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().StringP("fleet", "f", "", "fleet declaration file (required)")
	validateCmd.Flags().Bool("graph", false, "print the dependency graph in DOT format")
	validateCmd.Flags().Bool("check-chains", false, "probe every declared RPC endpoint and verify its chain id")
	validateCmd.MarkFlagRequired("fleet")
}

func runValidate(cmd *cobra.Command, args []string) error {
	fleetPath, _ := cmd.Flags().GetString("fleet")
	printGraph, _ := cmd.Flags().GetBool("graph")
	checkChains, _ := cmd.Flags().GetBool("check-chains")

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	pl, decl, err := loadPlan(cfg, fleetPath)
	if err != nil {
		return err
	}

	if printGraph {
		fmt.Print(pl.Graph.DOT())
		return nil
	}

	for _, w := range pl.Warnings {
		fmt.Printf("Warning: %s\n", w)
	}

	fmt.Printf("Fleet %q is valid: %d instances, %d chains, %d routes\n",
		decl.Metadata.Name, len(pl.Instances), len(decl.Spec.Chains), len(pl.Routes.Rules))

	fmt.Println("\nStart order:")
	for i, id := range pl.StartOrder() {
		fmt.Printf("  %2d. %s\n", i+1, id)
	}

	fmt.Println("\nRoutes:")
	for _, rule := range pl.Routes.Rules {
		fmt.Printf("  %s -> %s\n", rule.Hostname, rule.Target)
	}

	if checkChains {
		fmt.Println("\nProbing chain RPC endpoints...")
		if err := chain.VerifyAll(cmd.Context(), decl.Spec.Chains, chain.DefaultProbeTimeout); err != nil {
			return err
		}
		fmt.Println("All chain endpoints verified")
	}

	return nil
}
