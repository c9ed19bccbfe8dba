package main

import (
	"fmt"
	"os"

	"github.com/docker/docker/pkg/stdcopy"
	"github.com/spf13/cobra"

	"github.com/jihwankim/fleet-utils/pkg/fleet"
	"github.com/jihwankim/fleet-utils/pkg/runtime/docker"
)

var logsCmd = &cobra.Command{
	Use:   "logs <instance>",
	Args:  cobra.ExactArgs(1),
	Short: "Stream the logs of a fleet instance",
	RunE:  runLogs,
}

func init() {
	logsCmd.Flags().BoolP("follow", "f", false, "follow log output")
	logsCmd.Flags().String("tail", "all", "number of lines to show from the end of the logs")
}

func runLogs(cmd *cobra.Command, args []string) error {
	follow, _ := cmd.Flags().GetBool("follow")
	tail, _ := cmd.Flags().GetString("tail")

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

	reader, err := rt.Logs(ctx, fleet.InstanceID(args[0]), follow, tail)
	if err != nil {
		return err
	}
	defer reader.Close()

	// Containers run without a TTY, so the stream is multiplexed.
	_, err = stdcopy.StdCopy(os.Stdout, os.Stderr, reader)
	return err
}
