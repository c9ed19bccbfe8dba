package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jihwankim/fleet-utils/pkg/chain"
	"github.com/jihwankim/fleet-utils/pkg/fleet"
	"github.com/jihwankim/fleet-utils/pkg/lifecycle"
	"github.com/jihwankim/fleet-utils/pkg/metrics"
	"github.com/jihwankim/fleet-utils/pkg/plan"
	"github.com/jihwankim/fleet-utils/pkg/reporting"
	"github.com/jihwankim/fleet-utils/pkg/runtime/docker"
	"github.com/jihwankim/fleet-utils/pkg/statedir"
)

var upCmd = &cobra.Command{
	Use:   "up",
	Args:  cobra.NoArgs,
	Short: "Start the declared fleet and supervise it",
	Long: `Plans the fleet declaration, publishes the routing table, starts every
instance in dependency order, and supervises the fleet until interrupted.
Instances are stopped in reverse start order on shutdown.`,
	RunE: runUp,
}

func init() {
	upCmd.Flags().String("fleet", "", "path to fleet declaration YAML file")
	upCmd.Flags().Bool("skip-chain-check", false, "skip RPC chain id verification")
}

func runUp(cmd *cobra.Command, args []string) error {
	fleetPath, _ := cmd.Flags().GetString("fleet")
	skipChainCheck, _ := cmd.Flags().GetBool("skip-chain-check")

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger := newLogger(cfg)
	logger.Info("Fleet Runner starting", "version", version)

	pl, decl, err := loadPlan(cfg, fleetPath)
	if err != nil {
		return err
	}
	for _, warning := range pl.Warnings {
		logger.Warn(warning)
	}
	logger.Info("Fleet planned",
		"fleet", decl.Metadata.Name,
		"run_id", pl.RunID,
		"instances", len(pl.Instances),
		"routes", len(pl.Routes.Rules))

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if !skipChainCheck {
		logger.Info("Verifying chain environments", "chains", len(decl.Spec.Chains))
		if err := chain.VerifyAll(ctx, decl.Spec.Chains, chain.DefaultProbeTimeout); err != nil {
			return fmt.Errorf("chain verification failed: %w", err)
		}
	}

	// Routing publication is serialized with declaration changes: the
	// table is written before any instance starts, so the proxy never
	// sees a rule for an undeclared instance.
	if err := pl.Routes.Save(cfg.Routing.OutputFile); err != nil {
		return err
	}
	logger.Info("Routing table published", "path", cfg.Routing.OutputFile)

	rt, err := docker.NewRuntime(ctx, docker.Config{
		Network:     cfg.Docker.Network,
		BaseDomain:  pl.Routes.BaseDomain,
		StopTimeout: cfg.Docker.StopTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to create Docker runtime: %w", err)
	}
	defer rt.Close()

	manager := lifecycle.New(lifecycle.Config{
		InitialBackoff: cfg.Restart.InitialBackoff,
		MaxBackoff:     cfg.Restart.MaxBackoff,
		HealthyReset:   cfg.Restart.HealthyReset,
		StartTimeout:   cfg.Restart.StartTimeout,
		StopTimeout:    cfg.Docker.StopTimeout,
	}, rt, statedir.New(cfg.State.Root), logger)

	if cfg.Metrics.Enabled {
		collector := metrics.New()
		manager.SetObserver(collector)
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.ListenAddr, collector); err != nil {
				logger.Warn("Metrics listener stopped", "error", err)
			}
		}()
		logger.Info("Metrics listener started", "addr", cfg.Metrics.ListenAddr)
	}

	storage, err := reporting.NewStorage(cfg.Reporting.OutputDir, cfg.Reporting.KeepLastN, logger)
	if err != nil {
		return fmt.Errorf("failed to create report storage: %w", err)
	}

	startTime := time.Now()
	logger.Info("Starting fleet", "order", fmt.Sprintf("%v", pl.StartOrder()))
	runErr := manager.Run(ctx, pl.Instances, pl.Graph)

	statuses := manager.Status()
	if err := reporting.WriteStatusTable(os.Stdout, statuses, reporting.FormatText); err != nil {
		logger.Warn("Failed to render status table", "error", err)
	}

	report := buildReport(pl, decl, statuses, startTime, "up", runErr)
	if _, saveErr := storage.SaveReport(report); saveErr != nil {
		logger.Warn("Failed to save report", "error", saveErr)
	}

	if runErr != nil {
		return fmt.Errorf("fleet run failed: %w", runErr)
	}
	logger.Info("Fleet stopped")
	return nil
}

// buildReport assembles the run report from the final status snapshot.
func buildReport(pl *plan.Plan, decl *fleet.Declaration, statuses []fleet.Status, startTime time.Time, command string, runErr error) *reporting.FleetReport {
	report := &reporting.FleetReport{
		RunID:     pl.RunID,
		FleetName: decl.Metadata.Name,
		Command:   command,
		StartTime: startTime,
		EndTime:   time.Now(),
		Status:    reporting.StatusStopped,
		Success:   runErr == nil,
	}
	report.Duration = report.EndTime.Sub(report.StartTime).String()
	if runErr != nil {
		report.Status = reporting.StatusFailed
		report.Message = runErr.Error()
		report.Errors = append(report.Errors, runErr.Error())
	}

	for _, st := range statuses {
		report.Instances = append(report.Instances, reporting.InstanceOutcome{
			ID:       st.ID,
			Role:     st.Role,
			Chain:    st.Chain,
			State:    st.State.String(),
			Since:    st.Since,
			Reason:   st.Reason,
			Restarts: st.Restarts,
		})
	}
	for _, rule := range pl.Routes.Rules {
		report.Routes = append(report.Routes, reporting.RouteInfo{
			Hostname: rule.Hostname,
			Instance: rule.Instance,
			Target:   rule.Target,
		})
	}
	return report
}
