package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jihwankim/fleet-utils/pkg/reporting"
)

var reportsCmd = &cobra.Command{
	Use:   "reports [run-id]",
	Args:  cobra.MaximumNArgs(1),
	Short: "List stored fleet run reports, or export one",
	RunE:  runReports,
}

func init() {
	reportsCmd.Flags().String("format", "text", "export format for a single report (text, html)")
	reportsCmd.Flags().StringP("output", "o", "", "export path for a single report")
}

func runReports(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger := newLogger(cfg)

	storage, err := reporting.NewStorage(cfg.Reporting.OutputDir, cfg.Reporting.KeepLastN, logger)
	if err != nil {
		return fmt.Errorf("failed to open report storage: %w", err)
	}

	summaries, err := storage.ListReports()
	if err != nil {
		return err
	}

	if len(args) == 0 {
		if len(summaries) == 0 {
			fmt.Println("No reports found")
			return nil
		}
		const rowFormat = "%-20s %-36s %-10s %-10s %s\n"
		fmt.Printf(rowFormat, "START", "RUN ID", "COMMAND", "STATUS", "FLEET")
		fmt.Println(strings.Repeat("-", 96))
		for _, s := range summaries {
			fmt.Printf(rowFormat, s.StartTime.Format("2006-01-02 15:04:05"), s.RunID, s.Command, s.Status, s.FleetName)
		}
		return nil
	}

	runID := args[0]
	for _, s := range summaries {
		if s.RunID != runID {
			continue
		}
		report, err := storage.LoadReport(s.Path)
		if err != nil {
			return err
		}

		format, _ := cmd.Flags().GetString("format")
		output, _ := cmd.Flags().GetString("output")
		if output == "" {
			output = fmt.Sprintf("fleet-report-%s.%s", runID, format)
		}
		formatter := reporting.NewFormatter(logger)
		if err := formatter.GenerateReport(report, reporting.ReportFormat(format), output); err != nil {
			return err
		}
		fmt.Printf("Report exported to %s\n", output)
		return nil
	}

	return fmt.Errorf("no report found for run id %s", runID)
}
