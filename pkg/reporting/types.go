package reporting

import (
	"time"

	"github.com/jihwankim/fleet-utils/pkg/fleet"
)

// FleetReport records the outcome of one orchestration run.
type FleetReport struct {
	RunID     string    `json:"run_id"`
	FleetName string    `json:"fleet_name"`
	Command   string    `json:"command"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Duration  string    `json:"duration"`

	Status  RunStatus `json:"status"`
	Success bool      `json:"success"`
	Message string    `json:"message,omitempty"`

	Instances []InstanceOutcome `json:"instances"`
	Routes    []RouteInfo       `json:"routes,omitempty"`
	Errors    []string          `json:"errors,omitempty"`
}

// RunStatus represents the status of an orchestration run.
type RunStatus string

const (
	StatusRunning   RunStatus = "running"
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
	StatusStopped   RunStatus = "stopped"
)

// InstanceOutcome records the final observed state of one instance.
type InstanceOutcome struct {
	ID       fleet.InstanceID `json:"id"`
	Role     fleet.Role       `json:"role"`
	Chain    string           `json:"chain,omitempty"`
	State    string           `json:"state"`
	Since    time.Time        `json:"since"`
	Reason   string           `json:"reason,omitempty"`
	Restarts int              `json:"restarts"`
}

// RouteInfo records one published routing rule.
type RouteInfo struct {
	Hostname string           `json:"hostname"`
	Instance fleet.InstanceID `json:"instance"`
	Target   string           `json:"target"`
}

// ReportSummary is a lightweight view of a stored report.
type ReportSummary struct {
	RunID     string    `json:"run_id"`
	FleetName string    `json:"fleet_name"`
	Command   string    `json:"command"`
	StartTime time.Time `json:"start_time"`
	Status    RunStatus `json:"status"`
	Success   bool      `json:"success"`
	Path      string    `json:"path"`
}
