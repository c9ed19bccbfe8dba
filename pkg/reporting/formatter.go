package reporting

import (
	"bytes"
	"fmt"
	"html/template"
	"os"
	"strings"
	"time"
)

// ReportFormat represents the report output format
type ReportFormat string

const (
	ReportFormatHTML ReportFormat = "html"
	ReportFormatText ReportFormat = "text"
	ReportFormatJSON ReportFormat = "json"
)

// Formatter generates formatted reports from fleet run data
type Formatter struct {
	logger *Logger
}

// NewFormatter creates a new report formatter
func NewFormatter(logger *Logger) *Formatter {
	return &Formatter{
		logger: logger,
	}
}

// GenerateReport generates a report in the specified format
func (f *Formatter) GenerateReport(report *FleetReport, format ReportFormat, outputPath string) error {
	switch format {
	case ReportFormatHTML:
		return f.generateHTMLReport(report, outputPath)
	case ReportFormatText:
		return f.generateTextReport(report, outputPath)
	case ReportFormatJSON:
		// Already handled by storage
		return fmt.Errorf("JSON format is automatically saved by storage")
	default:
		return fmt.Errorf("unsupported report format: %s", format)
	}
}

// generateHTMLReport generates an HTML report
func (f *Formatter) generateHTMLReport(report *FleetReport, outputPath string) error {
	tmpl, err := template.New("report").Funcs(template.FuncMap{
		"formatTime": func(t time.Time) string {
			return t.Format("2006-01-02 15:04:05")
		},
		"statusClass": func(success bool) string {
			if success {
				return "pass"
			}
			return "fail"
		},
	}).Parse(htmlTemplate)

	if err != nil {
		return fmt.Errorf("failed to parse HTML template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, report); err != nil {
		return fmt.Errorf("failed to execute template: %w", err)
	}

	if err := os.WriteFile(outputPath, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write HTML report: %w", err)
	}

	f.logger.Info("HTML report generated", "path", outputPath)
	return nil
}

// generateTextReport generates a plain text report
func (f *Formatter) generateTextReport(report *FleetReport, outputPath string) error {
	var buf bytes.Buffer

	// Header
	buf.WriteString(strings.Repeat("=", 80) + "\n")
	buf.WriteString("   FLEET RUN REPORT\n")
	buf.WriteString(strings.Repeat("=", 80) + "\n\n")

	// Run Summary
	status := "SUCCEEDED"
	if !report.Success {
		status = "FAILED"
	}
	if report.Status == StatusStopped {
		status = "STOPPED"
	}

	buf.WriteString("RUN SUMMARY\n")
	buf.WriteString(strings.Repeat("-", 80) + "\n")
	buf.WriteString(fmt.Sprintf("Status:       %s\n", status))
	buf.WriteString(fmt.Sprintf("Run ID:       %s\n", report.RunID))
	buf.WriteString(fmt.Sprintf("Fleet:        %s\n", report.FleetName))
	buf.WriteString(fmt.Sprintf("Command:      %s\n", report.Command))
	buf.WriteString(fmt.Sprintf("Start Time:   %s\n", report.StartTime.Format("2006-01-02 15:04:05")))
	buf.WriteString(fmt.Sprintf("End Time:     %s\n", report.EndTime.Format("2006-01-02 15:04:05")))
	buf.WriteString(fmt.Sprintf("Duration:     %s\n", report.Duration))
	if report.Message != "" {
		buf.WriteString(fmt.Sprintf("Message:      %s\n", report.Message))
	}
	buf.WriteString("\n")

	// Instances
	if len(report.Instances) > 0 {
		buf.WriteString("INSTANCES\n")
		buf.WriteString(strings.Repeat("-", 80) + "\n")
		for i, inst := range report.Instances {
			buf.WriteString(fmt.Sprintf("%d. %s\n", i+1, inst.ID))
			buf.WriteString(fmt.Sprintf("   Role:       %s\n", inst.Role))
			if inst.Chain != "" {
				buf.WriteString(fmt.Sprintf("   Chain:      %s\n", inst.Chain))
			}
			buf.WriteString(fmt.Sprintf("   State:      %s\n", inst.State))
			buf.WriteString(fmt.Sprintf("   Restarts:   %d\n", inst.Restarts))
			if inst.Reason != "" {
				buf.WriteString(fmt.Sprintf("   Reason:     %s\n", inst.Reason))
			}
			buf.WriteString("\n")
		}
	}

	// Routes
	if len(report.Routes) > 0 {
		buf.WriteString("PUBLISHED ROUTES\n")
		buf.WriteString(strings.Repeat("-", 80) + "\n")
		for i, route := range report.Routes {
			buf.WriteString(fmt.Sprintf("%d. %s -> %s\n", i+1, route.Hostname, route.Target))
		}
		buf.WriteString("\n")
	}

	// Errors
	if len(report.Errors) > 0 {
		buf.WriteString("ERRORS\n")
		buf.WriteString(strings.Repeat("-", 80) + "\n")
		for i, msg := range report.Errors {
			buf.WriteString(fmt.Sprintf("%d. %s\n", i+1, msg))
		}
		buf.WriteString("\n")
	}

	buf.WriteString(strings.Repeat("=", 80) + "\n")

	if err := os.WriteFile(outputPath, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write text report: %w", err)
	}

	f.logger.Info("Text report generated", "path", outputPath)
	return nil
}

const htmlTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Fleet Run Report - {{.FleetName}}</title>
<style>
body { font-family: -apple-system, sans-serif; margin: 2em; color: #222; }
h1 { border-bottom: 2px solid #444; padding-bottom: 0.3em; }
table { border-collapse: collapse; margin: 1em 0; width: 100%; }
th, td { border: 1px solid #ccc; padding: 0.4em 0.8em; text-align: left; }
th { background: #f0f0f0; }
.pass { color: #1a7f37; font-weight: bold; }
.fail { color: #cf222e; font-weight: bold; }
.meta { color: #666; }
</style>
</head>
<body>
<h1>Fleet Run Report</h1>
<p class="meta">Run {{.RunID}} &middot; fleet {{.FleetName}} &middot; command {{.Command}}</p>
<p>Status: <span class="{{statusClass .Success}}">{{.Status}}</span></p>
<p>Started {{formatTime .StartTime}}, finished {{formatTime .EndTime}} ({{.Duration}})</p>
{{if .Message}}<p>{{.Message}}</p>{{end}}

{{if .Instances}}
<h2>Instances</h2>
<table>
<tr><th>Instance</th><th>Role</th><th>Chain</th><th>State</th><th>Restarts</th><th>Reason</th></tr>
{{range .Instances}}
<tr><td>{{.ID}}</td><td>{{.Role}}</td><td>{{.Chain}}</td><td>{{.State}}</td><td>{{.Restarts}}</td><td>{{.Reason}}</td></tr>
{{end}}
</table>
{{end}}

{{if .Routes}}
<h2>Published Routes</h2>
<table>
<tr><th>Hostname</th><th>Instance</th><th>Target</th></tr>
{{range .Routes}}
<tr><td>{{.Hostname}}</td><td>{{.Instance}}</td><td>{{.Target}}</td></tr>
{{end}}
</table>
{{end}}

{{if .Errors}}
<h2>Errors</h2>
<ul>
{{range .Errors}}<li>{{.}}</li>{{end}}
</ul>
{{end}}
</body>
</html>
`
