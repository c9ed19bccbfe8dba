package reporting

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jihwankim/fleet-utils/pkg/fleet"
)

// OutputFormat represents the status output format
type OutputFormat string

const (
	FormatText OutputFormat = "text"
	FormatJSON OutputFormat = "json"
)

// WriteStatusTable renders instance statuses in the requested format.
func WriteStatusTable(w io.Writer, statuses []fleet.Status, format OutputFormat) error {
	if format == FormatJSON {
		for i := range statuses {
			statuses[i].StateStr = statuses[i].State.String()
		}
		data, err := json.MarshalIndent(statuses, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal statuses: %w", err)
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	}

	const rowFormat = "%-24s %-18s %-10s %-9s %-8s %-10s %s\n"
	fmt.Fprintf(w, rowFormat, "INSTANCE", "ROLE", "CHAIN", "STATE", "RESTARTS", "SINCE", "REASON")
	fmt.Fprintln(w, strings.Repeat("-", 96))
	for _, st := range statuses {
		fmt.Fprintf(w, rowFormat,
			st.ID, st.Role, orDash(st.Chain), st.State,
			fmt.Sprintf("%d", st.Restarts), sinceString(st.Since), orDash(st.Reason))
	}
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func sinceString(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return time.Since(t).Truncate(time.Second).String()
}
