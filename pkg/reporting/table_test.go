package reporting

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jihwankim/fleet-utils/pkg/fleet"
)

func sampleStatuses() []fleet.Status {
	return []fleet.Status{
		{ID: "ms-ropsten", Role: fleet.RoleMonitoring, Chain: "ropsten", State: fleet.StateRunning, Since: time.Now()},
		{ID: "msrc-ropsten", Role: fleet.RoleRequestCollector, Chain: "ropsten", State: fleet.StatePending,
			Reason: "waiting for dependency ms-ropsten (FAILED)", Restarts: 3},
	}
}

func TestWriteStatusTableText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteStatusTable(&buf, sampleStatuses(), FormatText))

	out := buf.String()
	assert.Contains(t, out, "INSTANCE")
	assert.Contains(t, out, "ms-ropsten")
	assert.Contains(t, out, "RUNNING")
	assert.Contains(t, out, "waiting for dependency ms-ropsten (FAILED)")
}

func TestWriteStatusTableJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteStatusTable(&buf, sampleStatuses(), FormatJSON))

	var decoded []fleet.Status
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded, 2)
	assert.Equal(t, "RUNNING", decoded[0].StateStr)
	assert.Equal(t, 3, decoded[1].Restarts)
}
