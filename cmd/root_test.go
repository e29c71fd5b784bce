package cmd

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netsandbox/netsandbox/sim/trace"
)

func TestPrintSummary_WritesAlignedReport(t *testing.T) {
	// GIVEN a finished drive with two deliveries
	res := DriveResult{Started: 2, Frames: 5, SimTime: 0.08, Reason: StopIdle}
	sum := &trace.TraceSummary{
		Delivered:         2,
		UniqueReceivers:   1,
		ClassDistribution: map[string]int{"Ping": 1, "BaseMessage": 1},
	}
	var out bytes.Buffer

	// WHEN the summary is printed
	PrintSummary(&out, res, sum)

	// THEN the header and every field appear
	got := out.String()
	assert.Contains(t, got, "=== Simulation Summary ===")
	assert.Contains(t, got, "Stop Reason          : idle\n")
	assert.Contains(t, got, "Simulated Time       : 0.080 s\n")
	assert.Contains(t, got, "Messages Delivered   : 2\n")
	assert.Contains(t, got, "Deliveries By Class  : BaseMessage=1 Ping=1\n")
}

func TestPrintSummary_OmitsDistributionWithoutDeliveries(t *testing.T) {
	var out bytes.Buffer

	PrintSummary(&out, DriveResult{Reason: StopHorizon}, &trace.TraceSummary{})

	assert.NotContains(t, out.String(), "Unique Receivers")
	assert.NotContains(t, out.String(), "Deliveries By Class")
}

func TestRunScenario_StopsWhenIdle(t *testing.T) {
	// GIVEN the ping-pong scenario
	sc, err := LoadScenario(pingPongScenario(t))
	require.NoError(t, err)
	var out bytes.Buffer

	// WHEN it runs in batch mode
	res, sum, err := runScenario(context.Background(), sc, &out, false, false)
	require.NoError(t, err)

	// THEN both behaviors finish without a frame and the delivery is traced
	assert.Equal(t, DriveResult{Started: 2, Frames: 0, SimTime: 0, Reason: StopIdle}, res)
	assert.Equal(t, 1, sum.Delivered)
	assert.Equal(t, map[string]int{"b": 1}, sum.ReceiverDistribution)
	assert.Equal(t, "[Bravo] got ping from a\n", out.String())
}

func TestRunScenario_RejectsExternalTransport(t *testing.T) {
	sc := &Scenario{Version: "1", TickMs: 16, ExternalTransport: true}

	_, _, err := runScenario(context.Background(), sc, &bytes.Buffer{}, false, false)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "use serve instead")
}
