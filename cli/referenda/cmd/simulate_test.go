package cmd

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	testlogger "github.com/gaecom/substrate/internal/testutils/logger"
	"github.com/gaecom/substrate/observability"
	"github.com/gaecom/substrate/referenda/store"
	"github.com/gaecom/substrate/scheduler"
	"github.com/gaecom/substrate/types"
)

const proposalHex = "0x0102000000000000000000000000000000000000000000000000000000000000"

// referendum 0 on the "none" track is approved at block 4 and enacted at block 6
const passingScript = `
accounts:
  1: 100
  2: 100
blocks: 8
steps:
  - block: 0
    action: submit
    account: 1
    origin: none
    proposal: ` + proposalHex + `
    enactment: after:0
  - block: 0
    action: tally
    referendum: 0
    ayes: 100
    nays: 0
    electorate: 100
  - block: 0
    action: deposit
    referendum: 0
    account: 2
`

// referendum 0 on the root track is killed at block 1
const killScript = `
accounts:
  1: 100
blocks: 2
steps:
  - block: 1
    action: kill
    referendum: 0
    origin: root
  - block: 1
    action: deposit
    referendum: 5
    account: 1
  - block: 0
    action: submit
    account: 1
    origin: root
    proposal: ` + proposalHex + `
    enactment: at:10
`

func writeScript(t *testing.T, script string) string {
	t.Helper()
	filename := filepath.Join(t.TempDir(), "script.yaml")
	require.NoError(t, os.WriteFile(filename, []byte(script), 0600))
	return filename
}

func simulateCLI(t *testing.T, args string) *simulationResult {
	t.Helper()
	out, err := execute(t, args)
	require.NoError(t, err)
	res := &simulationResult{}
	require.NoError(t, json.Unmarshal([]byte(out), res))
	return res
}

func testEngineConfiguration(t *testing.T) *engineConfiguration {
	return &engineConfiguration{
		Base:              &baseConfiguration{observe: observability.NOP(testlogger.New(t))},
		SubmissionDeposit: 2,
		AlarmInterval:     1,
		MaxQueued:         100,
		QueuePolicy:       "fifo",
		CancelOrigins:     []string{"root"},
		KillOrigins:       []string{"root"},
	}
}

func TestSimulate_Approval(t *testing.T) {
	script, err := loadSimulationScript(writeScript(t, passingScript))
	require.NoError(t, err)

	res, err := simulate(context.Background(), testEngineConfiguration(t), script)
	require.NoError(t, err)
	require.Empty(t, res.Errors)
	require.EqualValues(t, 8, res.Block)
	require.Len(t, res.Referenda, 1)
	require.Equal(t, store.StatusApproved, res.Referenda[0].Status)
	require.EqualValues(t, 6, res.Referenda[0].EnactAt)

	proposal, err := types.ParseHash(proposalHex)
	require.NoError(t, err)
	require.Equal(t, []scheduler.Enactment{{Index: 0, At: 6, Proposal: proposal}}, res.Enacted)
	require.Equal(t, []accountBalance{{ID: 1, Free: 100}, {ID: 2, Free: 100}}, res.Accounts)
	require.Zero(t, res.Slashed)
}

func TestSimulate_Kill(t *testing.T) {
	script, err := loadSimulationScript(writeScript(t, killScript))
	require.NoError(t, err)

	res, err := simulate(context.Background(), testEngineConfiguration(t), script)
	require.NoError(t, err)
	require.EqualValues(t, 2, res.Block)
	require.Len(t, res.Referenda, 1)
	require.Equal(t, store.StatusKilled, res.Referenda[0].Status)
	require.Empty(t, res.Enacted)
	require.Equal(t, []accountBalance{{ID: 1, Free: 98}}, res.Accounts)
	require.EqualValues(t, 2, res.Slashed)

	// the deposit on unknown referendum fails but doesn't stop the simulation
	require.Len(t, res.Errors, 1)
	require.NotNil(t, res.Errors[0].Step)
	require.Equal(t, 1, *res.Errors[0].Step)
	require.EqualValues(t, 1, res.Errors[0].Block)
	require.Equal(t, actionDeposit, res.Errors[0].Action)
	require.Contains(t, res.Errors[0].Error, "5 does not exist")
}

func TestSimulate_KillOrigin(t *testing.T) {
	script, err := loadSimulationScript(writeScript(t, killScript))
	require.NoError(t, err)

	conf := testEngineConfiguration(t)
	conf.KillOrigins = []string{"signed:1"}
	res, err := simulate(context.Background(), conf, script)
	require.NoError(t, err)
	require.Len(t, res.Referenda, 1)
	require.Equal(t, store.StatusOngoing, res.Referenda[0].Status)
	require.Zero(t, res.Slashed)
	require.Len(t, res.Errors, 2)
	require.Equal(t, actionKill, res.Errors[0].Action)
	require.Contains(t, res.Errors[0].Error, "root may not kill referenda")

	conf.KillOrigins = []string{"council"}
	_, err = simulate(context.Background(), conf, script)
	require.ErrorContains(t, err, "invalid kill-origin flag")
}

func TestSimulate_CLI(t *testing.T) {
	res := simulateCLI(t, "simulate --home "+t.TempDir()+" "+writeScript(t, passingScript))
	require.Empty(t, res.Errors)
	require.Len(t, res.Enacted, 1)
	require.Equal(t, store.StatusApproved, res.Referenda[0].Status)

	_, err := execute(t, "simulate --home "+t.TempDir())
	require.EqualError(t, err, "accepts 1 arg(s), received 0")
}

func TestLoadSimulationScript(t *testing.T) {
	_, err := loadSimulationScript(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorContains(t, err, "opening simulation script")

	tests := []struct {
		name   string
		script string
		errMsg string
	}{
		{
			name:   "unknown field",
			script: "blocks: 1\nfoo: bar\n",
			errMsg: "field foo not found",
		},
		{
			name:   "invalid origin",
			script: "blocks: 1\nsteps:\n  - action: submit\n    origin: council\n",
			errMsg: "decoding simulation script",
		},
		{
			name:   "unknown action",
			script: "blocks: 1\nsteps:\n  - action: vote\n",
			errMsg: `step 0: unknown action "vote"`,
		},
		{
			name:   "step after last block",
			script: "blocks: 1\nsteps:\n  - action: nudge\n  - action: nudge\n    block: 2\n",
			errMsg: "step 1: block 2 is after the last block 1",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := loadSimulationScript(writeScript(t, tc.script))
			require.ErrorContains(t, err, tc.errMsg)
		})
	}
}
