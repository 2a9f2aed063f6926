package cmd

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/spf13/cobra"
	"golang.org/x/exp/maps"
	"gopkg.in/yaml.v3"

	"github.com/gaecom/substrate/keyvaluedb/memorydb"
	"github.com/gaecom/substrate/node"
	"github.com/gaecom/substrate/referenda/store"
	"github.com/gaecom/substrate/scheduler"
	"github.com/gaecom/substrate/tally"
	"github.com/gaecom/substrate/types"
)

const (
	actionSubmit  = "submit"
	actionDeposit = "deposit"
	actionTally   = "tally"
	actionCancel  = "cancel"
	actionKill    = "kill"
	actionNudge   = "nudge"
	actionRefund  = "refund"
)

type (
	// simulationScript describes the scenario to play on an in-memory node.
	simulationScript struct {
		// initial free balances
		Accounts map[types.AccountID]types.Balance `yaml:"accounts"`
		// number of blocks to produce
		Blocks uint64           `yaml:"blocks"`
		Steps  []simulationStep `yaml:"steps"`
	}

	// simulationStep is executed when the node is at block Block, before
	// the next block is produced.
	simulationStep struct {
		Block      types.BlockNumber     `yaml:"block"`
		Action     string                `yaml:"action"`
		Referendum types.ReferendumIndex `yaml:"referendum"`
		// submitter or depositor
		Account    types.AccountID `yaml:"account"`
		Origin     types.Origin    `yaml:"origin"`
		Proposal   types.Hash      `yaml:"proposal"`
		Enactment  types.Enactment `yaml:"enactment"`
		Ayes       uint64          `yaml:"ayes"`
		Nays       uint64          `yaml:"nays"`
		Electorate uint64          `yaml:"electorate"`
	}

	simulationResult struct {
		Block     types.BlockNumber     `json:"block"`
		Referenda []*store.Referendum   `json:"referenda"`
		Accounts  []accountBalance      `json:"accounts"`
		Enacted   []scheduler.Enactment `json:"enacted"`
		Slashed   types.Balance         `json:"slashed"`
		Errors    []simulationError     `json:"errors,omitempty"`
	}

	accountBalance struct {
		ID       types.AccountID `json:"id"`
		Free     types.Balance   `json:"free"`
		Reserved types.Balance   `json:"reserved"`
	}

	// simulationError is a failed step or block, the simulation goes on.
	simulationError struct {
		Step   *int              `json:"step,omitempty"`
		Block  types.BlockNumber `json:"block"`
		Action string            `json:"action"`
		Error  string            `json:"error"`
	}
)

func newSimulateCmd(baseConfig *baseConfiguration) *cobra.Command {
	config := &engineConfiguration{Base: baseConfig}
	var cmd = &cobra.Command{
		Use:   "simulate <script.yaml>",
		Short: "Plays a scripted scenario on an in-memory node",
		Long: `Creates accounts, executes the steps of the script at their blocks and prints
the final state of referenda and accounts as JSON. Failing steps are reported
in the output, they do not stop the simulation.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			script, err := loadSimulationScript(args[0])
			if err != nil {
				return err
			}
			res, err := simulate(cmd.Context(), config, script)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}
	config.addFlags(cmd)
	return cmd
}

func loadSimulationScript(filename string) (*simulationScript, error) {
	f, err := os.Open(filepath.Clean(filename))
	if err != nil {
		return nil, fmt.Errorf("opening simulation script: %w", err)
	}
	defer f.Close()

	script := &simulationScript{}
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(script); err != nil {
		return nil, fmt.Errorf("decoding simulation script: %w", err)
	}
	if err := script.IsValid(); err != nil {
		return nil, fmt.Errorf("invalid simulation script: %w", err)
	}
	return script, nil
}

func (s *simulationScript) IsValid() error {
	for i, step := range s.Steps {
		switch step.Action {
		case actionSubmit, actionDeposit, actionTally, actionCancel, actionKill, actionNudge, actionRefund:
		default:
			return fmt.Errorf("step %d: unknown action %q", i, step.Action)
		}
		if uint64(step.Block) > s.Blocks {
			return fmt.Errorf("step %d: block %d is after the last block %d", i, step.Block, s.Blocks)
		}
	}
	return nil
}

func simulate(ctx context.Context, config *engineConfiguration, script *simulationScript) (*simulationResult, error) {
	res := &simulationResult{Enacted: []scheduler.Enactment{}}
	n, l, err := config.newNode(memorydb.New(), memorydb.New(),
		node.WithEnactmentHandler(func(ctx context.Context, e scheduler.Enactment) error {
			res.Enacted = append(res.Enacted, e)
			return nil
		}),
	)
	if err != nil {
		return nil, err
	}

	accounts := make(map[types.AccountID]struct{})
	for who, amount := range script.Accounts {
		if err := l.Endow(who, amount); err != nil {
			return nil, fmt.Errorf("endowing account %d: %w", who, err)
		}
		accounts[who] = struct{}{}
	}

	order := make([]int, len(script.Steps))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		return cmp.Compare(script.Steps[a].Block, script.Steps[b].Block)
	})

	for {
		for len(order) > 0 && script.Steps[order[0]].Block == n.CurrentBlock() {
			i := order[0]
			order = order[1:]
			step := script.Steps[i]
			if step.Action == actionSubmit || step.Action == actionDeposit {
				accounts[step.Account] = struct{}{}
			}
			if err := step.apply(ctx, n); err != nil {
				res.Errors = append(res.Errors, simulationError{Step: &i, Block: step.Block, Action: step.Action, Error: err.Error()})
			}
		}
		if uint64(n.CurrentBlock()) >= script.Blocks {
			break
		}
		if block, err := n.ProduceBlock(ctx); err != nil {
			res.Errors = append(res.Errors, simulationError{Block: block, Action: "block", Error: err.Error()})
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	res.Block = n.CurrentBlock()
	if res.Referenda, err = n.Referenda(0, 0); err != nil {
		return nil, fmt.Errorf("listing referenda: %w", err)
	}
	if res.Referenda == nil {
		res.Referenda = []*store.Referendum{}
	}
	ids := maps.Keys(accounts)
	slices.Sort(ids)
	res.Accounts = make([]accountBalance, 0, len(ids))
	for _, who := range ids {
		a, err := n.Account(who)
		if err != nil {
			return nil, fmt.Errorf("reading account %d: %w", who, err)
		}
		res.Accounts = append(res.Accounts, accountBalance{ID: who, Free: a.Free, Reserved: a.Reserved})
	}
	if res.Slashed, err = l.Slashed(); err != nil {
		return nil, fmt.Errorf("reading slashed total: %w", err)
	}
	return res, nil
}

func (s simulationStep) apply(ctx context.Context, n *node.Node) error {
	switch s.Action {
	case actionSubmit:
		_, err := n.Submit(ctx, s.Account, s.Origin, s.Proposal, s.Enactment)
		return err
	case actionDeposit:
		return n.PlaceDecisionDeposit(ctx, s.Referendum, s.Account)
	case actionTally:
		return n.SetTally(ctx, s.Referendum, tally.New(s.Ayes, s.Nays, s.Electorate))
	case actionCancel:
		return n.Cancel(ctx, s.Origin, s.Referendum)
	case actionKill:
		return n.Kill(ctx, s.Origin, s.Referendum)
	case actionNudge:
		return n.Nudge(ctx, s.Referendum)
	case actionRefund:
		return n.RefundDeposits(ctx, s.Referendum)
	default:
		return fmt.Errorf("unknown action %q", s.Action)
	}
}
