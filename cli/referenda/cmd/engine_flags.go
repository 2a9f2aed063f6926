package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gaecom/substrate/keyvaluedb"
	"github.com/gaecom/substrate/ledger"
	"github.com/gaecom/substrate/node"
	"github.com/gaecom/substrate/referenda"
	"github.com/gaecom/substrate/referenda/store"
	"github.com/gaecom/substrate/scheduler"
	"github.com/gaecom/substrate/tracks"
	"github.com/gaecom/substrate/types"
)

const (
	flagTracksFile        = "tracks"
	flagSubmissionDeposit = "submission-deposit"
	flagAlarmInterval     = "alarm-interval"
	flagMaxQueued         = "max-queued"
	flagQueuePolicy       = "queue-policy"
	flagUndecidingTimeout = "undeciding-timeout"
	flagCancelOrigin      = "cancel-origin"
	flagKillOrigin        = "kill-origin"
)

// engineConfiguration holds the flags shared by all commands which need a
// referendum engine.
type engineConfiguration struct {
	Base *baseConfiguration

	TracksFile        string
	SubmissionDeposit uint64
	AlarmInterval     uint64
	MaxQueued         uint32
	QueuePolicy       string
	UndecidingTimeout uint64
	CancelOrigins     []string
	KillOrigins       []string
}

func (c *engineConfiguration) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&c.TracksFile, flagTracksFile, "", "track registry YAML file, built in \"root\" and \"none\" tracks are used when not set")
	cmd.Flags().Uint64Var(&c.SubmissionDeposit, flagSubmissionDeposit, 2, "amount reserved from the submitter of a referendum")
	cmd.Flags().Uint64Var(&c.AlarmInterval, flagAlarmInterval, 1, "alarms fire only on blocks which are multiples of the interval")
	cmd.Flags().Uint32Var(&c.MaxQueued, flagMaxQueued, 100, "maximum number of referenda waiting for a deciding slot per track")
	cmd.Flags().StringVar(&c.QueuePolicy, flagQueuePolicy, string(referenda.QueueFIFO), "order of admission to deciding, one of: fifo, ayes, none")
	cmd.Flags().Uint64Var(&c.UndecidingTimeout, flagUndecidingTimeout, 0, "number of blocks a referendum may wait for the decision deposit, 0 means forever")
	cmd.Flags().StringSliceVar(&c.CancelOrigins, flagCancelOrigin, []string{"root"}, "origins allowed to cancel referenda, ie root, none or signed:<account>")
	cmd.Flags().StringSliceVar(&c.KillOrigins, flagKillOrigin, []string{"root"}, "origins allowed to kill referenda, ie root, none or signed:<account>")
}

func parseOrigins(flag string, values []string) ([]types.Origin, error) {
	origins := make([]types.Origin, 0, len(values))
	for _, v := range values {
		o, err := types.ParseOrigin(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %s flag: %w", flag, err)
		}
		origins = append(origins, o)
	}
	return origins, nil
}

func (c *engineConfiguration) registry() (*tracks.Registry, error) {
	if c.TracksFile == "" {
		return tracks.Default(), nil
	}
	r, err := tracks.LoadFile(c.Base.dataFile(c.TracksFile))
	if err != nil {
		return nil, fmt.Errorf("loading track registry: %w", err)
	}
	return r, nil
}

func (c *engineConfiguration) options() ([]referenda.Option, error) {
	policy, err := referenda.ParseQueuePolicy(c.QueuePolicy)
	if err != nil {
		return nil, fmt.Errorf("invalid %s flag: %w", flagQueuePolicy, err)
	}
	cancelOrigins, err := parseOrigins(flagCancelOrigin, c.CancelOrigins)
	if err != nil {
		return nil, err
	}
	killOrigins, err := parseOrigins(flagKillOrigin, c.KillOrigins)
	if err != nil {
		return nil, err
	}
	return []referenda.Option{
		referenda.WithSubmissionDeposit(types.Balance(c.SubmissionDeposit)),
		referenda.WithAlarmInterval(c.AlarmInterval),
		referenda.WithMaxQueued(c.MaxQueued),
		referenda.WithQueuePolicy(policy),
		referenda.WithUndecidingTimeout(c.UndecidingTimeout),
		referenda.WithCancelOrigin(cancelOrigins...),
		referenda.WithKillOrigin(killOrigins...),
	}, nil
}

/*
newNode wires engine, store, ledger and agenda into a node. Referenda are
kept in "storeDB" and balances in "ledgerDB".
*/
func (c *engineConfiguration) newNode(storeDB, ledgerDB keyvaluedb.KeyValueDB, opts ...node.Option) (*node.Node, *ledger.Ledger, error) {
	observe := c.Base.observe
	registry, err := c.registry()
	if err != nil {
		return nil, nil, err
	}
	engineOpts, err := c.options()
	if err != nil {
		return nil, nil, err
	}

	s, err := store.New(storeDB)
	if err != nil {
		return nil, nil, fmt.Errorf("creating referendum store: %w", err)
	}
	l, err := ledger.New(ledgerDB, observe.Logger())
	if err != nil {
		return nil, nil, fmt.Errorf("creating ledger: %w", err)
	}
	agenda, err := scheduler.New(observe)
	if err != nil {
		return nil, nil, fmt.Errorf("creating agenda: %w", err)
	}
	engine, err := referenda.New(s, registry, l, agenda, observe, engineOpts...)
	if err != nil {
		return nil, nil, fmt.Errorf("creating referendum engine: %w", err)
	}
	n, err := node.New(engine, s, agenda, l, observe, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("creating node: %w", err)
	}
	return n, l, nil
}
