package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ainvaltin/httpsrv"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/gaecom/substrate/internal/debug"
	"github.com/gaecom/substrate/keyvaluedb/boltdb"
	"github.com/gaecom/substrate/ledger"
	"github.com/gaecom/substrate/logger"
	"github.com/gaecom/substrate/node"
	"github.com/gaecom/substrate/rpc"
	"github.com/gaecom/substrate/scheduler"
	"github.com/gaecom/substrate/types"
)

const (
	defaultStoreFile  = "referenda.db"
	defaultLedgerFile = "ledger.db"

	// how long the REST server waits for active requests on exit
	shutdownTimeout = 5 * time.Second
)

type runConfiguration struct {
	Engine     *engineConfiguration
	RESTServer *restServerConfiguration

	StoreFile  string
	LedgerFile string
	BlockTime  time.Duration
	Endow      map[string]int64
}

func newRunCmd(baseConfig *baseConfiguration) *cobra.Command {
	config := &runConfiguration{
		Engine:     &engineConfiguration{Base: baseConfig},
		RESTServer: &restServerConfiguration{},
	}
	var cmd = &cobra.Command{
		Use:   "run",
		Short: "Starts the referendum engine node",
		Long:  `Produces blocks at fixed interval, drives referenda through their lifecycle and serves the REST API.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNode(cmd.Context(), config)
		},
	}
	config.Engine.addFlags(cmd)
	config.RESTServer.addConfigurationFlags(cmd)
	cmd.Flags().StringVar(&config.StoreFile, "db", defaultStoreFile, "path to the referendum database file, relative paths are resolved against the home directory")
	cmd.Flags().StringVar(&config.LedgerFile, "ledger-db", defaultLedgerFile, "path to the ledger database file, relative paths are resolved against the home directory")
	cmd.Flags().DurationVar(&config.BlockTime, "block-time", time.Second, "interval between blocks")
	cmd.Flags().StringToInt64Var(&config.Endow, "endow", nil, "initial free balance of accounts, as account=amount pairs, applied only to accounts without any balance")
	return cmd
}

func runNode(ctx context.Context, config *runConfiguration) (rErr error) {
	observe := config.Engine.Base.observe
	log := observe.Logger()
	log.InfoContext(ctx, "starting referenda node", slog.String("build", debug.BuildInfo()))

	storeDB, err := boltdb.New(config.Engine.Base.dataFile(config.StoreFile))
	if err != nil {
		return fmt.Errorf("opening referendum database: %w", err)
	}
	defer func() { rErr = errors.Join(rErr, storeDB.Close()) }()

	ledgerDB, err := boltdb.New(config.Engine.Base.dataFile(config.LedgerFile))
	if err != nil {
		return fmt.Errorf("opening ledger database: %w", err)
	}
	defer func() { rErr = errors.Join(rErr, ledgerDB.Close()) }()

	n, l, err := config.Engine.newNode(storeDB, ledgerDB,
		node.WithBlockTime(config.BlockTime),
		node.WithEnactmentHandler(func(ctx context.Context, e scheduler.Enactment) error {
			log.InfoContext(ctx, fmt.Sprintf("proposal %s enacted", e.Proposal), logger.Referendum(e.Index), logger.Block(e.At))
			return nil
		}),
	)
	if err != nil {
		return err
	}
	if err := endowAccounts(l, config.Endow); err != nil {
		return err
	}

	var srv *http.Server
	if !config.RESTServer.IsAddressEmpty() {
		srv, err = rpc.NewHTTPServer(&config.RESTServer.ServerConfiguration, observe,
			rpc.InfoEndpoints(n, "referenda", log),
			rpc.ReferendaEndpoints(n, log),
			rpc.MetricsEndpoints(observe.MetricsHandler()),
		)
		if err != nil {
			return fmt.Errorf("creating REST server: %w", err)
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return n.Run(ctx) })
	if srv != nil {
		g.Go(func() error {
			log.InfoContext(ctx, fmt.Sprintf("starting REST server on %s", srv.Addr))
			return httpsrv.Run(ctx, *srv, httpsrv.ShutdownTimeout(shutdownTimeout))
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

/*
endowAccounts credits the initial balances. Accounts which already have a
balance are left untouched so restarting the node with the same flags
doesn't print money.
*/
func endowAccounts(l *ledger.Ledger, endow map[string]int64) error {
	for id, amount := range endow {
		who, err := strconv.ParseUint(id, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid account id %q in endowment: %w", id, err)
		}
		if amount <= 0 {
			return fmt.Errorf("endowment of account %d must be positive, got %d", who, amount)
		}
		a, err := l.Account(types.AccountID(who))
		if err != nil {
			return fmt.Errorf("reading account %d: %w", who, err)
		}
		if a.Free != 0 || a.Reserved != 0 {
			continue
		}
		if err := l.Endow(types.AccountID(who), types.Balance(amount)); err != nil {
			return fmt.Errorf("endowing account %d: %w", who, err)
		}
	}
	return nil
}
