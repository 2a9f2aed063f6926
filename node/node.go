/*
Package node drives the referendum engine: it produces blocks at a fixed
interval, fires the scheduler agenda and serializes all access to the
engine so that it can be used from concurrent API handlers.
*/
package node

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/gaecom/substrate/ledger"
	"github.com/gaecom/substrate/logger"
	"github.com/gaecom/substrate/observability"
	"github.com/gaecom/substrate/referenda"
	"github.com/gaecom/substrate/referenda/store"
	"github.com/gaecom/substrate/scheduler"
	"github.com/gaecom/substrate/tally"
	"github.com/gaecom/substrate/tracks"
	"github.com/gaecom/substrate/types"
)

type (
	Observability interface {
		Meter(name string, opts ...metric.MeterOption) metric.Meter
		Tracer(name string, options ...trace.TracerOption) trace.Tracer
		Logger() *slog.Logger
	}

	// EnactFunc is called for every proposal which reaches its enactment block.
	EnactFunc func(ctx context.Context, e scheduler.Enactment) error

	Node struct {
		engine *referenda.Engine
		store  *store.Store
		agenda *scheduler.Agenda
		ledger *ledger.Ledger
		conf   *configuration

		// engine is single threaded, every call goes through the lock
		lock    sync.Mutex
		enacted []scheduler.Enactment

		log       *slog.Logger
		tracer    trace.Tracer
		mBlockDur metric.Float64Histogram
		mEnacted  metric.Int64Counter
	}
)

func New(engine *referenda.Engine, s *store.Store, agenda *scheduler.Agenda, l *ledger.Ledger, observe Observability, opts ...Option) (*Node, error) {
	switch {
	case engine == nil:
		return nil, errors.New("engine is nil")
	case s == nil:
		return nil, errors.New("store is nil")
	case agenda == nil:
		return nil, errors.New("agenda is nil")
	case l == nil:
		return nil, errors.New("ledger is nil")
	}

	conf := defaultConfiguration()
	for _, opt := range opts {
		opt(conf)
	}
	if conf.blockTime <= 0 {
		return nil, fmt.Errorf("invalid block time %s", conf.blockTime)
	}

	n := &Node{
		engine: engine,
		store:  s,
		agenda: agenda,
		ledger: l,
		conf:   conf,
		log:    observe.Logger(),
		tracer: observe.Tracer("node"),
	}
	if err := n.initMetrics(observe.Meter("node")); err != nil {
		return nil, fmt.Errorf("initializing metrics: %w", err)
	}
	return n, nil
}

func (n *Node) initMetrics(m metric.Meter) (err error) {
	n.mBlockDur, err = m.Float64Histogram("block.duration",
		metric.WithDescription("How long it took to process block (engine housekeeping and alarms)"),
		metric.WithUnit("s"))
	if err != nil {
		return fmt.Errorf("creating block duration histogram: %w", err)
	}
	n.mEnacted, err = m.Int64Counter("enacted",
		metric.WithDescription("Number of proposals which reached their enactment block"),
		metric.WithUnit("{proposal}"))
	if err != nil {
		return fmt.Errorf("creating enactment counter: %w", err)
	}
	_, err = m.Int64ObservableGauge("block",
		metric.WithDescription("Latest processed block"),
		metric.WithInt64Callback(func(ctx context.Context, io metric.Int64Observer) error {
			io.Observe(int64(n.CurrentBlock()))
			return nil
		}))
	if err != nil {
		return fmt.Errorf("creating block gauge: %w", err)
	}
	return nil
}

/*
Run restores the scheduler agenda from the store and then produces a block
every block time until ctx is cancelled. Failures of a single block are
logged, the next block is attempted regardless.
*/
func (n *Node) Run(ctx context.Context) error {
	n.lock.Lock()
	err := n.engine.Restore(ctx)
	n.lock.Unlock()
	if err != nil {
		return fmt.Errorf("restoring agenda: %w", err)
	}
	n.log.InfoContext(ctx, fmt.Sprintf("node starting at block %d, block time %s", n.CurrentBlock(), n.conf.blockTime))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := n.loop(ctx)
		n.log.DebugContext(ctx, "node main loop exit", logger.Error(err))
		return err
	})
	return g.Wait()
}

func (n *Node) loop(ctx context.Context) error {
	ticker := time.NewTicker(n.conf.blockTime)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := n.ProduceBlock(ctx); err != nil {
				n.log.WarnContext(ctx, "producing block", logger.Error(err))
			}
		}
	}
}

/*
ProduceBlock advances the engine to the next block: engine housekeeping
runs first, then the due wake-ups fire and finally proposals due for
enactment are handed to the enactment handler.
*/
func (n *Node) ProduceBlock(ctx context.Context) (types.BlockNumber, error) {
	n.lock.Lock()
	defer n.lock.Unlock()

	block := n.engine.Now() + 1
	ctx, span := n.tracer.Start(ctx, "node.ProduceBlock", trace.WithAttributes(observability.Block(block)))
	defer span.End()

	start := time.Now()
	var errs []error
	if err := n.engine.BeginBlock(ctx, block); err != nil {
		if n.engine.Now() != block {
			// engine didn't move to the new block, don't fire the agenda either
			span.RecordError(err)
			return n.engine.Now(), fmt.Errorf("beginning block %d: %w", block, err)
		}
		errs = append(errs, fmt.Errorf("beginning block %d: %w", block, err))
	}
	enactments, err := n.agenda.OnInitialize(ctx, block, n.engine.OnAlarm)
	if err != nil {
		errs = append(errs, fmt.Errorf("firing agenda of block %d: %w", block, err))
	}
	for _, e := range enactments {
		if err := n.enact(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}

	err = errors.Join(errs...)
	if err != nil {
		span.RecordError(err)
	}
	n.mBlockDur.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(observability.ErrStatus(err)))
	return block, err
}

func (n *Node) enact(ctx context.Context, e scheduler.Enactment) error {
	n.enacted = append(n.enacted, e)
	if over := len(n.enacted) - n.conf.enactmentHistory; over > 0 {
		n.enacted = n.enacted[over:]
	}

	var err error
	if n.conf.enact != nil {
		if err = n.conf.enact(ctx, e); err != nil {
			err = fmt.Errorf("enacting proposal %s of referendum %d: %w", e.Proposal, e.Index, err)
		}
	}
	n.mEnacted.Add(ctx, 1, metric.WithAttributes(attribute.Bool("failed", err != nil)))
	return err
}

// CurrentBlock returns the latest block the engine has processed.
func (n *Node) CurrentBlock() types.BlockNumber {
	n.lock.Lock()
	defer n.lock.Unlock()
	return n.engine.Now()
}

// Enacted returns the most recent enactments, oldest first.
func (n *Node) Enacted() []scheduler.Enactment {
	n.lock.Lock()
	defer n.lock.Unlock()
	return append([]scheduler.Enactment(nil), n.enacted...)
}

func (n *Node) Submit(ctx context.Context, submitter types.AccountID, origin types.Origin, proposal types.Hash, enactment types.Enactment) (types.ReferendumIndex, error) {
	n.lock.Lock()
	defer n.lock.Unlock()
	return n.engine.Submit(ctx, submitter, origin, proposal, enactment)
}

func (n *Node) PlaceDecisionDeposit(ctx context.Context, index types.ReferendumIndex, depositor types.AccountID) error {
	n.lock.Lock()
	defer n.lock.Unlock()
	return n.engine.PlaceDecisionDeposit(ctx, index, depositor)
}

func (n *Node) SetTally(ctx context.Context, index types.ReferendumIndex, votes tally.Votes) error {
	n.lock.Lock()
	defer n.lock.Unlock()
	return n.engine.SetTally(ctx, index, votes)
}

func (n *Node) Cancel(ctx context.Context, origin types.Origin, index types.ReferendumIndex) error {
	n.lock.Lock()
	defer n.lock.Unlock()
	return n.engine.Cancel(ctx, origin, index)
}

func (n *Node) Kill(ctx context.Context, origin types.Origin, index types.ReferendumIndex) error {
	n.lock.Lock()
	defer n.lock.Unlock()
	return n.engine.Kill(ctx, origin, index)
}

func (n *Node) Nudge(ctx context.Context, index types.ReferendumIndex) error {
	n.lock.Lock()
	defer n.lock.Unlock()
	return n.engine.Nudge(ctx, index)
}

func (n *Node) RefundDeposits(ctx context.Context, index types.ReferendumIndex) error {
	n.lock.Lock()
	defer n.lock.Unlock()
	return n.engine.RefundDeposits(ctx, index)
}

func (n *Node) Referendum(index types.ReferendumIndex) (*store.Referendum, error) {
	n.lock.Lock()
	defer n.lock.Unlock()
	return n.engine.Referendum(index)
}

// Referenda returns up to limit referenda starting from index "from",
// zero limit means no limit.
func (n *Node) Referenda(from types.ReferendumIndex, limit int) ([]*store.Referendum, error) {
	n.lock.Lock()
	defer n.lock.Unlock()
	return n.store.List(from, limit)
}

func (n *Node) TrackState(id types.TrackID) (*store.TrackState, error) {
	n.lock.Lock()
	defer n.lock.Unlock()
	return n.engine.TrackState(id)
}

func (n *Node) Tracks() []tracks.Entry {
	return n.engine.Tracks()
}

func (n *Node) Account(who types.AccountID) (ledger.Account, error) {
	n.lock.Lock()
	defer n.lock.Unlock()
	return n.ledger.Account(who)
}

func (n *Node) Agenda() ([]scheduler.Wake, []scheduler.Enactment) {
	n.lock.Lock()
	defer n.lock.Unlock()
	return n.agenda.Wakes(), n.agenda.Enactments()
}
