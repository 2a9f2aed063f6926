/*
Package referenda implements the deciding engine: it drives referenda
through submission, admission to a deciding slot, confirmation and one of
the terminal outcomes.

The engine is deterministic and single threaded, callers must serialize
access to it. Time is measured in blocks, the current block is set by
BeginBlock.
*/
package referenda

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/gaecom/substrate/logger"
	"github.com/gaecom/substrate/observability"
	"github.com/gaecom/substrate/referenda/store"
	"github.com/gaecom/substrate/tally"
	"github.com/gaecom/substrate/tracks"
	"github.com/gaecom/substrate/types"
)

//go:generate mockgen -destination=mocks/mocks.go -package=mocks github.com/gaecom/substrate/referenda Ledger,Scheduler

type (
	// Ledger holds deposits. All calls are fallible.
	Ledger interface {
		Reserve(who types.AccountID, amount types.Balance) error
		Refund(who types.AccountID, amount types.Balance) error
		Slash(who types.AccountID, amount types.Balance) error
	}

	/*
	Scheduler delivers wake-ups and enactments at given blocks. Every
	referendum has at most one wake-up, scheduling a new one replaces the
	previous. Cancelling what isn't scheduled is not an error.
	*/
	Scheduler interface {
		ScheduleWake(index types.ReferendumIndex, at types.BlockNumber) error
		CancelWake(index types.ReferendumIndex) error
		ScheduleEnactment(index types.ReferendumIndex, at types.BlockNumber, proposal types.Hash) error
		CancelEnactment(index types.ReferendumIndex) error
	}

	TrackRegistry interface {
		Tracks() []tracks.Entry
		Track(id types.TrackID) (*tracks.Track, error)
		TrackFor(origin types.Origin) (types.TrackID, error)
	}

	Observability interface {
		Meter(name string, opts ...metric.MeterOption) metric.Meter
		Tracer(name string, options ...trace.TracerOption) trace.Tracer
		Logger() *slog.Logger
	}

	Engine struct {
		store  *store.Store
		tracks TrackRegistry
		ledger Ledger
		sched  Scheduler
		opts   Options
		now    types.BlockNumber

		log    *slog.Logger
		tracer trace.Tracer

		mTransitions metric.Int64Counter
		mSettleErrs  metric.Int64Counter
		statsLock    sync.Mutex
		stats        map[types.TrackID]trackStats
	}

	trackStats struct {
		deciding int64
		queued   int64
	}
)

func New(s *store.Store, registry TrackRegistry, ledger Ledger, sched Scheduler, observe Observability, opts ...Option) (*Engine, error) {
	switch {
	case s == nil:
		return nil, errors.New("referendum store is nil")
	case registry == nil:
		return nil, errors.New("track registry is nil")
	case ledger == nil:
		return nil, errors.New("deposit ledger is nil")
	case sched == nil:
		return nil, errors.New("scheduler is nil")
	}
	options := DefaultOptions()
	for _, opt := range opts {
		opt(options)
	}
	if err := options.isValid(); err != nil {
		return nil, fmt.Errorf("invalid engine options: %w", err)
	}

	meta, err := s.Meta()
	if err != nil {
		return nil, fmt.Errorf("loading store meta: %w", err)
	}
	e := &Engine{
		store:  s,
		tracks: registry,
		ledger: ledger,
		sched:  sched,
		opts:   *options,
		now:    meta.Block,
		log:    observe.Logger(),
		tracer: observe.Tracer("referenda"),
		stats:  make(map[types.TrackID]trackStats),
	}
	for _, t := range registry.Tracks() {
		ts, err := s.TrackState(t.ID)
		if err != nil {
			return nil, fmt.Errorf("loading state of track %d: %w", t.ID, err)
		}
		e.stats[t.ID] = trackStats{deciding: int64(ts.Deciding), queued: int64(len(ts.Queue))}
	}
	if err := e.initMetrics(observe.Meter("referenda")); err != nil {
		return nil, fmt.Errorf("initializing metrics: %w", err)
	}
	return e, nil
}

// Now returns the current block.
func (e *Engine) Now() types.BlockNumber { return e.now }

/*
Submit creates a new referendum for the proposal. The origin is classified
into a track, the submission deposit is reserved from the submitter and
the first alarm is scheduled.
*/
func (e *Engine) Submit(ctx context.Context, submitter types.AccountID, origin types.Origin, proposal types.Hash, enactment types.Enactment) (index types.ReferendumIndex, rErr error) {
	ctx, span := e.tracer.Start(ctx, "Engine.Submit", trace.WithAttributes(attribute.Stringer("origin", origin)))
	defer func() { endSpan(span, rErr) }()

	trackID, err := e.tracks.TrackFor(origin)
	if err != nil {
		return 0, err
	}
	if err := enactment.IsValid(); err != nil {
		return 0, err
	}
	tr, err := e.tracks.Track(trackID)
	if err != nil {
		return 0, err
	}

	err = e.update(ctx, func(p *pass) error {
		if err := p.reserve(submitter, e.opts.submissionDeposit); err != nil {
			return err
		}
		r := &store.Referendum{
			Track:             trackID,
			Origin:            origin,
			ProposalHash:      proposal,
			Enactment:         enactment,
			Submitted:         p.now,
			SubmissionDeposit: store.Deposit{Who: submitter, Amount: e.opts.submissionDeposit, Placed: p.now},
		}
		if index, err = p.insert(r); err != nil {
			return err
		}
		p.setAlarm(r, e.preDecidingAlarm(r, tr, p.now))
		return nil
	})
	if err != nil {
		return 0, e.opFailed(ctx, "submitting referendum", err)
	}
	span.SetAttributes(observability.Referendum(index))
	e.log.DebugContext(ctx, fmt.Sprintf("submitter %d, track %q, proposal %s", submitter, tr.Name, proposal), logger.Referendum(index))
	return index, nil
}

/*
PlaceDecisionDeposit reserves the track's decision deposit from depositor
and runs admission for the referendum.
*/
func (e *Engine) PlaceDecisionDeposit(ctx context.Context, index types.ReferendumIndex, depositor types.AccountID) (rErr error) {
	ctx, span := e.tracer.Start(ctx, "Engine.PlaceDecisionDeposit", referendumAttr(index))
	defer func() { endSpan(span, rErr) }()

	var settle []types.ReferendumIndex
	err := e.update(ctx, func(p *pass) error {
		r, err := p.ensureOngoing(index)
		if err != nil {
			return err
		}
		if r.DecisionDeposit != nil {
			return fmt.Errorf("%w: referendum %d", ErrAlreadyDeposited, index)
		}
		tr, err := e.tracks.Track(r.Track)
		if err != nil {
			return err
		}
		ts, err := p.trackState(r.Track)
		if err != nil {
			return err
		}
		if p.now >= r.Submitted.Add(tr.PreparePeriod) && ts.Deciding >= tr.MaxDeciding && !e.canQueue(ts, r.Tally()) {
			return fmt.Errorf("%w: track %q", ErrQueueFull, tr.Name)
		}
		if err := p.reserve(depositor, tr.DecisionDeposit); err != nil {
			return err
		}
		r.DecisionDeposit = &store.Deposit{Who: depositor, Amount: tr.DecisionDeposit, Placed: p.now}
		if err := e.service(p, r); err != nil {
			return err
		}
		settle = p.settle
		return nil
	})
	if err != nil {
		return e.opFailed(ctx, fmt.Sprintf("placing decision deposit for referendum %d", index), err)
	}
	e.log.InfoContext(ctx, fmt.Sprintf("decision deposit placed for referendum %d by %d", index, depositor), logger.Referendum(index), logger.Block(e.now))
	return e.settleDeposits(ctx, settle)
}

/*
Cancel closes the referendum as Cancelled and refunds its deposits. Only
the configured cancel origins may call it.
*/
func (e *Engine) Cancel(ctx context.Context, origin types.Origin, index types.ReferendumIndex) (rErr error) {
	ctx, span := e.tracer.Start(ctx, "Engine.Cancel", referendumAttr(index), trace.WithAttributes(attribute.Stringer("origin", origin)))
	defer func() { endSpan(span, rErr) }()
	if !slices.Contains(e.opts.cancelOrigins, origin) {
		return e.opFailed(ctx, fmt.Sprintf("cancelling referendum %d", index), fmt.Errorf("%w: %s may not cancel referenda", ErrBadOrigin, origin))
	}
	return e.terminate(ctx, index, store.StatusCancelled)
}

/*
Kill closes the referendum as Killed and slashes its deposits. Only the
configured kill origins may call it.
*/
func (e *Engine) Kill(ctx context.Context, origin types.Origin, index types.ReferendumIndex) (rErr error) {
	ctx, span := e.tracer.Start(ctx, "Engine.Kill", referendumAttr(index), trace.WithAttributes(attribute.Stringer("origin", origin)))
	defer func() { endSpan(span, rErr) }()
	if !slices.Contains(e.opts.killOrigins, origin) {
		return e.opFailed(ctx, fmt.Sprintf("killing referendum %d", index), fmt.Errorf("%w: %s may not kill referenda", ErrBadOrigin, origin))
	}
	return e.terminate(ctx, index, store.StatusKilled)
}

func (e *Engine) terminate(ctx context.Context, index types.ReferendumIndex, status store.Status) error {
	var settle []types.ReferendumIndex
	err := e.update(ctx, func(p *pass) error {
		r, err := p.ensureOngoing(index)
		if err != nil {
			return err
		}
		tr, err := e.tracks.Track(r.Track)
		if err != nil {
			return err
		}
		if err := e.close(p, r, tr, status); err != nil {
			return err
		}
		if err := e.admitQueued(p); err != nil {
			return err
		}
		settle = p.settle
		return nil
	})
	if err != nil {
		return e.opFailed(ctx, fmt.Sprintf("closing referendum %d as %s", index, status), err)
	}
	return e.settleDeposits(ctx, settle)
}

// OnAlarm is called by the scheduler when the referendum's wake-up is due.
func (e *Engine) OnAlarm(ctx context.Context, index types.ReferendumIndex) (rErr error) {
	ctx, span := e.tracer.Start(ctx, "Engine.OnAlarm", referendumAttr(index))
	defer func() { endSpan(span, rErr) }()

	settle, err := e.serviceReferendum(ctx, index)
	if err != nil {
		if errors.Is(err, ErrNotOngoing) {
			return err
		}
		// the wake-up has been consumed, make sure the referendum gets another chance
		if rErr := e.markRetry(index); rErr != nil {
			err = errors.Join(err, fmt.Errorf("marking referendum for retry: %w", rErr))
		}
		return err
	}
	return e.settleDeposits(ctx, settle)
}

// Nudge runs an evaluation pass for the referendum outside of its alarm.
func (e *Engine) Nudge(ctx context.Context, index types.ReferendumIndex) (rErr error) {
	ctx, span := e.tracer.Start(ctx, "Engine.Nudge", referendumAttr(index))
	defer func() { endSpan(span, rErr) }()
	settle, err := e.serviceReferendum(ctx, index)
	if err != nil {
		return err
	}
	return e.settleDeposits(ctx, settle)
}

/*
SetTally records the latest vote count of the referendum and re-evaluates
it. It is the entry point for the voting implementation.
*/
func (e *Engine) SetTally(ctx context.Context, index types.ReferendumIndex, votes tally.Votes) (rErr error) {
	ctx, span := e.tracer.Start(ctx, "Engine.SetTally", referendumAttr(index))
	defer func() { endSpan(span, rErr) }()

	if err := votes.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidTally, err)
	}
	var settle []types.ReferendumIndex
	err := e.update(ctx, func(p *pass) error {
		r, err := p.ensureOngoing(index)
		if err != nil {
			return err
		}
		r.Votes = votes
		if r.InQueue {
			if err := e.requeue(p, r); err != nil {
				return err
			}
		}
		if err := e.service(p, r); err != nil {
			return err
		}
		settle = p.settle
		return nil
	})
	if err != nil {
		return e.opFailed(ctx, fmt.Sprintf("updating tally of referendum %d", index), err)
	}
	return e.settleDeposits(ctx, settle)
}

// serviceReferendum runs one pass for the referendum and returns the
// referenda whose deposits need settling.
func (e *Engine) serviceReferendum(ctx context.Context, index types.ReferendumIndex) ([]types.ReferendumIndex, error) {
	var settle []types.ReferendumIndex
	err := e.update(ctx, func(p *pass) error {
		r, err := p.ensureOngoing(index)
		if err != nil {
			return err
		}
		if err := e.service(p, r); err != nil {
			return err
		}
		settle = p.settle
		return nil
	})
	if err != nil {
		return nil, e.opFailed(ctx, fmt.Sprintf("servicing referendum %d", index), err)
	}
	return settle, nil
}

/*
BeginBlock advances the engine to block n. Alarm passes which failed
earlier are retried and deposits which couldn't be settled are settled.
Failures of individual retries are logged and returned joined, they do not
stop the block.
*/
func (e *Engine) BeginBlock(ctx context.Context, n types.BlockNumber) (rErr error) {
	ctx, span := e.tracer.Start(ctx, "Engine.BeginBlock", trace.WithAttributes(observability.Block(n)))
	defer func() { endSpan(span, rErr) }()

	if n < e.now {
		return fmt.Errorf("block %d is before current block %d", n, e.now)
	}
	if err := e.store.Update(func(tx *store.Tx) error {
		m, err := tx.Meta()
		if err != nil {
			return err
		}
		m.Block = n
		return tx.PutMeta(m)
	}); err != nil {
		return fmt.Errorf("storing current block: %w", err)
	}
	e.now = n

	meta, err := e.store.Meta()
	if err != nil {
		return fmt.Errorf("loading store meta: %w", err)
	}
	var errs []error
	for _, index := range meta.Retry {
		if err := e.retryAlarm(ctx, index); err != nil {
			errs = append(errs, err)
		}
	}
	if err := e.settleDeposits(ctx, meta.Unsettled); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (e *Engine) retryAlarm(ctx context.Context, index types.ReferendumIndex) error {
	var settle []types.ReferendumIndex
	err := e.update(ctx, func(p *pass) error {
		m, err := p.metaForUpdate()
		if err != nil {
			return err
		}
		m.RemoveRetry(index)
		r, err := p.ensureOngoing(index)
		if err != nil {
			if errors.Is(err, ErrNotOngoing) {
				return nil
			}
			return err
		}
		if err := e.service(p, r); err != nil {
			return err
		}
		settle = p.settle
		return nil
	})
	if err != nil {
		return e.opFailed(ctx, fmt.Sprintf("retrying alarm of referendum %d", index), err)
	}
	e.log.DebugContext(ctx, fmt.Sprintf("alarm of referendum %d retried", index), logger.Referendum(index), logger.Block(e.now))
	return e.settleDeposits(ctx, settle)
}

func (e *Engine) markRetry(index types.ReferendumIndex) error {
	return e.store.Update(func(tx *store.Tx) error {
		m, err := tx.Meta()
		if err != nil {
			return err
		}
		m.AddRetry(index)
		return tx.PutMeta(m)
	})
}

/*
RefundDeposits settles the deposits of a closed referendum which the
ledger failed to settle earlier.
*/
func (e *Engine) RefundDeposits(ctx context.Context, index types.ReferendumIndex) (rErr error) {
	ctx, span := e.tracer.Start(ctx, "Engine.RefundDeposits", referendumAttr(index))
	defer func() { endSpan(span, rErr) }()

	r, err := e.store.Get(index)
	if err != nil {
		return err
	}
	if r.IsOngoing() {
		return fmt.Errorf("%w: %d", ErrStillOngoing, index)
	}
	if len(r.Unsettled) == 0 {
		return fmt.Errorf("%w: referendum %d holds no unsettled deposits", ErrDepositRequired, index)
	}
	return e.settleDeposits(ctx, []types.ReferendumIndex{index})
}

/*
Restore re-registers scheduled wake-ups and pending enactments with the
scheduler. Used on startup when the scheduler doesn't persist its agenda.
*/
func (e *Engine) Restore(ctx context.Context) error {
	var errs []error
	err := e.store.Walk(0, func(r *store.Referendum) bool {
		switch {
		case r.IsOngoing() && r.Alarm != nil:
			if err := e.sched.ScheduleWake(r.Index, max(*r.Alarm, e.now)); err != nil {
				errs = append(errs, fmt.Errorf("%w: scheduling wake of referendum %d: %w", ErrSchedulerFailure, r.Index, err))
			}
		case r.Status == store.StatusApproved && r.EnactAt > e.now:
			if err := e.sched.ScheduleEnactment(r.Index, r.EnactAt, r.ProposalHash); err != nil {
				errs = append(errs, fmt.Errorf("%w: scheduling enactment of referendum %d: %w", ErrSchedulerFailure, r.Index, err))
			}
		}
		return true
	})
	if err != nil {
		errs = append(errs, fmt.Errorf("loading referenda: %w", err))
	}
	if err := errors.Join(errs...); err != nil {
		e.log.ErrorContext(ctx, "restoring scheduler agenda", logger.Error(err))
		return err
	}
	return nil
}

// Referendum returns the committed state of the referendum.
func (e *Engine) Referendum(index types.ReferendumIndex) (*store.Referendum, error) {
	return e.store.Get(index)
}

// EnsureOngoing returns the referendum if it exists and is ongoing.
func (e *Engine) EnsureOngoing(index types.ReferendumIndex) (*store.Referendum, error) {
	r, err := e.store.Get(index)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %d does not exist", ErrNotOngoing, index)
		}
		return nil, err
	}
	if !r.IsOngoing() {
		return nil, fmt.Errorf("%w: %d is %s", ErrNotOngoing, index, r.Status)
	}
	return r, nil
}

func (e *Engine) TrackState(id types.TrackID) (*store.TrackState, error) {
	if _, err := e.tracks.Track(id); err != nil {
		return nil, err
	}
	return e.store.TrackState(id)
}

func (e *Engine) Tracks() []tracks.Entry {
	return e.tracks.Tracks()
}

func (e *Engine) opFailed(ctx context.Context, msg string, err error) error {
	lvl := slog.LevelWarn
	if errors.Is(err, ErrLedgerFailure) || errors.Is(err, ErrSchedulerFailure) {
		lvl = slog.LevelError
	}
	e.log.LogAttrs(ctx, lvl, msg, logger.Error(err), logger.Block(e.now))
	return err
}

func referendumAttr(index types.ReferendumIndex) trace.SpanStartEventOption {
	return trace.WithAttributes(observability.Referendum(index))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
