package referenda

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	testobserve "github.com/gaecom/substrate/internal/testutils/observability"
	"github.com/gaecom/substrate/keyvaluedb/memorydb"
	"github.com/gaecom/substrate/ledger"
	"github.com/gaecom/substrate/referenda/mocks"
	"github.com/gaecom/substrate/referenda/store"
	"github.com/gaecom/substrate/scheduler"
	"github.com/gaecom/substrate/tally"
	"github.com/gaecom/substrate/types"
)

type collaborators struct {
	db     *memorydb.MemoryDB
	store  *store.Store
	ledger *ledger.Ledger
}

// newCollaborators returns store and ledger with endowed accounts 1..5.
func newCollaborators(t *testing.T) *collaborators {
	t.Helper()
	db := memorydb.New()
	s, err := store.New(db)
	require.NoError(t, err)
	l, err := ledger.New(memorydb.New(), testobserve.NOPObservability().Logger())
	require.NoError(t, err)
	for who := types.AccountID(1); who <= 5; who++ {
		require.NoError(t, l.Endow(who, 100))
	}
	return &collaborators{db: db, store: s, ledger: l}
}

func (c *collaborators) requireAccount(t *testing.T, who types.AccountID, free, reserved types.Balance) {
	t.Helper()
	a, err := c.ledger.Account(who)
	require.NoError(t, err)
	require.Equal(t, ledger.Account{Free: free, Reserved: reserved}, a, "account %d", who)
}

func newEngine(t *testing.T, s *store.Store, l Ledger, sched Scheduler, opts ...Option) *Engine {
	t.Helper()
	e, err := New(s, testRegistry(t, testTrack()), l, sched, testobserve.Default(t), opts...)
	require.NoError(t, err)
	return e
}

func TestEngine_SubmitLedgerFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	l := mocks.NewMockLedger(ctrl)
	sched := mocks.NewMockScheduler(ctrl)
	c := newCollaborators(t)
	e := newEngine(t, c.store, l, sched)

	l.EXPECT().Reserve(types.AccountID(1), types.Balance(2)).Return(errors.New("ledger offline"))
	_, err := e.Submit(context.Background(), 1, types.RootOrigin(), proposal, types.After(1))
	require.ErrorIs(t, err, ErrLedgerFailure)
	require.EqualError(t, err, "deposit ledger failure: reserving 2 from 1: ledger offline")

	cnt, err := c.store.Count()
	require.NoError(t, err)
	require.Zero(t, cnt)
}

func TestEngine_SubmitSchedulerFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	sched := mocks.NewMockScheduler(ctrl)
	c := newCollaborators(t)
	e := newEngine(t, c.store, c.ledger, sched)

	sched.EXPECT().ScheduleWake(types.ReferendumIndex(0), types.BlockNumber(1)).Return(errors.New("agenda full"))
	_, err := e.Submit(context.Background(), 1, types.RootOrigin(), proposal, types.After(1))
	require.ErrorIs(t, err, ErrSchedulerFailure)
	require.EqualError(t, err, "scheduler failure: scheduling wake of referendum 0 at 1: agenda full")

	// reservation has been returned and nothing stored
	c.requireAccount(t, 1, 100, 0)
	cnt, err := c.store.Count()
	require.NoError(t, err)
	require.Zero(t, cnt)
}

func TestEngine_SubmitStorageFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	sched := mocks.NewMockScheduler(ctrl)
	c := newCollaborators(t)
	e := newEngine(t, c.store, c.ledger, sched)

	c.db.SetWriteError(errors.New("disk full"))
	_, err := e.Submit(context.Background(), 1, types.RootOrigin(), proposal, types.After(1))
	require.ErrorContains(t, err, "disk full")
	c.requireAccount(t, 1, 100, 0)
}

func TestEngine_DepositSchedulerFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	sched := mocks.NewMockScheduler(ctrl)
	c := newCollaborators(t)
	e := newEngine(t, c.store, c.ledger, sched)
	ctx := context.Background()

	sched.EXPECT().ScheduleWake(types.ReferendumIndex(0), types.BlockNumber(1)).Return(nil)
	idx, err := e.Submit(ctx, 1, types.RootOrigin(), proposal, types.After(1))
	require.NoError(t, err)

	sched.EXPECT().ScheduleWake(idx, types.BlockNumber(4)).Return(errors.New("agenda full"))
	require.ErrorIs(t, e.PlaceDecisionDeposit(ctx, idx, 2), ErrSchedulerFailure)

	c.requireAccount(t, 2, 100, 0)
	r, err := e.Referendum(idx)
	require.NoError(t, err)
	require.Nil(t, r.DecisionDeposit)
	require.Nil(t, r.Deciding)
	require.EqualValues(t, 1, *r.Alarm)
	ts, err := e.TrackState(0)
	require.NoError(t, err)
	require.Zero(t, ts.Deciding)
}

func TestEngine_RollbackRestoresWakes(t *testing.T) {
	ctrl := gomock.NewController(t)
	sched := mocks.NewMockScheduler(ctrl)
	c := newCollaborators(t)
	e := newEngine(t, c.store, c.ledger, sched)
	ctx := context.Background()

	sched.EXPECT().ScheduleWake(types.ReferendumIndex(0), types.BlockNumber(1)).Return(nil)
	sched.EXPECT().ScheduleWake(types.ReferendumIndex(1), types.BlockNumber(1)).Return(nil)
	sched.EXPECT().ScheduleWake(types.ReferendumIndex(0), types.BlockNumber(4)).Return(nil)
	r0, err := e.Submit(ctx, 1, types.RootOrigin(), proposal, types.After(1))
	require.NoError(t, err)
	r1, err := e.Submit(ctx, 1, types.RootOrigin(), proposal, types.After(1))
	require.NoError(t, err)
	require.NoError(t, e.PlaceDecisionDeposit(ctx, r0, 2))
	require.NoError(t, e.PlaceDecisionDeposit(ctx, r1, 3))

	// cancelling r0 admits r1, scheduling its wake-up fails and the
	// cancelled wake-up of r0 is put back
	gomock.InOrder(
		sched.EXPECT().CancelWake(r0).Return(nil),
		sched.EXPECT().ScheduleWake(r1, types.BlockNumber(4)).Return(errors.New("agenda full")),
		sched.EXPECT().ScheduleWake(r0, types.BlockNumber(4)).Return(nil),
	)
	require.ErrorIs(t, e.Cancel(ctx, types.RootOrigin(), r0), ErrSchedulerFailure)

	ref, err := e.Referendum(r0)
	require.NoError(t, err)
	require.True(t, ref.IsDeciding())
	ref, err = e.Referendum(r1)
	require.NoError(t, err)
	require.True(t, ref.InQueue)
	ts, err := e.TrackState(0)
	require.NoError(t, err)
	require.EqualValues(t, 1, ts.Deciding)
	require.Len(t, ts.Queue, 1)
	c.requireAccount(t, 2, 90, 10)
}

func TestEngine_AlarmRetriedAfterSchedulerFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	sched := mocks.NewMockScheduler(ctrl)
	c := newCollaborators(t)
	e := newEngine(t, c.store, c.ledger, sched)
	ctx := context.Background()

	sched.EXPECT().ScheduleWake(types.ReferendumIndex(0), types.BlockNumber(1)).Return(nil)
	idx, err := e.Submit(ctx, 1, types.RootOrigin(), proposal, types.After(1))
	require.NoError(t, err)
	require.NoError(t, e.BeginBlock(ctx, 1))

	sched.EXPECT().ScheduleWake(idx, types.BlockNumber(2)).Return(errors.New("agenda full"))
	require.ErrorIs(t, e.OnAlarm(ctx, idx), ErrSchedulerFailure)
	meta, err := c.store.Meta()
	require.NoError(t, err)
	require.Equal(t, []types.ReferendumIndex{idx}, meta.Retry)

	sched.EXPECT().ScheduleWake(idx, types.BlockNumber(3)).Return(nil)
	require.NoError(t, e.BeginBlock(ctx, 2))
	meta, err = c.store.Meta()
	require.NoError(t, err)
	require.Empty(t, meta.Retry)
	r, err := e.Referendum(idx)
	require.NoError(t, err)
	require.EqualValues(t, 3, *r.Alarm)
}

func TestEngine_SettlementRetried(t *testing.T) {
	ctrl := gomock.NewController(t)
	l := mocks.NewMockLedger(ctrl)
	c := newCollaborators(t)
	agenda, err := scheduler.New(testobserve.NOPObservability())
	require.NoError(t, err)
	e := newEngine(t, c.store, l, agenda)
	ctx := context.Background()

	l.EXPECT().Reserve(types.AccountID(1), types.Balance(2)).Return(nil)
	idx, err := e.Submit(ctx, 1, types.RootOrigin(), proposal, types.After(1))
	require.NoError(t, err)

	ledgerErr := errors.New("ledger offline")
	l.EXPECT().Refund(types.AccountID(1), types.Balance(2)).Return(ledgerErr).Times(2)
	err = e.Cancel(ctx, types.RootOrigin(), idx)
	require.ErrorIs(t, err, ErrLedgerFailure)
	require.ErrorIs(t, err, ledgerErr)

	// referendum is closed regardless
	r, err := e.Referendum(idx)
	require.NoError(t, err)
	require.Equal(t, store.StatusCancelled, r.Status)
	require.Equal(t, []store.Settlement{{Kind: store.SettleRefund, Deposit: store.Deposit{Who: 1, Amount: 2}}}, r.Unsettled)
	meta, err := c.store.Meta()
	require.NoError(t, err)
	require.Equal(t, []types.ReferendumIndex{idx}, meta.Unsettled)

	require.ErrorIs(t, e.BeginBlock(ctx, 1), ErrLedgerFailure)

	l.EXPECT().Refund(types.AccountID(1), types.Balance(2)).Return(nil)
	require.NoError(t, e.RefundDeposits(ctx, idx))
	r, err = e.Referendum(idx)
	require.NoError(t, err)
	require.Empty(t, r.Unsettled)
	meta, err = c.store.Meta()
	require.NoError(t, err)
	require.Empty(t, meta.Unsettled)

	require.ErrorIs(t, e.RefundDeposits(ctx, idx), ErrDepositRequired)
	require.NoError(t, e.BeginBlock(ctx, 2))
}

func TestEngine_PartialSettlement(t *testing.T) {
	ctrl := gomock.NewController(t)
	l := mocks.NewMockLedger(ctrl)
	c := newCollaborators(t)
	agenda, err := scheduler.New(testobserve.NOPObservability())
	require.NoError(t, err)
	e := newEngine(t, c.store, l, agenda)
	ctx := context.Background()

	l.EXPECT().Reserve(types.AccountID(1), types.Balance(2)).Return(nil)
	l.EXPECT().Reserve(types.AccountID(2), types.Balance(10)).Return(nil)
	idx, err := e.Submit(ctx, 1, types.RootOrigin(), proposal, types.After(1))
	require.NoError(t, err)
	require.NoError(t, e.SetTally(ctx, idx, tally.New(1, 0, 1)))
	require.NoError(t, e.PlaceDecisionDeposit(ctx, idx, 2))

	gomock.InOrder(
		l.EXPECT().Slash(types.AccountID(1), types.Balance(2)).Return(nil),
		l.EXPECT().Slash(types.AccountID(2), types.Balance(10)).Return(errors.New("ledger offline")),
		l.EXPECT().Slash(types.AccountID(2), types.Balance(10)).Return(nil),
	)
	require.ErrorIs(t, e.Kill(ctx, types.RootOrigin(), idx), ErrLedgerFailure)
	r, err := e.Referendum(idx)
	require.NoError(t, err)
	require.Equal(t, store.StatusKilled, r.Status)
	require.Equal(t, []store.Settlement{{Kind: store.SettleSlash, Deposit: store.Deposit{Who: 2, Amount: 10}}}, r.Unsettled)

	require.NoError(t, e.BeginBlock(ctx, 1))
	r, err = e.Referendum(idx)
	require.NoError(t, err)
	require.Empty(t, r.Unsettled)
}
