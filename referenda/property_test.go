package referenda

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	testobserve "github.com/gaecom/substrate/internal/testutils/observability"
	"github.com/gaecom/substrate/keyvaluedb/memorydb"
	"github.com/gaecom/substrate/ledger"
	"github.com/gaecom/substrate/referenda/store"
	"github.com/gaecom/substrate/scheduler"
	"github.com/gaecom/substrate/tally"
	"github.com/gaecom/substrate/tracks"
	"github.com/gaecom/substrate/types"
)

const (
	opSubmit = iota
	opDeposit
	opTally
	opBlock
	opBlocks
	opCancel
	opKill
	opCount
)

type simOp struct {
	kind  int
	ref   types.ReferendumIndex
	who   types.AccountID
	ayes  uint64
	nays  uint64
	track bool
}

func (o simOp) String() string {
	return fmt.Sprintf("{%d ref=%d who=%d ayes=%d nays=%d}", o.kind, o.ref, o.who, o.ayes, o.nays)
}

func simOpGen() gopter.Gen {
	return gopter.CombineGens(
		gen.IntRange(0, opCount-1),
		gen.UInt32Range(0, 7),
		gen.UInt64Range(1, 4),
		gen.UInt64Range(0, 100),
		gen.UInt64Range(0, 100),
		gen.Bool(),
	).Map(func(v []any) simOp {
		ayes := v[3].(uint64)
		return simOp{
			kind:  v[0].(int),
			ref:   types.ReferendumIndex(v[1].(uint32)),
			who:   types.AccountID(v[2].(uint64)),
			ayes:  ayes,
			nays:  min(v[4].(uint64), 100-ayes),
			track: v[5].(bool),
		}
	})
}

type simulation struct {
	ctx    context.Context
	engine *Engine
	store  *store.Store
	ledger *ledger.Ledger
	agenda *scheduler.Agenda
	reg    *tracks.Registry
}

func newSimulation(opts ...Option) (*simulation, error) {
	observe := testobserve.NOPObservability()
	s, err := store.New(memorydb.New())
	if err != nil {
		return nil, err
	}
	l, err := ledger.New(memorydb.New(), observe.Logger())
	if err != nil {
		return nil, err
	}
	for who := types.AccountID(1); who <= 4; who++ {
		if err := l.Endow(who, 1_000_000); err != nil {
			return nil, err
		}
	}
	agenda, err := scheduler.New(observe)
	if err != nil {
		return nil, err
	}
	reg := tracks.Default()
	e, err := New(s, reg, l, agenda, observe, opts...)
	if err != nil {
		return nil, err
	}
	return &simulation{ctx: context.Background(), engine: e, store: s, ledger: l, agenda: agenda, reg: reg}, nil
}

func (sim *simulation) advance(blocks int) error {
	for i := 0; i < blocks; i++ {
		n := sim.engine.Now() + 1
		if err := sim.engine.BeginBlock(sim.ctx, n); err != nil {
			return err
		}
		if _, err := sim.agenda.OnInitialize(sim.ctx, n, sim.engine.OnAlarm); err != nil {
			return err
		}
	}
	return nil
}

// apply runs the operation, errors which the operation may legitimately
// return for the generated input are ignored.
func (sim *simulation) apply(op simOp) error {
	var err error
	switch op.kind {
	case opSubmit:
		origin := types.NoneOrigin()
		if op.track {
			origin = types.RootOrigin()
		}
		_, err = sim.engine.Submit(sim.ctx, op.who, origin, types.Hash{byte(op.ref)}, types.After(uint64(op.ref)))
	case opDeposit:
		err = sim.engine.PlaceDecisionDeposit(sim.ctx, op.ref, op.who)
	case opTally:
		err = sim.engine.SetTally(sim.ctx, op.ref, tally.New(op.ayes, op.nays, 100))
	case opBlock:
		err = sim.advance(1)
	case opBlocks:
		err = sim.advance(3)
	case opCancel:
		err = sim.engine.Cancel(sim.ctx, types.RootOrigin(), op.ref)
	case opKill:
		err = sim.engine.Kill(sim.ctx, types.RootOrigin(), op.ref)
	}
	if errors.Is(err, ErrNotOngoing) || errors.Is(err, ErrAlreadyDeposited) || errors.Is(err, ErrQueueFull) {
		return nil
	}
	return err
}

/*
check verifies the invariants which must hold between operations: slot and
queue bookkeeping matches the referenda, every ongoing referendum has
exactly one wake-up in the future, closed ones have none, and the ledger
holds exactly the deposits of ongoing referenda.
*/
func (sim *simulation) check() error {
	now := sim.engine.Now()
	deciding := map[types.TrackID]uint32{}
	queued := map[types.TrackID]int{}
	var held types.Balance
	refs, err := sim.store.List(0, 0)
	if err != nil {
		return err
	}
	for _, r := range refs {
		wake, scheduled := sim.agenda.WakeAt(r.Index)
		if !r.IsOngoing() {
			if r.Alarm != nil || scheduled {
				return fmt.Errorf("%s has an alarm", r)
			}
			if len(r.Unsettled) > 0 {
				return fmt.Errorf("%s has unsettled deposits", r)
			}
			continue
		}
		if r.Alarm == nil || !scheduled || wake != *r.Alarm || wake <= now {
			return fmt.Errorf("%s: alarm %v, wake-up %d (scheduled %t) at block %d", r, r.Alarm, wake, scheduled, now)
		}
		if r.IsDeciding() {
			deciding[r.Track]++
		}
		if r.InQueue {
			queued[r.Track]++
		}
		for _, d := range r.HeldDeposits() {
			held += d.Amount
		}
	}
	for _, entry := range sim.reg.Tracks() {
		ts, err := sim.store.TrackState(entry.ID)
		if err != nil {
			return err
		}
		if ts.Deciding != deciding[entry.ID] || ts.Deciding > entry.Track.MaxDeciding {
			return fmt.Errorf("track %d: %d deciding, state says %d, max %d", entry.ID, deciding[entry.ID], ts.Deciding, entry.Track.MaxDeciding)
		}
		if len(ts.Queue) != queued[entry.ID] {
			return fmt.Errorf("track %d: %d queued, queue has %d entries", entry.ID, queued[entry.ID], len(ts.Queue))
		}
	}
	var reserved types.Balance
	for who := types.AccountID(1); who <= 4; who++ {
		a, err := sim.ledger.Account(who)
		if err != nil {
			return err
		}
		reserved += a.Reserved
	}
	if reserved != held {
		return fmt.Errorf("ledger holds %d, referenda hold %d", reserved, held)
	}
	return nil
}

func TestEngine_Invariants(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	for _, policy := range []QueuePolicy{QueueFIFO, QueueByAyes, QueueNone} {
		policy := policy
		properties.Property(fmt.Sprintf("bookkeeping holds after every operation (%s queue)", policy), prop.ForAll(
			func(ops []simOp) bool {
				sim, err := newSimulation(WithQueuePolicy(policy), WithMaxQueued(2), WithUndecidingTimeout(12))
				if err != nil {
					t.Log(err)
					return false
				}
				for i, op := range ops {
					if err := sim.apply(op); err != nil {
						t.Logf("op %d %s: %v", i, op, err)
						return false
					}
					if err := sim.check(); err != nil {
						t.Logf("after op %d %s: %v", i, op, err)
						return false
					}
				}
				// nothing stays ongoing forever
				if err := sim.advance(48); err != nil {
					t.Log(err)
					return false
				}
				refs, err := sim.store.List(0, 0)
				if err != nil {
					t.Log(err)
					return false
				}
				for _, r := range refs {
					if r.IsOngoing() {
						t.Logf("%s still ongoing at block %d", r, sim.engine.Now())
						return false
					}
				}
				return sim.check() == nil
			},
			gen.SliceOfN(40, simOpGen()),
		))
	}

	properties.TestingRun(t)
}
