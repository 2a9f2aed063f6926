package referenda

import (
	"context"
	"errors"
	"fmt"

	"github.com/gaecom/substrate/referenda/store"
	"github.com/gaecom/substrate/types"
)

/*
pass collects the changes of one engine operation. Records are loaded into
the pass on first use and written back to the store transaction by flush.
Calls made to the collaborators carry an undo function so that an operation
which fails after calling them can be compensated.
*/
type pass struct {
	e   *Engine
	tx  *store.Tx
	now types.BlockNumber

	refs      map[types.ReferendumIndex]*store.Referendum
	order     []types.ReferendumIndex
	prevAlarm map[types.ReferendumIndex]*types.BlockNumber
	tracks    map[types.TrackID]*store.TrackState
	meta      *store.Meta

	enact  []enactment
	admit  []types.TrackID
	settle []types.ReferendumIndex
	events []event

	undo []func() error
}

type (
	enactment struct {
		index    types.ReferendumIndex
		at       types.BlockNumber
		proposal types.Hash
	}

	event struct {
		index types.ReferendumIndex
		track types.TrackID
		name  string
	}
)

const (
	evSubmitted   = "submitted"
	evQueued      = "queued"
	evDeciding    = "deciding"
	evConfirming  = "confirming"
	evUnconfirmed = "unconfirmed"
)

func newPass(e *Engine, tx *store.Tx) *pass {
	return &pass{
		e:         e,
		tx:        tx,
		now:       e.now,
		refs:      make(map[types.ReferendumIndex]*store.Referendum),
		prevAlarm: make(map[types.ReferendumIndex]*types.BlockNumber),
		tracks:    make(map[types.TrackID]*store.TrackState),
	}
}

/*
update runs fn in a store transaction. After fn succeeds the changes are
written, the scheduler is brought in line with the new alarms and the
transaction is committed. When anything fails the collaborator calls made
so far are undone.
*/
func (e *Engine) update(ctx context.Context, fn func(p *pass) error) error {
	var p *pass
	err := e.store.Update(func(tx *store.Tx) error {
		p = newPass(e, tx)
		if err := fn(p); err != nil {
			return err
		}
		if err := p.flush(); err != nil {
			return err
		}
		return p.schedule()
	})
	if err != nil {
		if p != nil {
			if uErr := p.rollback(); uErr != nil {
				err = errors.Join(err, fmt.Errorf("compensating failed operation: %w", uErr))
			}
		}
		return err
	}
	e.committed(ctx, p)
	return nil
}

func (p *pass) cache(r *store.Referendum) {
	if _, ok := p.refs[r.Index]; ok {
		return
	}
	p.refs[r.Index] = r
	p.order = append(p.order, r.Index)
	if r.Alarm != nil {
		a := *r.Alarm
		p.prevAlarm[r.Index] = &a
	}
}

func (p *pass) insert(r *store.Referendum) (types.ReferendumIndex, error) {
	index, err := p.tx.Insert(r)
	if err != nil {
		return 0, err
	}
	if p.meta != nil {
		p.meta.NextIndex = index + 1
	}
	p.cache(r)
	p.event(r, evSubmitted)
	return index, nil
}

func (p *pass) get(index types.ReferendumIndex) (*store.Referendum, error) {
	if r, ok := p.refs[index]; ok {
		return r, nil
	}
	r, err := p.tx.Get(index)
	if err != nil {
		return nil, err
	}
	p.cache(r)
	return r, nil
}

func (p *pass) ensureOngoing(index types.ReferendumIndex) (*store.Referendum, error) {
	if r, ok := p.refs[index]; ok {
		if !r.IsOngoing() {
			return nil, fmt.Errorf("%w: %d is %s", ErrNotOngoing, index, r.Status)
		}
		return r, nil
	}
	r, err := p.tx.EnsureOngoing(index)
	if err != nil {
		return nil, err
	}
	p.cache(r)
	return r, nil
}

func (p *pass) trackState(id types.TrackID) (*store.TrackState, error) {
	if ts, ok := p.tracks[id]; ok {
		return ts, nil
	}
	ts, err := p.tx.TrackState(id)
	if err != nil {
		return nil, err
	}
	p.tracks[id] = ts
	return ts, nil
}

func (p *pass) metaForUpdate() (*store.Meta, error) {
	if p.meta == nil {
		m, err := p.tx.Meta()
		if err != nil {
			return nil, err
		}
		p.meta = m
	}
	return p.meta, nil
}

func (p *pass) setAlarm(r *store.Referendum, at types.BlockNumber) {
	r.Alarm = &at
}

func (p *pass) event(r *store.Referendum, name string) {
	p.events = append(p.events, event{index: r.Index, track: r.Track, name: name})
}

// reserve takes the deposit from the ledger, zero amounts are not reserved.
func (p *pass) reserve(who types.AccountID, amount types.Balance) error {
	if amount == 0 {
		return nil
	}
	if err := p.e.ledger.Reserve(who, amount); err != nil {
		return fmt.Errorf("%w: reserving %d from %d: %w", ErrLedgerFailure, amount, who, err)
	}
	p.undo = append(p.undo, func() error {
		if err := p.e.ledger.Refund(who, amount); err != nil {
			return fmt.Errorf("%w: returning reserved %d to %d: %w", ErrLedgerFailure, amount, who, err)
		}
		return nil
	})
	return nil
}

func (p *pass) flush() error {
	for _, index := range p.order {
		if err := p.tx.Put(p.refs[index]); err != nil {
			return err
		}
	}
	for id, ts := range p.tracks {
		if err := p.tx.PutTrackState(id, ts); err != nil {
			return err
		}
	}
	if p.meta != nil {
		return p.tx.PutMeta(p.meta)
	}
	return nil
}

/*
schedule replaces or cancels the wake-ups of the referenda whose alarm was
changed by the pass and schedules enactments of approved referenda.
*/
func (p *pass) schedule() error {
	sched := p.e.sched
	for _, index := range p.order {
		prev, cur := p.prevAlarm[index], p.refs[index].Alarm
		if equalAlarm(prev, cur) {
			continue
		}
		restore := p.restoreWake(index, prev)
		if cur == nil {
			if err := sched.CancelWake(index); err != nil {
				return fmt.Errorf("%w: cancelling wake of referendum %d: %w", ErrSchedulerFailure, index, err)
			}
		} else if err := sched.ScheduleWake(index, *cur); err != nil {
			return fmt.Errorf("%w: scheduling wake of referendum %d at %d: %w", ErrSchedulerFailure, index, *cur, err)
		}
		p.undo = append(p.undo, restore)
	}
	for _, en := range p.enact {
		if err := sched.ScheduleEnactment(en.index, en.at, en.proposal); err != nil {
			return fmt.Errorf("%w: scheduling enactment of referendum %d at %d: %w", ErrSchedulerFailure, en.index, en.at, err)
		}
		index := en.index
		p.undo = append(p.undo, func() error { return sched.CancelEnactment(index) })
	}
	return nil
}

// restoreWake returns undo func which puts back the wake-up the referendum
// had before the pass. Wake-ups at or before the current block have fired.
func (p *pass) restoreWake(index types.ReferendumIndex, prev *types.BlockNumber) func() error {
	if prev != nil && *prev > p.now {
		at := *prev
		return func() error { return p.e.sched.ScheduleWake(index, at) }
	}
	return func() error { return p.e.sched.CancelWake(index) }
}

func (p *pass) rollback() error {
	var errs []error
	for i := len(p.undo) - 1; i >= 0; i-- {
		if err := p.undo[i](); err != nil {
			errs = append(errs, err)
		}
	}
	p.undo = nil
	return errors.Join(errs...)
}

func equalAlarm(a, b *types.BlockNumber) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
