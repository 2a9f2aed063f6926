package referenda

import (
	"fmt"
	"slices"

	"github.com/gaecom/substrate/referenda/store"
	"github.com/gaecom/substrate/tally"
)

// queuedBefore reports whether entry a is admitted before entry b.
func (e *Engine) queuedBefore(a, b store.QueueEntry) bool {
	if e.opts.queuePolicy == QueueByAyes && a.Ayes != b.Ayes {
		return a.Ayes > b.Ayes
	}
	if a.Placed != b.Placed {
		return a.Placed < b.Placed
	}
	return a.Index < b.Index
}

func queueEntry(r *store.Referendum, t tally.Tally) store.QueueEntry {
	return store.QueueEntry{Index: r.Index, Placed: r.DecisionDeposit.Placed, Ayes: t.Ayes()}
}

// canQueue reports whether the referendum would get a place in the queue.
func (e *Engine) canQueue(ts *store.TrackState, t tally.Tally) bool {
	switch {
	case e.opts.queuePolicy == QueueNone:
		return false
	case uint32(len(ts.Queue)) < e.opts.maxQueued:
		return true
	case e.opts.queuePolicy == QueueByAyes && len(ts.Queue) > 0:
		return t.Ayes() > ts.Queue[len(ts.Queue)-1].Ayes
	default:
		return false
	}
}

func (e *Engine) insertQueue(ts *store.TrackState, entry store.QueueEntry) {
	i := slices.IndexFunc(ts.Queue, func(q store.QueueEntry) bool { return e.queuedBefore(entry, q) })
	if i < 0 {
		i = len(ts.Queue)
	}
	ts.Queue = slices.Insert(ts.Queue, i, entry)
}

/*
enqueue puts the referendum into the track's queue. When the queue is full
and the policy orders by ayes the last entry is evicted in favour of a
referendum with more ayes. Returns false when the referendum was not queued.

Without queueing policy only referenda whose deposit was accepted during the
prepare period get here. They wait for a slot in deposit order so that a
later deposit can't take the slot ahead of them.
*/
func (e *Engine) enqueue(p *pass, ts *store.TrackState, r *store.Referendum) (bool, error) {
	if e.opts.queuePolicy == QueueNone {
		e.insertQueue(ts, queueEntry(r, r.Tally()))
		r.InQueue = true
		p.event(r, evQueued)
		return true, nil
	}
	if !e.canQueue(ts, r.Tally()) {
		return false, nil
	}
	if uint32(len(ts.Queue)) >= e.opts.maxQueued {
		last := ts.Queue[len(ts.Queue)-1]
		evicted, err := p.get(last.Index)
		if err != nil {
			return false, fmt.Errorf("loading evicted referendum: %w", err)
		}
		tr, err := e.tracks.Track(evicted.Track)
		if err != nil {
			return false, err
		}
		ts.Queue = ts.Queue[:len(ts.Queue)-1]
		evicted.InQueue = false
		p.setAlarm(evicted, e.preDecidingAlarm(evicted, tr, p.now))
	}
	e.insertQueue(ts, queueEntry(r, r.Tally()))
	r.InQueue = true
	p.event(r, evQueued)
	return true, nil
}

// requeue refreshes the queue entry of the referendum after its tally changed.
func (e *Engine) requeue(p *pass, r *store.Referendum) error {
	ts, err := p.trackState(r.Track)
	if err != nil {
		return err
	}
	if !ts.Remove(r.Index) {
		r.InQueue = false
		return nil
	}
	e.insertQueue(ts, queueEntry(r, r.Tally()))
	return nil
}
