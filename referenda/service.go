package referenda

import (
	"fmt"

	"github.com/gaecom/substrate/referenda/store"
	"github.com/gaecom/substrate/tally"
	"github.com/gaecom/substrate/tracks"
	"github.com/gaecom/substrate/types"
)

/*
service advances the referendum as far as the current block and tally
allow and sets its next alarm. Slots released by the pass are handed to
queued referenda before returning.
*/
func (e *Engine) service(p *pass, r *store.Referendum) error {
	tr, err := e.tracks.Track(r.Track)
	if err != nil {
		return err
	}
	if !r.IsDeciding() {
		if e.undecidingTimedOut(r, p.now) {
			if err := e.close(p, r, tr, store.StatusTimedOut); err != nil {
				return err
			}
			return e.admitQueued(p)
		}
		if err := e.tryAdmit(p, r, tr); err != nil {
			return err
		}
		// admitted referenda have been evaluated already
		if r.IsOngoing() && !r.IsDeciding() {
			p.setAlarm(r, e.preDecidingAlarm(r, tr, p.now))
		}
		return e.admitQueued(p)
	}
	if err := e.decide(p, r, tr); err != nil {
		return err
	}
	return e.admitQueued(p)
}

func (e *Engine) undecidingTimedOut(r *store.Referendum, now types.BlockNumber) bool {
	return e.opts.undecidingTimeout > 0 && !r.InQueue && now >= r.Submitted.Add(e.opts.undecidingTimeout)
}

/*
tryAdmit moves the referendum into deciding when it is ready and a slot is
free, or into the track's queue when all slots are taken. Referenda which
start deciding are evaluated right away.
*/
func (e *Engine) tryAdmit(p *pass, r *store.Referendum, tr *tracks.Track) error {
	if r.DecisionDeposit == nil || p.now < r.Submitted.Add(tr.PreparePeriod) {
		return nil
	}
	ts, err := p.trackState(r.Track)
	if err != nil {
		return err
	}
	if !r.InQueue {
		if ts.Deciding < tr.MaxDeciding && len(ts.Queue) == 0 {
			e.beginDeciding(p, r, ts)
			return e.decide(p, r, tr)
		}
		queued, err := e.enqueue(p, ts, r)
		if err != nil || !queued {
			return err
		}
	}
	if ts.Deciding < tr.MaxDeciding {
		p.admit = append(p.admit, r.Track)
		return e.admitQueued(p)
	}
	return nil
}

func (e *Engine) beginDeciding(p *pass, r *store.Referendum, ts *store.TrackState) {
	r.InQueue = false
	r.Deciding = &store.DecidingStatus{Since: p.now}
	ts.Deciding++
	p.event(r, evDeciding)
}

/*
decide evaluates the tally of a deciding referendum against the track's
curves at the current block.
*/
func (e *Engine) decide(p *pass, r *store.Referendum, tr *tracks.Track) error {
	d := r.Deciding
	elapsed := p.now.Since(d.Since)
	votes := r.Tally()
	approval, turnout := votes.Approval(), votes.Turnout()
	if !d.TurnoutMet && tr.TurnoutMet(elapsed, turnout) {
		d.TurnoutMet = true
	}

	if tr.IsPassing(elapsed, approval, turnout) {
		if d.Confirming == nil {
			since := p.now
			d.Confirming = &since
			p.event(r, evConfirming)
		}
		if p.now >= d.Confirming.Add(tr.ConfirmPeriod) {
			return e.approve(p, r, tr)
		}
	} else {
		if d.Confirming != nil {
			d.Confirming = nil
			p.event(r, evUnconfirmed)
		}
		if elapsed >= tr.DecisionPeriod {
			status := store.StatusRejected
			if tr.TimeoutOnLowTurnout && !d.TurnoutMet {
				status = store.StatusTimedOut
			}
			return e.close(p, r, tr, status)
		}
	}
	p.setAlarm(r, e.decidingAlarm(r, votes, tr, p.now))
	return nil
}

func (e *Engine) approve(p *pass, r *store.Referendum, tr *tracks.Track) error {
	r.EnactAt = r.Enactment.Resolve(p.now, tr.MinEnactmentPeriod)
	p.enact = append(p.enact, enactment{index: r.Index, at: r.EnactAt, proposal: r.ProposalHash})
	return e.close(p, r, tr, store.StatusApproved)
}

/*
close moves the referendum into terminal status. The deciding slot and
queue position are released and the deposits are marked for settlement
according to the outcome.
*/
func (e *Engine) close(p *pass, r *store.Referendum, tr *tracks.Track, status store.Status) error {
	if !status.IsTerminal() {
		return fmt.Errorf("can't close referendum %d with status %s", r.Index, status)
	}
	if r.InQueue || r.IsDeciding() {
		ts, err := p.trackState(r.Track)
		if err != nil {
			return err
		}
		if r.InQueue {
			ts.Remove(r.Index)
			r.InQueue = false
		}
		if r.IsDeciding() {
			ts.Deciding--
			p.admit = append(p.admit, r.Track)
		}
	}
	r.Status = status
	r.Closed = p.now
	r.Alarm = nil
	p.event(r, status.String())

	for _, s := range settlements(r, tr, status) {
		if s.Deposit.Amount > 0 {
			r.Unsettled = append(r.Unsettled, s)
		}
	}
	if len(r.Unsettled) > 0 {
		m, err := p.metaForUpdate()
		if err != nil {
			return err
		}
		m.AddUnsettled(r.Index)
		p.settle = append(p.settle, r.Index)
	}
	return nil
}

func settlements(r *store.Referendum, tr *tracks.Track, status store.Status) []store.Settlement {
	submission, decision := store.SettleRefund, store.SettleRefund
	switch status {
	case store.StatusKilled:
		submission, decision = store.SettleSlash, store.SettleSlash
	case store.StatusRejected, store.StatusTimedOut:
		switch tr.OnRejection {
		case tracks.SlashSubmissionOnRejection:
			submission = store.SettleSlash
		case tracks.SlashAllOnRejection:
			submission, decision = store.SettleSlash, store.SettleSlash
		}
	}
	res := []store.Settlement{{Kind: submission, Deposit: r.SubmissionDeposit}}
	if r.DecisionDeposit != nil {
		res = append(res, store.Settlement{Kind: decision, Deposit: *r.DecisionDeposit})
	}
	return res
}

/*
admitQueued fills free slots of the tracks which released one during the
pass. Admitted referenda are evaluated right away and may close again,
freeing the slot for the next one.
*/
func (e *Engine) admitQueued(p *pass) error {
	for len(p.admit) > 0 {
		id := p.admit[0]
		p.admit = p.admit[1:]
		tr, err := e.tracks.Track(id)
		if err != nil {
			return err
		}
		ts, err := p.trackState(id)
		if err != nil {
			return err
		}
		for ts.Deciding < tr.MaxDeciding {
			entry, ok := ts.Pop()
			if !ok {
				break
			}
			r, err := p.get(entry.Index)
			if err != nil {
				return fmt.Errorf("loading queued referendum: %w", err)
			}
			if !r.IsOngoing() {
				r.InQueue = false
				continue
			}
			e.beginDeciding(p, r, ts)
			if err := e.decide(p, r, tr); err != nil {
				return err
			}
		}
	}
	return nil
}

/*
decidingAlarm returns the block at which the deciding referendum needs to
be looked at again: the end of confirmation, or the block at which the
current tally starts to pass, but no later than the end of the decision
period.
*/
func (e *Engine) decidingAlarm(r *store.Referendum, t tally.Tally, tr *tracks.Track, now types.BlockNumber) types.BlockNumber {
	d := r.Deciding
	if d.Confirming != nil {
		return e.roundAlarm(d.Confirming.Add(tr.ConfirmPeriod), now)
	}
	wait := min(tr.DecisionTime(t.Approval(), t.Turnout()), tr.DecisionPeriod)
	return e.roundAlarm(d.Since.Add(wait), now)
}

/*
preDecidingAlarm returns the wake-up block of a referendum which is not
deciding yet: the end of the prepare period once the decision deposit is
placed, the undeciding timeout, or the next alarm interval when neither
applies.
*/
func (e *Engine) preDecidingAlarm(r *store.Referendum, tr *tracks.Track, now types.BlockNumber) types.BlockNumber {
	var at types.BlockNumber
	if e.opts.undecidingTimeout > 0 && !r.InQueue {
		at = r.Submitted.Add(e.opts.undecidingTimeout)
	}
	if prepareEnd := r.Submitted.Add(tr.PreparePeriod); r.DecisionDeposit != nil && prepareEnd > now {
		if at == 0 || prepareEnd < at {
			at = prepareEnd
		}
	}
	if at <= now {
		at = now.Add(e.opts.alarmInterval)
	}
	return e.roundAlarm(at, now)
}

// roundAlarm moves "at" to the next multiple of the alarm interval, the
// result is always after "now".
func (e *Engine) roundAlarm(at, now types.BlockNumber) types.BlockNumber {
	at = max(at, now+1)
	if i := e.opts.alarmInterval; i > 1 {
		if rem := uint64(at) % i; rem != 0 {
			at = at.Add(i - rem)
		}
	}
	return at
}
