package store

import (
	"fmt"

	"github.com/gaecom/substrate/tally"
	"github.com/gaecom/substrate/types"
)

const (
	StatusOngoing Status = iota
	StatusApproved
	StatusRejected
	StatusCancelled
	StatusTimedOut
	StatusKilled
)

type Status uint8

var statusNames = [...]string{"ongoing", "approved", "rejected", "cancelled", "timedout", "killed"}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("status(%d)", s)
}

// IsTerminal reports whether the status is final, terminal records never
// change their status again.
func (s Status) IsTerminal() bool {
	return s != StatusOngoing
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(b []byte) error {
	for i, n := range statusNames {
		if n == string(b) {
			*s = Status(i)
			return nil
		}
	}
	return fmt.Errorf("unknown status %q", b)
}

type (
	Deposit struct {
		_      struct{}          `cbor:",toarray"`
		Who    types.AccountID   `json:"who"`
		Amount types.Balance     `json:"amount"`
		Placed types.BlockNumber `json:"placed"`
	}

	DecidingStatus struct {
		_     struct{}          `cbor:",toarray"`
		Since types.BlockNumber `json:"since"`
		// block at which the referendum started confirming, nil when not confirming
		Confirming *types.BlockNumber `json:"confirming,omitempty"`
		// set once the turnout has met the track's threshold while deciding
		TurnoutMet bool `json:"turnoutMet"`
	}

	SettlementKind uint8

	// Settlement is a deposit refund or slash which has not been carried
	// out by the ledger yet.
	Settlement struct {
		_       struct{}       `cbor:",toarray"`
		Kind    SettlementKind `json:"kind"`
		Deposit Deposit        `json:"deposit"`
	}

	Referendum struct {
		_                 struct{}              `cbor:",toarray"`
		Index             types.ReferendumIndex `json:"index"`
		Track             types.TrackID         `json:"track"`
		Origin            types.Origin          `json:"origin"`
		ProposalHash      types.Hash            `json:"proposalHash"`
		Enactment         types.Enactment       `json:"enactment"`
		Submitted         types.BlockNumber     `json:"submitted"`
		SubmissionDeposit Deposit               `json:"submissionDeposit"`
		DecisionDeposit   *Deposit              `json:"decisionDeposit,omitempty"`
		Votes             tally.Votes           `json:"tally"`
		Status            Status                `json:"status"`
		Deciding          *DecidingStatus       `json:"deciding,omitempty"`
		InQueue           bool                  `json:"inQueue"`
		Alarm             *types.BlockNumber    `json:"alarm,omitempty"`
		// block at which the referendum reached terminal status
		Closed types.BlockNumber `json:"closed,omitempty"`
		// resolved enactment block of an approved referendum
		EnactAt   types.BlockNumber `json:"enactAt,omitempty"`
		Unsettled []Settlement      `json:"unsettled,omitempty"`
	}
)

const (
	SettleRefund SettlementKind = iota
	SettleSlash
)

func (k SettlementKind) String() string {
	if k == SettleSlash {
		return "slash"
	}
	return "refund"
}

func (k SettlementKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Tally returns the vote count of the referendum.
func (r *Referendum) Tally() tally.Tally {
	return r.Votes
}

func (r *Referendum) IsOngoing() bool {
	return r.Status == StatusOngoing
}

func (r *Referendum) IsDeciding() bool {
	return r.Status == StatusOngoing && r.Deciding != nil
}

func (r *Referendum) IsConfirming() bool {
	return r.IsDeciding() && r.Deciding.Confirming != nil
}

// HeldDeposits returns deposits currently reserved for the referendum.
func (r *Referendum) HeldDeposits() []Deposit {
	var held []Deposit
	if r.SubmissionDeposit.Amount > 0 {
		held = append(held, r.SubmissionDeposit)
	}
	if r.DecisionDeposit != nil && r.DecisionDeposit.Amount > 0 {
		held = append(held, *r.DecisionDeposit)
	}
	return held
}

func (r *Referendum) String() string {
	return fmt.Sprintf("referendum %d (track %d, %s)", r.Index, r.Track, r.Status)
}

type (
	// QueueEntry is a referendum waiting for a deciding slot.
	QueueEntry struct {
		_      struct{}              `cbor:",toarray"`
		Index  types.ReferendumIndex `json:"index"`
		Placed types.BlockNumber     `json:"placed"`
		Ayes   uint64                `json:"ayes"`
	}

	// TrackState is the mutable part of a track: number of deciding
	// referenda and the ordered queue of referenda waiting for a slot.
	TrackState struct {
		_        struct{}     `cbor:",toarray"`
		Deciding uint32       `json:"deciding"`
		Queue    []QueueEntry `json:"queue"`
	}

	// Meta holds store wide bookkeeping.
	Meta struct {
		_         struct{}                `cbor:",toarray"`
		NextIndex types.ReferendumIndex   `json:"nextIndex"`
		Block     types.BlockNumber       `json:"block"`
		Unsettled []types.ReferendumIndex `json:"unsettled,omitempty"`
		Retry     []types.ReferendumIndex `json:"retry,omitempty"`
	}
)

// Remove deletes referendum from the queue, returns false when it wasn't queued.
func (ts *TrackState) Remove(index types.ReferendumIndex) bool {
	for i, e := range ts.Queue {
		if e.Index == index {
			ts.Queue = append(ts.Queue[:i], ts.Queue[i+1:]...)
			return true
		}
	}
	return false
}

// Pop removes and returns the head of the queue.
func (ts *TrackState) Pop() (QueueEntry, bool) {
	if len(ts.Queue) == 0 {
		return QueueEntry{}, false
	}
	e := ts.Queue[0]
	ts.Queue = ts.Queue[1:]
	return e, true
}

func addIndex(list []types.ReferendumIndex, index types.ReferendumIndex) []types.ReferendumIndex {
	for _, v := range list {
		if v == index {
			return list
		}
	}
	return append(list, index)
}

func removeIndex(list []types.ReferendumIndex, index types.ReferendumIndex) []types.ReferendumIndex {
	for i, v := range list {
		if v == index {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

func (m *Meta) AddUnsettled(index types.ReferendumIndex) { m.Unsettled = addIndex(m.Unsettled, index) }

func (m *Meta) RemoveUnsettled(index types.ReferendumIndex) {
	m.Unsettled = removeIndex(m.Unsettled, index)
}

func (m *Meta) AddRetry(index types.ReferendumIndex) { m.Retry = addIndex(m.Retry, index) }

func (m *Meta) RemoveRetry(index types.ReferendumIndex) { m.Retry = removeIndex(m.Retry, index) }
