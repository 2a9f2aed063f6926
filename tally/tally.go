// Package tally defines the view of a referendum's vote count the deciding
// engine works with.
package tally

import (
	"fmt"

	"github.com/gaecom/substrate/types"
)

/*
Tally is the read-only capability the engine needs from a vote count.
How the votes are cast and weighted is up to the implementation.
*/
type Tally interface {
	// Ayes is the absolute number of votes in favour, used to order queues.
	Ayes() uint64
	Turnout() types.Perbill
	Approval() types.Perbill
}

/*
Votes is a snapshot of a simple aye/nay count against a fixed electorate.
Zero value is an empty tally (zero turnout, zero approval).
*/
type Votes struct {
	_          struct{} `cbor:",toarray"`
	Aye        uint64   `json:"ayes" yaml:"ayes"`
	Nay        uint64   `json:"nays" yaml:"nays"`
	Electorate uint64   `json:"electorate" yaml:"electorate"`
}

var _ Tally = (*Votes)(nil)

func New(ayes, nays, electorate uint64) Votes {
	return Votes{Aye: ayes, Nay: nays, Electorate: electorate}
}

func (v Votes) Ayes() uint64 { return v.Aye }

func (v Votes) total() uint64 {
	if v.Aye > ^uint64(0)-v.Nay {
		return ^uint64(0)
	}
	return v.Aye + v.Nay
}

// Turnout is the share of the electorate which voted.
func (v Votes) Turnout() types.Perbill {
	return types.FromRational(v.total(), v.Electorate)
}

// Approval is the share of ayes among the cast votes.
func (v Votes) Approval() types.Perbill {
	return types.FromRational(v.Aye, v.total())
}

func (v Votes) Validate() error {
	if v.Electorate != 0 && v.total() > v.Electorate {
		return fmt.Errorf("%d votes cast but electorate is %d", v.total(), v.Electorate)
	}
	return nil
}

func (v Votes) String() string {
	return fmt.Sprintf("ayes=%d nays=%d electorate=%d", v.Aye, v.Nay, v.Electorate)
}
