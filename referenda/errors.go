package referenda

import (
	"errors"

	"github.com/gaecom/substrate/referenda/store"
	"github.com/gaecom/substrate/tracks"
)

var (
	ErrUnclassifiable = tracks.ErrUnclassifiable
	ErrUnknownTrack   = tracks.ErrUnknownTrack
	ErrNotOngoing     = store.ErrNotOngoing

	ErrDepositRequired  = errors.New("deposit required")
	ErrAlreadyDeposited = errors.New("decision deposit already placed")
	ErrQueueFull        = errors.New("no deciding slot available and the queue is full")
	ErrLedgerFailure    = errors.New("deposit ledger failure")
	ErrSchedulerFailure = errors.New("scheduler failure")
	ErrStillOngoing     = errors.New("referendum is still ongoing")
	ErrInvalidTally     = errors.New("invalid tally")
	ErrBadOrigin        = errors.New("origin not allowed")
)
