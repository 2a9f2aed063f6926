package referenda

import (
	"errors"
	"fmt"

	"github.com/gaecom/substrate/types"
)

// QueuePolicy decides the order in which referenda waiting for a deciding
// slot are admitted.
type QueuePolicy string

const (
	// QueueFIFO admits in order of decision deposit placement, then index.
	QueueFIFO QueuePolicy = "fifo"
	// QueueByAyes admits the referendum with most ayes first.
	QueueByAyes QueuePolicy = "ayes"
	// QueueNone disables queueing, deposits which can't be admitted right
	// away are refused with ErrQueueFull. Deposits accepted during the
	// prepare period still wait for a slot in deposit order.
	QueueNone QueuePolicy = "none"
)

func ParseQueuePolicy(s string) (QueuePolicy, error) {
	switch p := QueuePolicy(s); p {
	case QueueFIFO, QueueByAyes, QueueNone:
		return p, nil
	case "":
		return QueueFIFO, nil
	default:
		return "", fmt.Errorf("unknown queue policy %q", s)
	}
}

type Options struct {
	submissionDeposit types.Balance
	alarmInterval     uint64
	maxQueued         uint32
	queuePolicy       QueuePolicy
	undecidingTimeout uint64
	cancelOrigins     []types.Origin
	killOrigins       []types.Origin
}

type Option func(*Options)

func DefaultOptions() *Options {
	return &Options{
		submissionDeposit: 2,
		alarmInterval:     1,
		maxQueued:         100,
		queuePolicy:       QueueFIFO,
		cancelOrigins:     []types.Origin{types.RootOrigin()},
		killOrigins:       []types.Origin{types.RootOrigin()},
	}
}

// WithSubmissionDeposit sets the amount reserved from the submitter.
func WithSubmissionDeposit(amount types.Balance) Option {
	return func(o *Options) {
		o.submissionDeposit = amount
	}
}

// WithAlarmInterval makes alarms fire only on blocks which are multiples
// of n so that wake-ups of different referenda get batched.
func WithAlarmInterval(n uint64) Option {
	return func(o *Options) {
		o.alarmInterval = max(n, 1)
	}
}

// WithMaxQueued limits the number of referenda waiting for a slot per track.
func WithMaxQueued(n uint32) Option {
	return func(o *Options) {
		o.maxQueued = n
	}
}

func WithQueuePolicy(p QueuePolicy) Option {
	return func(o *Options) {
		o.queuePolicy = p
	}
}

// WithUndecidingTimeout times out referenda which haven't started deciding
// within n blocks of submission. Zero disables the timeout.
func WithUndecidingTimeout(n uint64) Option {
	return func(o *Options) {
		o.undecidingTimeout = n
	}
}

// WithCancelOrigin sets the origins allowed to cancel referenda.
func WithCancelOrigin(origins ...types.Origin) Option {
	return func(o *Options) {
		o.cancelOrigins = origins
	}
}

// WithKillOrigin sets the origins allowed to kill referenda.
func WithKillOrigin(origins ...types.Origin) Option {
	return func(o *Options) {
		o.killOrigins = origins
	}
}

func (o *Options) isValid() error {
	if _, err := ParseQueuePolicy(string(o.queuePolicy)); err != nil {
		return err
	}
	if len(o.cancelOrigins) == 0 {
		return errors.New("at least one cancel origin is required")
	}
	if len(o.killOrigins) == 0 {
		return errors.New("at least one kill origin is required")
	}
	if o.queuePolicy != QueueNone && o.maxQueued == 0 {
		return fmt.Errorf("max queued must be greater than zero when queue policy is %q", o.queuePolicy)
	}
	return nil
}
