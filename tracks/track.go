package tracks

import (
	"errors"
	"fmt"

	"github.com/gaecom/substrate/curve"
	"github.com/gaecom/substrate/types"
)

// RejectionPolicy decides what happens to held deposits when a referendum
// is rejected or times out.
type RejectionPolicy string

const (
	RefundOnRejection          RejectionPolicy = "refund"
	SlashSubmissionOnRejection RejectionPolicy = "slash-submission"
	SlashAllOnRejection        RejectionPolicy = "slash-all"
)

func (p RejectionPolicy) Validate() error {
	switch p {
	case RefundOnRejection, SlashSubmissionOnRejection, SlashAllOnRejection:
		return nil
	default:
		return fmt.Errorf("unknown rejection policy %q", p)
	}
}

// Track is the static configuration shared by all referenda of one class.
// Durations are in blocks.
type Track struct {
	Name               string
	MaxDeciding        uint32
	DecisionDeposit    types.Balance
	PreparePeriod      uint64
	DecisionPeriod     uint64
	ConfirmPeriod      uint64
	MinEnactmentPeriod uint64
	MinApproval        curve.Curve
	MinTurnout         curve.Curve

	OnRejection RejectionPolicy
	// when set, a referendum which fails without its turnout ever having
	// met the threshold ends as TimedOut instead of Rejected.
	TimeoutOnLowTurnout bool
}

func (t *Track) IsValid() error {
	if t == nil {
		return errors.New("track is nil")
	}
	var errs []error
	if t.Name == "" {
		errs = append(errs, errors.New("track name is empty"))
	}
	if t.MaxDeciding == 0 {
		errs = append(errs, errors.New("max deciding must be greater than zero"))
	}
	if t.DecisionPeriod == 0 {
		errs = append(errs, errors.New("decision period must be greater than zero"))
	}
	if t.MinApproval == nil {
		errs = append(errs, errors.New("min approval curve is not set"))
	} else if err := t.MinApproval.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("min approval: %w", err))
	}
	if t.MinTurnout == nil {
		errs = append(errs, errors.New("min turnout curve is not set"))
	} else if err := t.MinTurnout.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("min turnout: %w", err))
	}
	if err := t.OnRejection.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ElapsedFraction returns how much of the decision period has passed after
// "blocks" blocks of deciding, capped at one.
func (t *Track) ElapsedFraction(blocks uint64) types.Perbill {
	return types.FromRational(min(blocks, t.DecisionPeriod), t.DecisionPeriod)
}

// IsPassing reports whether a tally with given approval and turnout would
// pass after "blocks" blocks of deciding.
func (t *Track) IsPassing(blocks uint64, approval, turnout types.Perbill) bool {
	x := t.ElapsedFraction(blocks)
	return curve.Passing(t.MinApproval, x, approval) && curve.Passing(t.MinTurnout, x, turnout)
}

// TurnoutMet reports whether the turnout alone meets its threshold.
func (t *Track) TurnoutMet(blocks uint64, turnout types.Perbill) bool {
	return curve.Passing(t.MinTurnout, t.ElapsedFraction(blocks), turnout)
}

/*
DecisionTime returns the number of blocks after the start of deciding at
which a tally with given approval and turnout starts to pass, or the
decision period when that would not happen earlier.
*/
func (t *Track) DecisionTime(approval, turnout types.Perbill) uint64 {
	x := max(t.MinApproval.Delay(approval), t.MinTurnout.Delay(turnout))
	return x.MulCeil(t.DecisionPeriod)
}
