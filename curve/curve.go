/*
Package curve implements threshold curves used by referendum tracks.

A curve maps the elapsed fraction of the decision period to the minimum
approval (or turnout) a referendum needs in order to pass at that moment.
All curves are pure functions, defined on [0, 1], non-negative and
non-increasing.
*/
package curve

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/gaecom/substrate/types"
)

const (
	KindLinearDecreasing  = "linear_decreasing"
	KindSteppedDecreasing = "stepped_decreasing"
	KindReciprocal        = "reciprocal"
)

type Curve interface {
	// Threshold returns the minimum value required at elapsed fraction x.
	Threshold(x types.Perbill) types.Perbill
	// Delay returns the smallest elapsed fraction at which the threshold is
	// y or less. One is returned when that never happens before the end.
	Delay(y types.Perbill) types.Perbill
	Kind() string
	Validate() error
}

// Passing reports whether value y meets the curve's threshold at x.
func Passing(c Curve, x, y types.Perbill) bool {
	return y >= c.Threshold(x)
}

// LinearDecreasing is the line from Begin at x=0 falling by Delta over the
// whole period, floored at zero.
type LinearDecreasing struct {
	Begin types.Perbill
	Delta types.Perbill
}

func (c LinearDecreasing) Threshold(x types.Perbill) types.Perbill {
	return c.Begin.Sub(c.Delta.Mul(x))
}

func (c LinearDecreasing) Delay(y types.Perbill) types.Perbill {
	if y >= c.Begin {
		return types.ZeroPerbill
	}
	gap := c.Begin.Sub(y)
	if c.Delta.IsZero() || gap > c.Delta {
		return types.OnePerbill
	}
	// ceil(gap / delta) so that Delta.Mul(x) >= gap
	parts := (gap.Parts()*types.PerbillAccuracy + c.Delta.Parts() - 1) / c.Delta.Parts()
	return types.FromParts(parts)
}

func (c LinearDecreasing) Kind() string { return KindLinearDecreasing }

func (c LinearDecreasing) Validate() error {
	if c.Begin > types.OnePerbill || c.Delta > types.OnePerbill {
		return errors.New("linear curve parameters must not exceed 100%")
	}
	return nil
}

func (c LinearDecreasing) String() string {
	return fmt.Sprintf("%s(begin=%s, delta=%s)", c.Kind(), c.Begin, c.Delta)
}

/*
SteppedDecreasing starts at Begin and drops by Step after every Period of
elapsed fraction, never going below End.
*/
type SteppedDecreasing struct {
	Begin  types.Perbill
	End    types.Perbill
	Step   types.Perbill
	Period types.Perbill
}

func (c SteppedDecreasing) Threshold(x types.Perbill) types.Perbill {
	if c.Period.IsZero() {
		return c.Begin
	}
	steps := x.Parts() / c.Period.Parts()
	drop := types.FromParts(steps * c.Step.Parts())
	return max(c.Begin.Sub(drop), c.End)
}

func (c SteppedDecreasing) Delay(y types.Perbill) types.Perbill {
	switch {
	case y >= c.Begin:
		return types.ZeroPerbill
	case y < c.End, c.Step.IsZero(), c.Period.IsZero():
		return types.OnePerbill
	}
	gap := c.Begin.Sub(y).Parts()
	steps := (gap + c.Step.Parts() - 1) / c.Step.Parts()
	return types.FromParts(steps * c.Period.Parts())
}

func (c SteppedDecreasing) Kind() string { return KindSteppedDecreasing }

func (c SteppedDecreasing) Validate() error {
	if c.Period.IsZero() {
		return errors.New("stepped curve period must be greater than zero")
	}
	if c.End > c.Begin {
		return fmt.Errorf("stepped curve end %s is greater than begin %s", c.End, c.Begin)
	}
	if c.Begin > types.OnePerbill {
		return errors.New("stepped curve begin must not exceed 100%")
	}
	return nil
}

func (c SteppedDecreasing) String() string {
	return fmt.Sprintf("%s(begin=%s, end=%s, step=%s, period=%s)", c.Kind(), c.Begin, c.End, c.Step, c.Period)
}

/*
Reciprocal is y = Factor/(x + XOffset) + YOffset clamped to [0, 1].

All parameters are fixed point numbers with nine decimals (parts per
billion), Factor and XOffset may exceed one and YOffset may be negative.
*/
type Reciprocal struct {
	Factor  uint64
	XOffset uint64
	YOffset int64
}

var billion = uint256.NewInt(types.PerbillAccuracy)

func (c Reciprocal) Threshold(x types.Perbill) types.Perbill {
	denom := uint256.NewInt(x.Parts())
	denom.AddUint64(denom, c.XOffset)
	if denom.IsZero() {
		return types.OnePerbill
	}
	// values are clamped to a range wide enough for the offset to matter
	const limit = 4 * types.PerbillAccuracy
	q, overflow := new(uint256.Int).MulDivOverflow(uint256.NewInt(c.Factor), billion, denom)
	qv := uint64(limit)
	if !overflow && q.IsUint64() && q.Uint64() < limit {
		qv = q.Uint64()
	}
	v := int64(qv) + max(c.YOffset, -limit)
	switch {
	case v <= 0:
		return types.ZeroPerbill
	case v >= types.PerbillAccuracy:
		return types.OnePerbill
	default:
		return types.Perbill(v)
	}
}

func (c Reciprocal) Delay(y types.Perbill) types.Perbill {
	if c.Threshold(types.ZeroPerbill) <= y {
		return types.ZeroPerbill
	}
	// need Factor/(x+XOffset) <= y - YOffset
	d := int64(y.Parts()) - c.YOffset
	if d <= 0 {
		return types.OnePerbill
	}
	need, overflow := new(uint256.Int).MulDivOverflow(uint256.NewInt(c.Factor), billion, uint256.NewInt(uint64(d)))
	if overflow || !need.IsUint64() {
		return types.OnePerbill
	}
	n := need.Uint64()
	if new(uint256.Int).Mul(need, uint256.NewInt(uint64(d))).Cmp(new(uint256.Int).Mul(uint256.NewInt(c.Factor), billion)) < 0 {
		n++ // ceil
	}
	if n <= c.XOffset {
		return types.ZeroPerbill
	}
	x := types.FromParts(n - c.XOffset)
	// integer rounding of Threshold may still leave it a part above y
	for x < types.OnePerbill && c.Threshold(x) > y {
		x++
	}
	return x
}

func (c Reciprocal) Kind() string { return KindReciprocal }

func (c Reciprocal) Validate() error {
	if c.XOffset == 0 {
		return errors.New("reciprocal curve x offset must be greater than zero")
	}
	return nil
}

func (c Reciprocal) String() string {
	return fmt.Sprintf("%s(factor=%d, x_offset=%d, y_offset=%d)", c.Kind(), c.Factor, c.XOffset, c.YOffset)
}
