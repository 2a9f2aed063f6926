package curve

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"

	"github.com/gaecom/substrate/types"
)

func pct(v uint64) types.Perbill { return types.FromPercent(v) }

func TestLinearDecreasing(t *testing.T) {
	c := LinearDecreasing{Begin: pct(100), Delta: pct(50)}
	require.NoError(t, c.Validate())
	require.Equal(t, pct(100), c.Threshold(0))
	require.Equal(t, pct(75), c.Threshold(pct(50)))
	require.Equal(t, pct(50), c.Threshold(pct(100)))

	require.Equal(t, types.ZeroPerbill, c.Delay(pct(100)))
	require.Equal(t, pct(50), c.Delay(pct(75)))
	require.Equal(t, types.OnePerbill, c.Delay(pct(50)))
	// never reached before the end of the period
	require.Equal(t, types.OnePerbill, c.Delay(pct(40)))

	require.True(t, Passing(c, pct(50), pct(80)))
	require.False(t, Passing(c, pct(10), pct(80)))

	// delta larger than begin floors at zero
	c = LinearDecreasing{Begin: pct(10), Delta: pct(100)}
	require.Equal(t, types.ZeroPerbill, c.Threshold(pct(50)))
	require.Equal(t, pct(10), c.Delay(0))

	require.EqualError(t, LinearDecreasing{Begin: types.OnePerbill + 1}.Validate(), "linear curve parameters must not exceed 100%")
	require.Equal(t, "linear_decreasing(begin=100%, delta=50%)", LinearDecreasing{Begin: pct(100), Delta: pct(50)}.String())
}

func TestSteppedDecreasing(t *testing.T) {
	c := SteppedDecreasing{Begin: pct(80), End: pct(30), Step: pct(10), Period: pct(25)}
	require.NoError(t, c.Validate())
	require.Equal(t, pct(80), c.Threshold(0))
	require.Equal(t, pct(80), c.Threshold(pct(25)-1))
	require.Equal(t, pct(70), c.Threshold(pct(25)))
	require.Equal(t, pct(60), c.Threshold(pct(50)))
	require.Equal(t, pct(40), c.Threshold(pct(100)))

	require.Equal(t, types.ZeroPerbill, c.Delay(pct(90)))
	require.Equal(t, pct(50), c.Delay(pct(60)))
	require.Equal(t, pct(25), c.Delay(pct(75)))
	require.Equal(t, types.OnePerbill, c.Delay(pct(35)))
	require.Equal(t, types.OnePerbill, c.Delay(pct(20)))

	// the floor holds
	c = SteppedDecreasing{Begin: pct(50), End: pct(20), Step: pct(20), Period: pct(10)}
	require.Equal(t, pct(20), c.Threshold(pct(100)))
	require.Equal(t, pct(20), c.Delay(pct(20)))

	require.EqualError(t, SteppedDecreasing{Begin: pct(50)}.Validate(), "stepped curve period must be greater than zero")
	require.EqualError(t, SteppedDecreasing{Begin: pct(10), End: pct(20), Period: 1}.Validate(), "stepped curve end 20% is greater than begin 10%")
}

func TestReciprocal(t *testing.T) {
	// y = 0.1/(x+0.1)
	c := Reciprocal{Factor: 100_000_000, XOffset: 100_000_000}
	require.NoError(t, c.Validate())
	require.Equal(t, pct(100), c.Threshold(0))
	require.Equal(t, pct(20), c.Threshold(pct(40)))
	require.Equal(t, types.Perbill(90_909_090), c.Threshold(pct(100)))

	require.Equal(t, types.ZeroPerbill, c.Delay(pct(100)))
	require.Equal(t, pct(40), c.Delay(pct(20)))
	require.Equal(t, types.OnePerbill, c.Delay(pct(5)))

	// negative offset pulls the curve down to zero
	c = Reciprocal{Factor: 100_000_000, XOffset: 100_000_000, YOffset: -200_000_000}
	require.Equal(t, types.Perbill(800_000_000), c.Threshold(0))
	require.Equal(t, types.ZeroPerbill, c.Threshold(pct(100)))
	require.Equal(t, pct(40), c.Delay(0))

	// huge factor saturates
	c = Reciprocal{Factor: 1 << 62, XOffset: 1}
	require.Equal(t, types.OnePerbill, c.Threshold(0))
	require.Equal(t, types.OnePerbill, c.Delay(pct(50)))

	require.EqualError(t, Reciprocal{Factor: 1}.Validate(), "reciprocal curve x offset must be greater than zero")
}

func perbillGen() gopter.Gen {
	return gen.UInt32Range(0, types.PerbillAccuracy).Map(func(v uint32) types.Perbill { return types.Perbill(v) })
}

func curveGen() gopter.Gen {
	return gen.OneGenOf(
		gopter.CombineGens(perbillGen(), perbillGen()).Map(func(v []any) Curve {
			return LinearDecreasing{Begin: v[0].(types.Perbill), Delta: v[1].(types.Perbill)}
		}),
		gopter.CombineGens(perbillGen(), perbillGen(), perbillGen(), gen.UInt32Range(1, types.PerbillAccuracy)).Map(func(v []any) Curve {
			begin, end := v[0].(types.Perbill), v[1].(types.Perbill)
			if end > begin {
				begin, end = end, begin
			}
			return SteppedDecreasing{Begin: begin, End: end, Step: v[2].(types.Perbill), Period: types.Perbill(v[3].(uint32))}
		}),
		gopter.CombineGens(gen.UInt64Range(0, 10*types.PerbillAccuracy), gen.UInt64Range(1, 2*types.PerbillAccuracy), gen.Int64Range(-types.PerbillAccuracy, types.PerbillAccuracy)).Map(func(v []any) Curve {
			return Reciprocal{Factor: v[0].(uint64), XOffset: v[1].(uint64), YOffset: v[2].(int64)}
		}),
	)
}

func TestCurve_Properties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 1000
	properties := gopter.NewProperties(parameters)

	properties.Property("threshold is bounded and non-increasing", prop.ForAll(
		func(c Curve, a, b types.Perbill) bool {
			if a > b {
				a, b = b, a
			}
			ta, tb := c.Threshold(a), c.Threshold(b)
			return ta <= types.OnePerbill && tb <= ta
		},
		curveGen(), perbillGen(), perbillGen(),
	))

	properties.Property("threshold at delay does not exceed the value", prop.ForAll(
		func(c Curve, y types.Perbill) bool {
			x := c.Delay(y)
			if x > types.OnePerbill {
				return false
			}
			if x == types.OnePerbill {
				// reached at the end or never, both mean "end of period"
				return true
			}
			return c.Threshold(x) <= y
		},
		curveGen(), perbillGen(),
	))

	properties.Property("delay is minimal for piecewise curves", prop.ForAll(
		func(c Curve, y types.Perbill) bool {
			if _, ok := c.(Reciprocal); ok {
				return true
			}
			x := c.Delay(y)
			if x == 0 || x == types.OnePerbill {
				return true
			}
			return c.Threshold(x-1) > y
		},
		curveGen(), perbillGen(),
	))

	properties.TestingRun(t)
}
