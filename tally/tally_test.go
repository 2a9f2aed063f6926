package tally

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gaecom/substrate/types"
)

func TestVotes(t *testing.T) {
	var empty Votes
	require.Zero(t, empty.Ayes())
	require.Equal(t, types.ZeroPerbill, empty.Turnout())
	require.Equal(t, types.ZeroPerbill, empty.Approval())
	require.NoError(t, empty.Validate())

	v := New(30, 10, 100)
	require.EqualValues(t, 30, v.Ayes())
	require.Equal(t, types.FromPercent(40), v.Turnout())
	require.Equal(t, types.FromPercent(75), v.Approval())
	require.NoError(t, v.Validate())
	require.Equal(t, "ayes=30 nays=10 electorate=100", v.String())

	// unanimous
	v = New(5, 0, 5)
	require.Equal(t, types.OnePerbill, v.Turnout())
	require.Equal(t, types.OnePerbill, v.Approval())

	// no electorate means no turnout
	v = New(5, 5, 0)
	require.Equal(t, types.ZeroPerbill, v.Turnout())
	require.Equal(t, types.FromPercent(50), v.Approval())
	require.NoError(t, v.Validate())

	require.EqualError(t, New(60, 50, 100).Validate(), "110 votes cast but electorate is 100")
}

func TestVotes_Overflow(t *testing.T) {
	v := New(math.MaxUint64, math.MaxUint64, math.MaxUint64)
	require.Equal(t, types.OnePerbill, v.Turnout())
	require.Equal(t, types.OnePerbill, v.Approval())
}

func TestVotes_Cbor(t *testing.T) {
	v := New(1, 2, 3)
	b, err := types.Cbor.Marshal(v)
	require.NoError(t, err)
	require.Equal(t, []byte{0x83, 0x01, 0x02, 0x03}, b)

	var back Votes
	require.NoError(t, types.Cbor.Unmarshal(b, &back))
	require.Equal(t, v, back)
}
