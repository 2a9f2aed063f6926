package types

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBlockNumber(t *testing.T) {
	require.EqualValues(t, 15, BlockNumber(10).Add(5))
	require.EqualValues(t, uint64(math.MaxUint64), BlockNumber(math.MaxUint64-1).Add(5))
	require.EqualValues(t, 5, BlockNumber(10).Since(5))
	require.EqualValues(t, 0, BlockNumber(5).Since(10))
}

func TestReferendumIndex_Bytes(t *testing.T) {
	idx := ReferendumIndex(0x01020304)
	require.Equal(t, []byte{1, 2, 3, 4}, idx.Bytes())
	back, err := BytesToReferendumIndex(idx.Bytes())
	require.NoError(t, err)
	require.Equal(t, idx, back)

	_, err = BytesToReferendumIndex([]byte{1, 2})
	require.EqualError(t, err, "referendum index must be 4 bytes, got 2 bytes")
}

func TestHash_Text(t *testing.T) {
	var h Hash
	h[0], h[31] = 0xAB, 0x01
	b, err := json.Marshal(h)
	require.NoError(t, err)
	require.Equal(t, `"0xab00000000000000000000000000000000000000000000000000000000000001"`, string(b))

	var back Hash
	require.NoError(t, json.Unmarshal(b, &back))
	require.Equal(t, h, back)

	_, err = ParseHash("0x0102")
	require.EqualError(t, err, "hash must be 32 bytes, got 2 bytes")
	_, err = ParseHash("zz")
	require.ErrorContains(t, err, "decoding hash")
}

func TestEnactment_Resolve(t *testing.T) {
	// "at" in the far future is honoured
	require.EqualValues(t, 100, At(100).Resolve(10, 4))
	// "at" in the past or too soon is pushed to the minimum enactment period
	require.EqualValues(t, 14, At(2).Resolve(10, 4))
	require.EqualValues(t, 14, At(12).Resolve(10, 4))
	// "after" counts from the approval block
	require.EqualValues(t, 30, After(20).Resolve(10, 4))
	require.EqualValues(t, 14, After(1).Resolve(10, 4))
	require.EqualValues(t, 10, After(0).Resolve(10, 0))
}

func TestEnactment_Text(t *testing.T) {
	for _, e := range []Enactment{At(42), After(7)} {
		b, err := e.MarshalText()
		require.NoError(t, err)
		var back Enactment
		require.NoError(t, back.UnmarshalText(b))
		require.Equal(t, e, back)
	}
	_, err := ParseEnactment("soon")
	require.ErrorContains(t, err, "expected at:<block> or after:<blocks>")
	_, err = ParseEnactment("later:5")
	require.EqualError(t, err, `invalid enactment kind "later"`)
	_, err = ParseEnactment("at:x")
	require.ErrorContains(t, err, `invalid enactment "at:x"`)
	require.ErrorContains(t, Enactment{Kind: 9}.IsValid(), "unknown enactment kind 9")
}

func TestOrigin(t *testing.T) {
	for _, o := range []Origin{RootOrigin(), NoneOrigin(), SignedOrigin(42)} {
		back, err := ParseOrigin(o.String())
		require.NoError(t, err)
		require.Equal(t, o, back)
	}
	require.Equal(t, "signed", SignedOrigin(1).Class())
	require.Equal(t, "signed:1", SignedOrigin(1).String())

	_, err := ParseOrigin("council")
	require.EqualError(t, err, `unknown origin "council"`)
	_, err = ParseOrigin("signed:bob")
	require.ErrorContains(t, err, "invalid signer")
}

func TestCbor_Records(t *testing.T) {
	e := After(5)
	b, err := Cbor.Marshal(e)
	require.NoError(t, err)
	// toarray encoding: [1, 5]
	require.Equal(t, []byte{0x82, 0x01, 0x05}, b)

	o := SignedOrigin(3)
	b, err = Cbor.Marshal(o)
	require.NoError(t, err)
	var back Origin
	require.NoError(t, Cbor.Unmarshal(b, &back))
	require.Equal(t, o, back)
}
