package types

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
)

const HashLength = 32

type (
	// BlockNumber is the only notion of time the engine knows about.
	BlockNumber uint64

	// ReferendumIndex identifies a referendum. Indexes are assigned in
	// submission order and never reused.
	ReferendumIndex uint32

	TrackID uint16

	AccountID uint64

	Balance uint64

	// Hash is the content reference of the proposal to enact. The engine
	// treats it as opaque.
	Hash [HashLength]byte
)

func (n BlockNumber) Add(d uint64) BlockNumber {
	if uint64(n) > ^uint64(0)-d {
		return BlockNumber(^uint64(0))
	}
	return n + BlockNumber(d)
}

// Since returns the number of blocks from "from" to n, zero when from is in
// the future.
func (n BlockNumber) Since(from BlockNumber) uint64 {
	if n < from {
		return 0
	}
	return uint64(n - from)
}

func (idx ReferendumIndex) Bytes() []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, uint32(idx))
	return b
}

func BytesToReferendumIndex(b []byte) (ReferendumIndex, error) {
	if len(b) != 4 {
		return 0, fmt.Errorf("referendum index must be 4 bytes, got %d bytes", len(b))
	}
	return ReferendumIndex(binary.BigEndian.Uint32(b)), nil
}

func (id TrackID) Bytes() []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, uint16(id))
	return b
}

func (h Hash) String() string {
	return "0x" + hex.EncodeToString(h[:])
}

func (h Hash) IsZero() bool {
	return h == Hash{}
}

func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

func (h *Hash) UnmarshalText(src []byte) error {
	res, err := ParseHash(string(src))
	if err == nil {
		*h = res
	}
	return err
}

// ParseHash decodes hex encoded hash, "0x" prefix is optional.
func ParseHash(s string) (Hash, error) {
	var h Hash
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("decoding hash: %w", err)
	}
	if len(b) != HashLength {
		return h, fmt.Errorf("hash must be %d bytes, got %d bytes", HashLength, len(b))
	}
	copy(h[:], b)
	return h, nil
}
