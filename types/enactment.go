package types

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	EnactAt    EnactmentKind = 0
	EnactAfter EnactmentKind = 1
)

type (
	EnactmentKind uint8

	// Enactment is the requested moment of enactment: either an absolute
	// block ("at") or a delay counted from the approval block ("after").
	Enactment struct {
		_     struct{} `cbor:",toarray"`
		Kind  EnactmentKind
		Block uint64
	}
)

func At(block BlockNumber) Enactment {
	return Enactment{Kind: EnactAt, Block: uint64(block)}
}

func After(delay uint64) Enactment {
	return Enactment{Kind: EnactAfter, Block: delay}
}

func (e Enactment) IsValid() error {
	switch e.Kind {
	case EnactAt, EnactAfter:
		return nil
	default:
		return fmt.Errorf("unknown enactment kind %d", e.Kind)
	}
}

/*
Resolve converts the enactment moment into an absolute block given the
approval block "now". The result is never earlier than now + minPeriod.
*/
func (e Enactment) Resolve(now BlockNumber, minPeriod uint64) BlockNumber {
	earliest := now.Add(minPeriod)
	switch e.Kind {
	case EnactAfter:
		return now.Add(max(e.Block, minPeriod))
	default:
		return max(BlockNumber(e.Block), earliest)
	}
}

func (e Enactment) String() string {
	if e.Kind == EnactAfter {
		return fmt.Sprintf("after:%d", e.Block)
	}
	return fmt.Sprintf("at:%d", e.Block)
}

// ParseEnactment parses "at:<block>" or "after:<blocks>".
func ParseEnactment(s string) (Enactment, error) {
	kind, value, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return Enactment{}, fmt.Errorf("invalid enactment %q, expected at:<block> or after:<blocks>", s)
	}
	n, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return Enactment{}, fmt.Errorf("invalid enactment %q: %w", s, err)
	}
	switch strings.ToLower(kind) {
	case "at":
		return At(BlockNumber(n)), nil
	case "after":
		return After(n), nil
	default:
		return Enactment{}, fmt.Errorf("invalid enactment kind %q", kind)
	}
}

func (e Enactment) MarshalText() ([]byte, error) {
	return []byte(e.String()), nil
}

func (e *Enactment) UnmarshalText(b []byte) error {
	v, err := ParseEnactment(string(b))
	if err != nil {
		return err
	}
	*e = v
	return nil
}
