package types

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/holiman/uint256"
)

// PerbillAccuracy is the number of parts in a whole.
const PerbillAccuracy = 1_000_000_000

const (
	ZeroPerbill Perbill = 0
	OnePerbill  Perbill = PerbillAccuracy
)

/*
Perbill is a fraction in the range [0, 1] stored as parts per billion.

All arithmetic is saturating, no operation panics or wraps: results are
clamped to [0, 1] and division by zero yields zero.
*/
type Perbill uint32

var perbillAccuracy = uint256.NewInt(PerbillAccuracy)

// FromParts creates Perbill from parts per billion, saturating at one.
func FromParts(parts uint64) Perbill {
	if parts >= PerbillAccuracy {
		return OnePerbill
	}
	return Perbill(parts)
}

func FromPercent(percent uint64) Perbill {
	if percent >= 100 {
		return OnePerbill
	}
	return Perbill(percent * (PerbillAccuracy / 100))
}

/*
FromRational returns n/d rounded down. The 0/0 case, and any x/0, is defined
as zero so that a tally without votes never passes a non-zero threshold.
*/
func FromRational(n, d uint64) Perbill {
	if d == 0 {
		return ZeroPerbill
	}
	if n >= d {
		return OnePerbill
	}
	z, overflow := new(uint256.Int).MulDivOverflow(uint256.NewInt(n), perbillAccuracy, uint256.NewInt(d))
	if overflow || !z.IsUint64() {
		return OnePerbill
	}
	return FromParts(z.Uint64())
}

func (p Perbill) Parts() uint64 {
	return uint64(p.clamp())
}

func (p Perbill) IsZero() bool { return p == 0 }

func (p Perbill) clamp() Perbill {
	if p > OnePerbill {
		return OnePerbill
	}
	return p
}

func (p Perbill) Add(q Perbill) Perbill {
	return FromParts(p.Parts() + q.Parts())
}

func (p Perbill) Sub(q Perbill) Perbill {
	if q.Parts() >= p.Parts() {
		return ZeroPerbill
	}
	return Perbill(p.Parts() - q.Parts())
}

// Mul returns p*q rounded down.
func (p Perbill) Mul(q Perbill) Perbill {
	return Perbill(p.Parts() * q.Parts() / PerbillAccuracy)
}

// Div returns p/q, saturating at one; division by zero yields zero.
func (p Perbill) Div(q Perbill) Perbill {
	return FromRational(p.Parts(), q.Parts())
}

// MulFloor returns floor(p * n).
func (p Perbill) MulFloor(n uint64) uint64 {
	z, _ := new(uint256.Int).MulDivOverflow(uint256.NewInt(n), uint256.NewInt(p.Parts()), perbillAccuracy)
	return z.Uint64()
}

// MulCeil returns ceil(p * n).
func (p Perbill) MulCeil(n uint64) uint64 {
	z := new(uint256.Int).Mul(uint256.NewInt(n), uint256.NewInt(p.Parts()))
	q, r := new(uint256.Int), new(uint256.Int)
	q.DivMod(z, perbillAccuracy, r)
	if !r.IsZero() {
		q.AddUint64(q, 1)
	}
	return q.Uint64()
}

func (p Perbill) String() string {
	parts := p.Parts()
	whole, frac := parts/(PerbillAccuracy/100), parts%(PerbillAccuracy/100)
	if frac == 0 {
		return fmt.Sprintf("%d%%", whole)
	}
	return strings.TrimRight(fmt.Sprintf("%d.%07d", whole, frac), "0") + "%"
}

/*
ParsePerbill accepts either a percentage ("55%", "12.5%") or a plain
number of parts per billion ("550000000").
*/
func ParsePerbill(s string) (Perbill, error) {
	s = strings.TrimSpace(s)
	if pct, ok := strings.CutSuffix(s, "%"); ok {
		whole, frac, _ := strings.Cut(pct, ".")
		w, err := strconv.ParseUint(whole, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid percentage %q: %w", s, err)
		}
		if w > 100 {
			return 0, fmt.Errorf("invalid percentage %q: greater than 100%%", s)
		}
		var f uint64
		if frac != "" {
			if len(frac) > 7 {
				return 0, fmt.Errorf("invalid percentage %q: more than 7 decimal places", s)
			}
			if f, err = strconv.ParseUint(frac+strings.Repeat("0", 7-len(frac)), 10, 64); err != nil {
				return 0, fmt.Errorf("invalid percentage %q: %w", s, err)
			}
		}
		parts := w*(PerbillAccuracy/100) + f
		if parts > PerbillAccuracy {
			return 0, fmt.Errorf("invalid percentage %q: greater than 100%%", s)
		}
		return Perbill(parts), nil
	}
	parts, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid perbill %q: %w", s, err)
	}
	if parts > PerbillAccuracy {
		return 0, fmt.Errorf("invalid perbill %q: greater than %d", s, PerbillAccuracy)
	}
	return Perbill(parts), nil
}
