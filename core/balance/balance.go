// Package balance implements the ledger's fixed-point token amount: an
// unsigned 128-bit integer scaled by 10^18 and serialised as a 16-byte
// big-endian buffer.
package balance

import (
	"errors"
	"fmt"
	"strings"

	"github.com/holiman/uint256"
)

const (
	// Size is the serialised width in bytes.
	Size = 16
	// Decimals is the number of fractional digits.
	Decimals = 18
	// BasisPoints is the denominator of Percent.
	BasisPoints = 10_000
)

var (
	ErrInvalidBuffer = errors.New("balance: invalid buffer")
	ErrInvalidAmount = errors.New("balance: invalid amount")

	maxValue = new(uint256.Int).Sub(new(uint256.Int).Lsh(uint256.NewInt(1), 8*Size), uint256.NewInt(1))
	unit     = new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(Decimals))
)

// Balance is an immutable amount. The zero value is a zero balance.
type Balance struct {
	v uint256.Int
}

// Zero is the empty balance.
var Zero Balance

// Max is the largest representable balance.
func Max() Balance {
	var b Balance
	b.v.Set(maxValue)
	return b
}

// FromUnits returns whole * 10^18.
func FromUnits(whole uint64) Balance {
	var b Balance
	b.v.Mul(uint256.NewInt(whole), unit)
	return b
}

// FromBase returns an amount expressed in base units (10^-18 of a token).
func FromBase(base uint64) Balance {
	var b Balance
	b.v.SetUint64(base)
	return b
}

// FromBuffer decodes a 16-byte big-endian buffer.
func FromBuffer(buf []byte) (Balance, error) {
	if !IsValid(buf) {
		return Zero, fmt.Errorf("%w: want %d bytes, got %d", ErrInvalidBuffer, Size, len(buf))
	}
	var b Balance
	b.v.SetBytes(buf)
	return b, nil
}

// IsValid reports whether buf is a well-formed serialised balance. Any 16-byte
// buffer is in range by construction.
func IsValid(buf []byte) bool {
	return len(buf) == Size
}

// Bytes serialises b as 16 big-endian bytes.
func (b Balance) Bytes() []byte {
	full := b.v.Bytes32()
	out := make([]byte, Size)
	copy(out, full[32-Size:])
	return out
}

// Add returns a+b, or ok=false when the sum exceeds the 128-bit range.
func Add(a, b Balance) (Balance, bool) {
	var sum Balance
	if _, overflow := sum.v.AddOverflow(&a.v, &b.v); overflow || sum.v.Gt(maxValue) {
		return Zero, false
	}
	return sum, true
}

// Sub returns a-b, or ok=false when a < b.
func Sub(a, b Balance) (Balance, bool) {
	if a.v.Lt(&b.v) {
		return Zero, false
	}
	var diff Balance
	diff.v.Sub(&a.v, &b.v)
	return diff, true
}

// Percent returns floor(b * bps / 10000).
func (b Balance) Percent(bps uint32) Balance {
	var out Balance
	out.v.Mul(&b.v, uint256.NewInt(uint64(bps)))
	out.v.Div(&out.v, uint256.NewInt(BasisPoints))
	return out
}

func (b Balance) Cmp(other Balance) int {
	return b.v.Cmp(&other.v)
}

func (b Balance) Equal(other Balance) bool {
	return b.v.Eq(&other.v)
}

func (b Balance) IsZero() bool {
	return b.v.IsZero()
}

// String renders b in decimal token notation without trailing zeros.
func (b Balance) String() string {
	var whole, frac uint256.Int
	whole.DivMod(&b.v, unit, &frac)
	if frac.IsZero() {
		return whole.Dec()
	}
	digits := fmt.Sprintf("%0*d", Decimals, frac.Uint64())
	return whole.Dec() + "." + strings.TrimRight(digits, "0")
}

// Parse reads decimal token notation such as "12" or "0.03".
func Parse(value string) (Balance, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return Zero, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}
	wholePart, fracPart, hasFrac := strings.Cut(trimmed, ".")
	if wholePart == "" || (hasFrac && fracPart == "") {
		return Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, value)
	}
	if len(fracPart) > Decimals {
		return Zero, fmt.Errorf("%w: more than %d decimals", ErrInvalidAmount, Decimals)
	}
	if !digitsOnly(wholePart) || !digitsOnly(fracPart) {
		return Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, value)
	}

	var whole uint256.Int
	if err := whole.SetFromDecimal(wholePart); err != nil {
		return Zero, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	var b Balance
	if _, overflow := b.v.MulOverflow(&whole, unit); overflow {
		return Zero, fmt.Errorf("%w: out of range", ErrInvalidAmount)
	}
	if fracPart != "" {
		var frac uint256.Int
		padded := fracPart + strings.Repeat("0", Decimals-len(fracPart))
		if err := frac.SetFromDecimal(padded); err != nil {
			return Zero, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
		}
		if _, overflow := b.v.AddOverflow(&b.v, &frac); overflow {
			return Zero, fmt.Errorf("%w: out of range", ErrInvalidAmount)
		}
	}
	if b.v.Gt(maxValue) {
		return Zero, fmt.Errorf("%w: out of range", ErrInvalidAmount)
	}
	return b, nil
}

// MustParse is Parse for constants and tests.
func MustParse(value string) Balance {
	b, err := Parse(value)
	if err != nil {
		panic(err)
	}
	return b
}

func digitsOnly(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
