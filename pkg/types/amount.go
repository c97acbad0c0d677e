package types

import (
	"encoding/json"
	"fmt"
	"math/big"
)

// AmountByteSize is the fixed-width encoding size for an Amount (256 bits).
const AmountByteSize = 32

// Amount is a 256-bit unsigned integer denominated in base units. Monetary
// values, voting power, and cumulative chain work all use Amount rather than
// a machine word so that supply, work, and power sums cannot silently wrap.
//
// The zero value is a valid zero amount.
type Amount struct {
	v big.Int
}

// NewAmount constructs an Amount from a uint64 base-unit value.
func NewAmount(v uint64) Amount {
	var a Amount
	a.v.SetUint64(v)
	return a
}

// AmountFromBig constructs an Amount from a big.Int, rejecting negative
// values and values that overflow 256 bits.
func AmountFromBig(v *big.Int) (Amount, error) {
	if v.Sign() < 0 {
		return Amount{}, fmt.Errorf("amount must be non-negative")
	}
	if v.BitLen() > 256 {
		return Amount{}, fmt.Errorf("amount overflows 256 bits")
	}
	var a Amount
	a.v.Set(v)
	return a, nil
}

// AmountFromBytes decodes a big-endian 32-byte encoding into an Amount.
func AmountFromBytes(b []byte) (Amount, error) {
	if len(b) != AmountByteSize {
		return Amount{}, fmt.Errorf("amount must be %d bytes, got %d", AmountByteSize, len(b))
	}
	var a Amount
	a.v.SetBytes(b)
	return a, nil
}

// Bytes returns the big-endian 32-byte encoding of the amount.
func (a Amount) Bytes() []byte {
	out := make([]byte, AmountByteSize)
	raw := a.v.Bytes()
	copy(out[AmountByteSize-len(raw):], raw)
	return out
}

// Big returns a copy of the amount as a big.Int. Mutating the result does
// not affect the Amount.
func (a Amount) Big() *big.Int {
	return new(big.Int).Set(&a.v)
}

// Uint64 returns the amount as a uint64. Callers must ensure the value fits;
// use IsUint64 to check first.
func (a Amount) Uint64() uint64 {
	return a.v.Uint64()
}

// IsUint64 reports whether the amount fits in a uint64.
func (a Amount) IsUint64() bool {
	return a.v.IsUint64()
}

// Add returns a + b. Panics if the result would overflow 256 bits; callers
// validating untrusted sums should check against MaxSupply first.
func (a Amount) Add(b Amount) Amount {
	var out Amount
	out.v.Add(&a.v, &b.v)
	if out.v.BitLen() > 256 {
		panic("amount addition overflows 256 bits")
	}
	return out
}

// Sub returns a - b. Panics on underflow; callers must check Cmp first when
// the inputs are untrusted (e.g. fee = inputs - outputs).
func (a Amount) Sub(b Amount) Amount {
	if a.v.Cmp(&b.v) < 0 {
		panic("amount subtraction underflows")
	}
	var out Amount
	out.v.Sub(&a.v, &b.v)
	return out
}

// Cmp compares a and b: -1 if a<b, 0 if equal, 1 if a>b.
func (a Amount) Cmp(b Amount) int {
	return a.v.Cmp(&b.v)
}

// IsZero reports whether the amount is zero.
func (a Amount) IsZero() bool {
	return a.v.Sign() == 0
}

// Sqrt returns floor(sqrt(a)), used for quadratic voting power.
func (a Amount) Sqrt() Amount {
	var out Amount
	out.v.Sqrt(&a.v)
	return out
}

// Lsh returns a << n, used for the halving-based block reward schedule.
func (a Amount) Lsh(n uint) Amount {
	var out Amount
	out.v.Lsh(&a.v, n)
	return out
}

// Rsh returns a >> n.
func (a Amount) Rsh(n uint) Amount {
	var out Amount
	out.v.Rsh(&a.v, n)
	return out
}

// String renders the amount in base units, e.g. "50000000000000".
func (a Amount) String() string {
	return a.v.String()
}

// MarshalJSON encodes the amount as a decimal string so it survives
// JSON's float64-based number handling untouched.
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.v.String())
}

// UnmarshalJSON decodes a decimal string into the amount.
func (a *Amount) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return fmt.Errorf("invalid amount %q", s)
	}
	if v.Sign() < 0 || v.BitLen() > 256 {
		return fmt.Errorf("amount %q out of range", s)
	}
	a.v.Set(v)
	return nil
}
