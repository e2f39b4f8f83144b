package fixedpoint

import (
	"errors"
	"math/big"
)

// Decimals is the internal precision carried by every Value.
const Decimals = 27

var (
	errNilValue      = errors.New("fixedpoint: nil input value")
	errNegativeValue = errors.New("fixedpoint: negative value has no unsigned representation")
	errDivideByZero  = errors.New("fixedpoint: division by zero")
)

var (
	scale = mustBigInt("1000000000000000000000000000") // 1e27
	ten   = big.NewInt(10)
)

func mustBigInt(value string) *big.Int {
	v, ok := new(big.Int).SetString(value, 10)
	if !ok {
		panic("invalid big integer constant")
	}
	return v
}

// Value is a signed base-10 fixed-point number carried at 27 decimals of
// precision. Operations never mutate their receivers; every result is a fresh
// Value. Division rounds toward negative infinity so repeated rescaling can
// never overstate a balance or understate a requirement.
type Value struct {
	v *big.Int
}

// Zero returns the additive identity.
func Zero() Value {
	return Value{v: big.NewInt(0)}
}

// One returns 1.0 at internal precision.
func One() Value {
	return Value{v: new(big.Int).Set(scale)}
}

// New wraps a raw integer already scaled by 1e27. A nil input is treated as
// zero.
func New(raw *big.Int) Value {
	if raw == nil {
		return Zero()
	}
	return Value{v: new(big.Int).Set(raw)}
}

// FromInt converts a plain integer quantity to a Value.
func FromInt(i int64) Value {
	return Value{v: new(big.Int).Mul(big.NewInt(i), scale)}
}

// FromScaled converts an unsigned external amount carried at the given number
// of decimals into a Value. It fails on nil or negative input because the
// external representation is unsigned.
func FromScaled(u *big.Int, decimals uint8) (Value, error) {
	if u == nil {
		return Value{}, errNilValue
	}
	if u.Sign() < 0 {
		return Value{}, errNegativeValue
	}
	v := new(big.Int).Set(u)
	if decimals <= Decimals {
		exp := new(big.Int).Exp(ten, big.NewInt(int64(Decimals-decimals)), nil)
		v.Mul(v, exp)
		return Value{v: v}, nil
	}
	exp := new(big.Int).Exp(ten, big.NewInt(int64(decimals-Decimals)), nil)
	return Value{v: floorDiv(v, exp)}, nil
}

// ToScaled converts the Value back to an unsigned external amount at the given
// number of decimals. It fails on negative values. roundUp selects the
// rounding direction of the final rescale: requirements are rounded up so they
// are never understated, balances are rounded down so they are never
// overstated.
func (a Value) ToScaled(decimals uint8, roundUp bool) (*big.Int, error) {
	av := a.raw()
	if av.Sign() < 0 {
		return nil, errNegativeValue
	}
	if decimals >= Decimals {
		exp := new(big.Int).Exp(ten, big.NewInt(int64(decimals-Decimals)), nil)
		return new(big.Int).Mul(av, exp), nil
	}
	exp := new(big.Int).Exp(ten, big.NewInt(int64(Decimals-decimals)), nil)
	if roundUp {
		return ceilDiv(av, exp), nil
	}
	return floorDiv(av, exp), nil
}

// Raw returns a copy of the underlying 1e27-scaled integer.
func (a Value) Raw() *big.Int {
	return new(big.Int).Set(a.raw())
}

func (a Value) raw() *big.Int {
	if a.v == nil {
		return big.NewInt(0)
	}
	return a.v
}

// Add returns a+b.
func (a Value) Add(b Value) Value {
	return Value{v: new(big.Int).Add(a.raw(), b.raw())}
}

// Sub returns a-b.
func (a Value) Sub(b Value) Value {
	return Value{v: new(big.Int).Sub(a.raw(), b.raw())}
}

// Mul returns a*b computed at double precision and rescaled back down,
// rounding toward negative infinity.
func (a Value) Mul(b Value) Value {
	product := new(big.Int).Mul(a.raw(), b.raw())
	return Value{v: floorDiv(product, scale)}
}

// Div returns a/b with the numerator rescaled up before dividing so precision
// is preserved, rounding toward negative infinity. It fails when b is zero.
func (a Value) Div(b Value) (Value, error) {
	bv := b.raw()
	if bv.Sign() == 0 {
		return Value{}, errDivideByZero
	}
	numerator := new(big.Int).Mul(a.raw(), scale)
	return Value{v: floorDiv(numerator, bv)}, nil
}

// Min returns the smaller operand; the first operand wins on equality.
func Min(a, b Value) Value {
	if a.Cmp(b) <= 0 {
		return Value{v: a.Raw()}
	}
	return Value{v: b.Raw()}
}

// Max returns the larger operand; the first operand wins on equality.
func Max(a, b Value) Value {
	if a.Cmp(b) >= 0 {
		return Value{v: a.Raw()}
	}
	return Value{v: b.Raw()}
}

// Cmp returns -1, 0 or +1 depending on whether a is less than, equal to or
// greater than b.
func (a Value) Cmp(b Value) int {
	return a.raw().Cmp(b.raw())
}

// Sign reports the sign of the value: -1, 0 or +1.
func (a Value) Sign() int {
	return a.raw().Sign()
}

// IsZero reports whether the value is exactly zero.
func (a Value) IsZero() bool {
	return a.raw().Sign() == 0
}

// Neg returns -a.
func (a Value) Neg() Value {
	return Value{v: new(big.Int).Neg(a.raw())}
}

// Abs returns the magnitude of a.
func (a Value) Abs() Value {
	return Value{v: new(big.Int).Abs(a.raw())}
}

// Equal reports whether two values are numerically identical.
func (a Value) Equal(b Value) bool {
	return a.Cmp(b) == 0
}

// String renders the value as a decimal string for logs and errors.
func (a Value) String() string {
	av := a.raw()
	sign := ""
	abs := new(big.Int).Abs(av)
	if av.Sign() < 0 {
		sign = "-"
	}
	quo, rem := new(big.Int).QuoRem(abs, scale, new(big.Int))
	if rem.Sign() == 0 {
		return sign + quo.String()
	}
	frac := rem.String()
	for len(frac) < Decimals {
		frac = "0" + frac
	}
	for len(frac) > 1 && frac[len(frac)-1] == '0' {
		frac = frac[:len(frac)-1]
	}
	return sign + quo.String() + "." + frac
}

// floorDiv divides x by y rounding toward negative infinity. big.Int's
// Euclidean division already floors for positive divisors; negative divisors
// are normalised first so the floor direction is kept.
func floorDiv(x, y *big.Int) *big.Int {
	if y.Sign() < 0 {
		return new(big.Int).Div(new(big.Int).Neg(x), new(big.Int).Neg(y))
	}
	return new(big.Int).Div(x, y)
}

// ceilDiv divides x by y rounding toward positive infinity.
func ceilDiv(x, y *big.Int) *big.Int {
	neg := floorDiv(new(big.Int).Neg(x), y)
	return neg.Neg(neg)
}
