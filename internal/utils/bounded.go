package utils

import (
	sdkmath "cosmossdk.io/math"
)

// Bounded is a non-negative quantity. Every constructor and operation saturates at zero,
// and a nil sdkmath.Int is read as zero, so capacity math never goes negative or panics.
type Bounded struct {
	v sdkmath.Int
}

// NewBounded clamps x into the non-negative range.
func NewBounded(x sdkmath.Int) Bounded {
	if x.IsNil() || x.IsNegative() {
		return Bounded{v: sdkmath.ZeroInt()}
	}
	return Bounded{v: x}
}

// ZeroBounded returns the zero quantity.
func ZeroBounded() Bounded {
	return Bounded{v: sdkmath.ZeroInt()}
}

// Int returns the underlying value, never nil.
func (b Bounded) Int() sdkmath.Int {
	if b.v.IsNil() {
		return sdkmath.ZeroInt()
	}
	return b.v
}

func (b Bounded) IsZero() bool { return b.Int().IsZero() }

func (b Bounded) IsPositive() bool { return b.Int().IsPositive() }

// Min returns the smallest of b and others.
func (b Bounded) Min(others ...Bounded) Bounded {
	out := b.Int()
	for _, o := range others {
		out = sdkmath.MinInt(out, o.Int())
	}
	return Bounded{v: out}
}

func (b Bounded) Add(o Bounded) Bounded {
	return Bounded{v: b.Int().Add(o.Int())}
}

// SatSub returns max(0, b - o).
func (b Bounded) SatSub(o Bounded) Bounded {
	return NewBounded(b.Int().Sub(o.Int()))
}

func (b Bounded) GT(o Bounded) bool { return b.Int().GT(o.Int()) }

func (b Bounded) Equal(o Bounded) bool { return b.Int().Equal(o.Int()) }

func (b Bounded) String() string { return b.Int().String() }
