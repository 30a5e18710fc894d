package domain

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// Price is an immutable fixed-point value: mantissa * 10^-scale.
// Comparisons and additions stay on int64 arithmetic and only fall back to
// decimal when a rescale would overflow.
type Price struct {
	mantissa int64
	scale    int32
}

const maxPriceScale = 18

var pow10 = func() [maxPriceScale + 1]int64 {
	var p [maxPriceScale + 1]int64
	p[0] = 1
	for i := 1; i <= maxPriceScale; i++ {
		p[i] = p[i-1] * 10
	}
	return p
}()

func NewPrice(mantissa int64, scale int32) Price {
	if scale < 0 {
		if m, ok := rescale(mantissa, -scale); ok {
			return Price{mantissa: m}
		}
		return PriceFromDecimal(decimal.New(mantissa, -scale))
	}
	if scale > maxPriceScale {
		return PriceFromDecimal(decimal.New(mantissa, -scale))
	}
	return Price{mantissa: mantissa, scale: scale}
}

// PriceFromInt returns a whole-number price.
func PriceFromInt(v int64) Price {
	return Price{mantissa: v}
}

// ParsePrice parses a decimal string such as "0.00032" or "64250.5".
func ParsePrice(s string) (Price, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return Price{}, fmt.Errorf("parse price %q: %w", s, err)
	}
	return PriceFromDecimal(d), nil
}

// PriceFromDecimal converts d, dropping trailing fractional digits (half away
// from zero) until the coefficient fits an int64.
func PriceFromDecimal(d decimal.Decimal) Price {
	for {
		exp := d.Exponent()
		if exp > 0 {
			d = d.Round(0)
			continue
		}
		if -exp > maxPriceScale {
			d = d.Round(maxPriceScale)
			continue
		}
		coef := d.Coefficient()
		if coef.IsInt64() {
			return Price{mantissa: coef.Int64(), scale: -exp}
		}
		if exp == 0 {
			if coef.Sign() < 0 {
				return Price{mantissa: math.MinInt64}
			}
			return Price{mantissa: math.MaxInt64}
		}
		d = d.Round(-exp - 1)
	}
}

func (p Price) Mantissa() int64 { return p.mantissa }

func (p Price) Scale() int32 { return p.scale }

func (p Price) IsZero() bool { return p.mantissa == 0 }

func (p Price) Sign() int {
	switch {
	case p.mantissa > 0:
		return 1
	case p.mantissa < 0:
		return -1
	}
	return 0
}

func (p Price) Decimal() decimal.Decimal {
	return decimal.New(p.mantissa, -p.scale)
}

func (p Price) String() string {
	return p.Decimal().String()
}

// Cmp returns -1, 0 or 1.
func (p Price) Cmp(o Price) int {
	a, b, ok := align(p, o)
	if !ok {
		return p.Decimal().Cmp(o.Decimal())
	}
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func (p Price) Equal(o Price) bool { return p.Cmp(o) == 0 }

func (p Price) LessThan(o Price) bool { return p.Cmp(o) < 0 }

func (p Price) LessOrEqual(o Price) bool { return p.Cmp(o) <= 0 }

func (p Price) GreaterThan(o Price) bool { return p.Cmp(o) > 0 }

func (p Price) GreaterOrEqual(o Price) bool { return p.Cmp(o) >= 0 }

func (p Price) Add(o Price) Price {
	a, b, ok := align(p, o)
	if ok {
		sum := a + b
		if (sum > a) == (b > 0) {
			return Price{mantissa: sum, scale: max(p.scale, o.scale)}
		}
	}
	return PriceFromDecimal(p.Decimal().Add(o.Decimal()))
}

func (p Price) Sub(o Price) Price {
	return p.Add(Price{mantissa: -o.mantissa, scale: o.scale})
}

// Max returns the greater of p and o.
func (p Price) Max(o Price) Price {
	if p.Cmp(o) >= 0 {
		return p
	}
	return o
}

func align(p, o Price) (int64, int64, bool) {
	switch {
	case p.scale == o.scale:
		return p.mantissa, o.mantissa, true
	case p.scale < o.scale:
		a, ok := rescale(p.mantissa, o.scale-p.scale)
		return a, o.mantissa, ok
	default:
		b, ok := rescale(o.mantissa, p.scale-o.scale)
		return p.mantissa, b, ok
	}
}

func rescale(m int64, by int32) (int64, bool) {
	if by > maxPriceScale {
		return 0, m == 0
	}
	f := pow10[by]
	r := m * f
	if m != 0 && r/f != m {
		return 0, false
	}
	return r, true
}
