package stopwatch

import "math"

// Arithmetic keeps the receiver's policy and saturates at the int64 bounds
// instead of wrapping around.

// Add returns d+o.
func (d Duration) Add(o Duration) Duration {
	d.nanos = addSat(d.nanos, o.nanos)
	return d
}

// Sub returns d-o.
func (d Duration) Sub(o Duration) Duration {
	d.nanos = subSat(d.nanos, o.nanos)
	return d
}

// Mul returns d scaled by k.
func (d Duration) Mul(k int64) Duration {
	d.nanos = mulSat(d.nanos, k)
	return d
}

// Div returns d divided by k, truncated toward zero. Div panics if k is zero.
func (d Duration) Div(k int64) Duration {
	if k == -1 {
		return d.Neg()
	}
	d.nanos /= k
	return d
}

// Neg returns -d.
func (d Duration) Neg() Duration {
	if d.nanos == math.MinInt64 {
		d.nanos = math.MaxInt64
		return d
	}
	d.nanos = -d.nanos
	return d
}

// Abs returns |d|.
func (d Duration) Abs() Duration {
	if d.nanos < 0 {
		return d.Neg()
	}
	return d
}

func addSat(a, b int64) int64 {
	s := a + b
	if (s > a) != (b > 0) {
		if b > 0 {
			return math.MaxInt64
		}
		return math.MinInt64
	}
	return s
}

func subSat(a, b int64) int64 {
	if b == math.MinInt64 {
		if a >= 0 {
			return math.MaxInt64
		}
		return a - b
	}
	return addSat(a, -b)
}

func mulSat(a, k int64) int64 {
	if a == 0 || k == 0 {
		return 0
	}
	negative := (a < 0) != (k < 0)
	p := a * k
	overflow := p/k != a ||
		(a == -1 && k == math.MinInt64) ||
		(k == -1 && a == math.MinInt64)
	if !overflow {
		return p
	}
	if negative {
		return math.MinInt64
	}
	return math.MaxInt64
}
