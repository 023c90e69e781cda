// Package safemath provides overflow-checked unsigned 64-bit arithmetic.
package safemath

import (
	"errors"
	"math/bits"
)

// MaxBps is the basis-point denominator.
const MaxBps = 10_000

var (
	ErrOverflow     = errors.New("safemath: overflow")
	ErrUnderflow    = errors.New("safemath: underflow")
	ErrDivideByZero = errors.New("safemath: divide by zero")
)

func Add(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, ErrOverflow
	}
	return sum, nil
}

func Sub(a, b uint64) (uint64, error) {
	diff, borrow := bits.Sub64(a, b, 0)
	if borrow != 0 {
		return 0, ErrUnderflow
	}
	return diff, nil
}

func Mul(a, b uint64) (uint64, error) {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		return 0, ErrOverflow
	}
	return lo, nil
}

func Div(a, b uint64) (uint64, error) {
	if b == 0 {
		return 0, ErrDivideByZero
	}
	return a / b, nil
}

// MulDivBps returns floor(amount * bps / 10000). The intermediate product must
// fit in 64 bits.
func MulDivBps(amount uint64, bps uint16) (uint64, error) {
	product, err := Mul(amount, uint64(bps))
	if err != nil {
		return 0, err
	}
	return Div(product, MaxBps)
}

// Sum adds all values, failing on the first overflow.
func Sum(values ...uint64) (uint64, error) {
	var total uint64
	for _, v := range values {
		var err error
		total, err = Add(total, v)
		if err != nil {
			return 0, err
		}
	}
	return total, nil
}
