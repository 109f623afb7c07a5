package safemath

import (
	"errors"

	"github.com/holiman/uint256"
)

var (
	ErrOverflow       = errors.New("safemath: overflow")
	ErrUnderflow      = errors.New("safemath: underflow")
	ErrDivisionByZero = errors.New("safemath: division by zero")
)

// BasisPoints is the denominator used for all rate arithmetic; 10 000 bps = 100%.
const BasisPoints = 10_000

// Add returns a+b or ErrOverflow when the sum does not fit in 64 bits.
func Add(a, b uint64) (uint64, error) {
	sum := a + b
	if sum < a {
		return 0, ErrOverflow
	}
	return sum, nil
}

// Sub returns a-b or ErrUnderflow when b exceeds a.
func Sub(a, b uint64) (uint64, error) {
	if a < b {
		return 0, ErrUnderflow
	}
	return a - b, nil
}

// MulDiv computes floor(a*b/c). The product is widened through a 256-bit
// intermediate so the multiplication cannot overflow before the division
// truncates. The call fails with ErrOverflow when the quotient itself does not
// fit in 64 bits and with ErrDivisionByZero when c is zero.
func MulDiv(a, b, c uint64) (uint64, error) {
	if c == 0 {
		return 0, ErrDivisionByZero
	}
	product := new(uint256.Int).Mul(uint256.NewInt(a), uint256.NewInt(b))
	quotient := product.Div(product, uint256.NewInt(c))
	if !quotient.IsUint64() {
		return 0, ErrOverflow
	}
	return quotient.Uint64(), nil
}

// Percentage applies a basis-point rate to the amount.
func Percentage(amount, rateBps uint64) (uint64, error) {
	return MulDiv(amount, rateBps, BasisPoints)
}

// Pow10 returns 10^exp or ErrOverflow when the power exceeds 64 bits.
func Pow10(exp uint8) (uint64, error) {
	if exp > 19 {
		return 0, ErrOverflow
	}
	result := uint64(1)
	for i := uint8(0); i < exp; i++ {
		result *= 10
	}
	return result, nil
}
