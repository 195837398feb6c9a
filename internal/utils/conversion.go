/*
This file contains common utility functions for converting between float
amounts and fixed-precision decimals, used wherever money leaves the
metric layer and becomes an order size.
*/

package utils

import (
	"errors"
	"fmt"
	"math"

	sdkmath "cosmossdk.io/math"
)

// Error definitions for zero-tolerance error handling
var (
	ErrAmountNegative   = errors.New("amount is negative")
	ErrNotFinite        = errors.New("value is not finite")
	ErrConversionFailed = errors.New("conversion failed")
)

// Float64ToDec converts a float64 amount to a fixed-precision decimal.
// String conversion avoids binary floating point artifacts ending up in
// order sizes.
func Float64ToDec(amount float64) (sdkmath.LegacyDec, error) {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return sdkmath.LegacyZeroDec(), fmt.Errorf("%w: amount is %f", ErrNotFinite, amount)
	}
	if amount < 0 {
		return sdkmath.LegacyZeroDec(), ErrAmountNegative
	}
	dec, err := sdkmath.LegacyNewDecFromStr(fmt.Sprintf("%.8f", amount))
	if err != nil {
		return sdkmath.LegacyZeroDec(), fmt.Errorf("%w: %w", ErrConversionFailed, err)
	}
	return dec, nil
}

// DecToFloat64 converts a fixed-precision decimal back to float64 with
// finiteness checks.
func DecToFloat64(d sdkmath.LegacyDec) (float64, error) {
	f, err := d.Float64()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrConversionFailed, err)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: result is %f", ErrNotFinite, f)
	}
	return f, nil
}
