/*
This file contains common utility functions for converting between the integer
representations used by the chain, the indexing API and the planner.
*/

package utils

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	sdkmath "cosmossdk.io/math"
)

// Error definitions for zero-tolerance error handling
var (
	ErrAmountNil        = errors.New("amount is nil")
	ErrAmountNegative   = errors.New("amount is negative")
	ErrConversionFailed = errors.New("conversion failed")
)

// BigToInt converts a chain value to an SDK Int, treating nil as zero.
func BigToInt(v *big.Int) sdkmath.Int {
	if v == nil {
		return sdkmath.ZeroInt()
	}
	return sdkmath.NewIntFromBigInt(v)
}

// ParseAmount parses a base-10 integer amount in the smallest asset unit.
func ParseAmount(s string) (sdkmath.Int, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return sdkmath.Int{}, ErrAmountNil
	}
	amount, ok := sdkmath.NewIntFromString(trimmed)
	if !ok {
		return sdkmath.Int{}, fmt.Errorf("%w: %q is not an integer", ErrConversionFailed, s)
	}
	if amount.IsNegative() {
		return sdkmath.Int{}, fmt.Errorf("%w: %s", ErrAmountNegative, trimmed)
	}
	return amount, nil
}
