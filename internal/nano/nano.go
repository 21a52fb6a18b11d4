// Package nano provides shared TON amount parsing and formatting utilities.
//
// TON uses 9 decimal places. All amounts are stored as int64 nanoton in
// the smallest unit (1 TON = 1,000,000,000 nanoton). No floating point
// touches an amount anywhere in the system.
package nano

import (
	"math/big"
	"strings"
)

const Decimals = 9

// PerTON is the number of nanoton in one TON.
const PerTON = int64(1_000_000_000)

// Parse converts a decimal TON string (e.g. "1.5") to its nanoton
// representation (1500000000). Returns (0, false) on invalid input.
//
// Rules:
//   - Empty string returns (0, true)
//   - Negative amounts are rejected
//   - Multiple decimal points are rejected
//   - Fractional parts are padded/truncated to 9 decimal places
func Parse(s string) (int64, bool) {
	if s == "" {
		return 0, true
	}

	if strings.HasPrefix(s, "-") {
		return 0, false
	}

	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return 0, false
	}
	whole := parts[0]
	frac := ""
	if len(parts) > 1 {
		frac = parts[1]
	}

	// Pad or trim to 9 decimals
	for len(frac) < Decimals {
		frac += "0"
	}
	frac = frac[:Decimals]

	combined := whole + frac
	result, ok := new(big.Int).SetString(combined, 10)
	if !ok || !result.IsInt64() {
		return 0, false
	}
	return result.Int64(), true
}

// Format converts nanoton to a human-readable decimal TON string with
// trailing zeros trimmed (e.g. 1500000000 -> "1.5", 2000000000 -> "2").
func Format(amount int64) string {
	neg := amount < 0
	abs := new(big.Int).Abs(big.NewInt(amount))
	s := abs.String()
	for len(s) < Decimals+1 {
		s = "0" + s
	}
	decimal := len(s) - Decimals
	whole, frac := s[:decimal], s[decimal:]
	frac = strings.TrimRight(frac, "0")
	result := whole
	if frac != "" {
		result = whole + "." + frac
	}
	if neg {
		result = "-" + result
	}
	return result
}

// FromBig converts a chain-side big.Int nanoton value to int64.
// Returns (0, false) if the value does not fit.
func FromBig(v *big.Int) (int64, bool) {
	if v == nil || !v.IsInt64() {
		return 0, false
	}
	return v.Int64(), true
}

// ToBig converts an int64 nanoton amount to the big.Int form used at the
// chain boundary.
func ToBig(amount int64) *big.Int {
	return big.NewInt(amount)
}
