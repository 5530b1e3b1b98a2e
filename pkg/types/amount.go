package types

import (
	"fmt"
	"math/big"
	"strings"

	bridgeerrors "phorus/pkg/errors"
)

// ToBaseUnits converts a human decimal amount into the token's smallest unit.
// Fractional digits beyond the token's precision are rejected.
func ToBaseUnits(amount string, decimals int) (*big.Int, error) {
	amount = strings.TrimSpace(amount)
	if amount == "" {
		return nil, fmt.Errorf("empty amount: %w", bridgeerrors.ErrInvalidInput)
	}
	if decimals < 0 {
		return nil, fmt.Errorf("invalid decimals %d: %w", decimals, bridgeerrors.ErrInvalidInput)
	}

	whole, frac, _ := strings.Cut(amount, ".")
	if whole == "" {
		whole = "0"
	}
	if len(frac) > decimals {
		trimmed := strings.TrimRight(frac, "0")
		if len(trimmed) > decimals {
			return nil, fmt.Errorf("amount %s has more than %d decimals: %w", amount, decimals, bridgeerrors.ErrInvalidInput)
		}
		frac = trimmed
	}
	frac += strings.Repeat("0", decimals-len(frac))

	value, ok := new(big.Int).SetString(whole+frac, 10)
	if !ok || value.Sign() < 0 {
		return nil, fmt.Errorf("invalid amount %q: %w", amount, bridgeerrors.ErrInvalidInput)
	}
	return value, nil
}

// FormatBaseUnits renders a base-unit amount as a decimal string without trailing zeros.
func FormatBaseUnits(base string, decimals int) string {
	value, ok := new(big.Int).SetString(strings.TrimSpace(base), 10)
	if !ok {
		return base
	}
	if decimals <= 0 {
		return value.String()
	}

	neg := value.Sign() < 0
	digits := new(big.Int).Abs(value).String()
	if len(digits) <= decimals {
		digits = strings.Repeat("0", decimals-len(digits)+1) + digits
	}
	whole := digits[:len(digits)-decimals]
	frac := strings.TrimRight(digits[len(digits)-decimals:], "0")

	out := whole
	if frac != "" {
		out += "." + frac
	}
	if neg {
		out = "-" + out
	}
	return out
}

// SameAmount compares two base-unit amounts numerically.
func SameAmount(a, b string) bool {
	x, okX := new(big.Int).SetString(strings.TrimSpace(a), 10)
	y, okY := new(big.Int).SetString(strings.TrimSpace(b), 10)
	if !okX || !okY {
		return strings.TrimSpace(a) == strings.TrimSpace(b)
	}
	return x.Cmp(y) == 0
}

// SameAddress compares two addresses ignoring checksum casing.
func SameAddress(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
