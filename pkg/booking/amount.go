package booking

import (
	"fmt"
	"math/big"
	"strings"
)

// TokenDecimals is the fixed decimal exponent of the settlement token.
const TokenDecimals = 18

var tokenUnit = new(big.Int).Exp(big.NewInt(10), big.NewInt(TokenDecimals), nil)

// TokenAmount is a non-negative quantity of the settlement token in its
// smallest denomination. The zero value is zero.
type TokenAmount struct {
	value *big.Int
}

// NewTokenAmount validates a smallest-unit integer.
func NewTokenAmount(raw *big.Int) (TokenAmount, error) {
	if raw == nil {
		return TokenAmount{}, nil
	}
	if raw.Sign() < 0 {
		return TokenAmount{}, fmt.Errorf("%w: must not be negative", ErrInvalidAmount)
	}
	return TokenAmount{value: new(big.Int).Set(raw)}, nil
}

// ParseTokenAmount converts a display-denomination decimal string such as
// "0.05" into smallest units. Conversion is exact; more than TokenDecimals
// fractional digits is an error rather than a rounding.
func ParseTokenAmount(raw string) (TokenAmount, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return TokenAmount{}, fmt.Errorf("%w: empty value", ErrInvalidPrice)
	}
	integerPart, fractionPart, hasFraction := strings.Cut(trimmed, ".")
	if integerPart == "" || !allDigits(integerPart) {
		return TokenAmount{}, fmt.Errorf("%w: %q is not a decimal number", ErrInvalidPrice, raw)
	}
	if hasFraction && (fractionPart == "" || !allDigits(fractionPart)) {
		return TokenAmount{}, fmt.Errorf("%w: %q is not a decimal number", ErrInvalidPrice, raw)
	}
	if len(fractionPart) > TokenDecimals {
		return TokenAmount{}, fmt.Errorf("%w: %q has more than %d fractional digits", ErrInvalidPrice, raw, TokenDecimals)
	}
	digits := integerPart + fractionPart + strings.Repeat("0", TokenDecimals-len(fractionPart))
	value, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return TokenAmount{}, fmt.Errorf("%w: %q is not a decimal number", ErrInvalidPrice, raw)
	}
	return TokenAmount{value: value}, nil
}

// MustParseTokenAmount is ParseTokenAmount for constants; it panics on error.
func MustParseTokenAmount(raw string) TokenAmount {
	amount, err := ParseTokenAmount(raw)
	if err != nil {
		panic(err)
	}
	return amount
}

// BigInt returns a copy of the smallest-unit value.
func (amount TokenAmount) BigInt() *big.Int {
	if amount.value == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(amount.value)
}

// IsZero reports whether the amount is zero.
func (amount TokenAmount) IsZero() bool {
	return amount.value == nil || amount.value.Sign() == 0
}

// Cmp compares two amounts like big.Int.Cmp.
func (amount TokenAmount) Cmp(other TokenAmount) int {
	return amount.BigInt().Cmp(other.BigInt())
}

// Covers reports whether amount is at least required.
func (amount TokenAmount) Covers(required TokenAmount) bool {
	return amount.Cmp(required) >= 0
}

// String returns the smallest-unit value in base 10.
func (amount TokenAmount) String() string {
	return amount.BigInt().String()
}

// Decimal renders the amount in the display denomination with trailing
// fractional zeros removed. It is the inverse of ParseTokenAmount.
func (amount TokenAmount) Decimal() string {
	digits := amount.BigInt().String()
	if len(digits) <= TokenDecimals {
		digits = strings.Repeat("0", TokenDecimals-len(digits)+1) + digits
	}
	integerPart := digits[:len(digits)-TokenDecimals]
	fractionPart := strings.TrimRight(digits[len(digits)-TokenDecimals:], "0")
	if fractionPart == "" {
		return integerPart
	}
	return integerPart + "." + fractionPart
}

// MarshalText encodes the smallest-unit value, keeping JSON exact.
func (amount TokenAmount) MarshalText() ([]byte, error) {
	return []byte(amount.String()), nil
}

// UnmarshalText decodes a smallest-unit base-10 value.
func (amount *TokenAmount) UnmarshalText(text []byte) error {
	value, ok := new(big.Int).SetString(string(text), 10)
	if !ok {
		return fmt.Errorf("%w: %q", ErrInvalidAmount, string(text))
	}
	parsed, err := NewTokenAmount(value)
	if err != nil {
		return err
	}
	*amount = parsed
	return nil
}

func allDigits(value string) bool {
	for _, character := range value {
		if character < '0' || character > '9' {
			return false
		}
	}
	return true
}
