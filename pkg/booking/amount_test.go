package booking

import (
	"errors"
	"math/big"
	"testing"
)

func TestParseTokenAmountRoundTrip(test *testing.T) {
	test.Parallel()
	prices := []string{
		"0",
		"1",
		"0.05",
		"12.5",
		"0.000000000000000001",
		"123456789.123456789123456789",
		"99999999999999999999999.999999999999999999",
	}
	for _, price := range prices {
		amount, err := ParseTokenAmount(price)
		if err != nil {
			test.Fatalf("parse %q: %v", price, err)
		}
		if rendered := amount.Decimal(); rendered != price {
			test.Fatalf("round trip of %q produced %q", price, rendered)
		}
	}
}

func TestParseTokenAmountScalesToSmallestUnit(test *testing.T) {
	test.Parallel()
	amount := mustAmount(test, "0.05")
	expected := new(big.Int).Mul(big.NewInt(5), new(big.Int).Exp(big.NewInt(10), big.NewInt(16), nil))
	if amount.BigInt().Cmp(expected) != 0 {
		test.Fatalf("expected %s, got %s", expected, amount)
	}
	if mustAmount(test, "0.1").Cmp(mustAmount(test, "0.10")) != 0 {
		test.Fatalf("expected trailing zeros to be insignificant")
	}
}

func TestParseTokenAmountRejectsMalformedInput(test *testing.T) {
	test.Parallel()
	for _, raw := range []string{"", " ", "-1", "1.", ".5", "1.2.3", "abc", "1e18", "0.1234567890123456789", "+1"} {
		if _, err := ParseTokenAmount(raw); !errors.Is(err, ErrInvalidPrice) {
			test.Fatalf("expected ErrInvalidPrice for %q, got %v", raw, err)
		}
	}
}

func TestTokenAmountCovers(test *testing.T) {
	test.Parallel()
	var zero TokenAmount
	if !zero.IsZero() || zero.Covers(mustAmount(test, "0.01")) {
		test.Fatalf("zero value must be zero and cover nothing positive")
	}
	if !mustAmount(test, "1").Covers(mustAmount(test, "1")) {
		test.Fatalf("equal amounts must cover")
	}
}

func TestTokenAmountTextEncoding(test *testing.T) {
	test.Parallel()
	amount := mustAmount(test, "2.5")
	text, err := amount.MarshalText()
	if err != nil {
		test.Fatalf("marshal: %v", err)
	}
	var decoded TokenAmount
	if err := decoded.UnmarshalText(text); err != nil {
		test.Fatalf("unmarshal: %v", err)
	}
	if decoded.Cmp(amount) != 0 {
		test.Fatalf("expected %s, got %s", amount, decoded)
	}
	if err := decoded.UnmarshalText([]byte("-5")); !errors.Is(err, ErrInvalidAmount) {
		test.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}
