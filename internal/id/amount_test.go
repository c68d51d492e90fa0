package id

import (
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseDecimalInRange(t *testing.T) {
	min := decimal.RequireFromString("0.1")
	max := decimal.RequireFromString("50")

	got, err := ParseDecimalInRange("1.5", min, max)
	if err != nil {
		t.Fatalf("ParseDecimalInRange failed: %v", err)
	}
	if !got.Equal(decimal.RequireFromString("1.5")) {
		t.Fatalf("unexpected value: %s", got)
	}
	for _, bad := range []string{"0.05", "50.01", "abc", ""} {
		if _, err := ParseDecimalInRange(bad, min, max); err == nil {
			t.Fatalf("expected %q to be rejected", bad)
		}
	}
	if _, err := ParseDecimalInRange("50", min, max); err != nil {
		t.Fatalf("upper bound must be inclusive: %v", err)
	}
}

func TestToBaseUnitsTruncates(t *testing.T) {
	got, err := ToBaseUnits(decimal.RequireFromString("0.001"), 18)
	if err != nil {
		t.Fatalf("ToBaseUnits failed: %v", err)
	}
	if got.String() != "1000000000000000" {
		t.Fatalf("unexpected wei: %s", got)
	}
	got, err = ToBaseUnits(decimal.RequireFromString("0.0000000015"), 9)
	if err != nil {
		t.Fatalf("ToBaseUnits failed: %v", err)
	}
	if got.String() != "1" {
		t.Fatalf("expected truncation to 1 lamport, got %s", got)
	}
	if _, err := ToBaseUnits(decimal.NewFromInt(-1), 9); err == nil {
		t.Fatal("expected negative amount error")
	}
}

func TestFromBaseUnits(t *testing.T) {
	got := FromBaseUnits(big.NewInt(1_500_000_000), 9)
	if got.String() != "1.5" {
		t.Fatalf("unexpected decimal: %s", got)
	}
	if !FromBaseUnits(nil, 18).IsZero() {
		t.Fatal("nil base units must be zero")
	}
}

func TestSlippageMath(t *testing.T) {
	bps := SlippageBps(decimal.RequireFromString("1.5"))
	if bps != 150 {
		t.Fatalf("expected 150 bps, got %d", bps)
	}
	minOut := MinAmountOut(big.NewInt(10_000), bps)
	if minOut.Int64() != 9_850 {
		t.Fatalf("unexpected min out: %s", minOut)
	}
	if SlippageBps(decimal.NewFromInt(500)) != 10_000 {
		t.Fatal("expected bps to clamp at 100%")
	}
}
