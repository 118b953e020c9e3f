package sale

import (
	"math/big"
	"testing"
)

func TestTokensForDeposit(t *testing.T) {
	cases := []struct {
		name     string
		amount   int64
		price    int64
		decimals uint8
		want     int64
	}{
		{name: "whole allocation", amount: 100, price: 1_000, decimals: 2, want: 10},
		{name: "truncates toward zero", amount: 1, price: 3, decimals: 0, want: 0},
		{name: "zero amount", amount: 0, price: 1_000, decimals: 2, want: 0},
		{name: "high precision", amount: 7, price: 3, decimals: 6, want: 2_333_333},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := TokensForDeposit(big.NewInt(tc.amount), big.NewInt(tc.price), tc.decimals)
			if err != nil {
				t.Fatalf("TokensForDeposit: %v", err)
			}
			if got.Cmp(big.NewInt(tc.want)) != 0 {
				t.Fatalf("expected %d, got %s", tc.want, got)
			}
		})
	}
}

func TestTokensForDepositZeroPrice(t *testing.T) {
	if _, err := TokensForDeposit(big.NewInt(100), big.NewInt(0), 2); err != ErrNoSalePrice {
		t.Fatalf("expected ErrNoSalePrice, got %v", err)
	}
	if _, err := TokensForDeposit(big.NewInt(100), nil, 2); err != ErrNoSalePrice {
		t.Fatalf("expected ErrNoSalePrice for nil price, got %v", err)
	}
}

func TestCostOfTokensInverse(t *testing.T) {
	cost, err := CostOfTokens(big.NewInt(10), big.NewInt(1_000), 2)
	if err != nil {
		t.Fatalf("CostOfTokens: %v", err)
	}
	if cost.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("expected cost 100, got %s", cost)
	}
}

func TestScaleProRata(t *testing.T) {
	// 10 * 50 / 20 = 25 exactly.
	got, err := ScaleProRata(big.NewInt(10), big.NewInt(50), big.NewInt(20))
	if err != nil {
		t.Fatalf("ScaleProRata: %v", err)
	}
	if got.Cmp(big.NewInt(25)) != 0 {
		t.Fatalf("expected 25, got %s", got)
	}

	// 10 * 5 / 20 = 2.5 truncates to 2.
	got, err = ScaleProRata(big.NewInt(10), big.NewInt(5), big.NewInt(20))
	if err != nil {
		t.Fatalf("ScaleProRata: %v", err)
	}
	if got.Cmp(big.NewInt(2)) != 0 {
		t.Fatalf("expected truncation to 2, got %s", got)
	}
}

func TestScaleProRataZeroTotal(t *testing.T) {
	if _, err := ScaleProRata(big.NewInt(10), big.NewInt(5), big.NewInt(0)); err == nil {
		t.Fatal("expected error for zero total")
	}
}

func TestWideMathRejectsNegative(t *testing.T) {
	if _, err := TokensForDeposit(big.NewInt(-1), big.NewInt(10), 2); err == nil {
		t.Fatal("expected error for negative amount")
	}
}

func TestTokenMathDecimalsBounds(t *testing.T) {
	// 10^77 is the largest power of ten below 2^256.
	got, err := TokensForDeposit(big.NewInt(1), big.NewInt(1), MaxTokenDecimals)
	if err != nil {
		t.Fatalf("TokensForDeposit at boundary: %v", err)
	}
	want := new(big.Int).Exp(big.NewInt(10), big.NewInt(MaxTokenDecimals), nil)
	if got.Cmp(want) != 0 {
		t.Fatalf("expected 10^%d, got %s", MaxTokenDecimals, got)
	}

	// Above the boundary the 256-bit exponent would wrap; the conversions
	// must fail instead of producing a wrapped factor.
	if _, err := TokensForDeposit(big.NewInt(1), big.NewInt(1), MaxTokenDecimals+1); err != errAmountOverflow {
		t.Fatalf("expected overflow error, got %v", err)
	}
	if _, err := TokensForDeposit(big.NewInt(1), big.NewInt(1), 100); err != errAmountOverflow {
		t.Fatalf("expected overflow error for decimals 100, got %v", err)
	}
	if _, err := CostOfTokens(big.NewInt(1), big.NewInt(1), MaxTokenDecimals+1); err != errAmountOverflow {
		t.Fatalf("expected overflow error, got %v", err)
	}
}

func TestWideMathLargeProduct(t *testing.T) {
	// amount * 10^decimals exceeds 128 bits but stays within 256.
	amount, _ := new(big.Int).SetString("340282366920938463463374607431768211455", 10) // 2^128-1
	got, err := TokensForDeposit(amount, big.NewInt(1), 18)
	if err != nil {
		t.Fatalf("TokensForDeposit: %v", err)
	}
	want := new(big.Int).Mul(amount, new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
	if got.Cmp(want) != 0 {
		t.Fatalf("expected %s, got %s", want, got)
	}
}
