package sale

import (
	"errors"
	"math/big"

	"github.com/holiman/uint256"
)

// Ratio arithmetic over deposit-scale balances. Multiplying two balances
// before dividing can exceed 128 bits, so every intermediate runs through
// a 256-bit integer. All divisions truncate toward zero.

var errAmountOverflow = errors.New("sale: amount exceeds 256-bit range")

// MaxTokenDecimals is the largest supported distribution-token precision:
// 10^77 is the biggest power of ten below 2^256, and uint256 exponentiation
// is modular, so anything above would wrap silently.
const MaxTokenDecimals = 77

func toWide(v *big.Int) (*uint256.Int, error) {
	if v == nil {
		return uint256.NewInt(0), nil
	}
	if v.Sign() < 0 {
		return nil, errAmountOverflow
	}
	wide, overflow := uint256.FromBig(v)
	if overflow {
		return nil, errAmountOverflow
	}
	return wide, nil
}

func pow10(decimals uint8) (*uint256.Int, error) {
	if decimals > MaxTokenDecimals {
		return nil, errAmountOverflow
	}
	return new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(uint64(decimals))), nil
}

// TokensForDeposit converts a deposit into the distribution-token amount
// it buys at the given price: amount * 10^decimals / price.
func TokensForDeposit(amount, price *big.Int, decimals uint8) (*big.Int, error) {
	if price == nil || price.Sign() == 0 {
		return nil, ErrNoSalePrice
	}
	wideAmount, err := toWide(amount)
	if err != nil {
		return nil, err
	}
	widePrice, err := toWide(price)
	if err != nil {
		return nil, err
	}
	factor, err := pow10(decimals)
	if err != nil {
		return nil, err
	}
	product, overflow := new(uint256.Int).MulOverflow(wideAmount, factor)
	if overflow {
		return nil, errAmountOverflow
	}
	return new(uint256.Int).Div(product, widePrice).ToBig(), nil
}

// CostOfTokens is the inverse conversion: the deposit value consumed by a
// token amount, tokens * price / 10^decimals.
func CostOfTokens(tokens, price *big.Int, decimals uint8) (*big.Int, error) {
	wideTokens, err := toWide(tokens)
	if err != nil {
		return nil, err
	}
	widePrice, err := toWide(price)
	if err != nil {
		return nil, err
	}
	product, overflow := new(uint256.Int).MulOverflow(wideTokens, widePrice)
	if overflow {
		return nil, errAmountOverflow
	}
	factor, err := pow10(decimals)
	if err != nil {
		return nil, err
	}
	return new(uint256.Int).Div(product, factor).ToBig(), nil
}

// ScaleProRata rescales value by supply/total, truncating:
// value * supply / total. Total must be non-zero.
func ScaleProRata(value, supply, total *big.Int) (*big.Int, error) {
	if total == nil || total.Sign() == 0 {
		return nil, errors.New("sale: pro-rata total must be non-zero")
	}
	wideValue, err := toWide(value)
	if err != nil {
		return nil, err
	}
	wideSupply, err := toWide(supply)
	if err != nil {
		return nil, err
	}
	wideTotal, err := toWide(total)
	if err != nil {
		return nil, err
	}
	product, overflow := new(uint256.Int).MulOverflow(wideValue, wideSupply)
	if overflow {
		return nil, errAmountOverflow
	}
	return new(uint256.Int).Div(product, wideTotal).ToBig(), nil
}

func minBig(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}
