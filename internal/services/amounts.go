package services

import (
	"fmt"
	"math/big"
	"strings"
)

// Amount policy constants. EntryUnit is the granularity the contract expects
// entries in; TransferGas is the fixed gas cost of a plain value transfer.
var (
	EntryUnit = big.NewInt(1_000_000_000_000_000) // 10^15 wei, 0.001 ether
	weiPerEth = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
)

const (
	TransferGas uint64 = 21000

	// MinWithdrawBalance is the floor below which the withdraw flow is not
	// even offered (10^13 wei).
	minWithdrawBalanceWei = 10_000_000_000_000
)

// MinWithdrawBalance returns the minimum balance required to start a
// withdraw flow.
func MinWithdrawBalance() *big.Int {
	return big.NewInt(minWithdrawBalanceWei)
}

// QuickEnterStake computes the quick-enter stake for a balance:
// floor(balance / EntryUnit) - 1 whole units. Returns
// ErrInsufficientBalance when no full unit can be staked, in which case no
// transaction must be built.
func QuickEnterStake(balance *big.Int) (*big.Int, error) {
	if balance == nil || balance.Sign() <= 0 {
		return nil, ErrInsufficientBalance
	}
	maxUnits := new(big.Int).Div(balance, EntryUnit)
	maxUnits.Sub(maxUnits, big.NewInt(1))
	if maxUnits.Sign() <= 0 {
		return nil, ErrInsufficientBalance
	}
	return maxUnits.Mul(maxUnits, EntryUnit), nil
}

// ParseAmountWei parses a user-typed decimal ether amount into wei,
// rounding to the nearest wei. Malformed or non-positive input returns
// ErrBadInput.
func ParseAmountWei(text string) (*big.Int, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrBadInput
	}
	f, ok := new(big.Float).SetPrec(256).SetString(text)
	if !ok {
		return nil, fmt.Errorf("%w: %q is not a number", ErrBadInput, text)
	}
	if f.Sign() <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrBadInput)
	}

	f.Mul(f, new(big.Float).SetPrec(256).SetInt(weiPerEth))
	// Round half up to the nearest wei.
	f.Add(f, big.NewFloat(0.5))
	wei, _ := f.Int(nil)
	if wei.Sign() <= 0 {
		return nil, fmt.Errorf("%w: amount rounds to zero", ErrBadInput)
	}
	return wei, nil
}

// WithdrawAmount clamps a requested withdrawal so that the transfer plus
// its gas budget never exceeds the balance:
//   - requested >= balance        -> balance - reserve
//   - requested + reserve > balance -> requested - reserve
//   - otherwise                   -> requested unchanged
//
// reserve is TransferGas * gasPrice, computed by the caller. The result can
// be non-positive for dust balances; callers must treat that as
// insufficient balance.
func WithdrawAmount(requested, balance, reserve *big.Int) *big.Int {
	if requested.Cmp(balance) >= 0 {
		return new(big.Int).Sub(balance, reserve)
	}
	withReserve := new(big.Int).Add(requested, reserve)
	if withReserve.Cmp(balance) > 0 {
		return new(big.Int).Sub(requested, reserve)
	}
	return new(big.Int).Set(requested)
}

// FormatEther renders a wei amount as ether with three decimal places for
// chat display.
func FormatEther(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	f := new(big.Float).SetPrec(256).SetInt(wei)
	f.Quo(f, new(big.Float).SetPrec(256).SetInt(weiPerEth))
	return strings.TrimRight(strings.TrimRight(f.Text('f', 3), "0"), ".")
}
