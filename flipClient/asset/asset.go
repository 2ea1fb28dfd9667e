// Package asset defines the assets the Flip ledger escrows and everything that
// differs between them: where deposits come from, which contract call credits
// them, how many smallest units make one coin and how many confirmations the
// source chain needs.
package asset

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/Longfei-Zhao/Flip-renjs-v3/flipClient/constant"
	"github.com/shopspring/decimal"
)

// Kind classifies an asset by how it reaches the ledger.
type Kind int

const (
	// KindNativeCoin is a coin native to a UTXO chain, bridged in through a deposit address.
	KindNativeCoin Kind = iota + 1
	// KindBridgedStablecoin is an account-chain coin bridged in through a funding call.
	KindBridgedStablecoin
	// KindContractNative is the ledger chain's own currency; it never crosses the bridge.
	KindContractNative
)

func (k Kind) String() string {
	switch k {
	case KindNativeCoin:
		return "native_coin"
	case KindBridgedStablecoin:
		return "bridged_stablecoin"
	case KindContractNative:
		return "contract_native"
	default:
		return "unknown"
	}
}

// SourceStyle is how the in leg of a deposit is funded.
type SourceStyle int

const (
	// SourceNone marks assets that are never deposited through the bridge.
	SourceNone SourceStyle = iota
	// SourceAddress funds a bridge-generated deposit address (UTXO chains).
	SourceAddress
	// SourceCall funds the bridge through a transfer call on an account chain.
	SourceCall
)

func (s SourceStyle) String() string {
	switch s {
	case SourceAddress:
		return "address"
	case SourceCall:
		return "call"
	default:
		return "none"
	}
}

// Asset is the single description of a supported asset. Operations consult it
// once instead of branching on the symbol.
type Asset struct {
	Symbol string
	Kind   Kind
	// Chain is the chain the asset is native to.
	Chain string
	// SourceStyle decides whether a deposit gateway carries an address or a call descriptor.
	SourceStyle SourceStyle
	// DepositMethod is the ledger method that credits a bridged deposit.
	DepositMethod string
	// Decimals is the smallest-unit scale (BTC 8, LUNA 6, ETH 18).
	Decimals int32
	// RequiredConfirmations on Chain before the bridge accepts a deposit or a release is final.
	RequiredConfirmations uint64
}

var (
	BTC = Asset{
		Symbol:                "BTC",
		Kind:                  KindNativeCoin,
		Chain:                 constant.ChainBitcoin,
		SourceStyle:           SourceAddress,
		DepositMethod:         "depositBTC",
		Decimals:              8,
		RequiredConfirmations: 6,
	}

	LUNA = Asset{
		Symbol:                "LUNA",
		Kind:                  KindBridgedStablecoin,
		Chain:                 constant.ChainTerra,
		SourceStyle:           SourceCall,
		DepositMethod:         "depositLUNA",
		Decimals:              6,
		RequiredConfirmations: 1,
	}

	ETH = Asset{
		Symbol:                "ETH",
		Kind:                  KindContractNative,
		Chain:                 constant.ChainEthereum,
		SourceStyle:           SourceNone,
		Decimals:              18,
		RequiredConfirmations: 1,
	}
)

// LedgerChain is the chain hosting the Flip contract.
const LedgerChain = constant.ChainEthereum

// LedgerConfirmations is how many confirmations a ledger call needs.
const LedgerConfirmations uint64 = 1

var registry = map[string]Asset{
	BTC.Symbol:  BTC,
	LUNA.Symbol: LUNA,
	ETH.Symbol:  ETH,
}

// Lookup resolves a symbol, case-insensitively.
func Lookup(symbol string) (Asset, error) {
	a, ok := registry[strings.ToUpper(strings.TrimSpace(symbol))]
	if !ok {
		return Asset{}, fmt.Errorf("unknown asset %q", symbol)
	}
	return a, nil
}

// All returns the supported assets in display order.
func All() []Asset {
	return []Asset{ETH, BTC, LUNA}
}

// Bridged reports whether the asset moves through the bridge.
func (a Asset) Bridged() bool {
	return a.Kind != KindContractNative
}

func (a Asset) String() string {
	return a.Symbol
}

// ParseAmount converts a decimal coin amount ("0.015") into smallest units.
// Amounts with more precision than the asset supports are rejected.
func (a Asset) ParseAmount(s string) (*big.Int, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("invalid %s amount %q: %w", a.Symbol, s, err)
	}
	if d.Sign() <= 0 {
		return nil, fmt.Errorf("%s amount must be positive", a.Symbol)
	}
	scaled := d.Shift(a.Decimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("%s amount %q has more than %d decimals", a.Symbol, s, a.Decimals)
	}
	return scaled.BigInt(), nil
}

// FormatAmount renders smallest units as a decimal coin amount.
func (a Asset) FormatAmount(units *big.Int) string {
	if units == nil {
		return "0"
	}
	return decimal.NewFromBigInt(units, -a.Decimals).String()
}
