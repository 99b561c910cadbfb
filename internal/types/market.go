// internal/types/market.go
package types

import (
	"github.com/gagliardetto/solana-go"
	"lukechampine.com/uint128"
)

// LamportsPerSOL is the native currency's base-unit ratio.
const LamportsPerSOL uint64 = 1_000_000_000

// Market is the per-token bonding-curve ledger. The market address itself
// also holds the treasury lamports.
type Market struct {
	Config        solana.PublicKey
	Creator       solana.PublicKey
	BaseMint      solana.PublicKey
	Bump          uint8
	BasePrice     uint64 // price at supply zero, lamports per base unit
	Width         uint64 // linear slope of the curve
	TotalSupply   uint64 // base units minted: curve sales plus buyback pool tokens
	Fees          Fees
	IsMigrated    bool
	MintRevoked   bool
	FreezeRevoked bool
}

// Fees holds the creator fee configuration and its accrual.
type Fees struct {
	CreatorFeeShare    uint16 // basis points of the gross quote
	PendingCreatorFees uint64
}

// ReflectionState is the per-market dividend index.
type ReflectionState struct {
	Market              solana.PublicKey
	Bump                uint8
	TotalReflectionPool uint64
	PerShare            uint128.Uint128
	Scale               uint128.Uint128
	LastSettlement      int64
}

// ReflectionLedger is one holder's checkpoint into ReflectionState.PerShare.
// Unclaimed carries what the holder earned before its balance last changed.
type ReflectionLedger struct {
	Market       solana.PublicKey
	Owner        solana.PublicKey
	Bump         uint8
	LastPerShare uint128.Uint128
	Unclaimed    uint64
}

// BuybackState accumulates buyback spend for a market.
type BuybackState struct {
	Market               solana.PublicKey
	Bump                 uint8
	TotalBuybackLamports uint64
	TotalBuybackTokens   uint64
}

var (
	marketDiscriminator     = discriminator("Market")
	reflectionDiscriminator = discriminator("ReflectionState")
	ledgerDiscriminator     = discriminator("ReflectionLedger")
	buybackDiscriminator    = discriminator("BuybackState")
)

func (*Market) Discriminator() Discriminator           { return marketDiscriminator }
func (*ReflectionState) Discriminator() Discriminator  { return reflectionDiscriminator }
func (*ReflectionLedger) Discriminator() Discriminator { return ledgerDiscriminator }
func (*BuybackState) Discriminator() Discriminator     { return buybackDiscriminator }
