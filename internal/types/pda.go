// internal/types/pda.go
package types

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

var (
	MarketSeed     = []byte("market")
	ReflectionSeed = []byte("reflection")
	BuybackSeed    = []byte("buyback")
	LedgerSeed     = []byte("ledger")
	ReferralSeed   = []byte("referral")
	ExclusionSeed  = []byte("exclusion")
	AirdropSeed    = []byte("airdrop")
)

func MarketSeeds(baseMint solana.PublicKey) [][]byte {
	return [][]byte{MarketSeed, baseMint.Bytes()}
}

func ReferralSeeds(config, owner solana.PublicKey) [][]byte {
	return [][]byte{ReferralSeed, config.Bytes(), owner.Bytes()}
}

func AirdropSeeds(admin, mint solana.PublicKey) [][]byte {
	return [][]byte{AirdropSeed, admin.Bytes(), mint.Bytes()}
}

// FindMarketAddress derives the market address for a base mint.
func FindMarketAddress(programID, baseMint solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress(MarketSeeds(baseMint), programID)
}

func FindReflectionAddress(programID, market solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress([][]byte{ReflectionSeed, market.Bytes()}, programID)
}

func FindBuybackAddress(programID, market solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress([][]byte{BuybackSeed, market.Bytes()}, programID)
}

func FindLedgerAddress(programID, market, owner solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress([][]byte{LedgerSeed, market.Bytes(), owner.Bytes()}, programID)
}

func FindReferralAddress(programID, config, owner solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress(ReferralSeeds(config, owner), programID)
}

func FindExclusionAddress(programID, admin solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress([][]byte{ExclusionSeed, admin.Bytes()}, programID)
}

func FindAirdropAddress(programID, admin, mint solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress(AirdropSeeds(admin, mint), programID)
}

// VerifyAddress checks that key is the program address for seeds+bump.
func VerifyAddress(programID, key solana.PublicKey, seeds [][]byte, bump uint8) error {
	withBump := append(append([][]byte{}, seeds...), []byte{bump})
	derived, err := solana.CreateProgramAddress(withBump, programID)
	if err != nil {
		return fmt.Errorf("failed to create program address: %w", err)
	}
	if !derived.Equals(key) {
		return fmt.Errorf("derived %s, got %s", derived, key)
	}
	return nil
}

// VaultAddress is the owner's associated token account for mint.
func VaultAddress(owner, mint solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to derive token account: %w", err)
	}
	return addr, nil
}
