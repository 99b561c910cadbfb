// internal/types/ledger.go
package types

import (
	"github.com/gagliardetto/solana-go"
)

// SystemAccount holds native lamports.
type SystemAccount struct {
	Lamports uint64
}

// Mint is a fungible token definition. A zero authority means revoked.
type Mint struct {
	Supply          uint64
	Decimals        uint8
	MintAuthority   solana.PublicKey
	FreezeAuthority solana.PublicKey
}

// TokenAccount holds a balance of one mint for one owner.
type TokenAccount struct {
	Mint   solana.PublicKey
	Owner  solana.PublicKey
	Amount uint64
	Frozen bool
}

var (
	systemDiscriminator = discriminator("SystemAccount")
	mintDiscriminator   = discriminator("Mint")
	tokenDiscriminator  = discriminator("TokenAccount")
)

func (*SystemAccount) Discriminator() Discriminator { return systemDiscriminator }
func (*Mint) Discriminator() Discriminator          { return mintDiscriminator }
func (*TokenAccount) Discriminator() Discriminator  { return tokenDiscriminator }
