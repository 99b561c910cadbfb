// internal/authority/signer.go
package authority

import (
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/rovshanmuradov/tokenmill/internal/types"
)

// Signer authorizes debits from accounts owned by PublicKey.
type Signer interface {
	PublicKey() solana.PublicKey
}

// Wallet is a user-held key whose signature was checked by the caller.
type Wallet solana.PublicKey

func (w Wallet) PublicKey() solana.PublicKey { return solana.PublicKey(w) }

// Delegated is the capability to sign for a program-derived address. It can
// only be built from seeds that re-derive to the address, so holding one
// proves the address belongs to the program.
type Delegated struct {
	programID solana.PublicKey
	address   solana.PublicKey
	seeds     [][]byte
	bump      uint8
}

// NewDelegated verifies address against seeds+bump under programID.
func NewDelegated(programID, address solana.PublicKey, seeds [][]byte, bump uint8) (*Delegated, error) {
	if err := types.VerifyAddress(programID, address, seeds, bump); err != nil {
		return nil, err
	}
	return &Delegated{
		programID: programID,
		address:   address,
		seeds:     seeds,
		bump:      bump,
	}, nil
}

// ForMarket builds the market's signing authority and checks that address
// is the market derived from m.BaseMint with the stored bump.
func ForMarket(programID, address solana.PublicKey, m *types.Market) (*Delegated, error) {
	d, err := NewDelegated(programID, address, types.MarketSeeds(m.BaseMint), m.Bump)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidMarketPda, err)
	}
	return d, nil
}

func (d *Delegated) PublicKey() solana.PublicKey { return d.address }

func (d *Delegated) ProgramID() solana.PublicKey { return d.programID }

// SignerSeeds returns the seeds including the bump, as an invoke would pass them.
func (d *Delegated) SignerSeeds() [][]byte {
	out := make([][]byte, 0, len(d.seeds)+1)
	out = append(out, d.seeds...)
	return append(out, []byte{d.bump})
}
