package authority

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rovshanmuradov/tokenmill/internal/types"
)

func TestForMarket(t *testing.T) {
	programID := solana.NewWallet().PublicKey()
	mint := solana.NewWallet().PublicKey()
	addr, bump, err := types.FindMarketAddress(programID, mint)
	require.NoError(t, err)

	m := &types.Market{BaseMint: mint, Bump: bump}
	d, err := ForMarket(programID, addr, m)
	require.NoError(t, err)
	assert.Equal(t, addr, d.PublicKey())
	assert.Equal(t, programID, d.ProgramID())

	seeds := d.SignerSeeds()
	require.Len(t, seeds, 3)
	assert.Equal(t, []byte{bump}, seeds[2])
}

func TestForMarketRejectsMismatch(t *testing.T) {
	programID := solana.NewWallet().PublicKey()
	mint := solana.NewWallet().PublicKey()
	addr, bump, err := types.FindMarketAddress(programID, mint)
	require.NoError(t, err)

	// wrong mint
	_, err = ForMarket(programID, addr, &types.Market{BaseMint: solana.NewWallet().PublicKey(), Bump: bump})
	assert.ErrorIs(t, err, types.ErrInvalidMarketPda)

	// wrong address
	_, err = ForMarket(programID, solana.NewWallet().PublicKey(), &types.Market{BaseMint: mint, Bump: bump})
	assert.ErrorIs(t, err, types.ErrInvalidMarketPda)
}

func TestWallet(t *testing.T) {
	key := solana.NewWallet().PublicKey()
	var s Signer = Wallet(key)
	assert.Equal(t, key, s.PublicKey())
}
