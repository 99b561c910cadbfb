package airdrop

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rovshanmuradov/tokenmill/internal/types"
)

func TestTreeProofsVerify(t *testing.T) {
	for _, n := range []int{1, 2, 3, 5, 8} {
		var leaves [][]byte
		for i := 0; i < n; i++ {
			leaves = append(leaves, Leaf(solana.NewWallet().PublicKey(), uint64(i+1)*100))
		}
		tree, err := NewTree(leaves)
		require.NoError(t, err)

		for i, leaf := range leaves {
			proof := tree.Proof(uint64(i))
			assert.True(t, VerifyProof(leaf, proof, tree.Root(), uint64(i)), "n=%d i=%d", n, i)
		}
	}
}

func TestVerifyProofRejectsTampering(t *testing.T) {
	a := Leaf(solana.NewWallet().PublicKey(), 10)
	b := Leaf(solana.NewWallet().PublicKey(), 20)
	c := Leaf(solana.NewWallet().PublicKey(), 30)
	tree, err := NewTree([][]byte{a, b, c})
	require.NoError(t, err)

	proof := tree.Proof(1)
	assert.False(t, VerifyProof(b, proof, tree.Root(), 0), "wrong index flips hash order")
	assert.False(t, VerifyProof(a, proof, tree.Root(), 1), "wrong leaf")

	forged := append([]byte(nil), b...)
	forged[len(forged)-1] ^= 0xff
	assert.False(t, VerifyProof(forged, proof, tree.Root(), 1), "changed amount")

	_, err = NewTree(nil)
	assert.ErrorIs(t, err, ErrEmptyTree)
}

func TestBitmap(t *testing.T) {
	bm := make([]byte, 2)
	require.NoError(t, MarkClaimed(bm, 0))
	require.NoError(t, MarkClaimed(bm, 9))
	assert.True(t, IsClaimed(bm, 0))
	assert.True(t, IsClaimed(bm, 9))
	assert.False(t, IsClaimed(bm, 1))
	assert.Equal(t, []byte{0x01, 0x02}, bm)

	assert.ErrorIs(t, MarkClaimed(bm, 9), types.ErrInvalidMarketState)
	assert.ErrorIs(t, MarkClaimed(bm, 16), types.ErrInvalidMarketState)
	assert.False(t, IsClaimed(bm, 100))
}

func TestSplitExpired(t *testing.T) {
	burn, swap, err := SplitExpired(1000)
	require.NoError(t, err)
	assert.Equal(t, uint64(750), burn)
	assert.Equal(t, uint64(250), swap)

	burn, swap, err = SplitExpired(3)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), burn)
	assert.Equal(t, uint64(1), swap)
}
