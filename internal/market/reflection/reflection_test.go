package reflection

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"lukechampine.com/uint128"

	"github.com/rovshanmuradov/tokenmill/internal/authority"
	"github.com/rovshanmuradov/tokenmill/internal/types"
)

func TestCredit(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	s := NewState(solana.NewWallet().PublicKey(), 255, 0)
	assert.Equal(t, uint128.From64(DefaultScale), s.Scale)

	require.NoError(t, Credit(s, 1000, 10, now))
	assert.Equal(t, uint64(10), s.TotalReflectionPool)
	assert.Equal(t, uint128.From64(10*DefaultScale/1000), s.PerShare)
	assert.Equal(t, now.Unix(), s.LastSettlement)

	before := *s
	err := Credit(s, 0, 10, now.Add(time.Hour))
	assert.ErrorIs(t, err, types.ErrInvalidMarketState)
	assert.Equal(t, before, *s)
}

func TestPerShareMonotonic(t *testing.T) {
	s := NewState(solana.PublicKey{}, 0, 1_000)
	prev := s.PerShare
	for i, added := range []uint64{0, 1, 5, 1000, 3} {
		require.NoError(t, Credit(s, uint64(10_000+i), added, time.Now()))
		assert.GreaterOrEqual(t, s.PerShare.Cmp(prev), 0)
		prev = s.PerShare
	}
}

func TestOwed(t *testing.T) {
	s := NewState(solana.PublicKey{}, 0, 1_000_000)
	require.NoError(t, Credit(s, 3, 1, time.Now())) // per_share = 333_333

	l := &types.ReflectionLedger{}
	owed, err := Owed(s, l, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), owed) // 333_333/1_000_000 floors to zero

	owed, err = Owed(s, l, 3)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), owed) // 999_999/1_000_000, dust stays

	owed, err = Owed(s, l, 30)
	require.NoError(t, err)
	assert.Equal(t, uint64(9), owed)

	// checkpoint at or past per_share owes nothing
	l.LastPerShare = s.PerShare
	owed, err = Owed(s, l, 1_000_000)
	require.NoError(t, err)
	assert.Zero(t, owed)
	l.LastPerShare = s.PerShare.Add64(1)
	owed, err = Owed(s, l, 1_000_000)
	require.NoError(t, err)
	assert.Zero(t, owed)
}

type mockTransferrer struct {
	moved map[solana.PublicKey]uint64
	err   error
}

func (m *mockTransferrer) TransferTokens(_ context.Context, _, _, to solana.PublicKey, amount uint64, _ authority.Signer) error {
	if m.err != nil {
		return m.err
	}
	m.moved[to] += amount
	return nil
}

func marketSigner(t *testing.T) *authority.Delegated {
	t.Helper()
	programID := solana.NewWallet().PublicKey()
	mint := solana.NewWallet().PublicKey()
	addr, bump, err := types.FindMarketAddress(programID, mint)
	require.NoError(t, err)
	d, err := authority.ForMarket(programID, addr, &types.Market{BaseMint: mint, Bump: bump})
	require.NoError(t, err)
	return d
}

func TestClaimPay(t *testing.T) {
	signer := marketSigner(t)
	holder := solana.NewWallet().PublicKey()
	s := NewState(signer.PublicKey(), 0, 1_000)
	require.NoError(t, Credit(s, 100, 50, time.Unix(10, 0))) // per_share = 500
	l := &types.ReflectionLedger{Owner: holder}

	tr := &mockTransferrer{moved: map[solana.PublicKey]uint64{}}
	settled := *s
	claim := &Claim{State: s, Ledger: l, Balance: 40, Holder: holder, Signer: signer}
	owed, err := claim.Pay(context.Background(), tr)
	require.NoError(t, err)
	assert.Equal(t, uint64(20), owed)
	assert.Equal(t, uint64(20), tr.moved[holder])
	assert.Equal(t, s.PerShare, l.LastPerShare)
	// claims leave the index and its settlement time alone
	assert.Equal(t, settled, *s)

	// second claim without new credit is a no-op
	owed, err = claim.Pay(context.Background(), tr)
	require.NoError(t, err)
	assert.Zero(t, owed)
	assert.Equal(t, uint64(20), tr.moved[holder])
}

func TestClaimBoundedByFormula(t *testing.T) {
	signer := marketSigner(t)
	s := NewState(signer.PublicKey(), 0, 1_000_000)
	tr := &mockTransferrer{moved: map[solana.PublicKey]uint64{}}
	holder := solana.NewWallet().PublicKey()
	l := &types.ReflectionLedger{Owner: holder}

	var total uint64
	for _, added := range []uint64{7, 13, 1, 99} {
		require.NoError(t, Credit(s, 97, added, time.Now()))
		last := l.LastPerShare
		claim := &Claim{State: s, Ledger: l, Balance: 11, Holder: holder, Signer: signer}
		owed, err := claim.Pay(context.Background(), tr)
		require.NoError(t, err)

		bound := s.PerShare.Sub(last).Mul64(11).Div(s.Scale)
		assert.LessOrEqual(t, owed, bound.Lo)
		total += owed
	}
	assert.Equal(t, total, tr.moved[holder])
	assert.LessOrEqual(t, total, s.TotalReflectionPool)
}

func TestClaimExcludedAndTransferFailure(t *testing.T) {
	signer := marketSigner(t)
	s := NewState(signer.PublicKey(), 0, 1_000)
	require.NoError(t, Credit(s, 10, 10, time.Now()))

	tr := &mockTransferrer{moved: map[solana.PublicKey]uint64{}}
	l := &types.ReflectionLedger{}
	claim := &Claim{State: s, Ledger: l, Excluded: true, Balance: 10, Signer: signer}
	_, err := claim.Pay(context.Background(), tr)
	assert.ErrorIs(t, err, types.ErrUnauthorizedMarket)
	assert.True(t, l.LastPerShare.IsZero())

	boom := errors.New("transfer failed")
	claim = &Claim{State: s, Ledger: l, Balance: 10, Signer: signer}
	_, err = claim.Pay(context.Background(), &mockTransferrer{err: boom})
	assert.ErrorIs(t, err, boom)
	assert.True(t, l.LastPerShare.IsZero())
}

func TestNewLedgerStartsAtCurrentIndex(t *testing.T) {
	s := NewState(solana.PublicKey{}, 0, 1_000)
	require.NoError(t, Credit(s, 10, 10, time.Now())) // per_share = 1000

	l := NewLedger(s, solana.PublicKey{}, solana.NewWallet().PublicKey(), 7)
	assert.Equal(t, s.PerShare, l.LastPerShare)
	assert.Equal(t, uint8(7), l.Bump)

	owed, err := Owed(s, l, 1_000)
	require.NoError(t, err)
	assert.Zero(t, owed)
}

func TestCheckpointCarriesEarnings(t *testing.T) {
	signer := marketSigner(t)
	holder := solana.NewWallet().PublicKey()
	s := NewState(signer.PublicKey(), 0, 1_000)
	l := NewLedger(s, signer.PublicKey(), holder, 0)

	require.NoError(t, Credit(s, 100, 50, time.Now())) // per_share = 500
	require.NoError(t, Checkpoint(s, l, 40))
	assert.Equal(t, uint64(20), l.Unclaimed)
	assert.Equal(t, s.PerShare, l.LastPerShare)

	// balance grows to 140; only the next interval counts it
	require.NoError(t, Credit(s, 200, 20, time.Now())) // per_share = 600
	tr := &mockTransferrer{moved: map[solana.PublicKey]uint64{}}
	claim := &Claim{State: s, Ledger: l, Balance: 140, Holder: holder, Signer: signer}
	owed, err := claim.Pay(context.Background(), tr)
	require.NoError(t, err)
	assert.Equal(t, uint64(20+14), owed)
	assert.Zero(t, l.Unclaimed)

	// a failed checkpoint leaves the ledger untouched
	l.Unclaimed = math.MaxUint64
	require.NoError(t, Credit(s, 10, 10, time.Now()))
	before := *l
	assert.ErrorIs(t, Checkpoint(s, l, 10), types.ErrMathOverflow)
	assert.Equal(t, before, *l)
}
