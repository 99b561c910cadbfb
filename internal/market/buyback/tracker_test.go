package buyback

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/tokenmill/internal/authority"
	"github.com/rovshanmuradov/tokenmill/internal/forward"
	"github.com/rovshanmuradov/tokenmill/internal/market/reflection"
	"github.com/rovshanmuradov/tokenmill/internal/types"
)

type mockRuntime struct {
	invoked int
	minted  map[solana.PublicKey]uint64
}

func (m *mockRuntime) Invoke(context.Context, solana.Instruction, authority.Signer) error {
	m.invoked++
	return nil
}

func (m *mockRuntime) MintTo(_ context.Context, _, owner solana.PublicKey, amount uint64, _ authority.Signer) error {
	m.minted[owner] += amount
	return nil
}

type fixture struct {
	req   Request
	rt    *mockRuntime
	venue solana.PublicKey
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	programID := solana.NewWallet().PublicKey()
	mint := solana.NewWallet().PublicKey()
	addr, bump, err := types.FindMarketAddress(programID, mint)
	require.NoError(t, err)
	market := &types.Market{BaseMint: mint, Bump: bump, BasePrice: 1000, TotalSupply: 500}
	signer, err := authority.ForMarket(programID, addr, market)
	require.NoError(t, err)

	venue := solana.NewWallet().PublicKey()
	return &fixture{
		venue: venue,
		rt:    &mockRuntime{minted: map[solana.PublicKey]uint64{}},
		req: Request{
			Market:     market,
			State:      &types.BuybackState{Market: addr},
			Reflection: reflection.NewState(addr, 0, 1_000_000),
			Config:     &types.ProtocolConfig{CpiWhitelist: []solana.PublicKey{venue}, MaxForwardedAccounts: 2},
			Signer:     signer,
			Now:        time.Unix(50, 0),
		},
	}
}

func TestSimulatedBuyback(t *testing.T) {
	f := newFixture(t)
	tr := NewTracker(forward.New(zap.NewNop()), zap.NewNop())

	f.req.Lamports = 10_500
	res, err := tr.Execute(context.Background(), f.rt, f.req)
	require.NoError(t, err)
	assert.Equal(t, Result{LamportsSpent: 10_500, TokensBought: 10}, res)

	assert.Equal(t, uint64(10_500), f.req.State.TotalBuybackLamports)
	assert.Equal(t, uint64(10), f.req.State.TotalBuybackTokens)
	assert.Equal(t, uint64(10), f.req.Reflection.TotalReflectionPool)
	assert.Equal(t, uint64(10*1_000_000/500), f.req.Reflection.PerShare.Lo)
	assert.Equal(t, uint64(10), f.rt.minted[f.req.Signer.PublicKey()])
	assert.Equal(t, uint64(510), f.req.Market.TotalSupply)
	assert.Zero(t, f.rt.invoked)

	// the next credit is spread over the grown supply
	f.req.Lamports = 51_000
	_, err = tr.Execute(context.Background(), f.rt, f.req)
	require.NoError(t, err)
	assert.Equal(t, uint64(10*1_000_000/500+51*1_000_000/510), f.req.Reflection.PerShare.Lo)
	assert.Equal(t, uint64(561), f.req.Market.TotalSupply)
}

func TestDelegatedBuyback(t *testing.T) {
	f := newFixture(t)
	tr := NewTracker(forward.New(zap.NewNop()), zap.NewNop())

	f.req.Lamports = 7_000
	f.req.Swap = &forward.Call{Program: f.venue, Data: []byte{1}}
	res, err := tr.Execute(context.Background(), f.rt, f.req)
	require.NoError(t, err)
	assert.Equal(t, Result{LamportsSpent: 7_000, Delegated: true}, res)
	assert.Equal(t, 1, f.rt.invoked)
	assert.Equal(t, uint64(7_000), f.req.State.TotalBuybackLamports)
	assert.Zero(t, f.req.State.TotalBuybackTokens)
	assert.True(t, f.req.Reflection.PerShare.IsZero())
	assert.Empty(t, f.rt.minted)
	assert.Equal(t, uint64(500), f.req.Market.TotalSupply)
}

func TestBuybackErrors(t *testing.T) {
	tr := NewTracker(forward.New(zap.NewNop()), zap.NewNop())

	t.Run("zero lamports", func(t *testing.T) {
		f := newFixture(t)
		_, err := tr.Execute(context.Background(), f.rt, f.req)
		assert.ErrorIs(t, err, types.ErrInvalidAmount)
	})
	t.Run("zero price", func(t *testing.T) {
		f := newFixture(t)
		f.req.Lamports = 1
		f.req.Market.BasePrice = 0
		_, err := tr.Execute(context.Background(), f.rt, f.req)
		assert.ErrorIs(t, err, types.ErrInvalidPrice)
	})
	t.Run("zero supply", func(t *testing.T) {
		f := newFixture(t)
		f.req.Lamports = 5000
		f.req.Market.TotalSupply = 0
		_, err := tr.Execute(context.Background(), f.rt, f.req)
		assert.ErrorIs(t, err, types.ErrInvalidMarketState)
		assert.Zero(t, f.req.State.TotalBuybackLamports)
		assert.Zero(t, f.req.Market.TotalSupply)
	})
	t.Run("venue not whitelisted", func(t *testing.T) {
		f := newFixture(t)
		f.req.Lamports = 5000
		f.req.Swap = &forward.Call{Program: solana.NewWallet().PublicKey()}
		_, err := tr.Execute(context.Background(), f.rt, f.req)
		assert.ErrorIs(t, err, types.ErrUnauthorizedMarket)
		assert.Zero(t, f.rt.invoked)
	})
	t.Run("too many accounts", func(t *testing.T) {
		f := newFixture(t)
		f.req.Lamports = 5000
		f.req.Swap = &forward.Call{Program: f.venue, Accounts: make([]*solana.AccountMeta, 3)}
		_, err := tr.Execute(context.Background(), f.rt, f.req)
		assert.ErrorIs(t, err, types.ErrInvalidMarketState)
	})
}

func TestRecordIsMonotonicAndChecked(t *testing.T) {
	s := &types.BuybackState{}
	require.NoError(t, Record(s, 5, 1))
	require.NoError(t, Record(s, 0, 0))
	assert.Equal(t, uint64(5), s.TotalBuybackLamports)
	assert.Equal(t, uint64(1), s.TotalBuybackTokens)

	s.TotalBuybackLamports = math.MaxUint64
	err := Record(s, 1, 1)
	assert.ErrorIs(t, err, types.ErrMathOverflow)
	assert.Equal(t, uint64(1), s.TotalBuybackTokens)
}
