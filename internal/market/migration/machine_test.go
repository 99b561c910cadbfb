package migration

import (
	"context"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/tokenmill/internal/authority"
	"github.com/rovshanmuradov/tokenmill/internal/forward"
	"github.com/rovshanmuradov/tokenmill/internal/types"
)

type mockRuntime struct {
	balance map[solana.PublicKey]uint64
	invoked []solana.PublicKey
}

func (m *mockRuntime) Invoke(_ context.Context, ix solana.Instruction, _ authority.Signer) error {
	m.invoked = append(m.invoked, ix.ProgramID())
	return nil
}

func (m *mockRuntime) Lamports(_ context.Context, key solana.PublicKey) (uint64, error) {
	return m.balance[key], nil
}

func (m *mockRuntime) TransferLamports(_ context.Context, from, to solana.PublicKey, amount uint64, _ authority.Signer) error {
	m.balance[from] -= amount
	m.balance[to] += amount
	return nil
}

type fixture struct {
	req       Request
	rt        *mockRuntime
	venue     solana.PublicKey
	authority solana.PublicKey
}

func newFixture(t *testing.T, treasury uint64) *fixture {
	t.Helper()
	programID := solana.NewWallet().PublicKey()
	mint := solana.NewWallet().PublicKey()
	addr, bump, err := types.FindMarketAddress(programID, mint)
	require.NoError(t, err)
	market := &types.Market{
		BaseMint: mint,
		Bump:     bump,
		Creator:  solana.NewWallet().PublicKey(),
		Fees:     types.Fees{PendingCreatorFees: 50 * types.LamportsPerSOL},
	}
	signer, err := authority.ForMarket(programID, addr, market)
	require.NoError(t, err)

	venue := solana.NewWallet().PublicKey()
	admin := solana.NewWallet().PublicKey()
	return &fixture{
		venue:     venue,
		authority: admin,
		rt:        &mockRuntime{balance: map[solana.PublicKey]uint64{addr: treasury}},
		req: Request{
			Market:      market,
			Buyback:     &types.BuybackState{},
			Config:      &types.ProtocolConfig{Authority: admin, CpiWhitelist: []solana.PublicKey{venue}, MaxForwardedAccounts: 4},
			Signer:      signer,
			TriggeredBy: solana.NewWallet().PublicKey(),
		},
	}
}

func TestThresholdGuard(t *testing.T) {
	m := NewMachine(DefaultParams(), forward.New(zap.NewNop()), zap.NewNop())
	sol := types.LamportsPerSOL

	f := newFixture(t, 1000*sol)
	f.req.Buyback.TotalBuybackLamports = 59_999 * sol
	_, err := m.Migrate(context.Background(), f.rt, f.req)
	assert.ErrorIs(t, err, types.ErrInvalidMarketState)
	assert.False(t, f.req.Market.IsMigrated)

	f.req.Buyback.TotalBuybackLamports += 2 * sol
	res, err := m.Migrate(context.Background(), f.rt, f.req)
	require.NoError(t, err)
	assert.True(t, f.req.Market.IsMigrated)
	assert.Equal(t, StateOf(f.req.Market), Migrated)
	assert.Equal(t, 60_001*sol, res.TotalBuybackLamports)

	// one way
	_, err = m.Migrate(context.Background(), f.rt, f.req)
	assert.ErrorIs(t, err, types.ErrInvalidMarketState)
	assert.True(t, f.req.Market.IsMigrated)
}

func TestForceRequiresAuthority(t *testing.T) {
	m := NewMachine(DefaultParams(), forward.New(zap.NewNop()), zap.NewNop())

	f := newFixture(t, 0)
	f.req.Force = true
	_, err := m.Migrate(context.Background(), f.rt, f.req)
	assert.ErrorIs(t, err, types.ErrInvalidAuthority)

	f.req.TriggeredBy = f.authority
	_, err = m.Migrate(context.Background(), f.rt, f.req)
	require.NoError(t, err)
	assert.True(t, f.req.Market.IsMigrated)
}

func TestCreatorPayout(t *testing.T) {
	sol := types.LamportsPerSOL
	tests := []struct {
		name        string
		treasury    uint64
		wantPaid    uint64
		wantPending uint64
	}{
		{"fully covered", 1000 * sol, 250 * sol, 0},
		{"capped below pending", 30 * sol, 30 * sol, 20 * sol},
		{"covers pending not bonus", 60 * sol, 60 * sol, 0},
		{"empty treasury", 0, 0, 50 * sol},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMachine(DefaultParams(), forward.New(zap.NewNop()), zap.NewNop())
			f := newFixture(t, tt.treasury)
			f.req.Force = true
			f.req.TriggeredBy = f.authority

			res, err := m.Migrate(context.Background(), f.rt, f.req)
			require.NoError(t, err)
			assert.Equal(t, tt.wantPaid, res.CreatorPaid)
			assert.Equal(t, tt.wantPending, f.req.Market.Fees.PendingCreatorFees)
			assert.Equal(t, tt.wantPaid, f.rt.balance[f.req.Market.Creator])
		})
	}
}

func TestLiquidityCallsForwarded(t *testing.T) {
	m := NewMachine(DefaultParams(), forward.New(zap.NewNop()), zap.NewNop())
	f := newFixture(t, 0)
	f.req.Force = true
	f.req.TriggeredBy = f.authority
	f.req.CreateLP = &forward.Call{Program: f.venue, Data: []byte{1}}
	f.req.BurnLP = &forward.Call{Program: f.venue, Data: []byte{2}}

	_, err := m.Migrate(context.Background(), f.rt, f.req)
	require.NoError(t, err)
	assert.Equal(t, []solana.PublicKey{f.venue, f.venue}, f.rt.invoked)

	f = newFixture(t, 0)
	f.req.Force = true
	f.req.TriggeredBy = f.authority
	f.req.BurnLP = &forward.Call{Program: solana.NewWallet().PublicKey()}
	_, err = m.Migrate(context.Background(), f.rt, f.req)
	assert.ErrorIs(t, err, types.ErrUnauthorizedMarket)
}
