package forward

import (
	"context"
	"errors"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/tokenmill/internal/authority"
	"github.com/rovshanmuradov/tokenmill/internal/types"
)

type mockInvoker struct {
	calls []solana.Instruction
	err   error
}

func (m *mockInvoker) Invoke(_ context.Context, ix solana.Instruction, _ authority.Signer) error {
	m.calls = append(m.calls, ix)
	return m.err
}

func metas(n int) []*solana.AccountMeta {
	out := make([]*solana.AccountMeta, n)
	for i := range out {
		out[i] = solana.Meta(solana.NewWallet().PublicKey()).WRITE()
	}
	return out
}

func TestForwardPassesPayloadThrough(t *testing.T) {
	venue := solana.NewWallet().PublicKey()
	cfg := &types.ProtocolConfig{CpiWhitelist: []solana.PublicKey{venue}, MaxForwardedAccounts: 4}
	inv := &mockInvoker{}
	f := New(zap.NewNop())

	call := &Call{Program: venue, Data: []byte{9, 8, 7}, Accounts: metas(4)}
	signer := authority.Wallet(solana.NewWallet().PublicKey())
	require.NoError(t, f.Forward(context.Background(), inv, cfg, call, signer))

	require.Len(t, inv.calls, 1)
	ix := inv.calls[0]
	assert.Equal(t, venue, ix.ProgramID())
	data, err := ix.Data()
	require.NoError(t, err)
	assert.Equal(t, []byte{9, 8, 7}, data)
	accounts := ix.Accounts()
	require.Len(t, accounts, 4)
	for i := range accounts {
		assert.Equal(t, call.Accounts[i].PublicKey, accounts[i].PublicKey)
	}
}

func TestForwardValidation(t *testing.T) {
	venue := solana.NewWallet().PublicKey()
	cfg := &types.ProtocolConfig{CpiWhitelist: []solana.PublicKey{venue}, MaxForwardedAccounts: 2}
	signer := authority.Wallet(solana.NewWallet().PublicKey())

	tests := []struct {
		name    string
		call    *Call
		wantErr error
	}{
		{"not whitelisted", &Call{Program: solana.NewWallet().PublicKey()}, types.ErrUnauthorizedMarket},
		{"too many accounts", &Call{Program: venue, Accounts: metas(3)}, types.ErrInvalidMarketState},
		{"at cap", &Call{Program: venue, Accounts: metas(2)}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := &mockInvoker{}
			err := New(zap.NewNop()).Forward(context.Background(), inv, cfg, tt.call, signer)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Empty(t, inv.calls)
				return
			}
			assert.NoError(t, err)
			assert.Len(t, inv.calls, 1)
		})
	}
}

func TestForwardEmptyAndInvokeError(t *testing.T) {
	venue := solana.NewWallet().PublicKey()
	cfg := &types.ProtocolConfig{CpiWhitelist: []solana.PublicKey{venue}, MaxForwardedAccounts: 1}
	signer := authority.Wallet(solana.NewWallet().PublicKey())
	f := New(zap.NewNop())

	inv := &mockInvoker{}
	assert.NoError(t, f.Forward(context.Background(), inv, cfg, nil, signer))
	assert.Empty(t, inv.calls)

	boom := errors.New("venue failed")
	inv = &mockInvoker{err: boom}
	err := f.Forward(context.Background(), inv, cfg, &Call{Program: venue}, signer)
	assert.ErrorIs(t, err, boom)
}
