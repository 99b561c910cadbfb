// internal/bank/token.go
package bank

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/rovshanmuradov/tokenmill/internal/authority"
	"github.com/rovshanmuradov/tokenmill/internal/host"
	"github.com/rovshanmuradov/tokenmill/internal/storage"
	"github.com/rovshanmuradov/tokenmill/internal/types"
)

func (b *Bank) CreateMint(ctx context.Context, mint solana.PublicKey, decimals uint8, mintAuthority solana.PublicKey) error {
	exists, err := b.tx.Exists(ctx, mint)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s", ErrMintExists, mint)
	}
	return b.tx.Put(ctx, mint, &types.Mint{
		Decimals:        decimals,
		MintAuthority:   mintAuthority,
		FreezeAuthority: mintAuthority,
	})
}

func (b *Bank) mint(ctx context.Context, mint solana.PublicKey) (*types.Mint, error) {
	var m types.Mint
	if err := b.tx.Get(ctx, mint, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidMint, err)
	}
	return &m, nil
}

// tokenAccount loads owner's account for mint, or a fresh empty one.
func (b *Bank) tokenAccount(ctx context.Context, owner, mint solana.PublicKey) (solana.PublicKey, *types.TokenAccount, error) {
	addr, err := types.VaultAddress(owner, mint)
	if err != nil {
		return solana.PublicKey{}, nil, err
	}
	acc := types.TokenAccount{Mint: mint, Owner: owner}
	err = b.tx.Get(ctx, addr, &acc)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return solana.PublicKey{}, nil, err
	}
	return addr, &acc, nil
}

func (b *Bank) TokenBalance(ctx context.Context, owner, mint solana.PublicKey) (uint64, error) {
	_, acc, err := b.tokenAccount(ctx, owner, mint)
	if err != nil {
		return 0, err
	}
	return acc.Amount, nil
}

func (b *Bank) MintTo(ctx context.Context, mint, owner solana.PublicKey, amount uint64, signer authority.Signer) error {
	m, err := b.mint(ctx, mint)
	if err != nil {
		return err
	}
	if m.MintAuthority.IsZero() {
		return fmt.Errorf("%w: mint authority of %s", ErrAuthorityRevoked, mint)
	}
	if !m.MintAuthority.Equals(signer.PublicKey()) {
		return fmt.Errorf("%w: mint authority %s", ErrMissingSignature, m.MintAuthority)
	}

	addr, acc, err := b.tokenAccount(ctx, owner, mint)
	if err != nil {
		return err
	}
	if acc.Frozen {
		return fmt.Errorf("%w: %s", ErrAccountFrozen, addr)
	}
	if m.Supply+amount < m.Supply || acc.Amount+amount < acc.Amount {
		return types.ErrMathOverflow
	}
	m.Supply += amount
	acc.Amount += amount

	if err := b.tx.Put(ctx, mint, m); err != nil {
		return err
	}
	return b.tx.Put(ctx, addr, acc)
}

func (b *Bank) TransferTokens(ctx context.Context, mint, from, to solana.PublicKey, amount uint64, signer authority.Signer) error {
	if !signer.PublicKey().Equals(from) {
		return fmt.Errorf("%w: token owner %s", ErrMissingSignature, from)
	}
	if amount == 0 || from.Equals(to) {
		return nil
	}

	srcAddr, src, err := b.tokenAccount(ctx, from, mint)
	if err != nil {
		return err
	}
	dstAddr, dst, err := b.tokenAccount(ctx, to, mint)
	if err != nil {
		return err
	}
	if src.Frozen || dst.Frozen {
		return ErrAccountFrozen
	}
	if src.Amount < amount {
		return fmt.Errorf("%w: %s holds %d, needs %d", ErrInsufficientFunds, srcAddr, src.Amount, amount)
	}
	if dst.Amount+amount < dst.Amount {
		return types.ErrMathOverflow
	}
	src.Amount -= amount
	dst.Amount += amount

	if err := b.tx.Put(ctx, srcAddr, src); err != nil {
		return err
	}
	return b.tx.Put(ctx, dstAddr, dst)
}

func (b *Bank) Burn(ctx context.Context, mint, owner solana.PublicKey, amount uint64, signer authority.Signer) error {
	if !signer.PublicKey().Equals(owner) {
		return fmt.Errorf("%w: token owner %s", ErrMissingSignature, owner)
	}
	m, err := b.mint(ctx, mint)
	if err != nil {
		return err
	}
	addr, acc, err := b.tokenAccount(ctx, owner, mint)
	if err != nil {
		return err
	}
	if acc.Amount < amount {
		return fmt.Errorf("%w: %s holds %d, burning %d", ErrInsufficientFunds, addr, acc.Amount, amount)
	}
	acc.Amount -= amount
	m.Supply -= amount

	if err := b.tx.Put(ctx, mint, m); err != nil {
		return err
	}
	return b.tx.Put(ctx, addr, acc)
}

func (b *Bank) RevokeAuthority(ctx context.Context, mint solana.PublicKey, kind host.AuthorityKind, signer authority.Signer) error {
	m, err := b.mint(ctx, mint)
	if err != nil {
		return err
	}

	current := &m.MintAuthority
	if kind == host.FreezeAccount {
		current = &m.FreezeAuthority
	}
	if current.IsZero() {
		return nil
	}
	if !current.Equals(signer.PublicKey()) {
		return fmt.Errorf("%w: authority %s", ErrMissingSignature, *current)
	}
	*current = solana.PublicKey{}
	return b.tx.Put(ctx, mint, m)
}

// Freeze marks owner's token account as frozen. Requires the freeze authority.
func (b *Bank) Freeze(ctx context.Context, mint, owner solana.PublicKey, signer authority.Signer) error {
	m, err := b.mint(ctx, mint)
	if err != nil {
		return err
	}
	if m.FreezeAuthority.IsZero() {
		return fmt.Errorf("%w: freeze authority of %s", ErrAuthorityRevoked, mint)
	}
	if !m.FreezeAuthority.Equals(signer.PublicKey()) {
		return fmt.Errorf("%w: freeze authority %s", ErrMissingSignature, m.FreezeAuthority)
	}
	addr, acc, err := b.tokenAccount(ctx, owner, mint)
	if err != nil {
		return err
	}
	acc.Frozen = true
	return b.tx.Put(ctx, addr, acc)
}

func (b *Bank) Invoke(ctx context.Context, ix solana.Instruction, signer authority.Signer) error {
	program, ok := b.rt.program(ix.ProgramID())
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProgram, ix.ProgramID())
	}
	return program.Execute(ctx, b, ix, signer)
}
