// internal/host/host.go
package host

import (
	"context"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/rovshanmuradov/tokenmill/internal/authority"
)

// AuthorityKind selects which mint authority to change.
type AuthorityKind uint8

const (
	MintTokens AuthorityKind = iota
	FreezeAccount
)

// Host is the runtime a market operation executes against: native balances,
// token custody and calls into external programs. Token methods address
// balances by owner; the host resolves the owner's token account.
type Host interface {
	Now() time.Time

	Lamports(ctx context.Context, key solana.PublicKey) (uint64, error)
	TransferLamports(ctx context.Context, from, to solana.PublicKey, amount uint64, signer authority.Signer) error

	CreateMint(ctx context.Context, mint solana.PublicKey, decimals uint8, mintAuthority solana.PublicKey) error
	TokenBalance(ctx context.Context, owner, mint solana.PublicKey) (uint64, error)
	MintTo(ctx context.Context, mint, owner solana.PublicKey, amount uint64, signer authority.Signer) error
	TransferTokens(ctx context.Context, mint, from, to solana.PublicKey, amount uint64, signer authority.Signer) error
	Burn(ctx context.Context, mint, owner solana.PublicKey, amount uint64, signer authority.Signer) error
	RevokeAuthority(ctx context.Context, mint solana.PublicKey, kind AuthorityKind, signer authority.Signer) error

	Invoke(ctx context.Context, ix solana.Instruction, signer authority.Signer) error
}
