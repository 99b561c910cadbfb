// internal/forward/forward.go
package forward

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/tokenmill/internal/authority"
	"github.com/rovshanmuradov/tokenmill/internal/types"
)

// Call is an opaque payload for an external program. Data and account order
// are passed through untouched.
type Call struct {
	Program  solana.PublicKey
	Data     []byte
	Accounts []*solana.AccountMeta
}

// Empty reports whether no call was supplied.
func (c *Call) Empty() bool {
	return c == nil || c.Program.IsZero()
}

// Instruction wraps the call for the host.
func (c *Call) Instruction() solana.Instruction {
	return solana.NewInstruction(c.Program, c.Accounts, c.Data)
}

// Invoker executes an instruction under a signer.
type Invoker interface {
	Invoke(ctx context.Context, ix solana.Instruction, signer authority.Signer) error
}

// Validate applies the protocol allow-list and the forwarded account cap.
func Validate(cfg *types.ProtocolConfig, c *Call) error {
	if !cfg.IsWhitelisted(c.Program) {
		return fmt.Errorf("%w: program %s is not whitelisted", types.ErrUnauthorizedMarket, c.Program)
	}
	if len(c.Accounts) > int(cfg.MaxForwardedAccounts) {
		return fmt.Errorf("%w: %d forwarded accounts exceed cap %d",
			types.ErrInvalidMarketState, len(c.Accounts), cfg.MaxForwardedAccounts)
	}
	return nil
}

// Forwarder validates and dispatches delegated calls.
type Forwarder struct {
	logger *zap.Logger
}

func New(logger *zap.Logger) *Forwarder {
	return &Forwarder{logger: logger.Named("forward")}
}

// Forward validates c and invokes it signed by signer. An empty call is a no-op.
func (f *Forwarder) Forward(ctx context.Context, inv Invoker, cfg *types.ProtocolConfig, c *Call, signer authority.Signer) error {
	if c.Empty() {
		return nil
	}
	if err := Validate(cfg, c); err != nil {
		return err
	}

	f.logger.Debug("Forwarding call",
		zap.String("program", c.Program.String()),
		zap.String("signer", signer.PublicKey().String()),
		zap.Int("accounts", len(c.Accounts)),
		zap.Int("data_len", len(c.Data)))

	if err := inv.Invoke(ctx, c.Instruction(), signer); err != nil {
		return fmt.Errorf("failed to invoke %s: %w", c.Program, err)
	}
	return nil
}
