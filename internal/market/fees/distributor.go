// internal/market/fees/distributor.go
package fees

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/tokenmill/internal/authority"
)

// Sender moves native currency.
type Sender interface {
	TransferLamports(ctx context.Context, from, to solana.PublicKey, amount uint64, signer authority.Signer) error
}

// Route is one destination in the referral fee chain. Pay must leave no
// effects behind when it fails.
type Route interface {
	Name() string
	Pay(ctx context.Context, amount uint64) error
}

// WalletRoute pays a plain wallet.
type WalletRoute struct {
	Label  string
	Sender Sender
	From   solana.PublicKey
	To     solana.PublicKey
	Signer authority.Signer
}

func (r WalletRoute) Name() string { return r.Label }

func (r WalletRoute) Pay(ctx context.Context, amount uint64) error {
	return r.Sender.TransferLamports(ctx, r.From, r.To, amount, r.Signer)
}

// Distributor pays out fee breakdowns.
type Distributor struct {
	logger *zap.Logger
}

func NewDistributor(logger *zap.Logger) *Distributor {
	return &Distributor{logger: logger.Named("fees")}
}

// PayReferral tries routes in order and stops at the first that succeeds.
// It returns the name of the route that was paid, or an error joining every
// failure when none could be.
func (d *Distributor) PayReferral(ctx context.Context, amount uint64, routes ...Route) (string, error) {
	if amount == 0 {
		return "", nil
	}
	if len(routes) == 0 {
		return "", errors.New("no referral fee route")
	}

	var errs []error
	for _, route := range routes {
		err := route.Pay(ctx, amount)
		if err == nil {
			if len(errs) > 0 {
				d.logger.Warn("Referral fee paid through fallback route",
					zap.String("route", route.Name()),
					zap.Uint64("amount", amount),
					zap.Error(errors.Join(errs...)))
			}
			return route.Name(), nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", route.Name(), err))
	}
	return "", fmt.Errorf("failed to pay referral fee: %w", errors.Join(errs...))
}
