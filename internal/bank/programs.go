// internal/bank/programs.go
package bank

import (
	"context"
	"sync"

	"github.com/gagliardetto/solana-go"

	"github.com/rovshanmuradov/tokenmill/internal/authority"
	"github.com/rovshanmuradov/tokenmill/internal/host"
)

// Invocation is one recorded call into a Recorder.
type Invocation struct {
	Program  solana.PublicKey
	Signer   solana.PublicKey
	Data     []byte
	Accounts []solana.PublicKey
}

// Recorder is a venue program that accepts every call and remembers it.
// An optional Handler runs first and may move funds through the host.
type Recorder struct {
	mu      sync.Mutex
	calls   []Invocation
	Handler ProgramFunc
}

func (r *Recorder) Execute(ctx context.Context, h host.Host, ix solana.Instruction, signer authority.Signer) error {
	if r.Handler != nil {
		if err := r.Handler(ctx, h, ix, signer); err != nil {
			return err
		}
	}

	data, err := ix.Data()
	if err != nil {
		return err
	}
	inv := Invocation{
		Program: ix.ProgramID(),
		Signer:  signer.PublicKey(),
		Data:    append([]byte(nil), data...),
	}
	for _, meta := range ix.Accounts() {
		inv.Accounts = append(inv.Accounts, meta.PublicKey)
	}

	r.mu.Lock()
	r.calls = append(r.calls, inv)
	r.mu.Unlock()
	return nil
}

// Calls returns a copy of every recorded invocation.
func (r *Recorder) Calls() []Invocation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Invocation(nil), r.calls...)
}
