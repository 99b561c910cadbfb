// internal/types/types.go
package types

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"reflect"

	bin "github.com/gagliardetto/binary"
)

// Discriminator prefixes every stored record and identifies its type.
type Discriminator [8]byte

// Account is a record persisted under a solana.PublicKey address.
type Account interface {
	Discriminator() Discriminator
}

func discriminator(name string) Discriminator {
	var d Discriminator
	sum := sha256.Sum256([]byte("account:" + name))
	copy(d[:], sum[:8])
	return d
}

// Encode serializes a record: discriminator followed by its Borsh body.
func Encode(a Account) ([]byte, error) {
	buf := new(bytes.Buffer)
	d := a.Discriminator()
	buf.Write(d[:])
	if err := bin.NewBorshEncoder(buf).Encode(reflect.Indirect(reflect.ValueOf(a)).Interface()); err != nil {
		return nil, fmt.Errorf("failed to encode %T: %w", a, err)
	}
	return buf.Bytes(), nil
}

// Decode fills a (a pointer) from data produced by Encode.
func Decode(data []byte, a Account) error {
	want := a.Discriminator()
	if len(data) < len(want) || !bytes.Equal(data[:len(want)], want[:]) {
		return fmt.Errorf("%w: %T", ErrAccountDiscriminator, a)
	}
	if err := bin.NewBorshDecoder(data[len(want):]).Decode(a); err != nil {
		return fmt.Errorf("failed to decode %T: %w", a, err)
	}
	return nil
}
