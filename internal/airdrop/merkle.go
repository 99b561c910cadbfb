// internal/airdrop/merkle.go
package airdrop

import (
	"encoding/binary"
	"errors"

	"github.com/gagliardetto/solana-go"
	"golang.org/x/crypto/sha3"
)

// Hash is a keccak-256 digest.
type Hash = [32]byte

func keccak(parts ...[]byte) Hash {
	h := sha3.NewLegacyKeccak256()
	for _, p := range parts {
		h.Write(p)
	}
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

// Leaf encodes one allocation: claimant followed by the little-endian amount.
func Leaf(claimant solana.PublicKey, amount uint64) []byte {
	out := make([]byte, 0, 40)
	out = append(out, claimant.Bytes()...)
	return binary.LittleEndian.AppendUint64(out, amount)
}

// VerifyProof hashes leaf up to the root. The bit of index at each level
// decides whether the running hash is the left or right child.
func VerifyProof(leaf []byte, proof []Hash, root Hash, index uint64) bool {
	computed := keccak(leaf)
	idx := index
	for _, p := range proof {
		if idx&1 == 0 {
			computed = keccak(computed[:], p[:])
		} else {
			computed = keccak(p[:], computed[:])
		}
		idx >>= 1
	}
	return computed == root
}

// Tree is a merkle tree over encoded leaves. An odd node at any level is
// paired with itself.
type Tree struct {
	levels [][]Hash
}

var ErrEmptyTree = errors.New("merkle tree needs at least one leaf")

func NewTree(leaves [][]byte) (*Tree, error) {
	if len(leaves) == 0 {
		return nil, ErrEmptyTree
	}
	level := make([]Hash, len(leaves))
	for i, l := range leaves {
		level[i] = keccak(l)
	}

	t := &Tree{levels: [][]Hash{level}}
	for len(level) > 1 {
		next := make([]Hash, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			right := level[i]
			if i+1 < len(level) {
				right = level[i+1]
			}
			next = append(next, keccak(level[i][:], right[:]))
		}
		t.levels = append(t.levels, next)
		level = next
	}
	return t, nil
}

func (t *Tree) Root() Hash {
	return t.levels[len(t.levels)-1][0]
}

// Proof returns the sibling path for leaf index.
func (t *Tree) Proof(index uint64) []Hash {
	var proof []Hash
	idx := index
	for _, level := range t.levels[:len(t.levels)-1] {
		sibling := idx ^ 1
		if sibling >= uint64(len(level)) {
			sibling = idx
		}
		proof = append(proof, level[sibling])
		idx >>= 1
	}
	return proof
}
