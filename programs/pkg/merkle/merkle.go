// Package merkle implements the sorted-pair SHA-256 Merkle scheme used to
// prove staker reward entitlements.
//
// Leaves are domain separated from intermediate nodes by a 0x00 prefix;
// intermediate nodes use 0x01 and order their children by byte value, so a
// proof is just the list of siblings from leaf to root.
package merkle

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

const HashLength = 32

type Hash [HashLength]byte

var ErrEmptyTree = errors.New("merkle: tree has no leaves")

// Leaf returns the node a claim of amount by claimant contributes to the tree.
func Leaf(claimant solana.PublicKey, amount uint64) Hash {
	var amt [8]byte
	binary.LittleEndian.PutUint64(amt[:], amount)
	inner := hashv(claimant[:], amt[:])
	return hashv([]byte{0}, inner[:])
}

func intermediate(a, b Hash) Hash {
	if bytes.Compare(a[:], b[:]) <= 0 {
		return hashv([]byte{1}, a[:], b[:])
	}
	return hashv([]byte{1}, b[:], a[:])
}

func hashv(parts ...[]byte) Hash {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
	}
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

// Verify reports whether proof connects leaf to root.
func Verify(proof []Hash, root, leaf Hash) bool {
	computed := leaf
	for _, sibling := range proof {
		computed = intermediate(computed, sibling)
	}
	return computed == root
}

// Tree is a complete Merkle tree over a fixed list of leaves. An odd node at
// any level is paired with itself.
type Tree struct {
	levels [][]Hash
}

func NewTree(leaves []Hash) (*Tree, error) {
	if len(leaves) == 0 {
		return nil, ErrEmptyTree
	}
	level := append([]Hash(nil), leaves...)
	levels := [][]Hash{level}
	for len(level) > 1 {
		next := make([]Hash, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			right := level[i]
			if i+1 < len(level) {
				right = level[i+1]
			}
			next = append(next, intermediate(level[i], right))
		}
		levels = append(levels, next)
		level = next
	}
	return &Tree{levels: levels}, nil
}

func (t *Tree) Root() Hash {
	return t.levels[len(t.levels)-1][0]
}

func (t *Tree) NumLeaves() int {
	return len(t.levels[0])
}

// Proof returns the siblings of leaf i from the bottom level up.
func (t *Tree) Proof(i int) ([]Hash, error) {
	if i < 0 || i >= t.NumLeaves() {
		return nil, fmt.Errorf("merkle: leaf index %d out of range [0, %d)", i, t.NumLeaves())
	}
	proof := make([]Hash, 0, len(t.levels)-1)
	for _, level := range t.levels[:len(t.levels)-1] {
		sibling := i ^ 1
		if sibling >= len(level) {
			sibling = i
		}
		proof = append(proof, level[sibling])
		i /= 2
	}
	return proof, nil
}
