// Package tree builds the off-chain Merkle tree of a reward collection from a
// claims file and stores it, with every claimant's proof, as a JSON tree file.
package tree

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
	"github.com/rakurai-io/rakurai/programs/pkg/merkle"
	"github.com/rakurai-io/rakurai/programs/pkg/safemath"
)

var (
	ErrNoClaims          = errors.New("tree: no claims")
	ErrDuplicateClaimant = errors.New("tree: duplicate claimant")
	ErrZeroAmount        = errors.New("tree: claim amount is zero")
	ErrRootMismatch      = errors.New("tree: merkle root does not match nodes")
)

// Claim is one staker's entitlement.
type Claim struct {
	Claimant solana.PublicKey `json:"claimant"`
	Amount   uint64           `json:"amount"`
}

// Claims is the input of Build: the entitlements of one collection.
type Claims struct {
	VoteAccount solana.PublicKey `json:"vote_account"`
	Epoch       uint64           `json:"epoch"`
	Claims      []Claim          `json:"claims"`
}

type Node struct {
	Claimant solana.PublicKey
	Amount   uint64
	Proof    []merkle.Hash
}

// Tree is a built distribution tree. Nodes are ordered by claimant.
type Tree struct {
	VoteAccount   solana.PublicKey
	Epoch         uint64
	Root          merkle.Hash
	MaxTotalClaim uint64
	MaxNumNodes   uint64
	Nodes         []Node

	index map[solana.PublicKey]int
}

// Build validates claims and computes the tree, its caps and every proof.
func Build(claims Claims) (*Tree, error) {
	if len(claims.Claims) == 0 {
		return nil, ErrNoClaims
	}
	sorted := slices.Clone(claims.Claims)
	slices.SortFunc(sorted, func(a, b Claim) int {
		return bytes.Compare(a.Claimant[:], b.Claimant[:])
	})

	var total uint64
	leaves := make([]merkle.Hash, len(sorted))
	for i, c := range sorted {
		if i > 0 && sorted[i-1].Claimant.Equals(c.Claimant) {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateClaimant, c.Claimant)
		}
		if c.Amount == 0 {
			return nil, fmt.Errorf("%w: %s", ErrZeroAmount, c.Claimant)
		}
		var err error
		if total, err = safemath.Add(total, c.Amount); err != nil {
			return nil, fmt.Errorf("failed to sum claims: %w", err)
		}
		leaves[i] = merkle.Leaf(c.Claimant, c.Amount)
	}

	mt, err := merkle.NewTree(leaves)
	if err != nil {
		return nil, err
	}
	t := &Tree{
		VoteAccount:   claims.VoteAccount,
		Epoch:         claims.Epoch,
		Root:          mt.Root(),
		MaxTotalClaim: total,
		MaxNumNodes:   uint64(len(sorted)),
		Nodes:         make([]Node, len(sorted)),
	}
	for i, c := range sorted {
		proof, err := mt.Proof(i)
		if err != nil {
			return nil, err
		}
		t.Nodes[i] = Node{Claimant: c.Claimant, Amount: c.Amount, Proof: proof}
	}
	t.reindex()
	return t, nil
}

func (t *Tree) reindex() {
	t.index = make(map[solana.PublicKey]int, len(t.Nodes))
	for i, n := range t.Nodes {
		t.index[n.Claimant] = i
	}
}

// Node returns the node of claimant.
func (t *Tree) Node(claimant solana.PublicKey) (Node, bool) {
	i, ok := t.index[claimant]
	if !ok {
		return Node{}, false
	}
	return t.Nodes[i], true
}

// Verify checks that every node's proof leads to Root and that the caps
// match the nodes.
func (t *Tree) Verify() error {
	var total uint64
	for _, n := range t.Nodes {
		if !merkle.Verify(n.Proof, t.Root, merkle.Leaf(n.Claimant, n.Amount)) {
			return fmt.Errorf("%w: proof of %s", ErrRootMismatch, n.Claimant)
		}
		var err error
		if total, err = safemath.Add(total, n.Amount); err != nil {
			return fmt.Errorf("failed to sum claims: %w", err)
		}
	}
	if total != t.MaxTotalClaim || uint64(len(t.Nodes)) != t.MaxNumNodes {
		return fmt.Errorf("%w: caps %d/%d, nodes sum to %d/%d", ErrRootMismatch, t.MaxTotalClaim, t.MaxNumNodes, total, len(t.Nodes))
	}
	return nil
}

type fileJSON struct {
	VoteAccount   solana.PublicKey `json:"vote_account"`
	Epoch         uint64           `json:"epoch"`
	MerkleRoot    string           `json:"merkle_root"`
	MaxTotalClaim uint64           `json:"max_total_claim"`
	MaxNumNodes   uint64           `json:"max_num_nodes"`
	Nodes         []nodeJSON       `json:"nodes"`
}

type nodeJSON struct {
	Claimant solana.PublicKey `json:"claimant"`
	Amount   uint64           `json:"amount"`
	Proof    []string         `json:"proof"`
}

func (t *Tree) MarshalJSON() ([]byte, error) {
	f := fileJSON{
		VoteAccount:   t.VoteAccount,
		Epoch:         t.Epoch,
		MerkleRoot:    EncodeHash(t.Root),
		MaxTotalClaim: t.MaxTotalClaim,
		MaxNumNodes:   t.MaxNumNodes,
		Nodes:         make([]nodeJSON, len(t.Nodes)),
	}
	for i, n := range t.Nodes {
		f.Nodes[i] = nodeJSON{Claimant: n.Claimant, Amount: n.Amount, Proof: EncodeProof(n.Proof)}
	}
	return json.Marshal(f)
}

func (t *Tree) UnmarshalJSON(data []byte) error {
	var f fileJSON
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	root, err := DecodeHash(f.MerkleRoot)
	if err != nil {
		return fmt.Errorf("invalid merkle root: %w", err)
	}
	nodes := make([]Node, len(f.Nodes))
	for i, n := range f.Nodes {
		proof := make([]merkle.Hash, len(n.Proof))
		for j, s := range n.Proof {
			if proof[j], err = DecodeHash(s); err != nil {
				return fmt.Errorf("invalid proof of %s: %w", n.Claimant, err)
			}
		}
		nodes[i] = Node{Claimant: n.Claimant, Amount: n.Amount, Proof: proof}
	}
	*t = Tree{
		VoteAccount:   f.VoteAccount,
		Epoch:         f.Epoch,
		Root:          root,
		MaxTotalClaim: f.MaxTotalClaim,
		MaxNumNodes:   f.MaxNumNodes,
		Nodes:         nodes,
	}
	t.reindex()
	return nil
}

// Read decodes and verifies a tree file.
func Read(r io.Reader) (*Tree, error) {
	var t Tree
	if err := json.NewDecoder(r).Decode(&t); err != nil {
		return nil, fmt.Errorf("failed to decode tree file: %w", err)
	}
	if err := t.Verify(); err != nil {
		return nil, err
	}
	return &t, nil
}

func (t *Tree) Write(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(t)
}

// Load reads and verifies the tree file at path.
func Load(path string) (*Tree, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open tree file: %w", err)
	}
	defer f.Close()
	return Read(f)
}

func (t *Tree) Save(path string) error {
	var buf bytes.Buffer
	if err := t.Write(&buf); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write tree file: %w", err)
	}
	return nil
}

// ReadClaims decodes a claims file.
func ReadClaims(r io.Reader) (Claims, error) {
	var c Claims
	if err := json.NewDecoder(r).Decode(&c); err != nil {
		return Claims{}, fmt.Errorf("failed to decode claims file: %w", err)
	}
	return c, nil
}

func LoadClaims(path string) (Claims, error) {
	f, err := os.Open(path)
	if err != nil {
		return Claims{}, fmt.Errorf("failed to open claims file: %w", err)
	}
	defer f.Close()
	return ReadClaims(f)
}

func EncodeHash(h merkle.Hash) string {
	return base58.Encode(h[:])
}

func DecodeHash(s string) (merkle.Hash, error) {
	var h merkle.Hash
	b, err := base58.Decode(s)
	if err != nil {
		return h, err
	}
	if len(b) != merkle.HashLength {
		return h, fmt.Errorf("hash must be %d bytes, got %d", merkle.HashLength, len(b))
	}
	copy(h[:], b)
	return h, nil
}

func EncodeProof(proof []merkle.Hash) []string {
	out := make([]string, len(proof))
	for i, h := range proof {
		out[i] = EncodeHash(h)
	}
	return out
}
