// Package vote reads the node identity recorded in a validator's vote account.
package vote

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/rakurai-io/rakurai/programs/pkg/ledger"
)

// nodePubkeyOffset skips the u32 version tag of VoteStateVersions.
const nodePubkeyOffset = 4

var (
	ErrNotVoteAccount = errors.New("vote: account is not owned by the vote program")
	ErrInvalidData    = errors.New("vote: account data too short")
)

// IdentityOracle resolves a vote account to the validator identity that
// controls it.
type IdentityOracle interface {
	NodeIdentity(voteAccount solana.PublicKey) (solana.PublicKey, error)
}

// NodeIdentityFromData decodes the node pubkey from raw vote account data.
func NodeIdentityFromData(data []byte) (solana.PublicKey, error) {
	if len(data) < nodePubkeyOffset+solana.PublicKeyLength {
		return solana.PublicKey{}, ErrInvalidData
	}
	return solana.PublicKeyFromBytes(data[nodePubkeyOffset : nodePubkeyOffset+solana.PublicKeyLength]), nil
}

// AccountReader is the part of a ledger transaction the oracle needs.
type AccountReader interface {
	Account(key solana.PublicKey) (*ledger.Account, error)
}

// LedgerOracle reads vote accounts through a ledger transaction.
type LedgerOracle struct {
	Accounts AccountReader
}

func (o LedgerOracle) NodeIdentity(voteAccount solana.PublicKey) (solana.PublicKey, error) {
	acc, err := o.Accounts.Account(voteAccount)
	if err != nil {
		return solana.PublicKey{}, err
	}
	if !acc.Owner.Equals(solana.VoteProgramID) {
		return solana.PublicKey{}, fmt.Errorf("%w: %s", ErrNotVoteAccount, voteAccount)
	}
	return NodeIdentityFromData(acc.Data)
}

// voteAccountSpace is the size of a current vote account.
const voteAccountSpace = 3762

// EncodeVoteAccountData builds vote account data naming nodeIdentity and
// withdrawer. Only the fields the programs read are populated.
func EncodeVoteAccountData(nodeIdentity, withdrawer solana.PublicKey) []byte {
	data := make([]byte, voteAccountSpace)
	binary.LittleEndian.PutUint32(data, 2)
	copy(data[nodePubkeyOffset:], nodeIdentity[:])
	copy(data[nodePubkeyOffset+solana.PublicKeyLength:], withdrawer[:])
	return data
}
