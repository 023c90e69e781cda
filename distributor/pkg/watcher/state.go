package watcher

import "github.com/rakurai-io/rakurai/programs/pkg/state"

// CollectionState is where a reward collection is in its lifecycle at a
// given epoch.
type CollectionState string

const (
	// StateCollecting covers the creation epoch, when rewards are still
	// arriving and no root may be uploaded.
	StateCollecting   CollectionState = "collecting"
	StateAwaitingRoot CollectionState = "awaiting_root"
	StateClaimable    CollectionState = "claimable"
	// StateClosable means the collection has expired and can be closed.
	StateClosable CollectionState = "closable"
)

var allStates = []CollectionState{StateCollecting, StateAwaitingRoot, StateClaimable, StateClosable}

func StateOf(rc *state.RewardCollection, epoch uint64) CollectionState {
	switch {
	case epoch > rc.ExpiresAt:
		return StateClosable
	case rc.MerkleRoot != nil:
		return StateClaimable
	case epoch <= rc.CreationEpoch:
		return StateCollecting
	default:
		return StateAwaitingRoot
	}
}

// ClaimStatusClosable reports whether a claim status can be closed at epoch.
func ClaimStatusClosable(cs *state.ClaimStatus, epoch uint64) bool {
	return epoch > cs.ExpiresAt
}
