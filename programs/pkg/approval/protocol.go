package approval

import (
	"fmt"

	"github.com/rakurai-io/rakurai/programs/pkg/state"
)

// Party is one side of the two-party consent protocol.
type Party uint8

const (
	PartyValidator Party = iota
	PartyBlockBuilder
)

func (p Party) String() string {
	switch p {
	case PartyValidator:
		return "validator"
	case PartyBlockBuilder:
		return "block-builder"
	default:
		return fmt.Sprintf("party(%d)", uint8(p))
	}
}

func (p Party) other() Party {
	if p == PartyValidator {
		return PartyBlockBuilder
	}
	return PartyValidator
}

type Phase uint8

const (
	PhaseDisabled Phase = iota
	PhasePending
	PhaseEnabled
)

func (p Phase) String() string {
	switch p {
	case PhaseDisabled:
		return "disabled"
	case PhasePending:
		return "pending"
	case PhaseEnabled:
		return "enabled"
	default:
		return fmt.Sprintf("phase(%d)", uint8(p))
	}
}

// State is the protocol view of an approval account. ProposedBy is only
// meaningful while Pending.
type State struct {
	Phase      Phase
	ProposedBy Party
	Hash       *state.Hash
}

const (
	MsgRevoked           = "Permission Revoked"
	MsgPending           = "Proposal Pending"
	MsgProposedByBuilder = "Proposal initiated by block builder."
	MsgAccepted          = "Proposal Accepted | Approval granted"
	MsgHashUpdated       = "Hash updated by block builder."
	MsgAlreadyEnabled    = "Already enabled"
)

type Transition struct {
	State   State
	Message string
	Changed bool
}

// Next applies one update_approval call by caller to s. Either party can
// revoke at any time; enabling takes a proposal by one party and acceptance by
// the other. In the activation variant the block builder must supply a hash
// whenever it proposes or accepts, and may replace it while enabled.
func Next(s State, caller Party, grant bool, hash *state.Hash, v Variant) (Transition, error) {
	needsHash := v == Activation && caller == PartyBlockBuilder
	if v != Activation {
		hash = nil
	}

	switch {
	case !grant:
		return Transition{State: State{Phase: PhaseDisabled}, Message: MsgRevoked, Changed: s.Phase != PhaseDisabled || s.Hash != nil}, nil

	case s.Phase == PhaseEnabled:
		if needsHash && hash != nil {
			return Transition{State: State{Phase: PhaseEnabled, Hash: hash}, Message: MsgHashUpdated, Changed: true}, nil
		}
		return Transition{State: s, Message: MsgAlreadyEnabled}, nil

	case s.Phase == PhaseDisabled:
		if needsHash {
			if hash == nil {
				return Transition{}, ErrMissingHashForEnable
			}
			return Transition{State: State{Phase: PhasePending, ProposedBy: caller, Hash: hash}, Message: MsgProposedByBuilder, Changed: true}, nil
		}
		return Transition{State: State{Phase: PhasePending, ProposedBy: caller, Hash: s.Hash}, Message: MsgPending, Changed: true}, nil

	case s.Phase == PhasePending && s.ProposedBy == caller:
		return Transition{State: s, Message: MsgPending}, nil

	case s.Phase == PhasePending && s.ProposedBy == caller.other():
		next := State{Phase: PhaseEnabled, Hash: s.Hash}
		if needsHash {
			if hash == nil {
				return Transition{}, ErrMissingHashForEnable
			}
			next.Hash = hash
		}
		return Transition{State: next, Message: MsgAccepted, Changed: true}, nil

	default:
		return Transition{}, fmt.Errorf("%w: unknown approval state %s", ErrAccountValidationFailure, s.Phase)
	}
}
