package approval

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/rakurai-io/rakurai/programs/pkg/pda"
	"github.com/rakurai-io/rakurai/programs/pkg/state"
)

// Variant selects one of the two deployed approval programs. They share the
// consent protocol and differ in account layout, seeds and instruction names.
type Variant uint8

const (
	Multisig Variant = iota
	Activation
)

type variantSpec struct {
	name               string
	programID          solana.PublicKey
	configSeed         []byte
	accountSeed        []byte
	configDisc         state.Discriminator
	accountDisc        state.Discriminator
	accountSpace       int
	ixInitAccount      string
	ixUpdateApproval   string
	ixUpdateCommission string
	ixCloseAccount     string
}

var variants = map[Variant]variantSpec{
	Multisig: {
		name:               "multisig",
		programID:          pda.MultisigProgramID,
		configSeed:         pda.SeedMultisigConfig,
		accountSeed:        pda.SeedMultisigAccount,
		configDisc:         state.MultisigConfigDiscriminator,
		accountDisc:        state.MultisigAccountDiscriminator,
		accountSpace:       state.MultisigAccountSpace,
		ixInitAccount:      "initialize_multi_sig_account",
		ixUpdateApproval:   "update_multi_sig_approval",
		ixUpdateCommission: "update_multi_sig_commission",
		ixCloseAccount:     "close_multi_sig_account",
	},
	Activation: {
		name:               "activation",
		programID:          pda.ActivationProgramID,
		configSeed:         pda.SeedActivationConfig,
		accountSeed:        pda.SeedActivation,
		configDisc:         state.ActivationConfigDiscriminator,
		accountDisc:        state.ActivationAccountDiscriminator,
		accountSpace:       state.ActivationAccountSpace,
		ixInitAccount:      "initialize_rakurai_activation_account",
		ixUpdateApproval:   "update_rakurai_activation_approval",
		ixUpdateCommission: "update_rakurai_activation_commission",
		ixCloseAccount:     "close_rakurai_activation_account",
	},
}

func (v Variant) spec() variantSpec {
	s, ok := variants[v]
	if !ok {
		panic(fmt.Sprintf("approval: unknown variant %d", uint8(v)))
	}
	return s
}

func (v Variant) String() string {
	if s, ok := variants[v]; ok {
		return s.name
	}
	return fmt.Sprintf("variant(%d)", uint8(v))
}

// ParseVariant accepts "multisig" or "activation".
func ParseVariant(s string) (Variant, error) {
	for v, spec := range variants {
		if spec.name == s {
			return v, nil
		}
	}
	return 0, fmt.Errorf("unknown approval program %q", s)
}

// DefaultProgramID is the deployed program id of the variant.
func (v Variant) DefaultProgramID() solana.PublicKey {
	return v.spec().programID
}

func (v Variant) DeriveConfig(programID solana.PublicKey) (solana.PublicKey, uint8, error) {
	return pda.Find(programID, v.spec().configSeed)
}

func (v Variant) DeriveAccount(programID, validatorIdentity solana.PublicKey) (solana.PublicKey, uint8, error) {
	return pda.Find(programID, v.spec().accountSeed, validatorIdentity.Bytes())
}

// Account is the variant independent view of an approval account. Fields
// that a variant does not store are zero.
type Account struct {
	IsEnabled                 bool
	Proposer                  *solana.PublicKey
	ValidatorAuthority        solana.PublicKey
	ValidatorCommissionBps    uint16
	BlockBuilderCommissionBps uint16
	Bump                      uint8

	// Multisig only.
	ValidatorVoteAccount          solana.PublicKey
	BlockBuilderAuthority         solana.PublicKey
	BlockBuilderCommissionAccount solana.PublicKey

	// Activation only.
	Hash *state.Hash
}

func (v Variant) body(a *Account) state.Body {
	if v == Activation {
		return &state.ActivationAccount{
			IsEnabled:                 a.IsEnabled,
			Proposer:                  a.Proposer,
			ValidatorAuthority:        a.ValidatorAuthority,
			ValidatorCommissionBps:    a.ValidatorCommissionBps,
			BlockBuilderCommissionBps: a.BlockBuilderCommissionBps,
			Bump:                      a.Bump,
			Hash:                      a.Hash,
		}
	}
	return &state.MultisigAccount{
		IsEnabled:                     a.IsEnabled,
		Proposer:                      a.Proposer,
		ValidatorAuthority:            a.ValidatorAuthority,
		ValidatorCommissionBps:        a.ValidatorCommissionBps,
		ValidatorVoteAccount:          a.ValidatorVoteAccount,
		BlockBuilderAuthority:         a.BlockBuilderAuthority,
		BlockBuilderCommissionBps:     a.BlockBuilderCommissionBps,
		BlockBuilderCommissionAccount: a.BlockBuilderCommissionAccount,
		Bump:                          a.Bump,
	}
}

// Validate checks the stored invariants of the variant's layout.
func (v Variant) Validate(a *Account) error {
	var err error
	switch b := v.body(a).(type) {
	case *state.ActivationAccount:
		err = b.Validate()
	case *state.MultisigAccount:
		err = b.Validate()
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAccountValidationFailure, err)
	}
	return nil
}

func (v Variant) encodeAccount(dst []byte, a *Account) error {
	return state.EncodeInto(dst, v.spec().accountDisc, v.body(a))
}

// DecodeAccount decodes approval account data owned by owner.
func (v Variant) DecodeAccount(programID, owner solana.PublicKey, data []byte) (*Account, error) {
	if v == Activation {
		var b state.ActivationAccount
		if err := state.Decode(programID, owner, data, v.spec().accountDisc, &b); err != nil {
			return nil, err
		}
		return &Account{
			IsEnabled:                 b.IsEnabled,
			Proposer:                  b.Proposer,
			ValidatorAuthority:        b.ValidatorAuthority,
			ValidatorCommissionBps:    b.ValidatorCommissionBps,
			BlockBuilderCommissionBps: b.BlockBuilderCommissionBps,
			Bump:                      b.Bump,
			Hash:                      b.Hash,
		}, nil
	}
	var b state.MultisigAccount
	if err := state.Decode(programID, owner, data, v.spec().accountDisc, &b); err != nil {
		return nil, err
	}
	return &Account{
		IsEnabled:                     b.IsEnabled,
		Proposer:                      b.Proposer,
		ValidatorAuthority:            b.ValidatorAuthority,
		ValidatorCommissionBps:        b.ValidatorCommissionBps,
		ValidatorVoteAccount:          b.ValidatorVoteAccount,
		BlockBuilderAuthority:         b.BlockBuilderAuthority,
		BlockBuilderCommissionBps:     b.BlockBuilderCommissionBps,
		BlockBuilderCommissionAccount: b.BlockBuilderCommissionAccount,
		Bump:                          b.Bump,
	}, nil
}

// DecodeConfig decodes the variant's config account data owned by owner.
func (v Variant) DecodeConfig(programID, owner solana.PublicKey, data []byte) (*state.ApprovalConfig, error) {
	var cfg state.ApprovalConfig
	if err := state.Decode(programID, owner, data, v.spec().configDisc, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ConfigDiscriminator and AccountDiscriminator identify the variant's
// accounts, for filtering program account scans.
func (v Variant) ConfigDiscriminator() state.Discriminator {
	return v.spec().configDisc
}

func (v Variant) AccountDiscriminator() state.Discriminator {
	return v.spec().accountDisc
}

// blockBuilderAuthority is the key allowed to act for the block builder on a.
// Multisig accounts snapshot it at initialization; activation accounts defer
// to the live config.
func (v Variant) blockBuilderAuthority(cfg *state.ApprovalConfig, a *Account) solana.PublicKey {
	if v == Activation {
		return cfg.BlockBuilderAuthority
	}
	return a.BlockBuilderAuthority
}

// StateOf returns the protocol state of a.
func StateOf(a *Account) State {
	switch {
	case a.IsEnabled:
		return State{Phase: PhaseEnabled, Hash: a.Hash}
	case a.Proposer == nil:
		return State{Phase: PhaseDisabled, Hash: a.Hash}
	case a.Proposer.Equals(a.ValidatorAuthority):
		return State{Phase: PhasePending, ProposedBy: PartyValidator, Hash: a.Hash}
	default:
		return State{Phase: PhasePending, ProposedBy: PartyBlockBuilder, Hash: a.Hash}
	}
}
