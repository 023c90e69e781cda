package approval

import (
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/rakurai-io/rakurai/programs/pkg/state"
)

const (
	ixInitializeConfig = "initialize"
	ixUpdateConfig     = "update_config"
)

type InitializeConfigAccounts struct {
	Config      solana.PublicKey
	Initializer solana.PublicKey
}

type InitializeConfigArgs struct {
	Authority                     solana.PublicKey
	BlockBuilderAuthority         solana.PublicKey
	BlockBuilderCommissionAccount solana.PublicKey
	BlockBuilderCommissionBps     uint16
	Bump                          uint8
}

func (a *InitializeConfigArgs) MarshalWithEncoder(encoder *bin.Encoder) error {
	for _, pk := range []solana.PublicKey{a.Authority, a.BlockBuilderAuthority, a.BlockBuilderCommissionAccount} {
		if err := state.WritePubkey(encoder, pk); err != nil {
			return err
		}
	}
	if err := encoder.WriteUint16(a.BlockBuilderCommissionBps, bin.LE); err != nil {
		return err
	}
	return encoder.WriteByte(a.Bump)
}

func (a *InitializeConfigArgs) UnmarshalWithDecoder(decoder *bin.Decoder) (err error) {
	for _, pk := range []*solana.PublicKey{&a.Authority, &a.BlockBuilderAuthority, &a.BlockBuilderCommissionAccount} {
		if *pk, err = state.ReadPubkey(decoder); err != nil {
			return err
		}
	}
	if a.BlockBuilderCommissionBps, err = decoder.ReadUint16(bin.LE); err != nil {
		return err
	}
	a.Bump, err = decoder.ReadByte()
	return err
}

type UpdateConfigAccounts struct {
	Config    solana.PublicKey
	Authority solana.PublicKey
}

// UpdateConfigArgs carries the replacement config. Its bump is ignored.
type UpdateConfigArgs struct {
	NewConfig state.ApprovalConfig
}

func (a *UpdateConfigArgs) MarshalWithEncoder(encoder *bin.Encoder) error {
	return a.NewConfig.MarshalWithEncoder(encoder)
}

func (a *UpdateConfigArgs) UnmarshalWithDecoder(decoder *bin.Decoder) error {
	return a.NewConfig.UnmarshalWithDecoder(decoder)
}

type InitializeAccounts struct {
	Config      solana.PublicKey
	Account     solana.PublicKey
	VoteAccount solana.PublicKey
	Identity    solana.PublicKey
	Signer      solana.PublicKey
}

type InitializeArgs struct {
	ValidatorCommissionBps uint16
	Bump                   uint8
}

func (a *InitializeArgs) MarshalWithEncoder(encoder *bin.Encoder) error {
	if err := encoder.WriteUint16(a.ValidatorCommissionBps, bin.LE); err != nil {
		return err
	}
	return encoder.WriteByte(a.Bump)
}

func (a *InitializeArgs) UnmarshalWithDecoder(decoder *bin.Decoder) (err error) {
	if a.ValidatorCommissionBps, err = decoder.ReadUint16(bin.LE); err != nil {
		return err
	}
	a.Bump, err = decoder.ReadByte()
	return err
}

// ValidatorAccounts are the accounts of every instruction that acts on an
// existing approval account.
type ValidatorAccounts struct {
	Config   solana.PublicKey
	Account  solana.PublicKey
	Identity solana.PublicKey
	Signer   solana.PublicKey
}

// NewValidatorAccounts derives the config and approval account addresses for
// the validator identity.
func NewValidatorAccounts(v Variant, programID, identity, signer solana.PublicKey) (ValidatorAccounts, error) {
	cfg, _, err := v.DeriveConfig(programID)
	if err != nil {
		return ValidatorAccounts{}, err
	}
	acc, _, err := v.DeriveAccount(programID, identity)
	if err != nil {
		return ValidatorAccounts{}, err
	}
	return ValidatorAccounts{Config: cfg, Account: acc, Identity: identity, Signer: signer}, nil
}

// UpdateApprovalArgs grants or revokes approval. Hash is only encoded for the
// activation variant.
type UpdateApprovalArgs struct {
	Grant bool
	Hash  *state.Hash
}

type UpdateCommissionArgs struct {
	ValidatorCommissionBps *uint16
}

// Instructions builds instructions for one deployed approval program.
type Instructions struct {
	Variant   Variant
	ProgramID solana.PublicKey
}

func (b Instructions) build(name string, args state.Body, metas solana.AccountMetaSlice) (solana.Instruction, error) {
	data, err := state.EncodeInstruction(name, args)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", name, err)
	}
	return solana.NewInstruction(b.ProgramID, metas, data), nil
}

func (b Instructions) InitializeConfig(accounts InitializeConfigAccounts, args InitializeConfigArgs) (solana.Instruction, error) {
	return b.build(ixInitializeConfig, &args, solana.AccountMetaSlice{
		solana.NewAccountMeta(accounts.Config, true, false),
		solana.NewAccountMeta(solana.SystemProgramID, false, false),
		solana.NewAccountMeta(accounts.Initializer, true, true),
	})
}

func (b Instructions) UpdateConfig(accounts UpdateConfigAccounts, args UpdateConfigArgs) (solana.Instruction, error) {
	return b.build(ixUpdateConfig, &args, solana.AccountMetaSlice{
		solana.NewAccountMeta(accounts.Config, true, false),
		solana.NewAccountMeta(accounts.Authority, true, true),
	})
}

func (b Instructions) Initialize(accounts InitializeAccounts, args InitializeArgs) (solana.Instruction, error) {
	return b.build(b.Variant.spec().ixInitAccount, &args, solana.AccountMetaSlice{
		solana.NewAccountMeta(accounts.Config, false, false),
		solana.NewAccountMeta(accounts.Account, true, false),
		solana.NewAccountMeta(accounts.VoteAccount, false, false),
		solana.NewAccountMeta(accounts.Identity, false, false),
		solana.NewAccountMeta(accounts.Signer, true, true),
		solana.NewAccountMeta(solana.SystemProgramID, false, false),
	})
}

func (b Instructions) validatorMetas(accounts ValidatorAccounts) solana.AccountMetaSlice {
	return solana.AccountMetaSlice{
		solana.NewAccountMeta(accounts.Config, false, false),
		solana.NewAccountMeta(accounts.Account, true, false),
		solana.NewAccountMeta(accounts.Identity, true, false),
		solana.NewAccountMeta(accounts.Signer, true, true),
	}
}

func (b Instructions) UpdateApproval(accounts ValidatorAccounts, args UpdateApprovalArgs) (solana.Instruction, error) {
	return b.build(b.Variant.spec().ixUpdateApproval, approvalArgs{variant: b.Variant, args: &args}, b.validatorMetas(accounts))
}

func (b Instructions) UpdateCommission(accounts ValidatorAccounts, args UpdateCommissionArgs) (solana.Instruction, error) {
	if b.Variant == Activation && args.ValidatorCommissionBps == nil {
		return nil, fmt.Errorf("%s requires a commission value", b.Variant.spec().ixUpdateCommission)
	}
	return b.build(b.Variant.spec().ixUpdateCommission, commissionArgs{variant: b.Variant, args: &args}, b.validatorMetas(accounts))
}

func (b Instructions) Close(accounts ValidatorAccounts) (solana.Instruction, error) {
	return b.build(b.Variant.spec().ixCloseAccount, state.NoArgs{}, b.validatorMetas(accounts))
}

// approvalArgs encodes update_approval arguments. The multisig program takes
// only the grant flag; the activation program adds Option<[u8; 64]>.
type approvalArgs struct {
	variant Variant
	args    *UpdateApprovalArgs
}

func (a approvalArgs) MarshalWithEncoder(encoder *bin.Encoder) error {
	if err := state.WriteBool(encoder, a.args.Grant); err != nil {
		return err
	}
	if a.variant == Activation {
		return state.WriteOptionHash(encoder, a.args.Hash)
	}
	return nil
}

func (a approvalArgs) UnmarshalWithDecoder(decoder *bin.Decoder) (err error) {
	if a.args.Grant, err = state.ReadBool(decoder); err != nil {
		return err
	}
	a.args.Hash = nil
	if a.variant == Activation {
		a.args.Hash, err = state.ReadOptionHash(decoder)
	}
	return err
}

// commissionArgs encodes update_commission arguments: Option<u16> for
// multisig, u16 for activation.
type commissionArgs struct {
	variant Variant
	args    *UpdateCommissionArgs
}

func (a commissionArgs) MarshalWithEncoder(encoder *bin.Encoder) error {
	if a.variant == Activation {
		return encoder.WriteUint16(*a.args.ValidatorCommissionBps, bin.LE)
	}
	return state.WriteOptionUint16(encoder, a.args.ValidatorCommissionBps)
}

func (a commissionArgs) UnmarshalWithDecoder(decoder *bin.Decoder) (err error) {
	if a.variant == Activation {
		v, err := decoder.ReadUint16(bin.LE)
		if err != nil {
			return err
		}
		a.args.ValidatorCommissionBps = &v
		return nil
	}
	a.args.ValidatorCommissionBps, err = state.ReadOptionUint16(decoder)
	return err
}
