package distribution

import (
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/rakurai-io/rakurai/programs/pkg/merkle"
	"github.com/rakurai-io/rakurai/programs/pkg/state"
)

const (
	ixInitializeConfig      = "initialize"
	ixUpdateConfig          = "update_config"
	ixInitializeCollection  = "initialize_reward_collection_account"
	ixUploadMerkleRoot      = "upload_merkle_root"
	ixTransferStakerRewards = "transfer_staker_rewards"
	ixCloseClaimStatus      = "close_claim_status"
	ixCloseCollection       = "close_reward_collection_account"
	ixClaim                 = "claim"
)

// maxProofLength bounds decoded proofs; a tree this deep has 2^64 leaves.
const maxProofLength = 64

type InitializeConfigAccounts struct {
	Config      solana.PublicKey
	Initializer solana.PublicKey
}

type InitializeConfigArgs struct {
	Authority        solana.PublicKey
	NumEpochsValid   uint64
	MaxCommissionBps uint16
	Bump             uint8
}

func (a *InitializeConfigArgs) MarshalWithEncoder(encoder *bin.Encoder) error {
	if err := state.WritePubkey(encoder, a.Authority); err != nil {
		return err
	}
	if err := encoder.WriteUint64(a.NumEpochsValid, bin.LE); err != nil {
		return err
	}
	if err := encoder.WriteUint16(a.MaxCommissionBps, bin.LE); err != nil {
		return err
	}
	return encoder.WriteByte(a.Bump)
}

func (a *InitializeConfigArgs) UnmarshalWithDecoder(decoder *bin.Decoder) (err error) {
	if a.Authority, err = state.ReadPubkey(decoder); err != nil {
		return err
	}
	if a.NumEpochsValid, err = decoder.ReadUint64(bin.LE); err != nil {
		return err
	}
	if a.MaxCommissionBps, err = decoder.ReadUint16(bin.LE); err != nil {
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
	NewConfig state.DistributionConfig
}

func (a *UpdateConfigArgs) MarshalWithEncoder(encoder *bin.Encoder) error {
	return a.NewConfig.MarshalWithEncoder(encoder)
}

func (a *UpdateConfigArgs) UnmarshalWithDecoder(decoder *bin.Decoder) error {
	return a.NewConfig.UnmarshalWithDecoder(decoder)
}

type InitializeCollectionAccounts struct {
	Config           solana.PublicKey
	RewardCollection solana.PublicKey
	VoteAccount      solana.PublicKey
	Signer           solana.PublicKey
}

type InitializeCollectionArgs struct {
	MerkleRootUploadAuthority solana.PublicKey
	ValidatorCommissionBps    uint16
	RakuraiCommissionAccount  solana.PublicKey
	RakuraiCommissionBps      uint16
	Bump                      uint8
}

func (a *InitializeCollectionArgs) MarshalWithEncoder(encoder *bin.Encoder) error {
	if err := state.WritePubkey(encoder, a.MerkleRootUploadAuthority); err != nil {
		return err
	}
	if err := encoder.WriteUint16(a.ValidatorCommissionBps, bin.LE); err != nil {
		return err
	}
	if err := state.WritePubkey(encoder, a.RakuraiCommissionAccount); err != nil {
		return err
	}
	if err := encoder.WriteUint16(a.RakuraiCommissionBps, bin.LE); err != nil {
		return err
	}
	return encoder.WriteByte(a.Bump)
}

func (a *InitializeCollectionArgs) UnmarshalWithDecoder(decoder *bin.Decoder) (err error) {
	if a.MerkleRootUploadAuthority, err = state.ReadPubkey(decoder); err != nil {
		return err
	}
	if a.ValidatorCommissionBps, err = decoder.ReadUint16(bin.LE); err != nil {
		return err
	}
	if a.RakuraiCommissionAccount, err = state.ReadPubkey(decoder); err != nil {
		return err
	}
	if a.RakuraiCommissionBps, err = decoder.ReadUint16(bin.LE); err != nil {
		return err
	}
	a.Bump, err = decoder.ReadByte()
	return err
}

type UploadMerkleRootAccounts struct {
	Config                    solana.PublicKey
	RewardCollection          solana.PublicKey
	MerkleRootUploadAuthority solana.PublicKey
}

type UploadMerkleRootArgs struct {
	Root          merkle.Hash
	MaxTotalClaim uint64
	MaxNumNodes   uint64
}

func (a *UploadMerkleRootArgs) MarshalWithEncoder(encoder *bin.Encoder) error {
	if err := encoder.WriteBytes(a.Root[:], false); err != nil {
		return err
	}
	if err := encoder.WriteUint64(a.MaxTotalClaim, bin.LE); err != nil {
		return err
	}
	return encoder.WriteUint64(a.MaxNumNodes, bin.LE)
}

func (a *UploadMerkleRootArgs) UnmarshalWithDecoder(decoder *bin.Decoder) (err error) {
	b, err := decoder.ReadBytes(merkle.HashLength)
	if err != nil {
		return err
	}
	copy(a.Root[:], b)
	if a.MaxTotalClaim, err = decoder.ReadUint64(bin.LE); err != nil {
		return err
	}
	a.MaxNumNodes, err = decoder.ReadUint64(bin.LE)
	return err
}

type TransferStakerRewardsAccounts struct {
	RakuraiCommissionAccount solana.PublicKey
	RewardCollection         solana.PublicKey
	Signer                   solana.PublicKey
}

type TransferStakerRewardsArgs struct {
	TotalRewards uint64
}

func (a *TransferStakerRewardsArgs) MarshalWithEncoder(encoder *bin.Encoder) error {
	return encoder.WriteUint64(a.TotalRewards, bin.LE)
}

func (a *TransferStakerRewardsArgs) UnmarshalWithDecoder(decoder *bin.Decoder) (err error) {
	a.TotalRewards, err = decoder.ReadUint64(bin.LE)
	return err
}

type CloseClaimStatusAccounts struct {
	Config           solana.PublicKey
	ClaimStatus      solana.PublicKey
	ClaimStatusPayer solana.PublicKey
}

type CloseCollectionAccounts struct {
	Config           solana.PublicKey
	Initializer      solana.PublicKey
	RewardCollection solana.PublicKey
	VoteAccount      solana.PublicKey
	Signer           solana.PublicKey
}

type CloseCollectionArgs struct {
	Epoch uint64
}

func (a *CloseCollectionArgs) MarshalWithEncoder(encoder *bin.Encoder) error {
	return encoder.WriteUint64(a.Epoch, bin.LE)
}

func (a *CloseCollectionArgs) UnmarshalWithDecoder(decoder *bin.Decoder) (err error) {
	a.Epoch, err = decoder.ReadUint64(bin.LE)
	return err
}

type ClaimAccounts struct {
	Config           solana.PublicKey
	RewardCollection solana.PublicKey
	ClaimStatus      solana.PublicKey
	Claimant         solana.PublicKey
	Payer            solana.PublicKey
}

type ClaimArgs struct {
	Bump   uint8
	Amount uint64
	Proof  []merkle.Hash
}

func (a *ClaimArgs) MarshalWithEncoder(encoder *bin.Encoder) error {
	if err := encoder.WriteByte(a.Bump); err != nil {
		return err
	}
	if err := encoder.WriteUint64(a.Amount, bin.LE); err != nil {
		return err
	}
	if err := encoder.WriteUint32(uint32(len(a.Proof)), bin.LE); err != nil {
		return err
	}
	for _, h := range a.Proof {
		if err := encoder.WriteBytes(h[:], false); err != nil {
			return err
		}
	}
	return nil
}

func (a *ClaimArgs) UnmarshalWithDecoder(decoder *bin.Decoder) (err error) {
	if a.Bump, err = decoder.ReadByte(); err != nil {
		return err
	}
	if a.Amount, err = decoder.ReadUint64(bin.LE); err != nil {
		return err
	}
	n, err := decoder.ReadUint32(bin.LE)
	if err != nil {
		return err
	}
	if n > maxProofLength {
		return fmt.Errorf("proof of %d nodes exceeds %d", n, maxProofLength)
	}
	a.Proof = make([]merkle.Hash, n)
	for i := range a.Proof {
		b, err := decoder.ReadBytes(merkle.HashLength)
		if err != nil {
			return err
		}
		copy(a.Proof[i][:], b)
	}
	return nil
}

// Instructions builds instructions for the distribution program.
type Instructions struct {
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

func (b Instructions) InitializeCollection(accounts InitializeCollectionAccounts, args InitializeCollectionArgs) (solana.Instruction, error) {
	return b.build(ixInitializeCollection, &args, solana.AccountMetaSlice{
		solana.NewAccountMeta(accounts.Config, false, false),
		solana.NewAccountMeta(accounts.RewardCollection, true, false),
		solana.NewAccountMeta(accounts.VoteAccount, false, false),
		solana.NewAccountMeta(accounts.Signer, true, true),
		solana.NewAccountMeta(solana.SystemProgramID, false, false),
	})
}

func (b Instructions) UploadMerkleRoot(accounts UploadMerkleRootAccounts, args UploadMerkleRootArgs) (solana.Instruction, error) {
	return b.build(ixUploadMerkleRoot, &args, solana.AccountMetaSlice{
		solana.NewAccountMeta(accounts.Config, false, false),
		solana.NewAccountMeta(accounts.RewardCollection, true, false),
		solana.NewAccountMeta(accounts.MerkleRootUploadAuthority, true, true),
	})
}

func (b Instructions) TransferStakerRewards(accounts TransferStakerRewardsAccounts, args TransferStakerRewardsArgs) (solana.Instruction, error) {
	return b.build(ixTransferStakerRewards, &args, solana.AccountMetaSlice{
		solana.NewAccountMeta(accounts.RakuraiCommissionAccount, true, false),
		solana.NewAccountMeta(accounts.RewardCollection, true, false),
		solana.NewAccountMeta(solana.SystemProgramID, false, false),
		solana.NewAccountMeta(accounts.Signer, true, true),
	})
}

func (b Instructions) CloseClaimStatus(accounts CloseClaimStatusAccounts) (solana.Instruction, error) {
	return b.build(ixCloseClaimStatus, state.NoArgs{}, solana.AccountMetaSlice{
		solana.NewAccountMeta(accounts.Config, false, false),
		solana.NewAccountMeta(accounts.ClaimStatus, true, false),
		solana.NewAccountMeta(accounts.ClaimStatusPayer, true, false),
	})
}

func (b Instructions) CloseCollection(accounts CloseCollectionAccounts, args CloseCollectionArgs) (solana.Instruction, error) {
	return b.build(ixCloseCollection, &args, solana.AccountMetaSlice{
		solana.NewAccountMeta(accounts.Config, false, false),
		solana.NewAccountMeta(accounts.Initializer, true, false),
		solana.NewAccountMeta(accounts.RewardCollection, true, false),
		solana.NewAccountMeta(accounts.VoteAccount, true, false),
		solana.NewAccountMeta(accounts.Signer, true, true),
	})
}

func (b Instructions) Claim(accounts ClaimAccounts, args ClaimArgs) (solana.Instruction, error) {
	return b.build(ixClaim, &args, solana.AccountMetaSlice{
		solana.NewAccountMeta(accounts.Config, false, false),
		solana.NewAccountMeta(accounts.RewardCollection, true, false),
		solana.NewAccountMeta(accounts.ClaimStatus, true, false),
		solana.NewAccountMeta(accounts.Claimant, true, false),
		solana.NewAccountMeta(accounts.Payer, true, true),
		solana.NewAccountMeta(solana.SystemProgramID, false, false),
	})
}
