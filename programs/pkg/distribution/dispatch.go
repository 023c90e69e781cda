package distribution

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/rakurai-io/rakurai/programs/pkg/programerr"
	"github.com/rakurai-io/rakurai/programs/pkg/state"
)

// Execute processes a built instruction addressed to this program.
func (p *Program) Execute(ix solana.Instruction) error {
	if !ix.ProgramID().Equals(p.cfg.ProgramID) {
		return fmt.Errorf("instruction for program %s sent to %s", ix.ProgramID(), p.cfg.ProgramID)
	}
	data, err := ix.Data()
	if err != nil {
		return err
	}
	return p.Process(ix.Accounts(), data)
}

// Process decodes raw instruction data and account metas and routes them to
// the matching operation.
func (p *Program) Process(metas []*solana.AccountMeta, data []byte) error {
	disc, decoder, err := state.SplitInstruction(data)
	if err != nil {
		return err
	}

	switch disc {
	case state.InstructionDiscriminator(ixInitializeConfig):
		var args InitializeConfigArgs
		if err := state.DecodeArgs(decoder, &args); err != nil {
			return err
		}
		keys, err := state.AccountKeys(metas, 3, 2)
		if err != nil {
			return err
		}
		return p.InitializeConfig(InitializeConfigAccounts{Config: keys[0], Initializer: keys[2]}, args)

	case state.InstructionDiscriminator(ixUpdateConfig):
		var args UpdateConfigArgs
		if err := state.DecodeArgs(decoder, &args); err != nil {
			return err
		}
		keys, err := state.AccountKeys(metas, 2, 1)
		if err != nil {
			return err
		}
		return p.UpdateConfig(UpdateConfigAccounts{Config: keys[0], Authority: keys[1]}, args)

	case state.InstructionDiscriminator(ixInitializeCollection):
		var args InitializeCollectionArgs
		if err := state.DecodeArgs(decoder, &args); err != nil {
			return err
		}
		keys, err := state.AccountKeys(metas, 4, 3)
		if err != nil {
			return err
		}
		return p.InitializeCollection(InitializeCollectionAccounts{
			Config:           keys[0],
			RewardCollection: keys[1],
			VoteAccount:      keys[2],
			Signer:           keys[3],
		}, args)

	case state.InstructionDiscriminator(ixUploadMerkleRoot):
		var args UploadMerkleRootArgs
		if err := state.DecodeArgs(decoder, &args); err != nil {
			return err
		}
		keys, err := state.AccountKeys(metas, 3, 2)
		if err != nil {
			return err
		}
		return p.UploadMerkleRoot(UploadMerkleRootAccounts{
			Config:                    keys[0],
			RewardCollection:          keys[1],
			MerkleRootUploadAuthority: keys[2],
		}, args)

	case state.InstructionDiscriminator(ixTransferStakerRewards):
		var args TransferStakerRewardsArgs
		if err := state.DecodeArgs(decoder, &args); err != nil {
			return err
		}
		keys, err := state.AccountKeys(metas, 4, 3)
		if err != nil {
			return err
		}
		_, err = p.TransferStakerRewards(TransferStakerRewardsAccounts{
			RakuraiCommissionAccount: keys[0],
			RewardCollection:         keys[1],
			Signer:                   keys[3],
		}, args)
		return err

	case state.InstructionDiscriminator(ixCloseClaimStatus):
		keys, err := state.AccountKeys(metas, 3)
		if err != nil {
			return err
		}
		return p.CloseClaimStatus(CloseClaimStatusAccounts{Config: keys[0], ClaimStatus: keys[1], ClaimStatusPayer: keys[2]})

	case state.InstructionDiscriminator(ixCloseCollection):
		var args CloseCollectionArgs
		if err := state.DecodeArgs(decoder, &args); err != nil {
			return err
		}
		keys, err := state.AccountKeys(metas, 5, 4)
		if err != nil {
			return err
		}
		_, err = p.CloseCollection(CloseCollectionAccounts{
			Config:           keys[0],
			Initializer:      keys[1],
			RewardCollection: keys[2],
			VoteAccount:      keys[3],
			Signer:           keys[4],
		}, args)
		return err

	case state.InstructionDiscriminator(ixClaim):
		var args ClaimArgs
		if err := state.DecodeArgs(decoder, &args); err != nil {
			return err
		}
		keys, err := state.AccountKeys(metas, 5, 4)
		if err != nil {
			return err
		}
		return p.Claim(ClaimAccounts{
			Config:           keys[0],
			RewardCollection: keys[1],
			ClaimStatus:      keys[2],
			Claimant:         keys[3],
			Payer:            keys[4],
		}, args)

	default:
		return programerr.ErrInstructionFallbackNotFound
	}
}
