package approval

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
	spec := p.cfg.Variant.spec()

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

	case state.InstructionDiscriminator(spec.ixInitAccount):
		var args InitializeArgs
		if err := state.DecodeArgs(decoder, &args); err != nil {
			return err
		}
		keys, err := state.AccountKeys(metas, 5, 4)
		if err != nil {
			return err
		}
		return p.Initialize(InitializeAccounts{
			Config:      keys[0],
			Account:     keys[1],
			VoteAccount: keys[2],
			Identity:    keys[3],
			Signer:      keys[4],
		}, args)

	case state.InstructionDiscriminator(spec.ixUpdateApproval):
		var args UpdateApprovalArgs
		if err := state.DecodeArgs(decoder, approvalArgs{variant: p.cfg.Variant, args: &args}); err != nil {
			return err
		}
		accounts, err := validatorAccounts(metas)
		if err != nil {
			return err
		}
		_, err = p.UpdateApproval(accounts, args)
		return err

	case state.InstructionDiscriminator(spec.ixUpdateCommission):
		var args UpdateCommissionArgs
		if err := state.DecodeArgs(decoder, commissionArgs{variant: p.cfg.Variant, args: &args}); err != nil {
			return err
		}
		accounts, err := validatorAccounts(metas)
		if err != nil {
			return err
		}
		return p.UpdateCommission(accounts, args)

	case state.InstructionDiscriminator(spec.ixCloseAccount):
		accounts, err := validatorAccounts(metas)
		if err != nil {
			return err
		}
		_, err = p.Close(accounts)
		return err

	default:
		return programerr.ErrInstructionFallbackNotFound
	}
}

func validatorAccounts(metas []*solana.AccountMeta) (ValidatorAccounts, error) {
	keys, err := state.AccountKeys(metas, 4, 3)
	if err != nil {
		return ValidatorAccounts{}, err
	}
	return ValidatorAccounts{Config: keys[0], Account: keys[1], Identity: keys[2], Signer: keys[3]}, nil
}
