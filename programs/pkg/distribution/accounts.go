package distribution

import (
	"github.com/gagliardetto/solana-go"
	"github.com/rakurai-io/rakurai/programs/pkg/pda"
	"github.com/rakurai-io/rakurai/programs/pkg/state"
)

func DecodeConfig(programID, owner solana.PublicKey, data []byte) (*state.DistributionConfig, error) {
	var cfg state.DistributionConfig
	if err := state.Decode(programID, owner, data, state.DistributionConfigDiscriminator, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func DecodeCollection(programID, owner solana.PublicKey, data []byte) (*state.RewardCollection, error) {
	var rc state.RewardCollection
	if err := state.Decode(programID, owner, data, state.RewardCollectionDiscriminator, &rc); err != nil {
		return nil, err
	}
	return &rc, nil
}

func DecodeClaimStatus(programID, owner solana.PublicKey, data []byte) (*state.ClaimStatus, error) {
	var cs state.ClaimStatus
	if err := state.Decode(programID, owner, data, state.ClaimStatusDiscriminator, &cs); err != nil {
		return nil, err
	}
	return &cs, nil
}

// ClaimAccountsFor derives the accounts of a claim by claimant against the
// collection of voteAccount created in epoch. It also returns the claim status
// bump.
func ClaimAccountsFor(programID, voteAccount solana.PublicKey, epoch uint64, claimant, payer solana.PublicKey) (ClaimAccounts, uint8, error) {
	cfg, _, err := pda.DeriveDistributionConfig(programID)
	if err != nil {
		return ClaimAccounts{}, 0, err
	}
	collection, _, err := pda.DeriveRewardCollection(programID, voteAccount, epoch)
	if err != nil {
		return ClaimAccounts{}, 0, err
	}
	status, bump, err := pda.DeriveClaimStatus(programID, claimant, collection)
	if err != nil {
		return ClaimAccounts{}, 0, err
	}
	return ClaimAccounts{
		Config:           cfg,
		RewardCollection: collection,
		ClaimStatus:      status,
		Claimant:         claimant,
		Payer:            payer,
	}, bump, nil
}
