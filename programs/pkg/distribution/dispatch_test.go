package distribution

import (
	"testing"

	"github.com/rakurai-io/rakurai/programs/pkg/merkle"
	"github.com/rakurai-io/rakurai/programs/pkg/programerr"
	"github.com/rakurai-io/rakurai/programs/pkg/state"
	"github.com/stretchr/testify/require"
)

func TestRakurai_Distribution_ExecuteInstructions(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	b := h.program.Instructions()
	key, bump := h.collectionKey(t, startEpoch)

	ix, err := b.InitializeCollection(InitializeCollectionAccounts{
		Config:           h.configKey(t),
		RewardCollection: key,
		VoteAccount:      h.voteAcct,
		Signer:           h.validator,
	}, InitializeCollectionArgs{
		MerkleRootUploadAuthority: h.uploader,
		ValidatorCommissionBps:    1000,
		RakuraiCommissionAccount:  h.commission,
		RakuraiCommissionBps:      1000,
		Bump:                      bump,
	})
	require.NoError(t, err)
	require.NoError(t, h.program.Execute(ix))

	ix, err = b.TransferStakerRewards(TransferStakerRewardsAccounts{
		RakuraiCommissionAccount: h.commission,
		RewardCollection:         key,
		Signer:                   h.validator,
	}, TransferStakerRewardsArgs{TotalRewards: 1_000_000})
	require.NoError(t, err)
	require.NoError(t, h.program.Execute(ix))

	h.clock.AdvanceEpochs(1)
	ix, err = b.UploadMerkleRoot(UploadMerkleRootAccounts{
		Config:                    h.configKey(t),
		RewardCollection:          key,
		MerkleRootUploadAuthority: h.uploader,
	}, UploadMerkleRootArgs{Root: h.tree.Root(), MaxTotalClaim: 810_000, MaxNumNodes: 3})
	require.NoError(t, err)
	require.NoError(t, h.program.Execute(ix))

	accounts, claimBump, err := ClaimAccountsFor(h.program.ProgramID(), h.voteAcct, startEpoch, h.stakers[1].key, h.payer)
	require.NoError(t, err)
	proof, err := h.tree.Proof(1)
	require.NoError(t, err)
	ix, err = b.Claim(accounts, ClaimArgs{Bump: claimBump, Amount: 500_000, Proof: proof})
	require.NoError(t, err)
	require.NoError(t, h.program.Execute(ix))
	require.Equal(t, uint64(500_000), h.ledger.Balance(h.stakers[1].key))

	h.clock.AdvanceEpochs(numEpochsValid)
	ix, err = b.CloseClaimStatus(CloseClaimStatusAccounts{Config: h.configKey(t), ClaimStatus: accounts.ClaimStatus, ClaimStatusPayer: h.payer})
	require.NoError(t, err)
	require.NoError(t, h.program.Execute(ix))

	ix, err = b.CloseCollection(CloseCollectionAccounts{
		Config:           h.configKey(t),
		Initializer:      h.validator,
		RewardCollection: key,
		VoteAccount:      h.voteAcct,
		Signer:           h.validator,
	}, CloseCollectionArgs{Epoch: startEpoch})
	require.NoError(t, err)
	require.NoError(t, h.program.Execute(ix))
	_, ok := h.ledger.Account(key)
	require.False(t, ok)
}

func TestRakurai_Distribution_Process(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	t.Run("unknown instruction", func(t *testing.T) {
		t.Parallel()
		disc := state.InstructionDiscriminator("update_multi_sig_approval")
		require.ErrorIs(t, h.program.Process(nil, disc[:]), programerr.ErrInstructionFallbackNotFound)
	})

	t.Run("oversized proof", func(t *testing.T) {
		t.Parallel()
		data, err := state.EncodeInstruction(ixClaim, &ClaimArgs{Amount: 1, Proof: make([]merkle.Hash, maxProofLength+1)})
		require.NoError(t, err)
		require.ErrorIs(t, h.program.Process(nil, data), programerr.ErrInstructionDidNotDeserialize)
	})

	t.Run("payer must sign", func(t *testing.T) {
		t.Parallel()
		accounts, bump, err := ClaimAccountsFor(h.program.ProgramID(), h.voteAcct, startEpoch, h.stakers[0].key, h.payer)
		require.NoError(t, err)
		ix, err := h.program.Instructions().Claim(accounts, ClaimArgs{Bump: bump, Amount: 1})
		require.NoError(t, err)
		data, err := ix.Data()
		require.NoError(t, err)
		metas := ix.Accounts()
		metas[4].IsSigner = false
		require.ErrorIs(t, h.program.Process(metas, data), programerr.ErrAccountNotSigner)
	})
}

func TestRakurai_Distribution_ClaimArgsRoundTrip(t *testing.T) {
	t.Parallel()

	proof := []merkle.Hash{{1}, {2}, {3}}
	data, err := state.EncodeInstruction(ixClaim, &ClaimArgs{Bump: 254, Amount: 42, Proof: proof})
	require.NoError(t, err)
	require.Len(t, data, state.DiscriminatorLength+1+8+4+3*merkle.HashLength)

	_, decoder, err := state.SplitInstruction(data)
	require.NoError(t, err)
	var got ClaimArgs
	require.NoError(t, state.DecodeArgs(decoder, &got))
	require.Equal(t, ClaimArgs{Bump: 254, Amount: 42, Proof: proof}, got)
}
