package distribution

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/rakurai-io/rakurai/programs/pkg/commission"
	"github.com/rakurai-io/rakurai/programs/pkg/events"
	"github.com/rakurai-io/rakurai/programs/pkg/ledger"
	"github.com/rakurai-io/rakurai/programs/pkg/merkle"
	"github.com/rakurai-io/rakurai/programs/pkg/pda"
	"github.com/rakurai-io/rakurai/programs/pkg/programerr"
	"github.com/rakurai-io/rakurai/programs/pkg/state"
	"github.com/rakurai-io/rakurai/programs/pkg/vote"
	rakuraitesting "github.com/rakurai-io/rakurai/utils/pkg/testing"
	"github.com/stretchr/testify/require"
)

const (
	startEpoch     = 100
	numEpochsValid = 3
)

func newKey(b byte) solana.PublicKey {
	var pk solana.PublicKey
	for i := range pk {
		pk[i] = b
	}
	return pk
}

type staker struct {
	key    solana.PublicKey
	amount uint64
}

type harness struct {
	ledger   *ledger.Ledger
	clock    *ledger.ManualClock
	program  *Program
	recorder *events.Recorder

	authority  solana.PublicKey
	validator  solana.PublicKey
	voteAcct   solana.PublicKey
	uploader   solana.PublicKey
	commission solana.PublicKey
	payer      solana.PublicKey

	stakers []staker
	tree    *merkle.Tree
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	clock := ledger.NewManualClock(startEpoch)
	l, err := ledger.New(ledger.Config{Logger: rakuraitesting.NewLogger(), Clock: clock})
	require.NoError(t, err)
	rec := &events.Recorder{}
	p, err := New(Config{Logger: rakuraitesting.NewLogger(), Ledger: l, Emitter: rec})
	require.NoError(t, err)

	h := &harness{
		ledger:     l,
		clock:      clock,
		program:    p,
		recorder:   rec,
		authority:  newKey(1),
		validator:  newKey(2),
		voteAcct:   newKey(3),
		uploader:   newKey(4),
		commission: newKey(5),
		payer:      newKey(6),
		stakers: []staker{
			{key: newKey(20), amount: 300_000},
			{key: newKey(21), amount: 500_000},
			{key: newKey(22), amount: 10_000},
		},
	}
	for _, k := range []solana.PublicKey{h.authority, h.validator, h.payer} {
		require.NoError(t, l.Airdrop(k, 10_000_000_000))
	}
	l.SetAccount(ledger.Account{
		Key:      h.voteAcct,
		Owner:    solana.VoteProgramID,
		Lamports: 1,
		Data:     vote.EncodeVoteAccountData(h.validator, h.validator),
	})

	leaves := make([]merkle.Hash, len(h.stakers))
	for i, s := range h.stakers {
		leaves[i] = merkle.Leaf(s.key, s.amount)
	}
	h.tree, err = merkle.NewTree(leaves)
	require.NoError(t, err)

	key, bump, err := pda.DeriveDistributionConfig(p.ProgramID())
	require.NoError(t, err)
	require.NoError(t, p.InitializeConfig(
		InitializeConfigAccounts{Config: key, Initializer: h.authority},
		InitializeConfigArgs{Authority: h.authority, NumEpochsValid: numEpochsValid, MaxCommissionBps: 5000, Bump: bump},
	))
	return h
}

func (h *harness) configKey(t *testing.T) solana.PublicKey {
	t.Helper()
	key, _, err := pda.DeriveDistributionConfig(h.program.ProgramID())
	require.NoError(t, err)
	return key
}

func (h *harness) collectionKey(t *testing.T, epoch uint64) (solana.PublicKey, uint8) {
	t.Helper()
	key, bump, err := pda.DeriveRewardCollection(h.program.ProgramID(), h.voteAcct, epoch)
	require.NoError(t, err)
	return key, bump
}

func (h *harness) initCollection(t *testing.T, validatorBps, rakuraiBps uint16) error {
	t.Helper()
	key, bump := h.collectionKey(t, h.clock.Now().Epoch)
	return h.program.InitializeCollection(
		InitializeCollectionAccounts{Config: h.configKey(t), RewardCollection: key, VoteAccount: h.voteAcct, Signer: h.validator},
		InitializeCollectionArgs{
			MerkleRootUploadAuthority: h.uploader,
			ValidatorCommissionBps:    validatorBps,
			RakuraiCommissionAccount:  h.commission,
			RakuraiCommissionBps:      rakuraiBps,
			Bump:                      bump,
		},
	)
}

func (h *harness) collection(t *testing.T) *state.RewardCollection {
	t.Helper()
	key, _ := h.collectionKey(t, startEpoch)
	acc, ok := h.ledger.Account(key)
	require.True(t, ok)
	rc, err := DecodeCollection(h.program.ProgramID(), acc.Owner, acc.Data)
	require.NoError(t, err)
	return rc
}

func (h *harness) fund(t *testing.T, total uint64) (commission.Split, error) {
	t.Helper()
	key, _ := h.collectionKey(t, startEpoch)
	return h.program.TransferStakerRewards(
		TransferStakerRewardsAccounts{RakuraiCommissionAccount: h.commission, RewardCollection: key, Signer: h.validator},
		TransferStakerRewardsArgs{TotalRewards: total},
	)
}

func (h *harness) upload(t *testing.T, root merkle.Hash, maxTotal, maxNodes uint64) error {
	t.Helper()
	key, _ := h.collectionKey(t, startEpoch)
	return h.program.UploadMerkleRoot(
		UploadMerkleRootAccounts{Config: h.configKey(t), RewardCollection: key, MerkleRootUploadAuthority: h.uploader},
		UploadMerkleRootArgs{Root: root, MaxTotalClaim: maxTotal, MaxNumNodes: maxNodes},
	)
}

func (h *harness) claim(t *testing.T, i int, amount uint64) error {
	t.Helper()
	accounts, bump, err := ClaimAccountsFor(h.program.ProgramID(), h.voteAcct, startEpoch, h.stakers[i].key, h.payer)
	require.NoError(t, err)
	proof, err := h.tree.Proof(i)
	require.NoError(t, err)
	return h.program.Claim(accounts, ClaimArgs{Bump: bump, Amount: amount, Proof: proof})
}

// ready initializes and funds a collection at startEpoch and uploads the tree
// root one epoch later.
func (h *harness) ready(t *testing.T) {
	t.Helper()
	require.NoError(t, h.initCollection(t, 1000, 1000))
	_, err := h.fund(t, 1_000_000)
	require.NoError(t, err)
	h.clock.AdvanceEpochs(1)
	require.NoError(t, h.upload(t, h.tree.Root(), 810_000, 3))
}

func TestRakurai_Distribution_InitializeConfig(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	key, bump, err := pda.DeriveDistributionConfig(h.program.ProgramID())
	require.NoError(t, err)
	acc, ok := h.ledger.Account(key)
	require.True(t, ok)
	cfg, err := DecodeConfig(h.program.ProgramID(), acc.Owner, acc.Data)
	require.NoError(t, err)
	require.Equal(t, state.DistributionConfig{Authority: h.authority, NumEpochsValid: numEpochsValid, MaxCommissionBps: 5000, Bump: bump}, *cfg)

	t.Run("epochs out of range", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		for _, n := range []uint64{0, state.MaxNumEpochsValid + 1} {
			// The config already exists; validation runs before the ledger is touched.
			err := h.program.InitializeConfig(
				InitializeConfigAccounts{Config: key, Initializer: h.authority},
				InitializeConfigArgs{Authority: h.authority, NumEpochsValid: n, MaxCommissionBps: 5000, Bump: bump},
			)
			require.ErrorIs(t, err, ErrAccountValidationFailure)
		}
	})

	t.Run("wrong bump", func(t *testing.T) {
		t.Parallel()
		err := h.program.InitializeConfig(
			InitializeConfigAccounts{Config: key, Initializer: h.authority},
			InitializeConfigArgs{Authority: h.authority, NumEpochsValid: 1, Bump: bump - 1},
		)
		require.ErrorIs(t, err, programerr.ErrConstraintSeeds)
	})
}

func TestRakurai_Distribution_UpdateConfig(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	next := state.DistributionConfig{Authority: newKey(9), NumEpochsValid: 5, MaxCommissionBps: 2000}

	err := h.program.UpdateConfig(UpdateConfigAccounts{Config: h.configKey(t), Authority: h.validator}, UpdateConfigArgs{NewConfig: next})
	require.ErrorIs(t, err, ErrUnauthorized)

	bad := next
	bad.NumEpochsValid = 11
	err = h.program.UpdateConfig(UpdateConfigAccounts{Config: h.configKey(t), Authority: h.authority}, UpdateConfigArgs{NewConfig: bad})
	require.ErrorIs(t, err, ErrAccountValidationFailure)

	require.NoError(t, h.program.UpdateConfig(UpdateConfigAccounts{Config: h.configKey(t), Authority: h.authority}, UpdateConfigArgs{NewConfig: next}))
	require.Equal(t, events.ConfigUpdated{Authority: h.authority}, h.recorder.Last())

	err = h.program.UpdateConfig(UpdateConfigAccounts{Config: newKey(99), Authority: newKey(9)}, UpdateConfigArgs{NewConfig: next})
	require.ErrorIs(t, err, programerr.ErrConstraintSeeds)
}

func TestRakurai_Distribution_InitializeCollection(t *testing.T) {
	t.Parallel()

	t.Run("commission caps", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		require.ErrorIs(t, h.initCollection(t, 5001, 0), ErrMaxCommissionFeeBpsExceeded)
		require.ErrorIs(t, h.initCollection(t, 0, 5001), ErrMaxCommissionFeeBpsExceeded)
		require.ErrorIs(t, h.initCollection(t, 3000, 3000), ErrMaxCommissionFeeBpsExceeded)
		require.NoError(t, h.initCollection(t, 2500, 2500))
	})

	t.Run("signer is not the node identity", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		key, bump := h.collectionKey(t, startEpoch)
		err := h.program.InitializeCollection(
			InitializeCollectionAccounts{Config: h.configKey(t), RewardCollection: key, VoteAccount: h.voteAcct, Signer: h.payer},
			InitializeCollectionArgs{MerkleRootUploadAuthority: h.uploader, RakuraiCommissionAccount: h.commission, Bump: bump},
		)
		require.ErrorIs(t, err, ErrUnauthorized)
	})

	t.Run("not a vote account", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		h.ledger.SetAccount(ledger.Account{Key: h.voteAcct, Owner: solana.SystemProgramID, Lamports: 1, Data: vote.EncodeVoteAccountData(h.validator, h.validator)})
		require.ErrorIs(t, h.initCollection(t, 1000, 1000), ErrUnauthorized)
	})

	t.Run("address of another epoch", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		key, bump := h.collectionKey(t, startEpoch-1)
		err := h.program.InitializeCollection(
			InitializeCollectionAccounts{Config: h.configKey(t), RewardCollection: key, VoteAccount: h.voteAcct, Signer: h.validator},
			InitializeCollectionArgs{MerkleRootUploadAuthority: h.uploader, RakuraiCommissionAccount: h.commission, Bump: bump},
		)
		require.ErrorIs(t, err, programerr.ErrConstraintSeeds)
	})

	t.Run("once per epoch", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		require.NoError(t, h.initCollection(t, 1000, 1000))
		require.ErrorIs(t, h.initCollection(t, 1000, 1000), ledger.ErrAccountAlreadyInUse)
		h.clock.AdvanceEpochs(1)
		require.NoError(t, h.initCollection(t, 1000, 1000))
	})

	t.Run("fields", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		require.NoError(t, h.initCollection(t, 800, 1200))
		key, bump := h.collectionKey(t, startEpoch)
		require.Equal(t, events.RewardCollectionInitialized{RewardCollection: key}, h.recorder.Last())
		require.Equal(t, &state.RewardCollection{
			ValidatorVoteAccount:      h.voteAcct,
			MerkleRootUploadAuthority: h.uploader,
			CreationEpoch:             startEpoch,
			ValidatorCommissionBps:    800,
			RakuraiCommissionBps:      1200,
			RakuraiCommissionAccount:  h.commission,
			ExpiresAt:                 startEpoch + numEpochsValid,
			Initializer:               h.validator,
			Bump:                      bump,
		}, h.collection(t))
	})
}

func TestRakurai_Distribution_TransferStakerRewards(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	require.NoError(t, h.initCollection(t, 1000, 1000))
	key, _ := h.collectionKey(t, startEpoch)

	_, err := h.program.TransferStakerRewards(
		TransferStakerRewardsAccounts{RakuraiCommissionAccount: h.commission, RewardCollection: key, Signer: h.payer},
		TransferStakerRewardsArgs{TotalRewards: 1_000_000},
	)
	require.ErrorIs(t, err, ErrUnauthorized)

	_, err = h.program.TransferStakerRewards(
		TransferStakerRewardsAccounts{RakuraiCommissionAccount: h.payer, RewardCollection: key, Signer: h.validator},
		TransferStakerRewardsArgs{TotalRewards: 1_000_000},
	)
	require.ErrorIs(t, err, ErrInvalidRakuraiCommissionAccount)

	_, err = h.fund(t, 0)
	require.ErrorIs(t, err, ErrRewardsTooLow)

	validatorBefore := h.ledger.Balance(h.validator)
	collectionBefore := h.ledger.Balance(key)
	split, err := h.fund(t, 1_000_000)
	require.NoError(t, err)
	require.Equal(t, commission.Split{BlockBuilderFee: 100_000, ValidatorFee: 90_000, StakerRewards: 810_000}, split)
	require.Equal(t, uint64(100_000), h.ledger.Balance(h.commission))
	require.Equal(t, collectionBefore+810_000, h.ledger.Balance(key))
	require.Equal(t, validatorBefore-910_000, h.ledger.Balance(h.validator))
	require.Equal(t, events.StakerRewardsTransferred{
		RewardCollection: key,
		BlockBuilderFee:  100_000,
		ValidatorFee:     90_000,
		StakerRewards:    810_000,
	}, h.recorder.Last())
}

func TestRakurai_Distribution_UploadMerkleRoot(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	require.NoError(t, h.initCollection(t, 1000, 1000))
	root := h.tree.Root()

	require.ErrorIs(t, h.upload(t, root, 810_000, 3), ErrPrematureMerkleRootUpload)

	h.clock.AdvanceEpochs(1)
	key, _ := h.collectionKey(t, startEpoch)
	err := h.program.UploadMerkleRoot(
		UploadMerkleRootAccounts{Config: h.configKey(t), RewardCollection: key, MerkleRootUploadAuthority: h.validator},
		UploadMerkleRootArgs{Root: root, MaxTotalClaim: 1, MaxNumNodes: 1},
	)
	require.ErrorIs(t, err, ErrUnauthorized)

	require.NoError(t, h.upload(t, merkle.Hash{1}, 1, 1))
	require.NoError(t, h.upload(t, root, 810_000, 3))
	require.Equal(t, &state.MerkleRoot{Root: root, MaxTotalClaim: 810_000, MaxNumNodes: 3}, h.collection(t).MerkleRoot)
	require.Equal(t, events.MerkleRootUploaded{MerkleRootUploadAuthority: h.uploader, RewardCollection: key}, h.recorder.Last())

	h.clock.AdvanceEpochs(numEpochsValid)
	require.ErrorIs(t, h.upload(t, root, 810_000, 3), ErrExpiredRewardCollectionAccount)
}

func TestRakurai_Distribution_Claim(t *testing.T) {
	t.Parallel()

	t.Run("full distribution", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		h.ready(t)
		key, _ := h.collectionKey(t, startEpoch)
		before := h.ledger.Balance(key)

		for i, s := range h.stakers {
			require.NoError(t, h.claim(t, i, s.amount))
			require.Equal(t, s.amount, h.ledger.Balance(s.key))
		}
		require.Equal(t, before-810_000, h.ledger.Balance(key))

		root := h.collection(t).MerkleRoot
		require.Equal(t, uint64(810_000), root.TotalFundsClaimed)
		require.Equal(t, uint64(3), root.NumNodesClaimed)

		accounts, bump, err := ClaimAccountsFor(h.program.ProgramID(), h.voteAcct, startEpoch, h.stakers[0].key, h.payer)
		require.NoError(t, err)
		acc, ok := h.ledger.Account(accounts.ClaimStatus)
		require.True(t, ok)
		cs, err := DecodeClaimStatus(h.program.ProgramID(), acc.Owner, acc.Data)
		require.NoError(t, err)
		require.Equal(t, &state.ClaimStatus{
			IsClaimed:        true,
			Claimant:         h.stakers[0].key,
			ClaimStatusPayer: h.payer,
			SlotClaimedAt:    h.clock.Now().Slot,
			Amount:           300_000,
			ExpiresAt:        startEpoch + numEpochsValid,
			Bump:             bump,
		}, cs)

		last, ok := h.recorder.Last().(events.Claimed)
		require.True(t, ok)
		require.Equal(t, h.stakers[2].key, last.Claimant)
		require.Equal(t, uint64(10_000), last.Amount)
	})

	t.Run("double claim", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		h.ready(t)
		require.NoError(t, h.claim(t, 1, 500_000))
		err := h.claim(t, 1, 500_000)
		require.ErrorIs(t, err, ledger.ErrAccountAlreadyInUse)
		require.ErrorIs(t, err, ErrFundsAlreadyClaimed)
		require.Equal(t, uint64(500_000), h.ledger.Balance(h.stakers[1].key))
	})

	t.Run("invalid proof", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		h.ready(t)
		require.ErrorIs(t, h.claim(t, 0, 300_001), ErrInvalidProof)

		accounts, bump, err := ClaimAccountsFor(h.program.ProgramID(), h.voteAcct, startEpoch, h.stakers[0].key, h.payer)
		require.NoError(t, err)
		proof, err := h.tree.Proof(1)
		require.NoError(t, err)
		err = h.program.Claim(accounts, ClaimArgs{Bump: bump, Amount: 300_000, Proof: proof})
		require.ErrorIs(t, err, ErrInvalidProof)
	})

	t.Run("non-canonical bump", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		h.ready(t)
		accounts, bump, err := ClaimAccountsFor(h.program.ProgramID(), h.voteAcct, startEpoch, h.stakers[0].key, h.payer)
		require.NoError(t, err)
		proof, err := h.tree.Proof(0)
		require.NoError(t, err)
		err = h.program.Claim(accounts, ClaimArgs{Bump: bump - 1, Amount: 300_000, Proof: proof})
		require.ErrorIs(t, err, programerr.ErrConstraintSeeds)
	})

	t.Run("root not uploaded", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		require.NoError(t, h.initCollection(t, 1000, 1000))
		_, err := h.fund(t, 1_000_000)
		require.NoError(t, err)
		require.ErrorIs(t, h.claim(t, 0, 300_000), ErrRootNotUploaded)
	})

	t.Run("caps", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		require.NoError(t, h.initCollection(t, 1000, 1000))
		_, err := h.fund(t, 1_000_000)
		require.NoError(t, err)
		h.clock.AdvanceEpochs(1)

		require.NoError(t, h.upload(t, h.tree.Root(), 299_999, 3))
		require.ErrorIs(t, h.claim(t, 0, 300_000), ErrExceedsMaxClaim)

		require.NoError(t, h.upload(t, h.tree.Root(), 810_000, 1))
		require.NoError(t, h.claim(t, 0, 300_000))
		require.ErrorIs(t, h.claim(t, 1, 500_000), ErrExceedsMaxNumNodes)
	})

	t.Run("root locked after claim", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		h.ready(t)
		require.NoError(t, h.claim(t, 2, 10_000))
		err := h.upload(t, merkle.Hash{7}, 1, 1)
		require.ErrorIs(t, err, ErrMerkleRootLocked)
		require.ErrorIs(t, err, ErrUnauthorized)
	})

	t.Run("expired", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		h.ready(t)
		h.clock.AdvanceEpochs(numEpochsValid - 1)
		require.NoError(t, h.claim(t, 0, 300_000))
		h.clock.AdvanceEpochs(1)
		require.ErrorIs(t, h.claim(t, 1, 500_000), ErrExpiredRewardCollectionAccount)
	})

	t.Run("underfunded collection", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		require.NoError(t, h.initCollection(t, 1000, 1000))
		_, err := h.fund(t, 100_000)
		require.NoError(t, err)
		h.clock.AdvanceEpochs(1)
		require.NoError(t, h.upload(t, h.tree.Root(), 810_000, 3))

		key, _ := h.collectionKey(t, startEpoch)
		before := h.ledger.Balance(key)
		require.ErrorIs(t, h.claim(t, 0, 300_000), ledger.ErrInsufficientFundsForRent)
		require.Equal(t, before, h.ledger.Balance(key))
		require.Zero(t, h.collection(t).MerkleRoot.NumNodesClaimed)
	})
}

func TestRakurai_Distribution_CloseClaimStatus(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.ready(t)
	require.NoError(t, h.claim(t, 0, 300_000))
	accounts, _, err := ClaimAccountsFor(h.program.ProgramID(), h.voteAcct, startEpoch, h.stakers[0].key, h.payer)
	require.NoError(t, err)
	closeAccounts := CloseClaimStatusAccounts{Config: h.configKey(t), ClaimStatus: accounts.ClaimStatus, ClaimStatusPayer: h.payer}

	require.ErrorIs(t, h.program.CloseClaimStatus(closeAccounts), ErrPrematureCloseClaimStatus)

	h.clock.AdvanceEpochs(numEpochsValid)
	wrong := closeAccounts
	wrong.ClaimStatusPayer = h.validator
	require.ErrorIs(t, h.program.CloseClaimStatus(wrong), ErrUnauthorized)

	rent := h.ledger.Balance(accounts.ClaimStatus)
	before := h.ledger.Balance(h.payer)
	require.NoError(t, h.program.CloseClaimStatus(closeAccounts))
	require.Equal(t, before+rent, h.ledger.Balance(h.payer))
	_, ok := h.ledger.Account(accounts.ClaimStatus)
	require.False(t, ok)
	require.Equal(t, events.ClaimStatusClosed{ClaimStatusPayer: h.payer, ClaimStatus: accounts.ClaimStatus}, h.recorder.Last())
}

func TestRakurai_Distribution_CloseCollection(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.ready(t)
	require.NoError(t, h.claim(t, 0, 300_000))
	key, _ := h.collectionKey(t, startEpoch)
	accounts := CloseCollectionAccounts{
		Config:           h.configKey(t),
		Initializer:      h.validator,
		RewardCollection: key,
		VoteAccount:      h.voteAcct,
		Signer:           h.payer,
	}

	_, err := h.program.CloseCollection(accounts, CloseCollectionArgs{Epoch: startEpoch})
	require.ErrorIs(t, err, ErrPrematureCloseRewardCollectionAccount)

	h.clock.AdvanceEpochs(numEpochsValid)

	wrong := accounts
	wrong.Initializer = h.payer
	_, err = h.program.CloseCollection(wrong, CloseCollectionArgs{Epoch: startEpoch})
	require.ErrorIs(t, err, ErrUnauthorized)

	_, err = h.program.CloseCollection(accounts, CloseCollectionArgs{Epoch: startEpoch + 1})
	require.ErrorIs(t, err, programerr.ErrConstraintSeeds)

	rent := h.ledger.Rent().MinimumBalance(state.RewardCollectionSpace)
	validatorBefore := h.ledger.Balance(h.validator)
	voteBefore := h.ledger.Balance(h.voteAcct)

	amount, err := h.program.CloseCollection(accounts, CloseCollectionArgs{Epoch: startEpoch})
	require.NoError(t, err)
	require.Equal(t, uint64(510_000), amount)
	require.Equal(t, validatorBefore+510_000, h.ledger.Balance(h.validator))
	require.Equal(t, voteBefore+rent, h.ledger.Balance(h.voteAcct))
	_, ok := h.ledger.Account(key)
	require.False(t, ok)
	require.Equal(t, events.RewardCollectionClosed{Initializer: h.validator, RewardCollection: key, AmountTransferred: 510_000}, h.recorder.Last())

	// A late claim finds no collection.
	require.ErrorIs(t, h.claim(t, 1, 500_000), programerr.ErrAccountNotInitialized)
}
