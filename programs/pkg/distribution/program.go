// Package distribution implements the reward distribution program: per-epoch
// reward collections funded by the validator after the block builder and
// validator commissions are taken, and merkle-proof claims by stakers.
package distribution

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/gagliardetto/solana-go"
	"github.com/rakurai-io/rakurai/programs/pkg/commission"
	"github.com/rakurai-io/rakurai/programs/pkg/events"
	"github.com/rakurai-io/rakurai/programs/pkg/ledger"
	"github.com/rakurai-io/rakurai/programs/pkg/merkle"
	"github.com/rakurai-io/rakurai/programs/pkg/metrics"
	"github.com/rakurai-io/rakurai/programs/pkg/pda"
	"github.com/rakurai-io/rakurai/programs/pkg/programerr"
	"github.com/rakurai-io/rakurai/programs/pkg/safemath"
	"github.com/rakurai-io/rakurai/programs/pkg/state"
	"github.com/rakurai-io/rakurai/programs/pkg/vote"
)

const programName = "distribution"

type Config struct {
	Logger    *slog.Logger
	Ledger    *ledger.Ledger
	ProgramID solana.PublicKey
	Emitter   events.Emitter

	// IdentityOracle resolves vote accounts when collections are initialized.
	// When nil the vote account is read from the ledger.
	IdentityOracle vote.IdentityOracle
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Ledger == nil {
		return errors.New("ledger is required")
	}
	if cfg.ProgramID.IsZero() {
		cfg.ProgramID = pda.DistributionProgramID
	}
	if cfg.Emitter == nil {
		cfg.Emitter = events.LogEmitter{Logger: cfg.Logger}
	}
	return nil
}

type Program struct {
	log *slog.Logger
	cfg Config
}

func New(cfg Config) (*Program, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Program{
		log: cfg.Logger.With("program", programName),
		cfg: cfg,
	}, nil
}

func (p *Program) ProgramID() solana.PublicKey {
	return p.cfg.ProgramID
}

func (p *Program) Instructions() Instructions {
	return Instructions{ProgramID: p.cfg.ProgramID}
}

func (p *Program) observe(instruction string, err error) {
	metrics.Observe(programName, instruction, err)
	if err != nil {
		p.log.Debug("distribution: instruction failed", "instruction", instruction, "error", err)
	}
}

func (p *Program) execute(fn func(tx *ledger.Tx) (events.Event, error)) error {
	var ev events.Event
	err := p.cfg.Ledger.Execute(func(tx *ledger.Tx) error {
		var err error
		ev, err = fn(tx)
		return err
	})
	if err != nil {
		return err
	}
	if ev != nil {
		p.cfg.Emitter.Emit(programName, ev)
	}
	return nil
}

func (p *Program) oracle(tx *ledger.Tx) vote.IdentityOracle {
	if p.cfg.IdentityOracle != nil {
		return p.cfg.IdentityOracle
	}
	return vote.LedgerOracle{Accounts: tx}
}

func (p *Program) load(tx *ledger.Tx, key solana.PublicKey) (*ledger.Account, error) {
	acc, err := tx.Account(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", programerr.ErrAccountNotInitialized, err)
	}
	return acc, nil
}

func (p *Program) loadConfig(tx *ledger.Tx, key solana.PublicKey) (*ledger.Account, *state.DistributionConfig, error) {
	expected, _, err := pda.DeriveDistributionConfig(p.cfg.ProgramID)
	if err != nil {
		return nil, nil, err
	}
	if !key.Equals(expected) {
		return nil, nil, fmt.Errorf("%w: config %s", programerr.ErrConstraintSeeds, key)
	}
	acc, err := p.load(tx, key)
	if err != nil {
		return nil, nil, err
	}
	cfg, err := DecodeConfig(p.cfg.ProgramID, acc.Owner, acc.Data)
	if err != nil {
		return nil, nil, err
	}
	return acc, cfg, nil
}

func (p *Program) loadCollection(tx *ledger.Tx, key solana.PublicKey) (*ledger.Account, *state.RewardCollection, error) {
	acc, err := p.load(tx, key)
	if err != nil {
		return nil, nil, err
	}
	rc, err := DecodeCollection(p.cfg.ProgramID, acc.Owner, acc.Data)
	if err != nil {
		return nil, nil, err
	}
	return acc, rc, nil
}

func (p *Program) storeCollection(acc *ledger.Account, rc *state.RewardCollection) error {
	if err := rc.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrAccountValidationFailure, err)
	}
	return state.EncodeInto(acc.Data, state.RewardCollectionDiscriminator, rc)
}

func arithmetic(err error) error {
	return fmt.Errorf("%w: %v", ErrArithmeticError, err)
}

// InitializeConfig creates the singleton config.
func (p *Program) InitializeConfig(accounts InitializeConfigAccounts, args InitializeConfigArgs) (err error) {
	defer func() { p.observe(ixInitializeConfig, err) }()

	key, bump, err := pda.DeriveDistributionConfig(p.cfg.ProgramID)
	if err != nil {
		return err
	}
	if !accounts.Config.Equals(key) || args.Bump != bump {
		return fmt.Errorf("%w: config %s bump %d", programerr.ErrConstraintSeeds, accounts.Config, args.Bump)
	}
	cfg := state.DistributionConfig{
		Authority:        args.Authority,
		NumEpochsValid:   args.NumEpochsValid,
		MaxCommissionBps: args.MaxCommissionBps,
		Bump:             args.Bump,
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrAccountValidationFailure, err)
	}

	return p.execute(func(tx *ledger.Tx) (events.Event, error) {
		acc, err := tx.CreateAccount(accounts.Initializer, key, p.cfg.ProgramID, state.DistributionConfigSpace)
		if err != nil {
			return nil, err
		}
		if err := state.EncodeInto(acc.Data, state.DistributionConfigDiscriminator, &cfg); err != nil {
			return nil, err
		}
		p.log.Info("distribution: config initialized", "config", key, "authority", cfg.Authority, "numEpochsValid", cfg.NumEpochsValid)
		return nil, nil
	})
}

// UpdateConfig replaces the config fields. Only the config authority may call
// it.
func (p *Program) UpdateConfig(accounts UpdateConfigAccounts, args UpdateConfigArgs) (err error) {
	defer func() { p.observe(ixUpdateConfig, err) }()

	return p.execute(func(tx *ledger.Tx) (events.Event, error) {
		acc, cfg, err := p.loadConfig(tx, accounts.Config)
		if err != nil {
			return nil, err
		}
		if !cfg.Authority.Equals(accounts.Authority) {
			return nil, fmt.Errorf("%w: %s is not the config authority", ErrUnauthorized, accounts.Authority)
		}
		next := args.NewConfig
		next.Bump = cfg.Bump
		if err := next.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrAccountValidationFailure, err)
		}
		if err := state.EncodeInto(acc.Data, state.DistributionConfigDiscriminator, &next); err != nil {
			return nil, err
		}
		return events.ConfigUpdated{Authority: accounts.Authority}, nil
	})
}

// InitializeCollection creates the reward collection of a vote account for
// the current epoch. The signer must be the vote account's node identity.
func (p *Program) InitializeCollection(accounts InitializeCollectionAccounts, args InitializeCollectionArgs) (err error) {
	defer func() { p.observe(ixInitializeCollection, err) }()

	return p.execute(func(tx *ledger.Tx) (events.Event, error) {
		_, cfg, err := p.loadConfig(tx, accounts.Config)
		if err != nil {
			return nil, err
		}
		total := uint32(args.ValidatorCommissionBps) + uint32(args.RakuraiCommissionBps)
		if args.ValidatorCommissionBps > cfg.MaxCommissionBps || args.RakuraiCommissionBps > cfg.MaxCommissionBps || total > uint32(cfg.MaxCommissionBps) {
			return nil, fmt.Errorf("%w: validator %d + rakurai %d > %d", ErrMaxCommissionFeeBpsExceeded, args.ValidatorCommissionBps, args.RakuraiCommissionBps, cfg.MaxCommissionBps)
		}

		node, err := p.oracle(tx).NodeIdentity(accounts.VoteAccount)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
		}
		if !node.Equals(accounts.Signer) {
			return nil, fmt.Errorf("%w: vote account %s belongs to %s", ErrUnauthorized, accounts.VoteAccount, node)
		}

		epoch := tx.Clock().Epoch
		key, bump, err := pda.DeriveRewardCollection(p.cfg.ProgramID, accounts.VoteAccount, epoch)
		if err != nil {
			return nil, err
		}
		if !accounts.RewardCollection.Equals(key) || args.Bump != bump {
			return nil, fmt.Errorf("%w: reward collection %s bump %d for epoch %d", programerr.ErrConstraintSeeds, accounts.RewardCollection, args.Bump, epoch)
		}
		expiresAt, err := safemath.Add(epoch, cfg.NumEpochsValid)
		if err != nil {
			return nil, arithmetic(err)
		}

		rc := &state.RewardCollection{
			ValidatorVoteAccount:      accounts.VoteAccount,
			MerkleRootUploadAuthority: args.MerkleRootUploadAuthority,
			CreationEpoch:             epoch,
			ValidatorCommissionBps:    args.ValidatorCommissionBps,
			RakuraiCommissionBps:      args.RakuraiCommissionBps,
			RakuraiCommissionAccount:  args.RakuraiCommissionAccount,
			ExpiresAt:                 expiresAt,
			Initializer:               accounts.Signer,
			Bump:                      bump,
		}
		acc, err := tx.CreateAccount(accounts.Signer, key, p.cfg.ProgramID, state.RewardCollectionSpace)
		if err != nil {
			return nil, err
		}
		if err := p.storeCollection(acc, rc); err != nil {
			return nil, err
		}
		p.log.Info("distribution: reward collection initialized", "collection", key, "vote", accounts.VoteAccount, "epoch", epoch, "expiresAt", expiresAt)
		return events.RewardCollectionInitialized{RewardCollection: key}, nil
	})
}

// UploadMerkleRoot sets the collection's distribution root. A root can be
// replaced until the first claim against it.
func (p *Program) UploadMerkleRoot(accounts UploadMerkleRootAccounts, args UploadMerkleRootArgs) (err error) {
	defer func() { p.observe(ixUploadMerkleRoot, err) }()

	return p.execute(func(tx *ledger.Tx) (events.Event, error) {
		if _, _, err := p.loadConfig(tx, accounts.Config); err != nil {
			return nil, err
		}
		acc, rc, err := p.loadCollection(tx, accounts.RewardCollection)
		if err != nil {
			return nil, err
		}
		if !accounts.MerkleRootUploadAuthority.Equals(rc.MerkleRootUploadAuthority) {
			return nil, fmt.Errorf("%w: %s is not the upload authority", ErrUnauthorized, accounts.MerkleRootUploadAuthority)
		}
		if rc.MerkleRoot != nil && rc.MerkleRoot.NumNodesClaimed > 0 {
			return nil, ErrMerkleRootLocked
		}
		epoch := tx.Clock().Epoch
		if epoch <= rc.CreationEpoch {
			return nil, ErrPrematureMerkleRootUpload
		}
		if epoch > rc.ExpiresAt {
			return nil, ErrExpiredRewardCollectionAccount
		}

		rc.MerkleRoot = &state.MerkleRoot{
			Root:          args.Root,
			MaxTotalClaim: args.MaxTotalClaim,
			MaxNumNodes:   args.MaxNumNodes,
		}
		if err := p.storeCollection(acc, rc); err != nil {
			return nil, err
		}
		return events.MerkleRootUploaded{
			MerkleRootUploadAuthority: accounts.MerkleRootUploadAuthority,
			RewardCollection:          accounts.RewardCollection,
		}, nil
	})
}

// TransferStakerRewards splits totalRewards held by the initializer: the block
// builder fee goes to the commission account, staker rewards to the
// collection, and the validator fee stays with the initializer.
func (p *Program) TransferStakerRewards(accounts TransferStakerRewardsAccounts, args TransferStakerRewardsArgs) (split commission.Split, err error) {
	defer func() { p.observe(ixTransferStakerRewards, err) }()

	err = p.execute(func(tx *ledger.Tx) (events.Event, error) {
		_, rc, err := p.loadCollection(tx, accounts.RewardCollection)
		if err != nil {
			return nil, err
		}
		if !accounts.Signer.Equals(rc.Initializer) {
			return nil, fmt.Errorf("%w: %s is not the initializer", ErrUnauthorized, accounts.Signer)
		}
		if !accounts.RakuraiCommissionAccount.Equals(rc.RakuraiCommissionAccount) {
			return nil, ErrInvalidRakuraiCommissionAccount
		}
		if args.TotalRewards == 0 {
			return nil, ErrRewardsTooLow
		}
		split, err = commission.Compute(args.TotalRewards, rc.RakuraiCommissionBps, rc.ValidatorCommissionBps)
		if err != nil {
			return nil, arithmetic(err)
		}

		if err := tx.Transfer(accounts.Signer, accounts.RakuraiCommissionAccount, split.BlockBuilderFee); err != nil {
			return nil, err
		}
		if err := tx.Transfer(accounts.Signer, accounts.RewardCollection, split.StakerRewards); err != nil {
			return nil, err
		}
		return events.StakerRewardsTransferred{
			RewardCollection: accounts.RewardCollection,
			BlockBuilderFee:  split.BlockBuilderFee,
			ValidatorFee:     split.ValidatorFee,
			StakerRewards:    split.StakerRewards,
		}, nil
	})
	if err != nil {
		return commission.Split{}, err
	}
	metrics.AddLamports(programName, ixTransferStakerRewards, split.BlockBuilderFee+split.StakerRewards)
	return split, nil
}

// CloseClaimStatus returns an expired claim status's rent to whoever paid it.
// Anyone may call it.
func (p *Program) CloseClaimStatus(accounts CloseClaimStatusAccounts) (err error) {
	defer func() { p.observe(ixCloseClaimStatus, err) }()

	return p.execute(func(tx *ledger.Tx) (events.Event, error) {
		if _, _, err := p.loadConfig(tx, accounts.Config); err != nil {
			return nil, err
		}
		acc, err := p.load(tx, accounts.ClaimStatus)
		if err != nil {
			return nil, err
		}
		cs, err := DecodeClaimStatus(p.cfg.ProgramID, acc.Owner, acc.Data)
		if err != nil {
			return nil, err
		}
		if !accounts.ClaimStatusPayer.Equals(cs.ClaimStatusPayer) {
			return nil, fmt.Errorf("%w: %s did not pay for the claim status", ErrUnauthorized, accounts.ClaimStatusPayer)
		}
		if tx.Clock().Epoch <= cs.ExpiresAt {
			return nil, ErrPrematureCloseClaimStatus
		}
		if _, err := tx.CloseAccount(accounts.ClaimStatus, accounts.ClaimStatusPayer); err != nil {
			return nil, err
		}
		return events.ClaimStatusClosed{ClaimStatusPayer: accounts.ClaimStatusPayer, ClaimStatus: accounts.ClaimStatus}, nil
	})
}

// CloseCollection sweeps the unclaimed balance of an expired collection to
// its initializer and returns the rent to the vote account. It returns the
// swept amount.
func (p *Program) CloseCollection(accounts CloseCollectionAccounts, args CloseCollectionArgs) (amount uint64, err error) {
	defer func() { p.observe(ixCloseCollection, err) }()

	err = p.execute(func(tx *ledger.Tx) (events.Event, error) {
		if _, _, err := p.loadConfig(tx, accounts.Config); err != nil {
			return nil, err
		}
		acc, rc, err := p.loadCollection(tx, accounts.RewardCollection)
		if err != nil {
			return nil, err
		}
		if !accounts.Initializer.Equals(rc.Initializer) {
			return nil, fmt.Errorf("%w: %s is not the initializer", ErrUnauthorized, accounts.Initializer)
		}
		if !pda.Verify(p.cfg.ProgramID, accounts.RewardCollection, rc.Bump, pda.SeedRewardCollection, accounts.VoteAccount.Bytes(), pda.EpochSeed(args.Epoch)) {
			return nil, fmt.Errorf("%w: reward collection %s for epoch %d", programerr.ErrConstraintSeeds, accounts.RewardCollection, args.Epoch)
		}
		if tx.Clock().Epoch <= rc.ExpiresAt {
			return nil, ErrPrematureCloseRewardCollectionAccount
		}

		amount, err = safemath.Sub(acc.Lamports, tx.Rent().MinimumBalance(len(acc.Data)))
		if err != nil {
			return nil, arithmetic(err)
		}
		if err := tx.Transfer(accounts.RewardCollection, accounts.Initializer, amount); err != nil {
			return nil, err
		}
		if _, err := tx.CloseAccount(accounts.RewardCollection, accounts.VoteAccount); err != nil {
			return nil, err
		}
		p.log.Info("distribution: reward collection closed", "collection", accounts.RewardCollection, "expiredAmount", amount)
		return events.RewardCollectionClosed{
			Initializer:       accounts.Initializer,
			RewardCollection:  accounts.RewardCollection,
			AmountTransferred: amount,
		}, nil
	})
	if err != nil {
		return 0, err
	}
	metrics.AddLamports(programName, ixCloseCollection, amount)
	return amount, nil
}

// Claim pays amount to the claimant once the proof shows the pair is a leaf
// of the collection's root. The claim status account created here, paid for
// by the payer, prevents a second claim.
func (p *Program) Claim(accounts ClaimAccounts, args ClaimArgs) (err error) {
	defer func() { p.observe(ixClaim, err) }()

	err = p.execute(func(tx *ledger.Tx) (events.Event, error) {
		if _, _, err := p.loadConfig(tx, accounts.Config); err != nil {
			return nil, err
		}
		acc, rc, err := p.loadCollection(tx, accounts.RewardCollection)
		if err != nil {
			return nil, err
		}
		if err := p.checkUnclaimed(tx, accounts.ClaimStatus); err != nil {
			return nil, err
		}
		key, bump, err := pda.DeriveClaimStatus(p.cfg.ProgramID, accounts.Claimant, accounts.RewardCollection)
		if err != nil {
			return nil, err
		}
		if !accounts.ClaimStatus.Equals(key) || args.Bump != bump {
			return nil, fmt.Errorf("%w: claim status %s bump %d", programerr.ErrConstraintSeeds, accounts.ClaimStatus, args.Bump)
		}

		clock := tx.Clock()
		if clock.Epoch > rc.ExpiresAt {
			return nil, ErrExpiredRewardCollectionAccount
		}
		root := rc.MerkleRoot
		if root == nil {
			return nil, ErrRootNotUploaded
		}
		if !merkle.Verify(args.Proof, merkle.Hash(root.Root), merkle.Leaf(accounts.Claimant, args.Amount)) {
			return nil, ErrInvalidProof
		}
		totalClaimed, err := safemath.Add(root.TotalFundsClaimed, args.Amount)
		if err != nil {
			return nil, arithmetic(err)
		}
		if totalClaimed > root.MaxTotalClaim {
			return nil, ErrExceedsMaxClaim
		}
		nodesClaimed, err := safemath.Add(root.NumNodesClaimed, 1)
		if err != nil {
			return nil, arithmetic(err)
		}
		if nodesClaimed > root.MaxNumNodes {
			return nil, ErrExceedsMaxNumNodes
		}

		statusAcc, err := tx.CreateAccount(accounts.Payer, key, p.cfg.ProgramID, state.ClaimStatusSpace)
		if err != nil {
			return nil, err
		}
		if err := tx.Transfer(accounts.RewardCollection, accounts.Claimant, args.Amount); err != nil {
			return nil, err
		}
		status := &state.ClaimStatus{
			IsClaimed:        true,
			Claimant:         accounts.Claimant,
			ClaimStatusPayer: accounts.Payer,
			SlotClaimedAt:    clock.Slot,
			Amount:           args.Amount,
			ExpiresAt:        rc.ExpiresAt,
			Bump:             bump,
		}
		if err := state.EncodeInto(statusAcc.Data, state.ClaimStatusDiscriminator, status); err != nil {
			return nil, err
		}
		root.TotalFundsClaimed = totalClaimed
		root.NumNodesClaimed = nodesClaimed
		if err := p.storeCollection(acc, rc); err != nil {
			return nil, err
		}
		return events.Claimed{
			RewardCollection: accounts.RewardCollection,
			Payer:            accounts.Payer,
			Claimant:         accounts.Claimant,
			Amount:           args.Amount,
		}, nil
	})
	if err != nil {
		return err
	}
	metrics.AddLamports(programName, ixClaim, args.Amount)
	return nil
}

// checkUnclaimed fails when a claim status already exists at key.
func (p *Program) checkUnclaimed(tx *ledger.Tx, key solana.PublicKey) error {
	acc, err := tx.Account(key)
	if err != nil {
		return nil
	}
	if len(acc.Data) == 0 && acc.Owner.Equals(solana.SystemProgramID) {
		return nil
	}
	if cs, err := DecodeClaimStatus(p.cfg.ProgramID, acc.Owner, acc.Data); err == nil && cs.IsClaimed {
		return fmt.Errorf("%w: %w", ledger.ErrAccountAlreadyInUse, ErrFundsAlreadyClaimed)
	}
	return fmt.Errorf("%w: claim status %s", ledger.ErrAccountAlreadyInUse, key)
}
