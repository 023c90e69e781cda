// Package approval implements the two approval programs that gate automated
// commission management for a validator. Enabling requires a proposal by one
// of the validator authority and the block builder authority and acceptance
// by the other; either can revoke at any time.
package approval

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/gagliardetto/solana-go"
	"github.com/rakurai-io/rakurai/programs/pkg/events"
	"github.com/rakurai-io/rakurai/programs/pkg/ledger"
	"github.com/rakurai-io/rakurai/programs/pkg/metrics"
	"github.com/rakurai-io/rakurai/programs/pkg/programerr"
	"github.com/rakurai-io/rakurai/programs/pkg/safemath"
	"github.com/rakurai-io/rakurai/programs/pkg/state"
	"github.com/rakurai-io/rakurai/programs/pkg/vote"
)

type Config struct {
	Logger    *slog.Logger
	Ledger    *ledger.Ledger
	Variant   Variant
	ProgramID solana.PublicKey
	Emitter   events.Emitter

	// IdentityOracle resolves vote accounts during initialization. When nil the
	// vote account is read from the ledger.
	IdentityOracle vote.IdentityOracle
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Ledger == nil {
		return errors.New("ledger is required")
	}
	if _, ok := variants[cfg.Variant]; !ok {
		return fmt.Errorf("unknown variant %d", uint8(cfg.Variant))
	}
	if cfg.ProgramID.IsZero() {
		cfg.ProgramID = cfg.Variant.DefaultProgramID()
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
		log: cfg.Logger.With("program", cfg.Variant.String()),
		cfg: cfg,
	}, nil
}

func (p *Program) ProgramID() solana.PublicKey {
	return p.cfg.ProgramID
}

func (p *Program) Variant() Variant {
	return p.cfg.Variant
}

// Instructions returns a builder targeting this program.
func (p *Program) Instructions() Instructions {
	return Instructions{Variant: p.cfg.Variant, ProgramID: p.cfg.ProgramID}
}

func (p *Program) observe(instruction string, err error) {
	metrics.Observe(p.cfg.Variant.String(), instruction, err)
	if err != nil {
		p.log.Debug("approval: instruction failed", "instruction", instruction, "error", err)
	}
}

func (p *Program) emit(ev events.Event) {
	p.cfg.Emitter.Emit(p.cfg.Variant.String(), ev)
}

// execute runs fn atomically and emits its event once the ledger commits.
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
		p.emit(ev)
	}
	return nil
}

func (p *Program) oracle(tx *ledger.Tx) vote.IdentityOracle {
	if p.cfg.IdentityOracle != nil {
		return p.cfg.IdentityOracle
	}
	return vote.LedgerOracle{Accounts: tx}
}

func (p *Program) loadConfig(tx *ledger.Tx, key solana.PublicKey) (*ledger.Account, *state.ApprovalConfig, error) {
	expected, _, err := p.cfg.Variant.DeriveConfig(p.cfg.ProgramID)
	if err != nil {
		return nil, nil, err
	}
	if !key.Equals(expected) {
		return nil, nil, fmt.Errorf("%w: config %s", programerr.ErrConstraintSeeds, key)
	}
	acc, err := tx.Account(key)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", programerr.ErrAccountNotInitialized, err)
	}
	cfg, err := p.cfg.Variant.DecodeConfig(p.cfg.ProgramID, acc.Owner, acc.Data)
	if err != nil {
		return nil, nil, err
	}
	return acc, cfg, nil
}

func (p *Program) loadAccount(tx *ledger.Tx, key, identity solana.PublicKey) (*ledger.Account, *Account, error) {
	expected, _, err := p.cfg.Variant.DeriveAccount(p.cfg.ProgramID, identity)
	if err != nil {
		return nil, nil, err
	}
	if !key.Equals(expected) {
		return nil, nil, fmt.Errorf("%w: approval account %s", programerr.ErrConstraintSeeds, key)
	}
	acc, err := tx.Account(key)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", programerr.ErrAccountNotInitialized, err)
	}
	a, err := p.cfg.Variant.DecodeAccount(p.cfg.ProgramID, acc.Owner, acc.Data)
	if err != nil {
		return nil, nil, err
	}
	return acc, a, nil
}

// callerParty maps signer to the party it acts for on a.
func (p *Program) callerParty(cfg *state.ApprovalConfig, a *Account, signer solana.PublicKey) (Party, error) {
	switch {
	case signer.Equals(a.ValidatorAuthority):
		return PartyValidator, nil
	case signer.Equals(p.cfg.Variant.blockBuilderAuthority(cfg, a)):
		return PartyBlockBuilder, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnauthorized, signer)
	}
}

// InitializeConfig creates the program's singleton config.
func (p *Program) InitializeConfig(accounts InitializeConfigAccounts, args InitializeConfigArgs) (err error) {
	defer func() { p.observe(ixInitializeConfig, err) }()

	key, bump, err := p.cfg.Variant.DeriveConfig(p.cfg.ProgramID)
	if err != nil {
		return err
	}
	if !accounts.Config.Equals(key) || args.Bump != bump {
		return fmt.Errorf("%w: config %s bump %d", programerr.ErrConstraintSeeds, accounts.Config, args.Bump)
	}
	cfg := state.ApprovalConfig{
		Authority:                     args.Authority,
		BlockBuilderAuthority:         args.BlockBuilderAuthority,
		BlockBuilderCommissionBps:     args.BlockBuilderCommissionBps,
		BlockBuilderCommissionAccount: args.BlockBuilderCommissionAccount,
		Bump:                          args.Bump,
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrAccountValidationFailure, err)
	}

	return p.execute(func(tx *ledger.Tx) (events.Event, error) {
		acc, err := tx.CreateAccount(accounts.Initializer, key, p.cfg.ProgramID, state.ApprovalConfigSpace)
		if err != nil {
			return nil, err
		}
		if err := state.EncodeInto(acc.Data, p.cfg.Variant.spec().configDisc, &cfg); err != nil {
			return nil, err
		}
		p.log.Info("approval: config initialized", "config", key, "authority", cfg.Authority)
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

		if err := state.EncodeInto(acc.Data, p.cfg.Variant.spec().configDisc, &next); err != nil {
			return nil, err
		}
		return events.ConfigUpdated{Authority: accounts.Authority}, nil
	})
}

// Initialize creates the approval account of the validator whose identity
// signs. The vote account must name the signer as its node identity.
func (p *Program) Initialize(accounts InitializeAccounts, args InitializeArgs) (err error) {
	ix := p.cfg.Variant.spec().ixInitAccount
	defer func() { p.observe(ix, err) }()

	if args.ValidatorCommissionBps > safemath.MaxBps {
		return ErrMaxCommissionBpsExceeded
	}
	if !accounts.Identity.Equals(accounts.Signer) {
		return fmt.Errorf("%w: identity %s did not sign", ErrUnauthorized, accounts.Identity)
	}
	key, bump, err := p.cfg.Variant.DeriveAccount(p.cfg.ProgramID, accounts.Identity)
	if err != nil {
		return err
	}
	if !accounts.Account.Equals(key) || args.Bump != bump {
		return fmt.Errorf("%w: approval account %s bump %d", programerr.ErrConstraintSeeds, accounts.Account, args.Bump)
	}

	return p.execute(func(tx *ledger.Tx) (events.Event, error) {
		_, cfg, err := p.loadConfig(tx, accounts.Config)
		if err != nil {
			return nil, err
		}
		node, err := p.oracle(tx).NodeIdentity(accounts.VoteAccount)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
		}
		if !node.Equals(accounts.Signer) {
			return nil, fmt.Errorf("%w: vote account %s belongs to %s", ErrUnauthorized, accounts.VoteAccount, node)
		}

		signer := accounts.Signer
		a := &Account{
			IsEnabled:                 false,
			Proposer:                  &signer,
			ValidatorAuthority:        signer,
			ValidatorCommissionBps:    args.ValidatorCommissionBps,
			BlockBuilderCommissionBps: cfg.BlockBuilderCommissionBps,
			Bump:                      bump,
		}
		if p.cfg.Variant == Multisig {
			a.ValidatorVoteAccount = accounts.VoteAccount
			a.BlockBuilderAuthority = cfg.BlockBuilderAuthority
			a.BlockBuilderCommissionAccount = cfg.BlockBuilderCommissionAccount
		}
		if err := p.cfg.Variant.Validate(a); err != nil {
			return nil, err
		}

		acc, err := tx.CreateAccount(signer, key, p.cfg.ProgramID, p.cfg.Variant.spec().accountSpace)
		if err != nil {
			return nil, err
		}
		if err := p.cfg.Variant.encodeAccount(acc.Data, a); err != nil {
			return nil, err
		}
		return events.ApprovalAccountInitialized{Account: key}, nil
	})
}

// UpdateApproval applies one step of the consent protocol and returns the
// resulting transition.
func (p *Program) UpdateApproval(accounts ValidatorAccounts, args UpdateApprovalArgs) (t Transition, err error) {
	ix := p.cfg.Variant.spec().ixUpdateApproval
	defer func() { p.observe(ix, err) }()

	err = p.execute(func(tx *ledger.Tx) (events.Event, error) {
		_, cfg, err := p.loadConfig(tx, accounts.Config)
		if err != nil {
			return nil, err
		}
		acc, a, err := p.loadAccount(tx, accounts.Account, accounts.Identity)
		if err != nil {
			return nil, err
		}
		party, err := p.callerParty(cfg, a, accounts.Signer)
		if err != nil {
			return nil, err
		}
		current := StateOf(a)
		t, err = Next(current, party, args.Grant, args.Hash, p.cfg.Variant)
		if err != nil {
			return nil, err
		}

		a.IsEnabled = t.State.Phase == PhaseEnabled
		a.Hash = t.State.Hash
		switch {
		case t.State.Phase != PhasePending:
			a.Proposer = nil
		case current.Phase != PhasePending:
			signer := accounts.Signer
			a.Proposer = &signer
		}
		if err := p.cfg.Variant.Validate(a); err != nil {
			return nil, err
		}

		if err := p.cfg.Variant.encodeAccount(acc.Data, a); err != nil {
			return nil, err
		}
		p.log.Info("approval: approval updated", "account", accounts.Account, "party", party, "from", current.Phase, "to", t.State.Phase, "message", t.Message)
		return events.ApprovalUpdated{Account: accounts.Account, Signer: accounts.Signer, Message: t.Message}, nil
	})
	if err != nil {
		return Transition{}, err
	}
	return t, nil
}

// UpdateCommission lets the validator set its own commission. A block builder
// caller instead re-syncs the block builder fields from the live config.
func (p *Program) UpdateCommission(accounts ValidatorAccounts, args UpdateCommissionArgs) (err error) {
	ix := p.cfg.Variant.spec().ixUpdateCommission
	defer func() { p.observe(ix, err) }()

	return p.execute(func(tx *ledger.Tx) (events.Event, error) {
		_, cfg, err := p.loadConfig(tx, accounts.Config)
		if err != nil {
			return nil, err
		}
		acc, a, err := p.loadAccount(tx, accounts.Account, accounts.Identity)
		if err != nil {
			return nil, err
		}
		party, err := p.callerParty(cfg, a, accounts.Signer)
		if err != nil {
			return nil, err
		}

		switch party {
		case PartyValidator:
			if bps := args.ValidatorCommissionBps; bps != nil {
				if *bps > safemath.MaxBps {
					return nil, ErrMaxCommissionBpsExceeded
				}
				a.ValidatorCommissionBps = *bps
			}
		case PartyBlockBuilder:
			a.BlockBuilderCommissionBps = cfg.BlockBuilderCommissionBps
			if p.cfg.Variant == Multisig {
				a.BlockBuilderCommissionAccount = cfg.BlockBuilderCommissionAccount
			}
		}
		if err := p.cfg.Variant.Validate(a); err != nil {
			return nil, err
		}

		if err := p.cfg.Variant.encodeAccount(acc.Data, a); err != nil {
			return nil, err
		}
		return events.CommissionUpdated{
			Account:                   accounts.Account,
			ValidatorCommissionBps:    a.ValidatorCommissionBps,
			BlockBuilderCommissionBps: a.BlockBuilderCommissionBps,
		}, nil
	})
}

// Close sweeps the approval account's balance above rent to the validator
// identity and closes the account to it. Only the block builder authority may
// close; multisig checks the authority stored on the account, activation the
// one in the config. It returns the swept amount.
func (p *Program) Close(accounts ValidatorAccounts) (amount uint64, err error) {
	ix := p.cfg.Variant.spec().ixCloseAccount
	defer func() { p.observe(ix, err) }()

	err = p.execute(func(tx *ledger.Tx) (events.Event, error) {
		_, cfg, err := p.loadConfig(tx, accounts.Config)
		if err != nil {
			return nil, err
		}
		acc, a, err := p.loadAccount(tx, accounts.Account, accounts.Identity)
		if err != nil {
			return nil, err
		}
		if !accounts.Signer.Equals(p.cfg.Variant.blockBuilderAuthority(cfg, a)) {
			return nil, fmt.Errorf("%w: %s is not the block builder authority", ErrUnauthorized, accounts.Signer)
		}
		amount, err = safemath.Sub(acc.Lamports, tx.Rent().MinimumBalance(len(acc.Data)))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrArithmeticError, err)
		}

		if err := tx.Transfer(accounts.Account, accounts.Identity, amount); err != nil {
			return nil, err
		}
		if _, err := tx.CloseAccount(accounts.Account, accounts.Identity); err != nil {
			return nil, err
		}
		return events.ApprovalAccountClosed{Account: accounts.Account, AmountClaimed: amount}, nil
	})
	if err != nil {
		return 0, err
	}
	metrics.AddLamports(p.cfg.Variant.String(), ix, amount)
	return amount, nil
}
