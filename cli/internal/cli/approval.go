package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"

	"github.com/rakurai-io/rakurai/programs/pkg/approval"
	"github.com/rakurai-io/rakurai/programs/pkg/state"
)

const defaultBlockBuilderCommissionBps = 1000

func (e *env) approvalInstructions() approval.Instructions {
	return approval.Instructions{Variant: e.variant, ProgramID: e.approvalProgramID}
}

// blockBuilderAuthority is the key the program accepts as the block builder
// for account a: multisig accounts store their own, activation accounts defer
// to the config.
func (e *env) blockBuilderAuthority(cfg *state.ApprovalConfig, a *approval.Account) solana.PublicKey {
	if e.variant == approval.Multisig {
		return a.BlockBuilderAuthority
	}
	return cfg.BlockBuilderAuthority
}

// party resolves which side of the consent protocol the signer acts for.
func (e *env) party(identity solana.PublicKey, cfg *state.ApprovalConfig, a *approval.Account) (approval.Party, error) {
	signer := e.signerKey()
	switch {
	case signer.Equals(identity):
		return approval.PartyValidator, nil
	case signer.Equals(e.blockBuilderAuthority(cfg, a)):
		return approval.PartyBlockBuilder, nil
	default:
		return 0, fmt.Errorf("%w: expected validator (%s) or block builder (%s), found %s",
			ErrUnauthorizedSigner, identity, e.blockBuilderAuthority(cfg, a), signer)
	}
}

func (e *env) loadApproval(ctx context.Context, identity solana.PublicKey) (*state.ApprovalConfig, solana.PublicKey, *approval.Account, error) {
	_, cfg, err := e.chain.ApprovalConfig(ctx, e.variant)
	if err != nil {
		return nil, solana.PublicKey{}, nil, err
	}
	key, a, err := e.chain.ApprovalAccount(ctx, e.variant, identity)
	if err != nil {
		return nil, solana.PublicKey{}, nil, err
	}
	return cfg, key, a, nil
}

func runInitConfig(ctx context.Context, e *env, args []string) error {
	var (
		commissionBps     uint16 = defaultBlockBuilderCommissionBps
		commissionSet     bool
		commissionAccount solana.PublicKey
		authority         solana.PublicKey
		configAuthority   solana.PublicKey
	)
	fs := newFlagSet("init-config")
	bpsVar(fs, &commissionBps, &commissionSet, "commission-bps", "c", "block builder commission in basis points (default 1000)")
	pubkeyVar(fs, &commissionAccount, "commission-account", "a", "block builder commission account (default signer)")
	pubkeyVar(fs, &authority, "authority", "b", "block builder authority (default signer)")
	pubkeyVar(fs, &configAuthority, "config-authority", "x", "config authority (default signer)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	signer := e.signerKey()
	for _, pk := range []*solana.PublicKey{&commissionAccount, &authority, &configAuthority} {
		if pk.IsZero() {
			*pk = signer
		}
	}

	key, bump, err := e.variant.DeriveConfig(e.approvalProgramID)
	if err != nil {
		return err
	}
	section(e.out, fmt.Sprintf("Initializing %s config", e.variant)).
		add("Address", key).
		add("Bump", bump).
		add("Commission (bps)", commissionBps).
		add("Commission account", commissionAccount).
		add("Block builder authority", authority).
		add("Config authority", configAuthority).
		add("Signer", signer).
		flush()

	ix, err := e.approvalInstructions().InitializeConfig(
		approval.InitializeConfigAccounts{Config: key, Initializer: signer},
		approval.InitializeConfigArgs{
			Authority:                     configAuthority,
			BlockBuilderAuthority:         authority,
			BlockBuilderCommissionAccount: commissionAccount,
			BlockBuilderCommissionBps:     commissionBps,
			Bump:                          bump,
		},
	)
	if err != nil {
		return err
	}
	return e.send(ctx, ix)
}

func runUpdateConfig(ctx context.Context, e *env, args []string) error {
	var (
		commissionBps     uint16
		commissionSet     bool
		commissionAccount solana.PublicKey
		authority         solana.PublicKey
		configAuthority   solana.PublicKey
	)
	fs := newFlagSet("update-config")
	bpsVar(fs, &commissionBps, &commissionSet, "commission-bps", "c", "new block builder commission in basis points")
	pubkeyVar(fs, &commissionAccount, "commission-account", "a", "new block builder commission account")
	pubkeyVar(fs, &authority, "authority", "b", "new block builder authority")
	pubkeyVar(fs, &configAuthority, "config-authority", "x", "new config authority")
	if err := fs.Parse(args); err != nil {
		return err
	}

	key, cfg, err := e.chain.ApprovalConfig(ctx, e.variant)
	if err != nil {
		return err
	}
	signer := e.signerKey()
	if !signer.Equals(cfg.Authority) {
		return fmt.Errorf("%w: expected config authority (%s), found %s", ErrUnauthorizedSigner, cfg.Authority, signer)
	}

	next := *cfg
	if commissionSet {
		next.BlockBuilderCommissionBps = commissionBps
	}
	if !commissionAccount.IsZero() {
		next.BlockBuilderCommissionAccount = commissionAccount
	}
	if !authority.IsZero() {
		next.BlockBuilderAuthority = authority
	}
	if !configAuthority.IsZero() {
		next.Authority = configAuthority
	}
	if next == *cfg {
		return errors.New("no config changes requested")
	}

	printApprovalConfig(e.out, e.variant, key, &next)
	ix, err := e.approvalInstructions().UpdateConfig(
		approval.UpdateConfigAccounts{Config: key, Authority: signer},
		approval.UpdateConfigArgs{NewConfig: next},
	)
	if err != nil {
		return err
	}
	return e.send(ctx, ix)
}

func runShowConfig(ctx context.Context, e *env, args []string) error {
	if err := newFlagSet("show-config").Parse(args); err != nil {
		return err
	}
	key, cfg, err := e.chain.ApprovalConfig(ctx, e.variant)
	if err != nil {
		return err
	}
	printApprovalConfig(e.out, e.variant, key, cfg)
	return nil
}

func runInit(ctx context.Context, e *env, args []string) error {
	var (
		commissionBps uint16
		commissionSet bool
		voteAccount   solana.PublicKey
	)
	fs := newFlagSet("init")
	bpsVar(fs, &commissionBps, &commissionSet, "commission-bps", "c", "validator commission in basis points")
	pubkeyVar(fs, &voteAccount, "vote-pubkey", "v", "validator vote account")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !commissionSet {
		return errors.New("--commission-bps is required")
	}
	if err := requireKey(voteAccount, "vote-pubkey"); err != nil {
		return err
	}

	identity, err := e.chain.IdentityOracle(ctx).NodeIdentity(voteAccount)
	if err != nil {
		return fmt.Errorf("failed to read vote account %s: %w", voteAccount, err)
	}
	signer := e.signerKey()
	if !identity.Equals(signer) {
		return fmt.Errorf("%w: expected validator identity (%s), found %s", ErrUnauthorizedSigner, identity, signer)
	}

	configKey, _, err := e.variant.DeriveConfig(e.approvalProgramID)
	if err != nil {
		return err
	}
	key, bump, err := e.variant.DeriveAccount(e.approvalProgramID, identity)
	if err != nil {
		return err
	}
	section(e.out, fmt.Sprintf("Initializing %s account", e.variant)).
		add("Address", key).
		add("Validator commission (bps)", commissionBps).
		add("Vote account", voteAccount).
		add("Identity", identity).
		flush()

	ix, err := e.approvalInstructions().Initialize(
		approval.InitializeAccounts{
			Config:      configKey,
			Account:     key,
			VoteAccount: voteAccount,
			Identity:    identity,
			Signer:      signer,
		},
		approval.InitializeArgs{ValidatorCommissionBps: commissionBps, Bump: bump},
	)
	if err != nil {
		return err
	}
	return e.send(ctx, ix)
}

func runSchedulerControl(ctx context.Context, e *env, args []string) error {
	var (
		identity solana.PublicKey
		disable  bool
		hashStr  string
	)
	fs := newFlagSet("scheduler-control")
	pubkeyVar(fs, &identity, "identity", "i", "validator identity")
	fs.BoolVarP(&disable, "disable", "d", false, "revoke approval instead of granting it")
	fs.StringVarP(&hashStr, "hash", "s", "", "base58 hash to register (activation program, block builder only)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireKey(identity, "identity"); err != nil {
		return err
	}
	if disable && hashStr != "" {
		return errors.New("--hash cannot be used with --disable")
	}

	var hash *state.Hash
	if hashStr != "" {
		if e.variant != approval.Activation {
			return fmt.Errorf("--hash is not supported by the %s program", e.variant)
		}
		h, err := parseHash(hashStr)
		if err != nil {
			return err
		}
		hash = &h
	}

	cfg, key, a, err := e.loadApproval(ctx, identity)
	if err != nil {
		return err
	}
	party, err := e.party(identity, cfg, a)
	if err != nil {
		return err
	}

	t, err := approval.Next(approval.StateOf(a), party, !disable, hash, e.variant)
	if err != nil {
		return fmt.Errorf("approval update would fail: %w", err)
	}
	section(e.out, fmt.Sprintf("Updating %s approval", e.variant)).
		add("Address", key).
		add("Identity", identity).
		add("Signer as", party).
		add("Grant", !disable).
		add("Hash", encodeHash(hash)).
		add("Result", t.Message).
		flush()
	if !t.Changed {
		fmt.Fprintln(e.out, "No transaction required.")
		return nil
	}

	accounts, err := approval.NewValidatorAccounts(e.variant, e.approvalProgramID, identity, e.signerKey())
	if err != nil {
		return err
	}
	ix, err := e.approvalInstructions().UpdateApproval(accounts, approval.UpdateApprovalArgs{Grant: !disable, Hash: hash})
	if err != nil {
		return err
	}
	return e.send(ctx, ix)
}

func runUpdateCommission(ctx context.Context, e *env, args []string) error {
	var (
		identity      solana.PublicKey
		commissionBps uint16
		commissionSet bool
	)
	fs := newFlagSet("update-commission")
	pubkeyVar(fs, &identity, "identity", "i", "validator identity")
	bpsVar(fs, &commissionBps, &commissionSet, "commission-bps", "c", "new validator commission in basis points")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireKey(identity, "identity"); err != nil {
		return err
	}
	if e.variant == approval.Activation && !commissionSet {
		return errors.New("--commission-bps is required")
	}

	cfg, key, a, err := e.loadApproval(ctx, identity)
	if err != nil {
		return err
	}
	party, err := e.party(identity, cfg, a)
	if err != nil {
		return err
	}
	if party == approval.PartyValidator && commissionSet && commissionBps == a.ValidatorCommissionBps {
		return errors.New("no transaction required, commission value is unchanged")
	}

	var bps *uint16
	if commissionSet {
		bps = &commissionBps
	}
	f := section(e.out, fmt.Sprintf("Updating %s commission", e.variant)).
		add("Address", key).
		add("Identity", identity).
		add("Signer as", party)
	if commissionSet {
		f.add("Validator commission (bps)", commissionBps)
	}
	f.flush()

	accounts, err := approval.NewValidatorAccounts(e.variant, e.approvalProgramID, identity, e.signerKey())
	if err != nil {
		return err
	}
	ix, err := e.approvalInstructions().UpdateCommission(accounts, approval.UpdateCommissionArgs{ValidatorCommissionBps: bps})
	if err != nil {
		return err
	}
	return e.send(ctx, ix)
}

func runClose(ctx context.Context, e *env, args []string) error {
	var identity solana.PublicKey
	fs := newFlagSet("close")
	pubkeyVar(fs, &identity, "identity", "i", "validator identity")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireKey(identity, "identity"); err != nil {
		return err
	}

	cfg, key, a, err := e.loadApproval(ctx, identity)
	if err != nil {
		return err
	}
	bb := e.blockBuilderAuthority(cfg, a)
	if signer := e.signerKey(); !signer.Equals(bb) {
		return fmt.Errorf("%w: expected block builder (%s), found %s", ErrUnauthorizedSigner, bb, signer)
	}
	section(e.out, fmt.Sprintf("Closing %s account", e.variant)).
		add("Address", key).
		add("Identity", identity).
		flush()

	accounts, err := approval.NewValidatorAccounts(e.variant, e.approvalProgramID, identity, e.signerKey())
	if err != nil {
		return err
	}
	ix, err := e.approvalInstructions().Close(accounts)
	if err != nil {
		return err
	}
	return e.send(ctx, ix)
}

func runShow(ctx context.Context, e *env, args []string) error {
	var identity solana.PublicKey
	fs := newFlagSet("show")
	pubkeyVar(fs, &identity, "identity", "i", "validator identity")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireKey(identity, "identity"); err != nil {
		return err
	}
	key, a, err := e.chain.ApprovalAccount(ctx, e.variant, identity)
	if err != nil {
		return err
	}
	printApprovalAccount(e.out, e.variant, key, a)
	return nil
}

func parseHash(s string) (state.Hash, error) {
	var h state.Hash
	b, err := base58.Decode(s)
	if err != nil {
		return h, fmt.Errorf("invalid base58 hash: %w", err)
	}
	if len(b) != state.HashLength {
		return h, fmt.Errorf("hash must be %d bytes, got %d", state.HashLength, len(b))
	}
	copy(h[:], b)
	return h, nil
}
