package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/rakurai-io/rakurai/client/pkg/client"
	"github.com/rakurai-io/rakurai/distributor/pkg/tree"
	"github.com/rakurai-io/rakurai/programs/pkg/approval"
	"github.com/rakurai-io/rakurai/programs/pkg/distribution"
	"github.com/rakurai-io/rakurai/programs/pkg/pda"
)

func (e *env) distributionInstructions() distribution.Instructions {
	return distribution.Instructions{ProgramID: e.distributionProgramID}
}

func runShowCollection(ctx context.Context, e *env, args []string) error {
	var (
		voteAccount solana.PublicKey
		epoch       uint64
	)
	fs := newFlagSet("show-collection")
	pubkeyVar(fs, &voteAccount, "vote-pubkey", "v", "validator vote account")
	fs.Uint64VarP(&epoch, "epoch", "e", 0, "creation epoch of the collection (default current epoch)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireKey(voteAccount, "vote-pubkey"); err != nil {
		return err
	}

	current, err := e.chain.Epoch(ctx)
	if err != nil {
		return err
	}
	if !fs.Changed("epoch") {
		epoch = current
	}
	c, err := e.chain.CollectionFor(ctx, voteAccount, epoch)
	if err != nil {
		return err
	}
	printCollection(e.out, current, c)
	return nil
}

func runGenerateTree(_ context.Context, e *env, args []string) error {
	var claimsPath, outPath string
	fs := newFlagSet("generate-tree")
	fs.StringVarP(&claimsPath, "claims", "c", "", "claims file to read")
	fs.StringVarP(&outPath, "out", "o", "", "tree file to write")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if claimsPath == "" || outPath == "" {
		return errors.New("--claims and --out are required")
	}

	claims, err := tree.LoadClaims(claimsPath)
	if err != nil {
		return err
	}
	t, err := tree.Build(claims)
	if err != nil {
		return fmt.Errorf("failed to build tree: %w", err)
	}
	if err := t.Save(outPath); err != nil {
		return err
	}
	section(e.out, "Tree generated").
		add("File", outPath).
		add("Vote account", t.VoteAccount).
		add("Epoch", t.Epoch).
		add("Merkle root", tree.EncodeHash(t.Root)).
		add("Max total claim", t.MaxTotalClaim).
		add("Max nodes", t.MaxNumNodes).
		flush()
	return nil
}

func runUploadRoot(ctx context.Context, e *env, args []string) error {
	var treePath string
	fs := newFlagSet("upload-root")
	fs.StringVarP(&treePath, "tree", "t", "", "tree file whose root to upload")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if treePath == "" {
		return errors.New("--tree is required")
	}
	t, err := tree.Load(treePath)
	if err != nil {
		return err
	}

	c, err := e.chain.CollectionFor(ctx, t.VoteAccount, t.Epoch)
	if err != nil {
		return err
	}
	rc := c.Account
	signer := e.signerKey()
	if !signer.Equals(rc.MerkleRootUploadAuthority) {
		return fmt.Errorf("%w: expected root upload authority (%s), found %s", ErrUnauthorizedSigner, rc.MerkleRootUploadAuthority, signer)
	}
	epoch, err := e.chain.Epoch(ctx)
	if err != nil {
		return err
	}
	switch {
	case epoch <= rc.CreationEpoch:
		return fmt.Errorf("root upload is premature: collection created in epoch %d, current epoch %d", rc.CreationEpoch, epoch)
	case epoch > rc.ExpiresAt:
		return fmt.Errorf("collection expired at epoch %d", rc.ExpiresAt)
	}
	if m := rc.MerkleRoot; m != nil {
		if m.Root == t.Root && m.MaxTotalClaim == t.MaxTotalClaim && m.MaxNumNodes == t.MaxNumNodes {
			fmt.Fprintln(e.out, "Root already uploaded, no transaction required.")
			return nil
		}
		if m.NumNodesClaimed > 0 {
			return fmt.Errorf("root is locked: %d claims already made", m.NumNodesClaimed)
		}
	}

	configKey, _, err := pda.DeriveDistributionConfig(e.distributionProgramID)
	if err != nil {
		return err
	}
	section(e.out, "Uploading merkle root").
		add("Collection", c.Address).
		add("Merkle root", tree.EncodeHash(t.Root)).
		add("Max total claim", t.MaxTotalClaim).
		add("Max nodes", t.MaxNumNodes).
		flush()

	ix, err := e.distributionInstructions().UploadMerkleRoot(
		distribution.UploadMerkleRootAccounts{
			Config:                    configKey,
			RewardCollection:          c.Address,
			MerkleRootUploadAuthority: signer,
		},
		distribution.UploadMerkleRootArgs{Root: t.Root, MaxTotalClaim: t.MaxTotalClaim, MaxNumNodes: t.MaxNumNodes},
	)
	if err != nil {
		return err
	}
	return e.send(ctx, ix)
}

func runClaim(ctx context.Context, e *env, args []string) error {
	var (
		treePath string
		claimant solana.PublicKey
	)
	fs := newFlagSet("claim")
	fs.StringVarP(&treePath, "tree", "t", "", "tree file holding the claimant's proof")
	pubkeyVar(fs, &claimant, "claimant", "c", "claimant to pay (default signer)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if treePath == "" {
		return errors.New("--tree is required")
	}
	signer := e.signerKey()
	if claimant.IsZero() {
		claimant = signer
	}

	t, err := tree.Load(treePath)
	if err != nil {
		return err
	}
	node, ok := t.Node(claimant)
	if !ok {
		return fmt.Errorf("claimant %s is not in tree %s", claimant, treePath)
	}

	accounts, bump, err := distribution.ClaimAccountsFor(e.distributionProgramID, t.VoteAccount, t.Epoch, claimant, signer)
	if err != nil {
		return err
	}
	c, err := e.chain.CollectionFor(ctx, t.VoteAccount, t.Epoch)
	if err != nil {
		return err
	}
	if m := c.Account.MerkleRoot; m == nil || m.Root != t.Root {
		return errors.New("the tree's root has not been uploaded to the collection")
	}
	epoch, err := e.chain.Epoch(ctx)
	if err != nil {
		return err
	}
	if epoch > c.Account.ExpiresAt {
		return fmt.Errorf("collection expired at epoch %d", c.Account.ExpiresAt)
	}
	if _, err := e.chain.ClaimStatus(ctx, accounts.ClaimStatus); err == nil {
		return fmt.Errorf("claimant %s has already claimed from %s", claimant, c.Address)
	} else if !errors.Is(err, client.ErrAccountNotFound) {
		return err
	}

	section(e.out, "Claiming rewards").
		add("Collection", c.Address).
		add("Claimant", claimant).
		add("Amount (lamports)", node.Amount).
		add("Claim status", accounts.ClaimStatus).
		flush()

	ix, err := e.distributionInstructions().Claim(accounts, distribution.ClaimArgs{Bump: bump, Amount: node.Amount, Proof: node.Proof})
	if err != nil {
		return err
	}
	return e.send(ctx, ix)
}

func runDerive(_ context.Context, e *env, args []string) error {
	var (
		identity    solana.PublicKey
		voteAccount solana.PublicKey
		claimant    solana.PublicKey
		epoch       uint64
	)
	fs := newFlagSet("derive")
	pubkeyVar(fs, &identity, "identity", "i", "validator identity for the approval account")
	pubkeyVar(fs, &voteAccount, "vote-pubkey", "v", "validator vote account for the reward collection")
	fs.Uint64VarP(&epoch, "epoch", "e", 0, "creation epoch of the reward collection")
	pubkeyVar(fs, &claimant, "claimant", "c", "claimant for the claim status")
	if err := fs.Parse(args); err != nil {
		return err
	}

	f := section(e.out, "Derived addresses")
	for _, v := range []approval.Variant{approval.Multisig, approval.Activation} {
		programID := v.DefaultProgramID()
		if v == e.variant {
			programID = e.approvalProgramID
		}
		key, bump, err := v.DeriveConfig(programID)
		if err != nil {
			return err
		}
		f.add(fmt.Sprintf("%s config", v), fmt.Sprintf("%s (bump %d)", key, bump))
		if !identity.IsZero() {
			key, bump, err := v.DeriveAccount(programID, identity)
			if err != nil {
				return err
			}
			f.add(fmt.Sprintf("%s account", v), fmt.Sprintf("%s (bump %d)", key, bump))
		}
	}

	key, bump, err := pda.DeriveDistributionConfig(e.distributionProgramID)
	if err != nil {
		return err
	}
	f.add("distribution config", fmt.Sprintf("%s (bump %d)", key, bump))
	if !voteAccount.IsZero() && fs.Changed("epoch") {
		collection, bump, err := pda.DeriveRewardCollection(e.distributionProgramID, voteAccount, epoch)
		if err != nil {
			return err
		}
		f.add("reward collection", fmt.Sprintf("%s (bump %d)", collection, bump))
		if !claimant.IsZero() {
			status, bump, err := pda.DeriveClaimStatus(e.distributionProgramID, claimant, collection)
			if err != nil {
				return err
			}
			f.add("claim status", fmt.Sprintf("%s (bump %d)", status, bump))
		}
	}
	f.flush()
	return nil
}
