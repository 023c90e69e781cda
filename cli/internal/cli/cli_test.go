package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	"github.com/rakurai-io/rakurai/client/pkg/client"
	"github.com/rakurai-io/rakurai/distributor/pkg/tree"
	"github.com/rakurai-io/rakurai/programs/pkg/approval"
	"github.com/rakurai-io/rakurai/programs/pkg/distribution"
	"github.com/rakurai-io/rakurai/programs/pkg/pda"
	"github.com/rakurai-io/rakurai/programs/pkg/state"
	"github.com/rakurai-io/rakurai/programs/pkg/vote"
	rakuraitesting "github.com/rakurai-io/rakurai/utils/pkg/testing"
)

type identityOracleFunc func(solana.PublicKey) (solana.PublicKey, error)

func (f identityOracleFunc) NodeIdentity(voteAccount solana.PublicKey) (solana.PublicKey, error) {
	return f(voteAccount)
}

type mockChain struct {
	EpochFunc              func(ctx context.Context) (uint64, error)
	ApprovalConfigFunc     func(ctx context.Context, v approval.Variant) (solana.PublicKey, *state.ApprovalConfig, error)
	ApprovalAccountFunc    func(ctx context.Context, v approval.Variant, identity solana.PublicKey) (solana.PublicKey, *approval.Account, error)
	DistributionConfigFunc func(ctx context.Context) (solana.PublicKey, *state.DistributionConfig, error)
	CollectionForFunc      func(ctx context.Context, voteAccount solana.PublicKey, epoch uint64) (*client.Collection, error)
	ClaimStatusFunc        func(ctx context.Context, key solana.PublicKey) (*client.ClaimStatus, error)
	NodeIdentityFunc       func(voteAccount solana.PublicKey) (solana.PublicKey, error)

	sent []solana.Instruction
}

func (m *mockChain) Epoch(ctx context.Context) (uint64, error) {
	if m.EpochFunc != nil {
		return m.EpochFunc(ctx)
	}
	return 100, nil
}

func (m *mockChain) ApprovalConfig(ctx context.Context, v approval.Variant) (solana.PublicKey, *state.ApprovalConfig, error) {
	if m.ApprovalConfigFunc != nil {
		return m.ApprovalConfigFunc(ctx, v)
	}
	return solana.PublicKey{}, nil, client.ErrAccountNotFound
}

func (m *mockChain) ApprovalAccount(ctx context.Context, v approval.Variant, identity solana.PublicKey) (solana.PublicKey, *approval.Account, error) {
	if m.ApprovalAccountFunc != nil {
		return m.ApprovalAccountFunc(ctx, v, identity)
	}
	return solana.PublicKey{}, nil, client.ErrAccountNotFound
}

func (m *mockChain) DistributionConfig(ctx context.Context) (solana.PublicKey, *state.DistributionConfig, error) {
	if m.DistributionConfigFunc != nil {
		return m.DistributionConfigFunc(ctx)
	}
	return solana.PublicKey{}, nil, client.ErrAccountNotFound
}

func (m *mockChain) CollectionFor(ctx context.Context, voteAccount solana.PublicKey, epoch uint64) (*client.Collection, error) {
	if m.CollectionForFunc != nil {
		return m.CollectionForFunc(ctx, voteAccount, epoch)
	}
	return nil, client.ErrAccountNotFound
}

func (m *mockChain) ClaimStatus(ctx context.Context, key solana.PublicKey) (*client.ClaimStatus, error) {
	if m.ClaimStatusFunc != nil {
		return m.ClaimStatusFunc(ctx, key)
	}
	return nil, client.ErrAccountNotFound
}

func (m *mockChain) IdentityOracle(context.Context) vote.IdentityOracle {
	return identityOracleFunc(func(voteAccount solana.PublicKey) (solana.PublicKey, error) {
		if m.NodeIdentityFunc != nil {
			return m.NodeIdentityFunc(voteAccount)
		}
		return solana.PublicKey{}, client.ErrAccountNotFound
	})
}

func (m *mockChain) Send(_ context.Context, _ []solana.PrivateKey, ixs ...solana.Instruction) (solana.Signature, error) {
	m.sent = append(m.sent, ixs...)
	return solana.Signature{1}, nil
}

func newKey(b byte) solana.PublicKey {
	var pk solana.PublicKey
	pk[0] = b
	pk[31] = b
	return pk
}

type harness struct {
	chain  *mockChain
	signer solana.PrivateKey
	out    *bytes.Buffer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	signer, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	return &harness{chain: &mockChain{}, signer: signer, out: &bytes.Buffer{}}
}

func (h *harness) run(args ...string) error {
	return Run(context.Background(), Config{
		Stdout: h.out,
		Stderr: &bytes.Buffer{},
		NewChain: func(client.Config, string) (Chain, error) {
			return h.chain, nil
		},
		LoadKeypair: func(string) (solana.PrivateKey, error) {
			return h.signer, nil
		},
		NewLogger: func(bool) *slog.Logger { return rakuraitesting.NewLogger() },
	}, args)
}

func requireInstruction(t *testing.T, want, got solana.Instruction) {
	t.Helper()
	require.Equal(t, want.ProgramID(), got.ProgramID())
	require.Equal(t, want.Accounts(), got.Accounts())
	wantData, err := want.Data()
	require.NoError(t, err)
	gotData, err := got.Data()
	require.NoError(t, err)
	require.Equal(t, wantData, gotData)
}

func TestRakurai_CLI_Run(t *testing.T) {
	t.Parallel()

	t.Run("command is required", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		require.EqualError(t, h.run(), "command is required")
	})

	t.Run("unknown command", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		require.EqualError(t, h.run("frobnicate"), `unknown command "frobnicate"`)
	})

	t.Run("unknown program variant", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		require.Error(t, h.run("--program", "bogus", "show-config"))
	})

	t.Run("logger constructor is required", func(t *testing.T) {
		t.Parallel()
		err := Run(context.Background(), Config{}, []string{"derive"})
		require.EqualError(t, err, "logger constructor is required")
	})

	t.Run("keypair errors are reported", func(t *testing.T) {
		t.Parallel()
		err := Run(context.Background(), Config{
			Stdout:      &bytes.Buffer{},
			Stderr:      &bytes.Buffer{},
			NewChain:    func(client.Config, string) (Chain, error) { return &mockChain{}, nil },
			LoadKeypair: func(string) (solana.PrivateKey, error) { return nil, os.ErrNotExist },
			NewLogger:   func(bool) *slog.Logger { return rakuraitesting.NewLogger() },
		}, []string{"-k", "/missing.json", "init-config"})
		require.ErrorIs(t, err, os.ErrNotExist)
	})
}

func TestRakurai_CLI_InitConfig(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	commissionAccount := newKey(9)
	require.NoError(t, h.run("--program", "multisig", "init-config", "-c", "1500", "-a", commissionAccount.String()))
	require.Len(t, h.chain.sent, 1)

	signer := h.signer.PublicKey()
	key, bump, err := approval.Multisig.DeriveConfig(approval.Multisig.DefaultProgramID())
	require.NoError(t, err)
	want, err := approval.Instructions{Variant: approval.Multisig, ProgramID: approval.Multisig.DefaultProgramID()}.InitializeConfig(
		approval.InitializeConfigAccounts{Config: key, Initializer: signer},
		approval.InitializeConfigArgs{
			Authority:                     signer,
			BlockBuilderAuthority:         signer,
			BlockBuilderCommissionAccount: commissionAccount,
			BlockBuilderCommissionBps:     1500,
			Bump:                          bump,
		},
	)
	require.NoError(t, err)
	requireInstruction(t, want, h.chain.sent[0])
	require.Contains(t, h.out.String(), "Signature:")
}

func TestRakurai_CLI_UpdateConfig(t *testing.T) {
	t.Parallel()

	setup := func(t *testing.T, authority solana.PublicKey) *harness {
		h := newHarness(t)
		h.chain.ApprovalConfigFunc = func(context.Context, approval.Variant) (solana.PublicKey, *state.ApprovalConfig, error) {
			return newKey(1), &state.ApprovalConfig{
				Authority:                     authority,
				BlockBuilderAuthority:         newKey(2),
				BlockBuilderCommissionAccount: newKey(3),
				BlockBuilderCommissionBps:     1000,
			}, nil
		}
		return h
	}

	t.Run("rejects a signer that is not the config authority", func(t *testing.T) {
		t.Parallel()
		h := setup(t, newKey(7))
		err := h.run("update-config", "-c", "500")
		require.ErrorIs(t, err, ErrUnauthorizedSigner)
		require.Empty(t, h.chain.sent)
	})

	t.Run("requires a change", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		signer := h.signer.PublicKey()
		h.chain.ApprovalConfigFunc = func(context.Context, approval.Variant) (solana.PublicKey, *state.ApprovalConfig, error) {
			return newKey(1), &state.ApprovalConfig{Authority: signer, BlockBuilderCommissionBps: 1000}, nil
		}
		require.EqualError(t, h.run("update-config", "-c", "1000"), "no config changes requested")
	})

	t.Run("sends the merged config", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		signer := h.signer.PublicKey()
		h.chain.ApprovalConfigFunc = func(context.Context, approval.Variant) (solana.PublicKey, *state.ApprovalConfig, error) {
			return newKey(1), &state.ApprovalConfig{
				Authority:                     signer,
				BlockBuilderAuthority:         newKey(2),
				BlockBuilderCommissionAccount: newKey(3),
				BlockBuilderCommissionBps:     1000,
				Bump:                          254,
			}, nil
		}
		require.NoError(t, h.run("update-config", "-c", "500"))
		require.Len(t, h.chain.sent, 1)

		want, err := approval.Instructions{Variant: approval.Activation, ProgramID: approval.Activation.DefaultProgramID()}.UpdateConfig(
			approval.UpdateConfigAccounts{Config: newKey(1), Authority: signer},
			approval.UpdateConfigArgs{NewConfig: state.ApprovalConfig{
				Authority:                     signer,
				BlockBuilderAuthority:         newKey(2),
				BlockBuilderCommissionAccount: newKey(3),
				BlockBuilderCommissionBps:     500,
				Bump:                          254,
			}},
		)
		require.NoError(t, err)
		requireInstruction(t, want, h.chain.sent[0])
	})

	t.Run("rejects commission above the ceiling", func(t *testing.T) {
		t.Parallel()
		h := setup(t, newKey(7))
		require.Error(t, h.run("update-config", "-c", "10001"))
	})
}

func TestRakurai_CLI_Init(t *testing.T) {
	t.Parallel()

	voteAccount := newKey(40)

	t.Run("requires the signer to be the vote account identity", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		h.chain.NodeIdentityFunc = func(solana.PublicKey) (solana.PublicKey, error) { return newKey(41), nil }
		err := h.run("init", "-c", "500", "-v", voteAccount.String())
		require.ErrorIs(t, err, ErrUnauthorizedSigner)
		require.Empty(t, h.chain.sent)
	})

	t.Run("requires a commission", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		require.EqualError(t, h.run("init", "-v", voteAccount.String()), "--commission-bps is required")
	})

	t.Run("sends initialize", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		identity := h.signer.PublicKey()
		h.chain.NodeIdentityFunc = func(pk solana.PublicKey) (solana.PublicKey, error) {
			require.Equal(t, voteAccount, pk)
			return identity, nil
		}
		require.NoError(t, h.run("init", "-c", "500", "-v", voteAccount.String()))
		require.Len(t, h.chain.sent, 1)

		v := approval.Activation
		configKey, _, err := v.DeriveConfig(v.DefaultProgramID())
		require.NoError(t, err)
		key, bump, err := v.DeriveAccount(v.DefaultProgramID(), identity)
		require.NoError(t, err)
		want, err := approval.Instructions{Variant: v, ProgramID: v.DefaultProgramID()}.Initialize(
			approval.InitializeAccounts{Config: configKey, Account: key, VoteAccount: voteAccount, Identity: identity, Signer: identity},
			approval.InitializeArgs{ValidatorCommissionBps: 500, Bump: bump},
		)
		require.NoError(t, err)
		requireInstruction(t, want, h.chain.sent[0])
	})
}

func TestRakurai_CLI_SchedulerControl(t *testing.T) {
	t.Parallel()

	identity := newKey(50)

	setup := func(t *testing.T, h *harness, blockBuilder solana.PublicKey, a *approval.Account) {
		h.chain.ApprovalConfigFunc = func(context.Context, approval.Variant) (solana.PublicKey, *state.ApprovalConfig, error) {
			return newKey(1), &state.ApprovalConfig{BlockBuilderAuthority: blockBuilder}, nil
		}
		h.chain.ApprovalAccountFunc = func(_ context.Context, _ approval.Variant, id solana.PublicKey) (solana.PublicKey, *approval.Account, error) {
			require.Equal(t, identity, id)
			return newKey(2), a, nil
		}
	}

	t.Run("rejects an unrelated signer", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		setup(t, h, newKey(60), &approval.Account{ValidatorAuthority: identity})
		err := h.run("scheduler-control", "-i", identity.String())
		require.ErrorIs(t, err, ErrUnauthorizedSigner)
		require.Empty(t, h.chain.sent)
	})

	t.Run("block builder proposal without hash fails preflight", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		setup(t, h, h.signer.PublicKey(), &approval.Account{ValidatorAuthority: identity})
		err := h.run("scheduler-control", "-i", identity.String())
		require.ErrorIs(t, err, approval.ErrMissingHashForEnable)
		require.Empty(t, h.chain.sent)
	})

	t.Run("hash cannot be combined with disable", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		err := h.run("scheduler-control", "-i", identity.String(), "-d", "-s", "abc")
		require.EqualError(t, err, "--hash cannot be used with --disable")
	})

	t.Run("hash is rejected for multisig", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		err := h.run("--program", "multisig", "scheduler-control", "-i", identity.String(), "-s", "abc")
		require.Error(t, err)
	})

	t.Run("already enabled needs no transaction", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		validator := h.signer.PublicKey()
		h.chain.ApprovalConfigFunc = func(context.Context, approval.Variant) (solana.PublicKey, *state.ApprovalConfig, error) {
			return newKey(1), &state.ApprovalConfig{BlockBuilderAuthority: newKey(60)}, nil
		}
		h.chain.ApprovalAccountFunc = func(context.Context, approval.Variant, solana.PublicKey) (solana.PublicKey, *approval.Account, error) {
			return newKey(2), &approval.Account{IsEnabled: true, ValidatorAuthority: validator}, nil
		}
		require.NoError(t, h.run("scheduler-control", "-i", validator.String()))
		require.Empty(t, h.chain.sent)
		require.Contains(t, h.out.String(), "No transaction required.")
	})

	t.Run("block builder proposes with hash", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		builder := h.signer.PublicKey()
		setup(t, h, builder, &approval.Account{ValidatorAuthority: identity})

		var hash state.Hash
		for i := range hash {
			hash[i] = byte(i + 1)
		}
		require.NoError(t, h.run("scheduler-control", "-i", identity.String(), "-s", encodeHash(&hash)))
		require.Len(t, h.chain.sent, 1)

		v := approval.Activation
		accounts, err := approval.NewValidatorAccounts(v, v.DefaultProgramID(), identity, builder)
		require.NoError(t, err)
		want, err := approval.Instructions{Variant: v, ProgramID: v.DefaultProgramID()}.UpdateApproval(accounts, approval.UpdateApprovalArgs{Grant: true, Hash: &hash})
		require.NoError(t, err)
		requireInstruction(t, want, h.chain.sent[0])
		require.Contains(t, h.out.String(), approval.MsgProposedByBuilder)
	})

	t.Run("validator revokes", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		validator := h.signer.PublicKey()
		h.chain.ApprovalConfigFunc = func(context.Context, approval.Variant) (solana.PublicKey, *state.ApprovalConfig, error) {
			return newKey(1), &state.ApprovalConfig{}, nil
		}
		h.chain.ApprovalAccountFunc = func(context.Context, approval.Variant, solana.PublicKey) (solana.PublicKey, *approval.Account, error) {
			return newKey(2), &approval.Account{IsEnabled: true, ValidatorAuthority: validator, BlockBuilderAuthority: newKey(60)}, nil
		}
		require.NoError(t, h.run("--program", "multisig", "scheduler-control", "-i", validator.String(), "-d"))
		require.Len(t, h.chain.sent, 1)
		require.Contains(t, h.out.String(), approval.MsgRevoked)
	})
}

func TestRakurai_CLI_UpdateCommission(t *testing.T) {
	t.Parallel()

	t.Run("activation requires a value", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		require.EqualError(t, h.run("update-commission", "-i", newKey(5).String()), "--commission-bps is required")
	})

	t.Run("unchanged value needs no transaction", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		identity := h.signer.PublicKey()
		h.chain.ApprovalConfigFunc = func(context.Context, approval.Variant) (solana.PublicKey, *state.ApprovalConfig, error) {
			return newKey(1), &state.ApprovalConfig{BlockBuilderAuthority: newKey(60)}, nil
		}
		h.chain.ApprovalAccountFunc = func(context.Context, approval.Variant, solana.PublicKey) (solana.PublicKey, *approval.Account, error) {
			return newKey(2), &approval.Account{ValidatorAuthority: identity, ValidatorCommissionBps: 700}, nil
		}
		err := h.run("update-commission", "-i", identity.String(), "-c", "700")
		require.EqualError(t, err, "no transaction required, commission value is unchanged")
		require.Empty(t, h.chain.sent)
	})

	t.Run("multisig block builder resyncs without a value", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		builder := h.signer.PublicKey()
		identity := newKey(50)
		h.chain.ApprovalConfigFunc = func(context.Context, approval.Variant) (solana.PublicKey, *state.ApprovalConfig, error) {
			return newKey(1), &state.ApprovalConfig{}, nil
		}
		h.chain.ApprovalAccountFunc = func(context.Context, approval.Variant, solana.PublicKey) (solana.PublicKey, *approval.Account, error) {
			return newKey(2), &approval.Account{ValidatorAuthority: identity, BlockBuilderAuthority: builder}, nil
		}
		require.NoError(t, h.run("--program", "multisig", "update-commission", "-i", identity.String()))
		require.Len(t, h.chain.sent, 1)

		v := approval.Multisig
		accounts, err := approval.NewValidatorAccounts(v, v.DefaultProgramID(), identity, builder)
		require.NoError(t, err)
		want, err := approval.Instructions{Variant: v, ProgramID: v.DefaultProgramID()}.UpdateCommission(accounts, approval.UpdateCommissionArgs{})
		require.NoError(t, err)
		requireInstruction(t, want, h.chain.sent[0])
	})
}

func TestRakurai_CLI_Close(t *testing.T) {
	t.Parallel()

	identity := newKey(50)

	t.Run("only the block builder may close", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		h.chain.ApprovalConfigFunc = func(context.Context, approval.Variant) (solana.PublicKey, *state.ApprovalConfig, error) {
			return newKey(1), &state.ApprovalConfig{BlockBuilderAuthority: newKey(60)}, nil
		}
		h.chain.ApprovalAccountFunc = func(context.Context, approval.Variant, solana.PublicKey) (solana.PublicKey, *approval.Account, error) {
			return newKey(2), &approval.Account{ValidatorAuthority: identity}, nil
		}
		err := h.run("close", "-i", identity.String())
		require.ErrorIs(t, err, ErrUnauthorizedSigner)
		require.Empty(t, h.chain.sent)
	})

	t.Run("activation uses the config block builder", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		builder := h.signer.PublicKey()
		h.chain.ApprovalConfigFunc = func(context.Context, approval.Variant) (solana.PublicKey, *state.ApprovalConfig, error) {
			return newKey(1), &state.ApprovalConfig{BlockBuilderAuthority: builder}, nil
		}
		h.chain.ApprovalAccountFunc = func(context.Context, approval.Variant, solana.PublicKey) (solana.PublicKey, *approval.Account, error) {
			return newKey(2), &approval.Account{ValidatorAuthority: identity}, nil
		}
		require.NoError(t, h.run("close", "-i", identity.String()))
		require.Len(t, h.chain.sent, 1)

		v := approval.Activation
		accounts, err := approval.NewValidatorAccounts(v, v.DefaultProgramID(), identity, builder)
		require.NoError(t, err)
		want, err := approval.Instructions{Variant: v, ProgramID: v.DefaultProgramID()}.Close(accounts)
		require.NoError(t, err)
		requireInstruction(t, want, h.chain.sent[0])
	})
}

func TestRakurai_CLI_Show(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	identity := newKey(50)
	proposer := newKey(60)
	h.chain.ApprovalAccountFunc = func(context.Context, approval.Variant, solana.PublicKey) (solana.PublicKey, *approval.Account, error) {
		return newKey(2), &approval.Account{ValidatorAuthority: identity, Proposer: &proposer, ValidatorCommissionBps: 250}, nil
	}
	require.NoError(t, h.run("show", "-i", identity.String()))
	out := h.out.String()
	require.Contains(t, out, "pending (proposed by block-builder)")
	require.Contains(t, out, "250")
	require.Contains(t, out, "Hash:")

	t.Run("missing account", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		err := h.run("show", "-i", identity.String())
		require.ErrorIs(t, err, client.ErrAccountNotFound)
	})
}

func writeTree(t *testing.T, dir string) (string, *tree.Tree, []solana.PublicKey) {
	t.Helper()
	claimants := []solana.PublicKey{newKey(20), newKey(21), newKey(22)}
	claims := tree.Claims{VoteAccount: newKey(3), Epoch: 100}
	for i, c := range claimants {
		claims.Claims = append(claims.Claims, tree.Claim{Claimant: c, Amount: uint64(i+1) * 100_000})
	}
	tr, err := tree.Build(claims)
	require.NoError(t, err)
	path := filepath.Join(dir, "tree.json")
	require.NoError(t, tr.Save(path))
	return path, tr, claimants
}

func TestRakurai_CLI_GenerateTree(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	claimsPath := filepath.Join(dir, "claims.json")
	claimant := newKey(20)
	body := fmt.Sprintf(`{"vote_account":%q,"epoch":7,"claims":[{"claimant":%q,"amount":42}]}`, newKey(3), claimant)
	require.NoError(t, os.WriteFile(claimsPath, []byte(body), 0o644))

	h := newHarness(t)
	outPath := filepath.Join(dir, "tree.json")
	require.NoError(t, h.run("generate-tree", "--claims", claimsPath, "--out", outPath))

	tr, err := tree.Load(outPath)
	require.NoError(t, err)
	require.Equal(t, uint64(7), tr.Epoch)
	require.Equal(t, uint64(42), tr.MaxTotalClaim)
	require.Equal(t, uint64(1), tr.MaxNumNodes)
	require.Contains(t, h.out.String(), tree.EncodeHash(tr.Root))

	t.Run("requires both paths", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		require.EqualError(t, h.run("generate-tree", "--claims", claimsPath), "--claims and --out are required")
	})
}

func TestRakurai_CLI_UploadRoot(t *testing.T) {
	t.Parallel()

	path, tr, _ := writeTree(t, t.TempDir())
	collection, _, err := pda.DeriveRewardCollection(pda.DistributionProgramID, tr.VoteAccount, tr.Epoch)
	require.NoError(t, err)

	setup := func(t *testing.T, rc *state.RewardCollection, epoch uint64) *harness {
		h := newHarness(t)
		if rc.MerkleRootUploadAuthority.IsZero() {
			rc.MerkleRootUploadAuthority = h.signer.PublicKey()
		}
		h.chain.EpochFunc = func(context.Context) (uint64, error) { return epoch, nil }
		h.chain.CollectionForFunc = func(_ context.Context, vote solana.PublicKey, e uint64) (*client.Collection, error) {
			require.Equal(t, tr.VoteAccount, vote)
			require.Equal(t, tr.Epoch, e)
			return &client.Collection{Address: collection, Account: rc}, nil
		}
		return h
	}

	t.Run("rejects a signer that is not the upload authority", func(t *testing.T) {
		t.Parallel()
		h := setup(t, &state.RewardCollection{MerkleRootUploadAuthority: newKey(70), CreationEpoch: 100, ExpiresAt: 103}, 101)
		require.ErrorIs(t, h.run("upload-root", "--tree", path), ErrUnauthorizedSigner)
		require.Empty(t, h.chain.sent)
	})

	t.Run("rejects a premature upload", func(t *testing.T) {
		t.Parallel()
		h := setup(t, &state.RewardCollection{CreationEpoch: 100, ExpiresAt: 103}, 100)
		require.ErrorContains(t, h.run("upload-root", "--tree", path), "premature")
	})

	t.Run("rejects a locked root", func(t *testing.T) {
		t.Parallel()
		h := setup(t, &state.RewardCollection{CreationEpoch: 100, ExpiresAt: 103, MerkleRoot: &state.MerkleRoot{NumNodesClaimed: 1}}, 101)
		require.ErrorContains(t, h.run("upload-root", "--tree", path), "locked")
	})

	t.Run("skips an identical root", func(t *testing.T) {
		t.Parallel()
		h := setup(t, &state.RewardCollection{CreationEpoch: 100, ExpiresAt: 103, MerkleRoot: &state.MerkleRoot{
			Root: tr.Root, MaxTotalClaim: tr.MaxTotalClaim, MaxNumNodes: tr.MaxNumNodes,
		}}, 101)
		require.NoError(t, h.run("upload-root", "--tree", path))
		require.Empty(t, h.chain.sent)
	})

	t.Run("uploads the root", func(t *testing.T) {
		t.Parallel()
		h := setup(t, &state.RewardCollection{CreationEpoch: 100, ExpiresAt: 103}, 101)
		require.NoError(t, h.run("upload-root", "--tree", path))
		require.Len(t, h.chain.sent, 1)

		configKey, _, err := pda.DeriveDistributionConfig(pda.DistributionProgramID)
		require.NoError(t, err)
		want, err := distribution.Instructions{ProgramID: pda.DistributionProgramID}.UploadMerkleRoot(
			distribution.UploadMerkleRootAccounts{Config: configKey, RewardCollection: collection, MerkleRootUploadAuthority: h.signer.PublicKey()},
			distribution.UploadMerkleRootArgs{Root: tr.Root, MaxTotalClaim: tr.MaxTotalClaim, MaxNumNodes: tr.MaxNumNodes},
		)
		require.NoError(t, err)
		requireInstruction(t, want, h.chain.sent[0])
	})
}

func TestRakurai_CLI_Claim(t *testing.T) {
	t.Parallel()

	path, tr, claimants := writeTree(t, t.TempDir())
	collection, _, err := pda.DeriveRewardCollection(pda.DistributionProgramID, tr.VoteAccount, tr.Epoch)
	require.NoError(t, err)
	uploaded := &state.RewardCollection{
		CreationEpoch: 100,
		ExpiresAt:     103,
		MerkleRoot:    &state.MerkleRoot{Root: tr.Root, MaxTotalClaim: tr.MaxTotalClaim, MaxNumNodes: tr.MaxNumNodes},
	}

	setup := func(t *testing.T, rc *state.RewardCollection) *harness {
		h := newHarness(t)
		h.chain.EpochFunc = func(context.Context) (uint64, error) { return 101, nil }
		h.chain.CollectionForFunc = func(context.Context, solana.PublicKey, uint64) (*client.Collection, error) {
			return &client.Collection{Address: collection, Account: rc}, nil
		}
		return h
	}

	t.Run("claimant must be in the tree", func(t *testing.T) {
		t.Parallel()
		h := setup(t, uploaded)
		require.ErrorContains(t, h.run("claim", "--tree", path), "is not in tree")
	})

	t.Run("root must be uploaded", func(t *testing.T) {
		t.Parallel()
		h := setup(t, &state.RewardCollection{CreationEpoch: 100, ExpiresAt: 103})
		require.ErrorContains(t, h.run("claim", "--tree", path, "-c", claimants[0].String()), "has not been uploaded")
	})

	t.Run("already claimed", func(t *testing.T) {
		t.Parallel()
		h := setup(t, uploaded)
		h.chain.ClaimStatusFunc = func(context.Context, solana.PublicKey) (*client.ClaimStatus, error) {
			return &client.ClaimStatus{}, nil
		}
		require.ErrorContains(t, h.run("claim", "--tree", path, "-c", claimants[0].String()), "already claimed")
		require.Empty(t, h.chain.sent)
	})

	t.Run("claim status lookup errors are returned", func(t *testing.T) {
		t.Parallel()
		h := setup(t, uploaded)
		boom := errors.New("rpc down")
		h.chain.ClaimStatusFunc = func(context.Context, solana.PublicKey) (*client.ClaimStatus, error) {
			return nil, boom
		}
		require.ErrorIs(t, h.run("claim", "--tree", path, "-c", claimants[0].String()), boom)
	})

	t.Run("sends the proof", func(t *testing.T) {
		t.Parallel()
		h := setup(t, uploaded)
		claimant := claimants[1]
		require.NoError(t, h.run("claim", "--tree", path, "-c", claimant.String()))
		require.Len(t, h.chain.sent, 1)

		node, ok := tr.Node(claimant)
		require.True(t, ok)
		accounts, bump, err := distribution.ClaimAccountsFor(pda.DistributionProgramID, tr.VoteAccount, tr.Epoch, claimant, h.signer.PublicKey())
		require.NoError(t, err)
		want, err := distribution.Instructions{ProgramID: pda.DistributionProgramID}.Claim(accounts, distribution.ClaimArgs{Bump: bump, Amount: node.Amount, Proof: node.Proof})
		require.NoError(t, err)
		requireInstruction(t, want, h.chain.sent[0])
		require.Contains(t, h.out.String(), "200000")
	})
}

func TestRakurai_CLI_ShowCollection(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	voteAccount := newKey(3)
	h.chain.CollectionForFunc = func(_ context.Context, vote solana.PublicKey, epoch uint64) (*client.Collection, error) {
		require.Equal(t, voteAccount, vote)
		require.Equal(t, uint64(100), epoch)
		return &client.Collection{Address: newKey(4), Lamports: 5_000, Account: &state.RewardCollection{
			ValidatorVoteAccount: voteAccount, CreationEpoch: 100, ExpiresAt: 103,
		}}, nil
	}
	require.NoError(t, h.run("show-collection", "-v", voteAccount.String()))
	require.Contains(t, h.out.String(), "not uploaded")
	require.Contains(t, h.out.String(), "5000")
}

func TestRakurai_CLI_Derive(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	identity := newKey(50)
	voteAccount := newKey(3)
	claimant := newKey(20)
	require.NoError(t, h.run("derive", "-i", identity.String(), "-v", voteAccount.String(), "-e", "100", "-c", claimant.String()))

	out := h.out.String()
	for _, v := range []approval.Variant{approval.Multisig, approval.Activation} {
		key, _, err := v.DeriveAccount(v.DefaultProgramID(), identity)
		require.NoError(t, err)
		require.Contains(t, out, key.String())
	}
	collection, _, err := pda.DeriveRewardCollection(pda.DistributionProgramID, voteAccount, 100)
	require.NoError(t, err)
	require.Contains(t, out, collection.String())
	status, _, err := pda.DeriveClaimStatus(pda.DistributionProgramID, claimant, collection)
	require.NoError(t, err)
	require.Contains(t, out, status.String())
	require.Empty(t, h.chain.sent)
}
