package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"github.com/rakurai-io/rakurai/programs/pkg/approval"
	"github.com/rakurai-io/rakurai/programs/pkg/distribution"
	"github.com/rakurai-io/rakurai/programs/pkg/pda"
	"github.com/rakurai-io/rakurai/programs/pkg/state"
	"github.com/rakurai-io/rakurai/programs/pkg/vote"
)

// Collection is a reward collection account with its address and balance.
type Collection struct {
	Address  solana.PublicKey
	Lamports uint64
	Account  *state.RewardCollection
}

// ClaimStatus is a claim status account with its address and balance.
type ClaimStatus struct {
	Address  solana.PublicKey
	Lamports uint64
	Account  *state.ClaimStatus
}

func (c *Client) ApprovalConfig(ctx context.Context, v approval.Variant) (solana.PublicKey, *state.ApprovalConfig, error) {
	programID := c.ApprovalProgramID(v)
	key, _, err := v.DeriveConfig(programID)
	if err != nil {
		return solana.PublicKey{}, nil, err
	}
	acc, err := c.Account(ctx, key)
	if err != nil {
		return key, nil, fmt.Errorf("failed to fetch %s config %s: %w", v, key, err)
	}
	cfg, err := v.DecodeConfig(programID, acc.Owner, acc.Data.GetBinary())
	if err != nil {
		return key, nil, fmt.Errorf("failed to decode %s config %s: %w", v, key, err)
	}
	return key, cfg, nil
}

// ApprovalAccount fetches the approval account of a validator identity.
func (c *Client) ApprovalAccount(ctx context.Context, v approval.Variant, identity solana.PublicKey) (solana.PublicKey, *approval.Account, error) {
	programID := c.ApprovalProgramID(v)
	key, _, err := v.DeriveAccount(programID, identity)
	if err != nil {
		return solana.PublicKey{}, nil, err
	}
	acc, err := c.Account(ctx, key)
	if err != nil {
		return key, nil, fmt.Errorf("failed to fetch %s account %s: %w", v, key, err)
	}
	a, err := v.DecodeAccount(programID, acc.Owner, acc.Data.GetBinary())
	if err != nil {
		return key, nil, fmt.Errorf("failed to decode %s account %s: %w", v, key, err)
	}
	return key, a, nil
}

func (c *Client) DistributionConfig(ctx context.Context) (solana.PublicKey, *state.DistributionConfig, error) {
	programID := c.cfg.DistributionProgramID
	key, _, err := pda.DeriveDistributionConfig(programID)
	if err != nil {
		return solana.PublicKey{}, nil, err
	}
	acc, err := c.Account(ctx, key)
	if err != nil {
		return key, nil, fmt.Errorf("failed to fetch distribution config %s: %w", key, err)
	}
	cfg, err := distribution.DecodeConfig(programID, acc.Owner, acc.Data.GetBinary())
	if err != nil {
		return key, nil, fmt.Errorf("failed to decode distribution config %s: %w", key, err)
	}
	return key, cfg, nil
}

func (c *Client) Collection(ctx context.Context, key solana.PublicKey) (*Collection, error) {
	acc, err := c.Account(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch reward collection %s: %w", key, err)
	}
	rc, err := distribution.DecodeCollection(c.cfg.DistributionProgramID, acc.Owner, acc.Data.GetBinary())
	if err != nil {
		return nil, fmt.Errorf("failed to decode reward collection %s: %w", key, err)
	}
	return &Collection{Address: key, Lamports: acc.Lamports, Account: rc}, nil
}

// CollectionFor fetches the collection of voteAccount created in epoch.
func (c *Client) CollectionFor(ctx context.Context, voteAccount solana.PublicKey, epoch uint64) (*Collection, error) {
	key, _, err := pda.DeriveRewardCollection(c.cfg.DistributionProgramID, voteAccount, epoch)
	if err != nil {
		return nil, err
	}
	return c.Collection(ctx, key)
}

func (c *Client) ClaimStatus(ctx context.Context, key solana.PublicKey) (*ClaimStatus, error) {
	acc, err := c.Account(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch claim status %s: %w", key, err)
	}
	cs, err := distribution.DecodeClaimStatus(c.cfg.DistributionProgramID, acc.Owner, acc.Data.GetBinary())
	if err != nil {
		return nil, fmt.Errorf("failed to decode claim status %s: %w", key, err)
	}
	return &ClaimStatus{Address: key, Lamports: acc.Lamports, Account: cs}, nil
}

// programAccounts lists the accounts of programID whose data starts with
// disc.
func (c *Client) programAccounts(ctx context.Context, programID solana.PublicKey, disc state.Discriminator) (solanarpc.GetProgramAccountsResult, error) {
	return call(ctx, c, "getProgramAccounts", func(ctx context.Context) (solanarpc.GetProgramAccountsResult, error) {
		return c.cfg.RPC.GetProgramAccountsWithOpts(ctx, programID, &solanarpc.GetProgramAccountsOpts{
			Commitment: c.cfg.Commitment,
			Filters: []solanarpc.RPCFilter{
				{Memcmp: &solanarpc.RPCFilterMemcmp{Offset: 0, Bytes: disc[:]}},
			},
		})
	})
}

// ListCollections returns every reward collection account of the
// distribution program. Accounts that fail to decode are logged and skipped.
func (c *Client) ListCollections(ctx context.Context) ([]Collection, error) {
	res, err := c.programAccounts(ctx, c.cfg.DistributionProgramID, state.RewardCollectionDiscriminator)
	if err != nil {
		return nil, fmt.Errorf("failed to list reward collections: %w", err)
	}
	out := make([]Collection, 0, len(res))
	for _, item := range res {
		if item == nil || item.Account == nil {
			continue
		}
		rc, err := distribution.DecodeCollection(c.cfg.DistributionProgramID, item.Account.Owner, item.Account.Data.GetBinary())
		if err != nil {
			c.log.Warn("client: skipping undecodable reward collection", "address", item.Pubkey, "error", err)
			continue
		}
		out = append(out, Collection{Address: item.Pubkey, Lamports: item.Account.Lamports, Account: rc})
	}
	return out, nil
}

// ListClaimStatuses returns every claim status account of the distribution
// program.
func (c *Client) ListClaimStatuses(ctx context.Context) ([]ClaimStatus, error) {
	res, err := c.programAccounts(ctx, c.cfg.DistributionProgramID, state.ClaimStatusDiscriminator)
	if err != nil {
		return nil, fmt.Errorf("failed to list claim statuses: %w", err)
	}
	out := make([]ClaimStatus, 0, len(res))
	for _, item := range res {
		if item == nil || item.Account == nil {
			continue
		}
		cs, err := distribution.DecodeClaimStatus(c.cfg.DistributionProgramID, item.Account.Owner, item.Account.Data.GetBinary())
		if err != nil {
			c.log.Warn("client: skipping undecodable claim status", "address", item.Pubkey, "error", err)
			continue
		}
		out = append(out, ClaimStatus{Address: item.Pubkey, Lamports: item.Account.Lamports, Account: cs})
	}
	return out, nil
}

// IdentityOracle resolves vote accounts over RPC using ctx for every lookup.
func (c *Client) IdentityOracle(ctx context.Context) vote.IdentityOracle {
	return rpcOracle{ctx: ctx, client: c}
}

type rpcOracle struct {
	ctx    context.Context
	client *Client
}

func (o rpcOracle) NodeIdentity(voteAccount solana.PublicKey) (solana.PublicKey, error) {
	acc, err := o.client.Account(o.ctx, voteAccount)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return solana.PublicKey{}, fmt.Errorf("%w: %s", vote.ErrNotVoteAccount, voteAccount)
		}
		return solana.PublicKey{}, err
	}
	if !acc.Owner.Equals(solana.VoteProgramID) {
		return solana.PublicKey{}, fmt.Errorf("%w: %s", vote.ErrNotVoteAccount, voteAccount)
	}
	return vote.NodeIdentityFromData(acc.Data.GetBinary())
}
