package client

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"github.com/rakurai-io/rakurai/programs/pkg/approval"
	"github.com/rakurai-io/rakurai/programs/pkg/pda"
	"github.com/rakurai-io/rakurai/utils/pkg/retry"
	"golang.org/x/time/rate"
)

// ErrAccountNotFound is returned when an account does not exist on chain.
var ErrAccountNotFound = errors.New("account not found")

// RPC is the subset of the Solana JSON-RPC API the client uses.
type RPC interface {
	GetAccountInfo(ctx context.Context, account solana.PublicKey) (*solanarpc.GetAccountInfoResult, error)
	GetProgramAccountsWithOpts(ctx context.Context, program solana.PublicKey, opts *solanarpc.GetProgramAccountsOpts) (solanarpc.GetProgramAccountsResult, error)
	GetEpochInfo(ctx context.Context, commitment solanarpc.CommitmentType) (*solanarpc.GetEpochInfoResult, error)
	GetLatestBlockhash(ctx context.Context, commitment solanarpc.CommitmentType) (*solanarpc.GetLatestBlockhashResult, error)
	SendTransactionWithOpts(ctx context.Context, tx *solana.Transaction, opts solanarpc.TransactionOpts) (solana.Signature, error)
}

type Config struct {
	Logger *slog.Logger
	RPC    RPC

	Commitment            solanarpc.CommitmentType
	DistributionProgramID solana.PublicKey
	MultisigProgramID     solana.PublicKey
	ActivationProgramID   solana.PublicKey

	// RequestsPerSecond caps outgoing RPC calls. Zero disables limiting.
	RequestsPerSecond float64
	Retry             retry.Config
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.RPC == nil {
		return errors.New("rpc is required")
	}
	if cfg.RequestsPerSecond < 0 {
		return errors.New("requests per second must not be negative")
	}

	if cfg.Commitment == "" {
		cfg.Commitment = solanarpc.CommitmentConfirmed
	}
	if cfg.DistributionProgramID.IsZero() {
		cfg.DistributionProgramID = pda.DistributionProgramID
	}
	if cfg.MultisigProgramID.IsZero() {
		cfg.MultisigProgramID = approval.Multisig.DefaultProgramID()
	}
	if cfg.ActivationProgramID.IsZero() {
		cfg.ActivationProgramID = approval.Activation.DefaultProgramID()
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.DefaultConfig()
	}
	return nil
}

// Client reads and writes Rakurai program accounts over RPC.
type Client struct {
	log     *slog.Logger
	cfg     Config
	limiter *rate.Limiter
}

func New(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Client{
		log: cfg.Logger,
		cfg: cfg,
	}
	if cfg.RequestsPerSecond > 0 {
		burst := int(cfg.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	if c.cfg.Retry.OnRetry == nil {
		c.cfg.Retry.OnRetry = func(attempt int, err error) {
			c.log.Debug("client: retrying rpc call", "attempt", attempt, "error", err)
		}
	}
	return c, nil
}

func (c *Client) DistributionProgramID() solana.PublicKey {
	return c.cfg.DistributionProgramID
}

// ApprovalProgramID returns the configured program id of variant v.
func (c *Client) ApprovalProgramID(v approval.Variant) solana.PublicKey {
	if v == approval.Activation {
		return c.cfg.ActivationProgramID
	}
	return c.cfg.MultisigProgramID
}

// call runs fn under the rate limiter and retry policy and records metrics
// for method.
func call[T any](ctx context.Context, c *Client, method string, fn func(context.Context) (T, error)) (T, error) {
	return retry.DoValue(ctx, c.cfg.Retry, func() (T, error) {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				var zero T
				return zero, err
			}
		}
		start := time.Now()
		v, err := fn(ctx)
		observeRequest(method, time.Since(start), err)
		return v, err
	})
}

// Epoch returns the current epoch.
func (c *Client) Epoch(ctx context.Context) (uint64, error) {
	info, err := call(ctx, c, "getEpochInfo", func(ctx context.Context) (*solanarpc.GetEpochInfoResult, error) {
		return c.cfg.RPC.GetEpochInfo(ctx, c.cfg.Commitment)
	})
	if err != nil {
		return 0, err
	}
	return info.Epoch, nil
}

// Account fetches the raw account at key. It returns ErrAccountNotFound when
// the account does not exist.
func (c *Client) Account(ctx context.Context, key solana.PublicKey) (*solanarpc.Account, error) {
	res, err := call(ctx, c, "getAccountInfo", func(ctx context.Context) (*solanarpc.GetAccountInfoResult, error) {
		res, err := c.cfg.RPC.GetAccountInfo(ctx, key)
		if errors.Is(err, solanarpc.ErrNotFound) {
			return nil, nil
		}
		return res, err
	})
	if err != nil {
		return nil, err
	}
	if res == nil || res.Value == nil {
		return nil, ErrAccountNotFound
	}
	return res.Value, nil
}
