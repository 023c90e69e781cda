// Package cli implements the rakurai command line tool: approval account
// management for both approval programs, reward collection inspection, Merkle
// tree generation, root upload and claiming.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
	flag "github.com/spf13/pflag"

	"github.com/rakurai-io/rakurai/client/pkg/client"
	"github.com/rakurai-io/rakurai/programs/pkg/approval"
	"github.com/rakurai-io/rakurai/programs/pkg/pda"
	"github.com/rakurai-io/rakurai/programs/pkg/state"
	"github.com/rakurai-io/rakurai/programs/pkg/vote"
)

// ErrUnauthorizedSigner is returned by preflight checks when the keypair
// cannot sign the requested instruction.
var ErrUnauthorizedSigner = errors.New("unauthorized signer")

// Chain is the on-chain access the commands need.
type Chain interface {
	Epoch(ctx context.Context) (uint64, error)
	ApprovalConfig(ctx context.Context, v approval.Variant) (solana.PublicKey, *state.ApprovalConfig, error)
	ApprovalAccount(ctx context.Context, v approval.Variant, identity solana.PublicKey) (solana.PublicKey, *approval.Account, error)
	DistributionConfig(ctx context.Context) (solana.PublicKey, *state.DistributionConfig, error)
	CollectionFor(ctx context.Context, voteAccount solana.PublicKey, epoch uint64) (*client.Collection, error)
	ClaimStatus(ctx context.Context, key solana.PublicKey) (*client.ClaimStatus, error)
	IdentityOracle(ctx context.Context) vote.IdentityOracle
	Send(ctx context.Context, signers []solana.PrivateKey, ixs ...solana.Instruction) (solana.Signature, error)
}

type Config struct {
	Stdout io.Writer
	Stderr io.Writer

	// NewChain connects to url. Defaults to a client over JSON-RPC.
	NewChain func(cfg client.Config, url string) (Chain, error)
	// LoadKeypair reads a solana-keygen keypair file.
	LoadKeypair func(path string) (solana.PrivateKey, error)
	// NewLogger builds the logger handed to the client.
	NewLogger func(verbose bool) *slog.Logger
}

func (cfg *Config) Validate() error {
	if cfg.Stdout == nil {
		cfg.Stdout = os.Stdout
	}
	if cfg.Stderr == nil {
		cfg.Stderr = os.Stderr
	}
	if cfg.NewChain == nil {
		cfg.NewChain = func(cfg client.Config, url string) (Chain, error) {
			cfg.RPC = solanarpc.New(url)
			return client.New(cfg)
		}
	}
	if cfg.LoadKeypair == nil {
		cfg.LoadKeypair = loadKeypair
	}
	if cfg.NewLogger == nil {
		return errors.New("logger constructor is required")
	}
	return nil
}

type command struct {
	name    string
	usage   string
	chain   bool
	keypair bool
	run     func(ctx context.Context, e *env, args []string) error
}

var commands = []command{
	{name: "init-config", usage: "initialize the approval program config", chain: true, keypair: true, run: runInitConfig},
	{name: "update-config", usage: "replace fields of the approval program config", chain: true, keypair: true, run: runUpdateConfig},
	{name: "show-config", usage: "display the approval program config", chain: true, run: runShowConfig},
	{name: "init", usage: "initialize the approval account of a validator", chain: true, keypair: true, run: runInit},
	{name: "scheduler-control", usage: "grant or revoke scheduler approval", chain: true, keypair: true, run: runSchedulerControl},
	{name: "update-commission", usage: "update the validator commission", chain: true, keypair: true, run: runUpdateCommission},
	{name: "close", usage: "close the approval account of a validator", chain: true, keypair: true, run: runClose},
	{name: "show", usage: "display the approval account of a validator", chain: true, run: runShow},
	{name: "show-collection", usage: "display a reward collection account", chain: true, run: runShowCollection},
	{name: "generate-tree", usage: "build a tree file from a claims file", run: runGenerateTree},
	{name: "upload-root", usage: "upload the root of a tree file", chain: true, keypair: true, run: runUploadRoot},
	{name: "claim", usage: "claim rewards using a tree file", chain: true, keypair: true, run: runClaim},
	{name: "derive", usage: "print program derived addresses", run: runDerive},
}

// env is the state shared by every command.
type env struct {
	out     io.Writer
	log     *slog.Logger
	variant approval.Variant
	chain   Chain
	signer  solana.PrivateKey

	approvalProgramID     solana.PublicKey
	distributionProgramID solana.PublicKey
}

func (e *env) signerKey() solana.PublicKey {
	return e.signer.PublicKey()
}

func (e *env) send(ctx context.Context, ix solana.Instruction) error {
	sig, err := e.chain.Send(ctx, []solana.PrivateKey{e.signer}, ix)
	if err != nil {
		return fmt.Errorf("failed to send transaction: %w", err)
	}
	fmt.Fprintf(e.out, "Signature: %s\n", sig)
	return nil
}

// Run parses args and runs one command.
func Run(ctx context.Context, cfg Config, args []string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	fs := flag.NewFlagSet("rakurai", flag.ContinueOnError)
	fs.SetInterspersed(false)
	fs.SetOutput(cfg.Stderr)
	keypairFlag := fs.StringP("keypair", "k", "~/.config/solana/id.json", "path to the signer keypair")
	urlFlag := fs.StringP("url", "u", "t", "Solana RPC URL or moniker m|t|d|l")
	programFlag := fs.String("program", "activation", "approval program: multisig or activation")
	programIDFlag := fs.StringP("program-id", "p", "", "override the approval program id")
	distributionIDFlag := fs.String("distribution-program-id", "", "override the distribution program id")
	verboseFlag := fs.BoolP("verbose", "v", false, "enable verbose (debug) logging")
	fs.Usage = func() {
		fmt.Fprintf(cfg.Stderr, "Usage: rakurai [global flags] <command> [flags]\n\nCommands:\n")
		for _, c := range commands {
			fmt.Fprintf(cfg.Stderr, "  %-18s %s\n", c.name, c.usage)
		}
		fmt.Fprintf(cfg.Stderr, "\nGlobal flags:\n%s", fs.FlagUsages())
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return errors.New("command is required")
	}

	name := fs.Arg(0)
	i := slices.IndexFunc(commands, func(c command) bool { return c.name == name })
	if i < 0 {
		fs.Usage()
		return fmt.Errorf("unknown command %q", name)
	}
	cmd := commands[i]

	variant, err := approval.ParseVariant(*programFlag)
	if err != nil {
		return err
	}
	log := cfg.NewLogger(*verboseFlag)
	e := &env{out: cfg.Stdout, log: log, variant: variant}

	e.approvalProgramID = variant.DefaultProgramID()
	if *programIDFlag != "" {
		if e.approvalProgramID, err = solana.PublicKeyFromBase58(*programIDFlag); err != nil {
			return fmt.Errorf("invalid program id: %w", err)
		}
	}
	e.distributionProgramID = pda.DistributionProgramID
	if *distributionIDFlag != "" {
		if e.distributionProgramID, err = solana.PublicKeyFromBase58(*distributionIDFlag); err != nil {
			return fmt.Errorf("invalid distribution program id: %w", err)
		}
	}
	clientCfg := client.Config{Logger: log, DistributionProgramID: e.distributionProgramID}
	if variant == approval.Activation {
		clientCfg.ActivationProgramID = e.approvalProgramID
	} else {
		clientCfg.MultisigProgramID = e.approvalProgramID
	}

	if cmd.keypair {
		e.signer, err = cfg.LoadKeypair(*keypairFlag)
		if err != nil {
			return fmt.Errorf("failed to load keypair %s: %w", *keypairFlag, err)
		}
	}
	if cmd.chain {
		e.chain, err = cfg.NewChain(clientCfg, client.NormalizeURL(*urlFlag))
		if err != nil {
			return fmt.Errorf("failed to connect: %w", err)
		}
	}

	return cmd.run(ctx, e, fs.Args()[1:])
}

func loadKeypair(path string) (solana.PrivateKey, error) {
	if rest, ok := strings.CutPrefix(path, "~/"); ok {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		path = filepath.Join(home, rest)
	}
	return solana.PrivateKeyFromSolanaKeygenFile(path)
}

// newFlagSet returns a subcommand flag set that reports errors instead of
// exiting.
func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

type pubkeyValue struct {
	pk *solana.PublicKey
}

func (v pubkeyValue) String() string {
	if v.pk == nil || v.pk.IsZero() {
		return ""
	}
	return v.pk.String()
}

func (v pubkeyValue) Set(s string) error {
	pk, err := solana.PublicKeyFromBase58(s)
	if err != nil {
		return fmt.Errorf("invalid public key %q: %w", s, err)
	}
	*v.pk = pk
	return nil
}

func (pubkeyValue) Type() string { return "pubkey" }

// bpsValue parses commissions in basis points and records whether it was set.
type bpsValue struct {
	v   *uint16
	set *bool
}

func (b bpsValue) String() string {
	if b.v == nil {
		return ""
	}
	return fmt.Sprint(*b.v)
}

func (b bpsValue) Set(s string) error {
	v, err := client.ParseCommissionBps(s)
	if err != nil {
		return err
	}
	*b.v = v
	*b.set = true
	return nil
}

func (bpsValue) Type() string { return "bps" }

func pubkeyVar(fs *flag.FlagSet, pk *solana.PublicKey, name, shorthand, usage string) {
	fs.VarP(pubkeyValue{pk: pk}, name, shorthand, usage)
}

func bpsVar(fs *flag.FlagSet, v *uint16, set *bool, name, shorthand, usage string) {
	fs.VarP(bpsValue{v: v, set: set}, name, shorthand, usage)
}

func requireKey(pk solana.PublicKey, name string) error {
	if pk.IsZero() {
		return fmt.Errorf("--%s is required", name)
	}
	return nil
}
