package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/rakurai-io/rakurai/distributor/pkg/clickhouse"
)

// ErrNoSnapshot is returned when no snapshot run has been saved yet.
var ErrNoSnapshot = errors.New("no snapshot saved")

type Config struct {
	Logger     *slog.Logger
	ClickHouse clickhouse.Client
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.ClickHouse == nil {
		return errors.New("clickhouse connection is required")
	}
	return nil
}

// Run describes one saved snapshot of the distribution program's accounts.
type Run struct {
	ID            uuid.UUID
	At            time.Time
	Epoch         uint64
	Collections   int
	ClaimStatuses int
}

type Collection struct {
	Address                   solana.PublicKey
	VoteAccount               solana.PublicKey
	CreationEpoch             uint64
	ExpiresAt                 uint64
	ValidatorCommissionBps    uint16
	RakuraiCommissionBps      uint16
	RakuraiCommissionAccount  solana.PublicKey
	MerkleRootUploadAuthority solana.PublicKey
	Initializer               solana.PublicKey
	// MerkleRoot is the base58 root, nil until uploaded.
	MerkleRoot        *string
	MaxTotalClaim     uint64
	MaxNumNodes       uint64
	TotalFundsClaimed uint64
	NumNodesClaimed   uint64
	Lamports          uint64
	State             string
}

type ClaimStatus struct {
	Address       solana.PublicKey
	Claimant      solana.PublicKey
	Payer         solana.PublicKey
	Amount        uint64
	SlotClaimedAt uint64
	ExpiresAt     uint64
	Lamports      uint64
	IsClaimed     bool
}

type Store struct {
	log *slog.Logger
	cfg Config
}

func New(cfg Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Store{
		log: cfg.Logger,
		cfg: cfg,
	}, nil
}

// SaveSnapshot writes the accounts of run and then the run itself, so a run
// is only listed once all of its rows are stored.
func (s *Store) SaveSnapshot(ctx context.Context, run Run, collections []Collection, claims []ClaimStatus) error {
	s.log.Debug("store: saving snapshot", "run_id", run.ID, "collections", len(collections), "claim_statuses", len(claims))

	conn, err := s.cfg.ClickHouse.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to get ClickHouse connection: %w", err)
	}
	defer conn.Close()

	ctx = clickhouse.ContextWithSyncInsert(ctx)
	at := run.At.UTC()

	if err := writeBatch(ctx, conn, "INSERT INTO reward_collection_snapshots", len(collections), func(i int) []any {
		c := collections[i]
		return []any{
			run.ID, at, c.Address.String(), c.VoteAccount.String(), c.CreationEpoch, c.ExpiresAt,
			c.ValidatorCommissionBps, c.RakuraiCommissionBps, c.RakuraiCommissionAccount.String(),
			c.MerkleRootUploadAuthority.String(), c.Initializer.String(), c.MerkleRoot,
			c.MaxTotalClaim, c.MaxNumNodes, c.TotalFundsClaimed, c.NumNodesClaimed, c.Lamports, c.State,
		}
	}); err != nil {
		return fmt.Errorf("failed to write reward collections: %w", err)
	}

	if err := writeBatch(ctx, conn, "INSERT INTO claim_status_snapshots", len(claims), func(i int) []any {
		c := claims[i]
		return []any{
			run.ID, at, c.Address.String(), c.Claimant.String(), c.Payer.String(),
			c.Amount, c.SlotClaimedAt, c.ExpiresAt, c.Lamports, c.IsClaimed,
		}
	}); err != nil {
		return fmt.Errorf("failed to write claim statuses: %w", err)
	}

	if err := writeBatch(ctx, conn, "INSERT INTO snapshot_runs", 1, func(int) []any {
		return []any{run.ID, at, run.Epoch, uint32(len(collections)), uint32(len(claims))}
	}); err != nil {
		return fmt.Errorf("failed to write snapshot run: %w", err)
	}
	return nil
}

func writeBatch(ctx context.Context, conn clickhouse.Connection, query string, n int, row func(i int) []any) error {
	if n == 0 {
		return nil
	}
	batch, err := conn.PrepareBatch(ctx, query)
	if err != nil {
		return err
	}
	defer batch.Abort()
	for i := range n {
		if err := batch.Append(row(i)...); err != nil {
			return fmt.Errorf("failed to append row %d: %w", i, err)
		}
	}
	return batch.Send()
}

// LatestRun returns the most recent complete snapshot run.
func (s *Store) LatestRun(ctx context.Context) (*Run, error) {
	conn, err := s.cfg.ClickHouse.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get ClickHouse connection: %w", err)
	}
	defer conn.Close()

	rows, err := conn.Query(ctx, `
		SELECT run_id, snapshot_ts, epoch, collections, claim_statuses
		FROM snapshot_runs
		ORDER BY snapshot_ts DESC
		LIMIT 1`)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest run: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, ErrNoSnapshot
	}
	var (
		run                        Run
		collections, claimStatuses uint32
	)
	if err := rows.Scan(&run.ID, &run.At, &run.Epoch, &collections, &claimStatuses); err != nil {
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}
	run.At = run.At.UTC()
	run.Collections = int(collections)
	run.ClaimStatuses = int(claimStatuses)
	return &run, nil
}

const collectionColumns = `address, vote_account, creation_epoch, expires_at,
	validator_commission_bps, rakurai_commission_bps, rakurai_commission_account,
	merkle_root_upload_authority, initializer, merkle_root,
	max_total_claim, max_num_nodes, total_funds_claimed, num_nodes_claimed, lamports, state`

// Collections returns the collections saved in run, ordered by address.
func (s *Store) Collections(ctx context.Context, runID uuid.UUID) ([]Collection, error) {
	return s.queryCollections(ctx, `SELECT `+collectionColumns+`
		FROM reward_collection_snapshots
		WHERE run_id = ?
		ORDER BY address`, runID)
}

// CollectionHistory returns up to limit snapshots of one collection, newest
// first.
func (s *Store) CollectionHistory(ctx context.Context, address solana.PublicKey, limit int) ([]Collection, error) {
	return s.queryCollections(ctx, `SELECT `+collectionColumns+`
		FROM reward_collection_snapshots
		WHERE address = ?
		ORDER BY snapshot_ts DESC
		LIMIT ?`, address.String(), limit)
}

func (s *Store) queryCollections(ctx context.Context, query string, args ...any) ([]Collection, error) {
	conn, err := s.cfg.ClickHouse.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get ClickHouse connection: %w", err)
	}
	defer conn.Close()

	rows, err := conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query reward collections: %w", err)
	}
	defer rows.Close()

	var out []Collection
	for rows.Next() {
		c, err := scanCollection(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanCollection(rows driver.Rows) (Collection, error) {
	var (
		c                                       Collection
		address, voteAccount, commissionAccount string
		uploadAuthority, initializer            string
	)
	if err := rows.Scan(
		&address, &voteAccount, &c.CreationEpoch, &c.ExpiresAt,
		&c.ValidatorCommissionBps, &c.RakuraiCommissionBps, &commissionAccount,
		&uploadAuthority, &initializer, &c.MerkleRoot,
		&c.MaxTotalClaim, &c.MaxNumNodes, &c.TotalFundsClaimed, &c.NumNodesClaimed, &c.Lamports, &c.State,
	); err != nil {
		return Collection{}, fmt.Errorf("failed to scan reward collection: %w", err)
	}
	keys, err := parseKeys(address, voteAccount, commissionAccount, uploadAuthority, initializer)
	if err != nil {
		return Collection{}, err
	}
	c.Address, c.VoteAccount, c.RakuraiCommissionAccount, c.MerkleRootUploadAuthority, c.Initializer = keys[0], keys[1], keys[2], keys[3], keys[4]
	return c, nil
}

// ClaimStatuses returns the claim statuses saved in run, ordered by address.
func (s *Store) ClaimStatuses(ctx context.Context, runID uuid.UUID) ([]ClaimStatus, error) {
	conn, err := s.cfg.ClickHouse.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get ClickHouse connection: %w", err)
	}
	defer conn.Close()

	rows, err := conn.Query(ctx, `
		SELECT address, claimant, payer, amount, slot_claimed_at, expires_at, lamports, is_claimed
		FROM claim_status_snapshots
		WHERE run_id = ?
		ORDER BY address`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query claim statuses: %w", err)
	}
	defer rows.Close()

	var out []ClaimStatus
	for rows.Next() {
		var (
			c                        ClaimStatus
			address, claimant, payer string
		)
		if err := rows.Scan(&address, &claimant, &payer, &c.Amount, &c.SlotClaimedAt, &c.ExpiresAt, &c.Lamports, &c.IsClaimed); err != nil {
			return nil, fmt.Errorf("failed to scan claim status: %w", err)
		}
		keys, err := parseKeys(address, claimant, payer)
		if err != nil {
			return nil, err
		}
		c.Address, c.Claimant, c.Payer = keys[0], keys[1], keys[2]
		out = append(out, c)
	}
	return out, rows.Err()
}

func parseKeys(ss ...string) ([]solana.PublicKey, error) {
	out := make([]solana.PublicKey, len(ss))
	for i, s := range ss {
		pk, err := solana.PublicKeyFromBase58(s)
		if err != nil {
			return nil, fmt.Errorf("invalid stored public key %q: %w", s, err)
		}
		out[i] = pk
	}
	return out, nil
}
