package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rakurai-io/rakurai/client/pkg/client"
	"github.com/rakurai-io/rakurai/distributor/pkg/metrics"
	"github.com/rakurai-io/rakurai/distributor/pkg/store"
	"github.com/rakurai-io/rakurai/distributor/pkg/tree"
	"golang.org/x/sync/errgroup"
)

const viewType = "collections"

// AccountReader lists the distribution program's accounts.
type AccountReader interface {
	Epoch(ctx context.Context) (uint64, error)
	ListCollections(ctx context.Context) ([]client.Collection, error)
	ListClaimStatuses(ctx context.Context) ([]client.ClaimStatus, error)
}

// SnapshotWriter persists refresh results.
type SnapshotWriter interface {
	SaveSnapshot(ctx context.Context, run store.Run, collections []store.Collection, claims []store.ClaimStatus) error
}

type Config struct {
	Logger          *slog.Logger
	Clock           clockwork.Clock
	Accounts        AccountReader
	RefreshInterval time.Duration

	// Store is optional; without it snapshots are only kept in memory.
	Store SnapshotWriter
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Accounts == nil {
		return errors.New("account reader is required")
	}
	if cfg.RefreshInterval <= 0 {
		return errors.New("refresh interval must be greater than 0")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return nil
}

type Collection struct {
	client.Collection
	State CollectionState
}

type ClaimStatus struct {
	client.ClaimStatus
	Closable bool
}

// Snapshot is the result of one refresh.
type Snapshot struct {
	RunID         uuid.UUID
	At            time.Time
	Epoch         uint64
	Collections   []Collection
	ClaimStatuses []ClaimStatus

	collections   map[solana.PublicKey]int
	claimStatuses map[solana.PublicKey]int
}

func (s *Snapshot) Collection(address solana.PublicKey) (Collection, bool) {
	i, ok := s.collections[address]
	if !ok {
		return Collection{}, false
	}
	return s.Collections[i], true
}

func (s *Snapshot) ClaimStatus(address solana.PublicKey) (ClaimStatus, bool) {
	i, ok := s.claimStatuses[address]
	if !ok {
		return ClaimStatus{}, false
	}
	return s.ClaimStatuses[i], true
}

// Watcher periodically reads every reward collection and claim status,
// classifies them by lifecycle state and publishes the result.
type Watcher struct {
	log       *slog.Logger
	cfg       Config
	refreshMu sync.Mutex

	mu       sync.RWMutex
	snapshot *Snapshot

	readyOnce sync.Once
	readyCh   chan struct{}
}

func New(cfg Config) (*Watcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Watcher{
		log:     cfg.Logger,
		cfg:     cfg,
		readyCh: make(chan struct{}),
	}, nil
}

func (w *Watcher) Ready() bool {
	select {
	case <-w.readyCh:
		return true
	default:
		return false
	}
}

func (w *Watcher) WaitReady(ctx context.Context) error {
	select {
	case <-w.readyCh:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("context cancelled while waiting for watcher: %w", ctx.Err())
	}
}

// Snapshot returns the latest refresh result, or nil before the first
// successful refresh.
func (w *Watcher) Snapshot() *Snapshot {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.snapshot
}

// Start runs the refresh loop until ctx is done.
func (w *Watcher) Start(ctx context.Context) {
	go func() {
		w.log.Info("watcher: starting refresh loop", "interval", w.cfg.RefreshInterval)

		w.safeRefresh(ctx)

		ticker := w.cfg.Clock.NewTicker(w.cfg.RefreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				w.safeRefresh(ctx)
			}
		}
	}()
}

func (w *Watcher) safeRefresh(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("watcher: refresh panicked", "panic", r)
			metrics.ViewRefreshTotal.WithLabelValues(viewType, "panic").Inc()
			sentry.CurrentHub().Recover(r)
		}
	}()

	if err := w.Refresh(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		w.log.Error("watcher: refresh failed", "error", err)
		sentry.CaptureException(err)
	}
}

// Refresh reads all accounts, publishes a new snapshot and saves it to the
// store when one is configured. A failed store write does not discard the
// in-memory snapshot.
func (w *Watcher) Refresh(ctx context.Context) (err error) {
	w.refreshMu.Lock()
	defer w.refreshMu.Unlock()

	start := w.cfg.Clock.Now()
	w.log.Debug("watcher: refresh started")
	defer func() {
		duration := w.cfg.Clock.Since(start)
		metrics.RecordViewRefresh(viewType, duration, err)
		if err == nil {
			w.log.Info("watcher: refresh completed", "duration", duration.String())
		}
	}()

	var (
		epoch       uint64
		collections []client.Collection
		claims      []client.ClaimStatus
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		epoch, err = w.cfg.Accounts.Epoch(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		collections, err = w.cfg.Accounts.ListCollections(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		claims, err = w.cfg.Accounts.ListClaimStatuses(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("failed to read accounts: %w", err)
	}

	snap := NewSnapshot(uuid.New(), w.cfg.Clock.Now().UTC(), epoch, collections, claims)
	updateGauges(snap)

	w.mu.Lock()
	w.snapshot = snap
	w.mu.Unlock()
	w.readyOnce.Do(func() {
		close(w.readyCh)
		w.log.Info("watcher: ready", "epoch", epoch, "collections", len(snap.Collections))
	})

	if w.cfg.Store != nil {
		if err := w.cfg.Store.SaveSnapshot(ctx, snap.run(), snap.storeCollections(), snap.storeClaimStatuses()); err != nil {
			return fmt.Errorf("failed to save snapshot: %w", err)
		}
	}
	return nil
}

// NewSnapshot classifies collections and claim statuses at epoch.
func NewSnapshot(runID uuid.UUID, at time.Time, epoch uint64, collections []client.Collection, claims []client.ClaimStatus) *Snapshot {
	snap := &Snapshot{
		RunID:         runID,
		At:            at,
		Epoch:         epoch,
		Collections:   make([]Collection, len(collections)),
		ClaimStatuses: make([]ClaimStatus, len(claims)),
		collections:   make(map[solana.PublicKey]int, len(collections)),
		claimStatuses: make(map[solana.PublicKey]int, len(claims)),
	}
	for i, c := range collections {
		snap.Collections[i] = Collection{Collection: c, State: StateOf(c.Account, epoch)}
		snap.collections[c.Address] = i
	}
	for i, c := range claims {
		snap.ClaimStatuses[i] = ClaimStatus{ClaimStatus: c, Closable: ClaimStatusClosable(c.Account, epoch)}
		snap.claimStatuses[c.Address] = i
	}
	return snap
}

func updateGauges(snap *Snapshot) {
	counts := make(map[CollectionState]int, len(allStates))
	lamports := make(map[CollectionState]uint64, len(allStates))
	for _, c := range snap.Collections {
		counts[c.State]++
		lamports[c.State] += c.Lamports
	}
	for _, s := range allStates {
		metrics.CollectionsByState.WithLabelValues(string(s)).Set(float64(counts[s]))
		metrics.CollectionLamportsByState.WithLabelValues(string(s)).Set(float64(lamports[s]))
	}

	var closable int
	for _, c := range snap.ClaimStatuses {
		if c.Closable {
			closable++
		}
	}
	metrics.ClaimStatuses.WithLabelValues("true").Set(float64(closable))
	metrics.ClaimStatuses.WithLabelValues("false").Set(float64(len(snap.ClaimStatuses) - closable))
}

func (s *Snapshot) run() store.Run {
	return store.Run{
		ID:            s.RunID,
		At:            s.At,
		Epoch:         s.Epoch,
		Collections:   len(s.Collections),
		ClaimStatuses: len(s.ClaimStatuses),
	}
}

func (s *Snapshot) storeCollections() []store.Collection {
	out := make([]store.Collection, len(s.Collections))
	for i, c := range s.Collections {
		rc := c.Account
		row := store.Collection{
			Address:                   c.Address,
			VoteAccount:               rc.ValidatorVoteAccount,
			CreationEpoch:             rc.CreationEpoch,
			ExpiresAt:                 rc.ExpiresAt,
			ValidatorCommissionBps:    rc.ValidatorCommissionBps,
			RakuraiCommissionBps:      rc.RakuraiCommissionBps,
			RakuraiCommissionAccount:  rc.RakuraiCommissionAccount,
			MerkleRootUploadAuthority: rc.MerkleRootUploadAuthority,
			Initializer:               rc.Initializer,
			Lamports:                  c.Lamports,
			State:                     string(c.State),
		}
		if m := rc.MerkleRoot; m != nil {
			root := tree.EncodeHash(m.Root)
			row.MerkleRoot = &root
			row.MaxTotalClaim = m.MaxTotalClaim
			row.MaxNumNodes = m.MaxNumNodes
			row.TotalFundsClaimed = m.TotalFundsClaimed
			row.NumNodesClaimed = m.NumNodesClaimed
		}
		out[i] = row
	}
	return out
}

func (s *Snapshot) storeClaimStatuses() []store.ClaimStatus {
	out := make([]store.ClaimStatus, len(s.ClaimStatuses))
	for i, c := range s.ClaimStatuses {
		cs := c.Account
		out[i] = store.ClaimStatus{
			Address:       c.Address,
			Claimant:      cs.Claimant,
			Payer:         cs.ClaimStatusPayer,
			Amount:        cs.Amount,
			SlotClaimedAt: cs.SlotClaimedAt,
			ExpiresAt:     cs.ExpiresAt,
			Lamports:      c.Lamports,
			IsClaimed:     cs.IsClaimed,
		}
	}
	return out
}
