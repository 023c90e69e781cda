// Package ledger models the host runtime the programs execute against:
// program-owned accounts with lamport balances, rent-exempt minimums, a clock
// and atomic execution. Every call to Execute either commits all of its
// account writes or none of them.
package ledger

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/rakurai-io/rakurai/programs/pkg/safemath"
)

var (
	ErrAccountNotFound          = errors.New("ledger: account not found")
	ErrAccountAlreadyInUse      = errors.New("ledger: account already in use")
	ErrInsufficientFunds        = errors.New("ledger: insufficient funds")
	ErrInsufficientFundsForRent = errors.New("ledger: insufficient funds for rent")
)

type Account struct {
	Key      solana.PublicKey
	Owner    solana.PublicKey
	Lamports uint64
	Data     []byte
}

func (a *Account) clone() *Account {
	c := *a
	if a.Data != nil {
		c.Data = append([]byte(nil), a.Data...)
	}
	return &c
}

type Config struct {
	Logger *slog.Logger
	Clock  ClockSource
	Rent   Rent
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Clock == nil {
		return errors.New("clock is required")
	}
	if cfg.Rent == (Rent{}) {
		cfg.Rent = DefaultRent()
	}
	return nil
}

type Ledger struct {
	log *slog.Logger
	cfg Config

	mu       sync.Mutex
	accounts map[solana.PublicKey]*Account
}

func New(cfg Config) (*Ledger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Ledger{
		log:      cfg.Logger,
		cfg:      cfg,
		accounts: make(map[solana.PublicKey]*Account),
	}, nil
}

func (l *Ledger) Rent() Rent {
	return l.cfg.Rent
}

func (l *Ledger) Clock() Clock {
	return l.cfg.Clock.Now()
}

// Account returns a copy of the stored account.
func (l *Ledger) Account(key solana.PublicKey) (Account, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	acc, ok := l.accounts[key]
	if !ok {
		return Account{}, false
	}
	return *acc.clone(), true
}

func (l *Ledger) Balance(key solana.PublicKey) uint64 {
	acc, ok := l.Account(key)
	if !ok {
		return 0
	}
	return acc.Lamports
}

// SetAccount stores acc as-is, replacing any existing account at its key.
func (l *Ledger) SetAccount(acc Account) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.accounts[acc.Key] = acc.clone()
}

// Airdrop credits lamports to key, creating a system account if needed.
func (l *Ledger) Airdrop(key solana.PublicKey, lamports uint64) error {
	return l.Execute(func(tx *Tx) error {
		acc, ok := tx.lookup(key)
		if !ok {
			acc = tx.put(&Account{Key: key, Owner: solana.SystemProgramID})
		}
		balance, err := safemath.Add(acc.Lamports, lamports)
		if err != nil {
			return err
		}
		acc.Lamports = balance
		return nil
	})
}

// AccountsByOwner returns copies of every account owned by owner, sorted by key.
func (l *Ledger) AccountsByOwner(owner solana.PublicKey) []Account {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Account
	for _, acc := range l.accounts {
		if acc.Owner.Equals(owner) {
			out = append(out, *acc.clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Key.String() < out[j].Key.String()
	})
	return out
}

// Snapshot returns copies of every account, sorted by key. Used by tests to
// assert that a failed execution left the ledger untouched.
func (l *Ledger) Snapshot() []Account {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Account, 0, len(l.accounts))
	for _, acc := range l.accounts {
		out = append(out, *acc.clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Key.String() < out[j].Key.String()
	})
	return out
}

// Execute runs fn against a private working set and commits it only if fn
// succeeds and every surviving account that holds data is rent-exempt.
// Executions are serialized.
func (l *Ledger) Execute(fn func(tx *Tx) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	tx := &Tx{
		ledger:  l,
		clock:   l.cfg.Clock.Now(),
		rent:    l.cfg.Rent,
		working: make(map[solana.PublicKey]*Account),
		closed:  make(map[solana.PublicKey]bool),
	}
	if err := fn(tx); err != nil {
		l.log.Debug("ledger: execution aborted", "error", err)
		return err
	}
	if err := tx.checkRent(); err != nil {
		l.log.Debug("ledger: execution aborted", "error", err)
		return err
	}

	for key := range tx.closed {
		delete(l.accounts, key)
	}
	for key, acc := range tx.working {
		if acc.Lamports == 0 && len(acc.Data) == 0 {
			delete(l.accounts, key)
			continue
		}
		l.accounts[key] = acc
	}
	l.log.Debug("ledger: execution committed", "accounts", len(tx.working), "closed", len(tx.closed))
	return nil
}

// Tx is the view of the ledger inside one Execute call. Writes are staged
// until the call returns successfully.
type Tx struct {
	ledger  *Ledger
	clock   Clock
	rent    Rent
	working map[solana.PublicKey]*Account
	closed  map[solana.PublicKey]bool
}

func (tx *Tx) Clock() Clock {
	return tx.clock
}

func (tx *Tx) Rent() Rent {
	return tx.rent
}

func (tx *Tx) lookup(key solana.PublicKey) (*Account, bool) {
	if tx.closed[key] {
		return nil, false
	}
	if acc, ok := tx.working[key]; ok {
		return acc, true
	}
	acc, ok := tx.ledger.accounts[key]
	if !ok {
		return nil, false
	}
	c := acc.clone()
	tx.working[key] = c
	return c, true
}

func (tx *Tx) put(acc *Account) *Account {
	delete(tx.closed, acc.Key)
	tx.working[acc.Key] = acc
	return acc
}

func (tx *Tx) Exists(key solana.PublicKey) bool {
	_, ok := tx.lookup(key)
	return ok
}

// Account returns the staged account for key. Mutations through the returned
// pointer are committed with the transaction.
func (tx *Tx) Account(key solana.PublicKey) (*Account, error) {
	acc, ok := tx.lookup(key)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, key)
	}
	return acc, nil
}

// CreateAccount allocates space bytes at key owned by owner, funding it to the
// rent-exempt minimum from payer. A key that already holds data or belongs to
// another program is in use.
func (tx *Tx) CreateAccount(payer, key, owner solana.PublicKey, space int) (*Account, error) {
	acc, ok := tx.lookup(key)
	if ok && (len(acc.Data) > 0 || !acc.Owner.Equals(solana.SystemProgramID)) {
		return nil, fmt.Errorf("%w: %s", ErrAccountAlreadyInUse, key)
	}
	if !ok {
		acc = tx.put(&Account{Key: key, Owner: solana.SystemProgramID})
	}

	required := tx.rent.MinimumBalance(space)
	if acc.Lamports < required {
		if err := tx.Transfer(payer, key, required-acc.Lamports); err != nil {
			return nil, fmt.Errorf("failed to fund account %s: %w", key, err)
		}
	}
	acc.Owner = owner
	acc.Data = make([]byte, space)
	return acc, nil
}

// Transfer moves lamports between accounts. The destination is created as a
// system account when missing. Debit authorization is the caller's concern.
func (tx *Tx) Transfer(from, to solana.PublicKey, lamports uint64) error {
	src, ok := tx.lookup(from)
	if !ok {
		return fmt.Errorf("%w: %s", ErrAccountNotFound, from)
	}
	if lamports == 0 || from.Equals(to) {
		return nil
	}
	dst, ok := tx.lookup(to)
	if !ok {
		dst = tx.put(&Account{Key: to, Owner: solana.SystemProgramID})
	}
	debited, err := safemath.Sub(src.Lamports, lamports)
	if err != nil {
		return fmt.Errorf("%w: %s has %d, needs %d", ErrInsufficientFunds, from, src.Lamports, lamports)
	}
	credited, err := safemath.Add(dst.Lamports, lamports)
	if err != nil {
		return err
	}
	src.Lamports = debited
	dst.Lamports = credited
	return nil
}

// CloseAccount moves every lamport from key to dest and releases its storage.
// It returns the lamports moved.
func (tx *Tx) CloseAccount(key, dest solana.PublicKey) (uint64, error) {
	acc, ok := tx.lookup(key)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrAccountNotFound, key)
	}
	amount := acc.Lamports
	if err := tx.Transfer(key, dest, amount); err != nil {
		return 0, err
	}
	delete(tx.working, key)
	tx.closed[key] = true
	return amount, nil
}

func (tx *Tx) checkRent() error {
	keys := make([]solana.PublicKey, 0, len(tx.working))
	for key := range tx.working {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	for _, key := range keys {
		acc := tx.working[key]
		if len(acc.Data) == 0 {
			continue
		}
		if required := tx.rent.MinimumBalance(len(acc.Data)); acc.Lamports < required {
			return fmt.Errorf("%w: %s has %d, needs %d", ErrInsufficientFundsForRent, key, acc.Lamports, required)
		}
	}
	return nil
}
