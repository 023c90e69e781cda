// Package events defines the events the programs emit after a successful
// instruction.
package events

import (
	"log/slog"
	"sync"

	"github.com/gagliardetto/solana-go"
)

type Event interface {
	EventName() string
}

type Emitter interface {
	Emit(program string, e Event)
}

type ConfigUpdated struct {
	Authority solana.PublicKey
}

type ApprovalAccountInitialized struct {
	Account solana.PublicKey
}

type ApprovalUpdated struct {
	Account solana.PublicKey
	Signer  solana.PublicKey
	Message string
}

type CommissionUpdated struct {
	Account                   solana.PublicKey
	ValidatorCommissionBps    uint16
	BlockBuilderCommissionBps uint16
}

type ApprovalAccountClosed struct {
	Account       solana.PublicKey
	AmountClaimed uint64
}

type RewardCollectionInitialized struct {
	RewardCollection solana.PublicKey
}

type MerkleRootUploaded struct {
	MerkleRootUploadAuthority solana.PublicKey
	RewardCollection          solana.PublicKey
}

type StakerRewardsTransferred struct {
	RewardCollection solana.PublicKey
	BlockBuilderFee  uint64
	ValidatorFee     uint64
	StakerRewards    uint64
}

type Claimed struct {
	RewardCollection solana.PublicKey
	Payer            solana.PublicKey
	Claimant         solana.PublicKey
	Amount           uint64
}

type RewardCollectionClosed struct {
	Initializer       solana.PublicKey
	RewardCollection  solana.PublicKey
	AmountTransferred uint64
}

type ClaimStatusClosed struct {
	ClaimStatusPayer solana.PublicKey
	ClaimStatus      solana.PublicKey
}

func (ConfigUpdated) EventName() string               { return "ConfigUpdated" }
func (ApprovalAccountInitialized) EventName() string  { return "ApprovalAccountInitialized" }
func (ApprovalUpdated) EventName() string             { return "ApprovalUpdated" }
func (CommissionUpdated) EventName() string           { return "CommissionUpdated" }
func (ApprovalAccountClosed) EventName() string       { return "ApprovalAccountClosed" }
func (RewardCollectionInitialized) EventName() string { return "RewardCollectionInitialized" }
func (MerkleRootUploaded) EventName() string          { return "MerkleRootUploaded" }
func (StakerRewardsTransferred) EventName() string    { return "StakerRewardsTransferred" }
func (Claimed) EventName() string                     { return "Claimed" }
func (RewardCollectionClosed) EventName() string      { return "RewardCollectionClosed" }
func (ClaimStatusClosed) EventName() string           { return "ClaimStatusClosed" }

// LogEmitter writes events to a structured logger.
type LogEmitter struct {
	Logger *slog.Logger
}

func (e LogEmitter) Emit(program string, ev Event) {
	e.Logger.Info("program: event", "program", program, "event", ev.EventName(), "data", ev)
}

// Recorder keeps emitted events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Emit(_ string, ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Last returns the most recent event, or nil.
func (r *Recorder) Last() Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return nil
	}
	return r.events[len(r.events)-1]
}

// Multi fans events out to several emitters.
type Multi []Emitter

func (m Multi) Emit(program string, ev Event) {
	for _, e := range m {
		e.Emit(program, ev)
	}
}
