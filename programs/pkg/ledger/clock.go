package ledger

import "sync"

// SlotsPerEpoch matches mainnet.
const SlotsPerEpoch = 432_000

type Clock struct {
	Slot  uint64
	Epoch uint64
}

// ClockSource yields the current cluster clock. Epochs never decrease.
type ClockSource interface {
	Now() Clock
}

// ManualClock is a ClockSource advanced explicitly, for simulations and tests.
type ManualClock struct {
	mu    sync.Mutex
	clock Clock
}

func NewManualClock(epoch uint64) *ManualClock {
	return &ManualClock{clock: Clock{Epoch: epoch, Slot: epoch * SlotsPerEpoch}}
}

func (m *ManualClock) Now() Clock {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clock
}

// AdvanceEpochs moves the clock forward by n epochs.
func (m *ManualClock) AdvanceEpochs(n uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clock.Epoch += n
	m.clock.Slot += n * SlotsPerEpoch
}

// AdvanceSlots moves the clock forward by n slots, rolling epochs as needed.
func (m *ManualClock) AdvanceSlots(n uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clock.Slot += n
	m.clock.Epoch = m.clock.Slot / SlotsPerEpoch
}
