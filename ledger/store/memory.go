// Package store provides an in-memory ledger.Store implementation.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/bank-ledger/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory keeps whole snapshots in a map. All writers serialize on one
// mutex, which satisfies the Store concurrency contract: a mutation never
// runs against a snapshot another writer is replacing.
type Memory struct {
	mu      sync.RWMutex
	ledgers map[ledger.OwnerID]ledger.Snapshot
}

var _ ledger.Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{ledgers: make(map[ledger.OwnerID]ledger.Snapshot)}
}

func (m *Memory) CreateLedger(_ context.Context, s ledger.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.ledgers[s.OwnerID]; ok {
		return ledger.ErrLedgerExists
	}
	m.ledgers[s.OwnerID] = s.Clone()
	return nil
}

func (m *Memory) Load(_ context.Context, owner ledger.OwnerID) (ledger.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.ledgers[owner]
	if !ok {
		return ledger.Snapshot{}, ledger.ErrLedgerNotFound
	}
	return s.Clone(), nil
}

func (m *Memory) Apply(_ context.Context, owner ledger.OwnerID, fn ledger.MutationFunc) (ledger.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.ledgers[owner]
	if !ok {
		return ledger.Snapshot{}, ledger.ErrLedgerNotFound
	}

	next, err := fn(current.Clone())
	if err != nil {
		return ledger.Snapshot{}, err
	}

	// Writers are serialized here, so the version cannot have moved; the
	// check still guards against mutations that tamper with it.
	if next.Version != current.Version {
		return ledger.Snapshot{}, ledger.ErrConflict
	}
	next.Version = current.Version + 1
	m.ledgers[owner] = next

	return next.Clone(), nil
}

func (m *Memory) Owners(_ context.Context) ([]ledger.OwnerID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	owners := make([]ledger.OwnerID, 0, len(m.ledgers))
	for id := range m.ledgers {
		owners = append(owners, id)
	}
	sort.Slice(owners, func(i, j int) bool { return owners[i] < owners[j] })
	return owners, nil
}
