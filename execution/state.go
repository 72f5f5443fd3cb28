package execution

import (
	"sync"

	"github.com/holiman/uint256"

	"github.com/quartzchain/quartz/eventstore"
	"github.com/quartzchain/quartz/ledger"
	"github.com/quartzchain/quartz/rolls"
	"github.com/quartzchain/quartz/types"
	"github.com/quartzchain/quartz/vm"
)

// executionState is the shared state behind the controller: the two
// ledger views, the event store, the roll registry and the bookkeeping
// of the current blockclique. The worker is the only writer; queries
// take the read lock.
type executionState struct {
	mu  sync.RWMutex
	cfg *Config

	final       *ledger.FinalLedger
	speculative *ledger.SpeculativeLedger
	events      *eventstore.Store
	rolls       *rolls.Registry
	runtime     vm.Runtime

	// blockclique currently followed by the candidate view
	activeClique map[types.Slot]BlockRef
	// candidate outputs per slot, used for the determinism check at
	// finalization and replaced wholesale on replay
	activeOutputs map[types.Slot]*ExecutionOutput

	// non-nil once a fatal inconsistency was hit; permanent
	faulted error
}

func newExecutionState(cfg *Config, final *ledger.FinalLedger, events *eventstore.Store, registry *rolls.Registry, runtime vm.Runtime) *executionState {
	s := &executionState{
		cfg:           cfg,
		final:         final,
		speculative:   ledger.NewSpeculativeLedger(final),
		events:        events,
		rolls:         registry,
		runtime:       runtime,
		activeClique:  make(map[types.Slot]BlockRef),
		activeOutputs: make(map[types.Slot]*ExecutionOutput),
	}
	s.seedGenesis()
	return s
}

// seedGenesis pushes the configured genesis credits as a candidate step
// at slot (0,0). The step folds into the final ledger the first time
// any slot is finalized, so a fresh core reports genesis balances as
// candidate-only until finalization reaches it.
func (s *executionState) seedGenesis() {
	if len(s.cfg.GenesisAccounts) == 0 {
		return
	}
	if _, ok := s.final.LastSlot(); ok {
		// restarted over a persisted ledger, genesis is already final
		return
	}
	changes := ledger.NewChanges()
	for _, account := range s.cfg.GenesisAccounts {
		addr := types.Address(account.Address)
		changes.SetBalance(addr, types.Parallel, uint256.NewInt(account.ParallelBalance))
		changes.SetBalance(addr, types.Sequential, uint256.NewInt(account.SequentialBalance))
		if account.Rolls > 0 {
			changes.SetRolls(addr, account.Rolls)
		}
	}
	s.speculative.Push(ledger.Step{Slot: types.NewSlot(0, 0), Changes: changes})
}

// Balances returns the (final, candidate) balance of every address.
func (s *executionState) Balances(addrs []types.Address, kind types.BalanceKind) []BalancePair {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]BalancePair, len(addrs))
	for i, addr := range addrs {
		out[i] = BalancePair{
			Final:     s.final.Balance(addr, kind),
			Candidate: s.speculative.Balance(addr, kind),
		}
	}
	return out
}

// DataEntries returns the (final, candidate) value of every entry.
func (s *executionState) DataEntries(queries []DataEntryQuery) []DataEntryPair {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]DataEntryPair, len(queries))
	for i, q := range queries {
		out[i] = DataEntryPair{
			Final:     s.final.DataEntry(q.Address, q.Key),
			Candidate: s.speculative.DataEntry(q.Address, q.Key),
		}
	}
	return out
}

// DatastoreKeys returns the (final, candidate) key sets of an address,
// each lexicographically ordered.
func (s *executionState) DatastoreKeys(addr types.Address) ([][]byte, [][]byte) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.final.DatastoreKeys(addr), s.speculative.DatastoreKeys(addr)
}

// Events returns stored events matching the filter.
func (s *executionState) Events(filter types.EventFilter) []types.SCOutputEvent {
	// the event store has its own lock; no state lock needed
	return s.events.Query(filter)
}

// CycleRolls returns the frozen roll snapshot the selector uses for the
// cycle, empty when unavailable.
func (s *executionState) CycleRolls(cycle uint64) map[types.Address]uint64 {
	return s.rolls.CycleRolls(cycle)
}

// UnexecutedOpsAmong returns the subset of ops not executed in either view.
func (s *executionState) UnexecutedOpsAmong(ops types.OperationIdSet) types.OperationIdSet {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(types.OperationIdSet)
	for id := range ops {
		if s.final.HasExecuted(id) {
			continue
		}
		if s.speculative.HasExecuted(id) {
			continue
		}
		out.Add(id)
	}
	return out
}

// snapshotForReadOnly checks out an isolated candidate snapshot and the
// slot a read-only execution should pretend to run in.
func (s *executionState) snapshotForReadOnly() (*ledger.SpeculativeLedger, types.Slot) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.speculative.Snapshot()
	slot := types.NewSlot(0, 0)
	if last, ok := snapshot.LastSlot(); ok {
		slot = last.Next(s.cfg.ThreadCount)
	}
	return snapshot, slot
}

func (s *executionState) fault(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.faulted == nil {
		s.faulted = err
	}
}

// Faulted returns the fatal error the worker stopped on, nil if healthy.
func (s *executionState) Faulted() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.faulted
}
