package execution

import (
	"fmt"
	"sync"

	"github.com/quartzchain/quartz/eventstore"
	"github.com/quartzchain/quartz/exception"
	"github.com/quartzchain/quartz/ledger"
	"github.com/quartzchain/quartz/logx"
	"github.com/quartzchain/quartz/rolls"
	"github.com/quartzchain/quartz/types"
	"github.com/quartzchain/quartz/vm"
)

// Controller is the only boundary the rest of the node talks to. The
// mutating notification is fire-and-forget and processed in arrival
// order by the single worker; every read reflects the most recently
// committed worker state at call time. Controller values are cheap
// handles: copying one duplicates the handle, not the worker.
type Controller interface {
	// UpdateBlockcliqueStatus signals newly finalized blocks and the
	// latest blockclique. Ownership of the storage handles moves to
	// the execution core.
	UpdateBlockcliqueStatus(finalized map[types.Slot]BlockRef, blockclique map[types.Slot]BlockRef)

	// GetFilteredSCOutputEvents returns stored events matching the
	// filter, ordered by (slot, emission index).
	GetFilteredSCOutputEvents(filter types.EventFilter) []types.SCOutputEvent

	// GetFinalAndActiveParallelBalances returns per-address
	// (final, candidate) parallel balances.
	GetFinalAndActiveParallelBalances(addrs []types.Address) []BalancePair

	// GetFinalAndActiveSequentialBalances returns per-address
	// (final, candidate) sequential balances.
	GetFinalAndActiveSequentialBalances(addrs []types.Address) []BalancePair

	// GetFinalAndActiveDataEntries returns per-pair (final, candidate)
	// datastore values.
	GetFinalAndActiveDataEntries(queries []DataEntryQuery) []DataEntryPair

	// GetFinalAndActiveDatastoreKeys returns the (final, candidate)
	// datastore key sets of an address, lexicographically ordered.
	GetFinalAndActiveDatastoreKeys(addr types.Address) ([][]byte, [][]byte)

	// GetCycleRolls returns the stakers the selector takes into
	// account for the cycle, i.e. the roll counts frozen at cycle-1.
	// Empty when the snapshot is unavailable.
	GetCycleRolls(cycle uint64) map[types.Address]uint64

	// ExecuteReadOnlyRequest runs a call against a candidate snapshot
	// without committing anything.
	ExecuteReadOnlyRequest(req ReadOnlyExecutionRequest) (*ExecutionOutput, error)

	// UnexecutedOpsAmong returns the subset of ops not executed in
	// either view.
	UnexecutedOpsAmong(ops types.OperationIdSet) types.OperationIdSet
}

// Manager owns the worker lifecycle.
type Manager interface {
	// Stop signals the worker, waits for the in-flight notification to
	// drain to a consistent boundary and joins the goroutine. Calling
	// controller APIs after Stop is the caller's mistake.
	Stop()
}

type controller struct {
	state  *executionState
	worker *worker
}

type manager struct {
	worker   *worker
	stopOnce sync.Once
}

// Start boots the execution core: it seeds the candidate view, spawns
// the worker and returns the controller/manager pair.
func Start(cfg *Config, final *ledger.FinalLedger, events *eventstore.Store, registry *rolls.Registry, runtime vm.Runtime) (Controller, Manager) {
	cfg = cfg.withDefaults()
	state := newExecutionState(cfg, final, events, registry, runtime)
	w := newWorker(state, cfg.NotificationBacklog)
	exception.SafeGo("execution-worker", w.run)
	return &controller{state: state, worker: w}, &manager{worker: w}
}

func (c *controller) UpdateBlockcliqueStatus(finalized map[types.Slot]BlockRef, blockclique map[types.Slot]BlockRef) {
	n := blockcliqueNotification{finalized: finalized, blockclique: blockclique}
	// once the stop channel is closed nothing consumes the queue, so
	// the drop path has to win over a ready send
	select {
	case <-c.worker.stopCh:
		logx.Warn("EXECUTION", "Dropping blockclique notification, worker stopped")
		releaseNotification(n)
		return
	default:
	}
	select {
	case <-c.worker.stopCh:
		logx.Warn("EXECUTION", "Dropping blockclique notification, worker stopped")
		releaseNotification(n)
	case c.worker.notifications <- n:
	}
}

func releaseNotification(n blockcliqueNotification) {
	for _, ref := range n.finalized {
		ref.Storage.Release()
	}
	for _, ref := range n.blockclique {
		ref.Storage.Release()
	}
}

func (c *controller) GetFilteredSCOutputEvents(filter types.EventFilter) []types.SCOutputEvent {
	return c.state.Events(filter)
}

func (c *controller) GetFinalAndActiveParallelBalances(addrs []types.Address) []BalancePair {
	return c.state.Balances(addrs, types.Parallel)
}

func (c *controller) GetFinalAndActiveSequentialBalances(addrs []types.Address) []BalancePair {
	return c.state.Balances(addrs, types.Sequential)
}

func (c *controller) GetFinalAndActiveDataEntries(queries []DataEntryQuery) []DataEntryPair {
	return c.state.DataEntries(queries)
}

func (c *controller) GetFinalAndActiveDatastoreKeys(addr types.Address) ([][]byte, [][]byte) {
	return c.state.DatastoreKeys(addr)
}

func (c *controller) GetCycleRolls(cycle uint64) map[types.Address]uint64 {
	return c.state.CycleRolls(cycle)
}

func (c *controller) ExecuteReadOnlyRequest(req ReadOnlyExecutionRequest) (*ExecutionOutput, error) {
	return c.state.executeReadOnly(req)
}

func (c *controller) UnexecutedOpsAmong(ops types.OperationIdSet) types.OperationIdSet {
	return c.state.UnexecutedOpsAmong(ops)
}

func (m *manager) Stop() {
	m.stopOnce.Do(func() {
		logx.Info("EXECUTION", "Stopping execution worker")
		close(m.worker.stopCh)
		<-m.worker.doneCh
		// release handles of notifications that were queued but never
		// picked up before the worker exited
	drain:
		for {
			select {
			case n := <-m.worker.notifications:
				releaseNotification(n)
			default:
				break drain
			}
		}
		if err := m.worker.state.Faulted(); err != nil {
			logx.Error("EXECUTION", fmt.Sprintf("Worker stopped in faulted state: %v", err))
		}
	})
}
