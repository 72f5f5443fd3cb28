package rolls

import (
	"fmt"
	"sync"

	"github.com/quartzchain/quartz/logx"
	"github.com/quartzchain/quartz/types"
)

// Registry keeps the per-cycle roll snapshots consumed by the selector.
// A cycle's snapshot is frozen once, when the cycle's last slot becomes
// final, and is read-only from then on.
type Registry struct {
	mu        sync.RWMutex
	snapshots map[uint64]map[types.Address]uint64
}

func NewRegistry() *Registry {
	return &Registry{snapshots: make(map[uint64]map[types.Address]uint64)}
}

// Freeze records the roll counts of a completed cycle. Freezing the
// same cycle twice keeps the first snapshot.
func (r *Registry) Freeze(cycle uint64, counts map[types.Address]uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.snapshots[cycle]; ok {
		return
	}
	frozen := make(map[types.Address]uint64, len(counts))
	for addr, count := range counts {
		if count > 0 {
			frozen[addr] = count
		}
	}
	r.snapshots[cycle] = frozen
	logx.Info("ROLLS", fmt.Sprintf("Froze roll snapshot for cycle %d (%d stakers)", cycle, len(frozen)))
}

// CycleRolls returns the stakers taken into account by the selector for
// the given cycle, i.e. the roll counts frozen at cycle-1. Returns an
// empty map when the snapshot has not been produced.
func (r *Registry) CycleRolls(cycle uint64) map[types.Address]uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if cycle == 0 {
		return map[types.Address]uint64{}
	}
	snapshot, ok := r.snapshots[cycle-1]
	if !ok {
		return map[types.Address]uint64{}
	}
	out := make(map[types.Address]uint64, len(snapshot))
	for addr, count := range snapshot {
		out[addr] = count
	}
	return out
}

// HasCycle reports whether a snapshot exists for the cycle.
func (r *Registry) HasCycle(cycle uint64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.snapshots[cycle]
	return ok
}
