package execution

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/quartzchain/quartz/ledger"
	"github.com/quartzchain/quartz/logx"
	"github.com/quartzchain/quartz/monitoring"
	"github.com/quartzchain/quartz/types"
)

// blockcliqueNotification is one consensus update: newly finalized
// blocks and the latest blockclique. The referenced storage handles are
// owned by the notification until the worker is done with them.
type blockcliqueNotification struct {
	finalized   map[types.Slot]BlockRef
	blockclique map[types.Slot]BlockRef
}

// worker is the single authoritative execution loop. It owns all
// mutations of the final and candidate views and processes
// notifications strictly in arrival order.
type worker struct {
	state         *executionState
	notifications chan blockcliqueNotification
	stopCh        chan struct{}
	doneCh        chan struct{}
}

func newWorker(state *executionState, backlog int) *worker {
	return &worker{
		state:         state,
		notifications: make(chan blockcliqueNotification, backlog),
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}
}

func (w *worker) run() {
	defer close(w.doneCh)
	logx.Info("EXECUTION", "Execution worker started")
	for {
		select {
		case <-w.stopCh:
			logx.Info("EXECUTION", "Execution worker stopping")
			return
		case n := <-w.notifications:
			w.process(n)
		}
	}
}

// process handles one notification end to end. It never returns an
// error to the notifier: operation-level faults are swallowed after
// recording, fatal inconsistencies flip the worker into the permanent
// Faulted state.
func (w *worker) process(n blockcliqueNotification) {
	defer func() {
		for _, ref := range n.finalized {
			ref.Storage.Release()
		}
	}()

	if err := w.state.Faulted(); err != nil {
		logx.Error("EXECUTION", fmt.Sprintf("Dropping blockclique notification, worker faulted: %v", err))
		for _, ref := range n.blockclique {
			ref.Storage.Release()
		}
		return
	}

	for _, slot := range sortedSlots(n.finalized) {
		if err := w.finalizeSlot(slot, n.finalized[slot]); err != nil {
			var determinism *DeterminismViolationError
			if errors.As(err, &determinism) {
				logx.Error("EXECUTION", fmt.Sprintf("FATAL: %v", err))
			} else {
				logx.Error("EXECUTION", fmt.Sprintf("FATAL: finalization of slot %s failed: %v", slot, err))
			}
			w.state.fault(err)
			for _, ref := range n.blockclique {
				ref.Storage.Release()
			}
			return
		}
	}

	if err := w.reconcile(n.blockclique); err != nil {
		logx.Error("EXECUTION", fmt.Sprintf("FATAL: blockclique reconciliation failed: %v", err))
		w.state.fault(err)
	}
}

// finalizeSlot irreversibly applies one finalized block. Already-final
// slots are skipped (idempotent). When the slot was executed
// speculatively for the same block, the slot is re-executed from the
// final state and the two outputs must match bit for bit.
func (w *worker) finalizeSlot(slot types.Slot, ref BlockRef) error {
	s := w.state
	s.mu.Lock()
	defer s.mu.Unlock()

	if lastFinal, ok := s.final.LastSlot(); ok && !slot.After(lastFinal) {
		logx.Debug("EXECUTION", fmt.Sprintf("Slot %s already final, skipping", slot))
		return nil
	}

	// fold the candidate prefix (genesis, miss slots) into final first
	// so the final state equals the candidate state just before slot
	for _, step := range s.speculative.Steps() {
		if !step.Slot.Before(slot) {
			break
		}
		if err := w.applyFinalStep(step.Slot, step.Changes); err != nil {
			return err
		}
		s.events.FinalizeThrough(step.Slot)
	}

	candidate := s.activeOutputs[slot]
	ctx := context.Background()

	if candidate != nil && candidate.Block != nil && *candidate.Block == ref.ID {
		replay, err := executeSlot(ctx, s.cfg, ledger.NewSpeculativeLedger(s.final), slot, &ref, s.runtime)
		if err != nil {
			return err
		}
		expected := candidate.Fingerprint()
		got := replay.Fingerprint()
		if expected != got {
			return &DeterminismViolationError{Slot: slot, Expected: expected, Got: got}
		}
		if err := w.applyFinalStep(slot, replay.Changes); err != nil {
			return err
		}
		s.events.FinalizeThrough(slot)
		s.speculative.DropThrough(slot)
	} else {
		// the candidate view never executed this block (or executed a
		// competing one): discard the candidate from this slot on and
		// execute the finalized block directly on the final state
		if removed := s.speculative.PopFrom(slot); removed > 0 {
			logx.Warn("EXECUTION", fmt.Sprintf("Finalized block %s at slot %s displaces %d candidate slots", ref.ID, slot, removed))
			monitoring.RecordReorgDepth(removed)
		}
		s.events.TruncateFrom(slot)
		// the truncation invalidated every candidate slot from here on;
		// evict their clique entries and outputs so the next
		// reconciliation replays the suffix instead of treating those
		// slots as still agreed
		for cliqueSlot, cliqueRef := range s.activeClique {
			if !cliqueSlot.Before(slot) {
				cliqueRef.Storage.Release()
				delete(s.activeClique, cliqueSlot)
			}
		}
		for outputSlot := range s.activeOutputs {
			if !outputSlot.Before(slot) {
				delete(s.activeOutputs, outputSlot)
			}
		}
		output, err := executeSlot(ctx, s.cfg, ledger.NewSpeculativeLedger(s.final), slot, &ref, s.runtime)
		if err != nil {
			return err
		}
		if err := w.applyFinalStep(slot, output.Changes); err != nil {
			return err
		}
		s.events.RecordSlot(slot, output.Events)
		s.events.FinalizeThrough(slot)
		s.speculative.DropThrough(slot)
	}

	for outputSlot := range s.activeOutputs {
		if !outputSlot.After(slot) {
			delete(s.activeOutputs, outputSlot)
		}
	}
	logx.Info("EXECUTION", fmt.Sprintf("Finalized slot %s with block %s", slot, ref.ID))
	return nil
}

// applyFinalStep commits one slot diff to the final ledger and handles
// the cycle boundary bookkeeping. Caller holds the state write lock.
func (w *worker) applyFinalStep(slot types.Slot, changes *ledger.Changes) error {
	s := w.state
	if err := s.final.Apply(slot, changes); err != nil {
		return err
	}
	monitoring.IncreaseFinalizedSlotCount()
	monitoring.SetFinalPeriod(slot.Period)
	if slot.IsLastOfCycle(s.cfg.PeriodsPerCycle, s.cfg.ThreadCount) {
		s.rolls.Freeze(slot.Cycle(s.cfg.PeriodsPerCycle), s.final.RollCounts())
	}
	return nil
}

// reconcile diffs the held blockclique against the new one, rolls the
// candidate view back to the divergence point and replays the new
// chain's slots forward.
func (w *worker) reconcile(newClique map[types.Slot]BlockRef) error {
	s := w.state

	s.mu.Lock()
	oldClique := s.activeClique
	// the agreement scan works strictly above the floor; slot (0,0) is
	// reserved for the genesis step, so a clique entry there is never
	// compared or executed
	floor := types.NewSlot(0, 0)
	if lastFinal, ok := s.final.LastSlot(); ok {
		floor = lastFinal
	}

	agree := floor
	for _, slot := range unionSlots(oldClique, newClique) {
		if !slot.After(floor) {
			continue
		}
		oldRef, inOld := oldClique[slot]
		newRef, inNew := newClique[slot]
		if !inOld || !inNew || oldRef.ID != newRef.ID {
			break
		}
		agree = slot
	}

	removed := s.speculative.PopAfter(agree)
	s.events.TruncateAfter(agree)
	for slot := range s.activeOutputs {
		if slot.After(agree) {
			delete(s.activeOutputs, slot)
		}
	}
	if removed > 0 {
		logx.Info("EXECUTION", fmt.Sprintf("Reorg: rolled candidate back to %s (%d slots dropped)", agree, removed))
		monitoring.RecordReorgDepth(removed)
	}

	for _, ref := range oldClique {
		ref.Storage.Release()
	}
	s.activeClique = newClique

	// replay on a private snapshot so queries stay served while the
	// candidate chain is re-executed
	snapshot := s.speculative.Snapshot()
	s.mu.Unlock()

	end, hasEnd := maxSlot(newClique)
	if !hasEnd || !end.After(agree) {
		return nil
	}

	ctx := context.Background()
	outputs := make([]*ExecutionOutput, 0)
	for slot := agree.Next(s.cfg.ThreadCount); !slot.After(end); slot = slot.Next(s.cfg.ThreadCount) {
		var refPtr *BlockRef
		if ref, ok := newClique[slot]; ok {
			refCopy := ref
			refPtr = &refCopy
		}
		output, err := executeSlot(ctx, s.cfg, snapshot, slot, refPtr, s.runtime)
		if err != nil {
			return err
		}
		snapshot.Push(ledger.Step{Slot: slot, Block: output.Block, Changes: output.Changes})
		outputs = append(outputs, output)
	}

	s.mu.Lock()
	s.speculative = snapshot
	for _, output := range outputs {
		s.events.RecordSlot(output.Slot, output.Events)
		s.activeOutputs[output.Slot] = output
	}
	s.mu.Unlock()

	monitoring.SetCandidatePeriod(end.Period)
	logx.Info("EXECUTION", fmt.Sprintf("Replayed candidate chain up to slot %s (%d slots)", end, len(outputs)))
	return nil
}

func sortedSlots(m map[types.Slot]BlockRef) []types.Slot {
	slots := make([]types.Slot, 0, len(m))
	for slot := range m {
		slots = append(slots, slot)
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i].Before(slots[j]) })
	return slots
}

func unionSlots(a, b map[types.Slot]BlockRef) []types.Slot {
	seen := make(map[types.Slot]struct{}, len(a)+len(b))
	for slot := range a {
		seen[slot] = struct{}{}
	}
	for slot := range b {
		seen[slot] = struct{}{}
	}
	slots := make([]types.Slot, 0, len(seen))
	for slot := range seen {
		slots = append(slots, slot)
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i].Before(slots[j]) })
	return slots
}

func maxSlot(m map[types.Slot]BlockRef) (types.Slot, bool) {
	var out types.Slot
	found := false
	for slot := range m {
		if !found || slot.After(out) {
			out = slot
			found = true
		}
	}
	return out, found
}
