package ledger

import (
	"sort"

	"github.com/holiman/uint256"

	"github.com/quartzchain/quartz/types"
)

// Step is the result of one slot applied to the candidate view.
type Step struct {
	Slot    types.Slot
	Block   *types.BlockId
	Changes *Changes
}

// SpeculativeLedger is the candidate state view: a slot-ordered arena of
// diffs layered over the final ledger. Reads scan diffs newest to oldest
// and fall through to final. Rollback truncates the arena, it never
// mutates a pushed diff; a pushed Changes value must be treated as
// immutable from then on.
type SpeculativeLedger struct {
	final *FinalLedger
	steps []Step
}

func NewSpeculativeLedger(final *FinalLedger) *SpeculativeLedger {
	return &SpeculativeLedger{final: final}
}

// Push appends a slot diff. Steps must be pushed in increasing slot order.
func (s *SpeculativeLedger) Push(step Step) {
	s.steps = append(s.steps, step)
}

// Steps exposes the current diff arena, oldest first.
func (s *SpeculativeLedger) Steps() []Step {
	return s.steps
}

// PopAfter drops every step strictly after slot and returns how many
// were removed.
func (s *SpeculativeLedger) PopAfter(slot types.Slot) int {
	keep := len(s.steps)
	for keep > 0 && s.steps[keep-1].Slot.After(slot) {
		keep--
	}
	removed := len(s.steps) - keep
	s.steps = s.steps[:keep]
	return removed
}

// PopFrom drops every step at or after slot and returns how many were
// removed.
func (s *SpeculativeLedger) PopFrom(slot types.Slot) int {
	keep := len(s.steps)
	for keep > 0 && !s.steps[keep-1].Slot.Before(slot) {
		keep--
	}
	removed := len(s.steps) - keep
	s.steps = s.steps[:keep]
	return removed
}

// DropThrough removes every step up to and including slot. Used after
// those steps have been folded into the final ledger.
func (s *SpeculativeLedger) DropThrough(slot types.Slot) {
	idx := 0
	for idx < len(s.steps) && !s.steps[idx].Slot.After(slot) {
		idx++
	}
	s.steps = append([]Step(nil), s.steps[idx:]...)
}

// Snapshot returns an independent view over the same diffs. The
// snapshot stays consistent as long as the caller holds it, because
// pushed diffs are never mutated and truncation only rebinds the slice
// of the original.
func (s *SpeculativeLedger) Snapshot() *SpeculativeLedger {
	return &SpeculativeLedger{
		final: s.final,
		steps: append([]Step(nil), s.steps...),
	}
}

// LastSlot returns the slot of the newest step, or the final ledger's
// last slot when the arena is empty.
func (s *SpeculativeLedger) LastSlot() (types.Slot, bool) {
	if len(s.steps) > 0 {
		return s.steps[len(s.steps)-1].Slot, true
	}
	return s.final.LastSlot()
}

// Balance returns a copy of the candidate balance of addr, nil if the
// address is unknown to the candidate view.
func (s *SpeculativeLedger) Balance(addr types.Address, kind types.BalanceKind) *uint256.Int {
	for i := len(s.steps) - 1; i >= 0; i-- {
		if value, ok := s.steps[i].Changes.Balance(addr, kind); ok {
			return value.Clone()
		}
	}
	return s.final.Balance(addr, kind)
}

// DataEntry returns a copy of the candidate datastore value, nil if absent.
func (s *SpeculativeLedger) DataEntry(addr types.Address, key []byte) []byte {
	for i := len(s.steps) - 1; i >= 0; i-- {
		if value, touched := s.steps[i].Changes.DataEntry(addr, key); touched {
			if value == nil {
				return nil
			}
			return append([]byte(nil), value...)
		}
	}
	return s.final.DataEntry(addr, key)
}

// DatastoreKeys returns the candidate datastore keys of addr in
// lexicographic byte order.
func (s *SpeculativeLedger) DatastoreKeys(addr types.Address) [][]byte {
	known := s.final.entryExists(addr)
	keys := make(map[string]struct{})
	for _, k := range s.final.DatastoreKeys(addr) {
		keys[string(k)] = struct{}{}
	}
	for _, step := range s.steps {
		ec, ok := step.Changes.Entries[addr]
		if !ok {
			continue
		}
		known = true
		for k := range ec.DatastorePut {
			keys[k] = struct{}{}
		}
		for k := range ec.DatastoreDelete {
			delete(keys, k)
		}
	}
	if !known {
		return nil
	}
	sorted := make([]string, 0, len(keys))
	for k := range keys {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)
	out := make([][]byte, len(sorted))
	for i, k := range sorted {
		out[i] = []byte(k)
	}
	return out
}

// Bytecode returns the candidate bytecode of addr, nil if none.
func (s *SpeculativeLedger) Bytecode(addr types.Address) []byte {
	for i := len(s.steps) - 1; i >= 0; i-- {
		if code, ok := s.steps[i].Changes.Bytecode(addr); ok {
			return append([]byte(nil), code...)
		}
	}
	return s.final.Bytecode(addr)
}

// HasExecuted reports whether op was applied in the candidate view
// (final prefix included).
func (s *SpeculativeLedger) HasExecuted(id types.OperationId) bool {
	for i := len(s.steps) - 1; i >= 0; i-- {
		if s.steps[i].Changes.ExecutedOps.Contains(id) {
			return true
		}
	}
	return s.final.HasExecuted(id)
}

// RollCount returns the candidate roll count of addr.
func (s *SpeculativeLedger) RollCount(addr types.Address) uint64 {
	for i := len(s.steps) - 1; i >= 0; i-- {
		if count, ok := s.steps[i].Changes.Rolls(addr); ok {
			return count
		}
	}
	return s.final.RollCount(addr)
}

// RollCounts returns every non-zero candidate roll count.
func (s *SpeculativeLedger) RollCounts() map[types.Address]uint64 {
	out := s.final.RollCounts()
	for _, step := range s.steps {
		for addr, count := range step.Changes.RollUpdates {
			if count == 0 {
				delete(out, addr)
			} else {
				out[addr] = count
			}
		}
	}
	return out
}
