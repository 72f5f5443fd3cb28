package eventstore

import (
	"sync"

	"github.com/quartzchain/quartz/monitoring"
	"github.com/quartzchain/quartz/types"
)

type slotEvents struct {
	slot   types.Slot
	events []types.SCOutputEvent
}

// Store is the append-only log of smart contract output events. Events
// from finalized slots are immutable; events from candidate slots are
// kept per slot so a reorg can drop and re-record them together with the
// ledger diff arena. Ordering is (slot, emission index), final before
// candidate: a finalized slot is always older than any candidate slot.
type Store struct {
	mu          sync.RWMutex
	final       []types.SCOutputEvent
	speculative []slotEvents
	bus         *Bus
}

// NewStore creates an event store. bus may be nil when live streaming
// is not needed.
func NewStore(bus *Bus) *Store {
	return &Store{bus: bus}
}

// RecordSlot appends the events produced by a candidate slot. Slots must
// be recorded in increasing order; replaying a slot requires truncating
// first.
func (s *Store) RecordSlot(slot types.Slot, events []types.SCOutputEvent) {
	s.mu.Lock()
	s.speculative = append(s.speculative, slotEvents{slot: slot, events: events})
	s.mu.Unlock()

	monitoring.AddEventCount(len(events))
	if s.bus != nil && len(events) > 0 {
		s.bus.Publish(events)
	}
}

// TruncateAfter drops candidate events of every slot strictly after slot.
func (s *Store) TruncateAfter(slot types.Slot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keep := len(s.speculative)
	for keep > 0 && s.speculative[keep-1].slot.After(slot) {
		keep--
	}
	s.speculative = s.speculative[:keep]
}

// TruncateFrom drops candidate events of every slot at or after slot.
func (s *Store) TruncateFrom(slot types.Slot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keep := len(s.speculative)
	for keep > 0 && !s.speculative[keep-1].slot.Before(slot) {
		keep--
	}
	s.speculative = s.speculative[:keep]
}

// FinalizeThrough moves candidate events of every slot up to and
// including slot into the immutable final log.
func (s *Store) FinalizeThrough(slot types.Slot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := 0
	for idx < len(s.speculative) && !s.speculative[idx].slot.After(slot) {
		s.final = append(s.final, s.speculative[idx].events...)
		idx++
	}
	s.speculative = append([]slotEvents(nil), s.speculative[idx:]...)
}

// Query returns every stored event matching the filter, ordered by
// (slot, emission index).
func (s *Store) Query(filter types.EventFilter) []types.SCOutputEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []types.SCOutputEvent
	for i := range s.final {
		if filter.Matches(&s.final[i]) {
			out = append(out, s.final[i])
		}
	}
	for _, se := range s.speculative {
		for i := range se.events {
			if filter.Matches(&se.events[i]) {
				out = append(out, se.events[i])
			}
		}
	}
	return out
}

// FinalCount returns the number of events in the immutable log.
func (s *Store) FinalCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.final)
}
