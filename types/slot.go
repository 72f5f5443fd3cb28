package types

import "fmt"

// Slot identifies a position in the chain as a (period, thread) pair.
// Slots are totally ordered by period first, thread second.
type Slot struct {
	Period uint64 `json:"period"`
	Thread uint8  `json:"thread"`
}

func NewSlot(period uint64, thread uint8) Slot {
	return Slot{Period: period, Thread: thread}
}

// Cmp returns -1, 0 or 1 if s is before, equal to or after other.
func (s Slot) Cmp(other Slot) int {
	if s.Period != other.Period {
		if s.Period < other.Period {
			return -1
		}
		return 1
	}
	if s.Thread != other.Thread {
		if s.Thread < other.Thread {
			return -1
		}
		return 1
	}
	return 0
}

func (s Slot) Before(other Slot) bool {
	return s.Cmp(other) < 0
}

func (s Slot) After(other Slot) bool {
	return s.Cmp(other) > 0
}

// Next returns the slot immediately following s given the number of threads.
func (s Slot) Next(threadCount uint8) Slot {
	if s.Thread+1 < threadCount {
		return Slot{Period: s.Period, Thread: s.Thread + 1}
	}
	return Slot{Period: s.Period + 1, Thread: 0}
}

// Cycle returns the cycle this slot belongs to.
func (s Slot) Cycle(periodsPerCycle uint64) uint64 {
	return s.Period / periodsPerCycle
}

// IsLastOfCycle reports whether s is the last slot of its cycle.
func (s Slot) IsLastOfCycle(periodsPerCycle uint64, threadCount uint8) bool {
	return (s.Period+1)%periodsPerCycle == 0 && s.Thread == threadCount-1
}

func (s Slot) String() string {
	return fmt.Sprintf("(period: %d, thread: %d)", s.Period, s.Thread)
}
