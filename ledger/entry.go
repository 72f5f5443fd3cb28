package ledger

import (
	"github.com/holiman/uint256"

	"github.com/quartzchain/quartz/types"
)

// LedgerEntry is the full state of one address: the two balances, the
// contract bytecode if any, and the byte-keyed datastore.
type LedgerEntry struct {
	ParallelBalance   *uint256.Int      `json:"parallel_balance"`
	SequentialBalance *uint256.Int      `json:"sequential_balance"`
	Bytecode          []byte            `json:"bytecode,omitempty"`
	Datastore         map[string][]byte `json:"-"`
}

func NewLedgerEntry() *LedgerEntry {
	return &LedgerEntry{
		ParallelBalance:   uint256.NewInt(0),
		SequentialBalance: uint256.NewInt(0),
		Datastore:         make(map[string][]byte),
	}
}

// Balance returns the balance of the requested value space.
func (e *LedgerEntry) Balance(kind types.BalanceKind) *uint256.Int {
	if kind == types.Sequential {
		return e.SequentialBalance
	}
	return e.ParallelBalance
}

func (e *LedgerEntry) Clone() *LedgerEntry {
	cp := &LedgerEntry{
		ParallelBalance:   e.ParallelBalance.Clone(),
		SequentialBalance: e.SequentialBalance.Clone(),
		Datastore:         make(map[string][]byte, len(e.Datastore)),
	}
	if e.Bytecode != nil {
		cp.Bytecode = append([]byte(nil), e.Bytecode...)
	}
	for k, v := range e.Datastore {
		cp.Datastore[k] = append([]byte(nil), v...)
	}
	return cp
}

// applyEntryChanges folds a per-address diff into the entry in place.
func applyEntryChanges(entry *LedgerEntry, ec *EntryChanges) {
	if ec.SetParallel != nil {
		entry.ParallelBalance = ec.SetParallel.Clone()
	}
	if ec.SetSequential != nil {
		entry.SequentialBalance = ec.SetSequential.Clone()
	}
	if ec.SetBytecode != nil {
		entry.Bytecode = append([]byte(nil), ec.SetBytecode...)
	}
	for k, v := range ec.DatastorePut {
		entry.Datastore[k] = append([]byte(nil), v...)
	}
	for k := range ec.DatastoreDelete {
		delete(entry.Datastore, k)
	}
}
