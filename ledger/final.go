package ledger

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"
	"sync"

	"github.com/holiman/uint256"
	bolt "go.etcd.io/bbolt"

	"github.com/quartzchain/quartz/jsonx"
	"github.com/quartzchain/quartz/logx"
	"github.com/quartzchain/quartz/types"
)

var (
	bucketBalances  = []byte("balances")
	bucketBytecode  = []byte("bytecode")
	bucketDatastore = []byte("datastore")
	bucketExecuted  = []byte("executed")
	bucketRolls     = []byte("rolls")
	bucketMeta      = []byte("meta")

	keyLastSlot = []byte("last_slot")

	// separator between address and datastore key; addresses are
	// base58 so they never contain a zero byte
	datastoreSep = []byte{0}
)

type balancePair struct {
	Parallel   *uint256.Int `json:"parallel"`
	Sequential *uint256.Int `json:"sequential"`
}

// FinalLedger is the irreversible state view. It is mutated only by
// strictly increasing slot order and never rolled back. The working set
// lives in memory; every applied slot is also persisted to bbolt so the
// ledger survives restarts. An empty path disables persistence.
type FinalLedger struct {
	mu       sync.RWMutex
	db       *bolt.DB
	entries  map[types.Address]*LedgerEntry
	executed map[types.OperationId]types.Slot
	rolls    map[types.Address]uint64
	lastSlot *types.Slot
}

// NewFinalLedger opens (or creates) the final ledger at path and loads
// the persisted state back into memory.
func NewFinalLedger(path string) (*FinalLedger, error) {
	l := &FinalLedger{
		entries:  make(map[types.Address]*LedgerEntry),
		executed: make(map[types.OperationId]types.Slot),
		rolls:    make(map[types.Address]uint64),
	}
	if path == "" {
		return l, nil
	}

	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger db at %s: %w", path, err)
	}
	l.db = db
	if err := l.load(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to load ledger state: %w", err)
	}
	return l, nil
}

func (l *FinalLedger) Close() error {
	if l.db == nil {
		return nil
	}
	return l.db.Close()
}

func (l *FinalLedger) load() error {
	return l.db.View(func(tx *bolt.Tx) error {
		if b := tx.Bucket(bucketBalances); b != nil {
			err := b.ForEach(func(k, v []byte) error {
				var pair balancePair
				if err := jsonx.Unmarshal(v, &pair); err != nil {
					return fmt.Errorf("corrupt balance record for %s: %w", k, err)
				}
				entry := l.entryOrCreate(types.Address(k))
				entry.ParallelBalance = pair.Parallel
				entry.SequentialBalance = pair.Sequential
				return nil
			})
			if err != nil {
				return err
			}
		}
		if b := tx.Bucket(bucketBytecode); b != nil {
			err := b.ForEach(func(k, v []byte) error {
				entry := l.entryOrCreate(types.Address(k))
				entry.Bytecode = append([]byte(nil), v...)
				return nil
			})
			if err != nil {
				return err
			}
		}
		if b := tx.Bucket(bucketDatastore); b != nil {
			err := b.ForEach(func(k, v []byte) error {
				sep := bytes.IndexByte(k, 0)
				if sep < 0 {
					return fmt.Errorf("corrupt datastore key %q", k)
				}
				entry := l.entryOrCreate(types.Address(k[:sep]))
				entry.Datastore[string(k[sep+1:])] = append([]byte(nil), v...)
				return nil
			})
			if err != nil {
				return err
			}
		}
		if b := tx.Bucket(bucketExecuted); b != nil {
			err := b.ForEach(func(k, v []byte) error {
				if len(k) != 32 {
					return fmt.Errorf("corrupt executed-op key %q", k)
				}
				var id types.OperationId
				copy(id[:], k)
				var slot types.Slot
				if err := jsonx.Unmarshal(v, &slot); err != nil {
					return fmt.Errorf("corrupt executed-op record: %w", err)
				}
				l.executed[id] = slot
				return nil
			})
			if err != nil {
				return err
			}
		}
		if b := tx.Bucket(bucketRolls); b != nil {
			err := b.ForEach(func(k, v []byte) error {
				if len(v) != 8 {
					return fmt.Errorf("corrupt roll record for %s", k)
				}
				l.rolls[types.Address(k)] = binary.BigEndian.Uint64(v)
				return nil
			})
			if err != nil {
				return err
			}
		}
		if b := tx.Bucket(bucketMeta); b != nil {
			if v := b.Get(keyLastSlot); v != nil {
				var slot types.Slot
				if err := jsonx.Unmarshal(v, &slot); err != nil {
					return fmt.Errorf("corrupt last-slot record: %w", err)
				}
				l.lastSlot = &slot
			}
		}
		return nil
	})
}

func (l *FinalLedger) entryOrCreate(addr types.Address) *LedgerEntry {
	entry, ok := l.entries[addr]
	if !ok {
		entry = NewLedgerEntry()
		l.entries[addr] = entry
	}
	return entry
}

// Apply folds a slot diff into the final state. Slots must arrive in
// strictly increasing order; re-applying an old slot is rejected.
func (l *FinalLedger) Apply(slot types.Slot, changes *Changes) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.lastSlot != nil && !slot.After(*l.lastSlot) {
		return fmt.Errorf("final slot %s applied out of order (last was %s)", slot, *l.lastSlot)
	}

	for addr, ec := range changes.Entries {
		applyEntryChanges(l.entryOrCreate(addr), ec)
	}
	for id := range changes.ExecutedOps {
		l.executed[id] = slot
	}
	for addr, count := range changes.RollUpdates {
		l.rolls[addr] = count
	}
	slotCopy := slot
	l.lastSlot = &slotCopy

	if l.db == nil {
		return nil
	}
	if err := l.persist(slot, changes); err != nil {
		return fmt.Errorf("failed to persist final slot %s: %w", slot, err)
	}
	logx.Debug("LEDGER", fmt.Sprintf("Persisted final slot %s", slot))
	return nil
}

func (l *FinalLedger) persist(slot types.Slot, changes *Changes) error {
	return l.db.Update(func(tx *bolt.Tx) error {
		balances, err := tx.CreateBucketIfNotExists(bucketBalances)
		if err != nil {
			return err
		}
		bytecode, err := tx.CreateBucketIfNotExists(bucketBytecode)
		if err != nil {
			return err
		}
		datastore, err := tx.CreateBucketIfNotExists(bucketDatastore)
		if err != nil {
			return err
		}
		executed, err := tx.CreateBucketIfNotExists(bucketExecuted)
		if err != nil {
			return err
		}
		rolls, err := tx.CreateBucketIfNotExists(bucketRolls)
		if err != nil {
			return err
		}
		meta, err := tx.CreateBucketIfNotExists(bucketMeta)
		if err != nil {
			return err
		}

		for addr, ec := range changes.Entries {
			entry := l.entries[addr]
			if ec.SetParallel != nil || ec.SetSequential != nil {
				raw, err := jsonx.Marshal(balancePair{
					Parallel:   entry.ParallelBalance,
					Sequential: entry.SequentialBalance,
				})
				if err != nil {
					return err
				}
				if err := balances.Put([]byte(addr), raw); err != nil {
					return err
				}
			}
			if ec.SetBytecode != nil {
				if err := bytecode.Put([]byte(addr), ec.SetBytecode); err != nil {
					return err
				}
			}
			for k, v := range ec.DatastorePut {
				if err := datastore.Put(datastoreKey(addr, []byte(k)), v); err != nil {
					return err
				}
			}
			for k := range ec.DatastoreDelete {
				if err := datastore.Delete(datastoreKey(addr, []byte(k))); err != nil {
					return err
				}
			}
		}
		for id := range changes.ExecutedOps {
			idCopy := id
			raw, err := jsonx.Marshal(slot)
			if err != nil {
				return err
			}
			if err := executed.Put(idCopy[:], raw); err != nil {
				return err
			}
		}
		for addr, count := range changes.RollUpdates {
			buf := make([]byte, 8)
			binary.BigEndian.PutUint64(buf, count)
			if err := rolls.Put([]byte(addr), buf); err != nil {
				return err
			}
		}
		raw, err := jsonx.Marshal(slot)
		if err != nil {
			return err
		}
		return meta.Put(keyLastSlot, raw)
	})
}

func datastoreKey(addr types.Address, key []byte) []byte {
	out := make([]byte, 0, len(addr)+1+len(key))
	out = append(out, []byte(addr)...)
	out = append(out, datastoreSep...)
	return append(out, key...)
}

// Balance returns a copy of the balance of addr in the given value
// space, or nil if the address is unknown to the final view.
func (l *FinalLedger) Balance(addr types.Address, kind types.BalanceKind) *uint256.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	entry, ok := l.entries[addr]
	if !ok {
		return nil
	}
	return entry.Balance(kind).Clone()
}

// DataEntry returns a copy of the datastore value, nil if absent.
func (l *FinalLedger) DataEntry(addr types.Address, key []byte) []byte {
	l.mu.RLock()
	defer l.mu.RUnlock()

	entry, ok := l.entries[addr]
	if !ok {
		return nil
	}
	value, ok := entry.Datastore[string(key)]
	if !ok {
		return nil
	}
	return append([]byte(nil), value...)
}

// DatastoreKeys returns the datastore keys of addr in lexicographic
// byte order.
func (l *FinalLedger) DatastoreKeys(addr types.Address) [][]byte {
	l.mu.RLock()
	defer l.mu.RUnlock()

	entry, ok := l.entries[addr]
	if !ok {
		return nil
	}
	keys := make([]string, 0, len(entry.Datastore))
	for k := range entry.Datastore {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([][]byte, len(keys))
	for i, k := range keys {
		out[i] = []byte(k)
	}
	return out
}

// Bytecode returns the contract bytecode of addr, nil if none.
func (l *FinalLedger) Bytecode(addr types.Address) []byte {
	l.mu.RLock()
	defer l.mu.RUnlock()

	entry, ok := l.entries[addr]
	if !ok || entry.Bytecode == nil {
		return nil
	}
	return append([]byte(nil), entry.Bytecode...)
}

func (l *FinalLedger) entryExists(addr types.Address) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.entries[addr]
	return ok
}

// HasExecuted reports whether op was applied to the final view.
func (l *FinalLedger) HasExecuted(id types.OperationId) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.executed[id]
	return ok
}

// RollCount returns the roll count of addr in the final view.
func (l *FinalLedger) RollCount(addr types.Address) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.rolls[addr]
}

// RollCounts returns a copy of every non-zero roll count.
func (l *FinalLedger) RollCounts() map[types.Address]uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make(map[types.Address]uint64, len(l.rolls))
	for addr, count := range l.rolls {
		if count > 0 {
			out[addr] = count
		}
	}
	return out
}

// LastSlot returns the latest slot applied to the final view.
func (l *FinalLedger) LastSlot() (types.Slot, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.lastSlot == nil {
		return types.Slot{}, false
	}
	return *l.lastSlot, true
}
