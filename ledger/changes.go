package ledger

import (
	"crypto/sha256"
	"encoding/binary"
	"sort"

	"github.com/holiman/uint256"

	"github.com/quartzchain/quartz/types"
)

// EntryChanges is the diff of a single address. Balance and bytecode
// changes carry the resulting value (set semantics), so merging two
// diffs is just "last one wins" per field.
type EntryChanges struct {
	SetParallel     *uint256.Int
	SetSequential   *uint256.Int
	SetBytecode     []byte
	DatastorePut    map[string][]byte
	DatastoreDelete map[string]struct{}
}

func newEntryChanges() *EntryChanges {
	return &EntryChanges{
		DatastorePut:    make(map[string][]byte),
		DatastoreDelete: make(map[string]struct{}),
	}
}

// Changes is the state diff produced by executing one slot.
type Changes struct {
	Entries     map[types.Address]*EntryChanges
	ExecutedOps types.OperationIdSet
	RollUpdates map[types.Address]uint64
}

func NewChanges() *Changes {
	return &Changes{
		Entries:     make(map[types.Address]*EntryChanges),
		ExecutedOps: make(types.OperationIdSet),
		RollUpdates: make(map[types.Address]uint64),
	}
}

func (c *Changes) entry(addr types.Address) *EntryChanges {
	ec, ok := c.Entries[addr]
	if !ok {
		ec = newEntryChanges()
		c.Entries[addr] = ec
	}
	return ec
}

// SetBalance records the new balance of addr in the given value space.
func (c *Changes) SetBalance(addr types.Address, kind types.BalanceKind, value *uint256.Int) {
	ec := c.entry(addr)
	if kind == types.Sequential {
		ec.SetSequential = value.Clone()
	} else {
		ec.SetParallel = value.Clone()
	}
}

// Balance returns the balance recorded for addr, if any.
func (c *Changes) Balance(addr types.Address, kind types.BalanceKind) (*uint256.Int, bool) {
	ec, ok := c.Entries[addr]
	if !ok {
		return nil, false
	}
	if kind == types.Sequential {
		if ec.SetSequential == nil {
			return nil, false
		}
		return ec.SetSequential, true
	}
	if ec.SetParallel == nil {
		return nil, false
	}
	return ec.SetParallel, true
}

// PutDataEntry records a datastore write.
func (c *Changes) PutDataEntry(addr types.Address, key, value []byte) {
	ec := c.entry(addr)
	delete(ec.DatastoreDelete, string(key))
	ec.DatastorePut[string(key)] = append([]byte(nil), value...)
}

// DeleteDataEntry records a datastore deletion.
func (c *Changes) DeleteDataEntry(addr types.Address, key []byte) {
	ec := c.entry(addr)
	delete(ec.DatastorePut, string(key))
	ec.DatastoreDelete[string(key)] = struct{}{}
}

// DataEntry returns the value recorded for (addr, key). touched is false
// when the diff says nothing about the pair; a touched nil value means
// the key was deleted.
func (c *Changes) DataEntry(addr types.Address, key []byte) (value []byte, touched bool) {
	ec, ok := c.Entries[addr]
	if !ok {
		return nil, false
	}
	if v, ok := ec.DatastorePut[string(key)]; ok {
		return v, true
	}
	if _, ok := ec.DatastoreDelete[string(key)]; ok {
		return nil, true
	}
	return nil, false
}

// SetBytecode records new contract bytecode for addr.
func (c *Changes) SetBytecode(addr types.Address, bytecode []byte) {
	c.entry(addr).SetBytecode = append([]byte(nil), bytecode...)
}

// Bytecode returns the bytecode recorded for addr, if any.
func (c *Changes) Bytecode(addr types.Address) ([]byte, bool) {
	ec, ok := c.Entries[addr]
	if !ok || ec.SetBytecode == nil {
		return nil, false
	}
	return ec.SetBytecode, true
}

// MarkExecuted records that an operation was applied.
func (c *Changes) MarkExecuted(id types.OperationId) {
	c.ExecutedOps.Add(id)
}

// SetRolls records the new roll count of addr.
func (c *Changes) SetRolls(addr types.Address, count uint64) {
	c.RollUpdates[addr] = count
}

// Rolls returns the roll count recorded for addr, if any.
func (c *Changes) Rolls(addr types.Address) (uint64, bool) {
	count, ok := c.RollUpdates[addr]
	return count, ok
}

// Touched reports whether the diff mentions addr at all.
func (c *Changes) Touched(addr types.Address) bool {
	if _, ok := c.Entries[addr]; ok {
		return true
	}
	_, ok := c.RollUpdates[addr]
	return ok
}

// Merge folds other into c; entries of other win on conflict.
func (c *Changes) Merge(other *Changes) {
	for addr, oc := range other.Entries {
		ec := c.entry(addr)
		if oc.SetParallel != nil {
			ec.SetParallel = oc.SetParallel.Clone()
		}
		if oc.SetSequential != nil {
			ec.SetSequential = oc.SetSequential.Clone()
		}
		if oc.SetBytecode != nil {
			ec.SetBytecode = append([]byte(nil), oc.SetBytecode...)
		}
		for k, v := range oc.DatastorePut {
			delete(ec.DatastoreDelete, k)
			ec.DatastorePut[k] = append([]byte(nil), v...)
		}
		for k := range oc.DatastoreDelete {
			delete(ec.DatastorePut, k)
			ec.DatastoreDelete[k] = struct{}{}
		}
	}
	for id := range other.ExecutedOps {
		c.ExecutedOps.Add(id)
	}
	for addr, count := range other.RollUpdates {
		c.RollUpdates[addr] = count
	}
}

// Fingerprint hashes the diff into a digest that is bit-identical for
// semantically identical diffs. Maps are walked in sorted key order and
// every field is length-prefixed so distinct diffs cannot collide.
func (c *Changes) Fingerprint() [32]byte {
	h := sha256.New()
	scratch := make([]byte, 8)
	writeBytes := func(b []byte) {
		binary.BigEndian.PutUint64(scratch, uint64(len(b)))
		h.Write(scratch)
		h.Write(b)
	}

	addrs := make([]string, 0, len(c.Entries))
	for addr := range c.Entries {
		addrs = append(addrs, string(addr))
	}
	sort.Strings(addrs)
	for _, addr := range addrs {
		ec := c.Entries[types.Address(addr)]
		writeBytes([]byte(addr))
		for _, balance := range []*uint256.Int{ec.SetParallel, ec.SetSequential} {
			if balance == nil {
				h.Write([]byte{0})
				continue
			}
			h.Write([]byte{1})
			b := balance.Bytes32()
			h.Write(b[:])
		}
		if ec.SetBytecode == nil {
			h.Write([]byte{0})
		} else {
			h.Write([]byte{1})
			writeBytes(ec.SetBytecode)
		}
		puts := make([]string, 0, len(ec.DatastorePut))
		for k := range ec.DatastorePut {
			puts = append(puts, k)
		}
		sort.Strings(puts)
		for _, k := range puts {
			writeBytes([]byte(k))
			writeBytes(ec.DatastorePut[k])
		}
		dels := make([]string, 0, len(ec.DatastoreDelete))
		for k := range ec.DatastoreDelete {
			dels = append(dels, k)
		}
		sort.Strings(dels)
		for _, k := range dels {
			writeBytes([]byte(k))
		}
	}

	ops := make([][]byte, 0, len(c.ExecutedOps))
	for id := range c.ExecutedOps {
		idCopy := id
		ops = append(ops, idCopy[:])
	}
	sort.Slice(ops, func(i, j int) bool { return string(ops[i]) < string(ops[j]) })
	for _, id := range ops {
		h.Write(id)
	}

	rollAddrs := make([]string, 0, len(c.RollUpdates))
	for addr := range c.RollUpdates {
		rollAddrs = append(rollAddrs, string(addr))
	}
	sort.Strings(rollAddrs)
	for _, addr := range rollAddrs {
		writeBytes([]byte(addr))
		binary.BigEndian.PutUint64(scratch, c.RollUpdates[types.Address(addr)])
		h.Write(scratch)
	}

	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
