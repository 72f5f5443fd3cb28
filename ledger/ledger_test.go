package ledger

import (
	"path/filepath"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quartzchain/quartz/types"
)

func newMemLedger(t *testing.T) *FinalLedger {
	t.Helper()
	l, err := NewFinalLedger("")
	require.NoError(t, err)
	return l
}

func TestFinalLedgerApplyAndQuery(t *testing.T) {
	l := newMemLedger(t)

	changes := NewChanges()
	changes.SetBalance("alice", types.Parallel, uint256.NewInt(50))
	changes.SetBalance("alice", types.Sequential, uint256.NewInt(7))
	changes.PutDataEntry("alice", []byte("b"), []byte("2"))
	changes.PutDataEntry("alice", []byte("a"), []byte("1"))
	changes.SetBytecode("contract", []byte{0x00, 0x61, 0x73, 0x6d})
	opId := types.NewOperationId([]byte("op"))
	changes.MarkExecuted(opId)
	changes.SetRolls("alice", 4)

	require.NoError(t, l.Apply(types.NewSlot(1, 0), changes))

	assert.Equal(t, uint256.NewInt(50), l.Balance("alice", types.Parallel))
	assert.Equal(t, uint256.NewInt(7), l.Balance("alice", types.Sequential))
	assert.Nil(t, l.Balance("bob", types.Parallel))

	assert.Equal(t, []byte("1"), l.DataEntry("alice", []byte("a")))
	assert.Nil(t, l.DataEntry("alice", []byte("missing")))
	assert.Equal(t, [][]byte{[]byte("a"), []byte("b")}, l.DatastoreKeys("alice"))

	assert.NotNil(t, l.Bytecode("contract"))
	assert.True(t, l.HasExecuted(opId))
	assert.False(t, l.HasExecuted(types.NewOperationId([]byte("other"))))
	assert.Equal(t, uint64(4), l.RollCount("alice"))

	last, ok := l.LastSlot()
	require.True(t, ok)
	assert.Equal(t, types.NewSlot(1, 0), last)
}

func TestLedgerEntryCloneIsIndependent(t *testing.T) {
	entry := NewLedgerEntry()
	entry.ParallelBalance = uint256.NewInt(5)
	entry.Bytecode = []byte{1, 2}
	entry.Datastore["k"] = []byte("v")

	cp := entry.Clone()
	cp.ParallelBalance.SetUint64(99)
	cp.Bytecode[0] = 9
	cp.Datastore["k"][0] = 'x'

	assert.Equal(t, uint256.NewInt(5), entry.ParallelBalance)
	assert.Equal(t, []byte{1, 2}, entry.Bytecode)
	assert.Equal(t, []byte("v"), entry.Datastore["k"])
}

func TestFinalLedgerRejectsOutOfOrderSlot(t *testing.T) {
	l := newMemLedger(t)

	require.NoError(t, l.Apply(types.NewSlot(2, 1), NewChanges()))
	assert.Error(t, l.Apply(types.NewSlot(2, 1), NewChanges()))
	assert.Error(t, l.Apply(types.NewSlot(2, 0), NewChanges()))
	assert.NoError(t, l.Apply(types.NewSlot(3, 0), NewChanges()))
}

func TestFinalLedgerPersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")

	l, err := NewFinalLedger(path)
	require.NoError(t, err)

	changes := NewChanges()
	changes.SetBalance("alice", types.Parallel, uint256.NewInt(123))
	changes.PutDataEntry("alice", []byte("key"), []byte("value"))
	changes.SetBytecode("contract", []byte{1, 2, 3})
	opId := types.NewOperationId([]byte("persisted-op"))
	changes.MarkExecuted(opId)
	changes.SetRolls("alice", 9)
	require.NoError(t, l.Apply(types.NewSlot(5, 1), changes))
	require.NoError(t, l.Close())

	reopened, err := NewFinalLedger(path)
	require.NoError(t, err)
	defer reopened.Close()

	assert.Equal(t, uint256.NewInt(123), reopened.Balance("alice", types.Parallel))
	assert.Equal(t, []byte("value"), reopened.DataEntry("alice", []byte("key")))
	assert.Equal(t, []byte{1, 2, 3}, reopened.Bytecode("contract"))
	assert.True(t, reopened.HasExecuted(opId))
	assert.Equal(t, uint64(9), reopened.RollCount("alice"))

	last, ok := reopened.LastSlot()
	require.True(t, ok)
	assert.Equal(t, types.NewSlot(5, 1), last)
}

func TestSpeculativeLedgerOverlay(t *testing.T) {
	final := newMemLedger(t)
	base := NewChanges()
	base.SetBalance("alice", types.Parallel, uint256.NewInt(100))
	base.PutDataEntry("alice", []byte("k1"), []byte("final"))
	require.NoError(t, final.Apply(types.NewSlot(0, 0), base))

	spec := NewSpeculativeLedger(final)

	step1 := NewChanges()
	step1.SetBalance("alice", types.Parallel, uint256.NewInt(60))
	step1.PutDataEntry("alice", []byte("k2"), []byte("spec"))
	spec.Push(Step{Slot: types.NewSlot(1, 0), Changes: step1})

	step2 := NewChanges()
	step2.SetBalance("alice", types.Parallel, uint256.NewInt(30))
	step2.DeleteDataEntry("alice", []byte("k1"))
	spec.Push(Step{Slot: types.NewSlot(1, 1), Changes: step2})

	// newest step wins, untouched values fall through to final
	assert.Equal(t, uint256.NewInt(30), spec.Balance("alice", types.Parallel))
	assert.Nil(t, spec.DataEntry("alice", []byte("k1")))
	assert.Equal(t, []byte("spec"), spec.DataEntry("alice", []byte("k2")))
	assert.Equal(t, [][]byte{[]byte("k2")}, spec.DatastoreKeys("alice"))
	assert.Nil(t, spec.Balance("bob", types.Parallel))
}

func TestSpeculativeLedgerTruncation(t *testing.T) {
	final := newMemLedger(t)
	spec := NewSpeculativeLedger(final)

	for period := uint64(1); period <= 3; period++ {
		c := NewChanges()
		c.SetBalance("alice", types.Parallel, uint256.NewInt(period))
		spec.Push(Step{Slot: types.NewSlot(period, 0), Changes: c})
	}

	removed := spec.PopAfter(types.NewSlot(2, 0))
	assert.Equal(t, 1, removed)
	assert.Equal(t, uint256.NewInt(2), spec.Balance("alice", types.Parallel))

	removed = spec.PopFrom(types.NewSlot(2, 0))
	assert.Equal(t, 1, removed)
	assert.Equal(t, uint256.NewInt(1), spec.Balance("alice", types.Parallel))

	spec.DropThrough(types.NewSlot(1, 0))
	assert.Empty(t, spec.Steps())
	assert.Nil(t, spec.Balance("alice", types.Parallel))
}

func TestSpeculativeLedgerSnapshotIsolated(t *testing.T) {
	final := newMemLedger(t)
	spec := NewSpeculativeLedger(final)

	c := NewChanges()
	c.SetBalance("alice", types.Parallel, uint256.NewInt(10))
	spec.Push(Step{Slot: types.NewSlot(1, 0), Changes: c})

	snap := spec.Snapshot()
	spec.PopAfter(types.NewSlot(0, 0))

	assert.Nil(t, spec.Balance("alice", types.Parallel))
	assert.Equal(t, uint256.NewInt(10), snap.Balance("alice", types.Parallel))
}
