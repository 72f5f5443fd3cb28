package storage

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quartzchain/quartz/types"
)

func testBlock(seed string) *BlockContent {
	op := types.NewTransfer("alice", "bob", uint256.NewInt(10), types.Parallel)
	return &BlockContent{
		ID:         types.NewBlockId([]byte(seed)),
		Slot:       types.NewSlot(1, 0),
		Operations: []*types.Operation{op},
	}
}

func TestBackingStoreAndRead(t *testing.T) {
	b := NewBacking(NewMemProvider())
	content := testBlock("b1")
	require.NoError(t, b.StoreBlock(content))

	handle := b.Acquire(content.ID)
	defer handle.Release()

	got, err := handle.Block(content.ID)
	require.NoError(t, err)
	assert.Equal(t, content.ID, got.ID)
	require.Len(t, got.Operations, 1)
	assert.Equal(t, types.Address("alice"), got.Operations[0].Sender)
}

func TestStorageRejectsUnreferencedBlock(t *testing.T) {
	b := NewBacking(NewMemProvider())
	content := testBlock("b1")
	require.NoError(t, b.StoreBlock(content))

	handle := b.Acquire()
	defer handle.Release()

	_, err := handle.Block(content.ID)
	assert.Error(t, err)
}

func TestStorageRefCounting(t *testing.T) {
	provider := NewMemProvider()
	b := NewBacking(provider)
	content := testBlock("b1")
	require.NoError(t, b.StoreBlock(content))

	first := b.Acquire(content.ID)
	second := first.Clone()

	first.Release()
	first.Release() // double release is a no-op

	// payload still readable through the surviving handle
	got, err := second.Block(content.ID)
	require.NoError(t, err)
	assert.Equal(t, content.ID, got.ID)

	second.Release()

	// cache dropped, but the provider still has the block on disk
	fresh := b.Acquire(content.ID)
	defer fresh.Release()
	got, err = fresh.Block(content.ID)
	require.NoError(t, err)
	assert.Equal(t, content.ID, got.ID)
}

func TestBackingMissingBlock(t *testing.T) {
	b := NewBacking(NewMemProvider())
	unknown := types.NewBlockId([]byte("never stored"))

	handle := b.Acquire(unknown)
	defer handle.Release()

	_, err := handle.Block(unknown)
	assert.Error(t, err)
}

func TestLevelDBProviderRoundTrip(t *testing.T) {
	provider, err := NewLevelDBProvider(t.TempDir())
	require.NoError(t, err)
	defer provider.Close()

	require.NoError(t, provider.Put([]byte("k"), []byte("v")))
	got, err := provider.Get([]byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	has, err := provider.Has([]byte("k"))
	require.NoError(t, err)
	assert.True(t, has)

	// absent keys read as nil, not as an error
	got, err = provider.Get([]byte("missing"))
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, provider.Delete([]byte("k")))
	has, err = provider.Has([]byte("k"))
	require.NoError(t, err)
	assert.False(t, has)
}

func TestBackingOverLevelDB(t *testing.T) {
	dir := t.TempDir()
	provider, err := NewLevelDBProvider(dir)
	require.NoError(t, err)

	content := testBlock("persisted")
	b := NewBacking(provider)
	require.NoError(t, b.StoreBlock(content))
	require.NoError(t, provider.Close())

	// a fresh backing over the same directory sees the block
	reopened, err := NewLevelDBProvider(dir)
	require.NoError(t, err)
	defer reopened.Close()

	handle := NewBacking(reopened).Acquire(content.ID)
	defer handle.Release()
	got, err := handle.Block(content.ID)
	require.NoError(t, err)
	assert.Equal(t, content.Slot, got.Slot)
}
