package storage

import (
	"fmt"
	"sync"

	"github.com/quartzchain/quartz/jsonx"
	"github.com/quartzchain/quartz/logx"
	"github.com/quartzchain/quartz/types"
)

const prefixBlocks = "blocks:"

// BlockContent is the execution-relevant content of a block: its slot
// and the ordered list of operations it carries. The execution core
// reads it, it never mutates it.
type BlockContent struct {
	ID         types.BlockId      `json:"id"`
	Slot       types.Slot         `json:"slot"`
	Operations []*types.Operation `json:"operations"`
}

// Backing owns block payloads. Readers hold Storage handles; a payload
// stays cached as long as at least one handle references it.
type Backing struct {
	mu       sync.Mutex
	provider DatabaseProvider
	refs     map[types.BlockId]int
	cache    map[types.BlockId]*BlockContent
}

func NewBacking(provider DatabaseProvider) *Backing {
	return &Backing{
		provider: provider,
		refs:     make(map[types.BlockId]int),
		cache:    make(map[types.BlockId]*BlockContent),
	}
}

func blockKey(id types.BlockId) []byte {
	return append([]byte(prefixBlocks), id[:]...)
}

// StoreBlock persists a block's content and caches it.
func (b *Backing) StoreBlock(content *BlockContent) error {
	raw, err := jsonx.Marshal(content)
	if err != nil {
		return fmt.Errorf("failed to encode block %s: %w", content.ID, err)
	}
	if err := b.provider.Put(blockKey(content.ID), raw); err != nil {
		return fmt.Errorf("failed to store block %s: %w", content.ID, err)
	}
	b.mu.Lock()
	b.cache[content.ID] = content
	b.mu.Unlock()
	return nil
}

// Acquire returns a handle owning references to the given blocks.
func (b *Backing) Acquire(ids ...types.BlockId) *Storage {
	b.mu.Lock()
	defer b.mu.Unlock()

	held := make(map[types.BlockId]struct{}, len(ids))
	for _, id := range ids {
		b.refs[id]++
		held[id] = struct{}{}
	}
	return &Storage{backing: b, held: held}
}

func (b *Backing) release(held map[types.BlockId]struct{}) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id := range held {
		b.refs[id]--
		if b.refs[id] <= 0 {
			delete(b.refs, id)
			delete(b.cache, id)
		}
	}
}

func (b *Backing) load(id types.BlockId) (*BlockContent, error) {
	b.mu.Lock()
	if content, ok := b.cache[id]; ok {
		b.mu.Unlock()
		return content, nil
	}
	b.mu.Unlock()

	raw, err := b.provider.Get(blockKey(id))
	if err != nil {
		return nil, fmt.Errorf("failed to read block %s: %w", id, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("block %s not found in storage", id)
	}
	var content BlockContent
	if err := jsonx.Unmarshal(raw, &content); err != nil {
		return nil, fmt.Errorf("corrupt block record %s: %w", id, err)
	}

	b.mu.Lock()
	b.cache[id] = &content
	b.mu.Unlock()
	return &content, nil
}

// Storage is an ownership handle granting read access to the payloads
// of the blocks it references. Cloning duplicates the handle and bumps
// the reference counts; Release drops them.
type Storage struct {
	mu      sync.Mutex
	backing *Backing
	held    map[types.BlockId]struct{}
}

// Block returns the content of a referenced block.
func (s *Storage) Block(id types.BlockId) (*BlockContent, error) {
	s.mu.Lock()
	_, ok := s.held[id]
	s.mu.Unlock()
	if !ok {
		return nil, logx.Errorf("block %s is not referenced by this handle", id)
	}
	return s.backing.load(id)
}

// Clone duplicates the handle, bumping every reference count.
func (s *Storage) Clone() *Storage {
	s.mu.Lock()
	ids := make([]types.BlockId, 0, len(s.held))
	for id := range s.held {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	return s.backing.Acquire(ids...)
}

// Release drops every reference held by the handle. The handle is
// unusable afterwards; releasing twice is a no-op.
func (s *Storage) Release() {
	s.mu.Lock()
	held := s.held
	s.held = map[types.BlockId]struct{}{}
	s.mu.Unlock()

	if len(held) == 0 {
		return
	}
	s.backing.release(held)
	logx.Debug("STORAGE", fmt.Sprintf("Released %d block refs", len(held)))
}
