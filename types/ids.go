package types

import (
	"crypto/sha256"

	"github.com/quartzchain/quartz/common"
)

// Address identifies an account. The string form is the base58 encoding
// of the account's public key hash.
type Address string

func (a Address) String() string {
	return string(a)
}

// BlockId is the content hash of a block.
type BlockId [32]byte

func NewBlockId(content []byte) BlockId {
	return BlockId(sha256.Sum256(content))
}

func (id BlockId) String() string {
	return common.EncodeBytesToBase58(id[:])
}

// OperationId is the content hash of an operation.
type OperationId [32]byte

func NewOperationId(content []byte) OperationId {
	return OperationId(sha256.Sum256(content))
}

func (id OperationId) String() string {
	return common.EncodeBytesToBase58(id[:])
}

// OperationIdSet is a set of operation ids.
type OperationIdSet map[OperationId]struct{}

func NewOperationIdSet(ids ...OperationId) OperationIdSet {
	set := make(OperationIdSet, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func (s OperationIdSet) Contains(id OperationId) bool {
	_, ok := s[id]
	return ok
}

func (s OperationIdSet) Add(id OperationId) {
	s[id] = struct{}{}
}
