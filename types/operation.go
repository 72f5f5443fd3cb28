package types

import (
	"encoding/binary"

	"github.com/holiman/uint256"
)

// BalanceKind selects one of the two independent per-address value spaces.
type BalanceKind uint8

const (
	// Parallel is the native value space.
	Parallel BalanceKind = iota
	// Sequential is the custom value space.
	Sequential
)

func (k BalanceKind) String() string {
	if k == Sequential {
		return "sequential"
	}
	return "parallel"
}

// OpKind discriminates operation payloads.
type OpKind uint8

const (
	OpTransfer OpKind = iota
	OpRollBuy
	OpRollSell
	OpCallSC
)

func (k OpKind) String() string {
	switch k {
	case OpTransfer:
		return "transfer"
	case OpRollBuy:
		return "roll_buy"
	case OpRollSell:
		return "roll_sell"
	case OpCallSC:
		return "call_sc"
	}
	return "unknown"
}

// Operation is one unit of work inside a block. The payload fields used
// depend on Kind; unused fields stay zero.
type Operation struct {
	ID     OperationId
	Sender Address
	Kind   OpKind

	// OpTransfer
	To      Address
	Amount  *uint256.Int
	Balance BalanceKind

	// OpRollBuy / OpRollSell
	RollCount uint64

	// OpCallSC
	Target   Address
	Function string
	Param    []byte
	MaxGas   uint64
	Coins    *uint256.Int
}

// NewTransfer builds a transfer operation with a content-derived id.
func NewTransfer(sender, to Address, amount *uint256.Int, kind BalanceKind) *Operation {
	op := &Operation{
		Sender:  sender,
		Kind:    OpTransfer,
		To:      to,
		Amount:  amount,
		Balance: kind,
	}
	op.ID = op.computeId()
	return op
}

// NewRollBuy builds a roll purchase operation with a content-derived id.
func NewRollBuy(sender Address, count uint64) *Operation {
	op := &Operation{Sender: sender, Kind: OpRollBuy, RollCount: count}
	op.ID = op.computeId()
	return op
}

// NewRollSell builds a roll sale operation with a content-derived id.
func NewRollSell(sender Address, count uint64) *Operation {
	op := &Operation{Sender: sender, Kind: OpRollSell, RollCount: count}
	op.ID = op.computeId()
	return op
}

// NewCallSC builds a contract call operation with a content-derived id.
func NewCallSC(sender, target Address, function string, param []byte, maxGas uint64, coins *uint256.Int) *Operation {
	op := &Operation{
		Sender:   sender,
		Kind:     OpCallSC,
		Target:   target,
		Function: function,
		Param:    param,
		MaxGas:   maxGas,
		Coins:    coins,
	}
	op.ID = op.computeId()
	return op
}

func (op *Operation) computeId() OperationId {
	buf := make([]byte, 0, 128)
	buf = append(buf, byte(op.Kind))
	buf = append(buf, []byte(op.Sender)...)
	buf = append(buf, []byte(op.To)...)
	buf = append(buf, []byte(op.Target)...)
	buf = append(buf, []byte(op.Function)...)
	buf = append(buf, op.Param...)
	if op.Amount != nil {
		amountBytes := op.Amount.Bytes32()
		buf = append(buf, amountBytes[:]...)
	}
	if op.Coins != nil {
		coinsBytes := op.Coins.Bytes32()
		buf = append(buf, coinsBytes[:]...)
	}
	scratch := make([]byte, 8)
	binary.BigEndian.PutUint64(scratch, op.RollCount)
	buf = append(buf, scratch...)
	binary.BigEndian.PutUint64(scratch, op.MaxGas)
	buf = append(buf, scratch...)
	buf = append(buf, byte(op.Balance))
	return NewOperationId(buf)
}
