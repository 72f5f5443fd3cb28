package execution

import (
	"context"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/quartzchain/quartz/ledger"
	"github.com/quartzchain/quartz/logx"
	"github.com/quartzchain/quartz/monitoring"
	"github.com/quartzchain/quartz/types"
	"github.com/quartzchain/quartz/vm"
)

// stateView is what operation execution reads through: the candidate
// snapshot at the bottom, scopedState layers above it.
type stateView interface {
	Balance(addr types.Address, kind types.BalanceKind) *uint256.Int
	DataEntry(addr types.Address, key []byte) []byte
	Bytecode(addr types.Address) []byte
	RollCount(addr types.Address) uint64
	HasExecuted(id types.OperationId) bool
}

var _ stateView = (*ledger.SpeculativeLedger)(nil)

// scopedState stages writes in a diff over a parent view. Merging the
// diff upward commits the scope; dropping it rejects the scope without
// touching the parent. Also serves as the vm.StateReader for calls.
type scopedState struct {
	changes *ledger.Changes
	parent  stateView
}

func newScopedState(parent stateView) *scopedState {
	return &scopedState{changes: ledger.NewChanges(), parent: parent}
}

func (s *scopedState) Balance(addr types.Address, kind types.BalanceKind) *uint256.Int {
	if value, ok := s.changes.Balance(addr, kind); ok {
		return value.Clone()
	}
	return s.parent.Balance(addr, kind)
}

func (s *scopedState) DataEntry(addr types.Address, key []byte) []byte {
	if value, touched := s.changes.DataEntry(addr, key); touched {
		return value
	}
	return s.parent.DataEntry(addr, key)
}

func (s *scopedState) Bytecode(addr types.Address) []byte {
	if code, ok := s.changes.Bytecode(addr); ok {
		return code
	}
	return s.parent.Bytecode(addr)
}

func (s *scopedState) RollCount(addr types.Address) uint64 {
	if count, ok := s.changes.Rolls(addr); ok {
		return count
	}
	return s.parent.RollCount(addr)
}

func (s *scopedState) HasExecuted(id types.OperationId) bool {
	if s.changes.ExecutedOps.Contains(id) {
		return true
	}
	return s.parent.HasExecuted(id)
}

var _ vm.StateReader = (*scopedState)(nil)

// slotExecution accumulates the effects of one slot.
type slotExecution struct {
	cfg     *Config
	runtime vm.Runtime
	slot    types.Slot
	block   *types.BlockId
	scope   *scopedState
	events  []types.SCOutputEvent
	usage   ResourceUsage
}

// executeSlot deterministically applies a slot's block (nil ref for a
// miss slot) on top of the given candidate snapshot and returns the
// resulting output. The snapshot itself is never mutated.
func executeSlot(ctx context.Context, cfg *Config, base *ledger.SpeculativeLedger, slot types.Slot, ref *BlockRef, runtime vm.Runtime) (*ExecutionOutput, error) {
	se := &slotExecution{
		cfg:     cfg,
		runtime: runtime,
		slot:    slot,
		scope:   newScopedState(base),
	}

	if ref != nil {
		content, err := ref.Storage.Block(ref.ID)
		if err != nil {
			return nil, fmt.Errorf("cannot load content of block %s at slot %s: %w", ref.ID, slot, err)
		}
		blockId := ref.ID
		se.block = &blockId
		for _, op := range content.Operations {
			se.applyOperation(ctx, op)
		}
	}

	monitoring.IncreaseExecutedSlotCount()
	return &ExecutionOutput{
		Slot:    slot,
		Block:   se.block,
		Changes: se.scope.changes,
		Events:  se.events,
		Usage:   se.usage,
	}, nil
}

// applyOperation runs a single operation in its own scope. Failures
// reject the operation alone; the slot keeps going.
func (se *slotExecution) applyOperation(ctx context.Context, op *types.Operation) {
	if se.scope.HasExecuted(op.ID) {
		se.reject(op, monitoring.OpAlreadyExecuted, fmt.Errorf("operation %s already executed", op.ID))
		return
	}

	opScope := newScopedState(se.scope)
	var err error
	var reason monitoring.OpRejectedReason

	switch op.Kind {
	case types.OpTransfer:
		reason, err = se.applyTransfer(opScope, op)
	case types.OpRollBuy:
		reason, err = se.applyRollBuy(opScope, op)
	case types.OpRollSell:
		reason, err = se.applyRollSell(opScope, op)
	case types.OpCallSC:
		reason, err = se.applyCallSC(ctx, opScope, op)
	default:
		reason, err = monitoring.OpRejectedUnknown, fmt.Errorf("unknown operation kind %d", op.Kind)
	}
	if err != nil {
		se.reject(op, reason, err)
		return
	}

	opScope.changes.MarkExecuted(op.ID)
	se.scope.changes.Merge(opScope.changes)
	se.usage.OpsApplied++
}

func (se *slotExecution) reject(op *types.Operation, reason monitoring.OpRejectedReason, err error) {
	logx.Warn("EXECUTION", fmt.Sprintf("Rejected op %s (%s) at slot %s: %v", op.ID, op.Kind, se.slot, err))
	monitoring.RecordRejectedOp(reason)
	se.usage.OpsRejected++
}

func (se *slotExecution) applyTransfer(scope *scopedState, op *types.Operation) (monitoring.OpRejectedReason, error) {
	if err := debit(scope, op.Sender, op.Balance, op.Amount); err != nil {
		return monitoring.OpInsufficientBalance, err
	}
	credit(scope, op.To, op.Balance, op.Amount)
	return "", nil
}

func (se *slotExecution) applyRollBuy(scope *scopedState, op *types.Operation) (monitoring.OpRejectedReason, error) {
	price := new(uint256.Int).Mul(uint256.NewInt(RollPrice), uint256.NewInt(op.RollCount))
	if err := debit(scope, op.Sender, types.Sequential, price); err != nil {
		return monitoring.OpInsufficientBalance, err
	}
	scope.changes.SetRolls(op.Sender, scope.RollCount(op.Sender)+op.RollCount)
	return "", nil
}

func (se *slotExecution) applyRollSell(scope *scopedState, op *types.Operation) (monitoring.OpRejectedReason, error) {
	owned := scope.RollCount(op.Sender)
	if owned < op.RollCount {
		return monitoring.OpRollUnderflow, fmt.Errorf("%s sells %d rolls but owns %d", op.Sender, op.RollCount, owned)
	}
	scope.changes.SetRolls(op.Sender, owned-op.RollCount)
	refund := new(uint256.Int).Mul(uint256.NewInt(RollPrice), uint256.NewInt(op.RollCount))
	credit(scope, op.Sender, types.Sequential, refund)
	return "", nil
}

func (se *slotExecution) applyCallSC(ctx context.Context, scope *scopedState, op *types.Operation) (monitoring.OpRejectedReason, error) {
	if scope.Bytecode(op.Target) == nil {
		return monitoring.OpRejectedUnknown, fmt.Errorf("call target %s has no bytecode", op.Target)
	}
	if op.Coins != nil && !op.Coins.IsZero() {
		if err := debit(scope, op.Sender, types.Parallel, op.Coins); err != nil {
			return monitoring.OpInsufficientBalance, err
		}
		credit(scope, op.Target, types.Parallel, op.Coins)
	}

	result, err := se.runtime.Execute(ctx, scope, vm.Call{
		Sender:   op.Sender,
		Target:   op.Target,
		Function: op.Function,
		Param:    op.Param,
		MaxGas:   op.MaxGas,
		Coins:    op.Coins,
	})
	if err != nil {
		return monitoring.OpVMTrap, fmt.Errorf("call to %s.%s failed: %w", op.Target, op.Function, err)
	}

	scope.changes.Merge(result.Changes)
	se.usage.GasUsed += result.GasUsed
	opId := op.ID
	for _, data := range result.Events {
		se.events = append(se.events, types.SCOutputEvent{
			Context: types.EventContext{
				Slot:              se.slot,
				Block:             se.block,
				IndexInSlot:       uint64(len(se.events)),
				CallStack:         []types.Address{op.Sender, op.Target},
				OriginOperationId: &opId,
			},
			Data: data,
		})
	}
	return "", nil
}

// debit subtracts amount from the balance of addr, failing when the
// address is unknown or the balance would go negative.
func debit(scope *scopedState, addr types.Address, kind types.BalanceKind, amount *uint256.Int) error {
	balance := scope.Balance(addr, kind)
	if balance == nil {
		return fmt.Errorf("debit of %s from unknown address %s", amount, addr)
	}
	if balance.Cmp(amount) < 0 {
		return fmt.Errorf("insufficient %s balance of %s: has %s, needs %s", kind, addr, balance, amount)
	}
	scope.changes.SetBalance(addr, kind, new(uint256.Int).Sub(balance, amount))
	return nil
}

// credit adds amount to the balance of addr, creating the address in
// the candidate view if needed.
func credit(scope *scopedState, addr types.Address, kind types.BalanceKind, amount *uint256.Int) {
	balance := scope.Balance(addr, kind)
	if balance == nil {
		balance = uint256.NewInt(0)
	}
	scope.changes.SetBalance(addr, kind, new(uint256.Int).Add(balance, amount))
}
