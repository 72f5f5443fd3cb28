package vm

import (
	"context"
	"errors"

	"github.com/holiman/uint256"

	"github.com/quartzchain/quartz/ledger"
	"github.com/quartzchain/quartz/types"
)

var (
	// ErrNoBytecode means the target address holds no contract.
	ErrNoBytecode = errors.New("no bytecode at target address")
	// ErrOutOfGas means the call exceeded its gas budget.
	ErrOutOfGas = errors.New("execution gas budget exhausted")
	// ErrTrap means the bytecode faulted at runtime.
	ErrTrap = errors.New("runtime trap")
)

// StateReader is the read-only view of account state a call executes
// against. Implemented by the execution core's snapshots.
type StateReader interface {
	Balance(addr types.Address, kind types.BalanceKind) *uint256.Int
	DataEntry(addr types.Address, key []byte) []byte
	Bytecode(addr types.Address) []byte
}

// Call describes one contract invocation.
type Call struct {
	Sender   types.Address
	Target   types.Address
	Function string
	Param    []byte
	MaxGas   uint64
	Coins    *uint256.Int
}

// Result is the effect of a successful call: a state diff, the raw data
// of emitted events (the caller wraps them with execution context), and
// the gas consumed.
type Result struct {
	Changes *ledger.Changes
	Events  []string
	GasUsed uint64
}

// Runtime executes a call deterministically over a state snapshot.
// Identical (state, call) pairs must yield identical results.
type Runtime interface {
	Execute(ctx context.Context, state StateReader, call Call) (*Result, error)
}
