package execution

import (
	"errors"
	"fmt"

	"github.com/quartzchain/quartz/types"
)

// ErrWorkerFaulted is returned once the worker hit a fatal
// inconsistency and permanently rejects notifications.
var ErrWorkerFaulted = errors.New("execution worker is faulted")

// ExecutionErrorKind classifies read-only execution failures. All of
// them are recoverable and returned to the caller.
type ExecutionErrorKind int

const (
	// TargetNotFound means the called contract does not exist.
	TargetNotFound ExecutionErrorKind = iota
	// ResourceExhausted means the call ran out of its gas budget.
	ResourceExhausted
	// RuntimeTrap means the bytecode faulted during execution.
	RuntimeTrap
)

func (k ExecutionErrorKind) String() string {
	switch k {
	case TargetNotFound:
		return "target_not_found"
	case ResourceExhausted:
		return "resource_exhausted"
	case RuntimeTrap:
		return "runtime_trap"
	}
	return "unknown"
}

// ExecutionError is the failure of a read-only execution request.
type ExecutionError struct {
	Kind ExecutionErrorKind
	Err  error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execution failed (%s): %v", e.Kind, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// DeterminismViolationError is fatal: replaying identical inputs
// produced a different result, which implies consensus divergence. The
// worker halts on it.
type DeterminismViolationError struct {
	Slot     types.Slot
	Expected [32]byte
	Got      [32]byte
}

func (e *DeterminismViolationError) Error() string {
	return fmt.Sprintf("determinism violation at slot %s: replay fingerprint %x does not match candidate fingerprint %x",
		e.Slot, e.Got, e.Expected)
}
