package execution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/quartzchain/quartz/monitoring"
	"github.com/quartzchain/quartz/types"
	"github.com/quartzchain/quartz/vm"
)

// executeReadOnly runs one call against a checked-out candidate
// snapshot on the calling goroutine. The full output is returned as if
// the call had been applied, but nothing is written to the ledger or
// the event store.
func (s *executionState) executeReadOnly(req ReadOnlyExecutionRequest) (*ExecutionOutput, error) {
	start := time.Now()
	defer func() {
		monitoring.RecordReadOnlyLatency(time.Since(start))
	}()

	if err := s.Faulted(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWorkerFaulted, err)
	}

	maxGas := req.MaxGas
	if maxGas == 0 || maxGas > s.cfg.MaxReadOnlyGas {
		maxGas = s.cfg.MaxReadOnlyGas
	}

	snapshot, slot := s.snapshotForReadOnly()
	if snapshot.Bytecode(req.Target) == nil {
		return nil, &ExecutionError{
			Kind: TargetNotFound,
			Err:  fmt.Errorf("no contract at address %s", req.Target),
		}
	}

	scope := newScopedState(snapshot)
	result, err := s.runtime.Execute(context.Background(), scope, vm.Call{
		Sender:   req.CallerAddress,
		Target:   req.Target,
		Function: req.Function,
		Param:    req.Parameter,
		MaxGas:   maxGas,
	})
	if err != nil {
		return nil, classifyVMError(err)
	}

	output := &ExecutionOutput{
		Slot:    slot,
		Changes: result.Changes,
		Usage:   ResourceUsage{GasUsed: result.GasUsed, OpsApplied: 1},
	}
	for _, data := range result.Events {
		output.Events = append(output.Events, types.SCOutputEvent{
			Context: types.EventContext{
				Slot:        slot,
				ReadOnly:    true,
				IndexInSlot: uint64(len(output.Events)),
				CallStack:   []types.Address{req.CallerAddress, req.Target},
			},
			Data: data,
		})
	}
	return output, nil
}

func classifyVMError(err error) *ExecutionError {
	switch {
	case errors.Is(err, vm.ErrNoBytecode):
		return &ExecutionError{Kind: TargetNotFound, Err: err}
	case errors.Is(err, vm.ErrOutOfGas):
		return &ExecutionError{Kind: ResourceExhausted, Err: err}
	default:
		return &ExecutionError{Kind: RuntimeTrap, Err: err}
	}
}
