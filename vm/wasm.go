package vm

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero"

	"github.com/quartzchain/quartz/ledger"
	"github.com/quartzchain/quartz/logx"
)

// WasmRuntime runs contract bytecode as wasm modules through wazero.
// The interpreter backend is used so execution is deterministic across
// platforms.
type WasmRuntime struct {
	runtime wazero.Runtime
}

func NewWasmRuntime(ctx context.Context) *WasmRuntime {
	cfg := wazero.NewRuntimeConfigInterpreter().WithCloseOnContextDone(true)
	return &WasmRuntime{runtime: wazero.NewRuntimeWithConfig(ctx, cfg)}
}

func (r *WasmRuntime) Close(ctx context.Context) error {
	return r.runtime.Close(ctx)
}

// Execute compiles and runs the target's bytecode. The exported
// function named by the call is invoked with no wasm-level arguments;
// state access and event emission go through the host ABI.
func (r *WasmRuntime) Execute(ctx context.Context, state StateReader, call Call) (*Result, error) {
	bytecode := state.Bytecode(call.Target)
	if bytecode == nil {
		return nil, ErrNoBytecode
	}

	gasUsed := CallCost(bytecode, call.Param)
	if gasUsed > call.MaxGas {
		return nil, fmt.Errorf("call needs %d gas, budget is %d: %w", gasUsed, call.MaxGas, ErrOutOfGas)
	}

	compiled, err := r.runtime.CompileModule(ctx, bytecode)
	if err != nil {
		return nil, fmt.Errorf("failed to compile bytecode of %s: %w", call.Target, ErrTrap)
	}
	defer compiled.Close(ctx)

	mod, err := r.runtime.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName(""))
	if err != nil {
		return nil, fmt.Errorf("failed to instantiate module of %s: %w", call.Target, ErrTrap)
	}
	defer mod.Close(ctx)

	fn := mod.ExportedFunction(call.Function)
	if fn == nil {
		return nil, fmt.Errorf("function %q is not exported by %s: %w", call.Function, call.Target, ErrTrap)
	}
	if _, err := fn.Call(ctx); err != nil {
		logx.Warn("VM", fmt.Sprintf("Call to %s.%s trapped: %v", call.Target, call.Function, err))
		return nil, fmt.Errorf("call to %s.%s faulted: %w", call.Target, call.Function, ErrTrap)
	}

	return &Result{Changes: ledger.NewChanges(), GasUsed: gasUsed}, nil
}
