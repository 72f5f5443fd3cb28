package vm

import (
	"context"
	"fmt"

	"github.com/quartzchain/quartz/jsonx"
	"github.com/quartzchain/quartz/ledger"
)

// nativeInstruction is one step of a built-in program.
type nativeInstruction struct {
	Op    string `json:"op"`
	Key   []byte `json:"key,omitempty"`
	Value []byte `json:"value,omitempty"`
	Data  string `json:"data,omitempty"`
}

// nativeProgram is the decoded form of built-in bytecode: a set of
// callable functions, each a flat instruction list.
type nativeProgram struct {
	Functions map[string][]nativeInstruction `json:"functions"`
}

// NativeRuntime interprets jsonx-encoded declarative bytecode. It
// covers system contracts and test fixtures where a full wasm module is
// overkill; execution is trivially deterministic.
type NativeRuntime struct{}

func NewNativeRuntime() *NativeRuntime {
	return &NativeRuntime{}
}

func (r *NativeRuntime) Execute(ctx context.Context, state StateReader, call Call) (*Result, error) {
	bytecode := state.Bytecode(call.Target)
	if bytecode == nil {
		return nil, ErrNoBytecode
	}

	gasUsed := CallCost(bytecode, call.Param)
	if gasUsed > call.MaxGas {
		return nil, fmt.Errorf("call needs %d gas, budget is %d: %w", gasUsed, call.MaxGas, ErrOutOfGas)
	}

	var program nativeProgram
	if err := jsonx.Unmarshal(bytecode, &program); err != nil {
		return nil, fmt.Errorf("bytecode of %s is not a native program: %w", call.Target, ErrTrap)
	}
	instructions, ok := program.Functions[call.Function]
	if !ok {
		return nil, fmt.Errorf("function %q is not defined by %s: %w", call.Function, call.Target, ErrTrap)
	}

	changes := ledger.NewChanges()
	var events []string
	for _, ins := range instructions {
		switch ins.Op {
		case "put":
			changes.PutDataEntry(call.Target, ins.Key, ins.Value)
		case "delete":
			changes.DeleteDataEntry(call.Target, ins.Key)
		case "emit":
			events = append(events, ins.Data)
		default:
			return nil, fmt.Errorf("unknown instruction %q in %s.%s: %w", ins.Op, call.Target, call.Function, ErrTrap)
		}
	}

	return &Result{Changes: changes, Events: events, GasUsed: gasUsed}, nil
}
