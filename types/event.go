package types

// EventContext carries the execution context an event was emitted in.
type EventContext struct {
	// Slot the emission happened in.
	Slot Slot `json:"slot"`
	// Block containing the emitting operation, nil for miss slots and
	// read-only executions.
	Block *BlockId `json:"block,omitempty"`
	// ReadOnly is true when the event was produced by a read-only
	// execution and was never persisted.
	ReadOnly bool `json:"read_only"`
	// IndexInSlot is the emission order within the slot.
	IndexInSlot uint64 `json:"index_in_slot"`
	// CallStack lists the addresses of the call chain: the original
	// caller first, the emitter last. Never empty.
	CallStack []Address `json:"call_stack"`
	// OriginOperationId is the operation that triggered the emission,
	// nil when there is none (e.g. read-only requests).
	OriginOperationId *OperationId `json:"origin_operation_id,omitempty"`
}

// Emitter returns the address that emitted the event.
func (c EventContext) Emitter() Address {
	if len(c.CallStack) == 0 {
		return ""
	}
	return c.CallStack[len(c.CallStack)-1]
}

// OriginalCaller returns the address at the root of the call chain.
func (c EventContext) OriginalCaller() Address {
	if len(c.CallStack) == 0 {
		return ""
	}
	return c.CallStack[0]
}

// SCOutputEvent is a structured output event produced by execution.
type SCOutputEvent struct {
	Context EventContext `json:"context"`
	Data    string       `json:"data"`
}

// EventFilter selects events. All set fields must match (AND).
type EventFilter struct {
	Start                 *Slot
	End                   *Slot
	EmitterAddress        *Address
	OriginalCallerAddress *Address
	OriginOperationId     *OperationId
}

// Matches reports whether the event satisfies every set field.
func (f EventFilter) Matches(event *SCOutputEvent) bool {
	if f.Start != nil && event.Context.Slot.Before(*f.Start) {
		return false
	}
	if f.End != nil && event.Context.Slot.After(*f.End) {
		return false
	}
	if f.EmitterAddress != nil && event.Context.Emitter() != *f.EmitterAddress {
		return false
	}
	if f.OriginalCallerAddress != nil && event.Context.OriginalCaller() != *f.OriginalCallerAddress {
		return false
	}
	if f.OriginOperationId != nil {
		if event.Context.OriginOperationId == nil {
			return false
		}
		if *event.Context.OriginOperationId != *f.OriginOperationId {
			return false
		}
	}
	return true
}
