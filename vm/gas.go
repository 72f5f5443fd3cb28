package vm

const (
	// CallBaseCost is charged for any call before the bytecode runs.
	CallBaseCost uint64 = 100_000
	// CostPerBytecodeByte is charged per byte of contract bytecode.
	CostPerBytecodeByte uint64 = 10
	// CostPerParamByte is charged per byte of call parameter.
	CostPerParamByte uint64 = 100
)

// CallCost is the deterministic up-front cost of a call. Instruction
// level metering belongs to the interpreter and is charged separately.
func CallCost(bytecode, param []byte) uint64 {
	return CallBaseCost +
		uint64(len(bytecode))*CostPerBytecodeByte +
		uint64(len(param))*CostPerParamByte
}
