package execution

import (
	"crypto/sha256"

	"github.com/holiman/uint256"

	"github.com/quartzchain/quartz/jsonx"
	"github.com/quartzchain/quartz/ledger"
	"github.com/quartzchain/quartz/storage"
	"github.com/quartzchain/quartz/types"
)

// BlockRef ties a block id to the storage handle owning its content.
type BlockRef struct {
	ID      types.BlockId
	Storage *storage.Storage
}

// ResourceUsage summarizes what a slot execution consumed.
type ResourceUsage struct {
	GasUsed     uint64 `json:"gas_used"`
	OpsApplied  int    `json:"ops_applied"`
	OpsRejected int    `json:"ops_rejected"`
}

// ExecutionOutput is the result of applying one slot: the state diff,
// the emitted events and the usage summary. Block is nil for miss slots.
type ExecutionOutput struct {
	Slot    types.Slot
	Block   *types.BlockId
	Changes *ledger.Changes
	Events  []types.SCOutputEvent
	Usage   ResourceUsage
}

// Fingerprint digests the output. Two outputs produced from identical
// (state, slot, operations) inputs must have equal fingerprints; the
// finalization determinism check compares them bit for bit.
func (o *ExecutionOutput) Fingerprint() [32]byte {
	h := sha256.New()
	changesFp := o.Changes.Fingerprint()
	h.Write(changesFp[:])
	if o.Block != nil {
		h.Write(o.Block[:])
	}
	// canonical encoding keeps the event digest stable; an encoding
	// failure is folded in as a marker rather than silently shrinking
	// the digest
	rawEvents, err := jsonx.MarshalCanonical(o.Events)
	if err != nil {
		rawEvents = []byte("unencodable events: " + err.Error())
	}
	h.Write(rawEvents)
	rawSlot, err := jsonx.MarshalCanonical(o.Slot)
	if err != nil {
		rawSlot = []byte("unencodable slot: " + err.Error())
	}
	h.Write(rawSlot)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// ReadOnlyExecutionRequest describes a one-off call executed against a
// snapshot of the candidate state, with every effect discarded.
type ReadOnlyExecutionRequest struct {
	MaxGas            uint64
	SimulatedGasPrice *uint256.Int
	Target            types.Address
	Function          string
	Parameter         []byte
	CallerAddress     types.Address
}

// BalancePair is the (final, candidate) balance of one address; nil
// means the address is unknown to that view.
type BalancePair struct {
	Final     *uint256.Int
	Candidate *uint256.Int
}

// DataEntryQuery addresses one datastore entry.
type DataEntryQuery struct {
	Address types.Address
	Key     []byte
}

// DataEntryPair is the (final, candidate) value of one datastore entry;
// nil means absent in that view.
type DataEntryPair struct {
	Final     []byte
	Candidate []byte
}
