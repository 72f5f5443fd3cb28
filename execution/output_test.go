package execution

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"

	"github.com/quartzchain/quartz/ledger"
	"github.com/quartzchain/quartz/types"
)

func sampleOutput(eventData string) *ExecutionOutput {
	changes := ledger.NewChanges()
	changes.SetBalance("alice", types.Parallel, uint256.NewInt(7))
	blockId := types.NewBlockId([]byte("b1"))
	return &ExecutionOutput{
		Slot:    types.NewSlot(1, 0),
		Block:   &blockId,
		Changes: changes,
		Events: []types.SCOutputEvent{{
			Context: types.EventContext{
				Slot:      types.NewSlot(1, 0),
				CallStack: []types.Address{"alice", "contract"},
			},
			Data: eventData,
		}},
	}
}

func TestExecutionOutputFingerprint(t *testing.T) {
	// identical outputs digest identically, any divergence in events,
	// slot or block shows up in the fingerprint
	assert.Equal(t, sampleOutput("done").Fingerprint(), sampleOutput("done").Fingerprint())
	assert.NotEqual(t, sampleOutput("done").Fingerprint(), sampleOutput("other").Fingerprint())

	shifted := sampleOutput("done")
	shifted.Slot = types.NewSlot(1, 1)
	assert.NotEqual(t, sampleOutput("done").Fingerprint(), shifted.Fingerprint())

	miss := sampleOutput("done")
	miss.Block = nil
	assert.NotEqual(t, sampleOutput("done").Fingerprint(), miss.Fingerprint())
}
