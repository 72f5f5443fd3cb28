package eventstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quartzchain/quartz/types"
)

func event(slot types.Slot, index uint64, emitter types.Address, data string) types.SCOutputEvent {
	return types.SCOutputEvent{
		Context: types.EventContext{
			Slot:        slot,
			IndexInSlot: index,
			CallStack:   []types.Address{"caller", emitter},
		},
		Data: data,
	}
}

func TestStoreQueryOrdering(t *testing.T) {
	s := NewStore(nil)
	s.RecordSlot(types.NewSlot(1, 0), []types.SCOutputEvent{
		event(types.NewSlot(1, 0), 0, "sc1", "first"),
		event(types.NewSlot(1, 0), 1, "sc1", "second"),
	})
	s.RecordSlot(types.NewSlot(1, 1), []types.SCOutputEvent{
		event(types.NewSlot(1, 1), 0, "sc2", "third"),
	})

	got := s.Query(types.EventFilter{})
	require.Len(t, got, 3)
	assert.Equal(t, "first", got[0].Data)
	assert.Equal(t, "second", got[1].Data)
	assert.Equal(t, "third", got[2].Data)
}

func TestStoreFilterConjunction(t *testing.T) {
	s := NewStore(nil)
	opId := types.NewOperationId([]byte("op"))
	withOp := event(types.NewSlot(2, 0), 0, "sc1", "with-op")
	withOp.Context.OriginOperationId = &opId
	s.RecordSlot(types.NewSlot(1, 0), []types.SCOutputEvent{
		event(types.NewSlot(1, 0), 0, "sc1", "early"),
	})
	s.RecordSlot(types.NewSlot(2, 0), []types.SCOutputEvent{
		withOp,
		event(types.NewSlot(2, 0), 1, "sc2", "other-emitter"),
	})

	start := types.NewSlot(2, 0)
	emitter := types.Address("sc1")
	got := s.Query(types.EventFilter{Start: &start, EmitterAddress: &emitter})
	require.Len(t, got, 1)
	assert.Equal(t, "with-op", got[0].Data)

	got = s.Query(types.EventFilter{OriginOperationId: &opId})
	require.Len(t, got, 1)
	assert.Equal(t, "with-op", got[0].Data)

	caller := types.Address("nobody")
	assert.Empty(t, s.Query(types.EventFilter{OriginalCallerAddress: &caller}))
}

func TestStoreTruncate(t *testing.T) {
	s := NewStore(nil)
	for period := uint64(1); period <= 3; period++ {
		s.RecordSlot(types.NewSlot(period, 0), []types.SCOutputEvent{
			event(types.NewSlot(period, 0), 0, "sc", "e"),
		})
	}

	s.TruncateAfter(types.NewSlot(2, 0))
	assert.Len(t, s.Query(types.EventFilter{}), 2)

	s.TruncateFrom(types.NewSlot(2, 0))
	assert.Len(t, s.Query(types.EventFilter{}), 1)
}

func TestStoreFinalizeThrough(t *testing.T) {
	s := NewStore(nil)
	s.RecordSlot(types.NewSlot(1, 0), []types.SCOutputEvent{
		event(types.NewSlot(1, 0), 0, "sc", "final-bound"),
	})
	s.RecordSlot(types.NewSlot(2, 0), []types.SCOutputEvent{
		event(types.NewSlot(2, 0), 0, "sc", "still-candidate"),
	})

	s.FinalizeThrough(types.NewSlot(1, 1))
	assert.Equal(t, 1, s.FinalCount())

	// finalized events survive candidate truncation
	s.TruncateAfter(types.NewSlot(0, 0))
	got := s.Query(types.EventFilter{})
	require.Len(t, got, 1)
	assert.Equal(t, "final-bound", got[0].Data)
}

func TestBusSubscribePublish(t *testing.T) {
	bus := NewBus(4)
	s := NewStore(bus)

	id, ch := bus.Subscribe()
	require.Equal(t, 1, bus.TotalSubscriptions())

	s.RecordSlot(types.NewSlot(1, 0), []types.SCOutputEvent{
		event(types.NewSlot(1, 0), 0, "sc", "live"),
	})

	got := <-ch
	assert.Equal(t, "live", got.Data)

	assert.True(t, bus.Unsubscribe(id))
	assert.False(t, bus.Unsubscribe(id))
	assert.Equal(t, 0, bus.TotalSubscriptions())
}

func TestBusDropsWhenFull(t *testing.T) {
	bus := NewBus(1)
	_, ch := bus.Subscribe()

	bus.Publish([]types.SCOutputEvent{
		event(types.NewSlot(1, 0), 0, "sc", "kept"),
		event(types.NewSlot(1, 0), 1, "sc", "dropped"),
	})

	got := <-ch
	assert.Equal(t, "kept", got.Data)
	select {
	case extra := <-ch:
		t.Fatalf("unexpected extra event: %s", extra.Data)
	default:
	}
}
