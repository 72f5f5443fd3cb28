package eventstore

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/quartzchain/quartz/logx"
	"github.com/quartzchain/quartz/types"
)

type SubscriberID string

type Subscriber struct {
	ID      SubscriberID
	Channel chan types.SCOutputEvent
}

// Bus fans out newly recorded events to live subscribers. Sends never
// block: a subscriber with a full channel misses the event.
type Bus struct {
	subscribers map[SubscriberID]*Subscriber
	channelSize int
	mu          sync.RWMutex
}

func NewBus(channelSize int) *Bus {
	return &Bus{
		subscribers: make(map[SubscriberID]*Subscriber),
		channelSize: channelSize,
	}
}

func (b *Bus) generateUUIDID() SubscriberID {
	id := uuid.Must(uuid.NewV7())
	return SubscriberID(id.String())
}

func (b *Bus) Subscribe() (SubscriberID, chan types.SCOutputEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.generateUUIDID()
	ch := make(chan types.SCOutputEvent, b.channelSize)
	b.subscribers[id] = &Subscriber{ID: id, Channel: ch}

	logx.Info("EVENTBUS", fmt.Sprintf("Client subscribed to events | subscriber_id=%s | subscribers=%d", id, len(b.subscribers)))
	return id, ch
}

// Unsubscribe removes a subscription by ID
func (b *Bus) Unsubscribe(id SubscriberID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	subscriber, exists := b.subscribers[id]
	if !exists {
		logx.Warn("EVENTBUS", fmt.Sprintf("Attempted to unsubscribe non-existent subscriber | subscriber_id=%s", id))
		return false
	}

	delete(b.subscribers, id)
	close(subscriber.Channel)
	return true
}

// Publish sends the events to every subscriber without blocking.
func (b *Bus) Publish(events []types.SCOutputEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.subscribers) == 0 {
		return
	}
	for id, subscriber := range b.subscribers {
		for _, event := range events {
			select {
			case subscriber.Channel <- event:
			default:
				logx.Warn("EVENTBUS", fmt.Sprintf("Subscriber channel full | subscriber_id=%s | slot=%s", id, event.Context.Slot))
			}
		}
	}
}

// TotalSubscriptions returns the number of active subscriptions
func (b *Bus) TotalSubscriptions() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
