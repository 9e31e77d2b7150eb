package tgclient

import (
	"sync"

	"github.com/hrygo/telecopilot/internal/model"
)

// EventKind tags the five kinds of event the bus carries.
type EventKind int

const (
	EventAuthStateChanged EventKind = iota
	EventNewMessage
	EventChatUpdated
	EventUserUpdated
	EventError
)

// Event is a fully-populated value of one of the five domain event types.
type Event struct {
	AuthState model.AuthState
	Message   model.Message
	Chat      model.Chat
	User      model.User
	Err       error
	Kind      EventKind
}

// busCapacity is the broadcast channel's buffer; lagging subscribers drop
// the oldest events rather than stall the producer.
const busCapacity = 100

// eventBus is a many-to-many broadcast channel with a bounded backlog per
// subscriber. It never blocks the producer: a full subscriber channel has
// its oldest pending event dropped to make room.
type eventBus struct {
	subs map[int]chan Event
	mu   sync.Mutex
	next int
}

func newEventBus() *eventBus {
	return &eventBus{subs: make(map[int]chan Event)}
}

// Subscribe returns a new receive-only stream and an unsubscribe func.
func (b *eventBus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan Event, busCapacity)
	id := b.next
	b.next++
	b.subs[id] = ch
	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs, id)
	}
}

// Publish fans e out to every subscriber. A subscriber whose buffer is
// full has its oldest queued event dropped first, so Publish itself never
// blocks.
func (b *eventBus) Publish(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- e:
			default:
			}
		}
	}
}
