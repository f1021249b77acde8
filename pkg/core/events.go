package core

import (
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"

	"github.com/leafmind/leafmind-go/pkg/memory"
)

// UpdateType classifies a change event.
type UpdateType string

const (
	// UpdateCreated fires when a concept is learned.
	UpdateCreated UpdateType = "created"

	// UpdateAccessed fires when a concept is accessed.
	UpdateAccessed UpdateType = "accessed"

	// UpdateUpdated fires when a concept's payload is replaced.
	UpdateUpdated UpdateType = "updated"

	// UpdateEdgeAdded fires when an association is created or reinforced.
	UpdateEdgeAdded UpdateType = "edge_added"

	// UpdateEdgeRemoved fires when an association is removed.
	UpdateEdgeRemoved UpdateType = "edge_removed"

	// UpdateRemoved fires when a concept is deleted.
	UpdateRemoved UpdateType = "removed"
)

// ChangeEvent is one observable mutation, delivered to subscribers as an
// opaque stream. EventID is unique and monotonic per process.
type ChangeEvent struct {
	// EventID orders events within this process.
	EventID int64 `json:"event_id"`

	// Type classifies the mutation.
	Type UpdateType `json:"update_type"`

	// ConceptID is the affected concept.
	ConceptID memory.ConceptID `json:"concept_id"`

	// Concept is the updated concept, when one is available.
	Concept *memory.Concept `json:"updated_concept,omitempty"`

	// Edge is the updated association, when one is available.
	Edge *memory.SynapticEdge `json:"updated_association,omitempty"`

	// Timestamp is when the mutation happened.
	Timestamp time.Time `json:"timestamp"`
}

// subscriberBuffer is the per-subscriber event queue size. On overflow the
// oldest event for that subscriber is dropped; producers never block.
const subscriberBuffer = 64

// Subscription receives change events for one watched concept (or all
// concepts). Close it when done to release the subscriber slot.
type Subscription struct {
	bus     *eventBus
	id      uint64
	ch      chan ChangeEvent
	once    sync.Once
	concept memory.ConceptID
	all     bool
}

// Events returns the subscriber's event channel. The channel closes when
// the subscription or the engine shuts down.
func (s *Subscription) Events() <-chan ChangeEvent {
	return s.ch
}

// Close cancels the subscription.
func (s *Subscription) Close() {
	s.bus.unsubscribe(s)
}

// eventBus fans change events out to subscribers with per-subscriber
// buffers and a drop-oldest overflow policy.
type eventBus struct {
	mu     sync.Mutex
	nextID uint64
	subs   map[uint64]*Subscription
	node   *snowflake.Node
	closed bool
}

func newEventBus() (*eventBus, error) {
	node, err := snowflake.NewNode(1)
	if err != nil {
		return nil, memory.NewMemoryError("newEventBus", err)
	}
	return &eventBus{
		subs: make(map[uint64]*Subscription),
		node: node,
	}, nil
}

// subscribe registers a watcher. A zero concept ID with all=true watches
// every concept.
func (b *eventBus) subscribe(concept memory.ConceptID, all bool) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscription{
		bus:     b,
		id:      b.nextID,
		ch:      make(chan ChangeEvent, subscriberBuffer),
		concept: concept,
		all:     all,
	}
	if b.closed {
		close(sub.ch)
		return sub
	}
	b.subs[sub.id] = sub
	return sub
}

func (b *eventBus) unsubscribe(s *Subscription) {
	b.mu.Lock()
	if _, ok := b.subs[s.id]; ok {
		delete(b.subs, s.id)
		s.once.Do(func() { close(s.ch) })
	}
	b.mu.Unlock()
}

// publish delivers an event to every matching subscriber. A full buffer
// drops that subscriber's oldest event; the publisher never blocks.
func (b *eventBus) publish(event ChangeEvent) {
	event.EventID = b.node.Generate().Int64()

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for _, sub := range b.subs {
		if !sub.all && sub.concept != event.ConceptID {
			continue
		}
		for {
			select {
			case sub.ch <- event:
			default:
				// Buffer full: evict the oldest and retry.
				select {
				case <-sub.ch:
				default:
				}
				continue
			}
			break
		}
	}
}

// close shuts the bus down and closes every subscriber channel.
func (b *eventBus) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		delete(b.subs, id)
		sub.once.Do(func() { close(sub.ch) })
	}
}
