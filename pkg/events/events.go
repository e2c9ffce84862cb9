package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of event
type EventType string

const (
	EventTransitionSubmitted EventType = "transition.submitted"
	EventTransitionProgress  EventType = "transition.progress"
	EventTransitionCompleted EventType = "transition.completed"
	EventTransitionTimedOut  EventType = "transition.timed_out"
	EventPowerProgress       EventType = "power.progress"
	EventPowerConverged      EventType = "power.converged"
	EventPowerMismatched     EventType = "power.mismatched"
	EventSessionProgress     EventType = "session.progress"
	EventSessionCompleted    EventType = "session.completed"
	EventBatchFailed         EventType = "batch.failed"
)

// Event represents a progress or outcome notification of a long-running operation
type Event struct {
	ID        string
	Type      EventType
	Timestamp time.Time
	Message   string
	Attempt   int
	Attempts  int
	Metadata  map[string]string
}

// Subscriber is a channel that receives events
type Subscriber chan *Event

// Broker manages event subscriptions and distribution
type Broker struct {
	subscribers map[Subscriber]bool
	mu          sync.RWMutex
	eventCh     chan *Event
	flushCh     chan chan struct{}
	stopCh      chan struct{}
	stopOnce    sync.Once
}

// NewBroker creates a new event broker
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]bool),
		eventCh:     make(chan *Event, 100),
		flushCh:     make(chan chan struct{}),
		stopCh:      make(chan struct{}),
	}
}

// Start begins the broker's event distribution loop
func (b *Broker) Start() {
	go b.run()
}

// Stop stops the broker. Safe to call more than once.
func (b *Broker) Stop() {
	b.stopOnce.Do(func() { close(b.stopCh) })
}

// Subscribe creates a new subscription and returns a channel
func (b *Broker) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := make(Subscriber, 50)
	b.subscribers[sub] = true
	return sub
}

// Unsubscribe removes a subscription
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subscribers[sub]; !ok {
		return
	}
	delete(b.subscribers, sub)
	close(sub)
}

// Publish publishes an event to all subscribers. Progress events are
// advisory: when the queue is full the event is dropped rather than
// stalling the poll loop that produced it.
func (b *Broker) Publish(event *Event) {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case b.eventCh <- event:
	case <-b.stopCh:
	default:
	}
}

// Flush waits until every event published before the call has been handed
// to the subscribers. It returns early when ctx ends or the broker stops.
func (b *Broker) Flush(ctx context.Context) error {
	done := make(chan struct{})
	select {
	case b.flushCh <- done:
	case <-b.stopCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-done:
		return nil
	case <-b.stopCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Broker) run() {
	for {
		select {
		case event := <-b.eventCh:
			b.broadcast(event)
		case done := <-b.flushCh:
			b.drain()
			close(done)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Broker) drain() {
	for {
		select {
		case event := <-b.eventCh:
			b.broadcast(event)
		default:
			return
		}
	}
}

func (b *Broker) broadcast(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers {
		select {
		case sub <- event:
		default:
			// Subscriber buffer full, skip
		}
	}
}

// SubscriberCount returns the number of active subscribers
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
