package event_bus

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

type EventType string

// Event is what the bus carries. Data is untyped; SubscribeTyped narrows it for a handler.
type Event struct {
	ctx        context.Context
	Type       EventType
	OccurredAt time.Time
	Data       any
}

func NewEvent(ctx context.Context, eventType EventType, data any) Event {
	return Event{ctx: ctx, Type: eventType, OccurredAt: time.Now(), Data: data}
}

// Context is the publisher's context, holding the acting identity.
func (e Event) Context() context.Context {
	if e.ctx == nil {
		return context.Background()
	}
	return e.ctx
}

// EventT is an Event whose payload has already been asserted to T.
type EventT[T any] struct {
	Event
	Data T
}

type listener struct {
	id     uint64
	handle func(Event) error
}

// EventBus delivers synchronously on the publishing goroutine, in subscription order.
type EventBus struct {
	mu        sync.RWMutex
	listeners map[EventType][]listener
	lastId    uint64
}

func NewEventBus() *EventBus {
	return &EventBus{listeners: map[EventType][]listener{}}
}

// Subscribe registers handle for eventType. Calling the returned func removes it again.
func (eb *EventBus) Subscribe(eventType EventType, handle func(Event) error) (unsubscribe func()) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.lastId++
	id := eb.lastId
	eb.listeners[eventType] = append(eb.listeners[eventType], listener{id: id, handle: handle})

	return func() {
		eb.mu.Lock()
		defer eb.mu.Unlock()
		remaining := slices.DeleteFunc(eb.listeners[eventType], func(l listener) bool { return l.id == id })
		if len(remaining) == 0 {
			delete(eb.listeners, eventType)
			return
		}
		eb.listeners[eventType] = remaining
	}
}

// SubscribeTyped registers handle for events of eventType whose payload is a T; other payloads
// are skipped.
func SubscribeTyped[T any](eb *EventBus, eventType EventType, handle func(EventT[T]) error) (unsubscribe func()) {
	return eb.Subscribe(eventType, func(e Event) error {
		payload, ok := e.Data.(T)
		if !ok {
			log.Debugf("skipping %s listener: payload is %T, want %T", eventType, e.Data, *new(T))
			return nil
		}
		return handle(EventT[T]{Event: e, Data: payload})
	})
}

// Publish calls every listener of e.Type. A failing or panicking listener does not stop the
// others; all failures come back joined. A cancelled context stops delivery.
func (eb *EventBus) Publish(e Event) error {
	ctx := e.Context()
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("event %s not published: %w", e.Type, err)
	}

	eb.mu.RLock()
	listeners := slices.Clone(eb.listeners[e.Type])
	eb.mu.RUnlock()

	var failures []error
	for _, l := range listeners {
		if err := ctx.Err(); err != nil {
			failures = append(failures, fmt.Errorf("delivery interrupted: %w", err))
			break
		}
		if err := deliver(l, e); err != nil {
			log.Errorf("listener %d failed on %s: %v", l.id, e.Type, err)
			failures = append(failures, err)
		}
	}
	if len(failures) > 0 {
		return fmt.Errorf("event %s: %d listener(s) failed: %w", e.Type, len(failures), errors.Join(failures...))
	}
	return nil
}

func deliver(l listener, e Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("listener %d panicked: %v", l.id, r)
		}
	}()
	return l.handle(e)
}

// PublishAndForget publishes e for a change that is already committed and only logs a failure.
// Listeners keep the publisher's values but not its cancellation. Safe on a nil bus.
func (eb *EventBus) PublishAndForget(e Event) {
	if eb == nil {
		return
	}
	e.ctx = context.WithoutCancel(e.Context())
	if err := eb.Publish(e); err != nil {
		log.Warnf("discarding failed side effect for event %s: %v", e.Type, err)
	}
}
