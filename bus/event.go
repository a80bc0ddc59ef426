package bus

import (
	"context"
	"sync"

	"github.com/GabrielCarpr/mediator/bus/message"
)

// Event is a routable event indicating something has happened.
// Each event may have multiple, or 0, handlers.
type Event interface {
	message.Message

	isEvent()
}

// EventType is embedded within an event to implement Event
type EventType struct{}

// MessageType implements the message.Message interface
func (EventType) MessageType() message.Type {
	return message.Event
}

func (EventType) isEvent() {}

// EventHandler is a handler for one specific event
type EventHandler[E Event] interface {
	Handle(context.Context, E) error
}

type EventHandlerFunc[E Event] func(context.Context, E) error

func (f EventHandlerFunc[E]) Handle(ctx context.Context, e E) error {
	return f(ctx, e)
}

// EventNext continues an event pipeline. Publishers receive one EventNext per handler.
type EventNext func(context.Context) error

// EventMiddleware wraps the publication of one event type to all of its handlers
type EventMiddleware[E Event] interface {
	Handle(context.Context, E, EventNext) error
}

type EventMiddlewareFunc[E Event] func(context.Context, E, EventNext) error

func (f EventMiddlewareFunc[E]) Handle(ctx context.Context, e E, next EventNext) error {
	return f(ctx, e, next)
}

// OnEvent subscribes h to E
func OnEvent[E Event](h EventHandler[E]) Binding {
	b := Binding{
		Kind:      message.Event,
		Role:      HandlerRole,
		Interface: capability("EventHandler", typeOf[E]()),
		Impl:      implName(h),
		message:   typeOf[E](),
		instance:  h,
	}
	b.call = eventCall(func(ctx context.Context, svc interface{}, m message.Message) error {
		h, err := serviceAs[EventHandler[E]](svc, b.Interface)
		if err != nil {
			return err
		}
		return h.Handle(ctx, m.(E))
	})
	return b
}

// WrapEvent binds mw as a middleware of E
func WrapEvent[E Event](mw EventMiddleware[E]) Binding {
	b := Binding{
		Kind:      message.Event,
		Role:      MiddlewareRole,
		Interface: capability("EventMiddleware", typeOf[E]()),
		Impl:      implName(mw),
		message:   typeOf[E](),
		instance:  mw,
	}
	b.call = eventMiddlewareCall(func(ctx context.Context, svc interface{}, m message.Message, next EventNext) error {
		mw, err := serviceAs[EventMiddleware[E]](svc, b.Interface)
		if err != nil {
			return err
		}
		return mw.Handle(ctx, m.(E), next)
	})
	return b
}

// Publish distributes an event to every handler subscribed to it. It succeeds when
// no handler is subscribed.
func Publish(ctx context.Context, b *Bus, e Event) error {
	if isNil(e) {
		return ErrInvalidArgument
	}
	return b.publish(ctx, e)
}

// EventBuffer collects events raised while handling a message, to publish them once
// the work they describe is done
type EventBuffer struct {
	mx     sync.Mutex
	events []Event
}

// Buffer adds events to the buffer
func (e *EventBuffer) Buffer(events ...Event) {
	e.mx.Lock()
	defer e.mx.Unlock()
	e.events = append(e.events, events...)
}

// Events returns the buffered events without clearing them
func (e *EventBuffer) Events() []Event {
	e.mx.Lock()
	defer e.mx.Unlock()
	out := make([]Event, len(e.events))
	copy(out, e.events)
	return out
}

// Flush clears the buffer, without publishing
func (e *EventBuffer) Flush() {
	e.mx.Lock()
	defer e.mx.Unlock()
	e.events = nil
}

// Commit publishes the buffered events in order and clears the buffer. A failed event
// and the ones after it stay buffered.
func (e *EventBuffer) Commit(ctx context.Context, b *Bus) error {
	e.mx.Lock()
	defer e.mx.Unlock()
	for i, event := range e.events {
		if err := Publish(ctx, b, event); err != nil {
			e.events = e.events[i:]
			return err
		}
	}
	e.events = nil
	return nil
}
