package bus

import (
	"context"
	"reflect"

	"github.com/GabrielCarpr/mediator/bus/message"
	"github.com/GabrielCarpr/mediator/result"
)

// requestInvoker dispatches a command or query with its result type bound
type requestInvoker func(ctx context.Context, b *Bus, m message.Message) (result.Result[any], error)

// streamInvoker creates a stream with its item type bound
type streamInvoker func(ctx context.Context, b *Bus, m message.Message) (*Stream[any], error)

// entry is the catalog record of a message type: its kind and the typed closures
// its marker provides. Entries are added when bindings are registered and on the
// first dynamic dispatch of an unregistered type.
type entry struct {
	typ    reflect.Type
	kind   message.Type
	invoke requestInvoker
	stream streamInvoker
}

func entryOf(m message.Message) entry {
	e := entry{typ: reflect.TypeOf(m), kind: m.MessageType()}
	if inv, ok := m.(interface{ invoker() requestInvoker }); ok {
		e.invoke = inv.invoker()
	}
	if s, ok := m.(interface{ streamer() streamInvoker }); ok {
		e.stream = s.streamer()
	}
	return e
}

// catalogue records t, reporting the entry
func (b *Bus) catalogue(t reflect.Type) (entry, bool) {
	key := typeKey(t)
	if e, ok := b.catalog.Get(key); ok {
		return e, true
	}
	m, ok := prototype(t).(message.Message)
	if !ok {
		return entry{}, false
	}
	e, _ := b.catalog.GetOrCompute(key, func() entry {
		return entryOf(m)
	})
	b.names.Set(MessageName(t), key)
	return e, true
}

// MessageName is the name a message type is known by outside the process, eg. in
// transports and the REST port
func MessageName(t reflect.Type) string {
	if t.Kind() == reflect.Ptr {
		return MessageName(t.Elem())
	}
	return t.String()
}

// Lookup finds a catalogued message type by its MessageName or package qualified name
func (b *Bus) Lookup(name string) (reflect.Type, bool) {
	if e, ok := b.catalog.Get(name); ok {
		return e.typ, true
	}
	key, ok := b.names.Get(name)
	if !ok {
		return nil, false
	}
	e, ok := b.catalog.Get(key)
	return e.typ, ok
}

// MessageNames lists the catalogued message names of kind, or of every kind when kind
// is zero
func (b *Bus) MessageNames(kind message.Type) []string {
	var names []string
	b.catalog.ForEach(func(_ string, e entry) bool {
		if kind == 0 || e.kind == kind {
			names = append(names, MessageName(e.typ))
		}
		return true
	})
	return names
}

// NewMessage returns a zero message of the catalogued type name, as a pointer so it
// can be decoded into. Pointer message types get their value allocated. Use
// DecodeTarget to read the decoded message back without caring which it is.
func (b *Bus) NewMessage(name string) (interface{}, bool) {
	target, _, ok := b.DecodeTarget(name)
	return target, ok
}

// DecodeTarget returns a target to decode a message of the catalogued type name into,
// and a function returning the decoded message. The message of a pointer type is the
// allocated target itself, never a nil pointer.
func (b *Bus) DecodeTarget(name string) (interface{}, func() message.Message, bool) {
	t, ok := b.Lookup(name)
	if !ok {
		return nil, nil, false
	}
	if t.Kind() == reflect.Ptr {
		v := reflect.New(t.Elem())
		return v.Interface(), func() message.Message { return v.Interface().(message.Message) }, true
	}
	v := reflect.New(t)
	return v.Interface(), func() message.Message { return v.Elem().Interface().(message.Message) }, true
}

func (b *Bus) dynamic(v interface{}, want message.Type) (message.Message, entry, error) {
	if isNil(v) {
		return nil, entry{}, ErrInvalidArgument
	}
	m, ok := v.(message.Message)
	if !ok || m.MessageType() != want {
		return nil, entry{}, NotAMessage{Value: v, Want: want}
	}
	e, _ := b.catalogue(reflect.TypeOf(m))
	return m, e, nil
}

// Send dispatches a command whose result type is only known at runtime. The result
// is type erased.
func (b *Bus) Send(ctx context.Context, v interface{}) (result.Result[any], error) {
	m, e, err := b.dynamic(v, message.Command)
	if err != nil {
		return result.Result[any]{}, err
	}
	if e.invoke == nil {
		return result.Result[any]{}, NotAMessage{Value: v, Want: message.Command}
	}
	return e.invoke(ctx, b, m)
}

// Query dispatches a query whose result type is only known at runtime
func (b *Bus) Query(ctx context.Context, v interface{}) (result.Result[any], error) {
	m, e, err := b.dynamic(v, message.Query)
	if err != nil {
		return result.Result[any]{}, err
	}
	if e.invoke == nil {
		return result.Result[any]{}, NotAMessage{Value: v, Want: message.Query}
	}
	return e.invoke(ctx, b, m)
}

// Publish publishes an untyped event
func (b *Bus) Publish(ctx context.Context, v interface{}) error {
	if isNil(v) {
		return ErrInvalidArgument
	}
	e, ok := v.(Event)
	if !ok {
		return NotAMessage{Value: v, Want: message.Event}
	}
	b.catalogue(reflect.TypeOf(e))
	return b.publish(ctx, e)
}

// CreateStream creates a stream whose item type is only known at runtime
func (b *Bus) CreateStream(ctx context.Context, v interface{}) (*Stream[any], error) {
	m, e, err := b.dynamic(v, message.Stream)
	if err != nil {
		return nil, err
	}
	if e.stream == nil {
		return nil, NotAMessage{Value: v, Want: message.Stream}
	}
	return e.stream(ctx, b, m)
}

// Dispatch routes v by its kind: commands and queries return their erased
// result.Result, streams a *Stream[any], and events nil once published.
func (b *Bus) Dispatch(ctx context.Context, v interface{}) (interface{}, error) {
	if isNil(v) {
		return nil, ErrInvalidArgument
	}
	m, ok := v.(message.Message)
	if !ok {
		return nil, NotAMessage{Value: v}
	}
	switch m.MessageType() {
	case message.Command:
		return b.Send(ctx, v)
	case message.Query:
		return b.Query(ctx, v)
	case message.Event:
		return nil, b.Publish(ctx, v)
	case message.Stream:
		s, err := b.CreateStream(ctx, v)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, NotAMessage{Value: v}
}
