package bus

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/GabrielCarpr/mediator/bus/message"
	"github.com/GabrielCarpr/mediator/result"
)

/*
 * Open bindings serve a family of message types: every instantiation of one generic
 * message type, or every message of a kind. They work on erased values, and are
 * adapted to the concrete message type the first time it is routed.
 */

// OpenHandler handles every instantiation of a generic command or query type
type OpenHandler interface {
	Handle(context.Context, message.Message) (result.Result[any], error)
}

type OpenHandlerFunc func(context.Context, message.Message) (result.Result[any], error)

func (f OpenHandlerFunc) Handle(ctx context.Context, m message.Message) (result.Result[any], error) {
	return f(ctx, m)
}

// OpenNext continues a pipeline from an open middleware
type OpenNext func(context.Context) (result.Result[any], error)

// OpenMiddleware wraps every message of a family. Results pass through it erased,
// and are cast back to the message's result type afterwards.
type OpenMiddleware interface {
	Handle(context.Context, message.Message, OpenNext) (result.Result[any], error)
}

type OpenMiddlewareFunc func(context.Context, message.Message, OpenNext) (result.Result[any], error)

func (f OpenMiddlewareFunc) Handle(ctx context.Context, m message.Message, next OpenNext) (result.Result[any], error) {
	return f(ctx, m, next)
}

// OpenEventHandler handles every event of a family
type OpenEventHandler interface {
	Handle(context.Context, message.Message) error
}

type OpenEventHandlerFunc func(context.Context, message.Message) error

func (f OpenEventHandlerFunc) Handle(ctx context.Context, m message.Message) error {
	return f(ctx, m)
}

// OpenEventMiddleware wraps the publication of every event of a family
type OpenEventMiddleware interface {
	Handle(context.Context, message.Message, EventNext) error
}

type OpenEventMiddlewareFunc func(context.Context, message.Message, EventNext) error

func (f OpenEventMiddlewareFunc) Handle(ctx context.Context, m message.Message, next EventNext) error {
	return f(ctx, m, next)
}

// OnOpen binds h as the handler of every instantiation of proto's generic type.
// A closed handler of a specific instantiation takes priority.
func OnOpen(proto message.Message, h OpenHandler) Binding {
	b := openBinding(proto, HandlerRole, "OpenHandler", h)
	if b.err == nil && b.Kind != message.Command && b.Kind != message.Query {
		b.err = fmt.Errorf("bus: open handlers serve commands and queries, %s is a %s", b.family, b.Kind)
	}
	return b
}

// OnOpenEvent subscribes h to every instantiation of proto's generic event type
func OnOpenEvent(proto message.Message, h OpenEventHandler) Binding {
	b := openBinding(proto, HandlerRole, "OpenEventHandler", h)
	if b.err == nil && b.Kind != message.Event {
		b.err = fmt.Errorf("bus: %s is not an event", b.family)
	}
	return b
}

// WrapOpen binds mw around every instantiation of proto's generic command or query type
func WrapOpen(proto message.Message, mw OpenMiddleware) Binding {
	b := openBinding(proto, MiddlewareRole, "OpenMiddleware", mw)
	if b.err == nil && b.Kind != message.Command && b.Kind != message.Query {
		b.err = fmt.Errorf("bus: open middlewares wrap commands and queries, %s is a %s", b.family, b.Kind)
	}
	return b
}

// WrapOpenEvent binds mw around every instantiation of proto's generic event type
func WrapOpenEvent(proto message.Message, mw OpenEventMiddleware) Binding {
	b := openBinding(proto, MiddlewareRole, "OpenEventMiddleware", mw)
	if b.err == nil && b.Kind != message.Event {
		b.err = fmt.Errorf("bus: %s is not an event", b.family)
	}
	return b
}

// WrapAll binds mw around every command, or every query
func WrapAll(kind message.Type, mw OpenMiddleware) Binding {
	b := Binding{
		Kind:      kind,
		Role:      MiddlewareRole,
		Interface: fmt.Sprintf("bus.OpenMiddleware[%s]", kind),
		Impl:      implName(mw),
		family:    &family{},
		instance:  mw,
		call:      openCall{},
	}
	if kind != message.Command && kind != message.Query {
		b.err = fmt.Errorf("bus: WrapAll wraps commands or queries, not %s", kind)
	}
	return b
}

// WrapAllEvents binds mw around the publication of every event
func WrapAllEvents(mw OpenEventMiddleware) Binding {
	return Binding{
		Kind:      message.Event,
		Role:      MiddlewareRole,
		Interface: fmt.Sprintf("bus.OpenEventMiddleware[%s]", message.Event),
		Impl:      implName(mw),
		family:    &family{},
		instance:  mw,
		call:      openCall{},
	}
}

func openBinding(proto message.Message, role Role, name string, impl interface{}) Binding {
	b := Binding{
		Role:     role,
		Impl:     implName(impl),
		instance: impl,
		call:     openCall{},
	}
	if isNil(proto) {
		b.err = fmt.Errorf("%w: open binding %s needs a prototype", ErrInvalidArgument, b.Impl)
		return b
	}
	b.Kind = proto.MessageType()
	f, err := familyOf(reflect.TypeOf(proto))
	if err != nil {
		b.err = err
		return b
	}
	b.family = f
	b.Interface = fmt.Sprintf("bus.%s[%s]", name, f)
	return b
}

// family matches every instantiation of one generic type with the same number of
// type arguments. The zero family matches every message it is asked about.
type family struct {
	definition string
	arity      int
}

func familyOf(t reflect.Type) (*family, error) {
	ptr := ""
	if t.Kind() == reflect.Ptr {
		ptr = "*"
		t = t.Elem()
	}
	name := t.Name()
	open := strings.IndexByte(name, '[')
	if open < 0 || !strings.HasSuffix(name, "]") {
		return nil, fmt.Errorf("bus: %s is not an instantiated generic type", t)
	}
	return &family{
		definition: ptr + t.PkgPath() + "." + name[:open],
		arity:      arity(name[open+1 : len(name)-1]),
	}, nil
}

// arity counts the top level type arguments of an instantiation's argument list
func arity(args string) int {
	if args == "" {
		return 0
	}
	n, depth := 1, 0
	for _, r := range args {
		switch r {
		case '[', '(', '{':
			depth++
		case ']', ')', '}':
			depth--
		case ',':
			if depth == 0 {
				n++
			}
		}
	}
	return n
}

func (f *family) matches(t reflect.Type) bool {
	if f.definition == "" {
		return true
	}
	g, err := familyOf(t)
	return err == nil && g.definition == f.definition && g.arity == f.arity
}

func (f *family) String() string {
	if f.definition == "" {
		return "*"
	}
	return fmt.Sprintf("%s[%s]", f.definition, strings.TrimSuffix(strings.Repeat("_,", f.arity), ","))
}
