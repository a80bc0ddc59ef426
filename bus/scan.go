package bus

import (
	"context"
	"fmt"
	"iter"
	"reflect"
	"strings"

	"github.com/GabrielCarpr/mediator/bus/message"
	"github.com/GabrielCarpr/mediator/result"
)

var (
	contextType = typeOf[context.Context]()
	messageType = typeOf[message.Message]()
	resultPkg   = typeOf[result.Result[any]]().PkgPath()
)

// reflectCall invokes a method found by the reflective scan on the resolved service
type reflectCall struct {
	method string
}

func (c reflectCall) invoke(svc interface{}, args ...reflect.Value) ([]reflect.Value, error) {
	m := reflect.ValueOf(svc).MethodByName(c.method)
	if !m.IsValid() {
		return nil, fmt.Errorf("%w: %T has no %s method", ErrServiceMismatch, svc, c.method)
	}
	ft := m.Type()
	if ft.NumIn() != len(args) {
		return nil, fmt.Errorf("%w: %T.%s takes %d arguments", ErrServiceMismatch, svc, c.method, ft.NumIn())
	}
	for i, a := range args {
		if !a.IsValid() {
			args[i] = reflect.Zero(ft.In(i))
			continue
		}
		if !a.Type().AssignableTo(ft.In(i)) {
			return nil, fmt.Errorf("%w: %T.%s can't take a %s", ErrServiceMismatch, svc, c.method, a.Type())
		}
	}
	return m.Call(args), nil
}

// run invokes a method returning a single error
func (c reflectCall) run(svc interface{}, args ...reflect.Value) error {
	out, err := c.invoke(svc, args...)
	if err != nil {
		return err
	}
	return errorOf(out)
}

// errorOf reads the trailing error result of a reflected call
func errorOf(out []reflect.Value) error {
	if len(out) == 0 {
		return nil
	}
	last := out[len(out)-1]
	if last.Kind() != reflect.Interface || last.IsNil() {
		return nil
	}
	err, _ := last.Interface().(error)
	return err
}

// reflectResult converts the result.Result returned by a reflected handler to R,
// through the erased form when the handler declared another payload type
func reflectResult[R any](v reflect.Value) result.Result[R] {
	if res, ok := v.Interface().(result.Result[R]); ok {
		return res
	}
	erase := v.MethodByName("Erase")
	if !erase.IsValid() {
		return result.Unexpect[R](fmt.Errorf("bus: %s is not a result", v.Type()))
	}
	return result.Cast[R](erase.Call(nil)[0].Interface().(result.Result[any]))
}

// Scan inspects the method sets of prototypes for handler and processor signatures,
// returning one binding per capability found:
//
//	Handle(context.Context, C) (result.Result[R], error)    command or query handler
//	Handle(context.Context, E) error                        event handler
//	Handle(context.Context, S) iter.Seq2[R, error]          stream handler
//	Process(context.Context, C) error                       pre-processor
//	Process(context.Context, C, result.Result[R]) error     post-processor
//
// Open handlers and middlewares are found when the prototype also names the
// generic family it serves, see OpenPrototype.
func Scan(prototypes ...interface{}) []Binding {
	var out []Binding
	for _, p := range prototypes {
		out = append(out, scanType(p)...)
	}
	return out
}

// OpenPrototype is implemented by open handlers and middlewares the scan should bind.
// Family returns any instantiation of the generic message type they serve.
type OpenPrototype interface {
	Family() message.Message
}

// scanOpen binds an OpenPrototype through the open binding its Handle method fits
func scanOpen(p OpenPrototype) (Binding, bool) {
	proto := p.Family()
	switch h := p.(type) {
	case OpenHandler:
		return OnOpen(proto, h), true
	case OpenEventHandler:
		return OnOpenEvent(proto, h), true
	case OpenMiddleware:
		return WrapOpen(proto, h), true
	case OpenEventMiddleware:
		return WrapOpenEvent(proto, h), true
	}
	return Binding{}, false
}

func scanType(p interface{}) []Binding {
	if isNil(p) {
		return nil
	}
	if open, ok := p.(OpenPrototype); ok {
		if b, ok := scanOpen(open); ok {
			b.Source = Reflected
			return []Binding{b}
		}
	}
	t := reflect.TypeOf(p)
	var out []Binding
	if m, ok := t.MethodByName("Handle"); ok {
		if b, ok := handlerOf(p, m.Type); ok {
			out = append(out, b)
		}
	}
	if m, ok := t.MethodByName("Process"); ok {
		if b, ok := processorOf(p, m.Type); ok {
			out = append(out, b)
		}
	}
	return out
}

// messageArg reads the message type of a method type whose receiver is In(0), and
// whose first parameter is a context
func messageArg(ft reflect.Type) (reflect.Type, message.Type, bool) {
	if ft.NumIn() < 3 || ft.In(1) != contextType {
		return nil, 0, false
	}
	m := ft.In(2)
	if m.Kind() == reflect.Interface || !m.Implements(messageType) {
		return nil, 0, false
	}
	return m, prototype(m).(message.Message).MessageType(), true
}

func handlerOf(p interface{}, ft reflect.Type) (Binding, bool) {
	m, kind, ok := messageArg(ft)
	if !ok || ft.NumIn() != 3 {
		return Binding{}, false
	}
	b := Binding{
		Kind:     kind,
		Role:     HandlerRole,
		Impl:     implName(p),
		Source:   Reflected,
		message:  m,
		instance: p,
		call:     reflectCall{method: "Handle"},
	}

	switch kind {
	case message.Command, message.Query:
		r, ok := resultOf(ft, 0)
		if !ok || ft.NumOut() != 2 || ft.Out(1) != errorType {
			return Binding{}, false
		}
		name := "QueryHandler"
		if kind == message.Command {
			name = "CommandHandler"
		}
		b.Interface = capability(name, m, r)
	case message.Event:
		if ft.NumOut() != 1 || ft.Out(0) != errorType {
			return Binding{}, false
		}
		b.Interface = capability("EventHandler", m)
	case message.Stream:
		r, ok := seqOf(ft)
		if !ok {
			return Binding{}, false
		}
		b.Interface = capability("StreamHandler", m, r)
	default:
		return Binding{}, false
	}
	return b, true
}

func processorOf(p interface{}, ft reflect.Type) (Binding, bool) {
	m, kind, ok := messageArg(ft)
	if !ok || (kind != message.Command && kind != message.Query) {
		return Binding{}, false
	}
	if ft.NumOut() != 1 || ft.Out(0) != errorType {
		return Binding{}, false
	}
	b := Binding{
		Kind:     kind,
		Impl:     implName(p),
		Source:   Reflected,
		message:  m,
		instance: p,
		call:     reflectCall{method: "Process"},
	}
	switch ft.NumIn() {
	case 3:
		b.Role = PreProcessorRole
		b.Interface = capability("PreProcessor", m)
	case 4:
		if !isResult(ft.In(3)) {
			return Binding{}, false
		}
		b.Role = PostProcessorRole
		b.Interface = capability("PostProcessor", m, payloadOf(ft.In(3)))
	default:
		return Binding{}, false
	}
	return b, true
}

func isResult(t reflect.Type) bool {
	return t.PkgPath() == resultPkg && strings.HasPrefix(t.Name(), "Result[")
}

// payloadOf is the R of a result.Result[R]
func payloadOf(t reflect.Type) reflect.Type {
	m, _ := t.MethodByName("Value")
	return m.Type.Out(0)
}

func resultOf(ft reflect.Type, i int) (reflect.Type, bool) {
	if ft.NumOut() <= i || !isResult(ft.Out(i)) {
		return nil, false
	}
	return payloadOf(ft.Out(i)), true
}

// seqOf reads R from a method returning an iter.Seq2[R, error]
func seqOf(ft reflect.Type) (reflect.Type, bool) {
	if ft.NumOut() != 1 {
		return nil, false
	}
	seq := ft.Out(0)
	if seq.Kind() != reflect.Func || seq.NumIn() != 1 || seq.NumOut() != 0 {
		return nil, false
	}
	yield := seq.In(0)
	if yield.Kind() != reflect.Func || yield.NumIn() != 2 || yield.In(1) != errorType {
		return nil, false
	}
	return yield.In(0), true
}

// reflectSeq converts the sequence returned by a reflected stream handler
func reflectSeq[R any](v reflect.Value) iter.Seq2[R, error] {
	want := typeOf[iter.Seq2[R, error]]()
	if !v.Type().ConvertibleTo(want) || v.IsNil() {
		return nil
	}
	return v.Convert(want).Interface().(iter.Seq2[R, error])
}
