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

// Role is the part a binding plays in the pipeline of its message
type Role int

const (
	HandlerRole Role = iota + 1
	MiddlewareRole
	PreProcessorRole
	PostProcessorRole
	ExceptionActionRole
	ExceptionHandlerRole
)

func (r Role) String() string {
	switch r {
	case HandlerRole:
		return "handler"
	case MiddlewareRole:
		return "middleware"
	case PreProcessorRole:
		return "pre-processor"
	case PostProcessorRole:
		return "post-processor"
	case ExceptionActionRole:
		return "exception action"
	case ExceptionHandlerRole:
		return "exception handler"
	}
	return fmt.Sprintf("Role(%d)", int(r))
}

// Source records how a binding reached the registry
type Source int

const (
	Explicit Source = iota
	Generated
	Reflected
)

func (s Source) String() string {
	switch s {
	case Explicit:
		return "explicit"
	case Generated:
		return "generated"
	case Reflected:
		return "reflected"
	}
	return fmt.Sprintf("Source(%d)", int(s))
}

// Binding ties an implementation to the message type it serves, or for open bindings
// to a family of message types. Bindings are built with the On*, Wrap*, Pre/PostProcess
// and OnException* functions, by generated code, or by the reflective scan.
type Binding struct {
	Kind      message.Type
	Role      Role
	Interface string
	Impl      string
	Source    Source

	message   reflect.Type
	family    *family
	exception reflect.Type
	instance  interface{}
	service   string
	call      interface{}
	seq       int
	err       error
}

// Message is the concrete message type of a closed binding, nil for open bindings
func (b Binding) Message() reflect.Type {
	return b.message
}

// Open reports whether the binding serves a family of message types
func (b Binding) Open() bool {
	return b.family != nil
}

// Service is the container service the implementation is resolved from on each dispatch
func (b Binding) Service() string {
	return b.service
}

// WithService resolves the implementation from the named container service instead
// of the registered instance
func (b Binding) WithService(name string) Binding {
	b.service = name
	return b
}

func (b Binding) String() string {
	target := "<nil>"
	switch {
	case b.family != nil && b.family.definition == "":
		target = "every " + b.Kind.String()
	case b.family != nil:
		target = b.family.String()
	case b.message != nil:
		target = b.message.String()
	}
	return fmt.Sprintf("%s %s for %s (%s)", b.Impl, b.Role, target, b.Interface)
}

func (b Binding) matches(t reflect.Type) bool {
	if b.family != nil {
		return b.family.matches(t)
	}
	return b.message == t
}

// pair is the (interface, implementation) name pair persisted by the scan cache
func (b Binding) pair() [2]string {
	return [2]string{b.Interface, b.Impl}
}

/*
 * Role specific invocations. Every call receives the service resolved for the
 * dispatch, so the instance a binding was built with is only a default.
 */

type requestCall[R any] func(ctx context.Context, svc interface{}, m message.Message) (result.Result[R], error)

type streamCall[R any] func(ctx context.Context, svc interface{}, m message.Message) iter.Seq2[R, error]

type eventCall func(ctx context.Context, svc interface{}, m message.Message) error

type requestMiddlewareCall[R any] func(ctx context.Context, svc interface{}, m message.Message, next Next[R]) (result.Result[R], error)

type eventMiddlewareCall func(ctx context.Context, svc interface{}, m message.Message, next EventNext) error

type streamMiddlewareCall[R any] func(ctx context.Context, svc interface{}, m message.Message, next StreamNext[R]) iter.Seq2[R, error]

type preCall func(ctx context.Context, svc interface{}, m message.Message) error

type postCall[R any] func(ctx context.Context, svc interface{}, m message.Message, res result.Result[R]) error

type actionCall func(ctx context.Context, svc interface{}, m message.Message, err error) error

type exceptionCall[R any] func(ctx context.Context, svc interface{}, m message.Message, err error, state *ExceptionState[R]) error

// openCall marks bindings whose service implements one of the Open* interfaces
type openCall struct{}

func serviceAs[T any](svc interface{}, iface string) (T, error) {
	v, ok := svc.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %T is not a %s", ErrServiceMismatch, svc, iface)
	}
	return v, nil
}

func typeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// capability names an interface instantiation, eg. bus.CommandHandler[app.Ping,string]
func capability(name string, args ...reflect.Type) string {
	names := make([]string, len(args))
	for i, a := range args {
		names[i] = a.String()
	}
	return fmt.Sprintf("bus.%s[%s]", name, strings.Join(names, ","))
}

func implName(v interface{}) string {
	if v == nil {
		return "<nil>"
	}
	return reflect.TypeOf(v).String()
}

// prototype returns a usable zero value of t. Pointer types get a pointer to a zero
// value so promoted marker methods can be called.
func prototype(t reflect.Type) interface{} {
	if t.Kind() == reflect.Ptr {
		return reflect.New(t.Elem()).Interface()
	}
	return reflect.New(t).Elem().Interface()
}

// typeKey is a package qualified, collision free name for t
func typeKey(t reflect.Type) string {
	if t.Kind() == reflect.Ptr {
		return "*" + typeKey(t.Elem())
	}
	if t.Name() != "" && t.PkgPath() != "" {
		return t.PkgPath() + "." + t.Name()
	}
	return t.String()
}

func isNil(v interface{}) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Func, reflect.Interface, reflect.Chan:
		return rv.IsNil()
	}
	return false
}
