package bus

import (
	"context"
	"reflect"

	"github.com/GabrielCarpr/mediator/bus/message"
	"github.com/GabrielCarpr/mediator/log"
	"github.com/GabrielCarpr/mediator/result"
)

// ExceptionAction observes errors of type E returned while handling M. Actions only
// have side effects, they can't replace the error.
type ExceptionAction[M message.Message, E error] interface {
	Execute(context.Context, M, E) error
}

type ExceptionActionFunc[M message.Message, E error] func(context.Context, M, E) error

func (f ExceptionActionFunc[M, E]) Execute(ctx context.Context, m M, err E) error {
	return f(ctx, m, err)
}

// ExceptionHandler may turn an error of type E returned while handling M into a
// result, by marking the state handled
type ExceptionHandler[M Request[R], R any, E error] interface {
	Handle(context.Context, M, E, *ExceptionState[R]) error
}

type ExceptionHandlerFunc[M Request[R], R any, E error] func(context.Context, M, E, *ExceptionState[R]) error

func (f ExceptionHandlerFunc[M, R, E]) Handle(ctx context.Context, m M, err E, state *ExceptionState[R]) error {
	return f(ctx, m, err, state)
}

// ExceptionState is shared by the exception handlers of one failed dispatch
type ExceptionState[R any] struct {
	handled bool
	result  result.Result[R]
}

// SetHandled replaces the error with res. Later handlers are not called.
func (s *ExceptionState[R]) SetHandled(res result.Result[R]) {
	s.handled = true
	s.result = res
}

func (s *ExceptionState[R]) Handled() bool {
	return s.handled
}

func (s *ExceptionState[R]) Result() result.Result[R] {
	return s.result
}

// OnExceptionAction binds a as an action for errors of type E raised by M
func OnExceptionAction[M message.Message, E error](a ExceptionAction[M, E]) Binding {
	t := typeOf[M]()
	b := Binding{
		Kind:      prototype(t).(message.Message).MessageType(),
		Role:      ExceptionActionRole,
		Interface: capability("ExceptionAction", t, typeOf[E]()),
		Impl:      implName(a),
		message:   t,
		exception: typeOf[E](),
		instance:  a,
	}
	b.call = actionCall(func(ctx context.Context, svc interface{}, m message.Message, err error) error {
		a, serr := serviceAs[ExceptionAction[M, E]](svc, b.Interface)
		if serr != nil {
			return serr
		}
		return a.Execute(ctx, m.(M), err.(E))
	})
	return b
}

// OnException binds h as a handler for errors of type E raised by M
func OnException[M Request[R], R any, E error](h ExceptionHandler[M, R, E]) Binding {
	t := typeOf[M]()
	b := Binding{
		Kind:      prototype(t).(message.Message).MessageType(),
		Role:      ExceptionHandlerRole,
		Interface: capability("ExceptionHandler", t, typeOf[R](), typeOf[E]()),
		Impl:      implName(h),
		message:   t,
		exception: typeOf[E](),
		instance:  h,
	}
	b.call = exceptionCall[R](func(ctx context.Context, svc interface{}, m message.Message, err error, state *ExceptionState[R]) error {
		h, serr := serviceAs[ExceptionHandler[M, R, E]](svc, b.Interface)
		if serr != nil {
			return serr
		}
		return h.Handle(ctx, m.(M), err.(E), state)
	})
	return b
}

var errorType = typeOf[error]()

// level is one step of an error's type hierarchy, with the value of that type
type level struct {
	typ reflect.Type
	err error
}

// hierarchy lists the types an error can be matched as, most derived first: each
// error of the wrap chain followed by the error types it embeds, and finally the
// error interface itself. A type is listed once, at its first occurrence.
func hierarchy(err error) []level {
	var levels []level
	seen := map[reflect.Type]bool{}
	add := func(t reflect.Type, e error) {
		if t == nil || seen[t] {
			return
		}
		seen[t] = true
		levels = append(levels, level{t, e})
	}

	var walk func(error)
	walk = func(e error) {
		if e == nil {
			return
		}
		add(reflect.TypeOf(e), e)
		embedded(reflect.ValueOf(e), add)

		switch u := e.(type) {
		case interface{ Unwrap() error }:
			walk(u.Unwrap())
		case interface{ Unwrap() []error }:
			for _, inner := range u.Unwrap() {
				walk(inner)
			}
		}
	}
	walk(err)

	add(errorType, err)
	return levels
}

// embedded reports the non nil error values embedded in v, recursively. An embedded
// error type plays the part of a base type.
func embedded(v reflect.Value, add func(reflect.Type, error)) {
	for v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return
	}
	for i := 0; i < v.NumField(); i++ {
		field := v.Type().Field(i)
		if !field.Anonymous || !field.IsExported() {
			continue
		}
		fv := v.Field(i)
		if field.Type.Kind() == reflect.Interface {
			if field.Type.Implements(errorType) && !fv.IsNil() {
				inner := fv.Interface().(error)
				add(reflect.TypeOf(inner), inner)
				embedded(reflect.ValueOf(inner), add)
			}
			continue
		}
		if field.Type.Implements(errorType) {
			if fv.Kind() == reflect.Ptr && fv.IsNil() {
				continue
			}
			add(field.Type, fv.Interface().(error))
		}
		embedded(fv, add)
	}
}

// exceptions walks the hierarchy of an error returned by the rest of the pipeline.
// At each level every action runs, then handlers run until one marks the state
// handled. An unhandled error is returned unchanged.
func exceptions[R any](b *Bus, r *route) layer[R] {
	return func(next handlerFunc[R]) handlerFunc[R] {
		return func(ctx context.Context, m message.Message) (result.Result[R], error) {
			res, err := next(ctx, m)
			if err == nil || (len(r.actions) == 0 && len(r.exceptions) == 0) {
				return res, err
			}

			state := &ExceptionState[R]{}
			for _, lvl := range hierarchy(err) {
				for _, a := range r.actions {
					if a.exception != lvl.typ {
						continue
					}
					if aerr := b.runAction(ctx, a, m, lvl.err); aerr != nil {
						b.logger.Warn(ctx, "Exception action failed", log.F{"action": a.Impl, "error": aerr.Error()})
					}
				}
				for _, h := range r.exceptions {
					if h.exception != lvl.typ {
						continue
					}
					if herr := runExceptionHandler(ctx, b, h, m, lvl.err, state); herr != nil {
						b.logger.Warn(ctx, "Exception handler failed", log.F{"handler": h.Impl, "error": herr.Error()})
						continue
					}
					if state.Handled() {
						b.logger.Debug(ctx, "Exception handled", log.F{"handler": h.Impl, "error": err.Error()})
						return state.Result(), nil
					}
				}
			}
			return res, err
		}
	}
}

func (b *Bus) runAction(ctx context.Context, a *Binding, m message.Message, err error) error {
	svc, serr := b.resolve(ctx, a)
	if serr != nil {
		return serr
	}
	switch call := a.call.(type) {
	case actionCall:
		return call(ctx, svc, m, err)
	}
	return nil
}

func runExceptionHandler[R any](ctx context.Context, b *Bus, h *Binding, m message.Message, err error, state *ExceptionState[R]) error {
	svc, serr := b.resolve(ctx, h)
	if serr != nil {
		return serr
	}
	switch call := h.call.(type) {
	case exceptionCall[R]:
		return call(ctx, svc, m, err, state)
	}
	return nil
}
