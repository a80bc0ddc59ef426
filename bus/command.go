package bus

import (
	"context"

	"github.com/GabrielCarpr/mediator/bus/message"
	"github.com/GabrielCarpr/mediator/result"
)

// Request is a command or a query producing a result.Result[R]
type Request[R any] interface {
	message.Message

	yields() R
}

// Command is a value object instructing the system to change state.
// Command <-> handler has a 1:1 relationship.
type Command[R any] interface {
	Request[R]

	isCommand()
}

// CommandType is embedded in commands, binding the command to its result type:
//
//	type Register struct {
//		bus.CommandType[uuid.UUID]
//		Email string
//	}
type CommandType[R any] struct{}

// MessageType implements the message.Message interface
func (CommandType[R]) MessageType() message.Type {
	return message.Command
}

func (CommandType[R]) yields() (r R) { return }

func (CommandType[R]) isCommand() {}

func (CommandType[R]) invoker() requestInvoker {
	return func(ctx context.Context, b *Bus, m message.Message) (result.Result[any], error) {
		res, err := dispatch[R](ctx, b, message.Command, m)
		return res.Erase(), err
	}
}

// RequestHandler handles one command or query type
type RequestHandler[M Request[R], R any] interface {
	Handle(context.Context, M) (result.Result[R], error)
}

// CommandHandler executes the stateful logic a command requests
type CommandHandler[C Command[R], R any] interface {
	Handle(context.Context, C) (result.Result[R], error)
}

// CommandHandlerFunc adapts a function to a CommandHandler
type CommandHandlerFunc[C Command[R], R any] func(context.Context, C) (result.Result[R], error)

func (f CommandHandlerFunc[C, R]) Handle(ctx context.Context, c C) (result.Result[R], error) {
	return f(ctx, c)
}

// Next continues a command or query pipeline
type Next[R any] func(context.Context) (result.Result[R], error)

// CommandMiddleware wraps the handling of one command type
type CommandMiddleware[C Command[R], R any] interface {
	Handle(context.Context, C, Next[R]) (result.Result[R], error)
}

type CommandMiddlewareFunc[C Command[R], R any] func(context.Context, C, Next[R]) (result.Result[R], error)

func (f CommandMiddlewareFunc[C, R]) Handle(ctx context.Context, c C, next Next[R]) (result.Result[R], error) {
	return f(ctx, c, next)
}

// OnCommand binds h as the handler of C
func OnCommand[C Command[R], R any](h CommandHandler[C, R]) Binding {
	return requestHandler[C, R](message.Command, "CommandHandler", h)
}

// OnRequest binds h as the handler of M, a command or a query
func OnRequest[M Request[R], R any](h RequestHandler[M, R]) Binding {
	t := typeOf[M]()
	kind := prototype(t).(message.Message).MessageType()
	name := "QueryHandler"
	if kind == message.Command {
		name = "CommandHandler"
	}
	return requestHandler[M, R](kind, name, h)
}

func requestHandler[M Request[R], R any](kind message.Type, name string, h RequestHandler[M, R]) Binding {
	b := Binding{
		Kind:      kind,
		Role:      HandlerRole,
		Interface: capability(name, typeOf[M](), typeOf[R]()),
		Impl:      implName(h),
		message:   typeOf[M](),
		instance:  h,
	}
	b.call = requestCall[R](func(ctx context.Context, svc interface{}, m message.Message) (result.Result[R], error) {
		h, err := serviceAs[RequestHandler[M, R]](svc, b.Interface)
		if err != nil {
			return result.Result[R]{}, err
		}
		return h.Handle(ctx, m.(M))
	})
	return b
}

// WrapCommand binds mw as a middleware of C
func WrapCommand[C Command[R], R any](mw CommandMiddleware[C, R]) Binding {
	return requestMiddleware[C, R](message.Command, "CommandMiddleware", mw)
}

func requestMiddleware[M Request[R], R any](kind message.Type, name string, mw interface {
	Handle(context.Context, M, Next[R]) (result.Result[R], error)
}) Binding {
	b := Binding{
		Kind:      kind,
		Role:      MiddlewareRole,
		Interface: capability(name, typeOf[M](), typeOf[R]()),
		Impl:      implName(mw),
		message:   typeOf[M](),
		instance:  mw,
	}
	b.call = requestMiddlewareCall[R](func(ctx context.Context, svc interface{}, m message.Message, next Next[R]) (result.Result[R], error) {
		mw, err := serviceAs[interface {
			Handle(context.Context, M, Next[R]) (result.Result[R], error)
		}](svc, b.Interface)
		if err != nil {
			return result.Result[R]{}, err
		}
		return mw.Handle(ctx, m.(M), next)
	})
	return b
}

// Send dispatches a command to its handler through the command pipeline
func Send[R any](ctx context.Context, b *Bus, cmd Command[R]) (result.Result[R], error) {
	if isNil(cmd) {
		return result.Result[R]{}, ErrInvalidArgument
	}
	return dispatch[R](ctx, b, message.Command, cmd)
}
