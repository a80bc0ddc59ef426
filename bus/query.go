package bus

import (
	"context"

	"github.com/GabrielCarpr/mediator/bus/message"
	"github.com/GabrielCarpr/mediator/result"
)

// Query is a read only request for data. Query <-> handler has a 1:1 relationship.
type Query[R any] interface {
	Request[R]

	isQuery()
}

// QueryType is embedded in queries, binding the query to its result type
type QueryType[R any] struct{}

// MessageType implements the message.Message interface
func (QueryType[R]) MessageType() message.Type {
	return message.Query
}

func (QueryType[R]) yields() (r R) { return }

func (QueryType[R]) isQuery() {}

func (QueryType[R]) invoker() requestInvoker {
	return func(ctx context.Context, b *Bus, m message.Message) (result.Result[any], error) {
		res, err := dispatch[R](ctx, b, message.Query, m)
		return res.Erase(), err
	}
}

// QueryHandler answers one query type
type QueryHandler[Q Query[R], R any] interface {
	Handle(context.Context, Q) (result.Result[R], error)
}

type QueryHandlerFunc[Q Query[R], R any] func(context.Context, Q) (result.Result[R], error)

func (f QueryHandlerFunc[Q, R]) Handle(ctx context.Context, q Q) (result.Result[R], error) {
	return f(ctx, q)
}

// QueryMiddleware wraps the handling of one query type
type QueryMiddleware[Q Query[R], R any] interface {
	Handle(context.Context, Q, Next[R]) (result.Result[R], error)
}

type QueryMiddlewareFunc[Q Query[R], R any] func(context.Context, Q, Next[R]) (result.Result[R], error)

func (f QueryMiddlewareFunc[Q, R]) Handle(ctx context.Context, q Q, next Next[R]) (result.Result[R], error) {
	return f(ctx, q, next)
}

// OnQuery binds h as the handler of Q
func OnQuery[Q Query[R], R any](h QueryHandler[Q, R]) Binding {
	return requestHandler[Q, R](message.Query, "QueryHandler", h)
}

// WrapQuery binds mw as a middleware of Q
func WrapQuery[Q Query[R], R any](mw QueryMiddleware[Q, R]) Binding {
	return requestMiddleware[Q, R](message.Query, "QueryMiddleware", mw)
}

// Ask routes a query to its handler through the query pipeline
func Ask[R any](ctx context.Context, b *Bus, q Query[R]) (result.Result[R], error) {
	if isNil(q) {
		return result.Result[R]{}, ErrInvalidArgument
	}
	return dispatch[R](ctx, b, message.Query, q)
}
