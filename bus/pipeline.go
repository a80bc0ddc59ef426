package bus

import (
	"context"
	"fmt"
	"iter"
	"reflect"

	"github.com/GabrielCarpr/mediator/bus/message"
	"github.com/GabrielCarpr/mediator/log"
	"github.com/GabrielCarpr/mediator/result"
)

// Chain composes layers around terminal. The first layer is outermost: its code
// before calling next runs first, and its code after next runs last.
func Chain[H any](terminal H, layers ...func(H) H) H {
	h := terminal
	for i := len(layers) - 1; i >= 0; i-- {
		h = layers[i](h)
	}
	return h
}

type handlerFunc[R any] func(context.Context, message.Message) (result.Result[R], error)

type layer[R any] func(handlerFunc[R]) handlerFunc[R]

type eventFunc func(context.Context, message.Message) error

type eventLayer func(eventFunc) eventFunc

type streamFunc[R any] func(context.Context, message.Message) iter.Seq2[R, error]

type streamLayer[R any] func(streamFunc[R]) streamFunc[R]

// dispatch runs a command or query through a freshly built pipeline: pre-processors,
// post-processors, exception handling, then the registered middlewares in
// registration order, around the handler.
func dispatch[R any](ctx context.Context, b *Bus, kind message.Type, m message.Message) (result.Result[R], error) {
	var zero result.Result[R]
	if b.closed.Load() {
		return zero, ErrClosed
	}

	t := reflect.TypeOf(m)
	r := b.registry.route(t)
	if r.handler == nil {
		return zero, NoHandler{Kind: kind, Message: t}
	}

	ctx, done, err := b.scope(ctx)
	if err != nil {
		return zero, err
	}
	defer done()

	fields := log.F{kind.String(): MessageName(t), "handler": r.handler.Impl}
	title := titles[kind]
	b.logger.Info(ctx, "Dispatching "+kind.String(), fields)

	layers := make([]func(handlerFunc[R]) handlerFunc[R], 0, 3+len(r.middlewares))
	layers = append(layers, preProcessors[R](b, r), postProcessors[R](b, r), exceptions[R](b, r))
	for _, mw := range r.middlewares {
		layers = append(layers, requestLayer[R](b, mw))
	}
	chain := Chain(requestTerminal[R](b, r.handler), layers...)

	res, err := chain(ctx, m)
	switch {
	case err != nil:
		b.logger.Error(ctx, title+" failed", log.F{kind.String(): MessageName(t), "error": err.Error()})
	case !res.IsSuccess():
		b.logger.Warn(ctx, title+" completed", log.F{
			kind.String(): MessageName(t),
			"status":      res.Status().String(),
			"reason":      res.Reason(),
		})
	default:
		b.logger.Info(ctx, title+" completed", log.F{kind.String(): MessageName(t), "status": res.Status().String()})
	}
	return res, err
}

var titles = map[message.Type]string{
	message.Command: "Command",
	message.Query:   "Query",
	message.Event:   "Event",
	message.Stream:  "Stream",
}

func requestTerminal[R any](b *Bus, h *Binding) handlerFunc[R] {
	return func(ctx context.Context, m message.Message) (result.Result[R], error) {
		svc, err := b.resolve(ctx, h)
		if err != nil {
			return result.Result[R]{}, err
		}
		switch call := h.call.(type) {
		case requestCall[R]:
			return call(ctx, svc, m)
		case reflectCall:
			out, err := call.invoke(svc, reflect.ValueOf(ctx), reflect.ValueOf(m))
			if err != nil {
				return result.Result[R]{}, err
			}
			return reflectResult[R](out[0]), errorOf(out)
		case openCall:
			open, err := serviceAs[OpenHandler](svc, h.Interface)
			if err != nil {
				return result.Result[R]{}, err
			}
			res, err := open.Handle(ctx, m)
			return result.Cast[R](res), err
		}
		return result.Result[R]{}, fmt.Errorf("bus: %s can't handle %T", h, m)
	}
}

func requestLayer[R any](b *Bus, mw *Binding) layer[R] {
	return func(next handlerFunc[R]) handlerFunc[R] {
		return func(ctx context.Context, m message.Message) (result.Result[R], error) {
			svc, err := b.resolve(ctx, mw)
			if err != nil {
				return result.Result[R]{}, err
			}
			switch call := mw.call.(type) {
			case requestMiddlewareCall[R]:
				return call(ctx, svc, m, func(ctx context.Context) (result.Result[R], error) {
					return next(ctx, m)
				})
			case openCall:
				open, err := serviceAs[OpenMiddleware](svc, mw.Interface)
				if err != nil {
					return result.Result[R]{}, err
				}
				res, err := open.Handle(ctx, m, func(ctx context.Context) (result.Result[any], error) {
					res, err := next(ctx, m)
					return res.Erase(), err
				})
				return result.Cast[R](res), err
			}
			return result.Result[R]{}, fmt.Errorf("bus: %s can't wrap %T", mw, m)
		}
	}
}

// openStream builds the stream pipeline of m. The request scope opened for it is
// released by finish, once the stream is exhausted or closed.
func openStream[R any](ctx context.Context, b *Bus, m message.Message) (iter.Seq2[R, error], func(int, error), error) {
	if b.closed.Load() {
		return nil, nil, ErrClosed
	}
	t := reflect.TypeOf(m)
	r := b.registry.route(t)
	if r.handler == nil {
		return nil, nil, NoHandler{Kind: message.Stream, Message: t}
	}

	ctx, done, err := b.scope(ctx)
	if err != nil {
		return nil, nil, err
	}
	b.logger.Info(ctx, "Creating stream", log.F{"stream": MessageName(t), "handler": r.handler.Impl})

	layers := make([]func(streamFunc[R]) streamFunc[R], 0, len(r.middlewares))
	for _, mw := range r.middlewares {
		layers = append(layers, streamMiddlewareLayer[R](b, mw))
	}
	chain := Chain(streamTerminal[R](b, r.handler), layers...)

	finish := func(n int, err error) {
		defer done()
		if err != nil {
			b.logger.Error(ctx, "Stream failed", log.F{"stream": MessageName(t), "items": fmt.Sprint(n), "error": err.Error()})
			return
		}
		b.logger.Info(ctx, "Stream completed", log.F{"stream": MessageName(t), "items": fmt.Sprint(n)})
	}
	return guard(ctx, chain(ctx, m)), finish, nil
}

func streamTerminal[R any](b *Bus, h *Binding) streamFunc[R] {
	return func(ctx context.Context, m message.Message) iter.Seq2[R, error] {
		return func(yield func(R, error) bool) {
			svc, err := b.resolve(ctx, h)
			if err != nil {
				var zero R
				yield(zero, err)
				return
			}
			var seq iter.Seq2[R, error]
			switch call := h.call.(type) {
			case streamCall[R]:
				seq = call(ctx, svc, m)
			case reflectCall:
				out, err := call.invoke(svc, reflect.ValueOf(ctx), reflect.ValueOf(m))
				if err != nil {
					var zero R
					yield(zero, err)
					return
				}
				seq = reflectSeq[R](out[0])
			}
			if seq == nil {
				var zero R
				yield(zero, fmt.Errorf("bus: %s produced no sequence for %T", h, m))
				return
			}
			for v, err := range guard(ctx, seq) {
				if !yield(v, err) {
					return
				}
			}
		}
	}
}

func streamMiddlewareLayer[R any](b *Bus, mw *Binding) streamLayer[R] {
	return func(next streamFunc[R]) streamFunc[R] {
		return func(ctx context.Context, m message.Message) iter.Seq2[R, error] {
			svc, err := b.resolve(ctx, mw)
			if err != nil {
				return failed[R](err)
			}
			call, ok := mw.call.(streamMiddlewareCall[R])
			if !ok {
				return failed[R](fmt.Errorf("bus: %s can't wrap %T", mw, m))
			}
			return guard(ctx, call(ctx, svc, m, func(ctx context.Context) iter.Seq2[R, error] {
				return next(ctx, m)
			}))
		}
	}
}
