package bus

import (
	"context"
	"fmt"
	"reflect"

	"github.com/GabrielCarpr/mediator/bus/message"
	"github.com/GabrielCarpr/mediator/result"
)

// PreProcessor runs before the handler of a command or query. An error stops the
// pipeline before the handler runs.
type PreProcessor[C message.Message] interface {
	Process(context.Context, C) error
}

type PreProcessorFunc[C message.Message] func(context.Context, C) error

func (f PreProcessorFunc[C]) Process(ctx context.Context, c C) error {
	return f(ctx, c)
}

// PostProcessor runs after the handler of a command or query returned without error
type PostProcessor[C Request[R], R any] interface {
	Process(context.Context, C, result.Result[R]) error
}

type PostProcessorFunc[C Request[R], R any] func(context.Context, C, result.Result[R]) error

func (f PostProcessorFunc[C, R]) Process(ctx context.Context, c C, res result.Result[R]) error {
	return f(ctx, c, res)
}

// PreProcess binds p as a pre-processor of C
func PreProcess[C message.Message](p PreProcessor[C]) Binding {
	t := typeOf[C]()
	b := Binding{
		Role:      PreProcessorRole,
		Interface: capability("PreProcessor", t),
		Impl:      implName(p),
		message:   t,
		instance:  p,
	}
	b.Kind = prototype(t).(message.Message).MessageType()
	if b.Kind != message.Command && b.Kind != message.Query {
		b.err = fmt.Errorf("bus: pre-processors run for commands and queries, %s is a %s", t, b.Kind)
	}
	b.call = preCall(func(ctx context.Context, svc interface{}, m message.Message) error {
		p, err := serviceAs[PreProcessor[C]](svc, b.Interface)
		if err != nil {
			return err
		}
		return p.Process(ctx, m.(C))
	})
	return b
}

// PostProcess binds p as a post-processor of C
func PostProcess[C Request[R], R any](p PostProcessor[C, R]) Binding {
	t := typeOf[C]()
	b := Binding{
		Kind:      prototype(t).(message.Message).MessageType(),
		Role:      PostProcessorRole,
		Interface: capability("PostProcessor", t, typeOf[R]()),
		Impl:      implName(p),
		message:   t,
		instance:  p,
	}
	b.call = postCall[R](func(ctx context.Context, svc interface{}, m message.Message, res result.Result[R]) error {
		p, err := serviceAs[PostProcessor[C, R]](svc, b.Interface)
		if err != nil {
			return err
		}
		return p.Process(ctx, m.(C), res)
	})
	return b
}

// preProcessors runs every pre-processor of the route in registration order
func preProcessors[R any](b *Bus, r *route) layer[R] {
	return func(next handlerFunc[R]) handlerFunc[R] {
		return func(ctx context.Context, m message.Message) (result.Result[R], error) {
			for _, p := range r.pre {
				svc, err := b.resolve(ctx, p)
				if err != nil {
					return result.Result[R]{}, err
				}
				switch call := p.call.(type) {
				case preCall:
					err = call(ctx, svc, m)
				case reflectCall:
					err = call.run(svc, reflect.ValueOf(ctx), reflect.ValueOf(m))
				}
				if err != nil {
					return result.Result[R]{}, err
				}
			}
			return next(ctx, m)
		}
	}
}

// postProcessors runs every post-processor of the route after a handler returned
// without error
func postProcessors[R any](b *Bus, r *route) layer[R] {
	return func(next handlerFunc[R]) handlerFunc[R] {
		return func(ctx context.Context, m message.Message) (result.Result[R], error) {
			res, err := next(ctx, m)
			if err != nil {
				return res, err
			}
			for _, p := range r.post {
				svc, err := b.resolve(ctx, p)
				if err != nil {
					return res, err
				}
				switch call := p.call.(type) {
				case postCall[R]:
					err = call(ctx, svc, m, res)
				case reflectCall:
					err = call.run(svc, reflect.ValueOf(ctx), reflect.ValueOf(m), reflect.ValueOf(res))
				}
				if err != nil {
					return res, err
				}
			}
			return res, nil
		}
	}
}
