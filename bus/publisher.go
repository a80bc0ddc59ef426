package bus

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/GabrielCarpr/mediator/bus/message"
	"github.com/GabrielCarpr/mediator/log"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"
)

// EventPublisher fans an event out to its handlers, one EventNext per handler
type EventPublisher interface {
	Publish(context.Context, []EventNext) error
}

// Parallel runs every handler concurrently and waits for all of them. The failures of
// every handler are returned together once the last one finished.
type Parallel struct{}

func (Parallel) Publish(ctx context.Context, handlers []EventNext) error {
	var (
		g    errgroup.Group
		mx   sync.Mutex
		errs *multierror.Error
	)
	for _, h := range handlers {
		h := h
		g.Go(func() error {
			if err := h(ctx); err != nil {
				mx.Lock()
				errs = multierror.Append(errs, err)
				mx.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errs.ErrorOrNil()
}

// Sequential runs handlers one at a time, in registration order, stopping at the
// first failure
type Sequential struct{}

func (Sequential) Publish(ctx context.Context, handlers []EventNext) error {
	for _, h := range handlers {
		if err := h(ctx); err != nil {
			return err
		}
	}
	return nil
}

// ParsePublisher reads "parallel" or "sequential", case insensitively
func ParsePublisher(name string) (EventPublisher, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "parallel":
		return Parallel{}, nil
	case "sequential":
		return Sequential{}, nil
	}
	return nil, fmt.Errorf("bus: unknown event publisher %q", name)
}

// publish runs the event middlewares around the publisher of e's type, which calls
// every handler
func (b *Bus) publish(ctx context.Context, e message.Message) error {
	if b.closed.Load() {
		return ErrClosed
	}
	t := reflect.TypeOf(e)
	r := b.registry.route(t)

	ctx, done, err := b.scope(ctx)
	if err != nil {
		return err
	}
	defer done()

	b.logger.Info(ctx, "Publishing event", log.F{"event": MessageName(t), "handlers": fmt.Sprint(len(r.handlers))})

	publisher := b.publisher
	if p, ok := b.publishers[typeKey(t)]; ok {
		publisher = p
	}

	terminal := func(ctx context.Context, m message.Message) error {
		nexts := make([]EventNext, len(r.handlers))
		for i, h := range r.handlers {
			nexts[i] = b.eventNext(h, m)
		}
		return publisher.Publish(ctx, nexts)
	}
	layers := make([]func(eventFunc) eventFunc, len(r.middlewares))
	for i, mw := range r.middlewares {
		layers[i] = b.eventMiddlewareLayer(mw)
	}

	if err := Chain(eventFunc(terminal), layers...)(ctx, e); err != nil {
		b.logger.Error(ctx, "Event failed", log.F{"event": MessageName(t), "error": err.Error()})
		return err
	}
	b.logger.Info(ctx, "Event completed", log.F{"event": MessageName(t)})
	return nil
}

func (b *Bus) eventNext(h *Binding, m message.Message) EventNext {
	return func(ctx context.Context) error {
		svc, err := b.resolve(ctx, h)
		if err != nil {
			return err
		}
		switch call := h.call.(type) {
		case eventCall:
			return call(ctx, svc, m)
		case reflectCall:
			return call.run(svc, reflect.ValueOf(ctx), reflect.ValueOf(m))
		case openCall:
			open, err := serviceAs[OpenEventHandler](svc, h.Interface)
			if err != nil {
				return err
			}
			return open.Handle(ctx, m)
		}
		return fmt.Errorf("bus: %s can't handle %T", h, m)
	}
}

func (b *Bus) eventMiddlewareLayer(mw *Binding) eventLayer {
	return func(next eventFunc) eventFunc {
		return func(ctx context.Context, m message.Message) error {
			svc, err := b.resolve(ctx, mw)
			if err != nil {
				return err
			}
			proceed := func(ctx context.Context) error {
				return next(ctx, m)
			}
			switch call := mw.call.(type) {
			case eventMiddlewareCall:
				return call(ctx, svc, m, proceed)
			case openCall:
				open, err := serviceAs[OpenEventMiddleware](svc, mw.Interface)
				if err != nil {
					return err
				}
				return open.Handle(ctx, m, proceed)
			}
			return fmt.Errorf("bus: %s can't wrap %T", mw, m)
		}
	}
}
