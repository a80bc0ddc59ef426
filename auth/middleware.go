package auth

import (
	"context"

	"github.com/GabrielCarpr/mediator/bus"
	"github.com/GabrielCarpr/mediator/bus/message"
	"github.com/GabrielCarpr/mediator/result"
)

// Guarded is implemented by messages that require scopes. Auth returns alternative
// groups of scopes, as Enforce takes them.
type Guarded interface {
	Auth(ctx context.Context) [][]string
}

// Guard wraps every message of kind, a command or a query. Guarded messages whose
// scopes the caller lacks are answered with an Unauthorized result, without reaching
// their handler.
func Guard(kind message.Type) bus.Binding {
	return bus.WrapAll(kind, bus.OpenMiddlewareFunc(
		func(ctx context.Context, m message.Message, next bus.OpenNext) (result.Result[any], error) {
			g, ok := m.(Guarded)
			if !ok {
				return next(ctx)
			}
			if err := Enforce(ctx, g.Auth(ctx)...); err != nil {
				return result.Deny[any]().WithReason(err.Error()), nil
			}
			return next(ctx)
		},
	))
}
