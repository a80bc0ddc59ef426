package errors

import (
	"context"
	stderrors "errors"
	"reflect"

	"github.com/GabrielCarpr/mediator/bus"
	"github.com/GabrielCarpr/mediator/bus/message"
	"github.com/GabrielCarpr/mediator/log"
	"github.com/GabrielCarpr/mediator/result"
)

// Hide wraps every message of kind, a command or a query, so that only Errors escape
// to the port. Anything else is logged and replaced by InternalServerError.
func Hide(kind message.Type) bus.Binding {
	return bus.WrapAll(kind, bus.OpenMiddlewareFunc(
		func(ctx context.Context, m message.Message, next bus.OpenNext) (result.Result[any], error) {
			res, err := next(ctx)
			if err == nil {
				return res, nil
			}
			var visible Error
			if stderrors.As(err, &visible) {
				return res, visible
			}
			log.Error(ctx, err, log.F{"message": bus.MessageName(reflect.TypeOf(m))})
			return res, InternalServerError
		},
	))
}
