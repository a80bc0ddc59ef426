package bus

import (
	"context"
	"fmt"

	"github.com/GabrielCarpr/mediator/bus/message"
	"github.com/GabrielCarpr/mediator/result"
)

// Executor runs a pipeline step under an external retry or circuit breaking policy.
// The executors of the resilience package implement it.
type Executor interface {
	Execute(ctx context.Context, fn func(context.Context) error) error
}

// Retry wraps every command: after an error the rest of the pipeline runs again, up
// to n more times, until it succeeds or ctx is done. Non-success results are outcomes,
// not failures, and are never retried.
func Retry(n int) Binding {
	return WrapAll(message.Command, retry{n: n})
}

type retry struct {
	n int
}

func (r retry) Handle(ctx context.Context, m message.Message, next OpenNext) (result.Result[any], error) {
	res, err := next(ctx)
	for attempt := 1; attempt <= r.n && err != nil; attempt++ {
		if ctx.Err() != nil {
			return res, err
		}
		res, err = next(ctx)
	}
	return res, err
}

// Policy wraps every message of kind, a command or a query, running the rest of the
// pipeline through exec
func Policy(kind message.Type, exec Executor) Binding {
	return WrapAll(kind, policy{exec: exec})
}

type policy struct {
	exec Executor
}

func (p policy) Handle(ctx context.Context, m message.Message, next OpenNext) (result.Result[any], error) {
	var res result.Result[any]
	err := p.exec.Execute(ctx, func(ctx context.Context) error {
		var err error
		res, err = next(ctx)
		return err
	})
	return res, err
}

// EventPolicy wraps the publication of every event, running it through exec
func EventPolicy(exec Executor) Binding {
	return WrapAllEvents(OpenEventMiddlewareFunc(func(ctx context.Context, m message.Message, next EventNext) error {
		return exec.Execute(ctx, next)
	}))
}

// Recover wraps every message of kind, a command or a query, turning a panic of the
// rest of the pipeline into an Unexpected result
func Recover(kind message.Type) Binding {
	return WrapAll(kind, recoverer{})
}

type recoverer struct{}

func (recoverer) Handle(ctx context.Context, m message.Message, next OpenNext) (res result.Result[any], err error) {
	panicked := true
	res = result.SafeExecute(func() result.Result[any] {
		var r result.Result[any]
		r, err = next(ctx)
		panicked = false
		return r
	})
	if panicked {
		res = res.AddReason(fmt.Sprintf("%T panicked", m))
	}
	return res, err
}
