package bus_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/GabrielCarpr/mediator/bus"
	"github.com/GabrielCarpr/mediator/result"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func failing(err error) bus.Binding {
	return bus.OnCommand[Ping, string](bus.CommandHandlerFunc[Ping, string](
		func(ctx context.Context, p Ping) (result.Result[string], error) {
			return result.Result[string]{}, err
		},
	))
}

func action[E error](rec *recorder, name string) bus.Binding {
	return bus.OnExceptionAction[Ping, E](bus.ExceptionActionFunc[Ping, E](
		func(ctx context.Context, p Ping, err E) error {
			rec.add(name)
			return nil
		},
	))
}

func TestExceptionHandlerShortCircuits(t *testing.T) {
	rec := &recorder{}
	handler := bus.OnException[Ping, string, BaseErr](bus.ExceptionHandlerFunc[Ping, string, BaseErr](
		func(ctx context.Context, p Ping, err BaseErr, state *bus.ExceptionState[string]) error {
			rec.add(fmt.Sprintf("handled %d", err.Code))
			state.SetHandled(result.Ok("recovered"))
			return nil
		},
	))
	root := bus.OnException[Ping, string, error](bus.ExceptionHandlerFunc[Ping, string, error](
		func(ctx context.Context, p Ping, err error, state *bus.ExceptionState[string]) error {
			rec.add("root")
			state.SetHandled(result.Ok("root"))
			return nil
		},
	))
	b := newBus(t, nil, bus.Use(
		failing(DerivedErr{BaseErr: BaseErr{Code: 4}, Detail: "x"}),
		root,
		handler,
		action[DerivedErr](rec, "derived action"),
		action[error](rec, "root action"),
	))

	res, err := bus.Send[string](context.Background(), b, Ping{})

	require.NoError(t, err)
	assert.Equal(t, "recovered", res.Value())
	assert.Equal(t, []string{"derived action", "handled 4"}, rec.list(),
		"the more specific level runs first, and nothing runs after the error is handled")
}

func TestExceptionActionsDontHandle(t *testing.T) {
	rec := &recorder{}
	b := newBus(t, nil, bus.Use(
		failing(errBoom),
		action[error](rec, "first"),
		action[error](rec, "second"),
	))

	_, err := bus.Send[string](context.Background(), b, Ping{})

	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, []string{"first", "second"}, rec.list())
}

func TestExceptionHandlerMayDecline(t *testing.T) {
	declined := bus.OnException[Ping, string, error](bus.ExceptionHandlerFunc[Ping, string, error](
		func(ctx context.Context, p Ping, err error, state *bus.ExceptionState[string]) error {
			return nil
		},
	))
	b := newBus(t, nil, bus.Use(failing(errBoom), declined))

	_, err := bus.Send[string](context.Background(), b, Ping{})
	assert.ErrorIs(t, err, errBoom)
}

func TestUnmatchedExceptionPassesThrough(t *testing.T) {
	rec := &recorder{}
	b := newBus(t, nil, bus.Use(failing(errBoom), action[BaseErr](rec, "base")))

	_, err := bus.Send[string](context.Background(), b, Ping{})

	assert.ErrorIs(t, err, errBoom)
	assert.Empty(t, rec.list())
}

func TestFailingActionIsIgnored(t *testing.T) {
	broken := bus.OnExceptionAction[Ping, error](bus.ExceptionActionFunc[Ping, error](
		func(ctx context.Context, p Ping, err error) error {
			return fmt.Errorf("action broke")
		},
	))
	handler := bus.OnException[Ping, string, error](bus.ExceptionHandlerFunc[Ping, string, error](
		func(ctx context.Context, p Ping, err error, state *bus.ExceptionState[string]) error {
			state.SetHandled(result.Fail[string](err))
			return nil
		},
	))
	b := newBus(t, nil, bus.Use(failing(errBoom), broken, handler))

	res, err := bus.Send[string](context.Background(), b, Ping{})

	require.NoError(t, err)
	assert.True(t, res.IsFailure())
}

func TestExceptionHierarchyFollowsWrapChain(t *testing.T) {
	rec := &recorder{}
	wrapped := fmt.Errorf("saving ping: %w", DerivedErr{BaseErr: BaseErr{Code: 9}, Detail: "disk"})
	b := newBus(t, nil, bus.Use(
		failing(wrapped),
		action[error](rec, "root"),
		action[BaseErr](rec, "base"),
		action[DerivedErr](rec, "derived"),
	))

	_, err := bus.Send[string](context.Background(), b, Ping{})

	var derived DerivedErr
	require.ErrorAs(t, err, &derived)
	assert.Equal(t, wrapped, err, "an unhandled error is returned unchanged")
	assert.Equal(t, []string{"derived", "base", "root"}, rec.list())
}

func TestWrappedErrorHandledAtMostSpecificLevel(t *testing.T) {
	rec := &recorder{}
	base := bus.OnException[Ping, string, BaseErr](bus.ExceptionHandlerFunc[Ping, string, BaseErr](
		func(ctx context.Context, p Ping, err BaseErr, state *bus.ExceptionState[string]) error {
			rec.add(fmt.Sprintf("base %d", err.Code))
			state.SetHandled(result.Ok("from base"))
			return nil
		},
	))
	root := bus.OnException[Ping, string, error](bus.ExceptionHandlerFunc[Ping, string, error](
		func(ctx context.Context, p Ping, err error, state *bus.ExceptionState[string]) error {
			rec.add("root")
			state.SetHandled(result.Ok("from root"))
			return nil
		},
	))
	b := newBus(t, nil, bus.Use(
		failing(fmt.Errorf("outer: %w", fmt.Errorf("inner: %w", DerivedErr{BaseErr: BaseErr{Code: 3}}))),
		root,
		base,
		action[error](rec, "root action"),
	))

	res, err := bus.Send[string](context.Background(), b, Ping{})

	require.NoError(t, err)
	assert.Equal(t, "from base", res.Value())
	assert.Equal(t, []string{"base 3"}, rec.list())
}
