package errors_test

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/GabrielCarpr/mediator/bus"
	"github.com/GabrielCarpr/mediator/bus/message"
	"github.com/GabrielCarpr/mediator/errors"
	"github.com/GabrielCarpr/mediator/log"
	"github.com/GabrielCarpr/mediator/result"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlock(t *testing.T) {
	visible := errors.Error{Code: 404, Message: "no such user"}

	assert.Equal(t, visible, errors.Block(visible))
	assert.Equal(t, visible, errors.Block(fmt.Errorf("loading: %w", visible)))
	assert.Equal(t, errors.InternalServerError, errors.Block(stderrors.New("db down")))
}

func TestFromResult(t *testing.T) {
	assert.NoError(t, errors.FromResult(result.Ok(1)))

	err := errors.FromResult(result.Missing[int]().WithReason("no such user"))
	assert.Equal(t, errors.Error{Code: 404, Message: "no such user"}, err)

	err = errors.FromResult(result.Invalid[int]())
	assert.Equal(t, errors.Error{Code: 400, Message: result.BadParameters.String()}, err)

	err = errors.FromResult(result.Unexpect[int](stderrors.New("secret detail")))
	assert.Equal(t, errors.InternalServerError, err)
}

func TestCode(t *testing.T) {
	assert.Equal(t, 403, errors.Code(result.Unauthorized))
	assert.Equal(t, 409, errors.Code(result.Already))
	assert.Equal(t, 500, errors.Code(result.Status(99)))
}

type Rename struct {
	bus.CommandType[string]

	Fail error
}

func TestHide(t *testing.T) {
	h := bus.OnCommand[Rename, string](bus.CommandHandlerFunc[Rename, string](
		func(ctx context.Context, r Rename) (result.Result[string], error) {
			if r.Fail != nil {
				return result.Result[string]{}, r.Fail
			}
			return result.Ok("renamed"), nil
		},
	))
	b, err := bus.New(nil, bus.WithLogger(log.Discard()), bus.Use(errors.Hide(message.Command), h))
	require.NoError(t, err)
	defer b.Close()
	ctx := context.Background()

	res, err := bus.Send[string](ctx, b, Rename{})
	require.NoError(t, err)
	assert.Equal(t, "renamed", res.Value())

	_, err = bus.Send[string](ctx, b, Rename{Fail: errors.Error{Code: 409, Message: "taken"}})
	assert.Equal(t, errors.Error{Code: 409, Message: "taken"}, err)

	_, err = bus.Send[string](ctx, b, Rename{Fail: stderrors.New("constraint violated")})
	assert.Equal(t, errors.InternalServerError, err)
}
