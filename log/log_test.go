package log_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/GabrielCarpr/mediator/log"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestWithIDIsStable(t *testing.T) {
	ctx := log.WithID(context.Background())
	id := log.GetID(ctx)

	assert.NotEqual(t, uuid.Nil, id)
	assert.Equal(t, id, log.GetID(log.WithID(ctx)))
	assert.Equal(t, uuid.Nil, log.GetID(context.Background()))
}

func TestWithGivenIDReplaces(t *testing.T) {
	id := uuid.New()
	ctx := log.WithGivenID(log.WithID(context.Background()), id)

	assert.Equal(t, id, log.GetID(ctx))
	assert.Equal(t, id, log.GetID(log.WithID(ctx)))
}

func TestLoggerWritesFieldsAndID(t *testing.T) {
	buf := &bytes.Buffer{}
	l := log.New(buf, log.DEBUG)
	ctx := log.WithID(context.Background())

	l.Info(ctx, "Dispatching command", log.F{"command": "ping"})

	out := buf.String()
	assert.Contains(t, out, "Dispatching command")
	assert.Contains(t, out, "command=ping")
	assert.Contains(t, out, log.GetID(ctx).String())
}

func TestLoggerRespectsLevel(t *testing.T) {
	buf := &bytes.Buffer{}
	l := log.New(buf, log.WARN)

	l.Info(context.Background(), "quiet", log.F{})
	assert.Empty(t, buf.String())

	l.Warn(context.Background(), "loud", log.F{})
	assert.Contains(t, buf.String(), "loud")
}

func TestErrorReturnsError(t *testing.T) {
	l := log.New(&bytes.Buffer{}, log.INFO)
	cause := errors.New("broken")

	assert.Equal(t, cause, l.Error(context.Background(), cause, log.F{}))
	assert.EqualError(t, l.Error(context.Background(), "text", log.F{}), "text")
}

func TestSetDefault(t *testing.T) {
	previous := log.Default()
	defer log.SetDefault(previous)

	buf := &bytes.Buffer{}
	log.SetDefault(log.New(buf, log.INFO))
	log.Info(context.Background(), "through default", log.F{})

	assert.Contains(t, buf.String(), "through default")
}
