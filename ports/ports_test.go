package ports_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/GabrielCarpr/mediator/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitForCancel(ran *atomic.Bool) ports.PortFunc {
	return func(c context.Context) error {
		if ran != nil {
			ran.Store(true)
		}
		select {
		case <-time.After(time.Second * 3):
			return errors.New("did not cancel")
		case <-c.Done():
			return nil
		}
	}
}

func TestPortsRunsAndCancels(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond*20)
	defer cancel()

	err := ports.Ports{waitForCancel(nil)}.Run(ctx)

	require.NoError(t, err)
}

func TestPortCancelsAll(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond*50)
	defer cancel()
	var p1run, p2run atomic.Bool

	err := ports.Ports{waitForCancel(&p1run), waitForCancel(&p2run)}.Run(ctx)

	assert.NoError(t, err)
	assert.True(t, p1run.Load())
	assert.True(t, p2run.Load())
}

func TestPortsReturnWhenAllExit(t *testing.T) {
	done := ports.PortFunc(func(context.Context) error { return nil })

	err := ports.Ports{done, done}.Run(context.Background())

	assert.NoError(t, err)
}

func TestPortErrorCancelsAll(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	var ran atomic.Bool
	failing := ports.PortFunc(func(c context.Context) error {
		return errors.New("error")
	})

	err := ports.Ports{failing, waitForCancel(&ran)}.Run(ctx)

	assert.EqualError(t, err, "error")
	assert.True(t, ran.Load())
}

func TestPortPanicCancelsAll(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	panicking := ports.PortFunc(func(c context.Context) error {
		panic("oops")
	})

	err := ports.Ports{panicking, waitForCancel(nil)}.Run(ctx)

	assert.EqualError(t, err, "panic: oops")
}

func TestPortForcedAfterTimeout(t *testing.T) {
	prev := ports.ShutdownTimeout
	ports.ShutdownTimeout = 20 * time.Millisecond
	t.Cleanup(func() { ports.ShutdownTimeout = prev })
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	stuck := ports.PortFunc(func(context.Context) error {
		time.Sleep(200 * time.Millisecond)
		return nil
	})

	err := ports.Ports{stuck}.Run(ctx)

	assert.ErrorContains(t, err, "forced")
}
