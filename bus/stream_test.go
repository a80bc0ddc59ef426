package bus_test

import (
	"context"
	"iter"
	"testing"

	"github.com/GabrielCarpr/mediator/bus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func numbers() bus.Binding {
	return bus.OnStream[Numbers, int](NumbersHandler{})
}

func TestStreamIsLazy(t *testing.T) {
	produced := 0
	h := bus.OnStream[Numbers, int](bus.StreamHandlerFunc[Numbers, int](
		func(ctx context.Context, n Numbers) iter.Seq2[int, error] {
			return func(yield func(int, error) bool) {
				for i := 1; i <= n.Upto; i++ {
					produced++
					if !yield(i, nil) {
						return
					}
				}
			}
		},
	))
	b := newBus(t, nil, bus.Use(h))

	s, err := bus.CreateStream[int](context.Background(), b, Numbers{Upto: 10})
	require.NoError(t, err)
	assert.Zero(t, produced)

	require.True(t, s.Next())
	require.True(t, s.Next())
	require.NoError(t, s.Close())

	assert.Equal(t, 2, produced)
	assert.False(t, s.Next())
}

func TestStreamStopsOnCancellation(t *testing.T) {
	b := newBus(t, nil, bus.Use(numbers()))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s, err := bus.CreateStream[int](ctx, b, Numbers{Upto: 5})
	require.NoError(t, err)

	var got []int
	for s.Next() {
		got = append(got, s.Value())
		if len(got) == 2 {
			cancel()
		}
	}

	assert.Equal(t, []int{1, 2}, got)
	assert.ErrorIs(t, s.Err(), context.Canceled)
	assert.Equal(t, 2, s.Count())
}

func TestStreamFailureKeepsPulledItems(t *testing.T) {
	h := bus.OnStream[Numbers, int](bus.StreamHandlerFunc[Numbers, int](
		func(ctx context.Context, n Numbers) iter.Seq2[int, error] {
			return func(yield func(int, error) bool) {
				if !yield(1, nil) {
					return
				}
				yield(0, errBoom)
			}
		},
	))
	b := newBus(t, nil, bus.Use(h))

	s, err := bus.CreateStream[int](context.Background(), b, Numbers{})
	require.NoError(t, err)
	items, err := bus.Collect(s)

	assert.Equal(t, []int{1}, items)
	assert.ErrorIs(t, err, errBoom)
}

func TestStreamMiddleware(t *testing.T) {
	double := bus.WrapStream[Numbers, int](bus.StreamMiddlewareFunc[Numbers, int](
		func(ctx context.Context, n Numbers, next bus.StreamNext[int]) iter.Seq2[int, error] {
			return func(yield func(int, error) bool) {
				for v, err := range next(ctx) {
					if !yield(v*2, err) {
						return
					}
				}
			}
		},
	))
	b := newBus(t, nil, bus.Use(numbers(), double))

	s, err := bus.CreateStream[int](context.Background(), b, Numbers{Upto: 3})
	require.NoError(t, err)
	items, err := bus.Collect(s)

	require.NoError(t, err)
	assert.Equal(t, []int{2, 4, 6}, items)
}

func TestStreamAllAndForward(t *testing.T) {
	b := newBus(t, nil, bus.Use(numbers()))
	ctx := context.Background()

	s, err := bus.CreateStream[int](ctx, b, Numbers{Upto: 3})
	require.NoError(t, err)
	sum := 0
	for v, err := range s.All() {
		require.NoError(t, err)
		sum += v
	}
	assert.Equal(t, 6, sum)

	s, err = bus.CreateStream[int](ctx, b, Numbers{Upto: 4})
	require.NoError(t, err)
	ch := make(chan int, 4)
	n, err := bus.Forward(ctx, s, ch)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	close(ch)
	var got []int
	for v := range ch {
		got = append(got, v)
	}
	assert.Equal(t, []int{1, 2, 3, 4}, got)
}

func TestStreamWithoutHandler(t *testing.T) {
	b := newBus(t, nil)

	_, err := bus.CreateStream[int](context.Background(), b, Numbers{})
	assert.ErrorIs(t, err, bus.ErrNoHandler)
}
