package bus_test

import (
	"context"
	"reflect"
	"testing"

	"github.com/GabrielCarpr/mediator/bus"
	"github.com/GabrielCarpr/mediator/bus/message"
	"github.com/GabrielCarpr/mediator/result"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dynamicBus(t *testing.T) (*bus.Bus, *AuditHandler) {
	audit := &AuditHandler{}
	b := newBus(t, nil, bus.Use(
		pingHandler(),
		bus.OnQuery[Count, int](CountHandler{}),
		bus.OnEvent[Happened](audit),
		numbers(),
	))
	return b, audit
}

func TestDynamicDispatchByKind(t *testing.T) {
	b, audit := dynamicBus(t)
	ctx := context.Background()

	res, err := b.Send(ctx, Ping{Name: "dyn"})
	require.NoError(t, err)
	assert.Equal(t, "pong dyn", res.Value())

	q, err := b.Query(ctx, Count{N: 3})
	require.NoError(t, err)
	assert.Equal(t, 3, q.Value())

	require.NoError(t, b.Publish(ctx, Happened{ID: 9}))
	assert.Equal(t, []int{9}, audit.Seen())

	s, err := b.CreateStream(ctx, Numbers{Upto: 2})
	require.NoError(t, err)
	items, err := bus.Collect(s)
	require.NoError(t, err)
	assert.Equal(t, []any{1, 2}, items)
}

func TestDispatch(t *testing.T) {
	b, audit := dynamicBus(t)
	ctx := context.Background()

	out, err := b.Dispatch(ctx, Ping{Name: "d"})
	require.NoError(t, err)
	res, ok := out.(result.Result[any])
	require.True(t, ok)
	assert.Equal(t, "pong d", res.Value())

	out, err = b.Dispatch(ctx, Happened{ID: 1})
	require.NoError(t, err)
	assert.Nil(t, out)
	assert.Equal(t, []int{1}, audit.Seen())

	out, err = b.Dispatch(ctx, Numbers{Upto: 1})
	require.NoError(t, err)
	s, ok := out.(*bus.Stream[any])
	require.True(t, ok)
	s.Close()

	_, err = b.Dispatch(ctx, 12)
	assert.ErrorIs(t, err, bus.ErrNotAMessage)

	_, err = b.Dispatch(ctx, nil)
	assert.ErrorIs(t, err, bus.ErrInvalidArgument)
}

func TestDynamicKindMismatch(t *testing.T) {
	b, _ := dynamicBus(t)
	ctx := context.Background()

	_, err := b.Query(ctx, Ping{})
	assert.ErrorIs(t, err, bus.ErrNotAMessage)
	_, err = b.CreateStream(ctx, Count{})
	assert.ErrorIs(t, err, bus.ErrNotAMessage)
	assert.ErrorIs(t, b.Publish(ctx, Ping{}), bus.ErrNotAMessage)
}

func TestDynamicTypedResultsAgree(t *testing.T) {
	b, _ := dynamicBus(t)
	ctx := context.Background()

	typed, err := bus.Ask[int](ctx, b, Count{N: 5})
	require.NoError(t, err)
	erased, err := b.Query(ctx, Count{N: 5})
	require.NoError(t, err)

	assert.Equal(t, typed.Status(), erased.Status())
	assert.Equal(t, typed.Value(), erased.Value())
}

func TestCatalog(t *testing.T) {
	b, _ := dynamicBus(t)

	typ, ok := b.Lookup("bus_test.Ping")
	require.True(t, ok)
	assert.Equal(t, reflect.TypeOf(Ping{}), typ)

	_, ok = b.Lookup("bus_test.Nope")
	assert.False(t, ok)

	assert.ElementsMatch(t, []string{"bus_test.Count"}, b.MessageNames(message.Query))
	assert.Len(t, b.MessageNames(0), 4)

	v, ok := b.NewMessage("bus_test.Count")
	require.True(t, ok)
	assert.IsType(t, &Count{}, v)
	assert.Equal(t, "bus_test.Count", bus.MessageName(reflect.TypeOf(v)))
}

func TestDecodeTargetAllocatesPointerMessages(t *testing.T) {
	b := newBus(t, nil, bus.Messages(&Ping{}, Count{}))

	target, decoded, ok := b.DecodeTarget("bus_test.Ping")
	require.True(t, ok)
	target.(*Ping).Name = "decoded"
	m := decoded()
	require.IsType(t, &Ping{}, m)
	assert.Same(t, target, m)
	assert.Equal(t, "decoded", m.(*Ping).Name)

	target, decoded, ok = b.DecodeTarget("bus_test.Count")
	require.True(t, ok)
	assert.IsType(t, &Count{}, target)
	assert.IsType(t, Count{}, decoded())

	_, _, ok = b.DecodeTarget("bus_test.Nope")
	assert.False(t, ok)
}

func TestMessagesCataloguesWithoutHandlers(t *testing.T) {
	b := newBus(t, nil, bus.Messages(Envelope[string]{}))

	_, ok := b.Lookup("bus_test.Envelope[string]")
	assert.True(t, ok)
}
