package bus_test

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
	"testing"

	"github.com/GabrielCarpr/mediator/bus"
	"github.com/GabrielCarpr/mediator/log"
	"github.com/GabrielCarpr/mediator/result"
	"github.com/stretchr/testify/require"
)

type Ping struct {
	bus.CommandType[string]

	Name string `json:"name"`
}

type PingHandler struct{}

func (PingHandler) Handle(ctx context.Context, p Ping) (result.Result[string], error) {
	return result.Ok("pong " + p.Name), nil
}

type Count struct {
	bus.QueryType[int]

	N int `json:"n"`
}

type CountHandler struct{}

func (CountHandler) Handle(ctx context.Context, c Count) (result.Result[int], error) {
	return result.Ok(c.N), nil
}

type Happened struct {
	bus.EventType

	ID int `json:"id"`
}

type AuditHandler struct {
	mx   sync.Mutex
	seen []int
}

func (h *AuditHandler) Handle(ctx context.Context, e Happened) error {
	h.mx.Lock()
	defer h.mx.Unlock()
	h.seen = append(h.seen, e.ID)
	return nil
}

func (h *AuditHandler) Seen() []int {
	h.mx.Lock()
	defer h.mx.Unlock()
	return append([]int(nil), h.seen...)
}

type Numbers struct {
	bus.StreamType[int]

	Upto int
}

type NumbersHandler struct{}

func (NumbersHandler) Handle(ctx context.Context, n Numbers) iter.Seq2[int, error] {
	return func(yield func(int, error) bool) {
		for i := 1; i <= n.Upto; i++ {
			if !yield(i, nil) {
				return
			}
		}
	}
}

// Box is a generic query, for open handlers
type Box[T any] struct {
	bus.QueryType[T]

	Value T
}

// Validator is a pre-processor found by the scan
type Validator struct{}

func (Validator) Process(ctx context.Context, p Ping) error {
	if p.Name == "" {
		return errEmptyName
	}
	return nil
}

var (
	errEmptyName = errors.New("name is required")
	errBoom      = errors.New("boom")
)

// BaseErr and DerivedErr form an error hierarchy through embedding
type BaseErr struct {
	Code int
}

func (e BaseErr) Error() string {
	return fmt.Sprintf("base error %d", e.Code)
}

type DerivedErr struct {
	BaseErr

	Detail string
}

type recorder struct {
	mx    sync.Mutex
	calls []string
}

func (r *recorder) add(call string) {
	r.mx.Lock()
	defer r.mx.Unlock()
	r.calls = append(r.calls, call)
}

func (r *recorder) list() []string {
	r.mx.Lock()
	defer r.mx.Unlock()
	return append([]string(nil), r.calls...)
}

func tag(rec *recorder, name string) bus.Binding {
	return bus.WrapCommand[Ping, string](bus.CommandMiddlewareFunc[Ping, string](
		func(ctx context.Context, p Ping, next bus.Next[string]) (result.Result[string], error) {
			rec.add(name + " before")
			res, err := next(ctx)
			rec.add(name + " after")
			return res, err
		},
	))
}

func newBus(t *testing.T, mods []bus.Module, configs ...bus.Config) *bus.Bus {
	t.Helper()
	configs = append([]bus.Config{bus.WithLogger(log.Discard())}, configs...)
	b, err := bus.New(mods, configs...)
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	return b
}

func pingHandler() bus.Binding {
	return bus.OnCommand[Ping, string](PingHandler{})
}
