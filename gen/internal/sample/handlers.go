package sample

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"sync"
	"time"

	"github.com/GabrielCarpr/mediator/bus"
	"github.com/GabrielCarpr/mediator/result"
)

var ErrNoEmail = errors.New("email is required")

type RegisterHandler struct{}

func (RegisterHandler) Handle(ctx context.Context, r Register) (result.Result[string], error) {
	return result.Ok("registered " + r.Email), nil
}

type LookupHandler struct{}

func (LookupHandler) Handle(ctx context.Context, l Lookup) (result.Result[int], error) {
	return result.Ok(len(l.Email)), nil
}

// Mailer records the addresses it was told about
type Mailer struct {
	mx   sync.Mutex
	sent []string
}

func (m *Mailer) Handle(ctx context.Context, e Registered) error {
	m.mx.Lock()
	defer m.mx.Unlock()
	m.sent = append(m.sent, e.Email)
	return nil
}

func (m *Mailer) Sent() []string {
	m.mx.Lock()
	defer m.mx.Unlock()
	return append([]string(nil), m.sent...)
}

type TailHandler struct{}

func (TailHandler) Handle(ctx context.Context, t Tail) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for i := 0; i < t.N; i++ {
			if !yield(fmt.Sprintf("line %d", i), nil) {
				return
			}
		}
	}
}

type Validator struct{}

func (Validator) Process(ctx context.Context, r Register) error {
	if strings.TrimSpace(r.Email) == "" {
		return ErrNoEmail
	}
	return nil
}

type Auditor struct{}

func (Auditor) Process(ctx context.Context, r Register, res result.Result[string]) error {
	if res.IsNotSuccess() {
		return fmt.Errorf("registering %s: %s", r.Email, res.Status())
	}
	return nil
}

// Timing is a middleware, bound by hand where its order matters
type Timing struct{}

func (Timing) Handle(ctx context.Context, r Register, next bus.Next[string]) (result.Result[string], error) {
	start := time.Now()
	res, err := next(ctx)
	return res.AddReason(time.Since(start).String()), err
}

// Clock handles something that isn't a message
type Clock struct{}

func (Clock) Handle(ctx context.Context, t time.Time) error {
	return nil
}
