// Package result holds the outcome type returned by command, query and stream handlers.
//
// A Result carries a Status, an optional value, an optional human readable reason and an
// optional cause. Business outcomes travel as Results; wiring mistakes travel as errors.
package result

import (
	"errors"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
)

// Result is the outcome of handling a message.
//
// Results are values: the With methods return a modified copy, so a Result that has
// been returned from a handler cannot be changed underneath its caller.
type Result[T any] struct {
	status Status
	value  T
	reason string
	err    error
}

// New returns an empty result with the given status
func New[T any](status Status) Result[T] {
	return Result[T]{status: status}
}

// Ok returns a successful result carrying v
func Ok[T any](v T) Result[T] {
	return Result[T]{status: Success, value: v}
}

// Fail returns a Failure carrying err as its cause
func Fail[T any](err error) Result[T] {
	r := Result[T]{status: Failure, err: err}
	if err != nil {
		r.reason = err.Error()
	}
	return r
}

func Unexpect[T any](err error) Result[T] {
	return Fail[T](err).WithStatus(Unexpected)
}

func Deny[T any]() Result[T] { return New[T](Unauthorized) }
func Exists[T any]() Result[T] { return New[T](Already) }
func Missing[T any]() Result[T] { return New[T](NotFound) }
func Prerequisites[T any]() Result[T] { return New[T](BadPrerequisites) }
func Invalid[T any]() Result[T] { return New[T](BadParameters) }
func Cancel[T any]() Result[T] { return New[T](Cancelled) }
func TimedOut[T any]() Result[T] { return New[T](Timeout) }
func Disconnected[T any]() Result[T] { return New[T](NoConnection) }
func Unimplemented[T any]() Result[T] { return New[T](NotImplemented) }

func (r Result[T]) Status() Status { return r.status }
func (r Result[T]) Value() T { return r.value }
func (r Result[T]) Reason() string { return r.reason }
func (r Result[T]) Err() error { return r.err }

func (r Result[T]) IsSuccess() bool { return r.status == Success }
func (r Result[T]) IsNotSuccess() bool { return r.status != Success }
func (r Result[T]) IsFailure() bool { return r.status == Failure }
func (r Result[T]) IsUnexpected() bool { return r.status == Unexpected }
func (r Result[T]) IsUnauthorized() bool { return r.status == Unauthorized }
func (r Result[T]) IsAlready() bool { return r.status == Already }
func (r Result[T]) IsNotFound() bool { return r.status == NotFound }
func (r Result[T]) IsBadPrerequisites() bool { return r.status == BadPrerequisites }
func (r Result[T]) IsBadParameters() bool { return r.status == BadParameters }
func (r Result[T]) IsCancelled() bool { return r.status == Cancelled }
func (r Result[T]) IsTimeout() bool { return r.status == Timeout }
func (r Result[T]) IsNoConnection() bool { return r.status == NoConnection }
func (r Result[T]) IsNotImplemented() bool { return r.status == NotImplemented }

// WithStatus returns a copy with the status replaced
func (r Result[T]) WithStatus(s Status) Result[T] {
	r.status = s
	return r
}

// WithValue returns a copy carrying v
func (r Result[T]) WithValue(v T) Result[T] {
	r.value = v
	return r
}

// WithReason returns a copy with the reason replaced
func (r Result[T]) WithReason(reason string) Result[T] {
	r.reason = reason
	return r
}

// AddReason appends a line to the existing reason
func (r Result[T]) AddReason(reason string) Result[T] {
	if r.reason == "" {
		r.reason = reason
		return r
	}
	r.reason = r.reason + "\n" + reason
	return r
}

// WithErr returns a copy with the cause replaced
func (r Result[T]) WithErr(err error) Result[T] {
	r.err = err
	return r
}

// Then runs fn only when r is successful, otherwise r is returned untouched
func (r Result[T]) Then(fn func(Result[T]) Result[T]) Result[T] {
	if !r.IsSuccess() {
		return r
	}
	return fn(r)
}

// Erase drops the static value type.
func (r Result[T]) Erase() Result[any] {
	return Result[any]{status: r.status, value: any(r.value), reason: r.reason, err: r.err}
}

// Cast restores the static value type of an erased result. A value that is not a T
// turns the result Unexpected.
func Cast[T any](r Result[any]) Result[T] {
	out := Result[T]{status: r.status, reason: r.reason, err: r.err}
	if r.value == nil {
		return out
	}
	v, ok := r.value.(T)
	if !ok {
		var zero T
		return out.
			WithStatus(Unexpected).
			AddReason(fmt.Sprintf("result value %T is not a %T", r.value, zero))
	}
	out.value = v
	return out
}

// ToError returns nil for a successful result and an *Error otherwise
func (r Result[T]) ToError() error {
	if r.IsSuccess() {
		return nil
	}
	return &Error{Status: r.status, Reason: r.reason, Cause: r.err}
}

func (r Result[T]) String() string {
	b := strings.Builder{}
	b.WriteString(r.status.String())
	if r.reason != "" {
		b.WriteString(": ")
		b.WriteString(r.reason)
	}
	if r.err != nil && r.err.Error() != r.reason {
		b.WriteString(" (")
		b.WriteString(r.err.Error())
		b.WriteString(")")
	}
	return b.String()
}

type wire[T any] struct {
	Status Status `json:"status"`
	Value  T      `json:"value,omitempty"`
	Reason string `json:"reason,omitempty"`
	Error  string `json:"error,omitempty"`
}

// MarshalJSON encodes the result for ports and transports
func (r Result[T]) MarshalJSON() ([]byte, error) {
	w := wire[T]{Status: r.status, Value: r.value, Reason: r.reason}
	if r.err != nil {
		w.Error = r.err.Error()
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes a result. The cause is restored as a plain error.
func (r *Result[T]) UnmarshalJSON(data []byte) error {
	var w wire[T]
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	r.status, r.value, r.reason, r.err = w.Status, w.Value, w.Reason, nil
	if w.Error != "" {
		r.err = errors.New(w.Error)
	}
	return nil
}

// SafeExecute runs fn and converts a panic into an Unexpected result
func SafeExecute[T any](fn func() Result[T]) (res Result[T]) {
	defer func() {
		if rec := recover(); rec != nil {
			err, ok := rec.(error)
			if !ok {
				err = fmt.Errorf("%v", rec)
			}
			res = Unexpect[T](err)
		}
	}()
	return fn()
}
