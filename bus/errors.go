package bus

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/GabrielCarpr/mediator/bus/message"
)

var (
	// ErrInvalidArgument is returned when a nil message is dispatched
	ErrInvalidArgument = errors.New("bus: message must not be nil")

	// ErrNotAMessage is matched by every NotAMessage error
	ErrNotAMessage = errors.New("bus: not a valid message")

	// ErrNoHandler is matched by every NoHandler error
	ErrNoHandler = errors.New("bus: no handler registered")

	// ErrServiceNotFound is returned when a required service has no definition
	ErrServiceNotFound = errors.New("bus: service not found")

	// ErrServiceMismatch is returned when a resolved service is not of the expected type
	ErrServiceMismatch = errors.New("bus: service has the wrong type")

	// ErrNoContainer is returned when a context carries no service container
	ErrNoContainer = errors.New("bus: context doesn't contain a service container")

	ErrClosed = errors.New("bus: closed")
)

// NotAMessage is returned when a dynamically dispatched value lacks the capability
// the entry point requires
type NotAMessage struct {
	Value interface{}
	Want  message.Type
}

func (e NotAMessage) Error() string {
	if e.Want == 0 {
		return fmt.Sprintf("bus: %T is not a message", e.Value)
	}
	return fmt.Sprintf("bus: %T is not a %s", e.Value, e.Want)
}

func (e NotAMessage) Is(target error) bool {
	return target == ErrNotAMessage
}

// NoHandler is returned when a message has no handler registered. It is a wiring
// error, not a business outcome.
type NoHandler struct {
	Kind    message.Type
	Message reflect.Type
}

func (e NoHandler) Error() string {
	return fmt.Sprintf("bus: no %s handler for %s", e.Kind, e.Message)
}

func (e NoHandler) Is(target error) bool {
	return target == ErrNoHandler
}
