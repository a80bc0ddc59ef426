// Package errors includes standard error helpers
package errors

import (
	stderrors "errors"

	"github.com/GabrielCarpr/mediator/result"
)

var (
	// InternalServerError is an error that has been hidden from the port-interface
	InternalServerError = Error{500, "Internal server error"}
)

// Error is a port-interface visible error
// If an error is provided to a port and it's not an Error,
// it should be hidden
//
// Ports will interpret Error however they choose. Eg, CLI may just show the
// message, and HTTP may show the message and the error code.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e Error) Error() string {
	return e.Message
}

// Block hides errors that aren't, or don't wrap, an Error
func Block(e error) Error {
	var err Error
	if !stderrors.As(e, &err) {
		return InternalServerError
	}
	return err
}

var codes = map[result.Status]int{
	result.Success:          200,
	result.Failure:          422,
	result.Unexpected:       500,
	result.Unauthorized:     403,
	result.Already:          409,
	result.NotFound:         404,
	result.BadPrerequisites: 412,
	result.BadParameters:    400,
	result.Cancelled:        499,
	result.Timeout:          504,
	result.NoConnection:     503,
	result.NotImplemented:   501,
}

// Code is the HTTP-like code of a result status
func Code(s result.Status) int {
	if code, ok := codes[s]; ok {
		return code
	}
	return 500
}

// FromResult returns the Error a port shows for a non-success result, or nil on
// success. Unexpected results are hidden.
func FromResult[T any](res result.Result[T]) error {
	if res.IsSuccess() {
		return nil
	}
	if res.IsUnexpected() {
		return InternalServerError
	}
	msg := res.Reason()
	if msg == "" {
		msg = res.Status().String()
	}
	return Error{Code: Code(res.Status()), Message: msg}
}
