package result

import "fmt"

// Error is a non-successful Result surfaced as an error.
type Error struct {
	Status Status
	Reason string
	Cause  error
}

func (e *Error) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("result: %s", e.Status)
	}
	return fmt.Sprintf("result: %s: %s", e.Status, e.Reason)
}

func (e *Error) Unwrap() error {
	return e.Cause
}
