package message

import "fmt"

// Type is the kind of a message, which decides how it is routed
type Type int

const (
	Command Type = iota + 1
	Query
	Event
	Stream
)

func (t Type) String() string {
	switch t {
	case Command:
		return "command"
	case Query:
		return "query"
	case Event:
		return "event"
	case Stream:
		return "stream"
	}
	return fmt.Sprintf("message.Type(%d)", int(t))
}

// Message is a generic message that can be routed to a handler
type Message interface {
	MessageType() Type
}
