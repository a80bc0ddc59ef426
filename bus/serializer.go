package bus

import (
	"fmt"
	"reflect"

	"github.com/GabrielCarpr/mediator/bus/message"
	"github.com/goccy/go-json"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// TypeField is the JSON field naming the message type of a serialized message
const TypeField = "__type"

// Marshal encodes m as a JSON object tagged with its MessageName. The type is
// catalogued, so a bus built from the same modules can decode it.
func (b *Bus) Marshal(m message.Message) ([]byte, error) {
	if isNil(m) {
		return nil, ErrInvalidArgument
	}
	b.catalogue(reflect.TypeOf(m))
	return Marshal(m)
}

// Marshal encodes m as a JSON object tagged with its MessageName, for buses that
// catalogue its type
func Marshal(m message.Message) ([]byte, error) {
	if isNil(m) {
		return nil, ErrInvalidArgument
	}
	t := reflect.TypeOf(m)
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(data) || !gjson.ParseBytes(data).IsObject() {
		return nil, fmt.Errorf("bus: %s doesn't encode to a JSON object", t)
	}
	return sjson.SetBytes(data, TypeField, MessageName(t))
}

// Unmarshal decodes a message encoded by Marshal. Its type must be catalogued by a
// binding, by Messages, or by an earlier Marshal.
func (b *Bus) Unmarshal(data []byte) (message.Message, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("bus: invalid message JSON")
	}
	name := gjson.GetBytes(data, TypeField)
	if !name.Exists() {
		return nil, fmt.Errorf("bus: message JSON has no %s field", TypeField)
	}
	return b.Decode(name.String(), data)
}

// Decode decodes data into a new message of the catalogued type name. Fields unknown
// to the type, such as the type tag, are ignored.
func (b *Bus) Decode(name string, data []byte) (message.Message, error) {
	t, ok := b.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: unknown message type %s", ErrNotAMessage, name)
	}
	target := t
	if t.Kind() == reflect.Ptr {
		target = t.Elem()
	}
	v := reflect.New(target)
	if len(data) > 0 {
		if err := json.Unmarshal(data, v.Interface()); err != nil {
			return nil, fmt.Errorf("bus: decoding %s: %w", name, err)
		}
	}
	if t.Kind() != reflect.Ptr {
		v = v.Elem()
	}
	return v.Interface().(message.Message), nil
}
