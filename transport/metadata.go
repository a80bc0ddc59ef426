package transport

import (
	"context"

	"github.com/GabrielCarpr/mediator/log"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// Key is a context key that can travel in message metadata
type Key interface {
	String() string
}

type keyRegistration struct {
	key    Key
	decode func(data []byte) (interface{}, error)
}

// Codec carries registered context values across a transport, as message metadata.
// String values are written as is, anything else as JSON.
type Codec struct {
	register map[string]keyRegistration
}

// NewCodec returns a codec that already carries the log correlation ID
func NewCodec() *Codec {
	c := &Codec{register: map[string]keyRegistration{}}
	RegisterKey[uuid.UUID](c, log.CtxIDKey)
	return c
}

// Register assigns a key to its metadata name, key.String()
func (c *Codec) Register(key Key, decode func(data []byte) (interface{}, error)) {
	c.register[key.String()] = keyRegistration{key, decode}
}

// RegisterKey registers a key whose values are T, decoded from JSON or, when T is
// string, taken as is
func RegisterKey[T any](c *Codec, key Key) {
	c.Register(key, func(data []byte) (interface{}, error) {
		var v T
		if _, ok := any(v).(string); ok {
			return any(string(data)).(T), nil
		}
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		return v, nil
	})
}

// Encode reads every registered key of ctx into a metadata map
func (c *Codec) Encode(ctx context.Context) map[string]string {
	out := make(map[string]string, len(c.register))
	for name, reg := range c.register {
		val := ctx.Value(reg.key)
		if val == nil {
			continue
		}
		if s, ok := val.(string); ok {
			out[name] = s
			continue
		}
		data, err := json.Marshal(val)
		if err != nil {
			log.Warn(ctx, "Failed encoding context value", log.F{"key": name, "error": err.Error()})
			continue
		}
		out[name] = string(data)
	}
	return out
}

// Decode sets the registered keys found in metadata on ctx. Values that fail to
// decode are skipped.
func (c *Codec) Decode(ctx context.Context, metadata map[string]string) context.Context {
	for name, reg := range c.register {
		raw, ok := metadata[name]
		if !ok {
			continue
		}
		val, err := reg.decode([]byte(raw))
		if err != nil {
			log.Warn(ctx, "Failed decoding context value", log.F{"key": name, "error": err.Error()})
			continue
		}
		ctx = context.WithValue(ctx, reg.key, val)
	}
	return ctx
}
