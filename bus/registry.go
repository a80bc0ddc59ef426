package bus

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/GabrielCarpr/mediator/bus/message"
	"github.com/alphadose/haxmap"
)

// RegistrationMode selects where module bindings are discovered
type RegistrationMode int

const (
	// RegisterBoth takes generated bindings first, then the reflective scan's
	RegisterBoth RegistrationMode = iota
	RegisterGenerated
	RegisterReflection
)

func (m RegistrationMode) String() string {
	switch m {
	case RegisterBoth:
		return "both"
	case RegisterGenerated:
		return "generated"
	case RegisterReflection:
		return "reflection"
	}
	return fmt.Sprintf("RegistrationMode(%d)", int(m))
}

func (m RegistrationMode) generated() bool {
	return m == RegisterBoth || m == RegisterGenerated
}

func (m RegistrationMode) reflection() bool {
	return m == RegisterBoth || m == RegisterReflection
}

func ParseRegistrationMode(s string) (RegistrationMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "both":
		return RegisterBoth, nil
	case "generated", "generatedonly":
		return RegisterGenerated, nil
	case "reflection", "reflectiononly":
		return RegisterReflection, nil
	}
	return 0, fmt.Errorf("bus: unknown registration mode %q", s)
}

// route is everything registered for one concrete message type, in registration order
type route struct {
	handler     *Binding
	handlers    []*Binding
	middlewares []*Binding
	pre         []*Binding
	post        []*Binding
	actions     []*Binding
	exceptions  []*Binding
}

// registry holds the bindings of a bus. Bindings are only added while the bus is
// built; routes are computed on first use of each concrete type and cached.
type registry struct {
	bindings []*Binding
	seen     map[[2]string]bool
	routes   *haxmap.Map[string, *route]
}

func newRegistry() *registry {
	return &registry{
		seen:   map[[2]string]bool{},
		routes: haxmap.New[string, *route](),
	}
}

// add appends b, reporting false when a generated or reflected binding repeats an
// interface, implementation pair already discovered
func (r *registry) add(b Binding) (*Binding, bool, error) {
	if b.err != nil {
		return nil, false, b.err
	}
	if b.message == nil && b.family == nil {
		return nil, false, fmt.Errorf("%w: %s has no message type", ErrInvalidArgument, b.Impl)
	}
	if isNil(b.instance) && b.service == "" {
		return nil, false, fmt.Errorf("%w: %s has no implementation", ErrInvalidArgument, b)
	}
	if b.Source != Explicit {
		if r.seen[b.pair()] {
			return nil, false, nil
		}
		r.seen[b.pair()] = true
	}
	b.seq = len(r.bindings)
	r.bindings = append(r.bindings, &b)
	return &b, true, nil
}

func (r *registry) route(t reflect.Type) *route {
	key := typeKey(t)
	if rt, ok := r.routes.Get(key); ok {
		return rt
	}
	rt, _ := r.routes.GetOrCompute(key, func() *route {
		return r.compute(t)
	})
	return rt
}

// compute selects the bindings serving t. A single handler wins for commands, queries
// and streams: the last closed binding, else the last open one. Every other role keeps
// all of its matches.
func (r *registry) compute(t reflect.Type) *route {
	rt := &route{}
	m, ok := prototype(t).(message.Message)
	if !ok {
		return rt
	}
	kind := m.MessageType()

	var open *Binding
	for _, b := range r.bindings {
		if b.Kind != kind || !b.matches(t) {
			continue
		}
		switch b.Role {
		case HandlerRole:
			switch {
			case kind == message.Event:
				rt.handlers = append(rt.handlers, b)
			case b.Open():
				open = b
			default:
				rt.handler = b
			}
		case MiddlewareRole:
			rt.middlewares = append(rt.middlewares, b)
		case PreProcessorRole:
			rt.pre = append(rt.pre, b)
		case PostProcessorRole:
			rt.post = append(rt.post, b)
		case ExceptionActionRole:
			rt.actions = append(rt.actions, b)
		case ExceptionHandlerRole:
			rt.exceptions = append(rt.exceptions, b)
		}
	}
	if rt.handler == nil {
		rt.handler = open
	}
	return rt
}

// handlers returns every handler binding, for self tests and listings
func (r *registry) handlers() []*Binding {
	var out []*Binding
	for _, b := range r.bindings {
		if b.Role == HandlerRole {
			out = append(out, b)
		}
	}
	return out
}
