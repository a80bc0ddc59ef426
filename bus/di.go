package bus

import (
	"context"
	"fmt"
	"reflect"
	"slices"

	"github.com/GabrielCarpr/mediator/log"
	"github.com/sarulabs/di/v2"
)

// Def defines a service of the bus container. Name is either a string, or a handler
// value whose ServiceName is used: defining a handler's service makes every binding of
// that handler resolve through the definition.
type Def struct {
	Name  interface{}
	Scope string
	Tags  []string
	Build func(ctn di.Container) (interface{}, error)
	Close func(obj interface{}) error
}

func (d Def) diDef() di.Def {
	scope := d.Scope
	if scope == "" {
		scope = di.App
	}
	tags := make([]di.Tag, len(d.Tags))
	for i, t := range d.Tags {
		tags[i] = di.Tag{Name: t}
	}
	return di.Def{
		Name:  ServiceName(d.Name),
		Scope: scope,
		Tags:  tags,
		Build: d.Build,
		Close: d.Close,
	}
}

// ServiceName is the container name of a service: strings are used as is, any other
// value is named after its type
func ServiceName(v interface{}) string {
	if name, ok := v.(string); ok {
		return name
	}
	if v == nil {
		return ""
	}
	return typeKey(reflect.TypeOf(v))
}

type scopeKeyType string

var scopeKey = scopeKeyType("ctn")

// scoped is the request container of a dispatch and the bus that opened it
type scoped struct {
	bus *Bus
	ctn di.Container
}

// scope opens a request sub-container for a dispatch. A nested dispatch on the same
// bus reuses the caller's container and leaves its deletion to the caller.
func (b *Bus) scope(ctx context.Context) (context.Context, func(), error) {
	if s, ok := ctx.Value(scopeKey).(scoped); ok && s.bus == b {
		return ctx, func() {}, nil
	}
	ctn, err := b.container.SubContainer()
	if err != nil {
		return ctx, nil, err
	}
	done := func() {
		if err := ctn.Delete(); err != nil {
			b.logger.Warn(ctx, "Failed deleting request container", log.F{"error": err.Error()})
		}
	}
	return context.WithValue(ctx, scopeKey, scoped{bus: b, ctn: ctn}), done, nil
}

func container(ctx context.Context) (di.Container, error) {
	s, ok := ctx.Value(scopeKey).(scoped)
	if !ok {
		return nil, ErrNoContainer
	}
	return s.ctn, nil
}

// resolve builds the service of a binding from the dispatch's request container
func (b *Bus) resolve(ctx context.Context, bd *Binding) (interface{}, error) {
	ctn, err := container(ctx)
	if err != nil {
		return nil, err
	}
	if _, ok := ctn.Definitions()[bd.service]; !ok {
		return nil, fmt.Errorf("%w: %s for %s", ErrServiceNotFound, bd.service, bd)
	}
	svc, err := ctn.SafeGet(bd.service)
	if err != nil {
		return nil, fmt.Errorf("bus: building %s: %w", bd.service, err)
	}
	return svc, nil
}

// ResolveRequired returns the named service of the dispatch in ctx. A missing
// definition is an ErrServiceNotFound, a service of another type an ErrServiceMismatch.
func ResolveRequired[T any](ctx context.Context, name string) (T, error) {
	var zero T
	ctn, err := container(ctx)
	if err != nil {
		return zero, err
	}
	if _, ok := ctn.Definitions()[name]; !ok {
		return zero, fmt.Errorf("%w: %s", ErrServiceNotFound, name)
	}
	svc, err := ctn.SafeGet(name)
	if err != nil {
		return zero, err
	}
	return serviceAs[T](svc, name)
}

// ResolveAll returns every service tagged with tag, in name order. No match is an
// empty slice, not an error.
func ResolveAll[T any](ctx context.Context, tag string) ([]T, error) {
	ctn, err := container(ctx)
	if err != nil {
		return nil, err
	}
	var names []string
	for name, def := range ctn.Definitions() {
		for _, t := range def.Tags {
			if t.Name == tag {
				names = append(names, name)
				break
			}
		}
	}
	slices.Sort(names)

	out := make([]T, 0, len(names))
	for _, name := range names {
		svc, err := ctn.SafeGet(name)
		if err != nil {
			return nil, err
		}
		v, err := serviceAs[T](svc, name)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Get returns an unscoped service from the bus container
func (b *Bus) Get(key interface{}) (interface{}, error) {
	name := ServiceName(key)
	if _, ok := b.container.Definitions()[name]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrServiceNotFound, name)
	}
	return b.container.SafeGet(name)
}

// buildContainer defines the module services, then one default service per binding
// whose implementation has no definition of its own
func (b *Bus) buildContainer(defs []Def) (di.Container, error) {
	builder, err := di.NewBuilder()
	if err != nil {
		return nil, err
	}
	for _, def := range defs {
		if err := builder.Add(def.diDef()); err != nil {
			return nil, err
		}
	}
	for _, bd := range b.registry.bindings {
		if bd.service != "" {
			continue
		}
		name := ServiceName(bd.instance)
		if builder.IsDefined(name) {
			bd.service = name
			continue
		}
		bd.service = fmt.Sprintf("%s#%d", name, bd.seq)
		instance := bd.instance
		err := builder.Add(di.Def{
			Name:  bd.service,
			Scope: di.App,
			Build: func(di.Container) (interface{}, error) {
				return instance, nil
			},
		})
		if err != nil {
			return nil, err
		}
	}
	return builder.Build(), nil
}
