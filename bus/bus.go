package bus

import (
	"context"
	"fmt"
	"reflect"
	"sync/atomic"

	"github.com/GabrielCarpr/mediator/bus/message"
	"github.com/GabrielCarpr/mediator/log"
	"github.com/alphadose/haxmap"
	"github.com/hashicorp/go-multierror"
	"github.com/sarulabs/di/v2"
)

var discard = log.Discard()

// Bus is the main dependency. It is the entry point for all messages, and routes
// them to their handlers through their pipelines.
type Bus struct {
	registry  *registry
	container di.Container
	catalog   *haxmap.Map[string, entry]
	names     *haxmap.Map[string, string]
	logger    *log.Logger

	options    Options
	mode       RegistrationMode
	scanCache  *ScanCache
	ownsScan   bool
	publisher  EventPublisher
	publishers map[string]EventPublisher
	builtin    []Binding
	explicit   []Binding
	messages   []message.Message

	closed atomic.Bool
}

// Default returns a bus configured from DefaultOptions, recovering panics of command
// and query handlers into Unexpected results
func Default(mods []Module, configs ...Config) (*Bus, error) {
	configs = append([]Config{
		WithOptions(DefaultOptions()),
		Use(Recover(message.Command), Recover(message.Query)),
	}, configs...)
	return New(mods, configs...)
}

// New builds a bus from modules and configs. Module bindings are registered in
// module order: for each module its generated table, then its reflective scan,
// depending on the registration mode. Every failing binding is reported.
func New(mods []Module, configs ...Config) (*Bus, error) {
	b := &Bus{
		registry:   newRegistry(),
		catalog:    haxmap.New[string, entry](),
		names:      haxmap.New[string, string](),
		logger:     log.Default(),
		options:    DefaultOptions(),
		publisher:  Parallel{},
		publishers: map[string]EventPublisher{},
	}
	for _, conf := range configs {
		if err := conf(b); err != nil {
			b.closeScanCache()
			return nil, err
		}
	}
	if b.scanCache == nil {
		b.scanCache = NewScanCache(ScanNone, "")
	}

	var errs *multierror.Error
	register := func(bindings []Binding, source Source) {
		for _, bd := range bindings {
			if source != Explicit {
				bd.Source = source
			}
			added, ok, err := b.registry.add(bd)
			if err != nil {
				errs = multierror.Append(errs, err)
				continue
			}
			if ok && added.message != nil {
				b.catalogue(added.message)
			}
		}
	}

	register(b.builtin, Explicit)
	var defs []Def
	for _, mod := range mods {
		defs = append(defs, mod.Services()...)
		if gen, ok := mod.(GeneratedModule); ok && b.mode.generated() {
			register(gen.Bindings(), Generated)
		}
		if b.mode.reflection() {
			bindings, hit, err := b.scanCache.Bindings(mod)
			if err != nil {
				b.logger.Warn(context.Background(), "Failed saving scan cache", log.F{"module": mod.ID(), "error": err.Error()})
			}
			b.logger.Debug(context.Background(), "Scanned module", log.F{
				"module":   mod.ID(),
				"bindings": fmt.Sprint(len(bindings)),
				"cached":   fmt.Sprint(hit),
			})
			register(bindings, Reflected)
		}
	}
	register(b.explicit, Explicit)
	for _, m := range b.messages {
		b.catalogue(reflect.TypeOf(m))
	}
	if err := errs.ErrorOrNil(); err != nil {
		b.closeScanCache()
		return nil, err
	}

	ctn, err := b.buildContainer(defs)
	if err != nil {
		b.closeScanCache()
		return nil, err
	}
	b.container = ctn
	return b, nil
}

// Close deletes the container and its services. Dispatching on a closed bus
// returns ErrClosed.
func (b *Bus) Close() error {
	if b.closed.Swap(true) {
		return nil
	}
	b.logger.Info(context.Background(), "Closing bus", log.F{})
	b.closeScanCache()
	return b.container.Delete()
}

// closeScanCache stops the scan cache built from Options. Shared caches are left to
// their owner.
func (b *Bus) closeScanCache() {
	if b.ownsScan {
		_ = b.scanCache.Close()
	}
}

// Bindings lists the registered bindings in registration order
func (b *Bus) Bindings() []Binding {
	out := make([]Binding, len(b.registry.bindings))
	for i, bd := range b.registry.bindings {
		out[i] = *bd
	}
	return out
}

// SelfTest checks the wiring of the bus: every generated or reflected handler must
// resolve from the container, and every catalogued command, query and stream needs a
// handler.
func (b *Bus) SelfTest() error {
	ctx, done, err := b.scope(context.Background())
	if err != nil {
		return err
	}
	defer done()

	var errs *multierror.Error
	for _, h := range b.registry.handlers() {
		if h.Source == Explicit {
			continue
		}
		if _, err := b.resolve(ctx, h); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", h, err))
		}
	}
	b.catalog.ForEach(func(_ string, e entry) bool {
		if e.kind == message.Event {
			return true
		}
		if b.registry.route(e.typ).handler == nil {
			errs = multierror.Append(errs, NoHandler{Kind: e.kind, Message: e.typ})
		}
		return true
	})
	return errs.ErrorOrNil()
}
