package bus

import (
	"fmt"

	"github.com/GabrielCarpr/mediator/bus/message"
	"github.com/GabrielCarpr/mediator/log"
)

type Config = func(*Bus) error

// WithLogger sets the logger dispatches are logged to
func WithLogger(l *log.Logger) Config {
	return func(b *Bus) error {
		if l == nil {
			return fmt.Errorf("%w: nil logger", ErrInvalidArgument)
		}
		b.logger = l
		return nil
	}
}

// Use registers bindings built by the On*, Wrap*, Pre/PostProcess and OnException*
// functions. They come after every module binding, in the order given.
func Use(bindings ...Binding) Config {
	return func(b *Bus) error {
		for i := range bindings {
			bindings[i].Source = Explicit
		}
		b.explicit = append(b.explicit, bindings...)
		return nil
	}
}

// WithRegistrationMode selects where module bindings are discovered
func WithRegistrationMode(m RegistrationMode) Config {
	return func(b *Bus) error {
		b.mode = m
		return nil
	}
}

// WithScanCache shares a scan cache between buses. The caller closes it.
func WithScanCache(c *ScanCache) Config {
	return func(b *Bus) error {
		b.closeScanCache()
		b.scanCache = c
		b.ownsScan = false
		return nil
	}
}

// WithPublisher sets the default publisher of events
func WithPublisher(p EventPublisher) Config {
	return func(b *Bus) error {
		if p == nil {
			return fmt.Errorf("%w: nil publisher", ErrInvalidArgument)
		}
		b.publisher = p
		return nil
	}
}

// PublishWith publishes events of type E with p instead of the default publisher
func PublishWith[E Event](p EventPublisher) Config {
	return func(b *Bus) error {
		if p == nil {
			return fmt.Errorf("%w: nil publisher", ErrInvalidArgument)
		}
		b.publishers[typeKey(typeOf[E]())] = p
		return nil
	}
}

// Messages registers message types for dynamic lookup by name, without handlers.
// Events published to other processes are the usual case.
func Messages(prototypes ...message.Message) Config {
	return func(b *Bus) error {
		for _, p := range prototypes {
			if isNil(p) {
				return fmt.Errorf("%w: nil prototype", ErrInvalidArgument)
			}
			b.messages = append(b.messages, p)
		}
		return nil
	}
}
