// Package transport bridges a bus to a watermill publisher and subscriber. Events
// are forwarded as JSON messages tagged with their type, carrying registered context
// values as metadata; a Consumer decodes them and dispatches them on another bus.
// Delivery guarantees are those of the watermill pub/sub used.
package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/GabrielCarpr/mediator/bus"
	msg "github.com/GabrielCarpr/mediator/bus/message"
	"github.com/GabrielCarpr/mediator/log"
	"github.com/GabrielCarpr/mediator/result"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/google/uuid"
)

const DefaultTopic = "messages"

type options struct {
	topic    string
	codec    *Codec
	logger   *log.Logger
	retries  int
	interval time.Duration
	poison   message.Publisher
	poisoned string
}

// Option configures a Forwarder or a Consumer
type Option func(*options)

func WithTopic(topic string) Option {
	return func(o *options) {
		o.topic = topic
	}
}

// WithCodec sets the codec of context values. Both ends need the same registrations.
func WithCodec(c *Codec) Option {
	return func(o *options) {
		o.codec = c
	}
}

func WithLogger(l *log.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithRetry retries a failed message n times, doubling interval between attempts
func WithRetry(n int, interval time.Duration) Option {
	return func(o *options) {
		o.retries = n
		o.interval = interval
	}
}

// WithPoisonQueue publishes messages that still fail after their retries to topic
func WithPoisonQueue(pub message.Publisher, topic string) Option {
	return func(o *options) {
		o.poison = pub
		o.poisoned = topic
	}
}

func newOptions(opts []Option) options {
	o := options{
		topic:  DefaultTopic,
		logger: log.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.codec == nil {
		o.codec = NewCodec()
	}
	return o
}

// Forwarder publishes messages of a bus to a watermill publisher. Bound with
// ForwardEvent or ForwardFamily, it is an event handler of the bus.
type Forwarder struct {
	pub  message.Publisher
	opts options
}

func NewForwarder(pub message.Publisher, opts ...Option) *Forwarder {
	return &Forwarder{pub: pub, opts: newOptions(opts)}
}

// Forward publishes m with the context values of ctx
func (f *Forwarder) Forward(ctx context.Context, m msg.Message) error {
	payload, err := bus.Marshal(m)
	if err != nil {
		return err
	}
	out := message.NewMessage(uuid.NewString(), payload)
	for k, v := range f.opts.codec.Encode(ctx) {
		out.Metadata.Set(k, v)
	}

	f.opts.logger.Info(ctx, "Forwarding message", log.F{"id": out.UUID, "topic": f.opts.topic, "message": fmt.Sprintf("%T", m)})
	return f.pub.Publish(f.opts.topic, out)
}

// Handle forwards every event of the family the forwarder is bound to
func (f *Forwarder) Handle(ctx context.Context, m msg.Message) error {
	return f.Forward(ctx, m)
}

// ForwardEvent subscribes f to E
func ForwardEvent[E bus.Event](f *Forwarder) bus.Binding {
	return bus.OnEvent[E](bus.EventHandlerFunc[E](func(ctx context.Context, e E) error {
		return f.Forward(ctx, e)
	}))
}

// ForwardFamily subscribes f to every instantiation of proto's generic event type
func ForwardFamily(proto msg.Message, f *Forwarder) bus.Binding {
	return bus.OnOpenEvent(proto, f)
}

// Consumer dispatches the messages of a watermill subscriber on a bus. The types
// received must be catalogued by the bus, by bindings or bus.Messages.
type Consumer struct {
	bus    *bus.Bus
	opts   options
	router *message.Router
}

func NewConsumer(b *bus.Bus, sub message.Subscriber, opts ...Option) (*Consumer, error) {
	c := &Consumer{bus: b, opts: newOptions(opts)}
	wmLogger := Logger(c.opts.logger)

	router, err := message.NewRouter(message.RouterConfig{}, wmLogger)
	if err != nil {
		return nil, err
	}
	if c.opts.poison != nil {
		poison, err := middleware.PoisonQueue(c.opts.poison, c.opts.poisoned)
		if err != nil {
			return nil, err
		}
		router.AddMiddleware(poison)
	}
	if c.opts.retries > 0 {
		router.AddMiddleware(middleware.Retry{
			MaxRetries:      c.opts.retries,
			InitialInterval: c.opts.interval,
			Multiplier:      2,
			Logger:          wmLogger,
		}.Middleware)
	}
	router.AddMiddleware(middleware.Recoverer)

	router.AddNoPublisherHandler(
		"mediator_"+c.opts.topic,
		c.opts.topic,
		sub,
		c.Process,
	)
	c.router = router
	return c, nil
}

// Run consumes messages until ctx is done or the consumer is closed
func (c *Consumer) Run(ctx context.Context) error {
	return c.router.Run(ctx)
}

// Running is closed once the consumer is subscribed
func (c *Consumer) Running() chan struct{} {
	return c.router.Running()
}

func (c *Consumer) Close() error {
	return c.router.Close()
}

// Process decodes one message and dispatches it. Non-success results are business
// outcomes and acknowledge the message; errors have it redelivered.
func (c *Consumer) Process(in *message.Message) error {
	ctx := log.WithID(c.opts.codec.Decode(in.Context(), in.Metadata))
	fields := log.F{"id": in.UUID, "topic": c.opts.topic}

	m, err := c.bus.Unmarshal(in.Payload)
	if err != nil {
		return c.opts.logger.Error(ctx, fmt.Errorf("failed decoding message: %w", err), fields)
	}
	c.opts.logger.Info(ctx, "Received message", fields)

	out, err := c.bus.Dispatch(ctx, m)
	if err != nil {
		return c.opts.logger.Error(ctx, fmt.Errorf("failed running message: %w", err), fields)
	}
	switch v := out.(type) {
	case result.Result[any]:
		if v.IsNotSuccess() {
			fields["status"] = v.Status().String()
			fields["reason"] = v.Reason()
			c.opts.logger.Warn(ctx, "Message not successful", fields)
			return nil
		}
	case *bus.Stream[any]:
		items, err := bus.Collect(v)
		if err != nil {
			return c.opts.logger.Error(ctx, fmt.Errorf("failed streaming message: %w", err), fields)
		}
		fields["items"] = len(items)
	}

	c.opts.logger.Info(ctx, "Message processed", fields)
	return nil
}
