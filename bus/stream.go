package bus

import (
	"context"
	"iter"
	"sync"

	"github.com/GabrielCarpr/mediator/bus/message"
)

// StreamRequest is a message whose handler produces many R over time
type StreamRequest[R any] interface {
	message.Message

	streams() R
}

// StreamType is embedded in stream requests, binding the request to its item type
type StreamType[R any] struct{}

// MessageType implements the message.Message interface
func (StreamType[R]) MessageType() message.Type {
	return message.Stream
}

func (StreamType[R]) streams() (r R) { return }

func (StreamType[R]) streamer() streamInvoker {
	return func(ctx context.Context, b *Bus, m message.Message) (*Stream[any], error) {
		seq, finish, err := openStream[R](ctx, b, m)
		if err != nil {
			return nil, err
		}
		return newStream(ctx, eraseSeq(seq), finish), nil
	}
}

// StreamHandler lazily produces the items of one stream request type. Items are
// pulled one at a time by the consumer.
type StreamHandler[S StreamRequest[R], R any] interface {
	Handle(context.Context, S) iter.Seq2[R, error]
}

type StreamHandlerFunc[S StreamRequest[R], R any] func(context.Context, S) iter.Seq2[R, error]

func (f StreamHandlerFunc[S, R]) Handle(ctx context.Context, s S) iter.Seq2[R, error] {
	return f(ctx, s)
}

// StreamNext continues a stream pipeline
type StreamNext[R any] func(context.Context) iter.Seq2[R, error]

// StreamMiddleware wraps the sequence of one stream request type
type StreamMiddleware[S StreamRequest[R], R any] interface {
	Handle(context.Context, S, StreamNext[R]) iter.Seq2[R, error]
}

type StreamMiddlewareFunc[S StreamRequest[R], R any] func(context.Context, S, StreamNext[R]) iter.Seq2[R, error]

func (f StreamMiddlewareFunc[S, R]) Handle(ctx context.Context, s S, next StreamNext[R]) iter.Seq2[R, error] {
	return f(ctx, s, next)
}

// OnStream binds h as the handler of S
func OnStream[S StreamRequest[R], R any](h StreamHandler[S, R]) Binding {
	b := Binding{
		Kind:      message.Stream,
		Role:      HandlerRole,
		Interface: capability("StreamHandler", typeOf[S](), typeOf[R]()),
		Impl:      implName(h),
		message:   typeOf[S](),
		instance:  h,
	}
	b.call = streamCall[R](func(ctx context.Context, svc interface{}, m message.Message) iter.Seq2[R, error] {
		h, err := serviceAs[StreamHandler[S, R]](svc, b.Interface)
		if err != nil {
			return failed[R](err)
		}
		return h.Handle(ctx, m.(S))
	})
	return b
}

// WrapStream binds mw as a middleware of S
func WrapStream[S StreamRequest[R], R any](mw StreamMiddleware[S, R]) Binding {
	b := Binding{
		Kind:      message.Stream,
		Role:      MiddlewareRole,
		Interface: capability("StreamMiddleware", typeOf[S](), typeOf[R]()),
		Impl:      implName(mw),
		message:   typeOf[S](),
		instance:  mw,
	}
	b.call = streamMiddlewareCall[R](func(ctx context.Context, svc interface{}, m message.Message, next StreamNext[R]) iter.Seq2[R, error] {
		mw, err := serviceAs[StreamMiddleware[S, R]](svc, b.Interface)
		if err != nil {
			return failed[R](err)
		}
		return mw.Handle(ctx, m.(S), next)
	})
	return b
}

// CreateStream resolves the handler of s and returns its items as a lazy stream.
// Nothing is produced until the consumer pulls.
func CreateStream[R any](ctx context.Context, b *Bus, s StreamRequest[R]) (*Stream[R], error) {
	if isNil(s) {
		return nil, ErrInvalidArgument
	}
	seq, finish, err := openStream[R](ctx, b, s)
	if err != nil {
		return nil, err
	}
	return newStream(ctx, seq, finish), nil
}

// Stream is a single consumer, forward only sequence of results. The context it was
// created with is checked before every pull: once it is done, Next returns false and
// Err reports the context error, while the items already pulled stay with the consumer.
//
//	for s.Next() {
//		use(s.Value())
//	}
//	if err := s.Err(); err != nil {
//		...
//	}
type Stream[R any] struct {
	ctx    context.Context
	next   func() (R, error, bool)
	stop   func()
	finish func(int, error)

	value R
	err   error
	count int
	done  bool
	once  sync.Once
}

func newStream[R any](ctx context.Context, seq iter.Seq2[R, error], finish func(int, error)) *Stream[R] {
	next, stop := iter.Pull2(seq)
	return &Stream[R]{ctx: ctx, next: next, stop: stop, finish: finish}
}

// Next pulls the next item, reporting false when the stream is exhausted, failed,
// cancelled or closed
func (s *Stream[R]) Next() bool {
	if s.done {
		return false
	}
	if err := s.ctx.Err(); err != nil {
		s.fail(err)
		return false
	}

	v, err, ok := s.next()
	if !ok {
		s.close()
		return false
	}
	if err != nil {
		s.fail(err)
		return false
	}
	s.value = v
	s.count++
	return true
}

// Value is the item pulled by the last successful Next
func (s *Stream[R]) Value() R {
	return s.value
}

// Err is the error that ended the stream, if any
func (s *Stream[R]) Err() error {
	return s.err
}

// Count is the number of items pulled so far
func (s *Stream[R]) Count() int {
	return s.count
}

// Close stops the producer and releases the stream's request scope. Closing an
// exhausted stream is a no-op.
func (s *Stream[R]) Close() error {
	s.close()
	return nil
}

func (s *Stream[R]) fail(err error) {
	s.err = err
	s.close()
}

func (s *Stream[R]) close() {
	s.once.Do(func() {
		s.done = true
		s.stop()
		if s.finish != nil {
			s.finish(s.count, s.err)
		}
	})
}

// All adapts the stream to a range-over-func sequence. A failure is yielded last,
// with the zero item. The stream is closed when the loop ends.
func (s *Stream[R]) All() iter.Seq2[R, error] {
	return func(yield func(R, error) bool) {
		defer s.Close()
		for s.Next() {
			if !yield(s.value, nil) {
				return
			}
		}
		if s.err != nil {
			var zero R
			yield(zero, s.err)
		}
	}
}

// Collect drains s into a slice. The items pulled before a failure are returned with it.
func Collect[R any](s *Stream[R]) ([]R, error) {
	defer s.Close()
	var out []R
	for s.Next() {
		out = append(out, s.Value())
	}
	return out, s.Err()
}

// Forward copies the items of s into ch until the stream ends or ctx is done,
// returning how many items were delivered. ch is not closed.
func Forward[R any](ctx context.Context, s *Stream[R], ch chan<- R) (int, error) {
	defer s.Close()
	n := 0
	for s.Next() {
		select {
		case ch <- s.Value():
			n++
		case <-ctx.Done():
			return n, ctx.Err()
		}
	}
	return n, s.Err()
}

// guard stops seq with the context error as soon as ctx is done, checked between items
func guard[R any](ctx context.Context, seq iter.Seq2[R, error]) iter.Seq2[R, error] {
	return func(yield func(R, error) bool) {
		if err := ctx.Err(); err != nil {
			var zero R
			yield(zero, err)
			return
		}
		for v, err := range seq {
			if !yield(v, err) || err != nil {
				return
			}
			if err := ctx.Err(); err != nil {
				var zero R
				yield(zero, err)
				return
			}
		}
	}
}

func failed[R any](err error) iter.Seq2[R, error] {
	return func(yield func(R, error) bool) {
		var zero R
		yield(zero, err)
	}
}

func eraseSeq[R any](seq iter.Seq2[R, error]) iter.Seq2[any, error] {
	return func(yield func(any, error) bool) {
		for v, err := range seq {
			if !yield(v, err) {
				return
			}
		}
	}
}
