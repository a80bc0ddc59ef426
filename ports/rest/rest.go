// Package rest is an HTTP port for a bus. Messages are posted to /messages/:name,
// where name is the catalogued message name, and dispatched dynamically.
package rest

import (
	"context"
	stderrors "errors"
	"net/http"
	"time"

	"github.com/GabrielCarpr/mediator/bus"
	"github.com/GabrielCarpr/mediator/bus/message"
	"github.com/GabrielCarpr/mediator/errors"
	"github.com/GabrielCarpr/mediator/log"
	"github.com/GabrielCarpr/mediator/result"
	"github.com/GabrielCarpr/mediator/transport"
	"github.com/gin-gonic/gin"
)

// Option configures a Server
type Option func(*Server)

// WithAddr sets the listen address, :8080 by default
func WithAddr(addr string) Option {
	return func(s *Server) {
		s.addr = addr
	}
}

// WithSecret authenticates requests carrying a bearer token signed with secret
func WithSecret(secret string) Option {
	return func(s *Server) {
		s.secret = secret
	}
}

func WithLogger(l *log.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

func NewServer(b *bus.Bus, opts ...Option) *Server {
	s := &Server{
		bus:    b,
		router: gin.New(),
		addr:   ":8080",
		logger: log.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.router.Use(gin.Recovery(), Correlate(s.logger))
	if s.secret != "" {
		s.router.Use(Authenticate(s.secret))
	}
	s.router.GET("/messages", s.catalog)
	s.router.POST("/messages/:name", s.dispatch)
	return s
}

type Server struct {
	bus    *bus.Bus
	router *gin.Engine
	addr   string
	secret string
	logger *log.Logger
}

// Map adds a route whose handler is built with the server's bus
func (s *Server) Map(method string, route string, handler func(*bus.Bus) gin.HandlerFunc) {
	s.router.Handle(method, route, handler(s.bus))
}

// Handler returns the server's http.Handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is done, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.router}

	errs := make(chan error, 1)
	go func() {
		s.logger.Info(ctx, "HTTP port listening", log.F{"addr": s.addr})
		errs <- srv.ListenAndServe()
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
	}

	shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdown); err != nil {
		return err
	}
	if err := <-errs; !stderrors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) catalog(c *gin.Context) {
	out := map[string][]string{}
	for _, kind := range []message.Type{message.Command, message.Query, message.Event, message.Stream} {
		out[kind.String()] = s.bus.MessageNames(kind)
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) dispatch(c *gin.Context) {
	ctx := c.Request.Context()
	name := c.Param("name")

	target, decoded, ok := s.bus.DecodeTarget(name)
	if !ok {
		c.AbortWithStatusJSON(http.StatusNotFound, errors.Error{Code: http.StatusNotFound, Message: "Unknown message " + name})
		return
	}
	if err := bind(c, target, false); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, errors.Error{Code: http.StatusBadRequest, Message: err.Error()})
		return
	}
	out, err := s.bus.Dispatch(ctx, decoded())
	if err != nil {
		s.fail(c, err)
		return
	}

	switch v := out.(type) {
	case nil:
		c.Status(http.StatusAccepted)
	case result.Result[any]:
		if err := errors.FromResult(v); err != nil {
			c.JSON(errors.Code(v.Status()), err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"value": v.Value()})
	case *bus.Stream[any]:
		c.Header("Content-Type", "application/x-ndjson")
		c.Status(http.StatusOK)
		n, err := transport.WriteLines(c.Writer, v)
		if err != nil {
			s.logger.Warn(ctx, "Stream ended with an error", log.F{"message": name, "items": n, "error": err.Error()})
		}
	}
}

func (s *Server) fail(c *gin.Context, err error) {
	switch {
	case stderrors.Is(err, bus.ErrNoHandler):
		c.AbortWithStatusJSON(http.StatusNotImplemented, errors.Error{Code: http.StatusNotImplemented, Message: "No handler"})
	case stderrors.Is(err, bus.ErrNotAMessage), stderrors.Is(err, bus.ErrInvalidArgument):
		c.AbortWithStatusJSON(http.StatusBadRequest, errors.Error{Code: http.StatusBadRequest, Message: "Not a message"})
	default:
		e := errors.Block(err)
		if e == errors.InternalServerError {
			_ = s.logger.Error(c.Request.Context(), err, log.F{"path": c.Request.URL.Path})
		}
		c.AbortWithStatusJSON(e.Code, e)
	}
}
