// Package ports runs the entry points of a mediator application, such as the HTTP port
// and transport consumers, side by side until shutdown.
package ports

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/GabrielCarpr/mediator/log"
	"golang.org/x/sync/errgroup"
)

// ShutdownTimeout is how long Run waits for the ports to exit once cancelled
var ShutdownTimeout = 10 * time.Second

// Port is an external input to the system that listens, blocking.
//
// The port interface allows an app to concurrently run multiple blocking
// ports while handling cancellation and graceful shutdown.
// The port interface also requires that:
// - The port will only return an error if it cannot continue. An error will force the whole system to shut down
// - The port must block
// - The port will gracefully stop upon the context cancelling
type Port interface {
	Run(context.Context) error
}

// PortFunc adapts a function to a Port
type PortFunc func(context.Context) error

func (f PortFunc) Run(ctx context.Context) error {
	return f(ctx)
}

// Ports is a collection of entry ports into the system
type Ports []Port

// Run runs all the ports with graceful shutdown.
//
// Run will block, running all the ports concurrently, until receiving a ctx cancellation,
// an OS cancellation signal, or a port returns an error or panics (see Port). Then, it will
// cancel all other ports. If a port fails to exit within ShutdownTimeout, Run returns
// without it; the program should exit shortly after, or the port's goroutine leaks.
//
// The first port error is returned.
func (p Ports) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	for i, port := range p {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("panic: %v", r)
					_ = log.Error(ctx, err, log.F{"port": i, "type": fmt.Sprintf("%T", port)})
				}
			}()
			return port.Run(ctx)
		})
	}

	ended := make(chan error, 1)
	go func() {
		ended <- g.Wait()
	}()

	select {
	case err := <-ended:
		return err
	case <-ctx.Done():
	}
	log.Info(ctx, "Quitting, waiting for all ports to exit", log.F{"ports": len(p)})

	select {
	case err := <-ended:
		return err
	case <-time.After(ShutdownTimeout):
		return fmt.Errorf("ports failed to quit after %s, forced", ShutdownTimeout)
	}
}
