// Package mediator is an in-process message bus: commands, queries, events and
// streams are routed to their handlers through middleware pipelines.
package mediator

import (
	// Bus package - the dispatcher, its registry and pipelines
	_ "github.com/GabrielCarpr/mediator/bus"
	// Result package - the outcomes handlers return
	_ "github.com/GabrielCarpr/mediator/result"
	// Resilience package - retry and circuit breaking executors for policy middlewares
	_ "github.com/GabrielCarpr/mediator/resilience"
	// Transport package - forwarding messages over watermill pub/subs
	_ "github.com/GabrielCarpr/mediator/transport"
	// Auth package - access control credentials and the scope guard
	_ "github.com/GabrielCarpr/mediator/auth"
	// Ports package - running the HTTP port and consumers side by side
	_ "github.com/GabrielCarpr/mediator/ports"
	// Log package - a basic global logger
	_ "github.com/GabrielCarpr/mediator/log"
)
