package transport

import (
	"context"

	"github.com/GabrielCarpr/mediator/log"
	"github.com/ThreeDotsLabs/watermill"
)

// Logger adapts a log.Logger to watermill, so routers and pub/subs log like the bus
func Logger(l *log.Logger) watermill.LoggerAdapter {
	return loggerAdapter{l: l, fields: log.F{}}
}

var _ watermill.LoggerAdapter = loggerAdapter{}

type loggerAdapter struct {
	l      *log.Logger
	fields log.F
}

func (a loggerAdapter) merge(fields watermill.LogFields) log.F {
	out := make(log.F, len(a.fields)+len(fields))
	for k, v := range a.fields {
		out[k] = v
	}
	for k, v := range fields {
		out[k] = v
	}
	return out
}

func (a loggerAdapter) Error(msg string, err error, fields watermill.LogFields) {
	f := a.merge(fields)
	if err != nil {
		f["error"] = err.Error()
	}
	_ = a.l.Error(context.Background(), msg, f)
}

func (a loggerAdapter) Info(msg string, fields watermill.LogFields) {
	a.l.Info(context.Background(), msg, a.merge(fields))
}

func (a loggerAdapter) Debug(msg string, fields watermill.LogFields) {
	a.l.Debug(context.Background(), msg, a.merge(fields))
}

// Trace is logged at debug level
func (a loggerAdapter) Trace(msg string, fields watermill.LogFields) {
	a.l.Debug(context.Background(), msg, a.merge(fields))
}

func (a loggerAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return loggerAdapter{l: a.l, fields: a.merge(fields)}
}
