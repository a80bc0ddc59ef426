package log

import (
	"context"

	"github.com/google/uuid"
)

type ctxIDKeyType string

func (k ctxIDKeyType) String() string {
	return string(k)
}

var CtxIDKey = ctxIDKeyType("ID")

// WithID adds a correlation ID to the ctx. If one already exists, it's a no-op
func WithID(ctx context.Context) context.Context {
	if GetID(ctx) != uuid.Nil {
		return ctx
	}
	return context.WithValue(ctx, CtxIDKey, uuid.New())
}

// GetID returns the correlation ID from the context, or uuid.Nil if there is none
func GetID(ctx context.Context) uuid.UUID {
	id, ok := ctx.Value(CtxIDKey).(uuid.UUID)
	if !ok {
		return uuid.Nil
	}
	return id
}

// WithGivenID sets id as the correlation ID of the ctx, replacing any existing one
func WithGivenID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, CtxIDKey, id)
}
