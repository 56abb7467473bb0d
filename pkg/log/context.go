package log

import (
	"context"

	"github.com/rs/zerolog"
)

type ctxKey struct{}

// WithLogger stores a logger in the context.
func WithLogger(ctx context.Context, logger zerolog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// Ctx retrieves the logger from the context, falling back to the global one.
func Ctx(ctx context.Context) zerolog.Logger {
	if ctx == nil {
		return L()
	}
	if l, ok := ctx.Value(ctxKey{}).(zerolog.Logger); ok {
		return l
	}
	return L()
}

// WithRoom derives a child logger tagged with room and user and stores it in ctx.
func WithRoom(ctx context.Context, roomID, userID string) (context.Context, zerolog.Logger) {
	l := Ctx(ctx).With().Str(FieldRoomID, roomID).Str(FieldUserID, userID).Logger()
	return WithLogger(ctx, l), l
}
