// Package telemetry provides the context-scoped structured logger every
// engine component pulls its logger from. It substitutes for the
// teacher's go.airbusds-geo.com/log wrapper (an internal module this repo
// cannot fetch) with the zap logger that wrapper itself sits on top of,
// preserving the same "logger lives on the context, Sugar() for call
// sites" shape the teacher's cmd/tiler/cmd/mcog code uses
// (log.Logger(ctx).Sugar()).
package telemetry

import (
	"context"

	"go.uber.org/zap"
)

type ctxKey struct{}

var base *zap.Logger

func init() {
	l, err := zap.NewProduction()
	if err != nil {
		l = zap.NewNop()
	}
	base = l
}

// Structured switches the package-level default logger to production
// (JSON) encoding; the cmd/ front ends select it when --verbose is not set.
func Structured() {
	l, err := zap.NewProduction()
	if err != nil {
		return
	}
	base = l
}

// Development switches the default logger to human-readable console
// encoding; the cmd/ front ends select it when --verbose is set.
func Development() {
	l, err := zap.NewDevelopment()
	if err != nil {
		return
	}
	base = l
}

// With returns a context carrying logger, retrievable via From.
func With(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// From returns the logger attached to ctx, or the package default if none
// was attached.
func From(ctx context.Context) *zap.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*zap.Logger); ok {
		return l
	}
	return base
}

// Sugar is a convenience for From(ctx).Sugar(), mirroring the teacher's
// log.Logger(ctx).Sugar() call sites verbatim.
func Sugar(ctx context.Context) *zap.SugaredLogger {
	return From(ctx).Sugar()
}
