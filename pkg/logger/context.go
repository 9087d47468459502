package logger

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type fieldsCtxKey struct{}

// ContextWithFields returns a copy of ctx carrying fields that every *WithContext
// log call made with the returned context will include.
func ContextWithFields(ctx context.Context, fields ...zap.Field) context.Context {
	existing := fieldsFromContext(ctx)
	merged := make([]zap.Field, 0, len(existing)+len(fields))
	merged = append(merged, existing...)
	merged = append(merged, fields...)
	return context.WithValue(ctx, fieldsCtxKey{}, merged)
}

func fieldsFromContext(ctx context.Context) []zap.Field {
	if ctx == nil {
		return nil
	}
	fields, _ := ctx.Value(fieldsCtxKey{}).([]zap.Field)
	return fields
}

func ctxFields(ctx context.Context) []zap.Field {
	fields := fieldsFromContext(ctx)
	if ctx == nil {
		return fields
	}

	spanCtx := trace.SpanContextFromContext(ctx)
	if spanCtx.TraceID().IsValid() {
		fields = append(fields[:len(fields):len(fields)], zap.String("trace_id", spanCtx.TraceID().String()))
	}
	return fields
}
