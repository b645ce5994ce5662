// Package usecase holds the boundary every application operation runs
// through: one span, attempt/success/failure logging, an outcome counter,
// and translation of unexpected faults into INTERNAL_ERROR.
package usecase

import (
	"context"
	"fmt"
	"runtime/debug"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"fleetmaint/internal/domainerr"
	"fleetmaint/internal/logger"
)

const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

var (
	tracer = otel.Tracer("fleetmaint/usecase")
	meter  = otel.Meter("fleetmaint/usecase")
)

// Run executes fn as the operation op. Domain errors are returned unchanged;
// any other error, or a panic, becomes a generic INTERNAL_ERROR and the cause
// is only logged. kvs identify the target (ids only, never field values).
func Run[T any](ctx context.Context, op string, kvs []any, fn func(ctx context.Context) (T, error)) (result T, err error) {
	ctx, span := tracer.Start(ctx, op, trace.WithAttributes(spanAttributes(kvs)...))
	defer span.End()

	ctx = logger.WithKV(logger.WithName(ctx, op), kvs...)
	logger.InfoKV(ctx, "attempt")

	defer func() {
		if r := recover(); r != nil {
			var zero T
			result = zero
			err = domainerr.Internal(fmt.Errorf("panic: %v", r))
			logger.ErrorKV(ctx, "panic recovered", "panic", r, "stack", string(debug.Stack()))
		}
		outcome := finish(ctx, span, err)
		countOutcome(ctx, op, outcome)
	}()

	result, err = fn(ctx)
	if err != nil {
		var zero T
		return zero, translate(ctx, err)
	}
	return result, nil
}

// RunErr is Run for operations without a result value.
func RunErr(ctx context.Context, op string, kvs []any, fn func(ctx context.Context) error) error {
	_, err := Run(ctx, op, kvs, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

func translate(ctx context.Context, err error) error {
	if derr, ok := domainerr.As(err); ok {
		return derr
	}
	logger.ErrorKV(ctx, "unexpected error", "error", err)
	return domainerr.Internal(err)
}

func finish(ctx context.Context, span trace.Span, err error) string {
	if err == nil {
		logger.InfoKV(ctx, "succeeded")
		span.SetStatus(codes.Ok, "")
		return OutcomeSuccess
	}

	code := domainerr.CodeOf(err)
	span.SetAttributes(attribute.String("error.code", string(code)))
	if code == domainerr.CodeInternal || code == domainerr.CodePersistence {
		logger.ErrorKV(ctx, "failed", "code", code)
		span.SetStatus(codes.Error, string(code))
		return OutcomeFailed
	}
	logger.WarnKV(ctx, "rejected", "code", code, "reason", err.Error())
	return OutcomeRejected
}

func countOutcome(ctx context.Context, op, outcome string) {
	counter, err := meter.Int64Counter("fleetmaint.usecase.calls",
		metric.WithDescription("Use case executions by operation and outcome."))
	if err != nil {
		return
	}
	counter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", op),
		attribute.String("outcome", outcome),
	))
}

func spanAttributes(kvs []any) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(kvs)/2)
	for i := 0; i+1 < len(kvs); i += 2 {
		key, ok := kvs[i].(string)
		if !ok {
			continue
		}
		attrs = append(attrs, attribute.String(key, fmt.Sprint(kvs[i+1])))
	}
	return attrs
}
