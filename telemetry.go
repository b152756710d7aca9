package phiguard

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/rbaliyan/phiguard"

// Operation names used for spans, metrics and logs.
const (
	opEnsureKey = "EnsureKey"
	opProtect   = "Protect"
	opUnprotect = "Unprotect"
	opWipe      = "Wipe"
)

type instruments struct {
	tracer     trace.Tracer
	operations metric.Int64Counter
	failures   metric.Int64Counter
}

func newInstruments(tp trace.TracerProvider, mp metric.MeterProvider) (*instruments, error) {
	meter := mp.Meter(instrumentationName)

	operations, err := meter.Int64Counter("phiguard.operations",
		metric.WithDescription("Number of data protection operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("phiguard: failed to create operations counter: %w", err)
	}
	failures, err := meter.Int64Counter("phiguard.failures",
		metric.WithDescription("Number of failed data protection operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("phiguard: failed to create failures counter: %w", err)
	}

	return &instruments{
		tracer:     tp.Tracer(instrumentationName),
		operations: operations,
		failures:   failures,
	}, nil
}

func (i *instruments) start(ctx context.Context, op string) (context.Context, trace.Span) {
	return i.tracer.Start(ctx, "phiguard."+op)
}

// finish records the outcome of op. Only the error kind is attached to the
// span; error messages may carry field names but never payload data.
func (i *instruments) finish(ctx context.Context, span trace.Span, op string, err error) {
	defer span.End()

	opAttr := attribute.String("operation", op)
	i.operations.Add(ctx, 1, metric.WithAttributes(opAttr))
	if err == nil {
		return
	}

	kind := errorKind(err)
	i.failures.Add(ctx, 1, metric.WithAttributes(opAttr, attribute.String("error.kind", kind)))
	span.SetAttributes(attribute.String("error.kind", kind))
	span.SetStatus(codes.Error, kind)
}
