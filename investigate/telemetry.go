package investigate

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/lattice-osint/engine/entity"
)

// otelInstruments holds the OpenTelemetry instruments for the controller.
// Created once by WithOTel and reused for every dispatch.
type otelInstruments struct {
	tracer trace.Tracer

	// dispatchCounter increments once per completed dispatch.
	dispatchCounter metric.Int64Counter

	// upgradeCounter increments once per cascade promotion.
	upgradeCounter metric.Int64Counter

	// discoveredCounter counts newly discovered entities.
	discoveredCounter metric.Int64Counter

	// durationHistogram records dispatch duration in milliseconds.
	durationHistogram metric.Float64Histogram
}

// WithOTel enables tracing and metrics for the controller. Either argument
// may be nil to enable only the other; instrument creation errors surface
// on the first recorded dispatch as log output, never as a failed run.
func WithOTel(tracer trace.Tracer, meter metric.Meter) Option {
	return func(c *Controller) {
		inst := &otelInstruments{tracer: tracer}
		if meter != nil {
			if err := inst.init(meter); err != nil {
				c.logger.Warn("failed to create otel instruments, metrics disabled", "error", err)
			}
		}
		c.otel = inst
	}
}

func (o *otelInstruments) init(meter metric.Meter) error {
	var err error

	o.dispatchCounter, err = meter.Int64Counter(
		"investigate.dispatches",
		metric.WithDescription("Number of provider dispatches performed"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("create dispatch counter: %w", err)
	}

	o.upgradeCounter, err = meter.Int64Counter(
		"investigate.upgrades",
		metric.WithDescription("Number of cascade promotions"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("create upgrade counter: %w", err)
	}

	o.discoveredCounter, err = meter.Int64Counter(
		"investigate.entities_discovered",
		metric.WithDescription("Number of newly discovered entities"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("create discovered counter: %w", err)
	}

	o.durationHistogram, err = meter.Float64Histogram(
		"investigate.dispatch.duration",
		metric.WithDescription("Dispatch duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return fmt.Errorf("create duration histogram: %w", err)
	}

	return nil
}

// startDispatchSpan opens a span for one dispatch. Returns the original
// context and a nil span when tracing is not configured.
func (c *Controller) startDispatchSpan(ctx context.Context, e *entity.Entity, status entity.VerificationStatus, depth int) (context.Context, trace.Span) {
	if c.otel == nil || c.otel.tracer == nil {
		return ctx, nil
	}
	ctx, span := c.otel.tracer.Start(ctx, "investigate.dispatch")
	span.SetAttributes(
		attribute.String("entity.id", e.ID),
		attribute.String("entity.type", string(e.Type)),
		attribute.String("entity.status", string(status)),
		attribute.Int("dispatch.depth", depth),
	)
	return ctx, span
}

// endDispatchSpan closes the dispatch span and records metrics.
func (c *Controller) endDispatchSpan(ctx context.Context, span trace.Span, status entity.VerificationStatus, outcome string, elapsed time.Duration, discovered int) {
	if span != nil {
		span.SetAttributes(
			attribute.String("dispatch.outcome", outcome),
			attribute.Int("dispatch.discovered", discovered),
		)
		span.End()
	}
	if c.otel == nil {
		return
	}

	opts := metric.WithAttributes(
		attribute.String("status", string(status)),
		attribute.String("outcome", outcome),
	)
	if c.otel.dispatchCounter != nil {
		c.otel.dispatchCounter.Add(ctx, 1, opts)
	}
	if c.otel.discoveredCounter != nil && discovered > 0 {
		c.otel.discoveredCounter.Add(ctx, int64(discovered), opts)
	}
	if c.otel.durationHistogram != nil {
		c.otel.durationHistogram.Record(ctx, float64(elapsed.Milliseconds()), opts)
	}
}

// recordUpgrade counts one cascade promotion.
func (c *Controller) recordUpgrade(ctx context.Context) {
	if c.otel != nil && c.otel.upgradeCounter != nil {
		c.otel.upgradeCounter.Add(ctx, 1)
	}
}
