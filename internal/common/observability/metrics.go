package observability

import (
	"context"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
)

type Observability struct {
	meterProvider   *metric.MeterProvider
	meter           otelmetric.Meter
	publishCounter  otelmetric.Int64Counter
	publishDuration otelmetric.Float64Histogram
}

func New(serviceName string) *Observability {
	exporter, err := prometheus.New()
	if err != nil {
		log.Printf("Failed to create Prometheus exporter: %v", err)
		return &Observability{}
	}

	provider := metric.NewMeterProvider(metric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter(serviceName)

	publishCounter, _ := meter.Int64Counter(
		"publishes.processed",
		otelmetric.WithDescription("Number of publish attempts processed"),
	)

	publishDuration, _ := meter.Float64Histogram(
		"publishes.duration",
		otelmetric.WithDescription("Publish attempt duration"),
		otelmetric.WithUnit("ms"),
	)

	return &Observability{
		meterProvider:   provider,
		meter:           meter,
		publishCounter:  publishCounter,
		publishDuration: publishDuration,
	}
}

func (o *Observability) RecordPublish(ctx context.Context, platform, status string) {
	if o.publishCounter != nil {
		o.publishCounter.Add(ctx, 1, otelmetric.WithAttributes(
			attribute.String("platform", platform),
			attribute.String("status", status),
		))
	}
}

func (o *Observability) RecordPublishDuration(ctx context.Context, duration time.Duration, status string) {
	if o.publishDuration != nil {
		o.publishDuration.Record(ctx, float64(duration.Milliseconds()), otelmetric.WithAttributes(
			attribute.String("status", status),
		))
	}
}

func (o *Observability) Shutdown() {
	if o.meterProvider != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		o.meterProvider.Shutdown(ctx)
	}
}
