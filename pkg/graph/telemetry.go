package graph

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	tracer = otel.Tracer("tessera.graph")
	meter  = otel.Meter("tessera.graph")
)

var (
	fetchTotal   metric.Int64Counter
	loadLatency  metric.Float64Histogram
	loadFetched  metric.Int64Histogram
	saveOutcomes metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics creates the instruments on first use.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		fetchTotal, err = meter.Int64Counter(
			"tessera_fetch_total",
			metric.WithDescription("Documents read from the bucket"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		loadLatency, err = meter.Float64Histogram(
			"tessera_load_duration_seconds",
			metric.WithDescription("Duration of graph load operations"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		loadFetched, err = meter.Int64Histogram(
			"tessera_load_fetched",
			metric.WithDescription("Placeholders fetched per load"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		saveOutcomes, err = meter.Int64Counter(
			"tessera_save_objects_total",
			metric.WithDescription("Objects handled by save, by outcome"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func recordFetch(ctx context.Context, success bool) {
	if err := initMetrics(); err != nil {
		return
	}
	fetchTotal.Add(ctx, 1, metric.WithAttributes(attribute.Bool("success", success)))
}

func recordLoad(ctx context.Context, d time.Duration, fetched int, success bool) {
	if err := initMetrics(); err != nil {
		return
	}
	attrs := metric.WithAttributes(attribute.Bool("success", success))
	loadLatency.Record(ctx, d.Seconds(), attrs)
	loadFetched.Record(ctx, int64(fetched), attrs)
}

func recordSave(ctx context.Context, written, unchanged, skipped int) {
	if err := initMetrics(); err != nil {
		return
	}
	for outcome, n := range map[string]int{"written": written, "unchanged": unchanged, "skipped": skipped} {
		if n > 0 {
			saveOutcomes.Add(ctx, int64(n), metric.WithAttributes(attribute.String("outcome", outcome)))
		}
	}
}
