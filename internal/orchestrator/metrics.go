package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"courier/internal/logging"
	"courier/internal/queue"
)

const meterName = "courier/orchestrator"

type metrics struct {
	enqueued  metric.Int64Counter
	processed metric.Int64Counter
	duration  metric.Float64Histogram
}

// newMetrics registers the orchestrator instruments. Registration failures
// are logged; the returned noop-backed instruments remain safe to use.
func newMetrics(provider metric.MeterProvider, store queue.Store, logger *slog.Logger) *metrics {
	meter := provider.Meter(meterName)
	m := &metrics{}
	var err error

	if m.enqueued, err = meter.Int64Counter("courier.items.enqueued",
		metric.WithDescription("Items accepted by Enqueue"),
		metric.WithUnit("{item}"),
	); err != nil {
		logMetricError(logger, "courier.items.enqueued", err)
	}
	if m.processed, err = meter.Int64Counter("courier.items.processed",
		metric.WithDescription("Items finished by a worker, by outcome"),
		metric.WithUnit("{item}"),
	); err != nil {
		logMetricError(logger, "courier.items.processed", err)
	}
	if m.duration, err = meter.Float64Histogram("courier.items.duration",
		metric.WithDescription("Handler wall time per item"),
		metric.WithUnit("s"),
	); err != nil {
		logMetricError(logger, "courier.items.duration", err)
	}
	if _, err = meter.Int64ObservableGauge("courier.queue.depth",
		metric.WithDescription("Items per status"),
		metric.WithUnit("{item}"),
		metric.WithInt64Callback(func(ctx context.Context, observer metric.Int64Observer) error {
			counts, err := store.StatusCounts(ctx)
			if err != nil {
				return err
			}
			for status, count := range counts {
				observer.Observe(int64(count), metric.WithAttributes(attribute.String("status", string(status))))
			}
			return nil
		}),
	); err != nil {
		logMetricError(logger, "courier.queue.depth", err)
	}
	return m
}

func logMetricError(logger *slog.Logger, name string, err error) {
	logging.WarnWithContext(logger, "metric registration failed", "metric_registration_failed",
		logging.String("instrument", name),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check the otel meter provider"),
		logging.String(logging.FieldImpact, "metric not exported"),
	)
}

func (m *metrics) recordEnqueue(ctx context.Context, taskType queue.TaskType, priority queue.Priority) {
	if m == nil || m.enqueued == nil {
		return
	}
	m.enqueued.Add(ctx, 1, metric.WithAttributes(
		attribute.String("task_type", string(taskType)),
		attribute.String("priority", priority.String()),
	))
}

func (m *metrics) recordOutcome(ctx context.Context, taskType queue.TaskType, pool, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("task_type", string(taskType)),
		attribute.String("pool", pool),
		attribute.String("outcome", outcome),
	)
	if m.processed != nil {
		m.processed.Add(ctx, 1, attrs)
	}
	if m.duration != nil {
		m.duration.Record(ctx, elapsed.Seconds(), attrs)
	}
}
