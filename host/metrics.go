package host

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/reglet-dev/toolhost/host"

// Observer records host activity as OpenTelemetry metrics.
type Observer struct {
	invocations metric.Int64Counter
	releases    metric.Int64Counter
	latency     metric.Float64Histogram
	loads       metric.Int64Counter
	inflight    metric.Int64UpDownCounter
}

// NewObserver creates an Observer whose instruments come from meter.
func NewObserver(meter metric.Meter) (*Observer, error) {
	invocations, err := meter.Int64Counter(
		"toolhost.tool.invocations",
		metric.WithDescription("Number of tool invocations by outcome"),
	)
	if err != nil {
		return nil, err
	}
	releases, err := meter.Int64Counter(
		"toolhost.tool.releases",
		metric.WithDescription("Number of result buffers returned to their module"),
	)
	if err != nil {
		return nil, err
	}
	latency, err := meter.Float64Histogram(
		"toolhost.tool.duration",
		metric.WithDescription("Duration of the native tool call in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}
	loads, err := meter.Int64Counter(
		"toolhost.plugin.loads",
		metric.WithDescription("Number of plugin load attempts by outcome"),
	)
	if err != nil {
		return nil, err
	}
	inflight, err := meter.Int64UpDownCounter(
		"toolhost.tool.inflight",
		metric.WithDescription("Tool invocations currently in flight"),
	)
	if err != nil {
		return nil, err
	}

	return &Observer{
		invocations: invocations,
		releases:    releases,
		latency:     latency,
		loads:       loads,
		inflight:    inflight,
	}, nil
}

// defaultObserver binds to the global meter provider, which is a no-op until
// the application installs one.
func defaultObserver() *Observer {
	obs, err := NewObserver(otel.GetMeterProvider().Meter(meterName))
	if err != nil {
		return nil
	}
	return obs
}

func (o *Observer) invocationStarted(ctx context.Context, tool string) {
	if o == nil {
		return
	}
	o.inflight.Add(ctx, 1, metric.WithAttributes(attribute.String("tool", tool)))
}

func (o *Observer) invocationFinished(ctx context.Context, tool, outcome string, elapsed time.Duration) {
	if o == nil {
		return
	}
	toolAttr := attribute.String("tool", tool)
	o.inflight.Add(ctx, -1, metric.WithAttributes(toolAttr))
	o.invocations.Add(ctx, 1, metric.WithAttributes(toolAttr, attribute.String("outcome", outcome)))
	o.latency.Record(ctx, elapsed.Seconds(), metric.WithAttributes(toolAttr))
}

func (o *Observer) bufferReleased(ctx context.Context, tool string) {
	if o == nil {
		return
	}
	o.releases.Add(ctx, 1, metric.WithAttributes(attribute.String("tool", tool)))
}

func (o *Observer) pluginLoaded(ctx context.Context, outcome string) {
	if o == nil {
		return
	}
	o.loads.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
