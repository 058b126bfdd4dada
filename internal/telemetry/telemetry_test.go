package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestNoopTracer(t *testing.T) {
	tracer := NoopTracer()
	assert.NotNil(t, tracer)

	_, span := tracer.Start(context.Background(), "test")
	assert.NotNil(t, span)
	span.End()
}

func TestNoopInstruments(t *testing.T) {
	inst := NoopInstruments()
	assert.NotNil(t, inst)
	assert.NotNil(t, inst.QueryCount)
	assert.NotNil(t, inst.QueryDuration)
	assert.NotNil(t, inst.QueryErrors)
	assert.NotNil(t, inst.ToolDuration)
	assert.NotNil(t, inst.Decisions)

	// Should not panic.
	inst.IncrementQueryCount(context.Background())
	inst.RecordQueryDuration(context.Background(), 100.0)
	inst.RecordDecision(context.Background(), "")
}

func TestProvider_Shutdown_Nil(t *testing.T) {
	var p *Provider
	err := p.Shutdown(context.Background())
	assert.NoError(t, err)
}

func TestOptions_Sampler(t *testing.T) {
	assert.Contains(t, Options{}.sampler().Description(), "AlwaysOnSampler")
	assert.Contains(t, Options{SampleRatio: 1}.sampler().Description(), "AlwaysOnSampler")
	assert.Contains(t, Options{SampleRatio: 0.25}.sampler().Description(), "TraceIDRatioBased{0.25}")
}

func TestSpanRecording(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	defer func() { _ = tp.Shutdown(context.Background()) }()
	tracer := tp.Tracer("test")

	ctx := context.Background()
	_, span := tracer.Start(ctx, "QueryService.Execute")
	span.SetAttributes(attribute.String("gatekeeper.reason", "NOT_READ_ONLY"))
	span.End()

	require.NoError(t, tp.ForceFlush(ctx))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "QueryService.Execute", spans[0].Name)
}

func TestInstruments_RecordDecision(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	inst := newInstrumentsFromMeter(mp.Meter("test"))

	ctx := context.Background()
	inst.RecordDecision(ctx, "")
	inst.RecordDecision(ctx, "")
	inst.RecordDecision(ctx, "SENSITIVE_FIELD")

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	require.Len(t, rm.ScopeMetrics, 1)

	var sum metricdata.Sum[int64]
	for _, m := range rm.ScopeMetrics[0].Metrics {
		if m.Name == "querygate.gatekeeper.decisions" {
			var ok bool
			sum, ok = m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
		}
	}

	counts := map[string]int64{}
	for _, dp := range sum.DataPoints {
		reason, ok := dp.Attributes.Value("gatekeeper.reason")
		require.True(t, ok)
		counts[reason.AsString()] = dp.Value
	}
	assert.Equal(t, map[string]int64{DecisionAccepted: 2, "SENSITIVE_FIELD": 1}, counts)
}

func TestInstruments_QueryCounters(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	inst := newInstrumentsFromMeter(mp.Meter("test"))

	ctx := context.Background()
	inst.IncrementQueryCount(ctx)
	inst.IncrementQueryErrors(ctx)
	inst.RecordToolDuration(ctx, 12)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	require.Len(t, rm.ScopeMetrics, 1)

	var names []string
	for _, m := range rm.ScopeMetrics[0].Metrics {
		names = append(names, m.Name)
	}
	assert.ElementsMatch(t, []string{"querygate.query.count", "querygate.query.errors", "querygate.tool.duration"}, names)
}
