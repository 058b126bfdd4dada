package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "github.com/guillermoBallester/querygate"

// DecisionAccepted is the gatekeeper.reason value recorded for accepted queries.
const DecisionAccepted = "ACCEPTED"

// Instruments holds pre-created OTel metric instruments.
type Instruments struct {
	QueryCount    metric.Int64Counter
	QueryDuration metric.Float64Histogram
	QueryErrors   metric.Int64Counter
	ToolDuration  metric.Float64Histogram
	Decisions     metric.Int64Counter
}

// NewInstruments creates metric instruments from the global MeterProvider.
func NewInstruments() *Instruments {
	return newInstrumentsFromMeter(otel.Meter(meterName))
}

// NoopInstruments returns instruments that record nothing.
func NoopInstruments() *Instruments {
	return newInstrumentsFromMeter(noop.NewMeterProvider().Meter(meterName))
}

func newInstrumentsFromMeter(meter metric.Meter) *Instruments {
	// OTel SDK returns noop instruments on error; safe to discard.
	queryCount, _ := meter.Int64Counter("querygate.query.count",
		metric.WithDescription("Queries accepted by the gatekeeper and executed successfully"),
	)
	queryDuration, _ := meter.Float64Histogram("querygate.query.duration",
		metric.WithDescription("SQL query execution duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	queryErrors, _ := meter.Int64Counter("querygate.query.errors",
		metric.WithDescription("Queries that were rejected or failed to execute"),
	)
	toolDuration, _ := meter.Float64Histogram("querygate.tool.duration",
		metric.WithDescription("MCP tool call duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	decisions, _ := meter.Int64Counter("querygate.gatekeeper.decisions",
		metric.WithDescription("Gatekeeper decisions by reason"),
	)

	return &Instruments{
		QueryCount:    queryCount,
		QueryDuration: queryDuration,
		QueryErrors:   queryErrors,
		ToolDuration:  toolDuration,
		Decisions:     decisions,
	}
}

func (i *Instruments) RecordQueryDuration(ctx context.Context, ms float64) {
	i.QueryDuration.Record(ctx, ms)
}

func (i *Instruments) IncrementQueryCount(ctx context.Context) {
	i.QueryCount.Add(ctx, 1)
}

func (i *Instruments) IncrementQueryErrors(ctx context.Context) {
	i.QueryErrors.Add(ctx, 1)
}

func (i *Instruments) RecordToolDuration(ctx context.Context, ms float64) {
	i.ToolDuration.Record(ctx, ms)
}

// RecordDecision counts a gatekeeper decision. An empty reason means accepted.
func (i *Instruments) RecordDecision(ctx context.Context, reason string) {
	if reason == "" {
		reason = DecisionAccepted
	}
	i.Decisions.Add(ctx, 1, metric.WithAttributes(attribute.String("gatekeeper.reason", reason)))
}
