// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/consilium-health/consilium/pkg/errors"
)

// AnalysisMetrics tracks analysis runs, specialist call latency, and
// token consumption.
type AnalysisMetrics struct {
	runCounter      metric.Int64Counter
	runDuration     metric.Float64Histogram
	callDuration    metric.Float64Histogram
	tokenCounter    metric.Int64Counter
	errorCounter    metric.Int64Counter
}

// NewAnalysisMetrics creates the metric instruments on the global meter.
func NewAnalysisMetrics() (*AnalysisMetrics, error) {
	meter := otel.Meter("consilium/analysis")

	runCounter, err := meter.Int64Counter(
		"consilium.runs.total",
		metric.WithDescription("Analysis runs by outcome"),
	)
	if err != nil {
		return nil, err
	}

	runDuration, err := meter.Float64Histogram(
		"consilium.runs.duration_seconds",
		metric.WithDescription("End-to-end analysis duration"),
	)
	if err != nil {
		return nil, err
	}

	callDuration, err := meter.Float64Histogram(
		"consilium.specialist.duration_seconds",
		metric.WithDescription("Per-role provider call duration"),
	)
	if err != nil {
		return nil, err
	}

	tokenCounter, err := meter.Int64Counter(
		"consilium.tokens.total",
		metric.WithDescription("Token usage by role and kind"),
	)
	if err != nil {
		return nil, err
	}

	errorCounter, err := meter.Int64Counter(
		"consilium.errors.total",
		metric.WithDescription("Errors by code and role"),
	)
	if err != nil {
		return nil, err
	}

	return &AnalysisMetrics{
		runCounter:   runCounter,
		runDuration:  runDuration,
		callDuration: callDuration,
		tokenCounter: tokenCounter,
		errorCounter: errorCounter,
	}, nil
}

// RecordRun records a completed analysis run.
func (m *AnalysisMetrics) RecordRun(ctx context.Context, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.runCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	m.runDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordCall records one specialist provider call.
func (m *AnalysisMetrics) RecordCall(ctx context.Context, role string, elapsed time.Duration, promptTokens, completionTokens int) {
	if m == nil {
		return
	}
	roleAttr := attribute.String("role", role)
	m.callDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(roleAttr))
	m.tokenCounter.Add(ctx, int64(promptTokens), metric.WithAttributes(roleAttr, attribute.String("kind", "prompt")))
	m.tokenCounter.Add(ctx, int64(completionTokens), metric.WithAttributes(roleAttr, attribute.String("kind", "completion")))
}

// RecordError records a failed provider call or run.
func (m *AnalysisMetrics) RecordError(ctx context.Context, role string, err error) {
	if m == nil || err == nil {
		return
	}
	m.errorCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("role", role),
		attribute.String("error.code", string(errors.CodeOf(err))),
	))
}
