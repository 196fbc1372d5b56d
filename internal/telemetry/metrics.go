package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/WailSalutem-Health-Care/telemed-dashboard"

// Metrics holds all custom metrics for the dashboard
type Metrics struct {
	// API client metrics
	APIRequestsTotal metric.Int64Counter
	APIDurationMs    metric.Float64Histogram

	// Panel metrics
	PanelRefreshTotal  metric.Int64Counter
	StaleDiscardsTotal metric.Int64Counter
	RefreshCyclesTotal metric.Int64Counter

	// Auth metrics
	AuthFailuresTotal metric.Int64Counter
}

// InitMetrics creates the metrics on the global meter provider.
func InitMetrics() (*Metrics, error) {
	return NewMetrics(otel.Meter(meterName))
}

// NewMetrics creates the metrics on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	apiRequestsTotal, err := meter.Int64Counter(
		"api_client_requests_total",
		metric.WithDescription("Total number of backend API requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	apiDurationMs, err := meter.Float64Histogram(
		"api_client_duration_milliseconds",
		metric.WithDescription("Backend API request duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	panelRefreshTotal, err := meter.Int64Counter(
		"panel_refresh_total",
		metric.WithDescription("Total number of applied panel refreshes"),
		metric.WithUnit("{refresh}"),
	)
	if err != nil {
		return nil, err
	}

	staleDiscardsTotal, err := meter.Int64Counter(
		"panel_stale_discards_total",
		metric.WithDescription("Total number of panel results discarded as stale"),
		metric.WithUnit("{result}"),
	)
	if err != nil {
		return nil, err
	}

	refreshCyclesTotal, err := meter.Int64Counter(
		"dashboard_refresh_cycles_total",
		metric.WithDescription("Total number of full dashboard refreshes started"),
		metric.WithUnit("{cycle}"),
	)
	if err != nil {
		return nil, err
	}

	authFailuresTotal, err := meter.Int64Counter(
		"auth_failures_total",
		metric.WithDescription("Total number of authentication failures"),
		metric.WithUnit("{failure}"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		APIRequestsTotal:   apiRequestsTotal,
		APIDurationMs:      apiDurationMs,
		PanelRefreshTotal:  panelRefreshTotal,
		StaleDiscardsTotal: staleDiscardsTotal,
		RefreshCyclesTotal: refreshCyclesTotal,
		AuthFailuresTotal:  authFailuresTotal,
	}, nil
}

// RecordAPIRequest records one backend call
func (m *Metrics) RecordAPIRequest(ctx context.Context, op string, statusCode int, durationMs float64, outcome string) {
	attrs := []attribute.KeyValue{
		attribute.String("operation", op),
		attribute.Int("http_status_code", statusCode),
		attribute.String("outcome", outcome),
	}

	m.APIRequestsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.APIDurationMs.Record(ctx, durationMs, metric.WithAttributes(attrs...))
}

// RecordPanelRefresh records an applied panel refresh
func (m *Metrics) RecordPanelRefresh(ctx context.Context, panel, outcome string) {
	m.PanelRefreshTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("panel", panel),
		attribute.String("outcome", outcome),
	))
}

// RecordStaleDiscard records a result dropped because a newer request won
func (m *Metrics) RecordStaleDiscard(ctx context.Context, panel string) {
	m.StaleDiscardsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("panel", panel),
	))
}

// RecordRefreshCycle records a full dashboard refresh
func (m *Metrics) RecordRefreshCycle(ctx context.Context, trigger string) {
	m.RefreshCyclesTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("trigger", trigger),
	))
}

// RecordAuthFailure records an authentication failure metric
func (m *Metrics) RecordAuthFailure(ctx context.Context, reason string) {
	m.AuthFailuresTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("reason", reason),
	))
}
