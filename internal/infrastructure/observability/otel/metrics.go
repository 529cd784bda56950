package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics メトリクス定義
type Metrics struct {
	// セッション開始数
	SessionCount metric.Int64Counter

	// セッション終端数（succeeded/failed/cancelled別）
	SessionResolvedCount metric.Int64Counter

	// セッションの開始から解決までの時間
	SessionDuration metric.Float64Histogram

	// ポーリング試行数
	PollCount metric.Int64Counter

	// リクエスト数
	RequestCount metric.Int64Counter

	// レスポンス時間
	ResponseTime metric.Float64Histogram

	// エラー率
	ErrorCount metric.Int64Counter
}

// NewMetrics 新しいMetricsを作成
func NewMetrics(meterName string) (*Metrics, error) {
	meter := otel.Meter(meterName)

	sessionCount, err := meter.Int64Counter(
		"checkout_sessions_total",
		metric.WithDescription("Total number of checkout sessions started"),
	)
	if err != nil {
		return nil, err
	}

	sessionResolvedCount, err := meter.Int64Counter(
		"checkout_sessions_resolved_total",
		metric.WithDescription("Total number of checkout sessions reaching a terminal state"),
	)
	if err != nil {
		return nil, err
	}

	sessionDuration, err := meter.Float64Histogram(
		"checkout_session_duration_seconds",
		metric.WithDescription("Time from session start to terminal state in seconds"),
	)
	if err != nil {
		return nil, err
	}

	pollCount, err := meter.Int64Counter(
		"checkout_polls_total",
		metric.WithDescription("Total number of provider status polls"),
	)
	if err != nil {
		return nil, err
	}

	requestCount, err := meter.Int64Counter(
		"requests_total",
		metric.WithDescription("Total number of requests"),
	)
	if err != nil {
		return nil, err
	}

	responseTime, err := meter.Float64Histogram(
		"response_time_seconds",
		metric.WithDescription("Response time in seconds"),
	)
	if err != nil {
		return nil, err
	}

	errorCount, err := meter.Int64Counter(
		"errors_total",
		metric.WithDescription("Total number of errors"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		SessionCount:         sessionCount,
		SessionResolvedCount: sessionResolvedCount,
		SessionDuration:      sessionDuration,
		PollCount:            pollCount,
		RequestCount:         requestCount,
		ResponseTime:         responseTime,
		ErrorCount:           errorCount,
	}, nil
}

// RecordSessionStarted セッション開始を記録
func (m *Metrics) RecordSessionStarted(ctx context.Context, method string) {
	m.SessionCount.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("method", method),
		),
	)
}

// RecordSessionResolved セッションの終端到達を記録
func (m *Metrics) RecordSessionResolved(ctx context.Context, method, state string, durationSeconds float64) {
	m.SessionResolvedCount.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("method", method),
			attribute.String("state", state),
		),
	)
	m.SessionDuration.Record(ctx, durationSeconds,
		metric.WithAttributes(
			attribute.String("method", method),
			attribute.String("state", state),
		),
	)
}

// RecordPoll ポーリング試行を記録
func (m *Metrics) RecordPoll(ctx context.Context, providerName, outcome string) {
	m.PollCount.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", providerName),
			attribute.String("outcome", outcome),
		),
	)
}

// RecordRequest リクエストを記録
func (m *Metrics) RecordRequest(ctx context.Context, method, path string) {
	m.RequestCount.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("method", method),
			attribute.String("path", path),
		),
	)
}

// RecordResponseTime レスポンス時間を記録
func (m *Metrics) RecordResponseTime(ctx context.Context, method, path string, duration float64) {
	m.ResponseTime.Record(ctx, duration,
		metric.WithAttributes(
			attribute.String("method", method),
			attribute.String("path", path),
		),
	)
}

// RecordError エラーを記録
func (m *Metrics) RecordError(ctx context.Context, errorType string) {
	m.ErrorCount.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("error_type", errorType),
		),
	)
}
