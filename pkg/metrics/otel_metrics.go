package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	dbotel "WaPulse/pkg/database"
	mqotel "WaPulse/pkg/mq"
	rdotel "WaPulse/pkg/redis"
)

// OTelMetrics OpenTelemetry 指标集合
type OTelMetrics struct {
	// 派发相关指标
	MessagesSentTotal    metric.Int64Counter
	MessagesFailedTotal  metric.Int64Counter
	DispatchSkippedTotal metric.Int64Counter
	SendDuration         metric.Float64Histogram
	DispatchBacklog      metric.Int64UpDownCounter

	// 触发器相关指标
	TriggersFiredTotal      metric.Int64Counter
	TriggersSuppressedTotal metric.Int64Counter

	// 展开任务相关指标
	ExpansionMessagesTotal metric.Int64Counter

	// HTTP 相关指标
	HTTPServerRequestTotal   metric.Int64Counter
	HTTPServerDuration       metric.Float64Histogram
	HTTPServerActiveRequests metric.Int64UpDownCounter
}

var (
	metrics *OTelMetrics
	meter   = otel.Meter("wapulse")
)

// InitMetrics 初始化 OpenTelemetry 指标
func InitMetrics() error {
	var err error

	metrics = &OTelMetrics{}

	metrics.MessagesSentTotal, err = meter.Int64Counter(
		"messages_sent_total",
		metric.WithDescription("Total number of chat messages sent"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return err
	}

	metrics.MessagesFailedTotal, err = meter.Int64Counter(
		"messages_failed_total",
		metric.WithDescription("Total number of chat messages that failed to send"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return err
	}

	metrics.DispatchSkippedTotal, err = meter.Int64Counter(
		"dispatch_skipped_total",
		metric.WithDescription("Due messages skipped because the tenant session was not ready"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return err
	}

	metrics.SendDuration, err = meter.Float64Histogram(
		"message_send_duration_seconds",
		metric.WithDescription("Time spent on a single transport send"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return err
	}

	metrics.DispatchBacklog, err = meter.Int64UpDownCounter(
		"dispatch_backlog",
		metric.WithDescription("Due messages picked up in the current tick"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return err
	}

	metrics.TriggersFiredTotal, err = meter.Int64Counter(
		"triggers_fired_total",
		metric.WithDescription("Bot rules that matched and dispatched a response"),
		metric.WithUnit("{trigger}"),
	)
	if err != nil {
		return err
	}

	metrics.TriggersSuppressedTotal, err = meter.Int64Counter(
		"triggers_suppressed_total",
		metric.WithDescription("Bot rule matches suppressed by cooldown, dedup or filters"),
		metric.WithUnit("{trigger}"),
	)
	if err != nil {
		return err
	}

	metrics.ExpansionMessagesTotal, err = meter.Int64Counter(
		"expansion_messages_total",
		metric.WithDescription("Messages created by async expansion workers"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return err
	}

	metrics.HTTPServerRequestTotal, err = meter.Int64Counter(
		"http_server_request_total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return err
	}

	metrics.HTTPServerDuration, err = meter.Float64Histogram(
		"http_server_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return err
	}

	metrics.HTTPServerActiveRequests, err = meter.Int64UpDownCounter(
		"http_server_active_requests",
		metric.WithDescription("Number of in-flight HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return err
	}

	// 存储层指标挂在同一个 meter 上
	if err := dbotel.InitDatabaseMetrics(meter); err != nil {
		return err
	}
	if err := rdotel.InitRedisMetrics(meter); err != nil {
		return err
	}
	return mqotel.InitMQMetrics(meter)
}

// GetMetrics 返回全局指标实例，未初始化时为 nil
func GetMetrics() *OTelMetrics {
	return metrics
}

func (m *OTelMetrics) RecordMessageSent(ctx context.Context, tenant, kind string, duration float64) {
	attrs := metric.WithAttributes(
		attribute.String("tenant", tenant),
		attribute.String("kind", kind),
	)
	m.MessagesSentTotal.Add(ctx, 1, attrs)
	m.SendDuration.Record(ctx, duration, attrs)
}

func (m *OTelMetrics) RecordMessageFailed(ctx context.Context, tenant, kind, reason string, duration float64) {
	m.MessagesFailedTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tenant", tenant),
		attribute.String("kind", kind),
		attribute.String("reason", reason),
	))
	m.SendDuration.Record(ctx, duration, metric.WithAttributes(
		attribute.String("tenant", tenant),
		attribute.String("kind", kind),
	))
}

func (m *OTelMetrics) RecordDispatchSkipped(ctx context.Context, tenant string, count int64) {
	m.DispatchSkippedTotal.Add(ctx, count, metric.WithAttributes(
		attribute.String("tenant", tenant),
	))
}

func (m *OTelMetrics) RecordTriggerFired(ctx context.Context, tenant string) {
	m.TriggersFiredTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tenant", tenant),
	))
}

func (m *OTelMetrics) RecordTriggerSuppressed(ctx context.Context, tenant, reason string) {
	m.TriggersSuppressedTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tenant", tenant),
		attribute.String("reason", reason),
	))
}

func (m *OTelMetrics) RecordExpansion(ctx context.Context, kind string, count int64) {
	m.ExpansionMessagesTotal.Add(ctx, count, metric.WithAttributes(
		attribute.String("kind", kind),
	))
}

func (m *OTelMetrics) RecordHTTPRequest(ctx context.Context, method, path string, status int, duration float64) {
	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("path", path),
		attribute.String("status", fmt.Sprintf("%d", status)),
	)
	m.HTTPServerRequestTotal.Add(ctx, 1, attrs)
	m.HTTPServerDuration.Record(ctx, duration, attrs)
}
