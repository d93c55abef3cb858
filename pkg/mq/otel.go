package mq

import (
	"context"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// RabbitMQ 相关指标；未调用 InitMQMetrics 时保持 nil，发布/消费路径跳过记录
var (
	mqMessagesTotal   metric.Int64Counter
	mqMessageDuration metric.Float64Histogram
	mqPublishErrors   metric.Int64Counter
	mqConsumeErrors   metric.Int64Counter
)

// InitMQMetrics 初始化 RabbitMQ 指标
func InitMQMetrics(meter metric.Meter) error {
	var err error

	mqMessagesTotal, err = meter.Int64Counter(
		"mq.messages.total",
		metric.WithDescription("Total number of RabbitMQ messages"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return err
	}

	mqMessageDuration, err = meter.Float64Histogram(
		"mq.message.duration",
		metric.WithDescription("RabbitMQ message publish/process duration"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5),
	)
	if err != nil {
		return err
	}

	mqPublishErrors, err = meter.Int64Counter(
		"mq.publish.errors",
		metric.WithDescription("Number of RabbitMQ publish errors"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return err
	}

	mqConsumeErrors, err = meter.Int64Counter(
		"mq.consume.errors",
		metric.WithDescription("Number of RabbitMQ consume errors"),
		metric.WithUnit("{error}"),
	)
	return err
}

// PublishTraced 发布消息：注入追踪上下文到消息头并记录指标
func PublishTraced(
	ctx context.Context,
	ch *amqp.Channel,
	serviceName, exchange, routingKey string,
	msg amqp.Publishing,
) error {
	startTime := time.Now()

	tracer := otel.Tracer(serviceName + ".rabbitmq")
	ctx, span := tracer.Start(ctx, "rabbitmq.publish."+exchange, trace.WithAttributes(
		semconv.MessagingSystem("rabbitmq"),
		attribute.String("messaging.destination.kind", "exchange"),
		attribute.String("messaging.rabbitmq.exchange", exchange),
		attribute.String("messaging.rabbitmq.routing_key", routingKey),
	))
	defer span.End()

	headers := make(amqp.Table, len(msg.Headers)+2)
	for k, v := range msg.Headers {
		headers[k] = v
	}
	otel.GetTextMapPropagator().Inject(ctx, &headerCarrier{headers: headers})
	msg.Headers = headers

	err := ch.PublishWithContext(ctx, exchange, routingKey, false, false, msg)

	status := "success"
	if err != nil {
		status = "error"
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
		if mqPublishErrors != nil {
			mqPublishErrors.Add(ctx, 1)
		}
	}

	recordMessage(ctx, "publish", exchange, routingKey, status, time.Since(startTime).Seconds())
	return err
}

// StartDeliverySpan 为单条投递建立处理 Span，返回处理完成后的收尾函数
func StartDeliverySpan(ctx context.Context, serviceName, queue string, msg amqp.Delivery) (context.Context, func(error)) {
	startTime := time.Now()

	msgCtx := otel.GetTextMapPropagator().Extract(ctx, &headerCarrier{headers: msg.Headers})

	tracer := otel.Tracer(serviceName + ".rabbitmq")
	msgCtx, span := tracer.Start(msgCtx, "rabbitmq.process."+queue, trace.WithAttributes(
		semconv.MessagingSystem("rabbitmq"),
		attribute.String("messaging.destination.kind", "queue"),
		attribute.String("messaging.rabbitmq.queue", queue),
		attribute.String("messaging.rabbitmq.exchange", msg.Exchange),
		semconv.MessagingRabbitmqDestinationRoutingKey(msg.RoutingKey),
		semconv.MessagingMessageID(msg.MessageId),
	))

	return msgCtx, func(err error) {
		status := "success"
		if err != nil {
			status = "error"
			span.SetStatus(codes.Error, err.Error())
			span.RecordError(err)
			if mqConsumeErrors != nil {
				mqConsumeErrors.Add(msgCtx, 1)
			}
		}
		span.End()

		recordMessage(msgCtx, "process", msg.Exchange, msg.RoutingKey, status, time.Since(startTime).Seconds())
	}
}

func recordMessage(ctx context.Context, operation, exchange, routingKey, status string, seconds float64) {
	if mqMessagesTotal == nil || mqMessageDuration == nil {
		return
	}

	labels := []attribute.KeyValue{
		semconv.MessagingSystem("rabbitmq"),
		attribute.String("messaging.operation", operation),
		attribute.String("messaging.rabbitmq.exchange", exchange),
		attribute.String("messaging.rabbitmq.routing_key", routingKey),
		attribute.String("messaging.status", status),
	}

	mqMessagesTotal.Add(ctx, 1, metric.WithAttributes(labels...))
	mqMessageDuration.Record(ctx, seconds, metric.WithAttributes(labels...))
}

// headerCarrier 把 amqp.Table 适配成 propagation.TextMapCarrier
type headerCarrier struct {
	headers amqp.Table
}

var _ propagation.TextMapCarrier = (*headerCarrier)(nil)

func (c *headerCarrier) Get(key string) string {
	if val, ok := c.headers[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}

func (c *headerCarrier) Set(key, value string) {
	if c.headers == nil {
		c.headers = make(amqp.Table)
	}
	c.headers[key] = value
}

func (c *headerCarrier) Keys() []string {
	keys := make([]string, 0, len(c.headers))
	for k := range c.headers {
		keys = append(keys, k)
	}
	return keys
}
