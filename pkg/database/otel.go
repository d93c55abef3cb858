package database

import (
	"context"
	"regexp"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

// 数据库相关指标；未调用 InitDatabaseMetrics 时保持 nil，插件只做追踪
var (
	dbQueriesTotal  metric.Int64Counter
	dbQueryDuration metric.Float64Histogram
)

// InitDatabaseMetrics 初始化数据库指标
func InitDatabaseMetrics(meter metric.Meter) error {
	var err error

	dbQueriesTotal, err = meter.Int64Counter(
		"db.queries.total",
		metric.WithDescription("Total number of database queries"),
		metric.WithUnit("{query}"),
	)
	if err != nil {
		return err
	}

	dbQueryDuration, err = meter.Float64Histogram(
		"db.query.duration",
		metric.WithDescription("Database query duration"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0),
	)
	return err
}

// TracingPlugin 给每次 GORM 操作建 Span 并记录指标
type TracingPlugin struct {
	tracer       trace.Tracer
	serviceName  string
	maxSQLLength int
}

func NewTracingPlugin(serviceName string) *TracingPlugin {
	if serviceName == "" {
		serviceName = "wapulse"
	}

	return &TracingPlugin{
		tracer:       otel.Tracer(serviceName + ".gorm"),
		serviceName:  serviceName,
		maxSQLLength: 500,
	}
}

// Name 实现 gorm.Plugin 接口
func (p *TracingPlugin) Name() string {
	return "otel_tracing"
}

// Initialize 在增删改查各阶段前后挂回调
func (p *TracingPlugin) Initialize(db *gorm.DB) error {
	cb := db.Callback()

	cb.Query().Before("gorm:query").Register("otel:before_query", p.before)
	cb.Query().After("gorm:query").Register("otel:after_query", p.after)
	cb.Create().Before("gorm:create").Register("otel:before_create", p.before)
	cb.Create().After("gorm:create").Register("otel:after_create", p.after)
	cb.Update().Before("gorm:update").Register("otel:before_update", p.before)
	cb.Update().After("gorm:update").Register("otel:after_update", p.after)
	cb.Delete().Before("gorm:delete").Register("otel:before_delete", p.before)
	cb.Delete().After("gorm:delete").Register("otel:after_delete", p.after)
	cb.Row().Before("gorm:row").Register("otel:before_row", p.before)
	cb.Row().After("gorm:row").Register("otel:after_row", p.after)
	cb.Raw().Before("gorm:raw").Register("otel:before_raw", p.before)
	cb.Raw().After("gorm:raw").Register("otel:after_raw", p.after)

	return nil
}

func (p *TracingPlugin) before(db *gorm.DB) {
	ctx, span := p.tracer.Start(db.Statement.Context, operationName(db),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(semconv.DBSystemPostgreSQL),
	)

	db.InstanceSet("otel:start_time", time.Now())
	db.InstanceSet("otel:span", span)
	db.Statement.Context = ctx
}

func (p *TracingPlugin) after(db *gorm.DB) {
	spanI, ok := db.InstanceGet("otel:span")
	if !ok {
		return
	}
	span, ok := spanI.(trace.Span)
	if !ok {
		return
	}
	defer span.End()

	startI, ok := db.InstanceGet("otel:start_time")
	if !ok {
		return
	}
	startTime, ok := startI.(time.Time)
	if !ok {
		return
	}

	if table := db.Statement.Table; table != "" {
		span.SetAttributes(attribute.String("db.table", table))
	}

	sql := db.Statement.SQL.String()
	if len(sql) > p.maxSQLLength {
		sql = sql[:p.maxSQLLength] + "..."
	}
	span.SetAttributes(semconv.DBStatement(sanitizeSQL(sql)))

	if db.Statement.RowsAffected >= 0 {
		span.SetAttributes(attribute.Int64("db.rows_affected", db.Statement.RowsAffected))
	}

	// 未命中不算错误
	switch {
	case db.Error == nil, db.Error == gorm.ErrRecordNotFound:
		span.SetStatus(codes.Ok, "")
	default:
		span.SetStatus(codes.Error, db.Error.Error())
		span.RecordError(db.Error)
	}

	p.recordMetrics(db.Statement.Context, db, time.Since(startTime).Seconds())
}

func (p *TracingPlugin) recordMetrics(ctx context.Context, db *gorm.DB, seconds float64) {
	if dbQueriesTotal == nil || dbQueryDuration == nil {
		return
	}

	status := "success"
	if db.Error != nil && db.Error != gorm.ErrRecordNotFound {
		status = "error"
	}

	labels := []attribute.KeyValue{
		attribute.String("db.operation", operationName(db)),
		attribute.String("db.status", status),
	}

	dbQueriesTotal.Add(ctx, 1, metric.WithAttributes(labels...))
	dbQueryDuration.Record(ctx, seconds, metric.WithAttributes(labels...))
}

func operationName(db *gorm.DB) string {
	sql := strings.ToUpper(strings.TrimSpace(db.Statement.SQL.String()))
	switch {
	case sql == "":
		return "db.query"
	case strings.HasPrefix(sql, "SELECT"):
		return "db.select"
	case strings.HasPrefix(sql, "INSERT"):
		return "db.insert"
	case strings.HasPrefix(sql, "UPDATE"):
		return "db.update"
	case strings.HasPrefix(sql, "DELETE"):
		return "db.delete"
	default:
		return "db.query"
	}
}

var sensitiveAssign = regexp.MustCompile(`(?i)(password|token|secret)\s*=\s*'[^']*'`)

// sanitizeSQL 遮蔽 SQL 里的凭证字面量
func sanitizeSQL(sql string) string {
	return sensitiveAssign.ReplaceAllString(sql, "$1='***'")
}

// WithTracingPlugin 为 GORM 连接挂上追踪插件
func WithTracingPlugin(db *gorm.DB, serviceName string) error {
	return db.Use(NewTracingPlugin(serviceName))
}
