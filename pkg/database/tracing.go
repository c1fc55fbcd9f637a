package database

import (
	"errors"
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

const (
	keyStart = "otel:start_time"
	keySpan  = "otel:span"

	maxStatementLength = 500
)

// Plugin GORM 链路追踪与查询指标插件
type Plugin struct {
	tracer   trace.Tracer
	queries  metric.Int64Counter
	duration metric.Float64Histogram
	dbName   string
}

// NewPlugin 仪表从全局 provider 获取，otel 未启用时为 no-op。
func NewPlugin(serviceName, dbName string) (*Plugin, error) {
	meter := otel.Meter(serviceName + ".gorm")

	queries, err := meter.Int64Counter(
		"db.queries.total",
		metric.WithDescription("Total number of database queries"),
		metric.WithUnit("{query}"),
	)
	if err != nil {
		return nil, err
	}

	duration, err := meter.Float64Histogram(
		"db.query.duration",
		metric.WithDescription("Database query duration"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5),
	)
	if err != nil {
		return nil, err
	}

	return &Plugin{
		tracer:   otel.Tracer(serviceName + ".gorm"),
		queries:  queries,
		duration: duration,
		dbName:   dbName,
	}, nil
}

func (p *Plugin) Name() string {
	return "plans:otel"
}

func (p *Plugin) Initialize(db *gorm.DB) error {
	cb := db.Callback()

	hooks := []struct {
		name   string
		before func(string, func(*gorm.DB)) error
		after  func(string, func(*gorm.DB)) error
	}{
		{"query", cb.Query().Before("gorm:query").Register, cb.Query().After("gorm:query").Register},
		{"create", cb.Create().Before("gorm:create").Register, cb.Create().After("gorm:create").Register},
		{"update", cb.Update().Before("gorm:update").Register, cb.Update().After("gorm:update").Register},
		{"delete", cb.Delete().Before("gorm:delete").Register, cb.Delete().After("gorm:delete").Register},
		{"row", cb.Row().Before("gorm:row").Register, cb.Row().After("gorm:row").Register},
		{"raw", cb.Raw().Before("gorm:raw").Register, cb.Raw().After("gorm:raw").Register},
	}

	for _, h := range hooks {
		if err := h.before("otel:before_"+h.name, p.before); err != nil {
			return err
		}
		if err := h.after("otel:after_"+h.name, p.after); err != nil {
			return err
		}
	}
	return nil
}

func (p *Plugin) before(db *gorm.DB) {
	ctx, span := p.tracer.Start(db.Statement.Context, "db."+tableName(db),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			semconv.DBSystemPostgreSQL,
			semconv.DBName(p.dbName),
		),
	)
	db.InstanceSet(keyStart, time.Now())
	db.InstanceSet(keySpan, span)
	db.Statement.Context = ctx
}

func (p *Plugin) after(db *gorm.DB) {
	v, ok := db.InstanceGet(keySpan)
	if !ok {
		return
	}
	span, ok := v.(trace.Span)
	if !ok {
		return
	}
	defer span.End()

	op := operation(db.Statement.SQL.String())
	span.SetName("db." + op + " " + tableName(db))
	span.SetAttributes(
		semconv.DBOperation(op),
		semconv.DBStatement(truncate(db.Statement.SQL.String())),
		attribute.Int64("db.rows_affected", db.Statement.RowsAffected),
	)

	status := "success"
	switch {
	case db.Error == nil:
		span.SetStatus(codes.Ok, "")
	case errors.Is(db.Error, gorm.ErrRecordNotFound):
		status = "not_found"
		span.SetStatus(codes.Ok, "record not found")
	default:
		status = "error"
		span.SetStatus(codes.Error, db.Error.Error())
		span.RecordError(db.Error)
	}

	attrs := metric.WithAttributes(
		attribute.String("db.operation", op),
		attribute.String("db.table", tableName(db)),
		attribute.String("db.status", status),
	)
	p.queries.Add(db.Statement.Context, 1, attrs)

	if v, ok := db.InstanceGet(keyStart); ok {
		if start, ok := v.(time.Time); ok {
			p.duration.Record(db.Statement.Context, time.Since(start).Seconds(), attrs)
		}
	}
}

func tableName(db *gorm.DB) string {
	if db.Statement.Table != "" {
		return db.Statement.Table
	}
	return "unknown"
}

// operation 从语句首个关键字推断操作类型；语句只记录占位符形式，不含参数值
func operation(sql string) string {
	sql = strings.TrimSpace(sql)
	if i := strings.IndexByte(sql, ' '); i > 0 {
		sql = sql[:i]
	}
	switch strings.ToUpper(sql) {
	case "SELECT":
		return "select"
	case "INSERT":
		return "insert"
	case "UPDATE":
		return "update"
	case "DELETE":
		return "delete"
	default:
		return "query"
	}
}

func truncate(sql string) string {
	if len(sql) > maxStatementLength {
		return sql[:maxStatementLength] + "..."
	}
	return sql
}
