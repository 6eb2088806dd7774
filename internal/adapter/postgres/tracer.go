package postgres

import (
	"context"
	"strings"
	"time"

	"github.com/ahsanhabibakik/rupomoti/internal/adapter/metrics"
	"github.com/jackc/pgx/v5"
)

// MetricsTracer implements pgx.QueryTracer to collect database metrics
type MetricsTracer struct {
	m *metrics.DBMetrics
}

var _ pgx.QueryTracer = (*MetricsTracer)(nil)

func NewMetricsTracer(m *metrics.DBMetrics) *MetricsTracer {
	return &MetricsTracer{m: m}
}

type queryContextKey struct{}

type queryContext struct {
	startTime time.Time
	queryName string
}

func (t *MetricsTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	return context.WithValue(ctx, queryContextKey{}, queryContext{
		startTime: time.Now(),
		queryName: extractQueryName(data.SQL),
	})
}

func (t *MetricsTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	qctx, ok := ctx.Value(queryContextKey{}).(queryContext)
	if !ok {
		return
	}

	t.m.QueryDuration.WithLabelValues(qctx.queryName).Observe(time.Since(qctx.startTime).Seconds())
	if data.Err != nil {
		t.m.ErrorsTotal.WithLabelValues(qctx.queryName).Inc()
	}
}

// extractQueryName reduces SQL to "<verb> <table>" to keep label cardinality low.
func extractQueryName(sql string) string {
	fields := strings.Fields(sql)
	if len(fields) == 0 {
		return "unknown"
	}

	verb := strings.ToLower(fields[0])
	var marker string
	switch verb {
	case "select", "delete", "with":
		marker = "from"
	case "insert":
		marker = "into"
	case "update":
		if len(fields) > 1 {
			return verb + " " + strings.ToLower(fields[1])
		}
		return verb
	default:
		return verb
	}

	for i, f := range fields[:len(fields)-1] {
		if strings.EqualFold(f, marker) {
			table := strings.ToLower(strings.Trim(fields[i+1], "()"))
			if table != "" {
				return verb + " " + table
			}
		}
	}
	return verb
}
