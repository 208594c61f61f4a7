package pdataconv

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/collector/pdata/pcommon"
	"go.opentelemetry.io/collector/pdata/plog"
	"go.opentelemetry.io/collector/pdata/pmetric"
	"go.opentelemetry.io/collector/pdata/ptrace"

	"github.com/deepaksharma/signalpipe/attribute"
	"github.com/deepaksharma/signalpipe/logs"
	"github.com/deepaksharma/signalpipe/metric"
	"github.com/deepaksharma/signalpipe/resource"
	"github.com/deepaksharma/signalpipe/trace"
)

func testResource(t *testing.T) *resource.Resource {
	t.Helper()
	return resource.New(resource.Options{
		ServiceName:          "checkout",
		DisableHostDetection: true,
	})
}

func endSpan(tr *trace.Tracer, name string, kvs ...attribute.KeyValue) *trace.Span {
	_, s := tr.StartSpan(context.Background(), name, trace.WithAttributes(kvs...))
	s.End()
	return s
}

func TestTracesConversion(t *testing.T) {
	tr := trace.NewTracer(trace.Scope{Name: "svc", Version: "1.2.3"}, trace.AlwaysOn(), nil)
	ctx, parent := tr.StartSpan(context.Background(), "parent", trace.WithKind(trace.KindServer))
	_, child := tr.StartSpan(ctx, "child", trace.WithKind(trace.KindClient))
	child.SetAttributes(attribute.Int("retries", 2), attribute.Bool("cache", true))
	child.AddEvent("lookup", attribute.String("table", "users"))
	child.RecordException(errors.New("timeout"))
	child.End()
	parent.SetStatus(trace.StatusOK, "")
	parent.End()

	td := Traces(testResource(t), []*trace.Span{parent, child})

	require.Equal(t, 1, td.ResourceSpans().Len())
	rs := td.ResourceSpans().At(0)
	svc, ok := rs.Resource().Attributes().Get("service.name")
	require.True(t, ok)
	assert.Equal(t, "checkout", svc.Str())

	require.Equal(t, 1, rs.ScopeSpans().Len(), "same scope collapses into one block")
	ss := rs.ScopeSpans().At(0)
	assert.Equal(t, "svc", ss.Scope().Name())
	assert.Equal(t, "1.2.3", ss.Scope().Version())
	require.Equal(t, 2, ss.Spans().Len())

	p := ss.Spans().At(0)
	assert.Equal(t, "parent", p.Name())
	assert.Equal(t, ptrace.SpanKindServer, p.Kind())
	assert.Equal(t, pcommon.TraceID(parent.Context().TraceID), p.TraceID())
	assert.Equal(t, pcommon.SpanID(parent.Context().SpanID), p.SpanID())
	assert.True(t, p.ParentSpanID().IsEmpty())
	assert.Equal(t, ptrace.StatusCodeOk, p.Status().Code())

	c := ss.Spans().At(1)
	assert.Equal(t, pcommon.TraceID(parent.Context().TraceID), c.TraceID())
	assert.Equal(t, pcommon.SpanID(parent.Context().SpanID), c.ParentSpanID())
	assert.Equal(t, ptrace.SpanKindClient, c.Kind())
	assert.Equal(t, ptrace.StatusCodeError, c.Status().Code())
	assert.Equal(t, "timeout", c.Status().Message())
	retries, ok := c.Attributes().Get("retries")
	require.True(t, ok)
	assert.Equal(t, int64(2), retries.Int())
	require.Equal(t, 2, c.Events().Len())
	assert.Equal(t, "lookup", c.Events().At(0).Name())
	assert.Equal(t, "exception", c.Events().At(1).Name())
	assert.False(t, c.EndTimestamp().AsTime().Before(c.StartTimestamp().AsTime()))
}

func TestTracesScopeGrouping(t *testing.T) {
	a := trace.NewTracer(trace.Scope{Name: "a"}, trace.AlwaysOn(), nil)
	b := trace.NewTracer(trace.Scope{Name: "b"}, trace.AlwaysOn(), nil)
	td := Traces(testResource(t), []*trace.Span{endSpan(a, "s1"), endSpan(b, "s2"), endSpan(a, "s3")})

	rs := td.ResourceSpans().At(0)
	require.Equal(t, 2, rs.ScopeSpans().Len())
	total := 0
	for i := 0; i < rs.ScopeSpans().Len(); i++ {
		total += rs.ScopeSpans().At(i).Spans().Len()
	}
	assert.Equal(t, 3, total)
}

func TestMetricsConversion(t *testing.T) {
	now := time.Now()
	start := now.Add(-time.Minute)
	attrs := attribute.NewSet(attribute.String("route", "/pay"))
	points := []metric.Point{
		{Meter: "svc", Instrument: "requests.total", Kind: metric.KindCounter, Attributes: attrs, Start: start, Time: now, Value: 42},
		{Meter: "svc", Instrument: "queue.depth", Kind: metric.KindGauge, Attributes: attribute.NewSet(), Start: start, Time: now, Value: 7},
		{
			Meter: "svc", Instrument: "latency.ms", Kind: metric.KindHistogram, Attributes: attribute.NewSet(),
			Start: start, Time: now,
			Bounds: []float64{10, 100}, BucketCounts: []uint64{1, 2, 3},
			Count: 6, Sum: 480, Min: 4, Max: 400, HasMinMax: true,
		},
	}

	md := Metrics(testResource(t), points)

	require.Equal(t, 1, md.ResourceMetrics().Len())
	rm := md.ResourceMetrics().At(0)
	require.Equal(t, 1, rm.ScopeMetrics().Len())
	sm := rm.ScopeMetrics().At(0)
	assert.Equal(t, "svc", sm.Scope().Name())
	require.Equal(t, 3, sm.Metrics().Len())

	sum := sm.Metrics().At(0)
	assert.Equal(t, "requests.total", sum.Name())
	require.Equal(t, pmetric.MetricTypeSum, sum.Type())
	assert.True(t, sum.Sum().IsMonotonic())
	assert.Equal(t, pmetric.AggregationTemporalityCumulative, sum.Sum().AggregationTemporality())
	dp := sum.Sum().DataPoints().At(0)
	assert.Equal(t, 42.0, dp.DoubleValue())
	route, ok := dp.Attributes().Get("route")
	require.True(t, ok)
	assert.Equal(t, "/pay", route.Str())
	assert.Equal(t, pcommon.NewTimestampFromTime(start), dp.StartTimestamp())
	assert.Equal(t, pcommon.NewTimestampFromTime(now), dp.Timestamp())

	gauge := sm.Metrics().At(1)
	require.Equal(t, pmetric.MetricTypeGauge, gauge.Type())
	assert.Equal(t, 7.0, gauge.Gauge().DataPoints().At(0).DoubleValue())

	hist := sm.Metrics().At(2)
	require.Equal(t, pmetric.MetricTypeHistogram, hist.Type())
	hdp := hist.Histogram().DataPoints().At(0)
	assert.Equal(t, []float64{10, 100}, hdp.ExplicitBounds().AsRaw())
	assert.Equal(t, []uint64{1, 2, 3}, hdp.BucketCounts().AsRaw())
	assert.Equal(t, uint64(6), hdp.Count())
	assert.Equal(t, 480.0, hdp.Sum())
	assert.Equal(t, 4.0, hdp.Min())
	assert.Equal(t, 400.0, hdp.Max())
}

func TestMetricsSameInstrumentSharesMetric(t *testing.T) {
	now := time.Now()
	points := []metric.Point{
		{Meter: "svc", Instrument: "n", Kind: metric.KindCounter, Attributes: attribute.NewSet(attribute.String("a", "1")), Time: now, Value: 1},
		{Meter: "svc", Instrument: "n", Kind: metric.KindCounter, Attributes: attribute.NewSet(attribute.String("a", "2")), Time: now, Value: 2},
	}
	md := Metrics(testResource(t), points)
	sm := md.ResourceMetrics().At(0).ScopeMetrics().At(0)
	require.Equal(t, 1, sm.Metrics().Len(), "streams of one instrument share a metric")
	assert.Equal(t, 2, sm.Metrics().At(0).Sum().DataPoints().Len())
}

func TestLogsConversion(t *testing.T) {
	now := time.Now()
	tid := trace.NewTraceID()
	sid := trace.NewSpanID()
	records := []*logs.Record{
		{
			Time: now, Observed: now, Severity: logs.SeverityError, Body: "payment failed",
			Attributes: attribute.NewSet(attribute.String("order", "o-1")),
			TraceID:    tid, SpanID: sid, Scope: "checkout",
		},
		{
			Time: now, Observed: now, Severity: logs.SeverityInfo, Body: "ok",
			Attributes: attribute.NewSet(), Scope: "checkout",
		},
	}

	ld := Logs(testResource(t), records)

	require.Equal(t, 1, ld.ResourceLogs().Len())
	rl := ld.ResourceLogs().At(0)
	require.Equal(t, 1, rl.ScopeLogs().Len())
	sl := rl.ScopeLogs().At(0)
	assert.Equal(t, "checkout", sl.Scope().Name())
	require.Equal(t, 2, sl.LogRecords().Len())

	lr := sl.LogRecords().At(0)
	assert.Equal(t, plog.SeverityNumber(logs.SeverityError), lr.SeverityNumber())
	assert.Equal(t, "ERROR", lr.SeverityText())
	assert.Equal(t, "payment failed", lr.Body().Str())
	assert.Equal(t, pcommon.TraceID(tid), lr.TraceID())
	assert.Equal(t, pcommon.SpanID(sid), lr.SpanID())

	plain := sl.LogRecords().At(1)
	assert.True(t, plain.TraceID().IsEmpty())
}

func TestAttributeKinds(t *testing.T) {
	set := attribute.NewSet(
		attribute.String("s", "v"),
		attribute.Int("i", 3),
		attribute.Float64("f", 1.5),
		attribute.Bool("b", true),
		attribute.StringSlice("ss", []string{"x", "y"}),
	)
	m := pcommon.NewMap()
	Attributes(set, m)

	v, _ := m.Get("s")
	assert.Equal(t, "v", v.Str())
	v, _ = m.Get("i")
	assert.Equal(t, int64(3), v.Int())
	v, _ = m.Get("f")
	assert.Equal(t, 1.5, v.Double())
	v, _ = m.Get("b")
	assert.True(t, v.Bool())
	v, _ = m.Get("ss")
	require.Equal(t, pcommon.ValueTypeSlice, v.Type())
	assert.Equal(t, 2, v.Slice().Len())
	assert.Equal(t, "x", v.Slice().At(0).Str())
}
