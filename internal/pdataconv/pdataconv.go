// Package pdataconv translates the pipeline's signal models into the
// collector pdata representation that the OTLP exporter marshals onto the
// wire. Each batch becomes a single resource group, since every signal in
// a process shares one Resource.
package pdataconv

import (
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

// Attributes copies an attribute set into a pdata map.
func Attributes(set *attribute.Set, dst pcommon.Map) {
	dst.EnsureCapacity(set.Len())
	set.Range(func(kv attribute.KeyValue) bool {
		switch kv.Value.Kind() {
		case attribute.KindString:
			dst.PutStr(kv.Key, kv.Value.Str())
		case attribute.KindInt64:
			dst.PutInt(kv.Key, kv.Value.Int64())
		case attribute.KindFloat64:
			dst.PutDouble(kv.Key, kv.Value.Float64())
		case attribute.KindBool:
			dst.PutBool(kv.Key, kv.Value.Bool())
		case attribute.KindStringSlice:
			slice := dst.PutEmptySlice(kv.Key)
			for _, e := range kv.Value.StringSlice() {
				slice.AppendEmpty().SetStr(e)
			}
		}
		return true
	})
}

// Resource copies resource attributes into a pdata resource.
func Resource(res *resource.Resource, dst pcommon.Resource) {
	Attributes(res.Attributes(), dst.Attributes())
}

func spanKind(k trace.Kind) ptrace.SpanKind {
	switch k {
	case trace.KindServer:
		return ptrace.SpanKindServer
	case trace.KindClient:
		return ptrace.SpanKindClient
	case trace.KindProducer:
		return ptrace.SpanKindProducer
	case trace.KindConsumer:
		return ptrace.SpanKindConsumer
	default:
		return ptrace.SpanKindInternal
	}
}

// Traces builds an OTLP traces payload from one span batch. Spans are
// grouped into scope blocks by their instrumentation scope, preserving
// batch order within each scope.
func Traces(res *resource.Resource, spans []*trace.Span) ptrace.Traces {
	td := ptrace.NewTraces()
	rs := td.ResourceSpans().AppendEmpty()
	Resource(res, rs.Resource())

	byScope := make(map[trace.Scope]ptrace.ScopeSpans)
	for _, s := range spans {
		ss, ok := byScope[s.Scope()]
		if !ok {
			ss = rs.ScopeSpans().AppendEmpty()
			ss.Scope().SetName(s.Scope().Name)
			ss.Scope().SetVersion(s.Scope().Version)
			byScope[s.Scope()] = ss
		}
		appendSpan(s, ss.Spans().AppendEmpty())
	}
	return td
}

func appendSpan(s *trace.Span, dst ptrace.Span) {
	sc := s.Context()
	dst.SetTraceID(pcommon.TraceID(sc.TraceID))
	dst.SetSpanID(pcommon.SpanID(sc.SpanID))
	if parent := s.ParentSpanID(); parent.IsValid() {
		dst.SetParentSpanID(pcommon.SpanID(parent))
	}
	dst.SetName(s.Name())
	dst.SetKind(spanKind(s.SpanKind()))
	dst.SetStartTimestamp(pcommon.NewTimestampFromTime(s.StartTime()))
	dst.SetEndTimestamp(pcommon.NewTimestampFromTime(s.EndTime()))
	Attributes(s.Attributes(), dst.Attributes())

	for _, ev := range s.Events() {
		e := dst.Events().AppendEmpty()
		e.SetName(ev.Name)
		e.SetTimestamp(pcommon.NewTimestampFromTime(ev.Time))
		Attributes(ev.Attributes, e.Attributes())
	}

	switch st := s.Status(); st.Code {
	case trace.StatusOK:
		dst.Status().SetCode(ptrace.StatusCodeOk)
	case trace.StatusError:
		dst.Status().SetCode(ptrace.StatusCodeError)
		dst.Status().SetMessage(st.Message)
	}
}

// Metrics builds an OTLP metrics payload from one point batch. Points are
// grouped by meter into scope blocks and by instrument into metrics, one
// data point per stream.
func Metrics(res *resource.Resource, points []metric.Point) pmetric.Metrics {
	md := pmetric.NewMetrics()
	rm := md.ResourceMetrics().AppendEmpty()
	Resource(res, rm.Resource())

	type instKey struct {
		meter      string
		instrument string
		kind       metric.Kind
	}
	scopes := make(map[string]pmetric.ScopeMetrics)
	metrics := make(map[instKey]pmetric.Metric)

	for _, p := range points {
		sm, ok := scopes[p.Meter]
		if !ok {
			sm = rm.ScopeMetrics().AppendEmpty()
			sm.Scope().SetName(p.Meter)
			scopes[p.Meter] = sm
		}
		key := instKey{meter: p.Meter, instrument: p.Instrument, kind: p.Kind}
		m, ok := metrics[key]
		if !ok {
			m = sm.Metrics().AppendEmpty()
			m.SetName(p.Instrument)
			switch p.Kind {
			case metric.KindCounter:
				sum := m.SetEmptySum()
				sum.SetIsMonotonic(true)
				sum.SetAggregationTemporality(pmetric.AggregationTemporalityCumulative)
			case metric.KindHistogram:
				h := m.SetEmptyHistogram()
				h.SetAggregationTemporality(pmetric.AggregationTemporalityCumulative)
			case metric.KindGauge:
				m.SetEmptyGauge()
			}
			metrics[key] = m
		}
		appendPoint(p, m)
	}
	return md
}

func appendPoint(p metric.Point, m pmetric.Metric) {
	start := pcommon.NewTimestampFromTime(p.Start)
	ts := pcommon.NewTimestampFromTime(p.Time)

	switch p.Kind {
	case metric.KindCounter:
		dp := m.Sum().DataPoints().AppendEmpty()
		dp.SetStartTimestamp(start)
		dp.SetTimestamp(ts)
		dp.SetDoubleValue(p.Value)
		Attributes(p.Attributes, dp.Attributes())
	case metric.KindGauge:
		dp := m.Gauge().DataPoints().AppendEmpty()
		dp.SetStartTimestamp(start)
		dp.SetTimestamp(ts)
		dp.SetDoubleValue(p.Value)
		Attributes(p.Attributes, dp.Attributes())
	case metric.KindHistogram:
		dp := m.Histogram().DataPoints().AppendEmpty()
		dp.SetStartTimestamp(start)
		dp.SetTimestamp(ts)
		dp.ExplicitBounds().FromRaw(p.Bounds)
		dp.BucketCounts().FromRaw(p.BucketCounts)
		dp.SetCount(p.Count)
		dp.SetSum(p.Sum)
		if p.HasMinMax {
			dp.SetMin(p.Min)
			dp.SetMax(p.Max)
		}
		Attributes(p.Attributes, dp.Attributes())
	}
}

// Logs builds an OTLP logs payload from one record batch, grouped into
// scope blocks by logger name.
func Logs(res *resource.Resource, records []*logs.Record) plog.Logs {
	ld := plog.NewLogs()
	rl := ld.ResourceLogs().AppendEmpty()
	Resource(res, rl.Resource())

	scopes := make(map[string]plog.ScopeLogs)
	for _, r := range records {
		sl, ok := scopes[r.Scope]
		if !ok {
			sl = rl.ScopeLogs().AppendEmpty()
			sl.Scope().SetName(r.Scope)
			scopes[r.Scope] = sl
		}
		lr := sl.LogRecords().AppendEmpty()
		lr.SetTimestamp(pcommon.NewTimestampFromTime(r.Time))
		lr.SetObservedTimestamp(pcommon.NewTimestampFromTime(r.Observed))
		lr.SetSeverityNumber(plog.SeverityNumber(r.Severity))
		lr.SetSeverityText(r.Severity.String())
		lr.Body().SetStr(r.Body)
		Attributes(r.Attributes, lr.Attributes())
		if r.TraceID.IsValid() {
			lr.SetTraceID(pcommon.TraceID(r.TraceID))
			lr.SetSpanID(pcommon.SpanID(r.SpanID))
		}
	}
	return ld
}
