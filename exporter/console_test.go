package exporter

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepaksharma/signalpipe/attribute"
	"github.com/deepaksharma/signalpipe/logs"
	"github.com/deepaksharma/signalpipe/metric"
	"github.com/deepaksharma/signalpipe/trace"
)

func TestConsoleSpans(t *testing.T) {
	var buf strings.Builder
	c := NewConsole(&buf)

	tr := trace.NewTracer(trace.Scope{Name: "test"}, trace.AlwaysOn(), nil)
	_, s := tr.StartSpan(context.Background(), "checkout", trace.WithKind(trace.KindServer))
	s.SetStatus(trace.StatusOK, "")
	s.End()

	require.NoError(t, c.ExportSpans(context.Background(), []*trace.Span{s}))

	out := buf.String()
	assert.Contains(t, out, "span checkout")
	assert.Contains(t, out, "trace="+s.Context().TraceID.String())
	assert.Contains(t, out, "kind=server")
	assert.Contains(t, out, "status=ok")
	assert.Equal(t, 1, strings.Count(out, "\n"))
}

func TestConsoleMetrics(t *testing.T) {
	var buf strings.Builder
	c := NewConsole(&buf)

	points := []metric.Point{
		{Meter: "app", Instrument: "requests", Kind: metric.KindCounter, Attributes: attribute.NewSet(), Value: 42},
		{Meter: "app", Instrument: "latency", Kind: metric.KindHistogram, Attributes: attribute.NewSet(), Count: 3, Sum: 1.5},
	}
	require.NoError(t, c.ExportMetrics(context.Background(), points))

	out := buf.String()
	assert.Contains(t, out, "metric app/requests counter value=42")
	assert.Contains(t, out, "metric app/latency histogram count=3 sum=1.5")
}

func TestConsoleLogs(t *testing.T) {
	var buf strings.Builder
	c := NewConsole(&buf)

	plain := &logs.Record{Severity: logs.SeverityWarn, Body: "disk low", Attributes: attribute.NewSet()}
	linked := &logs.Record{
		Severity:   logs.SeverityError,
		Body:       "payment failed",
		Attributes: attribute.NewSet(),
		TraceID:    trace.NewTraceID(),
		SpanID:     trace.NewSpanID(),
	}
	require.NoError(t, c.ExportLogs(context.Background(), []*logs.Record{plain, linked}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "log WARN disk low", lines[0])
	assert.Contains(t, lines[1], "log ERROR payment failed trace=")
	assert.NotContains(t, lines[0], "trace=")
}

func TestConsoleShutdown(t *testing.T) {
	c := NewConsole(nil)
	assert.NoError(t, c.Shutdown(context.Background()))
}
