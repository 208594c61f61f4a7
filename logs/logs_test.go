package logs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepaksharma/signalpipe/attribute"
	"github.com/deepaksharma/signalpipe/trace"
)

func TestEmitBuildsRecord(t *testing.T) {
	var got *Record
	l := NewLogger("checkout", func(r *Record) { got = r })

	l.Emit(context.Background(), SeverityInfo, "order placed", attribute.String("order.id", "o-1"))

	require.NotNil(t, got)
	assert.Equal(t, "order placed", got.Body)
	assert.Equal(t, SeverityInfo, got.Severity)
	assert.Equal(t, "checkout", got.Scope)
	assert.False(t, got.Time.IsZero())
	assert.False(t, got.Observed.IsZero())
	v, ok := got.Attributes.Get("order.id")
	require.True(t, ok)
	assert.Equal(t, "o-1", v.Str())
	assert.False(t, got.TraceID.IsValid(), "no active span, no trace identity")
}

func TestEmitLinksActiveSpan(t *testing.T) {
	tr := trace.NewTracer(trace.Scope{Name: "test"}, trace.AlwaysOn(), nil)
	ctx, span := tr.StartSpan(context.Background(), "handler")

	var got *Record
	l := NewLogger("checkout", func(r *Record) { got = r })
	l.Error(ctx, "payment failed")

	require.NotNil(t, got)
	assert.Equal(t, span.Context().TraceID, got.TraceID)
	assert.Equal(t, span.Context().SpanID, got.SpanID)
	assert.Equal(t, SeverityError, got.Severity)
}

func TestSeverityHelpers(t *testing.T) {
	var sevs []Severity
	l := NewLogger("s", func(r *Record) { sevs = append(sevs, r.Severity) })
	ctx := context.Background()
	l.Debug(ctx, "d")
	l.Info(ctx, "i")
	l.Warn(ctx, "w")
	l.Error(ctx, "e")
	assert.Equal(t, []Severity{SeverityDebug, SeverityInfo, SeverityWarn, SeverityError}, sevs)
}

func TestSeverityString(t *testing.T) {
	assert.Equal(t, "TRACE", SeverityTrace.String())
	assert.Equal(t, "DEBUG", SeverityDebug.String())
	assert.Equal(t, "INFO", SeverityInfo.String())
	assert.Equal(t, "WARN", SeverityWarn.String())
	assert.Equal(t, "ERROR", SeverityError.String())
	assert.Equal(t, "FATAL", SeverityFatal.String())
	assert.Equal(t, "INFO", Severity(10).String())
}

func TestNilSinkIsSafe(t *testing.T) {
	l := NewLogger("s", nil)
	assert.NotPanics(t, func() { l.Info(context.Background(), "dropped") })
}
