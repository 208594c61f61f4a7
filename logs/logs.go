// Package logs provides the log-record half of the pipeline API: severity
// levels, the Record model, and the Logger handle that stamps records with
// the active trace identity before handing them to the pipeline.
package logs

import (
	"context"
	"time"

	"github.com/deepaksharma/signalpipe/attribute"
	"github.com/deepaksharma/signalpipe/trace"
)

// Severity grades a log record. The numeric values follow the OTLP
// severity-number scale so conversion is a cast.
type Severity int

const (
	SeverityTrace Severity = 1
	SeverityDebug Severity = 5
	SeverityInfo  Severity = 9
	SeverityWarn  Severity = 13
	SeverityError Severity = 17
	SeverityFatal Severity = 21
)

func (s Severity) String() string {
	switch {
	case s >= SeverityFatal:
		return "FATAL"
	case s >= SeverityError:
		return "ERROR"
	case s >= SeverityWarn:
		return "WARN"
	case s >= SeverityInfo:
		return "INFO"
	case s >= SeverityDebug:
		return "DEBUG"
	default:
		return "TRACE"
	}
}

// Record is one structured log event. TraceID and SpanID are zero unless
// the record was emitted under an active span.
type Record struct {
	Time       time.Time
	Observed   time.Time
	Severity   Severity
	Body       string
	Attributes *attribute.Set
	TraceID    trace.TraceID
	SpanID     trace.SpanID
	Scope      string
}

// Logger emits log records under one instrumentation scope.
type Logger struct {
	scope  string
	onEmit func(*Record)
}

// NewLogger returns a logger for the given scope. onEmit receives every
// record, already stamped with trace identity and timestamps.
func NewLogger(scope string, onEmit func(*Record)) *Logger {
	return &Logger{scope: scope, onEmit: onEmit}
}

// Scope returns the logger's instrumentation scope name.
func (l *Logger) Scope() string { return l.scope }

// Emit builds a record from the arguments and the active span in ctx and
// hands it to the pipeline. Nothing blocks; records are buffered downstream.
func (l *Logger) Emit(ctx context.Context, sev Severity, body string, kvs ...attribute.KeyValue) {
	now := time.Now()
	attrs := &attribute.Set{}
	attrs.PutAll(kvs...)

	r := &Record{
		Time:       now,
		Observed:   now,
		Severity:   sev,
		Body:       body,
		Attributes: attrs,
		Scope:      l.scope,
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		r.TraceID = sc.TraceID
		r.SpanID = sc.SpanID
	}
	if l.onEmit != nil {
		l.onEmit(r)
	}
}

// Debug emits a debug-severity record.
func (l *Logger) Debug(ctx context.Context, body string, kvs ...attribute.KeyValue) {
	l.Emit(ctx, SeverityDebug, body, kvs...)
}

// Info emits an info-severity record.
func (l *Logger) Info(ctx context.Context, body string, kvs ...attribute.KeyValue) {
	l.Emit(ctx, SeverityInfo, body, kvs...)
}

// Warn emits a warn-severity record.
func (l *Logger) Warn(ctx context.Context, body string, kvs ...attribute.KeyValue) {
	l.Emit(ctx, SeverityWarn, body, kvs...)
}

// Error emits an error-severity record.
func (l *Logger) Error(ctx context.Context, body string, kvs ...attribute.KeyValue) {
	l.Emit(ctx, SeverityError, body, kvs...)
}
