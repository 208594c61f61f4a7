// Package otlp exports telemetry batches to an OpenTelemetry collector
// over OTLP, speaking either gRPC or protobuf-over-HTTP.
package otlp

import (
	"context"
	"fmt"

	"go.opentelemetry.io/collector/pdata/plog/plogotlp"
	"go.opentelemetry.io/collector/pdata/pmetric/pmetricotlp"
	"go.opentelemetry.io/collector/pdata/ptrace/ptraceotlp"
	"go.uber.org/zap"

	"github.com/deepaksharma/signalpipe/exporter"
	"github.com/deepaksharma/signalpipe/internal/pdataconv"
	"github.com/deepaksharma/signalpipe/logs"
	"github.com/deepaksharma/signalpipe/metric"
	"github.com/deepaksharma/signalpipe/resource"
	"github.com/deepaksharma/signalpipe/trace"
)

// Protocol selects the OTLP transport.
type Protocol string

const (
	ProtocolGRPC Protocol = "grpc"
	ProtocolHTTP Protocol = "http"
)

const (
	defaultTracesPath  = "/v1/traces"
	defaultMetricsPath = "/v1/metrics"
	defaultLogsPath    = "/v1/logs"
)

// Config describes the collector endpoint.
type Config struct {
	// Endpoint is host:port, or a full URL for HTTP.
	Endpoint string
	Protocol Protocol
	// Insecure uses plaintext instead of TLS.
	Insecure bool
	// Headers are added to every export request.
	Headers map[string]string
	// BearerToken, when set, sends an Authorization: Bearer header.
	BearerToken string
	// Compression is "gzip" or "none".
	Compression string

	// URL paths for the HTTP transport, defaulted to the standard ones.
	TracesPath  string
	MetricsPath string
	LogsPath    string
}

func (c *Config) applyDefaults() {
	if c.Protocol == "" {
		c.Protocol = ProtocolGRPC
	}
	if c.TracesPath == "" {
		c.TracesPath = defaultTracesPath
	}
	if c.MetricsPath == "" {
		c.MetricsPath = defaultMetricsPath
	}
	if c.LogsPath == "" {
		c.LogsPath = defaultLogsPath
	}
}

// sender is the transport under the exporter: typed sends for the hot
// path, raw send for replaying spilled payloads.
type sender interface {
	sendTraces(ctx context.Context, req ptraceotlp.ExportRequest) error
	sendMetrics(ctx context.Context, req pmetricotlp.ExportRequest) error
	sendLogs(ctx context.Context, req plogotlp.ExportRequest) error
	sendRaw(ctx context.Context, signal exporter.Signal, payload []byte) error
	shutdown(ctx context.Context) error
}

// Exporter delivers all three signals to one collector endpoint. It
// implements exporter.Traces, exporter.Metrics, and exporter.Logs.
type Exporter struct {
	cfg    Config
	res    *resource.Resource
	logger *zap.Logger
	sender sender
}

// New builds an exporter for the configured endpoint. The gRPC transport
// connects lazily, so New does not block on the network.
func New(cfg Config, res *resource.Resource, logger *zap.Logger) (*Exporter, error) {
	cfg.applyDefaults()
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("otlp: endpoint is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	e := &Exporter{cfg: cfg, res: res, logger: logger}
	switch cfg.Protocol {
	case ProtocolGRPC:
		s, err := newGRPCSender(cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("otlp: %w", err)
		}
		e.sender = s
	case ProtocolHTTP:
		e.sender = newHTTPSender(cfg, logger)
	default:
		return nil, fmt.Errorf("otlp: unknown protocol %q", cfg.Protocol)
	}
	return e, nil
}

// ExportSpans delivers one span batch.
func (e *Exporter) ExportSpans(ctx context.Context, spans []*trace.Span) error {
	td := pdataconv.Traces(e.res, spans)
	return e.sender.sendTraces(ctx, ptraceotlp.NewExportRequestFromTraces(td))
}

// ExportMetrics delivers one metric point batch.
func (e *Exporter) ExportMetrics(ctx context.Context, points []metric.Point) error {
	md := pdataconv.Metrics(e.res, points)
	return e.sender.sendMetrics(ctx, pmetricotlp.NewExportRequestFromMetrics(md))
}

// ExportLogs delivers one log record batch.
func (e *Exporter) ExportLogs(ctx context.Context, records []*logs.Record) error {
	ld := pdataconv.Logs(e.res, records)
	return e.sender.sendLogs(ctx, plogotlp.NewExportRequestFromLogs(ld))
}

// ExportRaw delivers an already-marshaled export request, as recovered
// from the spill store.
func (e *Exporter) ExportRaw(ctx context.Context, signal exporter.Signal, payload []byte) error {
	return e.sender.sendRaw(ctx, signal, payload)
}

// MarshalSpans encodes a span batch as an OTLP export request for the
// spill store.
func (e *Exporter) MarshalSpans(spans []*trace.Span) ([]byte, error) {
	return ptraceotlp.NewExportRequestFromTraces(pdataconv.Traces(e.res, spans)).MarshalProto()
}

// MarshalMetrics encodes a point batch as an OTLP export request.
func (e *Exporter) MarshalMetrics(points []metric.Point) ([]byte, error) {
	return pmetricotlp.NewExportRequestFromMetrics(pdataconv.Metrics(e.res, points)).MarshalProto()
}

// MarshalLogs encodes a record batch as an OTLP export request.
func (e *Exporter) MarshalLogs(records []*logs.Record) ([]byte, error) {
	return plogotlp.NewExportRequestFromLogs(pdataconv.Logs(e.res, records)).MarshalProto()
}

// Shutdown releases the transport.
func (e *Exporter) Shutdown(ctx context.Context) error {
	return e.sender.shutdown(ctx)
}
