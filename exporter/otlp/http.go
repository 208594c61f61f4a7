package otlp

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/klauspost/compress/gzip"
	"go.opentelemetry.io/collector/pdata/plog/plogotlp"
	"go.opentelemetry.io/collector/pdata/pmetric/pmetricotlp"
	"go.opentelemetry.io/collector/pdata/ptrace/ptraceotlp"
	"go.uber.org/zap"

	"github.com/deepaksharma/signalpipe/exporter"
)

// httpSender posts marshaled export requests as protobuf over HTTP, one
// URL per signal.
type httpSender struct {
	client  *http.Client
	urls    map[exporter.Signal]string
	headers map[string]string
	bearer  string
	gzip    bool
	logger  *zap.Logger
}

func newHTTPSender(cfg Config, logger *zap.Logger) *httpSender {
	base := cfg.Endpoint
	if !strings.Contains(base, "://") {
		scheme := "https"
		if cfg.Insecure {
			scheme = "http"
		}
		base = scheme + "://" + base
	}
	base = strings.TrimSuffix(base, "/")

	return &httpSender{
		client: &http.Client{},
		urls: map[exporter.Signal]string{
			exporter.SignalTraces:  base + cfg.TracesPath,
			exporter.SignalMetrics: base + cfg.MetricsPath,
			exporter.SignalLogs:    base + cfg.LogsPath,
		},
		headers: cfg.Headers,
		bearer:  cfg.BearerToken,
		gzip:    cfg.Compression == "gzip",
		logger:  logger,
	}
}

func (s *httpSender) sendTraces(ctx context.Context, req ptraceotlp.ExportRequest) error {
	payload, err := req.MarshalProto()
	if err != nil {
		return exporter.Permanent(fmt.Errorf("marshal traces: %w", err))
	}
	return s.post(ctx, exporter.SignalTraces, payload)
}

func (s *httpSender) sendMetrics(ctx context.Context, req pmetricotlp.ExportRequest) error {
	payload, err := req.MarshalProto()
	if err != nil {
		return exporter.Permanent(fmt.Errorf("marshal metrics: %w", err))
	}
	return s.post(ctx, exporter.SignalMetrics, payload)
}

func (s *httpSender) sendLogs(ctx context.Context, req plogotlp.ExportRequest) error {
	payload, err := req.MarshalProto()
	if err != nil {
		return exporter.Permanent(fmt.Errorf("marshal logs: %w", err))
	}
	return s.post(ctx, exporter.SignalLogs, payload)
}

func (s *httpSender) sendRaw(ctx context.Context, signal exporter.Signal, payload []byte) error {
	return s.post(ctx, signal, payload)
}

func (s *httpSender) post(ctx context.Context, signal exporter.Signal, payload []byte) error {
	var body io.Reader = bytes.NewReader(payload)
	if s.gzip {
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		if _, err := zw.Write(payload); err != nil {
			return exporter.Permanent(fmt.Errorf("compress %s: %w", signal, err))
		}
		if err := zw.Close(); err != nil {
			return exporter.Permanent(fmt.Errorf("compress %s: %w", signal, err))
		}
		body = &buf
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.urls[signal], body)
	if err != nil {
		return exporter.Permanent(fmt.Errorf("build %s request: %w", signal, err))
	}
	req.Header.Set("Content-Type", "application/x-protobuf")
	if s.gzip {
		req.Header.Set("Content-Encoding", "gzip")
	}
	if s.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+s.bearer)
	}
	for k, v := range s.headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		// Network errors are worth retrying.
		return fmt.Errorf("post %s: %w", signal, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	return classifyHTTPStatus(signal, resp.StatusCode)
}

// classifyHTTPStatus maps collector responses onto the retry policy:
// throttling and gateway failures retry, other client errors are permanent.
func classifyHTTPStatus(signal exporter.Signal, code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusTooManyRequests,
		code == http.StatusBadGateway,
		code == http.StatusServiceUnavailable,
		code == http.StatusGatewayTimeout:
		return fmt.Errorf("export %s: collector returned %d", signal, code)
	case code >= 400 && code < 500:
		return exporter.Permanent(fmt.Errorf("export %s: collector returned %d", signal, code))
	default:
		return fmt.Errorf("export %s: collector returned %d", signal, code)
	}
}

func (s *httpSender) shutdown(context.Context) error {
	s.client.CloseIdleConnections()
	return nil
}
