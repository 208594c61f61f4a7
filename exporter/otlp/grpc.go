package otlp

import (
	"context"
	"crypto/tls"
	"fmt"

	"go.opentelemetry.io/collector/pdata/plog/plogotlp"
	"go.opentelemetry.io/collector/pdata/pmetric/pmetricotlp"
	"go.opentelemetry.io/collector/pdata/ptrace/ptraceotlp"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding/gzip"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/deepaksharma/signalpipe/exporter"
)

// grpcSender exports through the OTLP gRPC services over one shared
// connection.
type grpcSender struct {
	conn     *grpc.ClientConn
	traces   ptraceotlp.GRPCClient
	metrics  pmetricotlp.GRPCClient
	logs     plogotlp.GRPCClient
	headers  map[string]string
	bearer   string
	callOpts []grpc.CallOption
	logger   *zap.Logger
}

func newGRPCSender(cfg Config, logger *zap.Logger) (*grpcSender, error) {
	var creds credentials.TransportCredentials
	if cfg.Insecure {
		creds = insecure.NewCredentials()
	} else {
		creds = credentials.NewTLS(&tls.Config{})
	}
	conn, err := grpc.NewClient(cfg.Endpoint, grpc.WithTransportCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", cfg.Endpoint, err)
	}

	var callOpts []grpc.CallOption
	if cfg.Compression == "gzip" {
		callOpts = append(callOpts, grpc.UseCompressor(gzip.Name))
	}

	return &grpcSender{
		conn:     conn,
		traces:   ptraceotlp.NewGRPCClient(conn),
		metrics:  pmetricotlp.NewGRPCClient(conn),
		logs:     plogotlp.NewGRPCClient(conn),
		headers:  cfg.Headers,
		bearer:   cfg.BearerToken,
		callOpts: callOpts,
		logger:   logger,
	}, nil
}

func (s *grpcSender) outgoing(ctx context.Context) context.Context {
	if s.bearer != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+s.bearer)
	}
	for k, v := range s.headers {
		ctx = metadata.AppendToOutgoingContext(ctx, k, v)
	}
	return ctx
}

func (s *grpcSender) sendTraces(ctx context.Context, req ptraceotlp.ExportRequest) error {
	resp, err := s.traces.Export(s.outgoing(ctx), req, s.callOpts...)
	if err != nil {
		return classifyGRPCError(exporter.SignalTraces, err)
	}
	if ps := resp.PartialSuccess(); ps.RejectedSpans() > 0 {
		s.logger.Warn("collector rejected spans",
			zap.Int64("rejected", ps.RejectedSpans()),
			zap.String("message", ps.ErrorMessage()))
	}
	return nil
}

func (s *grpcSender) sendMetrics(ctx context.Context, req pmetricotlp.ExportRequest) error {
	resp, err := s.metrics.Export(s.outgoing(ctx), req, s.callOpts...)
	if err != nil {
		return classifyGRPCError(exporter.SignalMetrics, err)
	}
	if ps := resp.PartialSuccess(); ps.RejectedDataPoints() > 0 {
		s.logger.Warn("collector rejected data points",
			zap.Int64("rejected", ps.RejectedDataPoints()),
			zap.String("message", ps.ErrorMessage()))
	}
	return nil
}

func (s *grpcSender) sendLogs(ctx context.Context, req plogotlp.ExportRequest) error {
	resp, err := s.logs.Export(s.outgoing(ctx), req, s.callOpts...)
	if err != nil {
		return classifyGRPCError(exporter.SignalLogs, err)
	}
	if ps := resp.PartialSuccess(); ps.RejectedLogRecords() > 0 {
		s.logger.Warn("collector rejected log records",
			zap.Int64("rejected", ps.RejectedLogRecords()),
			zap.String("message", ps.ErrorMessage()))
	}
	return nil
}

func (s *grpcSender) sendRaw(ctx context.Context, signal exporter.Signal, payload []byte) error {
	switch signal {
	case exporter.SignalTraces:
		req := ptraceotlp.NewExportRequest()
		if err := req.UnmarshalProto(payload); err != nil {
			return exporter.Permanent(fmt.Errorf("unmarshal spilled traces: %w", err))
		}
		return s.sendTraces(ctx, req)
	case exporter.SignalMetrics:
		req := pmetricotlp.NewExportRequest()
		if err := req.UnmarshalProto(payload); err != nil {
			return exporter.Permanent(fmt.Errorf("unmarshal spilled metrics: %w", err))
		}
		return s.sendMetrics(ctx, req)
	case exporter.SignalLogs:
		req := plogotlp.NewExportRequest()
		if err := req.UnmarshalProto(payload); err != nil {
			return exporter.Permanent(fmt.Errorf("unmarshal spilled logs: %w", err))
		}
		return s.sendLogs(ctx, req)
	default:
		return exporter.Permanent(fmt.Errorf("unknown signal %q", signal))
	}
}

// classifyGRPCError keeps the OTLP retryable status set retryable and
// marks everything else permanent.
func classifyGRPCError(signal exporter.Signal, err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return fmt.Errorf("export %s: %w", signal, err)
	}
	switch st.Code() {
	case codes.Canceled,
		codes.DeadlineExceeded,
		codes.ResourceExhausted,
		codes.Aborted,
		codes.OutOfRange,
		codes.Unavailable,
		codes.DataLoss:
		return fmt.Errorf("export %s: %w", signal, err)
	default:
		return exporter.Permanent(fmt.Errorf("export %s: %w", signal, err))
	}
}

func (s *grpcSender) shutdown(context.Context) error {
	return s.conn.Close()
}
