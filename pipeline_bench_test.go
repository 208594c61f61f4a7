package signalpipe

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/deepaksharma/signalpipe/attribute"
	"github.com/deepaksharma/signalpipe/trace"
)

func BenchmarkSpanLifecycle(b *testing.B) {
	benchmarks := []struct {
		name    string
		sampler trace.Sampler
		attrs   int
		events  int
	}{
		{
			name:    "Sampled_Bare",
			sampler: trace.AlwaysOn(),
		},
		{
			name:    "Sampled_Attributes",
			sampler: trace.AlwaysOn(),
			attrs:   8,
		},
		{
			name:    "Sampled_AttributesAndEvents",
			sampler: trace.AlwaysOn(),
			attrs:   8,
			events:  2,
		},
		{
			// The unsampled path still times the span and accepts
			// attributes but skips the chain and the buffer.
			name:    "Unsampled",
			sampler: trace.AlwaysOff(),
			attrs:   8,
			events:  2,
		},
	}

	for _, bm := range benchmarks {
		b.Run(bm.name, func(b *testing.B) {
			sink := &countingExporter{}
			p, err := New(benchConfig(),
				WithLogger(zap.NewNop()),
				WithTracesExporter(sink),
				WithSampler(bm.sampler),
			)
			require.NoError(b, err)
			defer benchShutdown(b, p)

			tr := p.Tracer("bench", "")
			kvs := benchAttributes(bm.attrs)

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				_, span := tr.StartSpan(context.Background(), "GET /bench",
					trace.WithKind(trace.KindServer))
				span.SetAttributes(kvs...)
				for e := 0; e < bm.events; e++ {
					span.AddEvent("checkpoint", attribute.Int("seq", e))
				}
				span.End()
			}
		})
	}
}

func BenchmarkPipelineThroughput(b *testing.B) {
	benchmarks := []struct {
		name      string
		batchSize int
		inFlight  int
	}{
		{
			name:      "Batch64_InFlight1",
			batchSize: 64,
			inFlight:  1,
		},
		{
			name:      "Batch512_InFlight2",
			batchSize: 512,
			inFlight:  2,
		},
		{
			name:      "Batch512_InFlight8",
			batchSize: 512,
			inFlight:  8,
		},
	}

	for _, bm := range benchmarks {
		b.Run(bm.name, func(b *testing.B) {
			sink := &countingExporter{}
			cfg := benchConfig()
			cfg.MaxBatchSize = bm.batchSize
			cfg.MaxInFlight = bm.inFlight
			p, err := New(cfg,
				WithLogger(zap.NewNop()),
				WithTracesExporter(sink),
			)
			require.NoError(b, err)

			tr := p.Tracer("bench", "")

			b.ResetTimer()
			b.RunParallel(func(pb *testing.PB) {
				for pb.Next() {
					_, span := tr.StartSpan(context.Background(), "GET /bench",
						trace.WithKind(trace.KindServer),
						trace.WithAttributes(attribute.String("http.route", "/bench")),
					)
					span.End()
				}
			})
			b.StopTimer()

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			require.NoError(b, p.Shutdown(ctx))

			delivered := sink.spans.Load()
			b.ReportMetric(float64(delivered)/float64(b.N), "spans/op")
			b.ReportMetric(float64(delivered)/b.Elapsed().Seconds(), "spans/sec")
			b.ReportMetric(float64(p.Stat().DroppedSpans), "dropped")
		})
	}
}

func BenchmarkProcessorSanitization(b *testing.B) {
	// A payload long enough to trigger truncation with an address the
	// redactor has to find and replace.
	payload := strings.Repeat("x", 2048) + " contact ops@example.com"

	benchmarks := []struct {
		name       string
		processors []string
	}{
		{
			name:       "ChainDisabled",
			processors: []string{},
		},
		{
			name:       "RedactAndTruncate",
			processors: []string{ProcessorRedact, ProcessorTruncate},
		},
	}

	for _, bm := range benchmarks {
		b.Run(bm.name, func(b *testing.B) {
			cfg := benchConfig()
			cfg.Processors = bm.processors
			cfg.MaxAttributeLength = 256
			sink := &countingExporter{}
			p, err := New(cfg,
				WithLogger(zap.NewNop()),
				WithTracesExporter(sink),
			)
			require.NoError(b, err)
			defer benchShutdown(b, p)

			tr := p.Tracer("bench", "")

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				_, span := tr.StartSpan(context.Background(), "ingest")
				span.SetAttributes(
					attribute.String("payload", payload),
					attribute.String("user.email", "someone@example.com"),
				)
				span.End()
			}
		})
	}
}

// Helpers.

// countingExporter counts deliveries without retaining batches, so
// benchmarks measure pipeline cost rather than sink bookkeeping.
type countingExporter struct {
	batches atomic.Int64
	spans   atomic.Int64
}

func (c *countingExporter) ExportSpans(_ context.Context, batch []*trace.Span) error {
	c.batches.Inc()
	c.spans.Add(int64(len(batch)))
	return nil
}

func (c *countingExporter) Shutdown(context.Context) error { return nil }

// benchConfig sizes the buffers so queue overflow does not dominate the
// producer-side measurements.
func benchConfig() Config {
	cfg := testConfig()
	cfg.MaxQueueSize = 65536
	cfg.MaxBatchSize = 512
	cfg.MetricInterval = "1m"
	return cfg
}

func benchAttributes(n int) []attribute.KeyValue {
	kvs := make([]attribute.KeyValue, 0, n)
	for i := 0; i < n; i++ {
		kvs = append(kvs, attribute.String(fmt.Sprintf("attr.%d", i), "value"))
	}
	return kvs
}

func benchShutdown(b *testing.B, p *Pipeline) {
	b.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := p.Shutdown(ctx); err != nil {
		b.Logf("warning: pipeline shutdown incomplete: %v", err)
	}
}
