package main

import (
	"context"
	"math/rand/v2"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/deepaksharma/signalpipe"
	"github.com/deepaksharma/signalpipe/attribute"
)

func newMetricsCommand(logger *zap.Logger) *cobra.Command {
	var cfg genConfig
	var streams int

	cmd := &cobra.Command{
		Use:     "metrics",
		Short:   "Generate counter, histogram, and gauge measurements",
		Example: "signalgen metrics --rate 100 --streams 8",
		RunE: func(*cobra.Command, []string) error {
			return cfg.run(logger, func(ctx context.Context, p *signalpipe.Pipeline, id int) error {
				return generateMetrics(ctx, p, &cfg, id, streams)
			})
		},
	}
	cfg.commonFlags(cmd.Flags())
	cmd.Flags().IntVar(&streams, "streams", 4, "distinct attribute sets per instrument")
	return cmd
}

// generateMetrics records one measurement per instrument per tick, cycling
// through a fixed set of attribute streams so aggregation has something to
// group by.
func generateMetrics(ctx context.Context, p *signalpipe.Pipeline, cfg *genConfig, id, streams int) error {
	meter := p.Meter("signalgen")
	requests := meter.Counter("signalgen.requests")
	latency := meter.Histogram("signalgen.latency_ms")
	inflight := meter.Gauge("signalgen.inflight")
	limiter := rate.NewLimiter(rate.Limit(cfg.rate), 1)

	for i := 0; cfg.count == 0 || i < cfg.count; i++ {
		if err := limiter.Wait(ctx); err != nil {
			return nil
		}
		attrs := []attribute.KeyValue{
			attribute.Int("gen.worker", id),
			attribute.String("gen.stream", strconv.Itoa(i%streams)),
		}
		requests.Add(ctx, 1, attrs...)
		latency.Record(ctx, rand.Float64()*500, attrs...)
		inflight.Record(ctx, float64(i%streams), attrs...)
	}
	return nil
}
