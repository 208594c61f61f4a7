package main

import (
	"context"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/deepaksharma/signalpipe"
	"github.com/deepaksharma/signalpipe/attribute"
	"github.com/deepaksharma/signalpipe/propagation"
	"github.com/deepaksharma/signalpipe/trace"
)

func newTracesCommand(logger *zap.Logger) *cobra.Command {
	var cfg genConfig
	var childSpans int
	var spanDuration time.Duration
	var markErrors bool
	var propagate bool

	cmd := &cobra.Command{
		Use:     "traces",
		Short:   "Generate client/server span trees",
		Example: "signalgen traces --workers 4 --rate 50 --child-spans 3",
		RunE: func(*cobra.Command, []string) error {
			return cfg.run(logger, func(ctx context.Context, p *signalpipe.Pipeline, id int) error {
				return generateTraces(ctx, p, &cfg, id, childSpans, spanDuration, markErrors, propagate)
			})
		},
	}
	cfg.commonFlags(cmd.Flags())
	cmd.Flags().IntVar(&childSpans, "child-spans", 1, "child spans per trace")
	cmd.Flags().DurationVar(&spanDuration, "span-duration", 100*time.Microsecond, "synthetic duration of each span")
	cmd.Flags().BoolVar(&markErrors, "errors", false, "mark every tenth trace failed")
	cmd.Flags().BoolVar(&propagate, "propagate", false, "round-trip the context through carrier headers between parent and children")
	return cmd
}

// generateTraces emits parent spans with a configurable fan-out of child
// spans, pacing span starts with a token bucket. With --propagate each
// trace crosses a simulated process boundary: the parent context is
// injected into headers and extracted again before the children start.
func generateTraces(ctx context.Context, p *signalpipe.Pipeline, cfg *genConfig, id, childSpans int, spanDuration time.Duration, markErrors, propagate bool) error {
	tracer := p.Tracer("signalgen", "")
	limiter := rate.NewLimiter(rate.Limit(cfg.rate), 1)
	prop := propagation.Default()

	for i := 0; cfg.count == 0 || i < cfg.count; i++ {
		if err := limiter.Wait(ctx); err != nil {
			return nil // deadline reached
		}

		start := time.Now()
		parentCtx, parent := tracer.StartSpan(ctx, "signalgen.request",
			trace.WithKind(trace.KindClient),
			trace.WithStartTime(start),
			trace.WithAttributes(
				attribute.Int("gen.worker", id),
				attribute.Int("gen.seq", i),
			))

		childCtx := parentCtx
		if propagate {
			carrier := propagation.MapCarrier{}
			prop.Inject(parentCtx, carrier)
			childCtx = prop.Extract(context.Background(), carrier)
		}

		for j := 0; j < childSpans; j++ {
			_, child := tracer.StartSpan(childCtx, "signalgen.handle."+strconv.Itoa(j),
				trace.WithKind(trace.KindServer))
			if markErrors && i%10 == 9 {
				child.SetStatus(trace.StatusError, "synthetic failure")
			} else {
				child.SetStatus(trace.StatusOK, "")
			}
			child.EndAt(start.Add(spanDuration))
		}

		if markErrors && i%10 == 9 {
			parent.SetStatus(trace.StatusError, "synthetic failure")
		}
		parent.EndAt(start.Add(spanDuration))
	}
	return nil
}
