package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/deepaksharma/signalpipe"
	"github.com/deepaksharma/signalpipe/attribute"
	"github.com/deepaksharma/signalpipe/logs"
	"github.com/deepaksharma/signalpipe/trace"
)

func newLogsCommand(logger *zap.Logger) *cobra.Command {
	var cfg genConfig
	var severity string
	var withSpans bool

	cmd := &cobra.Command{
		Use:     "logs",
		Short:   "Generate log records, optionally linked to spans",
		Example: "signalgen logs --rate 20 --severity warn --with-spans",
		RunE: func(*cobra.Command, []string) error {
			sev, err := parseSeverity(severity)
			if err != nil {
				return err
			}
			return cfg.run(logger, func(ctx context.Context, p *signalpipe.Pipeline, id int) error {
				return generateLogs(ctx, p, &cfg, id, sev, withSpans)
			})
		},
	}
	cfg.commonFlags(cmd.Flags())
	cmd.Flags().StringVar(&severity, "severity", "info", "record severity: trace, debug, info, warn, error, fatal")
	cmd.Flags().BoolVar(&withSpans, "with-spans", false, "emit each record inside an active span so it carries trace identity")
	return cmd
}

func parseSeverity(s string) (logs.Severity, error) {
	switch s {
	case "trace":
		return logs.SeverityTrace, nil
	case "debug":
		return logs.SeverityDebug, nil
	case "info":
		return logs.SeverityInfo, nil
	case "warn":
		return logs.SeverityWarn, nil
	case "error":
		return logs.SeverityError, nil
	case "fatal":
		return logs.SeverityFatal, nil
	default:
		return 0, fmt.Errorf("unknown severity %q (expected trace, debug, info, warn, error, or fatal)", s)
	}
}

func generateLogs(ctx context.Context, p *signalpipe.Pipeline, cfg *genConfig, id int, sev logs.Severity, withSpans bool) error {
	lg := p.Logger("signalgen")
	var tracer *trace.Tracer
	if withSpans {
		tracer = p.Tracer("signalgen", "")
	}
	limiter := rate.NewLimiter(rate.Limit(cfg.rate), 1)

	for i := 0; cfg.count == 0 || i < cfg.count; i++ {
		if err := limiter.Wait(ctx); err != nil {
			return nil
		}
		emitCtx := ctx
		var span *trace.Span
		if withSpans {
			emitCtx, span = tracer.StartSpan(ctx, "signalgen.log-scope")
		}
		lg.Emit(emitCtx, sev, "synthetic log record "+strconv.Itoa(i),
			attribute.Int("gen.worker", id),
			attribute.Int("gen.seq", i))
		if span != nil {
			span.End()
		}
	}
	return nil
}
