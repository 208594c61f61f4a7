// signalgen generates synthetic traces, metrics, and logs through a
// signalpipe pipeline, for soak-testing collectors and demonstrating the
// producer API under load.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/deepaksharma/signalpipe"
)

// genConfig is the surface shared by every subcommand: where to send the
// synthetic load and how hard to push.
type genConfig struct {
	configFile string
	endpoint   string
	protocol   string
	insecure   bool
	service    string
	headers    map[string]string
	ratio      float64

	workers  int
	rate     float64
	count    int
	duration time.Duration
}

func (c *genConfig) commonFlags(fs *pflag.FlagSet) {
	fs.StringVar(&c.configFile, "config", "", "pipeline YAML config file; flags override it")
	fs.StringVar(&c.endpoint, "endpoint", "localhost:4317", "collector endpoint, host:port or URL")
	fs.StringVar(&c.protocol, "protocol", signalpipe.ProtocolGRPC, "export protocol: grpc, http, or console")
	fs.BoolVar(&c.insecure, "insecure", false, "use plaintext instead of TLS")
	fs.StringVar(&c.service, "service", "signalgen", "service.name on generated telemetry")
	fs.StringToStringVar(&c.headers, "header", nil, "extra export headers, key=value")
	fs.Float64Var(&c.ratio, "sampling-ratio", 1, "trace sampling ratio")
	fs.IntVar(&c.workers, "workers", 1, "concurrent generator workers")
	fs.Float64Var(&c.rate, "rate", 10, "signals per second per worker")
	fs.IntVar(&c.count, "count", 0, "signals per worker, 0 for unbounded")
	fs.DurationVar(&c.duration, "duration", 0, "how long to generate, 0 for unbounded")
}

// pipeline builds and starts a pipeline from the config file, environment,
// and flags, in that order of precedence.
func (c *genConfig) pipeline(logger *zap.Logger) (*signalpipe.Pipeline, error) {
	cfg := signalpipe.DefaultConfig()
	if c.configFile != "" {
		var err error
		if cfg, err = signalpipe.LoadFile(c.configFile); err != nil {
			return nil, err
		}
	}
	cfg.ApplyEnv()
	cfg.ServiceName = c.service
	cfg.Endpoint = c.endpoint
	cfg.Protocol = c.protocol
	cfg.Insecure = c.insecure
	cfg.SamplingRatio = c.ratio
	if len(c.headers) > 0 {
		if cfg.Headers == nil {
			cfg.Headers = map[string]string{}
		}
		for k, v := range c.headers {
			cfg.Headers[k] = v
		}
	}
	return signalpipe.New(cfg, signalpipe.WithLogger(logger.Named("pipeline")))
}

// run drives worker goroutines until count or duration is exhausted, then
// drains the pipeline and reports its counters.
func (c *genConfig) run(logger *zap.Logger, worker func(ctx context.Context, p *signalpipe.Pipeline, id int) error) error {
	p, err := c.pipeline(logger)
	if err != nil {
		return err
	}
	stopSignals := signalpipe.HandleSignals(p, 10*time.Second)
	defer stopSignals()

	ctx := context.Background()
	if c.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.duration)
		defer cancel()
	}

	logger.Info("generating",
		zap.Int("workers", c.workers),
		zap.Float64("rate", c.rate),
		zap.Int("count", c.count),
		zap.Duration("duration", c.duration))

	errCh := make(chan error, c.workers)
	for i := 0; i < c.workers; i++ {
		go func(id int) {
			errCh <- worker(ctx, p, id)
		}(i)
	}
	var firstErr error
	for i := 0; i < c.workers; i++ {
		if err := <-errCh; err != nil && firstErr == nil {
			firstErr = err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := p.Shutdown(shutdownCtx); err != nil && firstErr == nil {
		firstErr = err
	}

	stat := p.Stat()
	logger.Info("done",
		zap.Int64("exported_batches", stat.ExportedBatches),
		zap.Int64("failed_batches", stat.FailedBatches),
		zap.Int64("dropped_spans", stat.DroppedSpans),
		zap.Int64("dropped_metrics", stat.DroppedMetrics),
		zap.Int64("dropped_logs", stat.DroppedLogs),
		zap.Int64("dropped_on_shutdown", stat.DroppedOnShutdown))
	return firstErr
}

func main() {
	logger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	rootCmd := &cobra.Command{
		Use:     "signalgen",
		Short:   "signalgen pushes synthetic traces, metrics, and logs through a signalpipe pipeline",
		Example: "signalgen traces --endpoint localhost:4317 --insecure\nsignalgen metrics --rate 100\nsignalgen logs --protocol console",
	}
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.AddCommand(
		newTracesCommand(logger),
		newMetricsCommand(logger),
		newLogsCommand(logger),
	)

	if err := rootCmd.Execute(); err != nil {
		logger.Error("signalgen failed", zap.Error(err))
		os.Exit(1)
	}
}
