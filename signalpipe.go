// Package signalpipe is an in-process telemetry pipeline: application code
// records spans, metric measurements, and log records through lightweight
// handles; the pipeline buffers them, batches them, tags them with process
// identity, optionally samples and redacts them, and exports them to an
// OTLP collector with bounded-drain guarantees on shutdown.
//
// Nothing in the pipeline ever blocks or panics into the caller's request
// path: full buffers drop the newest signal, export failures are retried
// then counted, and processor faults pass the signal through unmodified.
// The cost of sustained failure is telemetry gaps, never application
// latency.
package signalpipe

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrAlreadyInitialized is returned by Setup when a process-wide
	// pipeline is already installed. Re-initialization is a configuration
	// error, not something to ignore silently.
	ErrAlreadyInitialized = errors.New("signalpipe: pipeline already initialized")

	// ErrShutdownTimeout reports that the shutdown deadline lapsed with
	// undelivered signals; the dropped-on-shutdown counter in Stat says
	// how many.
	ErrShutdownTimeout = errors.New("signalpipe: shutdown deadline exceeded")
)

var (
	defaultMu       sync.Mutex
	defaultPipeline *Pipeline
)

// Setup builds a pipeline from cfg and installs it as the process-wide
// default. It can succeed at most once per process; later calls return
// ErrAlreadyInitialized.
func Setup(cfg Config, opts ...Option) (*Pipeline, error) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultPipeline != nil {
		return nil, ErrAlreadyInitialized
	}
	p, err := New(cfg, opts...)
	if err != nil {
		return nil, err
	}
	defaultPipeline = p
	return p, nil
}

// Default returns the pipeline installed by Setup, or nil before Setup has
// succeeded.
func Default() *Pipeline {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	return defaultPipeline
}

func resetDefault() {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultPipeline = nil
}

// Stat is a point-in-time copy of the pipeline's diagnostic counters, the
// side channel for observing the pipeline itself.
type Stat struct {
	DroppedSpans      int64
	DroppedMetrics    int64
	DroppedLogs       int64
	FilteredSignals   int64
	ProcessorFaults   int64
	RejectedMeasures  int64
	ExportedBatches   int64
	FailedBatches     int64
	RetriedExports    int64
	DroppedOnShutdown int64
	SpilledBatches    int64
	RecoveredBatches  int64
}

// HandleSignals shuts the pipeline down with the given timeout when the
// process receives SIGINT or SIGTERM. The returned stop function releases
// the hook without shutting down; it is safe to call more than once.
func HandleSignals(p *Pipeline, timeout time.Duration) (stop func()) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})

	go func() {
		defer signal.Stop(sigCh)
		select {
		case sig := <-sigCh:
			p.logger.Info("received signal, shutting down pipeline",
				zap.String("signal", sig.String()),
				zap.Duration("timeout", timeout))
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()
			if err := p.Shutdown(ctx); err != nil {
				p.logger.Warn("shutdown incomplete", zap.Error(err))
			}
		case <-done:
		}
	}()

	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}
