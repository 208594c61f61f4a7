package signalpipe

import (
	"context"
	"sync"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/deepaksharma/signalpipe/attribute"
	"github.com/deepaksharma/signalpipe/exporter"
	"github.com/deepaksharma/signalpipe/exporter/otlp"
	"github.com/deepaksharma/signalpipe/internal/batcher"
	"github.com/deepaksharma/signalpipe/internal/pipestat"
	"github.com/deepaksharma/signalpipe/internal/queue"
	"github.com/deepaksharma/signalpipe/internal/spill"
	"github.com/deepaksharma/signalpipe/logs"
	"github.com/deepaksharma/signalpipe/metric"
	"github.com/deepaksharma/signalpipe/processor"
	"github.com/deepaksharma/signalpipe/resource"
	"github.com/deepaksharma/signalpipe/trace"
)

// Option adjusts pipeline construction beyond the Config surface.
type Option func(*pipelineOptions)

type pipelineOptions struct {
	logger     *zap.Logger
	sampler    trace.Sampler
	procs      []processor.Processor
	tracesExp  exporter.Traces
	metricsExp exporter.Metrics
	logsExp    exporter.Logs
}

// WithLogger sets the pipeline's own diagnostic logger. The pipeline never
// routes its self-logging through itself; this logger is the side channel.
// Default is a nop logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *pipelineOptions) { o.logger = logger }
}

// WithSampler replaces the ratio sampler built from Config.SamplingRatio.
func WithSampler(s trace.Sampler) Option {
	return func(o *pipelineOptions) { o.sampler = s }
}

// WithProcessors appends custom processors to the chain. They run after
// exclusion and enrichment but before redaction and truncation, so
// attributes they add are still sanitized.
func WithProcessors(procs ...processor.Processor) Option {
	return func(o *pipelineOptions) { o.procs = append(o.procs, procs...) }
}

// WithTracesExporter replaces the configured span exporter. Batches of the
// replaced signal are not spilled at shutdown, since spilling requires the
// OTLP wire encoding.
func WithTracesExporter(e exporter.Traces) Option {
	return func(o *pipelineOptions) { o.tracesExp = e }
}

// WithMetricsExporter replaces the configured metric exporter.
func WithMetricsExporter(e exporter.Metrics) Option {
	return func(o *pipelineOptions) { o.metricsExp = e }
}

// WithLogsExporter replaces the configured log exporter.
func WithLogsExporter(e exporter.Logs) Option {
	return func(o *pipelineOptions) { o.logsExp = e }
}

// Pipeline owns the full signal path for one process: resource, sampler,
// processor chain, per-signal buffers and batch workers, exporters, and the
// optional spill store. Build one with New or Setup, hand out Tracer, Meter
// and Logger handles, and call Shutdown exactly once on exit.
type Pipeline struct {
	cfg    Config
	logger *zap.Logger
	stats  *pipestat.Counters

	res     *resource.Resource
	sampler trace.Sampler
	chain   *processor.Chain

	registry *metric.Registry

	spanQ   *queue.Bounded[*trace.Span]
	metricQ *queue.Bounded[metric.Point]
	logQ    *queue.Bounded[*logs.Record]

	spanBatcher   *batcher.Batcher[*trace.Span]
	metricBatcher *batcher.Batcher[metric.Point]
	logBatcher    *batcher.Batcher[*logs.Record]

	tracesExp  exporter.Traces
	metricsExp exporter.Metrics
	logsExp    exporter.Logs
	otlpExp    *otlp.Exporter

	spillStore *spill.Store

	collectStop chan struct{}
	collectDone chan struct{}

	replayCtx    context.Context
	replayCancel context.CancelFunc
	replayDone   chan struct{}

	shutdownOnce sync.Once
	shutdownErr  error
	shutdown     atomic.Bool
}

// New validates cfg, builds every pipeline component, and starts the
// background workers. Unlike Setup it does not install the pipeline as the
// process default, so tests and embedders may run several side by side.
func New(cfg Config, opts ...Option) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var o pipelineOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}

	p := &Pipeline{
		cfg:         cfg,
		logger:      o.logger,
		stats:       pipestat.NewCounters(),
		collectStop: make(chan struct{}),
		collectDone: make(chan struct{}),
		replayDone:  make(chan struct{}),
	}
	p.replayCtx, p.replayCancel = context.WithCancel(context.Background())

	p.res = resource.New(resource.Options{
		ServiceName:    cfg.ServiceName,
		ServiceVersion: cfg.ServiceVersion,
		Environment:    cfg.Environment,
		Attributes:     mapToKeyValues(cfg.ResourceAttributes),
	})

	p.sampler = o.sampler
	if p.sampler == nil {
		p.sampler = trace.TraceIDRatio(cfg.SamplingRatio)
	}

	chain, err := buildChain(&cfg, o.procs, p.logger, p.stats)
	if err != nil {
		return nil, err
	}
	p.chain = chain

	p.registry = metric.NewRegistry(p.stats.RejectedMeasures())

	if err := p.buildExporters(&o); err != nil {
		return nil, err
	}
	if err := p.buildSpill(); err != nil {
		return nil, err
	}
	p.buildBatchers()

	p.spanBatcher.Start()
	p.metricBatcher.Start()
	p.logBatcher.Start()
	go p.collectLoop()
	go p.replaySpill()

	p.logger.Info("pipeline started",
		zap.String("service", p.res.ServiceName()),
		zap.String("protocol", cfg.Protocol),
		zap.String("endpoint", cfg.Endpoint),
		zap.String("sampler", p.sampler.Description()),
		zap.Int("max_batch_size", cfg.MaxBatchSize),
		zap.Duration("max_batch_delay", cfg.batchDelay),
		zap.Int("max_queue_size", cfg.MaxQueueSize))
	return p, nil
}

func mapToKeyValues(m map[string]string) []attribute.KeyValue {
	if len(m) == 0 {
		return nil
	}
	kvs := make([]attribute.KeyValue, 0, len(m))
	for k, v := range m {
		kvs = append(kvs, attribute.String(k, v))
	}
	return kvs
}

// buildChain assembles the processor chain in its fixed order: exclusion
// vetoes first, then enrichment and custom processors, then redaction, then
// truncation so placeholders are never clipped.
func buildChain(cfg *Config, custom []processor.Processor, logger *zap.Logger, stats *pipestat.Counters) (*processor.Chain, error) {
	var procs []processor.Processor

	if len(cfg.ExcludedOperations) > 0 {
		exclude, err := processor.NewExcludeOperations(cfg.ExcludedOperations...)
		if err != nil {
			return nil, err
		}
		procs = append(procs, exclude)
	}
	if len(cfg.ExtraAttributes) > 0 {
		procs = append(procs, processor.NewEnrich(mapToKeyValues(cfg.ExtraAttributes)...))
	}
	procs = append(procs, custom...)
	if cfg.processorEnabled(ProcessorRedact) {
		procs = append(procs, processor.NewRedact())
	}
	if cfg.processorEnabled(ProcessorTruncate) {
		procs = append(procs, processor.NewTruncate(cfg.MaxAttributeLength))
	}

	return processor.NewChain(logger, stats.ProcessorFaults(), procs...), nil
}

func (p *Pipeline) buildExporters(o *pipelineOptions) error {
	var def interface {
		exporter.Traces
		exporter.Metrics
		exporter.Logs
	}

	switch p.cfg.Protocol {
	case ProtocolConsole:
		def = exporter.NewConsole(nil)
	default:
		exp, err := otlp.New(otlp.Config{
			Endpoint:    p.cfg.Endpoint,
			Protocol:    otlp.Protocol(p.cfg.Protocol),
			Insecure:    p.cfg.Insecure,
			Headers:     p.cfg.Headers,
			BearerToken: p.cfg.BearerToken,
			Compression: p.cfg.Compression,
		}, p.res, p.logger.Named("otlp"))
		if err != nil {
			return err
		}
		p.otlpExp = exp
		def = exp
	}

	p.tracesExp, p.metricsExp, p.logsExp = def, def, def
	if o.tracesExp != nil {
		p.tracesExp = o.tracesExp
	}
	if o.metricsExp != nil {
		p.metricsExp = o.metricsExp
	}
	if o.logsExp != nil {
		p.logsExp = o.logsExp
	}
	return nil
}

func (p *Pipeline) buildSpill() error {
	if p.cfg.SpillPath == "" {
		return nil
	}
	if p.otlpExp == nil {
		p.logger.Warn("spill store disabled: spilling requires an OTLP exporter",
			zap.String("protocol", p.cfg.Protocol))
		return nil
	}
	store, err := spill.Open(p.cfg.SpillPath, p.logger.Named("spill"))
	if err != nil {
		return err
	}
	if err := store.StartMaintenance(p.cfg.SpillPurgeSchedule, p.cfg.spillRetention); err != nil {
		_ = store.Close()
		return err
	}
	p.spillStore = store
	return nil
}

func (p *Pipeline) buildBatchers() {
	bcfg := batcher.Config{
		MaxBatchSize:  p.cfg.MaxBatchSize,
		MaxDelay:      p.cfg.batchDelay,
		ExportTimeout: p.cfg.exportTimeout,
		MaxInFlight:   p.cfg.MaxInFlight,
		MaxRetries:    p.cfg.MaxRetries,
	}
	stats := batcher.Stats{
		ExportedBatches:   p.stats.ExportedBatches(),
		FailedBatches:     p.stats.FailedBatches(),
		RetriedExports:    p.stats.RetriedExports(),
		DroppedOnShutdown: p.stats.DroppedOnShutdown(),
		SpilledBatches:    p.stats.SpilledBatches(),
	}

	p.spanQ = queue.New[*trace.Span](p.cfg.MaxQueueSize, p.stats.DroppedSpans())
	p.metricQ = queue.New[metric.Point](p.cfg.MaxQueueSize, p.stats.DroppedMetrics())
	p.logQ = queue.New[*logs.Record](p.cfg.MaxQueueSize, p.stats.DroppedLogs())

	spanOpts := []batcher.Option[*trace.Span]{
		batcher.WithLogger[*trace.Span](p.logger),
		batcher.WithStats[*trace.Span](stats),
	}
	metricOpts := []batcher.Option[metric.Point]{
		batcher.WithLogger[metric.Point](p.logger),
		batcher.WithStats[metric.Point](stats),
	}
	logOpts := []batcher.Option[*logs.Record]{
		batcher.WithLogger[*logs.Record](p.logger),
		batcher.WithStats[*logs.Record](stats),
	}
	// Spill only covers signals leaving through the OTLP exporter: the
	// store holds marshaled export requests, which replacement exporters
	// cannot produce.
	if p.spillStore != nil {
		if p.tracesExp == exporter.Traces(p.otlpExp) {
			spanOpts = append(spanOpts, batcher.WithSpill[*trace.Span](func(batch []*trace.Span) error {
				payload, err := p.otlpExp.MarshalSpans(batch)
				if err != nil {
					return err
				}
				return p.spillStore.Put(exporter.SignalTraces, payload)
			}))
		}
		if p.metricsExp == exporter.Metrics(p.otlpExp) {
			metricOpts = append(metricOpts, batcher.WithSpill[metric.Point](func(batch []metric.Point) error {
				payload, err := p.otlpExp.MarshalMetrics(batch)
				if err != nil {
					return err
				}
				return p.spillStore.Put(exporter.SignalMetrics, payload)
			}))
		}
		if p.logsExp == exporter.Logs(p.otlpExp) {
			logOpts = append(logOpts, batcher.WithSpill[*logs.Record](func(batch []*logs.Record) error {
				payload, err := p.otlpExp.MarshalLogs(batch)
				if err != nil {
					return err
				}
				return p.spillStore.Put(exporter.SignalLogs, payload)
			}))
		}
	}

	p.spanBatcher = batcher.New(string(exporter.SignalTraces), bcfg, p.spanQ,
		func(ctx context.Context, batch []*trace.Span) error {
			return p.tracesExp.ExportSpans(ctx, batch)
		}, spanOpts...)
	p.metricBatcher = batcher.New(string(exporter.SignalMetrics), bcfg, p.metricQ,
		func(ctx context.Context, batch []metric.Point) error {
			return p.metricsExp.ExportMetrics(ctx, batch)
		}, metricOpts...)
	p.logBatcher = batcher.New(string(exporter.SignalLogs), bcfg, p.logQ,
		func(ctx context.Context, batch []*logs.Record) error {
			return p.logsExp.ExportLogs(ctx, batch)
		}, logOpts...)
}

// Tracer returns a span-producing handle for the named instrumentation
// scope. Handles are cheap; call sites may create one per package.
func (p *Pipeline) Tracer(name, version string) *trace.Tracer {
	return trace.NewTracer(trace.Scope{Name: name, Version: version}, p.sampler, p.consumeSpan)
}

// Meter returns a measurement-recording handle for the named scope. Two
// meters with the same name feed the same streams.
func (p *Pipeline) Meter(name string) *metric.Meter {
	return metric.NewMeter(name, p.registry)
}

// Logger returns a record-emitting handle for the named scope.
func (p *Pipeline) Logger(name string) *logs.Logger {
	return logs.NewLogger(name, p.consumeLog)
}

// Resource returns the process identity stamped on every exported batch.
func (p *Pipeline) Resource() *resource.Resource { return p.res }

// Stat snapshots the pipeline's diagnostic counters.
func (p *Pipeline) Stat() Stat {
	s := p.stats.Snapshot()
	return Stat{
		DroppedSpans:      s.DroppedSpans,
		DroppedMetrics:    s.DroppedMetrics,
		DroppedLogs:       s.DroppedLogs,
		FilteredSignals:   s.FilteredSignals,
		ProcessorFaults:   s.ProcessorFaults,
		RejectedMeasures:  s.RejectedMeasures,
		ExportedBatches:   s.ExportedBatches,
		FailedBatches:     s.FailedBatches,
		RetriedExports:    s.RetriedExports,
		DroppedOnShutdown: s.DroppedOnShutdown,
		SpilledBatches:    s.SpilledBatches,
		RecoveredBatches:  s.RecoveredBatches,
	}
}

// consumeSpan receives every recorded span exactly once as it ends, on the
// ending goroutine. The chain runs here so the span reaches the buffer
// already sanitized; only Offer's try-send touches shared state, keeping
// the caller path non-blocking.
func (p *Pipeline) consumeSpan(s *trace.Span) {
	if !p.chain.Span(s) {
		p.stats.FilteredSignals().Inc()
		return
	}
	p.spanQ.Offer(s)
}

func (p *Pipeline) consumeLog(r *logs.Record) {
	if !p.chain.Log(r) {
		p.stats.FilteredSignals().Inc()
		return
	}
	p.logQ.Offer(r)
}

// collectLoop snapshots the metric registry on the configured interval.
// Points run the chain here, on the collector goroutine, because they only
// materialize at snapshot time.
func (p *Pipeline) collectLoop() {
	defer close(p.collectDone)
	ticker := time.NewTicker(p.cfg.metricInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.collectMetrics(time.Now())
		case <-p.collectStop:
			return
		}
	}
}

func (p *Pipeline) collectMetrics(now time.Time) {
	for _, pt := range p.registry.Collect(now) {
		if !p.chain.Metric(&pt) {
			p.stats.FilteredSignals().Inc()
			continue
		}
		p.metricQ.Offer(pt)
	}
}

// replaySpill re-exports batches a previous run left behind. Failures keep
// the remainder in the store for the next run; shutdown cancels the replay
// rather than racing the drain.
func (p *Pipeline) replaySpill() {
	defer close(p.replayDone)
	if p.spillStore == nil || p.otlpExp == nil {
		return
	}
	n, err := p.spillStore.Replay(p.replayCtx, func(ctx context.Context, signal exporter.Signal, payload []byte) error {
		callCtx, cancel := context.WithTimeout(ctx, p.cfg.exportTimeout)
		defer cancel()
		if err := p.otlpExp.ExportRaw(callCtx, signal, payload); err != nil {
			return err
		}
		p.stats.RecoveredBatches().Inc()
		return nil
	})
	if err != nil && p.replayCtx.Err() == nil {
		p.logger.Warn("spill replay stopped, remaining batches kept",
			zap.Int("replayed", n),
			zap.Error(err))
		return
	}
	if n > 0 {
		p.logger.Info("replayed spilled batches", zap.Int("batches", n))
	}
}

// ForceFlush pushes every buffered signal through export without waiting
// for size or delay thresholds: aggregated metrics are collected now and
// all three batchers flush, bounded by ctx. The pipeline keeps running.
func (p *Pipeline) ForceFlush(ctx context.Context) error {
	if p.shutdown.Load() {
		return nil
	}
	p.collectMetrics(time.Now())
	if err := p.spanBatcher.ForceFlush(ctx); err != nil {
		return err
	}
	if err := p.metricBatcher.ForceFlush(ctx); err != nil {
		return err
	}
	return p.logBatcher.ForceFlush(ctx)
}

// Shutdown drains the pipeline: intake stops, aggregated metrics are
// collected one last time, and all three batchers deliver what they can
// before ctx expires. Whatever cannot be delivered in time is spilled when
// a spill store is configured, otherwise counted as dropped on shutdown.
// Shutdown always returns by the ctx deadline; the first call wins and
// later calls return its result.
func (p *Pipeline) Shutdown(ctx context.Context) error {
	p.shutdownOnce.Do(func() {
		p.shutdown.Store(true)
		p.logger.Info("pipeline shutting down")

		p.replayCancel()
		close(p.collectStop)
		<-p.collectDone
		<-p.replayDone
		p.collectMetrics(time.Now())

		var wg sync.WaitGroup
		drainErrs := make([]error, 3)
		for i, drain := range []func(context.Context) error{
			p.spanBatcher.Drain,
			p.metricBatcher.Drain,
			p.logBatcher.Drain,
		} {
			wg.Add(1)
			go func(i int, drain func(context.Context) error) {
				defer wg.Done()
				drainErrs[i] = drain(ctx)
			}(i, drain)
		}
		wg.Wait()

		// One exporter instance may serve several signals; close each once.
		seen := make(map[interface {
			Shutdown(context.Context) error
		}]bool, 3)
		for _, exp := range []interface {
			Shutdown(context.Context) error
		}{p.tracesExp, p.metricsExp, p.logsExp} {
			if exp == nil || seen[exp] {
				continue
			}
			seen[exp] = true
			if err := exp.Shutdown(ctx); err != nil {
				p.logger.Warn("exporter shutdown failed", zap.Error(err))
			}
		}

		if p.spillStore != nil {
			if err := p.spillStore.Close(); err != nil {
				p.logger.Warn("spill store close failed", zap.Error(err))
			}
		}

		p.stats.LogSummary(p.logger)

		for _, err := range drainErrs {
			if err != nil {
				p.shutdownErr = ErrShutdownTimeout
				break
			}
		}
	})
	return p.shutdownErr
}
