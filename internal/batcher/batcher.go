// Package batcher owns the release-and-deliver half of the pipeline: it
// groups queued signals into batches by size or age, dispatches them to an
// export function with bounded concurrency and retry, and drains everything
// it can within a deadline at shutdown.
package batcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/deepaksharma/signalpipe/exporter"
	"github.com/deepaksharma/signalpipe/internal/queue"
)

// ExportFunc delivers one batch. The context carries the per-attempt
// timeout; a batch may be retried unless the error is marked permanent.
type ExportFunc[T any] func(ctx context.Context, batch []T) error

// SpillFunc persists a batch that could not be delivered before the
// shutdown deadline.
type SpillFunc[T any] func(batch []T) error

// Config bounds the batcher's memory, latency, and retry behavior. Zero
// values fall back to the defaults.
type Config struct {
	MaxBatchSize         int
	MaxDelay             time.Duration
	ExportTimeout        time.Duration
	MaxInFlight          int
	MaxRetries           int
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration
}

func (c *Config) applyDefaults() {
	if c.MaxBatchSize <= 0 {
		c.MaxBatchSize = 512
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 5 * time.Second
	}
	if c.ExportTimeout <= 0 {
		c.ExportTimeout = 30 * time.Second
	}
	if c.MaxInFlight <= 0 {
		c.MaxInFlight = 2
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryInitialInterval <= 0 {
		c.RetryInitialInterval = time.Second
	}
	if c.RetryMaxInterval <= 0 {
		c.RetryMaxInterval = 30 * time.Second
	}
}

// Stats are the injected counters the batcher reports into. Nil fields are
// replaced with private counters so callers wire only what they watch.
type Stats struct {
	ExportedBatches   *atomic.Int64
	FailedBatches     *atomic.Int64
	RetriedExports    *atomic.Int64
	DroppedOnShutdown *atomic.Int64
	SpilledBatches    *atomic.Int64
}

func (s *Stats) applyDefaults() {
	if s.ExportedBatches == nil {
		s.ExportedBatches = atomic.NewInt64(0)
	}
	if s.FailedBatches == nil {
		s.FailedBatches = atomic.NewInt64(0)
	}
	if s.RetriedExports == nil {
		s.RetriedExports = atomic.NewInt64(0)
	}
	if s.DroppedOnShutdown == nil {
		s.DroppedOnShutdown = atomic.NewInt64(0)
	}
	if s.SpilledBatches == nil {
		s.SpilledBatches = atomic.NewInt64(0)
	}
}

const (
	stateAccepting int32 = iota
	stateDraining
	stateClosed
)

// Batcher consumes one signal queue. A single worker goroutine owns the
// open batch; exports run on their own goroutines behind an in-flight
// semaphore so a slow collector stalls dispatch, not intake.
//
// All blocking internal waits hang off lifeCtx, which is cancelled when the
// drain deadline passes. That is what lets a worker stuck behind the
// semaphore, and every in-flight export, divert promptly to the spill hook
// instead of stranding telemetry past the deadline.
type Batcher[T any] struct {
	name   string
	cfg    Config
	q      *queue.Bounded[T]
	export ExportFunc[T]
	spill  SpillFunc[T]
	logger *zap.Logger
	stats  Stats

	sem      chan struct{}
	inflight sync.WaitGroup
	state    *atomic.Int32
	stop     chan struct{}
	done     chan struct{}
	flushReq chan chan struct{}

	lifeCtx    context.Context
	lifeCancel context.CancelFunc
}

// Option configures a Batcher.
type Option[T any] func(*Batcher[T])

// WithLogger sets the logger, a nop logger by default.
func WithLogger[T any](logger *zap.Logger) Option[T] {
	return func(b *Batcher[T]) { b.logger = logger }
}

// WithStats wires shared pipeline counters.
func WithStats[T any](stats Stats) Option[T] {
	return func(b *Batcher[T]) { b.stats = stats }
}

// WithSpill sets the shutdown spill hook.
func WithSpill[T any](spill SpillFunc[T]) Option[T] {
	return func(b *Batcher[T]) { b.spill = spill }
}

// New builds a batcher over q. Call Start to begin consuming.
func New[T any](name string, cfg Config, q *queue.Bounded[T], export ExportFunc[T], opts ...Option[T]) *Batcher[T] {
	cfg.applyDefaults()
	lifeCtx, lifeCancel := context.WithCancel(context.Background())
	b := &Batcher[T]{
		name:       name,
		cfg:        cfg,
		q:          q,
		export:     export,
		logger:     zap.NewNop(),
		state:      atomic.NewInt32(stateAccepting),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
		flushReq:   make(chan chan struct{}),
		lifeCtx:    lifeCtx,
		lifeCancel: lifeCancel,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.stats.applyDefaults()
	b.sem = make(chan struct{}, cfg.MaxInFlight)
	return b
}

// Start launches the worker goroutine.
func (b *Batcher[T]) Start() {
	go b.worker()
}

func (b *Batcher[T]) worker() {
	defer close(b.done)

	timer := time.NewTimer(b.cfg.MaxDelay)
	defer timer.Stop()
	batch := make([]T, 0, b.cfg.MaxBatchSize)

	for {
		select {
		case v := <-b.q.Chan():
			batch = append(batch, v)
			if len(batch) >= b.cfg.MaxBatchSize {
				b.dispatch(batch)
				batch = make([]T, 0, b.cfg.MaxBatchSize)
				b.resetTimer(timer)
			}

		case <-timer.C:
			if len(batch) > 0 {
				b.dispatch(batch)
				batch = make([]T, 0, b.cfg.MaxBatchSize)
			}
			timer.Reset(b.cfg.MaxDelay)

		case ack := <-b.flushReq:
			batch = b.flushQueued(batch)
			if len(batch) > 0 {
				b.dispatch(batch)
				batch = make([]T, 0, b.cfg.MaxBatchSize)
			}
			b.resetTimer(timer)
			close(ack)

		case <-b.stop:
			b.drain(batch)
			return
		}
	}
}

// flushQueued moves everything queued at the moment of the flush request
// into batches, dispatching full ones. Bounding the reads by the current
// length keeps a flush from chasing concurrent producers forever.
func (b *Batcher[T]) flushQueued(batch []T) []T {
	n := b.q.Len()
loop:
	for i := 0; i < n; i++ {
		select {
		case v := <-b.q.Chan():
			batch = append(batch, v)
			if len(batch) >= b.cfg.MaxBatchSize {
				b.dispatch(batch)
				batch = make([]T, 0, b.cfg.MaxBatchSize)
			}
		default:
			break loop
		}
	}
	return batch
}

// drain empties the queue and the open batch after intake has closed. Once
// the deadline cancels lifeCtx, whatever remains goes to the spill hook.
func (b *Batcher[T]) drain(batch []T) {
	for {
		if b.lifeCtx.Err() != nil {
			for {
				select {
				case v := <-b.q.Chan():
					batch = append(batch, v)
				default:
					if len(batch) > 0 {
						b.spillOrDrop(batch)
					}
					return
				}
			}
		}
		select {
		case v := <-b.q.Chan():
			batch = append(batch, v)
			if len(batch) >= b.cfg.MaxBatchSize {
				b.dispatch(batch)
				batch = make([]T, 0, b.cfg.MaxBatchSize)
			}
		default:
			if len(batch) > 0 {
				b.dispatch(batch)
			}
			return
		}
	}
}

// dispatch hands a batch to an export goroutine, blocking while the
// in-flight limit is reached. A batch still waiting when lifeCtx dies is
// spilled.
func (b *Batcher[T]) dispatch(batch []T) {
	select {
	case b.sem <- struct{}{}:
	case <-b.lifeCtx.Done():
		b.spillOrDrop(batch)
		return
	}
	b.inflight.Add(1)
	go func() {
		defer func() {
			<-b.sem
			b.inflight.Done()
		}()
		b.exportWithRetry(batch)
	}()
}

func (b *Batcher[T]) exportWithRetry(batch []T) {
	attempts := 0
	op := func() error {
		attempts++
		if attempts > 1 {
			b.stats.RetriedExports.Inc()
		}
		callCtx, cancel := context.WithTimeout(b.lifeCtx, b.cfg.ExportTimeout)
		defer cancel()
		err := b.export(callCtx, batch)
		if err == nil {
			return nil
		}
		if exporter.IsPermanent(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	pol := backoff.NewExponentialBackOff()
	pol.InitialInterval = b.cfg.RetryInitialInterval
	pol.MaxInterval = b.cfg.RetryMaxInterval
	pol.MaxElapsedTime = 0

	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(pol, uint64(b.cfg.MaxRetries)), b.lifeCtx))
	if err == nil {
		b.stats.ExportedBatches.Inc()
		return
	}
	if b.lifeCtx.Err() != nil && !exporter.IsPermanent(err) {
		// Ran out of shutdown time, not retries.
		b.spillOrDrop(batch)
		return
	}
	b.stats.FailedBatches.Inc()
	b.logger.Warn("dropping batch after export failure",
		zap.String("signal", b.name),
		zap.Int("batch_size", len(batch)),
		zap.Int("attempts", attempts),
		zap.Error(err))
}

func (b *Batcher[T]) spillOrDrop(batch []T) {
	if b.spill != nil {
		err := b.spill(batch)
		if err == nil {
			b.stats.SpilledBatches.Inc()
			return
		}
		b.logger.Warn("spill failed",
			zap.String("signal", b.name),
			zap.Int("batch_size", len(batch)),
			zap.Error(err))
	}
	b.stats.DroppedOnShutdown.Add(int64(len(batch)))
}

func (b *Batcher[T]) resetTimer(timer *time.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
	timer.Reset(b.cfg.MaxDelay)
}

// ForceFlush pushes everything currently buffered through export and waits
// for in-flight deliveries, bounded by ctx.
func (b *Batcher[T]) ForceFlush(ctx context.Context) error {
	if b.state.Load() != stateAccepting {
		return nil
	}
	ack := make(chan struct{})
	select {
	case b.flushReq <- ack:
	case <-b.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("flush %s: %w", b.name, ctx.Err())
	}
	select {
	case <-ack:
	case <-ctx.Done():
		return fmt.Errorf("flush %s: %w", b.name, ctx.Err())
	}

	waited := make(chan struct{})
	go func() {
		b.inflight.Wait()
		close(waited)
	}()
	select {
	case <-waited:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("flush %s: %w", b.name, ctx.Err())
	}
}

// Drain closes intake, delivers everything it can before ctx expires, and
// spills or counts the rest. It returns only after all internal goroutines
// have settled, which is prompt even on deadline because the deadline
// cancels every internal wait. Only the first call does anything.
func (b *Batcher[T]) Drain(ctx context.Context) error {
	if !b.state.CompareAndSwap(stateAccepting, stateDraining) {
		return nil
	}
	b.q.CloseIntake()
	close(b.stop)
	stopAfter := context.AfterFunc(ctx, b.lifeCancel)
	defer stopAfter()

	finished := make(chan struct{})
	go func() {
		<-b.done
		b.inflight.Wait()
		// Sweep offers that raced intake close and landed after the
		// worker's final pass.
		for {
			select {
			case <-b.q.Chan():
				b.stats.DroppedOnShutdown.Inc()
			default:
				close(finished)
				return
			}
		}
	}()

	var err error
	select {
	case <-finished:
	case <-ctx.Done():
		err = fmt.Errorf("drain %s: %w", b.name, ctx.Err())
		<-finished
	}
	b.state.Store(stateClosed)
	b.lifeCancel()
	return err
}

// QueueLen reports how many items wait in the queue, for tests and stats.
func (b *Batcher[T]) QueueLen() int { return b.q.Len() }
