package batcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/deepaksharma/signalpipe/exporter"
	"github.com/deepaksharma/signalpipe/internal/queue"
)

type capture struct {
	mu      sync.Mutex
	batches [][]int
}

func (c *capture) fn() ExportFunc[int] {
	return func(_ context.Context, batch []int) error {
		c.mu.Lock()
		defer c.mu.Unlock()
		cp := append([]int(nil), batch...)
		c.batches = append(c.batches, cp)
		return nil
	}
}

func (c *capture) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.batches)
}

func (c *capture) total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, b := range c.batches {
		n += len(b)
	}
	return n
}

func (c *capture) sizes() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]int, len(c.batches))
	for i, b := range c.batches {
		out[i] = len(b)
	}
	return out
}

func offerN(t *testing.T, q *queue.Bounded[int], n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.True(t, q.Offer(i))
	}
}

func TestBatchBySize(t *testing.T) {
	q := queue.New[int](64, nil)
	var c capture
	b := New("traces", Config{MaxBatchSize: 3, MaxDelay: time.Hour}, q, c.fn())
	b.Start()

	offerN(t, q, 7)

	require.Eventually(t, func() bool { return c.count() == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []int{3, 3}, c.sizes())
	assert.Equal(t, 6, c.total(), "the seventh item waits for more or for the delay")

	require.NoError(t, b.Drain(context.Background()))
	assert.Equal(t, 7, c.total())
}

func TestBatchByDelay(t *testing.T) {
	q := queue.New[int](64, nil)
	var c capture
	b := New("traces", Config{MaxBatchSize: 100, MaxDelay: 50 * time.Millisecond}, q, c.fn())
	b.Start()

	offerN(t, q, 2)

	require.Eventually(t, func() bool { return c.count() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []int{2}, c.sizes(), "an undersized batch still ships when the delay elapses")
	require.NoError(t, b.Drain(context.Background()))
}

func TestRetryThenSuccess(t *testing.T) {
	q := queue.New[int](64, nil)
	var c capture
	fails := atomic.NewInt64(2)
	export := func(ctx context.Context, batch []int) error {
		if fails.Dec() >= 0 {
			return errors.New("collector unavailable")
		}
		return c.fn()(ctx, batch)
	}
	stats := Stats{RetriedExports: atomic.NewInt64(0), FailedBatches: atomic.NewInt64(0)}
	b := New("traces", Config{
		MaxBatchSize:         2,
		MaxDelay:             time.Hour,
		MaxRetries:           3,
		RetryInitialInterval: 5 * time.Millisecond,
		RetryMaxInterval:     20 * time.Millisecond,
	}, q, export, WithStats[int](stats))
	b.Start()

	offerN(t, q, 2)

	require.Eventually(t, func() bool { return c.count() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(2), stats.RetriedExports.Load())
	assert.Equal(t, int64(0), stats.FailedBatches.Load())
	require.NoError(t, b.Drain(context.Background()))
}

func TestRetryBudgetExhaustedDropsBatch(t *testing.T) {
	q := queue.New[int](64, nil)
	var c capture
	broken := atomic.NewBool(true)
	attempts := atomic.NewInt64(0)
	export := func(ctx context.Context, batch []int) error {
		attempts.Inc()
		if broken.Load() {
			return errors.New("collector unavailable")
		}
		return c.fn()(ctx, batch)
	}
	stats := Stats{FailedBatches: atomic.NewInt64(0)}
	b := New("traces", Config{
		MaxBatchSize:         2,
		MaxDelay:             time.Hour,
		MaxRetries:           2,
		RetryInitialInterval: 5 * time.Millisecond,
		RetryMaxInterval:     10 * time.Millisecond,
	}, q, export, WithStats[int](stats))
	b.Start()

	offerN(t, q, 2)
	require.Eventually(t, func() bool { return stats.FailedBatches.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(3), attempts.Load(), "one initial attempt plus two retries")

	// The pipeline keeps flowing after a dropped batch.
	broken.Store(false)
	offerN(t, q, 2)
	require.Eventually(t, func() bool { return c.count() == 1 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, b.Drain(context.Background()))
}

func TestPermanentErrorSkipsRetry(t *testing.T) {
	q := queue.New[int](64, nil)
	attempts := atomic.NewInt64(0)
	export := func(context.Context, []int) error {
		attempts.Inc()
		return exporter.Permanent(errors.New("bad request"))
	}
	stats := Stats{FailedBatches: atomic.NewInt64(0), RetriedExports: atomic.NewInt64(0)}
	b := New("traces", Config{
		MaxBatchSize:         2,
		MaxDelay:             time.Hour,
		MaxRetries:           5,
		RetryInitialInterval: 5 * time.Millisecond,
	}, q, export, WithStats[int](stats))
	b.Start()

	offerN(t, q, 2)
	require.Eventually(t, func() bool { return stats.FailedBatches.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(1), attempts.Load(), "permanent failures are not retried")
	assert.Equal(t, int64(0), stats.RetriedExports.Load())
	require.NoError(t, b.Drain(context.Background()))
}

func TestDrainDeliversBacklog(t *testing.T) {
	q := queue.New[int](64, nil)
	var c capture
	b := New("traces", Config{MaxBatchSize: 10, MaxDelay: time.Hour}, q, c.fn())
	b.Start()

	offerN(t, q, 25)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, b.Drain(ctx))
	assert.Equal(t, 25, c.total())
	assert.Equal(t, 0, b.QueueLen())

	assert.NoError(t, b.Drain(ctx), "a second drain is a no-op")
}

func TestDrainTimeoutReturnsError(t *testing.T) {
	q := queue.New[int](64, nil)
	release := make(chan struct{})
	export := func(ctx context.Context, _ []int) error {
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	b := New("traces", Config{MaxBatchSize: 10, MaxDelay: time.Hour, ExportTimeout: time.Hour}, q, export)
	b.Start()

	offerN(t, q, 5)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	err := b.Drain(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	close(release)
}

func TestDrainDeadlineSpillsLeftovers(t *testing.T) {
	q := queue.New[int](64, nil)
	export := func(ctx context.Context, _ []int) error {
		<-ctx.Done()
		return ctx.Err()
	}
	var mu sync.Mutex
	spilled := 0
	spill := func(batch []int) error {
		mu.Lock()
		defer mu.Unlock()
		spilled += len(batch)
		return nil
	}
	stats := Stats{SpilledBatches: atomic.NewInt64(0), DroppedOnShutdown: atomic.NewInt64(0)}
	b := New("traces", Config{MaxBatchSize: 10, MaxDelay: time.Hour, MaxInFlight: 1}, q, export,
		WithSpill[int](spill), WithStats[int](stats))
	b.Start()

	offerN(t, q, 25)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_ = b.Drain(ctx)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return spilled == 25
	}, 2*time.Second, 10*time.Millisecond, "undeliverable signals must reach the spill hook")
	assert.Equal(t, int64(0), stats.DroppedOnShutdown.Load())
	assert.GreaterOrEqual(t, stats.SpilledBatches.Load(), int64(2))
}

func TestSpillFailureCountsDrops(t *testing.T) {
	q := queue.New[int](64, nil)
	export := func(ctx context.Context, _ []int) error {
		<-ctx.Done()
		return ctx.Err()
	}
	spill := func([]int) error { return errors.New("disk full") }
	stats := Stats{DroppedOnShutdown: atomic.NewInt64(0)}
	b := New("traces", Config{MaxBatchSize: 10, MaxDelay: time.Hour, MaxInFlight: 1}, q, export,
		WithSpill[int](spill), WithStats[int](stats))
	b.Start()

	offerN(t, q, 5)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_ = b.Drain(ctx)

	require.Eventually(t, func() bool { return stats.DroppedOnShutdown.Load() == 5 }, 2*time.Second, 10*time.Millisecond)
}

func TestForceFlush(t *testing.T) {
	q := queue.New[int](64, nil)
	var c capture
	b := New("traces", Config{MaxBatchSize: 100, MaxDelay: time.Hour}, q, c.fn())
	b.Start()

	offerN(t, q, 3)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, b.ForceFlush(ctx))
	assert.Equal(t, 3, c.total(), "flush must deliver the open batch without waiting for the delay")

	require.NoError(t, b.Drain(context.Background()))
	assert.NoError(t, b.ForceFlush(ctx), "flush after drain is a no-op")
}

func TestInFlightLimit(t *testing.T) {
	q := queue.New[int](64, nil)
	release := make(chan struct{})
	cur := atomic.NewInt64(0)
	peak := atomic.NewInt64(0)
	export := func(context.Context, []int) error {
		n := cur.Inc()
		for {
			p := peak.Load()
			if n <= p || peak.CAS(p, n) {
				break
			}
		}
		<-release
		cur.Dec()
		return nil
	}
	b := New("traces", Config{MaxBatchSize: 1, MaxDelay: time.Hour, MaxInFlight: 2}, q, export)
	b.Start()

	offerN(t, q, 6)

	require.Eventually(t, func() bool { return cur.Load() == 2 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int64(2), peak.Load(), "dispatch must wait at the in-flight limit")

	close(release)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, b.Drain(ctx))
	assert.Equal(t, int64(2), peak.Load())
}
