// Package spill persists batches that could not be exported before the
// shutdown deadline and replays them on the next run.
//
// Entries are stored in a single bolt bucket keyed by wall-clock
// nanoseconds plus a bucket sequence number, so replay preserves the
// order batches were spilled in. Each value carries a one-byte signal
// tag ahead of the marshaled OTLP payload.
package spill

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/boltdb/bolt"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/deepaksharma/signalpipe/exporter"
)

var bucketBatches = []byte("batches")

const (
	tagTraces  byte = 1
	tagMetrics byte = 2
	tagLogs    byte = 3
)

func signalTag(s exporter.Signal) (byte, bool) {
	switch s {
	case exporter.SignalTraces:
		return tagTraces, true
	case exporter.SignalMetrics:
		return tagMetrics, true
	case exporter.SignalLogs:
		return tagLogs, true
	}
	return 0, false
}

func tagSignal(t byte) (exporter.Signal, bool) {
	switch t {
	case tagTraces:
		return exporter.SignalTraces, true
	case tagMetrics:
		return exporter.SignalMetrics, true
	case tagLogs:
		return exporter.SignalLogs, true
	}
	return "", false
}

// ReplayFunc re-exports one spilled payload. It matches the signature of
// the OTLP exporter's raw send.
type ReplayFunc func(ctx context.Context, signal exporter.Signal, payload []byte) error

// Store is a bolt-backed queue of spilled batches.
type Store struct {
	db     *bolt.DB
	cron   *cron.Cron
	logger *zap.Logger
}

// Open opens or creates the spill database at path.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create spill directory: %w", err)
	}

	// The timeout keeps a second process from blocking forever on the
	// file lock.
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open spill database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketBatches)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create spill bucket: %w", err)
	}

	return &Store{db: db, logger: logger}, nil
}

// Put appends one batch payload for the given signal.
func (s *Store) Put(signal exporter.Signal, payload []byte) error {
	tag, ok := signalTag(signal)
	if !ok {
		return fmt.Errorf("unknown signal %q", signal)
	}

	value := make([]byte, 1+len(payload))
	value[0] = tag
	copy(value[1:], payload)

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketBatches)
		seq, err := b.NextSequence()
		if err != nil {
			return fmt.Errorf("failed to allocate spill sequence: %w", err)
		}
		var key [16]byte
		binary.BigEndian.PutUint64(key[:8], uint64(time.Now().UnixNano()))
		binary.BigEndian.PutUint64(key[8:], seq)
		return b.Put(key[:], value)
	})
}

type spillEntry struct {
	key     []byte
	signal  exporter.Signal
	payload []byte
}

// Replay sends every stored batch through fn in insertion order, deleting
// each entry once fn accepts it. On the first fn error the remaining
// entries are kept for a later run. Returns the number of batches
// replayed.
func (s *Store) Replay(ctx context.Context, fn ReplayFunc) (int, error) {
	var entries []spillEntry
	var malformed [][]byte

	// Cursor values are only valid inside the transaction, so copy
	// everything out before exporting.
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketBatches).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			key := make([]byte, len(k))
			copy(key, k)
			if len(v) < 1 {
				malformed = append(malformed, key)
				continue
			}
			signal, ok := tagSignal(v[0])
			if !ok {
				malformed = append(malformed, key)
				continue
			}
			payload := make([]byte, len(v)-1)
			copy(payload, v[1:])
			entries = append(entries, spillEntry{key: key, signal: signal, payload: payload})
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to read spill entries: %w", err)
	}

	if len(malformed) > 0 {
		s.logger.Warn("dropping malformed spill entries", zap.Int("entries", len(malformed)))
		if err := s.deleteKeys(malformed); err != nil {
			return 0, err
		}
	}

	replayed := 0
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return replayed, err
		}
		if err := fn(ctx, e.signal, e.payload); err != nil {
			return replayed, fmt.Errorf("replay %s batch: %w", e.signal, err)
		}
		if err := s.deleteKeys([][]byte{e.key}); err != nil {
			return replayed, err
		}
		replayed++
	}
	return replayed, nil
}

// PurgeOlderThan deletes entries spilled more than age ago and returns
// how many were removed.
func (s *Store) PurgeOlderThan(age time.Duration) (int, error) {
	cutoff := uint64(time.Now().Add(-age).UnixNano())

	var stale [][]byte
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketBatches)
		c := b.Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			if len(k) >= 8 && binary.BigEndian.Uint64(k[:8]) >= cutoff {
				// Keys are time-ordered, everything after this is fresh.
				break
			}
			key := make([]byte, len(k))
			copy(key, k)
			stale = append(stale, key)
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to purge spill entries: %w", err)
	}
	return len(stale), nil
}

// StartMaintenance schedules PurgeOlderThan(retention) on a cron
// schedule. An empty schedule or non-positive retention disables
// maintenance.
func (s *Store) StartMaintenance(schedule string, retention time.Duration) error {
	if schedule == "" || retention <= 0 {
		return nil
	}
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		n, err := s.PurgeOlderThan(retention)
		if err != nil {
			s.logger.Error("spill purge failed", zap.Error(err))
			return
		}
		if n > 0 {
			s.logger.Info("purged expired spill batches", zap.Int("batches", n))
		}
	})
	if err != nil {
		return fmt.Errorf("invalid spill purge schedule %q: %w", schedule, err)
	}
	s.cron = c
	c.Start()
	s.logger.Info("spill maintenance scheduled",
		zap.String("schedule", schedule),
		zap.Duration("retention", retention))
	return nil
}

// Len returns the number of stored batches.
func (s *Store) Len() (int, error) {
	n := 0
	err := s.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(bucketBatches).Stats().KeyN
		return nil
	})
	return n, err
}

func (s *Store) deleteKeys(keys [][]byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketBatches)
		for _, k := range keys {
			if err := b.Delete(k); err != nil {
				return fmt.Errorf("failed to delete spill entry: %w", err)
			}
		}
		return nil
	})
}

// Close stops maintenance and closes the database.
func (s *Store) Close() error {
	if s.cron != nil {
		s.cron.Stop()
	}
	return s.db.Close()
}
