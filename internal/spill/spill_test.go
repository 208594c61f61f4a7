package spill

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/boltdb/bolt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepaksharma/signalpipe/exporter"
)

type replayed struct {
	signal  exporter.Signal
	payload string
}

func openStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "spill.db")
	s, err := Open(path, nil)
	require.NoError(t, err)
	return s, path
}

func TestPutAndReplay(t *testing.T) {
	s, _ := openStore(t)
	defer s.Close()

	require.NoError(t, s.Put(exporter.SignalTraces, []byte("t1")))
	require.NoError(t, s.Put(exporter.SignalMetrics, []byte("m1")))
	require.NoError(t, s.Put(exporter.SignalLogs, []byte("l1")))

	n, err := s.Len()
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	var got []replayed
	count, err := s.Replay(context.Background(), func(_ context.Context, sig exporter.Signal, payload []byte) error {
		got = append(got, replayed{signal: sig, payload: string(payload)})
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.Equal(t, []replayed{
		{exporter.SignalTraces, "t1"},
		{exporter.SignalMetrics, "m1"},
		{exporter.SignalLogs, "l1"},
	}, got)

	n, err = s.Len()
	require.NoError(t, err)
	assert.Equal(t, 0, n, "replayed entries must be deleted")
}

func TestReplayStopsOnError(t *testing.T) {
	s, _ := openStore(t)
	defer s.Close()

	for _, p := range []string{"a", "b", "c"} {
		require.NoError(t, s.Put(exporter.SignalTraces, []byte(p)))
	}

	calls := 0
	count, err := s.Replay(context.Background(), func(context.Context, exporter.Signal, []byte) error {
		calls++
		if calls == 2 {
			return errors.New("collector down")
		}
		return nil
	})
	require.Error(t, err)
	assert.Equal(t, 1, count)

	n, err := s.Len()
	require.NoError(t, err)
	assert.Equal(t, 2, n, "failed and unvisited entries stay")

	var got []string
	count, err = s.Replay(context.Background(), func(_ context.Context, _ exporter.Signal, payload []byte) error {
		got = append(got, string(payload))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Equal(t, []string{"b", "c"}, got, "retry resumes in order")
}

func TestReplayEmpty(t *testing.T) {
	s, _ := openStore(t)
	defer s.Close()

	count, err := s.Replay(context.Background(), func(context.Context, exporter.Signal, []byte) error {
		t.Fatal("fn must not be called on an empty store")
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spill.db")

	s, err := Open(path, nil)
	require.NoError(t, err)
	require.NoError(t, s.Put(exporter.SignalLogs, []byte("survives")))
	require.NoError(t, s.Close())

	s, err = Open(path, nil)
	require.NoError(t, err)
	defer s.Close()

	var got []replayed
	count, err := s.Replay(context.Background(), func(_ context.Context, sig exporter.Signal, payload []byte) error {
		got = append(got, replayed{signal: sig, payload: string(payload)})
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, []replayed{{exporter.SignalLogs, "survives"}}, got)
}

func TestPurgeOlderThan(t *testing.T) {
	s, _ := openStore(t)
	defer s.Close()

	require.NoError(t, s.Put(exporter.SignalTraces, []byte("x")))
	require.NoError(t, s.Put(exporter.SignalTraces, []byte("y")))

	n, err := s.PurgeOlderThan(time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "fresh entries stay")

	time.Sleep(5 * time.Millisecond)
	n, err = s.PurgeOlderThan(time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	left, err := s.Len()
	require.NoError(t, err)
	assert.Equal(t, 0, left)
}

func TestPutUnknownSignal(t *testing.T) {
	s, _ := openStore(t)
	defer s.Close()
	assert.Error(t, s.Put(exporter.Signal("bogus"), []byte("x")))
}

func TestReplayDropsMalformedEntries(t *testing.T) {
	s, _ := openStore(t)
	defer s.Close()

	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketBatches).Put([]byte("garbage-key"), []byte{99, 'x'})
	})
	require.NoError(t, err)

	count, err := s.Replay(context.Background(), func(context.Context, exporter.Signal, []byte) error {
		t.Fatal("malformed entries must not reach fn")
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	n, err := s.Len()
	require.NoError(t, err)
	assert.Equal(t, 0, n, "malformed entries are deleted")
}

func TestStartMaintenance(t *testing.T) {
	s, _ := openStore(t)
	defer s.Close()

	assert.Error(t, s.StartMaintenance("not a schedule", time.Hour))
	assert.NoError(t, s.StartMaintenance("@hourly", time.Hour))
	assert.NoError(t, s.StartMaintenance("", time.Hour), "empty schedule disables maintenance")
}
