package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestBackgroundFlusher_PeriodicFlush(t *testing.T) {
	stats := newStatsStorage(NewMemoryStorage())
	bp, err := NewBufferPool(4, stats)
	require.NoError(t, err)

	id, f, err := bp.NewPage()
	require.NoError(t, err)
	copy(f.Bytes[:], "tick")
	require.True(t, bp.UnpinPage(id, true))

	flusher := NewBackgroundFlusher(bp, 5*time.Millisecond, nil)
	flusher.Start()
	assert.Eventually(t, func() bool { return stats.WritesOf(id) > 0 }, time.Second, time.Millisecond)
	flusher.Stop()
	flusher.Stop()

	buf := make([]byte, len(f.Bytes))
	require.NoError(t, stats.StorageManager.ReadPage(id, buf))
	assert.Equal(t, f.Bytes[:], buf)
}

func TestBackgroundFlusher_FinalFlushOnStop(t *testing.T) {
	stats := newStatsStorage(NewMemoryStorage())
	bp, err := NewBufferPool(4, stats)
	require.NoError(t, err)

	// An interval long enough that only the shutdown flush can run.
	flusher := NewBackgroundFlusher(bp, time.Hour, nil)
	flusher.Start()

	id, _, err := bp.NewPage()
	require.NoError(t, err)
	require.True(t, bp.UnpinPage(id, true))
	assert.Equal(t, int64(0), stats.WriteCnt.Load())

	flusher.Stop()
	assert.Equal(t, int64(1), stats.WritesOf(id))
}

func TestBackgroundFlusher_LogsFailures(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	stats := newStatsStorage(NewMemoryStorage())
	bp, err := NewBufferPool(2, stats)
	require.NoError(t, err)
	_, _, err = bp.NewPage()
	require.NoError(t, err)

	stats.FailWrites.Store(true)
	flusher := NewBackgroundFlusher(bp, time.Hour, zap.New(core))
	flusher.Start()
	flusher.Stop()

	assert.Equal(t, 1, logs.FilterMessage("final flush failed").Len())
}
