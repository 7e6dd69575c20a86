package storage

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// BackgroundFlusher periodically writes every resident page of a BufferPool back to storage, bounding how much work
// is lost if the process dies without a clean shutdown.
type BackgroundFlusher struct {
	bufferPool *BufferPool
	interval   time.Duration
	logger     *zap.Logger
	shutdown   chan struct{}
	done       sync.WaitGroup
	stopOnce   sync.Once
}

// NewBackgroundFlusher creates a new flusher instance.
func NewBackgroundFlusher(bp *BufferPool, interval time.Duration, logger *zap.Logger) *BackgroundFlusher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BackgroundFlusher{
		bufferPool: bp,
		interval:   interval,
		logger:     logger,
		shutdown:   make(chan struct{}),
	}
}

// Start initiates background flushing.
func (bf *BackgroundFlusher) Start() {
	bf.done.Add(1)
	go bf.flushLoop()
}

// Stop signals the flusher to shut down and blocks until the final flush is complete. Calling Stop more than once
// is a no-op.
func (bf *BackgroundFlusher) Stop() {
	bf.stopOnce.Do(func() {
		close(bf.shutdown)
		bf.done.Wait()
	})
}

func (bf *BackgroundFlusher) flushLoop() {
	defer bf.done.Done()
	ticker := time.NewTicker(bf.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			// Best effort; the next tick retries whatever failed.
			if err := bf.bufferPool.FlushAllPages(); err != nil {
				bf.logger.Warn("background flush failed", zap.Error(err))
			}

		case <-bf.shutdown:
			// On shutdown, perform one final full flush to ensure a clean state.
			if err := bf.bufferPool.FlushAllPages(); err != nil {
				bf.logger.Warn("final flush failed", zap.Error(err))
			}
			return
		}
	}
}
