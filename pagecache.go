package pagecache

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"mit.edu/dsg/pagecache/config"
	"mit.edu/dsg/pagecache/logger"
	"mit.edu/dsg/pagecache/storage"
	"mit.edu/dsg/pagecache/telemetry"
)

// PageCache is the top-level container wiring a buffer pool to its storage backend, logger, metrics and background
// flusher.
type PageCache struct {
	Config     config.Config
	Logger     *zap.Logger
	Telemetry  *telemetry.Telemetry
	Storage    storage.StorageManager
	BufferPool *storage.BufferPool

	flusher           *storage.BackgroundFlusher
	shutdownTelemetry telemetry.ShutdownFunc
	closeOnce         sync.Once
	closeErr          error
}

// Open validates cfg and builds a ready-to-use PageCache. With the disk backend, page ids continue after the highest
// page already present in the storage directory.
func Open(cfg config.Config) (*PageCache, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log, err := logger.New(cfg.Logger)
	if err != nil {
		return nil, err
	}

	tel, shutdownTelemetry, err := telemetry.New(cfg.Telemetry, log)
	if err != nil {
		return nil, err
	}

	opts := []storage.Option{
		storage.WithLogger(log),
		storage.WithMeter(tel.Meter),
		storage.WithReplacer(cfg.BufferPool.Policy, cfg.BufferPool.ReplacerK),
		storage.WithBucketSize(cfg.BufferPool.BucketSize),
	}

	var sm storage.StorageManager
	switch cfg.Storage.Backend {
	case config.BackendMemory:
		sm = storage.NewMemoryStorage()
	default:
		dsm, err := storage.NewDiskStorageManager(cfg.Storage.Dir, cfg.Storage.SegmentPages)
		if err != nil {
			_ = shutdownTelemetry(context.Background())
			return nil, err
		}
		next, err := dsm.NextPageID()
		if err != nil {
			_ = dsm.Close()
			_ = shutdownTelemetry(context.Background())
			return nil, fmt.Errorf("failed to scan %s: %w", cfg.Storage.Dir, err)
		}
		opts = append(opts, storage.WithNextPageID(next))
		sm = dsm
	}

	bp, err := storage.NewBufferPool(cfg.BufferPool.PoolSize, sm, opts...)
	if err != nil {
		_ = sm.Close()
		_ = shutdownTelemetry(context.Background())
		return nil, err
	}

	pc := &PageCache{
		Config:            cfg,
		Logger:            log,
		Telemetry:         tel,
		Storage:           sm,
		BufferPool:        bp,
		shutdownTelemetry: shutdownTelemetry,
	}
	if cfg.Flusher.Interval > 0 {
		pc.flusher = storage.NewBackgroundFlusher(bp, cfg.Flusher.Interval, log)
		pc.flusher.Start()
	}

	log.Info("page cache opened",
		zap.Int("frames", cfg.BufferPool.PoolSize),
		zap.String("policy", string(cfg.BufferPool.Policy)),
		zap.String("backend", cfg.Storage.Backend),
		zap.Stringer("next_page_id", bp.NextPageID()))
	return pc, nil
}

// Close stops the flusher, writes every resident page back, and releases the storage backend and telemetry. Pages
// still pinned are written as they are. Subsequent calls return the result of the first.
func (pc *PageCache) Close() error {
	pc.closeOnce.Do(func() {
		if pc.flusher != nil {
			pc.flusher.Stop()
		}
		var errs []error
		if err := pc.BufferPool.FlushAllPages(); err != nil {
			errs = append(errs, err)
		}
		if err := pc.Storage.Sync(); err != nil {
			errs = append(errs, err)
		}
		if err := pc.Storage.Close(); err != nil {
			errs = append(errs, err)
		}
		if err := pc.shutdownTelemetry(context.Background()); err != nil {
			errs = append(errs, err)
		}
		pc.closeErr = errors.Join(errs...)
		if pc.closeErr != nil {
			pc.Logger.Error("page cache closed with errors", zap.Error(pc.closeErr))
		} else {
			pc.Logger.Info("page cache closed")
		}
		// Syncing stderr reports EINVAL on some platforms.
		_ = pc.Logger.Sync()
	})
	return pc.closeErr
}
