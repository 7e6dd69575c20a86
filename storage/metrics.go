package storage

import (
	"context"

	"go.opentelemetry.io/otel/metric"
)

const meterName = "mit.edu/dsg/pagecache/storage"

// bufferPoolMetrics holds the instruments recorded by a BufferPool.
type bufferPoolMetrics struct {
	hits        metric.Int64Counter
	misses      metric.Int64Counter
	evictions   metric.Int64Counter
	writebacks  metric.Int64Counter
	flushes     metric.Int64Counter
	noFreeFrame metric.Int64Counter
	gauges      metric.Registration
}

func newBufferPoolMetrics(meter metric.Meter, bp *BufferPool) (*bufferPoolMetrics, error) {
	m := &bufferPoolMetrics{}
	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&m.hits, "pagecache.bufferpool.hits", "Page requests served from a resident frame."},
		{&m.misses, "pagecache.bufferpool.misses", "Page requests that had to read from storage."},
		{&m.evictions, "pagecache.bufferpool.evictions", "Frames reclaimed from the replacer."},
		{&m.writebacks, "pagecache.bufferpool.writebacks", "Dirty victims written back before reuse."},
		{&m.flushes, "pagecache.bufferpool.flushes", "Pages written by FlushPage or FlushAllPages."},
		{&m.noFreeFrame, "pagecache.bufferpool.no_free_frame", "Requests rejected because every frame was pinned."},
	}
	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name, metric.WithDescription(c.desc), metric.WithUnit("{page}"))
		if err != nil {
			return nil, err
		}
		*c.dst = counter
	}

	resident, err := meter.Int64ObservableGauge(
		"pagecache.bufferpool.resident_pages",
		metric.WithDescription("Frames currently holding a page."),
		metric.WithUnit("{page}"),
	)
	if err != nil {
		return nil, err
	}
	pinned, err := meter.Int64ObservableGauge(
		"pagecache.bufferpool.pinned_pages",
		metric.WithDescription("Frames with a positive pin count."),
		metric.WithUnit("{page}"),
	)
	if err != nil {
		return nil, err
	}
	m.gauges, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		numResident, numPinned := bp.occupancy()
		o.ObserveInt64(resident, int64(numResident))
		o.ObserveInt64(pinned, int64(numPinned))
		return nil
	}, resident, pinned)
	if err != nil {
		return nil, err
	}
	return m, nil
}
