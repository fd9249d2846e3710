// Package metrics wires the buffer pool's hit/miss/eviction counters into
// OpenTelemetry's metric API with a Prometheus exporter, the same
// combination the rest of the project's telemetry package sets up for
// tracing and metrics together -- trimmed here to metrics only, since the
// storage core has no request spans to trace.
package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// BufferPool holds the instruments the buffer pool manager increments on
// every fetch (hit or miss), eviction and flush. A nil *BufferPool is valid
// and records nothing,
// so tests and callers that don't care about metrics can skip setup.
type BufferPool struct {
	hits      metric.Int64Counter
	misses    metric.Int64Counter
	evictions metric.Int64Counter
	flushes   metric.Int64Counter
}

// NewBufferPool builds a BufferPool metrics set registered against a fresh
// Prometheus exporter and meter provider. The exporter registers with the
// default Prometheus registry; callers that want to scrape these counters
// serve that registry (e.g. via promhttp) themselves. NewBufferPool only
// wires the instruments, it does not start an HTTP server.
func NewBufferPool() (*BufferPool, *sdkmetric.MeterProvider, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, fmt.Errorf("metrics: creating prometheus exporter: %w", err)
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	meter := provider.Meter("coredb/buffer")

	bp, err := newBufferPool(meter)
	if err != nil {
		return nil, nil, err
	}
	return bp, provider, nil
}

// NoopBufferPool returns a BufferPool backed by the no-op metric API, for
// callers that want the instrumentation call sites exercised without
// standing up a real exporter.
func NoopBufferPool() *BufferPool {
	bp, _ := newBufferPool(noop.NewMeterProvider().Meter(""))
	return bp
}

func newBufferPool(meter metric.Meter) (*BufferPool, error) {
	hits, err := meter.Int64Counter("coredb.buffer.hits",
		metric.WithDescription("pages served from an already-resident frame"))
	if err != nil {
		return nil, err
	}
	misses, err := meter.Int64Counter("coredb.buffer.misses",
		metric.WithDescription("pages that required a frame acquisition and possibly a disk read"))
	if err != nil {
		return nil, err
	}
	evictions, err := meter.Int64Counter("coredb.buffer.evictions",
		metric.WithDescription("frames reclaimed from the replacer to satisfy a new/fetch"))
	if err != nil {
		return nil, err
	}
	flushes, err := meter.Int64Counter("coredb.buffer.flushes",
		metric.WithDescription("pages written back to the disk manager"))
	if err != nil {
		return nil, err
	}
	return &BufferPool{hits: hits, misses: misses, evictions: evictions, flushes: flushes}, nil
}

// RecordHit records a page served from an already-resident frame. Exported
// so the buffer package, which owns the BPM's fetch path, can call it
// directly; m may be nil.
func (m *BufferPool) RecordHit() {
	if m != nil {
		m.hits.Add(context.Background(), 1)
	}
}

// RecordMiss records a page that required a frame acquisition and possibly
// a disk read. m may be nil.
func (m *BufferPool) RecordMiss() {
	if m != nil {
		m.misses.Add(context.Background(), 1)
	}
}

// RecordEviction records a frame reclaimed from the replacer to satisfy a
// new/fetch. m may be nil.
func (m *BufferPool) RecordEviction() {
	if m != nil {
		m.evictions.Add(context.Background(), 1)
	}
}

// RecordFlush records a page written back to the disk manager. m may be nil.
func (m *BufferPool) RecordFlush() {
	if m != nil {
		m.flushes.Add(context.Background(), 1)
	}
}
