package observability

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implementations must be safe for concurrent use.
type MetricsCollector interface {
	// RecordInsert is called after each vector insert or update.
	RecordInsert(duration time.Duration, err error)

	// RecordBatchInsert is called after a bulk load.
	// count is the number of items applied, failed is 1 if the load stopped on an error.
	RecordBatchInsert(count, failed int, duration time.Duration)

	// RecordSearch is called after each search batch.
	// queries is the batch size, k the neighbors requested per query.
	RecordSearch(queries, k int, duration time.Duration, err error)

	// RecordDelete is called after each delete operation.
	RecordDelete(duration time.Duration, err error)

	// RecordPayloadRead is called after each payload lookup.
	// hit reports whether the document was served from the cache.
	RecordPayloadRead(hit bool, duration time.Duration, err error)

	// RecordPayloadWrite is called after each payload mutation.
	RecordPayloadWrite(duration time.Duration, err error)

	// RecordFlush is called after each snapshot or flush.
	RecordFlush(duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordInsert(time.Duration, error)            {}
func (NoopMetricsCollector) RecordBatchInsert(int, int, time.Duration)    {}
func (NoopMetricsCollector) RecordSearch(int, int, time.Duration, error)  {}
func (NoopMetricsCollector) RecordDelete(time.Duration, error)            {}
func (NoopMetricsCollector) RecordPayloadRead(bool, time.Duration, error) {}
func (NoopMetricsCollector) RecordPayloadWrite(time.Duration, error)      {}
func (NoopMetricsCollector) RecordFlush(time.Duration, error)             {}

// OrNoop returns m, or a NoopMetricsCollector when m is nil.
func OrNoop(m MetricsCollector) MetricsCollector {
	if m == nil {
		return NoopMetricsCollector{}
	}
	return m
}

// BasicMetricsCollector provides simple in-memory metrics collection.
type BasicMetricsCollector struct {
	InsertCount       atomic.Int64
	InsertErrors      atomic.Int64
	InsertTotalNanos  atomic.Int64
	BatchInsertCount  atomic.Int64
	BatchInsertItems  atomic.Int64
	BatchInsertFailed atomic.Int64
	SearchCount       atomic.Int64
	SearchQueries     atomic.Int64
	SearchErrors      atomic.Int64
	SearchTotalNanos  atomic.Int64
	DeleteCount       atomic.Int64
	DeleteErrors      atomic.Int64
	PayloadReads      atomic.Int64
	PayloadHits       atomic.Int64
	PayloadErrors     atomic.Int64
	PayloadWrites     atomic.Int64
	FlushCount        atomic.Int64
	FlushErrors       atomic.Int64
}

// RecordInsert implements MetricsCollector.
func (b *BasicMetricsCollector) RecordInsert(duration time.Duration, err error) {
	b.InsertCount.Add(1)
	b.InsertTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.InsertErrors.Add(1)
	}
}

// RecordBatchInsert implements MetricsCollector.
func (b *BasicMetricsCollector) RecordBatchInsert(count, failed int, _ time.Duration) {
	b.BatchInsertCount.Add(1)
	b.BatchInsertItems.Add(int64(count))
	b.BatchInsertFailed.Add(int64(failed))
}

// RecordSearch implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSearch(queries, _ int, duration time.Duration, err error) {
	b.SearchCount.Add(1)
	b.SearchQueries.Add(int64(queries))
	b.SearchTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.SearchErrors.Add(1)
	}
}

// RecordDelete implements MetricsCollector.
func (b *BasicMetricsCollector) RecordDelete(_ time.Duration, err error) {
	b.DeleteCount.Add(1)
	if err != nil {
		b.DeleteErrors.Add(1)
	}
}

// RecordPayloadRead implements MetricsCollector.
func (b *BasicMetricsCollector) RecordPayloadRead(hit bool, _ time.Duration, err error) {
	b.PayloadReads.Add(1)
	if hit {
		b.PayloadHits.Add(1)
	}
	if err != nil {
		b.PayloadErrors.Add(1)
	}
}

// RecordPayloadWrite implements MetricsCollector.
func (b *BasicMetricsCollector) RecordPayloadWrite(_ time.Duration, err error) {
	b.PayloadWrites.Add(1)
	if err != nil {
		b.PayloadErrors.Add(1)
	}
}

// RecordFlush implements MetricsCollector.
func (b *BasicMetricsCollector) RecordFlush(_ time.Duration, err error) {
	b.FlushCount.Add(1)
	if err != nil {
		b.FlushErrors.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		InsertCount:       b.InsertCount.Load(),
		InsertErrors:      b.InsertErrors.Load(),
		InsertAvgNanos:    avg(b.InsertTotalNanos.Load(), b.InsertCount.Load()),
		BatchInsertCount:  b.BatchInsertCount.Load(),
		BatchInsertItems:  b.BatchInsertItems.Load(),
		BatchInsertFailed: b.BatchInsertFailed.Load(),
		SearchCount:       b.SearchCount.Load(),
		SearchQueries:     b.SearchQueries.Load(),
		SearchErrors:      b.SearchErrors.Load(),
		SearchAvgNanos:    avg(b.SearchTotalNanos.Load(), b.SearchCount.Load()),
		DeleteCount:       b.DeleteCount.Load(),
		DeleteErrors:      b.DeleteErrors.Load(),
		PayloadReads:      b.PayloadReads.Load(),
		PayloadHits:       b.PayloadHits.Load(),
		PayloadErrors:     b.PayloadErrors.Load(),
		PayloadWrites:     b.PayloadWrites.Load(),
		FlushCount:        b.FlushCount.Load(),
		FlushErrors:       b.FlushErrors.Load(),
	}
}

func avg(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	InsertCount       int64
	InsertErrors      int64
	InsertAvgNanos    int64
	BatchInsertCount  int64
	BatchInsertItems  int64
	BatchInsertFailed int64
	SearchCount       int64
	SearchQueries     int64
	SearchErrors      int64
	SearchAvgNanos    int64
	DeleteCount       int64
	DeleteErrors      int64
	PayloadReads      int64
	PayloadHits       int64
	PayloadErrors     int64
	PayloadWrites     int64
	FlushCount        int64
	FlushErrors       int64
}
