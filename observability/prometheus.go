package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusCollector implements MetricsCollector on Prometheus metrics.
type PrometheusCollector struct {
	opLatency    *prometheus.HistogramVec
	writes       *prometheus.CounterVec
	searchQuery  prometheus.Counter
	payloadReads *prometheus.CounterVec
	batchItems   prometheus.Counter
}

var _ MetricsCollector = (*PrometheusCollector)(nil)

// NewPrometheusCollector creates the collector and registers it with reg.
// A nil reg uses prometheus.DefaultRegisterer.
func NewPrometheusCollector(reg prometheus.Registerer) (*PrometheusCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	p := &PrometheusCollector{
		opLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vdego_operation_latency_seconds",
			Help:    "Latency of segment operations",
			Buckets: prometheus.DefBuckets,
		}, []string{"op", "status"}),
		writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vdego_writes_total",
			Help: "Total writes processed",
		}, []string{"type"}),
		searchQuery: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vdego_search_queries_total",
			Help: "Total query vectors searched",
		}),
		payloadReads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vdego_payload_reads_total",
			Help: "Payload lookups by cache outcome",
		}, []string{"cache"}),
		batchItems: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vdego_batch_items_total",
			Help: "Items applied by bulk loads",
		}),
	}

	for _, c := range []prometheus.Collector{p.opLatency, p.writes, p.searchQuery, p.payloadReads, p.batchItems} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func (p *PrometheusCollector) observe(op string, d time.Duration, err error) {
	p.opLatency.WithLabelValues(op, status(err)).Observe(d.Seconds())
}

// RecordInsert implements MetricsCollector.
func (p *PrometheusCollector) RecordInsert(d time.Duration, err error) {
	p.observe("insert", d, err)
	p.writes.WithLabelValues("insert").Inc()
}

// RecordBatchInsert implements MetricsCollector.
func (p *PrometheusCollector) RecordBatchInsert(count, failed int, d time.Duration) {
	var err error
	if failed > 0 {
		err = errBatchFailed
	}
	p.observe("batch_insert", d, err)
	p.batchItems.Add(float64(count))
}

// RecordSearch implements MetricsCollector.
func (p *PrometheusCollector) RecordSearch(queries, _ int, d time.Duration, err error) {
	p.observe("search", d, err)
	p.searchQuery.Add(float64(queries))
}

// RecordDelete implements MetricsCollector.
func (p *PrometheusCollector) RecordDelete(d time.Duration, err error) {
	p.observe("delete", d, err)
	p.writes.WithLabelValues("delete").Inc()
}

// RecordPayloadRead implements MetricsCollector.
func (p *PrometheusCollector) RecordPayloadRead(hit bool, d time.Duration, err error) {
	p.observe("payload_read", d, err)
	if hit {
		p.payloadReads.WithLabelValues("hit").Inc()
	} else {
		p.payloadReads.WithLabelValues("miss").Inc()
	}
}

// RecordPayloadWrite implements MetricsCollector.
func (p *PrometheusCollector) RecordPayloadWrite(d time.Duration, err error) {
	p.observe("payload_write", d, err)
	p.writes.WithLabelValues("payload").Inc()
}

// RecordFlush implements MetricsCollector.
func (p *PrometheusCollector) RecordFlush(d time.Duration, err error) {
	p.observe("flush", d, err)
}
