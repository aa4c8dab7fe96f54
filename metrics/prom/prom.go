// Package prom exports storage metrics through Prometheus client_golang.
package prom

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hupe1980/mmstore/metrics"
)

var _ metrics.Collector = (*Collector)(nil)

// Collector implements metrics.Collector and prometheus.Collector.
type Collector struct {
	capacity   *prometheus.GaugeVec
	grows      *prometheus.CounterVec
	allocs     *prometheus.CounterVec
	allocBytes *prometheus.CounterVec
	frees      *prometheus.CounterVec
	freeBytes  *prometheus.CounterVec
	opLatency  *prometheus.HistogramVec
}

// NewCollector creates a Collector whose metric names are prefixed with namespace.
func NewCollector(namespace string) *Collector {
	return &Collector{
		capacity: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "region_capacity_bytes",
			Help:      "Current capacity of a memory region",
		}, []string{"component"}),
		grows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "region_grows_total",
			Help:      "Total number of region growth events",
		}, []string{"component"}),
		allocs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "allocations_total",
			Help:      "Total allocations, split by whether a freed block was reused",
		}, []string{"component", "reused"}),
		allocBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "allocated_bytes_total",
			Help:      "Total bytes handed out by allocators",
		}, []string{"component"}),
		frees: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frees_total",
			Help:      "Total blocks queued for delayed reuse",
		}, []string{"component"}),
		freeBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "freed_bytes_total",
			Help:      "Total bytes queued for delayed reuse",
		}, []string{"component"}),
		opLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_latency_seconds",
			Help:      "Latency of kv, index and snapshot operations",
			Buckets:   prometheus.ExponentialBuckets(1e-7, 4, 12),
		}, []string{"component", "op", "status"}),
	}
}

// RecordGrow implements metrics.Collector.
func (c *Collector) RecordGrow(component string, capacity uint64) {
	c.grows.WithLabelValues(component).Inc()
	c.capacity.WithLabelValues(component).Set(float64(capacity))
}

// RecordAlloc implements metrics.Collector.
func (c *Collector) RecordAlloc(component string, bytes uint64, reused bool) {
	label := "false"
	if reused {
		label = "true"
	}

	c.allocs.WithLabelValues(component, label).Inc()
	c.allocBytes.WithLabelValues(component).Add(float64(bytes))
}

// RecordFree implements metrics.Collector.
func (c *Collector) RecordFree(component string, bytes uint64) {
	c.frees.WithLabelValues(component).Inc()
	c.freeBytes.WithLabelValues(component).Add(float64(bytes))
}

// RecordOp implements metrics.Collector.
func (c *Collector) RecordOp(component, op string, duration time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}

	c.opLatency.WithLabelValues(component, op, status).Observe(duration.Seconds())
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.capacity.Describe(ch)
	c.grows.Describe(ch)
	c.allocs.Describe(ch)
	c.allocBytes.Describe(ch)
	c.frees.Describe(ch)
	c.freeBytes.Describe(ch)
	c.opLatency.Describe(ch)
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.capacity.Collect(ch)
	c.grows.Collect(ch)
	c.allocs.Collect(ch)
	c.allocBytes.Collect(ch)
	c.frees.Collect(ch)
	c.freeBytes.Collect(ch)
	c.opLatency.Collect(ch)
}
