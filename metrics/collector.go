// Package metrics exposes a coap.Engine's counters and queue depths as a
// prometheus.Collector, grounded on the exporter.TCPInfoCollector pattern
// of re-querying live state at scrape time rather than caching samples.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/embeddedadventures/coap"
)

// EngineCollector adapts an *coap.Engine to prometheus.Collector. It holds
// no counters of its own; every Collect call re-reads the engine's
// current Counters() and QueueDepths().
type EngineCollector struct {
	engine *coap.Engine
	prefix string

	sent        *prometheus.Desc
	retransmits *prometheus.Desc
	failures    *prometheus.Desc
	successes   *prometheus.Desc
	timeouts    *prometheus.Desc
	dropped     *prometheus.Desc
	queueDepth  *prometheus.Desc
}

// NewEngineCollector builds a Collector for engine. prefix namespaces the
// exported metric names, e.g. "coap_client".
func NewEngineCollector(engine *coap.Engine, prefix string) *EngineCollector {
	constLabels := prometheus.Labels{}
	return &EngineCollector{
		engine: engine,
		prefix: prefix,
		sent: prometheus.NewDesc(prefix+"_sent_total",
			"Total confirmable and non-confirmable messages sent.", nil, constLabels),
		retransmits: prometheus.NewDesc(prefix+"_retransmits_total",
			"Total confirmable retransmissions.", nil, constLabels),
		failures: prometheus.NewDesc(prefix+"_failures_total",
			"Total confirmables that reached their global deadline without an ACK.", nil, constLabels),
		successes: prometheus.NewDesc(prefix+"_successes_total",
			"Total confirmables acknowledged.", nil, constLabels),
		timeouts: prometheus.NewDesc(prefix+"_response_timeouts_total",
			"Total inbound confirmables not serviced before their response deadline.", nil, constLabels),
		dropped: prometheus.NewDesc(prefix+"_dropped_total",
			"Total inbound datagrams dropped for a full ring or a parse error.", nil, constLabels),
		queueDepth: prometheus.NewDesc(prefix+"_queue_depth",
			"Current number of filled slots in a ring.", []string{"ring"}, constLabels),
	}
}

// Describe implements prometheus.Collector.
func (c *EngineCollector) Describe(descs chan<- *prometheus.Desc) {
	descs <- c.sent
	descs <- c.retransmits
	descs <- c.failures
	descs <- c.successes
	descs <- c.timeouts
	descs <- c.dropped
	descs <- c.queueDepth
}

// Collect implements prometheus.Collector, sampling the engine's current
// state.
func (c *EngineCollector) Collect(metrics chan<- prometheus.Metric) {
	stats := c.engine.Counters()
	rx, tx := c.engine.QueueDepths()

	metrics <- prometheus.MustNewConstMetric(c.sent, prometheus.CounterValue, float64(stats.Sent))
	metrics <- prometheus.MustNewConstMetric(c.retransmits, prometheus.CounterValue, float64(stats.Retransmits))
	metrics <- prometheus.MustNewConstMetric(c.failures, prometheus.CounterValue, float64(stats.Failures))
	metrics <- prometheus.MustNewConstMetric(c.successes, prometheus.CounterValue, float64(stats.Successes))
	metrics <- prometheus.MustNewConstMetric(c.timeouts, prometheus.CounterValue, float64(stats.Timeouts))
	metrics <- prometheus.MustNewConstMetric(c.dropped, prometheus.CounterValue, float64(stats.Dropped))
	metrics <- prometheus.MustNewConstMetric(c.queueDepth, prometheus.GaugeValue, float64(rx), "rx")
	metrics <- prometheus.MustNewConstMetric(c.queueDepth, prometheus.GaugeValue, float64(tx), "tx")
}
