package prometheus

import (
	"net/http"

	goLease "github.com/MrEthical07/goLease"
	"github.com/MrEthical07/goLease/metrics/export/internaldefs"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metricsSource interface {
	MetricsSnapshot() goLease.MetricsSnapshot
	AuditDropped() uint64
}

type counterDesc struct {
	id   goLease.MetricID
	desc *prom.Desc
}

type histogramDesc struct {
	id   goLease.MetricID
	desc *prom.Desc
}

// Collector converts engine snapshots into Prometheus metrics on every
// scrape.
type Collector struct {
	source     metricsSource
	counters   []counterDesc
	histograms []histogramDesc
	dropped    *prom.Desc
}

var _ prom.Collector = (*Collector)(nil)

// NewCollector creates a collector reading from engine.
func NewCollector(engine *goLease.Engine) *Collector {
	return NewCollectorFromSource(engine)
}

// NewCollectorFromSource creates a collector over any snapshot source.
func NewCollectorFromSource(source metricsSource) *Collector {
	c := &Collector{
		source:     source,
		counters:   make([]counterDesc, 0, len(internaldefs.CounterDefs)),
		histograms: make([]histogramDesc, 0, len(internaldefs.HistogramDefs)),
		dropped: prom.NewDesc(
			"golease_audit_dropped_total",
			"Dropped audit events due to dispatcher backpressure.",
			nil, nil,
		),
	}
	for _, def := range internaldefs.CounterDefs {
		c.counters = append(c.counters, counterDesc{id: def.ID, desc: prom.NewDesc(def.Name, def.Help, nil, nil)})
	}
	for _, def := range internaldefs.HistogramDefs {
		c.histograms = append(c.histograms, histogramDesc{id: def.ID, desc: prom.NewDesc(def.Name, def.Help, nil, nil)})
	}
	return c
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prom.Desc) {
	for _, d := range c.counters {
		ch <- d.desc
	}
	for _, h := range c.histograms {
		ch <- h.desc
	}
	ch <- c.dropped
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prom.Metric) {
	if c == nil || c.source == nil {
		return
	}

	snapshot := c.source.MetricsSnapshot()

	for _, d := range c.counters {
		ch <- prom.MustNewConstMetric(d.desc, prom.CounterValue, float64(snapshot.Counters[d.id]))
	}

	for _, h := range c.histograms {
		raw, ok := snapshot.Histograms[h.id]
		if !ok {
			continue
		}
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(raw))
		buckets := make(map[float64]uint64, len(internaldefs.HistogramBoundValues))
		for i, upper := range internaldefs.HistogramBoundValues {
			buckets[upper] = cumulative[i]
		}
		// The engine does not track a latency sum.
		ch <- prom.MustNewConstHistogram(h.desc, cumulative[len(cumulative)-1], 0, buckets)
	}

	ch <- prom.MustNewConstMetric(c.dropped, prom.CounterValue, float64(c.source.AuditDropped()))
}

// Exporter owns a private registry holding one [Collector].
type Exporter struct {
	registry *prom.Registry
}

// NewExporter registers a collector for engine in a fresh registry.
func NewExporter(engine *goLease.Engine) (*Exporter, error) {
	return NewExporterFromSource(engine)
}

// NewExporterFromSource is NewExporter for a custom snapshot source.
func NewExporterFromSource(source metricsSource) (*Exporter, error) {
	reg := prom.NewRegistry()
	if err := reg.Register(NewCollectorFromSource(source)); err != nil {
		return nil, err
	}
	return &Exporter{registry: reg}, nil
}

// Registry returns the exporter's registry so callers can add process or
// runtime collectors next to the engine metrics.
func (e *Exporter) Registry() *prom.Registry {
	return e.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}
