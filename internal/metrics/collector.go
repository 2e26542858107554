// Package metrics exposes the service's Prometheus instruments.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns a private registry so several collectors can coexist in one
// process. All methods are safe on a nil receiver.
type Collector struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	answerRoutesTotal  *prometheus.CounterVec
	ambiguousRoutes    prometheus.Counter
	generationTotal    *prometheus.CounterVec
	generationDuration *prometheus.HistogramVec
	indexBuildsTotal   *prometheus.CounterVec
	indexBuildDuration prometheus.Histogram
	indexedChunks      prometheus.Gauge
	kgTriples          prometheus.Gauge
	documentsIngested  *prometheus.CounterVec
}

func NewCollector(namespace string) *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		httpRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
		answerRoutesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "answer_routes_total",
			Help:      "Answered queries by route (empty, kg, fallback, hybrid)",
		}, []string{"route"}),
		ambiguousRoutes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ambiguous_routes_total",
			Help:      "Queries that matched the KG while also carrying a fallback trigger",
		}),
		generationTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "Total number of generation requests",
		}, []string{"provider", "status"}),
		generationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_request_duration_seconds",
			Help:      "Generation request duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"provider"}),
		indexBuildsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "index_builds_total",
			Help:      "Index builds by mode (rebuild, restore, clear)",
		}, []string{"mode"}),
		indexBuildDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "index_build_duration_seconds",
			Help:      "Time spent building a full index snapshot",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
		indexedChunks: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "indexed_chunks",
			Help:      "Chunks in the active index snapshot",
		}),
		kgTriples: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "kg_triples",
			Help:      "Triples in the active knowledge graph",
		}),
		documentsIngested: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_ingested_total",
			Help:      "Uploaded documents by outcome (stored, duplicate, rejected)",
		}, []string{"outcome"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	if c == nil {
		return
	}
	c.httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

func (c *Collector) RecordRoute(route string) {
	if c == nil {
		return
	}
	c.answerRoutesTotal.WithLabelValues(route).Inc()
}

func (c *Collector) RecordAmbiguousRoute() {
	if c == nil {
		return
	}
	c.ambiguousRoutes.Inc()
}

func (c *Collector) RecordGeneration(provider string, duration time.Duration, err error) {
	if c == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	c.generationTotal.WithLabelValues(provider, status).Inc()
	c.generationDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

func (c *Collector) RecordIndexBuild(mode string, duration time.Duration, chunks, triples int) {
	if c == nil {
		return
	}
	c.indexBuildsTotal.WithLabelValues(mode).Inc()
	c.indexBuildDuration.Observe(duration.Seconds())
	c.indexedChunks.Set(float64(chunks))
	c.kgTriples.Set(float64(triples))
}

func (c *Collector) RecordIngest(outcome string) {
	if c == nil {
		return
	}
	c.documentsIngested.WithLabelValues(outcome).Inc()
}
