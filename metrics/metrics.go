// Package metrics exposes cache and limiter activity as Prometheus counters.
// Observers are labelled by a host-chosen name; keep names to a small fixed
// set to avoid cardinality blowups.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	lru "lrulimit"
	"lrulimit/ratelimit"
)

type Metrics struct {
	reg     *prometheus.Registry
	handler http.Handler

	cacheHits      *prometheus.CounterVec
	cacheMisses    *prometheus.CounterVec
	cacheEvictions *prometheus.CounterVec

	limiterAdmitted *prometheus.CounterVec
	limiterRejected *prometheus.CounterVec
}

// New returns a fresh registry with the standard Go and process collectors
// plus the cache and limiter counters.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		reg: reg,
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lru_cache_hits_total",
			Help: "Total cache lookups that found a value",
		}, []string{"cache"}),
		cacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lru_cache_misses_total",
			Help: "Total cache lookups that found nothing",
		}, []string{"cache"}),
		cacheEvictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lru_cache_evictions_total",
			Help: "Total entries removed from the cache by reason",
		}, []string{"cache", "reason"}),
		limiterAdmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ratelimit_admitted_total",
			Help: "Total events admitted by the limiter",
		}, []string{"limiter"}),
		limiterRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ratelimit_rejected_total",
			Help: "Total events rejected by the limiter",
		}, []string{"limiter"}),
	}

	reg.MustRegister(
		m.cacheHits,
		m.cacheMisses,
		m.cacheEvictions,
		m.limiterAdmitted,
		m.limiterRejected,
	)

	m.handler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler { return m.handler }

type cacheObserver struct {
	hits, misses prometheus.Counter
	evictions    *prometheus.CounterVec
}

func (o cacheObserver) Hit()  { o.hits.Inc() }
func (o cacheObserver) Miss() { o.misses.Inc() }
func (o cacheObserver) Evicted(reason lru.EvictReason) {
	o.evictions.WithLabelValues(reason.String()).Inc()
}

// CacheObserver returns an lru.Observer recording under cache=name.
func (m *Metrics) CacheObserver(name string) lru.Observer {
	return cacheObserver{
		hits:      m.cacheHits.WithLabelValues(name),
		misses:    m.cacheMisses.WithLabelValues(name),
		evictions: m.cacheEvictions.MustCurryWith(prometheus.Labels{"cache": name}),
	}
}

type limiterObserver struct {
	admitted, rejected prometheus.Counter
}

func (o limiterObserver) Admitted() { o.admitted.Inc() }
func (o limiterObserver) Rejected() { o.rejected.Inc() }

// LimiterObserver returns a ratelimit.Observer recording under limiter=name.
func (m *Metrics) LimiterObserver(name string) ratelimit.Observer {
	return limiterObserver{
		admitted: m.limiterAdmitted.WithLabelValues(name),
		rejected: m.limiterRejected.WithLabelValues(name),
	}
}
