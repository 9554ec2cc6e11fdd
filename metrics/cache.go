package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/wippyai/dsp-runtime/linkcache"
)

// CacheCollector exports linkcache.Memory statistics at scrape time.
type CacheCollector struct {
	cache *linkcache.Memory

	hits      *prometheus.Desc
	misses    *prometheus.Desc
	puts      *prometheus.Desc
	evictions *prometheus.Desc
	entries   *prometheus.Desc
	bytes     *prometheus.Desc
}

var _ prometheus.Collector = (*CacheCollector)(nil)

// NewCacheCollector describes cache under the configured namespace with
// subsystem "linkcache". name labels the cache.
func NewCacheCollector(cfg *Config, name string, cache *linkcache.Memory) *CacheCollector {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	labels := prometheus.Labels{"cache": name}
	desc := func(metric, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(cfg.Namespace, "linkcache", metric), help, nil, labels)
	}
	return &CacheCollector{
		cache:     cache,
		hits:      desc("hits_total", "Linker cache hits"),
		misses:    desc("misses_total", "Linker cache misses"),
		puts:      desc("puts_total", "Artifacts stored"),
		evictions: desc("evictions_total", "Artifacts evicted by the LRU policy"),
		entries:   desc("entries", "Artifacts currently cached"),
		bytes:     desc("bytes", "Total size of cached artifacts"),
	}
}

func (c *CacheCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.hits
	ch <- c.misses
	ch <- c.puts
	ch <- c.evictions
	ch <- c.entries
	ch <- c.bytes
}

func (c *CacheCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.cache.Stats()
	ch <- prometheus.MustNewConstMetric(c.hits, prometheus.CounterValue, float64(s.Hits))
	ch <- prometheus.MustNewConstMetric(c.misses, prometheus.CounterValue, float64(s.Misses))
	ch <- prometheus.MustNewConstMetric(c.puts, prometheus.CounterValue, float64(s.Puts))
	ch <- prometheus.MustNewConstMetric(c.evictions, prometheus.CounterValue, float64(s.Evictions))
	ch <- prometheus.MustNewConstMetric(c.entries, prometheus.GaugeValue, float64(s.Entries))
	ch <- prometheus.MustNewConstMetric(c.bytes, prometheus.GaugeValue, float64(s.Bytes))
}

// RegisterCache registers a collector for cache with m's registry.
func (m *Metrics) RegisterCache(name string, cache *linkcache.Memory) {
	m.registry.MustRegister(NewCacheCollector(m.config, name, cache))
}
