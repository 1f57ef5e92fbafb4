package cache

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "modelrouter"

// collector exports the statistics of every managed cache at scrape time.
type collector struct {
	m *Manager

	size            *prometheus.Desc
	maxSize         *prometheus.Desc
	hits            *prometheus.Desc
	misses          *prometheus.Desc
	evictions       *prometheus.Desc
	expiredRemovals *prometheus.Desc
	hitRatio        *prometheus.Desc
}

// Collector returns a Prometheus collector for all caches in m, labelled by
// cache name. Caches created after registration are picked up automatically.
func (m *Manager) Collector() prometheus.Collector {
	labels := []string{"cache"}
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(metricsNamespace, "cache", name), help, labels, nil)
	}
	return &collector{
		m:               m,
		size:            desc("size", "Current number of entries"),
		maxSize:         desc("max_size", "Configured capacity"),
		hits:            desc("hits_total", "Total cache hits"),
		misses:          desc("misses_total", "Total cache misses, including expired reads"),
		evictions:       desc("evictions_total", "Total LRU evictions"),
		expiredRemovals: desc("expired_removals_total", "Total entries removed because their TTL passed"),
		hitRatio:        desc("hit_ratio", "Hits divided by lookups"),
	}
}

// Describe implements prometheus.Collector.
func (c *collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.size
	ch <- c.maxSize
	ch <- c.hits
	ch <- c.misses
	ch <- c.evictions
	ch <- c.expiredRemovals
	ch <- c.hitRatio
}

// Collect implements prometheus.Collector.
func (c *collector) Collect(ch chan<- prometheus.Metric) {
	for _, s := range c.m.AllStats() {
		ch <- prometheus.MustNewConstMetric(c.size, prometheus.GaugeValue, float64(s.Size), s.Name)
		ch <- prometheus.MustNewConstMetric(c.maxSize, prometheus.GaugeValue, float64(s.MaxSize), s.Name)
		ch <- prometheus.MustNewConstMetric(c.hits, prometheus.CounterValue, float64(s.Hits), s.Name)
		ch <- prometheus.MustNewConstMetric(c.misses, prometheus.CounterValue, float64(s.Misses), s.Name)
		ch <- prometheus.MustNewConstMetric(c.evictions, prometheus.CounterValue, float64(s.Evictions), s.Name)
		ch <- prometheus.MustNewConstMetric(c.expiredRemovals, prometheus.CounterValue, float64(s.ExpiredRemovals), s.Name)
		ch <- prometheus.MustNewConstMetric(c.hitRatio, prometheus.GaugeValue, s.HitRatio, s.Name)
	}
}
