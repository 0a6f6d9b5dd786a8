package pg

import (
	"github.com/prometheus/client_golang/prometheus"
)

// poolCollector expone el estado del pgxpool como gauges.
type poolCollector struct {
	s *Store

	acquiredDesc *prometheus.Desc
	idleDesc     *prometheus.Desc
	totalDesc    *prometheus.Desc
	maxDesc      *prometheus.Desc
}

// Collector devuelve un prometheus.Collector con las stats del pool.
func (s *Store) Collector() prometheus.Collector {
	return &poolCollector{
		s:            s,
		acquiredDesc: prometheus.NewDesc("appbase_pgxpool_acquired", "Conexiones adquiridas", nil, nil),
		idleDesc:     prometheus.NewDesc("appbase_pgxpool_idle", "Conexiones inactivas", nil, nil),
		totalDesc:    prometheus.NewDesc("appbase_pgxpool_total", "Conexiones totales", nil, nil),
		maxDesc:      prometheus.NewDesc("appbase_pgxpool_max", "Tamaño máximo del pool", nil, nil),
	}
}

func (c *poolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.acquiredDesc
	ch <- c.idleDesc
	ch <- c.totalDesc
	ch <- c.maxDesc
}

func (c *poolCollector) Collect(ch chan<- prometheus.Metric) {
	if c.s == nil || c.s.pool == nil {
		return
	}
	stat := c.s.pool.Stat()
	ch <- prometheus.MustNewConstMetric(c.acquiredDesc, prometheus.GaugeValue, float64(stat.AcquiredConns()))
	ch <- prometheus.MustNewConstMetric(c.idleDesc, prometheus.GaugeValue, float64(stat.IdleConns()))
	ch <- prometheus.MustNewConstMetric(c.totalDesc, prometheus.GaugeValue, float64(stat.TotalConns()))
	ch <- prometheus.MustNewConstMetric(c.maxDesc, prometheus.GaugeValue, float64(stat.MaxConns()))
}
