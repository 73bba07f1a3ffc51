package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pilotage"

// Load outcome labels
const (
	StatusSuccess = "success"
	StatusNoInput = "no_input"
	StatusFailed  = "failed"
)

// Metrics 加载与规范化相关的指标
type Metrics struct {
	registry *prometheus.Registry

	Loads         *prometheus.CounterVec
	LoadDuration  prometheus.Histogram
	CacheHits     prometheus.Counter
	CacheMisses   prometheus.Counter
	MissingCells  *prometheus.CounterVec
	RescaledCols  *prometheus.CounterVec
	TablesPresent prometheus.Gauge
}

// New 创建独立 registry 上的指标集合
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		Loads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loads_total",
			Help:      "Source loads by outcome.",
		}, []string{"status"}),
		LoadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "load_duration_seconds",
			Help:      "Time spent reading and normalizing a source.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Loads served from the process cache.",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Loads that had to be computed.",
		}),
		MissingCells: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "coerced_missing_cells_total",
			Help:      "Non-blank cells that failed numeric coercion and became missing.",
		}, []string{"key"}),
		RescaledCols: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rescaled_columns_total",
			Help:      "Ratio columns rescaled to the 0-100 scale.",
		}, []string{"key"}),
		TablesPresent: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tables_present",
			Help:      "Logical tables available in the current load.",
		}),
	}
	reg.MustRegister(
		m.Loads, m.LoadDuration, m.CacheHits, m.CacheMisses,
		m.MissingCells, m.RescaledCols, m.TablesPresent,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveLoad 记录一次加载的结果
func (m *Metrics) ObserveLoad(status string, d time.Duration, cacheHit bool) {
	if m == nil {
		return
	}
	m.Loads.WithLabelValues(status).Inc()
	if status != StatusSuccess {
		return
	}
	m.LoadDuration.Observe(d.Seconds())
	if cacheHit {
		m.CacheHits.Inc()
	} else {
		m.CacheMisses.Inc()
	}
}

// ObserveTable 记录单表规范化统计（仅在实际计算时调用）
func (m *Metrics) ObserveTable(key string, missing, rescaled int) {
	if m == nil {
		return
	}
	m.MissingCells.WithLabelValues(key).Add(float64(missing))
	m.RescaledCols.WithLabelValues(key).Add(float64(rescaled))
}

// SetTables 当前加载的逻辑表数量
func (m *Metrics) SetTables(n int) {
	if m == nil {
		return
	}
	m.TablesPresent.Set(float64(n))
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler 返回 /metrics 的 HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
