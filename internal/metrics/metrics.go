package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	LocatorRequestsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "storescrape_locator_requests_total",
		Help: "Total locator HTTP attempts",
	})
	LocatorSuccessTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "storescrape_locator_success_total",
		Help: "Total nearby-store lookups that returned data",
	})
	LocatorFailTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "storescrape_locator_fail_total",
		Help: "Total nearby-store lookups that failed after retries",
	})
	LocatorRetriesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "storescrape_locator_retries_total",
		Help: "Total locator retries after a transient failure",
	})
	LocatorDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "storescrape_locator_duration_ms",
		Help:    "Locator HTTP attempt duration in milliseconds",
		Buckets: []float64{5, 10, 20, 50, 100, 200, 500, 1000, 2000, 5000},
	})
	CacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "storescrape_cache_hits_total",
		Help: "Total redis response cache hits",
	})
	CacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "storescrape_cache_misses_total",
		Help: "Total redis response cache misses",
	})
	QueriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storescrape_queries_total",
		Help: "Nearby-store queries issued by the search driver",
	}, []string{"region"})
	CoveredSkipsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storescrape_covered_skips_total",
		Help: "Frontier points and seeds skipped because they were already covered",
	}, []string{"region", "source"})
	StoresDiscovered = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "storescrape_stores_discovered",
		Help: "Distinct stores discovered in the latest search of a region",
	}, []string{"region"})
	RegionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storescrape_regions_total",
		Help: "Region searches by outcome",
	}, []string{"status"})
	RegionDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "storescrape_region_duration_seconds",
		Help:    "Wall time of one region search",
		Buckets: prometheus.ExponentialBuckets(1, 4, 8),
	}, []string{"status"})
)

func init() {
	prometheus.MustRegister(LocatorRequestsTotal)
	prometheus.MustRegister(LocatorSuccessTotal)
	prometheus.MustRegister(LocatorFailTotal)
	prometheus.MustRegister(LocatorRetriesTotal)
	prometheus.MustRegister(LocatorDurationMs)
	prometheus.MustRegister(CacheHitsTotal)
	prometheus.MustRegister(CacheMissesTotal)
	prometheus.MustRegister(QueriesTotal)
	prometheus.MustRegister(CoveredSkipsTotal)
	prometheus.MustRegister(StoresDiscovered)
	prometheus.MustRegister(RegionsTotal)
	prometheus.MustRegister(RegionDurationSeconds)
}

// 文档注释：返回 Prometheus 指标监听器
// 背景：抓取任务是批处理进程，仅在配置 METRICS_ADDR 时由入口挂载到 /metrics
func Handler() http.Handler { return promhttp.Handler() }
