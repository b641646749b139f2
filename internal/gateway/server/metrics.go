// Package server 网关 HTTP 组装层
package server

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"entropy-gateway/internal/shared/model"
	"entropy-gateway/internal/shared/opcache"
	"entropy-gateway/internal/shared/syncqueue"
)

// Metrics 包含所有网关指标
type Metrics struct {
	// HTTP 请求指标
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// 离线队列指标
	QueuedWrites prometheus.Counter

	// 模型调用指标
	AICallsTotal   *prometheus.CounterVec
	AICallDuration prometheus.Histogram
}

// NewMetrics 创建指标实例
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_requests_in_flight",
				Help:      "Current number of HTTP requests being processed",
			},
		),
		QueuedWrites: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sync_queue_writes_total",
				Help:      "Total writes diverted to the offline queue",
			},
		),
		AICallsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ai_calls_total",
				Help:      "Total generative model calls",
			},
			[]string{"operation", "status"},
		),
		AICallDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "ai_call_duration_seconds",
				Help:      "Generative model call duration in seconds",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30},
			},
		),
	}
}

// RegisterCacheStats 按缓存名导出命中/未命中/淘汰计数
//
// 统计来自缓存自身的快照函数，抓取时读取。
func RegisterCacheStats(namespace, cacheName string, stats func() opcache.Stats) {
	labels := prometheus.Labels{"cache": cacheName}

	promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   namespace,
		Name:        "cache_hits_total",
		Help:        "Cache hits",
		ConstLabels: labels,
	}, func() float64 { return float64(stats().Hits) })

	promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   namespace,
		Name:        "cache_misses_total",
		Help:        "Cache misses",
		ConstLabels: labels,
	}, func() float64 { return float64(stats().Misses) })

	promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   namespace,
		Name:        "cache_evictions_total",
		Help:        "Cache evictions",
		ConstLabels: labels,
	}, func() float64 { return float64(stats().Evictions) })

	promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   namespace,
		Name:        "cache_entries",
		Help:        "Current cache entries",
		ConstLabels: labels,
	}, func() float64 { return float64(stats().Size) })
}

// RegisterQueueDepth 导出离线队列积压深度，抓取时读取
func RegisterQueueDepth(namespace string, depth func() float64) {
	promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sync_queue_depth",
		Help:      "Pending tasks in the offline write queue",
	}, depth)
}

// RecordAICall 记录一次模型调用的结果与耗时
func (m *Metrics) RecordAICall(operation string, dur time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.AICallsTotal.WithLabelValues(operation, status).Inc()
	m.AICallDuration.Observe(dur.Seconds())
}

// countingQueue 统计成功落入离线队列的写任务数
type countingQueue struct {
	syncqueue.Queue
	writes prometheus.Counter
}

// InstrumentQueue 包装队列，Enqueue 成功时递增计数
func (m *Metrics) InstrumentQueue(q syncqueue.Queue) syncqueue.Queue {
	return countingQueue{Queue: q, writes: m.QueuedWrites}
}

func (q countingQueue) Enqueue(ctx context.Context, task *model.WriteTask) error {
	if err := q.Queue.Enqueue(ctx, task); err != nil {
		return err
	}
	q.writes.Inc()
	return nil
}

// MetricsMiddleware 创建 HTTP 指标中间件
func (m *Metrics) MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		m.HTTPRequestsInFlight.Inc()
		defer m.HTTPRequestsInFlight.Dec()

		// 包装 ResponseWriter 以捕获状态码
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start).Seconds()
		path := normalizePath(r.URL.Path)
		status := strconv.Itoa(wrapped.statusCode)

		m.HTTPRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// responseWriter 包装 http.ResponseWriter 以捕获状态码
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// normalizePath 规范化路径，将 ID 替换为占位符避免高基数
func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/api/v1/chat/history/") && path != "/api/v1/chat/history/batch-delete":
		return "/api/v1/chat/history/{id}"
	case strings.HasPrefix(path, "/assets/"):
		return "/assets/*"
	default:
		return path
	}
}

// MetricsHandler 返回 Prometheus HTTP Handler
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
