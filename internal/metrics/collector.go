// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"context"
	"time"

	"github.com/BaSui01/landau/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器。同时满足 rag.Recorder、rag.CacheRecorder、
// tools.Observer 与 conversation.Recorder。
type Collector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// 检索指标
	retrievalsTotal   *prometheus.CounterVec
	retrievalDuration prometheus.Histogram
	retrievalResults  prometheus.Histogram
	rerankCallsTotal  *prometheus.CounterVec

	// 工具指标
	toolCallsTotal   *prometheus.CounterVec
	toolCallDuration *prometheus.HistogramVec
	toolsInFlight    prometheus.Gauge

	// LLM 指标
	llmStreamsTotal   *prometheus.CounterVec
	llmStreamDuration *prometheus.HistogramVec
	hallucinations    prometheus.Counter

	// 缓存指标
	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	// 数据库指标
	dbConnectionsOpen *prometheus.GaugeVec
	dbConnectionsIdle *prometheus.GaugeVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器并注册到 reg；reg 为 nil 时使用默认 Registry。
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.httpRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
	c.httpRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	c.retrievalsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retrievals_total",
			Help:      "Total number of retrieval pipeline runs",
		},
		[]string{"status"},
	)
	c.retrievalDuration = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "retrieval_duration_seconds",
		Help:      "Retrieval pipeline duration in seconds",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	})
	c.retrievalResults = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "retrieval_results",
		Help:      "Number of passages returned per retrieval",
		Buckets:   []float64{0, 1, 2, 5, 10, 20, 50},
	})
	c.rerankCallsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rerank_calls_total",
			Help:      "Total number of rerank calls",
		},
		[]string{"status"},
	)

	c.toolCallsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Total number of tool calls",
		},
		[]string{"tool", "outcome"},
	)
	c.toolCallDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_call_duration_seconds",
			Help:      "Tool call duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"tool"},
	)
	c.toolsInFlight = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "tool_calls_in_flight",
		Help:      "Tool calls currently executing",
	})

	c.llmStreamsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_streams_total",
			Help:      "Total number of model streams",
		},
		[]string{"provider", "status"},
	)
	c.llmStreamDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_stream_duration_seconds",
			Help:      "Model stream duration in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"provider"},
	)
	c.hallucinations = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "hallucinated_citations_total",
		Help:      "Citation keys the model produced without having seen them",
	})

	c.cacheHits = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of cache hits",
		},
		[]string{"cache_type"},
	)
	c.cacheMisses = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of cache misses",
		},
		[]string{"cache_type"},
	)

	c.dbConnectionsOpen = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_open",
			Help:      "Number of open database connections",
		},
		[]string{"database"},
	)
	c.dbConnectionsIdle = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_idle",
			Help:      "Number of idle database connections",
		},
		[]string{"database"},
	)

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))
	return c
}

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// =============================================================================
// 🔎 检索
// =============================================================================

// RecordRetrieval 记录一次检索管线执行
func (c *Collector) RecordRetrieval(status string, duration time.Duration, results int) {
	c.retrievalsTotal.WithLabelValues(status).Inc()
	c.retrievalDuration.Observe(duration.Seconds())
	if status == "ok" {
		c.retrievalResults.Observe(float64(results))
	}
}

// RecordRerank 记录一次重排序调用
func (c *Collector) RecordRerank(status string) {
	c.rerankCallsTotal.WithLabelValues(status).Inc()
}

// =============================================================================
// 🔧 工具
// =============================================================================

// ToolStarted 实现 tools.Observer
func (c *Collector) ToolStarted(_ context.Context, _ types.ToolCall) {
	c.toolsInFlight.Inc()
}

// ToolFinished 实现 tools.Observer
func (c *Collector) ToolFinished(_ context.Context, result types.ToolResult) {
	c.toolsInFlight.Dec()
	outcome := "ok"
	if result.Error != "" {
		outcome = "error"
	}
	c.toolCallsTotal.WithLabelValues(result.Name, outcome).Inc()
	c.toolCallDuration.WithLabelValues(result.Name).Observe(result.Duration.Seconds())
}

// =============================================================================
// 🤖 LLM
// =============================================================================

// RecordLLMStream 记录一次模型流式请求
func (c *Collector) RecordLLMStream(provider, status string, duration time.Duration) {
	c.llmStreamsTotal.WithLabelValues(provider, status).Inc()
	c.llmStreamDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordHallucination 记录被划掉的引用数
func (c *Collector) RecordHallucination(count int) {
	if count > 0 {
		c.hallucinations.Add(float64(count))
	}
}

// =============================================================================
// 💾 缓存与数据库
// =============================================================================

func (c *Collector) RecordCacheHit(cacheType string) {
	c.cacheHits.WithLabelValues(cacheType).Inc()
}

func (c *Collector) RecordCacheMiss(cacheType string) {
	c.cacheMisses.WithLabelValues(cacheType).Inc()
}

// RecordDBConnections 记录数据库连接数
func (c *Collector) RecordDBConnections(database string, open, idle int) {
	c.dbConnectionsOpen.WithLabelValues(database).Set(float64(open))
	c.dbConnectionsIdle.WithLabelValues(database).Set(float64(idle))
}

// statusCode 将 HTTP 状态码归类
func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
