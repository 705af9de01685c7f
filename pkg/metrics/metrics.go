// Package metrics 提供基于Prometheus的库存账本指标
//
// # 指标类型
//
//   - Counter：只增不减的累计值（变更次数、重试次数、消息数）
//   - Gauge：可增可减的瞬时值（低库存记录数、熔断器状态）
//   - Histogram：观测值的分布（变更耗时、HTTP耗时）
//
// # 使用示例
//
//	metrics.InitMetrics()
//	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
//
//	start := time.Now()
//	err := doMutation()
//	metrics.ObserveMutation("register_sale", "success", time.Since(start))
//
// # 命名规范
//
//   - Counter以`_total`结尾
//   - Histogram以单位结尾（`_seconds`）
//   - 标签只使用有限取值（operation、movement_type、result），不要用book_id
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// initOnce 防止重复注册
	initOnce sync.Once

	// HTTP请求相关指标

	// HTTPRequestsTotal HTTP请求总数（Counter）
	// 标签：method（GET/POST）、path（路由模板）、status（200/500）
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTPRequestDuration HTTP请求耗时（Histogram）
	HTTPRequestDuration *prometheus.HistogramVec

	// HTTPRequestsInProgress 正在处理的HTTP请求数（Gauge）
	HTTPRequestsInProgress prometheus.Gauge

	// 库存账本指标

	// StockMutationsTotal 库存变更总数（Counter）
	// 标签：operation（register_sale等）、result（success/conflict/invalid_argument/...）
	StockMutationsTotal *prometheus.CounterVec

	// StockMutationDuration 库存变更耗时，含重试（Histogram）
	StockMutationDuration *prometheus.HistogramVec

	// StockMutationRetries 版本冲突/死锁导致的重试次数（Counter）
	StockMutationRetries *prometheus.CounterVec

	// MovementsRecordedTotal 写入的变动记录数（Counter）
	// 标签：movement_type
	MovementsRecordedTotal *prometheus.CounterVec

	// LowStockInventories 最近一次查询到的低库存记录数（Gauge）
	LowStockInventories prometheus.Gauge

	// 缓存指标

	// CacheRequestsTotal 可售状态缓存访问（Counter）
	// 标签：result（hit/miss/error）
	CacheRequestsTotal *prometheus.CounterVec

	// 熔断器指标

	// CircuitBreakerState 熔断器状态（Gauge）
	// 0=CLOSED, 1=OPEN, 2=HALF_OPEN
	CircuitBreakerState *prometheus.GaugeVec

	// CircuitBreakerRequests 熔断器请求总数（Counter）
	// 标签：name（熔断器名称）、result（success/failure/rejected）
	CircuitBreakerRequests *prometheus.CounterVec

	// 消息队列指标

	// MessagesPublishedTotal 消息发布总数（Counter）
	// 标签：exchange、routing_key、result
	MessagesPublishedTotal *prometheus.CounterVec

	// MessagesConsumedTotal 消息消费总数（Counter）
	// 标签：queue、result（success/failure）
	MessagesConsumedTotal *prometheus.CounterVec

	// MessageProcessingDuration 消息处理耗时（Histogram）
	MessageProcessingDuration prometheus.Histogram
)

// InitMetrics 初始化所有Prometheus指标
//
// 使用promauto注册到默认Registry，可重复调用
func InitMetrics() {
	initOnce.Do(register)
}

func register() {
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP请求总数",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "http_request_duration_seconds",
			Help: "HTTP请求耗时（秒）",
			// 桶设置：1ms、10ms、100ms、500ms、1s、5s、10s
			Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 10},
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_progress",
			Help: "正在处理的HTTP请求数",
		},
	)

	StockMutationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inventory_stock_mutations_total",
			Help: "库存变更总数",
		},
		[]string{"operation", "result"},
	)

	StockMutationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "inventory_stock_mutation_duration_seconds",
			Help: "库存变更耗时（秒，含重试）",
			// 单行锁事务通常在10ms内，重试时可能到百毫秒级
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"operation"},
	)

	StockMutationRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inventory_stock_mutation_retries_total",
			Help: "库存变更冲突重试次数",
		},
		[]string{"operation"},
	)

	MovementsRecordedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inventory_movements_recorded_total",
			Help: "写入的库存变动记录数",
		},
		[]string{"movement_type"},
	)

	LowStockInventories = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "inventory_low_stock_records",
			Help: "低库存预警记录数",
		},
	)

	CacheRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inventory_cache_requests_total",
			Help: "可售状态缓存访问次数",
		},
		[]string{"result"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "熔断器状态（0=CLOSED, 1=OPEN, 2=HALF_OPEN）",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "熔断器请求总数",
		},
		[]string{"name", "result"},
	)

	MessagesPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_published_total",
			Help: "消息发布总数",
		},
		[]string{"exchange", "routing_key", "result"},
	)

	MessagesConsumedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_consumed_total",
			Help: "消息消费总数",
		},
		[]string{"queue", "result"},
	)

	MessageProcessingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "message_processing_duration_seconds",
			Help:    "消息处理耗时（秒）",
			Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5},
		},
	)
}

// ObserveMutation 记录一次库存变更的结果和耗时
// result由调用方根据错误类别给出（success、conflict、not_found等）
func ObserveMutation(operation, result string, d time.Duration) {
	InitMetrics()
	StockMutationsTotal.WithLabelValues(operation, result).Inc()
	StockMutationDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncMutationRetry 记录一次冲突重试
func IncMutationRetry(operation string) {
	InitMetrics()
	StockMutationRetries.WithLabelValues(operation).Inc()
}

// IncMovement 记录一条变动记录
func IncMovement(movementType string) {
	InitMetrics()
	MovementsRecordedTotal.WithLabelValues(movementType).Inc()
}

// SetLowStock 设置低库存记录数
func SetLowStock(n int) {
	InitMetrics()
	LowStockInventories.Set(float64(n))
}

// IncCache 记录缓存访问结果
func IncCache(result string) {
	InitMetrics()
	CacheRequestsTotal.WithLabelValues(result).Inc()
}

// IncCounterVec 递增CounterVec（带标签）
func IncCounterVec(counter *prometheus.CounterVec, labels map[string]string) {
	counter.With(labels).Inc()
}

// SetGaugeVec 设置GaugeVec值（带标签）
func SetGaugeVec(gauge *prometheus.GaugeVec, labels map[string]string, value float64) {
	gauge.With(labels).Set(value)
}

// ObserveHistogram 记录Histogram观测值
func ObserveHistogram(histogram prometheus.Histogram, value float64) {
	histogram.Observe(value)
}

// ObserveHistogramVec 记录HistogramVec观测值（带标签）
func ObserveHistogramVec(histogram *prometheus.HistogramVec, labels map[string]string, value float64) {
	histogram.With(labels).Observe(value)
}
