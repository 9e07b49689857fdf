// Package metrics 提供 Prometheus 指标：HTTP 请求、购物车操作、库存与清理任务
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/wyfcoding/shopcart/pkg/logger"
)

const namespace = "shopcart"

// Metrics 指标集合
type Metrics struct {
	registry prometheus.Gatherer

	// HTTP 请求计数，按方法、路由、状态码
	HTTPRequestsTotal *prometheus.CounterVec
	// HTTP 请求耗时
	HTTPRequestDuration *prometheus.HistogramVec

	// 购物车操作结果，按操作、错误分类
	CartOperationsTotal *prometheus.CounterVec
	// 购物车事务耗时，按操作
	CartOperationDuration *prometheus.HistogramVec
	// 库存变动数量，按方向（reserve/release）
	StockUnitsTotal *prometheus.CounterVec

	// 清理任务执行次数，按阶段、结果
	SweepRunsTotal *prometheus.CounterVec
	// 清理任务影响的购物车数量，按阶段
	SweepCartsTotal *prometheus.CounterVec
	// 清理任务耗时
	SweepDuration *prometheus.HistogramVec
}

// New 创建指标并注册到新的 Registry
func New(serviceName string) *Metrics {
	reg := prometheus.NewRegistry()
	return NewWithRegistry(serviceName, reg, reg)
}

// NewWithRegistry 创建指标并注册到指定 Registerer
func NewWithRegistry(serviceName string, reg prometheus.Registerer, gatherer prometheus.Gatherer) *Metrics {
	m := &Metrics{
		registry: gatherer,
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: serviceName,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests",
		}, []string{"method", "route", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: serviceName,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		CartOperationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: serviceName,
			Name:      "cart_operations_total",
			Help:      "Cart operations by outcome",
		}, []string{"operation", "result"}),
		CartOperationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: serviceName,
			Name:      "cart_operation_duration_seconds",
			Help:      "Cart operation transaction duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		StockUnitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: serviceName,
			Name:      "stock_units_total",
			Help:      "Stock units reserved or released by carts",
		}, []string{"direction"}),
		SweepRunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: serviceName,
			Name:      "sweep_runs_total",
			Help:      "Lifecycle sweep runs by phase and outcome",
		}, []string{"phase", "result"}),
		SweepCartsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: serviceName,
			Name:      "sweep_carts_total",
			Help:      "Carts affected by lifecycle sweeps",
		}, []string{"phase"}),
		SweepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: serviceName,
			Name:      "sweep_duration_seconds",
			Help:      "Lifecycle sweep duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"phase"}),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.CartOperationsTotal,
		m.CartOperationDuration,
		m.StockUnitsTotal,
		m.SweepRunsTotal,
		m.SweepCartsTotal,
		m.SweepDuration,
	)
	return m
}

// ObserveCartOperation 记录一次购物车操作，result 为 ok 或错误分类
func (m *Metrics) ObserveCartOperation(operation, result string) {
	if m == nil {
		return
	}
	m.CartOperationsTotal.WithLabelValues(operation, result).Inc()
}

// ObserveCartDuration 记录一次购物车事务耗时
func (m *Metrics) ObserveCartDuration(operation string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.CartOperationDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// ObserveStock 记录库存变动，负数视为释放
func (m *Metrics) ObserveStock(delta int) {
	if m == nil || delta == 0 {
		return
	}
	if delta > 0 {
		m.StockUnitsTotal.WithLabelValues("reserve").Add(float64(delta))
		return
	}
	m.StockUnitsTotal.WithLabelValues("release").Add(float64(-delta))
}

// ObserveSweep 记录一次清理任务
func (m *Metrics) ObserveSweep(phase string, affected int64, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.SweepRunsTotal.WithLabelValues(phase, result).Inc()
	m.SweepCartsTotal.WithLabelValues(phase).Add(float64(affected))
	m.SweepDuration.WithLabelValues(phase).Observe(elapsed.Seconds())
}

// GinMiddleware 记录 HTTP 请求指标
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.HTTPRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.HTTPRequestDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

// Handler 返回指标暴露端点
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StartServer 在独立端口暴露指标，阻塞直到 ctx 取消
func (m *Metrics) StartServer(ctx context.Context, addr, path string) error {
	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info(ctx, "Metrics server listening", "addr", addr, "path", path)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
