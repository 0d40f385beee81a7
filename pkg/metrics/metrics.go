// Package metrics 提供 Prometheus helper，覆盖撮合引擎的消费、撮合、提交与外发指标
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/xuganyu96/chives-exchange/pkg/logger"
)

// Metrics 指标集合
type Metrics struct {
	// 消费的订单消息总数
	OrdersConsumedTotal prometheus.Counter
	// 被丢进死信队列的消息总数
	OrdersDeadLetteredTotal prometheus.Counter
	// 完成的撮合心跳总数
	HeartbeatsTotal prometheus.Counter
	// 单次心跳耗时（接收到提交完成）
	HeartbeatDuration prometheus.Histogram

	// 产生的成交记录总数
	TransactionsTotal prometheus.Counter
	// 提交事务耗时
	CommitDuration prometheus.Histogram
	// 提交失败后的重试总数
	CommitRetriesTotal prometheus.Counter

	// 外发到 Kafka 的成交事件总数
	TradeEventsPublishedTotal prometheus.Counter
	// outbox 中待外发的事件数
	OutboxPending prometheus.Gauge
}

// New 创建指标实例
func New(serviceName string) *Metrics {
	return &Metrics{
		OrdersConsumedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chives",
			Subsystem: serviceName,
			Name:      "orders_consumed_total",
			Help:      "Total order messages consumed from the work queue",
		}),
		OrdersDeadLetteredTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chives",
			Subsystem: serviceName,
			Name:      "orders_dead_lettered_total",
			Help:      "Total order messages rejected to the dead letter exchange",
		}),
		HeartbeatsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chives",
			Subsystem: serviceName,
			Name:      "heartbeats_total",
			Help:      "Total completed match heartbeats",
		}),
		HeartbeatDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "chives",
			Subsystem: serviceName,
			Name:      "heartbeat_duration_seconds",
			Help:      "Heartbeat duration from receive to commit in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		TransactionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chives",
			Subsystem: serviceName,
			Name:      "transactions_total",
			Help:      "Total transactions produced by match cycles",
		}),
		CommitDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "chives",
			Subsystem: serviceName,
			Name:      "commit_duration_seconds",
			Help:      "Committer transaction duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		CommitRetriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chives",
			Subsystem: serviceName,
			Name:      "commit_retries_total",
			Help:      "Total commit retries after a failed unit of work",
		}),
		TradeEventsPublishedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chives",
			Subsystem: serviceName,
			Name:      "trade_events_published_total",
			Help:      "Total trade events relayed from the outbox to Kafka",
		}),
		OutboxPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "chives",
			Subsystem: serviceName,
			Name:      "outbox_pending",
			Help:      "Number of outbox events waiting to be relayed",
		}),
	}
}

// Register 注册所有指标
func (m *Metrics) Register() error {
	collectors := []prometheus.Collector{
		m.OrdersConsumedTotal,
		m.OrdersDeadLetteredTotal,
		m.HeartbeatsTotal,
		m.HeartbeatDuration,
		m.TransactionsTotal,
		m.CommitDuration,
		m.CommitRetriesTotal,
		m.TradeEventsPublishedTotal,
		m.OutboxPending,
	}

	for _, c := range collectors {
		if err := prometheus.DefaultRegisterer.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if errors.As(err, &already) {
				continue
			}
			logger.Error(context.Background(), "Failed to register metric", "error", err)
			return err
		}
	}

	logger.Info(context.Background(), "Metrics registered successfully")
	return nil
}

// ObserveHeartbeat 记录一次完整心跳
func (m *Metrics) ObserveHeartbeat(start time.Time, transactions int) {
	m.HeartbeatsTotal.Inc()
	m.HeartbeatDuration.Observe(time.Since(start).Seconds())
	m.TransactionsTotal.Add(float64(transactions))
}

// StartHTTPServer 启动 Prometheus HTTP 服务器，返回 server 供优雅关闭
func StartHTTPServer(port int, path string) *http.Server {
	if path == "" {
		path = "/metrics"
	}

	mux := http.NewServeMux()
	mux.Handle(path, promhttp.Handler())

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	logger.Info(context.Background(), "Starting Prometheus HTTP server", "addr", srv.Addr, "path", path)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(context.Background(), "Prometheus HTTP server stopped", "error", err)
		}
	}()

	return srv
}
