package application

import (
	"context"
	"fmt"
	"time"

	"github.com/xuganyu96/chives-exchange/internal/engine/domain"
	"github.com/xuganyu96/chives-exchange/pkg/logger"
	"github.com/xuganyu96/chives-exchange/pkg/metrics"
)

// 重试参数缺省值
const (
	defaultMaxCommitRetries = 5
	defaultRetryBackoff     = 50 * time.Millisecond
)

// Config 引擎服务配置
type Config struct {
	// 跳过用户侧记账
	IgnoreUserLogic bool
	// 提交失败后的进程内重试上限
	MaxCommitRetries int
	// 重试退避基数，按次数指数增长
	RetryBackoff time.Duration
}

// EngineService 撮合引擎应用服务。
// 每条订单消息驱动一次心跳：候选选取、撮合与提交都在同一个
// 可重复读事务内完成，提交冲突时以新快照整体重来
type EngineService struct {
	store      domain.EngineStore
	committer  *Committer
	metrics    *metrics.Metrics
	maxRetries int
	backoff    time.Duration
}

// NewEngineService 创建撮合引擎服务
func NewEngineService(store domain.EngineStore, publisher domain.EventPublisher,
	m *metrics.Metrics, cfg Config) *EngineService {
	if cfg.MaxCommitRetries < 1 {
		cfg.MaxCommitRetries = defaultMaxCommitRetries
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = defaultRetryBackoff
	}
	return &EngineService{
		store:      store,
		committer:  NewCommitter(store, publisher, cfg.IgnoreUserLogic),
		metrics:    m,
		maxRetries: cfg.MaxCommitRetries,
		backoff:    cfg.RetryBackoff,
	}
}

// HandleOrder 处理一条进入的订单。
// 可重试错误（锁冲突、连接抖动）带指数退避整体重来；
// 不可重试错误（引用缺失、不变量破坏）立即返回，由消费者转入死信队列
func (s *EngineService) HandleOrder(ctx context.Context, incoming *domain.Order) error {
	// 市价单隐含立即成交否则撤销：没有价格的剩余无法挂簿等待
	if incoming.IsMarket() {
		incoming.ImmediateOrCancel = true
	}

	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			s.metrics.CommitRetriesTotal.Inc()
			backoff := s.backoff * (1 << (attempt - 1))
			logger.Warn(ctx, "Heartbeat failed, retrying",
				"order_id", incoming.OrderID, "attempt", attempt, "backoff", backoff.String(), "error", lastErr)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		err := s.heartbeat(ctx, incoming)
		if err == nil {
			if attempt > 0 {
				logger.Info(ctx, "Heartbeat succeeded after retry",
					"order_id", incoming.OrderID, "attempt", attempt)
			}
			return nil
		}
		if domain.Classify(err) == domain.SeverityDeadLetter {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("heartbeat failed after %d retries: %w", s.maxRetries, lastErr)
}

// heartbeat 一次撮合心跳。
// 候选在事务内选取，撮合结果与事务在同一个提交点生效
func (s *EngineService) heartbeat(ctx context.Context, incoming *domain.Order) error {
	start := time.Now()
	var produced int

	err := s.store.WithTx(ctx, func(txCtx context.Context) error {
		candidates, err := s.store.Orders().Candidates(txCtx, incoming)
		if err != nil {
			return err
		}
		logger.Debug(txCtx, "Candidate orders selected",
			"order_id", incoming.OrderID, "candidates", len(candidates))

		mr, err := domain.Match(incoming, candidates, time.Now().UTC())
		if err != nil {
			return err
		}
		produced = len(mr.Transactions)

		commitStart := time.Now()
		if err := s.committer.Commit(txCtx, mr); err != nil {
			return err
		}
		s.metrics.CommitDuration.Observe(time.Since(commitStart).Seconds())
		return nil
	})
	if err != nil {
		return err
	}

	s.metrics.ObserveHeartbeat(start, produced)
	logger.Info(ctx, "Heartbeat finished",
		"order_id", incoming.OrderID, "transactions", produced)
	return nil
}
