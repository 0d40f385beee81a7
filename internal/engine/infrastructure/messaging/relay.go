package messaging

import (
	"context"
	"time"

	"github.com/xuganyu96/chives-exchange/internal/engine/infrastructure/persistence"
	"github.com/xuganyu96/chives-exchange/pkg/logger"
	"github.com/xuganyu96/chives-exchange/pkg/metrics"
)

// defaultRelayBatch 单次轮询投递的最大消息数
const defaultRelayBatch = 100

// Producer 中继的下游投递接口
type Producer interface {
	SendRaw(ctx context.Context, topic string, key string, payload []byte) error
}

// Relay 发件箱中继：周期轮询待投递消息，逐条发往 Kafka 后标记完成。
// 投递失败时保留 pending 状态留待下一轮，语义为至少一次
type Relay struct {
	outbox   *persistence.OutboxRepository
	producer Producer
	interval time.Duration
	batch    int
	metrics  *metrics.Metrics
}

// NewRelay 创建发件箱中继
func NewRelay(outbox *persistence.OutboxRepository, producer Producer, interval time.Duration, m *metrics.Metrics) *Relay {
	return &Relay{
		outbox:   outbox,
		producer: producer,
		interval: interval,
		batch:    defaultRelayBatch,
		metrics:  m,
	}
}

// Run 阻塞运行中继，直到 ctx 取消。
// 退出前做最后一次冲刷，尽量不把已提交的事件留在发件箱里
func (r *Relay) Run(ctx context.Context) error {
	logger.Info(ctx, "Outbox relay started", "interval", r.interval.String())
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := r.Flush(flushCtx); err != nil {
				logger.Warn(flushCtx, "Final outbox flush failed", "error", err)
			}
			logger.Info(ctx, "Outbox relay stopped")
			return nil
		case <-ticker.C:
			if err := r.Flush(ctx); err != nil {
				logger.Error(ctx, "Outbox relay flush failed", "error", err)
			}
		}
	}
}

// Flush 投递当前全部待发消息。
// 中途失败时已投递的前缀仍被标记完成，失败消息留在发件箱
func (r *Relay) Flush(ctx context.Context) error {
	for {
		pending, err := r.outbox.FetchPending(ctx, r.batch)
		if err != nil {
			return err
		}
		if len(pending) == 0 {
			break
		}

		sent := make([]string, 0, len(pending))
		var sendErr error
		for _, m := range pending {
			if sendErr = r.producer.SendRaw(ctx, m.Topic, m.PartitionKey, m.Payload); sendErr != nil {
				logger.Warn(ctx, "Failed to publish outbox message, will retry",
					"message_id", m.MessageID, "topic", m.Topic, "error", sendErr)
				break
			}
			sent = append(sent, m.MessageID)
		}

		if len(sent) > 0 {
			if err := r.outbox.MarkPublished(ctx, sent); err != nil {
				return err
			}
			r.metrics.TradeEventsPublishedTotal.Add(float64(len(sent)))
		}
		if sendErr != nil {
			r.updatePendingGauge(ctx)
			return sendErr
		}
		if len(pending) < r.batch {
			break
		}
	}

	r.updatePendingGauge(ctx)
	return nil
}

func (r *Relay) updatePendingGauge(ctx context.Context) {
	if n, err := r.outbox.CountPending(ctx); err == nil {
		r.metrics.OutboxPending.Set(float64(n))
	}
}
