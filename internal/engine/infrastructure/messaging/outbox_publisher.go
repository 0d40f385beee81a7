// Package messaging 撮合引擎的消息基础设施：
// 成交事件先随提交事务写入发件箱，再由中继异步投递到 Kafka
package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/xuganyu96/chives-exchange/internal/engine/domain"
	"github.com/xuganyu96/chives-exchange/internal/engine/infrastructure/persistence"
)

// outboxPublisher 基于 Outbox 模式的事件发布者实现
type outboxPublisher struct {
	outbox *persistence.OutboxRepository
}

// NewOutboxPublisher 创建发件箱事件发布者
func NewOutboxPublisher(outbox *persistence.OutboxRepository) domain.EventPublisher {
	return &outboxPublisher{outbox: outbox}
}

// PublishInTx 把事件写入发件箱。
// ctx 绑定了提交事务时，事件与撮合写入共享该事务：
// 事务回滚则事件一并消失，不会出现成交未提交但事件已外发的情况
func (p *outboxPublisher) PublishInTx(ctx context.Context, topic string, key string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event for outbox: %w", err)
	}
	return p.outbox.Append(ctx, &persistence.OutboxMessage{
		MessageID:    uuid.NewString(),
		Topic:        topic,
		PartitionKey: key,
		Payload:      payload,
	})
}

// NopPublisher 丢弃全部事件，成交外发关闭时使用
type NopPublisher struct{}

func (NopPublisher) PublishInTx(context.Context, string, string, any) error {
	return nil
}
