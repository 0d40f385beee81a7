package persistence

import (
	"context"
	"time"

	"github.com/xuganyu96/chives-exchange/pkg/logger"
)

// 发件箱消息状态
const (
	OutboxStatusPending   = "pending"
	OutboxStatusPublished = "published"
)

// OutboxMessage 发件箱消息。
// 与业务写入在同一个事务里落库，由中继进程异步投递到消息代理，
// 保证事件发布与撮合提交的原子性
type OutboxMessage struct {
	// 消息 ID
	MessageID string `gorm:"column:message_id;type:varchar(36);primaryKey" json:"message_id"`
	// 目标 topic
	Topic string `gorm:"column:topic;type:varchar(128);not null" json:"topic"`
	// 分区键
	PartitionKey string `gorm:"column:partition_key;type:varchar(128);not null" json:"partition_key"`
	// 事件内容
	Payload []byte `gorm:"column:payload;not null" json:"payload"`
	// 状态：pending 或 published
	Status string `gorm:"column:status;type:varchar(16);not null;default:pending;index" json:"status"`
	// 写入时间
	CreateDttm time.Time `gorm:"column:create_dttm;not null;autoCreateTime" json:"create_dttm"`
	// 投递完成时间
	PublishedDttm *time.Time `gorm:"column:published_dttm" json:"published_dttm"`
}

// TableName 指定表名
func (OutboxMessage) TableName() string {
	return "outbox_messages"
}

// OutboxRepository 发件箱仓储
type OutboxRepository struct {
	store *Store
}

// Append 写入一条待投递消息。
// ctx 绑定了事务时与业务写入共享该事务
func (r *OutboxRepository) Append(ctx context.Context, m *OutboxMessage) error {
	if m.Status == "" {
		m.Status = OutboxStatusPending
	}
	if err := r.store.session(ctx).Create(m).Error; err != nil {
		logger.Error(ctx, "Failed to append outbox message to DB",
			"message_id", m.MessageID, "topic", m.Topic, "error", err)
		return err
	}
	return nil
}

// FetchPending 按写入先后返回至多 limit 条待投递消息
func (r *OutboxRepository) FetchPending(ctx context.Context, limit int) ([]*OutboxMessage, error) {
	var messages []*OutboxMessage
	if err := r.store.session(ctx).
		Where("status = ?", OutboxStatusPending).
		Order("create_dttm ASC").
		Order("message_id ASC").
		Limit(limit).
		Find(&messages).Error; err != nil {
		logger.Error(ctx, "Failed to fetch pending outbox messages from DB", "error", err)
		return nil, err
	}
	return messages, nil
}

// MarkPublished 将一批消息标记为已投递
func (r *OutboxRepository) MarkPublished(ctx context.Context, messageIDs []string) error {
	if len(messageIDs) == 0 {
		return nil
	}
	now := time.Now().UTC()
	if err := r.store.session(ctx).Model(&OutboxMessage{}).
		Where("message_id IN ?", messageIDs).
		Updates(map[string]any{
			"status":         OutboxStatusPublished,
			"published_dttm": now,
		}).Error; err != nil {
		logger.Error(ctx, "Failed to mark outbox messages as published", "message_ids", messageIDs, "error", err)
		return err
	}
	return nil
}

// CountPending 统计待投递消息条数
func (r *OutboxRepository) CountPending(ctx context.Context) (int64, error) {
	var n int64
	if err := r.store.session(ctx).Model(&OutboxMessage{}).
		Where("status = ?", OutboxStatusPending).
		Count(&n).Error; err != nil {
		logger.Error(ctx, "Failed to count pending outbox messages", "error", err)
		return 0, err
	}
	return n, nil
}
