// Package consumer 订单消息的消费循环：
// 从工作队列逐条取订单，驱动撮合心跳，提交成功后才确认消息
package consumer

import (
	"context"
	"errors"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/xuganyu96/chives-exchange/internal/engine/domain"
	"github.com/xuganyu96/chives-exchange/pkg/logger"
	"github.com/xuganyu96/chives-exchange/pkg/metrics"
)

// Handler 订单处理入口
type Handler interface {
	HandleOrder(ctx context.Context, incoming *domain.Order) error
}

// Source 消息来源
type Source interface {
	Consume() (<-chan amqp.Delivery, error)
}

// ackDecision 一条消息的确认方式
type ackDecision int

const (
	// ackMessage 处理成功，确认出队
	ackMessage ackDecision = iota
	// requeueMessage 处理被停机打断，退回队列等待重投
	requeueMessage
	// deadLetterMessage 无法处理，经死信交换机转入死信队列
	deadLetterMessage
)

// Consumer 工作队列消费者。
// prefetch=1 加手动确认保证同一时刻只处理一条订单，
// 确认发生在撮合事务提交之后，投递语义为至少一次
type Consumer struct {
	source  Source
	handler Handler
	metrics *metrics.Metrics
	dryRun  bool
}

// New 创建消费者。dryRun 为 true 时只消费不撮合
func New(source Source, handler Handler, m *metrics.Metrics, dryRun bool) *Consumer {
	return &Consumer{
		source:  source,
		handler: handler,
		metrics: m,
		dryRun:  dryRun,
	}
}

// Run 阻塞消费直到 ctx 取消或者投递通道关闭。
// 通道关闭通常意味着连接断开，交给上层决定是否重连
func (c *Consumer) Run(ctx context.Context) error {
	deliveries, err := c.source.Consume()
	if err != nil {
		return err
	}
	logger.Info(ctx, "Listening for incoming orders", "dry_run", c.dryRun)

	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "Consumer stopped")
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("delivery channel closed")
			}
			c.handleDelivery(ctx, d)
		}
	}
}

func (c *Consumer) handleDelivery(ctx context.Context, d amqp.Delivery) {
	c.metrics.OrdersConsumedTotal.Inc()

	if c.dryRun {
		if err := d.Ack(false); err != nil {
			logger.Error(ctx, "Failed to ack message", "error", err)
		}
		return
	}

	incoming, err := domain.DecodeOrder(d.Body)
	if err != nil {
		logger.Error(ctx, "Discarding malformed order message", "error", err)
		c.finish(ctx, d, deadLetterMessage)
		return
	}

	msgCtx := logger.WithOrderID(ctx, incoming.OrderID)
	logger.Info(msgCtx, "Received incoming order",
		"security_symbol", incoming.SecuritySymbol, "side", incoming.Side, "size", incoming.Size)

	c.finish(msgCtx, d, decide(c.handler.HandleOrder(msgCtx, incoming)))
}

// decide 把处理结果翻译成确认方式：
// 成功确认；停机中断退回重投；其余（引用缺失、不变量破坏、
// 重试耗尽的瞬时故障）一律转死信，避免毒消息无限循环
func decide(err error) ackDecision {
	switch {
	case err == nil:
		return ackMessage
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return requeueMessage
	default:
		return deadLetterMessage
	}
}

func (c *Consumer) finish(ctx context.Context, d amqp.Delivery, decision ackDecision) {
	var err error
	switch decision {
	case ackMessage:
		err = d.Ack(false)
	case requeueMessage:
		logger.Warn(ctx, "Requeueing in-flight order after interruption")
		err = d.Nack(false, true)
	case deadLetterMessage:
		logger.Warn(ctx, "Dead-lettering order message")
		c.metrics.OrdersDeadLetteredTotal.Inc()
		err = d.Nack(false, false)
	}
	if err != nil {
		logger.Error(ctx, "Failed to settle message with broker", "error", err)
	}
}
