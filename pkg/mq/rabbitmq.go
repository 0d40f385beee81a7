// Package mq 提供消息队列客户端：RabbitMQ 工作队列（订单入口）与 Kafka producer（成交外发）
package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/xuganyu96/chives-exchange/pkg/logger"
)

// DeadLetterExchange 死信交换机名称，工作队列上被 reject 的消息经由它落入死信队列
const DeadLetterExchange = "chives.dlx"

// RabbitConfig RabbitMQ 连接配置
type RabbitConfig struct {
	Host          string
	Port          int
	VHost         string
	Login         string
	Password      string
	QueueName     string
	PrefetchCount int
}

// URL 组装 AMQP 连接串
func (c RabbitConfig) URL() string {
	uri := amqp.URI{
		Scheme:   "amqp",
		Host:     c.Host,
		Port:     c.Port,
		Username: c.Login,
		Password: c.Password,
		Vhost:    c.VHost,
	}
	return uri.String()
}

// DeadLetterQueue 死信队列名称，由工作队列名派生
func (c RabbitConfig) DeadLetterQueue() string {
	return c.QueueName + ".dlq"
}

// RabbitClient RabbitMQ 客户端，持有连接与单个 channel
type RabbitClient struct {
	conn   *amqp.Connection
	ch     *amqp.Channel
	config RabbitConfig
}

// NewRabbitClient 建立连接并声明拓扑：
// 死信交换机、死信队列、带 x-dead-letter-exchange 的工作队列，以及 prefetch
func NewRabbitClient(cfg RabbitConfig) (*RabbitClient, error) {
	conn, err := amqp.Dial(cfg.URL())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	client := &RabbitClient{conn: conn, ch: ch, config: cfg}
	if err := client.declareTopology(); err != nil {
		client.Close()
		return nil, err
	}

	logger.Info(context.Background(), "RabbitMQ client connected",
		"host", cfg.Host,
		"queue", cfg.QueueName,
		"prefetch", cfg.PrefetchCount,
	)
	return client, nil
}

func (c *RabbitClient) declareTopology() error {
	if err := c.ch.ExchangeDeclare(
		DeadLetterExchange,
		"fanout",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		return fmt.Errorf("failed to declare dead letter exchange: %w", err)
	}

	if _, err := c.ch.QueueDeclare(
		c.config.DeadLetterQueue(),
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,
	); err != nil {
		return fmt.Errorf("failed to declare dead letter queue: %w", err)
	}

	if err := c.ch.QueueBind(
		c.config.DeadLetterQueue(),
		"", // fanout 忽略 routing key
		DeadLetterExchange,
		false,
		nil,
	); err != nil {
		return fmt.Errorf("failed to bind dead letter queue: %w", err)
	}

	if _, err := c.ch.QueueDeclare(
		c.config.QueueName,
		true,  // durable，消息跨 broker 重启存活
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		amqp.Table{
			"x-dead-letter-exchange": DeadLetterExchange,
		},
	); err != nil {
		return fmt.Errorf("failed to declare work queue: %w", err)
	}

	if err := c.ch.Qos(c.config.PrefetchCount, 0, false); err != nil {
		return fmt.Errorf("failed to set prefetch: %w", err)
	}

	return nil
}

// Consume 注册消费者，返回投递通道。手动 ack 由调用方负责。
func (c *RabbitClient) Consume() (<-chan amqp.Delivery, error) {
	deliveries, err := c.ch.Consume(
		c.config.QueueName,
		"",    // consumer tag 自动生成
		false, // auto-ack 关闭，提交成功后才 ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming: %w", err)
	}
	return deliveries, nil
}

// Publish 向工作队列投递一条持久化消息
func (c *RabbitClient) Publish(ctx context.Context, body []byte) error {
	return c.ch.PublishWithContext(ctx,
		"", // 默认交换机直达同名队列
		c.config.QueueName,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
}

// QueueDepth 查询工作队列当前积压的消息数
func (c *RabbitClient) QueueDepth() (int, error) {
	q, err := c.ch.QueueDeclarePassive(
		c.config.QueueName,
		true,
		false,
		false,
		false,
		amqp.Table{
			"x-dead-letter-exchange": DeadLetterExchange,
		},
	)
	if err != nil {
		return 0, fmt.Errorf("failed to inspect queue: %w", err)
	}
	return q.Messages, nil
}

// Close 关闭 channel 与连接
func (c *RabbitClient) Close() error {
	if c.ch != nil {
		if err := c.ch.Close(); err != nil && !c.conn.IsClosed() {
			c.conn.Close()
			return err
		}
	}
	if c.conn != nil && !c.conn.IsClosed() {
		return c.conn.Close()
	}
	return nil
}
