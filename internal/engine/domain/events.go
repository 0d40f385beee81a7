package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TopicTradeExecuted 成交事件的 Kafka topic
const TopicTradeExecuted = "trade.executed"

// TradeExecuted 成交事件，随提交事务写入 outbox，由中继异步外发。
// 投递语义为至少一次，下游按 event_id 去重
type TradeExecuted struct {
	EventID          string          `json:"event_id"`
	TransactionID    int64           `json:"transaction_id"`
	SecuritySymbol   string          `json:"security_symbol"`
	Size             int64           `json:"size"`
	Price            decimal.Decimal `json:"price"`
	AskID            int64           `json:"ask_id"`
	BidID            int64           `json:"bid_id"`
	AggressorOrderID int64           `json:"aggressor_order_id"`
	RestingOrderID   int64           `json:"resting_order_id"`
	TransactDttm     time.Time       `json:"transact_dttm"`
}

// NewTradeExecuted 由成交记录构造事件
func NewTradeExecuted(t *Transaction) *TradeExecuted {
	return &TradeExecuted{
		EventID:          uuid.NewString(),
		TransactionID:    t.TransactionID,
		SecuritySymbol:   t.SecuritySymbol,
		Size:             t.Size,
		Price:            t.Price,
		AskID:            t.AskID,
		BidID:            t.BidID,
		AggressorOrderID: t.AggressorOrderID,
		RestingOrderID:   t.RestingOrderID,
		TransactDttm:     t.TransactDttm,
	}
}

// EventPublisher 领域事件发布接口。
// ctx 携带当前提交事务时，事件与业务写入共享同一个事务（outbox 模式）
type EventPublisher interface {
	PublishInTx(ctx context.Context, topic string, key string, event any) error
}
