package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Transaction 成交记录，只增不改。
// 成交价始终取被动方（resting）的限价，价格改善归于主动方
type Transaction struct {
	// 成交 ID
	TransactionID int64 `gorm:"column:transaction_id;primaryKey;autoIncrement" json:"transaction_id"`
	// 证券代码
	SecuritySymbol string `gorm:"column:security_symbol;type:varchar(10);index;not null" json:"security_symbol"`
	// 成交数量
	Size int64 `gorm:"column:size;not null" json:"size"`
	// 成交价
	Price decimal.Decimal `gorm:"column:price;type:decimal(20,8);not null" json:"price"`
	// 卖方订单
	AskID    int64  `gorm:"column:ask_id;not null" json:"ask_id"`
	AskOrder *Order `gorm:"foreignKey:AskID;references:OrderID;constraint:OnDelete:CASCADE" json:"-"`
	// 买方订单
	BidID    int64  `gorm:"column:bid_id;not null" json:"bid_id"`
	BidOrder *Order `gorm:"foreignKey:BidID;references:OrderID;constraint:OnDelete:CASCADE" json:"-"`
	// 主动方订单
	AggressorOrderID int64  `gorm:"column:aggressor_order_id;not null" json:"aggressor_order_id"`
	AggressorOrder   *Order `gorm:"foreignKey:AggressorOrderID;references:OrderID;constraint:OnDelete:CASCADE" json:"-"`
	// 被动方订单；同一被动单至多产生一笔成交
	RestingOrderID int64  `gorm:"column:resting_order_id;uniqueIndex;not null" json:"resting_order_id"`
	RestingOrder   *Order `gorm:"foreignKey:RestingOrderID;references:OrderID;constraint:OnDelete:CASCADE" json:"-"`
	// 成交时间
	TransactDttm time.Time `gorm:"column:transact_dttm;not null;autoCreateTime" json:"transact_dttm"`
}

// TableName 指定表名
func (Transaction) TableName() string {
	return "transactions"
}

// CashVolume 成交对应的现金量 size × price
func (t *Transaction) CashVolume() decimal.Decimal {
	return t.Price.Mul(decimal.NewFromInt(t.Size))
}

func (t *Transaction) String() string {
	return fmt.Sprintf("<Transaction(security=%s, size=%d, price=%s, ask=%d, bid=%d)>",
		t.SecuritySymbol, t.Size, t.Price, t.AskID, t.BidID)
}
