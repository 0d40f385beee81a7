// Package domain 包含撮合引擎的领域模型：订单、资产、成交、撮合循环与仓储接口
package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Side 订单方向
type Side string

const (
	SideAsk Side = "ask"
	SideBid Side = "bid"
)

// Valid 判断方向取值是否合法
func (s Side) Valid() bool {
	return s == SideAsk || s == SideBid
}

// Opposite 返回对手方向
func (s Side) Opposite() Side {
	if s == SideAsk {
		return SideBid
	}
	return SideAsk
}

// Order 订单实体
// price 为空表示市价单；parent_order_id 非空表示本单是某父单部分成交后的剩余子单
type Order struct {
	// 订单 ID
	OrderID int64 `gorm:"column:order_id;primaryKey;autoIncrement" json:"order_id"`
	// 证券代码
	SecuritySymbol string `gorm:"column:security_symbol;type:varchar(10);index;not null" json:"security_symbol"`
	// 买卖方向：ask 或 bid
	Side Side `gorm:"column:side;type:varchar(3);not null" json:"side"`
	// 数量，正整数
	Size int64 `gorm:"column:size;not null" json:"size"`
	// 限价；为空表示市价单
	Price *decimal.Decimal `gorm:"column:price;type:decimal(20,8)" json:"price"`
	// 是否全部成交否则不成交
	AllOrNone bool `gorm:"column:all_or_none;not null;default:false" json:"all_or_none"`
	// 是否立即成交否则撤销
	ImmediateOrCancel bool `gorm:"column:immediate_or_cancel;not null;default:false" json:"immediate_or_cancel"`
	// 是否在订单簿中等待撮合
	Active bool `gorm:"column:active;not null;default:false;index" json:"active"`
	// 父单 ID
	ParentOrderID *int64 `gorm:"column:parent_order_id" json:"parent_order_id"`
	// 所有者；撮合核心允许无主订单，但带成交的订单必须有主
	OwnerID *int64 `gorm:"column:owner_id;index" json:"owner_id"`
	Owner   *User  `gorm:"foreignKey:OwnerID;references:UserID;constraint:OnDelete:SET NULL" json:"-"`
	// 撤销时间
	CancelledDttm *time.Time `gorm:"column:cancelled_dttm" json:"cancelled_dttm"`
	// 创建时间
	CreateDttm time.Time `gorm:"column:create_dttm;not null" json:"create_dttm"`
}

// TableName 指定表名
func (Order) TableName() string {
	return "orders"
}

// Validate 校验订单内容的合法性（不含 ID，新订单入库前同样适用）
func (o *Order) Validate() error {
	if o.SecuritySymbol == "" {
		return fmt.Errorf("security symbol is required")
	}
	if !o.Side.Valid() {
		return fmt.Errorf("invalid side: %q", o.Side)
	}
	if o.Size < 1 {
		return fmt.Errorf("size must be a positive integer, got %d", o.Size)
	}
	if o.Price != nil && !o.Price.IsPositive() {
		return fmt.Errorf("price must be strictly positive, got %s", o.Price)
	}
	return nil
}

// IsMarket 是否市价单
func (o *Order) IsMarket() bool {
	return o.Price == nil
}

// Suborder 构造部分成交后的剩余子单：
// 复制代码、方向、限价、策略位与所有者，数量为剩余量，parent_order_id 指向本单
func (o *Order) Suborder(remaining int64, now time.Time) *Order {
	parentID := o.OrderID
	sub := &Order{
		SecuritySymbol:    o.SecuritySymbol,
		Side:              o.Side,
		Size:              remaining,
		AllOrNone:         o.AllOrNone,
		ImmediateOrCancel: o.ImmediateOrCancel,
		ParentOrderID:     &parentID,
		CreateDttm:        now,
	}
	if o.Price != nil {
		price := *o.Price
		sub.Price = &price
	}
	if o.OwnerID != nil {
		ownerID := *o.OwnerID
		sub.OwnerID = &ownerID
	}
	return sub
}

func (o *Order) String() string {
	return fmt.Sprintf("<Order(id=%d, security=%s, side=%s)>",
		o.OrderID, o.SecuritySymbol, o.Side)
}
