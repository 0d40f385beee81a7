package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Company 上市公司，market_price 随每笔成交更新
type Company struct {
	// 证券代码
	Symbol string `gorm:"column:symbol;type:varchar(10);primaryKey" json:"symbol"`
	// 公司名称
	Name string `gorm:"column:name;type:varchar(64);not null" json:"name"`
	// 发行市值
	InitialValue decimal.Decimal `gorm:"column:initial_value;type:decimal(20,8);not null" json:"initial_value"`
	// 发行股数
	InitialSize int64 `gorm:"column:initial_size;not null" json:"initial_size"`
	// 创始人
	FounderID *int64 `gorm:"column:founder_id" json:"founder_id"`
	Founder   *User  `gorm:"foreignKey:FounderID;references:UserID;constraint:OnDelete:SET NULL" json:"-"`
	// 最新成交价
	MarketPrice decimal.Decimal `gorm:"column:market_price;type:decimal(20,8);not null" json:"market_price"`
	// 上市时间
	CreateDttm time.Time `gorm:"column:create_dttm;not null;autoCreateTime" json:"create_dttm"`
}

// TableName 指定表名
func (Company) TableName() string {
	return "companies"
}
