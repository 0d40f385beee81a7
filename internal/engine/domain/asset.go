package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// CashSymbol 现金在资产表中的保留代码
const CashSymbol = "_CASH"

// User 用户实体，对撮合核心而言只是订单与资产的所有者
type User struct {
	// 用户 ID
	UserID int64 `gorm:"column:user_id;primaryKey;autoIncrement" json:"user_id"`
	// 用户名
	Username string `gorm:"column:username;type:varchar(64);uniqueIndex;not null" json:"username"`
	// 密码哈希，撮合核心不解读其内容
	PasswordHash string `gorm:"column:password_hash;type:varchar(256);not null" json:"-"`
	// 注册时间
	CreateDttm time.Time `gorm:"column:create_dttm;not null;autoCreateTime" json:"create_dttm"`
}

// TableName 指定表名
func (User) TableName() string {
	return "users"
}

// Asset 资产持仓，(owner_id, asset_symbol) 为联合主键；
// asset_symbol 为 _CASH 时表示现金余额
type Asset struct {
	// 所有者
	OwnerID int64 `gorm:"column:owner_id;primaryKey;autoIncrement:false" json:"owner_id"`
	Owner   *User `gorm:"foreignKey:OwnerID;references:UserID;constraint:OnDelete:CASCADE" json:"-"`
	// 资产代码
	AssetSymbol string `gorm:"column:asset_symbol;type:varchar(10);primaryKey" json:"asset_symbol"`
	// 持有量；股票为整数量，现金允许小数
	AssetAmount decimal.Decimal `gorm:"column:asset_amount;type:decimal(20,8);not null" json:"asset_amount"`
}

// TableName 指定表名
func (Asset) TableName() string {
	return "assets"
}
