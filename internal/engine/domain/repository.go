package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// OrderRepository 订单仓储接口
type OrderRepository interface {
	// Get 根据订单 ID 获取订单
	Get(ctx context.Context, orderID int64) (*Order, error)
	// Save 按订单 ID 保存或更新订单（upsert）
	Save(ctx context.Context, order *Order) error
	// Create 插入新订单，由数据库分配订单 ID
	Create(ctx context.Context, order *Order) error
	// Deactivate 批量将订单置为非活跃
	Deactivate(ctx context.Context, orderIDs []int64) error
	// Candidates 按价格优先、时间优先返回与进入订单可成交的对手方活跃订单
	Candidates(ctx context.Context, incoming *Order) ([]*Order, error)
}

// TransactionRepository 成交记录仓储接口
type TransactionRepository interface {
	// Create 插入成交记录，由数据库分配成交 ID
	Create(ctx context.Context, t *Transaction) error
	// List 按成交时间顺序返回指定证券的全部成交
	List(ctx context.Context, symbol string) ([]*Transaction, error)
}

// AssetRepository 资产仓储接口
type AssetRepository interface {
	// Get 获取用户持仓，不存在返回 ErrAssetNotFound
	Get(ctx context.Context, ownerID int64, symbol string) (*Asset, error)
	// Save 保存或更新持仓（upsert）
	Save(ctx context.Context, a *Asset) error
	// Credit 原子增减已存在的持仓，行不存在返回 ErrAssetNotFound
	Credit(ctx context.Context, ownerID int64, symbol string, delta decimal.Decimal) error
	// Deposit 增加持仓，行不存在时创建
	Deposit(ctx context.Context, ownerID int64, symbol string, delta decimal.Decimal) error
}

// CompanyRepository 公司仓储接口
type CompanyRepository interface {
	// Get 根据证券代码获取公司，不存在返回 ErrCompanyNotFound
	Get(ctx context.Context, symbol string) (*Company, error)
	// Save 保存或更新公司（upsert）
	Save(ctx context.Context, c *Company) error
	// SetMarketPrice 更新市价，行不存在返回 ErrCompanyNotFound
	SetMarketPrice(ctx context.Context, symbol string, price decimal.Decimal) error
}

// UserRepository 用户仓储接口
type UserRepository interface {
	// Create 插入新用户
	Create(ctx context.Context, u *User) error
	// Get 根据用户 ID 获取用户，不存在返回 ErrUserNotFound
	Get(ctx context.Context, userID int64) (*User, error)
	// GetByUsername 根据用户名获取用户，不存在返回 ErrUserNotFound
	GetByUsername(ctx context.Context, username string) (*User, error)
}

// EngineLogRepository 引擎日志仓储接口
type EngineLogRepository interface {
	// Append 追加一条引擎日志
	Append(ctx context.Context, l *EngineLog) error
	// CountByMessage 统计指定消息的日志行数
	CountByMessage(ctx context.Context, msg string) (int64, error)
}

// EngineStore 撮合引擎仓储聚合入口。
// WithTx 内回调拿到的 ctx 绑定当前数据库事务，
// 期间通过各仓储发起的读写都落在同一个事务里
type EngineStore interface {
	Orders() OrderRepository
	Transactions() TransactionRepository
	Assets() AssetRepository
	Companies() CompanyRepository
	Users() UserRepository
	EngineLogs() EngineLogRepository

	// WithTx 在可重复读事务中执行 fn，fn 返回错误则整体回滚
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}
