// Package persistence 提供撮合引擎仓储接口的 GORM 实现。
// 这一层负责将领域对象与具体的持久化技术进行映射和交互；
// 撮合提交要求把一次心跳的全部读写放进同一个事务，
// 因此事务通过 context 在各仓储之间传递。
package persistence

import (
	"context"
	"database/sql"

	"gorm.io/gorm"

	"github.com/xuganyu96/chives-exchange/internal/engine/domain"
	"github.com/xuganyu96/chives-exchange/pkg/db"
)

type txContextKey struct{}

// NewTxContext 将数据库事务绑定到 context
func NewTxContext(ctx context.Context, tx *gorm.DB) context.Context {
	return context.WithValue(ctx, txContextKey{}, tx)
}

// TxFromContext 取出 context 绑定的事务
func TxFromContext(ctx context.Context) (*gorm.DB, bool) {
	tx, ok := ctx.Value(txContextKey{}).(*gorm.DB)
	return tx, ok
}

// Store 聚合全部仓储，实现 domain.EngineStore
type Store struct {
	db           *db.DB
	orders       *orderRepositoryImpl
	transactions *transactionRepositoryImpl
	assets       *assetRepositoryImpl
	companies    *companyRepositoryImpl
	users        *userRepositoryImpl
	engineLogs   *engineLogRepositoryImpl
	outbox       *OutboxRepository
}

var _ domain.EngineStore = (*Store)(nil)

// NewStore 构造仓储聚合
func NewStore(database *db.DB) *Store {
	s := &Store{db: database}
	s.orders = &orderRepositoryImpl{store: s}
	s.transactions = &transactionRepositoryImpl{store: s}
	s.assets = &assetRepositoryImpl{store: s}
	s.companies = &companyRepositoryImpl{store: s}
	s.users = &userRepositoryImpl{store: s}
	s.engineLogs = &engineLogRepositoryImpl{store: s}
	s.outbox = &OutboxRepository{store: s}
	return s
}

// session 返回当前应使用的数据库会话：
// ctx 绑定了事务时用事务，否则用普通连接
func (s *Store) session(ctx context.Context) *gorm.DB {
	if tx, ok := TxFromContext(ctx); ok {
		return tx
	}
	return s.db.DB.WithContext(ctx)
}

func (s *Store) Orders() domain.OrderRepository             { return s.orders }
func (s *Store) Transactions() domain.TransactionRepository { return s.transactions }
func (s *Store) Assets() domain.AssetRepository             { return s.assets }
func (s *Store) Companies() domain.CompanyRepository        { return s.companies }
func (s *Store) Users() domain.UserRepository               { return s.users }
func (s *Store) EngineLogs() domain.EngineLogRepository     { return s.engineLogs }

// Outbox 返回发件箱仓储。不属于 domain.EngineStore 接口，
// 供消息基础设施直接使用
func (s *Store) Outbox() *OutboxRepository {
	return s.outbox
}

// WithTx 在可重复读事务中执行 fn。
// fn 内通过本 Store 发起的所有仓储读写都落在同一个事务里，
// fn 返回错误则整体回滚
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.db.WithTxIsolation(ctx, sql.LevelRepeatableRead, func(tx *gorm.DB) error {
		return fn(NewTxContext(ctx, tx))
	})
}
