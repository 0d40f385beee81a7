package persistence

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/xuganyu96/chives-exchange/internal/engine/domain"
	"github.com/xuganyu96/chives-exchange/pkg/logger"
)

// orderRepositoryImpl 是 domain.OrderRepository 接口的 GORM 实现
type orderRepositoryImpl struct {
	store *Store
}

// orderColumns Save 时冲突更新的全部业务列
var orderColumns = []string{
	"security_symbol", "side", "size", "price", "all_or_none",
	"immediate_or_cancel", "active", "parent_order_id", "owner_id",
	"cancelled_dttm", "create_dttm",
}

// Get 根据订单 ID 获取订单
func (r *orderRepositoryImpl) Get(ctx context.Context, orderID int64) (*domain.Order, error) {
	var o domain.Order
	if err := r.store.session(ctx).Where("order_id = ?", orderID).First(&o).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: order %d", domain.ErrOrderNotFound, orderID)
		}
		logger.Error(ctx, "Failed to get order from DB", "order_id", orderID, "error", err)
		return nil, err
	}
	return &o, nil
}

// Save 保存或更新订单。冲突处理：order_id 已存在时更新全部业务列
func (r *orderRepositoryImpl) Save(ctx context.Context, order *domain.Order) error {
	if err := r.store.session(ctx).Omit(clause.Associations).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "order_id"}},
		DoUpdates: clause.AssignmentColumns(orderColumns),
	}).Create(order).Error; err != nil {
		logger.Error(ctx, "Failed to save order to DB", "order_id", order.OrderID, "error", err)
		return err
	}
	return nil
}

// Create 插入新订单，由数据库分配订单 ID
func (r *orderRepositoryImpl) Create(ctx context.Context, order *domain.Order) error {
	if err := r.store.session(ctx).Omit(clause.Associations).Create(order).Error; err != nil {
		logger.Error(ctx, "Failed to create order in DB", "security_symbol", order.SecuritySymbol, "error", err)
		return err
	}
	return nil
}

// Deactivate 批量将订单置为非活跃。
// 目标订单已经是非活跃时不算错误，消息重投时会出现这种情况
func (r *orderRepositoryImpl) Deactivate(ctx context.Context, orderIDs []int64) error {
	if len(orderIDs) == 0 {
		return nil
	}
	if err := r.store.session(ctx).Model(&domain.Order{}).
		Where("order_id IN ?", orderIDs).
		Update("active", false).Error; err != nil {
		logger.Error(ctx, "Failed to deactivate orders in DB", "order_ids", orderIDs, "error", err)
		return err
	}
	return nil
}

// Candidates 返回与进入订单可成交的对手方活跃限价单。
// 排序规则：买单进场时卖单按价格从低到高，卖单进场时买单按价格从高到低，
// 同价按挂单时间先后，仍相同按订单 ID；
// 进入订单带限价时只返回价格可成交的对手单，带所有者时排除同所有者的挂单
func (r *orderRepositoryImpl) Candidates(ctx context.Context, incoming *domain.Order) ([]*domain.Order, error) {
	q := r.store.session(ctx).
		Where("security_symbol = ?", incoming.SecuritySymbol).
		Where("side = ?", incoming.Side.Opposite()).
		Where("active = ?", true).
		Where("price IS NOT NULL")

	if incoming.OwnerID != nil {
		q = q.Where("(owner_id IS NULL OR owner_id <> ?)", *incoming.OwnerID)
	}
	if incoming.Price != nil {
		if incoming.Side == domain.SideBid {
			q = q.Where("price <= ?", *incoming.Price)
		} else {
			q = q.Where("price >= ?", *incoming.Price)
		}
	}

	if incoming.Side == domain.SideBid {
		q = q.Order("price ASC")
	} else {
		q = q.Order("price DESC")
	}
	q = q.Order("create_dttm ASC").Order("order_id ASC")

	var orders []*domain.Order
	if err := q.Find(&orders).Error; err != nil {
		logger.Error(ctx, "Failed to query candidate orders from DB",
			"security_symbol", incoming.SecuritySymbol, "error", err)
		return nil, err
	}
	return orders, nil
}

// transactionRepositoryImpl 是 domain.TransactionRepository 接口的 GORM 实现
type transactionRepositoryImpl struct {
	store *Store
}

// Create 插入成交记录，由数据库分配成交 ID
func (r *transactionRepositoryImpl) Create(ctx context.Context, t *domain.Transaction) error {
	if err := r.store.session(ctx).Omit(clause.Associations).Create(t).Error; err != nil {
		logger.Error(ctx, "Failed to create transaction in DB",
			"security_symbol", t.SecuritySymbol, "ask_id", t.AskID, "bid_id", t.BidID, "error", err)
		return err
	}
	return nil
}

// List 按成交先后返回指定证券的全部成交
func (r *transactionRepositoryImpl) List(ctx context.Context, symbol string) ([]*domain.Transaction, error) {
	var transactions []*domain.Transaction
	if err := r.store.session(ctx).
		Where("security_symbol = ?", symbol).
		Order("transaction_id ASC").
		Find(&transactions).Error; err != nil {
		logger.Error(ctx, "Failed to list transactions from DB", "security_symbol", symbol, "error", err)
		return nil, err
	}
	return transactions, nil
}
