package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/xuganyu96/chives-exchange/internal/engine/domain"
	"github.com/xuganyu96/chives-exchange/pkg/logger"
)

// userRepositoryImpl 是 domain.UserRepository 接口的 GORM 实现
type userRepositoryImpl struct {
	store *Store
}

// Create 插入新用户
func (r *userRepositoryImpl) Create(ctx context.Context, u *domain.User) error {
	if err := r.store.session(ctx).Create(u).Error; err != nil {
		logger.Error(ctx, "Failed to create user in DB", "username", u.Username, "error", err)
		return err
	}
	return nil
}

// Get 根据用户 ID 获取用户
func (r *userRepositoryImpl) Get(ctx context.Context, userID int64) (*domain.User, error) {
	var u domain.User
	if err := r.store.session(ctx).Where("user_id = ?", userID).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: user %d", domain.ErrUserNotFound, userID)
		}
		logger.Error(ctx, "Failed to get user from DB", "user_id", userID, "error", err)
		return nil, err
	}
	return &u, nil
}

// GetByUsername 根据用户名获取用户
func (r *userRepositoryImpl) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	var u domain.User
	if err := r.store.session(ctx).Where("username = ?", username).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: user %q", domain.ErrUserNotFound, username)
		}
		logger.Error(ctx, "Failed to get user by username from DB", "username", username, "error", err)
		return nil, err
	}
	return &u, nil
}

// assetRepositoryImpl 是 domain.AssetRepository 接口的 GORM 实现
type assetRepositoryImpl struct {
	store *Store
}

// Get 获取用户持仓
func (r *assetRepositoryImpl) Get(ctx context.Context, ownerID int64, symbol string) (*domain.Asset, error) {
	var a domain.Asset
	if err := r.store.session(ctx).
		Where("owner_id = ? AND asset_symbol = ?", ownerID, symbol).
		First(&a).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: owner %d has no %s", domain.ErrAssetNotFound, ownerID, symbol)
		}
		logger.Error(ctx, "Failed to get asset from DB", "owner_id", ownerID, "asset_symbol", symbol, "error", err)
		return nil, err
	}
	return &a, nil
}

// Save 保存或更新持仓。冲突处理：主键已存在时更新数量
func (r *assetRepositoryImpl) Save(ctx context.Context, a *domain.Asset) error {
	if err := r.store.session(ctx).Omit(clause.Associations).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "owner_id"}, {Name: "asset_symbol"}},
		DoUpdates: clause.AssignmentColumns([]string{"asset_amount"}),
	}).Create(a).Error; err != nil {
		logger.Error(ctx, "Failed to save asset to DB", "owner_id", a.OwnerID, "asset_symbol", a.AssetSymbol, "error", err)
		return err
	}
	return nil
}

// Credit 原子增减已存在的持仓。
// 行不存在返回 ErrAssetNotFound，对应结算时"账户必须已有该资产"的约束
func (r *assetRepositoryImpl) Credit(ctx context.Context, ownerID int64, symbol string, delta decimal.Decimal) error {
	result := r.store.session(ctx).Model(&domain.Asset{}).
		Where("owner_id = ? AND asset_symbol = ?", ownerID, symbol).
		Update("asset_amount", gorm.Expr("asset_amount + ?", delta))
	if result.Error != nil {
		logger.Error(ctx, "Failed to credit asset in DB",
			"owner_id", ownerID, "asset_symbol", symbol, "delta", delta, "error", result.Error)
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: owner %d has no %s", domain.ErrAssetNotFound, ownerID, symbol)
	}
	return nil
}

// Deposit 增加持仓，行不存在时创建
func (r *assetRepositoryImpl) Deposit(ctx context.Context, ownerID int64, symbol string, delta decimal.Decimal) error {
	result := r.store.session(ctx).Model(&domain.Asset{}).
		Where("owner_id = ? AND asset_symbol = ?", ownerID, symbol).
		Update("asset_amount", gorm.Expr("asset_amount + ?", delta))
	if result.Error != nil {
		logger.Error(ctx, "Failed to deposit asset in DB",
			"owner_id", ownerID, "asset_symbol", symbol, "delta", delta, "error", result.Error)
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}

	a := &domain.Asset{OwnerID: ownerID, AssetSymbol: symbol, AssetAmount: delta}
	if err := r.store.session(ctx).Omit(clause.Associations).Create(a).Error; err != nil {
		logger.Error(ctx, "Failed to create asset in DB",
			"owner_id", ownerID, "asset_symbol", symbol, "error", err)
		return err
	}
	return nil
}

// companyRepositoryImpl 是 domain.CompanyRepository 接口的 GORM 实现
type companyRepositoryImpl struct {
	store *Store
}

// Get 根据证券代码获取公司
func (r *companyRepositoryImpl) Get(ctx context.Context, symbol string) (*domain.Company, error) {
	var c domain.Company
	if err := r.store.session(ctx).Where("symbol = ?", symbol).First(&c).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", domain.ErrCompanyNotFound, symbol)
		}
		logger.Error(ctx, "Failed to get company from DB", "symbol", symbol, "error", err)
		return nil, err
	}
	return &c, nil
}

// Save 保存或更新公司。冲突处理：symbol 已存在时更新全部业务列
func (r *companyRepositoryImpl) Save(ctx context.Context, c *domain.Company) error {
	if err := r.store.session(ctx).Omit(clause.Associations).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "symbol"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"name", "initial_value", "initial_size", "founder_id", "market_price",
		}),
	}).Create(c).Error; err != nil {
		logger.Error(ctx, "Failed to save company to DB", "symbol", c.Symbol, "error", err)
		return err
	}
	return nil
}

// SetMarketPrice 更新市价。
// 先确认公司存在再更新，连续同价成交时第二次更新不改变任何行，
// 不能以受影响行数判断公司是否存在
func (r *companyRepositoryImpl) SetMarketPrice(ctx context.Context, symbol string, price decimal.Decimal) error {
	if _, err := r.Get(ctx, symbol); err != nil {
		return err
	}
	if err := r.store.session(ctx).Model(&domain.Company{}).
		Where("symbol = ?", symbol).
		Update("market_price", price).Error; err != nil {
		logger.Error(ctx, "Failed to update market price in DB", "symbol", symbol, "price", price, "error", err)
		return err
	}
	return nil
}
